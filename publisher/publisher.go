// Package publisher posts composed threads in order and records every
// confirmed post in RunState, so an interrupted run can resume without
// creating duplicates.
package publisher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"newsbot/retry"
	"newsbot/runstate"
	"newsbot/types"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// Poster is the posting collaborator. replyToID is empty for the first post
// of a thread.
type Poster interface {
	CreatePost(ctx context.Context, text, replyToID string) (string, error)
}

// Options configures a Publisher
type Options struct {
	Poster Poster
	Store  runstate.Store
	Policy retry.Policy
	// MaxPostsPerDay counts confirmed posts in the run state. 0 disables the ceiling.
	MaxPostsPerDay int
	// PostInterval spaces consecutive posts. 0 disables pacing.
	PostInterval time.Duration
	Logger       *slog.Logger
	Now          func() time.Time
}

// Publisher publishes one run date's threads
type Publisher struct {
	poster   Poster
	store    runstate.Store
	policy   retry.Policy
	maxPosts int
	limiter  *rate.Limiter
	logger   *slog.Logger
	now      func() time.Time
}

// New builds a Publisher
func New(opts Options) *Publisher {
	p := &Publisher{
		poster:   opts.Poster,
		store:    opts.Store,
		policy:   opts.Policy.WithRetryable(isTransient),
		maxPosts: opts.MaxPostsPerDay,
		logger:   opts.Logger,
		now:      opts.Now,
	}
	if opts.PostInterval > 0 {
		p.limiter = rate.NewLimiter(rate.Every(opts.PostInterval), 1)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	if p.now == nil {
		p.now = time.Now
	}
	return p
}

// Prepare returns the stored state for runDate, or creates and saves a new
// one holding the given plan. The plan is persisted before the first post so a
// resumed run publishes exactly the same texts.
func (p *Publisher) Prepare(ctx context.Context, runDate string, plan types.Plan) (*types.RunState, error) {
	state, err := p.store.Load(ctx, runDate)
	switch {
	case err == nil && len(state.Threads) > 0:
		p.logger.Info("resuming run", "run_date", runDate, "run_id", state.RunID, "published_posts", state.PublishedPosts())
		return state, nil
	case err == nil:
		// an earlier attempt stored notes but no plan
	case errors.Is(err, runstate.ErrNotFound):
		now := p.now()
		state = &types.RunState{RunDate: runDate, RunID: uuid.NewString(), CreatedAt: now}
	default:
		return nil, fmt.Errorf("failed to load run state: %w", err)
	}

	state.Threads = types.ThreadsFromPlan(plan.Threads)
	if plan.Degraded {
		state.Degraded = true
	}
	for _, note := range plan.Notes {
		state.AddNote(note)
	}
	state.UpdatedAt = p.now()
	if err := p.store.Save(ctx, state); err != nil {
		return nil, fmt.Errorf("failed to save run plan: %w", err)
	}
	p.logger.Info("run plan saved", "run_date", runDate, "run_id", state.RunID, "threads", len(state.Threads), "fallback_threads", plan.FallbackThreads(), "degraded", state.Degraded)
	return state, nil
}

// Publish posts every thread of the run in order. Threads already published
// are skipped and partially published threads continue after their last
// confirmed post. A failing thread is recorded and the next one attempted.
// The returned state is always the latest saved one, also when err != nil.
func (p *Publisher) Publish(ctx context.Context, runDate string, plan types.Plan) (*types.RunState, error) {
	state, err := p.Prepare(ctx, runDate, plan)
	if err != nil {
		return nil, err
	}

	var stopReason string
	var quotaErr error

	for i := range state.Threads {
		th := &state.Threads[i]
		if th.Status == types.ThreadPublished {
			continue
		}
		if stopReason != "" {
			markStopped(th, stopReason)
			continue
		}

		log := p.logger.With("run_date", runDate, "thread", th.Index)
		err := p.publishThread(ctx, state, th, log)

		var perr *persistError
		switch {
		case err == nil:
			th.Status = types.ThreadPublished
			th.Error = ""
			log.Info("thread published", "posts", len(th.Posts))
		case errors.As(err, &perr):
			log.Error("post confirmed but not recorded, stopping", "error", err)
			return state, err
		case ctx.Err() != nil:
			th.Status = progressStatus(th)
			th.Error = ctx.Err().Error()
			state.AddNote("interrupted: " + ctx.Err().Error())
			_ = p.save(context.WithoutCancel(ctx), state)
			return state, fmt.Errorf("publishing interrupted: %w", ctx.Err())
		case errors.Is(err, ErrCeilingReached):
			markStopped(th, ErrCeilingReached.Error())
			stopReason = ErrCeilingReached.Error()
			state.Degraded = true
			state.AddNote(fmt.Sprintf("daily ceiling of %d posts reached", p.maxPosts))
			log.Warn("daily post ceiling reached, skipping remaining threads", "max_posts", p.maxPosts)
		case quotaExhausted(err):
			th.Status = types.ThreadFailed
			th.Error = err.Error()
			stopReason = ErrQuotaExhausted.Error()
			state.Degraded = true
			state.AddNote("posting quota exhausted")
			if state.PublishedPosts() == 0 {
				quotaErr = fmt.Errorf("%w: %w", ErrQuotaExhausted, err)
			}
			log.Error("posting quota exhausted, skipping remaining threads", "error", err)
		default:
			th.Status = types.ThreadFailed
			th.Error = err.Error()
			state.Degraded = true
			log.Error("thread failed", "error", err)
		}

		if err := p.save(ctx, state); err != nil {
			return state, err
		}
	}

	if err := p.save(ctx, state); err != nil {
		return state, err
	}
	if quotaErr != nil {
		return state, quotaErr
	}
	return state, nil
}

func (p *Publisher) publishThread(ctx context.Context, state *types.RunState, th *types.ThreadRecord, log *slog.Logger) error {
	replyTo := ""
	for i := range th.Posts {
		post := &th.Posts[i]
		if post.Published() {
			replyTo = post.ID
			continue
		}

		if p.maxPosts > 0 && state.PublishedPosts()+1 > p.maxPosts {
			return ErrCeilingReached
		}
		if p.limiter != nil {
			if err := p.limiter.Wait(ctx); err != nil {
				return err
			}
		}

		var id string
		err := p.policy.Do(ctx, func(ctx context.Context, attempt int) error {
			got, err := p.poster.CreatePost(ctx, post.Text, replyTo)
			if err != nil {
				log.Warn("post attempt failed", "post", i, "attempt", attempt, "error", err)
				return err
			}
			if got == "" {
				return &PostError{Message: "transport returned no post id"}
			}
			id = got
			return nil
		})
		if err != nil {
			return fmt.Errorf("post %d: %w", i, err)
		}

		now := p.now()
		post.ID = id
		post.PublishedAt = &now
		th.Status = progressStatus(th)
		if err := p.save(ctx, state); err != nil {
			return &persistError{err: err}
		}
		log.Debug("post published", "post", i, "id", id)
		replyTo = id
	}
	return nil
}

func (p *Publisher) save(ctx context.Context, state *types.RunState) error {
	state.UpdatedAt = p.now()
	if err := p.store.Save(ctx, state); err != nil {
		return fmt.Errorf("failed to save run state %s: %w", state.RunDate, err)
	}
	return nil
}

// progressStatus is the status of a thread that has not finished
func progressStatus(th *types.ThreadRecord) types.ThreadStatus {
	switch n := th.PublishedCount(); {
	case n == len(th.Posts) && n > 0:
		return types.ThreadPublished
	case n > 0:
		return types.ThreadPartial
	default:
		return types.ThreadPending
	}
}

func markStopped(th *types.ThreadRecord, reason string) {
	if th.PublishedCount() > 0 {
		th.Status = types.ThreadPartial
	} else {
		th.Status = types.ThreadSkipped
	}
	th.Error = reason
}
