// Package orchestrator runs the daily pipeline stage by stage, tracks its
// progress for the API and fires it on a schedule.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"newsbot/compose"
	"newsbot/deduplication"
	"newsbot/generation"
	"newsbot/ranking"
	"newsbot/rssfeeds"
	"newsbot/runstate"
	"newsbot/types"
)

// ErrBusy is returned when a run is requested while another is in progress
var ErrBusy = errors.New("a run is already in progress")

// Fetcher collects feed items and fills in thin summaries
type Fetcher interface {
	FetchAll(ctx context.Context, sources []types.FeedSource) rssfeeds.FetchResult
	EnrichSummaries(ctx context.Context, items []types.SelectedItem) int
}

// ContentGenerator produces one GeneratedContent per item, in order
type ContentGenerator interface {
	GenerateAll(ctx context.Context, items []types.SelectedItem) ([]types.GeneratedContent, generation.Report)
}

// ThreadPublisher posts the composed threads of a run date
type ThreadPublisher interface {
	Publish(ctx context.Context, runDate string, plan types.Plan) (*types.RunState, error)
}

// Exporter archives the final state of a run
type Exporter interface {
	Export(ctx context.Context, state *types.RunState) (string, error)
}

// Deps are the collaborators of a Runner. NewGenerator is called once per run
// since a generator carries the run's degraded flag.
type Deps struct {
	Feeds        []types.FeedSource
	Fetcher      Fetcher
	Deduplicator *deduplication.Deduplicator
	Ranker       ranking.Ranker
	NewGenerator func() ContentGenerator
	Composer     compose.Composer
	Publisher    ThreadPublisher
	Store        runstate.Store
	// Exporter may be nil
	Exporter Exporter

	Location *time.Location
	EndHour  int
	Timeout  time.Duration
	Enrich   bool

	Manager *Manager
	Logger  *slog.Logger
	Now     func() time.Time
}

// Result describes one finished run
type Result struct {
	RunDate    string
	Resumed    bool
	Counts     Counts
	State      *types.RunState
	ExportPath string
}

// Runner executes the complete pipeline
type Runner struct {
	deps Deps
}

// NewRunner creates a runner, filling in defaults for optional dependencies
func NewRunner(deps Deps) *Runner {
	if deps.Manager == nil {
		deps.Manager = NewManager()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Location == nil {
		deps.Location = time.UTC
	}
	if deps.Deduplicator == nil {
		deps.Deduplicator = deduplication.NewDeduplicator(deps.Logger)
	}
	return &Runner{deps: deps}
}

// Manager exposes the status manager
func (r *Runner) Manager() *Manager {
	return r.deps.Manager
}

// Store exposes the run state store
func (r *Runner) Store() runstate.Store {
	return r.deps.Store
}

// Window returns the window for runDate. An empty date, or today's date,
// means the window ending now; a past date covers that whole day.
func (r *Runner) Window(runDate string) (deduplication.Window, error) {
	now := r.deps.Now()
	today := deduplication.NewWindow(now, r.deps.Location, r.deps.EndHour)
	if runDate == "" || runDate == today.RunDate() {
		return today, nil
	}
	w, err := deduplication.DayWindow(runDate, r.deps.Location, r.deps.EndHour)
	if err != nil {
		return w, fmt.Errorf("invalid run date %q: %w", runDate, err)
	}
	if w.Start.After(now) {
		return w, fmt.Errorf("run date %s is in the future", runDate)
	}
	return w, nil
}

// Run executes the pipeline for runDate ("" for today). A date whose plan is
// already stored resumes publishing without fetching or generating again.
func (r *Runner) Run(ctx context.Context, runDate string) (*Result, error) {
	window, err := r.Window(runDate)
	if err != nil {
		return nil, err
	}
	runDate = window.RunDate()

	m := r.deps.Manager
	if !m.TryStart(runDate) {
		return nil, ErrBusy
	}

	if r.deps.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.deps.Timeout)
		defer cancel()
	}

	log := r.deps.Logger.With("run_date", runDate)
	res, err := r.run(ctx, window, log)
	if err != nil {
		m.SetError(err)
		log.Error("run failed", "error", err)
		return res, err
	}
	m.SetComplete()
	log.Info("run complete", "selected", res.Counts.Selected, "published_posts", res.Counts.PublishedPosts, "resumed", res.Resumed)
	return res, nil
}

func (r *Runner) run(ctx context.Context, window deduplication.Window, log *slog.Logger) (*Result, error) {
	m := r.deps.Manager
	runDate := window.RunDate()
	res := &Result{RunDate: runDate}

	stored, err := r.deps.Store.Load(ctx, runDate)
	switch {
	case err == nil && len(stored.Threads) > 0:
		res.Resumed = true
		if stored.Complete() {
			m.AddLog("All threads already published")
			res.State = stored
			res.Counts.Threads = len(stored.Threads)
			res.Counts.PublishedPosts = stored.PublishedPosts()
			return res, nil
		}
		m.AddLog(fmt.Sprintf("Resuming stored plan with %d threads", len(stored.Threads)))
		return r.publish(ctx, res, types.Plan{}, log)
	case err == nil, errors.Is(err, runstate.ErrNotFound):
	default:
		return res, fmt.Errorf("load run state: %w", err)
	}

	// fetch
	m.SetState(StateFetching)
	m.AddLog(fmt.Sprintf("Fetching %d feeds...", len(r.deps.Feeds)))
	fetched := r.deps.Fetcher.FetchAll(ctx, r.deps.Feeds)
	for _, e := range fetched.Errors {
		log.Warn("feed skipped", "source", e.Source, "error", e.Err)
	}
	res.Counts.Fetched = len(fetched.Items)
	res.Counts.SourceErrors = len(fetched.Errors)
	r.syncCounts(res)
	m.AddLog(fmt.Sprintf("Fetched %d items (%d feeds failed)", len(fetched.Items), len(fetched.Errors)))
	if err := ctx.Err(); err != nil {
		return res, fmt.Errorf("fetch: %w", err)
	}

	// window + dedup
	m.SetState(StateFiltering)
	filtered := r.deps.Deduplicator.Filter(fetched.Items, window)
	res.Counts.Candidates = len(filtered.Candidates)
	r.syncCounts(res)
	m.AddLog(fmt.Sprintf("Kept %d candidates (%d outside window, %d duplicates)",
		len(filtered.Candidates), filtered.DroppedOutOfWindow+filtered.DroppedNoTimestamp, filtered.Duplicates))
	if len(filtered.Candidates) == 0 {
		m.AddLog("No items in window, nothing to publish")
		log.Warn("no candidates in window", "start", window.Start, "end", window.End)
		return res, nil
	}

	// rank
	m.SetState(StateRanking)
	selected := r.deps.Ranker.Select(filtered.Candidates)
	res.Counts.Selected = len(selected)
	r.syncCounts(res)
	m.AddLog(fmt.Sprintf("Selected top %d items", len(selected)))

	if r.deps.Enrich {
		if n := r.deps.Fetcher.EnrichSummaries(ctx, selected); n > 0 {
			m.AddLog(fmt.Sprintf("Enriched %d summaries from article pages", n))
		}
	}

	// generate
	m.SetState(StateGenerating)
	m.AddLog(fmt.Sprintf("Generating content for %d items...", len(selected)))
	contents, report := r.deps.NewGenerator().GenerateAll(ctx, selected)
	res.Counts.Fallbacks = report.Fallbacks
	r.syncCounts(res)
	plan := types.Plan{Degraded: report.Degraded}
	switch {
	case report.Degraded:
		m.MarkDegraded()
		plan.Notes = append(plan.Notes, fmt.Sprintf("generation quota exhausted, %d items use fallback text", report.Fallbacks))
	case report.Fallbacks > 0:
		plan.Notes = append(plan.Notes, fmt.Sprintf("%d items use fallback text", report.Fallbacks))
	}
	for _, note := range plan.Notes {
		m.AddLog(note)
	}
	if err := ctx.Err(); err != nil {
		return res, fmt.Errorf("generate: %w", err)
	}

	// compose
	m.SetState(StateComposing)
	plan.Threads = r.deps.Composer.Compose(window.Start, selected, contents)
	res.Counts.Threads = len(plan.Threads)
	r.syncCounts(res)
	m.AddLog(fmt.Sprintf("Composed %d threads", len(plan.Threads)))

	return r.publish(ctx, res, plan, log)
}

func (r *Runner) publish(ctx context.Context, res *Result, plan types.Plan, log *slog.Logger) (*Result, error) {
	m := r.deps.Manager
	m.SetState(StatePublishing)
	m.AddLog("Publishing threads...")

	state, err := r.deps.Publisher.Publish(ctx, res.RunDate, plan)
	if state != nil {
		res.State = state
		res.Counts.Threads = len(state.Threads)
		res.Counts.PublishedPosts = state.PublishedPosts()
		r.syncCounts(res)
		if state.Degraded {
			m.MarkDegraded()
		}
		m.AddLog(fmt.Sprintf("Published %d posts", state.PublishedPosts()))
	}
	if err != nil {
		return res, fmt.Errorf("publish: %w", err)
	}

	if r.deps.Exporter != nil && state != nil {
		path, err := r.deps.Exporter.Export(ctx, state)
		if err != nil {
			// the posts are out; a failed archive does not fail the run
			log.Warn("export failed", "error", err)
			m.AddLog(fmt.Sprintf("Export failed: %v", err))
		}
		res.ExportPath = path
	}
	return res, nil
}

func (r *Runner) syncCounts(res *Result) {
	counts := res.Counts
	r.deps.Manager.UpdateCounts(func(c *Counts) { *c = counts })
}
