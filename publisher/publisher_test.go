package publisher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"newsbot/retry"
	"newsbot/runstate"
	"newsbot/types"
)

const testDate = "2025-01-06"

type createdPost struct {
	id, text, replyTo string
}

// fakePoster assigns sequential IDs. failures maps a post text to the errors
// returned on its first attempts, in order.
type fakePoster struct {
	mu       sync.Mutex
	created  []createdPost
	attempts map[string]int
	failures map[string][]error
	onCall   func(n int)
	calls    int
}

func (f *fakePoster) CreatePost(ctx context.Context, text, replyToID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.onCall != nil {
		f.onCall(f.calls)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if f.attempts == nil {
		f.attempts = make(map[string]int)
	}
	n := f.attempts[text]
	f.attempts[text] = n + 1
	if errs := f.failures[text]; n < len(errs) {
		return "", errs[n]
	}
	id := fmt.Sprintf("id-%d", len(f.created)+1)
	f.created = append(f.created, createdPost{id: id, text: text, replyTo: replyToID})
	return id, nil
}

func (f *fakePoster) countText(text string) int {
	n := 0
	for _, c := range f.created {
		if c.text == text {
			n++
		}
	}
	return n
}

type noSleep struct{ slept []time.Duration }

func (c *noSleep) Sleep(ctx context.Context, d time.Duration) error {
	c.slept = append(c.slept, d)
	return ctx.Err()
}

func newTestPublisher(poster Poster, store runstate.Store, maxPosts int) *Publisher {
	return New(Options{
		Poster: poster,
		Store:  store,
		Policy: retry.Policy{
			MaxAttempts:  3,
			BaseDelay:    time.Second,
			MaxDelay:     5 * time.Second,
			MaxTotalWait: time.Minute,
			Clock:        &noSleep{},
		},
		MaxPostsPerDay: maxPosts,
		Logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:            func() time.Time { return time.Date(2025, 1, 6, 19, 0, 0, 0, time.UTC) },
	})
}

// plan builds an index thread plus n detail threads of postsEach posts
func plan(n, postsEach int) types.Plan {
	threads := []types.Thread{{Index: 0, Kind: types.ThreadIndex, Posts: []types.Post{{Text: "index", ReplyTo: -1}}}}
	for i := 1; i <= n; i++ {
		th := types.Thread{Index: i, Kind: types.ThreadDetail}
		for j := 0; j < postsEach; j++ {
			th.Posts = append(th.Posts, types.Post{Text: fmt.Sprintf("t%d p%d", i, j+1), ReplyTo: j - 1})
		}
		threads = append(threads, th)
	}
	return types.Plan{Threads: threads}
}

func transient() error {
	return &PostError{StatusCode: 503, Transient: true, Message: "unavailable"}
}

func TestPublishAllThreadsInOrder(t *testing.T) {
	poster := &fakePoster{}
	store := runstate.NewMemoryStore()
	p := newTestPublisher(poster, store, 40)

	state, err := p.Publish(context.Background(), testDate, plan(3, 2))
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if !state.Complete() || state.Degraded {
		t.Fatalf("state not complete: %+v", state)
	}
	wantOrder := []string{"index", "t1 p1", "t1 p2", "t2 p1", "t2 p2", "t3 p1", "t3 p2"}
	if len(poster.created) != len(wantOrder) {
		t.Fatalf("created %d posts, want %d", len(poster.created), len(wantOrder))
	}
	for i, want := range wantOrder {
		if poster.created[i].text != want {
			t.Errorf("post %d = %q, want %q", i, poster.created[i].text, want)
		}
	}
	// second post of a thread replies to the first, first posts start fresh
	if poster.created[2].replyTo != poster.created[1].id || poster.created[1].replyTo != "" {
		t.Errorf("reply chain broken: %+v", poster.created[:3])
	}

	stored, err := store.Load(context.Background(), testDate)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if stored.PublishedPosts() != 7 {
		t.Errorf("stored published posts = %d", stored.PublishedPosts())
	}
}

func TestPublishTransientFailureOnSecondPostIsNotDuplicated(t *testing.T) {
	poster := &fakePoster{failures: map[string][]error{"t3 p2": {transient()}}}
	store := runstate.NewMemoryStore()
	p := newTestPublisher(poster, store, 40)

	state, err := p.Publish(context.Background(), testDate, plan(10, 2))
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	th := state.Threads[3]
	if th.Status != types.ThreadPublished {
		t.Errorf("thread 3 status = %s", th.Status)
	}
	if poster.countText("t3 p1") != 1 || poster.countText("t3 p2") != 1 {
		t.Errorf("thread 3 posts created %d/%d times, want 1/1", poster.countText("t3 p1"), poster.countText("t3 p2"))
	}
	if th.Posts[1].ID == "" || th.Posts[0].ID == th.Posts[1].ID {
		t.Errorf("thread 3 post IDs = %+v", th.Posts)
	}
	if poster.attempts["t3 p2"] != 2 {
		t.Errorf("t3 p2 attempts = %d, want 2", poster.attempts["t3 p2"])
	}
	if len(state.Threads) != 11 || !state.Complete() {
		t.Errorf("state incomplete: %d threads", len(state.Threads))
	}
}

func TestPublishExhaustedThreadDoesNotBlockOthers(t *testing.T) {
	poster := &fakePoster{failures: map[string][]error{
		"t2 p1": {transient(), transient(), transient()},
	}}
	p := newTestPublisher(poster, runstate.NewMemoryStore(), 40)

	state, err := p.Publish(context.Background(), testDate, plan(3, 1))
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if state.Threads[2].Status != types.ThreadFailed || state.Threads[2].Error == "" {
		t.Errorf("thread 2 = %+v", state.Threads[2])
	}
	if state.Threads[3].Status != types.ThreadPublished || state.Threads[0].Status != types.ThreadPublished {
		t.Errorf("other threads not published: %+v", state.Threads)
	}
	if !state.Degraded {
		t.Errorf("run should be degraded")
	}
}

func TestPublishClientErrorFailsThreadImmediately(t *testing.T) {
	poster := &fakePoster{failures: map[string][]error{
		"t1 p1": {&PostError{StatusCode: 403, Message: "duplicate content"}},
	}}
	p := newTestPublisher(poster, runstate.NewMemoryStore(), 40)

	state, err := p.Publish(context.Background(), testDate, plan(2, 2))
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if poster.attempts["t1 p1"] != 1 {
		t.Errorf("403 retried %d times", poster.attempts["t1 p1"])
	}
	if poster.attempts["t1 p2"] != 0 {
		t.Errorf("later post of failed thread attempted")
	}
	if state.Threads[1].Status != types.ThreadFailed || state.Threads[2].Status != types.ThreadPublished {
		t.Errorf("statuses = %s, %s", state.Threads[1].Status, state.Threads[2].Status)
	}
}

func TestPublishCeilingNeverExceededAcrossResumes(t *testing.T) {
	poster := &fakePoster{}
	store := runstate.NewMemoryStore()
	threads := plan(10, 2)

	state, err := newTestPublisher(poster, store, 6).Publish(context.Background(), testDate, threads)
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if len(poster.created) != 6 || state.PublishedPosts() != 6 {
		t.Fatalf("created %d posts, want 6", len(poster.created))
	}
	if !state.Degraded {
		t.Errorf("ceiling should degrade the run")
	}
	// index, t1 and t2 use five posts; the sixth is t3 p1
	if state.Threads[3].Status != types.ThreadPartial {
		t.Errorf("thread 3 status = %s, want partial", state.Threads[3].Status)
	}
	for _, th := range state.Threads[4:] {
		if th.Status != types.ThreadSkipped {
			t.Errorf("thread %d status = %s, want skipped", th.Index, th.Status)
		}
	}

	// same ceiling again: nothing new
	state, err = newTestPublisher(poster, store, 6).Publish(context.Background(), testDate, threads)
	if err != nil {
		t.Fatalf("resume error = %v", err)
	}
	if len(poster.created) != 6 {
		t.Errorf("resume under the same ceiling created %d posts", len(poster.created)-6)
	}

	// raised ceiling: finishes without duplicates
	state, err = newTestPublisher(poster, store, 40).Publish(context.Background(), testDate, threads)
	if err != nil {
		t.Fatalf("resume error = %v", err)
	}
	if !state.Complete() {
		t.Errorf("state not complete after raising the ceiling")
	}
	if len(poster.created) != 21 {
		t.Errorf("created %d posts in total, want 21", len(poster.created))
	}
	for _, c := range poster.created {
		if poster.countText(c.text) != 1 {
			t.Errorf("post %q created %d times", c.text, poster.countText(c.text))
		}
	}
	// the resumed t3 p2 must reply to the t3 p1 created in the first run
	if stored := state.Threads[3]; stored.Posts[1].ID == "" {
		t.Errorf("t3 p2 not published")
	}
	for _, c := range poster.created {
		if c.text == "t3 p2" && c.replyTo != state.Threads[3].Posts[0].ID {
			t.Errorf("t3 p2 replied to %q, want %q", c.replyTo, state.Threads[3].Posts[0].ID)
		}
	}
}

func TestPublishResumeAfterInterruptionNeverRecreatesPosts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	first := &fakePoster{onCall: func(n int) {
		if n == 4 {
			cancel()
		}
	}}
	store := runstate.NewMemoryStore()
	threads := plan(3, 2)

	state, err := newTestPublisher(first, store, 40).Publish(ctx, testDate, threads)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Publish() error = %v, want context.Canceled", err)
	}
	if state.PublishedPosts() != 3 {
		t.Fatalf("published %d posts before interruption, want 3", state.PublishedPosts())
	}

	// the resumed run is handed a different plan; the stored one must win
	changed := plan(3, 2)
	changed.Threads[1].Posts[0].Text = "rewritten"
	second := &fakePoster{}
	state, err = newTestPublisher(second, store, 40).Publish(context.Background(), testDate, changed)
	if err != nil {
		t.Fatalf("resume error = %v", err)
	}
	if !state.Complete() {
		t.Fatalf("resumed state incomplete: %+v", state.Threads)
	}
	for _, c := range second.created {
		for _, old := range first.created {
			if c.text == old.text {
				t.Errorf("post %q created again on resume", c.text)
			}
		}
		if c.text == "rewritten" {
			t.Errorf("resume used the new plan instead of the stored one")
		}
	}
	if len(first.created)+len(second.created) != 7 {
		t.Errorf("total created = %d, want 7", len(first.created)+len(second.created))
	}
}

func TestPublishQuotaExhaustedAtStartFailsRun(t *testing.T) {
	limited := &PostError{StatusCode: 429, RateLimited: true, Transient: true, Message: "too many requests"}
	poster := &fakePoster{failures: map[string][]error{"index": {limited, limited, limited}}}
	p := newTestPublisher(poster, runstate.NewMemoryStore(), 40)

	state, err := p.Publish(context.Background(), testDate, plan(2, 1))
	if !errors.Is(err, ErrQuotaExhausted) {
		t.Fatalf("Publish() error = %v, want ErrQuotaExhausted", err)
	}
	if state.Threads[0].Status != types.ThreadFailed {
		t.Errorf("index status = %s", state.Threads[0].Status)
	}
	for _, th := range state.Threads[1:] {
		if th.Status != types.ThreadSkipped {
			t.Errorf("thread %d status = %s, want skipped", th.Index, th.Status)
		}
	}
	if len(poster.created) != 0 {
		t.Errorf("posts created after quota exhaustion")
	}
}

type failingStore struct {
	*runstate.MemoryStore
	failAfter int
	saves     int
}

func (f *failingStore) Save(ctx context.Context, s *types.RunState) error {
	f.saves++
	if f.saves > f.failAfter {
		return errors.New("disk full")
	}
	return f.MemoryStore.Save(ctx, s)
}

func TestPublishStopsWhenStateCannotBeSaved(t *testing.T) {
	poster := &fakePoster{}
	// plan save succeeds, first post's save fails
	store := &failingStore{MemoryStore: runstate.NewMemoryStore(), failAfter: 1}
	p := newTestPublisher(poster, store, 40)

	_, err := p.Publish(context.Background(), testDate, plan(3, 1))
	if err == nil {
		t.Fatal("expected error")
	}
	if len(poster.created) != 1 {
		t.Errorf("created %d posts, publishing must stop after an unrecorded post", len(poster.created))
	}
}

func TestPrepareRecordsDegradedPlan(t *testing.T) {
	store := runstate.NewMemoryStore()
	p := plan(2, 1)
	p.Threads[2].Fallback = true
	p.Degraded = true
	p.Notes = []string{"generation quota exhausted, 1 items use fallback text"}

	if _, err := newTestPublisher(&fakePoster{}, store, 40).Prepare(context.Background(), testDate, p); err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}

	stored, err := store.Load(context.Background(), testDate)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !stored.Degraded {
		t.Error("degraded plan not recorded")
	}
	if len(stored.Notes) != 1 || stored.Notes[0] != p.Notes[0] {
		t.Errorf("notes = %v", stored.Notes)
	}
	if stored.Threads[1].Fallback || !stored.Threads[2].Fallback {
		t.Errorf("fallback markers = %v, %v", stored.Threads[1].Fallback, stored.Threads[2].Fallback)
	}
}
