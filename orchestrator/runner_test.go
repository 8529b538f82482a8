package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"newsbot/compose"
	"newsbot/generation"
	"newsbot/publisher"
	"newsbot/ranking"
	"newsbot/retry"
	"newsbot/rssfeeds"
	"newsbot/runstate"
	"newsbot/types"
)

var runNow = time.Date(2025, 1, 6, 19, 0, 0, 0, time.UTC)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeFetcher struct {
	items    []types.RawItem
	errs     []*rssfeeds.SourceFetchError
	calls    int
	enriched int
}

func (f *fakeFetcher) FetchAll(ctx context.Context, sources []types.FeedSource) rssfeeds.FetchResult {
	f.calls++
	return rssfeeds.FetchResult{Items: f.items, Errors: f.errs}
}

func (f *fakeFetcher) EnrichSummaries(ctx context.Context, items []types.SelectedItem) int {
	f.enriched += len(items)
	return 0
}

type fakeGenerator struct {
	degraded bool
}

func (g *fakeGenerator) GenerateAll(ctx context.Context, items []types.SelectedItem) ([]types.GeneratedContent, generation.Report) {
	out := make([]types.GeneratedContent, len(items))
	report := generation.Report{Outcomes: make([]generation.Outcome, len(items)), Degraded: g.degraded}
	for i, it := range items {
		out[i] = types.GeneratedContent{Headline: "H: " + it.Title, Summary: "Summary of " + it.Title, Hashtags: []string{"#AI"}}
		if g.degraded && i >= len(items)/2 {
			out[i].Fallback = true
			report.Fallbacks++
		}
	}
	return out, report
}

type fakePublisher struct {
	plans []types.Plan
	state *types.RunState
	err   error
}

func (p *fakePublisher) Publish(ctx context.Context, runDate string, plan types.Plan) (*types.RunState, error) {
	p.plans = append(p.plans, plan)
	return p.state, p.err
}

type fakeExporter struct {
	mu     sync.Mutex
	states []*types.RunState
}

func (e *fakeExporter) Export(ctx context.Context, state *types.RunState) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.states = append(e.states, state)
	return "output/news-06--01-2025.md", nil
}

func item(n int, source string, at time.Time) types.RawItem {
	return types.RawItem{
		Title:        fmt.Sprintf("Story %d", n),
		Link:         fmt.Sprintf("https://example.com/story/%d", n),
		PublishedAt:  at,
		HasTimestamp: true,
		SourceName:   source,
		RawSummary:   "Something happened today.",
	}
}

// sixFreshItems returns six in-window stories plus a duplicate and a stale one
func sixFreshItems() []types.RawItem {
	var items []types.RawItem
	for i := 1; i <= 6; i++ {
		items = append(items, item(i, "hn", runNow.Add(-time.Duration(i)*time.Hour)))
	}
	dup := item(2, "verge", runNow.Add(-30*time.Minute))
	dup.Link += "?utm_source=rss"
	stale := item(9, "verge", runNow.Add(-24*time.Hour))
	return append(items, dup, stale)
}

func newDeps(fetcher Fetcher, pub ThreadPublisher, store runstate.Store) Deps {
	return Deps{
		Feeds:        []types.FeedSource{{Name: "hn", URL: "https://hn.example/rss"}},
		Fetcher:      fetcher,
		Ranker:       ranking.Ranker{Keys: []ranking.Key{ranking.ByRecency}, Limit: 10},
		NewGenerator: func() ContentGenerator { return &fakeGenerator{} },
		Composer:     compose.New(280, 23, "Tech/AI News"),
		Publisher:    pub,
		Store:        store,
		Location:     time.UTC,
		Timeout:      time.Minute,
		Enrich:       true,
		Logger:       quietLogger(),
		Now:          func() time.Time { return runNow },
	}
}

func TestRunPublishesSixCandidatesAsSevenThreads(t *testing.T) {
	store := runstate.NewMemoryStore()
	poster := publisher.NewDryRunPoster(quietLogger())
	pub := publisher.New(publisher.Options{
		Poster:         poster,
		Store:          store,
		Policy:         retry.Policy{MaxAttempts: 1},
		MaxPostsPerDay: 100,
		Logger:         quietLogger(),
	})
	fetcher := &fakeFetcher{items: sixFreshItems()}
	exporter := &fakeExporter{}

	deps := newDeps(fetcher, pub, store)
	deps.Exporter = exporter
	runner := NewRunner(deps)

	res, err := runner.Run(context.Background(), "")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.RunDate != "2025-01-06" || res.Resumed {
		t.Errorf("result = %+v", res)
	}
	want := Counts{Fetched: 8, Candidates: 6, Selected: 6, Threads: 7, PublishedPosts: len(poster.Posts())}
	if res.Counts != want {
		t.Errorf("counts = %+v, want %+v", res.Counts, want)
	}
	if res.Counts.PublishedPosts < 7 {
		t.Errorf("published %d posts for 7 threads", res.Counts.PublishedPosts)
	}
	if fetcher.enriched != 6 {
		t.Errorf("enriched %d items, want 6", fetcher.enriched)
	}
	if !res.State.Complete() {
		t.Errorf("run state incomplete")
	}
	if len(exporter.states) != 1 || res.ExportPath == "" {
		t.Errorf("export not called once")
	}

	status := runner.Manager().GetStatus()
	if status.State != StateComplete || status.Counts != want || status.Error != "" {
		t.Errorf("status = %+v", status)
	}

	// second run for the same day resumes the finished state and posts nothing
	before := len(poster.Posts())
	res, err = runner.Run(context.Background(), "2025-01-06")
	if err != nil {
		t.Fatalf("second Run() error = %v", err)
	}
	if !res.Resumed || fetcher.calls != 1 || len(poster.Posts()) != before {
		t.Errorf("second run fetched or posted again: resumed=%v calls=%d", res.Resumed, fetcher.calls)
	}
}

func TestRunResumesStoredPlanWithoutFetching(t *testing.T) {
	store := runstate.NewMemoryStore()
	partial := &types.RunState{
		RunDate: "2025-01-06",
		RunID:   "r1",
		Threads: []types.ThreadRecord{
			{Index: 0, Status: types.ThreadPublished, Posts: []types.PostRecord{{Text: "index", ID: "1"}}},
			{Index: 1, Status: types.ThreadPending, Posts: []types.PostRecord{{Text: "detail"}}},
		},
	}
	if err := store.Save(context.Background(), partial); err != nil {
		t.Fatal(err)
	}
	fetcher := &fakeFetcher{items: sixFreshItems()}
	pub := &fakePublisher{state: partial}

	res, err := NewRunner(newDeps(fetcher, pub, store)).Run(context.Background(), "")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !res.Resumed {
		t.Error("expected a resumed run")
	}
	if fetcher.calls != 0 {
		t.Errorf("fetched %d times during resume", fetcher.calls)
	}
	if len(pub.plans) != 1 || pub.plans[0].Threads != nil {
		t.Errorf("resume should publish the stored plan, got %v", pub.plans)
	}
}

func TestRunWithoutCandidatesSkipsPublishing(t *testing.T) {
	fetcher := &fakeFetcher{
		items: []types.RawItem{item(1, "hn", runNow.Add(-30*time.Hour))},
		errs:  []*rssfeeds.SourceFetchError{{Source: types.FeedSource{Name: "tr"}, Err: errors.New("status 503")}},
	}
	pub := &fakePublisher{}
	runner := NewRunner(newDeps(fetcher, pub, runstate.NewMemoryStore()))

	res, err := runner.Run(context.Background(), "")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(pub.plans) != 0 {
		t.Error("published with no candidates")
	}
	if res.Counts.SourceErrors != 1 || res.Counts.Candidates != 0 {
		t.Errorf("counts = %+v", res.Counts)
	}
	if runner.Manager().GetState() != StateComplete {
		t.Errorf("state = %s", runner.Manager().GetState())
	}
}

func TestRunPublishFailureSetsErrorState(t *testing.T) {
	failed := &types.RunState{RunDate: "2025-01-06", Threads: []types.ThreadRecord{{Status: types.ThreadFailed}}, Degraded: true}
	pub := &fakePublisher{state: failed, err: publisher.ErrQuotaExhausted}
	deps := newDeps(&fakeFetcher{items: sixFreshItems()}, pub, runstate.NewMemoryStore())
	deps.NewGenerator = func() ContentGenerator { return &fakeGenerator{degraded: true} }
	runner := NewRunner(deps)

	res, err := runner.Run(context.Background(), "")
	if !errors.Is(err, publisher.ErrQuotaExhausted) {
		t.Fatalf("Run() error = %v", err)
	}
	if res.State != failed || res.Counts.Fallbacks != 3 {
		t.Errorf("result = %+v", res)
	}
	status := runner.Manager().GetStatus()
	if status.State != StateError || status.Error == "" || !status.Degraded {
		t.Errorf("status = %+v", status)
	}
}

func TestRunPersistsGenerationDegradation(t *testing.T) {
	store := runstate.NewMemoryStore()
	pub := publisher.New(publisher.Options{
		Poster:         publisher.NewDryRunPoster(quietLogger()),
		Store:          store,
		Policy:         retry.Policy{MaxAttempts: 1},
		MaxPostsPerDay: 100,
		Logger:         quietLogger(),
	})
	deps := newDeps(&fakeFetcher{items: sixFreshItems()}, pub, store)
	deps.NewGenerator = func() ContentGenerator { return &fakeGenerator{degraded: true} }

	if _, err := NewRunner(deps).Run(context.Background(), ""); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	stored, err := store.Load(context.Background(), "2025-01-06")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !stored.Degraded {
		t.Error("stored run state not degraded")
	}
	want := "generation quota exhausted, 3 items use fallback text"
	if len(stored.Notes) != 1 || stored.Notes[0] != want {
		t.Errorf("notes = %q, want [%q]", stored.Notes, want)
	}
	for _, th := range stored.Threads {
		if wantFallback := th.Index >= 4; th.Fallback != wantFallback {
			t.Errorf("thread %d fallback = %v, want %v", th.Index, th.Fallback, wantFallback)
		}
	}
}

func TestRunRefusesConcurrentRun(t *testing.T) {
	runner := NewRunner(newDeps(&fakeFetcher{}, &fakePublisher{}, runstate.NewMemoryStore()))
	if !runner.Manager().TryStart("2025-01-06") {
		t.Fatal("TryStart on idle manager failed")
	}
	runner.Manager().SetState(StateGenerating)

	if _, err := runner.Run(context.Background(), ""); !errors.Is(err, ErrBusy) {
		t.Errorf("Run() error = %v, want ErrBusy", err)
	}
}

func TestRunnerWindow(t *testing.T) {
	runner := NewRunner(newDeps(&fakeFetcher{}, &fakePublisher{}, runstate.NewMemoryStore()))

	tests := []struct {
		name      string
		date      string
		wantStart time.Time
		wantEnd   time.Time
		wantErr   bool
	}{
		{"today", "", time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC), runNow, false},
		{"explicit today", "2025-01-06", time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC), runNow, false},
		{"past day", "2025-01-04", time.Date(2025, 1, 4, 0, 0, 0, 0, time.UTC), time.Date(2025, 1, 5, 0, 0, 0, 0, time.UTC), false},
		{"future", "2025-01-09", time.Time{}, time.Time{}, true},
		{"malformed", "04-01-2025", time.Time{}, time.Time{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, err := runner.Window(tt.date)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Window() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if !w.Start.Equal(tt.wantStart) || !w.End.Equal(tt.wantEnd) {
				t.Errorf("window = [%v, %v)", w.Start, w.End)
			}
		})
	}
}
