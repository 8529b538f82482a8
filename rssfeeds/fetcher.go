package rssfeeds

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"newsbot/types"

	"github.com/mmcdole/gofeed"
)

// SourceFetchError records a feed that could not be fetched or parsed. The
// source contributes no items to the run.
type SourceFetchError struct {
	Source types.FeedSource
	Err    error
}

func (e *SourceFetchError) Error() string {
	return fmt.Sprintf("feed %s (%s): %v", e.Source.Name, e.Source.URL, e.Err)
}

func (e *SourceFetchError) Unwrap() error { return e.Err }

// Options configures a Client. Zero values fall back to defaults.
type Options struct {
	HTTPClient      *http.Client
	Timeout         time.Duration
	Concurrency     int
	MaxItemsPerFeed int
	UserAgent       string
	MinSummaryChars int
	Logger          *slog.Logger
}

// Client fetches syndication feeds
type Client struct {
	http            *http.Client
	timeout         time.Duration
	concurrency     int
	maxItems        int
	userAgent       string
	minSummaryChars int
	logger          *slog.Logger

	// extract is swapped out in tests
	extract func(ctx context.Context, url string) (string, error)
}

// NewClient builds a feed client
func NewClient(opts Options) *Client {
	c := &Client{
		http:            opts.HTTPClient,
		timeout:         opts.Timeout,
		concurrency:     opts.Concurrency,
		maxItems:        opts.MaxItemsPerFeed,
		userAgent:       opts.UserAgent,
		minSummaryChars: opts.MinSummaryChars,
		logger:          opts.Logger,
	}
	if c.http == nil {
		c.http = &http.Client{}
	}
	if c.timeout <= 0 {
		c.timeout = 20 * time.Second
	}
	if c.concurrency <= 0 {
		c.concurrency = 4
	}
	if c.maxItems <= 0 {
		c.maxItems = 6
	}
	if c.userAgent == "" {
		c.userAgent = "newsbot/1.0"
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	c.extract = c.readabilityExcerpt
	return c
}

// FetchFeed retrieves and parses one feed. The download and parse happen
// within the per-source timeout; conversion to RawItem happens lazily while the
// returned sequence is ranged over. The sequence can be consumed only once.
func (c *Client) FetchFeed(ctx context.Context, src types.FeedSource) (iter.Seq[types.RawItem], error) {
	return c.fetchFeed(ctx, src, 0)
}

func (c *Client) fetchFeed(ctx context.Context, src types.FeedSource, index int) (iter.Seq[types.RawItem], error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return nil, &SourceFetchError{Source: src, Err: err}
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml;q=0.9, */*;q=0.8")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &SourceFetchError{Source: src, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &SourceFetchError{Source: src, Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	// gofeed.Parser keeps per-parse state, so each fetch gets its own
	feed, err := gofeed.NewParser().Parse(resp.Body)
	if err != nil {
		return nil, &SourceFetchError{Source: src, Err: fmt.Errorf("failed to parse feed: %w", err)}
	}

	entries := feed.Items
	if len(entries) > c.maxItems {
		entries = entries[:c.maxItems]
	}

	var consumed atomic.Bool
	return func(yield func(types.RawItem) bool) {
		if consumed.Swap(true) {
			return
		}
		for _, entry := range entries {
			item, ok := toRawItem(entry, src, index)
			if !ok {
				continue
			}
			if !yield(item) {
				return
			}
		}
	}, nil
}

func toRawItem(entry *gofeed.Item, src types.FeedSource, index int) (types.RawItem, bool) {
	if entry == nil {
		return types.RawItem{}, false
	}
	title := CleanText(entry.Title)
	if title == "" {
		return types.RawItem{}, false
	}

	link := strings.TrimSpace(entry.Link)
	if link == "" && strings.HasPrefix(entry.GUID, "http") {
		link = strings.TrimSpace(entry.GUID)
	}

	item := types.RawItem{
		Title:       title,
		Link:        link,
		SourceName:  src.Name,
		SourceIndex: index,
	}

	switch {
	case entry.PublishedParsed != nil:
		item.PublishedAt = *entry.PublishedParsed
		item.HasTimestamp = true
	case entry.UpdatedParsed != nil:
		item.PublishedAt = *entry.UpdatedParsed
		item.HasTimestamp = true
	}

	summary := entry.Description
	if strings.TrimSpace(summary) == "" {
		summary = entry.Content
	}
	item.RawSummary = CleanText(summary)

	return item, true
}

// FetchResult is the outcome of fetching every configured source
type FetchResult struct {
	Items  []types.RawItem
	Errors []*SourceFetchError
}

// FetchAll fetches every source with bounded concurrency. Items are returned
// in configured source order, then feed order. Failed sources are recorded in
// Errors and contribute nothing.
func (c *Client) FetchAll(ctx context.Context, sources []types.FeedSource) FetchResult {
	perSource := make([][]types.RawItem, len(sources))
	failures := make([]*SourceFetchError, len(sources))

	var wg sync.WaitGroup
	sem := make(chan struct{}, c.concurrency)

	for i, src := range sources {
		wg.Add(1)
		go func(i int, src types.FeedSource) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				failures[i] = &SourceFetchError{Source: src, Err: ctx.Err()}
				return
			}
			defer func() { <-sem }()

			seq, err := c.fetchFeed(ctx, src, i)
			if err != nil {
				failures[i] = asSourceError(src, err)
				c.logger.Warn("feed fetch failed", "source", src.Name, "error", err)
				return
			}
			for item := range seq {
				perSource[i] = append(perSource[i], item)
			}
			c.logger.Debug("feed fetched", "source", src.Name, "items", len(perSource[i]))
		}(i, src)
	}
	wg.Wait()

	var result FetchResult
	for i := range sources {
		if failures[i] != nil {
			result.Errors = append(result.Errors, failures[i])
			continue
		}
		result.Items = append(result.Items, perSource[i]...)
	}
	return result
}

func asSourceError(src types.FeedSource, err error) *SourceFetchError {
	if se, ok := err.(*SourceFetchError); ok {
		return se
	}
	return &SourceFetchError{Source: src, Err: err}
}
