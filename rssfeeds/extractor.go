package rssfeeds

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"newsbot/types"

	readability "github.com/go-shiori/go-readability"
)

const (
	WorkerCount      = 5
	extractorTimeout = 30 * time.Second
	maxExcerptRunes  = 600
)

// EnrichSummaries fills in thin summaries of selected items from the article
// page itself. Items whose summary already has MinSummaryChars characters are
// left alone. Failures are logged and the original summary kept.
func (c *Client) EnrichSummaries(ctx context.Context, items []types.SelectedItem) int {
	var pending []int
	for i := range items {
		if items[i].Link == "" {
			continue
		}
		if len([]rune(items[i].RawSummary)) >= c.minSummaryChars {
			continue
		}
		pending = append(pending, i)
	}
	if len(pending) == 0 {
		return 0
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		enriched int
	)
	jobs := make(chan int)

	workers := min(WorkerCount, len(pending))
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for i := range jobs {
				text, err := c.extract(ctx, items[i].Link)
				if err != nil {
					c.logger.Warn("summary enrichment failed", "worker", workerID, "item", items[i].Link, "error", err)
					continue
				}
				if len([]rune(text)) <= len([]rune(items[i].RawSummary)) {
					continue
				}
				// each worker owns distinct indexes
				items[i].RawSummary = text
				mu.Lock()
				enriched++
				mu.Unlock()
			}
		}(w)
	}

	for _, i := range pending {
		select {
		case jobs <- i:
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			break
		}
	}
	close(jobs)
	wg.Wait()

	c.logger.Info("summaries enriched", "enriched", enriched, "attempted", len(pending))
	return enriched
}

// readabilityExcerpt downloads an article and returns its excerpt, or the
// leading part of its text when no excerpt is available
func (c *Client) readabilityExcerpt(ctx context.Context, link string) (string, error) {
	if _, err := url.ParseRequestURI(link); err != nil {
		return "", fmt.Errorf("invalid article URL: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	article, err := readability.FromURL(link, extractorTimeout)
	if err != nil {
		return "", fmt.Errorf("readability extraction failed: %w", err)
	}

	text := CleanText(article.Excerpt)
	if len([]rune(text)) < c.minSummaryChars {
		text = CleanText(article.TextContent)
	}
	if text == "" {
		return "", fmt.Errorf("no readable text")
	}
	return clipRunes(text, maxExcerptRunes), nil
}

func clipRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	cut := string(r[:n])
	if i := strings.LastIndex(cut, " "); i > n/2 {
		cut = cut[:i]
	}
	return cut
}
