// Package generation turns selected news items into short headlines, summaries
// and hashtags through a text-generation backend, falling back to deterministic
// truncation whenever the backend cannot deliver valid content.
package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"newsbot/retry"
	"newsbot/types"
)

// Request is one call to a text-generation backend
type Request struct {
	Prompt          string
	MaxOutputTokens int
	Temperature     float64
}

// TextGenerator is the text-generation collaborator. Implementations return
// *APIError for classified backend failures.
type TextGenerator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// Budget holds the character limits generated content must respect
type Budget struct {
	// Headline bounds the headline plus its hashtags
	Headline int
	Summary  int
}

// detailOverhead is the fixed text a detail post adds around headline, summary
// and link: "📰 10/10: ", two paragraph breaks and the "🔗 " marker
const detailOverhead = 15

// NewBudget derives the summary budget from what is left of a post once the
// headline, link and fixed markers are accounted for
func NewBudget(maxPostChars, linkWeight, headline int) Budget {
	summary := maxPostChars - headline - linkWeight - detailOverhead
	if summary < 40 {
		summary = 40
	}
	return Budget{Headline: headline, Summary: summary}
}

// Options configures a Generator
type Options struct {
	Backend         TextGenerator
	Policy          retry.Policy
	Budget          Budget
	MaxAttempts     int
	MaxHashtags     int
	DefaultHashtags []string
	MaxOutputTokens int
	Temperature     float64
	Logger          *slog.Logger
}

// Generator produces GeneratedContent for one run. It is not safe for
// concurrent use; items are generated sequentially in rank order.
type Generator struct {
	backend         TextGenerator
	policy          retry.Policy
	budget          Budget
	maxAttempts     int
	maxHashtags     int
	defaultHashtags []string
	maxOutputTokens int
	temperature     float64
	logger          *slog.Logger

	degraded bool
}

// Outcome describes how the content for one item was obtained
type Outcome struct {
	Attempts int
	Fallback bool
	Err      error
}

// Report summarizes GenerateAll
type Report struct {
	Outcomes  []Outcome
	Fallbacks int
	// Degraded is set once quota exhaustion switched the run to fallback content
	Degraded bool
}

// NewGenerator builds a generator around a backend
func NewGenerator(opts Options) *Generator {
	g := &Generator{
		backend:         opts.Backend,
		policy:          opts.Policy.WithRetryable(isRetryable),
		budget:          opts.Budget,
		maxAttempts:     opts.MaxAttempts,
		maxHashtags:     opts.MaxHashtags,
		defaultHashtags: opts.DefaultHashtags,
		maxOutputTokens: opts.MaxOutputTokens,
		temperature:     opts.Temperature,
		logger:          opts.Logger,
	}
	if g.maxAttempts <= 0 {
		g.maxAttempts = 3
	}
	if g.maxHashtags <= 0 {
		g.maxHashtags = 3
	}
	if g.budget.Headline <= 0 {
		g.budget = NewBudget(280, 23, 110)
	}
	if g.maxOutputTokens <= 0 {
		g.maxOutputTokens = 1024
	}
	if g.logger == nil {
		g.logger = slog.Default()
	}
	return g
}

// Degraded reports whether quota exhaustion disabled the backend for this run
func (g *Generator) Degraded() bool { return g.degraded }

// GenerateAll produces exactly one content per item, in order
func (g *Generator) GenerateAll(ctx context.Context, items []types.SelectedItem) ([]types.GeneratedContent, Report) {
	contents := make([]types.GeneratedContent, len(items))
	report := Report{Outcomes: make([]Outcome, len(items))}

	for i, item := range items {
		content, outcome := g.Generate(ctx, item)
		contents[i] = content
		report.Outcomes[i] = outcome
		if outcome.Fallback {
			report.Fallbacks++
		}
	}
	report.Degraded = g.degraded
	g.logger.Info("content generated", "items", len(items), "fallbacks", report.Fallbacks, "degraded", report.Degraded)
	return contents, report
}

// Generate asks the backend for content and validates it, regenerating with
// stricter instructions when validation fails. It never fails: when the backend
// cannot produce valid content the item gets deterministic fallback content
// and Outcome.Err says why.
func (g *Generator) Generate(ctx context.Context, item types.SelectedItem) (types.GeneratedContent, Outcome) {
	if g.degraded {
		return g.fallback(item), Outcome{Fallback: true, Err: ErrQuotaExhausted}
	}
	if err := ctx.Err(); err != nil {
		return g.fallback(item), Outcome{Fallback: true, Err: err}
	}

	var lastErr error
	for attempt := 0; attempt < g.maxAttempts; attempt++ {
		req := Request{
			Prompt:          buildPrompt(item, g.budget, g.maxHashtags, attempt),
			MaxOutputTokens: g.maxOutputTokens,
			Temperature:     g.temperature,
		}

		var text string
		err := g.policy.Do(ctx, func(ctx context.Context, n int) error {
			out, err := g.backend.Generate(ctx, req)
			if err != nil {
				g.logger.Warn("generation request failed", "item", item.Rank, "attempt", n, "error", err)
				return err
			}
			text = out
			return nil
		})
		if err != nil {
			if quotaExhausted(err) {
				g.degraded = true
				err = fmt.Errorf("%w: %w", ErrQuotaExhausted, err)
				g.logger.Error("generation quota exhausted, using fallback content for remaining items", "item", item.Rank, "error", err)
			} else {
				g.logger.Warn("generation failed, using fallback content", "item", item.Rank, "error", err)
			}
			return g.fallback(item), Outcome{Attempts: attempt + 1, Fallback: true, Err: err}
		}

		content, verr := g.validate(text)
		if verr == nil {
			return content, Outcome{Attempts: attempt + 1}
		}
		lastErr = verr
		g.logger.Warn("generated content rejected", "item", item.Rank, "attempt", attempt+1, "error", verr)
	}

	err := fmt.Errorf("no valid content after %d attempts: %w", g.maxAttempts, lastErr)
	return g.fallback(item), Outcome{Attempts: g.maxAttempts, Fallback: true, Err: err}
}

func quotaExhausted(err error) bool {
	var ex *retry.ExhaustedError
	return errors.As(err, &ex) && isRateLimited(ex.Err)
}

// validate parses and checks a backend response against the budget
func (g *Generator) validate(raw string) (types.GeneratedContent, error) {
	d, err := parseDraft(raw)
	if err != nil {
		return types.GeneratedContent{}, err
	}

	content := types.GeneratedContent{
		Headline: cleanText(d.Headline),
		Summary:  cleanText(d.Summary),
		Hashtags: cleanHashtags(d.Hashtags, g.maxHashtags),
	}
	if content.Headline == "" {
		return types.GeneratedContent{}, errors.New("empty headline")
	}
	if content.Summary == "" {
		return types.GeneratedContent{}, errors.New("empty summary")
	}
	if n := headlineLen(content.Headline, content.Hashtags); n > g.budget.Headline {
		return types.GeneratedContent{}, fmt.Errorf("headline with hashtags is %d chars, budget %d", n, g.budget.Headline)
	}
	if n := types.RuneLen(content.Summary); n > g.budget.Summary {
		return types.GeneratedContent{}, fmt.Errorf("summary is %d chars, budget %d", n, g.budget.Summary)
	}
	return content, nil
}

func (g *Generator) fallback(item types.SelectedItem) types.GeneratedContent {
	return Fallback(item, g.budget, cleanHashtags(g.defaultHashtags, g.maxHashtags))
}

// Fallback builds content from the raw item alone: the title truncated at a
// word boundary so that it fits the headline budget together with tags, and
// the raw summary truncated to the summary budget
func Fallback(item types.SelectedItem, b Budget, hashtags []string) types.GeneratedContent {
	room := b.Headline - tagsLen(hashtags)
	if room < b.Headline/2 {
		hashtags = nil
		room = b.Headline
	}
	return types.GeneratedContent{
		Headline: types.TruncateWords(collapse(item.Title), room),
		Summary:  types.TruncateWords(collapse(item.RawSummary), b.Summary),
		Hashtags: hashtags,
		Fallback: true,
	}
}

func headlineLen(headline string, hashtags []string) int {
	return types.RuneLen(headline) + tagsLen(hashtags)
}

// tagsLen is the length of the tags when appended after a space
func tagsLen(hashtags []string) int {
	if len(hashtags) == 0 {
		return 0
	}
	return 1 + types.RuneLen(strings.Join(hashtags, " "))
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
