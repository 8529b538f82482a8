package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"google.golang.org/api/generativelanguage/v1beta"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const (
	geminiProvider = "gemini"
	geminiTimeout  = 45 * time.Second
)

// GeminiClient generates text with the Gemini API. When the primary model
// fails with anything but a client error, the fallback model is tried once.
type GeminiClient struct {
	svc           *generativelanguage.Service
	model         string
	fallbackModel string
	logger        *slog.Logger
}

// NewGeminiClient creates a client authenticated with an API key. Extra
// options are appended, so tests can point it at a local server.
func NewGeminiClient(ctx context.Context, apiKey, model, fallbackModel string, logger *slog.Logger, opts ...option.ClientOption) (*GeminiClient, error) {
	if logger == nil {
		logger = slog.Default()
	}
	opts = append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)
	svc, err := generativelanguage.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini service: %w", err)
	}
	return &GeminiClient{svc: svc, model: model, fallbackModel: fallbackModel, logger: logger}, nil
}

// Generate implements TextGenerator
func (g *GeminiClient) Generate(ctx context.Context, req Request) (string, error) {
	text, err := g.generate(ctx, g.model, req)
	if err == nil || g.fallbackModel == "" || !shouldTryFallback(err) {
		return text, err
	}
	g.logger.Warn("primary model failed, trying fallback", "model", g.model, "fallback", g.fallbackModel, "error", err)
	return g.generate(ctx, g.fallbackModel, req)
}

func (g *GeminiClient) generate(ctx context.Context, model string, req Request) (string, error) {
	reqCtx, cancel := context.WithTimeout(ctx, geminiTimeout)
	defer cancel()

	call := g.svc.Models.GenerateContent("models/"+model, &generativelanguage.GenerateContentRequest{
		Contents: []*generativelanguage.Content{{
			Role:  "user",
			Parts: []*generativelanguage.Part{{Text: req.Prompt}},
		}},
		GenerationConfig: &generativelanguage.GenerationConfig{
			MaxOutputTokens:  int64(req.MaxOutputTokens),
			Temperature:      req.Temperature,
			ResponseMimeType: "application/json",
		},
	})

	resp, err := call.Context(reqCtx).Do()
	if err != nil {
		return "", classifyGeminiError(ctx, err)
	}

	for i, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		var sb strings.Builder
		for _, part := range cand.Content.Parts {
			if part != nil {
				sb.WriteString(part.Text)
			}
		}
		if sb.Len() == 0 {
			continue
		}
		if cand.FinishReason != "" && cand.FinishReason != "STOP" {
			g.logger.Warn("gemini candidate did not finish cleanly", "model", model, "candidate", i, "finish_reason", cand.FinishReason)
		}
		return sb.String(), nil
	}

	// an empty answer fails validation and is regenerated
	g.logger.Warn("gemini returned no text", "model", model, "candidates", len(resp.Candidates))
	return "", nil
}

func classifyGeminiError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return newStatusError(geminiProvider, gerr.Code, gerr.Message, err)
	}
	return &APIError{Provider: geminiProvider, Err: err}
}

// shouldTryFallback skips the fallback model for request and auth problems
// that would fail the same way on any model
func shouldTryFallback(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.StatusCode {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden:
		return false
	}
	return true
}
