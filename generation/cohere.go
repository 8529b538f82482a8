package generation

import (
	"context"
	"crypto/tls"
	"errors"
	"net/http"
	"time"

	cohere "github.com/cohere-ai/cohere-go/v2"
	cohereclient "github.com/cohere-ai/cohere-go/v2/client"
	"github.com/cohere-ai/cohere-go/v2/core"
)

const cohereProvider = "cohere"

// CohereClient generates text with the Cohere chat API
type CohereClient struct {
	client *cohereclient.Client
	model  string
}

// NewCohereClient creates a Cohere-backed TextGenerator
func NewCohereClient(apiKey, model string) *CohereClient {
	// HTTP/1.1 only; the chat endpoint has been flaky over HTTP/2
	httpClient := &http.Client{
		Timeout: 60 * time.Second,
		Transport: &http.Transport{
			TLSNextProto:      make(map[string]func(authority string, c *tls.Conn) http.RoundTripper),
			ForceAttemptHTTP2: false,
		},
	}
	client := cohereclient.NewClient(
		cohereclient.WithToken(apiKey),
		cohereclient.WithHTTPClient(httpClient),
	)
	return &CohereClient{client: client, model: model}
}

// Generate implements TextGenerator
func (c *CohereClient) Generate(ctx context.Context, req Request) (string, error) {
	model := c.model
	temperature := req.Temperature
	maxTokens := req.MaxOutputTokens

	resp, err := c.client.Chat(ctx, &cohere.ChatRequest{
		Message:     req.Prompt,
		Model:       &model,
		Temperature: &temperature,
		MaxTokens:   &maxTokens,
	})
	if err != nil {
		return "", classifyCohereError(ctx, err)
	}
	if resp == nil {
		return "", nil
	}
	return resp.Text, nil
}

func classifyCohereError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	var apiErr *core.APIError
	if errors.As(err, &apiErr) {
		return newStatusError(cohereProvider, apiErr.StatusCode, err.Error(), err)
	}
	return &APIError{Provider: cohereProvider, Err: err}
}
