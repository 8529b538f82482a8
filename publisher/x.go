package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

const (
	tweetsPath     = "/2/tweets"
	requestTimeout = 30 * time.Second
)

// XCredentials are OAuth2 user-context credentials for the X API v2
type XCredentials struct {
	BaseURL      string
	TokenURL     string
	ClientID     string
	ClientSecret string
	AccessToken  string
	RefreshToken string
}

// XClient creates posts through the X API v2
type XClient struct {
	http    *http.Client
	baseURL string
	logger  *slog.Logger
}

// NewXClient returns a client whose token is refreshed through x/oauth2 when a
// refresh token is configured
func NewXClient(ctx context.Context, creds XCredentials, logger *slog.Logger) *XClient {
	tok := &oauth2.Token{
		AccessToken:  creds.AccessToken,
		RefreshToken: creds.RefreshToken,
		TokenType:    "Bearer",
	}

	var httpClient *http.Client
	if creds.RefreshToken != "" {
		conf := &oauth2.Config{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL:  creds.TokenURL,
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		}
		if tok.AccessToken == "" {
			// force a refresh on first use
			tok.Expiry = time.Unix(1, 0)
		}
		httpClient = conf.Client(ctx, tok)
	} else {
		httpClient = oauth2.NewClient(ctx, oauth2.StaticTokenSource(tok))
	}
	httpClient.Timeout = requestTimeout

	return NewXClientWithHTTP(creds.BaseURL, httpClient, logger)
}

// NewXClientWithHTTP uses an already authenticated HTTP client
func NewXClientWithHTTP(baseURL string, httpClient *http.Client, logger *slog.Logger) *XClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &XClient{
		http:    httpClient,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger,
	}
}

type tweetReply struct {
	InReplyToTweetID string `json:"in_reply_to_tweet_id"`
}

type tweetRequest struct {
	Text  string      `json:"text"`
	Reply *tweetReply `json:"reply,omitempty"`
}

type tweetResponse struct {
	Data struct {
		ID   string `json:"id"`
		Text string `json:"text"`
	} `json:"data"`
}

type apiProblem struct {
	Title  string `json:"title"`
	Detail string `json:"detail"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// CreatePost implements Poster
func (x *XClient) CreatePost(ctx context.Context, text, replyToID string) (string, error) {
	payload := tweetRequest{Text: text}
	if replyToID != "" {
		payload.Reply = &tweetReply{InReplyToTweetID: replyToID}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", &PostError{Message: "encode request", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, x.baseURL+tweetsPath, bytes.NewReader(body))
	if err != nil {
		return "", &PostError{Message: "build request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := x.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", &PostError{Transient: true, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", &PostError{StatusCode: resp.StatusCode, Transient: true, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", x.statusError(resp, raw)
	}

	var out tweetResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", &PostError{StatusCode: resp.StatusCode, Message: "decode response", Err: err}
	}
	if out.Data.ID == "" {
		return "", &PostError{StatusCode: resp.StatusCode, Message: "response without post id"}
	}
	x.logger.Debug("post created", "id", out.Data.ID, "reply_to", replyToID)
	return out.Data.ID, nil
}

func (x *XClient) statusError(resp *http.Response, raw []byte) *PostError {
	pe := &PostError{
		StatusCode:  resp.StatusCode,
		RateLimited: resp.StatusCode == http.StatusTooManyRequests,
		Transient:   resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500,
		Message:     problemMessage(raw),
	}
	if pe.RateLimited {
		pe.Wait = retryAfter(resp.Header, time.Now())
	}
	return pe
}

func problemMessage(raw []byte) string {
	var p apiProblem
	if err := json.Unmarshal(raw, &p); err == nil {
		switch {
		case p.Detail != "":
			return p.Detail
		case p.Title != "":
			return p.Title
		case len(p.Errors) > 0:
			return p.Errors[0].Message
		}
	}
	msg := strings.TrimSpace(string(raw))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return msg
}

// retryAfter reads the wait hint from Retry-After (seconds) or
// x-rate-limit-reset (unix time)
func retryAfter(h http.Header, now time.Time) time.Duration {
	if v := h.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	if v := h.Get("x-rate-limit-reset"); v != "" {
		if unix, err := strconv.ParseInt(v, 10, 64); err == nil {
			if d := time.Unix(unix, 0).Sub(now); d > 0 {
				return d
			}
		}
	}
	return 0
}

// ErrNoCredentials is returned by NewPoster for a real transport without a token
var ErrNoCredentials = errors.New("no posting credentials")

// NewPoster picks the transport by name. Dry-run always wins.
func NewPoster(ctx context.Context, transport string, dryRun bool, creds XCredentials, logger *slog.Logger) (Poster, error) {
	if dryRun || transport == "dryrun" {
		return NewDryRunPoster(logger), nil
	}
	switch transport {
	case "x", "":
		if creds.AccessToken == "" && creds.RefreshToken == "" {
			return nil, ErrNoCredentials
		}
		return NewXClient(ctx, creds, logger), nil
	default:
		return nil, fmt.Errorf("unknown publisher transport %q", transport)
	}
}
