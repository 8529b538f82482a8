package publisher

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// DryRunPost is a post the dry-run transport pretended to create
type DryRunPost struct {
	ID      string
	ReplyTo string
	Text    string
}

// DryRunPoster logs posts instead of sending them and hands out fake IDs
type DryRunPoster struct {
	logger *slog.Logger

	mu    sync.Mutex
	posts []DryRunPost
}

// NewDryRunPoster returns a Poster that never touches the network
func NewDryRunPoster(logger *slog.Logger) *DryRunPoster {
	if logger == nil {
		logger = slog.Default()
	}
	return &DryRunPoster{logger: logger}
}

// CreatePost implements Poster
func (d *DryRunPoster) CreatePost(ctx context.Context, text, replyToID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	id := "dry-" + uuid.NewString()

	d.mu.Lock()
	d.posts = append(d.posts, DryRunPost{ID: id, ReplyTo: replyToID, Text: text})
	d.mu.Unlock()

	preview := []rune(text)
	if len(preview) > 45 {
		preview = append(preview[:45], []rune("...")...)
	}
	d.logger.Info("dry run: would post", "id", id, "reply_to", replyToID, "text", string(preview))
	return id, nil
}

// Posts returns what has been "posted" so far
func (d *DryRunPoster) Posts() []DryRunPost {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]DryRunPost(nil), d.posts...)
}
