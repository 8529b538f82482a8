// Package export writes a day's threads as a markdown file, one post per
// block separated by horizontal rules, and optionally archives it.
package export

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"newsbot/common"
	"newsbot/types"
)

const (
	separator   = "---\n\n"
	contentType = "text/markdown; charset=utf-8"
	objectDir   = "exports"
)

// Exporter renders RunState plans to markdown
type Exporter struct {
	dir     string
	objects common.ObjectStore
	logger  *slog.Logger
}

// New returns an Exporter writing into dir. objects may be nil to skip the upload.
func New(dir string, objects common.ObjectStore, logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{dir: dir, objects: objects, logger: logger}
}

// FileName maps a run date (YYYY-MM-DD) to news-DD--MM-YYYY.md
func FileName(runDate string) (string, error) {
	d, err := time.Parse(time.DateOnly, runDate)
	if err != nil {
		return "", fmt.Errorf("invalid run date %q: %w", runDate, err)
	}
	return "news-" + d.Format("02--01-2006") + ".md", nil
}

// Render returns the markdown for the given threads in publication order
func Render(threads []types.ThreadRecord) []byte {
	var texts []string
	for _, th := range threads {
		for _, p := range th.Posts {
			if t := strings.TrimSpace(p.Text); t != "" {
				texts = append(texts, t)
			}
		}
	}

	var buf bytes.Buffer
	for i, t := range texts {
		buf.WriteString(t)
		buf.WriteString("\n\n")
		if i < len(texts)-1 {
			buf.WriteString(separator)
		}
	}
	return buf.Bytes()
}

// Export writes the markdown for state and uploads it when an object store is
// configured. It returns the local path.
func (e *Exporter) Export(ctx context.Context, state *types.RunState) (string, error) {
	name, err := FileName(state.RunDate)
	if err != nil {
		return "", err
	}
	body := Render(state.Threads)

	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create export dir: %w", err)
	}
	path := filepath.Join(e.dir, name)
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return "", fmt.Errorf("failed to write export: %w", err)
	}
	e.logger.Info("threads exported", "path", path, "run_date", state.RunDate, "bytes", len(body))

	if e.objects != nil {
		key := objectDir + "/" + name
		if err := e.objects.Put(ctx, key, body, contentType); err != nil {
			return path, fmt.Errorf("failed to upload export: %w", err)
		}
		e.logger.Info("export uploaded", "key", key)
	}
	return path, nil
}
