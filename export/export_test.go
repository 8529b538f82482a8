package export

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"newsbot/types"
)

type recordingObjects struct {
	puts map[string][]byte
	err  error
}

func (r *recordingObjects) Put(ctx context.Context, key string, body []byte, contentType string) error {
	if r.err != nil {
		return r.err
	}
	if r.puts == nil {
		r.puts = make(map[string][]byte)
	}
	r.puts[key] = body
	return nil
}

func (r *recordingObjects) Get(ctx context.Context, key string) ([]byte, error) {
	return r.puts[key], nil
}

func (r *recordingObjects) List(ctx context.Context, prefix string) ([]string, error) {
	return nil, nil
}

func sampleState() *types.RunState {
	return &types.RunState{
		RunDate: "2025-01-06",
		Threads: []types.ThreadRecord{
			{Index: 0, Posts: []types.PostRecord{{Text: "🚀 Top 2 Tech/AI News - 06-01-2025:\n\n1. A\n2. B"}}},
			{Index: 1, Posts: []types.PostRecord{{Text: "📰 1/2: A"}, {Text: "more about A  "}}},
			{Index: 2, Posts: []types.PostRecord{{Text: "📰 2/2: B"}, {Text: "   "}}},
		},
	}
}

func TestFileName(t *testing.T) {
	got, err := FileName("2025-01-06")
	if err != nil {
		t.Fatal(err)
	}
	if got != "news-06--01-2025.md" {
		t.Errorf("FileName() = %q", got)
	}
	if _, err := FileName("06-01-2025"); err == nil {
		t.Error("expected error for a non ISO date")
	}
}

func TestRender(t *testing.T) {
	want := "🚀 Top 2 Tech/AI News - 06-01-2025:\n\n1. A\n2. B\n\n" +
		"---\n\n📰 1/2: A\n\n" +
		"---\n\nmore about A\n\n" +
		"---\n\n📰 2/2: B\n\n"
	if got := string(Render(sampleState().Threads)); got != want {
		t.Errorf("Render() =\n%q\nwant\n%q", got, want)
	}
	if got := Render(nil); len(got) != 0 {
		t.Errorf("Render(nil) = %q", got)
	}
}

func TestExportWritesAndUploads(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	objects := &recordingObjects{}
	e := New(dir, objects, slog.New(slog.NewTextHandler(io.Discard, nil)))

	path, err := e.Export(context.Background(), sampleState())
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if filepath.Base(path) != "news-06--01-2025.md" {
		t.Errorf("path = %s", path)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(raw) != string(Render(sampleState().Threads)) {
		t.Errorf("file content differs from Render()")
	}
	if string(objects.puts["exports/news-06--01-2025.md"]) != string(raw) {
		t.Errorf("uploaded objects = %v", objects.puts)
	}
}

func TestExportUploadFailureKeepsLocalFile(t *testing.T) {
	dir := t.TempDir()
	e := New(dir, &recordingObjects{err: errors.New("access denied")}, nil)

	path, err := e.Export(context.Background(), sampleState())
	if err == nil {
		t.Fatal("expected upload error")
	}
	if _, statErr := os.Stat(path); statErr != nil {
		t.Errorf("local export missing: %v", statErr)
	}
}
