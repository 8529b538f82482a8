package runstate

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"newsbot/types"
)

// FileStore keeps one JSON file per run date in a directory. Writes go to a
// temporary file first and are renamed into place, so a crash never leaves a
// half-written state behind.
type FileStore struct {
	dir string
	mu  sync.Mutex
}

// NewFileStore creates dir if needed
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		dir = "state"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create state dir %s: %w", dir, err)
	}
	return &FileStore{dir: dir}, nil
}

func (f *FileStore) path(runDate string) string {
	return filepath.Join(f.dir, runDate+".json")
}

// Ping checks that the state directory is still there
func (f *FileStore) Ping(ctx context.Context) error {
	info, err := os.Stat(f.dir)
	if err != nil {
		return fmt.Errorf("state dir unavailable: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("state dir %s is not a directory", f.dir)
	}
	return nil
}

// Load implements Store
func (f *FileStore) Load(ctx context.Context, runDate string) (*types.RunState, error) {
	data, err := os.ReadFile(f.path(runDate))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read run state %s: %w", runDate, err)
	}
	return decode(runDate, data)
}

// Save implements Store
func (f *FileStore) Save(ctx context.Context, state *types.RunState) error {
	data, err := encode(state)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	tmp, err := os.CreateTemp(f.dir, state.RunDate+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp state file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write run state %s: %w", state.RunDate, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync run state %s: %w", state.RunDate, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close run state %s: %w", state.RunDate, err)
	}
	if err := os.Rename(tmpName, f.path(state.RunDate)); err != nil {
		return fmt.Errorf("failed to commit run state %s: %w", state.RunDate, err)
	}
	return nil
}

// List implements Store
func (f *FileStore) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list state dir: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return sortedDates(names, func(name string) (string, bool) {
		if strings.HasSuffix(name, ".tmp") {
			return "", false
		}
		return strings.CutSuffix(name, ".json")
	}), nil
}
