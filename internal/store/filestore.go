package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/MrWong99/parley/internal/session"
)

var _ Store = (*FileStore)(nil)

// FileStore keeps one JSON record per session in a directory, named
// <id>.json. Writes go to a temporary file that is renamed into place so a
// crash never leaves a truncated record behind.
type FileStore struct {
	dir string
	mu  sync.RWMutex
}

// NewFileStore creates dir if needed and returns a store rooted there.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create %q: %w", ErrStorage, dir, err)
	}
	return &FileStore{dir: dir}, nil
}

func (f *FileStore) path(id uuid.UUID) string {
	return filepath.Join(f.dir, id.String()+".json")
}

// Persist implements [Store.Persist].
func (f *FileStore) Persist(ctx context.Context, s session.Session) error {
	if s.ID == uuid.Nil {
		return fmt.Errorf("%w: session has no id", ErrStorage)
	}
	data, err := Marshal(s)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStorage, err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	tmp, err := os.CreateTemp(f.dir, ".session-*.tmp")
	if err != nil {
		return fmt.Errorf("%w: create temp file: %w", ErrStorage, err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: write %s: %w", ErrStorage, s.ID, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: close %s: %w", ErrStorage, s.ID, err)
	}
	if err := os.Rename(tmp.Name(), f.path(s.ID)); err != nil {
		return fmt.Errorf("%w: rename %s: %w", ErrStorage, s.ID, err)
	}
	return nil
}

// Get implements [Store.Get].
func (f *FileStore) Get(ctx context.Context, id uuid.UUID) (session.Session, error) {
	f.mu.RLock()
	data, err := os.ReadFile(f.path(id))
	f.mu.RUnlock()
	if errors.Is(err, fs.ErrNotExist) {
		return session.Session{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return session.Session{}, fmt.Errorf("%w: read %s: %w", ErrStorage, id, err)
	}
	s, err := Unmarshal(data)
	if err != nil {
		return session.Session{}, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	return s, nil
}

// List implements [Store.List]. Unreadable records are logged and skipped.
func (f *FileStore) List(ctx context.Context) ([]session.Session, error) {
	f.mu.RLock()
	entries, err := os.ReadDir(f.dir)
	f.mu.RUnlock()
	if err != nil {
		return nil, fmt.Errorf("%w: list %q: %w", ErrStorage, f.dir, err)
	}

	out := make([]session.Session, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		id, err := uuid.Parse(strings.TrimSuffix(name, ".json"))
		if err != nil {
			continue
		}
		s, err := f.Get(ctx, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			slog.Warn("file store: skipping unreadable session", "file", name, "err", err)
			continue
		}
		out = append(out, s)
	}
	sortRecentFirst(out)
	return out, nil
}

// Delete implements [Store.Delete].
func (f *FileStore) Delete(ctx context.Context, ids []uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	var errs []error
	for _, id := range ids {
		if err := os.Remove(f.path(id)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, fmt.Errorf("%w: delete %s: %w", ErrStorage, id, err))
		}
	}
	return errors.Join(errs...)
}

// Export implements [Store.Export].
func (f *FileStore) Export(ctx context.Context, id uuid.UUID) ([]byte, error) {
	return exportFrom(ctx, f.Get, id)
}

// Close implements [Store.Close]. It is a no-op.
func (f *FileStore) Close() error { return nil }
