// Package store persists finished interview sessions and serialises them in
// the JSON record format used for export.
package store

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"

	"github.com/MrWong99/parley/internal/session"
)

var (
	// ErrStorage wraps every failure of the underlying storage medium.
	ErrStorage = errors.New("store: storage failure")

	// ErrNotFound is returned when no session exists under the requested id.
	ErrNotFound = errors.New("store: session not found")
)

// Store is the durable home of sealed sessions.
//
// Implementations must be safe for concurrent use.
type Store interface {
	// Persist writes s keyed by s.ID. Persisting an id that already exists
	// replaces the stored record.
	Persist(ctx context.Context, s session.Session) error

	// Get returns the session stored under id or an error wrapping [ErrNotFound].
	Get(ctx context.Context, id uuid.UUID) (session.Session, error)

	// List returns every stored session, most recently started first.
	List(ctx context.Context) ([]session.Session, error)

	// Delete removes the sessions with the given ids. Ids that are not stored
	// are ignored, so an empty set and repeated calls are no-ops.
	Delete(ctx context.Context, ids []uuid.UUID) error

	// Export returns the stored session serialised as its JSON record.
	Export(ctx context.Context, id uuid.UUID) ([]byte, error)

	// Close releases resources held by the store.
	Close() error
}

// Pinger is implemented by stores that can report connectivity for
// readiness probes.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ExportFilename returns the download name of an exported session:
// interview-session-<YYYY-MM-DD>.json, dated by the session's start in UTC
// so a live session and its stored copy share a name.
func ExportFilename(s session.Session) string {
	return fmt.Sprintf("interview-session-%s.json", s.StartedAt.UTC().Format("2006-01-02"))
}

// sortRecentFirst orders sessions by StartedAt descending, ties broken by id
// so listings are stable.
func sortRecentFirst(sessions []session.Session) {
	slices.SortFunc(sessions, func(a, b session.Session) int {
		if c := b.StartedAt.Compare(a.StartedAt); c != 0 {
			return c
		}
		return slices.Compare(a.ID[:], b.ID[:])
	})
}

// exportFrom implements [Store.Export] on top of a Get method.
func exportFrom(ctx context.Context, get func(context.Context, uuid.UUID) (session.Session, error), id uuid.UUID) ([]byte, error) {
	s, err := get(ctx, id)
	if err != nil {
		return nil, err
	}
	return Marshal(s)
}
