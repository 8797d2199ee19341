package postgres_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/parley/internal/session"
	"github.com/MrWong99/parley/internal/store"
	"github.com/MrWong99/parley/internal/store/postgres"
)

// testDSN returns the test database DSN from the environment, or skips the
// test if PARLEY_TEST_POSTGRES_DSN is not set.
func testDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("PARLEY_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("PARLEY_TEST_POSTGRES_DSN not set, skipping PostgreSQL integration tests")
	}
	return dsn
}

// newTestStore creates a fresh [postgres.Store] on an empty table.
func newTestStore(t *testing.T) *postgres.Store {
	t.Helper()
	dsn := testDSN(t)
	ctx := context.Background()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("pgxpool.New: %v", err)
	}
	if _, err := pool.Exec(ctx, `DROP TABLE IF EXISTS interview_sessions`); err != nil {
		pool.Close()
		t.Fatalf("drop table: %v", err)
	}
	pool.Close()

	st, err := postgres.NewStore(ctx, dsn)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func sampleSession(startedAt time.Time) session.Session {
	return session.Session{
		ID:        uuid.New(),
		StartedAt: startedAt,
		Topic:     "Go",
		Utterances: []session.Utterance{
			{Text: "Hello", Speaker: session.System, CreatedAt: startedAt},
			{Text: "Hi", Speaker: session.User, CreatedAt: startedAt.Add(time.Second)},
		},
		Analysis: &session.Analysis{Score: 72.5, Strengths: []string{"concise"}},
	}
}

func TestStore_PersistGetRoundTrip(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	want := sampleSession(time.Date(2026, 3, 1, 10, 0, 0, 123456789, time.UTC))
	if err := st.Persist(ctx, want); err != nil {
		t.Fatalf("Persist: %v", err)
	}
	// Upsert keeps a single row.
	if err := st.Persist(ctx, want); err != nil {
		t.Fatalf("Persist again: %v", err)
	}

	got, err := st.Get(ctx, want.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ID != want.ID || !got.StartedAt.Equal(want.StartedAt) || got.Topic != want.Topic {
		t.Errorf("Get = %+v, want %+v", got, want)
	}
	if len(got.Utterances) != 2 || got.Utterances[1].Speaker != session.User {
		t.Errorf("Utterances = %+v", got.Utterances)
	}
	if got.Analysis == nil || got.Analysis.Score != 72.5 {
		t.Errorf("Analysis = %+v", got.Analysis)
	}

	all, err := st.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 1 {
		t.Errorf("List len = %d, want 1", len(all))
	}
}

func TestStore_ListMostRecentFirst(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	old, mid, recent := sampleSession(base), sampleSession(base.Add(time.Hour)), sampleSession(base.Add(2*time.Hour))
	for _, s := range []session.Session{mid, recent, old} {
		if err := st.Persist(ctx, s); err != nil {
			t.Fatalf("Persist: %v", err)
		}
	}

	all, err := st.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 3 || all[0].ID != recent.ID || all[1].ID != mid.ID || all[2].ID != old.ID {
		t.Errorf("List order wrong: %v", all)
	}
}

func TestStore_DeleteIdempotent(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	s := sampleSession(time.Now().UTC())
	if err := st.Persist(ctx, s); err != nil {
		t.Fatalf("Persist: %v", err)
	}
	if err := st.Delete(ctx, nil); err != nil {
		t.Fatalf("Delete(nil): %v", err)
	}
	for range 2 {
		if err := st.Delete(ctx, []uuid.UUID{s.ID, uuid.New()}); err != nil {
			t.Fatalf("Delete: %v", err)
		}
	}
	if _, err := st.Get(ctx, s.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Get after delete: err = %v, want ErrNotFound", err)
	}
}
