package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/parley/internal/session"
	"github.com/MrWong99/parley/internal/store"
)

var (
	_ store.Store  = (*Store)(nil)
	_ store.Pinger = (*Store)(nil)
)

// Store persists sessions in PostgreSQL. All operations are safe for
// concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore connects to the database at dsn, verifies the connection and runs
// [Migrate].
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: parse dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}

	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Persist implements [store.Store.Persist] as an upsert keyed by session id.
func (s *Store) Persist(ctx context.Context, sess session.Session) error {
	data, err := store.Marshal(sess)
	if err != nil {
		return fmt.Errorf("%w: %w", store.ErrStorage, err)
	}
	var score *float64
	if sess.Analysis != nil {
		score = &sess.Analysis.Score
	}

	const q = `
		INSERT INTO interview_sessions (id, started_at, topic, score, record, updated_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (id) DO UPDATE SET
			started_at = EXCLUDED.started_at,
			topic      = EXCLUDED.topic,
			score      = EXCLUDED.score,
			record     = EXCLUDED.record,
			updated_at = now()`

	if _, err := s.pool.Exec(ctx, q, sess.ID.String(), sess.StartedAt, sess.Topic, score, data); err != nil {
		return fmt.Errorf("%w: postgres persist %s: %w", store.ErrStorage, sess.ID, err)
	}
	return nil
}

// Get implements [store.Store.Get].
func (s *Store) Get(ctx context.Context, id uuid.UUID) (session.Session, error) {
	const q = `SELECT record FROM interview_sessions WHERE id = $1`

	var data []byte
	err := s.pool.QueryRow(ctx, q, id.String()).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return session.Session{}, fmt.Errorf("%w: %s", store.ErrNotFound, id)
	}
	if err != nil {
		return session.Session{}, fmt.Errorf("%w: postgres get %s: %w", store.ErrStorage, id, err)
	}
	sess, err := store.Unmarshal(data)
	if err != nil {
		return session.Session{}, fmt.Errorf("%w: %w", store.ErrStorage, err)
	}
	return sess, nil
}

// List implements [store.Store.List].
func (s *Store) List(ctx context.Context) ([]session.Session, error) {
	const q = `SELECT record FROM interview_sessions ORDER BY started_at DESC, id ASC`

	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("%w: postgres list: %w", store.ErrStorage, err)
	}
	records, err := pgx.CollectRows(rows, pgx.RowTo[[]byte])
	if err != nil {
		return nil, fmt.Errorf("%w: postgres list: collect rows: %w", store.ErrStorage, err)
	}

	out := make([]session.Session, 0, len(records))
	for _, data := range records {
		sess, err := store.Unmarshal(data)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", store.ErrStorage, err)
		}
		out = append(out, sess)
	}
	return out, nil
}

// Delete implements [store.Store.Delete].
func (s *Store) Delete(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	strs := make([]string, len(ids))
	for i, id := range ids {
		strs[i] = id.String()
	}
	const q = `DELETE FROM interview_sessions WHERE id = ANY($1::uuid[])`
	if _, err := s.pool.Exec(ctx, q, strs); err != nil {
		return fmt.Errorf("%w: postgres delete: %w", store.ErrStorage, err)
	}
	return nil
}

// Export implements [store.Store.Export].
func (s *Store) Export(ctx context.Context, id uuid.UUID) ([]byte, error) {
	sess, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return store.Marshal(sess)
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases all pooled connections.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}
