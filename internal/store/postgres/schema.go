// Package postgres provides a PostgreSQL-backed [store.Store] for finished
// interview sessions.
//
// Each session is one row. The full JSON record lives in a JSONB column so
// exports are byte-for-byte what the web client produces; started_at, topic
// and score are denormalised for listing and dashboards.
//
// Usage:
//
//	st, err := postgres.NewStore(ctx, dsn)
//	if err != nil { … }
//	defer st.Close()
//
//	_ = st.Persist(ctx, sess)
//	all, _ := st.List(ctx)
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ─────────────────────────────────────────────────────────────────────────────
// DDL: interview sessions
// ─────────────────────────────────────────────────────────────────────────────

const ddlInterviewSessions = `
CREATE TABLE IF NOT EXISTS interview_sessions (
    id          UUID              PRIMARY KEY,
    started_at  TIMESTAMPTZ       NOT NULL,
    topic       TEXT              NOT NULL DEFAULT '',
    score       DOUBLE PRECISION,
    record      JSONB             NOT NULL,
    updated_at  TIMESTAMPTZ       NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_interview_sessions_started_at
    ON interview_sessions (started_at DESC);

CREATE INDEX IF NOT EXISTS idx_interview_sessions_topic
    ON interview_sessions (topic);
`

// Migrate creates the interview_sessions table and its indexes when they do
// not exist. It is idempotent.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, ddlInterviewSessions); err != nil {
		return fmt.Errorf("postgres migrate: interview sessions: %w", err)
	}
	return nil
}
