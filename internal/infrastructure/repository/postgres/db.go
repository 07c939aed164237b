package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/kirillkom/notarization-api/internal/core/domain"
)

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS notarization_documents (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	user_email TEXT NOT NULL DEFAULT '',
	session_id TEXT,
	notarization_service JSONB NOT NULL DEFAULT '{}'::jsonb,
	notarization_field JSONB NOT NULL DEFAULT '{}'::jsonb,
	requester_info JSONB NOT NULL DEFAULT '{}'::jsonb,
	files JSONB NOT NULL DEFAULT '[]'::jsonb,
	status TEXT NOT NULL,
	feedback TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_notarization_documents_user ON notarization_documents(user_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_notarization_documents_status ON notarization_documents(status, created_at);

CREATE TABLE IF NOT EXISTS status_tracking (
	id TEXT PRIMARY KEY,
	document_id TEXT NOT NULL REFERENCES notarization_documents(id),
	status TEXT NOT NULL,
	action TEXT NOT NULL,
	actor_id TEXT NOT NULL DEFAULT '',
	actor_role TEXT NOT NULL DEFAULT '',
	feedback TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_status_tracking_document ON status_tracking(document_id, created_at);
CREATE INDEX IF NOT EXISTS idx_status_tracking_actor ON status_tracking(actor_id, created_at DESC);

CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	session_name TEXT NOT NULL,
	notary_field JSONB NOT NULL DEFAULT '{}'::jsonb,
	notary_service JSONB NOT NULL DEFAULT '{}'::jsonb,
	start_at TIMESTAMPTZ NOT NULL,
	end_at TIMESTAMPTZ NOT NULL,
	created_by TEXT NOT NULL,
	creator_email TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	document_id TEXT,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	CHECK (end_at > start_at)
);

CREATE INDEX IF NOT EXISTS idx_sessions_window ON sessions(start_at, end_at);
CREATE INDEX IF NOT EXISTS idx_sessions_created_by ON sessions(created_by);

CREATE TABLE IF NOT EXISTS session_participants (
	session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	email TEXT NOT NULL,
	status TEXT NOT NULL,
	user_id TEXT,
	responded_at TIMESTAMPTZ,
	PRIMARY KEY (session_id, email)
);

CREATE INDEX IF NOT EXISTS idx_session_participants_email ON session_participants(email);

CREATE TABLE IF NOT EXISTS session_files (
	id BIGSERIAL PRIMARY KEY,
	session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
	filename TEXT NOT NULL,
	storage_url TEXT NOT NULL,
	content_type TEXT NOT NULL DEFAULT '',
	size BIGINT NOT NULL DEFAULT 0,
	uploaded_by TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS signature_approvals (
	id TEXT PRIMARY KEY,
	subject_type TEXT NOT NULL,
	subject_id TEXT NOT NULL,
	amount NUMERIC(14, 2),
	signature_image TEXT NOT NULL DEFAULT '',
	user_approved BOOLEAN NOT NULL DEFAULT FALSE,
	user_approved_at TIMESTAMPTZ,
	secretary_approved BOOLEAN NOT NULL DEFAULT FALSE,
	secretary_approved_at TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	UNIQUE (subject_type, subject_id)
);
`

// EnsureSchema applies the DDL under an advisory lock so api and worker can start together.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026101601)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}
	if _, err := tx.ExecContext(ctx, schemaDDL); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

type rowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// missingOrConflict explains a conditional update that touched no rows:
// the row is gone (not found) or its status moved on (conflict).
func missingOrConflict(ctx context.Context, q rowQuerier, table, id, op string) error {
	var status string
	err := q.QueryRowContext(ctx, `SELECT status FROM `+table+` WHERE id = $1`, id).Scan(&status)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return domain.Errorf(domain.ErrNotFound, op, "%s not found", id)
	case err != nil:
		return fmt.Errorf("%s: reload status: %w", op, err)
	default:
		return domain.Errorf(domain.ErrConflict, op, "%s changed concurrently, now %s", id, status)
	}
}

func placeholders(start, n int) string {
	out := make([]byte, 0, n*4)
	for i := 0; i < n; i++ {
		if i > 0 {
			out = append(out, ',')
		}
		out = append(out, fmt.Sprintf("$%d", start+i)...)
	}
	return string(out)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
