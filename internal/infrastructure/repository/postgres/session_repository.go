package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kirillkom/notarization-api/internal/core/domain"
)

type SessionRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

const sessionSelect = `
SELECT s.id, s.session_name, s.notary_field, s.notary_service, s.start_at, s.end_at,
	s.created_by, s.creator_email, s.status, s.document_id, s.created_at, s.updated_at,
	COALESCE((
		SELECT jsonb_agg(jsonb_build_object(
			'email', p.email, 'status', p.status, 'userId', COALESCE(p.user_id, ''), 'respondedAt', p.responded_at
		) ORDER BY p.email)
		FROM session_participants p WHERE p.session_id = s.id
	), '[]'::jsonb) AS users,
	COALESCE((
		SELECT jsonb_agg(jsonb_build_object(
			'filename', f.filename, 'storageUrl', f.storage_url, 'contentType', f.content_type,
			'size', f.size, 'createdAt', f.created_at
		) ORDER BY f.id)
		FROM session_files f WHERE f.session_id = s.id
	), '[]'::jsonb) AS files
FROM sessions s
`

func (r *SessionRepository) Create(ctx context.Context, s *domain.Session) error {
	field, err := json.Marshal(s.NotaryField)
	if err != nil {
		return fmt.Errorf("marshal notary field: %w", err)
	}
	service, err := json.Marshal(s.NotaryService)
	if err != nil {
		return fmt.Errorf("marshal notary service: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create session tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	_, err = tx.ExecContext(ctx, `
INSERT INTO sessions (
	id, session_name, notary_field, notary_service, start_at, end_at, created_by, creator_email, status, document_id, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
`,
		s.ID, s.SessionName, field, service, s.StartAt, s.EndAt, s.CreatedBy, s.CreatorEmail,
		string(s.Status), nullString(s.DocumentID), s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	if err := insertParticipants(ctx, tx, s.ID, s.Users); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create session tx: %w", err)
	}
	return nil
}

func (r *SessionRepository) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	row := r.db.QueryRowContext(ctx, sessionSelect+`WHERE s.id = $1`, id)
	s, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.Errorf(domain.ErrNotFound, "get session", "session %s not found", id)
		}
		return nil, err
	}
	return s, nil
}

func (r *SessionRepository) List(ctx context.Context, filter domain.SessionFilter) ([]domain.Session, error) {
	var (
		clauses []string
		args    []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.From != nil && filter.To != nil {
		clauses = append(clauses, fmt.Sprintf("s.start_at < %s AND s.end_at > %s", arg(*filter.To), arg(*filter.From)))
	}
	if filter.ActiveAt != nil {
		at := arg(*filter.ActiveAt)
		clauses = append(clauses, fmt.Sprintf("s.start_at <= %s AND s.end_at > %s", at, at))
	}
	if filter.MemberID != "" || filter.MemberEmail != "" {
		member := []string{}
		if filter.MemberID != "" {
			member = append(member, "s.created_by = "+arg(filter.MemberID))
		}
		if filter.MemberEmail != "" {
			member = append(member, fmt.Sprintf(
				"EXISTS (SELECT 1 FROM session_participants p WHERE p.session_id = s.id AND lower(p.email) = lower(%s))",
				arg(filter.MemberEmail),
			))
		}
		clauses = append(clauses, "("+strings.Join(member, " OR ")+")")
	}

	query := sessionSelect
	if len(clauses) > 0 {
		query += "WHERE " + strings.Join(clauses, " AND ") + "\n"
	}
	query += "ORDER BY s.start_at ASC, s.id ASC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	out := []domain.Session{}
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return out, nil
}

func (r *SessionRepository) AddParticipants(ctx context.Context, sessionID string, participants []domain.Participant) error {
	return r.inDraft(ctx, sessionID, "add participants", func(tx *sql.Tx) error {
		return insertParticipants(ctx, tx, sessionID, participants)
	})
}

func (r *SessionRepository) RemoveParticipant(ctx context.Context, sessionID, email string) error {
	return r.inDraft(ctx, sessionID, "remove participant", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
DELETE FROM session_participants WHERE session_id = $1 AND lower(email) = lower($2)
`, sessionID, email)
		if err != nil {
			return fmt.Errorf("delete participant: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return domain.Errorf(domain.ErrNotFound, "remove participant", "%s is not invited to session %s", email, sessionID)
		}
		return nil
	})
}

func (r *SessionRepository) RespondInvitation(
	ctx context.Context,
	sessionID, email string,
	status domain.ParticipantStatus,
	userID string,
) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE session_participants p
SET status = $3, user_id = $4, responded_at = $5
FROM sessions s
WHERE p.session_id = $1 AND lower(p.email) = lower($2) AND p.status = $6
	AND s.id = p.session_id AND s.status = $7
`, sessionID, email, string(status), nullString(userID), r.now(), string(domain.ParticipantPending), string(domain.SessionDraft))
	if err != nil {
		return fmt.Errorf("update participant status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.Errorf(domain.ErrConflict, "respond invitation", "invitation of %s in session %s is no longer pending", email, sessionID)
	}
	return nil
}

func (r *SessionRepository) AddFiles(ctx context.Context, sessionID, uploadedBy string, files []domain.File) error {
	return r.inDraft(ctx, sessionID, "add session files", func(tx *sql.Tx) error {
		for _, f := range files {
			_, err := tx.ExecContext(ctx, `
INSERT INTO session_files (session_id, filename, storage_url, content_type, size, uploaded_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
`, sessionID, f.Filename, f.StorageURL, f.ContentType, f.Size, uploadedBy, f.CreatedAt)
			if err != nil {
				return fmt.Errorf("insert session file: %w", err)
			}
		}
		return nil
	})
}

func (r *SessionRepository) UpdateStatus(ctx context.Context, sessionID string, from, to domain.SessionStatus) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE sessions SET status = $3, updated_at = $4 WHERE id = $1 AND status = $2
`, sessionID, string(from), string(to), r.now())
	if err != nil {
		return fmt.Errorf("update session status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return missingOrConflict(ctx, r.db, "sessions", sessionID, "update session status")
	}
	return nil
}

func (r *SessionRepository) SubmitForNotarization(ctx context.Context, sessionID string, doc *domain.Document, entry domain.StatusTracking) error {
	const op = "submit session"

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin submit session tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	res, err := tx.ExecContext(ctx, `
UPDATE sessions SET status = $3, document_id = $4, updated_at = $5 WHERE id = $1 AND status = $2
`, sessionID, string(domain.SessionDraft), string(domain.SessionPendingNotarization), doc.ID, doc.CreatedAt)
	if err != nil {
		return fmt.Errorf("update session status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return missingOrConflict(ctx, tx, "sessions", sessionID, op)
	}

	if err := insertDocument(ctx, tx, doc, entry); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit submit session tx: %w", err)
	}
	return nil
}

// inDraft runs fn in a transaction that first touches the session row, which
// both locks it and fails unless the session is still a draft.
func (r *SessionRepository) inDraft(ctx context.Context, sessionID, op string, fn func(*sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin %s tx: %w", op, err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	res, err := tx.ExecContext(ctx, `
UPDATE sessions SET updated_at = $3 WHERE id = $1 AND status = $2
`, sessionID, string(domain.SessionDraft), r.now())
	if err != nil {
		return fmt.Errorf("%s: touch session: %w", op, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return missingOrConflict(ctx, tx, "sessions", sessionID, op)
	}

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit %s tx: %w", op, err)
	}
	return nil
}

func insertParticipants(ctx context.Context, tx execer, sessionID string, participants []domain.Participant) error {
	for _, p := range participants {
		var responded sql.NullTime
		if p.RespondedAt != nil {
			responded = sql.NullTime{Time: *p.RespondedAt, Valid: true}
		}
		_, err := tx.ExecContext(ctx, `
INSERT INTO session_participants (session_id, email, status, user_id, responded_at)
VALUES ($1,$2,$3,$4,$5)
ON CONFLICT (session_id, email) DO NOTHING
`, sessionID, strings.ToLower(p.Email), string(p.Status), nullString(p.UserID), responded)
		if err != nil {
			return fmt.Errorf("insert participant: %w", err)
		}
	}
	return nil
}

func scanSession(row rowScanner) (*domain.Session, error) {
	var (
		s                                     domain.Session
		fieldRaw, serviceRaw, usersRaw, files []byte
		status                                string
		documentID                            sql.NullString
	)
	err := row.Scan(
		&s.ID, &s.SessionName, &fieldRaw, &serviceRaw, &s.StartAt, &s.EndAt,
		&s.CreatedBy, &s.CreatorEmail, &status, &documentID, &s.CreatedAt, &s.UpdatedAt,
		&usersRaw, &files,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan session: %w", err)
	}

	for _, part := range []struct {
		name string
		raw  []byte
		dst  any
	}{
		{"notary field", fieldRaw, &s.NotaryField},
		{"notary service", serviceRaw, &s.NotaryService},
		{"participants", usersRaw, &s.Users},
		{"session files", files, &s.Files},
	} {
		if len(part.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(part.raw, part.dst); err != nil {
			return nil, fmt.Errorf("unmarshal %s: %w", part.name, err)
		}
	}

	s.Status = domain.SessionStatus(status)
	s.DocumentID = documentID.String
	s.StartAt, s.EndAt = s.StartAt.UTC(), s.EndAt.UTC()
	s.CreatedAt, s.UpdatedAt = s.CreatedAt.UTC(), s.UpdatedAt.UTC()
	if s.Users == nil {
		s.Users = []domain.Participant{}
	}
	s.Files = filesOrEmpty(s.Files)
	return &s, nil
}
