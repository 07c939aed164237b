package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kirillkom/notarization-api/internal/core/domain"
)

type DocumentRepository struct {
	db *sql.DB
}

func NewDocumentRepository(db *sql.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

const documentColumns = `id, user_id, user_email, session_id, notarization_service, notarization_field, requester_info, files, status, feedback, created_at, updated_at`

const trackingColumns = `id, document_id, status, action, actor_id, actor_role, feedback, created_at`

var documentSortColumns = map[string]string{
	"createdAt": "created_at",
	"updatedAt": "updated_at",
	"status":    "status",
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (r *DocumentRepository) Create(ctx context.Context, doc *domain.Document, entry domain.StatusTracking) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create document tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := insertDocument(ctx, tx, doc, entry); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create document tx: %w", err)
	}
	return nil
}

// insertDocument writes the document and its first history row inside tx.
func insertDocument(ctx context.Context, tx execer, doc *domain.Document, entry domain.StatusTracking) error {
	service, err := json.Marshal(doc.NotarizationService)
	if err != nil {
		return fmt.Errorf("marshal notarization service: %w", err)
	}
	field, err := json.Marshal(doc.NotarizationField)
	if err != nil {
		return fmt.Errorf("marshal notarization field: %w", err)
	}
	requester, err := json.Marshal(doc.RequesterInfo)
	if err != nil {
		return fmt.Errorf("marshal requester info: %w", err)
	}
	files, err := json.Marshal(filesOrEmpty(doc.Files))
	if err != nil {
		return fmt.Errorf("marshal files: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
INSERT INTO notarization_documents (`+documentColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
`,
		doc.ID, doc.UserID, doc.UserEmail, nullString(doc.SessionID), service, field, requester, files,
		string(doc.Status), doc.Feedback, doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return insertTracking(ctx, tx, entry)
}

func insertTracking(ctx context.Context, tx execer, entry domain.StatusTracking) error {
	_, err := tx.ExecContext(ctx, `
INSERT INTO status_tracking (`+trackingColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
`,
		entry.ID, entry.DocumentID, string(entry.Status), string(entry.Action),
		entry.ActorID, string(entry.ActorRole), entry.Feedback, entry.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert status tracking: %w", err)
	}
	return nil
}

func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM notarization_documents WHERE id = $1`, id)
	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.Errorf(domain.ErrNotFound, "get document", "document %s not found", id)
		}
		return nil, err
	}
	return doc, nil
}

func (r *DocumentRepository) TransitionStatus(
	ctx context.Context,
	id string,
	from, to domain.DocumentStatus,
	feedback string,
	entry domain.StatusTracking,
) error {
	const op = "transition document"

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transition tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	res, err := tx.ExecContext(ctx, `
UPDATE notarization_documents
SET status = $3,
	feedback = CASE WHEN $4 = '' THEN feedback ELSE $4 END,
	updated_at = $5
WHERE id = $1 AND status = $2
`, id, string(from), string(to), feedback, entry.Timestamp)
	if err != nil {
		return fmt.Errorf("update document status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return missingOrConflict(ctx, tx, "notarization_documents", id, op)
	}

	if err := insertTracking(ctx, tx, entry); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transition tx: %w", err)
	}
	return nil
}

func (r *DocumentRepository) ListByUser(ctx context.Context, userID string) ([]domain.Document, error) {
	return r.queryDocuments(ctx, `
SELECT `+documentColumns+`
FROM notarization_documents
WHERE user_id = $1
ORDER BY created_at DESC
`, userID)
}

func (r *DocumentRepository) ListByStatuses(ctx context.Context, statuses []domain.DocumentStatus) ([]domain.Document, error) {
	if len(statuses) == 0 {
		return []domain.Document{}, nil
	}
	args := make([]any, 0, len(statuses))
	for _, s := range statuses {
		args = append(args, string(s))
	}
	return r.queryDocuments(ctx, `
SELECT `+documentColumns+`
FROM notarization_documents
WHERE status IN (`+placeholders(1, len(args))+`)
ORDER BY created_at ASC
`, args...)
}

func (r *DocumentRepository) List(ctx context.Context, q domain.DocumentQuery) ([]domain.Document, int, error) {
	where := ""
	args := []any{}
	if q.Status != "" {
		where = "WHERE status = $1"
		args = append(args, string(q.Status))
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM notarization_documents `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count documents: %w", err)
	}

	column, ok := documentSortColumns[q.SortBy]
	if !ok {
		column = "created_at"
	}
	direction := "DESC"
	if q.Direction == domain.SortAsc {
		direction = "ASC"
	}
	n := len(args)
	args = append(args, q.Limit, q.Offset())
	docs, err := r.queryDocuments(ctx, fmt.Sprintf(`
SELECT %s
FROM notarization_documents
%s
ORDER BY %s %s, id ASC
LIMIT $%d OFFSET $%d
`, documentColumns, where, column, direction, n+1, n+2), args...)
	if err != nil {
		return nil, 0, err
	}
	return docs, total, nil
}

func (r *DocumentRepository) History(ctx context.Context, documentID string) ([]domain.StatusTracking, error) {
	return r.queryTracking(ctx, `
SELECT `+trackingColumns+`
FROM status_tracking
WHERE document_id = $1
ORDER BY created_at ASC, id ASC
`, documentID)
}

// ListTrackingByActor skips creation rows: they record uploads, not approvals.
func (r *DocumentRepository) ListTrackingByActor(ctx context.Context, actorID string) ([]domain.StatusTracking, error) {
	return r.queryTracking(ctx, `
SELECT `+trackingColumns+`
FROM status_tracking
WHERE actor_id = $1 AND action <> $2
ORDER BY created_at DESC, id ASC
`, actorID, string(domain.ActionCreate))
}

func (r *DocumentRepository) queryDocuments(ctx context.Context, query string, args ...any) ([]domain.Document, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	out := []domain.Document{}
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return out, nil
}

func (r *DocumentRepository) queryTracking(ctx context.Context, query string, args ...any) ([]domain.StatusTracking, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query status tracking: %w", err)
	}
	defer rows.Close()

	out := []domain.StatusTracking{}
	for rows.Next() {
		var (
			entry                     domain.StatusTracking
			status, action, actorRole string
		)
		if err := rows.Scan(
			&entry.ID, &entry.DocumentID, &status, &action, &entry.ActorID, &actorRole, &entry.Feedback, &entry.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("scan status tracking: %w", err)
		}
		entry.Status = domain.DocumentStatus(status)
		entry.Action = domain.Action(action)
		entry.ActorRole = domain.Role(actorRole)
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate status tracking: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*domain.Document, error) {
	var (
		doc                                  domain.Document
		sessionID                            sql.NullString
		serviceRaw, fieldRaw, requester, raw []byte
		status                               string
	)
	err := row.Scan(
		&doc.ID, &doc.UserID, &doc.UserEmail, &sessionID, &serviceRaw, &fieldRaw, &requester, &raw,
		&status, &doc.Feedback, &doc.CreatedAt, &doc.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan document: %w", err)
	}

	for _, part := range []struct {
		name string
		raw  []byte
		dst  any
	}{
		{"notarization service", serviceRaw, &doc.NotarizationService},
		{"notarization field", fieldRaw, &doc.NotarizationField},
		{"requester info", requester, &doc.RequesterInfo},
		{"files", raw, &doc.Files},
	} {
		if len(part.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(part.raw, part.dst); err != nil {
			return nil, fmt.Errorf("unmarshal %s: %w", part.name, err)
		}
	}
	doc.SessionID = sessionID.String
	doc.Status = domain.DocumentStatus(status)
	doc.Files = filesOrEmpty(doc.Files)
	doc.CreatedAt = doc.CreatedAt.UTC()
	doc.UpdatedAt = doc.UpdatedAt.UTC()
	return &doc, nil
}

func filesOrEmpty(files []domain.File) []domain.File {
	if files == nil {
		return []domain.File{}
	}
	return files
}

func utcPtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}
