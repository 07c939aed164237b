package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/notarization-api/internal/core/domain"
)

type ApprovalRepository struct {
	db    *sql.DB
	now   func() time.Time
	newID func() string
}

func NewApprovalRepository(db *sql.DB) *ApprovalRepository {
	return &ApprovalRepository{
		db:    db,
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.NewString,
	}
}

const approvalColumns = `id, subject_type, subject_id, amount, signature_image,
	user_approved, user_approved_at, secretary_approved, secretary_approved_at, created_at, updated_at`

func (r *ApprovalRepository) Get(ctx context.Context, subject domain.ApprovalSubject) (*domain.SignatureApproval, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT `+approvalColumns+`
FROM signature_approvals
WHERE subject_type = $1 AND subject_id = $2
`, string(subject.Kind), subject.ID)
	a, err := scanApproval(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.Errorf(domain.ErrNotFound, "get approval", "no approval for %s %s", subject.Kind, subject.ID)
		}
		return nil, err
	}
	return a, nil
}

// Approve upserts the subject row, locks it and applies one half. Concurrent
// approvals of the same subject serialize on the row lock.
func (r *ApprovalRepository) Approve(
	ctx context.Context,
	subject domain.ApprovalSubject,
	party domain.ApprovalParty,
	attach domain.ApprovalAttachment,
) (*domain.SignatureApproval, bool, error) {
	now := r.now()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("begin approve tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `
INSERT INTO signature_approvals (id, subject_type, subject_id, created_at, updated_at)
VALUES ($1,$2,$3,$4,$4)
ON CONFLICT (subject_type, subject_id) DO NOTHING
`, r.newID(), string(subject.Kind), subject.ID, now); err != nil {
		return nil, false, fmt.Errorf("insert approval: %w", err)
	}

	row := tx.QueryRowContext(ctx, `
SELECT `+approvalColumns+`
FROM signature_approvals
WHERE subject_type = $1 AND subject_id = $2
FOR UPDATE
`, string(subject.Kind), subject.ID)
	approval, err := scanApproval(row)
	if err != nil {
		return nil, false, fmt.Errorf("lock approval: %w", err)
	}

	if !approval.Approve(party, attach, now) {
		return approval, false, nil
	}

	var amount sql.NullFloat64
	if approval.Amount != nil {
		amount = sql.NullFloat64{Float64: *approval.Amount, Valid: true}
	}
	if _, err := tx.ExecContext(ctx, `
UPDATE signature_approvals
SET amount = $2, signature_image = $3,
	user_approved = $4, user_approved_at = $5,
	secretary_approved = $6, secretary_approved_at = $7,
	updated_at = $8
WHERE id = $1
`,
		approval.ID, amount, approval.SignatureImage,
		approval.ApprovalStatus.User.Approved, nullTime(approval.ApprovalStatus.User.ApprovedAt),
		approval.ApprovalStatus.Secretary.Approved, nullTime(approval.ApprovalStatus.Secretary.ApprovedAt),
		approval.UpdatedAt,
	); err != nil {
		return nil, false, fmt.Errorf("update approval: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("commit approve tx: %w", err)
	}
	return approval, true, nil
}

func scanApproval(row rowScanner) (*domain.SignatureApproval, error) {
	var (
		a                   domain.SignatureApproval
		kind                string
		amount              sql.NullFloat64
		userAt, secretaryAt sql.NullTime
		userOK, secretaryOK bool
	)
	err := row.Scan(
		&a.ID, &kind, &a.Subject.ID, &amount, &a.SignatureImage,
		&userOK, &userAt, &secretaryOK, &secretaryAt, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan approval: %w", err)
	}
	a.Subject.Kind = domain.SubjectKind(kind)
	if amount.Valid {
		v := amount.Float64
		a.Amount = &v
	}
	a.ApprovalStatus = domain.ApprovalStatus{
		User:      domain.PartyApproval{Approved: userOK, ApprovedAt: utcPtr(userAt)},
		Secretary: domain.PartyApproval{Approved: secretaryOK, ApprovedAt: utcPtr(secretaryAt)},
	}
	a.CreatedAt = a.CreatedAt.UTC()
	a.UpdatedAt = a.UpdatedAt.UTC()
	return &a, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
