package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/notarization-api/internal/core/domain"
	"github.com/kirillkom/notarization-api/internal/core/ports"
)

type NotarizationUseCase struct {
	docs      ports.DocumentRepository
	approvals ports.ApprovalRepository
	uploader  *FileUploader
	notifier  *Notifier
	exporter  ports.ReportExporter
	now       func() time.Time
}

func NewNotarizationUseCase(
	docs ports.DocumentRepository,
	approvals ports.ApprovalRepository,
	uploader *FileUploader,
	notifier *Notifier,
	exporter ports.ReportExporter,
) *NotarizationUseCase {
	return &NotarizationUseCase{
		docs:      docs,
		approvals: approvals,
		uploader:  uploader,
		notifier:  notifier,
		exporter:  exporter,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (uc *NotarizationUseCase) UploadDocuments(
	ctx context.Context,
	caller domain.Identity,
	meta domain.NewDocument,
	uploads []domain.Upload,
) (*domain.Document, error) {
	files, err := uc.uploader.Store(ctx, "notarization/"+caller.UserID, uploads)
	if err != nil {
		return nil, err
	}

	now := uc.now()
	doc := &domain.Document{
		ID:                  uuid.NewString(),
		NotarizationService: meta.NotarizationService,
		NotarizationField:   meta.NotarizationField,
		RequesterInfo:       meta.RequesterInfo,
		UserID:              caller.UserID,
		UserEmail:           caller.Email,
		Files:               files,
		Status:              domain.StatusPending,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if err := uc.docs.Create(ctx, doc, initialTracking(doc, caller, now)); err != nil {
		return nil, fmt.Errorf("create document: %w", err)
	}

	if err := uc.notifier.DocumentReceived(ctx, doc); err != nil {
		return doc, err
	}
	return doc, nil
}

func (uc *NotarizationUseCase) History(ctx context.Context, caller domain.Identity) ([]domain.Document, error) {
	docs, err := uc.docs.ListByUser(ctx, caller.UserID)
	if err != nil {
		return nil, fmt.Errorf("list user documents: %w", err)
	}
	return docs, nil
}

func (uc *NotarizationUseCase) GetStatus(ctx context.Context, documentID string) (*domain.Document, error) {
	if strings.TrimSpace(documentID) == "" {
		return nil, domain.Errorf(domain.ErrInvalidInput, "get status", "document id is required")
	}
	return uc.docs.GetByID(ctx, documentID)
}

func (uc *NotarizationUseCase) StatusHistory(ctx context.Context, caller domain.Identity, documentID string) ([]domain.StatusTracking, error) {
	doc, err := uc.docs.GetByID(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if !caller.Role.Privileged() && doc.UserID != caller.UserID {
		return nil, domain.Errorf(domain.ErrForbidden, "status history", "document %s belongs to another user", documentID)
	}
	rows, err := uc.docs.History(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("load status history: %w", err)
	}
	return rows, nil
}

func (uc *NotarizationUseCase) DocumentsByRole(ctx context.Context, caller domain.Identity) ([]domain.Document, error) {
	if caller.Role == domain.RoleUser {
		return uc.History(ctx, caller)
	}
	statuses := domain.InboxStatuses(caller.Role)
	if len(statuses) == 0 {
		return []domain.Document{}, nil
	}
	docs, err := uc.docs.ListByStatuses(ctx, statuses)
	if err != nil {
		return nil, fmt.Errorf("list role inbox: %w", err)
	}
	return docs, nil
}

// ForwardStatus applies one state machine step on behalf of the caller.
func (uc *NotarizationUseCase) ForwardStatus(
	ctx context.Context,
	caller domain.Identity,
	documentID string,
	action domain.Action,
	feedback string,
) (*domain.Document, error) {
	const op = "forward status"

	doc, err := uc.docs.GetByID(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if _, ok := domain.ParseAction(string(action)); !ok {
		return nil, domain.Errorf(domain.ErrInvalidInput, op, "unknown action %q", action)
	}
	t, err := domain.ResolveTransition(doc.Status, action, caller.Role)
	if err != nil {
		return nil, err
	}

	feedback = strings.TrimSpace(feedback)
	switch t.Guard {
	case domain.GuardFeedback:
		if feedback == "" {
			return nil, domain.Errorf(domain.ErrInvalidInput, op, "feedback is required to %s", action)
		}
	case domain.GuardFullyApproved:
		approval, err := uc.approvals.Get(ctx, domain.ApprovalSubject{Kind: domain.SubjectDocument, ID: doc.ID})
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("load signature approval: %w", err)
		}
		if !approval.FullyApproved() {
			return nil, domain.Errorf(domain.ErrInvalidInput, op, "signature of document %s is not approved by both parties", doc.ID)
		}
	}

	return uc.apply(ctx, doc, t, caller, feedback)
}

// apply persists the transition with its history row, then notifies the owner.
// A notification failure returns the updated document alongside domain.ErrNotification.
func (uc *NotarizationUseCase) apply(
	ctx context.Context,
	doc *domain.Document,
	t domain.Transition,
	caller domain.Identity,
	feedback string,
) (*domain.Document, error) {
	now := uc.now()
	entry := domain.StatusTracking{
		ID:         uuid.NewString(),
		DocumentID: doc.ID,
		Status:     t.To,
		Action:     t.Action,
		ActorID:    caller.UserID,
		ActorRole:  caller.Role,
		Feedback:   feedback,
		Timestamp:  now,
	}
	if err := uc.docs.TransitionStatus(ctx, doc.ID, t.From, t.To, feedback, entry); err != nil {
		return nil, err
	}

	doc.Status = t.To
	doc.UpdatedAt = now
	if feedback != "" {
		doc.Feedback = feedback
	}
	if err := uc.notifier.DocumentStatusChanged(ctx, doc, feedback); err != nil {
		return doc, err
	}
	return doc, nil
}

func (uc *NotarizationUseCase) ListAll(ctx context.Context, query domain.DocumentQuery) (domain.DocumentPage, error) {
	if query.Limit <= 0 {
		query.Limit = domain.DefaultPageLimit
	}
	if query.Page <= 0 {
		query.Page = 1
	}
	if query.SortBy == "" {
		query.SortBy, query.Direction = "createdAt", domain.SortDesc
	}
	docs, total, err := uc.docs.List(ctx, query)
	if err != nil {
		return domain.DocumentPage{}, fmt.Errorf("list documents: %w", err)
	}
	return domain.NewDocumentPage(docs, query, total), nil
}

// ApproveHistory lists every transition the caller performed.
func (uc *NotarizationUseCase) ApproveHistory(ctx context.Context, caller domain.Identity) ([]domain.StatusTracking, error) {
	rows, err := uc.docs.ListTrackingByActor(ctx, caller.UserID)
	if err != nil {
		return nil, fmt.Errorf("list approve history: %w", err)
	}
	return rows, nil
}

func (uc *NotarizationUseCase) ExportApproveHistory(ctx context.Context, caller domain.Identity) (*domain.Report, error) {
	if uc.exporter == nil {
		return nil, domain.Errorf(domain.ErrInvalidInput, "export approve history", "report export is not configured")
	}
	rows, err := uc.ApproveHistory(ctx, caller)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := uc.exporter.ExportTracking(ctx, rows, &buf); err != nil {
		return nil, fmt.Errorf("render approve history: %w", err)
	}
	return &domain.Report{
		Filename:    fmt.Sprintf("approve-history-%s.xlsx", uc.now().Format("20060102")),
		ContentType: uc.exporter.ContentType(),
		Data:        buf.Bytes(),
	}, nil
}

func initialTracking(doc *domain.Document, caller domain.Identity, at time.Time) domain.StatusTracking {
	return domain.StatusTracking{
		ID:         uuid.NewString(),
		DocumentID: doc.ID,
		Status:     domain.StatusPending,
		Action:     domain.ActionCreate,
		ActorID:    caller.UserID,
		ActorRole:  caller.Role,
		Timestamp:  at,
	}
}
