package ports

import (
	"context"

	"github.com/kirillkom/notarization-api/internal/core/domain"
)

// Authorizer is the inbound auth gate: bearer header + action -> identity.
type Authorizer interface {
	Authorize(ctx context.Context, authorization string, perm domain.Permission) (domain.Identity, error)
}

// NotarizationWorkflow is the inbound contract for the document pipeline.
type NotarizationWorkflow interface {
	UploadDocuments(ctx context.Context, caller domain.Identity, meta domain.NewDocument, uploads []domain.Upload) (*domain.Document, error)
	History(ctx context.Context, caller domain.Identity) ([]domain.Document, error)
	GetStatus(ctx context.Context, documentID string) (*domain.Document, error)
	StatusHistory(ctx context.Context, caller domain.Identity, documentID string) ([]domain.StatusTracking, error)
	DocumentsByRole(ctx context.Context, caller domain.Identity) ([]domain.Document, error)
	ForwardStatus(ctx context.Context, caller domain.Identity, documentID string, action domain.Action, feedback string) (*domain.Document, error)
	ListAll(ctx context.Context, query domain.DocumentQuery) (domain.DocumentPage, error)
	ApproveHistory(ctx context.Context, caller domain.Identity) ([]domain.StatusTracking, error)
	ExportApproveHistory(ctx context.Context, caller domain.Identity) (*domain.Report, error)
}

// SignatureApprover is the inbound contract for the two-party approval sub-flow.
type SignatureApprover interface {
	ApproveByUser(ctx context.Context, caller domain.Identity, subject domain.ApprovalSubject, amount *float64, image *domain.Upload) (*domain.SignatureApproval, error)
	ApproveBySecretary(ctx context.Context, caller domain.Identity, subject domain.ApprovalSubject, amount *float64, image *domain.Upload) (*domain.SignatureApproval, error)
}

// SessionWorkflow is the inbound contract for scheduled sessions.
type SessionWorkflow interface {
	Create(ctx context.Context, caller domain.Identity, in domain.NewSession) (*domain.Session, error)
	AddUsers(ctx context.Context, caller domain.Identity, sessionID string, emails []string) (*domain.Session, error)
	DeleteUser(ctx context.Context, caller domain.Identity, sessionID, email string) (*domain.Session, error)
	Join(ctx context.Context, caller domain.Identity, sessionID string, response domain.ParticipantStatus) (*domain.Session, error)
	UploadDocuments(ctx context.Context, caller domain.Identity, sessionID string, uploads []domain.Upload) (*domain.Session, error)
	SendForNotarization(ctx context.Context, caller domain.Identity, sessionID string) (*domain.Session, error)

	List(ctx context.Context, caller domain.Identity) ([]domain.Session, error)
	ListByDate(ctx context.Context, caller domain.Identity, date string) ([]domain.Session, error)
	ListByMonth(ctx context.Context, caller domain.Identity, date string) ([]domain.Session, error)
	ListActive(ctx context.Context, caller domain.Identity) ([]domain.Session, error)
	ListByUser(ctx context.Context, caller domain.Identity) ([]domain.Session, error)
	Get(ctx context.Context, caller domain.Identity, sessionID string) (*domain.Session, error)
}
