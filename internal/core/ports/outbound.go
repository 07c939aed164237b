package ports

import (
	"context"
	"io"

	"github.com/kirillkom/notarization-api/internal/core/domain"
)

// DocumentRepository persists notarization documents and their status history.
type DocumentRepository interface {
	// Create stores the document together with its initial history row.
	Create(ctx context.Context, doc *domain.Document, entry domain.StatusTracking) error
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	// TransitionStatus applies from->to only if the stored status still equals from,
	// appending entry in the same transaction. A lost race yields domain.ErrConflict.
	TransitionStatus(ctx context.Context, id string, from, to domain.DocumentStatus, feedback string, entry domain.StatusTracking) error
	ListByUser(ctx context.Context, userID string) ([]domain.Document, error)
	ListByStatuses(ctx context.Context, statuses []domain.DocumentStatus) ([]domain.Document, error)
	List(ctx context.Context, query domain.DocumentQuery) ([]domain.Document, int, error)
	History(ctx context.Context, documentID string) ([]domain.StatusTracking, error)
	ListTrackingByActor(ctx context.Context, actorID string) ([]domain.StatusTracking, error)
}

// SessionRepository persists sessions, their invitees and attached files.
type SessionRepository interface {
	Create(ctx context.Context, session *domain.Session) error
	GetByID(ctx context.Context, id string) (*domain.Session, error)
	List(ctx context.Context, filter domain.SessionFilter) ([]domain.Session, error)
	AddParticipants(ctx context.Context, sessionID string, participants []domain.Participant) error
	RemoveParticipant(ctx context.Context, sessionID, email string) error
	// RespondInvitation moves a pending invitee to status; anything else is domain.ErrConflict.
	RespondInvitation(ctx context.Context, sessionID, email string, status domain.ParticipantStatus, userID string) error
	AddFiles(ctx context.Context, sessionID string, uploadedBy string, files []domain.File) error
	UpdateStatus(ctx context.Context, sessionID string, from, to domain.SessionStatus) error
	// SubmitForNotarization moves draft->pendingNotarization and creates the linked document atomically.
	SubmitForNotarization(ctx context.Context, sessionID string, doc *domain.Document, entry domain.StatusTracking) error
}

// ApprovalRepository persists two-party signature approvals.
type ApprovalRepository interface {
	Get(ctx context.Context, subject domain.ApprovalSubject) (*domain.SignatureApproval, error)
	// Approve creates the record if needed and sets the party's half once.
	// The bool reports whether the stored record changed.
	Approve(ctx context.Context, subject domain.ApprovalSubject, party domain.ApprovalParty, attach domain.ApprovalAttachment) (*domain.SignatureApproval, bool, error)
}

// BlobStorage stores uploaded files and returns their public URL.
type BlobStorage interface {
	Save(ctx context.Context, key, contentType string, data io.Reader, size int64) (string, error)
}

// FileInspector checks that an upload is structurally what it claims to be.
type FileInspector interface {
	Inspect(ctx context.Context, upload domain.Upload) error
}

// NotificationQueue publishes/consumes email events.
type NotificationQueue interface {
	PublishEmail(ctx context.Context, msg domain.EmailMessage) error
	SubscribeEmail(ctx context.Context, handler func(context.Context, domain.EmailMessage) error) error
}

// Mailer delivers an email.
type Mailer interface {
	Send(ctx context.Context, msg domain.EmailMessage) error
}

// TokenVerifier resolves a bearer token into an identity.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (domain.Identity, error)
}

// ReportExporter renders history rows into a downloadable report.
type ReportExporter interface {
	ExportTracking(ctx context.Context, rows []domain.StatusTracking, w io.Writer) error
	ContentType() string
}
