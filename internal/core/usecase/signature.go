package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kirillkom/notarization-api/internal/core/domain"
	"github.com/kirillkom/notarization-api/internal/core/ports"
)

// SignatureUseCase drives the two-party approval sub-flow for documents and sessions.
type SignatureUseCase struct {
	docs         ports.DocumentRepository
	sessions     ports.SessionRepository
	approvals    ports.ApprovalRepository
	uploader     *FileUploader
	notarization *NotarizationUseCase
	notifier     *Notifier
}

func NewSignatureUseCase(
	docs ports.DocumentRepository,
	sessions ports.SessionRepository,
	approvals ports.ApprovalRepository,
	uploader *FileUploader,
	notarization *NotarizationUseCase,
	notifier *Notifier,
) *SignatureUseCase {
	return &SignatureUseCase{
		docs:         docs,
		sessions:     sessions,
		approvals:    approvals,
		uploader:     uploader,
		notarization: notarization,
		notifier:     notifier,
	}
}

func (uc *SignatureUseCase) ApproveByUser(
	ctx context.Context,
	caller domain.Identity,
	subject domain.ApprovalSubject,
	amount *float64,
	image *domain.Upload,
) (*domain.SignatureApproval, error) {
	return uc.approve(ctx, caller, subject, domain.PartyUser, amount, image)
}

func (uc *SignatureUseCase) ApproveBySecretary(
	ctx context.Context,
	caller domain.Identity,
	subject domain.ApprovalSubject,
	amount *float64,
	image *domain.Upload,
) (*domain.SignatureApproval, error) {
	return uc.approve(ctx, caller, subject, domain.PartySecretary, amount, image)
}

func (uc *SignatureUseCase) approve(
	ctx context.Context,
	caller domain.Identity,
	subject domain.ApprovalSubject,
	party domain.ApprovalParty,
	amount *float64,
	image *domain.Upload,
) (*domain.SignatureApproval, error) {
	const op = "approve signature"

	if strings.TrimSpace(subject.ID) == "" {
		return nil, domain.Errorf(domain.ErrInvalidInput, op, "%s id is required", subject.Kind)
	}
	if amount != nil && *amount < 0 {
		return nil, domain.Errorf(domain.ErrInvalidInput, op, "amount must not be negative")
	}

	var (
		doc     *domain.Document
		session *domain.Session
		err     error
	)
	switch subject.Kind {
	case domain.SubjectDocument:
		if doc, err = uc.checkDocument(ctx, caller, subject.ID, party); err != nil {
			return nil, err
		}
	case domain.SubjectSession:
		if session, err = uc.checkSession(ctx, caller, subject.ID, party); err != nil {
			return nil, err
		}
	default:
		return nil, domain.Errorf(domain.ErrInvalidInput, op, "unknown approval subject %q", subject.Kind)
	}

	existing, err := uc.approvals.Get(ctx, subject)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("load signature approval: %w", err)
	}
	if existing != nil && existing.Half(party).Approved {
		return existing, nil
	}

	attach := domain.ApprovalAttachment{Amount: amount}
	if image != nil && len(image.Data) > 0 && (existing == nil || existing.SignatureImage == "") {
		files, err := uc.uploader.Store(ctx, fmt.Sprintf("signatures/%s/%s", subject.Kind, subject.ID), []domain.Upload{*image})
		if err != nil {
			return nil, err
		}
		attach.SignatureImage = files[0].StorageURL
	}

	approval, changed, err := uc.approvals.Approve(ctx, subject, party, attach)
	if err != nil {
		return nil, err
	}
	if !changed || !approval.FullyApproved() {
		return approval, nil
	}

	if doc != nil {
		return approval, uc.completeDocument(ctx, doc)
	}
	return approval, uc.notifier.publish(ctx, domain.EmailMessage{
		Kind:      domain.EmailSignatureCompleted,
		To:        recipients(session.CreatorEmail),
		Subject:   fmt.Sprintf("Session %q signed", session.SessionName),
		Body:      fmt.Sprintf("Both signatures for session %s were approved.", session.ID),
		RelatedID: session.ID,
	})
}

func (uc *SignatureUseCase) checkDocument(ctx context.Context, caller domain.Identity, id string, party domain.ApprovalParty) (*domain.Document, error) {
	const op = "approve document signature"
	doc, err := uc.docs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if party == domain.PartyUser && caller.Role != domain.RoleAdmin && doc.UserID != caller.UserID {
		return nil, domain.Errorf(domain.ErrForbidden, op, "only the requester can approve document %s", id)
	}
	if doc.Status != domain.StatusDigitalSignature {
		return nil, domain.Errorf(domain.ErrInvalidInput, op, "document %s is %s, not %s", id, doc.Status, domain.StatusDigitalSignature)
	}
	return doc, nil
}

func (uc *SignatureUseCase) checkSession(ctx context.Context, caller domain.Identity, id string, party domain.ApprovalParty) (*domain.Session, error) {
	const op = "approve session signature"
	session, err := uc.sessions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if party == domain.PartyUser && caller.Role != domain.RoleAdmin && !session.IsCreator(caller) {
		return nil, domain.Errorf(domain.ErrForbidden, op, "only the session creator can approve session %s", id)
	}
	if session.Status != domain.SessionPendingNotarization {
		return nil, domain.Errorf(domain.ErrInvalidInput, op, "session %s is %s, not %s", id, session.Status, domain.SessionPendingNotarization)
	}
	return session, nil
}

// completeDocument runs the complete transition as the system actor once both
// halves are in. Losing the race to a manual complete is fine.
func (uc *SignatureUseCase) completeDocument(ctx context.Context, doc *domain.Document) error {
	t, ok := domain.LookupTransition(domain.StatusDigitalSignature, domain.ActionComplete)
	if !ok {
		return nil
	}
	_, err := uc.notarization.apply(ctx, doc, t, domain.SystemIdentity, "")
	switch {
	case err == nil, errors.Is(err, domain.ErrNotification):
		return err
	case errors.Is(err, domain.ErrConflict):
		slog.Default().Info("signature_auto_complete_skipped", slog.String("document_id", doc.ID))
		return nil
	default:
		return fmt.Errorf("complete signed document: %w", err)
	}
}
