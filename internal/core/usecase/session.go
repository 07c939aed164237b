package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/notarization-api/internal/core/domain"
	"github.com/kirillkom/notarization-api/internal/core/ports"
)

type SessionUseCase struct {
	sessions ports.SessionRepository
	uploader *FileUploader
	notifier *Notifier
	loc      *time.Location
	now      func() time.Time
}

func NewSessionUseCase(
	sessions ports.SessionRepository,
	uploader *FileUploader,
	notifier *Notifier,
	loc *time.Location,
) *SessionUseCase {
	if loc == nil {
		loc = time.UTC
	}
	return &SessionUseCase{
		sessions: sessions,
		uploader: uploader,
		notifier: notifier,
		loc:      loc,
		now:      time.Now,
	}
}

func (uc *SessionUseCase) Create(ctx context.Context, caller domain.Identity, in domain.NewSession) (*domain.Session, error) {
	const op = "create session"

	name := strings.TrimSpace(in.SessionName)
	if name == "" {
		return nil, domain.Errorf(domain.ErrInvalidInput, op, "sessionName is required")
	}
	if strings.TrimSpace(in.StartDate) == "" || strings.TrimSpace(in.EndDate) == "" {
		return nil, domain.Errorf(domain.ErrInvalidInput, op, "startDate and endDate are required")
	}
	if strings.TrimSpace(in.StartTime) == "" || strings.TrimSpace(in.EndTime) == "" {
		return nil, domain.Errorf(domain.ErrInvalidInput, op, "startTime and endTime are required")
	}
	startAt, err := domain.ParseSchedule(in.StartDate, in.StartTime, uc.loc)
	if err != nil {
		return nil, err
	}
	endAt, err := domain.ParseSchedule(in.EndDate, in.EndTime, uc.loc)
	if err != nil {
		return nil, err
	}
	if !endAt.After(startAt) {
		return nil, domain.Errorf(domain.ErrInvalidInput, op, "session must end after it starts")
	}

	emails := domain.NormalizeEmails(in.Users, caller.Email)
	if len(emails) == 0 {
		return nil, domain.Errorf(domain.ErrInvalidInput, op, "at least one invitee other than the creator is required")
	}

	now := uc.now().UTC()
	session := &domain.Session{
		ID:            uuid.NewString(),
		SessionName:   name,
		NotaryField:   in.NotaryField,
		NotaryService: in.NotaryService,
		StartAt:       startAt.UTC(),
		EndAt:         endAt.UTC(),
		Users:         pendingParticipants(emails),
		CreatedBy:     caller.UserID,
		CreatorEmail:  caller.Email,
		Files:         []domain.File{},
		Status:        domain.SessionDraft,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := uc.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	if err := uc.notifier.SessionInvitation(ctx, session, emails); err != nil {
		return session, err
	}
	return session, nil
}

func (uc *SessionUseCase) AddUsers(ctx context.Context, caller domain.Identity, sessionID string, emails []string) (*domain.Session, error) {
	const op = "add session users"

	session, err := uc.loadManaged(ctx, caller, sessionID, op)
	if err != nil {
		return nil, err
	}

	candidates := domain.NormalizeEmails(emails, session.CreatorEmail)
	if len(candidates) == 0 {
		return nil, domain.Errorf(domain.ErrInvalidInput, op, "at least one email is required")
	}
	fresh := make([]string, 0, len(candidates))
	for _, email := range candidates {
		if _, exists := session.Participant(email); !exists {
			fresh = append(fresh, email)
		}
	}
	if len(fresh) == 0 {
		return nil, domain.Errorf(domain.ErrInvalidInput, op, "every email is already invited")
	}

	added := pendingParticipants(fresh)
	if err := uc.sessions.AddParticipants(ctx, session.ID, added); err != nil {
		return nil, err
	}
	session.Users = append(session.Users, added...)
	session.UpdatedAt = uc.now().UTC()

	if err := uc.notifier.SessionInvitation(ctx, session, fresh); err != nil {
		return session, err
	}
	return session, nil
}

func (uc *SessionUseCase) DeleteUser(ctx context.Context, caller domain.Identity, sessionID, email string) (*domain.Session, error) {
	const op = "delete session user"

	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, domain.Errorf(domain.ErrInvalidInput, op, "email is required")
	}
	session, err := uc.loadManaged(ctx, caller, sessionID, op)
	if err != nil {
		return nil, err
	}

	participant, ok := session.Participant(email)
	if !ok {
		return nil, domain.Errorf(domain.ErrNotFound, op, "%s is not invited to session %s", email, sessionID)
	}
	if participant.Status != domain.ParticipantRejected && session.ActiveInvitees(email) < domain.MinActiveInvitees {
		return nil, domain.Errorf(domain.ErrInvalidInput, op, "session needs at least %d invitee", domain.MinActiveInvitees)
	}

	if err := uc.sessions.RemoveParticipant(ctx, session.ID, participant.Email); err != nil {
		return nil, err
	}
	kept := session.Users[:0]
	for _, p := range session.Users {
		if !strings.EqualFold(p.Email, participant.Email) {
			kept = append(kept, p)
		}
	}
	session.Users = kept
	session.UpdatedAt = uc.now().UTC()
	return session, nil
}

// Join records the caller's answer to an invitation. A rejection that leaves no
// viable invitees cancels the draft.
func (uc *SessionUseCase) Join(ctx context.Context, caller domain.Identity, sessionID string, response domain.ParticipantStatus) (*domain.Session, error) {
	const op = "join session"

	if response != domain.ParticipantAccepted && response != domain.ParticipantRejected {
		return nil, domain.Errorf(domain.ErrInvalidInput, op, "action must be accept or reject")
	}
	session, err := uc.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	participant, ok := session.Participant(caller.Email)
	if !ok {
		return nil, domain.Errorf(domain.ErrForbidden, op, "caller is not invited to session %s", sessionID)
	}
	if session.Status != domain.SessionDraft {
		return nil, domain.Errorf(domain.ErrInvalidInput, op, "session %s is %s", sessionID, session.Status)
	}
	if participant.Status != domain.ParticipantPending {
		return nil, domain.Errorf(domain.ErrInvalidInput, op, "invitation already %s", participant.Status)
	}

	if err := uc.sessions.RespondInvitation(ctx, session.ID, participant.Email, response, caller.UserID); err != nil {
		return nil, err
	}

	now := uc.now().UTC()
	for i := range session.Users {
		if strings.EqualFold(session.Users[i].Email, participant.Email) {
			session.Users[i].Status = response
			session.Users[i].UserID = caller.UserID
			session.Users[i].RespondedAt = &now
		}
	}
	session.UpdatedAt = now

	if response == domain.ParticipantRejected && session.ActiveInvitees("") < domain.MinActiveInvitees {
		err := uc.sessions.UpdateStatus(ctx, session.ID, domain.SessionDraft, domain.SessionCancelled)
		switch {
		case err == nil:
			session.Status = domain.SessionCancelled
		case errors.Is(err, domain.ErrConflict):
			// another writer already moved the session on
		default:
			return nil, fmt.Errorf("cancel session: %w", err)
		}
	}
	return session, nil
}

func (uc *SessionUseCase) UploadDocuments(ctx context.Context, caller domain.Identity, sessionID string, uploads []domain.Upload) (*domain.Session, error) {
	const op = "upload session documents"

	session, err := uc.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !session.CanAttachFiles(caller) {
		return nil, domain.Errorf(domain.ErrForbidden, op, "only the creator or accepted participants can upload to session %s", sessionID)
	}
	if session.Status != domain.SessionDraft {
		return nil, domain.Errorf(domain.ErrInvalidInput, op, "session %s is %s", sessionID, session.Status)
	}

	files, err := uc.uploader.Store(ctx, "sessions/"+session.ID, uploads)
	if err != nil {
		return nil, err
	}
	if err := uc.sessions.AddFiles(ctx, session.ID, caller.UserID, files); err != nil {
		return nil, err
	}
	session.Files = append(session.Files, files...)
	session.UpdatedAt = uc.now().UTC()
	return session, nil
}

// SendForNotarization submits the draft and opens a pending document with its files.
func (uc *SessionUseCase) SendForNotarization(ctx context.Context, caller domain.Identity, sessionID string) (*domain.Session, error) {
	const op = "send session for notarization"

	session, err := uc.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !session.IsCreator(caller) {
		return nil, domain.Errorf(domain.ErrForbidden, op, "only the creator can submit session %s", sessionID)
	}
	if len(session.Files) == 0 {
		return nil, domain.Errorf(domain.ErrInvalidInput, op, "session %s has no documents", sessionID)
	}
	if session.Status != domain.SessionDraft {
		return nil, domain.Errorf(domain.ErrInvalidInput, op, "session %s is %s", sessionID, session.Status)
	}

	now := uc.now().UTC()
	doc := &domain.Document{
		ID:                  uuid.NewString(),
		NotarizationService: session.NotaryService,
		NotarizationField:   session.NotaryField,
		RequesterInfo:       domain.RequesterInfo{Email: session.CreatorEmail},
		UserID:              session.CreatedBy,
		UserEmail:           session.CreatorEmail,
		SessionID:           session.ID,
		Files:               session.Files,
		Status:              domain.StatusPending,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if err := uc.sessions.SubmitForNotarization(ctx, session.ID, doc, initialTracking(doc, caller, now)); err != nil {
		return nil, err
	}
	session.Status = domain.SessionPendingNotarization
	session.DocumentID = doc.ID
	session.UpdatedAt = now

	if err := uc.notifier.SessionSubmitted(ctx, session); err != nil {
		return session, err
	}
	return session, nil
}

func (uc *SessionUseCase) List(ctx context.Context, caller domain.Identity) ([]domain.Session, error) {
	return uc.list(ctx, caller, domain.SessionFilter{}, false)
}

func (uc *SessionUseCase) ListByDate(ctx context.Context, caller domain.Identity, date string) ([]domain.Session, error) {
	from, to, err := domain.DayWindow(date, uc.loc)
	if err != nil {
		return nil, err
	}
	return uc.list(ctx, caller, domain.SessionFilter{From: &from, To: &to}, false)
}

func (uc *SessionUseCase) ListByMonth(ctx context.Context, caller domain.Identity, date string) ([]domain.Session, error) {
	from, to, err := domain.MonthWindow(date, uc.loc)
	if err != nil {
		return nil, err
	}
	return uc.list(ctx, caller, domain.SessionFilter{From: &from, To: &to}, false)
}

func (uc *SessionUseCase) ListActive(ctx context.Context, caller domain.Identity) ([]domain.Session, error) {
	now := uc.now()
	return uc.list(ctx, caller, domain.SessionFilter{ActiveAt: &now}, false)
}

// ListByUser always scopes to the caller, whatever the role.
func (uc *SessionUseCase) ListByUser(ctx context.Context, caller domain.Identity) ([]domain.Session, error) {
	return uc.list(ctx, caller, domain.SessionFilter{}, true)
}

func (uc *SessionUseCase) Get(ctx context.Context, caller domain.Identity, sessionID string) (*domain.Session, error) {
	session, err := uc.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !caller.Role.Privileged() && !session.IsMember(caller) {
		return nil, domain.Errorf(domain.ErrForbidden, "get session", "caller is not a member of session %s", sessionID)
	}
	return session, nil
}

func (uc *SessionUseCase) list(ctx context.Context, caller domain.Identity, filter domain.SessionFilter, scoped bool) ([]domain.Session, error) {
	if scoped || !caller.Role.Privileged() {
		filter.MemberID = caller.UserID
		filter.MemberEmail = strings.ToLower(caller.Email)
	}
	sessions, err := uc.sessions.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	if sessions == nil {
		sessions = []domain.Session{}
	}
	return sessions, nil
}

// loadManaged loads a draft session the caller may edit (creator or admin).
func (uc *SessionUseCase) loadManaged(ctx context.Context, caller domain.Identity, sessionID, op string) (*domain.Session, error) {
	session, err := uc.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !session.IsCreator(caller) && caller.Role != domain.RoleAdmin {
		return nil, domain.Errorf(domain.ErrForbidden, op, "only the creator can change session %s", sessionID)
	}
	if session.Status != domain.SessionDraft {
		return nil, domain.Errorf(domain.ErrInvalidInput, op, "session %s is %s", sessionID, session.Status)
	}
	return session, nil
}

func pendingParticipants(emails []string) []domain.Participant {
	out := make([]domain.Participant, 0, len(emails))
	for _, email := range emails {
		out = append(out, domain.Participant{Email: email, Status: domain.ParticipantPending})
	}
	return out
}
