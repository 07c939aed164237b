package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kirillkom/notarization-api/internal/core/domain"
)

type docRepoFake struct {
	mu       sync.Mutex
	docs     map[string]*domain.Document
	tracking []domain.StatusTracking
	listErr  error
}

func newDocRepoFake(docs ...*domain.Document) *docRepoFake {
	f := &docRepoFake{docs: map[string]*domain.Document{}}
	for _, d := range docs {
		f.docs[d.ID] = d
	}
	return f
}

func (f *docRepoFake) Create(_ context.Context, doc *domain.Document, entry domain.StatusTracking) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copyDoc := *doc
	f.docs[doc.ID] = &copyDoc
	f.tracking = append(f.tracking, entry)
	return nil
}

func (f *docRepoFake) GetByID(_ context.Context, id string) (*domain.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.docs[id]
	if !ok {
		return nil, domain.Errorf(domain.ErrNotFound, "get document", "document %s", id)
	}
	copyDoc := *d
	return &copyDoc, nil
}

func (f *docRepoFake) TransitionStatus(_ context.Context, id string, from, to domain.DocumentStatus, feedback string, entry domain.StatusTracking) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.docs[id]
	if !ok {
		return domain.Errorf(domain.ErrNotFound, "transition document", "document %s", id)
	}
	if d.Status != from {
		return domain.Errorf(domain.ErrConflict, "transition document", "document %s is %s", id, d.Status)
	}
	d.Status = to
	if feedback != "" {
		d.Feedback = feedback
	}
	f.tracking = append(f.tracking, entry)
	return nil
}

func (f *docRepoFake) ListByUser(_ context.Context, userID string) ([]domain.Document, error) {
	return f.filter(func(d *domain.Document) bool { return d.UserID == userID }), nil
}

func (f *docRepoFake) ListByStatuses(_ context.Context, statuses []domain.DocumentStatus) ([]domain.Document, error) {
	return f.filter(func(d *domain.Document) bool {
		for _, s := range statuses {
			if d.Status == s {
				return true
			}
		}
		return false
	}), nil
}

func (f *docRepoFake) List(_ context.Context, q domain.DocumentQuery) ([]domain.Document, int, error) {
	if f.listErr != nil {
		return nil, 0, f.listErr
	}
	all := f.filter(func(d *domain.Document) bool { return q.Status == "" || d.Status == q.Status })
	total := len(all)
	start := q.Offset()
	if start > total {
		start = total
	}
	end := start + q.Limit
	if end > total {
		end = total
	}
	return all[start:end], total, nil
}

func (f *docRepoFake) History(_ context.Context, documentID string) ([]domain.StatusTracking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.StatusTracking
	for _, row := range f.tracking {
		if row.DocumentID == documentID {
			out = append(out, row)
		}
	}
	return out, nil
}

func (f *docRepoFake) ListTrackingByActor(_ context.Context, actorID string) ([]domain.StatusTracking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.StatusTracking
	for _, row := range f.tracking {
		if row.ActorID == actorID && row.Action != domain.ActionCreate {
			out = append(out, row)
		}
	}
	return out, nil
}

func (f *docRepoFake) filter(keep func(*domain.Document) bool) []domain.Document {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []domain.Document{}
	for _, d := range f.docs {
		if keep(d) {
			out = append(out, *d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

type sessionRepoFake struct {
	mu       sync.Mutex
	sessions map[string]*domain.Session
	docs     *docRepoFake
}

func newSessionRepoFake(docs *docRepoFake, sessions ...*domain.Session) *sessionRepoFake {
	f := &sessionRepoFake{sessions: map[string]*domain.Session{}, docs: docs}
	for _, s := range sessions {
		f.sessions[s.ID] = s
	}
	return f
}

func (f *sessionRepoFake) Create(_ context.Context, s *domain.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[s.ID] = cloneSession(s)
	return nil
}

func (f *sessionRepoFake) GetByID(_ context.Context, id string) (*domain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok {
		return nil, domain.Errorf(domain.ErrNotFound, "get session", "session %s", id)
	}
	return cloneSession(s), nil
}

func (f *sessionRepoFake) List(_ context.Context, filter domain.SessionFilter) ([]domain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []domain.Session{}
	for _, s := range f.sessions {
		if filter.Matches(s) {
			out = append(out, *cloneSession(s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *sessionRepoFake) AddParticipants(_ context.Context, sessionID string, participants []domain.Participant) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.sessions[sessionID]
	s.Users = append(s.Users, participants...)
	return nil
}

func (f *sessionRepoFake) RemoveParticipant(_ context.Context, sessionID, email string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.sessions[sessionID]
	kept := []domain.Participant{}
	for _, p := range s.Users {
		if !strings.EqualFold(p.Email, email) {
			kept = append(kept, p)
		}
	}
	s.Users = kept
	return nil
}

func (f *sessionRepoFake) RespondInvitation(_ context.Context, sessionID, email string, status domain.ParticipantStatus, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.sessions[sessionID]
	for i := range s.Users {
		if strings.EqualFold(s.Users[i].Email, email) {
			if s.Users[i].Status != domain.ParticipantPending {
				return domain.Errorf(domain.ErrConflict, "respond invitation", "already %s", s.Users[i].Status)
			}
			now := time.Now()
			s.Users[i].Status = status
			s.Users[i].UserID = userID
			s.Users[i].RespondedAt = &now
			return nil
		}
	}
	return domain.Errorf(domain.ErrNotFound, "respond invitation", "%s", email)
}

func (f *sessionRepoFake) AddFiles(_ context.Context, sessionID, _ string, files []domain.File) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.sessions[sessionID]
	s.Files = append(s.Files, files...)
	return nil
}

func (f *sessionRepoFake) UpdateStatus(_ context.Context, sessionID string, from, to domain.SessionStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.sessions[sessionID]
	if s.Status != from {
		return domain.Errorf(domain.ErrConflict, "update session status", "session is %s", s.Status)
	}
	s.Status = to
	return nil
}

func (f *sessionRepoFake) SubmitForNotarization(ctx context.Context, sessionID string, doc *domain.Document, entry domain.StatusTracking) error {
	f.mu.Lock()
	s := f.sessions[sessionID]
	if s.Status != domain.SessionDraft {
		f.mu.Unlock()
		return domain.Errorf(domain.ErrConflict, "submit session", "session is %s", s.Status)
	}
	s.Status = domain.SessionPendingNotarization
	s.DocumentID = doc.ID
	f.mu.Unlock()
	return f.docs.Create(ctx, doc, entry)
}

func cloneSession(s *domain.Session) *domain.Session {
	c := *s
	c.Users = append([]domain.Participant(nil), s.Users...)
	c.Files = append([]domain.File(nil), s.Files...)
	return &c
}

type approvalRepoFake struct {
	mu      sync.Mutex
	records map[domain.ApprovalSubject]*domain.SignatureApproval
}

func newApprovalRepoFake() *approvalRepoFake {
	return &approvalRepoFake{records: map[domain.ApprovalSubject]*domain.SignatureApproval{}}
}

func (f *approvalRepoFake) Get(_ context.Context, subject domain.ApprovalSubject) (*domain.SignatureApproval, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[subject]
	if !ok {
		return nil, domain.Errorf(domain.ErrNotFound, "get approval", "%s %s", subject.Kind, subject.ID)
	}
	copyRec := *rec
	return &copyRec, nil
}

func (f *approvalRepoFake) Approve(_ context.Context, subject domain.ApprovalSubject, party domain.ApprovalParty, attach domain.ApprovalAttachment) (*domain.SignatureApproval, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now().UTC()
	rec, ok := f.records[subject]
	if !ok {
		rec = &domain.SignatureApproval{ID: "approval-" + subject.ID, Subject: subject, CreatedAt: now}
		f.records[subject] = rec
	}
	changed := rec.Approve(party, attach, now)
	copyRec := *rec
	return &copyRec, changed, nil
}

type storageFake struct {
	mu   sync.Mutex
	keys []string
	err  error
}

func (f *storageFake) Save(_ context.Context, key, _ string, data io.Reader, _ int64) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if _, err := io.Copy(io.Discard, data); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys = append(f.keys, key)
	return "http://files.test/" + key, nil
}

type inspectorFake struct {
	err   error
	calls int
}

func (f *inspectorFake) Inspect(context.Context, domain.Upload) error {
	f.calls++
	return f.err
}

type queueFake struct {
	mu   sync.Mutex
	sent []domain.EmailMessage
	err  error
}

func (f *queueFake) PublishEmail(_ context.Context, msg domain.EmailMessage) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	return nil
}

func (f *queueFake) SubscribeEmail(context.Context, func(context.Context, domain.EmailMessage) error) error {
	return nil
}

func (f *queueFake) kinds() []domain.EmailKind {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.EmailKind, 0, len(f.sent))
	for _, m := range f.sent {
		out = append(out, m.Kind)
	}
	return out
}

type exporterFake struct {
	rows int
}

func (f *exporterFake) ExportTracking(_ context.Context, rows []domain.StatusTracking, w io.Writer) error {
	f.rows = len(rows)
	_, err := fmt.Fprintf(w, "rows=%d", len(rows))
	return err
}

func (f *exporterFake) ContentType() string { return "application/test" }

type verifierFake struct {
	identity domain.Identity
	err      error
}

func (f verifierFake) Verify(context.Context, string) (domain.Identity, error) {
	return f.identity, f.err
}

var errBoom = errors.New("boom")

var (
	requester = domain.Identity{UserID: "u-1", Email: "alice@example.com", Role: domain.RoleUser}
	stranger  = domain.Identity{UserID: "u-2", Email: "mallory@example.com", Role: domain.RoleUser}
	invitee   = domain.Identity{UserID: "u-3", Email: "bob@example.com", Role: domain.RoleUser}
	notary    = domain.Identity{UserID: "n-1", Email: "notary@example.com", Role: domain.RoleNotary}
	secretary = domain.Identity{UserID: "s-1", Email: "secretary@example.com", Role: domain.RoleSecretary}
	admin     = domain.Identity{UserID: "a-1", Email: "admin@example.com", Role: domain.RoleAdmin}
)

func pdfUpload(name string) domain.Upload {
	return domain.Upload{Filename: name, ContentType: "application/pdf", Data: []byte("%PDF-1.4 test")}
}

func documentIn(id string, status domain.DocumentStatus) *domain.Document {
	return &domain.Document{
		ID:            id,
		UserID:        requester.UserID,
		UserEmail:     requester.Email,
		RequesterInfo: domain.RequesterInfo{Email: requester.Email},
		Files:         []domain.File{{Filename: "a.pdf", StorageURL: "http://files.test/a.pdf"}},
		Status:        status,
	}
}
