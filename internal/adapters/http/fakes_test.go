package httpadapter

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/notarization-api/internal/config"
	"github.com/kirillkom/notarization-api/internal/core/domain"
)

// roleAuth treats the bearer token as the caller's role.
type roleAuth struct{}

func (roleAuth) Authorize(_ context.Context, authorization string, perm domain.Permission) (domain.Identity, error) {
	token, ok := strings.CutPrefix(authorization, "Bearer ")
	if !ok || token == "" {
		return domain.Identity{}, domain.Errorf(domain.ErrUnauthorized, "authorize", "missing bearer token")
	}
	role := domain.Role(token)
	if !role.Valid() {
		return domain.Identity{}, domain.Errorf(domain.ErrUnauthorized, "authorize", "unknown role")
	}
	if !role.Can(perm) {
		return domain.Identity{}, domain.Errorf(domain.ErrForbidden, "authorize", "%s may not %s", role, perm)
	}
	return domain.Identity{UserID: token + "-1", Email: token + "@example.com", Role: role}, nil
}

type fakeNotarization struct {
	doc     *domain.Document
	err     error
	page    domain.DocumentPage
	query   domain.DocumentQuery
	report  *domain.Report
	rows    []domain.StatusTracking
	uploads []domain.Upload
	meta    domain.NewDocument
	action  domain.Action
	caller  domain.Identity
	calls   int
}

func (f *fakeNotarization) UploadDocuments(_ context.Context, _ domain.Identity, meta domain.NewDocument, uploads []domain.Upload) (*domain.Document, error) {
	f.calls++
	f.meta = meta
	f.uploads = uploads
	return f.doc, f.err
}

func (f *fakeNotarization) History(context.Context, domain.Identity) ([]domain.Document, error) {
	f.calls++
	if f.doc == nil {
		return nil, f.err
	}
	return []domain.Document{*f.doc}, f.err
}

func (f *fakeNotarization) GetStatus(context.Context, string) (*domain.Document, error) {
	f.calls++
	return f.doc, f.err
}

func (f *fakeNotarization) StatusHistory(context.Context, domain.Identity, string) ([]domain.StatusTracking, error) {
	f.calls++
	return f.rows, f.err
}

func (f *fakeNotarization) DocumentsByRole(_ context.Context, caller domain.Identity) ([]domain.Document, error) {
	f.calls++
	f.caller = caller
	if f.doc == nil {
		return nil, f.err
	}
	return []domain.Document{*f.doc}, f.err
}

func (f *fakeNotarization) ForwardStatus(_ context.Context, _ domain.Identity, _ string, action domain.Action, _ string) (*domain.Document, error) {
	f.calls++
	f.action = action
	return f.doc, f.err
}

func (f *fakeNotarization) ListAll(_ context.Context, q domain.DocumentQuery) (domain.DocumentPage, error) {
	f.calls++
	f.query = q
	return f.page, f.err
}

func (f *fakeNotarization) ApproveHistory(context.Context, domain.Identity) ([]domain.StatusTracking, error) {
	f.calls++
	return f.rows, f.err
}

func (f *fakeNotarization) ExportApproveHistory(context.Context, domain.Identity) (*domain.Report, error) {
	f.calls++
	return f.report, f.err
}

type fakeSignatures struct {
	approval *domain.SignatureApproval
	err      error
	party    domain.ApprovalParty
	subject  domain.ApprovalSubject
	amount   *float64
	image    *domain.Upload
}

func (f *fakeSignatures) ApproveByUser(_ context.Context, _ domain.Identity, subject domain.ApprovalSubject, amount *float64, image *domain.Upload) (*domain.SignatureApproval, error) {
	f.party, f.subject, f.amount, f.image = domain.PartyUser, subject, amount, image
	return f.approval, f.err
}

func (f *fakeSignatures) ApproveBySecretary(_ context.Context, _ domain.Identity, subject domain.ApprovalSubject, amount *float64, image *domain.Upload) (*domain.SignatureApproval, error) {
	f.party, f.subject, f.amount, f.image = domain.PartySecretary, subject, amount, image
	return f.approval, f.err
}

type fakeSessions struct {
	session  *domain.Session
	sessions []domain.Session
	err      error
	created  domain.NewSession
	emails   []string
	response domain.ParticipantStatus
	date     string
	calls    int
}

func (f *fakeSessions) Create(_ context.Context, _ domain.Identity, in domain.NewSession) (*domain.Session, error) {
	f.calls++
	f.created = in
	return f.session, f.err
}

func (f *fakeSessions) AddUsers(_ context.Context, _ domain.Identity, _ string, emails []string) (*domain.Session, error) {
	f.calls++
	f.emails = emails
	return f.session, f.err
}

func (f *fakeSessions) DeleteUser(_ context.Context, _ domain.Identity, _, email string) (*domain.Session, error) {
	f.calls++
	f.emails = []string{email}
	return f.session, f.err
}

func (f *fakeSessions) Join(_ context.Context, _ domain.Identity, _ string, response domain.ParticipantStatus) (*domain.Session, error) {
	f.calls++
	f.response = response
	return f.session, f.err
}

func (f *fakeSessions) UploadDocuments(context.Context, domain.Identity, string, []domain.Upload) (*domain.Session, error) {
	f.calls++
	return f.session, f.err
}

func (f *fakeSessions) SendForNotarization(context.Context, domain.Identity, string) (*domain.Session, error) {
	f.calls++
	return f.session, f.err
}

func (f *fakeSessions) List(context.Context, domain.Identity) ([]domain.Session, error) {
	f.calls++
	return f.sessions, f.err
}

func (f *fakeSessions) ListByDate(_ context.Context, _ domain.Identity, date string) ([]domain.Session, error) {
	f.calls++
	f.date = date
	return f.sessions, f.err
}

func (f *fakeSessions) ListByMonth(_ context.Context, _ domain.Identity, date string) ([]domain.Session, error) {
	f.calls++
	f.date = date
	return f.sessions, f.err
}

func (f *fakeSessions) ListActive(context.Context, domain.Identity) ([]domain.Session, error) {
	f.calls++
	return f.sessions, f.err
}

func (f *fakeSessions) ListByUser(context.Context, domain.Identity) ([]domain.Session, error) {
	f.calls++
	return f.sessions, f.err
}

func (f *fakeSessions) Get(context.Context, domain.Identity, string) (*domain.Session, error) {
	f.calls++
	return f.session, f.err
}

type testServices struct {
	notarization *fakeNotarization
	signatures   *fakeSignatures
	sessions     *fakeSessions
}

func newTestHandler(cfg config.Config) (http.Handler, *testServices) {
	svc := &testServices{
		notarization: &fakeNotarization{},
		signatures:   &fakeSignatures{},
		sessions:     &fakeSessions{},
	}
	handler := NewRouter(cfg, Services{
		Auth:         roleAuth{},
		Notarization: svc.notarization,
		Signatures:   svc.signatures,
		Sessions:     svc.sessions,
	}).Handler()
	return handler, svc
}

func testDocument(status domain.DocumentStatus) *domain.Document {
	at := time.Date(2024, 10, 10, 9, 0, 0, 0, time.UTC)
	return &domain.Document{ID: "doc-1", UserID: "user-1", Status: status, CreatedAt: at, UpdatedAt: at}
}

func testSession(status domain.SessionStatus) *domain.Session {
	at := time.Date(2024, 10, 10, 14, 0, 0, 0, time.UTC)
	return &domain.Session{ID: "sess-1", SessionName: "Signing", StartAt: at, EndAt: at.Add(time.Hour), Status: status}
}
