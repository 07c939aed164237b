package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kirillkom/notarization-api/internal/core/domain"
)

type sessionFixture struct {
	docs     *docRepoFake
	sessions *sessionRepoFake
	storage  *storageFake
	queue    *queueFake
	uc       *SessionUseCase
}

func newSessionFixture(sessions ...*domain.Session) *sessionFixture {
	f := &sessionFixture{
		docs:    newDocRepoFake(),
		storage: &storageFake{},
		queue:   &queueFake{},
	}
	f.sessions = newSessionRepoFake(f.docs, sessions...)
	f.uc = NewSessionUseCase(f.sessions, NewFileUploader(f.storage, &inspectorFake{}), NewNotifier(f.queue), time.UTC)
	return f
}

func draftSession(id string) *domain.Session {
	return &domain.Session{
		ID:           id,
		SessionName:  "Property transfer",
		StartAt:      time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC),
		EndAt:        time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC),
		Users:        []domain.Participant{{Email: invitee.Email, Status: domain.ParticipantPending}},
		CreatedBy:    requester.UserID,
		CreatorEmail: requester.Email,
		Status:       domain.SessionDraft,
	}
}

func validNewSession() domain.NewSession {
	return domain.NewSession{
		SessionName: "Property transfer",
		StartDate:   "2026-03-10",
		StartTime:   "09:00",
		EndDate:     "2026-03-10",
		EndTime:     "10:00",
		Users:       []string{"Bob@Example.com", "bob@example.com", requester.Email},
	}
}

func TestCreateSession(t *testing.T) {
	f := newSessionFixture()

	s, err := f.uc.Create(context.Background(), requester, validNewSession())
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if s.Status != domain.SessionDraft {
		t.Fatalf("expected draft, got %s", s.Status)
	}
	if len(s.Users) != 1 || s.Users[0].Email != "bob@example.com" || s.Users[0].Status != domain.ParticipantPending {
		t.Fatalf("expected one pending invitee, got %+v", s.Users)
	}
	if kinds := f.queue.kinds(); len(kinds) != 1 || kinds[0] != domain.EmailSessionInvitation {
		t.Fatalf("expected invitation email, got %v", kinds)
	}
}

func TestCreateSessionValidation(t *testing.T) {
	cases := map[string]func(*domain.NewSession){
		"missing name":     func(in *domain.NewSession) { in.SessionName = " " },
		"end before start": func(in *domain.NewSession) { in.EndTime = "08:00" },
		"bad date":         func(in *domain.NewSession) { in.StartDate = "10/03/2026" },
		"only creator":     func(in *domain.NewSession) { in.Users = []string{requester.Email} },
		"missing time":     func(in *domain.NewSession) { in.StartTime = "" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			f := newSessionFixture()
			in := validNewSession()
			mutate(&in)
			if _, err := f.uc.Create(context.Background(), requester, in); !errors.Is(err, domain.ErrInvalidInput) {
				t.Fatalf("expected invalid input, got %v", err)
			}
		})
	}
}

func TestAddUsers(t *testing.T) {
	f := newSessionFixture(draftSession("s-1"))

	if _, err := f.uc.AddUsers(context.Background(), stranger, "s-1", []string{"carol@example.com"}); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected forbidden for non-creator, got %v", err)
	}
	if _, err := f.uc.AddUsers(context.Background(), requester, "s-1", []string{"BOB@example.com"}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input for duplicates only, got %v", err)
	}
	s, err := f.uc.AddUsers(context.Background(), requester, "s-1", []string{"bob@example.com", "carol@example.com"})
	if err != nil {
		t.Fatalf("AddUsers() error = %v", err)
	}
	if len(s.Users) != 2 {
		t.Fatalf("expected 2 invitees, got %d", len(s.Users))
	}
	if _, err := f.uc.AddUsers(context.Background(), admin, "s-1", []string{"dave@example.com"}); err != nil {
		t.Fatalf("admin should manage sessions: %v", err)
	}
}

func TestDeleteUserKeepsSessionViable(t *testing.T) {
	s := draftSession("s-1")
	s.Users = append(s.Users, domain.Participant{Email: "carol@example.com", Status: domain.ParticipantPending})
	f := newSessionFixture(s)

	if _, err := f.uc.DeleteUser(context.Background(), requester, "s-1", "nobody@example.com"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := f.uc.DeleteUser(context.Background(), requester, "s-1", "carol@example.com"); err != nil {
		t.Fatalf("DeleteUser() error = %v", err)
	}
	if _, err := f.uc.DeleteUser(context.Background(), requester, "s-1", invitee.Email); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected last invitee removal to fail, got %v", err)
	}
}

func TestJoinSession(t *testing.T) {
	f := newSessionFixture(draftSession("s-1"))

	if _, err := f.uc.Join(context.Background(), stranger, "s-1", domain.ParticipantAccepted); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected forbidden for uninvited caller, got %v", err)
	}
	upper := invitee
	upper.Email = "BOB@EXAMPLE.COM"
	s, err := f.uc.Join(context.Background(), upper, "s-1", domain.ParticipantAccepted)
	if err != nil {
		t.Fatalf("Join() error = %v", err)
	}
	if p, _ := s.Participant(invitee.Email); p.Status != domain.ParticipantAccepted || p.UserID != invitee.UserID {
		t.Fatalf("expected accepted participant, got %+v", p)
	}
	if _, err := f.uc.Join(context.Background(), invitee, "s-1", domain.ParticipantRejected); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input on second response, got %v", err)
	}
}

func TestJoinSessionRejectionCancelsUnviableSession(t *testing.T) {
	f := newSessionFixture(draftSession("s-1"))

	s, err := f.uc.Join(context.Background(), invitee, "s-1", domain.ParticipantRejected)
	if err != nil {
		t.Fatalf("Join() error = %v", err)
	}
	if s.Status != domain.SessionCancelled {
		t.Fatalf("expected cancelled session, got %s", s.Status)
	}
	stored, _ := f.sessions.GetByID(context.Background(), "s-1")
	if stored.Status != domain.SessionCancelled {
		t.Fatalf("expected stored session cancelled, got %s", stored.Status)
	}
}

func TestJoinSessionConcurrentResponsesOneWins(t *testing.T) {
	f := newSessionFixture(draftSession("s-1"))

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, response := range []domain.ParticipantStatus{domain.ParticipantAccepted, domain.ParticipantAccepted} {
		wg.Add(1)
		go func(i int, response domain.ParticipantStatus) {
			defer wg.Done()
			_, errs[i] = f.uc.Join(context.Background(), invitee, "s-1", response)
		}(i, response)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, domain.ErrConflict), errors.Is(err, domain.ErrInvalidInput):
		default:
			t.Fatalf("unexpected error %v", err)
		}
	}
	if ok != 1 {
		t.Fatalf("expected exactly one successful response, got %d", ok)
	}
}

func TestUploadAndSendForNotarization(t *testing.T) {
	f := newSessionFixture(draftSession("s-1"))

	if _, err := f.uc.UploadDocuments(context.Background(), invitee, "s-1", []domain.Upload{pdfUpload("a.pdf")}); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("pending invitee must not upload, got %v", err)
	}
	if _, err := f.uc.SendForNotarization(context.Background(), requester, "s-1"); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input without files, got %v", err)
	}
	if _, err := f.uc.Join(context.Background(), invitee, "s-1", domain.ParticipantAccepted); err != nil {
		t.Fatalf("Join() error = %v", err)
	}
	if _, err := f.uc.UploadDocuments(context.Background(), invitee, "s-1", []domain.Upload{pdfUpload("a.pdf")}); err != nil {
		t.Fatalf("accepted invitee upload: %v", err)
	}
	if _, err := f.uc.SendForNotarization(context.Background(), invitee, "s-1"); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("only the creator may submit, got %v", err)
	}

	s, err := f.uc.SendForNotarization(context.Background(), requester, "s-1")
	if err != nil {
		t.Fatalf("SendForNotarization() error = %v", err)
	}
	if s.Status != domain.SessionPendingNotarization || s.DocumentID == "" {
		t.Fatalf("expected submitted session with document, got %+v", s)
	}
	doc, err := f.docs.GetByID(context.Background(), s.DocumentID)
	if err != nil {
		t.Fatalf("linked document missing: %v", err)
	}
	if doc.Status != domain.StatusPending || doc.SessionID != "s-1" || len(doc.Files) != 1 {
		t.Fatalf("unexpected linked document %+v", doc)
	}
	history, _ := f.docs.History(context.Background(), doc.ID)
	if len(history) != 1 || history[0].Status != domain.StatusPending {
		t.Fatalf("expected initial pending row, got %+v", history)
	}

	if _, err := f.uc.SendForNotarization(context.Background(), requester, "s-1"); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected second submission to fail, got %v", err)
	}
}

func TestSessionQueriesAreMembershipScoped(t *testing.T) {
	mine := draftSession("s-mine")
	other := draftSession("s-other")
	other.CreatedBy = "u-9"
	other.CreatorEmail = "zed@example.com"
	other.Users = []domain.Participant{{Email: "carol@example.com", Status: domain.ParticipantPending}}
	other.StartAt = time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC)
	other.EndAt = time.Date(2026, 4, 2, 11, 0, 0, 0, time.UTC)
	f := newSessionFixture(mine, other)

	list, _ := f.uc.List(context.Background(), requester)
	if len(list) != 1 || list[0].ID != "s-mine" {
		t.Fatalf("user should see own sessions only, got %+v", list)
	}
	list, _ = f.uc.List(context.Background(), invitee)
	if len(list) != 1 || list[0].ID != "s-mine" {
		t.Fatalf("invitee should see invited session, got %+v", list)
	}
	list, _ = f.uc.List(context.Background(), notary)
	if len(list) != 2 {
		t.Fatalf("notary should see all sessions, got %d", len(list))
	}
	list, _ = f.uc.ListByUser(context.Background(), notary)
	if len(list) != 0 {
		t.Fatalf("ListByUser is always scoped, got %d", len(list))
	}

	list, err := f.uc.ListByDate(context.Background(), admin, "2026-04-02")
	if err != nil || len(list) != 1 || list[0].ID != "s-other" {
		t.Fatalf("ListByDate() = %+v, %v", list, err)
	}
	list, err = f.uc.ListByMonth(context.Background(), admin, "2026-03")
	if err != nil || len(list) != 1 || list[0].ID != "s-mine" {
		t.Fatalf("ListByMonth() = %+v, %v", list, err)
	}
	if _, err := f.uc.ListByDate(context.Background(), admin, "April 2"); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid date error, got %v", err)
	}

	f.uc.now = func() time.Time { return time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC) }
	list, _ = f.uc.ListActive(context.Background(), admin)
	if len(list) != 1 || list[0].ID != "s-other" {
		t.Fatalf("ListActive() = %+v", list)
	}

	if _, err := f.uc.Get(context.Background(), stranger, "s-mine"); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected forbidden for non-member, got %v", err)
	}
	if _, err := f.uc.Get(context.Background(), secretary, "s-mine"); err != nil {
		t.Fatalf("secretary should read any session: %v", err)
	}
}

func TestSessionInvitationRoundTrip(t *testing.T) {
	f := newSessionFixture()
	guests := []domain.Identity{
		{UserID: "u-10", Email: "a@x.com", Role: domain.RoleUser},
		{UserID: "u-11", Email: "b@x.com", Role: domain.RoleUser},
	}

	created, err := f.uc.Create(context.Background(), requester, domain.NewSession{
		SessionName: "Signing",
		StartDate:   "2024-10-10",
		StartTime:   "14:00",
		EndDate:     "2024-10-10",
		EndTime:     "15:00",
		Users:       []string{"a@x.com", "b@x.com"},
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	participantStatuses := func(caller domain.Identity, list []domain.Session) map[string]domain.ParticipantStatus {
		t.Helper()
		if len(list) != 1 || list[0].ID != created.ID {
			t.Fatalf("%s: expected the created session, got %+v", caller.Email, list)
		}
		out := make(map[string]domain.ParticipantStatus, len(list[0].Users))
		for _, p := range list[0].Users {
			out[p.Email] = p.Status
		}
		return out
	}

	for _, g := range guests {
		list, err := f.uc.ListByUser(context.Background(), g)
		if err != nil {
			t.Fatalf("ListByUser() error = %v", err)
		}
		got := participantStatuses(g, list)
		if len(got) != 2 || got["a@x.com"] != domain.ParticipantPending || got["b@x.com"] != domain.ParticipantPending {
			t.Fatalf("%s: expected both invitees pending, got %v", g.Email, got)
		}
	}

	for _, g := range guests {
		if _, err := f.uc.Join(context.Background(), g, created.ID, domain.ParticipantAccepted); err != nil {
			t.Fatalf("Join(%s) error = %v", g.Email, err)
		}
	}

	list, err := f.uc.ListByUser(context.Background(), requester)
	if err != nil {
		t.Fatalf("ListByUser() error = %v", err)
	}
	if got := participantStatuses(requester, list); got["a@x.com"] != domain.ParticipantAccepted || got["b@x.com"] != domain.ParticipantAccepted {
		t.Fatalf("expected both invitees accepted, got %v", got)
	}

	f.uc.now = func() time.Time { return time.Date(2024, 10, 10, 14, 30, 0, 0, time.UTC) }
	list, err = f.uc.ListActive(context.Background(), guests[1])
	if err != nil {
		t.Fatalf("ListActive() error = %v", err)
	}
	if got := participantStatuses(guests[1], list); got["a@x.com"] != domain.ParticipantAccepted || got["b@x.com"] != domain.ParticipantAccepted {
		t.Fatalf("active listing must show updated statuses, got %v", got)
	}

	if list, _ := f.uc.ListByDate(context.Background(), guests[0], "2024-10-10"); len(list) != 1 {
		t.Fatalf("expected session on 2024-10-10, got %d", len(list))
	}
	if list, _ := f.uc.ListByDate(context.Background(), guests[0], "2024-11-01"); len(list) != 0 {
		t.Fatalf("expected no session on 2024-11-01, got %d", len(list))
	}
}
