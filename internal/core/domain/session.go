package domain

import (
	"fmt"
	"strings"
	"time"
)

type SessionStatus string

const (
	SessionDraft               SessionStatus = "draft"
	SessionPendingNotarization SessionStatus = "pendingNotarization"
	SessionCancelled           SessionStatus = "cancelled"
)

type ParticipantStatus string

const (
	ParticipantPending  ParticipantStatus = "pending"
	ParticipantAccepted ParticipantStatus = "accepted"
	ParticipantRejected ParticipantStatus = "rejected"
)

// MinActiveInvitees is the number of invitees that must not have rejected
// for a draft session to stay viable.
const MinActiveInvitees = 1

type Participant struct {
	Email       string            `json:"email"`
	Status      ParticipantStatus `json:"status"`
	UserID      string            `json:"userId,omitempty"`
	RespondedAt *time.Time        `json:"respondedAt,omitempty"`
}

type Session struct {
	ID            string              `json:"id"`
	SessionName   string              `json:"sessionName"`
	NotaryField   NotarizationField   `json:"notaryField"`
	NotaryService NotarizationService `json:"notaryService"`
	StartAt       time.Time           `json:"startAt"`
	EndAt         time.Time           `json:"endAt"`
	Users         []Participant       `json:"users"`
	CreatedBy     string              `json:"createdBy"`
	CreatorEmail  string              `json:"creatorEmail,omitempty"`
	Files         []File              `json:"files"`
	Status        SessionStatus       `json:"status"`
	DocumentID    string              `json:"documentId,omitempty"`
	CreatedAt     time.Time           `json:"createdAt"`
	UpdatedAt     time.Time           `json:"updatedAt"`
}

func (s *Session) Participant(email string) (Participant, bool) {
	for _, p := range s.Users {
		if strings.EqualFold(p.Email, strings.TrimSpace(email)) {
			return p, true
		}
	}
	return Participant{}, false
}

func (s *Session) IsCreator(id Identity) bool {
	return id.UserID != "" && s.CreatedBy == id.UserID
}

// IsMember covers the creator and every invitee regardless of response.
func (s *Session) IsMember(id Identity) bool {
	if s.IsCreator(id) {
		return true
	}
	_, ok := s.Participant(id.Email)
	return ok
}

// CanAttachFiles allows the creator and accepted invitees.
func (s *Session) CanAttachFiles(id Identity) bool {
	if s.IsCreator(id) {
		return true
	}
	p, ok := s.Participant(id.Email)
	return ok && p.Status == ParticipantAccepted
}

// ActiveInvitees counts invitees that have not rejected, skipping the given email.
func (s *Session) ActiveInvitees(excludeEmail string) int {
	n := 0
	for _, p := range s.Users {
		if excludeEmail != "" && strings.EqualFold(p.Email, excludeEmail) {
			continue
		}
		if p.Status != ParticipantRejected {
			n++
		}
	}
	return n
}

// Overlaps reports whether [StartAt, EndAt) intersects [from, to).
func (s *Session) Overlaps(from, to time.Time) bool {
	return s.StartAt.Before(to) && s.EndAt.After(from)
}

func (s *Session) ActiveAt(now time.Time) bool {
	return !s.StartAt.After(now) && s.EndAt.After(now)
}

// SessionFilter narrows session listings. Zero values mean no constraint.
type SessionFilter struct {
	From     *time.Time
	To       *time.Time
	ActiveAt *time.Time

	// MemberID/MemberEmail restrict results to sessions created by or inviting the caller.
	MemberID    string
	MemberEmail string
}

func (f SessionFilter) Matches(s *Session) bool {
	if f.From != nil && f.To != nil && !s.Overlaps(*f.From, *f.To) {
		return false
	}
	if f.ActiveAt != nil && !s.ActiveAt(*f.ActiveAt) {
		return false
	}
	if f.MemberID == "" && f.MemberEmail == "" {
		return true
	}
	creator := f.MemberID != "" && s.CreatedBy == f.MemberID
	_, invited := s.Participant(f.MemberEmail)
	return creator || (f.MemberEmail != "" && invited)
}

const (
	dateLayout  = "2006-01-02"
	monthLayout = "2006-01"
	clockLayout = "15:04"
)

// ParseSchedule combines a YYYY-MM-DD date and an HH:MM time in loc.
func ParseSchedule(date, clock string, loc *time.Location) (time.Time, error) {
	date, clock = strings.TrimSpace(date), strings.TrimSpace(clock)
	if clock == "" {
		clock = "00:00"
	}
	t, err := time.ParseInLocation(dateLayout+" "+clockLayout, date+" "+clock, loc)
	if err != nil {
		return time.Time{}, WrapError(ErrInvalidInput, "parse schedule", fmt.Errorf("date %q time %q: %w", date, clock, err))
	}
	return t, nil
}

// DayWindow returns [00:00, next day 00:00) for a YYYY-MM-DD date in loc.
func DayWindow(date string, loc *time.Location) (time.Time, time.Time, error) {
	start, err := time.ParseInLocation(dateLayout, strings.TrimSpace(date), loc)
	if err != nil {
		return time.Time{}, time.Time{}, WrapError(ErrInvalidInput, "parse date", err)
	}
	return start, start.AddDate(0, 0, 1), nil
}

// MonthWindow accepts YYYY-MM or YYYY-MM-DD and returns the enclosing month.
func MonthWindow(date string, loc *time.Location) (time.Time, time.Time, error) {
	date = strings.TrimSpace(date)
	layout := monthLayout
	if len(date) > len(monthLayout) {
		layout = dateLayout
	}
	day, err := time.ParseInLocation(layout, date, loc)
	if err != nil {
		return time.Time{}, time.Time{}, WrapError(ErrInvalidInput, "parse month", err)
	}
	start := time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 1, 0), nil
}

// NormalizeEmails trims, lowercases and de-duplicates, dropping the skip address.
func NormalizeEmails(emails []string, skip string) []string {
	seen := make(map[string]struct{}, len(emails))
	out := make([]string, 0, len(emails))
	skip = strings.ToLower(strings.TrimSpace(skip))
	for _, e := range emails {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" || e == skip {
			continue
		}
		if _, dup := seen[e]; dup {
			continue
		}
		seen[e] = struct{}{}
		out = append(out, e)
	}
	return out
}

// NewSession is the createSession input before schedule parsing.
type NewSession struct {
	SessionName   string
	NotaryField   NotarizationField
	NotaryService NotarizationService
	StartDate     string
	StartTime     string
	EndDate       string
	EndTime       string
	Users         []string
}

// ParseJoinAction maps accept/reject onto the invitee status.
func ParseJoinAction(raw string) (ParticipantStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "accept", string(ParticipantAccepted):
		return ParticipantAccepted, true
	case "reject", string(ParticipantRejected):
		return ParticipantRejected, true
	default:
		return "", false
	}
}
