package domain

import "time"

type SubjectKind string

const (
	SubjectDocument SubjectKind = "document"
	SubjectSession  SubjectKind = "session"
)

// ApprovalSubject identifies what a signature approval belongs to.
type ApprovalSubject struct {
	Kind SubjectKind `json:"kind"`
	ID   string      `json:"id"`
}

type ApprovalParty string

const (
	PartyUser      ApprovalParty = "user"
	PartySecretary ApprovalParty = "secretary"
)

type PartyApproval struct {
	Approved   bool       `json:"approved"`
	ApprovedAt *time.Time `json:"approvedAt,omitempty"`
}

type ApprovalStatus struct {
	User      PartyApproval `json:"user"`
	Secretary PartyApproval `json:"secretary"`
}

// ApprovalAttachment carries the optional data attached on first approval.
type ApprovalAttachment struct {
	Amount         *float64
	SignatureImage string
}

type SignatureApproval struct {
	ID             string          `json:"id"`
	Subject        ApprovalSubject `json:"subject"`
	Amount         *float64        `json:"amount,omitempty"`
	SignatureImage string          `json:"signatureImage,omitempty"`
	ApprovalStatus ApprovalStatus  `json:"approvalStatus"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

func (a *SignatureApproval) Half(party ApprovalParty) PartyApproval {
	if party == PartySecretary {
		return a.ApprovalStatus.Secretary
	}
	return a.ApprovalStatus.User
}

// Approve sets one half and fills empty attachments. It reports whether anything changed.
func (a *SignatureApproval) Approve(party ApprovalParty, attach ApprovalAttachment, at time.Time) bool {
	half := &a.ApprovalStatus.User
	if party == PartySecretary {
		half = &a.ApprovalStatus.Secretary
	}
	if half.Approved {
		return false
	}
	stamp := at
	half.Approved = true
	half.ApprovedAt = &stamp
	if a.Amount == nil && attach.Amount != nil {
		amount := *attach.Amount
		a.Amount = &amount
	}
	if a.SignatureImage == "" {
		a.SignatureImage = attach.SignatureImage
	}
	a.UpdatedAt = at
	return true
}

// FullyApproved is order independent: both halves must be approved.
func FullyApproved(s ApprovalStatus) bool {
	return s.User.Approved && s.Secretary.Approved
}

func (a *SignatureApproval) FullyApproved() bool {
	return a != nil && FullyApproved(a.ApprovalStatus)
}
