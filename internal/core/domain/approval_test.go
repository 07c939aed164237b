package domain

import (
	"testing"
	"time"
)

func TestFullyApprovedIsCommutative(t *testing.T) {
	at := time.Date(2024, 10, 10, 14, 0, 0, 0, time.UTC)
	orders := [][]ApprovalParty{
		{PartyUser, PartySecretary},
		{PartySecretary, PartyUser},
	}
	for _, order := range orders {
		a := &SignatureApproval{}
		a.Approve(order[0], ApprovalAttachment{}, at)
		if a.FullyApproved() {
			t.Fatalf("order %v: single approval must not be fully approved", order)
		}
		a.Approve(order[1], ApprovalAttachment{}, at.Add(time.Minute))
		if !a.FullyApproved() {
			t.Fatalf("order %v: expected fully approved", order)
		}
	}
}

func TestApproveIsIdempotentPerParty(t *testing.T) {
	first := time.Date(2024, 10, 10, 14, 0, 0, 0, time.UTC)
	a := &SignatureApproval{}
	if !a.Approve(PartyUser, ApprovalAttachment{}, first) {
		t.Fatalf("first approval must change the record")
	}
	if a.Approve(PartyUser, ApprovalAttachment{}, first.Add(time.Hour)) {
		t.Fatalf("re-approval must be a no-op")
	}
	if !a.ApprovalStatus.User.ApprovedAt.Equal(first) {
		t.Fatalf("re-approval must keep the original timestamp, got %v", a.ApprovalStatus.User.ApprovedAt)
	}
}

func TestApproveAttachesOnlyOnce(t *testing.T) {
	at := time.Now().UTC()
	amount, other := 150.0, 999.0
	a := &SignatureApproval{}
	a.Approve(PartyUser, ApprovalAttachment{Amount: &amount, SignatureImage: "sig-1.png"}, at)
	a.Approve(PartySecretary, ApprovalAttachment{Amount: &other, SignatureImage: "sig-2.png"}, at)

	if a.Amount == nil || *a.Amount != 150 {
		t.Fatalf("expected first amount to stick, got %v", a.Amount)
	}
	if a.SignatureImage != "sig-1.png" {
		t.Fatalf("expected first signature image to stick, got %s", a.SignatureImage)
	}
}

func TestFullyApprovedNil(t *testing.T) {
	var a *SignatureApproval
	if a.FullyApproved() {
		t.Fatalf("nil approval must not be fully approved")
	}
}
