package domain

import "time"

type EmailKind string

const (
	EmailDocumentReceived   EmailKind = "document_received"
	EmailDocumentStatus     EmailKind = "document_status"
	EmailSessionInvitation  EmailKind = "session_invitation"
	EmailSessionSubmitted   EmailKind = "session_submitted"
	EmailSignatureCompleted EmailKind = "signature_completed"
)

// EmailMessage is the payload queued by the api and delivered by the worker.
type EmailMessage struct {
	Kind      EmailKind `json:"kind"`
	To        []string  `json:"to"`
	Subject   string    `json:"subject"`
	Body      string    `json:"body"`
	RelatedID string    `json:"related_id,omitempty"`
	QueuedAt  time.Time `json:"queued_at"`
}
