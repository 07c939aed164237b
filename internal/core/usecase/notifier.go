package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kirillkom/notarization-api/internal/core/domain"
	"github.com/kirillkom/notarization-api/internal/core/ports"
)

// Notifier turns workflow events into queued emails. A nil queue disables it.
type Notifier struct {
	queue ports.NotificationQueue
}

func NewNotifier(queue ports.NotificationQueue) *Notifier {
	return &Notifier{queue: queue}
}

func (n *Notifier) DocumentReceived(ctx context.Context, doc *domain.Document) error {
	return n.publish(ctx, domain.EmailMessage{
		Kind:      domain.EmailDocumentReceived,
		To:        recipients(doc.NotificationEmail()),
		Subject:   "Notarization request received",
		Body:      fmt.Sprintf("Your notarization request %s with %d file(s) was received and is pending review.", doc.ID, len(doc.Files)),
		RelatedID: doc.ID,
	})
}

func (n *Notifier) DocumentStatusChanged(ctx context.Context, doc *domain.Document, feedback string) error {
	body := fmt.Sprintf("Your notarization request %s is now %s.", doc.ID, doc.Status)
	if feedback != "" {
		body += "\n\nFeedback: " + feedback
	}
	return n.publish(ctx, domain.EmailMessage{
		Kind:      domain.EmailDocumentStatus,
		To:        recipients(doc.NotificationEmail()),
		Subject:   fmt.Sprintf("Notarization request %s", doc.Status),
		Body:      body,
		RelatedID: doc.ID,
	})
}

func (n *Notifier) SessionInvitation(ctx context.Context, s *domain.Session, emails []string) error {
	return n.publish(ctx, domain.EmailMessage{
		Kind:    domain.EmailSessionInvitation,
		To:      recipients(emails...),
		Subject: fmt.Sprintf("Invitation to notarization session %q", s.SessionName),
		Body: fmt.Sprintf(
			"You were invited to the notarization session %q from %s to %s (UTC). Open session %s to accept or reject.",
			s.SessionName, s.StartAt.UTC().Format(time.RFC3339), s.EndAt.UTC().Format(time.RFC3339), s.ID,
		),
		RelatedID: s.ID,
	})
}

func (n *Notifier) SessionSubmitted(ctx context.Context, s *domain.Session) error {
	return n.publish(ctx, domain.EmailMessage{
		Kind:      domain.EmailSessionSubmitted,
		To:        recipients(s.CreatorEmail),
		Subject:   fmt.Sprintf("Session %q sent for notarization", s.SessionName),
		Body:      fmt.Sprintf("Session %s was submitted with %d file(s). Tracking document: %s.", s.ID, len(s.Files), s.DocumentID),
		RelatedID: s.ID,
	})
}

func (n *Notifier) publish(ctx context.Context, msg domain.EmailMessage) error {
	if n == nil || n.queue == nil || len(msg.To) == 0 {
		return nil
	}
	msg.QueuedAt = time.Now().UTC()
	if err := n.queue.PublishEmail(ctx, msg); err != nil {
		return domain.WrapError(domain.ErrNotification, "queue "+string(msg.Kind)+" email", err)
	}
	return nil
}

func recipients(emails ...string) []string {
	out := make([]string, 0, len(emails))
	for _, e := range emails {
		if e = strings.TrimSpace(e); e != "" {
			out = append(out, e)
		}
	}
	return out
}
