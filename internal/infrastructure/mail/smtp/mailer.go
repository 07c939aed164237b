package smtp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"net/textproto"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/notarization-api/internal/core/domain"
	"github.com/kirillkom/notarization-api/internal/infrastructure/resilience"
)

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Mailer delivers queued email events through a plain SMTP relay.
type Mailer struct {
	addr     string
	host     string
	auth     smtp.Auth
	from     string
	send     sendFunc
	executor *resilience.Executor
}

func New(cfg Config, executor *resilience.Executor) (*Mailer, error) {
	if cfg.Host == "" || cfg.From == "" {
		return nil, fmt.Errorf("smtp host and from address are required")
	}
	port := cfg.Port
	if port == 0 {
		port = 587
	}
	m := &Mailer{
		addr:     net.JoinHostPort(cfg.Host, fmt.Sprint(port)),
		host:     cfg.Host,
		from:     cfg.From,
		send:     smtp.SendMail,
		executor: executor,
	}
	if cfg.Username != "" {
		m.auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}
	return m, nil
}

func (m *Mailer) Send(ctx context.Context, msg domain.EmailMessage) error {
	if len(msg.To) == 0 {
		return domain.Errorf(domain.ErrInvalidInput, "send email", "no recipients")
	}
	body := m.compose(msg, time.Now())

	call := func(context.Context) error {
		if err := m.send(m.addr, m.auth, m.from, msg.To, body); err != nil {
			return fmt.Errorf("smtp send: %w", err)
		}
		return nil
	}
	if m.executor != nil {
		return m.executor.Execute(ctx, "smtp.send", call, classifySMTPError)
	}
	return call(ctx)
}

func (m *Mailer) compose(msg domain.EmailMessage, at time.Time) []byte {
	var buf bytes.Buffer
	header := textproto.MIMEHeader{}
	header.Set("From", m.from)
	header.Set("To", strings.Join(msg.To, ", "))
	header.Set("Subject", mime.QEncoding.Encode("utf-8", msg.Subject))
	header.Set("Date", at.UTC().Format(time.RFC1123Z))
	header.Set("Message-ID", fmt.Sprintf("<%s@%s>", uuid.NewString(), m.host))
	header.Set("MIME-Version", "1.0")
	header.Set("Content-Type", "text/plain; charset=utf-8")
	header.Set("Content-Transfer-Encoding", "8bit")
	if msg.RelatedID != "" {
		header.Set("X-Notarization-Ref", msg.RelatedID)
	}
	for _, key := range []string{"From", "To", "Subject", "Date", "Message-ID", "MIME-Version", "Content-Type", "Content-Transfer-Encoding", "X-Notarization-Ref"} {
		if v := header.Get(key); v != "" {
			fmt.Fprintf(&buf, "%s: %s\r\n", key, v)
		}
	}
	buf.WriteString("\r\n")
	buf.WriteString(strings.ReplaceAll(msg.Body, "\n", "\r\n"))
	buf.WriteString("\r\n")
	return buf.Bytes()
}

// 4xx replies are transient in SMTP; 5xx are permanent.
var classifySMTPError = resilience.TransientClassifier(func(err error) bool {
	var protoErr *textproto.Error
	if errors.As(err, &protoErr) {
		return protoErr.Code >= 400 && protoErr.Code < 500
	}
	var netErr net.Error
	return errors.As(err, &netErr)
})
