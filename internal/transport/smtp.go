package transport

import (
	"context"
	"fmt"

	mail "github.com/go-mail/mail/v2"

	"github.com/ignite/campaign-dispatch/internal/domain"
)

// SMTPAdapter is the supplemented fallback leg: a relay path tried before
// the Gmail adapter when configured, grounded on the original's SMTP
// relay (send_via_smtp). It carries ordinary From/Subject/body sends
// only; SendRaw (full-custom-header mode) is not supported. Not itself
// subject to domain-wide delegation — it authenticates with a single
// relay credential rather than impersonating the sender's principal.
type SMTPAdapter struct {
	dialer *mail.Dialer
}

// NewSMTPAdapter constructs a relay-backed adapter.
func NewSMTPAdapter(host string, port int, username, password string) *SMTPAdapter {
	return &SMTPAdapter{dialer: mail.NewDialer(host, port, username, password)}
}

func (a *SMTPAdapter) IsMailEnabled(ctx context.Context, principal string) (bool, error) {
	return true, nil
}

func (a *SMTPAdapter) SendEmail(ctx context.Context, principal string, task domain.RenderedTask) (string, error) {
	m := mail.NewMessage()
	m.SetHeader("From", fmt.Sprintf("%s <%s>", task.FromName, principal))
	m.SetHeader("To", task.RecipientEmail)
	m.SetHeader("Subject", task.Subject)
	for k, v := range filterCustomHeaders(task.CustomHeaders) {
		m.SetHeader(canonicalHeaderName(k), v)
	}
	if task.BodyPlain != "" {
		m.SetBody("text/plain", task.BodyPlain)
	}
	if task.BodyHTML != "" {
		if task.BodyPlain != "" {
			m.AddAlternative("text/html", task.BodyHTML)
		} else {
			m.SetBody("text/html", task.BodyHTML)
		}
	}

	if err := a.dialer.DialAndSend(m); err != nil {
		return "", &TransportError{Message: err.Error()}
	}
	return "", nil
}

func (a *SMTPAdapter) SendRaw(ctx context.Context, principal string, task domain.RenderedTask) (string, error) {
	// The relay leg has no raw-message API in go-mail/mail; full-custom
	// header sends go to the Gmail adapter directly (see the
	// smtpThenGmail wrapper in cmd/dispatcher).
	return "", fmt.Errorf("transport: smtp adapter does not support full-custom header mode")
}
