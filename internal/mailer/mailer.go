// Package mailer is the outbound side: a Transport interface the
// engine hands fully formed messages to, and a net/smtp implementation
// of it. It also builds the engine's own control and acknowledgement
// messages, which carry the control marker so they are never
// re-ingested as regular input.
package mailer

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"github.com/gsliepen/lightbts/internal/mail"
)

// Transport sends a fully formed message to a recipient list.
// Implementations do not retry; failures propagate to the caller.
type Transport interface {
	Send(ctx context.Context, from string, to []string, raw []byte) error
}

// SMTP sends through a single SMTP host.
type SMTP struct {
	Host string // host or host:port; port 25 is assumed when absent
}

// Send implements Transport.
func (s *SMTP) Send(_ context.Context, from string, to []string, raw []byte) error {
	addr := s.Host
	if !strings.Contains(addr, ":") {
		addr += ":25"
	}
	sender := bareAddress(from)
	recipients := make([]string, len(to))
	for i, t := range to {
		recipients[i] = bareAddress(t)
	}
	if err := smtp.SendMail(addr, nil, sender, recipients, raw); err != nil {
		return fmt.Errorf("send via %s: %w", addr, err)
	}
	return nil
}

func bareAddress(addr string) string {
	if i := strings.LastIndex(addr, "<"); i >= 0 {
		if j := strings.Index(addr[i:], ">"); j > 0 {
			return addr[i+1 : i+j]
		}
	}
	return strings.TrimSpace(addr)
}

// Discard is a Transport that drops everything, used when email is
// disabled.
type Discard struct{}

// Send implements Transport.
func (Discard) Send(context.Context, string, []string, []byte) error { return nil }

// BuildControl constructs an engine-generated message: an
// acknowledgement or an action carried as a reply into an existing
// thread. The control marker keeps it out of the ingestion path.
func BuildControl(project, from, to, subject, inReplyTo, body string) *mail.Message {
	m := mail.New()
	m.SetBody(body)
	m.SetHeader(mail.HeaderDate, time.Now().Format(time.RFC1123Z))
	if inReplyTo != "" {
		m.SetHeader(mail.HeaderInReplyTo, mail.Quote(inReplyTo))
	}
	m.SetHeader(mail.HeaderControl, "yes")
	m.SetHeader("User-Agent", "LightBTS")
	m.SetHeader(mail.HeaderTo, to)
	m.SetHeader(mail.HeaderFrom, from)
	m.SetHeader(mail.HeaderSubject, subject)
	m.SetHeader(mail.HeaderMessageID, mail.Quote(mail.NewMessageID(project)))
	return m
}
