package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
)

// Mail sends plain-text alerts over SMTP with STARTTLS-capable auth.
type Mail struct {
	Host      string // host:port
	User      string
	Password  string
	Recipient string
	Subject   string
}

// Send delivers text as a single mail message. Mail is best-effort; it
// shares the Sender interface but performs no retries of its own.
func (m *Mail) Send(ctx context.Context, text string) error {
	var host = m.Host
	if !strings.Contains(host, ":") {
		host += ":587"
	}
	var hostname = host[:strings.Index(host, ":")]

	var body = fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s\r\n",
		m.User, m.Recipient, m.Subject, text)

	var auth = smtp.PlainAuth("", m.User, m.Password, hostname)
	if err := smtp.SendMail(host, auth, m.User, []string{m.Recipient}, []byte(body)); err != nil {
		return fmt.Errorf("sending mail to %s: %w", m.Recipient, err)
	}
	return nil
}

// Fanout sends to every configured sender, returning the first error
// after attempting all of them.
type Fanout []Sender

func (f Fanout) Send(ctx context.Context, text string) error {
	var first error
	for _, s := range f {
		if err := s.Send(ctx, text); err != nil && first == nil {
			first = err
		}
	}
	return first
}
