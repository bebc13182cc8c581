// Package mailer sends email over SMTP. It is only ever invoked from
// queued jobs; request handlers never block on delivery.
package mailer

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/hugh/taruvi/pkg/config"
)

// Mailer is the delivery interface the task handlers depend on; tests pass
// a recording fake.
type Mailer interface {
	Send(ctx context.Context, subject, body string, recipients []string) error
}

type SMTPMailer struct {
	cfg config.SMTPConfig
}

func New(cfg config.SMTPConfig) *SMTPMailer {
	return &SMTPMailer{cfg: cfg}
}

func (m *SMTPMailer) Send(ctx context.Context, subject, body string, recipients []string) error {
	if len(recipients) == 0 {
		return fmt.Errorf("no recipients")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := "From: " + m.cfg.From + "\r\n" +
		"To: " + strings.Join(recipients, ",") + "\r\n" +
		"Subject: " + subject + "\r\n" +
		"\r\n" + body

	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}

	if err := smtp.SendMail(m.cfg.Addr(), auth, m.cfg.From, recipients, []byte(msg)); err != nil {
		return fmt.Errorf("sending email: %w", err)
	}
	return nil
}
