package notification

import (
	"context"
	"fmt"

	gomail "gopkg.in/gomail.v2"

	"watchpost/internal/config"
)

// SMTPSender delivers alert emails through the configured outbound
// mail transport.
type SMTPSender struct {
	host string
	port int
	user string
	pass string
	from string
}

// NewSMTPSender creates an email sender from the process-wide alert
// configuration.
func NewSMTPSender(cfg config.AlertConfig) *SMTPSender {
	return &SMTPSender{
		host: cfg.SMTPHost,
		port: cfg.SMTPPort,
		user: cfg.SMTPUser,
		pass: cfg.SMTPPassword,
		from: cfg.EmailFrom,
	}
}

// Configured reports whether the transport has enough configuration to
// attempt a send.
func (s *SMTPSender) Configured() bool {
	return s.host != "" && s.from != ""
}

func (s *SMTPSender) Send(ctx context.Context, msg EmailMessage) error {
	if !s.Configured() {
		return fmt.Errorf("smtp transport not configured")
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/plain", msg.Text)
	if msg.HTML != "" {
		m.AddAlternative("text/html", msg.HTML)
	}

	d := gomail.NewDialer(s.host, s.port, s.user, s.pass)
	if err := d.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send email to %s: %w", msg.To, err)
	}
	return nil
}
