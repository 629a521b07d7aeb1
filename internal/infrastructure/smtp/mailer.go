package smtp

import (
	"context"
	"fmt"

	"github.com/facevote-api/internal/config"
	"gopkg.in/gomail.v2"
)

// Mailer sends emails.
type Mailer interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

type mailer struct {
	dialer *gomail.Dialer
	from   string
}

func NewMailer(cfg *config.Config) Mailer {
	return &mailer{
		dialer: gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword),
		from:   cfg.SMTPFrom,
	}
}

func (m *mailer) SendEmail(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)
	if err := m.dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	return nil
}
