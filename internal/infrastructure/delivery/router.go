// Package delivery routes out-of-band messages to email or SMS by identity shape.
package delivery

import (
	"context"
	"errors"
	"fmt"

	"github.com/facevote-api/internal/infrastructure/smtp"
	"github.com/facevote-api/internal/infrastructure/sns"
	"github.com/facevote-api/internal/pkg/identity"
)

var ErrNoChannel = errors.New("no delivery channel for identity")

// Router implements sendMessage(identity, subject, body).
type Router struct {
	mailer smtp.Mailer
	sms    sns.SMSSender
}

// NewRouter builds a Router. sms may be nil when SNS is unavailable; phone
// identities then fail with ErrNoChannel.
func NewRouter(mailer smtp.Mailer, sms sns.SMSSender) *Router {
	return &Router{mailer: mailer, sms: sms}
}

func (r *Router) SendMessage(ctx context.Context, to, subject, body string) error {
	if identity.IsPhone(to) {
		if r.sms == nil {
			return fmt.Errorf("sms to %s: %w", identity.Mask(to), ErrNoChannel)
		}
		return r.sms.SendSMS(ctx, to, body)
	}
	if r.mailer == nil {
		return fmt.Errorf("email to %s: %w", identity.Mask(to), ErrNoChannel)
	}
	return r.mailer.SendEmail(ctx, to, subject, body)
}
