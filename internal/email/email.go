// Package email delivers transactional mail through the SendGrid v3
// API. Transient failures are retried a bounded number of times with
// linearly increasing backoff.
package email

import (
	"context"
	"errors"
)

// ErrDeliveryFailed is returned once every retry attempt has been
// exhausted. Callers treat it as non-fatal for flows where the mail is
// best effort.
var ErrDeliveryFailed = errors.New("email: delivery failed")

// Sender delivers transactional mail.
type Sender interface {
	// SendEmailConfirmation mails the address-confirmation link.
	SendEmailConfirmation(ctx context.Context, to, callbackURL string) error
	// SendPasswordReset mails the password-reset link.
	SendPasswordReset(ctx context.Context, to, callbackURL string) error
	// Send delivers an arbitrary HTML message.
	Send(ctx context.Context, to, subject, htmlBody string) error
}
