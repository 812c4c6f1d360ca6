package email

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"collabdoc.org/internal/obs"
)

const defaultEndpoint = "https://api.sendgrid.com/v3/mail/send"

// errPermanent marks delivery failures retrying cannot cure, such as a
// rejected API key or a malformed payload.
var errPermanent = errors.New("permanent delivery failure")

var _ Sender = (*SendGridClient)(nil)

// SendGridClient is a Sender backed by the SendGrid v3 mail/send API.
type SendGridClient struct {
	apiKey     string
	fromEmail  string
	fromName   string
	retryCount int
	retryDelay time.Duration
	sandbox    bool
	endpoint   string
	client     *http.Client
}

// ClientOption customizes a SendGridClient.
type ClientOption func(*SendGridClient)

// WithEndpoint overrides the API endpoint, used in tests.
func WithEndpoint(url string) ClientOption {
	return func(c *SendGridClient) { c.endpoint = url }
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *SendGridClient) { c.client = client }
}

// NewSendGridClient builds a mail client. retryCount is the total
// number of attempts; retryDelay is multiplied by the attempt number
// between tries.
func NewSendGridClient(apiKey, fromEmail, fromName string, retryCount int, retryDelay time.Duration, sandbox bool, opts ...ClientOption) *SendGridClient {
	if retryCount < 1 {
		retryCount = 1
	}
	c := &SendGridClient{
		apiKey:     apiKey,
		fromEmail:  fromEmail,
		fromName:   fromName,
		retryCount: retryCount,
		retryDelay: retryDelay,
		sandbox:    sandbox,
		endpoint:   defaultEndpoint,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *SendGridClient) SendEmailConfirmation(ctx context.Context, to, callbackURL string) error {
	return c.Send(ctx, to, "Confirm your email", confirmationBody(callbackURL))
}

func (c *SendGridClient) SendPasswordReset(ctx context.Context, to, callbackURL string) error {
	return c.Send(ctx, to, "Reset your password", passwordResetBody(callbackURL))
}

// Send posts the message, retrying with linear backoff until the
// attempt budget runs out.
func (c *SendGridClient) Send(ctx context.Context, to, subject, htmlBody string) error {
	payload, err := json.Marshal(c.message(to, subject, htmlBody))
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= c.retryCount; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.retryDelay * time.Duration(attempt-1)):
			}
		}
		if lastErr = c.post(ctx, payload); lastErr == nil {
			return nil
		}
		obs.Logger().Printf(`{"type":"email","msg":"send attempt failed","attempt":%d,"error":%q}`, attempt, lastErr.Error())
		if errors.Is(lastErr, errPermanent) {
			return fmt.Errorf("%w: %v", ErrDeliveryFailed, lastErr)
		}
	}
	return fmt.Errorf("%w after %d attempts: %v", ErrDeliveryFailed, c.retryCount, lastErr)
}

func (c *SendGridClient) post(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		// 4xx other than 429 will fail the same way on every retry.
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return fmt.Errorf("%w: sendgrid responded %d: %s", errPermanent, resp.StatusCode, bytes.TrimSpace(body))
		}
		return fmt.Errorf("sendgrid responded %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}
	return nil
}

func (c *SendGridClient) message(to, subject, htmlBody string) map[string]any {
	return map[string]any{
		"personalizations": []map[string]any{
			{"to": []map[string]string{{"email": to}}},
		},
		"from": map[string]string{
			"email": c.fromEmail,
			"name":  c.fromName,
		},
		"subject": subject,
		"content": []map[string]string{
			{"type": "text/html", "value": htmlBody},
		},
		"mail_settings": map[string]any{
			"sandbox_mode": map[string]bool{"enable": c.sandbox},
		},
		"tracking_settings": map[string]any{
			"click_tracking": map[string]bool{"enable": false},
			"open_tracking":  map[string]bool{"enable": false},
		},
	}
}
