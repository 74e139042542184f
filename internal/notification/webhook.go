package notification

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Webhook request headers
const (
	HeaderEvent     = "X-Tracklog-Event"
	HeaderDelivery  = "X-Tracklog-Delivery"
	HeaderSignature = "X-Tracklog-Signature"
)

const defaultWebhookElapsed = 30 * time.Second

// webhookSender POSTs the event as JSON. 5xx responses and transport
// errors are retried with exponential backoff; 4xx responses are final.
type webhookSender struct {
	url        string
	secret     string
	timeout    time.Duration
	maxElapsed time.Duration
	client     *http.Client
}

func newWebhookSender(rc RouteConfig, client *http.Client) *webhookSender {
	s := &webhookSender{
		url:        rc.URL,
		secret:     rc.Secret,
		timeout:    rc.Timeout.Duration,
		maxElapsed: rc.MaxElapsed.Duration,
		client:     client,
	}
	if s.maxElapsed <= 0 {
		s.maxElapsed = defaultWebhookElapsed
	}
	return s
}

func (s *webhookSender) newBackoff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 200 * time.Millisecond
	bo.MaxInterval = 5 * time.Second
	bo.MaxElapsedTime = s.maxElapsed
	return bo
}

func (s *webhookSender) Send(ctx context.Context, ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	return backoff.Retry(func() error {
		return s.post(ctx, ev, body)
	}, backoff.WithContext(s.newBackoff(), ctx))
}

func (s *webhookSender) post(ctx context.Context, ev Event, body []byte) error {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderEvent, string(ev.Kind))
	req.Header.Set(HeaderDelivery, ev.ID)
	if s.secret != "" {
		req.Header.Set(HeaderSignature, "sha256="+Sign(s.secret, body))
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		err := fmt.Errorf("webhook returned status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
		if resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return backoff.Permanent(err)
		}
		return err
	}
	return nil
}

// Sign returns the hex HMAC-SHA256 of body under secret, as sent in the
// signature header.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
