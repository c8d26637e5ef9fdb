package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Payload is the webhook POST body.
type Payload struct {
	Source    string  `json:"source"`
	Timestamp string  `json:"timestamp"`
	Events    []Event `json:"events"`
}

// WebhookSink POSTs each event to a URL. When a secret is set the body is
// signed: X-Fitlib-Signature is "sha256=" + hex(HMAC(secret, timestamp + "." + body)).
type WebhookSink struct {
	URL    string
	Secret string
	Client *http.Client
	now    func() time.Time
}

// NewWebhookSink returns a sink posting to url.
func NewWebhookSink(url, secret string) *WebhookSink {
	return &WebhookSink{
		URL:    url,
		Secret: secret,
		Client: &http.Client{Timeout: 10 * time.Second},
		now:    time.Now,
	}
}

// Name implements Sink.
func (w *WebhookSink) Name() string { return "webhook" }

// Close implements Sink.
func (w *WebhookSink) Close() error { return nil }

// Send implements Sink. Any non-2xx status is an error.
func (w *WebhookSink) Send(ctx context.Context, ev Event) error {
	now := w.now().UTC()
	body, err := json.Marshal(Payload{
		Source:    "fitlib",
		Timestamp: now.Format(time.RFC3339),
		Events:    []Event{ev},
	})
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "fitlib-webhook/1")

	unixTS := fmt.Sprintf("%d", now.Unix())
	req.Header.Set("X-Fitlib-Timestamp", unixTS)
	req.Header.Set("X-Fitlib-Event", ev.Type)
	if w.Secret != "" {
		req.Header.Set("X-Fitlib-Signature", "sha256="+Sign(w.Secret, unixTS, body))
	}

	resp, err := w.Client.Do(req)
	if err != nil {
		return fmt.Errorf("POST %s: %w", w.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("POST %s: status %d", w.URL, resp.StatusCode)
	}
	return nil
}

// Sign computes the hex HMAC-SHA256 of timestamp + "." + body.
func Sign(secret, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a signature header produced by WebhookSink. Receivers use it
// to authenticate deliveries.
func Verify(secret, timestamp, header string, body []byte) bool {
	want := "sha256=" + Sign(secret, timestamp, body)
	return hmac.Equal([]byte(want), []byte(header))
}
