// Package notify tells tenants about failures they must act on, such as a
// disconnected platform or rejected content.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"

	"github.com/matthewjhunter/crier/internal/logging"
)

// Kinds of notification.
const (
	KindCredentialMissing = "credential_missing"
	KindContentRejected   = "content_rejected"
	KindContentBlocked    = "content_blocked"
)

// Notification is one tenant-facing message.
type Notification struct {
	TenantID string    `json:"tenant_id"`
	Kind     string    `json:"kind"`
	Platform string    `json:"platform,omitempty"`
	QueueID  int64     `json:"queue_id,omitempty"`
	Message  string    `json:"message"`
	At       time.Time `json:"at"`
}

// Notifier is anything that accepts notifications.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// Log writes notifications to the structured log.
type Log struct {
	log logging.Logger
}

func NewLog(log logging.Logger) *Log {
	return &Log{log: log}
}

func (l *Log) Notify(_ context.Context, n Notification) error {
	l.log.WithFields(logging.Fields{
		"tenant_id": n.TenantID,
		"kind":      n.Kind,
		"platform":  n.Platform,
		"queue_id":  n.QueueID,
	}).Warn(truncate(n.Message, 500))
	return nil
}

// Webhook posts notifications as JSON, retrying network errors and 5xx
// responses with backoff.
type Webhook struct {
	url      string
	client   *http.Client
	executor failsafe.Executor[*http.Response]
}

func NewWebhook(url string, client *http.Client) *Webhook {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	retry := retrypolicy.NewBuilder[*http.Response]().
		WithBackoff(200*time.Millisecond, 5*time.Second).
		WithMaxRetries(3).
		WithJitterFactor(0.1).
		HandleIf(func(resp *http.Response, err error) bool {
			if err != nil {
				return true
			}
			return resp != nil && (resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests)
		}).
		Build()
	return &Webhook{url: url, client: client, executor: failsafe.With[*http.Response](retry)}
}

func (w *Webhook) Notify(ctx context.Context, n Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	resp, err := w.executor.WithContext(ctx).Get(func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return w.client.Do(req)
	})
	if err != nil {
		return fmt.Errorf("failed to send notification: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("notification webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// Multi fans a notification out to several notifiers, returning the first
// error after trying all of them.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, n Notification) error {
	var first error
	for _, notifier := range m {
		if err := notifier.Notify(ctx, n); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// truncate truncates a string to maxLen characters
func truncate(s string, maxLen int) string {
	s = strings.TrimSpace(s)
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
