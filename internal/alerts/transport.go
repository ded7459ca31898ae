package alerts

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// LogTransport writes every alert as a structured log line. This is the
// default transport and always available regardless of configuration.
type LogTransport struct {
	log zerolog.Logger
}

// NewLogTransport builds a transport that logs through log.
func NewLogTransport(log zerolog.Logger) *LogTransport {
	return &LogTransport{log: log}
}

// Send implements Transport.
func (t *LogTransport) Send(a Alert) error {
	event := t.log.Info()
	if a.Severity == SeverityCritical {
		event = t.log.Error()
	} else if a.Severity == SeverityWarning {
		event = t.log.Warn()
	}
	event.Str("alert_key", a.Key).Str("severity", string(a.Severity)).Msg(a.Message)
	return nil
}

// WebhookTransport posts an alert as JSON to a configured URL — the
// messenger-push/chart-rendering integration spec.md leaves out of scope,
// reduced to a generic opaque-payload POST.
type WebhookTransport struct {
	url    string
	client *http.Client
}

// NewWebhookTransport builds a transport posting to url with timeout.
func NewWebhookTransport(url string, timeout time.Duration) *WebhookTransport {
	return &WebhookTransport{url: url, client: &http.Client{Timeout: timeout}}
}

type webhookBody struct {
	Key      string `json:"key"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
}

// Send implements Transport.
func (t *WebhookTransport) Send(a Alert) error {
	body, err := json.Marshal(webhookBody{Key: a.Key, Severity: string(a.Severity), Message: a.Message})
	if err != nil {
		return fmt.Errorf("marshal alert payload: %w", err)
	}
	resp, err := t.client.Post(t.url, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("post alert: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// MultiTransport fans an alert out to every wrapped transport, continuing
// past individual failures and returning the first error encountered (if
// any) for logging purposes only — no transport's failure blocks another.
type MultiTransport struct {
	transports []Transport
}

// NewMultiTransport wraps transports for fan-out delivery.
func NewMultiTransport(transports ...Transport) *MultiTransport {
	return &MultiTransport{transports: transports}
}

// Send implements Transport.
func (m *MultiTransport) Send(a Alert) error {
	var firstErr error
	for _, t := range m.transports {
		if err := t.Send(a); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
