package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/kpi-cli/internal/config"
	"github.com/sells-group/kpi-cli/internal/resilience"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertUploadFailureRate AlertType = "upload_failure_rate"
	AlertInvalidUploads    AlertType = "invalid_uploads"
)

// minFinishedForRate keeps a single early failure from tripping the rate alert.
const minFinishedForRate = 5

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates an UploadSnapshot against configured thresholds
// and posts alerts to a webhook when thresholds are breached.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
	retry  resilience.RetryConfig
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	retry := resilience.DefaultRetryConfig()
	retry.ShouldRetry = retryWebhook
	retry.OnRetry = resilience.RetryLogger("alert webhook")
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		retry:  retry,
	}
}

// Evaluate checks the snapshot against thresholds and returns any alerts.
func (a *Alerter) Evaluate(snap *UploadSnapshot) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	finished := snap.Complete + snap.Failed
	if finished >= minFinishedForRate && snap.FailRate > a.cfg.FailureRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertUploadFailureRate,
			Severity: "high",
			Message: fmt.Sprintf(
				"Upload failure rate %.1f%% exceeds threshold %.1f%% (%d failed / %d finished in last %dh)",
				snap.FailRate*100, a.cfg.FailureRateThreshold*100,
				snap.Failed, finished, snap.LookbackHours,
			),
			Details: map[string]any{
				"failure_rate": snap.FailRate,
				"threshold":    a.cfg.FailureRateThreshold,
				"failed":       snap.Failed,
				"finished":     finished,
			},
			Timestamp: now,
		})
	}

	if snap.InvalidUploads > 0 {
		alerts = append(alerts, Alert{
			Type:     AlertInvalidUploads,
			Severity: "medium",
			Message: fmt.Sprintf(
				"%d upload(s) stored data that failed validation in last %dh",
				snap.InvalidUploads, snap.LookbackHours,
			),
			Details: map[string]any{
				"invalid_uploads": snap.InvalidUploads,
				"complete":        snap.Complete,
			},
			Timestamp: now,
		})
	}

	return alerts
}

// WebhookPayload is the body posted to the alert webhook.
type WebhookPayload struct {
	Service string  `json:"service"`
	Alerts  []Alert `json:"alerts"`
}

// webhookStatusError is a non-2xx webhook response. 5xx is retried.
type webhookStatusError struct{ status int }

func (e *webhookStatusError) Error() string {
	return fmt.Sprintf("monitoring: webhook returned status %d", e.status)
}

// SendAlerts posts all alerts in one webhook call and returns how many were
// delivered: len(alerts) on success, otherwise 0.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	payload, err := json.Marshal(WebhookPayload{Service: "kpi-cli", Alerts: alerts})
	if err != nil {
		zap.L().Error("monitoring: marshal alerts", zap.Error(err))
		return 0
	}

	err = resilience.Do(ctx, a.retry, func(ctx context.Context) error {
		return a.post(ctx, payload)
	})
	if err != nil {
		zap.L().Error("monitoring: failed to send alerts",
			zap.Int("alerts", len(alerts)),
			zap.Error(err),
		)
		return 0
	}
	return len(alerts)
}

func (a *Alerter) post(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return resilience.NewTransientError(eris.Wrap(err, "monitoring: webhook request"))
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return &webhookStatusError{status: resp.StatusCode}
	}
	return nil
}

func retryWebhook(err error) bool {
	var se *webhookStatusError
	if errors.As(err, &se) {
		return se.status >= 500
	}
	return resilience.IsTransient(err)
}
