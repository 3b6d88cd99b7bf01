package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/claimsift/claimsift/internal/config"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertRunFailureRate AlertType = "run_failure_rate"
	AlertOracleDegraded AlertType = "oracle_degraded"
	AlertDLQBacklog     AlertType = "dlq_backlog"
)

const (
	severityHigh   = "high"
	severityMedium = "medium"

	// Rate alerts stay quiet until the window holds enough samples; one
	// failed run out of two is noise, not an incident.
	minFinishedRuns   = 5
	minOracleAttempts = 10

	webhookTimeout = 10 * time.Second
)

// Alert is one threshold breach, shaped for the webhook payload.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter turns metric snapshots into alerts and posts them to the
// configured webhook.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
}

// NewAlerter builds an Alerter from monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{cfg: cfg, client: &http.Client{Timeout: webhookTimeout}}
}

// Evaluate applies every threshold check to the snapshot and returns the
// breaches, stamped with the evaluation time.
func (a *Alerter) Evaluate(snap *MetricsSnapshot) []Alert {
	checks := []func(*MetricsSnapshot) *Alert{
		a.runFailures,
		a.oracleHealth,
		a.dlqBacklog,
	}

	now := time.Now().UTC()
	var alerts []Alert
	for _, check := range checks {
		if alert := check(snap); alert != nil {
			alert.Timestamp = now
			alerts = append(alerts, *alert)
		}
	}
	return alerts
}

func (a *Alerter) runFailures(snap *MetricsSnapshot) *Alert {
	finished := snap.RunsComplete + snap.RunsFailed
	if finished < minFinishedRuns || snap.RunFailRate <= a.cfg.FailureRateThreshold {
		return nil
	}
	return &Alert{
		Type:     AlertRunFailureRate,
		Severity: severityHigh,
		Message: fmt.Sprintf(
			"Run failure rate %.1f%% exceeds threshold %.1f%% (%d failed / %d finished in last %dh)",
			snap.RunFailRate*100, a.cfg.FailureRateThreshold*100,
			snap.RunsFailed, finished, snap.LookbackHours,
		),
		Details: map[string]any{
			"failure_rate": snap.RunFailRate,
			"threshold":    a.cfg.FailureRateThreshold,
			"failed":       snap.RunsFailed,
			"finished":     finished,
		},
	}
}

func (a *Alerter) oracleHealth(snap *MetricsSnapshot) *Alert {
	if snap.OracleAttempts < minOracleAttempts || snap.OracleErrorRate <= a.cfg.OracleErrorRateThreshold {
		return nil
	}
	return &Alert{
		Type:     AlertOracleDegraded,
		Severity: severityHigh,
		Message: fmt.Sprintf(
			"Oracle error rate %.1f%% exceeds threshold %.1f%% (%d errors / %d attempts in last %dh)",
			snap.OracleErrorRate*100, a.cfg.OracleErrorRateThreshold*100,
			snap.OracleErrors, snap.OracleAttempts, snap.LookbackHours,
		),
		Details: map[string]any{
			"error_rate": snap.OracleErrorRate,
			"threshold":  a.cfg.OracleErrorRateThreshold,
			"errors":     snap.OracleErrors,
			"attempts":   snap.OracleAttempts,
		},
	}
}

func (a *Alerter) dlqBacklog(snap *MetricsSnapshot) *Alert {
	if a.cfg.DLQThreshold <= 0 || snap.DLQDepth <= a.cfg.DLQThreshold {
		return nil
	}
	return &Alert{
		Type:     AlertDLQBacklog,
		Severity: severityMedium,
		Message: fmt.Sprintf(
			"%d dead-lettered check(s) waiting, threshold is %d",
			snap.DLQDepth, a.cfg.DLQThreshold,
		),
		Details: map[string]any{
			"dlq_depth": snap.DLQDepth,
			"threshold": a.cfg.DLQThreshold,
		},
	}
}

// SendAlerts posts each alert to the webhook and returns how many landed.
// A missing webhook URL sends nothing.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		err := a.post(ctx, alert)
		if err != nil {
			zap.L().Error("monitoring: alert delivery failed",
				zap.String("alert", string(alert.Type)),
				zap.Error(err),
			)
			continue
		}
		sent++
		zap.L().Info("monitoring: alert delivered",
			zap.String("alert", string(alert.Type)),
			zap.String("severity", alert.Severity),
		)
	}
	return sent
}

func (a *Alerter) post(ctx context.Context, alert Alert) error {
	body, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: encode alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return eris.Wrap(err, "monitoring: build webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: post alert")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= http.StatusBadRequest {
		return eris.Errorf("monitoring: webhook status %d", resp.StatusCode)
	}
	return nil
}
