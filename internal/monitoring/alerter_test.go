package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/claimsift/claimsift/internal/config"
)

func TestAlerter_Evaluate(t *testing.T) {
	cfg := config.MonitoringConfig{
		FailureRateThreshold:     0.10,
		OracleErrorRateThreshold: 0.25,
		DLQThreshold:             25,
	}

	tests := []struct {
		name string
		snap MetricsSnapshot
		want []AlertType
		msg  string
	}{
		{
			name: "healthy window",
			snap: MetricsSnapshot{
				RunsTotal: 100, RunsComplete: 95, RunsFailed: 5, RunFailRate: 0.05,
				OracleAttempts: 200, OracleErrors: 4, OracleErrorRate: 0.02,
				DLQDepth: 3,
			},
		},
		{
			name: "failure rate over threshold",
			snap: MetricsSnapshot{RunsTotal: 20, RunsComplete: 12, RunsFailed: 8, RunFailRate: 0.4},
			want: []AlertType{AlertRunFailureRate},
			msg:  "40.0%",
		},
		{
			name: "oracle degraded",
			snap: MetricsSnapshot{OracleAttempts: 40, OracleErrors: 16, OracleErrorRate: 0.4},
			want: []AlertType{AlertOracleDegraded},
			msg:  "16 errors / 40 attempts",
		},
		{
			name: "dlq backlog",
			snap: MetricsSnapshot{DLQDepth: 30},
			want: []AlertType{AlertDLQBacklog},
			msg:  "30 dead-lettered",
		},
		{
			// Two failures out of three runs is a terrible rate but far
			// too small a sample to page anyone over.
			name: "few finished runs stay quiet",
			snap: MetricsSnapshot{RunsTotal: 3, RunsComplete: 1, RunsFailed: 2, RunFailRate: 0.666},
		},
		{
			name: "few oracle attempts stay quiet",
			snap: MetricsSnapshot{OracleAttempts: 4, OracleErrors: 4, OracleErrorRate: 1.0},
		},
		{
			name: "everything breached at once",
			snap: MetricsSnapshot{
				RunsTotal: 20, RunsComplete: 10, RunsFailed: 10, RunFailRate: 0.5,
				OracleAttempts: 20, OracleErrors: 10, OracleErrorRate: 0.5,
				DLQDepth: 40,
			},
			want: []AlertType{AlertRunFailureRate, AlertOracleDegraded, AlertDLQBacklog},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			snap := tc.snap
			snap.LookbackHours = 24

			alerts := NewAlerter(cfg).Evaluate(&snap)

			var got []AlertType
			for _, a := range alerts {
				got = append(got, a.Type)
			}
			assert.Equal(t, tc.want, got)

			if tc.msg != "" {
				require.Len(t, alerts, 1)
				assert.Contains(t, alerts[0].Message, tc.msg)
			}
		})
	}
}

func TestAlerter_Evaluate_AlertShape(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{DLQThreshold: 10})

	alerts := a.Evaluate(&MetricsSnapshot{DLQDepth: 11, LookbackHours: 6})
	require.Len(t, alerts, 1)

	got := alerts[0]
	assert.Equal(t, severityMedium, got.Severity)
	assert.False(t, got.Timestamp.IsZero())
	assert.Equal(t, 11, got.Details["dlq_depth"])
	assert.Equal(t, 10, got.Details["threshold"])
}

func TestAlerter_SendAlerts_PostsEachAlert(t *testing.T) {
	var received atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var alert Alert
		require.NoError(t, json.NewDecoder(r.Body).Decode(&alert))
		assert.NotEmpty(t, alert.Type)
		received.Add(1)
	}))
	t.Cleanup(srv.Close)

	a := NewAlerter(config.MonitoringConfig{WebhookURL: srv.URL})
	sent := a.SendAlerts(context.Background(), []Alert{
		{Type: AlertRunFailureRate, Severity: severityHigh, Message: "failure rate breach"},
		{Type: AlertDLQBacklog, Severity: severityMedium, Message: "dlq backlog"},
	})

	assert.Equal(t, 2, sent)
	assert.Equal(t, int32(2), received.Load())
}

func TestAlerter_SendAlerts_SkipsWithoutWebhook(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{})

	sent := a.SendAlerts(context.Background(), []Alert{{Type: AlertRunFailureRate}})
	assert.Zero(t, sent)
}

func TestAlerter_SendAlerts_NothingToSend(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{WebhookURL: "http://alerts.internal"})

	assert.Zero(t, a.SendAlerts(context.Background(), nil))
}

func TestAlerter_SendAlerts_CountsOnlyAccepted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	a := NewAlerter(config.MonitoringConfig{WebhookURL: srv.URL})
	sent := a.SendAlerts(context.Background(), []Alert{{Type: AlertOracleDegraded}})

	assert.Zero(t, sent)
}
