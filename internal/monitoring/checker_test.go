package monitoring

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/claimsift/claimsift/internal/config"
)

func TestChecker_Interval(t *testing.T) {
	c := NewChecker(nil, nil, config.MonitoringConfig{CheckIntervalSecs: 30})
	assert.Equal(t, 30*time.Second, c.interval())

	c = NewChecker(nil, nil, config.MonitoringConfig{})
	assert.Equal(t, defaultCheckInterval, c.interval())
}

func TestChecker_FirstSweepIsImmediate(t *testing.T) {
	var hits atomic.Int32
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer hook.Close()

	cfg := config.MonitoringConfig{
		DLQThreshold:        5,
		WebhookURL:          hook.URL,
		CheckIntervalSecs:   3600, // only the startup sweep can fire
		LookbackWindowHours: 24,
	}
	checker := NewChecker(NewCollector(&fakeStore{dlqCount: 40}), NewAlerter(cfg), cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		checker.Run(ctx)
	}()

	deadline := time.After(5 * time.Second)
	for hits.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("startup sweep never posted an alert")
		case <-time.After(10 * time.Millisecond):
		}
	}
	cancel()
	<-done

	assert.Equal(t, int32(1), hits.Load())
}

func TestChecker_StopsOnCancel(t *testing.T) {
	cfg := config.MonitoringConfig{CheckIntervalSecs: 1, LookbackWindowHours: 24}
	checker := NewChecker(NewCollector(&fakeStore{}), NewAlerter(cfg), cfg)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	done := make(chan struct{})
	go func() {
		defer close(done)
		checker.Run(ctx)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run kept going after cancel")
	}
}
