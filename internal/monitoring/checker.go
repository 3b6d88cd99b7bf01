package monitoring

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/claimsift/claimsift/internal/config"
)

// defaultCheckInterval spaces sweeps when the config leaves the interval
// unset.
const defaultCheckInterval = 5 * time.Minute

// Checker sweeps pipeline health on a timer and pushes any threshold
// breaches through the alerter. The API server runs one per process.
type Checker struct {
	collector *Collector
	alerter   *Alerter
	cfg       config.MonitoringConfig
	log       *zap.Logger
}

// NewChecker wires a collector and an alerter into a background sweep loop.
func NewChecker(collector *Collector, alerter *Alerter, cfg config.MonitoringConfig) *Checker {
	return &Checker{
		collector: collector,
		alerter:   alerter,
		cfg:       cfg,
		log:       zap.L().With(zap.String("component", "monitoring.checker")),
	}
}

func (c *Checker) interval() time.Duration {
	if c.cfg.CheckIntervalSecs > 0 {
		return time.Duration(c.cfg.CheckIntervalSecs) * time.Second
	}
	return defaultCheckInterval
}

// Run blocks until ctx is canceled. The first sweep happens right away so a
// freshly started server surfaces existing problems without waiting out a
// full interval.
func (c *Checker) Run(ctx context.Context) {
	interval := c.interval()
	c.log.Info("health checker started",
		zap.Duration("interval", interval),
		zap.Int("lookback_hours", c.cfg.LookbackWindowHours),
	)

	c.sweep(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			c.log.Info("health checker stopped")
			return
		case <-ticker.C:
			c.sweep(ctx)
		}
	}
}

// sweep collects one snapshot and sends whatever alerts it trips.
func (c *Checker) sweep(ctx context.Context) {
	snap, err := c.collector.Collect(ctx, c.cfg.LookbackWindowHours)
	if err != nil {
		if ctx.Err() == nil {
			c.log.Error("health sweep failed", zap.Error(err))
		}
		return
	}

	alerts := c.alerter.Evaluate(snap)
	if len(alerts) == 0 {
		c.log.Debug("health sweep clean")
		return
	}

	sent := c.alerter.SendAlerts(ctx, alerts)
	c.log.Warn("health sweep tripped alerts",
		zap.Int("triggered", len(alerts)),
		zap.Int("sent", sent),
	)
}
