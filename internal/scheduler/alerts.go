package scheduler

import (
	"context"
	"log"
	"log/slog"
	"time"

	"cryptopulse/internal/logger"
	"cryptopulse/internal/matcher"
	"cryptopulse/internal/metrics"
)

// CycleRunner is one matcher pass.
type CycleRunner interface {
	RunCycle(ctx context.Context) (matcher.CycleReport, error)
}

// AlertLoop runs the matcher on a fixed interval.
type AlertLoop struct {
	m          CycleRunner
	interval   time.Duration
	retryDelay time.Duration
	health     *metrics.HealthStatus

	wait func(ctx context.Context, d time.Duration) bool
}

// NewAlertLoop clamps interval to 10s..60s. health may be nil.
func NewAlertLoop(m CycleRunner, interval, retryDelay time.Duration, health *metrics.HealthStatus) *AlertLoop {
	if retryDelay <= 0 {
		retryDelay = 5 * time.Second
	}
	return &AlertLoop{
		m:          m,
		interval:   ClampAlertInterval(interval),
		retryDelay: retryDelay,
		health:     health,
		wait:       sleepCtx,
	}
}

// Interval is the effective loop period.
func (l *AlertLoop) Interval() time.Duration { return l.interval }

// Run evaluates alerts immediately, then every interval, until ctx is cancelled.
func (l *AlertLoop) Run(ctx context.Context) {
	log.Printf("[scheduler] alert loop started: every %s", l.interval)
	for {
		delay := l.interval
		if err := guard("alert cycle", func() error { return l.cycle(ctx) }); err != nil {
			log.Printf("[scheduler] alert cycle: %v", err)
			delay = l.retryDelay
		}
		if !l.wait(ctx, delay) {
			log.Printf("[scheduler] alert loop stopped")
			return
		}
	}
}

func (l *AlertLoop) cycle(ctx context.Context) error {
	now := time.Now()
	ctx = logger.StartCycle(ctx, "alerts", now)
	report, err := l.m.RunCycle(ctx)
	if err != nil {
		return err
	}
	if l.health != nil {
		l.health.SetLastAlertCycle(now)
	}
	if report.Evaluated > 0 {
		slog.Info("alert cycle complete", append(logger.LogWithTrace(ctx),
			slog.Int("evaluated", report.Evaluated),
			slog.Int("fired", report.Fired),
			slog.Int("skipped", report.Skipped),
			slog.Int("failed", report.Failed),
		)...)
	}
	return nil
}
