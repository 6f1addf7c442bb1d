package scheduler

import (
	"context"
	"log"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"cryptopulse/internal/detector"
	"cryptopulse/internal/logger"
	"cryptopulse/internal/metrics"
	"cryptopulse/internal/model"
)

// PairDetector runs detection for one asset/timeframe.
type PairDetector interface {
	Detect(ctx context.Context, asset string, tf model.Timeframe, env detector.Env) model.Result[[]model.SignalEvent]
}

// Gate decides once per cycle whether short-side rules are suppressed.
type Gate interface {
	Check(ctx context.Context) bool
}

// ScanConfig controls the scan loop.
type ScanConfig struct {
	Assets     []string
	Timeframes []model.Timeframe

	// UnlockTokens are scanned on UnlockTimeframe in addition to the matrix.
	UnlockTokens    []string
	UnlockTimeframe model.Timeframe

	Interval    time.Duration // clock mark spacing
	SettleDelay time.Duration // wait after the mark so the exchange has closed the candle
	PairTimeout time.Duration
	RequestRate float64 // pairs per second
	RetryDelay  time.Duration
}

// DefaultScanConfig scans every 15 minutes, 5s after the mark, at 2 pairs/s.
func DefaultScanConfig() ScanConfig {
	return ScanConfig{
		Assets:          []string{"BTC", "ETH", "SOL", "BNB", "ADA", "XRP", "DOGE"},
		Timeframes:      []model.Timeframe{model.TF1h, model.TF4h},
		UnlockTimeframe: model.TF4h,
		Interval:        15 * time.Minute,
		SettleDelay:     5 * time.Second,
		PairTimeout:     30 * time.Second,
		RequestRate:     2,
		RetryDelay:      5 * time.Second,
	}
}

// ScanReport summarizes one pass over the matrix.
type ScanReport struct {
	Started          time.Time
	Duration         time.Duration
	ShortsSuppressed bool
	OK               int
	Skipped          int
	Failed           int
	Signals          []model.SignalEvent
	Results          map[model.Pair]model.Result[[]model.SignalEvent]
}

// Scanner owns the scan loop.
type Scanner struct {
	cfg     ScanConfig
	det     PairDetector
	gate    Gate
	limiter *rate.Limiter
	metrics *metrics.Metrics
	health  *metrics.HealthStatus

	now  func() time.Time
	wait func(ctx context.Context, d time.Duration) bool
}

// NewScanner wires a scanner. gate, m and health may be nil.
func NewScanner(cfg ScanConfig, det PairDetector, gate Gate, m *metrics.Metrics, health *metrics.HealthStatus) *Scanner {
	def := DefaultScanConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.PairTimeout <= 0 {
		cfg.PairTimeout = def.PairTimeout
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = def.RetryDelay
	}
	if cfg.UnlockTimeframe == "" {
		cfg.UnlockTimeframe = def.UnlockTimeframe
	}
	limit := rate.Inf
	if cfg.RequestRate > 0 {
		limit = rate.Limit(cfg.RequestRate)
	}
	return &Scanner{
		cfg:     cfg,
		det:     det,
		gate:    gate,
		limiter: rate.NewLimiter(limit, 1),
		metrics: m,
		health:  health,
		now:     func() time.Time { return time.Now().UTC() },
		wait:    sleepCtx,
	}
}

// Pairs returns the scan matrix: every asset on every timeframe, then the
// unlock tokens on the unlock timeframe. Duplicates are dropped.
func (s *Scanner) Pairs() []model.Pair {
	seen := make(map[model.Pair]bool)
	var out []model.Pair
	add := func(asset string, tf model.Timeframe) {
		p := model.Pair{Asset: strings.ToUpper(asset), Timeframe: tf}
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	for _, a := range s.cfg.Assets {
		for _, tf := range s.cfg.Timeframes {
			add(a, tf)
		}
	}
	for _, a := range s.cfg.UnlockTokens {
		add(a, s.cfg.UnlockTimeframe)
	}
	return out
}

// RunCycle scans every pair once, sequentially and rate limited.
func (s *Scanner) RunCycle(ctx context.Context) ScanReport {
	start, wall := s.now(), time.Now()
	ctx = logger.StartCycle(ctx, "scan", start)

	report := ScanReport{
		Started: start,
		Results: make(map[model.Pair]model.Result[[]model.SignalEvent]),
	}
	if s.gate != nil {
		report.ShortsSuppressed = s.gate.Check(ctx)
	}
	s.metrics.SetShortsGated(report.ShortsSuppressed)
	env := detector.Env{Now: start, ShortsSuppressed: report.ShortsSuppressed}

	for _, p := range s.Pairs() {
		if err := s.limiter.Wait(ctx); err != nil {
			break
		}
		res := s.scanPair(ctx, p, env)
		report.Results[p] = res

		var types []string
		switch res.Outcome {
		case model.OutcomeOK:
			report.OK++
			report.Signals = append(report.Signals, res.Value...)
			for _, ev := range res.Value {
				types = append(types, string(ev.Type))
			}
		case model.OutcomeSkip:
			report.Skipped++
		case model.OutcomeFatal:
			report.Failed++
			log.Printf("[scheduler] scan %s failed: %v", p, res.Err)
		}
		s.metrics.ObservePair(res.Outcome.String(), types...)
	}

	report.Duration = time.Since(wall)
	s.metrics.ObserveScanCycle(report.Duration)
	if s.health != nil {
		s.health.SetLastScan(s.now())
	}
	slog.Info("scan cycle complete", append(logger.LogWithTrace(ctx),
		slog.Int("ok", report.OK),
		slog.Int("skipped", report.Skipped),
		slog.Int("failed", report.Failed),
		slog.Int("signals", len(report.Signals)),
		slog.Bool("shorts_suppressed", report.ShortsSuppressed),
		slog.Duration("duration", report.Duration),
	)...)
	return report
}

func (s *Scanner) scanPair(ctx context.Context, p model.Pair, env detector.Env) (res model.Result[[]model.SignalEvent]) {
	pctx, cancel := context.WithTimeout(ctx, s.cfg.PairTimeout)
	defer cancel()
	err := guard("scan "+p.String(), func() error {
		res = s.det.Detect(pctx, p.Asset, p.Timeframe, env)
		return nil
	})
	if err != nil {
		return model.Fatal[[]model.SignalEvent](err)
	}
	return res
}

// Run scans on every clock mark until ctx is cancelled.
func (s *Scanner) Run(ctx context.Context) {
	log.Printf("[scheduler] scan loop started: %d pairs every %s (+%s settle)",
		len(s.Pairs()), s.cfg.Interval, s.cfg.SettleDelay)
	for {
		next := NextAligned(s.now(), s.cfg.Interval, s.cfg.SettleDelay)
		if !s.wait(ctx, next.Sub(s.now())) {
			log.Printf("[scheduler] scan loop stopped")
			return
		}
		err := guard("scan cycle", func() error {
			s.RunCycle(ctx)
			return nil
		})
		if err != nil {
			if !s.wait(ctx, s.cfg.RetryDelay) {
				return
			}
		}
	}
}
