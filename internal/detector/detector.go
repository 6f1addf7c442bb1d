// Package detector turns candle series into named signal events.
//
// A Detector fetches candles for one asset/timeframe, drops the still-forming
// last candle, computes the indicator set once and runs every Rule in its
// catalogue against the last closed candle. Every signal that fires is upserted
// into the SignalStore with the close time of that candle.
package detector

import (
	"context"
	"fmt"
	"log"
	"time"

	"cryptopulse/internal/indicator"
	"cryptopulse/internal/model"
)

// Config controls data sufficiency and indicator settings.
type Config struct {
	// FetchLimit is how many candles to request (forming candle included).
	FetchLimit int
	// MinCandles is the smallest fetched series worth evaluating.
	MinCandles int

	Params     indicator.Params
	Thresholds Thresholds
	Unlocks    UnlockCalendar
}

// DefaultConfig fetches 300 candles and requires 250 of them.
func DefaultConfig() Config {
	return Config{
		FetchLimit: 300,
		MinCandles: 250,
		Params:     indicator.DefaultParams(),
		Thresholds: DefaultThresholds(),
		Unlocks:    DefaultUnlockCalendar(),
	}
}

// Env carries per-cycle context shared by every pair in a scan.
type Env struct {
	Now time.Time
	// ShortsSuppressed is set by the market-wide safety gate.
	ShortsSuppressed bool
}

// Detector evaluates the rule catalogue for one asset/timeframe at a time.
type Detector struct {
	cfg   Config
	src   model.CandleSource
	store model.SignalStore
	rules []Rule
}

// New creates a Detector with the default rule catalogue.
func New(cfg Config, src model.CandleSource, store model.SignalStore) *Detector {
	if cfg.MinCandles < indicator.MinLength(cfg.Params)+1 {
		cfg.MinCandles = indicator.MinLength(cfg.Params) + 1
	}
	if cfg.FetchLimit < cfg.MinCandles {
		cfg.FetchLimit = cfg.MinCandles
	}
	return &Detector{
		cfg:   cfg,
		src:   src,
		store: store,
		rules: DefaultRules(cfg.Thresholds, cfg.Unlocks),
	}
}

// Rules returns the active catalogue.
func (d *Detector) Rules() []Rule { return d.rules }

// Detect fetches, evaluates and persists signals for asset/tf.
//
// Too little history yields Skip. Fetch or store failures yield Fatal for this
// pair only.
func (d *Detector) Detect(ctx context.Context, asset string, tf model.Timeframe, env Env) model.Result[[]model.SignalEvent] {
	candles, err := d.src.FetchCandles(ctx, asset, tf, d.cfg.FetchLimit)
	if err != nil {
		return model.Fatal[[]model.SignalEvent](fmt.Errorf("detector: fetch %s/%s: %w", asset, tf, err))
	}
	if len(candles) < d.cfg.MinCandles {
		return model.Skip[[]model.SignalEvent]("insufficient data: %d candles, need %d", len(candles), d.cfg.MinCandles)
	}

	types := d.Evaluate(asset, candles, env)
	if len(types) == 0 {
		return model.Ok[[]model.SignalEvent](nil)
	}

	detectedAt := candles[len(candles)-2].CloseTime
	events := make([]model.SignalEvent, 0, len(types))
	for _, st := range types {
		ev := model.SignalEvent{Asset: asset, Timeframe: tf, Type: st, DetectedAt: detectedAt}
		if err := d.store.Upsert(ctx, ev); err != nil {
			return model.Fatal[[]model.SignalEvent](fmt.Errorf("detector: upsert %s %s/%s: %w", st, asset, tf, err))
		}
		log.Printf("[detector] signal saved: %s | %s | %s @ %s", asset, tf, st, detectedAt.Format(time.RFC3339))
		events = append(events, ev)
	}
	return model.Ok(events)
}

// Evaluate runs the catalogue on a freshly fetched series whose last element
// may still be forming. That element is never looked at.
func (d *Detector) Evaluate(asset string, candles []model.Candle, env Env) []model.SignalType {
	if len(candles) < 2 {
		return nil
	}
	return d.EvaluateClosed(asset, candles[:len(candles)-1], env)
}

// EvaluateClosed runs the catalogue against the last element of a series in
// which every candle is closed.
func (d *Detector) EvaluateClosed(asset string, closed []model.Candle, env Env) []model.SignalType {
	series := indicator.Compute(closed, d.cfg.Params)
	if len(series) < 2 {
		return nil
	}

	w := Window{Asset: asset, Series: series, Env: env}
	seen := make(map[model.SignalType]bool)
	var out []model.SignalType
	for _, r := range d.rules {
		for _, st := range r.Evaluate(w) {
			if seen[st] {
				continue
			}
			seen[st] = true
			out = append(out, st)
		}
	}
	return out
}
