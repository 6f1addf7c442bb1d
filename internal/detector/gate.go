package detector

import (
	"context"
	"log"

	"cryptopulse/internal/model"
)

// SafetyGate suppresses short-side strategies while the reference market is
// pumping hard.
type SafetyGate struct {
	Src       model.CandleSource
	Asset     string
	Timeframe model.Timeframe
	Lookback  int
	// MaxChangePct is the rise over the lookback above which shorts are suppressed.
	MaxChangePct float64
}

// DefaultSafetyGate watches BTC over the last 20 4h candles with a 7% ceiling.
func DefaultSafetyGate(src model.CandleSource) *SafetyGate {
	return &SafetyGate{
		Src:          src,
		Asset:        "BTC",
		Timeframe:    model.TF4h,
		Lookback:     20,
		MaxChangePct: 7,
	}
}

// Check reports whether shorts should be suppressed. Any failure to fetch the
// reference series suppresses.
func (g *SafetyGate) Check(ctx context.Context) bool {
	candles, err := g.Src.FetchCandles(ctx, g.Asset, g.Timeframe, g.Lookback)
	if err != nil {
		log.Printf("[gate] fetch %s/%s failed, suppressing shorts: %v", g.Asset, g.Timeframe, err)
		return true
	}
	if len(candles) == 0 || candles[0].Open <= 0 {
		log.Printf("[gate] no usable %s/%s data, suppressing shorts", g.Asset, g.Timeframe)
		return true
	}
	first, last := candles[0].Open, candles[len(candles)-1].Close
	change := (last - first) * 100 / first
	if change > g.MaxChangePct {
		log.Printf("[gate] %s up %.2f%% over %d candles, suppressing shorts", g.Asset, change, len(candles))
		return true
	}
	return false
}
