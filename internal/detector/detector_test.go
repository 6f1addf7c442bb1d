package detector

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"cryptopulse/internal/indicator"
	"cryptopulse/internal/model"
)

// ────────────────────────────────────────────────────────────
// Fakes and fixtures
// ────────────────────────────────────────────────────────────

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type fakeSource struct {
	candles []model.Candle
	err     error
	calls   int
}

func (f *fakeSource) FetchCandles(_ context.Context, _ string, _ model.Timeframe, limit int) ([]model.Candle, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if limit > 0 && len(f.candles) > limit {
		return f.candles[len(f.candles)-limit:], nil
	}
	return f.candles, nil
}

type fakeSignalStore struct {
	mu   sync.Mutex
	rows map[string]model.SignalEvent
	err  error
}

func newFakeSignalStore() *fakeSignalStore {
	return &fakeSignalStore{rows: make(map[string]model.SignalEvent)}
}

func sigKey(asset string, tf model.Timeframe, st model.SignalType) string {
	return fmt.Sprintf("%s|%s|%s", asset, tf, st)
}

func (s *fakeSignalStore) Upsert(_ context.Context, ev model.SignalEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.rows[sigKey(ev.Asset, ev.Timeframe, ev.Type)] = ev
	return nil
}

func (s *fakeSignalStore) Find(_ context.Context, asset string, tf model.Timeframe, st model.SignalType, since time.Time) (*model.SignalEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev, ok := s.rows[sigKey(asset, tf, st)]
	if !ok || ev.DetectedAt.Before(since) {
		return nil, nil
	}
	return &ev, nil
}

// crossIndex is where SMA50 first closes above SMA200 in vShape.
const crossIndex = 258

// vShape: 200 hourly candles falling from 400 to 201, then 150 rising by 2.
// Falling candles are red, rising candles are green. Wicks are ±0.5.
func vShape() []model.Candle {
	closes := make([]float64, 0, 350)
	for i := 0; i < 200; i++ {
		closes = append(closes, float64(400-i))
	}
	for i := 0; i < 150; i++ {
		closes = append(closes, float64(201+2*(i+1)))
	}
	out := make([]model.Candle, len(closes))
	for i, c := range closes {
		open := c + 1
		if i >= 200 {
			open = c - 1
		}
		ot := t0.Add(time.Duration(i) * time.Hour)
		out[i] = model.Candle{
			OpenTime: ot, CloseTime: ot.Add(time.Hour),
			Open: open, High: c + 0.5, Low: c - 0.5, Close: c, Volume: 100,
		}
	}
	return out
}

// mirror reflects prices around 500 so a golden cross becomes a death cross.
func mirror(in []model.Candle) []model.Candle {
	out := make([]model.Candle, len(in))
	for i, c := range in {
		out[i] = c
		out[i].Open = 1000 - c.Open
		out[i].Close = 1000 - c.Close
		out[i].High = 1000 - c.Low
		out[i].Low = 1000 - c.High
	}
	return out
}

func contains(types []model.SignalType, st model.SignalType) bool {
	for _, t := range types {
		if t == st {
			return true
		}
	}
	return false
}

var testEnv = Env{Now: t0.Add(1000 * time.Hour)}

// ────────────────────────────────────────────────────────────
// Crossovers
// ────────────────────────────────────────────────────────────

func TestDetect_GoldenCrossOnLastClosedCandle(t *testing.T) {
	src := &fakeSource{candles: vShape()[:crossIndex+2]}
	store := newFakeSignalStore()
	d := New(DefaultConfig(), src, store)

	res := d.Detect(context.Background(), "BTC", model.TF1h, testEnv)
	if res.Outcome != model.OutcomeOK {
		t.Fatalf("outcome = %s (%s), want ok", res.Outcome, res.Reason)
	}

	var found bool
	for _, ev := range res.Value {
		if ev.Type == model.SignalGoldenCross {
			found = true
			want := src.candles[crossIndex].CloseTime
			if !ev.DetectedAt.Equal(want) {
				t.Errorf("DetectedAt = %v, want close of last closed candle %v", ev.DetectedAt, want)
			}
		}
	}
	if !found {
		t.Fatalf("expected GOLDEN_CROSS, got %v", res.Value)
	}

	got, _ := store.Find(context.Background(), "BTC", model.TF1h, model.SignalGoldenCross, t0)
	if got == nil {
		t.Fatal("GOLDEN_CROSS was not persisted")
	}
}

func TestDetect_NoCrossOneCandleEarly(t *testing.T) {
	d := New(DefaultConfig(), &fakeSource{}, newFakeSignalStore())
	types := d.Evaluate("BTC", vShape()[:crossIndex+1], testEnv)
	if contains(types, model.SignalGoldenCross) {
		t.Errorf("GOLDEN_CROSS fired before the crossover candle closed: %v", types)
	}
}

func TestDetect_DeathCrossMirror(t *testing.T) {
	d := New(DefaultConfig(), &fakeSource{}, newFakeSignalStore())
	types := d.Evaluate("ETH", mirror(vShape())[:crossIndex+2], testEnv)
	if !contains(types, model.SignalDeathCross) {
		t.Errorf("expected DEATH_CROSS, got %v", types)
	}
	if contains(types, model.SignalGoldenCross) {
		t.Errorf("unexpected GOLDEN_CROSS in %v", types)
	}
}

func TestDetect_RerunKeepsOneRowPerType(t *testing.T) {
	src := &fakeSource{candles: vShape()[:crossIndex+2]}
	store := newFakeSignalStore()
	d := New(DefaultConfig(), src, store)

	first := d.Detect(context.Background(), "BTC", model.TF1h, testEnv)
	second := d.Detect(context.Background(), "BTC", model.TF1h, testEnv)
	if first.Outcome != model.OutcomeOK || second.Outcome != model.OutcomeOK {
		t.Fatalf("outcomes = %s, %s", first.Outcome, second.Outcome)
	}
	if len(store.rows) != len(first.Value) {
		t.Errorf("store has %d rows after rerun, want %d", len(store.rows), len(first.Value))
	}
}

// ────────────────────────────────────────────────────────────
// Non-repainting
// ────────────────────────────────────────────────────────────

func TestEvaluate_IgnoresFormingCandle(t *testing.T) {
	d := New(DefaultConfig(), &fakeSource{}, newFakeSignalStore())
	candles := vShape()[:crossIndex+2]
	base := d.Evaluate("BTC", candles, testEnv)

	mutated := append([]model.Candle(nil), candles...)
	last := &mutated[len(mutated)-1]
	last.Open, last.High, last.Low, last.Close, last.Volume = 10, 5000, 1, 4000, 1e9

	again := d.Evaluate("BTC", mutated, testEnv)
	if fmt.Sprint(base) != fmt.Sprint(again) {
		t.Errorf("forming candle changed the result: %v vs %v", base, again)
	}

	closed := d.EvaluateClosed("BTC", candles[:len(candles)-1], testEnv)
	if fmt.Sprint(base) != fmt.Sprint(closed) {
		t.Errorf("Evaluate %v != EvaluateClosed %v", base, closed)
	}
}

func TestEvaluate_EmittedTypesAreUnique(t *testing.T) {
	d := New(DefaultConfig(), &fakeSource{}, newFakeSignalStore())
	for n := 250; n <= 350; n += 5 {
		types := d.Evaluate("BTC", vShape()[:n], testEnv)
		seen := map[model.SignalType]bool{}
		for _, st := range types {
			if seen[st] {
				t.Fatalf("n=%d: %s emitted twice in %v", n, st, types)
			}
			seen[st] = true
		}
	}
}

// ────────────────────────────────────────────────────────────
// Pullback
// ────────────────────────────────────────────────────────────

func withPullback(candles []model.Candle, idx int) {
	s := indicator.Compute(candles, indicator.DefaultParams())
	candles[idx].Low = s[idx].SMAFast - 0.1
}

func TestDetect_FirstPullbackOnly(t *testing.T) {
	candles := vShape()
	a, b := crossIndex+10, crossIndex+20
	withPullback(candles, a)
	withPullback(candles, b)

	d := New(DefaultConfig(), &fakeSource{}, newFakeSignalStore())

	if types := d.Evaluate("BTC", candles[:a+2], testEnv); !contains(types, model.SignalGoldenCross) {
		t.Errorf("first touch at %d: expected GOLDEN_CROSS, got %v", a, types)
	}
	if types := d.Evaluate("BTC", candles[:b+2], testEnv); contains(types, model.SignalGoldenCross) {
		t.Errorf("second touch at %d: GOLDEN_CROSS should not repeat, got %v", b, types)
	}
}

func TestFirstPullback_ResetsOnTrendLoss(t *testing.T) {
	pt := func(fast, slow, open, low, close float64) indicator.Point {
		return indicator.Point{
			Candle:  model.Candle{Open: open, High: close + 1, Low: low, Close: close},
			SMAFast: fast, SMASlow: slow,
		}
	}
	s := indicator.Series{
		pt(110, 100, 111, 109, 112), // in trend, touches
		pt(95, 100, 96, 94, 97),     // trend lost
		pt(105, 100, 106, 108, 109), // new leg, no touch
		pt(106, 100, 107, 105, 108), // first touch of the new leg
	}
	if !pullbackScan(s, bullish) {
		t.Error("expected the first touch after a fresh crossover to fire")
	}
	if !pullbackScan(s[:1], bullish) {
		t.Error("single in-trend touching candle should fire")
	}
	if pullbackScan(s, bearish) {
		t.Error("bearish pullback should not fire on a bullish series")
	}
}

// ────────────────────────────────────────────────────────────
// Outcomes
// ────────────────────────────────────────────────────────────

func TestDetect_InsufficientDataSkips(t *testing.T) {
	store := newFakeSignalStore()
	d := New(DefaultConfig(), &fakeSource{candles: vShape()[:249]}, store)
	res := d.Detect(context.Background(), "BTC", model.TF1h, testEnv)
	if res.Outcome != model.OutcomeSkip {
		t.Fatalf("outcome = %s, want skip", res.Outcome)
	}
	if len(store.rows) != 0 {
		t.Errorf("store should be untouched, has %d rows", len(store.rows))
	}
}

func TestDetect_FetchErrorIsFatal(t *testing.T) {
	boom := errors.New("exchange down")
	d := New(DefaultConfig(), &fakeSource{err: boom}, newFakeSignalStore())
	res := d.Detect(context.Background(), "BTC", model.TF1h, testEnv)
	if res.Outcome != model.OutcomeFatal {
		t.Fatalf("outcome = %s, want fatal", res.Outcome)
	}
	if !errors.Is(res.Err, boom) {
		t.Errorf("err = %v, want wrapped %v", res.Err, boom)
	}
}

func TestDetect_StoreErrorIsFatal(t *testing.T) {
	store := newFakeSignalStore()
	store.err = errors.New("db locked")
	d := New(DefaultConfig(), &fakeSource{candles: vShape()[:crossIndex+2]}, store)
	res := d.Detect(context.Background(), "BTC", model.TF1h, testEnv)
	if res.Outcome != model.OutcomeFatal {
		t.Fatalf("outcome = %s, want fatal", res.Outcome)
	}
}

func TestNew_RaisesMinCandlesToIndicatorLookback(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinCandles = 10
	cfg.FetchLimit = 10
	d := New(cfg, &fakeSource{}, newFakeSignalStore())
	if d.cfg.MinCandles != 201 {
		t.Errorf("MinCandles = %d, want 201", d.cfg.MinCandles)
	}
	if d.cfg.FetchLimit < d.cfg.MinCandles {
		t.Errorf("FetchLimit %d < MinCandles %d", d.cfg.FetchLimit, d.cfg.MinCandles)
	}
}
