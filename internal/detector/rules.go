package detector

import (
	"cryptopulse/internal/indicator"
	"cryptopulse/internal/model"
)

// Window is what a rule sees: the indicator series ending at the last closed
// candle, plus the scan environment.
type Window struct {
	Asset  string
	Series indicator.Series
	Env    Env
}

func (w Window) last() indicator.Point { return w.Series.Last() }
func (w Window) prev() indicator.Point { return w.Series.Prev() }

// Rule is one entry of the signal catalogue. Rules are independent and may
// fire together.
type Rule interface {
	Name() string
	Evaluate(w Window) []model.SignalType
}

type ruleFunc struct {
	name string
	fn   func(w Window) []model.SignalType
}

func (r ruleFunc) Name() string                         { return r.name }
func (r ruleFunc) Evaluate(w Window) []model.SignalType { return r.fn(w) }

// Thresholds holds the numeric cut-offs of the catalogue.
type Thresholds struct {
	RSIOverbought float64
	RSIOversold   float64

	SniperBuyRSI  float64
	SniperSellRSI float64

	VolumeSurgeMultiple float64
	SqueezeWidth        float64

	TrendBullRSI float64
	TrendBearRSI float64

	SupertrendMinADX  float64
	SupertrendMinRVOL float64
	SupertrendMaxRSI  float64
}

// DefaultThresholds returns the production cut-offs.
func DefaultThresholds() Thresholds {
	return Thresholds{
		RSIOverbought:       70,
		RSIOversold:         30,
		SniperBuyRSI:        35,
		SniperSellRSI:       65,
		VolumeSurgeMultiple: 2.0,
		SqueezeWidth:        0.04,
		TrendBullRSI:        35,
		TrendBearRSI:        65,
		SupertrendMinADX:    20,
		SupertrendMinRVOL:   1.5,
		SupertrendMaxRSI:    70,
	}
}

// DefaultRules builds the full catalogue.
func DefaultRules(th Thresholds, cal UnlockCalendar) []Rule {
	return []Rule{
		ruleFunc{"ma_cross", maCross},
		ruleFunc{"ma_pullback", maPullback},
		ruleFunc{"macd_cross", macdCross},
		ruleFunc{"rsi_extreme", rsiExtreme(th)},
		ruleFunc{"sniper", sniper(th)},
		ruleFunc{"bollinger", bollinger(th)},
		ruleFunc{"volume_surge", volumeSurge(th)},
		ruleFunc{"momentum_breakout", momentumBreakout(th)},
		ruleFunc{"trend_rsi", trendRSI(th)},
		ruleFunc{"supertrend", supertrendBuy(th)},
		ruleFunc{"unlock_short", unlockShort(cal)},
	}
}

// crossedAbove reports a strict transition of a above b between prev and last.
func crossedAbove(prevA, prevB, lastA, lastB float64) bool {
	return prevA <= prevB && lastA > lastB
}

func crossedBelow(prevA, prevB, lastA, lastB float64) bool {
	return prevA >= prevB && lastA < lastB
}

func maCross(w Window) []model.SignalType {
	p, l := w.prev(), w.last()
	switch {
	case crossedAbove(p.SMAFast, p.SMASlow, l.SMAFast, l.SMASlow):
		return []model.SignalType{model.SignalGoldenCross}
	case crossedBelow(p.SMAFast, p.SMASlow, l.SMAFast, l.SMASlow):
		return []model.SignalType{model.SignalDeathCross}
	}
	return nil
}

func maPullback(w Window) []model.SignalType {
	var out []model.SignalType
	if pullbackScan(w.Series, bullish) {
		out = append(out, model.SignalGoldenCross)
	}
	if pullbackScan(w.Series, bearish) {
		out = append(out, model.SignalDeathCross)
	}
	return out
}

func macdCross(w Window) []model.SignalType {
	p, l := w.prev(), w.last()
	switch {
	case crossedAbove(p.MACD, p.MACDSignal, l.MACD, l.MACDSignal):
		return []model.SignalType{model.SignalMACDBullCross}
	case crossedBelow(p.MACD, p.MACDSignal, l.MACD, l.MACDSignal):
		return []model.SignalType{model.SignalMACDBearCross}
	}
	return nil
}

func rsiExtreme(th Thresholds) func(Window) []model.SignalType {
	return func(w Window) []model.SignalType {
		l := w.last()
		switch {
		case l.RSI > th.RSIOverbought:
			return []model.SignalType{model.SignalRSIOverbought}
		case l.RSI < th.RSIOversold:
			return []model.SignalType{model.SignalRSIOversold}
		}
		return nil
	}
}

func surging(p indicator.Point, multiple float64) bool {
	return p.Volume > p.VolumeSMA*multiple
}

func sniper(th Thresholds) func(Window) []model.SignalType {
	return func(w Window) []model.SignalType {
		l := w.last()
		if !surging(l, th.VolumeSurgeMultiple) {
			return nil
		}
		var out []model.SignalType
		if l.RSI < th.SniperBuyRSI && l.Low <= l.BBLower {
			out = append(out, model.SignalSniperBuy)
		}
		if l.RSI > th.SniperSellRSI && l.High >= l.BBUpper {
			out = append(out, model.SignalSniperSell)
		}
		return out
	}
}

func bollinger(th Thresholds) func(Window) []model.SignalType {
	return func(w Window) []model.SignalType {
		p, l := w.prev(), w.last()
		var out []model.SignalType
		if p.BBWidth() >= th.SqueezeWidth && l.BBWidth() < th.SqueezeWidth {
			out = append(out, model.SignalBBSqueeze)
		}
		if crossedAbove(p.Close, p.BBUpper, l.Close, l.BBUpper) {
			out = append(out, model.SignalBBBreakoutUp)
		}
		if crossedBelow(p.Close, p.BBLower, l.Close, l.BBLower) {
			out = append(out, model.SignalBBBreakoutDown)
		}
		return out
	}
}

func volumeSurge(th Thresholds) func(Window) []model.SignalType {
	return func(w Window) []model.SignalType {
		if surging(w.last(), th.VolumeSurgeMultiple) {
			return []model.SignalType{model.SignalVolumeSurge}
		}
		return nil
	}
}

func momentumBreakout(th Thresholds) func(Window) []model.SignalType {
	return func(w Window) []model.SignalType {
		p, l := w.prev(), w.last()
		if crossedAbove(p.MACD, p.MACDSignal, l.MACD, l.MACDSignal) && surging(l, th.VolumeSurgeMultiple) {
			return []model.SignalType{model.SignalMomentumBreakout}
		}
		return nil
	}
}

func trendRSI(th Thresholds) func(Window) []model.SignalType {
	return func(w Window) []model.SignalType {
		l := w.last()
		switch {
		case l.Close > l.SMASlow && l.RSI <= th.TrendBullRSI && l.Green():
			return []model.SignalType{model.SignalTrendBullishRSI}
		case l.Close < l.SMASlow && l.RSI >= th.TrendBearRSI && l.Red():
			return []model.SignalType{model.SignalTrendBearishRSI}
		}
		return nil
	}
}

func supertrendBuy(th Thresholds) func(Window) []model.SignalType {
	return func(w Window) []model.SignalType {
		l := w.last()
		if l.SupertrendDir == 1 &&
			l.ADX > th.SupertrendMinADX &&
			l.RVOL > th.SupertrendMinRVOL &&
			l.RSI < th.SupertrendMaxRSI {
			return []model.SignalType{model.SignalSupertrendBuy}
		}
		return nil
	}
}

func unlockShort(cal UnlockCalendar) func(Window) []model.SignalType {
	return func(w Window) []model.SignalType {
		if w.Env.ShortsSuppressed || !cal.InWindow(w.Asset, w.Env.Now) {
			return nil
		}
		l := w.last()
		if l.High >= l.BBUpper && l.Red() {
			return []model.SignalType{model.SignalUnlockShort}
		}
		return nil
	}
}
