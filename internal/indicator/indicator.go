// Package indicator computes the technical indicator set used by the signal
// detector over a closed candle series.
//
// Every value is aligned with its candle: Series[i] holds the indicators as of
// candles[i]. Values still inside an indicator's warm-up period are NaN, so any
// comparison against them is false and a rule depending on them does not fire.
package indicator

import (
	"math"

	"cryptopulse/internal/model"

	talib "github.com/markcheno/go-talib"
)

// Params configures indicator periods.
type Params struct {
	FastMA int
	SlowMA int

	RSIPeriod int

	MACDFast   int
	MACDSlow   int
	MACDSignal int

	BBPeriod int
	BBStdDev float64

	SupertrendPeriod     int
	SupertrendMultiplier float64

	ADXPeriod int

	StochRSIPeriod int
	StochK         int
	StochD         int

	VolumePeriod int
}

// DefaultParams returns SMA 50/200, RSI 14, MACD 12/26/9, BB 20/2,
// Supertrend 10/4, ADX 14, StochRSI 14/14/3 and a 20-period volume average.
func DefaultParams() Params {
	return Params{
		FastMA:               50,
		SlowMA:               200,
		RSIPeriod:            14,
		MACDFast:             12,
		MACDSlow:             26,
		MACDSignal:           9,
		BBPeriod:             20,
		BBStdDev:             2,
		SupertrendPeriod:     10,
		SupertrendMultiplier: 4,
		ADXPeriod:            14,
		StochRSIPeriod:       14,
		StochK:               14,
		StochD:               3,
		VolumePeriod:         20,
	}
}

// Point is the candle at one index together with every indicator value.
type Point struct {
	model.Candle

	SMAFast float64
	SMASlow float64
	RSI     float64

	MACD       float64
	MACDSignal float64
	MACDHist   float64

	BBUpper  float64
	BBMiddle float64
	BBLower  float64

	ADX           float64
	Supertrend    float64
	SupertrendDir int // 1 up, -1 down, 0 not ready

	StochK float64
	StochD float64

	VolumeSMA float64
	RVOL      float64
}

// BBWidth is the relative band width (upper-lower)/middle.
func (p Point) BBWidth() float64 {
	if p.BBMiddle == 0 || math.IsNaN(p.BBMiddle) {
		return math.NaN()
	}
	return (p.BBUpper - p.BBLower) / p.BBMiddle
}

// Series is the indicator output for a candle series, oldest first.
type Series []Point

// Last returns the final point. The series must not be empty.
func (s Series) Last() Point { return s[len(s)-1] }

// Prev returns the point before the final one. The series needs at least two points.
func (s Series) Prev() Point { return s[len(s)-2] }

// MinLength is the shortest series Compute accepts for p.
func MinLength(p Params) int {
	lookbacks := []int{
		p.FastMA - 1,
		p.SlowMA - 1,
		p.RSIPeriod,
		p.MACDSlow - 1 + p.MACDSignal - 1,
		p.BBPeriod - 1,
		2*p.ADXPeriod - 1,
		p.SupertrendPeriod,
		p.StochRSIPeriod + p.StochK - 1 + p.StochD - 1,
		p.VolumePeriod - 1,
	}
	longest := 0
	for _, lb := range lookbacks {
		if lb > longest {
			longest = lb
		}
	}
	return longest + 1
}

// Compute evaluates all indicators over candles, which must all be closed.
// Returns nil when there are fewer than MinLength(p) candles.
func Compute(candles []model.Candle, p Params) Series {
	n := len(candles)
	if n == 0 || n < MinLength(p) {
		return nil
	}

	high := make([]float64, n)
	low := make([]float64, n)
	closes := make([]float64, n)
	vol := make([]float64, n)
	for i, c := range candles {
		high[i] = c.High
		low[i] = c.Low
		closes[i] = c.Close
		vol[i] = c.Volume
	}

	smaFast := warm(talib.Sma(closes, p.FastMA), p.FastMA-1)
	smaSlow := warm(talib.Sma(closes, p.SlowMA), p.SlowMA-1)
	rsi := warm(talib.Rsi(closes, p.RSIPeriod), p.RSIPeriod)

	macd, macdSig, macdHist := talib.Macd(closes, p.MACDFast, p.MACDSlow, p.MACDSignal)
	macdLookback := p.MACDSlow - 1 + p.MACDSignal - 1
	macd = warm(macd, macdLookback)
	macdSig = warm(macdSig, macdLookback)
	macdHist = warm(macdHist, macdLookback)

	bbU, bbM, bbL := talib.BBands(closes, p.BBPeriod, p.BBStdDev, p.BBStdDev, talib.SMA)
	bbU = warm(bbU, p.BBPeriod-1)
	bbM = warm(bbM, p.BBPeriod-1)
	bbL = warm(bbL, p.BBPeriod-1)

	adx := warm(talib.Adx(high, low, closes, p.ADXPeriod), 2*p.ADXPeriod-1)

	stLine, stDir := supertrend(high, low, closes, p.SupertrendPeriod, p.SupertrendMultiplier)

	stochK, stochD := talib.StochRsi(closes, p.StochRSIPeriod, p.StochK, p.StochD, talib.SMA)
	stochLookback := p.StochRSIPeriod + p.StochK - 1 + p.StochD - 1
	stochK = warm(stochK, stochLookback)
	stochD = warm(stochD, stochLookback)

	volSMA := warm(talib.Sma(vol, p.VolumePeriod), p.VolumePeriod-1)

	out := make(Series, n)
	for i := range candles {
		rvol := math.NaN()
		if volSMA[i] > 0 {
			rvol = vol[i] / volSMA[i]
		}
		out[i] = Point{
			Candle:        candles[i],
			SMAFast:       smaFast[i],
			SMASlow:       smaSlow[i],
			RSI:           rsi[i],
			MACD:          macd[i],
			MACDSignal:    macdSig[i],
			MACDHist:      macdHist[i],
			BBUpper:       bbU[i],
			BBMiddle:      bbM[i],
			BBLower:       bbL[i],
			ADX:           adx[i],
			Supertrend:    stLine[i],
			SupertrendDir: stDir[i],
			StochK:        stochK[i],
			StochD:        stochD[i],
			VolumeSMA:     volSMA[i],
			RVOL:          rvol,
		}
	}
	return out
}

// Valid reports whether v is past its warm-up period.
func Valid(v float64) bool { return !math.IsNaN(v) }

// warm replaces the first lookback values (zeros from talib) with NaN.
func warm(vals []float64, lookback int) []float64 {
	for i := 0; i < len(vals) && i < lookback; i++ {
		vals[i] = math.NaN()
	}
	return vals
}
