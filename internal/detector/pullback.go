package detector

import "cryptopulse/internal/indicator"

type trendSide int

const (
	bullish trendSide = iota
	bearish
)

// inTrend: fast MA above (bullish) or below (bearish) the slow MA.
// False while either MA is warming up.
func inTrend(p indicator.Point, side trendSide) bool {
	if side == bullish {
		return p.SMAFast > p.SMASlow
	}
	return p.SMAFast < p.SMASlow
}

// touches: the wick reached either MA and the candle closed in the trend direction.
func touches(p indicator.Point, side trendSide) bool {
	if side == bullish {
		return (p.Low <= p.SMAFast || p.Low <= p.SMASlow) && p.Green()
	}
	return (p.High >= p.SMAFast || p.High >= p.SMASlow) && p.Red()
}

// pullbackState tracks the current trend leg: how many candles it has lasted
// since the crossover and whether any of them already touched an MA.
type pullbackState struct {
	sinceCross int
	touched    bool
}

func (st *pullbackState) step(p indicator.Point, side trendSide) {
	if !inTrend(p, side) {
		*st = pullbackState{}
		return
	}
	st.sinceCross++
	if touches(p, side) {
		st.touched = true
	}
}

// pullbackScan reports whether the last point is the first touch-and-close
// in the trend direction since the most recent crossover.
func pullbackScan(s indicator.Series, side trendSide) bool {
	if len(s) == 0 {
		return false
	}
	var st pullbackState
	for _, p := range s[:len(s)-1] {
		st.step(p, side)
	}
	last := s.Last()
	return inTrend(last, side) && touches(last, side) && !st.touched
}
