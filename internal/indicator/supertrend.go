package indicator

import (
	"math"

	talib "github.com/markcheno/go-talib"
)

// supertrend computes the Supertrend line and direction using Wilder ATR bands
// around the bar midpoint (hl2 ± multiplier×ATR).
//
// Direction flips up when close breaks above the previous upper band and down
// when it breaks below the previous lower band. While the trend holds, the
// trailing band only ratchets in the trend direction.
func supertrend(high, low, closes []float64, period int, multiplier float64) ([]float64, []int) {
	n := len(closes)
	line := make([]float64, n)
	dir := make([]int, n)
	for i := range line {
		line[i] = math.NaN()
	}
	if n <= period {
		return line, dir
	}

	atr := talib.Atr(high, low, closes, period)

	upper := make([]float64, n)
	lower := make([]float64, n)
	for i := period; i < n; i++ {
		mid := (high[i] + low[i]) / 2
		upper[i] = mid + multiplier*atr[i]
		lower[i] = mid - multiplier*atr[i]
	}

	dir[period] = 1
	line[period] = lower[period]
	for i := period + 1; i < n; i++ {
		switch {
		case closes[i] > upper[i-1]:
			dir[i] = 1
		case closes[i] < lower[i-1]:
			dir[i] = -1
		default:
			dir[i] = dir[i-1]
			if dir[i] == 1 && lower[i] < lower[i-1] {
				lower[i] = lower[i-1]
			}
			if dir[i] == -1 && upper[i] > upper[i-1] {
				upper[i] = upper[i-1]
			}
		}
		if dir[i] == 1 {
			line[i] = lower[i]
		} else {
			line[i] = upper[i]
		}
	}
	return line, dir
}
