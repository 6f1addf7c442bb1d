package model

import (
	"fmt"
	"strings"
	"time"
)

// Candle is one OHLCV bar for an asset/timeframe.
// Prices are exchange quotes in the quote currency (USDT).
type Candle struct {
	OpenTime  time.Time `json:"open_time"`
	CloseTime time.Time `json:"close_time"` // OpenTime + timeframe duration
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// Green reports whether the candle closed above its open.
func (c Candle) Green() bool { return c.Close > c.Open }

// Red reports whether the candle closed below its open.
func (c Candle) Red() bool { return c.Close < c.Open }

// Timeframe is a candle interval in exchange notation ("1h", "4h", ...).
type Timeframe string

const (
	TF15m Timeframe = "15m"
	TF1h  Timeframe = "1h"
	TF4h  Timeframe = "4h"
	TF1d  Timeframe = "1d"
)

var tfDurations = map[Timeframe]time.Duration{
	TF15m: 15 * time.Minute,
	TF1h:  time.Hour,
	TF4h:  4 * time.Hour,
	TF1d:  24 * time.Hour,
}

// Duration returns the candle length, or 0 for an unknown timeframe.
func (tf Timeframe) Duration() time.Duration {
	return tfDurations[tf]
}

// Valid reports whether tf is one of the supported timeframes.
func (tf Timeframe) Valid() bool {
	_, ok := tfDurations[tf]
	return ok
}

// ParseTimeframe normalizes user/config input such as "4H", "daily" or "hourly".
func ParseTimeframe(s string) (Timeframe, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "daily":
		return TF1d, nil
	case "hourly":
		return TF1h, nil
	}
	tf := Timeframe(s)
	if !tf.Valid() {
		return "", fmt.Errorf("unsupported timeframe %q", s)
	}
	return tf, nil
}

// Pair is one cell of the asset×timeframe scan matrix.
type Pair struct {
	Asset     string
	Timeframe Timeframe
}

func (p Pair) String() string {
	return p.Asset + "/" + string(p.Timeframe)
}
