package model

import (
	"strings"
	"time"
)

// SignalType names a detected pattern.
type SignalType string

const (
	SignalGoldenCross      SignalType = "GOLDEN_CROSS"
	SignalDeathCross       SignalType = "DEATH_CROSS"
	SignalMACDBullCross    SignalType = "MACD_BULL_CROSS"
	SignalMACDBearCross    SignalType = "MACD_BEAR_CROSS"
	SignalRSIOverbought    SignalType = "RSI_OVERBOUGHT"
	SignalRSIOversold      SignalType = "RSI_OVERSOLD"
	SignalSniperBuy        SignalType = "SNIPER_BUY_REVERSAL"
	SignalSniperSell       SignalType = "SNIPER_SELL_REJECTION"
	SignalBBSqueeze        SignalType = "BB_SQUEEZE"
	SignalBBBreakoutUp     SignalType = "BB_BREAKOUT_UP"
	SignalBBBreakoutDown   SignalType = "BB_BREAKOUT_DOWN"
	SignalVolumeSurge      SignalType = "VOLUME_SURGE"
	SignalMomentumBreakout SignalType = "MOMENTUM_BREAKOUT"
	SignalTrendBullishRSI  SignalType = "STRATEGY_BULLISH_200MA_RSI"
	SignalTrendBearishRSI  SignalType = "STRATEGY_BEARISH_200MA_RSI"
	SignalSupertrendBuy    SignalType = "SUPERTREND_BUY"
	SignalUnlockShort      SignalType = "STRATEGY_UNLOCK_SHORT"
)

// AllSignalTypes lists every type the detector can emit.
var AllSignalTypes = []SignalType{
	SignalGoldenCross, SignalDeathCross,
	SignalMACDBullCross, SignalMACDBearCross,
	SignalRSIOverbought, SignalRSIOversold,
	SignalSniperBuy, SignalSniperSell,
	SignalBBSqueeze, SignalBBBreakoutUp, SignalBBBreakoutDown,
	SignalVolumeSurge, SignalMomentumBreakout,
	SignalTrendBullishRSI, SignalTrendBearishRSI,
	SignalSupertrendBuy, SignalUnlockShort,
}

// Known reports whether t is emitted by the detector.
func (t SignalType) Known() bool {
	for _, k := range AllSignalTypes {
		if k == t {
			return true
		}
	}
	return false
}

// Readable is the human label used in notifications.
func (t SignalType) Readable() string {
	switch t {
	case SignalSupertrendBuy:
		return "SUPERTREND BUY (High Momentum)"
	case SignalUnlockShort:
		return "TOKEN UNLOCK SHORT"
	}
	return strings.ReplaceAll(string(t), "_", " ")
}

// SignalEvent is the latest detection of Type on Asset/Timeframe.
// (Asset, Timeframe, Type) is the natural key; DetectedAt is overwritten on re-detection.
type SignalEvent struct {
	Asset      string     `json:"asset"`
	Timeframe  Timeframe  `json:"timeframe"`
	Type       SignalType `json:"signal_type"`
	DetectedAt time.Time  `json:"detected_at"`
}
