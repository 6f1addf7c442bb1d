// Package parser turns short alert phrases ("BTC above 60k",
// "ETH 50 MA crosses above 200 MA on 1h", "SOL volume surge every time")
// into structured alert requests.
package parser

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"cryptopulse/internal/model"
)

var (
	ErrUnsupportedAsset = errors.New("could not identify a supported asset")
	ErrUnsupportedMA    = errors.New("only the 50/200 moving average cross is supported")
	ErrUnrecognized     = errors.New("alert type not recognized (price level or signal)")
)

// OpHit is a price condition whose direction is decided against the live
// price when the alert is created.
const OpHit model.Operator = "HIT"

// DefaultAssets are the majors accepted when no list is configured.
var DefaultAssets = []string{"BTC", "ETH", "SOL", "BNB", "ADA", "XRP", "DOGE"}

// Request is a parsed phrase.
type Request struct {
	Asset     string
	Timeframe model.Timeframe

	// Price alerts.
	IsPrice bool
	Target  float64
	Op      model.Operator // ABOVE, BELOW or OpHit

	// Pattern alerts.
	Signal model.SignalType

	Recurring bool
}

// Parser holds the accepted asset list.
type Parser struct {
	assetRe          *regexp.Regexp
	assets           []string
	DefaultTimeframe model.Timeframe
}

// New builds a parser for assets. Empty means DefaultAssets.
func New(assets []string) *Parser {
	if len(assets) == 0 {
		assets = DefaultAssets
	}
	quoted := make([]string, len(assets))
	for i, a := range assets {
		quoted[i] = regexp.QuoteMeta(strings.ToUpper(a))
	}
	return &Parser{
		assetRe:          regexp.MustCompile(`\b(` + strings.Join(quoted, "|") + `)\b`),
		assets:           assets,
		DefaultTimeframe: model.TF4h,
	}
}

var (
	tfRe        = regexp.MustCompile(`\b(\d+[HDWMS]|DAILY|HOURLY)\b`)
	maRe        = regexp.MustCompile(`\b(\d+)\s*(?:M\.A|E\.M\.A|S\.M\.A|MA|EMA|SMA)\b`)
	thousandsRe = regexp.MustCompile(`(\d),(\d{3})`)
	priceRe     = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*(K\b)?`)
	recurringRe = regexp.MustCompile(`\b(EVERY\s*TIME|RECURRING|ALWAYS)\b`)
	aboveRe     = regexp.MustCompile(`\b(ABOVE|OVER|EXCEEDS?|RISES)\b`)
	belowRe     = regexp.MustCompile(`\b(BELOW|UNDER|DROPS?|FALLS)\b`)
	hitRe       = regexp.MustCompile(`\b(HITS?|REACH(?:ES)?|TOUCH(?:ES)?)\b`)
)

// signalKeywords is checked in order; the first match wins.
var signalKeywords = []struct {
	re *regexp.Regexp
	st model.SignalType
}{
	{regexp.MustCompile(`\bGOLDEN\s*CROSS\b`), model.SignalGoldenCross},
	{regexp.MustCompile(`\bDEATH\s*CROSS\b`), model.SignalDeathCross},
	{regexp.MustCompile(`\bMOMENTUM\s*BREAKOUT\b`), model.SignalMomentumBreakout},
	{regexp.MustCompile(`\bMACD\b.*\b(BEAR|BEARISH|BELOW|DOWN)\b`), model.SignalMACDBearCross},
	{regexp.MustCompile(`\bMACD\b`), model.SignalMACDBullCross},
	{regexp.MustCompile(`\bSUPER\s*TREND\b`), model.SignalSupertrendBuy},
	{regexp.MustCompile(`\bSNIPER\b.*\b(SELL|SHORT|REJECTION)\b`), model.SignalSniperSell},
	{regexp.MustCompile(`\bSNIPER\b`), model.SignalSniperBuy},
	{regexp.MustCompile(`\bSQUEEZE\b`), model.SignalBBSqueeze},
	{regexp.MustCompile(`\b(BB|BOLLINGER)\b.*\bBREAK(OUT|S)?\b.*\b(DOWN|BELOW|LOWER)\b`), model.SignalBBBreakoutDown},
	{regexp.MustCompile(`\b(BB|BOLLINGER)\b.*\bBREAK(OUT|S)?\b`), model.SignalBBBreakoutUp},
	{regexp.MustCompile(`\bVOLUME\s*(SURGE|SPIKE)\b`), model.SignalVolumeSurge},
	{regexp.MustCompile(`\bUNLOCK\b`), model.SignalUnlockShort},
	{regexp.MustCompile(`\bTREND\b.*\bRSI\b.*\b(BEAR|BEARISH|SHORT)\b`), model.SignalTrendBearishRSI},
	{regexp.MustCompile(`\bTREND\b.*\bRSI\b`), model.SignalTrendBullishRSI},
	{regexp.MustCompile(`\bRSI\b.*\bOVERBOUGHT\b`), model.SignalRSIOverbought},
	{regexp.MustCompile(`\bRSI\b.*\bOVERSOLD\b`), model.SignalRSIOversold},
}

// Parse reads one phrase.
func (p *Parser) Parse(text string) (Request, error) {
	upper := strings.ToUpper(strings.TrimSpace(text))

	var req Request
	m := p.assetRe.FindStringSubmatch(upper)
	if m == nil {
		return Request{}, fmt.Errorf("%w (%s)", ErrUnsupportedAsset, strings.Join(p.assets, ", "))
	}
	req.Asset = m[1]

	req.Timeframe = p.DefaultTimeframe
	rest := upper
	if loc := tfRe.FindStringIndex(upper); loc != nil {
		if tf, err := model.ParseTimeframe(upper[loc[0]:loc[1]]); err == nil {
			req.Timeframe = tf
		}
		rest = upper[:loc[0]] + " " + upper[loc[1]:]
	}

	req.Recurring = recurringRe.MatchString(upper)

	// 50 MA crosses 200 MA
	if mas := maRe.FindAllStringSubmatch(rest, -1); len(mas) == 2 && strings.Contains(rest, "CROSS") {
		fast, _ := strconv.Atoi(mas[0][1])
		slow, _ := strconv.Atoi(mas[1][1])
		if fast != 50 || slow != 200 {
			return Request{}, fmt.Errorf("%w (got %d/%d)", ErrUnsupportedMA, fast, slow)
		}
		req.Signal = model.SignalDeathCross
		if aboveRe.MatchString(rest) {
			req.Signal = model.SignalGoldenCross
		}
		return req, nil
	}

	for _, kw := range signalKeywords {
		if kw.re.MatchString(rest) {
			req.Signal = kw.st
			return req, nil
		}
	}

	var op model.Operator
	switch {
	case aboveRe.MatchString(rest):
		op = model.OpAbove
	case belowRe.MatchString(rest):
		op = model.OpBelow
	case hitRe.MatchString(rest):
		op = OpHit
	default:
		return Request{}, ErrUnrecognized
	}

	pm := priceRe.FindStringSubmatch(thousandsRe.ReplaceAllString(rest, "$1$2"))
	if pm == nil {
		return Request{}, ErrUnrecognized
	}
	target, err := strconv.ParseFloat(pm[1], 64)
	if err != nil || target <= 0 {
		return Request{}, fmt.Errorf("bad price %q", pm[1])
	}
	if pm[2] != "" {
		target *= 1000
	}

	req.IsPrice = true
	req.Target = target
	req.Op = op
	req.Timeframe = ""
	return req, nil
}

// ResolveHit picks ABOVE when the target is at or over the current price,
// BELOW otherwise.
func ResolveHit(target, current float64) model.Operator {
	if target >= current {
		return model.OpAbove
	}
	return model.OpBelow
}
