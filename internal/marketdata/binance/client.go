// Package binance is a minimal Binance spot REST client: klines for the
// detector and last-trade prices for the matcher. Every request waits on a
// shared token bucket so a full scan stays within the public API weight limits.
package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"cryptopulse/internal/model"
)

const DefaultBaseURL = "https://api.binance.com"

// Config configures the client.
type Config struct {
	BaseURL     string
	QuoteAsset  string  // appended to the asset to form the symbol, "USDT"
	RequestRate float64 // requests per second
	Burst       int
	Timeout     time.Duration
}

// DefaultConfig targets the public spot API at 5 req/s.
func DefaultConfig() Config {
	return Config{
		BaseURL:     DefaultBaseURL,
		QuoteAsset:  "USDT",
		RequestRate: 5,
		Burst:       5,
		Timeout:     10 * time.Second,
	}
}

// Client implements model.CandleSource and model.PriceSource.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
}

// New creates a client. A nil httpClient gets one with cfg.Timeout.
func New(cfg Config, httpClient *http.Client) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.QuoteAsset == "" {
		cfg.QuoteAsset = "USDT"
	}
	if cfg.RequestRate <= 0 {
		cfg.RequestRate = 5
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{
		cfg:     cfg,
		http:    httpClient,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestRate), cfg.Burst),
	}
}

// Symbol maps an asset ("btc") to the exchange symbol ("BTCUSDT").
func (c *Client) Symbol(asset string) string {
	return strings.ToUpper(strings.TrimSpace(asset)) + c.cfg.QuoteAsset
}

// APIError is a non-2xx response from the exchange.
type APIError struct {
	Status int
	Code   int    `json:"code"`
	Msg    string `json:"msg"`
}

func (e *APIError) Error() string {
	if e.Msg != "" {
		return fmt.Sprintf("binance: status %d: code %d: %s", e.Status, e.Code, e.Msg)
	}
	return fmt.Sprintf("binance: status %d", e.Status)
}

func (c *Client) get(ctx context.Context, path string, q url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("binance: rate limit wait: %w", err)
	}

	u := c.cfg.BaseURL + path + "?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("binance: build request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("binance: GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("binance: read %s: %w", path, err)
	}
	if resp.StatusCode/100 != 2 {
		apiErr := &APIError{Status: resp.StatusCode}
		_ = json.Unmarshal(body, apiErr)
		return apiErr
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("binance: decode %s: %w", path, err)
	}
	return nil
}

// FetchCandles returns up to limit klines, oldest first. The last one is
// usually still forming.
func (c *Client) FetchCandles(ctx context.Context, asset string, tf model.Timeframe, limit int) ([]model.Candle, error) {
	if !tf.Valid() {
		return nil, fmt.Errorf("binance: unsupported timeframe %q", tf)
	}
	if limit <= 0 || limit > 1000 {
		limit = 1000
	}
	q := url.Values{}
	q.Set("symbol", c.Symbol(asset))
	q.Set("interval", string(tf))
	q.Set("limit", strconv.Itoa(limit))

	var raw [][]json.RawMessage
	if err := c.get(ctx, "/api/v3/klines", q, &raw); err != nil {
		return nil, err
	}

	out := make([]model.Candle, 0, len(raw))
	for i, k := range raw {
		cd, err := parseKline(k, tf)
		if err != nil {
			return nil, fmt.Errorf("binance: kline %d for %s: %w", i, c.Symbol(asset), err)
		}
		out = append(out, cd)
	}
	return out, nil
}

// parseKline decodes [openTime, "o", "h", "l", "c", "v", closeTime, ...].
func parseKline(k []json.RawMessage, tf model.Timeframe) (model.Candle, error) {
	if len(k) < 6 {
		return model.Candle{}, fmt.Errorf("short kline: %d fields", len(k))
	}
	var openMs int64
	if err := json.Unmarshal(k[0], &openMs); err != nil {
		return model.Candle{}, fmt.Errorf("open time: %w", err)
	}
	var f [5]float64
	for i := range f {
		var s string
		if err := json.Unmarshal(k[i+1], &s); err != nil {
			return model.Candle{}, fmt.Errorf("field %d: %w", i+1, err)
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return model.Candle{}, fmt.Errorf("field %d: %w", i+1, err)
		}
		f[i] = v
	}
	open := time.UnixMilli(openMs).UTC()
	return model.Candle{
		OpenTime:  open,
		CloseTime: open.Add(tf.Duration()),
		Open:      f[0],
		High:      f[1],
		Low:       f[2],
		Close:     f[3],
		Volume:    f[4],
	}, nil
}

// FetchPrice returns the last traded price.
func (c *Client) FetchPrice(ctx context.Context, asset string) (float64, error) {
	q := url.Values{}
	q.Set("symbol", c.Symbol(asset))

	var tick struct {
		Symbol string `json:"symbol"`
		Price  string `json:"price"`
	}
	if err := c.get(ctx, "/api/v3/ticker/price", q, &tick); err != nil {
		return 0, err
	}
	p, err := strconv.ParseFloat(tick.Price, 64)
	if err != nil {
		return 0, fmt.Errorf("binance: price for %s: %w", tick.Symbol, err)
	}
	return p, nil
}
