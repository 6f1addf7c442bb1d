// Package stream keeps a live last-price book from the Binance all-market
// mini ticker websocket.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"cryptopulse/internal/model"
)

const DefaultURL = "wss://stream.binance.com:9443/ws/!miniTicker@arr"

// miniTicker is one element of the !miniTicker@arr payload.
type miniTicker struct {
	Event     string `json:"e"`
	EventTime int64  `json:"E"`
	Symbol    string `json:"s"`
	Close     string `json:"c"`
}

type quote struct {
	price float64
	at    time.Time
}

// PriceBook implements model.PriceSource from the ticker stream. Quotes older
// than MaxAge, or symbols not seen yet, are served by Fallback.
type PriceBook struct {
	URL        string
	QuoteAsset string
	MaxAge     time.Duration
	Fallback   model.PriceSource

	// Reconnect backoff bounds.
	MinBackoff time.Duration
	MaxBackoff time.Duration

	// OnConnect and OnReconnect, if set, are called after every successful
	// dial and before every reconnect attempt.
	OnConnect   func()
	OnReconnect func()

	dialer *websocket.Dialer

	mu     sync.RWMutex
	quotes map[string]quote
}

// NewPriceBook creates a book for USDT pairs with a 30s freshness bound.
func NewPriceBook(url string, fallback model.PriceSource) *PriceBook {
	if url == "" {
		url = DefaultURL
	}
	return &PriceBook{
		URL:        url,
		QuoteAsset: "USDT",
		MaxAge:     30 * time.Second,
		Fallback:   fallback,
		MinBackoff: time.Second,
		MaxBackoff: time.Minute,
		dialer:     &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		quotes:     make(map[string]quote),
	}
}

// Run connects and keeps reading until ctx is done, reconnecting with
// exponential backoff. The backoff resets after every successful dial.
func (b *PriceBook) Run(ctx context.Context) {
	backoff := b.MinBackoff
	for {
		connected, err := b.session(ctx)
		if ctx.Err() != nil {
			return
		}
		if connected {
			backoff = b.MinBackoff
		}
		log.Printf("[stream] disconnected: %v, reconnecting in %s", err, backoff)
		if b.OnReconnect != nil {
			b.OnReconnect()
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > b.MaxBackoff {
			backoff = b.MaxBackoff
		}
	}
}

// session runs one connection until it fails or ctx ends. connected reports
// whether the dial succeeded.
func (b *PriceBook) session(ctx context.Context) (connected bool, err error) {
	conn, _, err := b.dialer.DialContext(ctx, b.URL, nil)
	if err != nil {
		return false, fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()
	log.Printf("[stream] connected to %s", b.URL)
	if b.OnConnect != nil {
		b.OnConnect()
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return true, fmt.Errorf("read: %w", err)
		}
		if _, err := b.apply(data, time.Now()); err != nil {
			log.Printf("[stream] bad frame: %v", err)
		}
	}
}

// apply decodes one frame and stores its quotes. Returns how many were stored.
func (b *PriceBook) apply(data []byte, now time.Time) (int, error) {
	var ticks []miniTicker
	if err := json.Unmarshal(data, &ticks); err != nil {
		return 0, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, t := range ticks {
		if !strings.HasSuffix(t.Symbol, b.QuoteAsset) {
			continue
		}
		p, err := strconv.ParseFloat(t.Close, 64)
		if err != nil || p <= 0 {
			continue
		}
		b.quotes[strings.TrimSuffix(t.Symbol, b.QuoteAsset)] = quote{price: p, at: now}
		n++
	}
	return n, nil
}

// Lookup returns the streamed price and its age.
func (b *PriceBook) Lookup(asset string) (float64, time.Duration, bool) {
	b.mu.RLock()
	q, ok := b.quotes[strings.ToUpper(asset)]
	b.mu.RUnlock()
	if !ok {
		return 0, 0, false
	}
	return q.price, time.Since(q.at), true
}

// FetchPrice implements model.PriceSource.
func (b *PriceBook) FetchPrice(ctx context.Context, asset string) (float64, error) {
	if p, age, ok := b.Lookup(asset); ok && age <= b.MaxAge {
		return p, nil
	}
	if b.Fallback == nil {
		return 0, fmt.Errorf("stream: no fresh price for %s", asset)
	}
	return b.Fallback.FetchPrice(ctx, asset)
}
