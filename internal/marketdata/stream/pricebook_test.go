package stream

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

type stubSource struct {
	price float64
	calls atomic.Int32
}

func (s *stubSource) FetchPrice(context.Context, string) (float64, error) {
	s.calls.Add(1)
	if s.price == 0 {
		return 0, errors.New("no price")
	}
	return s.price, nil
}

const frame = `[
	{"e":"24hrMiniTicker","E":1714536000000,"s":"BTCUSDT","c":"60500.10","o":"60000","h":"61000","l":"59000","v":"1","q":"1"},
	{"e":"24hrMiniTicker","E":1714536000000,"s":"ETHBTC","c":"0.05"},
	{"e":"24hrMiniTicker","E":1714536000000,"s":"SOLUSDT","c":"not-a-number"}
]`

func TestApply_FiltersQuoteAsset(t *testing.T) {
	b := NewPriceBook("", nil)
	n, err := b.apply([]byte(frame), time.Now())
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if n != 1 {
		t.Errorf("stored %d quotes, want 1", n)
	}
	if p, _, ok := b.Lookup("btc"); !ok || p != 60500.10 {
		t.Errorf("BTC = %v (ok=%v), want 60500.10", p, ok)
	}
	if _, _, ok := b.Lookup("ETH"); ok {
		t.Error("ETHBTC must not be stored as ETH")
	}
	if _, _, ok := b.Lookup("SOL"); ok {
		t.Error("unparseable price must be skipped")
	}
}

func TestApply_RejectsNonArray(t *testing.T) {
	b := NewPriceBook("", nil)
	if _, err := b.apply([]byte(`{"result":null,"id":1}`), time.Now()); err == nil {
		t.Error("expected decode error for an object frame")
	}
}

func TestFetchPrice_StaleFallsBack(t *testing.T) {
	fb := &stubSource{price: 59999}
	b := NewPriceBook("", fb)
	b.apply([]byte(frame), time.Now().Add(-time.Minute))

	p, err := b.FetchPrice(context.Background(), "BTC")
	if err != nil {
		t.Fatalf("FetchPrice: %v", err)
	}
	if p != 59999 || fb.calls.Load() != 1 {
		t.Errorf("stale quote should use fallback: p=%v calls=%d", p, fb.calls.Load())
	}

	b.apply([]byte(frame), time.Now())
	p, _ = b.FetchPrice(context.Background(), "BTC")
	if p != 60500.10 || fb.calls.Load() != 1 {
		t.Errorf("fresh quote should be served locally: p=%v calls=%d", p, fb.calls.Load())
	}
}

func TestFetchPrice_NoFallback(t *testing.T) {
	b := NewPriceBook("", nil)
	if _, err := b.FetchPrice(context.Background(), "DOGE"); err == nil {
		t.Error("expected error without stream data or fallback")
	}
}

func TestRun_StreamsAndReconnects(t *testing.T) {
	var conns atomic.Int32
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		if conns.Add(1) == 1 {
			// First session drops right after one frame.
			c.WriteMessage(websocket.TextMessage, []byte(frame))
			return
		}
		c.WriteMessage(websocket.TextMessage, []byte(strings.Replace(frame, "60500.10", "61000.00", 1)))
		time.Sleep(time.Second)
	}))
	defer srv.Close()

	b := NewPriceBook("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	b.MinBackoff = 10 * time.Millisecond
	var reconnects atomic.Int32
	b.OnReconnect = func() { reconnects.Add(1) }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { b.Run(ctx); close(done) }()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if p, _, ok := b.Lookup("BTC"); ok && p == 61000 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done

	if p, _, _ := b.Lookup("BTC"); p != 61000 {
		t.Errorf("BTC = %v, want 61000 from the second session", p)
	}
	if reconnects.Load() < 1 {
		t.Error("expected at least one reconnect")
	}
}
