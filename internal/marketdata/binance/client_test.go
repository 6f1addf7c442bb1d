package binance

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"cryptopulse/internal/model"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	cfg := DefaultConfig()
	cfg.BaseURL = srv.URL
	cfg.RequestRate = 1000
	return New(cfg, srv.Client())
}

func TestFetchCandles(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v3/klines" {
			t.Errorf("path = %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("symbol") != "BTCUSDT" || q.Get("interval") != "4h" || q.Get("limit") != "2" {
			t.Errorf("query = %v", q)
		}
		fmt.Fprint(w, `[
			[1714536000000,"60000.0","61000.5","59500.0","60500.0","123.4",1714550399999,"0",10,"0","0","0"],
			[1714550400000,"60500.0","60800.0","60100.0","60200.0","50.0",1714564799999,"0",5,"0","0","0"]
		]`)
	})

	got, err := c.FetchCandles(context.Background(), "btc", model.TF4h, 2)
	if err != nil {
		t.Fatalf("FetchCandles: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	first := got[0]
	wantOpen := time.UnixMilli(1714536000000).UTC()
	if !first.OpenTime.Equal(wantOpen) {
		t.Errorf("OpenTime = %v, want %v", first.OpenTime, wantOpen)
	}
	if !first.CloseTime.Equal(wantOpen.Add(4 * time.Hour)) {
		t.Errorf("CloseTime = %v, want open+4h", first.CloseTime)
	}
	if first.High != 61000.5 || first.Close != 60500 || first.Volume != 123.4 {
		t.Errorf("unexpected OHLCV: %+v", first)
	}
}

func TestFetchCandles_RejectsUnknownTimeframe(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})
	if _, err := c.FetchCandles(context.Background(), "BTC", model.Timeframe("7m"), 10); err == nil {
		t.Error("expected error for unsupported timeframe")
	}
}

func TestFetchCandles_MalformedKline(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[[1714536000000,"abc","1","1","1","1"]]`)
	})
	if _, err := c.FetchCandles(context.Background(), "BTC", model.TF1h, 1); err == nil {
		t.Error("expected parse error")
	}
}

func TestFetchPrice(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v3/ticker/price" || r.URL.Query().Get("symbol") != "ETHUSDT" {
			t.Errorf("unexpected request %s", r.URL)
		}
		fmt.Fprint(w, `{"symbol":"ETHUSDT","price":"3012.55000000"}`)
	})
	p, err := c.FetchPrice(context.Background(), "ETH")
	if err != nil {
		t.Fatalf("FetchPrice: %v", err)
	}
	if p != 3012.55 {
		t.Errorf("price = %v, want 3012.55", p)
	}
}

func TestAPIError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"code":-1121,"msg":"Invalid symbol."}`)
	})
	_, err := c.FetchPrice(context.Background(), "NOPE")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %T %v", err, err)
	}
	if apiErr.Status != 400 || apiErr.Code != -1121 {
		t.Errorf("apiErr = %+v", apiErr)
	}
}

func TestRateLimiterHonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"symbol":"BTCUSDT","price":"1"}`)
	}))
	defer srv.Close()

	cfg := DefaultConfig()
	cfg.BaseURL = srv.URL
	cfg.RequestRate = 0.01
	cfg.Burst = 1
	c := New(cfg, srv.Client())

	if _, err := c.FetchPrice(context.Background(), "BTC"); err != nil {
		t.Fatalf("first call uses the burst: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := c.FetchPrice(ctx, "BTC"); err == nil {
		t.Error("second call should fail waiting on the limiter")
	}
}
