package metrics

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the signal engine and the alert API.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Scan loop
	ScanCycles      prometheus.Counter
	ScanCycleDur    prometheus.Histogram
	PairOutcomes    *prometheus.CounterVec // labels: outcome=ok|skip|fatal
	SignalsDetected *prometheus.CounterVec // labels: signal_type
	ShortsGated     prometheus.Gauge       // 1 while the BTC safety gate suppresses shorts

	// Alert loop
	AlertCycles    prometheus.Counter
	AlertCycleDur  prometheus.Histogram
	AlertOutcomes  *prometheus.CounterVec // labels: outcome
	AlertFires     *prometheus.CounterVec // labels: kind=price|pattern
	NotifyFailures prometheus.Counter
	ClaimConflicts prometheus.Counter

	// Price feeds
	PriceCacheLookups        *prometheus.CounterVec // labels: result=hit|miss
	StreamReconnects         prometheus.Counter
	RedisCircuitBreakerState prometheus.Gauge // 0=closed, 1=open, 2=half-open
	RedisCircuitBreakerTrips prometheus.Counter

	// API
	AlertsCreated *prometheus.CounterVec // labels: source=phrase|form|telegram
}

// NewMetrics creates the metrics and registers them on reg.
// A nil reg means prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		ScanCycles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cryptopulse_scan_cycles_total",
			Help: "Completed detector passes over the asset x timeframe matrix",
		}),
		ScanCycleDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cryptopulse_scan_cycle_duration_seconds",
			Help:    "Wall time of one scan cycle",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
		}),
		PairOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cryptopulse_scan_pairs_total",
			Help: "Scanned asset/timeframe pairs by outcome",
		}, []string{"outcome"}),
		SignalsDetected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cryptopulse_signals_detected_total",
			Help: "Signals detected on closed candles, by type",
		}, []string{"signal_type"}),
		ShortsGated: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cryptopulse_shorts_gated",
			Help: "1 when the BTC safety gate suppresses unlock shorts",
		}),

		AlertCycles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cryptopulse_alert_cycles_total",
			Help: "Completed matcher passes over ACTIVE alerts",
		}),
		AlertCycleDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cryptopulse_alert_cycle_duration_seconds",
			Help:    "Wall time of one matcher cycle",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 15, 30},
		}),
		AlertOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cryptopulse_alert_evaluations_total",
			Help: "Alert evaluations by outcome",
		}, []string{"outcome"}),
		AlertFires: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cryptopulse_alert_fires_total",
			Help: "Alerts that fired and were delivered",
		}, []string{"kind"}),
		NotifyFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cryptopulse_notify_failures_total",
			Help: "Notification sends that failed and were rolled back",
		}),
		ClaimConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cryptopulse_alert_claim_conflicts_total",
			Help: "Alert fires lost to a concurrent writer",
		}),

		PriceCacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cryptopulse_price_cache_lookups_total",
			Help: "Redis price cache lookups by result",
		}, []string{"result"}),
		StreamReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cryptopulse_price_stream_reconnects_total",
			Help: "Binance ticker websocket reconnects",
		}),
		RedisCircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cryptopulse_redis_circuit_breaker_state",
			Help: "Redis circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		RedisCircuitBreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cryptopulse_redis_circuit_breaker_trips_total",
			Help: "Times the Redis circuit breaker tripped open",
		}),

		AlertsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cryptopulse_alerts_created_total",
			Help: "Alerts created, by source",
		}, []string{"source"}),
	}

	reg.MustRegister(
		m.ScanCycles,
		m.ScanCycleDur,
		m.PairOutcomes,
		m.SignalsDetected,
		m.ShortsGated,
		m.AlertCycles,
		m.AlertCycleDur,
		m.AlertOutcomes,
		m.AlertFires,
		m.NotifyFailures,
		m.ClaimConflicts,
		m.PriceCacheLookups,
		m.StreamReconnects,
		m.RedisCircuitBreakerState,
		m.RedisCircuitBreakerTrips,
		m.AlertsCreated,
	)

	return m
}

// ObserveScanCycle records one finished scan cycle.
func (m *Metrics) ObserveScanCycle(d time.Duration) {
	if m == nil {
		return
	}
	m.ScanCycles.Inc()
	m.ScanCycleDur.Observe(d.Seconds())
}

// ObservePair records the outcome of one scanned pair and the signals it produced.
func (m *Metrics) ObservePair(outcome string, signalTypes ...string) {
	if m == nil {
		return
	}
	m.PairOutcomes.WithLabelValues(outcome).Inc()
	for _, st := range signalTypes {
		m.SignalsDetected.WithLabelValues(st).Inc()
	}
}

// SetShortsGated mirrors the safety gate decision.
func (m *Metrics) SetShortsGated(v bool) {
	if m == nil {
		return
	}
	if v {
		m.ShortsGated.Set(1)
	} else {
		m.ShortsGated.Set(0)
	}
}

// ObserveAlertCycle records one finished matcher cycle.
func (m *Metrics) ObserveAlertCycle(d time.Duration) {
	if m == nil {
		return
	}
	m.AlertCycles.Inc()
	m.AlertCycleDur.Observe(d.Seconds())
}

// ObserveAlert records the outcome of one alert evaluation.
func (m *Metrics) ObserveAlert(outcome string) {
	if m == nil {
		return
	}
	m.AlertOutcomes.WithLabelValues(outcome).Inc()
}

// AlertFired counts a delivered alert of the given kind.
func (m *Metrics) AlertFired(kind string) {
	if m == nil {
		return
	}
	m.AlertFires.WithLabelValues(kind).Inc()
}

// NotifyFailed counts a failed delivery.
func (m *Metrics) NotifyFailed() {
	if m == nil {
		return
	}
	m.NotifyFailures.Inc()
}

// ClaimLost counts a fire that lost the conditional update.
func (m *Metrics) ClaimLost() {
	if m == nil {
		return
	}
	m.ClaimConflicts.Inc()
}

// PriceCacheLookup counts a Redis price cache hit or miss.
func (m *Metrics) PriceCacheLookup(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.PriceCacheLookups.WithLabelValues("hit").Inc()
	} else {
		m.PriceCacheLookups.WithLabelValues("miss").Inc()
	}
}

// StreamReconnected counts a websocket reconnect.
func (m *Metrics) StreamReconnected() {
	if m == nil {
		return
	}
	m.StreamReconnects.Inc()
}

// BreakerState records a circuit breaker transition. state uses the gauge
// encoding (0=closed, 1=open, 2=half-open).
func (m *Metrics) BreakerState(state int) {
	if m == nil {
		return
	}
	m.RedisCircuitBreakerState.Set(float64(state))
	if state == 1 {
		m.RedisCircuitBreakerTrips.Inc()
	}
}

// AlertCreated counts an alert created through source.
func (m *Metrics) AlertCreated(source string) {
	if m == nil {
		return
	}
	m.AlertsCreated.WithLabelValues(source).Inc()
}

// Pinger is satisfied by the SQL store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthStatus represents the system health.
type HealthStatus struct {
	mu sync.RWMutex

	DBOK             bool      `json:"db_ok"`
	RedisEnabled     bool      `json:"redis_enabled"`
	RedisConnected   bool      `json:"redis_connected"`
	StreamConnected  bool      `json:"stream_connected"`
	LastScanAt       time.Time `json:"last_scan_at"`
	LastAlertCycleAt time.Time `json:"last_alert_cycle_at"`

	// Liveness probe results
	RedisLatencyMs float64   `json:"redis_latency_ms"`
	DBLatencyMs    float64   `json:"db_latency_ms"`
	LastCheckAt    time.Time `json:"last_check_at"`
	StartedAt      time.Time `json:"started_at"`
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{
		StartedAt: time.Now(),
	}
}

func (h *HealthStatus) SetStreamConnected(v bool) {
	h.mu.Lock()
	h.StreamConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastScan(t time.Time) {
	h.mu.Lock()
	h.LastScanAt = t
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastAlertCycle(t time.Time) {
	h.mu.Lock()
	h.LastAlertCycleAt = t
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisEnabled = true
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckDB pings the database and records latency + health.
func (h *HealthStatus) CheckDB(ctx context.Context, db Pinger) {
	start := time.Now()
	err := db.Ping(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.DBOK = err == nil
	h.DBLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker probes once immediately, then every interval.
// rdb may be nil when Redis is not configured.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, db Pinger, interval time.Duration) {
	probe := func() {
		probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if rdb != nil {
			h.CheckRedis(probeCtx, rdb)
		}
		if db != nil {
			h.CheckDB(probeCtx, db)
		}
	}
	go func() {
		probe()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probe()
			}
		}
	}()
}

// Snapshot is the /healthz body.
type Snapshot struct {
	Status           string  `json:"status"`
	Uptime           string  `json:"uptime"`
	DBOK             bool    `json:"db_ok"`
	DBLatencyMs      float64 `json:"db_latency_ms"`
	RedisEnabled     bool    `json:"redis_enabled"`
	RedisConnected   bool    `json:"redis_connected"`
	RedisLatencyMs   float64 `json:"redis_latency_ms"`
	StreamConnected  bool    `json:"stream_connected"`
	LastScanAt       string  `json:"last_scan_at,omitempty"`
	LastAlertCycleAt string  `json:"last_alert_cycle_at,omitempty"`
	LastCheckAt      string  `json:"last_check_at"`
}

// Snapshot computes the overall status. The database is required; Redis
// only degrades the service since prices fall back to the exchange.
func (h *HealthStatus) Snapshot() (Snapshot, int) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := "healthy"
	httpCode := http.StatusOK
	if h.RedisEnabled && !h.RedisConnected {
		overallStatus = "degraded"
	}
	if !h.DBOK {
		overallStatus = "unhealthy"
		httpCode = http.StatusServiceUnavailable
	}

	s := Snapshot{
		Status:          overallStatus,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		DBOK:            h.DBOK,
		DBLatencyMs:     h.DBLatencyMs,
		RedisEnabled:    h.RedisEnabled,
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		StreamConnected: h.StreamConnected,
		LastCheckAt:     h.LastCheckAt.Format(time.RFC3339),
	}
	if !h.LastScanAt.IsZero() {
		s.LastScanAt = h.LastScanAt.Format(time.RFC3339)
	}
	if !h.LastAlertCycleAt.IsZero() {
		s.LastAlertCycleAt = h.LastAlertCycleAt.Format(time.RFC3339)
	}
	return s, httpCode
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	status, httpCode := h.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	health *HealthStatus
	addr   string
	srv    *http.Server
}

// NewServer creates a metrics and health server.
func NewServer(addr string, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		health: health,
		addr:   addr,
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
