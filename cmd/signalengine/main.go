package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"cryptopulse/config"
	"cryptopulse/internal/detector"
	"cryptopulse/internal/logger"
	"cryptopulse/internal/marketdata/binance"
	"cryptopulse/internal/marketdata/stream"
	"cryptopulse/internal/matcher"
	"cryptopulse/internal/metrics"
	"cryptopulse/internal/model"
	"cryptopulse/internal/notification"
	"cryptopulse/internal/scheduler"
	redisstore "cryptopulse/internal/store/redis"
	"cryptopulse/internal/store/sqlstore"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[signalengine] starting...")

	cfg := config.Load()
	logger.Init("signalengine", logger.ParseLevel(cfg.LogLevel))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// ---- Metrics & health ----
	prom := metrics.NewMetrics(nil)
	health := metrics.NewHealthStatus()
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)
	metricsSrv.Start()

	// ---- Database ----
	db, err := sqlstore.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("[signalengine] database init failed: %v", err)
	}
	defer db.Close()
	log.Printf("[signalengine] %s store ready", db.Driver())

	// ---- Exchange ----
	exchange := binance.New(binance.Config{
		BaseURL:     cfg.BinanceBaseURL,
		RequestRate: cfg.BinanceRPS,
		Burst:       int(cfg.BinanceRPS),
		Timeout:     10 * time.Second,
	}, nil)

	// ---- Live prices: ticker stream → Redis cache → REST fallback ----
	var prices model.PriceSource = exchange
	if cfg.BinanceStreamURL != "" {
		book := stream.NewPriceBook(cfg.BinanceStreamURL, exchange)
		book.OnConnect = func() {
			health.SetStreamConnected(true)
		}
		book.OnReconnect = func() {
			health.SetStreamConnected(false)
			prom.StreamReconnected()
		}
		go book.Run(ctx)
		prices = book
		log.Printf("[signalengine] price stream: %s", cfg.BinanceStreamURL)
	}

	var rdb *goredis.Client
	if cfg.RedisAddr != "" {
		rdb, err = redisstore.Connect(ctx, redisstore.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			log.Printf("[signalengine] WARNING: redis init failed: %v (continuing without price cache)", err)
			rdb = nil
		} else {
			defer rdb.Close()
			prices = newPriceCache(prices, rdb, cfg.PriceCacheTTL, prom)
		}
	}
	health.StartLivenessChecker(ctx, rdb, db, 15*time.Second)

	// ---- Notifications ----
	var notifier model.Notifier
	if cfg.DryRun {
		notifier = notification.NewLogNotifier()
		log.Println("[signalengine] NOTIFY_DRY_RUN set, messages are logged only")
	} else {
		notifier = &notification.Router{
			Telegram: notification.NewTelegram(cfg.TelegramBotToken),
			Webhook:  notification.NewWebhook(),
		}
	}

	// ---- Detector & scan loop ----
	detCfg := detector.DefaultConfig()
	det := detector.New(detCfg, exchange, db.Signals())
	gate := detector.DefaultSafetyGate(exchange)

	scanCfg := scheduler.DefaultScanConfig()
	scanCfg.Assets = cfg.ParseSymbols()
	if tfs := cfg.ParseTimeframes(); len(tfs) > 0 {
		scanCfg.Timeframes = tfs
	}
	scanCfg.UnlockTokens = detCfg.Unlocks.Tokens()
	scanCfg.Interval = cfg.ScanInterval
	scanCfg.SettleDelay = cfg.SettleDelay
	scanCfg.PairTimeout = cfg.PairTimeout
	scanCfg.RequestRate = cfg.ScanRate
	scanCfg.RetryDelay = cfg.RetryDelay
	scanner := scheduler.NewScanner(scanCfg, det, gate, prom, health)

	// ---- Matcher & alert loop ----
	m := matcher.New(matcher.Config{
		Cooldown:     cfg.Cooldown,
		Recency:      cfg.SignalRecency,
		AlertTimeout: cfg.AlertTimeout,
	}, db.Alerts(), db.Signals(), prices, db.Users(), notifier, prom)
	alertLoop := scheduler.NewAlertLoop(m, cfg.AlertInterval, cfg.RetryDelay, health)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		scanner.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		alertLoop.Run(ctx)
	}()

	slog.Info("signal engine running",
		"pairs", len(scanner.Pairs()),
		"scan_interval", scanCfg.Interval.String(),
		"alert_interval", alertLoop.Interval().String(),
		"redis", rdb != nil,
		"dry_run", cfg.DryRun,
	)

	// ---- Wait for shutdown signal ----
	<-sigCh
	log.Println("[signalengine] shutdown signal received, cleaning up...")
	cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(20 * time.Second):
		log.Println("[signalengine] WARNING: loops did not stop in time")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	metricsSrv.Stop(shutdownCtx)

	log.Println("[signalengine] shutdown complete.")
}

// newPriceCache wraps src in the Redis cache and reports cache and breaker
// activity to prom.
func newPriceCache(src model.PriceSource, rdb *goredis.Client, ttl time.Duration, prom *metrics.Metrics) *redisstore.PriceCache {
	cache := redisstore.NewPriceCache(src, rdb, nil, ttl)
	cache.OnHit = func(string) { prom.PriceCacheLookup(true) }
	cache.OnMiss = func(string) { prom.PriceCacheLookup(false) }
	cache.Breaker().OnStateChange = func(from, to redisstore.State) {
		log.Printf("[signalengine] redis breaker %s -> %s", from, to)
		prom.BreakerState(int(to))
	}
	return cache
}
