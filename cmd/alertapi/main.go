package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"cryptopulse/config"
	"cryptopulse/internal/alertsvc"
	"cryptopulse/internal/api"
	"cryptopulse/internal/detector"
	"cryptopulse/internal/logger"
	"cryptopulse/internal/marketdata/binance"
	"cryptopulse/internal/metrics"
	"cryptopulse/internal/model"
	"cryptopulse/internal/notification"
	"cryptopulse/internal/parser"
	redisstore "cryptopulse/internal/store/redis"
	"cryptopulse/internal/store/sqlstore"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[alertapi] starting...")

	cfg := config.Load()
	logger.Init("alertapi", logger.ParseLevel(cfg.LogLevel))
	gin.SetMode(gin.ReleaseMode)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	prom := metrics.NewMetrics(nil)
	health := metrics.NewHealthStatus()

	db, err := sqlstore.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("[alertapi] database init failed: %v", err)
	}
	defer db.Close()

	// Prices are only read to resolve "hits" phrases, so REST plus the
	// shared cache is enough here.
	exchange := binance.New(binance.Config{
		BaseURL:     cfg.BinanceBaseURL,
		RequestRate: cfg.BinanceRPS,
		Timeout:     10 * time.Second,
	}, nil)
	var prices model.PriceSource = exchange

	var rdb *goredis.Client
	if cfg.RedisAddr != "" {
		rdb, err = redisstore.Connect(ctx, redisstore.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			log.Printf("[alertapi] WARNING: redis init failed: %v (continuing without price cache)", err)
			rdb = nil
		} else {
			defer rdb.Close()
			cache := redisstore.NewPriceCache(prices, rdb, nil, cfg.PriceCacheTTL)
			cache.OnHit = func(string) { prom.PriceCacheLookup(true) }
			cache.OnMiss = func(string) { prom.PriceCacheLookup(false) }
			cache.Breaker().OnStateChange = func(_, to redisstore.State) { prom.BreakerState(int(to)) }
			prices = cache
		}
	}
	health.StartLivenessChecker(ctx, rdb, db, 15*time.Second)

	// Unlock tokens are accepted in phrases alongside the scanned symbols.
	assets := append(cfg.ParseSymbols(), detector.DefaultUnlockCalendar().Tokens()...)
	svc := alertsvc.New(db.Alerts(), prices, parser.New(assets), prom)

	// ---- HTTP ----
	router := api.NewRouter(api.NewHandler(svc, db.Users(), db.Signals(), cfg.TelegramBotUsername), health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	srv := &http.Server{
		Addr:              cfg.APIAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Printf("[alertapi] listening on %s", cfg.APIAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("[alertapi] server error: %v", err)
		}
	}()

	// ---- Telegram bot ----
	if cfg.DryRun {
		log.Println("[alertapi] NOTIFY_DRY_RUN set, telegram listener disabled")
	} else {
		tg := notification.NewTelegram(cfg.TelegramBotToken)
		go notification.NewUpdatesListener(tg, tg, db.Users(), svc).Run(ctx)
	}

	<-sigCh
	log.Println("[alertapi] shutdown signal received, cleaning up...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[alertapi] shutdown: %v", err)
	}
	log.Println("[alertapi] shutdown complete.")
}
