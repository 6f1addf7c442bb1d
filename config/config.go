package config

import (
	"errors"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"cryptopulse/internal/model"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Credentials
	TelegramBotToken    string
	TelegramBotUsername string // for t.me deep links
	DatabaseURL         string

	// Infrastructure
	RedisAddr     string // empty disables the price cache
	RedisPassword string
	RedisDB       int
	PriceCacheTTL time.Duration
	MetricsAddr   string
	APIAddr       string
	LogLevel      string

	// Binance
	BinanceBaseURL   string
	BinanceStreamURL string // empty disables the websocket price book
	BinanceRPS       float64

	// Scan matrix (comma-separated)
	Symbols    string
	Timeframes string

	// Scan loop
	ScanInterval time.Duration
	SettleDelay  time.Duration
	PairTimeout  time.Duration
	ScanRate     float64

	// Alert loop
	AlertInterval time.Duration
	AlertTimeout  time.Duration
	Cooldown      time.Duration
	SignalRecency time.Duration

	RetryDelay time.Duration
	DryRun     bool // log notifications instead of sending
}

// Load reads .env (if present) and the environment. TELEGRAM_BOT_TOKEN and
// DATABASE_URL are required; the process exits if either is missing.
func Load() *Config {
	loadDotEnv()
	cfg, missing := load(os.Getenv)
	for _, key := range missing {
		log.Fatalf("[config] required env var %s not set", key)
	}
	return cfg
}

// LoadOptional is Load without the required-key check, for one-shot tools.
func LoadOptional() *Config {
	loadDotEnv()
	cfg, _ := load(os.Getenv)
	return cfg
}

func loadDotEnv() {
	path := os.Getenv("ENV_FILE")
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("[config] could not read %s: %v", path, err)
	}
}

func load(env func(string) string) (*Config, []string) {
	e := source(env)
	var missing []string
	require := func(key string) string {
		v := e.get(key, "")
		if v == "" {
			missing = append(missing, key)
		}
		return v
	}

	cfg := &Config{
		TelegramBotToken:    require("TELEGRAM_BOT_TOKEN"),
		TelegramBotUsername: e.get("TELEGRAM_BOT_USERNAME", ""),
		DatabaseURL:         require("DATABASE_URL"),

		RedisAddr:     e.get("REDIS_ADDR", ""),
		RedisPassword: e.get("REDIS_PASSWORD", ""),
		RedisDB:       int(e.float("REDIS_DB", 0)),
		PriceCacheTTL: e.duration("PRICE_CACHE_TTL", 10*time.Second),
		MetricsAddr:   e.get("METRICS_ADDR", ":9090"),
		APIAddr:       e.get("API_ADDR", ":8080"),
		LogLevel:      e.get("LOG_LEVEL", "info"),

		BinanceBaseURL:   e.get("BINANCE_BASE_URL", "https://api.binance.com"),
		BinanceStreamURL: e.get("BINANCE_STREAM_URL", "wss://stream.binance.com:9443/ws/!miniTicker@arr"),
		BinanceRPS:       e.float("BINANCE_RPS", 5),

		// Default: the seven majors on 1h and 4h
		Symbols:    e.get("SYMBOLS", "BTC,ETH,SOL,BNB,ADA,XRP,DOGE"),
		Timeframes: e.get("TIMEFRAMES", "1h,4h"),

		ScanInterval: e.duration("SCAN_INTERVAL", 15*time.Minute),
		SettleDelay:  e.duration("SCAN_SETTLE_DELAY", 5*time.Second),
		PairTimeout:  e.duration("PAIR_TIMEOUT", 30*time.Second),
		ScanRate:     e.float("SCAN_RATE", 2),

		AlertInterval: e.duration("ALERT_INTERVAL", 30*time.Second),
		AlertTimeout:  e.duration("ALERT_TIMEOUT", 15*time.Second),
		Cooldown:      e.duration("ALERT_COOLDOWN", time.Hour),
		SignalRecency: e.duration("SIGNAL_RECENCY", 24*time.Hour),

		RetryDelay: e.duration("RETRY_DELAY", 5*time.Second),
		DryRun:     e.bool("NOTIFY_DRY_RUN", false),
	}
	return cfg, missing
}

// ParseSymbols returns the upper-cased asset list.
func (c *Config) ParseSymbols() []string {
	var out []string
	for _, p := range strings.Split(c.Symbols, ",") {
		p = strings.ToUpper(strings.TrimSpace(p))
		// "BTC/USDT" and "BTCUSDT" are accepted for the base asset.
		p = strings.TrimSuffix(strings.TrimSuffix(p, "/USDT"), "USDT")
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

// ParseTimeframes parses the Timeframes string, skipping unsupported entries.
func (c *Config) ParseTimeframes() []model.Timeframe {
	parts := strings.Split(c.Timeframes, ",")
	tfs := make([]model.Timeframe, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		tf, err := model.ParseTimeframe(p)
		if err != nil {
			log.Printf("[config] skipping invalid timeframe: %q", p)
			continue
		}
		tfs = append(tfs, tf)
	}
	return tfs
}

type source func(string) string

func (s source) get(key, fallback string) string {
	v := strings.TrimSpace(s(key))
	if v == "" {
		return fallback
	}
	return v
}

func (s source) duration(key string, fallback time.Duration) time.Duration {
	v := s.get(key, "")
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		log.Printf("[config] invalid duration %s=%q, using %s", key, v, fallback)
		return fallback
	}
	return d
}

func (s source) float(key string, fallback float64) float64 {
	v := s.get(key, "")
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < 0 {
		log.Printf("[config] invalid number %s=%q, using %v", key, v, fallback)
		return fallback
	}
	return f
}

func (s source) bool(key string, fallback bool) bool {
	v := s.get(key, "")
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Printf("[config] invalid bool %s=%q, using %v", key, v, fallback)
		return fallback
	}
	return b
}
