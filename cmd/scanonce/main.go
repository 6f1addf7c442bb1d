// cmd/scanonce runs a single scan cycle against live Binance data and prints
// what the detector finds, without waiting for a clock mark.
//
// Usage:
//
//	go run ./cmd/scanonce --assets=BTC,ETH --tf=1h,4h
//	go run ./cmd/scanonce --save   # persist detections to DATABASE_URL
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"text/tabwriter"
	"time"

	"cryptopulse/config"
	"cryptopulse/internal/detector"
	"cryptopulse/internal/logger"
	"cryptopulse/internal/marketdata/binance"
	"cryptopulse/internal/model"
	"cryptopulse/internal/scheduler"
	"cryptopulse/internal/store/sqlstore"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)

	cfg := config.LoadOptional()

	assetsStr := flag.String("assets", cfg.Symbols, "Comma-separated assets to scan")
	tfStr := flag.String("tf", cfg.Timeframes, "Comma-separated timeframes (15m,1h,4h,1d)")
	unlocks := flag.Bool("unlocks", true, "Also scan the unlock calendar tokens")
	save := flag.Bool("save", false, "Upsert detections into DATABASE_URL instead of an in-memory store")
	timeout := flag.Duration("timeout", 5*time.Minute, "Overall deadline")
	flag.Parse()

	logger.Init("scanonce", logger.ParseLevel(cfg.LogLevel))

	cfg.Symbols, cfg.Timeframes = *assetsStr, *tfStr
	assets, tfs := cfg.ParseSymbols(), cfg.ParseTimeframes()
	if len(assets) == 0 || len(tfs) == 0 {
		log.Fatal("[scanonce] no assets or timeframes to scan")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	dsn := "sqlite://:memory:"
	if *save {
		if cfg.DatabaseURL == "" {
			log.Fatal("[scanonce] --save requires DATABASE_URL")
		}
		dsn = cfg.DatabaseURL
	}
	db, err := sqlstore.Open(ctx, dsn)
	if err != nil {
		log.Fatalf("[scanonce] database init failed: %v", err)
	}

	exchange := binance.New(binance.Config{
		BaseURL:     cfg.BinanceBaseURL,
		RequestRate: cfg.BinanceRPS,
		Timeout:     10 * time.Second,
	}, nil)

	detCfg := detector.DefaultConfig()
	det := detector.New(detCfg, exchange, db.Signals())

	scanCfg := scheduler.DefaultScanConfig()
	scanCfg.Assets = assets
	scanCfg.Timeframes = tfs
	scanCfg.RequestRate = cfg.ScanRate
	scanCfg.PairTimeout = cfg.PairTimeout
	if *unlocks {
		scanCfg.UnlockTokens = detCfg.Unlocks.Tokens()
	}
	scanner := scheduler.NewScanner(scanCfg, det, detector.DefaultSafetyGate(exchange), nil, nil)

	log.Printf("[scanonce] scanning %d pairs (save=%v)", len(scanner.Pairs()), *save)
	report := scanner.RunCycle(ctx)
	printReport(os.Stdout, report)
	db.Close()

	if report.Failed > 0 {
		os.Exit(1)
	}
}

func printReport(w *os.File, r scheduler.ScanReport) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	defer tw.Flush()

	fmt.Fprintf(tw, "scan at %s  shorts_suppressed=%v  ok=%d skipped=%d failed=%d  (%s)\n\n",
		r.Started.Format(time.RFC3339), r.ShortsSuppressed, r.OK, r.Skipped, r.Failed, r.Duration.Truncate(time.Millisecond))

	pairs := make([]model.Pair, 0, len(r.Results))
	for p := range r.Results {
		pairs = append(pairs, p)
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].String() < pairs[j].String() })

	fmt.Fprintln(tw, "PAIR\tOUTCOME\tDETAIL")
	for _, p := range pairs {
		res := r.Results[p]
		detail := res.Reason
		if res.Outcome == model.OutcomeOK {
			if len(res.Value) == 0 {
				detail = "-"
			} else {
				detail = ""
				for i, ev := range res.Value {
					if i > 0 {
						detail += ", "
					}
					detail += string(ev.Type)
				}
				detail += " @ " + res.Value[0].DetectedAt.Format("2006-01-02 15:04")
			}
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", p, res.Outcome, detail)
	}
}
