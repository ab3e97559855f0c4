package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"

	"github.com/eventkernel/tradeengine/internal/config"
	"github.com/eventkernel/tradeengine/internal/csvvendor"
	"github.com/eventkernel/tradeengine/internal/engine"
	"github.com/eventkernel/tradeengine/internal/feed"
	"github.com/eventkernel/tradeengine/internal/fxcache"
	"github.com/eventkernel/tradeengine/internal/guardrail"
	"github.com/eventkernel/tradeengine/internal/histstore"
	"github.com/eventkernel/tradeengine/internal/market"
	"github.com/eventkernel/tradeengine/internal/matching"
	"github.com/eventkernel/tradeengine/internal/risk"
	"github.com/eventkernel/tradeengine/internal/strategy"
)

var (
	version   = "0.1.0"
	buildTime = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file (storage/cache/warmup/risk); omit to run with no cache and a CSV-only feed")
	csvPath := flag.String("csv", "", "path to an OHLCV CSV file to replay (required)")
	symbol := flag.String("symbol", "", "symbol the CSV file represents (required)")
	currency := flag.String("currency", "USD", "account and instrument currency")
	startingCash := flag.Float64("cash", 100_000, "starting account cash")
	fast := flag.Int("fast", 10, "fast SMA period in bars")
	slow := flag.Int("slow", 30, "slow SMA period in bars")
	qty := flag.Float64("qty", 1, "order quantity per signal")
	warmupStart := flag.String("warmup-start", "", "RFC3339 warm-up start (defaults to 90 days before run-start, or warmup.bars days before it when -config is given)")
	runStart := flag.String("run-start", "", "RFC3339 date the strategy begins trading (required)")
	runEnd := flag.String("run-end", "", "RFC3339 date the run ends (required)")
	flag.Parse()

	if *csvPath == "" || *symbol == "" || *runStart == "" || *runEnd == "" {
		flag.Usage()
		log.Fatal("engine: -csv, -symbol, -run-start, and -run-end are required")
	}

	log.Printf("starting tradeengine v%s (built: %s)", version, buildTime)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rStart, err := time.Parse(time.RFC3339, *runStart)
	if err != nil {
		log.Fatalf("engine: parse -run-start: %v", err)
	}
	rEnd, err := time.Parse(time.RFC3339, *runEnd)
	if err != nil {
		log.Fatalf("engine: parse -run-end: %v", err)
	}
	var wStart time.Time
	if *warmupStart != "" {
		wStart, err = time.Parse(time.RFC3339, *warmupStart)
		if err != nil {
			log.Fatalf("engine: parse -warmup-start: %v", err)
		}
	} else {
		wStart = rStart.AddDate(0, 0, -90)
	}

	symbolInfo := market.SymbolInfo{
		Symbol: *symbol, TickSize: decimal.NewFromFloat(0.01),
		ValuePerPoint: decimal.NewFromInt(1), Currency: *currency,
		InitialMargin: decimal.NewFromInt(0),
	}
	vendor, err := csvvendor.Load(*csvPath, *symbol, symbolInfo)
	if err != nil {
		log.Fatalf("engine: load csv vendor: %v", err)
	}
	log.Printf("loaded csv vendor for %s from %s", *symbol, *csvPath)

	var store *histstore.Store
	var cache *fxcache.Cache
	policy := risk.DefaultPolicy()
	if *configPath != "" {
		cfg, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("engine: load config: %v", err)
		}
		store, err = histstore.Open(ctx, histstore.Config{
			DSN: cfg.Storage.DSN, MaxOpenConns: cfg.Storage.MaxOpenConns,
			MaxIdleConns: cfg.Storage.MaxIdleConns, ConnMaxLifetime: cfg.Storage.ConnMaxLifetime,
			RetryAttempts: cfg.Storage.RetryAttempts, RetryDelay: cfg.Storage.RetryDelay,
		})
		if err != nil {
			log.Fatalf("engine: open histstore: %v", err)
		}
		defer store.Close()
		log.Println("historical month-slice cache enabled")

		cache, err = fxcache.New(fxcache.Config{Addr: cfg.Cache.Addr, DB: cfg.Cache.DB, TTL: cfg.Cache.TTL})
		if err != nil {
			log.Fatalf("engine: connect fx cache: %v", err)
		}
		defer cache.Close()
		log.Println("fx rate cache enabled")

		policy = risk.Policy{
			MaxPositionSize: decimal.NewFromFloat(cfg.Risk.MaxPositionSize),
			MaxPositions:    cfg.Risk.MaxPositions,
			MaxDrawdown:     decimal.NewFromFloat(cfg.Risk.MaxDrawdown),
			MinAccountSize:  decimal.NewFromFloat(cfg.Risk.MinAccountSize),
			MaxRiskPerTrade: decimal.NewFromFloat(cfg.Risk.MaxRiskPerTrade),
		}
		if *warmupStart == "" {
			wStart = rStart.AddDate(0, 0, -cfg.Warmup.Bars)
		}
	} else {
		log.Println("no -config supplied: running without histstore or fxcache")
	}

	feeder := feed.New(ctx, vendor, store)

	engCfg := engine.Config{
		AccountID:       "paper-1",
		AccountCurrency: *currency,
		StartingCash:    decimal.NewFromFloat(*startingCash),
		RiskPolicy:      policy,
		MatchingConfig:  matching.DefaultConfig(),
		GuardrailConfig: guardrail.DefaultMonitorConfig(),
	}

	var rateSource engine.RateSource
	if cache != nil {
		rateSource = cache
	}
	eng := engine.New(engCfg, vendor, vendor, feeder, rateSource)

	subs := []market.Subscription{
		{Symbol: *symbol, DataType: market.BaseDataCandle, Resolution: market.Day(), Primary: true},
	}
	strat := strategy.NewSMACrossover(*symbol, *fast, *slow, decimal.NewFromFloat(*qty))

	log.Printf("running %s..%s (warm-up from %s)", rStart.Format(time.RFC3339), rEnd.Format(time.RFC3339), wStart.Format(time.RFC3339))
	runErr := eng.Run(ctx, subs, wStart, rStart, rEnd, strat)

	view := eng.AccountView()
	log.Printf("run finished: phase=%s cash=%s margin_used=%s equity=%s", eng.Phase(), view.Cash, view.MarginUsed, view.Equity)

	hash, hashErr := eng.Trace().Hash()
	if hashErr == nil {
		log.Printf("trace hash: %s (%d entries)", hash, len(eng.Trace().Entries()))
	}

	if runErr != nil {
		fmt.Fprintf(os.Stderr, "engine: run ended with error: %v\n", runErr)
		os.Exit(1)
	}
}
