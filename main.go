package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"fundingflow/config"
	"fundingflow/internal/aggregator"
	"fundingflow/internal/model"
	"fundingflow/internal/ranking"
	binancereader "fundingflow/internal/reader/binance"
	bitgetreader "fundingflow/internal/reader/bitget"
	bybitreader "fundingflow/internal/reader/bybit"
	okxreader "fundingflow/internal/reader/okx"
	"fundingflow/internal/spot"
	"fundingflow/logger"
)

const shutdownTimeout = 30 * time.Second

type monitor interface {
	Start(ctx context.Context) error
	Stop()
}

func main() {
	// Optional .env file for local development.
	godotenv.Load()

	configPath := flag.String("config", config.DefaultConfigPath(), "path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.GetLogger().WithComponent("main").WithError(err).Error("failed to load configuration")
		os.Exit(1)
	}

	log := logger.GetLogger()
	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithComponent("main").WithError(err).Error("failed to configure logging")
		os.Exit(1)
	}

	log.WithComponent("main").WithFields(logger.Fields{
		"service":     cfg.Fundingflow.Name,
		"version":     cfg.Fundingflow.Version,
		"environment": config.AppEnvironment(),
	}).Info("starting funding rate aggregation service")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Metrics.CloudWatch.Enabled {
		logger.InitCloudWatch(cfg.Metrics.CloudWatch.Region, cfg.Metrics.CloudWatch.Namespace, cfg.Metrics.CloudWatch.Dashboard)
	}
	if cfg.Logging.Level == "report" {
		logger.StartReport(ctx, log, time.Minute)
	}

	spotCache := spot.NewCache(cfg.Spot.TTL, map[string]spot.FetchFunc{
		model.ExchangeBinance: spot.NewBinanceFetcher(cfg),
		model.ExchangeBybit:   spot.NewBybitFetcher(cfg),
		model.ExchangeBitget:  spot.NewBitgetFetcher(cfg),
		model.ExchangeOkx:     spot.NewOkxFetcher(cfg),
	})

	var collectors []aggregator.Collector
	var monitors []monitor

	if cfg.Source.Binance.Futures.Enabled {
		m := binancereader.NewMonitor(cfg, spotCache)
		collectors = append(collectors, m)
		monitors = append(monitors, m)
	}
	if cfg.Source.Okx.Futures.Enabled {
		m := okxreader.NewMonitor(cfg, spotCache)
		collectors = append(collectors, m)
		monitors = append(monitors, m)
	}
	if cfg.Source.Bybit.Futures.Enabled {
		collectors = append(collectors, bybitreader.NewFetcher(cfg, spotCache))
	}
	if cfg.Source.Bitget.Futures.Enabled {
		collectors = append(collectors, bitgetreader.NewFetcher(cfg, spotCache))
	}

	if len(collectors) == 0 {
		log.WithComponent("main").Error("no funding sources enabled")
		os.Exit(1)
	}

	agg := aggregator.New(collectors...)

	for _, m := range monitors {
		if err := m.Start(ctx); err != nil {
			log.WithComponent("main").WithError(err).Error("failed to start stream monitor")
			os.Exit(1)
		}
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		runCollectionLoop(ctx, cfg, agg)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.WithComponent("main").WithFields(logger.Fields{"signal": sig.String()}).Info("shutdown signal received")

	cancel()
	for _, m := range monitors {
		m.Stop()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		log.WithComponent("main").Info("shutdown complete")
	case <-time.After(shutdownTimeout):
		log.WithComponent("main").Warn("shutdown timed out, exiting anyway")
	}
}

// runCollectionLoop runs one collection round per interval and logs the
// rankings and threshold alerts for every exchange in the result.
func runCollectionLoop(ctx context.Context, cfg *config.Config, agg *aggregator.Aggregator) {
	log := logger.GetLogger().WithComponent("collection_runner")

	ticker := time.NewTicker(cfg.Aggregator.Interval)
	defer ticker.Stop()

	runRound(ctx, cfg, agg, log)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runRound(ctx, cfg, agg, log)
		}
	}
}

func runRound(ctx context.Context, cfg *config.Config, agg *aggregator.Aggregator, log *logger.Entry) {
	result := agg.Collect(ctx, cfg.Aggregator.Exchanges, cfg.Aggregator.SpotFilter)
	now := time.Now()

	for exchange, snapshot := range result {
		exLog := log.WithFields(logger.Fields{"exchange": exchange})

		for _, entry := range ranking.TopN(snapshot, true, cfg.Ranking.TopN) {
			exLog.WithFields(logger.Fields{
				"symbol": entry.Symbol,
				"rate":   entry.Rate,
				"price":  entry.Price,
			}).Info("top positive funding rate")
		}
		for _, entry := range ranking.TopN(snapshot, false, cfg.Ranking.TopN) {
			exLog.WithFields(logger.Fields{
				"symbol": entry.Symbol,
				"rate":   entry.Rate,
				"price":  entry.Price,
			}).Info("top negative funding rate")
		}

		for _, alert := range ranking.ThresholdAlerts(snapshot, cfg.Ranking.Threshold, cfg.Ranking.VolumeFilter, now) {
			exLog.WithFields(logger.Fields{
				"symbol":       alert.Entry.Symbol,
				"rate":         alert.Entry.Rate,
				"price":        alert.Entry.Price,
				"volume":       alert.Entry.Volume,
				"next_funding": alert.Countdown.String(),
			}).Info("funding rate above alert threshold")
		}
	}
}
