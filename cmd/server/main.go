// Command server runs the swap tracker: ingestion from the daemon's stats
// database, the reporting API, the registration workflow and the price cache,
// all in one process.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	stdlog "log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"kdf-swap-tracker/internal/api"
	"kdf-swap-tracker/internal/config"
	"kdf-swap-tracker/internal/events"
	"kdf-swap-tracker/internal/idhash"
	"kdf-swap-tracker/internal/ingestion"
	"kdf-swap-tracker/internal/insight"
	"kdf-swap-tracker/internal/logging"
	"kdf-swap-tracker/internal/match"
	"kdf-swap-tracker/internal/metrics"
	"kdf-swap-tracker/internal/observability"
	"kdf-swap-tracker/internal/prices"
	"kdf-swap-tracker/internal/registration"
	"kdf-swap-tracker/internal/storage/memory"
	"kdf-swap-tracker/internal/storage/sqlite"
)

func main() {
	cfg := config.Load()

	logger, err := logging.New(cfg.LogLevel, cfg.LogEncoding)
	if err != nil {
		stdlog.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Event configuration. Refusing to start without one prevents silently
	// serving an empty leaderboard for a live competition. Only a missing
	// file may be waived; a file that exists but cannot be parsed is always
	// fatal.
	groups, err := events.Load(cfg.EventsJSONPath)
	if err != nil {
		if !cfg.EventsAllowEmpty || !errors.Is(err, fs.ErrNotExist) {
			logger.Fatal("load events", zap.String("path", cfg.EventsJSONPath), zap.Error(err))
		}
		logger.Warn("events file missing, running without events",
			zap.String("path", cfg.EventsJSONPath))
	}
	if err := events.Validate(groups, cfg.EventsAllowOverlap); err != nil {
		logger.Fatal("invalid event configuration", zap.Error(err))
	}
	logger.Info("events loaded", zap.Int("groups", len(groups)))

	hasher := idhash.New(cfg.PubkeyHashKey)
	if !hasher.Keyed() {
		logger.Warn("pubkey hash key is empty, falling back to unkeyed SHA-256")
	}

	store := memory.NewSwapStore(hasher, groups)
	matcher := match.New(match.Options{Timeout: cfg.LegTimeout, Logger: logger})

	source, err := ingestion.OpenSource(cfg.KDFDBPath)
	if err != nil {
		logger.Fatal("open stats database", zap.String("path", cfg.KDFDBPath), zap.Error(err))
	}
	defer source.Close()

	runner := ingestion.NewRunner(ingestion.RunnerOptions{
		Source:        source,
		Matcher:       matcher,
		Store:         store,
		Logger:        logger.Named("ingestion"),
		PollInterval:  cfg.PollInterval,
		LoadHistory:   cfg.LoadHistory,
		BackfillSince: cfg.BackfillSince,
	})
	go func() {
		if err := runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("ingestion stopped", zap.Error(err))
			stop()
		}
	}()

	var priceSource metrics.PriceSource
	if cfg.PricesEnabled() {
		coinCfg, err := prices.LoadCoinConfig(ctx, cfg.CoinConfigPath, cfg.CoinConfigURL)
		if err != nil {
			logger.Warn("coin configuration unavailable, prices degraded", zap.Error(err))
		}
		cache := prices.NewCache(prices.CacheOptions{
			Config:   coinCfg,
			Logger:   logger.Named("prices"),
			Interval: time.Duration(cfg.PriceRefreshSeconds) * time.Second,
		})
		go cache.Run(ctx)
		priceSource = cache
	}

	var regService *registration.Service
	if cfg.RegistrationEnabled() {
		regStore, err := sqlite.NewRegistrationStore(cfg.RegistrationDBPath,
			func() int64 { return time.Now().Unix() })
		if err != nil {
			logger.Fatal("open registration database",
				zap.String("path", cfg.RegistrationDBPath), zap.Error(err))
		}
		defer regStore.Close()

		regService = registration.New(registration.Options{
			Store:       regStore,
			Hasher:      hasher,
			Explorer:    insight.NewClient(cfg.InsightBaseURL, cfg.InsightAPIPath),
			Logger:      logger.Named("registration"),
			DestAddress: cfg.RegistrationDOCAddress,
			Expiry:      cfg.RegistrationExpiry,
			FeeMin:      cfg.RegistrationAmountMin,
			FeeMax:      cfg.RegistrationAmountMax,
		})
		go regService.Run(ctx, time.Duration(cfg.RegistrationPollSeconds)*time.Second)
	} else {
		logger.Info("registration disabled")
	}

	cronLogger := cron.PrintfLogger(zap.NewStdLog(logger.Named("cron")))
	scheduler := cron.New(cron.WithSeconds(), cron.WithChain(cron.Recover(cronLogger)))
	if cfg.RetentionHours > 0 {
		spec := fmt.Sprintf("@every %s", cfg.PruneInterval)
		_, err := scheduler.AddFunc(spec, func() {
			pctx, cancel := context.WithTimeout(ctx, 30*time.Second)
			defer cancel()
			removed, err := store.Prune(pctx, time.Now().Unix(), cfg.Retention())
			if err != nil {
				logger.Warn("prune failed", zap.Error(err))
				return
			}
			observability.RecordPrune(removed)
			if removed > 0 {
				logger.Info("pruned swaps", zap.Int("removed", removed))
			}
		})
		if err != nil {
			logger.Fatal("schedule prune", zap.Error(err))
		}
	} else {
		// Retention 0 keeps everything; with a zero cutoff a prune cycle
		// would remove every non-event swap on its first run.
		logger.Info("pruning disabled", zap.Int("retention_hours", cfg.RetentionHours))
	}
	scheduler.Start()
	defer scheduler.Stop()

	controller := &api.Controller{
		Store:        store,
		Aggregator:   metrics.NewAggregator(store, priceSource),
		Resolver:     events.NewResolver(groups),
		Hasher:       hasher,
		Registration: regService,
		Logger:       logger.Named("api"),
	}
	server := &http.Server{
		Addr:              cfg.Listen,
		Handler:           controller.NewRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.Listen))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	logger.Info("goodbye")
}
