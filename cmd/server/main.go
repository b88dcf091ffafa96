// Package main is the entry point for the allocator service.
// It serves Hierarchical Risk Parity allocations over HTTP for a fixed set of
// risk categories, using daily prices from Yahoo Finance.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/allocator/internal/categories"
	"github.com/aristath/allocator/internal/clients/yahoo"
	"github.com/aristath/allocator/internal/config"
	"github.com/aristath/allocator/internal/database"
	"github.com/aristath/allocator/internal/domain"
	"github.com/aristath/allocator/internal/modules/allocation"
	allocationhandlers "github.com/aristath/allocator/internal/modules/allocation/handlers"
	"github.com/aristath/allocator/internal/modules/historical"
	historicalhandlers "github.com/aristath/allocator/internal/modules/historical/handlers"
	"github.com/aristath/allocator/internal/modules/optimization"
	"github.com/aristath/allocator/internal/scheduler"
	"github.com/aristath/allocator/internal/server"
	"github.com/aristath/allocator/pkg/logger"
)

// main wires the application:
// 1. Loads configuration and initializes logging
// 2. Loads the category registry
// 3. Builds the Yahoo client, optionally wrapped by the SQLite price cache
// 4. Builds the optimization pipeline and HTTP handlers
// 5. Starts the server and waits for a shutdown signal
func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{
			Level:  "info",
			Pretty: true,
		})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:   cfg.LogLevel,
		Pretty:  cfg.LogPretty,
		Service: "allocator",
	})
	logger.SetGlobalLogger(log)

	log.Info().Msg("Starting allocator")

	registry, err := categories.LoadFile(cfg.CategoriesFile)
	if err != nil {
		log.Fatal().Err(err).Str("file", cfg.CategoriesFile).Msg("Failed to load categories")
	}
	log.Info().Strs("categories", registry.Names()).Msg("Category registry loaded")

	yahooClient := yahoo.NewClient(log,
		yahoo.WithBaseURL(cfg.MarketData.BaseURL),
		yahoo.WithRateLimit(cfg.MarketData.RateLimit),
		yahoo.WithMaxConcurrency(cfg.MarketData.MaxConcurrency),
		yahoo.WithTimeout(cfg.MarketData.FetchTimeout),
	)

	var fetcher domain.PriceFetcher = yahooClient
	var cacheDB *database.DB
	var sched *scheduler.Scheduler

	if cfg.PriceCache.Enabled {
		cacheDB, sched, fetcher = setupPriceCache(cfg, registry, yahooClient, log)
	}

	returnsKind, err := optimization.ParseReturnsKind(cfg.Optimizer.ReturnsKind)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid returns kind")
	}

	service := allocation.NewService(
		registry,
		fetcher,
		optimization.NewHRPOptimizer(optimization.HRPOptions{
			Linkage: optimization.Linkage(cfg.Optimizer.Linkage),
		}, log),
		optimization.NewDiscreteAllocator(log),
		allocation.ServiceConfig{
			ReturnsKind:    returnsKind,
			RiskFreeRate:   cfg.Optimizer.RiskFreeRate,
			TradingDays:    cfg.Optimizer.TradingDays,
			WeightCutoff:   cfg.Optimizer.WeightCutoff,
			WeightRounding: cfg.Optimizer.WeightRounding,
			FetchTimeout:   cfg.MarketData.FetchTimeout,
			DefaultStart:   cfg.MarketData.HistoryStart,
			DefaultEnd:     cfg.MarketData.HistoryEnd,
		},
		log,
	)

	srv := server.New(server.Config{
		Log:               log,
		Port:              cfg.Port,
		DevMode:           cfg.DevMode,
		RequestTimeout:    cfg.RequestTimeout,
		AllocationHandler: allocationhandlers.NewHandler(service, registry, log),
		HistoricalHandler: historicalhandlers.NewHandler(fetcher, cfg.MarketData.HistoryStart, cfg.MarketData.HistoryEnd, cfg.MarketData.FetchTimeout, log),
		CacheDB:           cacheDB,
	})

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	if sched != nil {
		sched.Start()
		log.Info().Msg("Scheduler started")
	}

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	if sched != nil {
		sched.Stop()
		log.Info().Msg("Scheduler stopped")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	if cacheDB != nil {
		if err := cacheDB.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close price cache")
		}
	}

	log.Info().Msg("Server stopped")
}

// setupPriceCache opens the cache database, wraps the Yahoo client and
// schedules the refresh and integrity jobs.
func setupPriceCache(
	cfg *config.Config,
	registry *categories.Registry,
	upstream domain.PriceFetcher,
	log zerolog.Logger,
) (*database.DB, *scheduler.Scheduler, domain.PriceFetcher) {
	db, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "prices.db"),
		Profile: database.ProfileCache,
		Name:    "prices",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open price cache")
	}

	migrateCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := db.Migrate(migrateCtx, historical.Schema); err != nil {
		log.Fatal().Err(err).Msg("Failed to migrate price cache")
	}

	repo := historical.NewRepository(db.Conn())
	cached := historical.NewCachingFetcher(upstream, repo, cfg.PriceCache.TTL, log)
	log.Info().Str("path", db.Path()).Dur("ttl", cfg.PriceCache.TTL).Msg("Price cache enabled")

	sched := scheduler.New(log)
	if cfg.PriceCache.RefreshSchedule != "" {
		job := historical.NewRefreshJob(
			cached,
			repo,
			registry.Symbols(),
			cfg.MarketData.HistoryStart,
			cfg.MarketData.HistoryEnd,
			cfg.MarketData.FetchTimeout,
			log,
		)
		if err := sched.AddJob(cfg.PriceCache.RefreshSchedule, job); err != nil {
			log.Fatal().Err(err).Str("schedule", cfg.PriceCache.RefreshSchedule).Msg("Failed to schedule price refresh")
		}
		log.Info().Str("schedule", cfg.PriceCache.RefreshSchedule).Msg("Price refresh scheduled")
	}

	if cfg.PriceCache.CheckSchedule != "" {
		if err := sched.AddJob(cfg.PriceCache.CheckSchedule, scheduler.NewCheckDatabaseJob(db, log)); err != nil {
			log.Fatal().Err(err).Str("schedule", cfg.PriceCache.CheckSchedule).Msg("Failed to schedule price cache check")
		}
	}

	return db, sched, cached
}
