package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/sheikh-saqib/trading-ledger/internal/config"
	"github.com/sheikh-saqib/trading-ledger/internal/events/kafka"
	eventlog "github.com/sheikh-saqib/trading-ledger/internal/events/logging"
	interfaces "github.com/sheikh-saqib/trading-ledger/internal/interfaces"
	"github.com/sheikh-saqib/trading-ledger/internal/ledger"
	"github.com/sheikh-saqib/trading-ledger/internal/oracle"
	"github.com/sheikh-saqib/trading-ledger/internal/oracle/polygon"
	"github.com/sheikh-saqib/trading-ledger/internal/pricecache"
	"github.com/sheikh-saqib/trading-ledger/internal/scheduler"
	"github.com/sheikh-saqib/trading-ledger/internal/server"
	"github.com/sheikh-saqib/trading-ledger/internal/storage/backend"
	"github.com/sheikh-saqib/trading-ledger/pkg/logger"
)

const reconcileTimeout = 5 * time.Minute

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		bootLog := logger.New(logger.Config{Level: "info"})
		bootLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.LogPretty,
	})
	logger.SetGlobalLogger(log)

	log.Info().Str("store", cfg.StoreDriver).Msg("Starting trading ledger")

	ctx := context.Background()

	// Initialize storage
	store, closeStore, err := backend.Open(ctx, backend.Options{
		Driver:      cfg.StoreDriver,
		SQLitePath:  cfg.SQLitePath,
		DatabaseURL: cfg.DatabaseURL,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize ledger store")
	}
	defer closeStore()

	// Price cache and oracle
	var cache *pricecache.Repository
	if cfg.PriceCachePath != "" {
		db, err := pricecache.Open(cfg.PriceCachePath)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to open price cache")
		}
		defer db.Close()
		cache = pricecache.NewRepository(db)
		if err := cache.Migrate(ctx); err != nil {
			log.Fatal().Err(err).Msg("Failed to migrate price cache")
		}
	}

	prices, err := buildOracle(cfg, cache, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize price oracle")
	}

	// Event publisher
	var publisher interfaces.EventPublisher = eventlog.NewPublisher(log)
	if len(cfg.KafkaBrokers) > 0 {
		kp := kafka.NewPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer kp.Close()
		publisher = kp
		log.Info().Strs("brokers", cfg.KafkaBrokers).Str("topic", cfg.KafkaTopic).Msg("Publishing ledger events to Kafka")
	}

	policy, err := config.LoadPolicy(cfg.PolicyFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load ledger policy")
	}

	ledgerService := ledger.NewLedger(store, prices, ledger.NewGuard(policy), log,
		ledger.WithLockTimeout(cfg.LockTimeout),
		ledger.WithPublisher(publisher),
	)

	// Initialize scheduler
	sched := scheduler.New(log)
	if err := registerJobs(sched, cfg, ledgerService, cache, log); err != nil {
		log.Fatal().Err(err).Msg("Failed to register jobs")
	}
	sched.Start()
	defer sched.Stop()

	// Initialize HTTP server
	srv := server.New(server.Config{
		Port:    cfg.Port,
		Log:     log,
		Ledger:  ledgerService,
		DevMode: cfg.LogPretty,
	})

	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}

// buildOracle prefers Polygon when a key is configured and falls back to the
// static table. Either one is fronted by the quote cache when it is enabled.
func buildOracle(cfg *config.Config, cache *pricecache.Repository, log zerolog.Logger) (interfaces.PriceOracle, error) {
	var upstream interfaces.PriceOracle
	if cfg.PolygonAPIKey != "" {
		upstream = polygon.NewClient(cfg.PolygonBaseURL, cfg.PolygonAPIKey, log)
	} else {
		table, err := oracle.ParseStaticPrices(cfg.StaticPrices)
		if err != nil {
			return nil, err
		}
		log.Warn().Int("symbols", len(table)).Msg("POLYGON_API_KEY not set, using static prices")
		upstream = oracle.NewStatic(table)
	}

	if cache == nil {
		return upstream, nil
	}
	return oracle.NewCached(upstream, cache, cfg.PriceCacheTTL, log), nil
}

func registerJobs(sched *scheduler.Scheduler, cfg *config.Config, l *ledger.Ledger, cache *pricecache.Repository, log zerolog.Logger) error {
	if cfg.ReconcileSchedule != "" {
		job := scheduler.NewReconcileJob(l, cfg.ReconcileRepair, reconcileTimeout, log)
		if err := sched.AddJob(cfg.ReconcileSchedule, job); err != nil {
			return err
		}
	}
	if cache != nil {
		if err := sched.AddJob("0 4 * * *", scheduler.NewPriceCacheCleanupJob(cache, log)); err != nil {
			return err
		}
	}
	return nil
}
