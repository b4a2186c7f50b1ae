package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/stockmart/auction-engine/internal/api"
	"github.com/stockmart/auction-engine/internal/auction"
	"github.com/stockmart/auction-engine/internal/clock"
	"github.com/stockmart/auction-engine/internal/config"
	"github.com/stockmart/auction-engine/internal/event"
	"github.com/stockmart/auction-engine/internal/health"
	"github.com/stockmart/auction-engine/internal/leader"
	"github.com/stockmart/auction-engine/internal/store"
	"github.com/stockmart/auction-engine/internal/telemetry"

	// Register store drivers so they are available via store.Open.
	_ "github.com/stockmart/auction-engine/internal/store/entstore"
	_ "github.com/stockmart/auction-engine/internal/store/postgres"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	if err := run(*configPath); err != nil {
		slog.Error("fatal error", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(configPath string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	tp, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		slog.Warn("telemetry setup failed, continuing without OTEL export", slog.Any("error", err))
		tp = telemetry.NewNopProvider()
	}
	defer func() {
		if shutdownErr := tp.Shutdown(context.Background()); shutdownErr != nil {
			slog.Error("telemetry shutdown error", slog.Any("error", shutdownErr))
		}
	}()

	logger := tp.Logger
	clk := clock.Real{}

	// Open store using the configured driver (sqlx or ent).
	repos, err := store.Open(ctx, cfg.Database, clk)
	if err != nil {
		return fmt.Errorf("opening store (driver=%s): %w", cfg.Database.Driver, err)
	}
	defer repos.Closer.Close()

	logger.InfoContext(ctx, "connected to database", slog.String("driver", cfg.Database.Driver))

	registry := auction.NewRegistry(repos, logger, tp.TracerProvider, clk, auction.Options{
		QueueSize:           cfg.Engine.QueueSize,
		EventBufferSize:     cfg.Engine.EventBufferSize,
		AdminExtendDuration: cfg.Engine.AdminExtendDuration,
	})
	defer registry.Close()

	// Drain settlement and notification events. Downstream consumers
	// attach here; until then the fan-out is logged.
	go func() {
		for e := range registry.Events() {
			if e.Type == event.AuctionSettled || e.Type == event.AuctionUnsold {
				logger.Info("auction closed",
					slog.String("auction_id", e.AggregateID),
					slog.String("type", string(e.Type)),
				)
			}
		}
	}()

	healthHandler := health.NewHandler(clk,
		health.Checker{
			Name:  "database",
			Check: repos.Ping,
		},
	)

	// Ops server: health probes, runs on all replicas.
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", healthHandler.LivenessHandler())
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler())

	opsServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.OpsPort),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.InfoContext(ctx, "starting ops server", slog.Int("port", cfg.Server.OpsPort))
		if listenErr := opsServer.ListenAndServe(); listenErr != nil && listenErr != http.ErrServerClosed {
			logger.ErrorContext(ctx, "ops server error", slog.Any("error", listenErr))
		}
	}()

	app := api.NewApp(api.NewHandler(registry, logger))

	// startEngine is the core work that only the leader should run.
	startEngine := func(ctx context.Context) {
		// Rebuild in-flight auctions from the event log so they
		// survive restarts and leader failover.
		if n, recoverErr := registry.Recover(ctx); recoverErr != nil {
			logger.ErrorContext(ctx, "auction recovery failed", slog.Any("error", recoverErr))
			return
		} else if n > 0 {
			logger.InfoContext(ctx, "recovered open auctions", slog.Int("count", n))
		}

		go func() {
			logger.InfoContext(ctx, "starting api server", slog.Int("port", cfg.Server.APIPort))
			if listenErr := app.Listen(fmt.Sprintf(":%d", cfg.Server.APIPort)); listenErr != nil {
				logger.ErrorContext(ctx, "api server error", slog.Any("error", listenErr))
			}
		}()

		healthHandler.SetReady(true)
		logger.InfoContext(ctx, "auctiond is running", slog.String("version", version))

		// Block until leadership is lost or process is shutting down.
		<-ctx.Done()

		healthHandler.SetReady(false)
		if stopErr := app.ShutdownWithTimeout(cfg.Server.ShutdownTimeout); stopErr != nil {
			logger.Error("api server shutdown error", slog.Any("error", stopErr))
		}
	}

	if cfg.LeaderElection.Enabled {
		logger.InfoContext(ctx, "leader election enabled, waiting for leadership...")

		if leaderErr := leader.Run(ctx, cfg.LeaderElection, logger, startEngine, func() {
			logger.Info("lost leadership, shutting down...")
			cancel()
		}); leaderErr != nil {
			return fmt.Errorf("leader election: %w", leaderErr)
		}
	} else {
		startEngine(ctx)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := opsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("ops server shutdown error", slog.Any("error", err))
	}

	logger.Info("shutdown complete")
	return nil
}
