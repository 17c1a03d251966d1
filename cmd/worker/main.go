package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"janatpmp.app/syncd/common/arangodb"
	"janatpmp.app/syncd/common/id"
	"janatpmp.app/syncd/common/logger"
	"janatpmp.app/syncd/common/otel"
	"janatpmp.app/syncd/common/typesense"
	"janatpmp.app/syncd/core/config"
	"janatpmp.app/syncd/core/db"
	"janatpmp.app/syncd/internal/capture"
	"janatpmp.app/syncd/internal/dispatch"
	"janatpmp.app/syncd/internal/notify"
	"janatpmp.app/syncd/internal/sink"
	"janatpmp.app/syncd/internal/store"
)

func main() {
	fmt.Printf("%s\n", banner)
	ctx := context.Background()

	cfg, err := config.Load(config.ServiceTypeWorker)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load config", "error", err)
		os.Exit(1)
	}

	telemetry, err := otel.Setup(ctx, cfg.OTel)
	if err != nil {
		os.Stderr.WriteString("failed to initialize otel: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger.Setup(cfg)

	slog.InfoContext(ctx, "syncd worker starting", "env", cfg.Env, "instance", cfg.Instance)

	// Different node ID than the server so snowflake ids never collide.
	if err := id.Init(2); err != nil {
		slog.ErrorContext(ctx, "failed to initialize snowflake id generator", "error", err)
		os.Exit(1)
	}

	database, err := db.New(ctx, cfg.DB)
	if err != nil {
		slog.ErrorContext(ctx, "failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer database.Close()
	slog.InfoContext(ctx, "database connected")

	// Downstream clients
	tsClient, err := typesense.New(typesense.Config{
		URL:    cfg.Typesense.URL,
		APIKey: cfg.Typesense.APIKey,
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to create typesense client", "error", err)
		os.Exit(1)
	}
	if err := tsClient.EnsureCollection(ctx); err != nil {
		slog.ErrorContext(ctx, "failed to ensure typesense collection", "error", err)
		os.Exit(1)
	}
	slog.InfoContext(ctx, "typesense ready", "url", cfg.Typesense.URL)

	arangoClient, err := arangodb.New(ctx, arangodb.Config{
		URL:      cfg.ArangoDB.URL,
		Username: cfg.ArangoDB.Username,
		Password: cfg.ArangoDB.Password,
		Database: cfg.ArangoDB.Database,
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to create arangodb client", "error", err)
		os.Exit(1)
	}
	if err := ensureGraph(ctx, arangoClient); err != nil {
		slog.ErrorContext(ctx, "failed to ensure arangodb schema", "error", err)
		os.Exit(1)
	}
	slog.InfoContext(ctx, "arangodb ready", "database", cfg.ArangoDB.Database)

	registry := capture.NewRegistry()
	stores := store.NewStores(database.Pool(), registry)

	// Optional push notification; polling alone is correct without it.
	var listener *notify.Listener
	var vectorWake, graphWake <-chan struct{}
	if cfg.Notify.Enabled() {
		redisOpts, err := redis.ParseURL(cfg.Notify.RedisURL)
		if err != nil {
			slog.ErrorContext(ctx, "failed to parse redis url", "error", err)
			os.Exit(1)
		}
		redisClient := redis.NewClient(redisOpts)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			slog.WarnContext(ctx, "redis unavailable, running poll-only", "error", err)
		} else {
			defer redisClient.Close()
			listener = notify.NewListener(redisClient, cfg.Notify.Channel)
			vectorWake = listener.Subscribe()
			graphWake = listener.Subscribe()
			slog.InfoContext(ctx, "redis connected", "channel", cfg.Notify.Channel)
		}
	}

	dispatchCfg := dispatch.Config{
		BatchSize:      cfg.Dispatch.BatchSize,
		PollInterval:   cfg.Dispatch.PollInterval,
		MaxAttempts:    cfg.Dispatch.MaxAttempts,
		InitialBackoff: cfg.Dispatch.InitialBackoff,
		MaxBackoff:     cfg.Dispatch.MaxBackoff,
	}

	vectorDispatcher := dispatch.New(stores,
		sink.NewVectorSink(tsClient, cfg.Dispatch.ApplyTimeout), vectorWake, dispatchCfg)
	graphDispatcher := dispatch.New(stores,
		sink.NewGraphSink(arangoClient, cfg.Dispatch.ApplyTimeout), graphWake, dispatchCfg)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		if err := vectorDispatcher.Run(runCtx); err != nil && runCtx.Err() == nil {
			slog.ErrorContext(ctx, "vector dispatcher exited", "error", err)
		}
	}()
	go func() {
		if err := graphDispatcher.Run(runCtx); err != nil && runCtx.Err() == nil {
			slog.ErrorContext(ctx, "graph dispatcher exited", "error", err)
		}
	}()
	if listener != nil {
		go func() {
			if err := listener.Run(runCtx); err != nil && runCtx.Err() == nil {
				slog.ErrorContext(ctx, "append listener exited", "error", err)
			}
		}()
	}

	slog.InfoContext(ctx, "worker initialized and running")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.InfoContext(ctx, "shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 10*time.Second)
	defer shutdownCancel()

	if telemetry != nil {
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "otel shutdown error", "error", err)
		}
	}

	slog.InfoContext(shutdownCtx, "shutdown complete")
}

func ensureGraph(ctx context.Context, client arangodb.Client) error {
	if err := client.EnsureDatabase(ctx); err != nil {
		return err
	}
	if err := client.EnsureCollections(ctx); err != nil {
		return err
	}
	return client.EnsureGraph(ctx)
}

const banner = `
███████╗██╗   ██╗███╗   ██╗ ██████╗██████╗
██╔════╝╚██╗ ██╔╝████╗  ██║██╔════╝██╔══██╗
███████╗ ╚████╔╝ ██╔██╗ ██║██║     ██║  ██║
╚════██║  ╚██╔╝  ██║╚██╗██║██║     ██║  ██║
███████║   ██║   ██║ ╚████║╚██████╗██████╔╝
╚══════╝   ╚═╝   ╚═╝  ╚═══╝ ╚═════╝╚═════╝
`
