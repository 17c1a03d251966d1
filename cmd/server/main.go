package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"janatpmp.app/syncd/common/id"
	"janatpmp.app/syncd/common/logger"
	"janatpmp.app/syncd/common/otel"
	"janatpmp.app/syncd/core/config"
	"janatpmp.app/syncd/core/db"
	"janatpmp.app/syncd/internal/capture"
	"janatpmp.app/syncd/internal/http/handler"
	httprouter "janatpmp.app/syncd/internal/http/router"
	"janatpmp.app/syncd/internal/model"
	"janatpmp.app/syncd/internal/notify"
	"janatpmp.app/syncd/internal/service"
	"janatpmp.app/syncd/internal/store"
)

func main() {
	fmt.Printf("%s\n", banner)
	ctx := context.Background()

	cfg, err := config.Load(config.ServiceTypeServer)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load config", "error", err)
		os.Exit(1)
	}

	// OTel must init before logger (logger uses OTel provider in production)
	telemetry, err := otel.Setup(ctx, cfg.OTel)
	if err != nil {
		// Can't use slog yet — OTel failed before logger setup
		os.Stderr.WriteString("failed to initialize otel: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger.Setup(cfg)

	slog.InfoContext(ctx, "syncd server starting", "env", cfg.Env, "instance", cfg.Instance)

	if err := id.Init(1); err != nil {
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

	var publisher *notify.Publisher
	if cfg.Notify.Enabled() {
		redisOpts, err := redis.ParseURL(cfg.Notify.RedisURL)
		if err != nil {
			slog.ErrorContext(ctx, "failed to parse redis url", "error", err)
			os.Exit(1)
		}
		redisClient := redis.NewClient(redisOpts)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			// Notification is an optimization; dispatch polls regardless.
			slog.WarnContext(ctx, "redis unavailable, append notifications disabled", "error", err)
		} else {
			defer redisClient.Close()
			publisher = notify.NewPublisher(redisClient, cfg.Notify.Channel)
			slog.InfoContext(ctx, "redis connected", "channel", cfg.Notify.Channel)
		}
	}

	registry := capture.NewRegistry()
	capturer := capture.New(registry)
	txRunner := service.NewTxRunner(database, registry)
	recorder := service.NewRecorder(txRunner, capturer, publisher)

	stores := store.NewStores(database.Pool(), registry)
	consumers := []string{model.ConsumerVector, model.ConsumerGraph}
	monitor := service.NewMonitorService(stores, consumers, publisher)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := setupRouter(cfg, monitor, recorder)
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.InfoContext(ctx, "http server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.ErrorContext(ctx, "http server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.InfoContext(ctx, "shutting down...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.ErrorContext(shutdownCtx, "http server shutdown error", "error", err)
	}

	if telemetry != nil {
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "otel shutdown error", "error", err)
		}
	}

	slog.InfoContext(shutdownCtx, "shutdown complete")
}

func setupRouter(cfg config.Config, monitor service.MonitorService, recorder *service.Recorder) *gin.Engine {
	router := gin.New()

	// Order matters: OTel creates span → Recovery catches panics
	if cfg.OTel.Enabled() {
		router.Use(otelgin.Middleware(cfg.OTel.ServiceName))
	}
	router.Use(gin.Recovery())

	httprouter.SetupRoutes(router,
		handler.NewSyncHandler(monitor),
		handler.NewMutationHandler(recorder))

	return router
}

const banner = `
███████╗██╗   ██╗███╗   ██╗ ██████╗██████╗
██╔════╝╚██╗ ██╔╝████╗  ██║██╔════╝██╔══██╗
███████╗ ╚████╔╝ ██╔██╗ ██║██║     ██║  ██║
╚════██║  ╚██╔╝  ██║╚██╗██║██║     ██║  ██║
███████║   ██║   ██║ ╚████║╚██████╗██████╔╝
╚══════╝   ╚═╝   ╚═╝  ╚═══╝ ╚═════╝╚═════╝
`
