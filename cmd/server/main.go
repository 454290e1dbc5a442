// Package main is the entry point for the timer scheduling service.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/vitaliisemenov/timerd/internal/api"
	"github.com/vitaliisemenov/timerd/internal/api/middleware"
	"github.com/vitaliisemenov/timerd/internal/config"
	"github.com/vitaliisemenov/timerd/internal/repository/postgres"
	"github.com/vitaliisemenov/timerd/internal/scheduler"
	"github.com/vitaliisemenov/timerd/internal/transport/httpclient"
	"github.com/vitaliisemenov/timerd/internal/transport/publish"
)

const (
	serviceName    = "timerd"
	serviceVersion = "1.0.0"
)

func main() {
	var configPath = flag.String("config", "", "Path to configuration file")
	var showVersion = flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s version %s\n", serviceName, serviceVersion)
		os.Exit(0)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	logger.Info("starting timer scheduling service", "service", serviceName, "version", serviceVersion)

	ctx := context.Background()

	pool, err := postgres.Connect(ctx, postgres.PoolConfig{
		DSN:             cfg.GetDatabaseURL(),
		MaxConns:        cfg.Database.MaxConnections,
		MinConns:        cfg.Database.MinConnections,
		MaxConnLifetime: cfg.Database.MaxConnLifetime,
		MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
	}, logger)
	if err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	repo := postgres.New(pool.Pool, logger, postgres.NewMetrics())

	httpClient := httpclient.New(cfg.Scheduler.DispatchDeadline)

	var pubClient *publish.Client
	if cfg.Scheduler.PublishEnabled {
		pubClient, err = publish.Connect(cfg.Publish.URL)
		if err != nil {
			logger.Error("failed to connect to publish transport", "error", err)
			os.Exit(1)
		}
	}

	schedulerConfig := scheduler.Config{
		RefreshInterval:      cfg.Scheduler.RefreshInterval,
		ScanInterval:         cfg.Scheduler.ScanInterval,
		ActivationLookahead:  cfg.Scheduler.ActivationLookahead,
		RecoveryLookback:     cfg.Scheduler.RecoveryLookback,
		DispatchDeadline:     cfg.Scheduler.DispatchDeadline,
		MinimumCreationDelay: cfg.Scheduler.MinimumCreationDelay,
		PublishEnabled:       cfg.Scheduler.PublishEnabled,
	}

	engine, err := scheduler.NewEngine(repo, schedulerConfig, httpClient, pubClient, logger)
	if err != nil {
		logger.Error("failed to construct scheduling engine", "error", err)
		os.Exit(1)
	}
	if err := engine.Start(ctx); err != nil {
		logger.Error("failed to start scheduling engine", "error", err)
		os.Exit(1)
	}

	routerConfig := api.DefaultRouterConfig(logger)
	routerConfig.Engine = engine
	routerConfig.Pool = pool
	routerConfig.AuthConfig = middleware.AuthConfig{SharedSecret: cfg.Server.SharedSecret}
	router := api.NewRouter(routerConfig)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("HTTP server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	<-quit
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}

	engine.Stop()
	logger.Info("server exited")
}

func newLogger(cfg *config.Config) *slog.Logger {
	var out io.Writer = os.Stdout
	if cfg.Log.Output == "file" && cfg.Log.Filename != "" {
		out = &lumberjack.Logger{
			Filename:   cfg.Log.Filename,
			MaxSize:    cfg.Log.MaxSize,
			MaxBackups: cfg.Log.MaxBackups,
			MaxAge:     cfg.Log.MaxAge,
			Compress:   cfg.Log.Compress,
		}
	}

	level := slog.LevelInfo
	switch cfg.Log.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Log.Format == "text" {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}
	return slog.New(handler).With("service", serviceName, "version", serviceVersion)
}
