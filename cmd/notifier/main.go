package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/samims/notifier/internal/app"
	"github.com/samims/notifier/internal/config"
	"github.com/samims/notifier/internal/logger"
	"github.com/samims/notifier/internal/metrics"
	"github.com/samims/notifier/internal/router"
	"github.com/samims/notifier/pkg/tracing"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	l := logger.NewLogger()
	slog.SetDefault(l)
	metrics.Init()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := tracing.Setup(ctx, tracing.NewConfig(cfg.App.ServiceName, cfg.Tracing.Endpoint), l)
	if err != nil {
		l.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}

	a, err := app.New(ctx, cfg, l)
	if err != nil {
		l.Error("failed to initialize service", "error", err)
		os.Exit(1)
	}

	var wg sync.WaitGroup

	// scheduled jobs: delivery, reaper, scanners, retention
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := a.Runner.Start(ctx, a.Schedule()); err != nil && !errors.Is(err, context.Canceled) {
			l.Error("job scheduler stopped with error", "error", err)
		}
	}()

	if cfg.Kafka.Enabled() {
		consumer, err := a.NewConsumer()
		if err != nil {
			l.Error("failed to create kafka consumer", "error", err)
			os.Exit(1)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				l.Error("kafka consumer stopped with error", "error", err)
			}
		}()
	}

	server := &http.Server{
		Addr:              ":" + cfg.App.Port,
		Handler:           router.NewRouter(a.Handlers(), cfg.Auth.JWTSecret),
		ReadHeaderTimeout: 10 * time.Second,
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		l.Info("server started", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Error("server failed", "error", err)
			cancel()
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
		l.Info("shutdown signal received")
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		l.Error("server shutdown failed", "error", err)
	}
	cancel()
	wg.Wait()

	if err := a.Close(); err != nil {
		l.Error("failed to close resources", "error", err)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		l.Error("failed to flush traces", "error", err)
	}
	l.Info("service shut down gracefully")
}
