package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/kubesec-bank/invest-ledger/internal/app"
	"github.com/kubesec-bank/invest-ledger/internal/auth"
	"github.com/kubesec-bank/invest-ledger/internal/config"
	"github.com/kubesec-bank/invest-ledger/internal/handlers"
	"github.com/kubesec-bank/invest-ledger/internal/invest"
	"github.com/kubesec-bank/invest-ledger/internal/ledger"
	"github.com/kubesec-bank/invest-ledger/internal/lifecycle"
	"github.com/kubesec-bank/invest-ledger/internal/logging"
	"github.com/kubesec-bank/invest-ledger/internal/metrics"
	"github.com/kubesec-bank/invest-ledger/internal/middleware"
)

func main() {
	logger, err := logging.NewFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	logging.SetGlobal(logger)

	if err := run(logger); err != nil {
		logger.Fatal("ledger-service failed", zap.Error(err))
	}
}

func run(logger *logging.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store, err := app.OpenStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	logger.Info("connected to database", zap.String("driver", cfg.DB.Driver))

	rdb, err := app.NewRedis(ctx, cfg)
	if err != nil {
		return err
	}
	if rdb != nil {
		defer rdb.Close()
		logger.Info("connected to redis", zap.String("addr", cfg.Redis.Addr))
	}

	notifier, nc, err := app.NewNotifier(cfg, logger)
	if err != nil {
		return err
	}
	if nc != nil {
		defer nc.Close()
		logger.Info("connected to nats", zap.String("url", cfg.Nats.URL))
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewPrometheusCollector("ledger", reg)

	priceOracle, err := app.NewOracle(cfg, rdb, collector, logger)
	if err != nil {
		return err
	}

	sessions := auth.NewSessions(cfg.Auth.JWTSecret, cfg.Auth.JWTExpiry, app.Revocations(rdb, logger))
	book := ledger.New(cfg.Currency.Base)

	h := handlers.New(
		lifecycle.NewService(store, sessions, notifier, collector, logger),
		ledger.NewService(store, book, collector, logger),
		invest.NewService(store, book, priceOracle, collector, logger),
		sessions,
		logger,
	)
	router := handlers.NewRouter(h, handlers.RouterConfig{
		Metrics:  collector,
		Gatherer: reg,
		Health:   store.Ping,
		Limiter:  middleware.NewRateLimiter(60, time.Minute),
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("ledger-service listening", zap.String("addr", addr), zap.String("base_currency", cfg.Currency.Base))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-quit:
	}
	logger.Info("shutting down ledger-service")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("ledger-service stopped")
	return nil
}
