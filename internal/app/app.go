// Package app assembles the store, caches and price oracle from
// configuration. It is shared by ledger-service and ledgerctl.
package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/kubesec-bank/invest-ledger/internal/auth"
	"github.com/kubesec-bank/invest-ledger/internal/config"
	"github.com/kubesec-bank/invest-ledger/internal/logging"
	"github.com/kubesec-bank/invest-ledger/internal/metrics"
	"github.com/kubesec-bank/invest-ledger/internal/notify"
	"github.com/kubesec-bank/invest-ledger/internal/oracle"
	"github.com/kubesec-bank/invest-ledger/internal/repository"
)

// OpenStore connects to the configured database and applies the schema.
func OpenStore(ctx context.Context, cfg *config.Config) (*repository.Store, error) {
	store, err := repository.Open(ctx, cfg.DB.Driver, cfg.DSN())
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return store, nil
}

// NewRedis returns nil when no address is configured.
func NewRedis(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	if cfg.Redis.Addr == "" {
		return nil, nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return rdb, nil
}

// Revocations keeps revoked sessions in Redis when available and in
// process memory otherwise.
func Revocations(rdb *redis.Client, logger *logging.Logger) auth.Revocations {
	if rdb == nil {
		logging.OrGlobal(logger).Warn("redis not configured, session revocations are kept in memory")
		return auth.NewMemoryRevocations()
	}
	return auth.NewRedisRevocations(rdb)
}

// NewNotifier connects to NATS. Without a URL events are dropped. The
// returned connection is nil in that case.
func NewNotifier(cfg *config.Config, logger *logging.Logger) (notify.Notifier, *nats.Conn, error) {
	if cfg.Nats.URL == "" {
		logging.OrGlobal(logger).Warn("nats not configured, lifecycle events are dropped")
		return notify.Nop{}, nil, nil
	}
	nc, err := nats.Connect(cfg.Nats.URL, nats.Name("ledger-service"))
	if err != nil {
		return nil, nil, fmt.Errorf("connect nats: %w", err)
	}
	return notify.NewNATSNotifier(nc, cfg.Nats.SubjectPrefix), nc, nil
}

// NewOracle chains the configured quote sources in order (HTTP API, Alpaca,
// static list), then adds the timeout and breaker, and finally the Redis
// cache when rdb is not nil.
func NewOracle(cfg *config.Config, rdb *redis.Client, m metrics.Collector, logger *logging.Logger) (oracle.PriceOracle, error) {
	logger = logging.OrGlobal(logger)

	static, err := oracle.ParseStatic(cfg.Oracle.StaticQuotes, cfg.Oracle.StaticRates)
	if err != nil {
		return nil, fmt.Errorf("static quotes: %w", err)
	}

	var (
		quotes []oracle.QuoteSource
		rates  []oracle.RateSource
	)
	if cfg.Oracle.QuoteURL != "" || cfg.Oracle.RateURL != "" {
		src := oracle.NewHTTPSource(&http.Client{Timeout: cfg.Oracle.Timeout}, oracle.HTTPConfig{
			QuoteURL:     cfg.Oracle.QuoteURL,
			PricePath:    cfg.Oracle.PricePath,
			CurrencyPath: cfg.Oracle.CurrencyPath,
			RateURL:      cfg.Oracle.RateURL,
			RatePath:     cfg.Oracle.RatePath,
			Token:        cfg.Oracle.QuoteAPIToken,
		})
		quotes = append(quotes, src)
		rates = append(rates, src)
	}
	if cfg.Alpaca.APIKey != "" {
		quotes = append(quotes, oracle.NewAlpacaSource(cfg.Alpaca.APIKey, cfg.Alpaca.APISecret, cfg.Alpaca.DataURL))
	}
	quotes = append(quotes, static)
	rates = append(rates, static)

	logger.Info("price oracle configured",
		zap.Int("quote_sources", len(quotes)),
		zap.Int("rate_sources", len(rates)),
		zap.Bool("cached", rdb != nil),
	)

	var o oracle.PriceOracle = oracle.NewResilient(
		oracle.Compose(quotes, rates, oracle.NewCatalog(nil)),
		oracle.ResilientConfig{
			Name:        "oracle",
			Timeout:     cfg.Oracle.Timeout,
			MaxFailures: cfg.Oracle.BreakerFailures,
			Cooldown:    cfg.Oracle.BreakerCooldown,
		},
		m, logger,
	)
	if rdb != nil {
		o = oracle.NewCached(o, rdb, cfg.Oracle.CacheTTL, m, logger)
	}
	return o, nil
}
