package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/kubesec-bank/invest-ledger/internal/logging"
	"github.com/kubesec-bank/invest-ledger/internal/metrics"
)

const (
	quoteKeyPrefix = "oracle:quote:"
	rateKeyPrefix  = "oracle:fxrate:"

	// sharedCallTimeout bounds an upstream call that no single caller owns.
	sharedCallTimeout = 30 * time.Second
)

// Cached keeps recent quotes and rates in Redis and collapses concurrent
// lookups of the same symbol into one upstream call. Cache failures are
// logged and the upstream is asked directly.
type Cached struct {
	inner   PriceOracle
	rdb     redis.UniversalClient
	ttl     time.Duration
	group   singleflight.Group
	metrics metrics.Collector
	logger  *logging.Logger
}

var _ PriceOracle = (*Cached)(nil)

func NewCached(inner PriceOracle, rdb redis.UniversalClient, ttl time.Duration, m metrics.Collector, logger *logging.Logger) *Cached {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Cached{
		inner:   inner,
		rdb:     rdb,
		ttl:     ttl,
		metrics: metrics.OrNoOp(m),
		logger:  logging.OrGlobal(logger).Named("oracle.cache"),
	}
}

func (c *Cached) TickerInfo(ctx context.Context, ticker string) (*Quote, error) {
	ticker = NormalizeTicker(ticker)
	key := quoteKeyPrefix + ticker

	if raw, ok := c.get(ctx, key); ok {
		var q Quote
		if err := json.Unmarshal([]byte(raw), &q); err == nil && validQuote(&q) {
			c.metrics.RecordOracleCache("ticker_info", true)
			return &q, nil
		}
	}
	c.metrics.RecordOracleCache("ticker_info", false)

	v, err := c.shared(ctx, key, func(ctx context.Context) (any, error) {
		q, err := c.inner.TickerInfo(ctx, ticker)
		if err != nil {
			return nil, err
		}
		if raw, err := json.Marshal(q); err == nil {
			c.set(ctx, key, string(raw))
		}
		return q, nil
	})
	if err != nil {
		return nil, err
	}
	q := *v.(*Quote)
	return &q, nil
}

func (c *Cached) FXRate(ctx context.Context, currency string) (decimal.Decimal, error) {
	currency = strings.ToUpper(currency)
	key := rateKeyPrefix + currency

	if raw, ok := c.get(ctx, key); ok {
		if rate, err := decimal.NewFromString(raw); err == nil && rate.IsPositive() {
			c.metrics.RecordOracleCache("fx_rate", true)
			return rate, nil
		}
	}
	c.metrics.RecordOracleCache("fx_rate", false)

	v, err := c.shared(ctx, key, func(ctx context.Context) (any, error) {
		rate, err := c.inner.FXRate(ctx, currency)
		if err != nil {
			return nil, err
		}
		c.set(ctx, key, rate.String())
		return rate, nil
	})
	if err != nil {
		return decimal.Zero, err
	}
	return v.(decimal.Decimal), nil
}

func (c *Cached) SearchAssets(ctx context.Context, query string) ([]Asset, error) {
	return c.inner.SearchAssets(ctx, query)
}

// shared runs fn once for all concurrent callers of key. fn gets a context
// detached from the caller that started it, so one caller giving up does not
// fail the others; each caller still stops waiting when its own ctx ends.
func (c *Cached) shared(ctx context.Context, key string, fn func(ctx context.Context) (any, error)) (any, error) {
	ch := c.group.DoChan(key, func() (any, error) {
		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sharedCallTimeout)
		defer cancel()
		return fn(callCtx)
	})
	select {
	case res := <-ch:
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Cached) get(ctx context.Context, key string) (string, bool) {
	raw, err := c.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false
	}
	if err != nil {
		c.logger.Warn("quote cache read failed", zap.String("key", key), zap.Error(err))
		return "", false
	}
	return raw, true
}

func (c *Cached) set(ctx context.Context, key, val string) {
	if err := c.rdb.Set(ctx, key, val, c.ttl).Err(); err != nil {
		c.logger.Warn("quote cache write failed", zap.String("key", key), zap.Error(err))
	}
}
