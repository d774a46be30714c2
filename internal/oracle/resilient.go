package oracle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/kubesec-bank/invest-ledger/internal/errs"
	"github.com/kubesec-bank/invest-ledger/internal/logging"
	"github.com/kubesec-bank/invest-ledger/internal/metrics"
)

// ResilientConfig bounds every oracle call.
type ResilientConfig struct {
	Name    string
	Timeout time.Duration
	// MaxFailures consecutive failures open the breaker.
	MaxFailures uint32
	// Cooldown is how long the breaker stays open before a trial call.
	Cooldown time.Duration
}

func DefaultResilientConfig() ResilientConfig {
	return ResilientConfig{
		Name:        "oracle",
		Timeout:     5 * time.Second,
		MaxFailures: 5,
		Cooldown:    30 * time.Second,
	}
}

// Resilient wraps an oracle with a per-call timeout and a circuit breaker.
// Every failure reaches the caller as ErrAssetNotFound or
// ErrRateUnavailable. "No data" answers do not count against the breaker.
type Resilient struct {
	inner   PriceOracle
	cb      *gobreaker.CircuitBreaker
	timeout time.Duration
	metrics metrics.Collector
	logger  *logging.Logger
}

var _ PriceOracle = (*Resilient)(nil)

func NewResilient(inner PriceOracle, cfg ResilientConfig, m metrics.Collector, logger *logging.Logger) *Resilient {
	if cfg.Name == "" {
		cfg.Name = "oracle"
	}
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = 5
	}

	r := &Resilient{
		inner:   inner,
		timeout: cfg.Timeout,
		metrics: metrics.OrNoOp(m),
		logger:  logging.OrGlobal(logger).Named("oracle"),
	}

	r.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: 1,
		Timeout:     cfg.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || isNoData(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			r.logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
			r.metrics.RecordCircuitState(name, circuitState(to))
		},
	})

	return r
}

func circuitState(s gobreaker.State) metrics.CircuitState {
	switch s {
	case gobreaker.StateOpen:
		return metrics.CircuitOpen
	case gobreaker.StateHalfOpen:
		return metrics.CircuitHalfOpen
	default:
		return metrics.CircuitClosed
	}
}

type result struct {
	v   any
	err error
}

func (r *Resilient) call(ctx context.Context, op string, fn func(ctx context.Context) (any, error)) (any, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	start := time.Now()
	// Sources that ignore ctx (the Alpaca SDK) are abandoned at the deadline.
	res, err := r.cb.Execute(func() (any, error) {
		ch := make(chan result, 1)
		go func() {
			v, err := fn(ctx)
			ch <- result{v, err}
		}()
		select {
		case out := <-ch:
			return out.v, out.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})
	r.metrics.RecordOracleCall(r.cb.Name(), op, err == nil || isNoData(err), time.Since(start))

	switch {
	case err == nil:
		return res, nil
	case isNoData(err):
		return nil, err
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		r.logger.Warn("oracle call rejected by open breaker", zap.String("operation", op))
		return nil, fmt.Errorf("price source unavailable")
	case ctx.Err() == context.DeadlineExceeded:
		r.logger.Warn("oracle call timed out", zap.String("operation", op), zap.Duration("timeout", r.timeout))
		return nil, fmt.Errorf("price source timed out after %s", r.timeout)
	default:
		r.logger.Warn("oracle call failed", zap.String("operation", op), zap.Error(err))
		return nil, fmt.Errorf("price source error: %w", err)
	}
}

func (r *Resilient) TickerInfo(ctx context.Context, ticker string) (*Quote, error) {
	res, err := r.call(ctx, "ticker_info", func(ctx context.Context) (any, error) {
		return r.inner.TickerInfo(ctx, ticker)
	})
	if err != nil {
		if isNoData(err) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s: %v", errs.ErrAssetNotFound, ticker, err)
	}
	return res.(*Quote), nil
}

func (r *Resilient) FXRate(ctx context.Context, currency string) (decimal.Decimal, error) {
	res, err := r.call(ctx, "fx_rate", func(ctx context.Context) (any, error) {
		return r.inner.FXRate(ctx, currency)
	})
	if err != nil {
		if isNoData(err) {
			return decimal.Zero, err
		}
		return decimal.Zero, fmt.Errorf("%w: %s: %v", errs.ErrRateUnavailable, currency, err)
	}
	return res.(decimal.Decimal), nil
}

// SearchAssets is not guarded by the breaker; the catalog is local.
func (r *Resilient) SearchAssets(ctx context.Context, query string) ([]Asset, error) {
	return r.inner.SearchAssets(ctx, query)
}
