package oracle

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kubesec-bank/invest-ledger/internal/errs"
	"github.com/kubesec-bank/invest-ledger/internal/models"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// funcSource lets a test script each call.
type funcSource struct {
	calls atomic.Int32
	quote func(ctx context.Context, ticker string) (*Quote, error)
	rate  func(ctx context.Context, currency string) (decimal.Decimal, error)
}

func (f *funcSource) TickerInfo(ctx context.Context, ticker string) (*Quote, error) {
	f.calls.Add(1)
	return f.quote(ctx, ticker)
}

func (f *funcSource) FXRate(ctx context.Context, currency string) (decimal.Decimal, error) {
	f.calls.Add(1)
	return f.rate(ctx, currency)
}

func (f *funcSource) SearchAssets(ctx context.Context, query string) ([]Asset, error) {
	return NewCatalog(nil).SearchAssets(ctx, query)
}

func TestParseStatic(t *testing.T) {
	s, err := ParseStatic([]string{"petr4.sa=36.50:brl", "AAPL=189.987:USD"}, []string{"USD=5.0123"})
	require.NoError(t, err)

	q, err := s.TickerInfo(context.Background(), "PETR4.SA")
	require.NoError(t, err)
	assert.True(t, q.Price.Equal(dec("36.50")))
	assert.Equal(t, "BRL", q.Currency)

	q, err = s.TickerInfo(context.Background(), "aapl")
	require.NoError(t, err)
	assert.True(t, q.Price.Equal(dec("189.99")))

	rate, err := s.FXRate(context.Background(), "usd")
	require.NoError(t, err)
	assert.True(t, rate.Equal(dec("5.0123")))

	_, err = s.TickerInfo(context.Background(), "NOPE")
	assert.ErrorIs(t, err, errs.ErrAssetNotFound)
	_, err = s.FXRate(context.Background(), "EUR")
	assert.ErrorIs(t, err, errs.ErrRateUnavailable)

	_, err = ParseStatic([]string{"BROKEN"}, nil)
	assert.Error(t, err)
	_, err = ParseStatic(nil, []string{"USD=abc"})
	assert.Error(t, err)
}

func TestCatalogSearch(t *testing.T) {
	c := NewCatalog(nil)
	ctx := context.Background()

	got, err := c.SearchAssets(ctx, "petr")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "PETR4.SA", got[0].Ticker)

	got, _ = c.SearchAssets(ctx, "BITCOIN")
	require.Len(t, got, 1)
	assert.Equal(t, models.CategoryCrypto, got[0].Category)

	got, _ = c.SearchAssets(ctx, "fii")
	assert.Len(t, got, 2)

	got, _ = c.SearchAssets(ctx, "")
	assert.Len(t, got, len(DefaultCatalog))

	got, _ = c.SearchAssets(ctx, "zzz")
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestComposeFallsThrough(t *testing.T) {
	first := NewStatic()
	second := NewStatic()
	second.SetQuote("VALE3.SA", dec("61.20"), "BRL")
	second.SetRate("USD", dec("5"))

	c := Compose([]QuoteSource{first, second}, []RateSource{first, second}, nil)

	q, err := c.TickerInfo(context.Background(), " vale3.sa ")
	require.NoError(t, err)
	assert.Equal(t, "VALE3.SA", q.Ticker)

	rate, err := c.FXRate(context.Background(), "usd")
	require.NoError(t, err)
	assert.True(t, rate.Equal(dec("5")))

	_, err = c.TickerInfo(context.Background(), "UNKNOWN")
	assert.ErrorIs(t, err, errs.ErrAssetNotFound)
	_, err = c.TickerInfo(context.Background(), "")
	assert.ErrorIs(t, err, errs.ErrAssetNotFound)
}

func TestComposeReportsTransportFailures(t *testing.T) {
	boom := errors.New("connection refused")
	broken := &funcSource{
		quote: func(context.Context, string) (*Quote, error) { return nil, boom },
		rate:  func(context.Context, string) (decimal.Decimal, error) { return decimal.Zero, boom },
	}
	c := Compose([]QuoteSource{broken, NewStatic()}, []RateSource{broken}, nil)

	_, err := c.TickerInfo(context.Background(), "X")
	assert.ErrorIs(t, err, boom)
	assert.False(t, errors.Is(err, errs.ErrAssetNotFound))

	_, err = c.FXRate(context.Background(), "USD")
	assert.ErrorIs(t, err, boom)
}

func TestHTTPSource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		switch r.URL.Path {
		case "/quote/PETR4.SA":
			fmt.Fprint(w, `{"results":[{"symbol":"PETR4.SA","regularMarketPrice":36.125,"currency":"BRL"}]}`)
		case "/quote/ZERO":
			fmt.Fprint(w, `{"results":[{"regularMarketPrice":0,"currency":"BRL"}]}`)
		case "/quote/BROKEN":
			w.WriteHeader(http.StatusBadGateway)
		case "/rate/USD":
			fmt.Fprint(w, `{"rates":{"bid":"5.1234"}}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	s := NewHTTPSource(srv.Client(), HTTPConfig{
		QuoteURL:     srv.URL + "/quote/%s",
		PricePath:    "$.results[0].regularMarketPrice",
		CurrencyPath: "$.results[0].currency",
		RateURL:      srv.URL + "/rate/%s",
		RatePath:     "$.rates.bid",
		Token:        "secret",
	})
	ctx := context.Background()

	q, err := s.TickerInfo(ctx, "PETR4.SA")
	require.NoError(t, err)
	assert.Equal(t, "36.12", q.Price.StringFixed(2))
	assert.Equal(t, "BRL", q.Currency)

	_, err = s.TickerInfo(ctx, "MISSING")
	assert.ErrorIs(t, err, errs.ErrAssetNotFound)

	_, err = s.TickerInfo(ctx, "ZERO")
	assert.ErrorIs(t, err, errs.ErrAssetNotFound)

	_, err = s.TickerInfo(ctx, "BROKEN")
	require.Error(t, err)
	assert.False(t, isNoData(err), "a 502 is a transport failure")

	rate, err := s.FXRate(ctx, "USD")
	require.NoError(t, err)
	assert.True(t, rate.Equal(dec("5.1234")))

	_, err = s.FXRate(ctx, "EUR")
	assert.ErrorIs(t, err, errs.ErrRateUnavailable)
}

type fakeTrader struct {
	trades map[string]float64
	err    error
}

func (f fakeTrader) GetLatestTrade(symbol string, _ marketdata.GetLatestTradeRequest) (*marketdata.Trade, error) {
	if f.err != nil {
		return nil, f.err
	}
	p, ok := f.trades[symbol]
	if !ok {
		return nil, errors.New("symbol not found")
	}
	return &marketdata.Trade{Price: p}, nil
}

func TestAlpacaSource(t *testing.T) {
	s := &AlpacaSource{client: fakeTrader{trades: map[string]float64{"AAPL": 189.98500001, "BRK.B": 410.1}}}
	ctx := context.Background()

	q, err := s.TickerInfo(ctx, "aapl")
	require.NoError(t, err)
	assert.Equal(t, "USD", q.Currency)
	assert.Equal(t, "189.99", q.Price.StringFixed(2))

	_, err = s.TickerInfo(ctx, "BRK.B")
	assert.NoError(t, err)

	for _, ticker := range []string{"PETR4.SA", "BTC-USD", "USDBRL=X", "MSFT"} {
		_, err = s.TickerInfo(ctx, ticker)
		assert.ErrorIs(t, err, errs.ErrAssetNotFound, ticker)
	}

	down := &AlpacaSource{client: fakeTrader{err: errors.New("503 service unavailable")}}
	_, err = down.TickerInfo(ctx, "AAPL")
	require.Error(t, err)
	assert.False(t, isNoData(err))
}

func TestResilientTimeout(t *testing.T) {
	slow := &funcSource{
		quote: func(ctx context.Context, _ string) (*Quote, error) {
			time.Sleep(200 * time.Millisecond)
			return &Quote{Ticker: "X", Price: dec("1"), Currency: "BRL"}, nil
		},
		rate: func(ctx context.Context, _ string) (decimal.Decimal, error) {
			<-ctx.Done()
			return decimal.Zero, ctx.Err()
		},
	}
	r := NewResilient(slow, ResilientConfig{Timeout: 20 * time.Millisecond, MaxFailures: 100}, nil, nil)

	start := time.Now()
	_, err := r.TickerInfo(context.Background(), "X")
	assert.ErrorIs(t, err, errs.ErrAssetNotFound)
	assert.Less(t, time.Since(start), 150*time.Millisecond)

	_, err = r.FXRate(context.Background(), "USD")
	assert.ErrorIs(t, err, errs.ErrRateUnavailable)
}

func TestResilientNoDataDoesNotTripBreaker(t *testing.T) {
	src := NewStatic()
	src.SetQuote("OK", dec("10"), "BRL")
	inner := Compose([]QuoteSource{src}, nil, nil)
	r := NewResilient(inner, ResilientConfig{Timeout: time.Second, MaxFailures: 2, Cooldown: time.Minute}, nil, nil)

	for i := 0; i < 10; i++ {
		_, err := r.TickerInfo(context.Background(), "MISSING")
		require.ErrorIs(t, err, errs.ErrAssetNotFound)
	}

	q, err := r.TickerInfo(context.Background(), "OK")
	require.NoError(t, err)
	assert.True(t, q.Price.Equal(dec("10")))
}

func TestResilientBreakerOpens(t *testing.T) {
	boom := errors.New("upstream 500")
	src := &funcSource{
		quote: func(context.Context, string) (*Quote, error) { return nil, boom },
		rate:  func(context.Context, string) (decimal.Decimal, error) { return decimal.Zero, boom },
	}
	r := NewResilient(src, ResilientConfig{Timeout: time.Second, MaxFailures: 3, Cooldown: time.Minute}, nil, nil)

	for i := 0; i < 3; i++ {
		_, err := r.TickerInfo(context.Background(), "X")
		require.ErrorIs(t, err, errs.ErrAssetNotFound)
	}
	assert.Equal(t, int32(3), src.calls.Load())

	// open: rejected without reaching the source
	_, err := r.TickerInfo(context.Background(), "X")
	assert.ErrorIs(t, err, errs.ErrAssetNotFound)
	_, err = r.FXRate(context.Background(), "USD")
	assert.ErrorIs(t, err, errs.ErrRateUnavailable)
	assert.Equal(t, int32(3), src.calls.Load())
}

func unreachableRedis(t *testing.T) *redis.Client {
	t.Helper()
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		MaxRetries:  -1,
		DialTimeout: 50 * time.Millisecond,
	})
	t.Cleanup(func() { rdb.Close() })
	return rdb
}

func TestCachedFallsBackWhenRedisIsDown(t *testing.T) {
	src := NewStatic()
	src.SetQuote("ITUB4.SA", dec("33.10"), "BRL")
	src.SetRate("USD", dec("5.00"))
	c := NewCached(Compose([]QuoteSource{src}, []RateSource{src}, nil), unreachableRedis(t), time.Minute, nil, nil)

	q, err := c.TickerInfo(context.Background(), "itub4.sa")
	require.NoError(t, err)
	assert.True(t, q.Price.Equal(dec("33.10")))

	rate, err := c.FXRate(context.Background(), "USD")
	require.NoError(t, err)
	assert.True(t, rate.Equal(dec("5")))

	_, err = c.TickerInfo(context.Background(), "NONE")
	assert.ErrorIs(t, err, errs.ErrAssetNotFound)

	assets, err := c.SearchAssets(context.Background(), "vale")
	require.NoError(t, err)
	assert.Len(t, assets, 1)
}

func TestCachedCollapsesConcurrentLookups(t *testing.T) {
	release := make(chan struct{})
	src := &funcSource{
		quote: func(context.Context, string) (*Quote, error) {
			<-release
			return &Quote{Ticker: "WEGE3.SA", Price: dec("40.00"), Currency: "BRL"}, nil
		},
		rate: func(context.Context, string) (decimal.Decimal, error) { return decimal.Zero, nil },
	}
	c := NewCached(src, unreachableRedis(t), time.Minute, nil, nil)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q, err := c.TickerInfo(context.Background(), "WEGE3.SA")
			assert.NoError(t, err)
			assert.True(t, q.Price.Equal(dec("40")))
		}()
	}
	time.Sleep(200 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), src.calls.Load())
}

func TestCachedSharedLookupSurvivesFirstCallerCancel(t *testing.T) {
	release := make(chan struct{})
	src := &funcSource{
		quote: func(ctx context.Context, _ string) (*Quote, error) {
			<-release
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			return &Quote{Ticker: "BBAS3.SA", Price: dec("27.50"), Currency: "BRL"}, nil
		},
		rate: func(context.Context, string) (decimal.Decimal, error) { return decimal.Zero, nil },
	}
	c := NewCached(src, unreachableRedis(t), time.Minute, nil, nil)

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := c.TickerInfo(firstCtx, "BBAS3.SA")
		firstErr <- err
	}()
	require.Eventually(t, func() bool { return src.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	second := make(chan *Quote, 1)
	go func() {
		q, err := c.TickerInfo(context.Background(), "BBAS3.SA")
		assert.NoError(t, err)
		second <- q
	}()
	time.Sleep(300 * time.Millisecond)

	cancelFirst()
	select {
	case err := <-firstErr:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("cancelled caller kept waiting on the shared lookup")
	}

	close(release)
	select {
	case q := <-second:
		require.NotNil(t, q)
		assert.True(t, q.Price.Equal(dec("27.50")))
	case <-time.After(time.Second):
		t.Fatal("second caller never got the quote")
	}
	assert.Equal(t, int32(1), src.calls.Load())
}
