package oracle

import (
	"context"
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

// Composite asks its sources in order and returns the first answer.
type Composite struct {
	quotes   []QuoteSource
	rates    []RateSource
	searcher Searcher
}

var _ PriceOracle = (*Composite)(nil)

func Compose(quotes []QuoteSource, rates []RateSource, searcher Searcher) *Composite {
	if searcher == nil {
		searcher = NewCatalog(nil)
	}
	return &Composite{quotes: quotes, rates: rates, searcher: searcher}
}

// TickerInfo returns the first valid quote. When every source answers "no
// data" the result is ErrAssetNotFound; when at least one source failed to
// answer, the failures are returned instead.
func (c *Composite) TickerInfo(ctx context.Context, ticker string) (*Quote, error) {
	ticker = NormalizeTicker(ticker)
	if ticker == "" {
		return nil, assetNotFound(ticker)
	}

	var failures []error
	for _, src := range c.quotes {
		q, err := src.TickerInfo(ctx, ticker)
		if err == nil && validQuote(q) {
			return q, nil
		}
		if err != nil && !isNoData(err) {
			failures = append(failures, err)
		}
		if ctx.Err() != nil {
			break
		}
	}
	if len(failures) > 0 {
		return nil, errors.Join(failures...)
	}
	return nil, assetNotFound(ticker)
}

func (c *Composite) FXRate(ctx context.Context, currency string) (decimal.Decimal, error) {
	currency = strings.ToUpper(currency)

	var failures []error
	for _, src := range c.rates {
		rate, err := src.FXRate(ctx, currency)
		if err == nil && rate.IsPositive() {
			return rate, nil
		}
		if err != nil && !isNoData(err) {
			failures = append(failures, err)
		}
		if ctx.Err() != nil {
			break
		}
	}
	if len(failures) > 0 {
		return decimal.Zero, errors.Join(failures...)
	}
	return decimal.Zero, rateUnavailable(currency)
}

func (c *Composite) SearchAssets(ctx context.Context, query string) ([]Asset, error) {
	return c.searcher.SearchAssets(ctx, query)
}
