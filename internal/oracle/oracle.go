// Package oracle provides market prices, exchange rates and asset discovery
// to the investment orchestrator.
//
// Sources report ErrAssetNotFound or ErrRateUnavailable when they have no
// data for a symbol, and any other error for transport failures. Resilient
// turns transport failures and timeouts into those two domain errors.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/kubesec-bank/invest-ledger/internal/errs"
	"github.com/kubesec-bank/invest-ledger/internal/models"
)

// Quote is the latest known price of a ticker.
type Quote struct {
	Ticker   string          `json:"ticker"`
	Price    decimal.Decimal `json:"price"`
	Currency string          `json:"currency"`
}

// Asset is a search result.
type Asset struct {
	Ticker   string          `json:"ticker"`
	Name     string          `json:"name"`
	Category models.Category `json:"category"`
}

type QuoteSource interface {
	TickerInfo(ctx context.Context, ticker string) (*Quote, error)
}

type RateSource interface {
	// FXRate returns how many base-currency units one unit of currency buys.
	FXRate(ctx context.Context, currency string) (decimal.Decimal, error)
}

type Searcher interface {
	SearchAssets(ctx context.Context, query string) ([]Asset, error)
}

// PriceOracle is the full external pricing surface.
type PriceOracle interface {
	QuoteSource
	RateSource
	Searcher
}

// NormalizeTicker upper-cases and trims a ticker symbol.
func NormalizeTicker(t string) string {
	return strings.ToUpper(strings.TrimSpace(t))
}

func assetNotFound(ticker string) error {
	return fmt.Errorf("%w: %s", errs.ErrAssetNotFound, ticker)
}

func rateUnavailable(currency string) error {
	return fmt.Errorf("%w: %s", errs.ErrRateUnavailable, currency)
}

// isNoData reports whether err is a definitive "no such symbol" answer as
// opposed to a failure to reach the source.
func isNoData(err error) bool {
	return errors.Is(err, errs.ErrAssetNotFound) || errors.Is(err, errs.ErrRateUnavailable)
}

// validQuote rejects quotes that cannot price a purchase.
func validQuote(q *Quote) bool {
	return q != nil && q.Price.IsPositive() && q.Currency != ""
}
