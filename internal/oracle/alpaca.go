package oracle

import (
	"context"
	"fmt"
	"strings"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"github.com/kubesec-bank/invest-ledger/internal/money"
)

// latestTrader is the part of the Alpaca market-data client we use.
type latestTrader interface {
	GetLatestTrade(symbol string, req marketdata.GetLatestTradeRequest) (*marketdata.Trade, error)
}

// AlpacaSource quotes US equities from the latest Alpaca trade. Prices
// are in USD.
type AlpacaSource struct {
	client latestTrader
}

var _ QuoteSource = (*AlpacaSource)(nil)

// NewAlpacaSource creates a source using the given credentials. An empty
// dataURL keeps the SDK default.
func NewAlpacaSource(apiKey, apiSecret, dataURL string) *AlpacaSource {
	opts := marketdata.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
	}
	if dataURL != "" {
		opts.BaseURL = dataURL
	}
	return &AlpacaSource{client: marketdata.NewClient(opts)}
}

// usSymbol accepts plain symbols such as AAPL or BRK.B; exchange suffixes
// like .SA and pairs like BTC-USD belong to other sources.
func usSymbol(ticker string) bool {
	if ticker == "" || len(ticker) > 7 || strings.ContainsAny(ticker, "-=^") {
		return false
	}
	base, class, dotted := strings.Cut(ticker, ".")
	if dotted && len(class) != 1 {
		return false
	}
	for _, r := range base {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return base != ""
}

func (s *AlpacaSource) TickerInfo(ctx context.Context, ticker string) (*Quote, error) {
	ticker = NormalizeTicker(ticker)
	if !usSymbol(ticker) {
		return nil, assetNotFound(ticker)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	trade, err := s.client.GetLatestTrade(ticker, marketdata.GetLatestTradeRequest{})
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "not found") {
			return nil, assetNotFound(ticker)
		}
		return nil, fmt.Errorf("alpaca latest trade %s: %w", ticker, err)
	}
	if trade == nil {
		return nil, assetNotFound(ticker)
	}

	price, err := money.FromFloat(trade.Price)
	if err != nil || !price.IsPositive() {
		return nil, assetNotFound(ticker)
	}
	return &Quote{Ticker: ticker, Price: price, Currency: "USD"}, nil
}
