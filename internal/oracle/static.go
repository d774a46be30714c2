package oracle

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/kubesec-bank/invest-ledger/internal/money"
)

// Static serves fixed quotes and rates from memory. It backs local runs
// without market access and tests.
type Static struct {
	mu     sync.RWMutex
	quotes map[string]Quote
	rates  map[string]decimal.Decimal
}

var _ QuoteSource = (*Static)(nil)
var _ RateSource = (*Static)(nil)

func NewStatic() *Static {
	return &Static{
		quotes: make(map[string]Quote),
		rates:  make(map[string]decimal.Decimal),
	}
}

// ParseStatic builds a Static from "TICKER=PRICE:CUR" quotes and "CUR=RATE"
// rates.
func ParseStatic(quotes, rates []string) (*Static, error) {
	s := NewStatic()
	for _, entry := range quotes {
		ticker, rest, ok := strings.Cut(entry, "=")
		if !ok {
			return nil, fmt.Errorf("static quote %q: want TICKER=PRICE:CUR", entry)
		}
		priceStr, cur, ok := strings.Cut(rest, ":")
		if !ok {
			return nil, fmt.Errorf("static quote %q: missing currency", entry)
		}
		price, err := decimal.NewFromString(priceStr)
		if err != nil {
			return nil, fmt.Errorf("static quote %q: %w", entry, err)
		}
		s.SetQuote(ticker, price, cur)
	}
	for _, entry := range rates {
		cur, rateStr, ok := strings.Cut(entry, "=")
		if !ok {
			return nil, fmt.Errorf("static rate %q: want CUR=RATE", entry)
		}
		rate, err := decimal.NewFromString(rateStr)
		if err != nil {
			return nil, fmt.Errorf("static rate %q: %w", entry, err)
		}
		s.SetRate(cur, rate)
	}
	return s, nil
}

func (s *Static) SetQuote(ticker string, price decimal.Decimal, currency string) {
	ticker = NormalizeTicker(ticker)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quotes[ticker] = Quote{Ticker: ticker, Price: money.Round(price), Currency: strings.ToUpper(currency)}
}

func (s *Static) SetRate(currency string, rate decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rates[strings.ToUpper(currency)] = rate
}

func (s *Static) TickerInfo(_ context.Context, ticker string) (*Quote, error) {
	ticker = NormalizeTicker(ticker)
	s.mu.RLock()
	q, ok := s.quotes[ticker]
	s.mu.RUnlock()
	if !ok {
		return nil, assetNotFound(ticker)
	}
	return &q, nil
}

func (s *Static) FXRate(_ context.Context, currency string) (decimal.Decimal, error) {
	currency = strings.ToUpper(currency)
	s.mu.RLock()
	rate, ok := s.rates[currency]
	s.mu.RUnlock()
	if !ok {
		return decimal.Zero, rateUnavailable(currency)
	}
	return rate, nil
}
