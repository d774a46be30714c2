package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PaesslerAG/jsonpath"
	"github.com/shopspring/decimal"

	"github.com/kubesec-bank/invest-ledger/internal/money"
)

// HTTPConfig describes a JSON quote API. URL templates take the escaped
// ticker or currency code in place of a single %s.
type HTTPConfig struct {
	QuoteURL     string
	PricePath    string
	CurrencyPath string
	RateURL      string
	RatePath     string
	// Token is sent as a bearer token when set.
	Token string
}

// HTTPSource reads quotes and rates from a JSON API, picking the values out
// of each response with jsonpath expressions.
type HTTPSource struct {
	client *http.Client
	cfg    HTTPConfig
}

var _ QuoteSource = (*HTTPSource)(nil)
var _ RateSource = (*HTTPSource)(nil)

func NewHTTPSource(client *http.Client, cfg HTTPConfig) *HTTPSource {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPSource{client: client, cfg: cfg}
}

func (s *HTTPSource) TickerInfo(ctx context.Context, ticker string) (*Quote, error) {
	if s.cfg.QuoteURL == "" {
		return nil, assetNotFound(ticker)
	}

	var doc any
	found, err := s.get(ctx, fmt.Sprintf(s.cfg.QuoteURL, url.PathEscape(ticker)), &doc)
	if err != nil {
		return nil, fmt.Errorf("quote %s: %w", ticker, err)
	}
	if !found {
		return nil, assetNotFound(ticker)
	}

	price, err := lookupDecimal(doc, s.cfg.PricePath)
	if err != nil || !price.IsPositive() {
		return nil, assetNotFound(ticker)
	}
	cur, err := lookupString(doc, s.cfg.CurrencyPath)
	if err != nil || cur == "" {
		return nil, assetNotFound(ticker)
	}

	return &Quote{Ticker: ticker, Price: money.Round(price), Currency: strings.ToUpper(cur)}, nil
}

func (s *HTTPSource) FXRate(ctx context.Context, currency string) (decimal.Decimal, error) {
	if s.cfg.RateURL == "" {
		return decimal.Zero, rateUnavailable(currency)
	}

	var doc any
	found, err := s.get(ctx, fmt.Sprintf(s.cfg.RateURL, url.PathEscape(currency)), &doc)
	if err != nil {
		return decimal.Zero, fmt.Errorf("rate %s: %w", currency, err)
	}
	if !found {
		return decimal.Zero, rateUnavailable(currency)
	}

	rate, err := lookupDecimal(doc, s.cfg.RatePath)
	if err != nil || !rate.IsPositive() {
		return decimal.Zero, rateUnavailable(currency)
	}
	return rate, nil
}

// get decodes the JSON body at addr into v. Numbers are kept as
// json.Number so prices never pass through float64. A 404 reports
// found=false without error.
func (s *HTTPSource) get(ctx context.Context, addr string, v any) (found bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, addr, nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("Accept", "application/json")
	if s.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+s.cfg.Token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return false, nil
	case resp.StatusCode != http.StatusOK:
		return false, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return false, fmt.Errorf("decode response: %w", err)
	}
	return true, nil
}

// lookup evaluates path and keeps the first element when the expression
// yields a list.
func lookup(doc any, path string) (any, error) {
	val, err := jsonpath.Get(path, doc)
	if err != nil {
		return nil, fmt.Errorf("jsonpath %q: %w", path, err)
	}
	if list, ok := val.([]any); ok {
		if len(list) == 0 {
			return nil, fmt.Errorf("jsonpath %q: no match", path)
		}
		val = list[0]
	}
	return val, nil
}

func lookupDecimal(doc any, path string) (decimal.Decimal, error) {
	val, err := lookup(doc, path)
	if err != nil {
		return decimal.Zero, err
	}
	switch v := val.(type) {
	case json.Number:
		return decimal.NewFromString(v.String())
	case string:
		return decimal.NewFromString(v)
	case float64:
		return money.FromFloat(v)
	}
	return decimal.Zero, fmt.Errorf("jsonpath %q: not a number: %v", path, val)
}

func lookupString(doc any, path string) (string, error) {
	val, err := lookup(doc, path)
	if err != nil {
		return "", err
	}
	s, ok := val.(string)
	if !ok {
		return "", fmt.Errorf("jsonpath %q: not a string: %v", path, val)
	}
	return s, nil
}
