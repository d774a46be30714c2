package invest

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/kubesec-bank/invest-ledger/internal/errs"
	"github.com/kubesec-bank/invest-ledger/internal/models"
	"github.com/kubesec-bank/invest-ledger/internal/money"
	"github.com/kubesec-bank/invest-ledger/internal/oracle"
)

// Pricing describes how a purchase is valued. It is either
// FixedIncomePricing or MarketPricing.
type Pricing interface {
	Category() models.Category
	isPricing()
}

// FixedIncomePricing buys Amount units at a unit price of 1.
type FixedIncomePricing struct {
	Amount decimal.Decimal
}

func (FixedIncomePricing) Category() models.Category { return models.CategoryFixedIncome }
func (FixedIncomePricing) isPricing()                {}

// MarketPricing buys Quantity units of Ticker at the oracle price.
type MarketPricing struct {
	Kind     models.Category
	Ticker   string
	Quantity decimal.Decimal
}

func (p MarketPricing) Category() models.Category { return p.Kind }
func (MarketPricing) isPricing()                  {}

// NewPricing validates a purchase request and picks the variant for its
// category.
func NewPricing(category models.Category, ticker string, quantity, amount *decimal.Decimal) (Pricing, error) {
	if !category.Valid() {
		return nil, errs.Field("category", errs.ErrInvalidInput)
	}

	if category == models.CategoryFixedIncome {
		if amount == nil {
			return nil, errs.Field("amount", errs.ErrMissingParameter)
		}
		if err := money.ValidateAmount(*amount); err != nil {
			return nil, err
		}
		return FixedIncomePricing{Amount: *amount}, nil
	}

	ticker = oracle.NormalizeTicker(ticker)
	if ticker == "" {
		return nil, errs.Field("ticker", errs.ErrMissingParameter)
	}
	if quantity == nil || !quantity.IsPositive() {
		return nil, errs.Field("quantity", errs.ErrMissingParameter)
	}
	if err := money.ValidateQuantity(*quantity); err != nil {
		return nil, err
	}
	return MarketPricing{Kind: category, Ticker: ticker, Quantity: *quantity}, nil
}

// order is a fully priced purchase, ready to be booked.
type order struct {
	category     models.Category
	ticker       string
	quantity     decimal.Decimal
	averagePrice decimal.Decimal
	cost         decimal.Decimal
}

func (s *Service) price(ctx context.Context, p Pricing) (*order, error) {
	switch p := p.(type) {
	case FixedIncomePricing:
		return priceFixedIncome(p), nil
	case MarketPricing:
		return s.priceMarket(ctx, p)
	default:
		return nil, fmt.Errorf("%w: unknown pricing %T", errs.ErrInvalidInput, p)
	}
}

func priceFixedIncome(p FixedIncomePricing) *order {
	return &order{
		category:     models.CategoryFixedIncome,
		quantity:     p.Amount,
		averagePrice: decimal.NewFromInt(1),
		cost:         p.Amount,
	}
}

// priceMarket converts the quote into the base currency and rounds twice:
// the unit price first, then the total.
func (s *Service) priceMarket(ctx context.Context, p MarketPricing) (*order, error) {
	quote, err := s.oracle.TickerInfo(ctx, p.Ticker)
	if err != nil {
		return nil, s.assetNotFound(p.Ticker, err)
	}
	if quote == nil || !quote.Price.IsPositive() {
		return nil, fmt.Errorf("%w: %s", errs.ErrAssetNotFound, p.Ticker)
	}

	factor, err := s.conversionFactor(ctx, quote.Currency)
	if err != nil {
		return nil, err
	}

	unit := money.Round(quote.Price.Mul(factor))
	cost := money.Round(p.Quantity.Mul(unit))
	if !cost.IsPositive() {
		return nil, fmt.Errorf("%w: total cost rounds to zero", errs.ErrInvalidAmount)
	}
	return &order{
		category:     p.Kind,
		ticker:       p.Ticker,
		quantity:     p.Quantity,
		averagePrice: unit,
		cost:         cost,
	}, nil
}

// conversionFactor is exactly one for quotes already in the base currency.
func (s *Service) conversionFactor(ctx context.Context, currency string) (decimal.Decimal, error) {
	if strings.EqualFold(currency, s.ledger.Currency()) {
		return decimal.NewFromInt(1), nil
	}
	rate, err := s.oracle.FXRate(ctx, currency)
	if err != nil {
		if errors.Is(err, errs.ErrRateUnavailable) {
			return decimal.Zero, err
		}
		s.logger.Warn("exchange rate lookup failed", zap.String("currency", currency), zap.Error(err))
		return decimal.Zero, fmt.Errorf("%w: %s", errs.ErrRateUnavailable, currency)
	}
	if !rate.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: %s", errs.ErrRateUnavailable, currency)
	}
	return rate, nil
}

func (s *Service) assetNotFound(ticker string, err error) error {
	if errors.Is(err, errs.ErrAssetNotFound) {
		return err
	}
	s.logger.Warn("quote lookup failed", zap.String("ticker", ticker), zap.Error(err))
	return fmt.Errorf("%w: %s", errs.ErrAssetNotFound, ticker)
}
