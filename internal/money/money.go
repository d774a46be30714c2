// Package money holds the fixed-point rules for cash amounts and position
// quantities.
package money

import (
	"fmt"
	"math"
	"strings"

	gomoney "github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"

	"github.com/kubesec-bank/invest-ledger/internal/errs"
)

const (
	// AmountPlaces is the precision of balances, prices and movements.
	AmountPlaces = 2
	// QuantityPlaces is the precision of position quantities.
	QuantityPlaces = 8

	DefaultBaseCurrency = "BRL"
)

// Round rounds a cash value to AmountPlaces using banker's rounding.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.RoundBank(AmountPlaces)
}

// RoundQuantity rounds a quantity to QuantityPlaces.
func RoundQuantity(d decimal.Decimal) decimal.Decimal {
	return d.RoundBank(QuantityPlaces)
}

// ValidateAmount accepts strictly positive values with at most two
// fraction digits.
func ValidateAmount(d decimal.Decimal) error {
	if !d.IsPositive() {
		return fmt.Errorf("%w: must be greater than zero", errs.ErrInvalidAmount)
	}
	if !d.Equal(d.Truncate(AmountPlaces)) {
		return fmt.Errorf("%w: at most %d decimal places", errs.ErrInvalidAmount, AmountPlaces)
	}
	return nil
}

// ValidateQuantity accepts strictly positive values with at most eight
// fraction digits.
func ValidateQuantity(d decimal.Decimal) error {
	if !d.IsPositive() {
		return fmt.Errorf("%w: quantity must be greater than zero", errs.ErrInvalidAmount)
	}
	if !d.Equal(d.Truncate(QuantityPlaces)) {
		return fmt.Errorf("%w: quantity has more than %d decimal places", errs.ErrInvalidAmount, QuantityPlaces)
	}
	return nil
}

// FromFloat converts a price reported as a float by an external source.
// The value is rounded to AmountPlaces so no binary-float residue reaches
// the ledger.
func FromFloat(f float64) (decimal.Decimal, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return decimal.Zero, fmt.Errorf("not a finite number: %v", f)
	}
	return Round(decimal.NewFromFloat(f)), nil
}

// ValidCurrency reports whether code is a known ISO 4217 currency.
func ValidCurrency(code string) bool {
	return gomoney.GetCurrency(strings.ToUpper(code)) != nil
}

// Format renders d in the display style of currency, e.g. "R$1.000,00".
func Format(d decimal.Decimal, currency string) string {
	cur := gomoney.GetCurrency(strings.ToUpper(currency))
	if cur == nil {
		return d.StringFixed(AmountPlaces) + " " + currency
	}
	minor := d.Shift(int32(cur.Fraction)).RoundBank(0)
	return cur.Formatter().Format(minor.IntPart())
}
