package models

import "github.com/shopspring/decimal"

// Request types

type SignupRequest struct {
	Kind     IdentityKind `json:"kind"`
	TaxID    string       `json:"tax_id"`
	Name     string       `json:"name"`
	Email    string       `json:"email"`
	Password string       `json:"password"`
}

type ConfirmRequest struct {
	Code string `json:"code"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	TaxID    string `json:"tax_id"`
}

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

type OpenAccountRequest struct {
	Branch string `json:"branch"`
	Number string `json:"number"`
}

type AmountRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

type MovementRequest struct {
	Kind   MovementKind    `json:"kind"`
	Amount decimal.Decimal `json:"amount"`
}

type PasswordRequest struct {
	Password string `json:"password"`
}

type CreateProfileRequest struct {
	RiskTier         RiskTier        `json:"risk_tier"`
	DeclaredNetWorth decimal.Decimal `json:"declared_net_worth"`
}

// PurchaseRequest carries either Amount (fixed income) or Ticker and
// Quantity (market priced categories).
type PurchaseRequest struct {
	Category Category         `json:"category"`
	Ticker   string           `json:"ticker"`
	Quantity *decimal.Decimal `json:"quantity"`
	Amount   *decimal.Decimal `json:"amount"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
