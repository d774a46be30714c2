package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type IdentityKind string

const (
	IdentityPerson  IdentityKind = "F"
	IdentityCompany IdentityKind = "J"
)

// Identity is a registered person or company. TaxID and Email are unique.
type Identity struct {
	ID           uuid.UUID    `json:"id"`
	Kind         IdentityKind `json:"kind"`
	TaxID        string       `json:"tax_id"`
	Name         string       `json:"name"`
	Email        string       `json:"email"`
	PasswordHash string       `json:"-"`
	// ConfirmationHash is the bcrypt hash of the code sent at signup. It is
	// cleared once the identity is confirmed.
	ConfirmationHash string    `json:"-"`
	Confirmed        bool      `json:"confirmed"`
	Active           bool      `json:"active"`
	CreatedAt        time.Time `json:"created_at"`
}

// Account is the single checking account of an identity. Balance is a
// running total kept in step with the movements.
type Account struct {
	ID         uuid.UUID       `json:"id"`
	IdentityID uuid.UUID       `json:"identity_id"`
	Branch     string          `json:"branch"`
	Number     string          `json:"number"`
	Balance    decimal.Decimal `json:"balance"`
	Active     bool            `json:"active"`
	CreatedAt  time.Time       `json:"created_at"`
}

type MovementKind string

const (
	MovementDebit  MovementKind = "D"
	MovementCredit MovementKind = "C"
)

func (k MovementKind) Valid() bool {
	return k == MovementDebit || k == MovementCredit
}

// Movement is an immutable audit record of a balance change.
type Movement struct {
	ID        uuid.UUID       `json:"id"`
	AccountID uuid.UUID       `json:"account_id"`
	Kind      MovementKind    `json:"kind"`
	Amount    decimal.Decimal `json:"amount"`
	CreatedAt time.Time       `json:"created_at"`
}

type RiskTier string

const (
	RiskConservative RiskTier = "CONSERVADOR"
	RiskModerate     RiskTier = "MODERADO"
	RiskAggressive   RiskTier = "ARROJADO"
)

func (r RiskTier) Valid() bool {
	switch r {
	case RiskConservative, RiskModerate, RiskAggressive:
		return true
	}
	return false
}

type InvestorProfile struct {
	ID               uuid.UUID       `json:"id"`
	IdentityID       uuid.UUID       `json:"identity_id"`
	RiskTier         RiskTier        `json:"risk_tier"`
	DeclaredNetWorth decimal.Decimal `json:"declared_net_worth"`
	CreatedAt        time.Time       `json:"created_at"`
}

type Category string

const (
	CategoryFixedIncome    Category = "RENDA_FIXA"
	CategoryEquity         Category = "ACOES"
	CategoryRealEstateFund Category = "FUNDOS"
	CategoryCrypto         Category = "CRIPTO"
	// CategoryCurrency only appears in asset search results.
	CategoryCurrency Category = "MOEDA"
)

func (c Category) Valid() bool {
	switch c {
	case CategoryFixedIncome, CategoryEquity, CategoryRealEstateFund, CategoryCrypto:
		return true
	}
	return false
}

// Position is a holding owned by an investor profile. Ticker is empty for
// fixed income.
type Position struct {
	ID             uuid.UUID       `json:"id"`
	ProfileID      uuid.UUID       `json:"profile_id"`
	Category       Category        `json:"category"`
	Ticker         string          `json:"ticker,omitempty"`
	Quantity       decimal.Decimal `json:"quantity"`
	AveragePrice   decimal.Decimal `json:"average_price"`
	InvestedAmount decimal.Decimal `json:"invested_amount"`
	Active         bool            `json:"active"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Holder is an identity together with what it owns. A nil Account or
// Profile means the identity has none.
type Holder struct {
	Identity *Identity
	Account  *Account
	Profile  *InvestorProfile
}

// Caller is the authenticated request context, resolved once and passed
// explicitly to every operation.
type Caller struct {
	IdentityID uuid.UUID
	AccountID  *uuid.UUID
	ProfileID  *uuid.UUID
}

// CallerFor builds the Caller view of a Holder.
func CallerFor(h *Holder) Caller {
	c := Caller{IdentityID: h.Identity.ID}
	if h.Account != nil {
		id := h.Account.ID
		c.AccountID = &id
	}
	if h.Profile != nil {
		id := h.Profile.ID
		c.ProfileID = &id
	}
	return c
}

type CreditScore struct {
	Balance decimal.Decimal `json:"balance"`
	Score   decimal.Decimal `json:"score"`
}

// Event is published after lifecycle changes.
type Event struct {
	Type       string     `json:"type"`
	IdentityID uuid.UUID  `json:"identity_id"`
	AccountID  *uuid.UUID `json:"account_id,omitempty"`
	Email      string     `json:"email,omitempty"`
	Name       string     `json:"name,omitempty"`
	// Code is the confirmation code, set on identity.registered only.
	Code      string    `json:"code,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	EventIdentityRegistered  = "identity.registered"
	EventAccountDeactivated  = "account.deactivated"
	EventIdentityDeactivated = "identity.deactivated"
)
