// Package ledger applies debits and credits to accounts while keeping the
// balance non-negative and appending one movement per change.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kubesec-bank/invest-ledger/internal/errs"
	"github.com/kubesec-bank/invest-ledger/internal/models"
	"github.com/kubesec-bank/invest-ledger/internal/money"
	"github.com/kubesec-bank/invest-ledger/internal/repository"
)

// Ledger mutates balances. Debit and Credit must run inside a transaction
// obtained from repository.Repository.WithTx; they take the account row
// lock themselves and it is held until that transaction ends.
type Ledger struct {
	currency string
	now      func() time.Time
}

func New(currency string) *Ledger {
	return &Ledger{currency: currency, now: time.Now}
}

// Currency is the base currency every balance is kept in.
func (l *Ledger) Currency() string { return l.currency }

// Debit subtracts amount from the account and records a debit movement.
func (l *Ledger) Debit(ctx context.Context, q repository.Queries, accountID uuid.UUID, amount decimal.Decimal) (*models.Movement, error) {
	if err := money.ValidateAmount(amount); err != nil {
		return nil, err
	}

	account, err := l.lock(ctx, q, accountID)
	if err != nil {
		return nil, err
	}
	if account.Balance.LessThan(amount) {
		return nil, l.insufficient(account.Balance)
	}

	return l.apply(ctx, q, account, account.Balance.Sub(amount), models.MovementDebit, amount)
}

// Credit adds amount to the account and records a credit movement.
func (l *Ledger) Credit(ctx context.Context, q repository.Queries, accountID uuid.UUID, amount decimal.Decimal) (*models.Movement, error) {
	if err := money.ValidateAmount(amount); err != nil {
		return nil, err
	}

	account, err := l.lock(ctx, q, accountID)
	if err != nil {
		return nil, err
	}

	return l.apply(ctx, q, account, account.Balance.Add(amount), models.MovementCredit, amount)
}

// Post dispatches on kind.
func (l *Ledger) Post(ctx context.Context, q repository.Queries, accountID uuid.UUID, kind models.MovementKind, amount decimal.Decimal) (*models.Movement, error) {
	switch kind {
	case models.MovementDebit:
		return l.Debit(ctx, q, accountID, amount)
	case models.MovementCredit:
		return l.Credit(ctx, q, accountID, amount)
	default:
		return nil, errs.Field("kind", fmt.Errorf("%w: must be D or C", errs.ErrInvalidInput))
	}
}

// CheckFunds fails with ErrInsufficientFunds when the locked account cannot
// cover amount.
func (l *Ledger) CheckFunds(account *models.Account, amount decimal.Decimal) error {
	if account.Balance.LessThan(amount) {
		return l.insufficient(account.Balance)
	}
	return nil
}

func (l *Ledger) lock(ctx context.Context, q repository.Queries, accountID uuid.UUID) (*models.Account, error) {
	account, err := q.LockAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, errs.ErrNoAccount
	}
	return account, nil
}

func (l *Ledger) insufficient(balance decimal.Decimal) error {
	return fmt.Errorf("%w: available balance %s", errs.ErrInsufficientFunds, money.Format(balance, l.currency))
}

func (l *Ledger) apply(ctx context.Context, q repository.Queries, account *models.Account, balance decimal.Decimal, kind models.MovementKind, amount decimal.Decimal) (*models.Movement, error) {
	if err := q.UpdateBalance(ctx, account.ID, balance); err != nil {
		return nil, err
	}

	m := &models.Movement{
		ID:        uuid.New(),
		AccountID: account.ID,
		Kind:      kind,
		Amount:    amount,
		CreatedAt: l.now().UTC(),
	}
	if err := q.InsertMovement(ctx, m); err != nil {
		return nil, err
	}

	account.Balance = balance
	return m, nil
}
