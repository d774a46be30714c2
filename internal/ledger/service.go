package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kubesec-bank/invest-ledger/internal/errs"
	"github.com/kubesec-bank/invest-ledger/internal/logging"
	"github.com/kubesec-bank/invest-ledger/internal/metrics"
	"github.com/kubesec-bank/invest-ledger/internal/models"
	"github.com/kubesec-bank/invest-ledger/internal/money"
	"github.com/kubesec-bank/invest-ledger/internal/observe"
	"github.com/kubesec-bank/invest-ledger/internal/repository"
)

var scoreFactor = decimal.RequireFromString("0.1")

// Service exposes the caller-facing account operations. Each call is one
// transaction.
type Service struct {
	repo    repository.Repository
	ledger  *Ledger
	metrics metrics.Collector
	logger  *logging.Logger
}

func NewService(repo repository.Repository, l *Ledger, m metrics.Collector, logger *logging.Logger) *Service {
	return &Service{
		repo:    repo,
		ledger:  l,
		metrics: metrics.OrNoOp(m),
		logger:  logging.OrGlobal(logger).Named("ledger"),
	}
}

// Deposit credits the caller's account.
func (s *Service) Deposit(ctx context.Context, caller models.Caller, amount decimal.Decimal) (m *models.Movement, err error) {
	defer s.done("deposit", time.Now(), &err)

	accountID, err := ownAccount(caller)
	if err != nil {
		return nil, err
	}
	return s.post(ctx, accountID, models.MovementCredit, amount, false)
}

// Withdraw debits the caller's account. A deactivated account can still be
// drained, since redemptions may credit it after deactivation.
func (s *Service) Withdraw(ctx context.Context, caller models.Caller, amount decimal.Decimal) (m *models.Movement, err error) {
	defer s.done("withdraw", time.Now(), &err)

	accountID, err := ownAccount(caller)
	if err != nil {
		return nil, err
	}
	return s.post(ctx, accountID, models.MovementDebit, amount, true)
}

// PostMovement records a manual debit or credit on accountID, which must be
// the caller's own account. Debits obey the same non-negative rule.
func (s *Service) PostMovement(ctx context.Context, caller models.Caller, accountID uuid.UUID, kind models.MovementKind, amount decimal.Decimal) (m *models.Movement, err error) {
	defer s.done("post_movement", time.Now(), &err)

	own, err := ownAccount(caller)
	if err != nil {
		return nil, err
	}
	if own != accountID {
		return nil, errs.ErrNotFound
	}
	return s.post(ctx, accountID, kind, amount, false)
}

// post runs one movement in its own transaction. With drain set an inactive
// account may still be debited.
func (s *Service) post(ctx context.Context, accountID uuid.UUID, kind models.MovementKind, amount decimal.Decimal, drain bool) (*models.Movement, error) {
	var m *models.Movement
	err := s.repo.WithTx(ctx, func(q repository.Queries) error {
		account, err := q.LockAccount(ctx, accountID)
		if err != nil {
			return err
		}
		if account == nil {
			return errs.ErrNoAccount
		}
		if !account.Active && !drain {
			return errs.ErrAccountInactive
		}
		m, err = s.ledger.Post(ctx, q, accountID, kind, amount)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.metrics.RecordMovement(string(m.Kind))
	return m, nil
}

// Account returns the caller's account as currently stored.
func (s *Service) Account(ctx context.Context, caller models.Caller) (account *models.Account, err error) {
	defer s.done("account", time.Now(), &err)
	return s.account(ctx, caller)
}

func (s *Service) account(ctx context.Context, caller models.Caller) (*models.Account, error) {
	accountID, err := ownAccount(caller)
	if err != nil {
		return nil, err
	}
	account, err := s.repo.Queries().GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, errs.ErrNoAccount
	}
	return account, nil
}

// Statement lists the caller's movements in the order they were written.
func (s *Service) Statement(ctx context.Context, caller models.Caller, limit, offset int) (movements []models.Movement, err error) {
	defer s.done("statement", time.Now(), &err)

	accountID, err := ownAccount(caller)
	if err != nil {
		return nil, err
	}
	if offset < 0 {
		return nil, errs.Field("offset", errs.ErrInvalidInput)
	}
	return s.repo.Queries().ListMovements(ctx, accountID, limit, offset)
}

// CreditScore derives a score of one tenth of the current balance.
func (s *Service) CreditScore(ctx context.Context, caller models.Caller) (score *models.CreditScore, err error) {
	defer s.done("credit_score", time.Now(), &err)

	account, err := s.account(ctx, caller)
	if err != nil {
		return nil, err
	}
	return &models.CreditScore{
		Balance: account.Balance,
		Score:   money.Round(account.Balance.Mul(scoreFactor)),
	}, nil
}

func (s *Service) done(op string, start time.Time, err *error) {
	observe.Done(s.metrics, s.logger, op, start, *err)
}

func ownAccount(caller models.Caller) (uuid.UUID, error) {
	if caller.AccountID == nil {
		return uuid.Nil, errs.ErrNoAccount
	}
	return *caller.AccountID, nil
}
