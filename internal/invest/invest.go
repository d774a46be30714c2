// Package invest buys and redeems investment positions against the ledger.
// Every price lookup finishes before the booking transaction begins.
package invest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/kubesec-bank/invest-ledger/internal/errs"
	"github.com/kubesec-bank/invest-ledger/internal/ledger"
	"github.com/kubesec-bank/invest-ledger/internal/logging"
	"github.com/kubesec-bank/invest-ledger/internal/metrics"
	"github.com/kubesec-bank/invest-ledger/internal/models"
	"github.com/kubesec-bank/invest-ledger/internal/money"
	"github.com/kubesec-bank/invest-ledger/internal/observe"
	"github.com/kubesec-bank/invest-ledger/internal/oracle"
	"github.com/kubesec-bank/invest-ledger/internal/repository"
)

type Service struct {
	repo    repository.Repository
	ledger  *ledger.Ledger
	oracle  oracle.PriceOracle
	metrics metrics.Collector
	logger  *logging.Logger
	now     func() time.Time
}

func NewService(repo repository.Repository, l *ledger.Ledger, o oracle.PriceOracle, m metrics.Collector, logger *logging.Logger) *Service {
	return &Service{
		repo:    repo,
		ledger:  l,
		oracle:  o,
		metrics: metrics.OrNoOp(m),
		logger:  logging.OrGlobal(logger).Named("invest"),
		now:     time.Now,
	}
}

// Portfolio is an investor profile with its open positions.
type Portfolio struct {
	Profile   *models.InvestorProfile `json:"profile"`
	Positions []models.Position       `json:"positions"`
	Invested  decimal.Decimal         `json:"invested"`
}

// Purchase prices the order, then debits the caller's account and opens
// the position in a single transaction.
func (s *Service) Purchase(ctx context.Context, caller models.Caller, p Pricing) (position *models.Position, err error) {
	defer s.done("purchase", time.Now(), &err)

	o, err := s.price(ctx, p)
	if err != nil {
		return nil, err
	}

	position = &models.Position{
		ID:             uuid.New(),
		Category:       o.category,
		Ticker:         o.ticker,
		Quantity:       o.quantity,
		AveragePrice:   o.averagePrice,
		InvestedAmount: o.cost,
		Active:         true,
		CreatedAt:      s.now().UTC(),
	}
	err = s.repo.WithTx(ctx, func(q repository.Queries) error {
		account, err := q.GetAccountByIdentity(ctx, caller.IdentityID)
		if err != nil {
			return err
		}
		if account == nil {
			return errs.ErrNoAccount
		}
		if account, err = q.LockAccount(ctx, account.ID); err != nil {
			return err
		}
		if !account.Active {
			return errs.ErrAccountInactive
		}
		if err := s.ledger.CheckFunds(account, o.cost); err != nil {
			return err
		}
		if _, err := s.ledger.Debit(ctx, q, account.ID, o.cost); err != nil {
			return err
		}

		profile, err := q.GetProfileByIdentity(ctx, caller.IdentityID)
		if err != nil {
			return err
		}
		if profile == nil {
			return errs.ErrNoInvestorProfile
		}
		// serializes with DeleteProfile
		if _, err := q.LockProfile(ctx, profile.ID); err != nil {
			return err
		}
		position.ProfileID = profile.ID
		return q.InsertPosition(ctx, position)
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordMovement(string(models.MovementDebit))
	s.logger.Info("position opened",
		zap.String("position_id", position.ID.String()),
		zap.String("category", string(position.Category)),
		zap.String("ticker", position.Ticker),
		zap.String("cost", position.InvestedAmount.StringFixed(money.AmountPlaces)),
	)
	return position, nil
}

// Redeem closes one of the caller's positions and credits its invested
// amount back to the profile owner's account. The account may be inactive.
func (s *Service) Redeem(ctx context.Context, caller models.Caller, positionID uuid.UUID) (m *models.Movement, err error) {
	defer s.done("redeem", time.Now(), &err)

	err = s.repo.WithTx(ctx, func(q repository.Queries) error {
		own, err := q.GetProfileByIdentity(ctx, caller.IdentityID)
		if err != nil {
			return err
		}
		if own == nil {
			return errs.ErrNotFound
		}
		position, err := q.GetPosition(ctx, positionID)
		if err != nil {
			return err
		}
		if position == nil || position.ProfileID != own.ID {
			return errs.ErrNotFound
		}

		account, err := q.GetAccountByIdentity(ctx, own.IdentityID)
		if err != nil {
			return err
		}
		if account == nil {
			return errs.ErrNoAccount
		}
		if m, err = s.ledger.Credit(ctx, q, account.ID, position.InvestedAmount); err != nil {
			return err
		}
		return q.DeletePosition(ctx, position.ID)
	})
	if err != nil {
		return nil, err
	}
	s.metrics.RecordMovement(string(models.MovementCredit))
	return m, nil
}

// CreateProfile registers the caller as an investor. Each identity has at
// most one profile.
func (s *Service) CreateProfile(ctx context.Context, caller models.Caller, tier models.RiskTier, netWorth decimal.Decimal) (profile *models.InvestorProfile, err error) {
	defer s.done("create_profile", time.Now(), &err)

	tier = models.RiskTier(strings.ToUpper(string(tier)))
	if !tier.Valid() {
		return nil, errs.Field("risk_tier", errs.ErrInvalidInput)
	}
	if netWorth.IsNegative() || !netWorth.Equal(netWorth.Truncate(money.AmountPlaces)) {
		return nil, errs.Field("declared_net_worth", errs.ErrInvalidAmount)
	}

	profile = &models.InvestorProfile{
		ID:               uuid.New(),
		IdentityID:       caller.IdentityID,
		RiskTier:         tier,
		DeclaredNetWorth: netWorth,
		CreatedAt:        s.now().UTC(),
	}
	err = s.repo.WithTx(ctx, func(q repository.Queries) error {
		existing, err := q.GetProfileByIdentity(ctx, caller.IdentityID)
		if err != nil {
			return err
		}
		if existing != nil {
			return errs.ErrDuplicateProfile
		}
		return q.CreateProfile(ctx, profile)
	})
	if err != nil {
		return nil, err
	}
	return profile, nil
}

// Profile returns the caller's profile and positions.
func (s *Service) Profile(ctx context.Context, caller models.Caller) (portfolio *Portfolio, err error) {
	defer s.done("profile", time.Now(), &err)
	return s.portfolio(ctx, caller)
}

func (s *Service) portfolio(ctx context.Context, caller models.Caller) (*Portfolio, error) {
	q := s.repo.Queries()
	profile, err := q.GetProfileByIdentity(ctx, caller.IdentityID)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return nil, errs.ErrNoInvestorProfile
	}
	positions, err := q.ListPositions(ctx, profile.ID)
	if err != nil {
		return nil, err
	}

	invested := decimal.Zero
	for _, p := range positions {
		invested = invested.Add(p.InvestedAmount)
	}
	if positions == nil {
		positions = []models.Position{}
	}
	return &Portfolio{Profile: profile, Positions: positions, Invested: invested}, nil
}

func (s *Service) Positions(ctx context.Context, caller models.Caller) (positions []models.Position, err error) {
	defer s.done("positions", time.Now(), &err)

	portfolio, err := s.portfolio(ctx, caller)
	if err != nil {
		return nil, err
	}
	return portfolio.Positions, nil
}

// DeleteProfile removes the caller's profile once it holds no positions.
func (s *Service) DeleteProfile(ctx context.Context, caller models.Caller, profileID uuid.UUID) (err error) {
	defer s.done("delete_profile", time.Now(), &err)

	return s.repo.WithTx(ctx, func(q repository.Queries) error {
		profile, err := q.LockProfile(ctx, profileID)
		if err != nil {
			return err
		}
		if profile == nil || profile.IdentityID != caller.IdentityID {
			return errs.ErrNotFound
		}
		active, err := q.CountActivePositions(ctx, profileID)
		if err != nil {
			return err
		}
		if active > 0 {
			return fmt.Errorf("%w: %d open", errs.ErrActivePositionsExist, active)
		}
		return q.DeleteProfile(ctx, profileID)
	})
}

// Quote looks up the latest price of ticker.
func (s *Service) Quote(ctx context.Context, ticker string) (*oracle.Quote, error) {
	ticker = oracle.NormalizeTicker(ticker)
	if ticker == "" {
		return nil, errs.Field("ticker", errs.ErrMissingParameter)
	}
	quote, err := s.oracle.TickerInfo(ctx, ticker)
	if err != nil {
		return nil, s.assetNotFound(ticker, err)
	}
	return quote, nil
}

// Search lists assets whose ticker or name matches query.
func (s *Service) Search(ctx context.Context, query string) ([]oracle.Asset, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errs.Field("q", errs.ErrMissingParameter)
	}
	assets, err := s.oracle.SearchAssets(ctx, query)
	if err != nil {
		s.logger.Warn("asset search failed", zap.String("query", query), zap.Error(err))
		return []oracle.Asset{}, nil
	}
	return assets, nil
}

func (s *Service) done(op string, start time.Time, err *error) {
	observe.Done(s.metrics, s.logger, op, start, *err)
}
