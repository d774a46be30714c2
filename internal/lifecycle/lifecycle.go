// Package lifecycle opens, confirms and closes identities and accounts.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/kubesec-bank/invest-ledger/internal/auth"
	"github.com/kubesec-bank/invest-ledger/internal/errs"
	"github.com/kubesec-bank/invest-ledger/internal/logging"
	"github.com/kubesec-bank/invest-ledger/internal/metrics"
	"github.com/kubesec-bank/invest-ledger/internal/models"
	"github.com/kubesec-bank/invest-ledger/internal/notify"
	"github.com/kubesec-bank/invest-ledger/internal/observe"
	"github.com/kubesec-bank/invest-ledger/internal/repository"
)

type Service struct {
	repo     repository.Repository
	sessions *auth.Sessions
	notifier notify.Notifier
	metrics  metrics.Collector
	logger   *logging.Logger
	now      func() time.Time
}

func NewService(repo repository.Repository, sessions *auth.Sessions, n notify.Notifier, m metrics.Collector, logger *logging.Logger) *Service {
	if n == nil {
		n = notify.Nop{}
	}
	return &Service{
		repo:     repo,
		sessions: sessions,
		notifier: n,
		metrics:  metrics.OrNoOp(m),
		logger:   logging.OrGlobal(logger).Named("lifecycle"),
		now:      time.Now,
	}
}

// NormalizeTaxID strips everything but digits. Persons carry 11 digits and
// companies 14.
func NormalizeTaxID(kind models.IdentityKind, taxID string) (string, error) {
	var b strings.Builder
	for _, r := range taxID {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	want := 11
	if kind == models.IdentityCompany {
		want = 14
	}
	if len(digits) != want {
		return "", fmt.Errorf("%w: expected %d digits", errs.ErrInvalidTaxID, want)
	}
	return digits, nil
}

// Register creates an unconfirmed identity and sends its confirmation code
// out of band in an identity.registered event. The code is never returned.
func (s *Service) Register(ctx context.Context, req models.SignupRequest) (identity *models.Identity, err error) {
	defer s.done("register", time.Now(), &err)

	kind := models.IdentityKind(strings.ToUpper(string(req.Kind)))
	if kind != models.IdentityPerson && kind != models.IdentityCompany {
		return nil, errs.Field("kind", errs.ErrInvalidInput)
	}
	taxID, err := NormalizeTaxID(kind, req.TaxID)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, errs.Field("name", errs.ErrMissingParameter)
	}
	if req.Password == "" {
		return nil, errs.Field("password", errs.ErrMissingParameter)
	}
	addr, err := mail.ParseAddress(req.Email)
	if err != nil {
		return nil, errs.Field("email", errs.ErrInvalidInput)
	}
	email := strings.ToLower(addr.Address)

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}
	code, err := auth.NewConfirmationCode()
	if err != nil {
		return nil, err
	}
	codeHash, err := auth.HashPassword(code)
	if err != nil {
		return nil, err
	}
	identity = &models.Identity{
		ID:               uuid.New(),
		Kind:             kind,
		TaxID:            taxID,
		Name:             name,
		Email:            email,
		PasswordHash:     hash,
		ConfirmationHash: codeHash,
		Active:           true,
		CreatedAt:        s.now().UTC(),
	}

	err = s.repo.WithTx(ctx, func(q repository.Queries) error {
		exists, err := q.IdentityExists(ctx, taxID, email)
		if err != nil {
			return err
		}
		if exists {
			return errs.ErrDuplicateIdentity
		}
		return q.CreateIdentity(ctx, identity)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("identity registered", zap.String("identity_id", identity.ID.String()))
	s.publish(ctx, models.Event{
		Type:       models.EventIdentityRegistered,
		IdentityID: identity.ID,
		Email:      identity.Email,
		Name:       identity.Name,
		Code:       code,
		Timestamp:  s.now().UTC(),
	})
	return identity, nil
}

// Confirm marks the identity confirmed when code matches the one sent at
// signup. Unknown identities and wrong codes fail alike with
// ErrInvalidCredential. Confirming twice is a no-op.
func (s *Service) Confirm(ctx context.Context, identityID uuid.UUID, code string) (err error) {
	defer s.done("confirm", time.Now(), &err)

	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return errs.Field("code", errs.ErrMissingParameter)
	}
	q := s.repo.Queries()
	identity, err := q.GetIdentity(ctx, identityID)
	if err != nil {
		return err
	}
	if identity == nil {
		return errs.ErrInvalidCredential
	}
	if identity.Confirmed {
		return nil
	}
	if identity.ConfirmationHash == "" {
		return errs.ErrInvalidCredential
	}
	if err := auth.CheckPassword(identity.ConfirmationHash, code); err != nil {
		return err
	}
	if err := q.ConfirmIdentity(ctx, identityID); err != nil {
		return err
	}
	s.logger.Info("identity confirmed", zap.String("identity_id", identityID.String()))
	return nil
}

// Login checks the credentials and issues an access token. The tax id must
// match the registered one.
func (s *Service) Login(ctx context.Context, req models.LoginRequest) (resp *models.TokenResponse, err error) {
	defer s.done("login", time.Now(), &err)

	identity, err := s.repo.Queries().GetIdentityByEmail(ctx, strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		return nil, err
	}
	if identity == nil {
		return nil, errs.ErrInvalidCredential
	}
	if err := auth.CheckPassword(identity.PasswordHash, req.Password); err != nil {
		return nil, err
	}
	if taxID, err := NormalizeTaxID(identity.Kind, req.TaxID); err != nil || taxID != identity.TaxID {
		return nil, errs.ErrInvalidCredential
	}
	if !identity.Confirmed {
		return nil, errs.ErrIdentityUnconfirmed
	}
	if !identity.Active {
		return nil, errs.ErrIdentityInactive
	}

	token, err := s.sessions.Issue(identity.ID, identity.Email)
	if err != nil {
		return nil, err
	}
	return &models.TokenResponse{
		AccessToken: token,
		ExpiresIn:   int64(s.sessions.Expiry().Seconds()),
	}, nil
}

// Resolve loads an identity with its account and investor profile.
func (s *Service) Resolve(ctx context.Context, identityID uuid.UUID) (*models.Holder, error) {
	q := s.repo.Queries()
	identity, err := q.GetIdentity(ctx, identityID)
	if err != nil {
		return nil, err
	}
	if identity == nil {
		return nil, errs.ErrNotFound
	}
	account, err := q.GetAccountByIdentity(ctx, identityID)
	if err != nil {
		return nil, err
	}
	profile, err := q.GetProfileByIdentity(ctx, identityID)
	if err != nil {
		return nil, err
	}
	return &models.Holder{Identity: identity, Account: account, Profile: profile}, nil
}

// Caller resolves the request context for an authenticated identity.
// Unknown and deactivated identities are unauthorized.
func (s *Service) Caller(ctx context.Context, identityID uuid.UUID) (models.Caller, error) {
	holder, err := s.Resolve(ctx, identityID)
	if errors.Is(err, errs.ErrNotFound) {
		return models.Caller{}, errs.ErrUnauthorized
	}
	if err != nil {
		return models.Caller{}, err
	}
	if !holder.Identity.Active {
		return models.Caller{}, fmt.Errorf("%w: %v", errs.ErrUnauthorized, errs.ErrIdentityInactive)
	}
	return models.CallerFor(holder), nil
}

// OpenAccount creates the caller's only account. A deactivated account
// still counts.
func (s *Service) OpenAccount(ctx context.Context, caller models.Caller, branch, number string) (account *models.Account, err error) {
	defer s.done("open_account", time.Now(), &err)

	branch = strings.TrimSpace(branch)
	number = strings.TrimSpace(number)
	if branch == "" {
		return nil, errs.Field("branch", errs.ErrMissingParameter)
	}
	if number == "" {
		return nil, errs.Field("number", errs.ErrMissingParameter)
	}

	account = &models.Account{
		ID:         uuid.New(),
		IdentityID: caller.IdentityID,
		Branch:     branch,
		Number:     number,
		Balance:    decimal.Zero,
		Active:     true,
		CreatedAt:  s.now().UTC(),
	}
	err = s.repo.WithTx(ctx, func(q repository.Queries) error {
		identity, err := q.GetIdentity(ctx, caller.IdentityID)
		if err != nil {
			return err
		}
		if identity == nil {
			return errs.ErrNotFound
		}
		if !identity.Active {
			return errs.ErrIdentityInactive
		}
		existing, err := q.GetAccountByIdentity(ctx, caller.IdentityID)
		if err != nil {
			return err
		}
		if existing != nil {
			return errs.ErrDuplicateAccount
		}
		taken, err := q.AccountNumberTaken(ctx, number)
		if err != nil {
			return err
		}
		if taken {
			return errs.ErrDuplicateNumber
		}
		return q.CreateAccount(ctx, account)
	})
	if err != nil {
		return nil, err
	}
	return account, nil
}

// DeactivateAccount closes the caller's account once its balance is zero.
func (s *Service) DeactivateAccount(ctx context.Context, caller models.Caller, accountID uuid.UUID, password string) (err error) {
	defer s.done("deactivate_account", time.Now(), &err)

	identity, err := s.checkPassword(ctx, caller, password)
	if err != nil {
		return err
	}
	if caller.AccountID == nil || *caller.AccountID != accountID {
		return errs.ErrNotFound
	}

	err = s.repo.WithTx(ctx, func(q repository.Queries) error {
		account, err := q.LockAccount(ctx, accountID)
		if err != nil {
			return err
		}
		if account == nil || !account.Active || account.IdentityID != caller.IdentityID {
			return errs.ErrNotFound
		}
		if !account.Balance.IsZero() {
			return fmt.Errorf("%w: %s", errs.ErrNonZeroBalance, account.Balance.StringFixed(2))
		}
		return q.SetAccountActive(ctx, accountID, false)
	})
	if err != nil {
		return err
	}

	s.publish(ctx, models.Event{
		Type:       models.EventAccountDeactivated,
		IdentityID: identity.ID,
		AccountID:  &accountID,
		Email:      identity.Email,
		Name:       identity.Name,
		Timestamp:  s.now().UTC(),
	})
	return nil
}

// DeactivateIdentity closes the identity together with its account and
// revokes every session it holds. Revocation is part of the transaction.
func (s *Service) DeactivateIdentity(ctx context.Context, caller models.Caller, password string) (err error) {
	defer s.done("deactivate_identity", time.Now(), &err)

	identity, err := s.checkPassword(ctx, caller, password)
	if err != nil {
		return err
	}

	var accountID *uuid.UUID
	err = s.repo.WithTx(ctx, func(q repository.Queries) error {
		current, err := q.GetIdentity(ctx, caller.IdentityID)
		if err != nil {
			return err
		}
		if current == nil || !current.Active {
			return errs.ErrNotFound
		}

		account, err := q.GetAccountByIdentity(ctx, caller.IdentityID)
		if err != nil {
			return err
		}
		if account != nil {
			if account, err = q.LockAccount(ctx, account.ID); err != nil {
				return err
			}
			if !account.Balance.IsZero() {
				return fmt.Errorf("%w: %s", errs.ErrNonZeroBalance, account.Balance.StringFixed(2))
			}
		}

		profile, err := q.GetProfileByIdentity(ctx, caller.IdentityID)
		if err != nil {
			return err
		}
		if profile != nil {
			active, err := q.CountActivePositions(ctx, profile.ID)
			if err != nil {
				return err
			}
			if active > 0 {
				return errs.ErrActivePositionsExist
			}
		}

		if err := q.DeactivateIdentity(ctx, caller.IdentityID); err != nil {
			return err
		}
		if account != nil && account.Active {
			if err := q.SetAccountActive(ctx, account.ID, false); err != nil {
				return err
			}
			id := account.ID
			accountID = &id
		}
		return s.sessions.RevokeAll(ctx, caller.IdentityID)
	})
	if err != nil {
		return err
	}

	s.logger.Info("identity deactivated", zap.String("identity_id", identity.ID.String()))
	s.publish(ctx, models.Event{
		Type:       models.EventIdentityDeactivated,
		IdentityID: identity.ID,
		AccountID:  accountID,
		Email:      identity.Email,
		Name:       identity.Name,
		Timestamp:  s.now().UTC(),
	})
	return nil
}

func (s *Service) checkPassword(ctx context.Context, caller models.Caller, password string) (*models.Identity, error) {
	if password == "" {
		return nil, errs.Field("password", errs.ErrMissingParameter)
	}
	identity, err := s.repo.Queries().GetIdentity(ctx, caller.IdentityID)
	if err != nil {
		return nil, err
	}
	if identity == nil {
		return nil, errs.ErrUnauthorized
	}
	if err := auth.CheckPassword(identity.PasswordHash, password); err != nil {
		return nil, err
	}
	return identity, nil
}

// publish never fails the operation that triggered it.
func (s *Service) publish(ctx context.Context, event models.Event) {
	if err := s.notifier.Publish(ctx, event); err != nil {
		s.logger.Warn("failed to publish event",
			zap.String("event", event.Type),
			zap.String("identity_id", event.IdentityID.String()),
			zap.Error(err),
		)
	}
}

func (s *Service) done(op string, start time.Time, err *error) {
	observe.Done(s.metrics, s.logger, op, start, *err)
}
