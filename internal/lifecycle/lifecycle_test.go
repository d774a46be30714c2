package lifecycle

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kubesec-bank/invest-ledger/internal/auth"
	"github.com/kubesec-bank/invest-ledger/internal/errs"
	"github.com/kubesec-bank/invest-ledger/internal/models"
	"github.com/kubesec-bank/invest-ledger/internal/notify"
	"github.com/kubesec-bank/invest-ledger/internal/repository"
	"github.com/kubesec-bank/invest-ledger/internal/repository/repotest"
)

type fixture struct {
	svc      *Service
	store    *repository.Store
	sessions *auth.Sessions
	revoked  *auth.MemoryRevocations
	events   *notify.Recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := repotest.NewStore(t)
	revoked := auth.NewMemoryRevocations()
	sessions := auth.NewSessions("test-secret", time.Minute, revoked)
	events := &notify.Recorder{}
	return &fixture{
		svc:      NewService(store, sessions, events, nil, nil),
		store:    store,
		sessions: sessions,
		revoked:  revoked,
		events:   events,
	}
}

// signup registers and confirms an identity with password "pw".
func (f *fixture) signup(t *testing.T, taxID, email string) *models.Identity {
	t.Helper()
	identity, err := f.svc.Register(context.Background(), models.SignupRequest{
		Kind: models.IdentityPerson, TaxID: taxID, Name: "Ana", Email: email, Password: "pw",
	})
	require.NoError(t, err)
	require.NoError(t, f.svc.Confirm(context.Background(), identity.ID, f.code(t, identity.ID)))
	return identity
}

// code returns the confirmation code published for id.
func (f *fixture) code(t *testing.T, id uuid.UUID) string {
	t.Helper()
	for _, e := range f.events.Events() {
		if e.Type == models.EventIdentityRegistered && e.IdentityID == id {
			return e.Code
		}
	}
	t.Fatalf("no %s event for %s", models.EventIdentityRegistered, id)
	return ""
}

func (f *fixture) eventsOf(typ string) []models.Event {
	var out []models.Event
	for _, e := range f.events.Events() {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

func (f *fixture) caller(t *testing.T, id uuid.UUID) models.Caller {
	t.Helper()
	c, err := f.svc.Caller(context.Background(), id)
	require.NoError(t, err)
	return c
}

func TestNormalizeTaxID(t *testing.T) {
	got, err := NormalizeTaxID(models.IdentityPerson, "123.456.789-01")
	require.NoError(t, err)
	assert.Equal(t, "12345678901", got)

	got, err = NormalizeTaxID(models.IdentityCompany, "12.345.678/0001-90")
	require.NoError(t, err)
	assert.Equal(t, "12345678000190", got)

	_, err = NormalizeTaxID(models.IdentityPerson, "12345")
	assert.ErrorIs(t, err, errs.ErrInvalidTaxID)
	assert.Equal(t, errs.ClassValidation, errs.Classify(err))
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.signup(t, "123.456.789-01", "ana@example.com")

	_, err := f.svc.Register(ctx, models.SignupRequest{
		Kind: "F", TaxID: "12345678901", Name: "Other", Email: "other@example.com", Password: "pw",
	})
	assert.ErrorIs(t, err, errs.ErrDuplicateIdentity)

	_, err = f.svc.Register(ctx, models.SignupRequest{
		Kind: "F", TaxID: "98765432100", Name: "Other", Email: "ANA@example.com", Password: "pw",
	})
	assert.ErrorIs(t, err, errs.ErrDuplicateIdentity)

	_, err = f.svc.Register(ctx, models.SignupRequest{Kind: "X", TaxID: "98765432100", Name: "n", Email: "n@example.com", Password: "pw"})
	assert.ErrorIs(t, err, errs.ErrInvalidInput)
}

func TestLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	identity, err := f.svc.Register(ctx, models.SignupRequest{
		Kind: "F", TaxID: "12345678901", Name: "Ana", Email: "ana@example.com", Password: "pw",
	})
	require.NoError(t, err)

	req := models.LoginRequest{Email: "ana@example.com", Password: "pw", TaxID: "123.456.789-01"}
	_, err = f.svc.Login(ctx, req)
	assert.ErrorIs(t, err, errs.ErrIdentityUnconfirmed)

	require.NoError(t, f.svc.Confirm(ctx, identity.ID, f.code(t, identity.ID)))
	resp, err := f.svc.Login(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, int64(60), resp.ExpiresIn)

	claims, err := f.sessions.Validate(ctx, resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, identity.ID.String(), claims.IdentityID)

	_, err = f.svc.Login(ctx, models.LoginRequest{Email: "ana@example.com", Password: "bad", TaxID: "12345678901"})
	assert.ErrorIs(t, err, errs.ErrInvalidCredential)
	_, err = f.svc.Login(ctx, models.LoginRequest{Email: "ana@example.com", Password: "pw", TaxID: "00000000000"})
	assert.ErrorIs(t, err, errs.ErrInvalidCredential)
	_, err = f.svc.Login(ctx, models.LoginRequest{Email: "nobody@example.com", Password: "pw"})
	assert.ErrorIs(t, err, errs.ErrInvalidCredential)
}

func TestConfirmRequiresCode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	identity, err := f.svc.Register(ctx, models.SignupRequest{
		Kind: "F", TaxID: "12345678901", Name: "Ana", Email: "ana@example.com", Password: "pw",
	})
	require.NoError(t, err)
	code := f.code(t, identity.ID)
	assert.Len(t, code, 16)
	assert.NotEqual(t, code, identity.ConfirmationHash)

	err = f.svc.Confirm(ctx, identity.ID, "")
	assert.ErrorIs(t, err, errs.ErrMissingParameter)
	err = f.svc.Confirm(ctx, identity.ID, identity.ID.String())
	assert.ErrorIs(t, err, errs.ErrInvalidCredential)
	err = f.svc.Confirm(ctx, uuid.New(), code)
	assert.ErrorIs(t, err, errs.ErrInvalidCredential)

	_, err = f.svc.Login(ctx, models.LoginRequest{Email: "ana@example.com", Password: "pw", TaxID: "12345678901"})
	assert.ErrorIs(t, err, errs.ErrIdentityUnconfirmed)

	require.NoError(t, f.svc.Confirm(ctx, identity.ID, " "+strings.ToLower(code)+" "))
	require.NoError(t, f.svc.Confirm(ctx, identity.ID, code))

	stored, err := f.store.Queries().GetIdentity(ctx, identity.ID)
	require.NoError(t, err)
	assert.True(t, stored.Confirmed)
	assert.Empty(t, stored.ConfirmationHash)
}

func TestRegisterPublishesCodeEvenWhenNotifyFails(t *testing.T) {
	f := newFixture(t)
	f.events.Err = errors.New("nats down")

	identity, err := f.svc.Register(context.Background(), models.SignupRequest{
		Kind: "F", TaxID: "12345678901", Name: "Ana", Email: "Ana@Example.com", Password: "pw",
	})
	require.NoError(t, err)

	events := f.events.Events()
	require.Len(t, events, 1)
	assert.Equal(t, models.EventIdentityRegistered, events[0].Type)
	assert.Equal(t, "ana@example.com", events[0].Email)
	assert.NotEmpty(t, events[0].Code)
	assert.False(t, identity.Confirmed)
}

func TestOpenAccountOncePerLife(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.signup(t, "12345678901", "a@example.com")
	second := f.signup(t, "98765432100", "b@example.com")

	account, err := f.svc.OpenAccount(ctx, f.caller(t, first.ID), "0001", "12345-6")
	require.NoError(t, err)
	assert.True(t, account.Balance.IsZero())
	assert.True(t, account.Active)

	_, err = f.svc.OpenAccount(ctx, f.caller(t, second.ID), "0001", "12345-6")
	assert.ErrorIs(t, err, errs.ErrDuplicateNumber)

	caller := f.caller(t, first.ID)
	require.NoError(t, f.svc.DeactivateAccount(ctx, caller, account.ID, "pw"))

	_, err = f.svc.OpenAccount(ctx, f.caller(t, first.ID), "0001", "99999-9")
	assert.ErrorIs(t, err, errs.ErrDuplicateAccount)
}

func TestDeactivateAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	holder := repotest.SeedHolder(t, f.store, "10.00")
	hash, err := auth.HashPassword("pw")
	require.NoError(t, err)
	_, err = f.store.DB().ExecContext(ctx, `UPDATE identities SET password_hash = ? WHERE id = ?`, hash, holder.Identity.ID)
	require.NoError(t, err)
	caller := models.CallerFor(holder)

	err = f.svc.DeactivateAccount(ctx, caller, holder.Account.ID, "wrong")
	assert.ErrorIs(t, err, errs.ErrInvalidCredential)

	err = f.svc.DeactivateAccount(ctx, caller, uuid.New(), "pw")
	assert.ErrorIs(t, err, errs.ErrNotFound)

	err = f.svc.DeactivateAccount(ctx, caller, holder.Account.ID, "pw")
	assert.ErrorIs(t, err, errs.ErrNonZeroBalance)
	assert.Empty(t, f.events.Events())

	require.NoError(t, f.store.Queries().UpdateBalance(ctx, holder.Account.ID, decimal.Zero))
	require.NoError(t, f.svc.DeactivateAccount(ctx, caller, holder.Account.ID, "pw"))

	account, err := f.store.Queries().GetAccount(ctx, holder.Account.ID)
	require.NoError(t, err)
	assert.False(t, account.Active)

	events := f.events.Events()
	require.Len(t, events, 1)
	assert.Equal(t, models.EventAccountDeactivated, events[0].Type)
	assert.Equal(t, holder.Account.ID, *events[0].AccountID)

	err = f.svc.DeactivateAccount(ctx, caller, holder.Account.ID, "pw")
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestDeactivateAccountNotificationIsBestEffort(t *testing.T) {
	f := newFixture(t)
	f.events.Err = errors.New("broker down")
	ctx := context.Background()
	identity := f.signup(t, "12345678901", "a@example.com")
	account, err := f.svc.OpenAccount(ctx, f.caller(t, identity.ID), "0001", "1")
	require.NoError(t, err)

	require.NoError(t, f.svc.DeactivateAccount(ctx, f.caller(t, identity.ID), account.ID, "pw"))
	assert.Len(t, f.eventsOf(models.EventAccountDeactivated), 1)
}

func TestDeactivateIdentity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	identity := f.signup(t, "12345678901", "a@example.com")
	account, err := f.svc.OpenAccount(ctx, f.caller(t, identity.ID), "0001", "1")
	require.NoError(t, err)

	token, err := f.sessions.Issue(identity.ID, identity.Email)
	require.NoError(t, err)

	require.NoError(t, f.store.Queries().UpdateBalance(ctx, account.ID, decimal.RequireFromString("5")))
	err = f.svc.DeactivateIdentity(ctx, f.caller(t, identity.ID), "pw")
	assert.ErrorIs(t, err, errs.ErrNonZeroBalance)

	require.NoError(t, f.store.Queries().UpdateBalance(ctx, account.ID, decimal.Zero))
	require.NoError(t, f.svc.DeactivateIdentity(ctx, f.caller(t, identity.ID), "pw"))

	holder, err := f.svc.Resolve(ctx, identity.ID)
	require.NoError(t, err)
	assert.False(t, holder.Identity.Active)
	assert.False(t, holder.Account.Active)

	_, err = f.sessions.Validate(ctx, token)
	assert.ErrorIs(t, err, errs.ErrUnauthorized)
	_, err = f.svc.Caller(ctx, identity.ID)
	assert.ErrorIs(t, err, errs.ErrUnauthorized)

	events := f.eventsOf(models.EventIdentityDeactivated)
	require.Len(t, events, 1)
	assert.Equal(t, account.ID, *events[0].AccountID)
}

func TestDeactivateIdentityBlockedByInactiveAccountBalance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	identity := f.signup(t, "12345678901", "a@example.com")
	account, err := f.svc.OpenAccount(ctx, f.caller(t, identity.ID), "0001", "1")
	require.NoError(t, err)
	require.NoError(t, f.svc.DeactivateAccount(ctx, f.caller(t, identity.ID), account.ID, "pw"))

	// a redemption may credit the account after it was closed
	require.NoError(t, f.store.Queries().UpdateBalance(ctx, account.ID, decimal.RequireFromString("5")))
	err = f.svc.DeactivateIdentity(ctx, f.caller(t, identity.ID), "pw")
	assert.ErrorIs(t, err, errs.ErrNonZeroBalance)

	require.NoError(t, f.store.Queries().UpdateBalance(ctx, account.ID, decimal.Zero))
	require.NoError(t, f.svc.DeactivateIdentity(ctx, f.caller(t, identity.ID), "pw"))
	events := f.eventsOf(models.EventIdentityDeactivated)
	require.Len(t, events, 1)
	assert.Nil(t, events[0].AccountID)
}

func TestDeactivateIdentityBlockedByPositions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	identity := f.signup(t, "12345678901", "a@example.com")

	profile := &models.InvestorProfile{
		ID: uuid.New(), IdentityID: identity.ID, RiskTier: models.RiskModerate,
		DeclaredNetWorth: decimal.RequireFromString("1000"), CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, f.store.Queries().CreateProfile(ctx, profile))
	require.NoError(t, f.store.Queries().InsertPosition(ctx, &models.Position{
		ID: uuid.New(), ProfileID: profile.ID, Category: models.CategoryFixedIncome,
		Quantity: decimal.NewFromInt(100), AveragePrice: decimal.NewFromInt(1),
		InvestedAmount: decimal.NewFromInt(100), Active: true, CreatedAt: time.Now().UTC(),
	}))

	err := f.svc.DeactivateIdentity(ctx, f.caller(t, identity.ID), "pw")
	assert.ErrorIs(t, err, errs.ErrActivePositionsExist)

	holder, err := f.svc.Resolve(ctx, identity.ID)
	require.NoError(t, err)
	assert.True(t, holder.Identity.Active)
}

func TestDeactivateIdentityRollsBackWhenRevocationFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	identity := f.signup(t, "12345678901", "a@example.com")
	account, err := f.svc.OpenAccount(ctx, f.caller(t, identity.ID), "0001", "1")
	require.NoError(t, err)

	f.revoked.Err = errors.New("redis down")
	err = f.svc.DeactivateIdentity(ctx, f.caller(t, identity.ID), "pw")
	require.Error(t, err)
	assert.Equal(t, errs.ClassInternal, errs.Classify(err))

	holder, err := f.svc.Resolve(ctx, identity.ID)
	require.NoError(t, err)
	assert.True(t, holder.Identity.Active)
	assert.True(t, holder.Account.Active)
	assert.Equal(t, account.ID, holder.Account.ID)
	assert.Empty(t, f.eventsOf(models.EventIdentityDeactivated))
}
