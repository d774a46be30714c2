// Package repotest provides SQLite-backed stores for package tests.
package repotest

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kubesec-bank/invest-ledger/internal/models"
	"github.com/kubesec-bank/invest-ledger/internal/repository"
)

// NewStore opens a migrated SQLite store in a temporary directory that is
// removed when the test ends.
func NewStore(t testing.TB) *repository.Store {
	t.Helper()

	path := filepath.Join(t.TempDir(), "ledger.db")
	store, err := repository.Open(context.Background(), "sqlite", path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return store
}

// SeedHolder inserts a confirmed, active identity with an active account
// holding balance.
func SeedHolder(t testing.TB, store *repository.Store, balance string) *models.Holder {
	t.Helper()
	ctx := context.Background()
	q := store.Queries()

	id := uuid.New()
	identity := &models.Identity{
		ID:           id,
		Kind:         models.IdentityPerson,
		TaxID:        strings.ReplaceAll(id.String(), "-", "")[:11],
		Name:         "Test Holder",
		Email:        id.String() + "@example.com",
		PasswordHash: "x",
		Confirmed:    true,
		Active:       true,
		CreatedAt:    time.Now().UTC(),
	}
	if err := q.CreateIdentity(ctx, identity); err != nil {
		t.Fatalf("seed identity: %v", err)
	}

	account := &models.Account{
		ID:         uuid.New(),
		IdentityID: id,
		Branch:     "0001",
		Number:     strings.ReplaceAll(uuid.NewString(), "-", "")[:20],
		Balance:    decimal.RequireFromString(balance),
		Active:     true,
		CreatedAt:  time.Now().UTC(),
	}
	if err := q.CreateAccount(ctx, account); err != nil {
		t.Fatalf("seed account: %v", err)
	}
	return &models.Holder{Identity: identity, Account: account}
}

// Balance reads the stored balance of accountID.
func Balance(t testing.TB, store *repository.Store, accountID uuid.UUID) decimal.Decimal {
	t.Helper()
	a, err := store.Queries().GetAccount(context.Background(), accountID)
	if err != nil || a == nil {
		t.Fatalf("get account %s: %v", accountID, err)
	}
	return a.Balance
}
