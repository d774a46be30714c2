package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kubesec-bank/invest-ledger/internal/models"
)

// Queries is the data-access surface. Getters return nil, nil when the row
// does not exist. The Lock variants take a row lock that lasts until the
// surrounding transaction ends.
type Queries interface {
	CreateIdentity(ctx context.Context, identity *models.Identity) error
	GetIdentity(ctx context.Context, id uuid.UUID) (*models.Identity, error)
	GetIdentityByEmail(ctx context.Context, email string) (*models.Identity, error)
	IdentityExists(ctx context.Context, taxID, email string) (bool, error)
	ConfirmIdentity(ctx context.Context, id uuid.UUID) error
	DeactivateIdentity(ctx context.Context, id uuid.UUID) error

	CreateAccount(ctx context.Context, account *models.Account) error
	GetAccount(ctx context.Context, id uuid.UUID) (*models.Account, error)
	GetAccountByIdentity(ctx context.Context, identityID uuid.UUID) (*models.Account, error)
	LockAccount(ctx context.Context, id uuid.UUID) (*models.Account, error)
	AccountNumberTaken(ctx context.Context, number string) (bool, error)
	UpdateBalance(ctx context.Context, id uuid.UUID, balance decimal.Decimal) error
	SetAccountActive(ctx context.Context, id uuid.UUID, active bool) error

	InsertMovement(ctx context.Context, m *models.Movement) error
	ListMovements(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]models.Movement, error)

	CreateProfile(ctx context.Context, p *models.InvestorProfile) error
	GetProfile(ctx context.Context, id uuid.UUID) (*models.InvestorProfile, error)
	GetProfileByIdentity(ctx context.Context, identityID uuid.UUID) (*models.InvestorProfile, error)
	LockProfile(ctx context.Context, id uuid.UUID) (*models.InvestorProfile, error)
	DeleteProfile(ctx context.Context, id uuid.UUID) error

	InsertPosition(ctx context.Context, p *models.Position) error
	GetPosition(ctx context.Context, id uuid.UUID) (*models.Position, error)
	ListPositions(ctx context.Context, profileID uuid.UUID) ([]models.Position, error)
	CountActivePositions(ctx context.Context, profileID uuid.UUID) (int, error)
	DeletePosition(ctx context.Context, id uuid.UUID) error
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

type queries struct {
	ex      execer
	dialect Dialect
}

// rebind rewrites ? placeholders to $n for postgres.
func (q *queries) rebind(query string) string {
	if q.dialect != Postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (q *queries) forUpdate() string {
	if q.dialect == Postgres {
		return " FOR UPDATE"
	}
	return ""
}

func (q *queries) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return q.ex.ExecContext(ctx, q.rebind(query), args...)
}

func (q *queries) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return q.ex.QueryRowContext(ctx, q.rebind(query), args...)
}

func (q *queries) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return q.ex.QueryContext(ctx, q.rebind(query), args...)
}

// timeArg binds a timestamp. SQLite stores RFC 3339 text.
func (q *queries) timeArg(t time.Time) any {
	if q.dialect == SQLite {
		return t.UTC().Format(time.RFC3339Nano)
	}
	return t.UTC()
}

func amountArg(d decimal.Decimal) string   { return d.StringFixed(2) }
func quantityArg(d decimal.Decimal) string { return d.StringFixed(8) }

// mustAffect turns a zero-row update into an error.
func mustAffect(res sql.Result, what string, id uuid.UUID) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s not found", what, id)
	}
	return nil
}

// timestamp scans TIMESTAMPTZ values and the RFC 3339 text SQLite keeps.
type timestamp struct{ t *time.Time }

func (ts timestamp) Scan(src any) error {
	switch v := src.(type) {
	case time.Time:
		*ts.t = v.UTC()
		return nil
	case string:
		return ts.parse(v)
	case []byte:
		return ts.parse(string(v))
	case nil:
		*ts.t = time.Time{}
		return nil
	}
	return fmt.Errorf("unsupported timestamp type %T", src)
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999 -0700 MST",
	"2006-01-02 15:04:05",
}

func (ts timestamp) parse(s string) error {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			*ts.t = t.UTC()
			return nil
		}
	}
	return fmt.Errorf("unparseable timestamp %q", s)
}

// ---------------------------------------------------------------------------
// Identities
// ---------------------------------------------------------------------------

const identityColumns = `id, kind, tax_id, name, email, password_hash, confirmation_hash, confirmed, active, created_at`

func scanIdentity(row rowScanner) (*models.Identity, error) {
	var i models.Identity
	err := row.Scan(&i.ID, &i.Kind, &i.TaxID, &i.Name, &i.Email, &i.PasswordHash,
		&i.ConfirmationHash, &i.Confirmed, &i.Active, timestamp{&i.CreatedAt})
	if err != nil {
		return nil, err
	}
	return &i, nil
}

func (q *queries) CreateIdentity(ctx context.Context, i *models.Identity) error {
	_, err := q.exec(ctx,
		`INSERT INTO identities (`+identityColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		i.ID, i.Kind, i.TaxID, i.Name, i.Email, i.PasswordHash, i.ConfirmationHash, i.Confirmed, i.Active, q.timeArg(i.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert identity: %w", err)
	}
	return nil
}

func (q *queries) getIdentity(ctx context.Context, where string, arg any) (*models.Identity, error) {
	i, err := scanIdentity(q.queryRow(ctx, `SELECT `+identityColumns+` FROM identities WHERE `+where, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get identity: %w", err)
	}
	return i, nil
}

func (q *queries) GetIdentity(ctx context.Context, id uuid.UUID) (*models.Identity, error) {
	return q.getIdentity(ctx, `id = ?`, id)
}

func (q *queries) GetIdentityByEmail(ctx context.Context, email string) (*models.Identity, error) {
	return q.getIdentity(ctx, `email = ?`, email)
}

func (q *queries) IdentityExists(ctx context.Context, taxID, email string) (bool, error) {
	var count int
	err := q.queryRow(ctx,
		`SELECT COUNT(*) FROM identities WHERE tax_id = ? OR email = ?`, taxID, email,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("count identities: %w", err)
	}
	return count > 0, nil
}

func (q *queries) ConfirmIdentity(ctx context.Context, id uuid.UUID) error {
	res, err := q.exec(ctx, `UPDATE identities SET confirmed = ?, confirmation_hash = '' WHERE id = ?`, true, id)
	if err != nil {
		return fmt.Errorf("confirm identity: %w", err)
	}
	return mustAffect(res, "identity", id)
}

func (q *queries) DeactivateIdentity(ctx context.Context, id uuid.UUID) error {
	res, err := q.exec(ctx, `UPDATE identities SET active = ? WHERE id = ?`, false, id)
	if err != nil {
		return fmt.Errorf("deactivate identity: %w", err)
	}
	return mustAffect(res, "identity", id)
}

// ---------------------------------------------------------------------------
// Accounts
// ---------------------------------------------------------------------------

const accountColumns = `id, identity_id, branch, number, balance, active, created_at`

func scanAccount(row rowScanner) (*models.Account, error) {
	var a models.Account
	err := row.Scan(&a.ID, &a.IdentityID, &a.Branch, &a.Number, &a.Balance, &a.Active, timestamp{&a.CreatedAt})
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (q *queries) CreateAccount(ctx context.Context, a *models.Account) error {
	_, err := q.exec(ctx,
		`INSERT INTO accounts (`+accountColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.IdentityID, a.Branch, a.Number, amountArg(a.Balance), a.Active, q.timeArg(a.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

func (q *queries) getAccount(ctx context.Context, where string, arg any, lock bool) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE ` + where
	if lock {
		query += q.forUpdate()
	}
	a, err := scanAccount(q.queryRow(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	return a, nil
}

func (q *queries) GetAccount(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	return q.getAccount(ctx, `id = ?`, id, false)
}

func (q *queries) GetAccountByIdentity(ctx context.Context, identityID uuid.UUID) (*models.Account, error) {
	return q.getAccount(ctx, `identity_id = ?`, identityID, false)
}

func (q *queries) LockAccount(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	return q.getAccount(ctx, `id = ?`, id, true)
}

func (q *queries) AccountNumberTaken(ctx context.Context, number string) (bool, error) {
	var count int
	if err := q.queryRow(ctx, `SELECT COUNT(*) FROM accounts WHERE number = ?`, number).Scan(&count); err != nil {
		return false, fmt.Errorf("count accounts: %w", err)
	}
	return count > 0, nil
}

func (q *queries) UpdateBalance(ctx context.Context, id uuid.UUID, balance decimal.Decimal) error {
	res, err := q.exec(ctx, `UPDATE accounts SET balance = ? WHERE id = ?`, amountArg(balance), id)
	if err != nil {
		return fmt.Errorf("update balance: %w", err)
	}
	return mustAffect(res, "account", id)
}

func (q *queries) SetAccountActive(ctx context.Context, id uuid.UUID, active bool) error {
	res, err := q.exec(ctx, `UPDATE accounts SET active = ? WHERE id = ?`, active, id)
	if err != nil {
		return fmt.Errorf("update account status: %w", err)
	}
	return mustAffect(res, "account", id)
}

// ---------------------------------------------------------------------------
// Movements
// ---------------------------------------------------------------------------

func (q *queries) InsertMovement(ctx context.Context, m *models.Movement) error {
	_, err := q.exec(ctx,
		`INSERT INTO movements (id, account_id, kind, amount, created_at) VALUES (?, ?, ?, ?, ?)`,
		m.ID, m.AccountID, m.Kind, amountArg(m.Amount), q.timeArg(m.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert movement: %w", err)
	}
	return nil
}

// ListMovements returns movements in insertion order. A limit of zero or
// less returns all of them.
func (q *queries) ListMovements(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]models.Movement, error) {
	query := `SELECT id, account_id, kind, amount, created_at FROM movements WHERE account_id = ? ORDER BY seq`
	args := []any{accountID}
	if limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, limit, offset)
	}

	rows, err := q.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list movements: %w", err)
	}
	defer rows.Close()

	var movements []models.Movement
	for rows.Next() {
		var m models.Movement
		if err := rows.Scan(&m.ID, &m.AccountID, &m.Kind, &m.Amount, timestamp{&m.CreatedAt}); err != nil {
			return nil, fmt.Errorf("scan movement: %w", err)
		}
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

// ---------------------------------------------------------------------------
// Investor profiles
// ---------------------------------------------------------------------------

const profileColumns = `id, identity_id, risk_tier, declared_net_worth, created_at`

func (q *queries) CreateProfile(ctx context.Context, p *models.InvestorProfile) error {
	_, err := q.exec(ctx,
		`INSERT INTO investor_profiles (`+profileColumns+`) VALUES (?, ?, ?, ?, ?)`,
		p.ID, p.IdentityID, p.RiskTier, amountArg(p.DeclaredNetWorth), q.timeArg(p.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert investor profile: %w", err)
	}
	return nil
}

func (q *queries) getProfile(ctx context.Context, where string, arg any, lock bool) (*models.InvestorProfile, error) {
	query := `SELECT ` + profileColumns + ` FROM investor_profiles WHERE ` + where
	if lock {
		query += q.forUpdate()
	}
	var p models.InvestorProfile
	err := q.queryRow(ctx, query, arg).Scan(&p.ID, &p.IdentityID, &p.RiskTier, &p.DeclaredNetWorth, timestamp{&p.CreatedAt})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get investor profile: %w", err)
	}
	return &p, nil
}

func (q *queries) GetProfile(ctx context.Context, id uuid.UUID) (*models.InvestorProfile, error) {
	return q.getProfile(ctx, `id = ?`, id, false)
}

func (q *queries) GetProfileByIdentity(ctx context.Context, identityID uuid.UUID) (*models.InvestorProfile, error) {
	return q.getProfile(ctx, `identity_id = ?`, identityID, false)
}

func (q *queries) LockProfile(ctx context.Context, id uuid.UUID) (*models.InvestorProfile, error) {
	return q.getProfile(ctx, `id = ?`, id, true)
}

func (q *queries) DeleteProfile(ctx context.Context, id uuid.UUID) error {
	res, err := q.exec(ctx, `DELETE FROM investor_profiles WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete investor profile: %w", err)
	}
	return mustAffect(res, "investor profile", id)
}

// ---------------------------------------------------------------------------
// Positions
// ---------------------------------------------------------------------------

const positionColumns = `id, profile_id, category, ticker, quantity, average_price, invested_amount, active, created_at`

func scanPosition(row rowScanner) (*models.Position, error) {
	var (
		p      models.Position
		ticker sql.NullString
	)
	err := row.Scan(&p.ID, &p.ProfileID, &p.Category, &ticker, &p.Quantity,
		&p.AveragePrice, &p.InvestedAmount, &p.Active, timestamp{&p.CreatedAt})
	if err != nil {
		return nil, err
	}
	p.Ticker = ticker.String
	return &p, nil
}

func (q *queries) InsertPosition(ctx context.Context, p *models.Position) error {
	ticker := sql.NullString{String: p.Ticker, Valid: p.Ticker != ""}
	_, err := q.exec(ctx,
		`INSERT INTO positions (`+positionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.ProfileID, p.Category, ticker, quantityArg(p.Quantity),
		amountArg(p.AveragePrice), amountArg(p.InvestedAmount), p.Active, q.timeArg(p.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert position: %w", err)
	}
	return nil
}

func (q *queries) GetPosition(ctx context.Context, id uuid.UUID) (*models.Position, error) {
	p, err := scanPosition(q.queryRow(ctx, `SELECT `+positionColumns+` FROM positions WHERE id = ?`+q.forUpdate(), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get position: %w", err)
	}
	return p, nil
}

func (q *queries) ListPositions(ctx context.Context, profileID uuid.UUID) ([]models.Position, error) {
	rows, err := q.query(ctx,
		`SELECT `+positionColumns+` FROM positions WHERE profile_id = ? ORDER BY created_at, id`, profileID)
	if err != nil {
		return nil, fmt.Errorf("list positions: %w", err)
	}
	defer rows.Close()

	var positions []models.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("scan position: %w", err)
		}
		positions = append(positions, *p)
	}
	return positions, rows.Err()
}

func (q *queries) CountActivePositions(ctx context.Context, profileID uuid.UUID) (int, error) {
	var count int
	err := q.queryRow(ctx,
		`SELECT COUNT(*) FROM positions WHERE profile_id = ? AND active = ?`, profileID, true,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count positions: %w", err)
	}
	return count, nil
}

func (q *queries) DeletePosition(ctx context.Context, id uuid.UUID) error {
	res, err := q.exec(ctx, `DELETE FROM positions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete position: %w", err)
	}
	return mustAffect(res, "position", id)
}
