package manager

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"vouchsafe/internal/custody/models"
	"vouchsafe/pkg/domain"
	"vouchsafe/pkg/platform/sentinel"
)

// Postgres persists manager aggregates in PostgreSQL. One row per manager,
// with users and vouchers in child tables keyed by (manager_id, positional
// id). Execute takes a row lock on the manager for the duration of the
// check+mutate pair, which serializes all calls targeting one instance.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

const schema = `
CREATE TABLE IF NOT EXISTS managers (
	id UUID PRIMARY KEY,
	owner TEXT NOT NULL,
	admins TEXT[] NOT NULL DEFAULT '{}',
	balance BIGINT NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS manager_users (
	manager_id UUID NOT NULL REFERENCES managers(id),
	id BIGINT NOT NULL,
	name TEXT NOT NULL,
	balance BIGINT NOT NULL DEFAULT 0,
	redeemed_vouchers BIGINT[] NOT NULL DEFAULT '{}',
	staked_amount BIGINT NOT NULL DEFAULT 0,
	registered_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (manager_id, id)
);

CREATE TABLE IF NOT EXISTS manager_vouchers (
	manager_id UUID NOT NULL REFERENCES managers(id),
	id BIGINT NOT NULL,
	description TEXT NOT NULL,
	value BIGINT NOT NULL,
	is_redeemed BOOLEAN NOT NULL DEFAULT FALSE,
	issued_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (manager_id, id)
);
`

// EnsureSchema creates the tables if they do not exist.
func (s *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// Create inserts a new aggregate.
func (s *Postgres) Create(ctx context.Context, m *models.Manager) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO managers (id, owner, admins, balance, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, m.ID.String(), string(m.Owner), pq.Array(addressStrings(m.Admins)), int64(m.Balance), m.CreatedAt, m.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("manager %s: %w", m.ID, sentinel.ErrConflict)
		}
		return fmt.Errorf("create manager: %w", err)
	}
	return nil
}

// FindByID loads a full aggregate snapshot without locking.
func (s *Postgres) FindByID(ctx context.Context, id domain.ManagerID) (*models.Manager, error) {
	return s.load(ctx, s.db, id, false)
}

// Execute loads the aggregate under FOR UPDATE, runs check then mutate, and
// writes the aggregate back in the same transaction. A failed check rolls
// back with nothing persisted.
func (s *Postgres) Execute(
	ctx context.Context,
	id domain.ManagerID,
	check func(*models.Manager) error,
	mutate func(*models.Manager),
) (*models.Manager, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	m, err := s.load(ctx, tx, id, true)
	if err != nil {
		return nil, err
	}
	if check != nil {
		if err := check(m); err != nil {
			return nil, err
		}
	}
	if mutate != nil {
		mutate(m)
		if err := s.save(ctx, tx, m); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return m, nil
}

// Count reports the number of stored aggregates.
func (s *Postgres) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM managers`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count managers: %w", err)
	}
	return count, nil
}

// querier abstracts *sql.DB and *sql.Tx for shared load code.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Postgres) load(ctx context.Context, q querier, id domain.ManagerID, forUpdate bool) (*models.Manager, error) {
	query := `SELECT owner, admins, balance, created_at, updated_at FROM managers WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	m := &models.Manager{ID: id}
	var owner string
	var admins []string
	var balance int64
	err := q.QueryRowContext(ctx, query, id.String()).Scan(
		&owner, pq.Array(&admins), &balance, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("manager %s: %w", id, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("load manager: %w", err)
	}
	m.Owner = domain.Address(owner)
	m.Balance = domain.Amount(balance)
	for _, a := range admins {
		m.Admins = append(m.Admins, domain.Address(a))
	}

	if err := s.loadUsers(ctx, q, m); err != nil {
		return nil, err
	}
	if err := s.loadVouchers(ctx, q, m); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *Postgres) loadUsers(ctx context.Context, q querier, m *models.Manager) error {
	rows, err := q.QueryContext(ctx, `
		SELECT id, name, balance, redeemed_vouchers, staked_amount, registered_at
		FROM manager_users WHERE manager_id = $1 ORDER BY id
	`, m.ID.String())
	if err != nil {
		return fmt.Errorf("load users: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var u models.User
		var id, balance, staked int64
		var redeemed []int64
		if err := rows.Scan(&id, &u.Name, &balance, pq.Array(&redeemed), &staked, &u.RegisteredAt); err != nil {
			return fmt.Errorf("scan user: %w", err)
		}
		u.ID = domain.UserID(id)
		u.Balance = domain.Amount(balance)
		u.StakedAmount = domain.Amount(staked)
		for _, v := range redeemed {
			u.RedeemedVouchers = append(u.RedeemedVouchers, domain.VoucherID(v))
		}
		m.Users = append(m.Users, u)
	}
	return rows.Err()
}

func (s *Postgres) loadVouchers(ctx context.Context, q querier, m *models.Manager) error {
	rows, err := q.QueryContext(ctx, `
		SELECT id, description, value, is_redeemed, issued_at
		FROM manager_vouchers WHERE manager_id = $1 ORDER BY id
	`, m.ID.String())
	if err != nil {
		return fmt.Errorf("load vouchers: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var v models.Voucher
		var id, value int64
		if err := rows.Scan(&id, &v.Description, &value, &v.IsRedeemed, &v.IssuedAt); err != nil {
			return fmt.Errorf("scan voucher: %w", err)
		}
		v.ID = domain.VoucherID(id)
		v.Value = domain.Amount(value)
		m.Vouchers = append(m.Vouchers, v)
	}
	return rows.Err()
}

func (s *Postgres) save(ctx context.Context, q querier, m *models.Manager) error {
	_, err := q.ExecContext(ctx, `
		UPDATE managers SET admins = $2, balance = $3, updated_at = $4 WHERE id = $1
	`, m.ID.String(), pq.Array(addressStrings(m.Admins)), int64(m.Balance), m.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save manager: %w", err)
	}

	for i := range m.Users {
		u := &m.Users[i]
		_, err := q.ExecContext(ctx, `
			INSERT INTO manager_users (manager_id, id, name, balance, redeemed_vouchers, staked_amount, registered_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (manager_id, id) DO UPDATE SET
				balance = EXCLUDED.balance,
				redeemed_vouchers = EXCLUDED.redeemed_vouchers,
				staked_amount = EXCLUDED.staked_amount
		`, m.ID.String(), int64(u.ID), u.Name, int64(u.Balance), pq.Array(voucherInts(u.RedeemedVouchers)), int64(u.StakedAmount), u.RegisteredAt)
		if err != nil {
			return fmt.Errorf("save user %d: %w", u.ID, err)
		}
	}

	for i := range m.Vouchers {
		v := &m.Vouchers[i]
		_, err := q.ExecContext(ctx, `
			INSERT INTO manager_vouchers (manager_id, id, description, value, is_redeemed, issued_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (manager_id, id) DO UPDATE SET
				is_redeemed = EXCLUDED.is_redeemed
		`, m.ID.String(), int64(v.ID), v.Description, int64(v.Value), v.IsRedeemed, v.IssuedAt)
		if err != nil {
			return fmt.Errorf("save voucher %d: %w", v.ID, err)
		}
	}
	return nil
}

func addressStrings(addrs []domain.Address) []string {
	out := make([]string, len(addrs))
	for i, a := range addrs {
		out[i] = string(a)
	}
	return out
}

func voucherInts(ids []domain.VoucherID) []int64 {
	out := make([]int64, len(ids))
	for i, v := range ids {
		out[i] = int64(v)
	}
	return out
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
