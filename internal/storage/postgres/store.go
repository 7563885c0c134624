package postgres

// Package postgres provides a pgx-backed storage implementation that satisfies
// the repository and writer interfaces used by the services.
//
// It is intentionally small and explicit. Migrations that create the expected
// schema live under db/migrations. This package focuses on mapping between the
// domain entities and SQL rows and running the necessary statements/transactions.

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/govalues/money"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tinoosan/fintrack/internal/errs"
	"github.com/tinoosan/fintrack/internal/ledger"
)

// Store holds a pgx connection pool and implements the read/write interfaces
// used across the service layer. All methods are safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// Open establishes a pgx pool using the provided connection string.
func Open(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &Store{pool: pool}, nil
}

// Close releases the underlying pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Ready pings the pool to verify connectivity.
func (s *Store) Ready(ctx context.Context) error { return s.pool.Ping(ctx) }

// mapErr translates driver errors into the errs sentinels.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return errs.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505", "23503": // unique_violation, foreign_key_violation
			return errs.ErrConflict
		}
	}
	return err
}

// --- Users ---

const userCols = `id, email, name, password_hash, balance_minor, monthly_limit_minor, currency, bank_token, created_at`

func scanUser(row pgx.Row) (ledger.User, error) {
	var u ledger.User
	var bal, limit int64
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &bal, &limit, &u.Currency, &u.BankToken, &u.CreatedAt); err != nil {
		return ledger.User{}, mapErr(err)
	}
	u.Balance = ledger.AmountFromMinor(bal)
	u.MonthlyLimit = ledger.AmountFromMinor(limit)
	return u, nil
}

func (s *Store) CreateUser(ctx context.Context, u ledger.User) (ledger.User, error) {
	bal, err := ledger.Minor(u.Balance)
	if err != nil {
		return ledger.User{}, err
	}
	limit, err := ledger.Minor(u.MonthlyLimit)
	if err != nil {
		return ledger.User{}, err
	}
	_, err = s.pool.Exec(ctx, `
		insert into users (id, email, name, password_hash, balance_minor, monthly_limit_minor, currency, bank_token, created_at)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, u.ID, u.Email, u.Name, u.PasswordHash, bal, limit, u.Currency, u.BankToken, u.CreatedAt)
	if err != nil {
		return ledger.User{}, mapErr(err)
	}
	return u, nil
}

func (s *Store) UserByID(ctx context.Context, id uuid.UUID) (ledger.User, error) {
	return scanUser(s.pool.QueryRow(ctx, `select `+userCols+` from users where id = $1`, id))
}

func (s *Store) UserByEmail(ctx context.Context, email string) (ledger.User, error) {
	return scanUser(s.pool.QueryRow(ctx, `select `+userCols+` from users where email = $1`, email))
}

// UpdateProfile persists name, currency and monthly limit.
func (s *Store) UpdateProfile(ctx context.Context, u ledger.User) (ledger.User, error) {
	limit, err := ledger.Minor(u.MonthlyLimit)
	if err != nil {
		return ledger.User{}, err
	}
	return scanUser(s.pool.QueryRow(ctx, `
		update users set name = $1, currency = $2, monthly_limit_minor = $3
		where id = $4
		returning `+userCols, u.Name, u.Currency, limit, u.ID))
}

func (s *Store) SetBalance(ctx context.Context, userID uuid.UUID, balance money.Amount) (money.Amount, error) {
	minor, err := ledger.Minor(balance)
	if err != nil {
		return money.Amount{}, err
	}
	err = s.pool.QueryRow(ctx, `update users set balance_minor = $1 where id = $2 returning balance_minor`,
		minor, userID).Scan(&minor)
	if err != nil {
		return money.Amount{}, mapErr(err)
	}
	return ledger.AmountFromMinor(minor), nil
}

func (s *Store) SetBankToken(ctx context.Context, userID uuid.UUID, token string) error {
	ct, err := s.pool.Exec(ctx, `update users set bank_token = $1 where id = $2`, token, userID)
	if err != nil {
		return mapErr(err)
	}
	if ct.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// --- Categories ---

const categoryCols = `id, user_id, name, name_key, color, icon`

func scanCategory(row pgx.Row) (ledger.Category, error) {
	var c ledger.Category
	if err := row.Scan(&c.ID, &c.UserID, &c.Name, &c.NameKey, &c.Color, &c.Icon); err != nil {
		return ledger.Category{}, mapErr(err)
	}
	return c, nil
}

func (s *Store) ListCategories(ctx context.Context, userID uuid.UUID) ([]ledger.Category, error) {
	rows, err := s.pool.Query(ctx, `select `+categoryCols+` from categories where user_id = $1 order by name_key`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]ledger.Category, 0)
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) CategoryByID(ctx context.Context, id uuid.UUID) (ledger.Category, error) {
	return scanCategory(s.pool.QueryRow(ctx, `select `+categoryCols+` from categories where id = $1`, id))
}

func (s *Store) CreateCategory(ctx context.Context, c ledger.Category) (ledger.Category, error) {
	_, err := s.pool.Exec(ctx, `
		insert into categories (id, user_id, name, name_key, color, icon)
		values ($1,$2,$3,$4,$5,$6)
	`, c.ID, c.UserID, c.Name, c.NameKey, c.Color, c.Icon)
	if err != nil {
		return ledger.Category{}, mapErr(err)
	}
	return c, nil
}

// upsertAttempts bounds retries when a concurrent insert commits between the
// conflict check and the read-back.
const upsertAttempts = 3

// UpsertCategory inserts c unless (user_id, name_key) exists and returns the
// row either way.
func (s *Store) UpsertCategory(ctx context.Context, c ledger.Category) (ledger.Category, bool, error) {
	for i := 0; i < upsertAttempts; i++ {
		var out ledger.Category
		var created bool
		err := s.pool.QueryRow(ctx, `
			with ins as (
				insert into categories (id, user_id, name, name_key, color, icon)
				values ($1,$2,$3,$4,$5,$6)
				on conflict (user_id, name_key) do nothing
				returning `+categoryCols+`
			)
			select `+categoryCols+`, true from ins
			union all
			select `+categoryCols+`, false from categories where user_id = $2 and name_key = $4
			limit 1
		`, c.ID, c.UserID, c.Name, c.NameKey, c.Color, c.Icon).Scan(&out.ID, &out.UserID, &out.Name, &out.NameKey, &out.Color, &out.Icon, &created)
		if errors.Is(err, pgx.ErrNoRows) {
			continue
		}
		if err != nil {
			return ledger.Category{}, false, mapErr(err)
		}
		return out, created, nil
	}
	return ledger.Category{}, false, errs.Conflictf("category %q is being created concurrently", c.Name)
}

func (s *Store) UpdateCategory(ctx context.Context, c ledger.Category) (ledger.Category, error) {
	ct, err := s.pool.Exec(ctx, `
		update categories set name = $1, name_key = $2, color = $3, icon = $4
		where id = $5 and user_id = $6
	`, c.Name, c.NameKey, c.Color, c.Icon, c.ID, c.UserID)
	if err != nil {
		return ledger.Category{}, mapErr(err)
	}
	if ct.RowsAffected() == 0 {
		return ledger.Category{}, errs.ErrNotFound
	}
	return c, nil
}

// DeleteCategory relies on the restricting foreign key from transactions.
func (s *Store) DeleteCategory(ctx context.Context, userID, id uuid.UUID) error {
	ct, err := s.pool.Exec(ctx, `delete from categories where id = $1 and user_id = $2`, id, userID)
	if err != nil {
		return mapErr(err)
	}
	if ct.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}
