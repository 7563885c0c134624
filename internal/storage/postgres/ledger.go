package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/govalues/money"
	"github.com/jackc/pgx/v5"

	"github.com/tinoosan/fintrack/internal/errs"
	"github.com/tinoosan/fintrack/internal/ledger"
)

const txCols = `id, user_id, category_id, type, amount_minor, description, date, source, coalesce(external_id, ''), created_at`

func scanTx(row pgx.Row) (ledger.Transaction, error) {
	var t ledger.Transaction
	var typ, src string
	var minor int64
	if err := row.Scan(&t.ID, &t.UserID, &t.CategoryID, &typ, &minor, &t.Description, &t.Date, &src, &t.ExternalID, &t.CreatedAt); err != nil {
		return ledger.Transaction{}, mapErr(err)
	}
	t.Type = ledger.TxType(typ)
	t.Source = ledger.Source(src)
	t.Amount = ledger.AmountFromMinor(minor)
	t.Date = t.Date.UTC()
	return t, nil
}

// nullable maps an empty external id to SQL NULL so the partial unique index
// only covers imported rows.
func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (s *Store) TransactionByID(ctx context.Context, id uuid.UUID) (ledger.Transaction, error) {
	return scanTx(s.pool.QueryRow(ctx, `select `+txCols+` from transactions where id = $1`, id))
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// ListTransactions filters, sorts and pages a user's transactions. The total
// ignores Limit and Offset.
func (s *Store) ListTransactions(ctx context.Context, userID uuid.UUID, f ledger.TxFilter) ([]ledger.Transaction, int, error) {
	where := []string{"user_id = $1"}
	args := []any{userID}
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.Type != "" {
		add("type = $%d", string(f.Type))
	}
	if f.CategoryID != uuid.Nil {
		add("category_id = $%d", f.CategoryID)
	}
	if !f.From.IsZero() {
		add("date >= $%d", f.From)
	}
	if !f.To.IsZero() {
		add("date <= $%d", f.To)
	}
	if q := strings.TrimSpace(f.Query); q != "" {
		add(`description ilike '%%' || $%d || '%%'`, likeEscaper.Replace(q))
	}
	cond := strings.Join(where, " and ")

	var total int
	if err := s.pool.QueryRow(ctx, `select count(*) from transactions where `+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	col := "date"
	if f.Sort == ledger.SortAmount {
		col = "amount_minor"
	}
	dir := "desc"
	if f.Asc {
		dir = "asc"
	}
	query := fmt.Sprintf(`select %s from transactions where %s order by %s %s, id %s`, txCols, cond, col, dir, dir)
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" limit $%d", len(args))
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		query += fmt.Sprintf(" offset $%d", len(args))
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	out := make([]ledger.Transaction, 0)
	for rows.Next() {
		t, err := scanTx(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, t)
	}
	return out, total, rows.Err()
}

func (s *Store) ExternalIDExists(ctx context.Context, userID uuid.UUID, externalID string) (bool, error) {
	var ok bool
	err := s.pool.QueryRow(ctx, `select exists(select 1 from transactions where user_id = $1 and external_id = $2)`,
		userID, externalID).Scan(&ok)
	return ok, err
}

// SimilarTransactionExists matches on calendar day (UTC), amount and
// case-insensitive description.
func (s *Store) SimilarTransactionExists(ctx context.Context, userID uuid.UUID, date time.Time, amount money.Amount, description string) (bool, error) {
	day := date.UTC().Truncate(24 * time.Hour)
	minor, err := ledger.Minor(amount)
	if err != nil {
		return false, err
	}
	var ok bool
	err = s.pool.QueryRow(ctx, `
		select exists(
			select 1 from transactions
			where user_id = $1 and date >= $2 and date < $3 and amount_minor = $4
			  and lower(btrim(description)) = lower(btrim($5))
		)
	`, userID, day, day.Add(24*time.Hour), minor, description).Scan(&ok)
	return ok, err
}

// BeginLedgerTx opens a database transaction and locks the user's row. Every
// ledger mutation for the user queues behind that lock until Commit or
// Rollback.
func (s *Store) BeginLedgerTx(ctx context.Context, userID uuid.UUID) (ledger.LedgerTx, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	var one int
	if err := tx.QueryRow(ctx, `select 1 from users where id = $1 for update`, userID).Scan(&one); err != nil {
		_ = tx.Rollback(ctx)
		return nil, mapErr(err)
	}
	return &ledgerTx{tx: tx, userID: userID}, nil
}

type ledgerTx struct {
	tx     pgx.Tx
	userID uuid.UUID
}

func (l *ledgerTx) TransactionForUpdate(ctx context.Context, id uuid.UUID) (ledger.Transaction, error) {
	return scanTx(l.tx.QueryRow(ctx, `select `+txCols+` from transactions where id = $1 for update`, id))
}

func (l *ledgerTx) InsertTransaction(ctx context.Context, t ledger.Transaction) error {
	minor, err := ledger.Minor(t.Amount)
	if err != nil {
		return err
	}
	_, err = l.tx.Exec(ctx, `
		insert into transactions (id, user_id, category_id, type, amount_minor, description, date, source, external_id, created_at)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, t.ID, t.UserID, t.CategoryID, string(t.Type), minor, t.Description, t.Date, string(t.Source), nullable(t.ExternalID), t.CreatedAt)
	return mapErr(err)
}

func (l *ledgerTx) UpdateTransaction(ctx context.Context, t ledger.Transaction) error {
	minor, err := ledger.Minor(t.Amount)
	if err != nil {
		return err
	}
	ct, err := l.tx.Exec(ctx, `
		update transactions
		set category_id = $1, type = $2, amount_minor = $3, description = $4, date = $5
		where id = $6 and user_id = $7
	`, t.CategoryID, string(t.Type), minor, t.Description, t.Date, t.ID, t.UserID)
	if err != nil {
		return mapErr(err)
	}
	if ct.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

func (l *ledgerTx) DeleteTransaction(ctx context.Context, id uuid.UUID) error {
	ct, err := l.tx.Exec(ctx, `delete from transactions where id = $1 and user_id = $2`, id, l.userID)
	if err != nil {
		return mapErr(err)
	}
	if ct.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

func (l *ledgerTx) AdjustBalance(ctx context.Context, delta money.Amount) (money.Amount, error) {
	minor, err := ledger.Minor(delta)
	if err != nil {
		return money.Amount{}, err
	}
	err = l.tx.QueryRow(ctx, `update users set balance_minor = balance_minor + $1 where id = $2 returning balance_minor`,
		minor, l.userID).Scan(&minor)
	if err != nil {
		return money.Amount{}, mapErr(err)
	}
	return ledger.AmountFromMinor(minor), nil
}

func (l *ledgerTx) IdempotencyKey(ctx context.Context, key string) (uuid.UUID, string, bool, error) {
	var (
		id   uuid.UUID
		hash string
	)
	err := l.tx.QueryRow(ctx, `
		select transaction_id, request_hash from transaction_idempotency
		where user_id = $1 and key = $2
	`, l.userID, key).Scan(&id, &hash)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, "", false, nil
	}
	if err != nil {
		return uuid.Nil, "", false, err
	}
	return id, hash, true, nil
}

func (l *ledgerTx) SaveIdempotencyKey(ctx context.Context, key string, txID uuid.UUID, requestHash string) error {
	_, err := l.tx.Exec(ctx, `
		insert into transaction_idempotency (user_id, key, transaction_id, request_hash)
		values ($1, $2, $3, $4)
		on conflict (user_id, key) do nothing
	`, l.userID, key, txID, requestHash)
	return err
}

func (l *ledgerTx) Commit(ctx context.Context) error { return l.tx.Commit(ctx) }

// Rollback is a no-op after Commit.
func (l *ledgerTx) Rollback(ctx context.Context) error {
	if err := l.tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return err
	}
	return nil
}
