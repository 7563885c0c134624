// Package transaction implements the ledger rules. Every create, update and
// delete runs in one storage transaction that reads the pre-update row, writes
// the new row and applies ledger.Effect to the owner's balance, so all entry
// points (HTTP, assistant, bank sync, smart-add) share one reconciliation path.
package transaction

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/govalues/decimal"
	"github.com/govalues/money"

	"github.com/tinoosan/fintrack/internal/clock"
	"github.com/tinoosan/fintrack/internal/errs"
	"github.com/tinoosan/fintrack/internal/ledger"
	"github.com/tinoosan/fintrack/internal/metrics"
)

const (
	// MaxDescriptionLen bounds transaction descriptions.
	MaxDescriptionLen = 500
	// MaxIdempotencyKeyLen bounds client supplied idempotency keys.
	MaxIdempotencyKeyLen = 255
	DefaultLimit      = 50
	MaxLimit          = 200
)

type Repo interface {
	// TransactionByID returns the row regardless of owner.
	TransactionByID(ctx context.Context, id uuid.UUID) (ledger.Transaction, error)
	// ListTransactions returns the matching page and the total match count.
	ListTransactions(ctx context.Context, userID uuid.UUID, f ledger.TxFilter) ([]ledger.Transaction, int, error)
	UserByID(ctx context.Context, id uuid.UUID) (ledger.User, error)
}

type Writer interface {
	// BeginLedgerTx opens a ledger transaction serialized on userID.
	BeginLedgerTx(ctx context.Context, userID uuid.UUID) (ledger.LedgerTx, error)
}

// Categories authorizes category references.
type Categories interface {
	Authorize(ctx context.Context, userID, id uuid.UUID) (ledger.Category, error)
}

// Normalizer converts a foreign amount into the canonical currency.
type Normalizer interface {
	Normalize(ctx context.Context, x decimal.Decimal, code string) (money.Amount, error)
}

// CreateInput describes a new transaction. Currency empty means canonical.
type CreateInput struct {
	UserID      uuid.UUID
	CategoryID  uuid.UUID
	Type        ledger.TxType
	Amount      decimal.Decimal
	Currency    string
	Date        time.Time
	Description string
	Source      ledger.Source
	ExternalID  string
	// IdempotencyKey makes retries of the same create return the first result.
	IdempotencyKey string
}

// Patch carries the fields to change; nil means unchanged.
type Patch struct {
	CategoryID  *uuid.UUID
	Type        *ledger.TxType
	Amount      *decimal.Decimal
	Currency    *string
	Date        *time.Time
	Description *string
}

// Result is a committed mutation and the owner's balance after it.
type Result struct {
	Transaction ledger.Transaction
	Balance     money.Amount
	// Replayed is set when an idempotency key matched an earlier create.
	Replayed bool
}

// Page is one page of a listing.
type Page struct {
	Items []ledger.Transaction
	Total int
}

// CategoryTotal is the outflow booked against one category.
type CategoryTotal struct {
	CategoryID uuid.UUID
	Total      money.Amount
}

// Summary aggregates one calendar month.
type Summary struct {
	Month        time.Time
	Income       money.Amount
	Expense      money.Amount
	Investment   money.Amount
	Net          money.Amount
	ByCategory   []CategoryTotal
	Balance      money.Amount
	MonthlyLimit money.Amount
	// Remaining is MonthlyLimit minus outflows; zero when no limit is set.
	Remaining money.Amount
	Count     int
}

type Service interface {
	Create(ctx context.Context, in CreateInput) (Result, error)
	Update(ctx context.Context, userID, id uuid.UUID, p Patch) (Result, error)
	Delete(ctx context.Context, userID, id uuid.UUID) (money.Amount, error)
	Get(ctx context.Context, userID, id uuid.UUID) (ledger.Transaction, error)
	List(ctx context.Context, userID uuid.UUID, f ledger.TxFilter) (Page, error)
	MonthSummary(ctx context.Context, userID uuid.UUID, month time.Time) (Summary, error)
}

type service struct {
	repo   Repo
	writer Writer
	cats   Categories
	fx     Normalizer
	clock  clock.Clock
	log    *slog.Logger
}

func New(repo Repo, writer Writer, cats Categories, fx Normalizer, clk clock.Clock, log *slog.Logger) Service {
	if clk == nil {
		clk = clock.Real{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &service{repo: repo, writer: writer, cats: cats, fx: fx, clock: clk, log: log}
}

func (s *service) amount(ctx context.Context, x decimal.Decimal, currency string) (money.Amount, error) {
	if !x.IsPos() {
		return money.Amount{}, errs.Invalidf("amount must be > 0")
	}
	a, err := s.fx.Normalize(ctx, x, currency)
	if err != nil {
		return money.Amount{}, err
	}
	if !a.IsPos() {
		return money.Amount{}, errs.Invalidf("amount must be > 0")
	}
	return a, nil
}

func validateDescription(d string) (string, error) {
	d = strings.TrimSpace(d)
	if len([]rune(d)) > MaxDescriptionLen {
		return "", errs.Invalidf("description must be at most %d characters", MaxDescriptionLen)
	}
	return d, nil
}

func (s *service) Create(ctx context.Context, in CreateInput) (Result, error) {
	if in.UserID == uuid.Nil {
		return Result{}, errs.ErrInvalid
	}
	if !in.Type.Valid() {
		return Result{}, errs.Invalidf("type must be one of income, expense, investment")
	}
	if in.CategoryID == uuid.Nil {
		return Result{}, errs.Invalidf("category_id is required")
	}
	desc, err := validateDescription(in.Description)
	if err != nil {
		return Result{}, err
	}
	key := strings.TrimSpace(in.IdempotencyKey)
	if len(key) > MaxIdempotencyKeyLen {
		return Result{}, errs.Invalidf("idempotency key must be at most %d characters", MaxIdempotencyKeyLen)
	}
	amt, err := s.amount(ctx, in.Amount, in.Currency)
	if err != nil {
		return Result{}, err
	}
	if _, err := s.cats.Authorize(ctx, in.UserID, in.CategoryID); err != nil {
		return Result{}, err
	}
	now := s.clock.Now()
	date := in.Date
	if date.IsZero() {
		date = now
	}
	src := in.Source
	if src == "" {
		src = ledger.SourceManual
	}
	t := ledger.Transaction{
		ID:          uuid.New(),
		UserID:      in.UserID,
		CategoryID:  in.CategoryID,
		Type:        in.Type,
		Amount:      amt,
		Description: desc,
		Date:        date.UTC(),
		Source:      src,
		ExternalID:  in.ExternalID,
		CreatedAt:   now,
	}
	hash := requestHash(in)
	replayed := false
	bal, err := s.apply(ctx, in.UserID, func(ctx context.Context, tx ledger.LedgerTx) (*ledger.Transaction, *ledger.Transaction, error) {
		if key != "" {
			prevID, prevHash, found, err := tx.IdempotencyKey(ctx, key)
			if err != nil {
				return nil, nil, err
			}
			if found {
				if prevHash != hash {
					return nil, nil, errs.Conflictf("idempotency key reused with a different request")
				}
				prev, err := tx.TransactionForUpdate(ctx, prevID)
				if errors.Is(err, errs.ErrNotFound) {
					return nil, nil, errs.Conflictf("idempotency key refers to a deleted transaction")
				}
				if err != nil {
					return nil, nil, err
				}
				t = prev
				replayed = true
				return nil, nil, nil
			}
		}
		if err := tx.InsertTransaction(ctx, t); err != nil {
			return nil, nil, err
		}
		if key != "" {
			if err := tx.SaveIdempotencyKey(ctx, key, t.ID, hash); err != nil {
				return nil, nil, err
			}
		}
		return nil, &t, nil
	})
	if err != nil {
		return Result{}, err
	}
	if replayed {
		s.log.Info("idempotent create replayed", "user_id", in.UserID, "transaction_id", t.ID)
		return Result{Transaction: t, Balance: bal, Replayed: true}, nil
	}
	metrics.LedgerMutations.WithLabelValues("create", string(src)).Inc()
	return Result{Transaction: t, Balance: bal}, nil
}

// requestHash fingerprints the client supplied fields of a create so a reused
// idempotency key can be told apart from a genuine retry.
func requestHash(in CreateInput) string {
	date := ""
	if !in.Date.IsZero() {
		date = in.Date.UTC().Format(time.RFC3339Nano)
	}
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%s\x00%s\x00%s\x00%s\x00%s\x00%s\x00%s",
		in.CategoryID, in.Type, in.Amount.Trim(0), strings.ToUpper(strings.TrimSpace(in.Currency)),
		date, strings.TrimSpace(in.Description), in.Source, in.ExternalID)
	return hex.EncodeToString(h.Sum(nil))
}

func (s *service) Update(ctx context.Context, userID, id uuid.UUID, p Patch) (Result, error) {
	if userID == uuid.Nil || id == uuid.Nil {
		return Result{}, errs.ErrInvalid
	}
	// Validate and convert everything that needs I/O before taking the ledger lock.
	var amt *money.Amount
	if p.Amount != nil {
		cur := ""
		if p.Currency != nil {
			cur = *p.Currency
		}
		a, err := s.amount(ctx, *p.Amount, cur)
		if err != nil {
			return Result{}, err
		}
		amt = &a
	} else if p.Currency != nil {
		return Result{}, errs.Invalidf("currency requires amount")
	}
	if p.Type != nil && !p.Type.Valid() {
		return Result{}, errs.Invalidf("type must be one of income, expense, investment")
	}
	var desc *string
	if p.Description != nil {
		d, err := validateDescription(*p.Description)
		if err != nil {
			return Result{}, err
		}
		desc = &d
	}
	if p.CategoryID != nil {
		if _, err := s.cats.Authorize(ctx, userID, *p.CategoryID); err != nil {
			return Result{}, err
		}
	}

	var updated ledger.Transaction
	bal, err := s.apply(ctx, userID, func(ctx context.Context, tx ledger.LedgerTx) (*ledger.Transaction, *ledger.Transaction, error) {
		old, err := tx.TransactionForUpdate(ctx, id)
		if err != nil {
			return nil, nil, err
		}
		if old.UserID != userID {
			return nil, nil, errs.Forbiddenf("transaction not authorized")
		}
		updated = old
		if p.CategoryID != nil {
			updated.CategoryID = *p.CategoryID
		}
		if p.Type != nil {
			updated.Type = *p.Type
		}
		if amt != nil {
			updated.Amount = *amt
		}
		if p.Date != nil {
			updated.Date = p.Date.UTC()
		}
		if desc != nil {
			updated.Description = *desc
		}
		return &old, &updated, tx.UpdateTransaction(ctx, updated)
	})
	if err != nil {
		return Result{}, err
	}
	metrics.LedgerMutations.WithLabelValues("update", string(updated.Source)).Inc()
	return Result{Transaction: updated, Balance: bal}, nil
}

func (s *service) Delete(ctx context.Context, userID, id uuid.UUID) (money.Amount, error) {
	if userID == uuid.Nil || id == uuid.Nil {
		return money.Amount{}, errs.ErrInvalid
	}
	var src ledger.Source
	bal, err := s.apply(ctx, userID, func(ctx context.Context, tx ledger.LedgerTx) (*ledger.Transaction, *ledger.Transaction, error) {
		old, err := tx.TransactionForUpdate(ctx, id)
		if err != nil {
			return nil, nil, err
		}
		if old.UserID != userID {
			return nil, nil, errs.Forbiddenf("transaction not authorized")
		}
		src = old.Source
		return &old, nil, tx.DeleteTransaction(ctx, id)
	})
	if err != nil {
		return money.Amount{}, err
	}
	metrics.LedgerMutations.WithLabelValues("delete", string(src)).Inc()
	return bal, nil
}

// mutation performs the row change inside tx and reports the pre- and
// post-images used for reconciliation.
type mutation func(ctx context.Context, tx ledger.LedgerTx) (old, new *ledger.Transaction, err error)

// apply runs m and the balance adjustment it implies as one ledger transaction.
func (s *service) apply(ctx context.Context, userID uuid.UUID, m mutation) (bal money.Amount, err error) {
	tx, err := s.writer.BeginLedgerTx(ctx, userID)
	if err != nil {
		return money.Amount{}, err
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				s.log.Error("ledger rollback failed", "user_id", userID, "err", rbErr)
			}
		}
	}()
	old, new, err := m(ctx, tx)
	if err != nil {
		return money.Amount{}, err
	}
	delta, err := ledger.Effect(old, new)
	if err != nil {
		return money.Amount{}, fmt.Errorf("reconcile: %w", err)
	}
	if bal, err = tx.AdjustBalance(ctx, delta); err != nil {
		return money.Amount{}, err
	}
	if !ledger.Within(bal, ledger.MaxBalance) {
		return money.Amount{}, errs.Invalidf("balance must stay within %s", ledger.MaxBalance.Decimal())
	}
	if err = tx.Commit(ctx); err != nil {
		return money.Amount{}, err
	}
	return bal, nil
}

func (s *service) Get(ctx context.Context, userID, id uuid.UUID) (ledger.Transaction, error) {
	t, err := s.repo.TransactionByID(ctx, id)
	if err != nil {
		return ledger.Transaction{}, err
	}
	if t.UserID != userID {
		return ledger.Transaction{}, errs.Forbiddenf("transaction not authorized")
	}
	return t, nil
}

func (s *service) List(ctx context.Context, userID uuid.UUID, f ledger.TxFilter) (Page, error) {
	if userID == uuid.Nil {
		return Page{}, errs.ErrInvalid
	}
	if f.Type != "" && !f.Type.Valid() {
		return Page{}, errs.Invalidf("type must be one of income, expense, investment")
	}
	switch f.Sort {
	case "":
		f.Sort = ledger.SortDate
	case ledger.SortDate, ledger.SortAmount:
	default:
		return Page{}, errs.Invalidf("sort must be date or amount")
	}
	if f.Limit == 0 {
		f.Limit = DefaultLimit
	}
	if f.Limit < 0 || f.Limit > MaxLimit {
		return Page{}, errs.Invalidf("limit must be between 1 and %d", MaxLimit)
	}
	if f.Offset < 0 {
		return Page{}, errs.Invalidf("offset must be >= 0")
	}
	if !f.From.IsZero() && !f.To.IsZero() && f.To.Before(f.From) {
		return Page{}, errs.Invalidf("to must not be before from")
	}
	f.Query = strings.TrimSpace(f.Query)
	items, total, err := s.repo.ListTransactions(ctx, userID, f)
	if err != nil {
		return Page{}, err
	}
	return Page{Items: items, Total: total}, nil
}

// MonthSummary totals the calendar month containing month (UTC).
func (s *service) MonthSummary(ctx context.Context, userID uuid.UUID, month time.Time) (Summary, error) {
	u, err := s.repo.UserByID(ctx, userID)
	if err != nil {
		return Summary{}, err
	}
	month = month.UTC()
	from := time.Date(month.Year(), month.Month(), 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0).Add(-time.Nanosecond)
	txs, _, err := s.repo.ListTransactions(ctx, userID, ledger.TxFilter{From: from, To: to, Sort: ledger.SortDate, Asc: true})
	if err != nil {
		return Summary{}, err
	}
	sum := Summary{
		Month:        from,
		Income:       ledger.Zero(),
		Expense:      ledger.Zero(),
		Investment:   ledger.Zero(),
		Balance:      u.Balance,
		MonthlyLimit: u.MonthlyLimit,
		Remaining:    ledger.Zero(),
		Count:        len(txs),
	}
	byCat := make(map[uuid.UUID]money.Amount)
	for _, t := range txs {
		switch t.Type {
		case ledger.TxIncome:
			sum.Income, err = sum.Income.Add(t.Amount)
		case ledger.TxExpense:
			sum.Expense, err = sum.Expense.Add(t.Amount)
		case ledger.TxInvestment:
			sum.Investment, err = sum.Investment.Add(t.Amount)
		}
		if err != nil {
			return Summary{}, err
		}
		if t.Type == ledger.TxIncome {
			continue
		}
		cur, ok := byCat[t.CategoryID]
		if !ok {
			cur = ledger.Zero()
		}
		if byCat[t.CategoryID], err = cur.Add(t.Amount); err != nil {
			return Summary{}, err
		}
	}
	if sum.Net, err = ledger.Replay(txs); err != nil {
		return Summary{}, err
	}
	for id, total := range byCat {
		sum.ByCategory = append(sum.ByCategory, CategoryTotal{CategoryID: id, Total: total})
	}
	sort.Slice(sum.ByCategory, func(i, j int) bool {
		c, _ := sum.ByCategory[i].Total.Cmp(sum.ByCategory[j].Total)
		if c != 0 {
			return c > 0
		}
		return sum.ByCategory[i].CategoryID.String() < sum.ByCategory[j].CategoryID.String()
	})
	if u.MonthlyLimit.IsPos() {
		out, err := sum.Expense.Add(sum.Investment)
		if err != nil {
			return Summary{}, err
		}
		if sum.Remaining, err = u.MonthlyLimit.Sub(out); err != nil {
			return Summary{}, err
		}
	}
	return sum, nil
}
