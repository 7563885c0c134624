package postgres

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	sdec "github.com/shopspring/decimal"

	"github.com/tinoosan/fintrack/internal/errs"
	"github.com/tinoosan/fintrack/internal/ledger"
)

func getTestDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set; skipping Postgres store tests")
	}
	return dsn
}

func mustOpen(t *testing.T, dsn string) *Store {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s, err := Open(ctx, dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return s
}

// setup applies the schema, empties every table and returns an open store.
func setup(t *testing.T) *Store {
	t.Helper()
	dsn := getTestDSN(t)
	s := mustOpen(t, dsn)
	t.Cleanup(s.Close)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	// Resolve init SQL path relative to this test file so CWD doesn't matter
	_, thisFile, _, _ := runtime.Caller(0)
	repoRoot := filepath.Clean(filepath.Join(filepath.Dir(thisFile), "../../../"))
	b, err := os.ReadFile(filepath.Join(repoRoot, "db", "migrations", "0001_init.sql"))
	if err != nil {
		t.Fatalf("read init sql: %v", err)
	}
	if _, err := s.pool.Exec(ctx, string(b)); err != nil {
		t.Fatalf("apply init sql: %v", err)
	}
	if _, err := s.pool.Exec(ctx, `truncate table transaction_idempotency, chat_messages, goals, price_history, holdings, portfolios, transactions, categories, users cascade`); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	return s
}

func seedUser(t *testing.T, s *Store) (ledger.User, ledger.Category) {
	t.Helper()
	ctx := context.Background()
	u, err := s.CreateUser(ctx, ledger.User{
		ID: uuid.New(), Email: uuid.NewString() + "@example.com", Name: "Ana",
		PasswordHash: "x", Balance: ledger.Zero(), MonthlyLimit: ledger.Zero(),
		Currency: "USD", CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	c, _, err := s.UpsertCategory(ctx, ledger.Category{ID: uuid.New(), UserID: u.ID, Name: "Food", NameKey: "food", Color: "#f97316", Icon: "utensils"})
	if err != nil {
		t.Fatalf("upsert category: %v", err)
	}
	return u, c
}

func insert(t *testing.T, s *Store, u ledger.User, c ledger.Category, minor int64, typ ledger.TxType) ledger.Transaction {
	t.Helper()
	row, err := insertRow(s, u, c, minor, typ)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	return row
}

func insertRow(s *Store, u ledger.User, c ledger.Category, minor int64, typ ledger.TxType) (ledger.Transaction, error) {
	ctx := context.Background()
	tx, err := s.BeginLedgerTx(ctx, u.ID)
	if err != nil {
		return ledger.Transaction{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()
	row := ledger.Transaction{
		ID: uuid.New(), UserID: u.ID, CategoryID: c.ID, Type: typ,
		Amount: ledger.AmountFromMinor(minor), Description: "lunch",
		Date: time.Now().UTC().Truncate(time.Second), Source: ledger.SourceManual, CreatedAt: time.Now().UTC(),
	}
	if err := tx.InsertTransaction(ctx, row); err != nil {
		return ledger.Transaction{}, err
	}
	delta, err := ledger.Effect(nil, &row)
	if err != nil {
		return ledger.Transaction{}, err
	}
	if _, err := tx.AdjustBalance(ctx, delta); err != nil {
		return ledger.Transaction{}, err
	}
	return row, tx.Commit(ctx)
}

func TestStore_LedgerTxCommitAndRollback(t *testing.T) {
	s := setup(t)
	ctx := context.Background()
	u, c := seedUser(t, s)

	row := insert(t, s, u, c, 150000, ledger.TxExpense)
	got, err := s.UserByID(ctx, u.ID)
	if err != nil {
		t.Fatalf("user: %v", err)
	}
	if ledger.MustMinor(got.Balance) != -150000 {
		t.Fatalf("balance = %d, want -150000", ledger.MustMinor(got.Balance))
	}

	tx, err := s.BeginLedgerTx(ctx, u.ID)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := tx.DeleteTransaction(ctx, row.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := tx.AdjustBalance(ctx, ledger.AmountFromMinor(150000)); err != nil {
		t.Fatalf("adjust: %v", err)
	}
	if err := tx.Rollback(ctx); err != nil {
		t.Fatalf("rollback: %v", err)
	}
	if _, err := s.TransactionByID(ctx, row.ID); err != nil {
		t.Fatalf("row should survive rollback: %v", err)
	}
	got, _ = s.UserByID(ctx, u.ID)
	if ledger.MustMinor(got.Balance) != -150000 {
		t.Fatalf("balance after rollback = %d", ledger.MustMinor(got.Balance))
	}

	if _, err := s.BeginLedgerTx(ctx, uuid.New()); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("unknown user: want ErrNotFound, got %v", err)
	}
}

func TestStore_ConcurrentLedgerTxSerialize(t *testing.T) {
	s := setup(t)
	u, c := seedUser(t, s)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := insertRow(s, u, c, 100, ledger.TxIncome); err != nil {
				t.Errorf("insert: %v", err)
			}
		}()
	}
	wg.Wait()
	got, _ := s.UserByID(context.Background(), u.ID)
	if ledger.MustMinor(got.Balance) != 1000 {
		t.Fatalf("balance = %d, want 1000", ledger.MustMinor(got.Balance))
	}
}

func TestStore_CategoriesAndFilters(t *testing.T) {
	s := setup(t)
	ctx := context.Background()
	u, c := seedUser(t, s)

	again, created, err := s.UpsertCategory(ctx, ledger.Category{ID: uuid.New(), UserID: u.ID, Name: "FOOD", NameKey: "food", Color: "#000000", Icon: "x"})
	if err != nil || created || again.ID != c.ID {
		t.Fatalf("upsert should find existing: %+v created=%v err=%v", again, created, err)
	}
	if _, err := s.CreateCategory(ctx, ledger.Category{ID: uuid.New(), UserID: u.ID, Name: "food", NameKey: "food"}); !errors.Is(err, errs.ErrConflict) {
		t.Fatalf("duplicate create: want ErrConflict, got %v", err)
	}

	insert(t, s, u, c, 500, ledger.TxExpense)
	insert(t, s, u, c, 900, ledger.TxIncome)
	page, total, err := s.ListTransactions(ctx, u.ID, ledger.TxFilter{Type: ledger.TxIncome, Query: "LUN", Limit: 10})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 1 || len(page) != 1 || ledger.MustMinor(page[0].Amount) != 900 {
		t.Fatalf("unexpected page: total=%d %+v", total, page)
	}
	if err := s.DeleteCategory(ctx, u.ID, c.ID); !errors.Is(err, errs.ErrConflict) {
		t.Fatalf("referenced category delete: want ErrConflict, got %v", err)
	}
	ok, err := s.SimilarTransactionExists(ctx, u.ID, time.Now().UTC(), ledger.AmountFromMinor(500), " Lunch ")
	if err != nil || !ok {
		t.Fatalf("similar: ok=%v err=%v", ok, err)
	}
}

func TestStore_HoldingsKeepPrecision(t *testing.T) {
	s := setup(t)
	ctx := context.Background()
	u, _ := seedUser(t, s)
	p, err := s.CreatePortfolio(ctx, ledger.Portfolio{ID: uuid.New(), UserID: u.ID, Name: "Main", CreatedAt: time.Now().UTC()})
	if err != nil {
		t.Fatalf("portfolio: %v", err)
	}
	h := ledger.Holding{
		ID: uuid.New(), PortfolioID: p.ID, UserID: u.ID, Symbol: "AAPL",
		Quantity: sdec.RequireFromString("0.123456789"), BuyPrice: sdec.RequireFromString("150.25"),
		CurrentPrice: sdec.RequireFromString("151"), UpdatedAt: time.Now().UTC(),
	}
	if _, err := s.CreateHolding(ctx, h); err != nil {
		t.Fatalf("holding: %v", err)
	}
	got, err := s.HoldingByID(ctx, h.ID)
	if err != nil {
		t.Fatalf("get holding: %v", err)
	}
	if !got.Quantity.Equal(h.Quantity) || !got.BuyPrice.Equal(h.BuyPrice) {
		t.Fatalf("precision lost: %+v", got)
	}
	if err := s.DeletePortfolio(ctx, p.ID); err != nil {
		t.Fatalf("delete portfolio: %v", err)
	}
	if _, err := s.HoldingByID(ctx, h.ID); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("holding should cascade: %v", err)
	}
}

func TestStore_IdempotencyKeyAndPriceUpdate(t *testing.T) {
	s := setup(t)
	ctx := context.Background()
	u, c := seedUser(t, s)
	row := insert(t, s, u, c, 700, ledger.TxExpense)

	tx, err := s.BeginLedgerTx(ctx, u.ID)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := tx.SaveIdempotencyKey(ctx, "k1", row.ID, "h1"); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := tx.SaveIdempotencyKey(ctx, "k1", uuid.New(), "h2"); err != nil {
		t.Fatalf("second save: %v", err)
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}
	tx, err = s.BeginLedgerTx(ctx, u.ID)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	id, hash, found, err := tx.IdempotencyKey(ctx, "k1")
	_ = tx.Rollback(ctx)
	if err != nil || !found || id != row.ID || hash != "h1" {
		t.Fatalf("lookup = %s %q %v %v", id, hash, found, err)
	}

	p, err := s.CreatePortfolio(ctx, ledger.Portfolio{ID: uuid.New(), UserID: u.ID, Name: "Main", CreatedAt: time.Now().UTC()})
	if err != nil {
		t.Fatalf("portfolio: %v", err)
	}
	h := ledger.Holding{
		ID: uuid.New(), PortfolioID: p.ID, UserID: u.ID, Symbol: "AAPL",
		Quantity: sdec.RequireFromString("3"), BuyPrice: sdec.RequireFromString("100"),
		CurrentPrice: sdec.RequireFromString("100"), UpdatedAt: time.Now().UTC(),
	}
	if _, err := s.CreateHolding(ctx, h); err != nil {
		t.Fatalf("holding: %v", err)
	}
	if err := s.UpdateHoldingPrice(ctx, h.ID, sdec.RequireFromString("123.45"), time.Now().UTC()); err != nil {
		t.Fatalf("update price: %v", err)
	}
	got, err := s.HoldingByID(ctx, h.ID)
	if err != nil {
		t.Fatalf("get holding: %v", err)
	}
	if !got.CurrentPrice.Equal(sdec.RequireFromString("123.45")) || !got.Quantity.Equal(h.Quantity) {
		t.Fatalf("unexpected holding: %+v", got)
	}
	if err := s.UpdateHoldingPrice(ctx, uuid.New(), sdec.RequireFromString("1"), time.Now().UTC()); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("missing holding: %v", err)
	}
}
