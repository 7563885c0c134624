package banksync_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/govalues/decimal"

	"github.com/tinoosan/fintrack/internal/bank"
	"github.com/tinoosan/fintrack/internal/clock"
	"github.com/tinoosan/fintrack/internal/dictionary"
	"github.com/tinoosan/fintrack/internal/errs"
	"github.com/tinoosan/fintrack/internal/fx"
	"github.com/tinoosan/fintrack/internal/ledger"
	"github.com/tinoosan/fintrack/internal/service/banksync"
	"github.com/tinoosan/fintrack/internal/service/category"
	"github.com/tinoosan/fintrack/internal/service/transaction"
	"github.com/tinoosan/fintrack/internal/storage/memory"
)

type fakeAggregator struct {
	records []bank.Record
	err     error
	token   string
}

func (f *fakeAggregator) CreateLinkToken(context.Context, string) (string, error) {
	return "link-sandbox", f.err
}

func (f *fakeAggregator) ExchangePublicToken(_ context.Context, public string) (string, error) {
	return "access-" + public, f.err
}

func (f *fakeAggregator) Transactions(_ context.Context, token string, _, _ time.Time) ([]bank.Record, error) {
	f.token = token
	return f.records, f.err
}

// users adapts the store to the lookups the importer needs.
type users struct{ *memory.Store }

func (u users) Get(ctx context.Context, id uuid.UUID) (ledger.User, error) { return u.UserByID(ctx, id) }

func setup(t *testing.T, agg *fakeAggregator) (banksync.Service, *memory.Store, category.Service, uuid.UUID) {
	t.Helper()
	clk := clock.NewManual(time.Date(2024, 5, 15, 12, 0, 0, 0, time.UTC))
	store := memory.New()
	cats := category.New(store, store, nil)
	rates := fx.New(fx.DevRates(), clk, nil)
	txs := transaction.New(store, store, cats, rates, clk, nil)
	u, err := store.CreateUser(context.Background(), ledger.User{
		ID: uuid.New(), Email: "bank@example.com", Name: "B",
		Balance: ledger.Zero(), MonthlyLimit: ledger.Zero(), Currency: "USD",
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	svc := banksync.New(banksync.Deps{
		Aggregator: agg,
		Repo:       store,
		Users:      users{store},
		Ledger:     txs,
		Categories: cats,
		FX:         rates,
		Clock:      clk,
	})
	return svc, store, cats, u.ID
}

func day(d int) time.Time { return time.Date(2024, 5, d, 0, 0, 0, 0, time.UTC) }

func TestSync_SignConventionAndDeduplication(t *testing.T) {
	agg := &fakeAggregator{records: []bank.Record{
		{ExternalID: "p-1", Date: day(10), Amount: decimal.MustParse("42.50"), Currency: "USD", Description: "Grocer", Category: "Food"},
		{ExternalID: "p-2", Date: day(11), Amount: decimal.MustParse("-1000"), Currency: "USD", Description: "Payroll"},
		{Date: day(12), Amount: decimal.MustParse("9.99"), Currency: "USD", Description: "Streaming"},
		{ExternalID: "p-zero", Date: day(12), Amount: decimal.Zero, Currency: "USD", Description: "Pending"},
	}}
	svc, store, _, uid := setup(t, agg)
	ctx := context.Background()

	if err := svc.Exchange(ctx, uid, "public-1"); err != nil {
		t.Fatalf("exchange: %v", err)
	}
	rep, err := svc.Sync(ctx, uid, 0)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if agg.token != "access-public-1" {
		t.Fatalf("sync used token %q", agg.token)
	}
	if rep.Imported != 3 || rep.Skipped != 1 || rep.Failed != 0 {
		t.Fatalf("first report = %+v", rep)
	}
	// -42.50 + 1000 - 9.99
	if got := ledger.MustMinor(rep.Balance); got != 94751 {
		t.Fatalf("balance = %d, want 94751", got)
	}

	rep, err = svc.Sync(ctx, uid, 0)
	if err != nil {
		t.Fatalf("second sync: %v", err)
	}
	if rep.Imported != 0 || rep.Skipped != 4 {
		t.Fatalf("second report = %+v", rep)
	}
	u, _ := store.UserByID(ctx, uid)
	if got := ledger.MustMinor(u.Balance); got != 94751 {
		t.Fatalf("balance changed on re-sync: %d", got)
	}

	cats, err := store.ListCategories(ctx, uid)
	if err != nil {
		t.Fatalf("categories: %v", err)
	}
	names := map[string]bool{}
	for _, c := range cats {
		names[c.Name] = true
	}
	if !names["Food"] || !names[dictionary.BankImport] {
		t.Fatalf("expected Food and %s categories, got %v", dictionary.BankImport, names)
	}
}

func TestSync_Errors(t *testing.T) {
	agg := &fakeAggregator{}
	svc, _, _, uid := setup(t, agg)
	ctx := context.Background()

	if _, err := svc.Sync(ctx, uid, 0); !errors.Is(err, errs.ErrInvalid) {
		t.Fatalf("unlinked: want invalid, got %v", err)
	}
	if _, err := svc.Sync(ctx, uid, banksync.MaxDays+1); !errors.Is(err, errs.ErrInvalid) {
		t.Fatalf("days: want invalid, got %v", err)
	}
	if err := svc.Exchange(ctx, uid, " "); !errors.Is(err, errs.ErrInvalid) {
		t.Fatalf("empty public token: want invalid, got %v", err)
	}
	if err := svc.Exchange(ctx, uid, "ok"); err != nil {
		t.Fatalf("exchange: %v", err)
	}
	agg.err = errors.New("provider down")
	if _, err := svc.Sync(ctx, uid, 7); !errors.Is(err, errs.ErrUnavailable) {
		t.Fatalf("provider failure: want unavailable, got %v", err)
	}
	if _, err := svc.LinkToken(ctx, uid); !errors.Is(err, errs.ErrUnavailable) {
		t.Fatalf("link token failure: want unavailable, got %v", err)
	}
}
