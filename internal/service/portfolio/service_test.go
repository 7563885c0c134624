package portfolio_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	sdec "github.com/shopspring/decimal"

	"github.com/tinoosan/fintrack/internal/clock"
	"github.com/tinoosan/fintrack/internal/errs"
	"github.com/tinoosan/fintrack/internal/quotes"
	"github.com/tinoosan/fintrack/internal/service/portfolio"
	"github.com/tinoosan/fintrack/internal/storage/memory"
)

func setup(q portfolio.Quoter) (portfolio.Service, uuid.UUID, uuid.UUID) {
	store := memory.New()
	clk := clock.NewManual(time.Date(2024, 5, 15, 12, 0, 0, 0, time.UTC))
	return portfolio.New(store, store, q, clk, nil), uuid.New(), uuid.New()
}

func TestPortfolio_RefreshReportsUnpricedSymbols(t *testing.T) {
	ctx := context.Background()
	svc, owner, _ := setup(quotes.Static{"AAPL": "190.00"})
	name := "Long term"
	p, err := svc.Create(ctx, owner, portfolio.PortfolioInput{Name: &name})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	for _, in := range []portfolio.HoldingInput{
		{Symbol: "aapl", Quantity: sdec.RequireFromString("2"), BuyPrice: sdec.RequireFromString("150")},
		{Symbol: "ZZZZ", Quantity: sdec.RequireFromString("1.5"), BuyPrice: sdec.RequireFromString("10")},
	} {
		if _, err := svc.AddHolding(ctx, owner, p.ID, in); err != nil {
			t.Fatalf("add holding %s: %v", in.Symbol, err)
		}
	}

	d, rep, err := svc.Refresh(ctx, owner, p.ID)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if rep.Updated != 1 || len(rep.Failed) != 1 || rep.Failed[0] != "ZZZZ" {
		t.Fatalf("report = %+v", rep)
	}
	// 2*190 + 1.5*10
	if got := d.Value.StringFixed(2); got != "395.00" {
		t.Fatalf("value = %s", got)
	}
	if got := d.Gain.StringFixed(2); got != "80.00" {
		t.Fatalf("gain = %s", got)
	}
	hist, err := svc.PriceHistory(ctx, owner, "AAPL", 0)
	if err != nil || len(hist) != 1 || !hist[0].Price.Equal(sdec.RequireFromString("190")) {
		t.Fatalf("history = %+v err=%v", hist, err)
	}
}

func TestPortfolio_RefreshFailsWhenNothingPriced(t *testing.T) {
	ctx := context.Background()
	svc, owner, _ := setup(quotes.Static{})
	name := "Empty quotes"
	p, err := svc.Create(ctx, owner, portfolio.PortfolioInput{Name: &name})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.AddHolding(ctx, owner, p.ID, portfolio.HoldingInput{Symbol: "MSFT", Quantity: sdec.RequireFromString("1"), BuyPrice: sdec.RequireFromString("300")}); err != nil {
		t.Fatalf("add holding: %v", err)
	}
	if _, _, err := svc.Refresh(ctx, owner, p.ID); !errors.Is(err, errs.ErrUnavailable) {
		t.Fatalf("want unavailable, got %v", err)
	}
}

func TestPortfolio_OwnershipAndValidation(t *testing.T) {
	ctx := context.Background()
	svc, owner, other := setup(quotes.Static{})
	name := "Mine"
	p, err := svc.Create(ctx, owner, portfolio.PortfolioInput{Name: &name})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Get(ctx, other, p.ID); !errors.Is(err, errs.ErrForbidden) {
		t.Fatalf("foreign get: want forbidden, got %v", err)
	}
	if _, err := svc.AddHolding(ctx, other, p.ID, portfolio.HoldingInput{Symbol: "AAPL", Quantity: sdec.RequireFromString("1")}); !errors.Is(err, errs.ErrForbidden) {
		t.Fatalf("foreign add: want forbidden, got %v", err)
	}
	if _, err := svc.AddHolding(ctx, owner, p.ID, portfolio.HoldingInput{Symbol: "AAPL", Quantity: sdec.Zero}); !errors.Is(err, errs.ErrInvalid) {
		t.Fatalf("zero quantity: want invalid, got %v", err)
	}
	h, err := svc.AddHolding(ctx, owner, p.ID, portfolio.HoldingInput{Symbol: "AAPL", Quantity: sdec.RequireFromString("0.123456789"), BuyPrice: sdec.RequireFromString("100")})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if !h.Quantity.Equal(sdec.RequireFromString("0.123456789")) {
		t.Fatalf("quantity lost precision: %s", h.Quantity)
	}
	if err := svc.DeleteHolding(ctx, other, h.ID); !errors.Is(err, errs.ErrForbidden) {
		t.Fatalf("foreign delete: want forbidden, got %v", err)
	}
}

// hookQuoter calls before ahead of the first quote, so an edit lands while
// the refresh is in flight.
type hookQuoter struct {
	next   portfolio.Quoter
	before func()
}

func (q *hookQuoter) Quote(ctx context.Context, symbol string) (quotes.Quote, error) {
	if q.before != nil {
		q.before()
		q.before = nil
	}
	return q.next.Quote(ctx, symbol)
}

func TestPortfolio_RefreshKeepsConcurrentQuantityEdit(t *testing.T) {
	ctx := context.Background()
	q := &hookQuoter{next: quotes.Static{"AAPL": "200"}}
	svc, owner, _ := setup(q)
	name := "Main"
	p, err := svc.Create(ctx, owner, portfolio.PortfolioInput{Name: &name})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	h, err := svc.AddHolding(ctx, owner, p.ID, portfolio.HoldingInput{Symbol: "AAPL", Quantity: sdec.RequireFromString("1"), BuyPrice: sdec.RequireFromString("150")})
	if err != nil {
		t.Fatalf("add holding: %v", err)
	}
	qty := sdec.RequireFromString("5")
	q.before = func() {
		if _, err := svc.UpdateHolding(ctx, owner, h.ID, portfolio.HoldingPatch{Quantity: &qty}); err != nil {
			t.Errorf("patch quantity: %v", err)
		}
	}

	if _, _, err := svc.Refresh(ctx, owner, p.ID); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	got, err := svc.OwnedHolding(ctx, owner, h.ID)
	if err != nil {
		t.Fatalf("get holding: %v", err)
	}
	if !got.Quantity.Equal(qty) {
		t.Fatalf("quantity = %s, refresh overwrote the edit", got.Quantity)
	}
	if !got.CurrentPrice.Equal(sdec.RequireFromString("200")) {
		t.Fatalf("price = %s", got.CurrentPrice)
	}
}
