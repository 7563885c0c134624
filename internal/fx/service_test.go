package fx

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/govalues/decimal"

	"github.com/tinoosan/fintrack/internal/clock"
	"github.com/tinoosan/fintrack/internal/errs"
	"github.com/tinoosan/fintrack/internal/ledger"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type countingSource struct {
	calls int
	fail  bool
	src   Source
}

func (c *countingSource) FetchRates(ctx context.Context) (Rates, error) {
	c.calls++
	if c.fail {
		return Rates{}, errors.New("boom")
	}
	return c.src.FetchRates(ctx)
}

func closeEnough(t *testing.T, got, want decimal.Decimal) {
	t.Helper()
	diff, err := got.Sub(want)
	if err != nil {
		t.Fatal(err)
	}
	if diff.Abs().Cmp(decimal.MustParse("0.000001")) > 0 {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

func TestRoundTripEveryCurrency(t *testing.T) {
	clk := clock.NewManual(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	svc := New(DevRates(), clk, testLogger())
	ctx := context.Background()
	rates, err := svc.Rates(ctx)
	if err != nil {
		t.Fatal(err)
	}
	x := decimal.MustParse("1234.56")
	for code := range rates.Values {
		b, err := svc.ToBase(ctx, x, code)
		if err != nil {
			t.Fatalf("%s to base: %v", code, err)
		}
		back, err := svc.FromBase(ctx, b, code)
		if err != nil {
			t.Fatalf("%s from base: %v", code, err)
		}
		closeEnough(t, back, x)
	}
}

func TestRebaseFromForeignBase(t *testing.T) {
	// EUR-based table: 1 EUR = 1.25 USD = 0.85 GBP
	src := StaticSource{Base: "EUR", Values: map[string]string{"USD": "1.25", "GBP": "0.85"}}
	svc := New(src, clock.NewManual(time.Now()), testLogger())
	ctx := context.Background()
	r, err := svc.Rates(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if r.Base != ledger.BaseCurrency {
		t.Fatalf("expected base USD, got %s", r.Base)
	}
	closeEnough(t, r.Values["USD"], decimal.One)
	closeEnough(t, r.Values["EUR"], decimal.MustParse("0.8"))
	closeEnough(t, r.Values["GBP"], decimal.MustParse("0.68"))

	// 100 EUR is 125 USD
	got, err := svc.ToBase(ctx, decimal.MustParse("100"), "eur")
	if err != nil {
		t.Fatal(err)
	}
	closeEnough(t, got, decimal.MustParse("125"))

	amt, err := svc.Normalize(ctx, decimal.MustParse("10"), "GBP")
	if err != nil {
		t.Fatal(err)
	}
	if ledger.MustMinor(amt) != 1471 { // 10 / 0.68 = 14.705...
		t.Fatalf("expected 1471 cents, got %d", ledger.MustMinor(amt))
	}
}

func TestTTLAndStaleFallback(t *testing.T) {
	clk := clock.NewManual(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	src := &countingSource{src: DevRates()}
	svc := New(src, clk, testLogger())
	ctx := context.Background()

	if _, err := svc.Rates(ctx); err != nil {
		t.Fatal(err)
	}
	clk.Advance(23 * time.Hour)
	if _, err := svc.Rates(ctx); err != nil {
		t.Fatal(err)
	}
	if src.calls != 1 {
		t.Fatalf("expected cached rates, got %d fetches", src.calls)
	}
	clk.Advance(2 * time.Hour)
	if _, err := svc.Rates(ctx); err != nil {
		t.Fatal(err)
	}
	if src.calls != 2 {
		t.Fatalf("expected refresh after ttl, got %d fetches", src.calls)
	}

	src.fail = true
	clk.Advance(48 * time.Hour)
	r, err := svc.Rates(ctx)
	if err != nil {
		t.Fatalf("stale rates should be served: %v", err)
	}
	if _, ok := r.Values["EUR"]; !ok {
		t.Fatalf("stale table lost EUR")
	}
	if err := svc.Refresh(ctx); err == nil {
		t.Fatalf("explicit refresh should report the failure")
	}
}

func TestNoRatesIsUnavailable(t *testing.T) {
	svc := New(&countingSource{fail: true}, clock.NewManual(time.Now()), testLogger())
	_, err := svc.ToBase(context.Background(), decimal.One, "EUR")
	if !errors.Is(err, errs.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	// canonical currency needs no table
	if _, err := svc.ToBase(context.Background(), decimal.One, "USD"); err != nil {
		t.Fatalf("usd conversion: %v", err)
	}
}

func TestUnknownCurrency(t *testing.T) {
	svc := New(DevRates(), clock.NewManual(time.Now()), testLogger())
	if _, err := svc.ToBase(context.Background(), decimal.One, "XYZ"); !errors.Is(err, errs.ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
	if _, err := svc.ToBase(context.Background(), decimal.One, "euro"); !errors.Is(err, errs.ErrInvalid) {
		t.Fatalf("expected ErrInvalid for malformed code, got %v", err)
	}
}

func TestHTTPSource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"result":"success","base_code":"USD","rates":{"USD":1,"EUR":0.9,"JPY":150.25,"VND":2.5e4}}`)
	}))
	defer srv.Close()
	src := NewHTTPSource(srv.URL, time.Second)
	r, err := src.FetchRates(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if r.Base != "USD" || len(r.Values) != 4 {
		t.Fatalf("unexpected table: %+v", r)
	}
	closeEnough(t, r.Values["VND"], decimal.MustParse("25000"))
}
