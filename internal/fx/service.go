// Package fx converts amounts between currencies using a cached rate table
// that is rebased onto the canonical storage currency.
package fx

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/govalues/decimal"
	"github.com/govalues/money"

	"github.com/tinoosan/fintrack/internal/clock"
	"github.com/tinoosan/fintrack/internal/errs"
	"github.com/tinoosan/fintrack/internal/ledger"
	"github.com/tinoosan/fintrack/internal/metrics"
	"github.com/tinoosan/fintrack/internal/normalize"
)

// DefaultTTL is how long a fetched rate table is considered fresh.
const DefaultTTL = 24 * time.Hour

// Service caches rates in memory and refreshes them when stale. A failed
// refresh keeps serving the previous table.
type Service struct {
	src   Source
	clock clock.Clock
	ttl   time.Duration
	base  string
	log   *slog.Logger

	mu  sync.RWMutex
	cur *Rates
}

// Option tweaks a Service.
type Option func(*Service)

// WithTTL overrides DefaultTTL.
func WithTTL(d time.Duration) Option { return func(s *Service) { s.ttl = d } }

// New returns a Service converting to ledger.BaseCurrency.
func New(src Source, clk clock.Clock, log *slog.Logger, opts ...Option) *Service {
	s := &Service{src: src, clock: clk, ttl: DefaultTTL, base: ledger.BaseCurrency, log: log}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Base returns the canonical currency code.
func (s *Service) Base() string { return s.base }

// Refresh fetches a new table and replaces the cache on success.
func (s *Service) Refresh(ctx context.Context) error {
	start := s.clock.Now()
	raw, err := s.src.FetchRates(ctx)
	if err == nil {
		raw, err = rebase(raw, s.base)
	}
	metrics.FXRefreshes.WithLabelValues(metrics.Result(err)).Inc()
	metrics.OutboundDuration.WithLabelValues("rates", metrics.Result(err)).Observe(s.clock.Now().Sub(start).Seconds())
	if err != nil {
		return err
	}
	raw.FetchedAt = s.clock.Now()
	s.mu.Lock()
	s.cur = &raw
	s.mu.Unlock()
	return nil
}

// Rates returns the cached table, refreshing it first when older than the TTL.
func (s *Service) Rates(ctx context.Context) (Rates, error) {
	s.mu.RLock()
	cur := s.cur
	s.mu.RUnlock()
	if cur != nil && s.clock.Now().Sub(cur.FetchedAt) < s.ttl {
		return *cur, nil
	}
	if err := s.Refresh(ctx); err != nil {
		if cur != nil {
			s.log.Warn("fx refresh failed; serving stale rates", "err", err, "fetched_at", cur.FetchedAt)
			return *cur, nil
		}
		return Rates{}, errs.Unavailable("exchange rates", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return *s.cur, nil
}

func (s *Service) rate(ctx context.Context, code string) (decimal.Decimal, error) {
	c, ok := normalize.Currency(code)
	if !ok {
		return decimal.Decimal{}, errs.Invalidf("invalid currency code %q", code)
	}
	if c == s.base {
		return decimal.One, nil
	}
	r, err := s.Rates(ctx)
	if err != nil {
		return decimal.Decimal{}, err
	}
	v, ok := r.Values[c]
	if !ok {
		return decimal.Decimal{}, errs.Invalidf("unsupported currency %s", c)
	}
	return v, nil
}

// ToBase converts x denominated in code into the canonical currency.
func (s *Service) ToBase(ctx context.Context, x decimal.Decimal, code string) (decimal.Decimal, error) {
	r, err := s.rate(ctx, code)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return x.Quo(r)
}

// FromBase converts x in the canonical currency into code.
func (s *Service) FromBase(ctx context.Context, x decimal.Decimal, code string) (decimal.Decimal, error) {
	r, err := s.rate(ctx, code)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return x.Mul(r)
}

// Convert moves x from one currency to another through the canonical currency.
func (s *Service) Convert(ctx context.Context, x decimal.Decimal, from, to string) (decimal.Decimal, error) {
	b, err := s.ToBase(ctx, x, from)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return s.FromBase(ctx, b, to)
}

// Normalize converts x in code to a canonical money amount rounded to cents.
// An empty code means x is already canonical.
func (s *Service) Normalize(ctx context.Context, x decimal.Decimal, code string) (money.Amount, error) {
	if code == "" {
		code = s.base
	}
	b, err := s.ToBase(ctx, x, code)
	if err != nil {
		return money.Amount{}, err
	}
	return ledger.AmountFromDecimal(b)
}

// rebase re-expresses r relative to base. With rates quoted per one unit of
// r.Base, a rate for C relative to base is r[C] / r[base].
func rebase(r Rates, base string) (Rates, error) {
	out := Rates{Base: base, Values: make(map[string]decimal.Decimal, len(r.Values)+1)}
	pivot := decimal.One
	if r.Base != base {
		v, ok := r.Values[base]
		if !ok || !v.IsPos() {
			return Rates{}, fmt.Errorf("rates: table based on %s has no usable %s rate", r.Base, base)
		}
		pivot = v
	}
	for code, v := range r.Values {
		if !v.IsPos() {
			continue
		}
		q, err := v.Quo(pivot)
		if err != nil {
			return Rates{}, fmt.Errorf("rates: rebase %s: %w", code, err)
		}
		out.Values[code] = q
	}
	if _, ok := out.Values[r.Base]; !ok && r.Base != base {
		q, err := decimal.One.Quo(pivot)
		if err != nil {
			return Rates{}, err
		}
		out.Values[r.Base] = q
	}
	out.Values[base] = decimal.One
	return out, nil
}
