// Package portfolio implements the investment side-ledger: portfolios,
// holdings, quote refresh and per-user price history.
package portfolio

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	sdec "github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/tinoosan/fintrack/internal/clock"
	"github.com/tinoosan/fintrack/internal/errs"
	"github.com/tinoosan/fintrack/internal/ledger"
	"github.com/tinoosan/fintrack/internal/normalize"
	"github.com/tinoosan/fintrack/internal/quotes"
)

const (
	MaxNameLen = 100
	// refreshConcurrency bounds parallel quote lookups per refresh.
	refreshConcurrency = 4
	DefaultHistory     = 100
)

type Repo interface {
	ListPortfolios(ctx context.Context, userID uuid.UUID) ([]ledger.Portfolio, error)
	PortfolioByID(ctx context.Context, id uuid.UUID) (ledger.Portfolio, error)
	ListHoldings(ctx context.Context, portfolioID uuid.UUID) ([]ledger.Holding, error)
	HoldingByID(ctx context.Context, id uuid.UUID) (ledger.Holding, error)
	// PriceHistory returns the newest limit points for symbol, oldest first.
	PriceHistory(ctx context.Context, userID uuid.UUID, symbol string, limit int) ([]ledger.PricePoint, error)
}

type Writer interface {
	CreatePortfolio(ctx context.Context, p ledger.Portfolio) (ledger.Portfolio, error)
	UpdatePortfolio(ctx context.Context, p ledger.Portfolio) (ledger.Portfolio, error)
	// DeletePortfolio removes the portfolio and its holdings.
	DeletePortfolio(ctx context.Context, id uuid.UUID) error
	CreateHolding(ctx context.Context, h ledger.Holding) (ledger.Holding, error)
	UpdateHolding(ctx context.Context, h ledger.Holding) (ledger.Holding, error)
	// UpdateHoldingPrice sets only the current price and its timestamp.
	UpdateHoldingPrice(ctx context.Context, id uuid.UUID, price sdec.Decimal, at time.Time) error
	DeleteHolding(ctx context.Context, id uuid.UUID) error
	AppendPrice(ctx context.Context, p ledger.PricePoint) error
}

// Quoter returns the latest price for a symbol.
type Quoter interface {
	Quote(ctx context.Context, symbol string) (quotes.Quote, error)
}

type PortfolioInput struct {
	Name        *string
	Description *string
}

type HoldingInput struct {
	Symbol       string
	Quantity     sdec.Decimal
	BuyPrice     sdec.Decimal
	CurrentPrice *sdec.Decimal
}

type HoldingPatch struct {
	Quantity     *sdec.Decimal
	BuyPrice     *sdec.Decimal
	CurrentPrice *sdec.Decimal
}

// Detail is a portfolio with its holdings and valuation.
type Detail struct {
	Portfolio ledger.Portfolio
	Holdings  []ledger.Holding
	Value     sdec.Decimal
	Cost      sdec.Decimal
	Gain      sdec.Decimal
}

// RefreshReport lists the symbols a refresh could not price.
type RefreshReport struct {
	Updated int
	Failed  []string
}

type Service interface {
	List(ctx context.Context, userID uuid.UUID) ([]Detail, error)
	Get(ctx context.Context, userID, id uuid.UUID) (Detail, error)
	Create(ctx context.Context, userID uuid.UUID, in PortfolioInput) (ledger.Portfolio, error)
	Update(ctx context.Context, userID, id uuid.UUID, in PortfolioInput) (ledger.Portfolio, error)
	Delete(ctx context.Context, userID, id uuid.UUID) error
	AddHolding(ctx context.Context, userID, portfolioID uuid.UUID, in HoldingInput) (ledger.Holding, error)
	UpdateHolding(ctx context.Context, userID, holdingID uuid.UUID, p HoldingPatch) (ledger.Holding, error)
	DeleteHolding(ctx context.Context, userID, holdingID uuid.UUID) error
	// OwnedHolding returns the holding when userID owns it.
	OwnedHolding(ctx context.Context, userID, holdingID uuid.UUID) (ledger.Holding, error)
	Refresh(ctx context.Context, userID, portfolioID uuid.UUID) (Detail, RefreshReport, error)
	PriceHistory(ctx context.Context, userID uuid.UUID, symbol string, limit int) ([]ledger.PricePoint, error)
}

type service struct {
	repo   Repo
	writer Writer
	quotes Quoter
	clock  clock.Clock
	log    *slog.Logger
}

func New(repo Repo, writer Writer, q Quoter, clk clock.Clock, log *slog.Logger) Service {
	if clk == nil {
		clk = clock.Real{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &service{repo: repo, writer: writer, quotes: q, clock: clk, log: log}
}

func (s *service) owned(ctx context.Context, userID, id uuid.UUID) (ledger.Portfolio, error) {
	p, err := s.repo.PortfolioByID(ctx, id)
	if err != nil {
		return ledger.Portfolio{}, err
	}
	if p.UserID != userID {
		return ledger.Portfolio{}, errs.Forbiddenf("portfolio not authorized")
	}
	return p, nil
}

func (s *service) detail(ctx context.Context, p ledger.Portfolio) (Detail, error) {
	hs, err := s.repo.ListHoldings(ctx, p.ID)
	if err != nil {
		return Detail{}, err
	}
	d := Detail{Portfolio: p, Holdings: hs, Value: sdec.Zero, Cost: sdec.Zero}
	for _, h := range hs {
		d.Value = d.Value.Add(h.Value())
		d.Cost = d.Cost.Add(h.Cost())
	}
	d.Gain = d.Value.Sub(d.Cost)
	return d, nil
}

func (s *service) List(ctx context.Context, userID uuid.UUID) ([]Detail, error) {
	ps, err := s.repo.ListPortfolios(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]Detail, 0, len(ps))
	for _, p := range ps {
		d, err := s.detail(ctx, p)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

func (s *service) Get(ctx context.Context, userID, id uuid.UUID) (Detail, error) {
	p, err := s.owned(ctx, userID, id)
	if err != nil {
		return Detail{}, err
	}
	return s.detail(ctx, p)
}

func validName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errs.Invalidf("name is required")
	}
	if len([]rune(name)) > MaxNameLen {
		return "", errs.Invalidf("name must be at most %d characters", MaxNameLen)
	}
	return name, nil
}

func (s *service) Create(ctx context.Context, userID uuid.UUID, in PortfolioInput) (ledger.Portfolio, error) {
	if userID == uuid.Nil {
		return ledger.Portfolio{}, errs.ErrInvalid
	}
	if in.Name == nil {
		return ledger.Portfolio{}, errs.Invalidf("name is required")
	}
	name, err := validName(*in.Name)
	if err != nil {
		return ledger.Portfolio{}, err
	}
	p := ledger.Portfolio{ID: uuid.New(), UserID: userID, Name: name, CreatedAt: s.clock.Now()}
	if in.Description != nil {
		p.Description = strings.TrimSpace(*in.Description)
	}
	return s.writer.CreatePortfolio(ctx, p)
}

func (s *service) Update(ctx context.Context, userID, id uuid.UUID, in PortfolioInput) (ledger.Portfolio, error) {
	p, err := s.owned(ctx, userID, id)
	if err != nil {
		return ledger.Portfolio{}, err
	}
	if in.Name != nil {
		if p.Name, err = validName(*in.Name); err != nil {
			return ledger.Portfolio{}, err
		}
	}
	if in.Description != nil {
		p.Description = strings.TrimSpace(*in.Description)
	}
	return s.writer.UpdatePortfolio(ctx, p)
}

func (s *service) Delete(ctx context.Context, userID, id uuid.UUID) error {
	if _, err := s.owned(ctx, userID, id); err != nil {
		return err
	}
	return s.writer.DeletePortfolio(ctx, id)
}

func validateHolding(h ledger.Holding) error {
	if !h.Quantity.IsPositive() {
		return errs.Invalidf("quantity must be > 0")
	}
	if h.BuyPrice.IsNegative() {
		return errs.Invalidf("buy_price must be >= 0")
	}
	if h.CurrentPrice.IsNegative() {
		return errs.Invalidf("current_price must be >= 0")
	}
	return nil
}

func (s *service) AddHolding(ctx context.Context, userID, portfolioID uuid.UUID, in HoldingInput) (ledger.Holding, error) {
	if _, err := s.owned(ctx, userID, portfolioID); err != nil {
		return ledger.Holding{}, err
	}
	sym, ok := normalize.Symbol(in.Symbol)
	if !ok {
		return ledger.Holding{}, errs.Invalidf("symbol is invalid")
	}
	h := ledger.Holding{
		ID:           uuid.New(),
		PortfolioID:  portfolioID,
		UserID:       userID,
		Symbol:       sym,
		Quantity:     in.Quantity,
		BuyPrice:     in.BuyPrice,
		CurrentPrice: in.BuyPrice,
		UpdatedAt:    s.clock.Now(),
	}
	if in.CurrentPrice != nil {
		h.CurrentPrice = *in.CurrentPrice
	}
	if err := validateHolding(h); err != nil {
		return ledger.Holding{}, err
	}
	return s.writer.CreateHolding(ctx, h)
}

func (s *service) OwnedHolding(ctx context.Context, userID, holdingID uuid.UUID) (ledger.Holding, error) {
	h, err := s.repo.HoldingByID(ctx, holdingID)
	if err != nil {
		return ledger.Holding{}, err
	}
	if h.UserID != userID {
		return ledger.Holding{}, errs.Forbiddenf("holding not authorized")
	}
	return h, nil
}

func (s *service) UpdateHolding(ctx context.Context, userID, holdingID uuid.UUID, p HoldingPatch) (ledger.Holding, error) {
	h, err := s.OwnedHolding(ctx, userID, holdingID)
	if err != nil {
		return ledger.Holding{}, err
	}
	if p.Quantity != nil {
		h.Quantity = *p.Quantity
	}
	if p.BuyPrice != nil {
		h.BuyPrice = *p.BuyPrice
	}
	if p.CurrentPrice != nil {
		h.CurrentPrice = *p.CurrentPrice
	}
	if err := validateHolding(h); err != nil {
		return ledger.Holding{}, err
	}
	h.UpdatedAt = s.clock.Now()
	return s.writer.UpdateHolding(ctx, h)
}

func (s *service) DeleteHolding(ctx context.Context, userID, holdingID uuid.UUID) error {
	if _, err := s.OwnedHolding(ctx, userID, holdingID); err != nil {
		return err
	}
	return s.writer.DeleteHolding(ctx, holdingID)
}

// Refresh prices every holding in the portfolio. Symbols the quote service
// cannot price keep their previous price and are reported in Failed.
func (s *service) Refresh(ctx context.Context, userID, portfolioID uuid.UUID) (Detail, RefreshReport, error) {
	p, err := s.owned(ctx, userID, portfolioID)
	if err != nil {
		return Detail{}, RefreshReport{}, err
	}
	hs, err := s.repo.ListHoldings(ctx, p.ID)
	if err != nil {
		return Detail{}, RefreshReport{}, err
	}
	var (
		mu     sync.Mutex
		report RefreshReport
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(refreshConcurrency)
	for _, h := range hs {
		h := h
		g.Go(func() error {
			q, err := s.quotes.Quote(gctx, h.Symbol)
			if err != nil {
				s.log.Warn("quote lookup failed", "symbol", h.Symbol, "err", err)
				mu.Lock()
				report.Failed = append(report.Failed, h.Symbol)
				mu.Unlock()
				return nil
			}
			err = s.writer.UpdateHoldingPrice(gctx, h.ID, q.Price, s.clock.Now())
			if errors.Is(err, errs.ErrNotFound) {
				// Deleted since the listing.
				return nil
			}
			if err != nil {
				return err
			}
			if err := s.writer.AppendPrice(gctx, ledger.PricePoint{UserID: userID, Symbol: h.Symbol, Price: q.Price, At: q.At}); err != nil {
				return err
			}
			mu.Lock()
			report.Updated++
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Detail{}, RefreshReport{}, err
	}
	sort.Strings(report.Failed)
	if len(hs) > 0 && report.Updated == 0 {
		return Detail{}, report, errs.Unavailable("quotes", errors.New("no holding could be priced"))
	}
	d, err := s.detail(ctx, p)
	return d, report, err
}

func (s *service) PriceHistory(ctx context.Context, userID uuid.UUID, symbol string, limit int) ([]ledger.PricePoint, error) {
	sym, ok := normalize.Symbol(symbol)
	if !ok {
		return nil, errs.Invalidf("symbol is invalid")
	}
	if limit <= 0 || limit > 1000 {
		limit = DefaultHistory
	}
	return s.repo.PriceHistory(ctx, userID, sym, limit)
}
