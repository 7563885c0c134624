package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/govalues/money"
	sdec "github.com/shopspring/decimal"

	"github.com/tinoosan/fintrack/internal/errs"
	"github.com/tinoosan/fintrack/internal/ledger"
)

// --- Portfolios and holdings ---

func (s *Store) ListPortfolios(_ context.Context, userID uuid.UUID) ([]ledger.Portfolio, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ledger.Portfolio, 0)
	for _, p := range s.portfolios {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

func (s *Store) PortfolioByID(_ context.Context, id uuid.UUID) (ledger.Portfolio, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.portfolios[id]
	if !ok {
		return ledger.Portfolio{}, errs.ErrNotFound
	}
	return p, nil
}

func (s *Store) CreatePortfolio(_ context.Context, p ledger.Portfolio) (ledger.Portfolio, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.portfolios[p.ID] = p
	return p, nil
}

func (s *Store) UpdatePortfolio(_ context.Context, p ledger.Portfolio) (ledger.Portfolio, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.portfolios[p.ID]; !ok {
		return ledger.Portfolio{}, errs.ErrNotFound
	}
	s.portfolios[p.ID] = p
	return p, nil
}

// DeletePortfolio removes the portfolio and its holdings.
func (s *Store) DeletePortfolio(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.portfolios[id]; !ok {
		return errs.ErrNotFound
	}
	for hid, h := range s.holdings {
		if h.PortfolioID == id {
			delete(s.holdings, hid)
		}
	}
	delete(s.portfolios, id)
	return nil
}

func (s *Store) ListHoldings(_ context.Context, portfolioID uuid.UUID) ([]ledger.Holding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ledger.Holding, 0)
	for _, h := range s.holdings {
		if h.PortfolioID == portfolioID {
			out = append(out, h)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Symbol != out[j].Symbol {
			return out[i].Symbol < out[j].Symbol
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

func (s *Store) HoldingByID(_ context.Context, id uuid.UUID) (ledger.Holding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.holdings[id]
	if !ok {
		return ledger.Holding{}, errs.ErrNotFound
	}
	return h, nil
}

func (s *Store) CreateHolding(_ context.Context, h ledger.Holding) (ledger.Holding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.portfolios[h.PortfolioID]; !ok {
		return ledger.Holding{}, errs.ErrNotFound
	}
	s.holdings[h.ID] = h
	return h, nil
}

func (s *Store) UpdateHolding(_ context.Context, h ledger.Holding) (ledger.Holding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.holdings[h.ID]; !ok {
		return ledger.Holding{}, errs.ErrNotFound
	}
	s.holdings[h.ID] = h
	return h, nil
}

func (s *Store) UpdateHoldingPrice(_ context.Context, id uuid.UUID, price sdec.Decimal, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.holdings[id]
	if !ok {
		return errs.ErrNotFound
	}
	h.CurrentPrice = price
	h.UpdatedAt = at
	s.holdings[id] = h
	return nil
}

func (s *Store) DeleteHolding(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.holdings[id]; !ok {
		return errs.ErrNotFound
	}
	delete(s.holdings, id)
	return nil
}

func (s *Store) AppendPrice(_ context.Context, p ledger.PricePoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	bySym, ok := s.prices[p.UserID]
	if !ok {
		bySym = make(map[string][]ledger.PricePoint)
		s.prices[p.UserID] = bySym
	}
	pts := append(bySym[p.Symbol], p)
	sort.SliceStable(pts, func(i, j int) bool { return pts[i].At.Before(pts[j].At) })
	bySym[p.Symbol] = pts
	return nil
}

// PriceHistory returns the newest limit points, oldest first.
func (s *Store) PriceHistory(_ context.Context, userID uuid.UUID, symbol string, limit int) ([]ledger.PricePoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pts := s.prices[userID][symbol]
	if limit > 0 && len(pts) > limit {
		pts = pts[len(pts)-limit:]
	}
	out := make([]ledger.PricePoint, len(pts))
	copy(out, pts)
	return out, nil
}

// --- Goals ---

func (s *Store) ListGoals(_ context.Context, userID uuid.UUID) ([]ledger.Goal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ledger.Goal, 0)
	for _, g := range s.goals {
		if g.UserID == userID {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

func (s *Store) GoalByID(_ context.Context, id uuid.UUID) (ledger.Goal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.goals[id]
	if !ok {
		return ledger.Goal{}, errs.ErrNotFound
	}
	return g, nil
}

func (s *Store) CreateGoal(_ context.Context, g ledger.Goal) (ledger.Goal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.goals[g.ID] = g
	return g, nil
}

// UpdateGoal persists name, target and deadline; progress is untouched.
func (s *Store) UpdateGoal(_ context.Context, g ledger.Goal) (ledger.Goal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.goals[g.ID]
	if !ok {
		return ledger.Goal{}, errs.ErrNotFound
	}
	cur.Name, cur.Target, cur.Deadline = g.Name, g.Target, g.Deadline
	s.goals[g.ID] = cur
	return cur, nil
}

func (s *Store) DeleteGoal(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.goals[id]; !ok {
		return errs.ErrNotFound
	}
	delete(s.goals, id)
	return nil
}

func (s *Store) AddGoalProgress(_ context.Context, id uuid.UUID, delta money.Amount) (ledger.Goal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.goals[id]
	if !ok {
		return ledger.Goal{}, errs.ErrNotFound
	}
	cur, err := g.Current.Add(delta)
	if err != nil {
		return ledger.Goal{}, err
	}
	g.Current = cur
	s.goals[id] = g
	return g, nil
}

// --- Chat ---

func (s *Store) AppendMessage(_ context.Context, m ledger.ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chat[m.UserID] = append(s.chat[m.UserID], m)
	return nil
}

// RecentMessages returns the newest limit messages, oldest first.
func (s *Store) RecentMessages(_ context.Context, userID uuid.UUID, limit int) ([]ledger.ChatMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := s.chat[userID]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]ledger.ChatMessage, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (s *Store) ClearMessages(_ context.Context, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.chat, userID)
	return nil
}
