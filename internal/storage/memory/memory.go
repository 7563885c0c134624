package memory

// Package memory provides a simple in-memory implementation used for development and tests.
// It keeps code paths easy to follow while allowing us to plug in a real DB later.
import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/govalues/money"

	"github.com/tinoosan/fintrack/internal/errs"
	"github.com/tinoosan/fintrack/internal/ledger"
)

// Store is an in-memory implementation of every repository and writer used by
// the services. It is guarded by an RWMutex; a ledger transaction holds the
// write lock from BeginLedgerTx until Commit or Rollback.
type Store struct {
	mu         sync.RWMutex
	users      map[uuid.UUID]ledger.User
	usersEmail map[string]uuid.UUID
	categories map[uuid.UUID]ledger.Category
	// Per-user name key index enforcing (user, name_key) uniqueness.
	categoryKeys map[uuid.UUID]map[string]uuid.UUID
	txs          map[uuid.UUID]ledger.Transaction
	// Per-user sorted index of transactions for ordered scans and paging.
	txKeysByUser map[uuid.UUID][]txKey
	// Per-user provider id index enforcing (user, external_id) uniqueness.
	txExternal map[uuid.UUID]map[string]uuid.UUID
	// Per-user client idempotency keys for transaction creation.
	idem       map[uuid.UUID]map[string]idemRecord
	portfolios map[uuid.UUID]ledger.Portfolio
	holdings   map[uuid.UUID]ledger.Holding
	prices     map[uuid.UUID]map[string][]ledger.PricePoint
	goals      map[uuid.UUID]ledger.Goal
	chat       map[uuid.UUID][]ledger.ChatMessage
}

// New constructs an empty in-memory store.
func New() *Store {
	s := &Store{}
	s.reset()
	return s
}

// Reset drops all data.
func (s *Store) Reset() {
	s.mu.Lock()
	s.reset()
	s.mu.Unlock()
}

func (s *Store) reset() {
	s.users = map[uuid.UUID]ledger.User{}
	s.usersEmail = map[string]uuid.UUID{}
	s.categories = map[uuid.UUID]ledger.Category{}
	s.categoryKeys = map[uuid.UUID]map[string]uuid.UUID{}
	s.txs = map[uuid.UUID]ledger.Transaction{}
	s.txKeysByUser = map[uuid.UUID][]txKey{}
	s.txExternal = map[uuid.UUID]map[string]uuid.UUID{}
	s.idem = map[uuid.UUID]map[string]idemRecord{}
	s.portfolios = map[uuid.UUID]ledger.Portfolio{}
	s.holdings = map[uuid.UUID]ledger.Holding{}
	s.prices = map[uuid.UUID]map[string][]ledger.PricePoint{}
	s.goals = map[uuid.UUID]ledger.Goal{}
	s.chat = map[uuid.UUID][]ledger.ChatMessage{}
}

// Ready always succeeds for the in-memory store.
func (s *Store) Ready(context.Context) error { return nil }

// --- Users ---

func (s *Store) CreateUser(_ context.Context, u ledger.User) (ledger.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.usersEmail[u.Email]; ok {
		return ledger.User{}, errs.ErrConflict
	}
	s.users[u.ID] = u
	s.usersEmail[u.Email] = u.ID
	return u, nil
}

func (s *Store) UserByID(_ context.Context, id uuid.UUID) (ledger.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return ledger.User{}, errs.ErrNotFound
	}
	return u, nil
}

func (s *Store) UserByEmail(_ context.Context, email string) (ledger.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.usersEmail[email]
	if !ok {
		return ledger.User{}, errs.ErrNotFound
	}
	return s.users[id], nil
}

// UpdateProfile persists name, currency and monthly limit.
func (s *Store) UpdateProfile(_ context.Context, u ledger.User) (ledger.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.users[u.ID]
	if !ok {
		return ledger.User{}, errs.ErrNotFound
	}
	cur.Name = u.Name
	cur.Currency = u.Currency
	cur.MonthlyLimit = u.MonthlyLimit
	s.users[u.ID] = cur
	return cur, nil
}

func (s *Store) SetBalance(_ context.Context, userID uuid.UUID, balance money.Amount) (money.Amount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return money.Amount{}, errs.ErrNotFound
	}
	u.Balance = balance
	s.users[userID] = u
	return balance, nil
}

func (s *Store) SetBankToken(_ context.Context, userID uuid.UUID, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return errs.ErrNotFound
	}
	u.BankToken = token
	s.users[userID] = u
	return nil
}

// --- Categories ---

func (s *Store) ListCategories(_ context.Context, userID uuid.UUID) ([]ledger.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ledger.Category, 0, len(s.categoryKeys[userID]))
	for _, id := range s.categoryKeys[userID] {
		out = append(out, s.categories[id])
	}
	sortCategories(out)
	return out, nil
}

func (s *Store) CategoryByID(_ context.Context, id uuid.UUID) (ledger.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.categories[id]
	if !ok {
		return ledger.Category{}, errs.ErrNotFound
	}
	return c, nil
}

func (s *Store) CreateCategory(_ context.Context, c ledger.Category) (ledger.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.categoryKeys[c.UserID][c.NameKey]; exists {
		return ledger.Category{}, errs.ErrConflict
	}
	s.putCategoryLocked(c)
	return c, nil
}

// UpsertCategory returns the existing (user, name key) row or inserts c.
func (s *Store) UpsertCategory(_ context.Context, c ledger.Category) (ledger.Category, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, exists := s.categoryKeys[c.UserID][c.NameKey]; exists {
		return s.categories[id], false, nil
	}
	s.putCategoryLocked(c)
	return c, true, nil
}

func (s *Store) putCategoryLocked(c ledger.Category) {
	keys, ok := s.categoryKeys[c.UserID]
	if !ok {
		keys = make(map[string]uuid.UUID)
		s.categoryKeys[c.UserID] = keys
	}
	keys[c.NameKey] = c.ID
	s.categories[c.ID] = c
}

func (s *Store) UpdateCategory(_ context.Context, c ledger.Category) (ledger.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.categories[c.ID]
	if !ok || old.UserID != c.UserID {
		return ledger.Category{}, errs.ErrNotFound
	}
	if id, exists := s.categoryKeys[c.UserID][c.NameKey]; exists && id != c.ID {
		return ledger.Category{}, errs.ErrConflict
	}
	delete(s.categoryKeys[c.UserID], old.NameKey)
	s.putCategoryLocked(c)
	return c, nil
}

// DeleteCategory refuses while any transaction references the category.
func (s *Store) DeleteCategory(_ context.Context, userID, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.categories[id]
	if !ok || c.UserID != userID {
		return errs.ErrNotFound
	}
	for _, k := range s.txKeysByUser[userID] {
		if s.txs[k.ID].CategoryID == id {
			return errs.ErrConflict
		}
	}
	delete(s.categoryKeys[userID], c.NameKey)
	delete(s.categories, id)
	return nil
}
