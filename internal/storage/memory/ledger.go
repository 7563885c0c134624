package memory

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/govalues/money"

	"github.com/tinoosan/fintrack/internal/errs"
	"github.com/tinoosan/fintrack/internal/ledger"
)

var errTxDone = errors.New("memory: ledger transaction already finished")

// txKey tracks ordering for transactions per user: sorted asc by (Date, ID).
type txKey struct {
	Date time.Time
	ID   uuid.UUID
}

func (k txKey) less(o txKey) bool {
	if !k.Date.Equal(o.Date) {
		return k.Date.Before(o.Date)
	}
	return k.ID.String() < o.ID.String()
}

// insertTxIndexLocked inserts k into the per-user sorted index.
// Caller must hold s.mu (write lock).
func (s *Store) insertTxIndexLocked(userID uuid.UUID, k txKey) {
	keys := s.txKeysByUser[userID]
	i := sort.Search(len(keys), func(i int) bool { return k.less(keys[i]) })
	keys = append(keys, txKey{})
	copy(keys[i+1:], keys[i:])
	keys[i] = k
	s.txKeysByUser[userID] = keys
}

// removeTxIndexLocked drops k from the per-user index. Caller must hold s.mu.
func (s *Store) removeTxIndexLocked(userID uuid.UUID, k txKey) {
	keys := s.txKeysByUser[userID]
	i := sort.Search(len(keys), func(i int) bool { return !keys[i].less(k) })
	if i < len(keys) && keys[i].ID == k.ID {
		s.txKeysByUser[userID] = append(keys[:i], keys[i+1:]...)
	}
}

// rangeByTimeLocked returns a copy of keys within [from,to] inclusive for a
// user. Zero bounds are open. Caller must hold s.mu.
func (s *Store) rangeByTimeLocked(userID uuid.UUID, from, to time.Time) []txKey {
	keys := s.txKeysByUser[userID]
	start := 0
	if !from.IsZero() {
		start = sort.Search(len(keys), func(i int) bool { return !keys[i].Date.Before(from) })
	}
	end := len(keys)
	if !to.IsZero() {
		end = sort.Search(len(keys), func(i int) bool { return keys[i].Date.After(to) })
	}
	if start >= end {
		return nil
	}
	subset := make([]txKey, end-start)
	copy(subset, keys[start:end])
	return subset
}

func (s *Store) putTxLocked(t ledger.Transaction) {
	s.txs[t.ID] = t
	s.insertTxIndexLocked(t.UserID, txKey{Date: t.Date, ID: t.ID})
	if t.ExternalID != "" {
		m, ok := s.txExternal[t.UserID]
		if !ok {
			m = make(map[string]uuid.UUID)
			s.txExternal[t.UserID] = m
		}
		m[t.ExternalID] = t.ID
	}
}

func (s *Store) dropTxLocked(t ledger.Transaction) {
	delete(s.txs, t.ID)
	s.removeTxIndexLocked(t.UserID, txKey{Date: t.Date, ID: t.ID})
	if t.ExternalID != "" {
		delete(s.txExternal[t.UserID], t.ExternalID)
	}
}

func (s *Store) TransactionByID(_ context.Context, id uuid.UUID) (ledger.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.txs[id]
	if !ok {
		return ledger.Transaction{}, errs.ErrNotFound
	}
	return t, nil
}

// ListTransactions filters, sorts and pages a user's transactions.
func (s *Store) ListTransactions(_ context.Context, userID uuid.UUID, f ledger.TxFilter) ([]ledger.Transaction, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q := strings.ToLower(f.Query)
	out := make([]ledger.Transaction, 0)
	for _, k := range s.rangeByTimeLocked(userID, f.From, f.To) {
		t := s.txs[k.ID]
		if f.Type != "" && t.Type != f.Type {
			continue
		}
		if f.CategoryID != uuid.Nil && t.CategoryID != f.CategoryID {
			continue
		}
		if q != "" && !strings.Contains(strings.ToLower(t.Description), q) {
			continue
		}
		out = append(out, t)
	}
	sortTransactions(out, f.Sort, f.Asc)
	total := len(out)
	if f.Offset >= total {
		return []ledger.Transaction{}, total, nil
	}
	out = out[f.Offset:]
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, total, nil
}

func sortTransactions(txs []ledger.Transaction, field ledger.SortField, asc bool) {
	sort.SliceStable(txs, func(i, j int) bool {
		a, b := txs[i], txs[j]
		c := 0
		if field == ledger.SortAmount {
			c, _ = a.Amount.Cmp(b.Amount)
		} else if !a.Date.Equal(b.Date) {
			c = 1
			if a.Date.Before(b.Date) {
				c = -1
			}
		}
		if c == 0 {
			c = strings.Compare(a.ID.String(), b.ID.String())
		}
		if asc {
			return c < 0
		}
		return c > 0
	})
}

func sortCategories(cs []ledger.Category) {
	sort.Slice(cs, func(i, j int) bool { return cs[i].NameKey < cs[j].NameKey })
}

func (s *Store) ExternalIDExists(_ context.Context, userID uuid.UUID, externalID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.txExternal[userID][externalID]
	return ok, nil
}

// SimilarTransactionExists matches on calendar day (UTC), amount and
// case-insensitive description.
func (s *Store) SimilarTransactionExists(_ context.Context, userID uuid.UUID, date time.Time, amount money.Amount, description string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	day := date.UTC().Truncate(24 * time.Hour)
	for _, k := range s.rangeByTimeLocked(userID, day, day.Add(24*time.Hour-time.Nanosecond)) {
		t := s.txs[k.ID]
		if c, err := t.Amount.Cmp(amount); err != nil || c != 0 {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(t.Description), strings.TrimSpace(description)) {
			return true, nil
		}
	}
	return false, nil
}

// BeginLedgerTx takes the store write lock; it is released by Commit or Rollback.
func (s *Store) BeginLedgerTx(_ context.Context, userID uuid.UUID) (ledger.LedgerTx, error) {
	s.mu.Lock()
	if _, ok := s.users[userID]; !ok {
		s.mu.Unlock()
		return nil, errs.ErrNotFound
	}
	return &ledgerTx{s: s, userID: userID}, nil
}

// ledgerTx applies writes directly and records an undo step for each.
type ledgerTx struct {
	s      *Store
	userID uuid.UUID
	undo   []func()
	done   bool
}

func (tx *ledgerTx) TransactionForUpdate(_ context.Context, id uuid.UUID) (ledger.Transaction, error) {
	if tx.done {
		return ledger.Transaction{}, errTxDone
	}
	t, ok := tx.s.txs[id]
	if !ok {
		return ledger.Transaction{}, errs.ErrNotFound
	}
	return t, nil
}

func (tx *ledgerTx) checkRefsLocked(t ledger.Transaction) error {
	c, ok := tx.s.categories[t.CategoryID]
	if !ok || c.UserID != t.UserID {
		return errs.ErrConflict
	}
	if t.ExternalID != "" {
		if id, exists := tx.s.txExternal[t.UserID][t.ExternalID]; exists && id != t.ID {
			return errs.ErrConflict
		}
	}
	return nil
}

func (tx *ledgerTx) InsertTransaction(_ context.Context, t ledger.Transaction) error {
	if tx.done {
		return errTxDone
	}
	if _, exists := tx.s.txs[t.ID]; exists {
		return errs.ErrConflict
	}
	if err := tx.checkRefsLocked(t); err != nil {
		return err
	}
	tx.s.putTxLocked(t)
	tx.undo = append(tx.undo, func() { tx.s.dropTxLocked(t) })
	return nil
}

func (tx *ledgerTx) UpdateTransaction(_ context.Context, t ledger.Transaction) error {
	if tx.done {
		return errTxDone
	}
	old, ok := tx.s.txs[t.ID]
	if !ok {
		return errs.ErrNotFound
	}
	if err := tx.checkRefsLocked(t); err != nil {
		return err
	}
	tx.s.dropTxLocked(old)
	tx.s.putTxLocked(t)
	tx.undo = append(tx.undo, func() {
		tx.s.dropTxLocked(t)
		tx.s.putTxLocked(old)
	})
	return nil
}

func (tx *ledgerTx) DeleteTransaction(_ context.Context, id uuid.UUID) error {
	if tx.done {
		return errTxDone
	}
	old, ok := tx.s.txs[id]
	if !ok {
		return errs.ErrNotFound
	}
	tx.s.dropTxLocked(old)
	tx.undo = append(tx.undo, func() { tx.s.putTxLocked(old) })
	return nil
}

func (tx *ledgerTx) AdjustBalance(_ context.Context, delta money.Amount) (money.Amount, error) {
	if tx.done {
		return money.Amount{}, errTxDone
	}
	u := tx.s.users[tx.userID]
	prev := u.Balance
	bal, err := prev.Add(delta)
	if err != nil {
		return money.Amount{}, err
	}
	u.Balance = bal
	tx.s.users[tx.userID] = u
	tx.undo = append(tx.undo, func() {
		u := tx.s.users[tx.userID]
		u.Balance = prev
		tx.s.users[tx.userID] = u
	})
	return bal, nil
}

type idemRecord struct {
	txID uuid.UUID
	hash string
}

func (tx *ledgerTx) IdempotencyKey(_ context.Context, key string) (uuid.UUID, string, bool, error) {
	if tx.done {
		return uuid.Nil, "", false, errTxDone
	}
	r, ok := tx.s.idem[tx.userID][key]
	return r.txID, r.hash, ok, nil
}

// SaveIdempotencyKey keeps the first record for key.
func (tx *ledgerTx) SaveIdempotencyKey(_ context.Context, key string, txID uuid.UUID, requestHash string) error {
	if tx.done {
		return errTxDone
	}
	m, ok := tx.s.idem[tx.userID]
	if !ok {
		m = make(map[string]idemRecord)
		tx.s.idem[tx.userID] = m
	}
	if _, exists := m[key]; exists {
		return nil
	}
	m[key] = idemRecord{txID: txID, hash: requestHash}
	tx.undo = append(tx.undo, func() { delete(tx.s.idem[tx.userID], key) })
	return nil
}

func (tx *ledgerTx) Commit(context.Context) error {
	if tx.done {
		return errTxDone
	}
	tx.done = true
	tx.undo = nil
	tx.s.mu.Unlock()
	return nil
}

// Rollback undoes every write in reverse order. It is a no-op after Commit.
func (tx *ledgerTx) Rollback(context.Context) error {
	if tx.done {
		return nil
	}
	for i := len(tx.undo) - 1; i >= 0; i-- {
		tx.undo[i]()
	}
	tx.done = true
	tx.undo = nil
	tx.s.mu.Unlock()
	return nil
}
