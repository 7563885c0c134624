package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/govalues/money"
)

// LedgerTx is one storage transaction over a single user's ledger. A store
// serializes ledger transactions per user from Begin until Commit or Rollback,
// so the pre-update row read by TransactionForUpdate cannot change underneath
// the caller and AdjustBalance never loses a concurrent update.
type LedgerTx interface {
	// TransactionForUpdate returns the row with id and locks it.
	TransactionForUpdate(ctx context.Context, id uuid.UUID) (Transaction, error)
	InsertTransaction(ctx context.Context, t Transaction) error
	UpdateTransaction(ctx context.Context, t Transaction) error
	DeleteTransaction(ctx context.Context, id uuid.UUID) error
	// AdjustBalance atomically adds delta to the user's balance and returns the result.
	AdjustBalance(ctx context.Context, delta money.Amount) (money.Amount, error)
	// IdempotencyKey looks up a client key recorded for the user.
	IdempotencyKey(ctx context.Context, key string) (txID uuid.UUID, requestHash string, found bool, err error)
	// SaveIdempotencyKey records key against the created transaction.
	SaveIdempotencyKey(ctx context.Context, key string, txID uuid.UUID, requestHash string) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// SortField names a transaction list ordering.
type SortField string

const (
	SortDate   SortField = "date"
	SortAmount SortField = "amount"
)

// TxFilter narrows a transaction listing. Zero values mean "no constraint";
// Limit 0 means no limit.
type TxFilter struct {
	Type       TxType
	CategoryID uuid.UUID
	From       time.Time
	To         time.Time
	Query      string
	Sort       SortField
	Asc        bool
	Limit      int
	Offset     int
}
