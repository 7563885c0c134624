package ledger

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/govalues/decimal"
	"github.com/govalues/money"
	sdec "github.com/shopspring/decimal"

	"github.com/tinoosan/fintrack/internal/errs"
)

// BaseCurrency is the canonical currency every stored amount is normalized to.
const BaseCurrency = "USD"

// TxType tags the direction of a transaction. Amounts are stored as magnitudes.
type TxType string

const (
	// TxIncome adds its amount to the balance.
	TxIncome TxType = "income"
	// TxExpense subtracts its amount from the balance.
	TxExpense TxType = "expense"
	// TxInvestment subtracts its amount from the balance, like an expense.
	TxInvestment TxType = "investment"
)

// Valid reports whether t is one of the known transaction types.
func (t TxType) Valid() bool {
	switch t {
	case TxIncome, TxExpense, TxInvestment:
		return true
	}
	return false
}

// ParseTxType normalizes s into a TxType.
func ParseTxType(s string) (TxType, bool) {
	t := TxType(strings.ToLower(strings.TrimSpace(s)))
	return t, t.Valid()
}

// Source records how a transaction entered the ledger.
type Source string

const (
	SourceManual        Source = "manual"
	SourceBankStatement Source = "bank_statement"
	SourceAI            Source = "ai"
	SourceSmartAdd      Source = "smart_add"
)

// User captures the owner of ledger data and the running balance.
type User struct {
	ID           uuid.UUID
	Email        string
	Name         string
	PasswordHash string
	// Balance is the running total of all transaction effects plus manual adjustments.
	Balance      money.Amount
	MonthlyLimit money.Amount
	// Currency is the display preference; storage is always BaseCurrency.
	Currency  string
	BankToken string
	CreatedAt time.Time
}

// Category groups transactions. (UserID, NameKey) is unique.
type Category struct {
	ID      uuid.UUID
	UserID  uuid.UUID
	Name    string
	NameKey string
	Color   string
	Icon    string
}

// Transaction is one ledger row.
type Transaction struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	CategoryID  uuid.UUID
	Type        TxType
	Amount      money.Amount
	Description string
	Date        time.Time
	Source      Source
	// ExternalID is the aggregation provider's id for imported rows.
	ExternalID string
	CreatedAt  time.Time
}

// Portfolio groups investment holdings.
type Portfolio struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	Name        string
	Description string
	CreatedAt   time.Time
}

// Holding is a position in a portfolio.
type Holding struct {
	ID           uuid.UUID
	PortfolioID  uuid.UUID
	UserID       uuid.UUID
	Symbol       string
	Quantity     sdec.Decimal
	BuyPrice     sdec.Decimal
	CurrentPrice sdec.Decimal
	UpdatedAt    time.Time
}

// Value is quantity times the current price.
func (h Holding) Value() sdec.Decimal { return h.Quantity.Mul(h.CurrentPrice) }

// Cost is quantity times the buy price.
func (h Holding) Cost() sdec.Decimal { return h.Quantity.Mul(h.BuyPrice) }

// Gain is Value minus Cost.
func (h Holding) Gain() sdec.Decimal { return h.Value().Sub(h.Cost()) }

// PricePoint is one recorded quote for a symbol.
type PricePoint struct {
	UserID uuid.UUID
	Symbol string
	Price  sdec.Decimal
	At     time.Time
}

// Goal is a savings target with monotonic progress.
type Goal struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Name      string
	Target    money.Amount
	Current   money.Amount
	Deadline  *time.Time
	CreatedAt time.Time
}

// Completed reports whether progress has reached the target.
func (g Goal) Completed() bool {
	c, err := g.Current.Cmp(g.Target)
	return err == nil && c >= 0
}

// ChatRole tags a conversation message.
type ChatRole string

const (
	RoleUser      ChatRole = "user"
	RoleAssistant ChatRole = "assistant"
)

// ChatMessage is one entry in a user's conversation history.
type ChatMessage struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Role      ChatRole
	Content   string
	CreatedAt time.Time
}

// baseCurr is BaseCurrency as a money.Currency.
var baseCurr = money.MustParseCurr(BaseCurrency)

// Bounds on stored amounts. Both keep every amount and balance well inside
// int64 minor units.
var (
	// MaxAmount caps a single amount: a transaction, goal, limit or manual balance.
	MaxAmount = AmountFromMinor(100_000_000_000_000)
	// MaxBalance caps a running balance.
	MaxBalance = AmountFromMinor(100_000_000_000_000_000)
)

// ErrAmountRange is returned for amounts beyond MaxAmount or that do not fit
// in int64 minor units.
var ErrAmountRange = fmt.Errorf("%w: amount must be at most %s", errs.ErrInvalid, MaxAmount.Decimal().String())

// Zero returns a zero amount in the canonical currency.
func Zero() money.Amount {
	a, _ := money.NewAmountFromMinorUnits(BaseCurrency, 0)
	return a
}

// AmountFromDecimal rounds d to cents and wraps it in the canonical currency.
// Magnitudes above MaxAmount fail with ErrAmountRange.
func AmountFromDecimal(d decimal.Decimal) (money.Amount, error) {
	a, err := money.NewAmountFromDecimal(baseCurr, d.Round(2).Pad(2))
	if err != nil {
		return money.Amount{}, ErrAmountRange
	}
	if !Within(a, MaxAmount) {
		return money.Amount{}, ErrAmountRange
	}
	return a, nil
}

// AmountFromMinor builds a canonical amount from integer cents.
func AmountFromMinor(units int64) money.Amount {
	a, _ := money.NewAmountFromMinorUnits(BaseCurrency, units)
	return a
}

// Within reports whether |a| <= limit.
func Within(a, limit money.Amount) bool {
	c, err := a.Abs().Cmp(limit)
	return err == nil && c <= 0
}

// Minor returns the amount in integer cents, or ErrAmountRange when it does
// not fit in an int64.
func Minor(a money.Amount) (int64, error) {
	units, ok := a.MinorUnits()
	if !ok {
		return 0, ErrAmountRange
	}
	return units, nil
}

// MustMinor is Minor for amounts already bounded by MaxAmount or MaxBalance.
// It panics on overflow.
func MustMinor(a money.Amount) int64 {
	units, err := Minor(a)
	if err != nil {
		panic(err)
	}
	return units
}
