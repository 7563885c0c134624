package assistant

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/govalues/decimal"

	"github.com/tinoosan/fintrack/internal/ledger"
)

// Action kinds accepted from model output. Anything else is rejected.
const (
	KindAddTransaction    = "ADD_TRANSACTION"
	KindUpdateTransaction = "UPDATE_TRANSACTION"
	KindDeleteTransaction = "DELETE_TRANSACTION"
	KindDeleteHolding     = "DELETE_HOLDING"
)

// Action is the closed set of mutations the assistant may request.
type Action interface {
	Kind() string
	action()
}

type AddTransaction struct {
	Amount       decimal.Decimal
	Type         ledger.TxType
	Description  string
	CategoryName string
	Currency     string
	Date         time.Time
}

type UpdateTransaction struct {
	ID           uuid.UUID
	Amount       *decimal.Decimal
	Type         *ledger.TxType
	Description  *string
	CategoryName *string
	Currency     *string
	Date         *time.Time
}

type DeleteTransaction struct{ ID uuid.UUID }

type DeleteHolding struct{ ID uuid.UUID }

func (AddTransaction) Kind() string    { return KindAddTransaction }
func (UpdateTransaction) Kind() string { return KindUpdateTransaction }
func (DeleteTransaction) Kind() string { return KindDeleteTransaction }
func (DeleteHolding) Kind() string     { return KindDeleteHolding }

func (AddTransaction) action()    {}
func (UpdateTransaction) action() {}
func (DeleteTransaction) action() {}
func (DeleteHolding) action()     {}

// flexNumber accepts a JSON number or a numeric string.
type flexNumber string

func (n *flexNumber) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*n = flexNumber(strings.TrimSpace(s))
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(b, &num); err != nil {
		return err
	}
	*n = flexNumber(num.String())
	return nil
}

func (n flexNumber) decimal() (decimal.Decimal, error) {
	s := strings.TrimPrefix(strings.ReplaceAll(string(n), ",", ""), "$")
	return decimal.Parse(s)
}

type envelope struct {
	Action string          `json:"action"`
	Data   json.RawMessage `json:"data"`
}

// payload is the union of all fields any action may carry. Field names follow
// the prompt contract (camelCase) with snake_case aliases.
type payload struct {
	ID              string      `json:"id"`
	TransactionID   string      `json:"transactionId"`
	TransactionIDSC string      `json:"transaction_id"`
	HoldingID       string      `json:"holdingId"`
	HoldingIDSC     string      `json:"holding_id"`
	Amount          *flexNumber `json:"amount"`
	Type            *string     `json:"type"`
	Description     *string     `json:"description"`
	CategoryName    *string     `json:"categoryName"`
	CategoryNameSC  *string     `json:"category_name"`
	Category        *string     `json:"category"`
	Currency        *string     `json:"currency"`
	Date            *string     `json:"date"`
}

func (p payload) categoryName() *string {
	for _, c := range []*string{p.CategoryName, p.CategoryNameSC, p.Category} {
		if c != nil && strings.TrimSpace(*c) != "" {
			return c
		}
	}
	return nil
}

func firstID(candidates ...string) (uuid.UUID, error) {
	for _, c := range candidates {
		if c = strings.TrimSpace(c); c != "" {
			id, err := uuid.Parse(c)
			if err != nil {
				return uuid.Nil, fmt.Errorf("invalid id %q", c)
			}
			return id, nil
		}
	}
	return uuid.Nil, fmt.Errorf("id is required")
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q", s)
	}
	return t.UTC(), nil
}

// ParseAction decodes and validates one action block. No side effects.
func ParseAction(raw string) (Action, error) {
	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return nil, fmt.Errorf("decode action: %w", err)
	}
	var p payload
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return nil, fmt.Errorf("decode %s data: %w", env.Action, err)
		}
	}
	switch strings.ToUpper(strings.TrimSpace(env.Action)) {
	case KindAddTransaction:
		return parseAdd(p)
	case KindUpdateTransaction:
		return parseUpdate(p)
	case KindDeleteTransaction:
		id, err := firstID(p.TransactionID, p.TransactionIDSC, p.ID)
		if err != nil {
			return nil, err
		}
		return DeleteTransaction{ID: id}, nil
	case KindDeleteHolding:
		id, err := firstID(p.HoldingID, p.HoldingIDSC, p.ID)
		if err != nil {
			return nil, err
		}
		return DeleteHolding{ID: id}, nil
	default:
		return nil, fmt.Errorf("unknown action %q", env.Action)
	}
}

func parseAmount(n *flexNumber) (decimal.Decimal, error) {
	d, err := n.decimal()
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("invalid amount %q", string(*n))
	}
	if !d.IsPos() {
		return decimal.Decimal{}, fmt.Errorf("amount must be > 0")
	}
	return d, nil
}

func parseAdd(p payload) (AddTransaction, error) {
	if p.Amount == nil {
		return AddTransaction{}, fmt.Errorf("amount is required")
	}
	amt, err := parseAmount(p.Amount)
	if err != nil {
		return AddTransaction{}, err
	}
	a := AddTransaction{Amount: amt, Type: ledger.TxExpense, CategoryName: "Other"}
	if p.Type != nil {
		t, ok := ledger.ParseTxType(*p.Type)
		if !ok {
			return AddTransaction{}, fmt.Errorf("invalid type %q", *p.Type)
		}
		a.Type = t
	}
	if p.Description != nil {
		a.Description = strings.TrimSpace(*p.Description)
	}
	if c := p.categoryName(); c != nil {
		a.CategoryName = strings.TrimSpace(*c)
	}
	if p.Currency != nil {
		a.Currency = strings.TrimSpace(*p.Currency)
	}
	if p.Date != nil && strings.TrimSpace(*p.Date) != "" {
		if a.Date, err = parseDate(*p.Date); err != nil {
			return AddTransaction{}, err
		}
	}
	return a, nil
}

func parseUpdate(p payload) (UpdateTransaction, error) {
	id, err := firstID(p.TransactionID, p.TransactionIDSC, p.ID)
	if err != nil {
		return UpdateTransaction{}, err
	}
	u := UpdateTransaction{ID: id, Description: p.Description, Currency: p.Currency}
	if p.Amount != nil {
		amt, err := parseAmount(p.Amount)
		if err != nil {
			return UpdateTransaction{}, err
		}
		u.Amount = &amt
	}
	if p.Type != nil {
		t, ok := ledger.ParseTxType(*p.Type)
		if !ok {
			return UpdateTransaction{}, fmt.Errorf("invalid type %q", *p.Type)
		}
		u.Type = &t
	}
	if c := p.categoryName(); c != nil {
		name := strings.TrimSpace(*c)
		u.CategoryName = &name
	}
	if p.Date != nil && strings.TrimSpace(*p.Date) != "" {
		d, err := parseDate(*p.Date)
		if err != nil {
			return UpdateTransaction{}, err
		}
		u.Date = &d
	}
	if u.Amount == nil && u.Type == nil && u.Description == nil && u.CategoryName == nil && u.Date == nil {
		return UpdateTransaction{}, fmt.Errorf("update carries no changes")
	}
	return u, nil
}
