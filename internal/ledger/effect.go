package ledger

import (
	"errors"

	"github.com/govalues/money"
)

// ErrNegativeAmount is returned when a transaction carries a signed amount.
var ErrNegativeAmount = errors.New("transaction amount must be a non-negative magnitude")

// signed returns the balance contribution of t: +amount for income,
// -amount for expense and investment.
func signed(t *Transaction) (money.Amount, error) {
	if t.Amount.IsNeg() {
		return money.Amount{}, ErrNegativeAmount
	}
	if t.Type == TxIncome {
		return t.Amount, nil
	}
	return t.Amount.Neg(), nil
}

// Effect returns the signed change to the owner's balance caused by replacing
// old with new. A nil old means create, a nil new means delete, and both
// together mean update: the old contribution is reversed before the new one
// is applied.
func Effect(old, new *Transaction) (money.Amount, error) {
	delta := Zero()
	if old != nil {
		s, err := signed(old)
		if err != nil {
			return money.Amount{}, err
		}
		if delta, err = delta.Sub(s); err != nil {
			return money.Amount{}, err
		}
	}
	if new != nil {
		s, err := signed(new)
		if err != nil {
			return money.Amount{}, err
		}
		if delta, err = delta.Add(s); err != nil {
			return money.Amount{}, err
		}
	}
	return delta, nil
}

// ApplyLedgerEffect returns balance adjusted by Effect(old, new).
func ApplyLedgerEffect(balance money.Amount, old, new *Transaction) (money.Amount, error) {
	delta, err := Effect(old, new)
	if err != nil {
		return money.Amount{}, err
	}
	return balance.Add(delta)
}

// Replay computes the balance produced by a set of transactions starting at zero.
func Replay(txs []Transaction) (money.Amount, error) {
	bal := Zero()
	for i := range txs {
		var err error
		if bal, err = ApplyLedgerEffect(bal, nil, &txs[i]); err != nil {
			return money.Amount{}, err
		}
	}
	return bal, nil
}
