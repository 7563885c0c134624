package ledger

import (
	"math/rand"
	"testing"
)

func tx(t TxType, cents int64) *Transaction {
	return &Transaction{Type: t, Amount: AmountFromMinor(cents)}
}

func TestEffect_CreateDeleteUpdate(t *testing.T) {
	cases := []struct {
		name     string
		old, new *Transaction
		want     int64
	}{
		{"create income", nil, tx(TxIncome, 500000), 500000},
		{"create expense", nil, tx(TxExpense, 150000), -150000},
		{"create investment", nil, tx(TxInvestment, 2500), -2500},
		{"delete income", tx(TxIncome, 500000), nil, -500000},
		{"delete expense", tx(TxExpense, 150000), nil, 150000},
		{"update amount", tx(TxExpense, 150000), tx(TxExpense, 200000), -50000},
		{"income to expense", tx(TxIncome, 1000), tx(TxExpense, 1000), -2000},
		{"expense to income", tx(TxExpense, 1000), tx(TxIncome, 1000), 2000},
		{"no change", tx(TxInvestment, 1000), tx(TxInvestment, 1000), 0},
	}
	for _, c := range cases {
		got, err := Effect(c.old, c.new)
		if err != nil {
			t.Fatalf("%s: %v", c.name, err)
		}
		if MustMinor(got) != c.want {
			t.Fatalf("%s: expected %d, got %d", c.name, c.want, MustMinor(got))
		}
	}
}

func TestEffect_RejectsSignedAmount(t *testing.T) {
	neg := &Transaction{Type: TxExpense, Amount: AmountFromMinor(-100)}
	if _, err := Effect(nil, neg); err == nil {
		t.Fatalf("expected error for negative amount")
	}
}

func TestApplyLedgerEffect_Scenario(t *testing.T) {
	bal := Zero()
	income := tx(TxIncome, 500000)
	expense := tx(TxExpense, 150000)
	step := func(old, new *Transaction, want int64) {
		t.Helper()
		var err error
		bal, err = ApplyLedgerEffect(bal, old, new)
		if err != nil {
			t.Fatalf("apply: %v", err)
		}
		if MustMinor(bal) != want {
			t.Fatalf("expected balance %d, got %d", want, MustMinor(bal))
		}
	}
	step(nil, income, 500000)
	step(nil, expense, 350000)
	updated := tx(TxExpense, 200000)
	step(expense, updated, 300000)
	step(income, nil, -200000)
}

// Random create/update/delete sequences must leave the incrementally
// maintained balance equal to a replay of the surviving rows.
func TestApplyLedgerEffect_MatchesReplay(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	types := []TxType{TxIncome, TxExpense, TxInvestment}
	live := map[int]*Transaction{}
	bal := Zero()
	next := 0
	for i := 0; i < 2000; i++ {
		var err error
		switch op := rng.Intn(3); {
		case op == 0 || len(live) == 0:
			n := tx(types[rng.Intn(3)], int64(rng.Intn(100000)+1))
			if bal, err = ApplyLedgerEffect(bal, nil, n); err != nil {
				t.Fatal(err)
			}
			live[next] = n
			next++
		case op == 1:
			for k, old := range live {
				n := tx(types[rng.Intn(3)], int64(rng.Intn(100000)+1))
				if bal, err = ApplyLedgerEffect(bal, old, n); err != nil {
					t.Fatal(err)
				}
				live[k] = n
				break
			}
		default:
			for k, old := range live {
				if bal, err = ApplyLedgerEffect(bal, old, nil); err != nil {
					t.Fatal(err)
				}
				delete(live, k)
				break
			}
		}
	}
	rows := make([]Transaction, 0, len(live))
	var income, outflow int64
	for _, x := range live {
		rows = append(rows, *x)
		if x.Type == TxIncome {
			income += MustMinor(x.Amount)
		} else {
			outflow += MustMinor(x.Amount)
		}
	}
	replayed, err := Replay(rows)
	if err != nil {
		t.Fatal(err)
	}
	if MustMinor(replayed) != MustMinor(bal) || MustMinor(bal) != income-outflow {
		t.Fatalf("drift: incremental=%d replay=%d sums=%d", MustMinor(bal), MustMinor(replayed), income-outflow)
	}
}
