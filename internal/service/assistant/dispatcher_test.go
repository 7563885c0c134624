package assistant_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/tinoosan/fintrack/internal/clock"
	"github.com/tinoosan/fintrack/internal/fx"
	"github.com/tinoosan/fintrack/internal/ledger"
	"github.com/tinoosan/fintrack/internal/quotes"
	"github.com/tinoosan/fintrack/internal/service/assistant"
	"github.com/tinoosan/fintrack/internal/service/category"
	"github.com/tinoosan/fintrack/internal/service/portfolio"
	"github.com/tinoosan/fintrack/internal/service/transaction"
	"github.com/tinoosan/fintrack/internal/storage/memory"
)

type fixture struct {
	store *memory.Store
	txs   transaction.Service
	d     *assistant.Dispatcher
}

func setup(t *testing.T) fixture {
	t.Helper()
	clk := clock.NewManual(time.Date(2024, 5, 15, 12, 0, 0, 0, time.UTC))
	store := memory.New()
	cats := category.New(store, store, nil)
	txs := transaction.New(store, store, cats, fx.New(fx.DevRates(), clk, nil), clk, nil)
	ports := portfolio.New(store, store, quotes.Static{}, clk, nil)
	return fixture{store: store, txs: txs, d: assistant.NewDispatcher(txs, cats, ports, nil)}
}

func (f fixture) user(t *testing.T, email string) uuid.UUID {
	t.Helper()
	u, err := f.store.CreateUser(context.Background(), ledger.User{
		ID: uuid.New(), Email: email, Name: "U",
		Balance: ledger.Zero(), MonthlyLimit: ledger.Zero(), Currency: "USD",
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u.ID
}

func (f fixture) balance(t *testing.T, id uuid.UUID) int64 {
	t.Helper()
	u, err := f.store.UserByID(context.Background(), id)
	if err != nil {
		t.Fatalf("user: %v", err)
	}
	return ledger.MustMinor(u.Balance)
}

func TestDispatcher_AppliesAddAndStripsBlock(t *testing.T) {
	f := setup(t)
	uid := f.user(t, "a@example.com")
	reply := "Done!\n```json\n{\"action\":\"ADD_TRANSACTION\",\"data\":{\"amount\":800,\"type\":\"expense\",\"categoryName\":\"Food\",\"description\":\"Dinner\"}}\n```"

	out := f.d.Process(context.Background(), uid, reply)
	if !out.Applied || out.Action != assistant.KindAddTransaction {
		t.Fatalf("outcome = %+v", out)
	}
	if out.Text != "Done!" {
		t.Fatalf("text = %q", out.Text)
	}
	if got := f.balance(t, uid); got != -80000 {
		t.Fatalf("balance = %d", got)
	}
	page, err := f.txs.List(context.Background(), uid, ledger.TxFilter{})
	if err != nil || page.Total != 1 || page.Items[0].Source != ledger.SourceAI {
		t.Fatalf("list = %+v err=%v", page, err)
	}
}

func TestDispatcher_InvalidBlockApologizes(t *testing.T) {
	f := setup(t)
	uid := f.user(t, "b@example.com")

	out := f.d.Process(context.Background(), uid, "Sure.\n```json\n{\"action\": \"ADD_TRANSACTION\", \"data\": {\"amount\": \"lots\"}}\n```")
	if out.Applied || !strings.HasSuffix(out.Text, assistant.Apology) || !strings.HasPrefix(out.Text, "Sure.") {
		t.Fatalf("outcome = %+v", out)
	}
	if got := f.balance(t, uid); got != 0 {
		t.Fatalf("balance changed: %d", got)
	}

	out = f.d.Process(context.Background(), uid, "No actions here.")
	if out.Applied || out.Text != "No actions here." {
		t.Fatalf("plain reply = %+v", out)
	}
}

func TestDispatcher_RefusesForeignRecords(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	alice := f.user(t, "alice@example.com")
	mallory := f.user(t, "mallory@example.com")

	if out := f.d.Process(ctx, alice, "```json\n{\"action\":\"ADD_TRANSACTION\",\"data\":{\"amount\":10,\"type\":\"income\"}}\n```"); !out.Applied {
		t.Fatalf("seed add: %+v", out)
	}
	page, err := f.txs.List(ctx, alice, ledger.TxFilter{})
	if err != nil || page.Total != 1 {
		t.Fatalf("list: %+v %v", page, err)
	}
	id := page.Items[0].ID.String()

	for _, block := range []string{
		`{"action":"DELETE_TRANSACTION","data":{"transactionId":"` + id + `"}}`,
		`{"action":"UPDATE_TRANSACTION","data":{"transactionId":"` + id + `","amount":1}}`,
		`{"action":"DELETE_HOLDING","data":{"holdingId":"` + uuid.NewString() + `"}}`,
	} {
		out := f.d.Process(ctx, mallory, "```json\n"+block+"\n```")
		if out.Applied || out.Text != assistant.Apology {
			t.Fatalf("%s: outcome = %+v", block, out)
		}
	}
	if got := f.balance(t, alice); got != 1000 {
		t.Fatalf("alice balance = %d", got)
	}
}

func TestDispatcher_ActionAfterOtherFence(t *testing.T) {
	f := setup(t)
	uid := f.user(t, "fence@example.com")
	table := "This week:\n```\n| day | spent |\n| Mon | 12    |\n```\nAdded your coffee."
	reply := table + "\n```json\n{\"action\":\"ADD_TRANSACTION\",\"data\":{\"amount\":3.5,\"type\":\"expense\",\"categoryName\":\"Food\",\"description\":\"Coffee\"}}\n```"

	out := f.d.Process(context.Background(), uid, reply)
	if !out.Applied || out.Text != table {
		t.Fatalf("outcome = %+v", out)
	}
	if got := f.balance(t, uid); got != -350 {
		t.Fatalf("balance = %d", got)
	}

	formula := "Savings grow as:\n```\nA = P(1 + r)^n\n```\nStart early."
	out = f.d.Process(context.Background(), uid, formula)
	if out.Applied || out.Action != "" || out.Text != formula {
		t.Fatalf("formula reply = %+v", out)
	}
}
