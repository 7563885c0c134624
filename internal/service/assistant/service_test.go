package assistant_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
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

type fixedGenerator string

func (g fixedGenerator) Generate(context.Context, string) (string, error) { return string(g), nil }

type storeUsers struct{ *memory.Store }

func (u storeUsers) Get(ctx context.Context, id uuid.UUID) (ledger.User, error) {
	return u.UserByID(ctx, id)
}

// flakyChat fails every append after the first okAppends.
type flakyChat struct {
	*memory.Store
	okAppends int
}

func (c *flakyChat) AppendMessage(ctx context.Context, m ledger.ChatMessage) error {
	if c.okAppends == 0 {
		return errors.New("chat store down")
	}
	c.okAppends--
	return c.Store.AppendMessage(ctx, m)
}

func newAssistant(f fixture, chat assistant.ChatStore, reply string) assistant.Service {
	clk := clock.NewManual(time.Date(2024, 5, 15, 12, 0, 0, 0, time.UTC))
	cats := category.New(f.store, f.store, nil)
	return assistant.New(assistant.Deps{
		Generator:    fixedGenerator(reply),
		Chat:         chat,
		Transactions: f.txs,
		Categories:   cats,
		Portfolios:   portfolio.New(f.store, f.store, quotes.Static{}, clk, nil),
		Users:        storeUsers{f.store},
		Rates:        fx.New(fx.DevRates(), clk, nil),
		Clock:        clk,
		Log:          slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

const addCoffee = "Logged it.\n```json\n{\"action\":\"ADD_TRANSACTION\",\"data\":{\"amount\":4,\"type\":\"expense\",\"categoryName\":\"Food\",\"description\":\"Coffee\"}}\n```"

func TestSend_ReplyStoreFailureKeepsAppliedAction(t *testing.T) {
	f := setup(t)
	uid := f.user(t, "chat@example.com")
	svc := newAssistant(f, &flakyChat{Store: f.store, okAppends: 1}, addCoffee)

	r, err := svc.Send(context.Background(), uid, "I bought a coffee for 4")
	if err != nil {
		t.Fatalf("send returned %v after the action was committed", err)
	}
	if !r.Applied || r.Message.Content != "Logged it." {
		t.Fatalf("reply = %+v", r)
	}
	if got := f.balance(t, uid); got != -400 {
		t.Fatalf("balance = %d", got)
	}
}

func TestSend_UserMessageStoreFailureAppliesNothing(t *testing.T) {
	f := setup(t)
	uid := f.user(t, "chat2@example.com")
	svc := newAssistant(f, &flakyChat{Store: f.store}, addCoffee)

	if _, err := svc.Send(context.Background(), uid, "I bought a coffee for 4"); err == nil {
		t.Fatalf("expected error when the transcript cannot be written")
	}
	if got := f.balance(t, uid); got != 0 {
		t.Fatalf("balance = %d, action applied without a transcript", got)
	}
}

func TestInsights_DropsOnlyActionBlocks(t *testing.T) {
	f := setup(t)
	uid := f.user(t, "ins@example.com")
	raw := "Your spending by week:\n```\nwk1 | 40\nwk2 | 55\n```\nTry a budget.\n```json\n{\"action\":\"ADD_TRANSACTION\",\"data\":{\"amount\":1,\"type\":\"expense\"}}\n```"
	svc := newAssistant(f, f.store, raw)

	got, err := svc.Insights(context.Background(), uid)
	if err != nil {
		t.Fatalf("insights: %v", err)
	}
	want := "Your spending by week:\n```\nwk1 | 40\nwk2 | 55\n```\nTry a budget."
	if got != want {
		t.Fatalf("insights = %q, want %q", got, want)
	}
	if bal := f.balance(t, uid); bal != 0 {
		t.Fatalf("insights applied an action: balance %d", bal)
	}
}
