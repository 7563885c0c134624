// Package assistant implements the finance chat: prompt assembly, the
// soft-fail action dispatcher, insights and natural-language smart-add.
package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	sdec "github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/tinoosan/fintrack/internal/ai"
	"github.com/tinoosan/fintrack/internal/clock"
	"github.com/tinoosan/fintrack/internal/errs"
	"github.com/tinoosan/fintrack/internal/fx"
	"github.com/tinoosan/fintrack/internal/ledger"
	"github.com/tinoosan/fintrack/internal/service/portfolio"
	"github.com/tinoosan/fintrack/internal/service/transaction"
)

const (
	MaxMessageLen  = 2000
	contextTxs     = 20
	contextHistory = 20
	DefaultHistory = 50
)

// ChatStore persists the per-user conversation.
type ChatStore interface {
	AppendMessage(ctx context.Context, m ledger.ChatMessage) error
	// RecentMessages returns the newest limit messages, oldest first.
	RecentMessages(ctx context.Context, userID uuid.UUID, limit int) ([]ledger.ChatMessage, error)
	ClearMessages(ctx context.Context, userID uuid.UUID) error
}

type Transactions interface {
	Ledger
	List(ctx context.Context, userID uuid.UUID, f ledger.TxFilter) (transaction.Page, error)
}

type Categories interface {
	CategoryResolver
	List(ctx context.Context, userID uuid.UUID) ([]ledger.Category, error)
}

type Portfolios interface {
	Holdings
	List(ctx context.Context, userID uuid.UUID) ([]portfolio.Detail, error)
	AddHolding(ctx context.Context, userID, portfolioID uuid.UUID, in portfolio.HoldingInput) (ledger.Holding, error)
}

type Users interface {
	Get(ctx context.Context, id uuid.UUID) (ledger.User, error)
}

type RateTable interface {
	Rates(ctx context.Context) (fx.Rates, error)
}

// Deps wires the collaborators.
type Deps struct {
	Generator    ai.Generator
	Chat         ChatStore
	Transactions Transactions
	Categories   Categories
	Portfolios   Portfolios
	Users        Users
	Rates        RateTable
	Clock        clock.Clock
	Log          *slog.Logger
}

// Reply is the stored assistant message and what its action block did.
type Reply struct {
	Message ledger.ChatMessage
	Action  string
	Applied bool
}

type Service interface {
	Send(ctx context.Context, userID uuid.UUID, message string) (Reply, error)
	History(ctx context.Context, userID uuid.UUID, limit int) ([]ledger.ChatMessage, error)
	Clear(ctx context.Context, userID uuid.UUID) error
	Insights(ctx context.Context, userID uuid.UUID) (string, error)
	SmartAddTransaction(ctx context.Context, userID uuid.UUID, text string) (transaction.Result, error)
	SmartAddHolding(ctx context.Context, userID, portfolioID uuid.UUID, text string) (ledger.Holding, error)
}

type service struct {
	Deps
	disp *Dispatcher
}

func New(d Deps) Service {
	if d.Clock == nil {
		d.Clock = clock.Real{}
	}
	if d.Log == nil {
		d.Log = slog.Default()
	}
	return &service{Deps: d, disp: NewDispatcher(d.Transactions, d.Categories, d.Portfolios, d.Log)}
}

func validText(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", errs.Invalidf("message is required")
	}
	if len([]rune(s)) > MaxMessageLen {
		return "", errs.Invalidf("message must be at most %d characters", MaxMessageLen)
	}
	return s, nil
}

// load gathers the prompt snapshot concurrently. Missing rates are tolerated.
func (s *service) load(ctx context.Context, userID uuid.UUID, withHistory bool) (snapshot, error) {
	var snap snapshot
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		snap.user, err = s.Users.Get(gctx, userID)
		return err
	})
	g.Go(func() error {
		page, err := s.Transactions.List(gctx, userID, ledger.TxFilter{Sort: ledger.SortDate, Limit: contextTxs})
		snap.txs = page.Items
		return err
	})
	g.Go(func() (err error) {
		snap.cats, err = s.Categories.List(gctx, userID)
		return err
	})
	g.Go(func() (err error) {
		snap.portfolios, err = s.Portfolios.List(gctx, userID)
		return err
	})
	g.Go(func() error {
		r, err := s.Rates.Rates(gctx)
		if err != nil {
			s.Log.Warn("rates unavailable for prompt", "err", err)
			return nil
		}
		snap.rates = &r
		return nil
	})
	if withHistory {
		g.Go(func() (err error) {
			snap.history, err = s.Chat.RecentMessages(gctx, userID, contextHistory)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return snapshot{}, err
	}
	return snap, nil
}

func (s *service) generate(ctx context.Context, prompt string) (string, error) {
	out, err := s.Generator.Generate(ctx, prompt)
	if err != nil {
		return "", errs.Unavailable("ai", err)
	}
	return out, nil
}

func (s *service) Send(ctx context.Context, userID uuid.UUID, message string) (Reply, error) {
	message, err := validText(message)
	if err != nil {
		return Reply{}, err
	}
	snap, err := s.load(ctx, userID, true)
	if err != nil {
		return Reply{}, err
	}
	raw, err := s.generate(ctx, chatPrompt(snap, message, s.Clock.Now()))
	if err != nil {
		return Reply{}, err
	}
	userMsg := ledger.ChatMessage{ID: uuid.New(), UserID: userID, Role: ledger.RoleUser, Content: message, CreatedAt: s.Clock.Now()}
	if err := s.Chat.AppendMessage(ctx, userMsg); err != nil {
		return Reply{}, err
	}
	out := s.disp.Process(ctx, userID, raw)

	// The action is committed by now; losing the transcript line must not
	// turn it into an error the client would retry.
	reply := ledger.ChatMessage{ID: uuid.New(), UserID: userID, Role: ledger.RoleAssistant, Content: out.Text, CreatedAt: s.Clock.Now()}
	if err := s.Chat.AppendMessage(ctx, reply); err != nil {
		s.Log.Error("chat reply not stored", "user_id", userID, "applied", out.Applied, "err", err)
	}
	return Reply{Message: reply, Action: out.Action, Applied: out.Applied}, nil
}

func (s *service) History(ctx context.Context, userID uuid.UUID, limit int) ([]ledger.ChatMessage, error) {
	if limit <= 0 || limit > 500 {
		limit = DefaultHistory
	}
	return s.Chat.RecentMessages(ctx, userID, limit)
}

func (s *service) Clear(ctx context.Context, userID uuid.UUID) error {
	return s.Chat.ClearMessages(ctx, userID)
}

// Insights returns free-text advice. Any action block the model emits is
// dropped, never applied.
func (s *service) Insights(ctx context.Context, userID uuid.UUID) (string, error) {
	snap, err := s.load(ctx, userID, false)
	if err != nil {
		return "", err
	}
	raw, err := s.generate(ctx, insightsPrompt(snap, s.Clock.Now()))
	if err != nil {
		return "", err
	}
	return ai.StripActions(raw), nil
}

// SmartAddTransaction turns a sentence into a transaction. Unlike chat, a
// reply that cannot be understood is reported as a validation error.
func (s *service) SmartAddTransaction(ctx context.Context, userID uuid.UUID, text string) (transaction.Result, error) {
	text, err := validText(text)
	if err != nil {
		return transaction.Result{}, err
	}
	cats, err := s.Categories.List(ctx, userID)
	if err != nil {
		return transaction.Result{}, err
	}
	raw, err := s.generate(ctx, smartTransactionPrompt(cats, text, s.Clock.Now()))
	if err != nil {
		return transaction.Result{}, err
	}
	var p payload
	if err := json.Unmarshal([]byte(ai.CleanJSON(raw)), &p); err != nil {
		s.Log.Warn("smart-add reply not JSON", "user_id", userID, "err", err)
		return transaction.Result{}, errs.Invalidf("could not understand the transaction")
	}
	add, err := parseAdd(p)
	if err != nil {
		return transaction.Result{}, errs.Invalidf("could not understand the transaction: %v", err)
	}
	cat, _, err := s.Categories.FindOrCreate(ctx, userID, add.CategoryName)
	if err != nil {
		return transaction.Result{}, err
	}
	return s.Transactions.Create(ctx, transaction.CreateInput{
		UserID:      userID,
		CategoryID:  cat.ID,
		Type:        add.Type,
		Amount:      add.Amount,
		Currency:    add.Currency,
		Date:        add.Date,
		Description: add.Description,
		Source:      ledger.SourceSmartAdd,
	})
}

type holdingPayload struct {
	Symbol   string      `json:"symbol"`
	Quantity *flexNumber `json:"quantity"`
	BuyPrice *flexNumber `json:"buyPrice"`
}

func parseHolding(raw string) (portfolio.HoldingInput, error) {
	var p holdingPayload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return portfolio.HoldingInput{}, err
	}
	if p.Quantity == nil || p.BuyPrice == nil {
		return portfolio.HoldingInput{}, errors.New("quantity and buyPrice are required")
	}
	qty, err := sdec.NewFromString(string(*p.Quantity))
	if err != nil {
		return portfolio.HoldingInput{}, fmt.Errorf("invalid quantity %q", string(*p.Quantity))
	}
	price, err := sdec.NewFromString(strings.TrimPrefix(string(*p.BuyPrice), "$"))
	if err != nil {
		return portfolio.HoldingInput{}, fmt.Errorf("invalid buyPrice %q", string(*p.BuyPrice))
	}
	return portfolio.HoldingInput{Symbol: p.Symbol, Quantity: qty, BuyPrice: price}, nil
}

func (s *service) SmartAddHolding(ctx context.Context, userID, portfolioID uuid.UUID, text string) (ledger.Holding, error) {
	text, err := validText(text)
	if err != nil {
		return ledger.Holding{}, err
	}
	raw, err := s.generate(ctx, smartHoldingPrompt(text))
	if err != nil {
		return ledger.Holding{}, err
	}
	in, err := parseHolding(ai.CleanJSON(raw))
	if err != nil {
		return ledger.Holding{}, errs.Invalidf("could not understand the holding: %v", err)
	}
	return s.Portfolios.AddHolding(ctx, userID, portfolioID, in)
}
