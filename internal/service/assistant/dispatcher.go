package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/govalues/money"

	"github.com/tinoosan/fintrack/internal/ai"
	"github.com/tinoosan/fintrack/internal/errs"
	"github.com/tinoosan/fintrack/internal/ledger"
	"github.com/tinoosan/fintrack/internal/metrics"
	"github.com/tinoosan/fintrack/internal/service/category"
	"github.com/tinoosan/fintrack/internal/service/transaction"
)

// Apology is appended to the reply when a requested change was not applied.
const Apology = "Sorry, I couldn't apply that change to your account."

// errNotOwned is the single outcome for ids that are missing or belong to
// someone else, so the two cases are indistinguishable to the model.
var errNotOwned = errors.New("referenced record not found for user")

// Ledger is the subset of the transaction service the dispatcher drives.
type Ledger interface {
	Create(ctx context.Context, in transaction.CreateInput) (transaction.Result, error)
	Update(ctx context.Context, userID, id uuid.UUID, p transaction.Patch) (transaction.Result, error)
	Delete(ctx context.Context, userID, id uuid.UUID) (money.Amount, error)
	Get(ctx context.Context, userID, id uuid.UUID) (ledger.Transaction, error)
}

// CategoryResolver finds or creates a category by name.
type CategoryResolver interface {
	FindOrCreate(ctx context.Context, userID uuid.UUID, name string) (ledger.Category, category.Resolution, error)
}

// Holdings resolves and removes holdings for their owner.
type Holdings interface {
	OwnedHolding(ctx context.Context, userID, holdingID uuid.UUID) (ledger.Holding, error)
	DeleteHolding(ctx context.Context, userID, holdingID uuid.UUID) error
}

// Outcome describes what a dispatch did with a reply.
type Outcome struct {
	// Text is the reply with the action block removed, plus Apology on failure.
	Text    string
	Action  string
	Applied bool
}

// Dispatcher applies at most one action block from model output through the
// same services a human request uses. It never returns an error: every
// failure degrades to Apology.
type Dispatcher struct {
	ledger   Ledger
	cats     CategoryResolver
	holdings Holdings
	log      *slog.Logger
}

func NewDispatcher(l Ledger, cats CategoryResolver, holdings Holdings, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{ledger: l, cats: cats, holdings: holdings, log: log}
}

// Process extracts, validates and applies the first action block in reply.
// Fenced blocks that carry no action are kept as part of the text.
func (d *Dispatcher) Process(ctx context.Context, userID uuid.UUID, reply string) Outcome {
	block, rest, ok := ai.ExtractAction(reply)
	if !ok {
		return Outcome{Text: rest}
	}
	act, err := ParseAction(ai.CleanJSON(block))
	if err != nil {
		d.log.Warn("assistant action rejected", "user_id", userID, "err", err)
		metrics.AIActions.WithLabelValues("unknown", "invalid").Inc()
		return Outcome{Text: withApology(rest)}
	}
	if err := d.Apply(ctx, userID, act); err != nil {
		outcome := "failed"
		if errors.Is(err, errNotOwned) {
			outcome = "not_owned"
		}
		d.log.Warn("assistant action not applied", "user_id", userID, "action", act.Kind(), "err", err)
		metrics.AIActions.WithLabelValues(act.Kind(), outcome).Inc()
		return Outcome{Text: withApology(rest), Action: act.Kind()}
	}
	metrics.AIActions.WithLabelValues(act.Kind(), "applied").Inc()
	return Outcome{Text: rest, Action: act.Kind(), Applied: true}
}

func withApology(text string) string {
	if text == "" {
		return Apology
	}
	return text + "\n\n" + Apology
}

// Apply performs one validated action for userID. Every referenced id is
// re-checked against userID before any write.
func (d *Dispatcher) Apply(ctx context.Context, userID uuid.UUID, act Action) error {
	switch a := act.(type) {
	case AddTransaction:
		cat, _, err := d.cats.FindOrCreate(ctx, userID, a.CategoryName)
		if err != nil {
			return fmt.Errorf("resolve category: %w", err)
		}
		_, err = d.ledger.Create(ctx, transaction.CreateInput{
			UserID:      userID,
			CategoryID:  cat.ID,
			Type:        a.Type,
			Amount:      a.Amount,
			Currency:    a.Currency,
			Date:        a.Date,
			Description: a.Description,
			Source:      ledger.SourceAI,
		})
		return err
	case UpdateTransaction:
		if err := d.ownsTransaction(ctx, userID, a.ID); err != nil {
			return err
		}
		p := transaction.Patch{Amount: a.Amount, Type: a.Type, Description: a.Description, Currency: a.Currency, Date: a.Date}
		if a.CategoryName != nil {
			cat, _, err := d.cats.FindOrCreate(ctx, userID, *a.CategoryName)
			if err != nil {
				return fmt.Errorf("resolve category: %w", err)
			}
			p.CategoryID = &cat.ID
		}
		_, err := d.ledger.Update(ctx, userID, a.ID, p)
		return err
	case DeleteTransaction:
		if err := d.ownsTransaction(ctx, userID, a.ID); err != nil {
			return err
		}
		_, err := d.ledger.Delete(ctx, userID, a.ID)
		return err
	case DeleteHolding:
		if _, err := d.holdings.OwnedHolding(ctx, userID, a.ID); err != nil {
			if isOwnership(err) {
				return errNotOwned
			}
			return err
		}
		return d.holdings.DeleteHolding(ctx, userID, a.ID)
	default:
		return fmt.Errorf("unsupported action %T", act)
	}
}

func (d *Dispatcher) ownsTransaction(ctx context.Context, userID, id uuid.UUID) error {
	if _, err := d.ledger.Get(ctx, userID, id); err != nil {
		if isOwnership(err) {
			return errNotOwned
		}
		return err
	}
	return nil
}

func isOwnership(err error) bool {
	return errors.Is(err, errs.ErrNotFound) || errors.Is(err, errs.ErrForbidden)
}
