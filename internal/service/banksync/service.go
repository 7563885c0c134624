// Package banksync links a bank-aggregation account and imports its
// transactions into the ledger through the transaction service.
package banksync

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/govalues/decimal"
	"github.com/govalues/money"

	"github.com/tinoosan/fintrack/internal/bank"
	"github.com/tinoosan/fintrack/internal/clock"
	"github.com/tinoosan/fintrack/internal/dictionary"
	"github.com/tinoosan/fintrack/internal/errs"
	"github.com/tinoosan/fintrack/internal/ledger"
	"github.com/tinoosan/fintrack/internal/metrics"
	"github.com/tinoosan/fintrack/internal/service/category"
	"github.com/tinoosan/fintrack/internal/service/transaction"
)

const (
	DefaultDays = 30
	MaxDays     = 730
)

// Repo answers the de-duplication questions.
type Repo interface {
	// ExternalIDExists reports whether the user already has a row imported
	// with the provider id.
	ExternalIDExists(ctx context.Context, userID uuid.UUID, externalID string) (bool, error)
	// SimilarTransactionExists reports whether the user has a row with the
	// same date (day), amount and description.
	SimilarTransactionExists(ctx context.Context, userID uuid.UUID, date time.Time, amount money.Amount, description string) (bool, error)
}

type Users interface {
	Get(ctx context.Context, id uuid.UUID) (ledger.User, error)
	SetBankToken(ctx context.Context, id uuid.UUID, token string) error
}

type Ledger interface {
	Create(ctx context.Context, in transaction.CreateInput) (transaction.Result, error)
}

type CategoryResolver interface {
	FindOrCreate(ctx context.Context, userID uuid.UUID, name string) (ledger.Category, category.Resolution, error)
}

type Normalizer interface {
	Normalize(ctx context.Context, x decimal.Decimal, code string) (money.Amount, error)
}

// Report summarizes one sync.
type Report struct {
	Imported int
	Skipped  int
	Failed   int
	From     time.Time
	To       time.Time
	Balance  money.Amount
}

type Service interface {
	LinkToken(ctx context.Context, userID uuid.UUID) (string, error)
	Exchange(ctx context.Context, userID uuid.UUID, publicToken string) error
	Sync(ctx context.Context, userID uuid.UUID, days int) (Report, error)
}

type Deps struct {
	Aggregator bank.Aggregator
	Repo       Repo
	Users      Users
	Ledger     Ledger
	Categories CategoryResolver
	FX         Normalizer
	Clock      clock.Clock
	Log        *slog.Logger
}

type service struct{ Deps }

func New(d Deps) Service {
	if d.Clock == nil {
		d.Clock = clock.Real{}
	}
	if d.Log == nil {
		d.Log = slog.Default()
	}
	return &service{Deps: d}
}

func (s *service) LinkToken(ctx context.Context, userID uuid.UUID) (string, error) {
	tok, err := s.Aggregator.CreateLinkToken(ctx, userID.String())
	if err != nil {
		return "", errs.Unavailable("bank", err)
	}
	return tok, nil
}

func (s *service) Exchange(ctx context.Context, userID uuid.UUID, publicToken string) error {
	if strings.TrimSpace(publicToken) == "" {
		return errs.Invalidf("public_token is required")
	}
	access, err := s.Aggregator.ExchangePublicToken(ctx, publicToken)
	if err != nil {
		return errs.Unavailable("bank", err)
	}
	return s.Users.SetBankToken(ctx, userID, access)
}

// Sync imports the last days of provider transactions. Positive provider
// amounts are expenses and negative ones income. Rows already present are
// skipped; a row that fails validation is counted and does not stop the run.
func (s *service) Sync(ctx context.Context, userID uuid.UUID, days int) (Report, error) {
	if days == 0 {
		days = DefaultDays
	}
	if days < 0 || days > MaxDays {
		return Report{}, errs.Invalidf("days must be between 1 and %d", MaxDays)
	}
	u, err := s.Users.Get(ctx, userID)
	if err != nil {
		return Report{}, err
	}
	if u.BankToken == "" {
		return Report{}, errs.Invalidf("no bank account linked")
	}
	to := s.Clock.Now()
	from := to.AddDate(0, 0, -days)
	recs, err := s.Aggregator.Transactions(ctx, u.BankToken, from, to)
	if err != nil {
		return Report{}, errs.Unavailable("bank", err)
	}
	rep := Report{From: from, To: to, Balance: u.Balance}
	for _, r := range recs {
		res, outcome, err := s.importOne(ctx, userID, r)
		metrics.BankImports.WithLabelValues(outcome).Inc()
		switch outcome {
		case "imported":
			rep.Imported++
			rep.Balance = res.Balance
		case "skipped":
			rep.Skipped++
		default:
			rep.Failed++
			s.Log.Warn("bank row not imported", "user_id", userID, "external_id", r.ExternalID, "err", err)
			if ctx.Err() != nil {
				return rep, ctx.Err()
			}
		}
	}
	s.Log.Info("bank sync complete", "user_id", userID, "imported", rep.Imported, "skipped", rep.Skipped, "failed", rep.Failed)
	return rep, nil
}

func (s *service) importOne(ctx context.Context, userID uuid.UUID, r bank.Record) (transaction.Result, string, error) {
	if r.Amount.IsZero() {
		return transaction.Result{}, "skipped", nil
	}
	typ := ledger.TxExpense
	if r.Amount.IsNeg() {
		typ = ledger.TxIncome
	}
	mag := r.Amount.Abs()
	desc := strings.TrimSpace(r.Description)
	if rs := []rune(desc); len(rs) > transaction.MaxDescriptionLen {
		desc = string(rs[:transaction.MaxDescriptionLen])
	}

	if r.ExternalID != "" {
		dup, err := s.Repo.ExternalIDExists(ctx, userID, r.ExternalID)
		if err != nil {
			return transaction.Result{}, "failed", err
		}
		if dup {
			return transaction.Result{}, "skipped", nil
		}
	} else {
		amt, err := s.FX.Normalize(ctx, mag, r.Currency)
		if err != nil {
			return transaction.Result{}, "failed", err
		}
		dup, err := s.Repo.SimilarTransactionExists(ctx, userID, r.Date, amt, desc)
		if err != nil {
			return transaction.Result{}, "failed", err
		}
		if dup {
			return transaction.Result{}, "skipped", nil
		}
	}

	name := strings.TrimSpace(r.Category)
	if name == "" {
		name = dictionary.BankImport
	}
	cat, _, err := s.Categories.FindOrCreate(ctx, userID, name)
	if err != nil {
		return transaction.Result{}, "failed", err
	}
	res, err := s.Ledger.Create(ctx, transaction.CreateInput{
		UserID:      userID,
		CategoryID:  cat.ID,
		Type:        typ,
		Amount:      mag,
		Currency:    r.Currency,
		Date:        r.Date,
		Description: desc,
		Source:      ledger.SourceBankStatement,
		ExternalID:  r.ExternalID,
	})
	if errors.Is(err, errs.ErrConflict) {
		// A concurrent sync imported the same provider id first.
		return transaction.Result{}, "skipped", nil
	}
	if err != nil {
		return transaction.Result{}, "failed", err
	}
	return res, "imported", nil
}
