// Package goal implements savings goals. Progress only moves forward through
// deposits and is independent of the transaction ledger.
package goal

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/govalues/decimal"
	"github.com/govalues/money"

	"github.com/tinoosan/fintrack/internal/clock"
	"github.com/tinoosan/fintrack/internal/errs"
	"github.com/tinoosan/fintrack/internal/ledger"
)

type Repo interface {
	ListGoals(ctx context.Context, userID uuid.UUID) ([]ledger.Goal, error)
	GoalByID(ctx context.Context, id uuid.UUID) (ledger.Goal, error)
}

type Writer interface {
	CreateGoal(ctx context.Context, g ledger.Goal) (ledger.Goal, error)
	// UpdateGoal persists name, target and deadline; Current is untouched.
	UpdateGoal(ctx context.Context, g ledger.Goal) (ledger.Goal, error)
	DeleteGoal(ctx context.Context, id uuid.UUID) error
	// AddGoalProgress atomically adds delta to the goal's current amount.
	AddGoalProgress(ctx context.Context, id uuid.UUID, delta money.Amount) (ledger.Goal, error)
}

type Input struct {
	Name     *string
	Target   *decimal.Decimal
	Deadline *time.Time
	// ClearDeadline removes an existing deadline on update.
	ClearDeadline bool
}

type Service interface {
	List(ctx context.Context, userID uuid.UUID) ([]ledger.Goal, error)
	Create(ctx context.Context, userID uuid.UUID, in Input) (ledger.Goal, error)
	Update(ctx context.Context, userID, id uuid.UUID, in Input) (ledger.Goal, error)
	Delete(ctx context.Context, userID, id uuid.UUID) error
	Deposit(ctx context.Context, userID, id uuid.UUID, amount decimal.Decimal) (ledger.Goal, error)
}

type service struct {
	repo   Repo
	writer Writer
	clock  clock.Clock
}

func New(repo Repo, writer Writer, clk clock.Clock) Service {
	if clk == nil {
		clk = clock.Real{}
	}
	return &service{repo: repo, writer: writer, clock: clk}
}

func (s *service) owned(ctx context.Context, userID, id uuid.UUID) (ledger.Goal, error) {
	g, err := s.repo.GoalByID(ctx, id)
	if err != nil {
		return ledger.Goal{}, err
	}
	if g.UserID != userID {
		return ledger.Goal{}, errs.Forbiddenf("goal not authorized")
	}
	return g, nil
}

func positive(d decimal.Decimal, field string) (money.Amount, error) {
	if !d.IsPos() {
		return money.Amount{}, errs.Invalidf("%s must be > 0", field)
	}
	a, err := ledger.AmountFromDecimal(d)
	if err != nil || !a.IsPos() {
		return money.Amount{}, errs.Invalidf("%s must be > 0", field)
	}
	return a, nil
}

func (s *service) List(ctx context.Context, userID uuid.UUID) ([]ledger.Goal, error) {
	return s.repo.ListGoals(ctx, userID)
}

func (s *service) Create(ctx context.Context, userID uuid.UUID, in Input) (ledger.Goal, error) {
	if userID == uuid.Nil {
		return ledger.Goal{}, errs.ErrInvalid
	}
	if in.Name == nil || strings.TrimSpace(*in.Name) == "" {
		return ledger.Goal{}, errs.Invalidf("name is required")
	}
	if in.Target == nil {
		return ledger.Goal{}, errs.Invalidf("target is required")
	}
	target, err := positive(*in.Target, "target")
	if err != nil {
		return ledger.Goal{}, err
	}
	g := ledger.Goal{
		ID:        uuid.New(),
		UserID:    userID,
		Name:      strings.TrimSpace(*in.Name),
		Target:    target,
		Current:   ledger.Zero(),
		CreatedAt: s.clock.Now(),
	}
	if in.Deadline != nil {
		d := in.Deadline.UTC()
		g.Deadline = &d
	}
	return s.writer.CreateGoal(ctx, g)
}

func (s *service) Update(ctx context.Context, userID, id uuid.UUID, in Input) (ledger.Goal, error) {
	g, err := s.owned(ctx, userID, id)
	if err != nil {
		return ledger.Goal{}, err
	}
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return ledger.Goal{}, errs.Invalidf("name is required")
		}
		g.Name = name
	}
	if in.Target != nil {
		if g.Target, err = positive(*in.Target, "target"); err != nil {
			return ledger.Goal{}, err
		}
	}
	switch {
	case in.ClearDeadline:
		g.Deadline = nil
	case in.Deadline != nil:
		d := in.Deadline.UTC()
		g.Deadline = &d
	}
	return s.writer.UpdateGoal(ctx, g)
}

func (s *service) Delete(ctx context.Context, userID, id uuid.UUID) error {
	if _, err := s.owned(ctx, userID, id); err != nil {
		return err
	}
	return s.writer.DeleteGoal(ctx, id)
}

// Deposit adds a positive amount to the goal's progress.
func (s *service) Deposit(ctx context.Context, userID, id uuid.UUID, amount decimal.Decimal) (ledger.Goal, error) {
	delta, err := positive(amount, "amount")
	if err != nil {
		return ledger.Goal{}, err
	}
	if _, err := s.owned(ctx, userID, id); err != nil {
		return ledger.Goal{}, err
	}
	return s.writer.AddGoalProgress(ctx, id, delta)
}
