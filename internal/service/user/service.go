// Package user implements registration, login and profile preferences.
package user

import (
	"context"
	"errors"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/govalues/decimal"
	"github.com/govalues/money"

	"github.com/tinoosan/fintrack/internal/auth"
	"github.com/tinoosan/fintrack/internal/clock"
	"github.com/tinoosan/fintrack/internal/errs"
	"github.com/tinoosan/fintrack/internal/ledger"
	"github.com/tinoosan/fintrack/internal/normalize"
)

const MaxNameLen = 100

type Repo interface {
	UserByID(ctx context.Context, id uuid.UUID) (ledger.User, error)
	UserByEmail(ctx context.Context, email string) (ledger.User, error)
}

type Writer interface {
	// CreateUser fails with errs.ErrConflict when the email is taken.
	CreateUser(ctx context.Context, u ledger.User) (ledger.User, error)
	// UpdateProfile persists name, currency and monthly limit. It never
	// touches the balance.
	UpdateProfile(ctx context.Context, u ledger.User) (ledger.User, error)
	// SetBalance overwrites the balance; used for manual adjustments only.
	SetBalance(ctx context.Context, userID uuid.UUID, balance money.Amount) (money.Amount, error)
	SetBankToken(ctx context.Context, userID uuid.UUID, token string) error
}

// Seeder creates per-user defaults after registration.
type Seeder interface {
	SeedDefaults(ctx context.Context, userID uuid.UUID) error
}

// TokenIssuer signs API tokens.
type TokenIssuer interface {
	Issue(userID uuid.UUID, email string) (string, time.Time, error)
}

type RegisterInput struct {
	Email    string
	Password string
	Name     string
	Currency string
}

// ProfilePatch carries editable preferences; nil means unchanged. Amounts are
// in the canonical currency.
type ProfilePatch struct {
	Name         *string
	Currency     *string
	MonthlyLimit *decimal.Decimal
	Balance      *decimal.Decimal
}

// Session is an authenticated user and its bearer token.
type Session struct {
	User      ledger.User
	Token     string
	ExpiresAt time.Time
}

type Service interface {
	Register(ctx context.Context, in RegisterInput) (Session, error)
	Login(ctx context.Context, email, password string) (Session, error)
	Get(ctx context.Context, id uuid.UUID) (ledger.User, error)
	UpdateProfile(ctx context.Context, id uuid.UUID, p ProfilePatch) (ledger.User, error)
	SetBankToken(ctx context.Context, id uuid.UUID, token string) error
}

type service struct {
	repo   Repo
	writer Writer
	seeder Seeder
	tokens TokenIssuer
	clock  clock.Clock
	log    *slog.Logger
}

func New(repo Repo, writer Writer, seeder Seeder, tokens TokenIssuer, clk clock.Clock, log *slog.Logger) Service {
	if clk == nil {
		clk = clock.Real{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &service{repo: repo, writer: writer, seeder: seeder, tokens: tokens, clock: clk, log: log}
}

func validName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errs.Invalidf("name is required")
	}
	if len([]rune(name)) > MaxNameLen {
		return "", errs.Invalidf("name must be at most %d characters", MaxNameLen)
	}
	return name, nil
}

func (s *service) Register(ctx context.Context, in RegisterInput) (Session, error) {
	email := normalize.Email(in.Email)
	if _, err := mail.ParseAddress(email); err != nil || !strings.Contains(email, "@") {
		return Session{}, errs.Invalidf("email is invalid")
	}
	name, err := validName(in.Name)
	if err != nil {
		return Session{}, err
	}
	cur := ledger.BaseCurrency
	if in.Currency != "" {
		c, ok := normalize.Currency(in.Currency)
		if !ok {
			return Session{}, errs.Invalidf("currency must be a 3-letter code")
		}
		cur = c
	}
	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return Session{}, err
	}
	u, err := s.writer.CreateUser(ctx, ledger.User{
		ID:           uuid.New(),
		Email:        email,
		Name:         name,
		PasswordHash: hash,
		Balance:      ledger.Zero(),
		MonthlyLimit: ledger.Zero(),
		Currency:     cur,
		CreatedAt:    s.clock.Now(),
	})
	if errors.Is(err, errs.ErrConflict) {
		return Session{}, errs.Conflictf("email already registered")
	}
	if err != nil {
		return Session{}, err
	}
	if err := s.seeder.SeedDefaults(ctx, u.ID); err != nil {
		// The account exists; missing defaults are recreated on demand by find-or-create.
		s.log.Warn("seed default categories failed", "user_id", u.ID, "err", err)
	}
	s.log.Info("user registered", "user_id", u.ID)
	return s.session(u)
}

func (s *service) session(u ledger.User) (Session, error) {
	tok, exp, err := s.tokens.Issue(u.ID, u.Email)
	if err != nil {
		return Session{}, err
	}
	return Session{User: u, Token: tok, ExpiresAt: exp}, nil
}

func (s *service) Login(ctx context.Context, email, password string) (Session, error) {
	u, err := s.repo.UserByEmail(ctx, normalize.Email(email))
	if errors.Is(err, errs.ErrNotFound) {
		return Session{}, errs.ErrUnauthorized
	}
	if err != nil {
		return Session{}, err
	}
	if err := auth.CheckPassword(u.PasswordHash, password); err != nil {
		return Session{}, errs.ErrUnauthorized
	}
	return s.session(u)
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (ledger.User, error) {
	if id == uuid.Nil {
		return ledger.User{}, errs.ErrInvalid
	}
	return s.repo.UserByID(ctx, id)
}

func (s *service) UpdateProfile(ctx context.Context, id uuid.UUID, p ProfilePatch) (ledger.User, error) {
	u, err := s.Get(ctx, id)
	if err != nil {
		return ledger.User{}, err
	}
	if p.Name != nil {
		if u.Name, err = validName(*p.Name); err != nil {
			return ledger.User{}, err
		}
	}
	if p.Currency != nil {
		c, ok := normalize.Currency(*p.Currency)
		if !ok {
			return ledger.User{}, errs.Invalidf("currency must be a 3-letter code")
		}
		u.Currency = c
	}
	if p.MonthlyLimit != nil {
		if p.MonthlyLimit.IsNeg() {
			return ledger.User{}, errs.Invalidf("monthly_limit must be >= 0")
		}
		if u.MonthlyLimit, err = ledger.AmountFromDecimal(*p.MonthlyLimit); err != nil {
			return ledger.User{}, errs.Invalidf("monthly_limit is out of range")
		}
	}
	var balance *money.Amount
	if p.Balance != nil {
		b, err := ledger.AmountFromDecimal(*p.Balance)
		if err != nil {
			return ledger.User{}, errs.Invalidf("account_balance is out of range")
		}
		balance = &b
	}
	if u, err = s.writer.UpdateProfile(ctx, u); err != nil {
		return ledger.User{}, err
	}
	if balance != nil {
		if u.Balance, err = s.writer.SetBalance(ctx, id, *balance); err != nil {
			return ledger.User{}, err
		}
		s.log.Info("balance adjusted manually", "user_id", id)
	}
	return u, nil
}

func (s *service) SetBankToken(ctx context.Context, id uuid.UUID, token string) error {
	if id == uuid.Nil || strings.TrimSpace(token) == "" {
		return errs.ErrInvalid
	}
	return s.writer.SetBankToken(ctx, id, token)
}
