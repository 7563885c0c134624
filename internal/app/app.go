// Package app assembles services over a store and exposes them as the
// dependencies of the HTTP layer.
package app

import (
	"log/slog"

	"github.com/tinoosan/fintrack/internal/ai"
	"github.com/tinoosan/fintrack/internal/auth"
	"github.com/tinoosan/fintrack/internal/bank"
	"github.com/tinoosan/fintrack/internal/clock"
	"github.com/tinoosan/fintrack/internal/fx"
	v1 "github.com/tinoosan/fintrack/internal/httpapi/v1"
	"github.com/tinoosan/fintrack/internal/quotes"
	"github.com/tinoosan/fintrack/internal/service/assistant"
	"github.com/tinoosan/fintrack/internal/service/banksync"
	"github.com/tinoosan/fintrack/internal/service/category"
	"github.com/tinoosan/fintrack/internal/service/goal"
	"github.com/tinoosan/fintrack/internal/service/portfolio"
	"github.com/tinoosan/fintrack/internal/service/transaction"
	"github.com/tinoosan/fintrack/internal/service/user"
)

// Store is everything the services read and write. Both the memory and the
// postgres stores satisfy it.
type Store interface {
	user.Repo
	user.Writer
	category.Repo
	category.Writer
	transaction.Repo
	transaction.Writer
	portfolio.Repo
	portfolio.Writer
	goal.Repo
	goal.Writer
	banksync.Repo
	assistant.ChatStore
	v1.ReadyChecker
}

// Components are the external collaborators. Chat defaults to Store and
// Generator to ai.Disabled; a nil Aggregator leaves bank sync disabled.
type Components struct {
	Store      Store
	Chat       assistant.ChatStore
	Generator  ai.Generator
	Aggregator bank.Aggregator
	Quotes     quotes.Provider
	FX         *fx.Service
	Tokens     *auth.Issuer
	Clock      clock.Clock
	Log        *slog.Logger
}

// Deps wires every service and returns the HTTP dependencies. Transport
// settings (CORS, rate limits, extra readiness checks) are left to the caller.
func Deps(c Components) v1.Deps {
	if c.Clock == nil {
		c.Clock = clock.Real{}
	}
	if c.Log == nil {
		c.Log = slog.Default()
	}
	if c.Chat == nil {
		c.Chat = c.Store
	}
	if c.Generator == nil {
		c.Generator = ai.Disabled{}
	}

	cats := category.New(c.Store, c.Store, c.Log.With("svc", "category"))
	txs := transaction.New(c.Store, c.Store, cats, c.FX, c.Clock, c.Log.With("svc", "transaction"))
	users := user.New(c.Store, c.Store, cats, c.Tokens, c.Clock, c.Log.With("svc", "user"))
	ports := portfolio.New(c.Store, c.Store, c.Quotes, c.Clock, c.Log.With("svc", "portfolio"))
	goals := goal.New(c.Store, c.Store, c.Clock)
	asst := assistant.New(assistant.Deps{
		Generator:    c.Generator,
		Chat:         c.Chat,
		Transactions: txs,
		Categories:   cats,
		Portfolios:   ports,
		Users:        users,
		Rates:        c.FX,
		Clock:        c.Clock,
		Log:          c.Log.With("svc", "assistant"),
	})
	var bankSvc banksync.Service
	if c.Aggregator != nil {
		bankSvc = banksync.New(banksync.Deps{
			Aggregator: c.Aggregator,
			Repo:       c.Store,
			Users:      users,
			Ledger:     txs,
			Categories: cats,
			FX:         c.FX,
			Clock:      c.Clock,
			Log:        c.Log.With("svc", "banksync"),
		})
	}
	return v1.Deps{
		Users:        users,
		Categories:   cats,
		Transactions: txs,
		Portfolios:   ports,
		Goals:        goals,
		Assistant:    asst,
		Bank:         bankSvc,
		FX:           c.FX,
		Tokens:       c.Tokens,
		Ready:        []v1.ReadyChecker{c.Store},
		Log:          c.Log,
	}
}
