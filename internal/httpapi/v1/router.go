// Package v1 wires the HTTP surface of the finance service.
// It keeps handlers thin, delegating business rules to the service layer.
package v1

import (
	"log/slog"
	"net/http"

	chi "github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/tinoosan/fintrack/internal/fx"
	"github.com/tinoosan/fintrack/internal/service/assistant"
	"github.com/tinoosan/fintrack/internal/service/banksync"
	"github.com/tinoosan/fintrack/internal/service/category"
	"github.com/tinoosan/fintrack/internal/service/goal"
	"github.com/tinoosan/fintrack/internal/service/portfolio"
	"github.com/tinoosan/fintrack/internal/service/transaction"
	"github.com/tinoosan/fintrack/internal/service/user"
)

// Deps are the collaborators the HTTP layer delegates to. Bank may be nil
// when no aggregator is configured; the bank routes then answer 503.
type Deps struct {
	Users        user.Service
	Categories   category.Service
	Transactions transaction.Service
	Portfolios   portfolio.Service
	Goals        goal.Service
	Assistant    assistant.Service
	Bank         banksync.Service
	FX           *fx.Service
	Tokens       TokenVerifier
	// Ready lists stores pinged by /readyz.
	Ready []ReadyChecker
	Log   *slog.Logger
	// CORSOrigin is the allowed browser origin; empty disables CORS headers.
	CORSOrigin string
	// AuthRateLimit is requests per second per client IP on /v1/auth; 0 disables it.
	AuthRateLimit float64
}

// Server wires handlers and middleware using Chi.
type Server struct {
	Deps
	log *slog.Logger
	rt  *chi.Mux
}

// New constructs the HTTP server with routes and middleware.
// The logger is used by basic request/response logging and panic recovery.
func New(d Deps) *Server {
	if d.Log == nil {
		d.Log = slog.Default()
	}
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(requestLogger(d.Log))
	r.Use(recoverer(d.Log))
	r.Use(metricsMiddleware)
	if d.CORSOrigin != "" {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   []string{d.CORSOrigin},
			AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-Id", "Idempotency-Key"},
			ExposedHeaders:   []string{"X-Request-Id"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	s := &Server{Deps: d, log: d.Log, rt: r}
	s.routes()
	return s
}

// Handler exposes the configured http.Handler.
func (s *Server) Handler() http.Handler { return s.rt }

// routes declares the public HTTP API endpoints and attaches any per-route middleware.
func (s *Server) routes() {
	// Health and metrics (unversioned)
	s.rt.Get("/healthz", s.healthz)
	s.rt.Get("/readyz", s.readyz)
	s.rt.Method(http.MethodGet, "/metrics", metricsHandler())

	s.rt.Route("/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(rateLimit(s.AuthRateLimit))
			r.With(s.validateRegister()).Post("/auth/register", s.register)
			r.With(s.validateLogin()).Post("/auth/login", s.login)
		})
		r.Get("/dictionary/categories", s.getCategoryDictionary)
		r.Get("/rates", s.getRates)
		r.Get("/convert", s.convert)

		r.Group(func(r chi.Router) {
			r.Use(s.authenticate)

			r.Get("/me", s.getMe)
			r.Patch("/me", s.patchMe)

			r.Get("/categories", s.listCategories)
			r.Post("/categories", s.postCategory)
			r.Patch("/categories/{id}", s.patchCategory)
			r.Delete("/categories/{id}", s.deleteCategory)

			r.With(s.validateListTransactions()).Get("/transactions", s.listTransactions)
			r.With(s.validatePostTransaction()).Post("/transactions", s.postTransaction)
			r.Post("/transactions/smart-add", s.smartAddTransaction)
			r.Get("/transactions/{id}", s.getTransaction)
			r.Patch("/transactions/{id}", s.patchTransaction)
			r.Delete("/transactions/{id}", s.deleteTransaction)
			r.Get("/summary", s.getSummary)

			r.Get("/portfolios", s.listPortfolios)
			r.Post("/portfolios", s.postPortfolio)
			r.Get("/portfolios/{id}", s.getPortfolio)
			r.Patch("/portfolios/{id}", s.patchPortfolio)
			r.Delete("/portfolios/{id}", s.deletePortfolio)
			r.Post("/portfolios/{id}/holdings", s.postHolding)
			r.Post("/portfolios/{id}/holdings/smart-add", s.smartAddHolding)
			r.Post("/portfolios/{id}/refresh", s.refreshPortfolio)
			r.Patch("/holdings/{id}", s.patchHolding)
			r.Delete("/holdings/{id}", s.deleteHolding)
			r.Get("/prices/{symbol}", s.getPriceHistory)

			r.Get("/goals", s.listGoals)
			r.Post("/goals", s.postGoal)
			r.Patch("/goals/{id}", s.patchGoal)
			r.Delete("/goals/{id}", s.deleteGoal)
			r.Post("/goals/{id}/deposit", s.depositGoal)

			r.Get("/chat", s.getChat)
			r.Post("/chat", s.postChat)
			r.Delete("/chat", s.deleteChat)
			r.Get("/insights", s.getInsights)

			r.Post("/bank/link-token", s.bankLinkToken)
			r.Post("/bank/exchange", s.bankExchange)
			r.Post("/bank/sync", s.bankSync)
		})
	})
}
