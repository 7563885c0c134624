package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/tinoosan/fintrack/internal/ai"
	"github.com/tinoosan/fintrack/internal/app"
	"github.com/tinoosan/fintrack/internal/auth"
	"github.com/tinoosan/fintrack/internal/bank"
	"github.com/tinoosan/fintrack/internal/clock"
	"github.com/tinoosan/fintrack/internal/config"
	"github.com/tinoosan/fintrack/internal/errs"
	"github.com/tinoosan/fintrack/internal/fx"
	httpapi "github.com/tinoosan/fintrack/internal/httpapi/v1"
	"github.com/tinoosan/fintrack/internal/quotes"
	"github.com/tinoosan/fintrack/internal/service/user"
	"github.com/tinoosan/fintrack/internal/storage/memory"
	"github.com/tinoosan/fintrack/internal/storage/mongochat"
	pgstore "github.com/tinoosan/fintrack/internal/storage/postgres"
)

// devSecret signs tokens when JWT_SECRET is unset. Never use it outside local runs.
const devSecret = "fintrack-dev-secret-change-me"

const (
	devEmail    = "demo@fintrack.local"
	devPassword = "demo-password"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	// Logger (slog to stdout). Level via LOG_LEVEL; format via LOG_FORMAT (json|text, default json)
	logger := buildLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	clk := clock.Real{}
	var closers []func()
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}()

	var store app.Store
	if cfg.DatabaseURL != "" {
		// Use Postgres store when DATABASE_URL is provided
		pg, err := pgstore.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("connect to postgres: %w", err)
		}
		closers = append(closers, pg.Close)
		store = pg
		logger.Info("storage backend: postgres")
	} else {
		store = memory.New()
		logger.Info("storage backend: memory")
	}

	comps := app.Components{Store: store, Clock: clk, Log: logger}
	var extraReady []httpapi.ReadyChecker

	if cfg.MongoURI != "" {
		chat, err := mongochat.Open(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return err
		}
		closers = append(closers, func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := chat.Close(ctx); err != nil {
				logger.Error("mongo disconnect", "err", err)
			}
		})
		comps.Chat = chat
		extraReady = append(extraReady, chat)
		logger.Info("chat history backend: mongodb", "database", cfg.MongoDatabase)
	}

	var src fx.Source = fx.DevRates()
	if cfg.RatesURL != "" {
		src = fx.NewHTTPSource(cfg.RatesURL, cfg.OutboundTimeout)
	}
	comps.FX = fx.New(src, clk, logger.With("svc", "fx"))
	if err := comps.FX.Refresh(ctx); err != nil {
		logger.Warn("initial exchange-rate refresh failed; will retry on demand", "err", err)
	}

	if cfg.QuotesAPIKey != "" {
		comps.Quotes = quotes.NewFinnhub(cfg.QuotesURL, cfg.QuotesAPIKey, cfg.OutboundTimeout)
	} else {
		comps.Quotes = quotes.Static{}
		logger.Warn("QUOTES_API_KEY not set; portfolio refresh will report every symbol as failed")
	}

	if cfg.GeminiAPIKey != "" {
		gen, err := ai.NewGemini(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, cfg.OutboundTimeout)
		if err != nil {
			return err
		}
		comps.Generator = gen
	} else {
		comps.Generator = ai.Disabled{}
		logger.Warn("GEMINI_API_KEY not set; assistant endpoints will answer 502")
	}

	if cfg.BankEnabled() {
		comps.Aggregator = bank.NewPlaid(cfg.PlaidClientID, cfg.PlaidSecret, cfg.PlaidEnv, cfg.OutboundTimeout)
		logger.Info("bank aggregation enabled", "env", cfg.PlaidEnv)
	}

	secret := cfg.JWTSecret
	if secret == "" {
		secret = devSecret
		logger.Warn("JWT_SECRET not set; using the development signing secret")
	}
	tokens, err := auth.NewIssuer(secret, cfg.JWTIssuer, cfg.TokenTTL, clk)
	if err != nil {
		return err
	}
	comps.Tokens = tokens

	deps := app.Deps(comps)
	deps.Ready = append(deps.Ready, extraReady...)
	deps.CORSOrigin = cfg.CORSOrigin
	deps.AuthRateLimit = cfg.AuthRateLimit

	// Optional dev seed for compose/local
	if cfg.DevSeed {
		sess, err := devSeed(ctx, deps.Users)
		if err != nil {
			logger.Error("dev seed failed", "err", err)
		} else {
			logger.Info("DEV seed", "user_id", sess.User.ID.String(), "email", sess.User.Email)
			printDevSeedBanner(sess)
		}
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpapi.New(deps).Handler(),
		ReadTimeout:       5 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		// Assistant calls wait on the generative service.
		WriteTimeout: cfg.OutboundTimeout + 10*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("fintrack service listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctxShutdown); err != nil {
			logger.Error("server shutdown error", "err", err)
		}
		return nil
	case err := <-errCh:
		return err
	}
}

// devSeed registers the demo user, or logs in when it already exists.
func devSeed(ctx context.Context, users user.Service) (user.Session, error) {
	sess, err := users.Register(ctx, user.RegisterInput{Email: devEmail, Password: devPassword, Name: "Demo User", Currency: "USD"})
	if errors.Is(err, errs.ErrConflict) {
		return users.Login(ctx, devEmail, devPassword)
	}
	return sess, err
}

// printDevSeedBanner prints a simple banner to stdout for easy copy/paste of credentials
func printDevSeedBanner(sess user.Session) {
	fmt.Println("==================== DEV SEED ====================")
	fmt.Printf("user_id:  %s\n", sess.User.ID.String())
	fmt.Printf("email:    %s\n", devEmail)
	fmt.Printf("password: %s\n", devPassword)
	fmt.Printf("token:    %s\n", sess.Token)
	fmt.Println("==================================================")
}

// parseLogLevel maps env values to slog.Leveler
func parseLogLevel(s string) slog.Leveler {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error", "err":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func buildLogger(level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(level)}
	if strings.EqualFold(format, "text") {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	// default to JSON
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}
