// Package config loads process configuration from the environment, with an
// optional .env file for local development.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is the resolved process configuration.
type Config struct {
	Addr     string
	LogLevel string
	// LogFormat is json (default) or text.
	LogFormat string

	DatabaseURL     string
	MongoURI        string
	MongoDatabase   string
	DevSeed         bool
	CORSOrigin      string
	AuthRateLimit   float64
	OutboundTimeout time.Duration

	JWTSecret string
	JWTIssuer string
	TokenTTL  time.Duration

	GeminiAPIKey string
	GeminiModel  string

	PlaidClientID string
	PlaidSecret   string
	PlaidEnv      string

	QuotesAPIKey string
	QuotesURL    string
	RatesURL     string
}

// Load reads .env (if present) and then the environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("config: load .env: %w", err)
	}
	return FromLookup(os.LookupEnv)
}

// FromLookup builds a Config from an environment lookup function.
func FromLookup(lookup func(string) (string, bool)) (Config, error) {
	get := func(key, def string) string {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
		return def
	}
	c := Config{
		Addr:          get("ADDR", ":8080"),
		LogLevel:      get("LOG_LEVEL", "info"),
		LogFormat:     strings.ToLower(get("LOG_FORMAT", "json")),
		DatabaseURL:   get("DATABASE_URL", ""),
		MongoURI:      get("MONGODB_URI", ""),
		MongoDatabase: get("MONGODB_DATABASE", "fintrack"),
		CORSOrigin:    get("CORS_ORIGIN", ""),
		JWTSecret:     get("JWT_SECRET", ""),
		JWTIssuer:     get("JWT_ISSUER", "fintrack"),
		GeminiAPIKey:  get("GEMINI_API_KEY", ""),
		GeminiModel:   get("GEMINI_MODEL", ""),
		PlaidClientID: get("PLAID_CLIENT_ID", ""),
		PlaidSecret:   get("PLAID_SECRET", ""),
		PlaidEnv:      strings.ToLower(get("PLAID_ENV", "sandbox")),
		QuotesAPIKey:  get("QUOTES_API_KEY", ""),
		QuotesURL:     get("QUOTES_URL", ""),
		RatesURL:      get("RATES_URL", "https://open.er-api.com/v6/latest/USD"),
	}
	var err error
	if c.DevSeed, err = parseBool(get("DEV_SEED", "false")); err != nil {
		return Config{}, fmt.Errorf("config: DEV_SEED: %w", err)
	}
	if c.OutboundTimeout, err = time.ParseDuration(get("OUTBOUND_TIMEOUT", "15s")); err != nil {
		return Config{}, fmt.Errorf("config: OUTBOUND_TIMEOUT: %w", err)
	}
	if c.TokenTTL, err = time.ParseDuration(get("TOKEN_TTL", "24h")); err != nil {
		return Config{}, fmt.Errorf("config: TOKEN_TTL: %w", err)
	}
	if c.AuthRateLimit, err = strconv.ParseFloat(get("AUTH_RATE_LIMIT", "5"), 64); err != nil {
		return Config{}, fmt.Errorf("config: AUTH_RATE_LIMIT: %w", err)
	}
	if c.AuthRateLimit <= 0 {
		return Config{}, errors.New("config: AUTH_RATE_LIMIT must be > 0")
	}
	switch c.LogFormat {
	case "json", "text":
	default:
		return Config{}, fmt.Errorf("config: LOG_FORMAT must be json or text, got %q", c.LogFormat)
	}
	switch c.PlaidEnv {
	case "sandbox", "production":
	default:
		return Config{}, fmt.Errorf("config: PLAID_ENV must be sandbox or production, got %q", c.PlaidEnv)
	}
	return c, nil
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off", "":
		return false, nil
	}
	return false, fmt.Errorf("invalid boolean %q", s)
}

// BankEnabled reports whether aggregation credentials are configured.
func (c Config) BankEnabled() bool { return c.PlaidClientID != "" && c.PlaidSecret != "" }
