package config

import (
	"testing"
	"time"
)

func lookupFrom(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestFromLookup_Defaults(t *testing.T) {
	c, err := FromLookup(lookupFrom(nil))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Addr != ":8080" || c.LogFormat != "json" || c.PlaidEnv != "sandbox" {
		t.Fatalf("unexpected defaults: %+v", c)
	}
	if c.OutboundTimeout != 15*time.Second || c.TokenTTL != 24*time.Hour {
		t.Fatalf("unexpected durations: %v %v", c.OutboundTimeout, c.TokenTTL)
	}
	if c.DevSeed || c.BankEnabled() {
		t.Fatalf("dev seed and bank should default off")
	}
}

func TestFromLookup_Overrides(t *testing.T) {
	c, err := FromLookup(lookupFrom(map[string]string{
		"ADDR":             ":9000",
		"DEV_SEED":         "yes",
		"OUTBOUND_TIMEOUT": "3s",
		"PLAID_CLIENT_ID":  "id",
		"PLAID_SECRET":     "secret",
		"LOG_FORMAT":       "TEXT",
	}))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Addr != ":9000" || !c.DevSeed || c.OutboundTimeout != 3*time.Second || !c.BankEnabled() || c.LogFormat != "text" {
		t.Fatalf("overrides not applied: %+v", c)
	}
}

func TestFromLookup_Invalid(t *testing.T) {
	cases := []map[string]string{
		{"OUTBOUND_TIMEOUT": "soon"},
		{"DEV_SEED": "maybe"},
		{"AUTH_RATE_LIMIT": "0"},
		{"LOG_FORMAT": "xml"},
		{"PLAID_ENV": "development"},
	}
	for _, env := range cases {
		if _, err := FromLookup(lookupFrom(env)); err == nil {
			t.Fatalf("expected error for %v", env)
		}
	}
}
