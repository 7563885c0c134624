package fx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/govalues/decimal"

	"github.com/tinoosan/fintrack/internal/normalize"
)

// Rates maps currency codes to units of that currency per one unit of Base.
type Rates struct {
	Base      string
	Values    map[string]decimal.Decimal
	FetchedAt time.Time
}

// Source fetches a fresh rate table. The base may differ from the canonical currency.
type Source interface {
	FetchRates(ctx context.Context) (Rates, error)
}

// HTTPSource reads rates from an open.er-api.com style endpoint:
// {"result":"success","base_code":"USD","rates":{"EUR":0.92,...}}.
type HTTPSource struct {
	URL    string
	Client *http.Client
}

// NewHTTPSource returns a source with its own timeout-bound client.
func NewHTTPSource(url string, timeout time.Duration) *HTTPSource {
	return &HTTPSource{URL: url, Client: &http.Client{Timeout: timeout}}
}

type erAPIResponse struct {
	Result   string                 `json:"result"`
	BaseCode string                 `json:"base_code"`
	Rates    map[string]json.Number `json:"rates"`
}

func (s *HTTPSource) FetchRates(ctx context.Context) (Rates, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return Rates{}, err
	}
	resp, err := s.Client.Do(req)
	if err != nil {
		return Rates{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Rates{}, fmt.Errorf("rates: unexpected status %d", resp.StatusCode)
	}
	var body erAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Rates{}, fmt.Errorf("rates: decode: %w", err)
	}
	if body.Result != "" && !strings.EqualFold(body.Result, "success") {
		return Rates{}, fmt.Errorf("rates: provider result %q", body.Result)
	}
	base, ok := normalize.Currency(body.BaseCode)
	if !ok {
		return Rates{}, fmt.Errorf("rates: bad base code %q", body.BaseCode)
	}
	out := Rates{Base: base, Values: make(map[string]decimal.Decimal, len(body.Rates))}
	for code, n := range body.Rates {
		c, ok := normalize.Currency(code)
		if !ok {
			continue
		}
		d, err := parseRate(n.String())
		if err != nil {
			continue
		}
		out.Values[c] = d
	}
	return out, nil
}

// parseRate accepts plain and exponent notation.
func parseRate(s string) (decimal.Decimal, error) {
	if d, err := decimal.Parse(s); err == nil {
		return d, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return decimal.NewFromFloat64(f)
}

// StaticSource serves a fixed table; used for development and tests.
type StaticSource struct {
	Base   string
	Values map[string]string
}

func (s StaticSource) FetchRates(context.Context) (Rates, error) {
	out := Rates{Base: s.Base, Values: make(map[string]decimal.Decimal, len(s.Values))}
	for code, v := range s.Values {
		d, err := decimal.Parse(v)
		if err != nil {
			return Rates{}, fmt.Errorf("static rate %s: %w", code, err)
		}
		out.Values[code] = d
	}
	return out, nil
}

// DevRates is a small USD-based table for local runs without a rates API.
func DevRates() StaticSource {
	return StaticSource{Base: "USD", Values: map[string]string{
		"USD": "1", "EUR": "0.92", "GBP": "0.79", "JPY": "151.3", "INR": "83.2",
		"CAD": "1.36", "AUD": "1.52", "CHF": "0.90",
	}}
}
