// Package quotes fetches current stock prices for portfolio valuation.
package quotes

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	sdec "github.com/shopspring/decimal"

	"github.com/tinoosan/fintrack/internal/metrics"
)

// Quote is the latest price for a symbol.
type Quote struct {
	Symbol string
	Price  sdec.Decimal
	At     time.Time
}

// Provider returns a quote for a ticker symbol.
type Provider interface {
	Quote(ctx context.Context, symbol string) (Quote, error)
}

// FinnhubClient talks to a Finnhub-compatible /quote endpoint.
type FinnhubClient struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
}

// NewFinnhub returns a client bound by timeout.
func NewFinnhub(baseURL, apiKey string, timeout time.Duration) *FinnhubClient {
	if baseURL == "" {
		baseURL = "https://finnhub.io/api/v1"
	}
	return &FinnhubClient{BaseURL: baseURL, APIKey: apiKey, Client: &http.Client{Timeout: timeout}}
}

type finnhubQuote struct {
	Current   json.Number `json:"c"`
	Timestamp int64       `json:"t"`
}

func (c *FinnhubClient) Quote(ctx context.Context, symbol string) (q Quote, err error) {
	start := time.Now()
	defer func() {
		metrics.OutboundDuration.WithLabelValues("quotes", metrics.Result(err)).Observe(time.Since(start).Seconds())
	}()
	u := c.BaseURL + "/quote?symbol=" + url.QueryEscape(symbol) + "&token=" + url.QueryEscape(c.APIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Quote{}, err
	}
	resp, err := c.Client.Do(req)
	if err != nil {
		return Quote{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Quote{}, fmt.Errorf("quotes: %s: unexpected status %d", symbol, resp.StatusCode)
	}
	var body finnhubQuote
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Quote{}, fmt.Errorf("quotes: decode %s: %w", symbol, err)
	}
	price, err := sdec.NewFromString(body.Current.String())
	if err != nil {
		return Quote{}, fmt.Errorf("quotes: %s: bad price %q", symbol, body.Current)
	}
	// Finnhub answers unknown symbols with c=0.
	if !price.IsPositive() {
		return Quote{}, fmt.Errorf("quotes: no price for %s", symbol)
	}
	at := time.Now().UTC()
	if body.Timestamp > 0 {
		at = time.Unix(body.Timestamp, 0).UTC()
	}
	return Quote{Symbol: symbol, Price: price, At: at}, nil
}

// Static serves fixed prices; used for development and tests.
type Static map[string]string

func (s Static) Quote(_ context.Context, symbol string) (Quote, error) {
	v, ok := s[symbol]
	if !ok {
		return Quote{}, fmt.Errorf("quotes: no price for %s", symbol)
	}
	p, err := sdec.NewFromString(v)
	if err != nil {
		return Quote{}, err
	}
	return Quote{Symbol: symbol, Price: p, At: time.Now().UTC()}, nil
}
