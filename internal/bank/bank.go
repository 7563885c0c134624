// Package bank adapts the bank-aggregation provider (Plaid) to the records
// the bank-sync importer consumes.
package bank

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/govalues/decimal"
	"github.com/plaid/plaid-go/v20/plaid"

	"github.com/tinoosan/fintrack/internal/metrics"
)

// Record is one external transaction. Amount follows the provider's sign
// convention: positive is money out (expense), negative is money in (income).
type Record struct {
	ExternalID  string
	Date        time.Time
	Amount      decimal.Decimal
	Currency    string
	Description string
	Category    string
}

// Aggregator is the bank-aggregation collaborator.
type Aggregator interface {
	CreateLinkToken(ctx context.Context, clientUserID string) (string, error)
	ExchangePublicToken(ctx context.Context, publicToken string) (string, error)
	Transactions(ctx context.Context, accessToken string, from, to time.Time) ([]Record, error)
}

// Plaid implements Aggregator with plaid-go.
type Plaid struct {
	client  *plaid.APIClient
	timeout time.Duration
}

// NewPlaid builds a client for the named environment ("sandbox" or "production").
func NewPlaid(clientID, secret, env string, timeout time.Duration) *Plaid {
	cfg := plaid.NewConfiguration()
	cfg.AddDefaultHeader("PLAID-CLIENT-ID", clientID)
	cfg.AddDefaultHeader("PLAID-SECRET", secret)
	switch strings.ToLower(env) {
	case "production":
		cfg.UseEnvironment(plaid.Production)
	default:
		cfg.UseEnvironment(plaid.Sandbox)
	}
	return &Plaid{client: plaid.NewAPIClient(cfg), timeout: timeout}
}

func observe(op string, start time.Time, err *error) {
	metrics.OutboundDuration.WithLabelValues("bank_"+op, metrics.Result(*err)).Observe(time.Since(start).Seconds())
}

func (p *Plaid) CreateLinkToken(ctx context.Context, clientUserID string) (_ string, err error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	defer observe("link_token", time.Now(), &err)
	req := plaid.NewLinkTokenCreateRequest(
		"Fintrack",
		"en",
		[]plaid.CountryCode{plaid.COUNTRYCODE_US},
		plaid.LinkTokenCreateRequestUser{ClientUserId: clientUserID},
	)
	req.SetProducts([]plaid.Products{plaid.PRODUCTS_TRANSACTIONS})
	resp, _, err := p.client.PlaidApi.LinkTokenCreate(ctx).LinkTokenCreateRequest(*req).Execute()
	if err != nil {
		return "", plaidErr("create link token", err)
	}
	return resp.GetLinkToken(), nil
}

func (p *Plaid) ExchangePublicToken(ctx context.Context, publicToken string) (_ string, err error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	defer observe("exchange", time.Now(), &err)
	req := plaid.NewItemPublicTokenExchangeRequest(publicToken)
	resp, _, err := p.client.PlaidApi.ItemPublicTokenExchange(ctx).ItemPublicTokenExchangeRequest(*req).Execute()
	if err != nil {
		return "", plaidErr("exchange public token", err)
	}
	return resp.GetAccessToken(), nil
}

const pageSize int32 = 250

func (p *Plaid) Transactions(ctx context.Context, accessToken string, from, to time.Time) (_ []Record, err error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	defer observe("transactions", time.Now(), &err)
	out := make([]Record, 0)
	var offset int32
	for {
		req := plaid.NewTransactionsGetRequest(accessToken, from.Format("2006-01-02"), to.Format("2006-01-02"))
		count := pageSize
		off := offset
		req.SetOptions(plaid.TransactionsGetRequestOptions{Count: &count, Offset: &off})
		resp, _, err := p.client.PlaidApi.TransactionsGet(ctx).TransactionsGetRequest(*req).Execute()
		if err != nil {
			return nil, plaidErr("get transactions", err)
		}
		txs := resp.GetTransactions()
		for _, t := range txs {
			rec, err := toRecord(t.GetTransactionId(), t.GetDate(), t.GetAmount(), t.GetIsoCurrencyCode(), t.GetName(), t.GetCategory())
			if err != nil {
				return nil, err
			}
			out = append(out, rec)
		}
		offset += int32(len(txs))
		if len(txs) == 0 || offset >= resp.GetTotalTransactions() {
			break
		}
	}
	return out, nil
}

func toRecord(id, date string, amount float64, currency, name string, categories []string) (Record, error) {
	d, err := time.Parse("2006-01-02", date)
	if err != nil {
		return Record{}, fmt.Errorf("bank: transaction %s: bad date %q", id, date)
	}
	amt, err := decimal.Parse(strconv.FormatFloat(amount, 'f', -1, 64))
	if err != nil {
		return Record{}, fmt.Errorf("bank: transaction %s: bad amount %v", id, amount)
	}
	cat := ""
	if len(categories) > 0 {
		cat = categories[0]
	}
	return Record{
		ExternalID:  id,
		Date:        d.UTC(),
		Amount:      amt,
		Currency:    strings.ToUpper(currency),
		Description: strings.TrimSpace(name),
		Category:    cat,
	}, nil
}

func plaidErr(op string, err error) error {
	if perr, ok := err.(*plaid.GenericOpenAPIError); ok {
		return fmt.Errorf("bank: %s: %s: %s", op, perr.Error(), string(perr.Body()))
	}
	return fmt.Errorf("bank: %s: %w", op, err)
}
