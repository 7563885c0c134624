package v1

import (
	"bytes"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/govalues/decimal"
	"github.com/govalues/money"
	sdec "github.com/shopspring/decimal"

	"github.com/tinoosan/fintrack/internal/ledger"
	"github.com/tinoosan/fintrack/internal/service/assistant"
	"github.com/tinoosan/fintrack/internal/service/banksync"
	"github.com/tinoosan/fintrack/internal/service/portfolio"
	"github.com/tinoosan/fintrack/internal/service/transaction"
	"github.com/tinoosan/fintrack/internal/service/user"
)

// jsonDecimal accepts a JSON number or a numeric string.
type jsonDecimal decimal.Decimal

func (d *jsonDecimal) UnmarshalJSON(b []byte) error {
	raw := string(bytes.Trim(bytes.TrimSpace(b), `"`))
	v, err := decimal.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid decimal %s", b)
	}
	*d = jsonDecimal(v)
	return nil
}

func (d *jsonDecimal) ptr() *decimal.Decimal {
	if d == nil {
		return nil
	}
	v := decimal.Decimal(*d)
	return &v
}

// jsonDate accepts RFC 3339 timestamps or bare YYYY-MM-DD dates (UTC midnight).
type jsonDate time.Time

func (d *jsonDate) UnmarshalJSON(b []byte) error {
	raw := string(bytes.Trim(bytes.TrimSpace(b), `"`))
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			*d = jsonDate(t.UTC())
			return nil
		}
	}
	return fmt.Errorf("invalid date %s", b)
}

func (d *jsonDate) ptr() *time.Time {
	if d == nil {
		return nil
	}
	t := time.Time(*d)
	return &t
}

func amountStr(a money.Amount) string { return a.Decimal().String() }

// --- Auth and profile ---

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
	Currency string `json:"currency,omitempty"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type patchMeRequest struct {
	Name           *string      `json:"name,omitempty"`
	Currency       *string      `json:"currency,omitempty"`
	MonthlyLimit   *jsonDecimal `json:"monthly_limit,omitempty"`
	AccountBalance *jsonDecimal `json:"account_balance,omitempty"`
}

type userResponse struct {
	ID                uuid.UUID `json:"id"`
	Email             string    `json:"email"`
	Name              string    `json:"name"`
	Currency          string    `json:"currency"`
	Balance           string    `json:"balance"`
	BalanceMinor      int64     `json:"balance_minor"`
	MonthlyLimit      string    `json:"monthly_limit"`
	MonthlyLimitMinor int64     `json:"monthly_limit_minor"`
	BankLinked        bool      `json:"bank_linked"`
	CreatedAt         time.Time `json:"created_at"`
}

func toUserResponse(u ledger.User) userResponse {
	return userResponse{
		ID:                u.ID,
		Email:             u.Email,
		Name:              u.Name,
		Currency:          u.Currency,
		Balance:           amountStr(u.Balance),
		BalanceMinor:      ledger.MustMinor(u.Balance),
		MonthlyLimit:      amountStr(u.MonthlyLimit),
		MonthlyLimitMinor: ledger.MustMinor(u.MonthlyLimit),
		BankLinked:        u.BankToken != "",
		CreatedAt:         u.CreatedAt,
	}
}

type sessionResponse struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      userResponse `json:"user"`
}

func toSessionResponse(s user.Session) sessionResponse {
	return sessionResponse{Token: s.Token, ExpiresAt: s.ExpiresAt, User: toUserResponse(s.User)}
}

// --- Categories ---

type categoryRequest struct {
	Name  *string `json:"name,omitempty"`
	Color *string `json:"color,omitempty"`
	Icon  *string `json:"icon,omitempty"`
}

type categoryResponse struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Color string    `json:"color"`
	Icon  string    `json:"icon"`
}

func toCategoryResponse(c ledger.Category) categoryResponse {
	return categoryResponse{ID: c.ID, Name: c.Name, Color: c.Color, Icon: c.Icon}
}

// --- Transactions ---

type postTransactionRequest struct {
	CategoryID  uuid.UUID    `json:"category_id"`
	Type        string       `json:"type"`
	Amount      *jsonDecimal `json:"amount"`
	Currency    string       `json:"currency,omitempty"`
	Date        *jsonDate    `json:"date,omitempty"`
	Description string       `json:"description,omitempty"`
}

type patchTransactionRequest struct {
	CategoryID  *uuid.UUID   `json:"category_id,omitempty"`
	Type        *string      `json:"type,omitempty"`
	Amount      *jsonDecimal `json:"amount,omitempty"`
	Currency    *string      `json:"currency,omitempty"`
	Date        *jsonDate    `json:"date,omitempty"`
	Description *string      `json:"description,omitempty"`
}

type smartAddRequest struct {
	Text string `json:"text"`
}

type transactionResponse struct {
	ID          uuid.UUID     `json:"id"`
	CategoryID  uuid.UUID     `json:"category_id"`
	Type        ledger.TxType `json:"type"`
	Amount      string        `json:"amount"`
	AmountMinor int64         `json:"amount_minor"`
	Currency    string        `json:"currency"`
	Description string        `json:"description"`
	Date        time.Time     `json:"date"`
	Source      ledger.Source `json:"source"`
	ExternalID  string        `json:"external_id,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
}

func toTransactionResponse(t ledger.Transaction) transactionResponse {
	return transactionResponse{
		ID:          t.ID,
		CategoryID:  t.CategoryID,
		Type:        t.Type,
		Amount:      amountStr(t.Amount),
		AmountMinor: ledger.MustMinor(t.Amount),
		Currency:    ledger.BaseCurrency,
		Description: t.Description,
		Date:        t.Date,
		Source:      t.Source,
		ExternalID:  t.ExternalID,
		CreatedAt:   t.CreatedAt,
	}
}

// mutationResponse carries the balance that results from a ledger write.
type mutationResponse struct {
	Transaction  *transactionResponse `json:"transaction,omitempty"`
	Balance      string               `json:"balance"`
	BalanceMinor int64                `json:"balance_minor"`
}

func toMutationResponse(res transaction.Result) mutationResponse {
	tr := toTransactionResponse(res.Transaction)
	return mutationResponse{Transaction: &tr, Balance: amountStr(res.Balance), BalanceMinor: ledger.MustMinor(res.Balance)}
}

// listTransactionsQuery holds validated query params for GET /transactions.
type listTransactionsQuery struct {
	Filter ledger.TxFilter
}

type listTransactionsResponse struct {
	Items  []transactionResponse `json:"items"`
	Total  int                   `json:"total"`
	Limit  int                   `json:"limit"`
	Offset int                   `json:"offset"`
}

type categoryTotalResponse struct {
	CategoryID uuid.UUID `json:"category_id"`
	Total      string    `json:"total"`
	TotalMinor int64     `json:"total_minor"`
}

type summaryResponse struct {
	Month        string                  `json:"month"`
	Income       string                  `json:"income"`
	Expense      string                  `json:"expense"`
	Investment   string                  `json:"investment"`
	Net          string                  `json:"net"`
	NetMinor     int64                   `json:"net_minor"`
	Balance      string                  `json:"balance"`
	BalanceMinor int64                   `json:"balance_minor"`
	MonthlyLimit string                  `json:"monthly_limit"`
	Remaining    string                  `json:"remaining"`
	Count        int                     `json:"count"`
	ByCategory   []categoryTotalResponse `json:"by_category"`
}

func toSummaryResponse(s transaction.Summary) summaryResponse {
	out := summaryResponse{
		Month:        s.Month.Format("2006-01"),
		Income:       amountStr(s.Income),
		Expense:      amountStr(s.Expense),
		Investment:   amountStr(s.Investment),
		Net:          amountStr(s.Net),
		NetMinor:     ledger.MustMinor(s.Net),
		Balance:      amountStr(s.Balance),
		BalanceMinor: ledger.MustMinor(s.Balance),
		MonthlyLimit: amountStr(s.MonthlyLimit),
		Remaining:    amountStr(s.Remaining),
		Count:        s.Count,
		ByCategory:   make([]categoryTotalResponse, 0, len(s.ByCategory)),
	}
	for _, c := range s.ByCategory {
		out.ByCategory = append(out.ByCategory, categoryTotalResponse{CategoryID: c.CategoryID, Total: amountStr(c.Total), TotalMinor: ledger.MustMinor(c.Total)})
	}
	return out
}

// --- Portfolios ---

type portfolioRequest struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

type holdingRequest struct {
	Symbol       string        `json:"symbol"`
	Quantity     sdec.Decimal  `json:"quantity"`
	BuyPrice     sdec.Decimal  `json:"buy_price"`
	CurrentPrice *sdec.Decimal `json:"current_price,omitempty"`
}

type holdingPatchRequest struct {
	Quantity     *sdec.Decimal `json:"quantity,omitempty"`
	BuyPrice     *sdec.Decimal `json:"buy_price,omitempty"`
	CurrentPrice *sdec.Decimal `json:"current_price,omitempty"`
}

type holdingResponse struct {
	ID           uuid.UUID `json:"id"`
	PortfolioID  uuid.UUID `json:"portfolio_id"`
	Symbol       string    `json:"symbol"`
	Quantity     string    `json:"quantity"`
	BuyPrice     string    `json:"buy_price"`
	CurrentPrice string    `json:"current_price"`
	Value        string    `json:"value"`
	Cost         string    `json:"cost"`
	Gain         string    `json:"gain"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func toHoldingResponse(h ledger.Holding) holdingResponse {
	return holdingResponse{
		ID:           h.ID,
		PortfolioID:  h.PortfolioID,
		Symbol:       h.Symbol,
		Quantity:     h.Quantity.String(),
		BuyPrice:     h.BuyPrice.StringFixed(2),
		CurrentPrice: h.CurrentPrice.StringFixed(2),
		Value:        h.Value().StringFixed(2),
		Cost:         h.Cost().StringFixed(2),
		Gain:         h.Gain().StringFixed(2),
		UpdatedAt:    h.UpdatedAt,
	}
}

type portfolioResponse struct {
	ID          uuid.UUID         `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	CreatedAt   time.Time         `json:"created_at"`
	Value       string            `json:"value"`
	Cost        string            `json:"cost"`
	Gain        string            `json:"gain"`
	Holdings    []holdingResponse `json:"holdings"`
}

func toPortfolioResponse(d portfolio.Detail) portfolioResponse {
	out := portfolioResponse{
		ID:          d.Portfolio.ID,
		Name:        d.Portfolio.Name,
		Description: d.Portfolio.Description,
		CreatedAt:   d.Portfolio.CreatedAt,
		Value:       d.Value.StringFixed(2),
		Cost:        d.Cost.StringFixed(2),
		Gain:        d.Gain.StringFixed(2),
		Holdings:    make([]holdingResponse, 0, len(d.Holdings)),
	}
	for _, h := range d.Holdings {
		out.Holdings = append(out.Holdings, toHoldingResponse(h))
	}
	return out
}

type refreshResponse struct {
	Portfolio portfolioResponse `json:"portfolio"`
	Updated   int               `json:"updated"`
	Failed    []string          `json:"failed"`
}

type pricePointResponse struct {
	Price string    `json:"price"`
	At    time.Time `json:"at"`
}

// --- Goals ---

type goalRequest struct {
	Name          *string      `json:"name,omitempty"`
	Target        *jsonDecimal `json:"target,omitempty"`
	Deadline      *jsonDate    `json:"deadline,omitempty"`
	ClearDeadline bool         `json:"clear_deadline,omitempty"`
}

type depositRequest struct {
	Amount *jsonDecimal `json:"amount"`
}

type goalResponse struct {
	ID           uuid.UUID  `json:"id"`
	Name         string     `json:"name"`
	Target       string     `json:"target"`
	TargetMinor  int64      `json:"target_minor"`
	Current      string     `json:"current"`
	CurrentMinor int64      `json:"current_minor"`
	Deadline     *time.Time `json:"deadline,omitempty"`
	Completed    bool       `json:"completed"`
	CreatedAt    time.Time  `json:"created_at"`
}

func toGoalResponse(g ledger.Goal) goalResponse {
	return goalResponse{
		ID:           g.ID,
		Name:         g.Name,
		Target:       amountStr(g.Target),
		TargetMinor:  ledger.MustMinor(g.Target),
		Current:      amountStr(g.Current),
		CurrentMinor: ledger.MustMinor(g.Current),
		Deadline:     g.Deadline,
		Completed:    g.Completed(),
		CreatedAt:    g.CreatedAt,
	}
}

// --- Assistant ---

type chatRequest struct {
	Message string `json:"message"`
}

type chatMessageResponse struct {
	ID        uuid.UUID       `json:"id"`
	Role      ledger.ChatRole `json:"role"`
	Content   string          `json:"content"`
	CreatedAt time.Time       `json:"created_at"`
}

func toChatMessageResponse(m ledger.ChatMessage) chatMessageResponse {
	return chatMessageResponse{ID: m.ID, Role: m.Role, Content: m.Content, CreatedAt: m.CreatedAt}
}

type chatReplyResponse struct {
	Message chatMessageResponse `json:"message"`
	Action  string              `json:"action,omitempty"`
	Applied bool                `json:"applied"`
}

func toChatReplyResponse(r assistant.Reply) chatReplyResponse {
	return chatReplyResponse{Message: toChatMessageResponse(r.Message), Action: r.Action, Applied: r.Applied}
}

// --- Bank ---

type exchangeRequest struct {
	PublicToken string `json:"public_token"`
}

type syncRequest struct {
	Days int `json:"days,omitempty"`
}

type syncResponse struct {
	Imported     int       `json:"imported"`
	Skipped      int       `json:"skipped"`
	Failed       int       `json:"failed"`
	From         time.Time `json:"from"`
	To           time.Time `json:"to"`
	Balance      string    `json:"balance"`
	BalanceMinor int64     `json:"balance_minor"`
}

func toSyncResponse(r banksync.Report) syncResponse {
	return syncResponse{
		Imported:     r.Imported,
		Skipped:      r.Skipped,
		Failed:       r.Failed,
		From:         r.From,
		To:           r.To,
		Balance:      amountStr(r.Balance),
		BalanceMinor: ledger.MustMinor(r.Balance),
	}
}
