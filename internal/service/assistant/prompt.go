package assistant

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tinoosan/fintrack/internal/fx"
	"github.com/tinoosan/fintrack/internal/ledger"
	"github.com/tinoosan/fintrack/internal/service/portfolio"
)

// majorCurrencies are the rates quoted to the model; the full table is noise.
var majorCurrencies = []string{"EUR", "GBP", "JPY", "CAD", "AUD", "CHF", "CNY", "INR", "MXN"}

// snapshot is the account state embedded in prompts.
type snapshot struct {
	user       ledger.User
	txs        []ledger.Transaction
	cats       []ledger.Category
	portfolios []portfolio.Detail
	rates      *fx.Rates
	history    []ledger.ChatMessage
}

func (s snapshot) categoryName(id uuid.UUID) string {
	for _, c := range s.cats {
		if c.ID == id {
			return c.Name
		}
	}
	return "Uncategorized"
}

func (s snapshot) write(b *strings.Builder, now time.Time) {
	fmt.Fprintf(b, "Today is %s. All amounts are in %s.\n", now.Format("2006-01-02"), ledger.BaseCurrency)
	fmt.Fprintf(b, "User: %s. Balance: %s. Monthly limit: %s. Preferred currency: %s.\n\n",
		s.user.Name, s.user.Balance.Decimal(), s.user.MonthlyLimit.Decimal(), s.user.Currency)

	b.WriteString("Categories:\n")
	for _, c := range s.cats {
		fmt.Fprintf(b, "- %s\n", c.Name)
	}

	b.WriteString("\nRecent transactions (id | date | type | amount | category | description):\n")
	if len(s.txs) == 0 {
		b.WriteString("- none\n")
	}
	for _, t := range s.txs {
		fmt.Fprintf(b, "- %s | %s | %s | %s | %s | %s\n",
			t.ID, t.Date.Format("2006-01-02"), t.Type, t.Amount.Decimal(), s.categoryName(t.CategoryID), t.Description)
	}

	b.WriteString("\nHoldings (id | portfolio | symbol | quantity | buy price | current price):\n")
	n := 0
	for _, p := range s.portfolios {
		for _, h := range p.Holdings {
			n++
			fmt.Fprintf(b, "- %s | %s | %s | %s | %s | %s\n",
				h.ID, p.Portfolio.Name, h.Symbol, h.Quantity, h.BuyPrice, h.CurrentPrice)
		}
	}
	if n == 0 {
		b.WriteString("- none\n")
	}

	if s.rates != nil {
		fmt.Fprintf(b, "\nExchange rates per 1 %s:", s.rates.Base)
		codes := make([]string, 0, len(majorCurrencies))
		for _, c := range majorCurrencies {
			if _, ok := s.rates.Values[c]; ok {
				codes = append(codes, c)
			}
		}
		sort.Strings(codes)
		for _, c := range codes {
			fmt.Fprintf(b, " %s=%s", c, s.rates.Values[c])
		}
		b.WriteString("\n")
	}
}

const actionRules = `You may change the user's data by appending exactly one fenced JSON block
to your answer. Use it only when the user clearly asks for a change.
Allowed actions:
` + "```json" + `
{"action":"ADD_TRANSACTION","data":{"amount":12.5,"type":"expense","description":"coffee","categoryName":"Food","date":"2024-01-31","currency":"USD"}}
{"action":"UPDATE_TRANSACTION","data":{"transactionId":"<id>","amount":20,"type":"expense","description":"...","categoryName":"..."}}
{"action":"DELETE_TRANSACTION","data":{"transactionId":"<id>"}}
{"action":"DELETE_HOLDING","data":{"holdingId":"<id>"}}
` + "```" + `
Amounts are positive numbers; type is income, expense or investment.
Only reference ids listed above. Never include more than one block.
`

func chatPrompt(s snapshot, message string, now time.Time) string {
	var b strings.Builder
	b.WriteString("You are a concise personal finance assistant.\n\n")
	s.write(&b, now)
	b.WriteString("\n")
	b.WriteString(actionRules)
	if len(s.history) > 0 {
		b.WriteString("\nConversation so far:\n")
		for _, m := range s.history {
			fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Content)
		}
	}
	fmt.Fprintf(&b, "\nuser: %s\nassistant:", message)
	return b.String()
}

func insightsPrompt(s snapshot, now time.Time) string {
	var b strings.Builder
	b.WriteString("You are a personal finance analyst. Give 3 to 5 short, specific insights about\n")
	b.WriteString("the user's spending and investments with one actionable suggestion each.\n")
	b.WriteString("Answer in plain text bullet points. Do not include JSON or code blocks.\n\n")
	s.write(&b, now)
	return b.String()
}

func smartTransactionPrompt(cats []ledger.Category, text string, now time.Time) string {
	var b strings.Builder
	b.WriteString("Extract one financial transaction from the text below.\n")
	fmt.Fprintf(&b, "Today is %s.\n", now.Format("2006-01-02"))
	b.WriteString("Prefer one of these categories when it fits: ")
	names := make([]string, 0, len(cats))
	for _, c := range cats {
		names = append(names, c.Name)
	}
	b.WriteString(strings.Join(names, ", "))
	b.WriteString(".\n\nReturn ONLY raw JSON with these fields:\n")
	b.WriteString(`{"amount": number > 0, "type": "income"|"expense"|"investment", "description": string, "categoryName": string, "date": "YYYY-MM-DD", "currency": "3-letter code"}`)
	b.WriteString("\nDo NOT use Markdown.\n\nText: ")
	b.WriteString(text)
	return b.String()
}

func smartHoldingPrompt(text string) string {
	var b strings.Builder
	b.WriteString("Extract one stock holding from the text below.\n")
	b.WriteString("Return ONLY raw JSON with these fields:\n")
	b.WriteString(`{"symbol": ticker string, "quantity": number > 0, "buyPrice": number >= 0}`)
	b.WriteString("\nDo NOT use Markdown.\n\nText: ")
	b.WriteString(text)
	return b.String()
}
