// Package dictionary holds the curated default categories and their styling.
package dictionary

import (
	"github.com/tinoosan/fintrack/internal/ledger"
	"github.com/tinoosan/fintrack/internal/normalize"
)

// DefaultColor is used for categories created without a known style.
const DefaultColor = "#64748b"

// DefaultIcon is used for categories created without a known style.
const DefaultIcon = "tag"

// BankImport names the category for imported rows the provider did not classify.
const BankImport = "Bank Import"

// CategoryDef is a curated category with its presentation hints.
type CategoryDef struct {
	Name  string        `json:"name"`
	Color string        `json:"color"`
	Icon  string        `json:"icon"`
	Kind  ledger.TxType `json:"kind"`
}

var curated = []CategoryDef{
	{Name: "Salary", Color: "#16a34a", Icon: "briefcase", Kind: ledger.TxIncome},
	{Name: "Freelance", Color: "#22c55e", Icon: "laptop", Kind: ledger.TxIncome},
	{Name: "Food", Color: "#f97316", Icon: "utensils", Kind: ledger.TxExpense},
	{Name: "Groceries", Color: "#eab308", Icon: "shopping-basket", Kind: ledger.TxExpense},
	{Name: "Transport", Color: "#0ea5e9", Icon: "bus", Kind: ledger.TxExpense},
	{Name: "Housing", Color: "#8b5cf6", Icon: "home", Kind: ledger.TxExpense},
	{Name: "Utilities", Color: "#6366f1", Icon: "bolt", Kind: ledger.TxExpense},
	{Name: "Entertainment", Color: "#ec4899", Icon: "film", Kind: ledger.TxExpense},
	{Name: "Health", Color: "#ef4444", Icon: "heart", Kind: ledger.TxExpense},
	{Name: "Shopping", Color: "#f43f5e", Icon: "bag", Kind: ledger.TxExpense},
	{Name: "Investments", Color: "#14b8a6", Icon: "chart-line", Kind: ledger.TxInvestment},
	{Name: "Other", Color: DefaultColor, Icon: DefaultIcon, Kind: ledger.TxExpense},
}

var byKey = func() map[string]CategoryDef {
	m := make(map[string]CategoryDef, len(curated)+1)
	for _, c := range curated {
		m[normalize.CategoryKey(c.Name)] = c
	}
	m[normalize.CategoryKey(BankImport)] = CategoryDef{Name: BankImport, Color: "#0f766e", Icon: "bank", Kind: ledger.TxExpense}
	return m
}()

// Defaults returns the categories seeded for a new user.
func Defaults() []CategoryDef {
	out := make([]CategoryDef, len(curated))
	copy(out, curated)
	return out
}

// StyleFor returns the color and icon for a category name, falling back to
// the defaults for names outside the curated list.
func StyleFor(name string) (color, icon string) {
	if def, ok := byKey[normalize.CategoryKey(name)]; ok {
		return def.Color, def.Icon
	}
	return DefaultColor, DefaultIcon
}
