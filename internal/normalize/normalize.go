// Package normalize holds the canonical forms used for lookups and uniqueness:
// category name keys, currency codes and ticker symbols.
package normalize

import (
	"regexp"
	"strings"
)

var (
	reCurrency = regexp.MustCompile(`^[A-Z]{3}$`)
	reSymbol   = regexp.MustCompile(`^[A-Z0-9][A-Z0-9.\-]{0,11}$`)
	reColor    = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)
)

// CategoryKey returns the lookup key for a category name: trimmed, inner
// whitespace collapsed to one space, lowercased. Two names are the same
// category iff their keys are equal.
func CategoryKey(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

// CategoryName tidies a display name without changing its case.
func CategoryName(name string) string {
	return strings.Join(strings.Fields(name), " ")
}

// Currency uppercases s and reports whether it is a 3-letter code.
func Currency(s string) (string, bool) {
	c := strings.ToUpper(strings.TrimSpace(s))
	return c, reCurrency.MatchString(c)
}

// Symbol uppercases a ticker and reports whether it looks valid.
func Symbol(s string) (string, bool) {
	sym := strings.ToUpper(strings.TrimSpace(s))
	return sym, reSymbol.MatchString(sym)
}

// IsColor returns true if s is a #rrggbb color.
func IsColor(s string) bool { return reColor.MatchString(s) }

// Email lowercases and trims an address.
func Email(s string) string { return strings.ToLower(strings.TrimSpace(s)) }
