package normalize

import "testing"

func TestCategoryKey(t *testing.T) {
	cases := map[string]string{
		"Food":            "food",
		"  food ":         "food",
		"FOOD":            "food",
		"Eating   Out":    "eating out",
		"\tEating\nout  ": "eating out",
		"":                "",
	}
	for in, want := range cases {
		if got := CategoryKey(in); got != want {
			t.Fatalf("CategoryKey(%q) = %q, want %q", in, got, want)
		}
	}
	if CategoryKey("Food & Drink") == CategoryKey("Food Drink") {
		t.Fatalf("punctuation must not be folded away")
	}
}

func TestCurrencyAndSymbol(t *testing.T) {
	if c, ok := Currency(" eur "); !ok || c != "EUR" {
		t.Fatalf("currency: %q %v", c, ok)
	}
	if _, ok := Currency("EURO"); ok {
		t.Fatalf("4 letters accepted")
	}
	if s, ok := Symbol("brk.b"); !ok || s != "BRK.B" {
		t.Fatalf("symbol: %q %v", s, ok)
	}
	if _, ok := Symbol(""); ok {
		t.Fatalf("empty symbol accepted")
	}
	if !IsColor("#1a2B3c") || IsColor("red") {
		t.Fatalf("color check")
	}
}
