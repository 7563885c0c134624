package ai

import "testing"

func TestExtractBlock(t *testing.T) {
	text := "Sure, I've added that for you.\n\n```json\n{\"action\":\"ADD_TRANSACTION\",\"data\":{\"amount\":800}}\n```\n\nAnything else?"
	block, rest, ok := ExtractBlock(text)
	if !ok {
		t.Fatalf("expected a block")
	}
	if block != `{"action":"ADD_TRANSACTION","data":{"amount":800}}` {
		t.Fatalf("unexpected block: %q", block)
	}
	if rest != "Sure, I've added that for you.\n\nAnything else?" {
		t.Fatalf("unexpected rest: %q", rest)
	}
}

func TestExtractBlock_BareFenceAndOnlyFirst(t *testing.T) {
	text := "a\n```\n{\"x\":1}\n```\nb\n```json\n{\"y\":2}\n```"
	block, rest, ok := ExtractBlock(text)
	if !ok || block != `{"x":1}` {
		t.Fatalf("expected first block, got %q ok=%v", block, ok)
	}
	if _, _, again := ExtractBlock(rest); !again {
		t.Fatalf("second block should remain in the text")
	}
}

func TestExtractBlock_None(t *testing.T) {
	if _, rest, ok := ExtractBlock("  just advice  "); ok || rest != "just advice" {
		t.Fatalf("unexpected: %q %v", rest, ok)
	}
	if _, _, ok := ExtractBlock("```json\n{\"unterminated\": true}"); ok {
		t.Fatalf("unterminated fence must not match")
	}
}

func TestCleanJSON(t *testing.T) {
	cases := map[string]string{
		"```json\n{\"a\":1}\n```":          `{"a":1}`,
		"Here you go: {\"a\":1} thanks":    `{"a":1}`,
		"{\"a\":{\"b\":2}}":                `{"a":{"b":2}}`,
	}
	for in, want := range cases {
		if got := CleanJSON(in); got != want {
			t.Fatalf("CleanJSON(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestExtractAction_SkipsNonActionFences(t *testing.T) {
	text := "Spending so far:\n```\n| week | total |\n| 1    | 40    |\n```\nLogged the coffee.\n```json\n{\"action\":\"ADD_TRANSACTION\",\"data\":{\"amount\":4}}\n```"
	block, rest, ok := ExtractAction(text)
	if !ok || block != `{"action":"ADD_TRANSACTION","data":{"amount":4}}` {
		t.Fatalf("expected the action block, got %q ok=%v", block, ok)
	}
	want := "Spending so far:\n```\n| week | total |\n| 1    | 40    |\n```\nLogged the coffee."
	if rest != want {
		t.Fatalf("rest = %q, want %q", rest, want)
	}
}

func TestExtractAction_FormulaOnly(t *testing.T) {
	text := "Compound growth:\n```\nA = P(1 + r)^n\n```\n\n\nKeep saving."
	if _, rest, ok := ExtractAction(text); ok || rest != text {
		t.Fatalf("formula must stay: ok=%v rest=%q", ok, rest)
	}
	if _, _, ok := ExtractAction("```json\n{\"action\": \"ADD_TRANSACTION\", \"data\": \n```"); !ok {
		t.Fatalf("malformed action JSON should still be picked up")
	}
	if _, _, ok := ExtractAction("```json\n{\"total\": 12}\n```"); ok {
		t.Fatalf("plain JSON is not an action")
	}
}

func TestStripActions(t *testing.T) {
	text := "A\n```json\n{\"action\":\"X\"}\n```\nB\n```\ncode\n```\nC\n```json\n{\"action\":\"Y\"}\n```"
	if got, want := StripActions(text), "A\n\nB\n```\ncode\n```\nC"; got != want {
		t.Fatalf("StripActions = %q, want %q", got, want)
	}
}
