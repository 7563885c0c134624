package ai

import (
	"encoding/json"
	"strings"
)

const fence = "```"

// span is one complete fenced block: text[start:end] including both fences.
type span struct {
	start, end int
	body       string
}

// nextBlock finds the first complete fenced block at or after from.
func nextBlock(text string, from int) (span, bool) {
	open := strings.Index(text[from:], fence)
	if open < 0 {
		return span{}, false
	}
	open += from
	bodyStart := open + len(fence)
	// Skip an info string such as "json" up to the end of the opening line.
	if nl := strings.IndexByte(text[bodyStart:], '\n'); nl >= 0 {
		info := strings.TrimSpace(text[bodyStart : bodyStart+nl])
		if info == "" || isInfoString(info) {
			bodyStart += nl + 1
		}
	}
	closeRel := strings.Index(text[bodyStart:], fence)
	if closeRel < 0 {
		return span{}, false
	}
	return span{
		start: open,
		end:   bodyStart + closeRel + len(fence),
		body:  strings.TrimSpace(text[bodyStart : bodyStart+closeRel]),
	}, true
}

// blocks returns every complete fenced block in text, in order.
func blocks(text string) []span {
	var out []span
	for pos := 0; ; {
		b, ok := nextBlock(text, pos)
		if !ok {
			return out
		}
		out = append(out, b)
		pos = b.end
	}
}

// ExtractBlock finds the first fenced code block in text (``` or ```json) and
// returns its body together with the text that remains once the block is
// removed. ok is false when text holds no complete fenced block.
func ExtractBlock(text string) (block, rest string, ok bool) {
	b, ok := nextBlock(text, 0)
	if !ok {
		return "", strings.TrimSpace(text), false
	}
	return b.body, cut(text, b), true
}

// ExtractAction finds the first fenced block holding an action object and
// removes only that block. Other fenced content such as tables stays in rest
// untouched. ok is false when no block looks like an action.
func ExtractAction(text string) (block, rest string, ok bool) {
	for _, b := range blocks(text) {
		if isAction(b.body) {
			return b.body, cut(text, b), true
		}
	}
	return "", strings.TrimSpace(text), false
}

// StripActions removes every action block from text.
func StripActions(text string) string {
	for {
		_, rest, ok := ExtractAction(text)
		if !ok {
			return rest
		}
		text = rest
	}
}

// isAction reports whether body is a JSON object with an "action" key.
// Malformed JSON that still names an action counts, so the caller can reject
// it instead of echoing it back as prose.
func isAction(body string) bool {
	s := strings.TrimSpace(body)
	if !strings.HasPrefix(s, "{") {
		return false
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(s), &obj); err == nil {
		_, ok := obj["action"]
		return ok
	}
	return strings.Contains(s, `"action"`)
}

func isInfoString(s string) bool {
	for _, r := range s {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '-' || r == '_') {
			return false
		}
	}
	return true
}

// cut removes b from text and joins the prose on either side with one blank
// line. Text outside the seam is left as is.
func cut(text string, b span) string {
	before := strings.TrimRight(text[:b.start], " \t\r\n")
	after := strings.TrimLeft(text[b.end:], " \t\r\n")
	switch {
	case before == "":
		return strings.TrimSpace(after)
	case after == "":
		return strings.TrimSpace(before)
	}
	return strings.TrimSpace(before + "\n\n" + after)
}

// CleanJSON strips Markdown fences and any prose around a single JSON object.
func CleanJSON(raw string) string {
	s := strings.TrimSpace(raw)
	if block, _, ok := ExtractBlock(s); ok {
		s = block
	}
	if start := strings.Index(s, "{"); start != -1 {
		if end := strings.LastIndex(s, "}"); end > start {
			s = s[start : end+1]
		}
	}
	return strings.TrimSpace(s)
}
