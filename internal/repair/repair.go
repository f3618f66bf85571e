// Package repair recovers structured data from malformed model output.
//
// Generators asked for a JSON envelope routinely return it wrapped in code
// fences, preceded by prose, or truncated mid-field when the token budget is
// hit. Everything here is pure string work, isolated from I/O, so the
// heuristics can be tested and fuzzed directly.
package repair

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Envelope is the structured shape requested from the generator in the
// structured output mode.
type Envelope struct {
	PageTag string `json:"page_type"`
	Summary string `json:"summary"`
	Content string `json:"content"`
}

// ParseEnvelope extracts an Envelope from raw model output, applying
// progressively more aggressive recovery. The boolean is false when even
// repair failed and the raw text was wrapped as a free-text envelope instead
// of being discarded.
func ParseEnvelope(raw string) (Envelope, bool) {
	var env Envelope
	if err := Parse(raw, &env); err != nil {
		return Envelope{Content: strings.TrimSpace(raw)}, false
	}
	return env, true
}

// Parse unmarshals raw model output into v, trying the text as-is, then with
// fences stripped and delimiters sliced, then with best-effort balancing.
func Parse(raw string, v any) error {
	candidate := StripFences(raw)
	if err := json.Unmarshal([]byte(candidate), v); err == nil {
		return nil
	}
	candidate = SliceDelimited(candidate)
	if err := json.Unmarshal([]byte(candidate), v); err == nil {
		return nil
	}
	candidate = Balance(candidate)
	if err := json.Unmarshal([]byte(candidate), v); err != nil {
		return fmt.Errorf("output did not parse after repair: %w", err)
	}
	return nil
}

// StripFences removes surrounding markdown code-fence markup, if present.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// SliceDelimited cuts s down to the region between the first opening and the
// last closing JSON delimiter. When the text already starts with one, or no
// delimiters are found, s is returned unchanged.
func SliceDelimited(s string) string {
	if s == "" || s[0] == '{' || s[0] == '[' {
		return s
	}
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return s
	}
	end := strings.LastIndexAny(s, "}]")
	if end < start {
		// No closer at all; keep the tail so Balance can append them.
		return s[start:]
	}
	return s[start : end+1]
}

// Balance applies best-effort repair to JSON truncated mid-value: close an
// unterminated string, drop a trailing comma, and append whatever closing
// brackets and braces are needed to match the ones left open.
func Balance(s string) string {
	var stack []byte
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{', '[':
			if !inString {
				stack = append(stack, c)
			}
		case '}', ']':
			if !inString && len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		}
	}

	out := strings.TrimRight(s, " \t\r\n")
	if escaped {
		// Cut a dangling escape sequence left by mid-escape truncation.
		out = out[:len(out)-1]
	}
	if inString {
		out += `"`
	}
	out = strings.TrimRight(out, " \t\r\n")
	out = strings.TrimSuffix(out, ",")
	for i := len(stack) - 1; i >= 0; i-- {
		switch stack[i] {
		case '{':
			out += "}"
		case '[':
			out += "]"
		}
	}
	return out
}
