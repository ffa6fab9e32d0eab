// Package jsonrepair recovers JSON objects from model output that may be
// wrapped in Markdown, use the wrong quotes or be cut off by a token limit.
package jsonrepair

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// SnippetLength is how much of the offending text a ParseError keeps.
const SnippetLength = 500

var (
	ErrNoObject  = errors.New("no JSON object found")
	errNotObject = errors.New("top-level value is not an object")
)

// ParseError reports text no strategy could repair.
type ParseError struct {
	Snippet string
	Cause   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("unparseable JSON response: %v (text: %q)", e.Cause, e.Snippet)
}

func (e *ParseError) Unwrap() error {
	return e.Cause
}

// Strategy turns candidate text into a valid JSON object document.
type Strategy struct {
	Name   string
	Repair func(text string) (string, error)
}

// Pipeline is tried in order; the first strategy that succeeds wins.
var Pipeline = []Strategy{
	{Name: "as-is", Repair: AsIs},
	{Name: "normalize", Repair: Normalize},
	{Name: "close-truncated", Repair: CloseTruncated},
	{Name: "drop-incomplete-member", Repair: DropIncompleteMember},
}

// Repair extracts the first JSON object of raw and returns it as valid JSON,
// along with the name of the strategy that produced it.
func Repair(raw string) (string, string, error) {
	text := Extract(raw)
	if text == "" {
		return "", "", &ParseError{Snippet: snippet(raw), Cause: ErrNoObject}
	}

	var lastErr error
	for _, s := range Pipeline {
		out, err := s.Repair(text)
		if err == nil {
			return out, s.Name, nil
		}
		lastErr = err
	}

	return "", "", &ParseError{Snippet: snippet(text), Cause: lastErr}
}

// Parse repairs raw and decodes the object.
func Parse(raw string) (map[string]any, error) {
	text, _, err := Repair(raw)
	if err != nil {
		return nil, err
	}

	var out map[string]any
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		return nil, &ParseError{Snippet: snippet(text), Cause: err}
	}
	return out, nil
}

// Extract strips Markdown code fences and returns the first {...} span. An
// object that never closes runs to the end of the text.
func Extract(raw string) string {
	raw = stripFences(raw)

	start := strings.IndexByte(raw, '{')
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(raw); i++ {
		c := raw[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return raw[start : i+1]
			}
		}
	}

	return strings.TrimSpace(raw[start:])
}

func stripFences(raw string) string {
	raw = strings.TrimSpace(raw)
	if idx := strings.Index(raw, "```"); idx >= 0 {
		rest := raw[idx+3:]
		// Drop the language tag line.
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 && !strings.Contains(rest[:nl], "{") {
			rest = rest[nl+1:]
		} else {
			rest = strings.TrimPrefix(rest, "json")
		}
		if end := strings.LastIndex(rest, "```"); end >= 0 {
			rest = rest[:end]
		}
		raw = rest
	}
	return strings.TrimSpace(raw)
}

// AsIs accepts text that already is a JSON object.
func AsIs(text string) (string, error) {
	return text, validObject(text)
}

// Normalize replaces typographic quotes, converts single-quoted strings to
// double-quoted ones and removes trailing commas.
func Normalize(text string) (string, error) {
	out := normalize(text)
	return out, validObject(out)
}

// CloseTruncated normalizes text, then closes an unterminated string, drops a
// dangling comma and appends the missing closing brackets.
func CloseTruncated(text string) (string, error) {
	out := closeStructure(normalize(text))
	return out, validObject(out)
}

// DropIncompleteMember cuts the text back to the last complete member, one
// comma at a time, and closes what remains.
func DropIncompleteMember(text string) (string, error) {
	text = normalize(text)

	var err error
	for range 32 {
		cut := lastSeparator(text)
		if cut <= 0 {
			break
		}
		text = text[:cut]
		out := closeStructure(text)
		if err = validObject(out); err == nil {
			return out, nil
		}
	}
	if err == nil {
		err = ErrNoObject
	}
	return "", err
}

func validObject(text string) error {
	var v any
	if err := json.Unmarshal([]byte(text), &v); err != nil {
		return err
	}
	if _, ok := v.(map[string]any); !ok {
		return errNotObject
	}
	return nil
}

var quoteReplacer = strings.NewReplacer(
	"“", `"`, "”", `"`, "„", `"`, "«", `"`, "»", `"`,
	"‘", "'", "’", "'",
)

func normalize(text string) string {
	text = quoteReplacer.Replace(text)

	var b strings.Builder
	b.Grow(len(text))

	inDouble := false
	escaped := false
	for i := 0; i < len(text); i++ {
		c := text[i]

		if inDouble {
			b.WriteByte(c)
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inDouble = false
			}
			continue
		}

		switch c {
		case '"':
			inDouble = true
			b.WriteByte(c)
		case '\'':
			end := singleQuoteEnd(text, i+1)
			content := text[i+1 : end]
			b.WriteByte('"')
			b.WriteString(strings.ReplaceAll(strings.ReplaceAll(content, `\'`, "'"), `"`, `\"`))
			if end < len(text) {
				b.WriteByte('"')
				i = end
			} else {
				i = len(text)
			}
		case ',':
			if next := nextNonSpace(text, i+1); next < len(text) && (text[next] == '}' || text[next] == ']') {
				continue
			}
			b.WriteByte(c)
		default:
			b.WriteByte(c)
		}
	}

	return b.String()
}

func singleQuoteEnd(text string, from int) int {
	for j := from; j < len(text); j++ {
		switch text[j] {
		case '\\':
			j++
		case '\'':
			return j
		}
	}
	return len(text)
}

func nextNonSpace(text string, from int) int {
	for from < len(text) && isSpace(text[from]) {
		from++
	}
	return from
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\n' || c == '\r' || c == '\t'
}

// closeStructure closes an open string, removes a dangling comma or colon
// and appends closers for every open bracket, innermost first.
func closeStructure(text string) string {
	var stack []byte
	inString := false
	escaped := false

	for i := 0; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			inString = true
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		}
	}

	if inString {
		if escaped {
			text = text[:len(text)-1]
		}
		text += `"`
	}

	text = strings.TrimRight(text, " \n\r\t")
	for strings.HasSuffix(text, ",") || strings.HasSuffix(text, ":") {
		if strings.HasSuffix(text, ":") {
			text += "null"
			break
		}
		text = strings.TrimRight(strings.TrimSuffix(text, ","), " \n\r\t")
	}

	var b strings.Builder
	b.WriteString(text)
	for i := len(stack) - 1; i >= 0; i-- {
		b.WriteByte(stack[i])
	}
	return b.String()
}

// lastSeparator returns the index of the last comma outside strings.
func lastSeparator(text string) int {
	last := -1
	inString := false
	escaped := false
	for i := 0; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case ',':
			last = i
		}
	}
	return last
}

func snippet(s string) string {
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if len(runes) > SnippetLength {
		return string(runes[:SnippetLength])
	}
	return s
}
