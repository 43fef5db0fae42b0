// Package parse recovers structured data from free-form agent transcripts.
// Agent replies embed a JSON object inside prose; this is best-effort
// recovery, not a strict parser.
package parse

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ErrInvalidAgentResponse reports that no parseable JSON was found in an
// agent reply. Callers recover by substituting a default structure; this
// error never crosses the orchestrator boundary.
var ErrInvalidAgentResponse = errors.New("invalid agent response")

// jsonCandidate matches balanced-brace substrings with at most one level of
// nested braces. Deeper nesting produces truncated candidates, which fail to
// parse and are skipped.
var jsonCandidate = regexp.MustCompile(`\{[^{}]*(?:\{[^{}]*\}[^{}]*)*\}`)

// numericRun matches digit runs with thousands/decimal separators.
var numericRun = regexp.MustCompile(`[\d\s,.]+`)

// ExtractJSON scans raw text for JSON-like substrings and returns the first
// one that parses, in order of appearance. If no substring parses, the whole
// text is tried as JSON. Returns ErrInvalidAgentResponse when nothing parses.
func ExtractJSON(raw string) (map[string]interface{}, error) {
	for _, candidate := range jsonCandidate.FindAllString(raw, -1) {
		var out map[string]interface{}
		if err := json.Unmarshal([]byte(candidate), &out); err == nil {
			return out, nil
		}
	}

	var out map[string]interface{}
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAgentResponse, err)
	}
	return out, nil
}

// ExtractJSONInto is ExtractJSON decoding into a typed destination.
func ExtractJSONInto(raw string, dst interface{}) error {
	for _, candidate := range jsonCandidate.FindAllString(raw, -1) {
		if err := json.Unmarshal([]byte(candidate), dst); err == nil {
			return nil
		}
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), dst); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidAgentResponse, err)
	}
	return nil
}

// ExtractNumeric pulls a float out of loosely formatted text. It takes the
// last digit run (the trailing number in a sentence is usually the price),
// treats spaces as thousands separators and commas as decimal separators,
// and returns def on any failure. Never returns an error.
func ExtractNumeric(text string, def float64) float64 {
	matches := numericRun.FindAllString(text, -1)
	for i := len(matches) - 1; i >= 0; i-- {
		cleaned := strings.TrimSpace(matches[i])
		if cleaned == "" || !strings.ContainsAny(cleaned, "0123456789") {
			continue
		}
		cleaned = strings.ReplaceAll(cleaned, " ", "")
		cleaned = strings.ReplaceAll(cleaned, ",", ".")
		if v, err := strconv.ParseFloat(cleaned, 64); err == nil {
			return v
		}
		return def
	}
	return def
}

// Number coerces a decoded JSON value into a float64. JSON numbers decode as
// float64, but agents frequently quote them; string values go through the
// numeric heuristic.
func Number(v interface{}, def float64) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case json.Number:
		if f, err := n.Float64(); err == nil {
			return f
		}
		return def
	case string:
		return ExtractNumeric(n, def)
	default:
		return def
	}
}

// Int coerces a decoded JSON value into an int.
func Int(v interface{}, def int) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	case string:
		if i, err := strconv.Atoi(strings.TrimSpace(n)); err == nil {
			return i
		}
		return def
	default:
		return def
	}
}

// Bool coerces a decoded JSON value into a bool.
func Bool(v interface{}, def bool) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		switch strings.ToLower(strings.TrimSpace(b)) {
		case "true", "yes", "1":
			return true
		case "false", "no", "0":
			return false
		}
		return def
	default:
		return def
	}
}

// String coerces a decoded JSON value into a string.
func String(v interface{}, def string) string {
	switch s := v.(type) {
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(s)
	case nil:
		return def
	default:
		return fmt.Sprintf("%v", s)
	}
}
