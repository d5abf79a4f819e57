package qa

import (
	"encoding/json"
	"regexp"
	"strings"

	"judgebench/internal/schemas"
)

// Result is a parsed judge response.
type Result struct {
	Verdict   schemas.Verdict `json:"verdict"`
	Reasoning string          `json:"reasoning"`
	Raw       string          `json:"-"`
}

var (
	fenceRe   = regexp.MustCompile("(?s)^```[a-zA-Z]*\\s*(.*?)\\s*```$")
	labelRe   = regexp.MustCompile(`(?i)\bverdict\b["']?\s*[:=\-]\s*["'*]*\s*(pass|fail|inconclusive)\b`)
	tokenRe   = regexp.MustCompile(`(?i)\b(pass|fail|inconclusive)\b`)
	objectRe  = regexp.MustCompile(`(?s)\{.*\}`)
	trimChars = " \t\r\n.!\"'`*"
)

// ParseVerdict classifies free-form model output. It tries, in order: a JSON object
// with a verdict field, the whole response being a single label, a labelled
// "verdict: X" token, and a unique bare label anywhere in the text. Anything else
// is inconclusive with the raw text kept as the reasoning.
func ParseVerdict(raw string) Result {
	text := strings.TrimSpace(raw)
	if m := fenceRe.FindStringSubmatch(text); m != nil {
		text = m[1]
	}

	if res, ok := parseStructured(text, raw); ok {
		return res
	}

	if v := schemas.Verdict(strings.ToLower(strings.Trim(text, trimChars))); v.Valid() {
		return Result{Verdict: v, Reasoning: raw, Raw: raw}
	}

	if m := labelRe.FindStringSubmatch(text); m != nil {
		return Result{Verdict: schemas.Verdict(strings.ToLower(m[1])), Reasoning: raw, Raw: raw}
	}

	if v, ok := uniqueToken(text); ok {
		return Result{Verdict: v, Reasoning: raw, Raw: raw}
	}

	return Result{Verdict: schemas.VerdictInconclusive, Reasoning: raw, Raw: raw}
}

func parseStructured(text, raw string) (Result, bool) {
	obj := objectRe.FindString(text)
	if obj == "" {
		return Result{}, false
	}
	var payload struct {
		Verdict   *string `json:"verdict"`
		Reasoning string  `json:"reasoning"`
	}
	if err := json.Unmarshal([]byte(obj), &payload); err != nil || payload.Verdict == nil {
		return Result{}, false
	}
	field := strings.Trim(*payload.Verdict, trimChars)
	v := schemas.Verdict(strings.ToLower(field))
	if !v.Valid() {
		tok, ok := uniqueToken(field)
		if !ok {
			// Let the whole-text fallbacks decide.
			return Result{}, false
		}
		v = tok
	}
	reasoning := strings.TrimSpace(payload.Reasoning)
	if reasoning == "" {
		reasoning = raw
	}
	return Result{Verdict: v, Reasoning: reasoning, Raw: raw}, true
}

// uniqueToken reports the verdict label when exactly one distinct label occurs in s.
func uniqueToken(s string) (schemas.Verdict, bool) {
	found := map[schemas.Verdict]struct{}{}
	for _, m := range tokenRe.FindAllStringSubmatch(s, -1) {
		found[schemas.Verdict(strings.ToLower(m[1]))] = struct{}{}
	}
	if len(found) != 1 {
		return "", false
	}
	for v := range found {
		return v, true
	}
	return "", false
}
