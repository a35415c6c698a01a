package ai

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
)

// Pre-compiled regular expressions for performance.
// Compiling regexes on every parse is ~15x slower than using pre-compiled patterns.
var (
	// A single fenced code block wrapping the whole payload, language tag
	// ignored. Matches: ```json\n{...}\n```, ```{...}```, ``` yaml {...}```
	codeFenceRegex = regexp.MustCompile("(?s)^`{3}[a-zA-Z]*\\s*\n?(.*?)\n?`{3}\\s*$")

	// Trailing commas before closing braces/brackets
	trailingCommaRegex = regexp.MustCompile(`,(\s*[}\]])`)
)

// smartQuoteReplacer normalizes curly/smart quotes to straight quotes
var smartQuoteReplacer = strings.NewReplacer(
	"“", `"`, // left double
	"”", `"`, // right double
	"‘", "'", // left single
	"’", "'", // right single
)

// ParseFailure reports that agent output could not be turned into a
// schema-valid object. Stage names which extraction strategy gave up.
type ParseFailure struct {
	Stage  string // "empty", "extract", "schema"
	Detail string
}

func (e *ParseFailure) Error() string {
	return fmt.Sprintf("parse failure at %s: %s", e.Stage, e.Detail)
}

// Extract produces a schema-validated object from arbitrary agent output.
//
// Strategy sequence (first success wins):
//  1. Strip a single wrapping code fence and attempt a strict parse
//  2. Scan for the first balanced {...} by bracket depth (respecting
//     quoted strings and escapes) and parse that substring
//  3. Apply bounded textual repairs (trailing commas, smart quotes) and
//     retry the substring scan
//
// The parsed object must then satisfy the schema. On any failure the
// result is nil plus a ParseFailure naming the stage - never a partially
// populated or guessed object. Pure function over its input.
func Extract(text string, schema Schema) (map[string]any, *ParseFailure) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, &ParseFailure{Stage: "empty", Detail: "empty agent output"}
	}

	// Strategy 1: strict parse of the (unfenced) payload
	unfenced := stripCodeFence(trimmed)
	obj, strictErr := tryStrictParse(unfenced)

	// Strategy 2: balanced-object scan of the raw text
	if strictErr != nil {
		if candidate := scanBalancedObject(trimmed); candidate != "" {
			obj, strictErr = tryStrictParse(candidate)
		}
	}

	// Strategy 3: bounded repairs, then re-scan
	if strictErr != nil {
		repaired := repairJSON(trimmed)
		if candidate := scanBalancedObject(repaired); candidate != "" {
			obj, strictErr = tryStrictParse(candidate)
		}
	}

	if strictErr != nil {
		slog.Debug("all extraction strategies failed",
			"error", strictErr.Error(),
			"preview", truncate(text, 100))
		return nil, &ParseFailure{
			Stage:  "extract",
			Detail: fmt.Sprintf("no parseable JSON object found: %v", strictErr),
		}
	}

	if err := schema.Validate(obj); err != nil {
		return nil, &ParseFailure{Stage: "schema", Detail: err.Error()}
	}
	return obj, nil
}

// ExtractInto decodes agent output directly into a typed value after
// schema validation passes.
func ExtractInto[T any](text string, schema Schema) (T, *ParseFailure) {
	var result T

	obj, pf := Extract(text, schema)
	if pf != nil {
		return result, pf
	}

	// Round-trip through JSON so struct tags drive the mapping
	raw, err := json.Marshal(obj)
	if err != nil {
		return result, &ParseFailure{Stage: "schema", Detail: fmt.Sprintf("re-encode failed: %v", err)}
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return result, &ParseFailure{Stage: "schema", Detail: fmt.Sprintf("typed decode failed: %v", err)}
	}
	return result, nil
}

// tryStrictParse requires the entire text to be one JSON object.
// Trailing garbage fails the parse, which pushes extraction to the
// balanced-object scan.
func tryStrictParse(text string) (map[string]any, error) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(text), &obj); err != nil {
		return nil, err
	}
	return obj, nil
}

// stripCodeFence removes a single fenced code block wrapping the payload
func stripCodeFence(text string) string {
	if m := codeFenceRegex.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return text
}

// scanBalancedObject returns the substring from the first '{' to its
// matching '}' using bracket-depth counting. String literals and escape
// sequences are respected so braces inside values don't confuse the scan.
// Returns "" when no balanced object exists.
func scanBalancedObject(text string) string {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		ch := text[i]

		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}

		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}

// repairJSON applies the bounded repair set: strip trailing commas before
// closing brackets and normalize smart quotes. Anything beyond these two
// fixes risks fabricating data, so nothing else is attempted.
func repairJSON(text string) string {
	repaired := smartQuoteReplacer.Replace(text)
	repaired = trailingCommaRegex.ReplaceAllString(repaired, "$1")
	return repaired
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
