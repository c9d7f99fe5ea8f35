package tools

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Signature is a human-readable string derived from (tool_name,
// canonicalized_input, working_directory); two identical calls in
// identical contexts produce equal signatures (spec §3). It doubles as
// both an exact-match cache key and the text a Pattern wildcards/regexes
// over, the way the original REPL's `ToolSignature.context_key` does
// (e.g. "cargo test in /test/dir", "reading /path/to/file.txt") — there
// is no separate hash, since a plain string works fine as a map key and
// keeps the persisted approval store readable.
type Signature string

// CanonicalSignature builds a Signature for a tool invocation. The input is
// canonicalized by round-tripping it through an ordered-key JSON re-encode
// so that semantically identical inputs with differently ordered object
// keys produce identical signatures, then rendered as "key=value" pairs so
// the result stays human-readable and matchable by wildcard/regex patterns.
func CanonicalSignature(toolName string, input json.RawMessage, cwd string) (Signature, error) {
	canon, err := canonicalizeJSON(input)
	if err != nil {
		return "", fmt.Errorf("canonicalize tool input: %w", err)
	}
	args := humanizeArgs(canon)
	if args == "" {
		return Signature(fmt.Sprintf("%s in %s", toolName, cwd)), nil
	}
	return Signature(fmt.Sprintf("%s %s in %s", toolName, args, cwd)), nil
}

// humanizeArgs renders a canonicalized JSON object as sorted "key=value"
// pairs (string values bare, everything else re-encoded as JSON), or ""
// for an empty/non-object input. Sorting keeps it order-independent even
// though canonicalizeJSON already sorted object keys once.
func humanizeArgs(canon string) string {
	var v any
	if err := json.Unmarshal([]byte(canon), &v); err != nil {
		return ""
	}
	obj, ok := v.(map[string]any)
	if !ok || len(obj) == 0 {
		return ""
	}
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sortStrings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+stringifyValue(obj[k]))
	}
	return strings.Join(parts, " ")
}

func stringifyValue(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

func canonicalizeJSON(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "null", nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", err
	}
	out, err := marshalCanonical(v)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func marshalCanonical(v any) ([]byte, error) {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sortStrings(keys)
		var b strings.Builder
		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(',')
			}
			kb, _ := json.Marshal(k)
			b.Write(kb)
			b.WriteByte(':')
			vb, err := marshalCanonical(val[k])
			if err != nil {
				return nil, err
			}
			b.Write(vb)
		}
		b.WriteByte('}')
		return []byte(b.String()), nil
	case []any:
		var b strings.Builder
		b.WriteByte('[')
		for i, e := range val {
			if i > 0 {
				b.WriteByte(',')
			}
			eb, err := marshalCanonical(e)
			if err != nil {
				return nil, err
			}
			b.Write(eb)
		}
		b.WriteByte(']')
		return []byte(b.String()), nil
	default:
		return json.Marshal(val)
	}
}

func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

// PatternType discriminates how Pattern.PatternStr is interpreted.
type PatternType string

const (
	PatternWildcard PatternType = "wildcard"
	PatternRegex    PatternType = "regex"
)

// Pattern is a matcher over tool call signatures, built from a wildcard (`*` single
// segment, `**` any segments) or raw regex string (spec §3, §4.4).
type Pattern struct {
	ID          string      `json:"id"`
	ToolName    string      `json:"tool_name"`
	PatternStr  string      `json:"pattern_string"`
	PatternType PatternType `json:"pattern_type"`
	MatchCount  int64       `json:"match_count"`
	LastUsed    time.Time   `json:"last_used"`

	compiled *regexp.Regexp
}

// NewWildcardPattern compiles a wildcard pattern string into a Pattern.
// Unbalanced metacharacters are rejected.
func NewWildcardPattern(id, toolName, pattern string) (*Pattern, error) {
	re, err := wildcardToRegex(pattern)
	if err != nil {
		return nil, err
	}
	compiled, err := regexp.Compile("^" + re + "$")
	if err != nil {
		return nil, fmt.Errorf("compile wildcard pattern %q: %w", pattern, err)
	}
	return &Pattern{
		ID:          id,
		ToolName:    toolName,
		PatternStr:  pattern,
		PatternType: PatternWildcard,
		compiled:    compiled,
	}, nil
}

// NewRegexPattern compiles a raw regex pattern string into a Pattern.
func NewRegexPattern(id, toolName, pattern string) (*Pattern, error) {
	compiled, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("compile regex pattern %q: %w", pattern, err)
	}
	return &Pattern{
		ID:          id,
		ToolName:    toolName,
		PatternStr:  pattern,
		PatternType: PatternRegex,
		compiled:    compiled,
	}, nil
}

// Matches reports whether sig matches the pattern.
func (p *Pattern) Matches(sig Signature) bool {
	if p.compiled == nil {
		return false
	}
	return p.compiled.MatchString(string(sig))
}

// wildcardToRegex expands a `*`/`**` wildcard pattern into a regex
// fragment. `*` matches one path segment (no `/`); `**` matches any
// sequence including `/`. Unbalanced brackets/parens are rejected since
// they would otherwise silently compile into an unintended regex.
func wildcardToRegex(pattern string) (string, error) {
	if strings.Count(pattern, "(") != strings.Count(pattern, ")") ||
		strings.Count(pattern, "[") != strings.Count(pattern, "]") {
		return "", fmt.Errorf("unbalanced metacharacters in pattern %q", pattern)
	}
	var b strings.Builder
	for i := 0; i < len(pattern); i++ {
		c := pattern[i]
		switch {
		case c == '*' && i+1 < len(pattern) && pattern[i+1] == '*':
			b.WriteString(".*")
			i++
		case c == '*':
			b.WriteString("[^/]*")
		case strings.ContainsRune(`.+?()[]{}|^$\`, rune(c)):
			b.WriteByte('\\')
			b.WriteByte(c)
		default:
			b.WriteByte(c)
		}
	}
	return b.String(), nil
}
