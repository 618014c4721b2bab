// Package search turns raw query strings into structured filters and
// composes the full-text index and contact cache into the public query API.
package search

import (
	"strings"
	"time"
)

// ParsedQuery is the structured form of a raw query string. It is ephemeral
// and side-effect free: parsing classifies tokens, it never matches.
type ParsedQuery struct {
	FreeText  string
	From      string
	To        string
	Subject   string
	IsUnread  *bool
	IsStarred *bool
	After     string // normalized YYYY-MM-DD
	Before    string // normalized YYYY-MM-DD

	// Unsupported holds operator tokens we recognize syntactically but
	// cannot honor locally. They are captured verbatim, never silently
	// dropped or mis-parsed as free text.
	Unsupported []string
}

// HasUnsupported reports whether the query used operators the local index
// cannot honor.
func (q *ParsedQuery) HasUnsupported() bool {
	return len(q.Unsupported) > 0
}

// Operators understood syntactically but not executable against the local
// index. "has" is special-cased: only has:attachment is recognized.
var unsupportedOps = map[string]bool{
	"filename": true,
	"larger":   true,
	"smaller":  true,
	"in":       true,
	"label":    true,
}

// Parse parses a raw query string. It never fails: unparseable input
// degrades to an all-free-text interpretation.
//
// Supported syntax:
//   - from:, to:, subject: - substring filters (value may be quoted)
//   - is:unread, is:starred - flag filters
//   - after:, before: - date bounds (YYYY-MM-DD or YYYY/MM/DD)
//   - bare words and "quoted phrases" - full-text search
//
// Recognized but unsupported locally: has:attachment, filename:, larger:,
// smaller:, in:, label:.
func Parse(raw string) *ParsedQuery {
	q := &ParsedQuery{}
	var free []string

	for _, token := range tokenize(raw) {
		if isQuotedPhrase(token) {
			free = append(free, unquote(token))
			continue
		}

		idx := strings.Index(token, ":")
		if idx <= 0 || idx == len(token)-1 {
			free = append(free, token)
			continue
		}

		op := strings.ToLower(token[:idx])
		value := unquote(token[idx+1:])

		switch {
		case unsupportedOps[op]:
			q.Unsupported = append(q.Unsupported, token)
		case op == "has":
			if strings.EqualFold(value, "attachment") {
				q.Unsupported = append(q.Unsupported, token)
			} else {
				free = append(free, token)
			}
		case op == "from":
			q.From = value
		case op == "to":
			q.To = value
		case op == "subject":
			q.Subject = value
		case op == "is":
			switch strings.ToLower(value) {
			case "unread":
				b := true
				q.IsUnread = &b
			case "starred":
				b := true
				q.IsStarred = &b
			default:
				free = append(free, token)
			}
		case op == "after":
			if d, ok := parseDate(value); ok {
				q.After = d
			} else {
				free = append(free, token)
			}
		case op == "before":
			if d, ok := parseDate(value); ok {
				q.Before = d
			} else {
				free = append(free, token)
			}
		default:
			free = append(free, token)
		}
	}

	q.FreeText = strings.Join(free, " ")
	return q
}

// unquote removes surrounding double quotes from a string if present.
func unquote(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}

// isQuotedPhrase returns true if the token is a double-quoted phrase.
func isQuotedPhrase(token string) bool {
	return len(token) > 2 && token[0] == '"' && token[len(token)-1] == '"'
}

// tokenize splits a query string on whitespace, preserving quoted phrases
// and operator:"quoted value" pairs as single tokens.
func tokenize(raw string) []string {
	var tokens []string
	var current strings.Builder
	inQuotes := false
	// Track if we just saw a colon (for op:"value" handling)
	afterColon := false
	// Track if this quoted section started as op:"value"
	opQuoted := false

	for _, char := range raw {
		switch {
		case char == '"' && !inQuotes:
			inQuotes = true
			opQuoted = afterColon
			if !afterColon && current.Len() > 0 {
				tokens = append(tokens, current.String())
				current.Reset()
			}
			if afterColon {
				current.WriteRune(char)
			}
			afterColon = false
		case char == '"' && inQuotes:
			inQuotes = false
			if opQuoted {
				current.WriteRune(char)
				tokens = append(tokens, current.String())
				current.Reset()
			} else if current.Len() > 0 {
				tokens = append(tokens, "\""+current.String()+"\"")
				current.Reset()
			}
			opQuoted = false
		case char == ' ' && !inQuotes:
			if current.Len() > 0 {
				tokens = append(tokens, current.String())
				current.Reset()
			}
			afterColon = false
		default:
			current.WriteRune(char)
			afterColon = (char == ':')
		}
	}

	if current.Len() > 0 {
		tokens = append(tokens, current.String())
	}

	return tokens
}

// parseDate parses YYYY-MM-DD or YYYY/MM/DD and normalizes to YYYY-MM-DD,
// which compares lexicographically against stored ISO-8601 timestamps.
func parseDate(value string) (string, bool) {
	value = strings.TrimSpace(value)
	for _, format := range []string{"2006-01-02", "2006/01/02"} {
		if t, err := time.Parse(format, value); err == nil {
			return t.Format("2006-01-02"), true
		}
	}
	return "", false
}
