package sqlengine

import (
	"regexp"
	"strings"
)

var (
	codeFence = regexp.MustCompile("(?s)```(?:sql|SQL)?\\s*(.*?)```")
	readOnly  = regexp.MustCompile(`(?i)^\s*(select|with)\b`)
	mutating  = regexp.MustCompile(`(?i)\b(insert|update|delete|drop|alter|create|attach|detach|pragma|vacuum)\b`)
	// replace() is also a scalar function; only the statement forms write.
	replacing = regexp.MustCompile(`(?i)\b(replace\s+into|or\s+replace)\b`)
)

// StripCodeFence returns the body of the first markdown code block in s, or
// s itself when there is none.
func StripCodeFence(s string) string {
	if m := codeFence.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(s)
}

// FirstStatement returns the first SQL statement of s, without the trailing
// semicolon. Semicolons inside quotes do not split.
func FirstStatement(s string) string {
	s = StripCodeFence(s)
	var quote rune
	for i, r := range s {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case r == '\'' || r == '"' || r == '`':
			quote = r
		case r == ';':
			return strings.TrimSpace(s[:i])
		}
	}
	return strings.TrimSpace(s)
}

// IsReadOnly reports whether stmt is a SELECT or WITH query without
// mutating keywords.
func IsReadOnly(stmt string) bool {
	body := stripLiterals(stmt)
	return readOnly.MatchString(stmt) && !mutating.MatchString(body) && !replacing.MatchString(body)
}

// QuoteIdent quotes an SQL identifier.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func stripLiterals(s string) string {
	var b strings.Builder
	var quote rune
	for _, r := range s {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case r == '\'' || r == '"':
			quote = r
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

var sqlToken = regexp.MustCompile("'(?:[^']|'')*'|\"(?:[^\"]|\"\")*\"|`[^`]*`|\\[[^\\]]*\\]|[A-Za-z_][A-Za-z0-9_]*|[0-9]+(?:\\.[0-9]+)?|\\S")

var sqlKeywords = toSet(
	"select", "from", "where", "and", "or", "not", "as", "group", "by", "order", "asc", "desc",
	"limit", "offset", "having", "join", "inner", "left", "right", "outer", "full", "cross",
	"natural", "on", "using", "with", "recursive", "distinct", "all", "case", "when", "then",
	"else", "end", "is", "null", "in", "like", "glob", "regexp", "between", "exists", "union",
	"except", "intersect", "cast", "true", "false", "over", "partition", "rows", "range",
	"preceding", "following", "current", "row", "unbounded", "filter", "collate", "nocase",
	"escape", "current_date", "current_time", "current_timestamp", "integer", "real", "text",
	"numeric", "blob", "nulls", "first", "last", "window", "values",
)

func toSet(words ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}

// ColumnReferences returns the column identifiers stmt reads, in order of
// first use. Keywords, function names, string literals, table names and
// aliases, including implicit ones such as "SUM(x) total", are left out.
func ColumnReferences(stmt string) []string {
	tokens := sqlToken.FindAllString(stmt, -1)
	var (
		refs    []string
		skipped = map[string]struct{}{}
		table   bool
	)
	for i, tok := range tokens {
		name, ident := identifier(tok)
		if !ident {
			if _, kw := sqlKeywords[strings.ToLower(tok)]; kw {
				l := strings.ToLower(tok)
				table = l == "from" || l == "join"
			} else if tok != "," {
				table = false
			}
			continue
		}
		prev, next := "", ""
		if i > 0 {
			prev = strings.ToLower(tokens[i-1])
		}
		if i+1 < len(tokens) {
			next = strings.ToLower(tokens[i+1])
		}
		switch {
		case next == "(" && prev != "as":
			// function call
		case next == ".":
			skipped[strings.ToLower(name)] = struct{}{}
		case table:
			// table name or its alias
			skipped[strings.ToLower(name)] = struct{}{}
		case next == "as" && i+2 < len(tokens) && tokens[i+2] == "(":
			// common table expression
			skipped[strings.ToLower(name)] = struct{}{}
		case prev == "as" || prev == ")" || isOperand(prev):
			skipped[strings.ToLower(name)] = struct{}{}
		default:
			refs = append(refs, name)
		}
	}

	var out []string
	seen := map[string]struct{}{}
	for _, r := range refs {
		key := strings.ToLower(r)
		if _, ok := skipped[key]; ok {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, r)
	}
	return out
}

// identifier unquotes tok when it names a column or table.
func identifier(tok string) (string, bool) {
	if len(tok) < 2 && !isWordStart(tok[0]) {
		return "", false
	}
	switch tok[0] {
	case '"':
		return strings.ReplaceAll(tok[1:len(tok)-1], `""`, `"`), true
	case '`':
		return tok[1 : len(tok)-1], true
	case '[':
		return tok[1 : len(tok)-1], true
	}
	if !isWordStart(tok[0]) {
		return "", false
	}
	if _, kw := sqlKeywords[strings.ToLower(tok)]; kw {
		return "", false
	}
	return tok, true
}

func isWordStart(c byte) bool {
	return c == '_' || (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z')
}

// isOperand reports whether tok ends an expression, so an identifier right
// after it is an implicit alias.
func isOperand(tok string) bool {
	if tok == "" || tok == "*" {
		return false
	}
	if tok[0] == '\'' || tok[0] == '"' || tok[0] == '`' || tok[0] == '[' || (tok[0] >= '0' && tok[0] <= '9') {
		return true
	}
	_, ident := identifier(tok)
	return ident
}
