package rule

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// maxConditionDepth bounds recursion on hostile input like "((((...".
const maxConditionDepth = 64

var (
	selectKeyword = regexp.MustCompile(`(?is)^\s*SELECT\s+`)
	whereClause   = regexp.MustCompile(`(?is)^WHERE(?:\s+(.*))?$`)
	patternLeaf   = regexp.MustCompile(`(?is)^([^\s'"()=<>!,]+)\s+(NOT\s+LIKE|LIKE|REGEX)\s+(.+)$`)
	comparisonOps = regexp.MustCompile(`(?s)^([^\s'"()=<>!,]+)\s*(!=|>=|<=|=|>|<)\s*(.*)$`)
	integerLit    = regexp.MustCompile(`^-?\d+$`)
	floatLit      = regexp.MustCompile(`^-?(\d+\.\d*|\.\d+)$`)
	whitespace    = regexp.MustCompile(`\s+`)
)

// Parse turns rule text into a Definition.
//
// It returns a *SyntaxError (unwrapping to ErrInvalidSelect, ErrInvalidFrom
// or ErrInvalidCondition) when the text is not fully recognised. No partial
// Definition is ever returned.
func Parse(text string) (*Definition, error) {
	loc := selectKeyword.FindStringIndex(text)
	if loc == nil {
		return nil, syntaxErr(ErrInvalidSelect, strings.TrimSpace(text), "expected SELECT <fields> FROM")
	}
	fieldText, fromText, ok := splitTopLevel(text[loc[1]:], "FROM")
	if !ok {
		return nil, syntaxErr(ErrInvalidSelect, strings.TrimSpace(text), "expected SELECT <fields> FROM")
	}

	fields, err := parseFieldList(fieldText)
	if err != nil {
		return nil, err
	}

	from, rest, err := parseFrom(fromText)
	if err != nil {
		return nil, err
	}

	def := &Definition{Select: fields, From: from}
	if rest == "" {
		return def, nil
	}

	w := whereClause.FindStringSubmatch(rest)
	if w == nil {
		return nil, syntaxErr(ErrInvalidFrom, rest, "unexpected input after topic pattern")
	}
	if strings.TrimSpace(w[1]) == "" {
		return nil, syntaxErr(ErrInvalidCondition, rest, "empty WHERE clause")
	}

	where, err := parseCondition(w[1], 0)
	if err != nil {
		return nil, err
	}
	def.Where = where

	return def, nil
}

// MustParse is like Parse but panics on error. Intended for tests and
// package-level rule literals.
func MustParse(text string) *Definition {
	def, err := Parse(text)
	if err != nil {
		panic(err)
	}
	return def
}

// parseFieldList handles the text between SELECT and FROM.
func parseFieldList(text string) ([]string, error) {
	text = strings.TrimSpace(text)
	if text == SelectAll {
		return []string{SelectAll}, nil
	}
	if text == "" {
		return nil, syntaxErr(ErrInvalidSelect, text, "empty field list")
	}

	parts := splitOutsideQuotes(text, ',')
	fields := make([]string, 0, len(parts))
	for _, part := range parts {
		name := strings.TrimSpace(part)
		if name != "" && (name[0] == '\'' || name[0] == '"') {
			unquoted, ok := unquote(name)
			if !ok {
				return nil, syntaxErr(ErrInvalidSelect, text, "malformed quoted field name")
			}
			name = unquoted
		}
		if name == "" {
			return nil, syntaxErr(ErrInvalidSelect, text, "empty field name")
		}
		if name == SelectAll {
			return nil, syntaxErr(ErrInvalidSelect, text, "* cannot be combined with other fields")
		}
		fields = append(fields, name)
	}

	return fields, nil
}

// parseFrom extracts the quoted topic pattern and returns the trimmed rest.
func parseFrom(text string) (string, string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", "", syntaxErr(ErrInvalidFrom, text, "missing topic pattern")
	}

	q := text[0]
	if q != '\'' && q != '"' {
		return "", "", syntaxErr(ErrInvalidFrom, text, "topic pattern must be quoted")
	}

	end := strings.IndexByte(text[1:], q)
	if end < 0 {
		return "", "", syntaxErr(ErrInvalidFrom, text, "unterminated topic pattern")
	}

	topic := text[1 : end+1]
	if strings.TrimSpace(topic) == "" {
		return "", "", syntaxErr(ErrInvalidFrom, text, "empty topic pattern")
	}

	return topic, strings.TrimSpace(text[end+2:]), nil
}

// parseCondition reduces text to a Condition tree.
func parseCondition(text string, depth int) (Condition, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, syntaxErr(ErrInvalidCondition, text, "empty condition")
	}
	if depth > maxConditionDepth {
		return nil, syntaxErr(ErrInvalidCondition, text, "condition nested too deeply")
	}

	if inner, ok := stripEnclosingParens(text); ok {
		return parseCondition(inner, depth+1)
	}

	if operand, ok := cutNot(text); ok {
		cond, err := parseCondition(operand, depth+1)
		if err != nil {
			return nil, err
		}
		return Not(cond), nil
	}

	for _, op := range []LogicalOperator{OpOr, OpAnd} {
		left, right, ok := splitTopLevel(text, string(op))
		if !ok {
			continue
		}
		l, err := parseCondition(left, depth+1)
		if err != nil {
			return nil, err
		}
		r, err := parseCondition(right, depth+1)
		if err != nil {
			return nil, err
		}
		if op == OpOr {
			return Or(l, r), nil
		}
		return And(l, r), nil
	}

	return parseLeaf(text)
}

// parseLeaf recognises a pattern match or a comparison.
func parseLeaf(text string) (Condition, error) {
	if m := patternLeaf.FindStringSubmatch(text); m != nil {
		pattern, ok := unquote(strings.TrimSpace(m[3]))
		if !ok {
			return nil, syntaxErr(ErrInvalidCondition, text, "pattern must be quoted")
		}
		mode := PatternMode(strings.ToUpper(whitespace.ReplaceAllString(m[2], " ")))
		p, err := NewPattern(m[1], mode, pattern)
		if err != nil {
			return nil, err
		}
		return p, nil
	}

	if m := comparisonOps.FindStringSubmatch(text); m != nil {
		value, err := parseValue(m[3])
		if err != nil {
			return nil, syntaxErr(ErrInvalidCondition, text, err.Error())
		}
		return &Comparison{
			Field:    m[1],
			Operator: ComparisonOperator(m[2]),
			Value:    value,
		}, nil
	}

	return nil, syntaxErr(ErrInvalidCondition, text, "expected comparison or pattern match")
}

// valueError is a parse failure inside a comparison literal.
type valueError string

func (e valueError) Error() string { return string(e) }

// parseValue converts a comparison literal: quoted text is a string,
// integers become int64, decimals become float64, and any other single
// token is kept verbatim.
func parseValue(raw string) (any, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, valueError("missing comparison value")
	}

	if s, ok := unquote(raw); ok {
		return s, nil
	}

	if integerLit.MatchString(raw) {
		if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return i, nil
		}
	}
	if floatLit.MatchString(raw) || integerLit.MatchString(raw) {
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			return f, nil
		}
	}

	if strings.IndexFunc(raw, unicode.IsSpace) >= 0 {
		return nil, valueError("unquoted value contains whitespace")
	}
	if strings.ContainsAny(raw, `'"()`) {
		return nil, valueError("malformed value")
	}
	return raw, nil
}

// unquote strips the quotes from s when all of s is one single- or
// double-quoted text. Input continuing past the closing quote is rejected.
func unquote(s string) (string, bool) {
	if len(s) < 2 || (s[0] != '\'' && s[0] != '"') {
		return "", false
	}
	end := strings.IndexByte(s[1:], s[0])
	if end != len(s)-2 {
		return "", false
	}
	return s[1 : end+1], true
}

// cutNot returns the operand of a leading NOT keyword.
func cutNot(text string) (string, bool) {
	const kw = "NOT"
	if len(text) <= len(kw) || !strings.EqualFold(text[:len(kw)], kw) {
		return "", false
	}
	next := text[len(kw)]
	if next != '(' && !isSpace(next) {
		return "", false
	}
	return text[len(kw):], true
}

// stripEnclosingParens removes an outer pair of parentheses only when the
// opening parenthesis at index 0 closes at the final index, so "(a) AND (b)"
// is left intact.
func stripEnclosingParens(text string) (string, bool) {
	if len(text) < 2 || text[0] != '(' || text[len(text)-1] != ')' {
		return "", false
	}

	depth := 0
	var quote byte
	for i := 0; i < len(text); i++ {
		c := text[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
		case c == '(':
			depth++
		case c == ')':
			depth--
			if depth == 0 {
				return text[1 : len(text)-1], i == len(text)-1
			}
		}
	}

	return "", false
}

// splitTopLevel finds the first occurrence of keyword outside parentheses
// and quotes, bounded by whitespace or parentheses, and splits around it.
func splitTopLevel(text, keyword string) (string, string, bool) {
	depth := 0
	var quote byte
	n := len(keyword)

	for i := 0; i < len(text); i++ {
		c := text[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
			continue
		case c == '\'' || c == '"':
			quote = c
			continue
		case c == '(':
			depth++
			continue
		case c == ')':
			depth--
			continue
		}

		if depth != 0 || i == 0 || i+n >= len(text) {
			continue
		}
		if !strings.EqualFold(text[i:i+n], keyword) {
			continue
		}
		before, after := text[i-1], text[i+n]
		if (isSpace(before) || before == ')') && (isSpace(after) || after == '(') {
			return text[:i], text[i+n:], true
		}
	}

	return "", "", false
}

// splitOutsideQuotes splits s on sep, ignoring separators inside quotes.
func splitOutsideQuotes(s string, sep byte) []string {
	var parts []string
	var quote byte
	start := 0

	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
		case c == sep:
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}

	return append(parts, s[start:])
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}
