package rule

import (
	"fmt"
	"regexp"
	"strings"
)

// Fields resolves field names to values at evaluation time.
//
// message.Message satisfies it over its merged payload/metadata namespace.
type Fields interface {
	Field(name string) (any, bool)
}

// MapFields adapts a plain map to Fields.
type MapFields map[string]any

// Field implements Fields.
func (m MapFields) Field(name string) (any, bool) {
	v, ok := m[name]
	return v, ok
}

// Condition is a node of a WHERE tree.
//
// The variant set is closed: *Comparison, *Pattern and *Logical are the
// only implementations.
type Condition interface {
	// Evaluate reports whether fields satisfy the condition.
	Evaluate(fields Fields) bool

	// String renders the condition in rule syntax.
	String() string

	condition()
}

// =============================================================================
// Comparison
// =============================================================================

// ComparisonOperator is one of =, !=, >, <, >=, <=.
type ComparisonOperator string

// Comparison operators. Order matters for parsing: longer operators first.
const (
	OpNotEqual     ComparisonOperator = "!="
	OpGreaterEqual ComparisonOperator = ">="
	OpLessEqual    ComparisonOperator = "<="
	OpEqual        ComparisonOperator = "="
	OpGreater      ComparisonOperator = ">"
	OpLess         ComparisonOperator = "<"
)

// Comparison compares a field against a literal.
//
// Value is a string, int64 or float64.
type Comparison struct {
	Field    string
	Operator ComparisonOperator
	Value    any
}

// Evaluate implements Condition.
//
// Both sides numeric (numeric strings included) compares numerically.
// Otherwise = and != compare the text forms and ordering operators are false.
func (c *Comparison) Evaluate(fields Fields) bool {
	actual, ok := fields.Field(c.Field)
	if !ok {
		return c.Operator == OpNotEqual
	}

	if a, aok := toNumber(actual); aok {
		if b, bok := toNumber(c.Value); bok {
			return c.Operator.holds(a.compare(b))
		}
	}

	switch c.Operator {
	case OpEqual:
		return toText(actual) == toText(c.Value)
	case OpNotEqual:
		return toText(actual) != toText(c.Value)
	default:
		return false
	}
}

// holds reports whether a three-way comparison result satisfies op.
func (op ComparisonOperator) holds(cmp int) bool {
	switch op {
	case OpEqual:
		return cmp == 0
	case OpNotEqual:
		return cmp != 0
	case OpGreater:
		return cmp > 0
	case OpLess:
		return cmp < 0
	case OpGreaterEqual:
		return cmp >= 0
	case OpLessEqual:
		return cmp <= 0
	default:
		return false
	}
}

// String implements Condition.
func (c *Comparison) String() string {
	return fmt.Sprintf("%s %s %s", c.Field, c.Operator, formatLiteral(c.Value))
}

func (*Comparison) condition() {}

// =============================================================================
// Pattern
// =============================================================================

// PatternMode selects how a Pattern matches.
type PatternMode string

// Pattern modes.
const (
	ModeLike    PatternMode = "LIKE"
	ModeNotLike PatternMode = "NOT LIKE"
	ModeRegex   PatternMode = "REGEX"
)

// Pattern matches a field's text form against a LIKE or regular expression.
//
// Build it with NewPattern; the expression is compiled once.
type Pattern struct {
	Field   string
	Mode    PatternMode
	Pattern string

	re *regexp.Regexp
}

// NewPattern compiles a pattern condition. Errors are *SyntaxError values
// of kind ErrInvalidCondition.
//
// LIKE patterns use % for any run of characters and _ for exactly one;
// a backslash makes the next character literal. Matching is case-sensitive.
// REGEX patterns use Go RE2 syntax and are unanchored.
func NewPattern(field string, mode PatternMode, pattern string) (*Pattern, error) {
	var expr string
	switch mode {
	case ModeLike, ModeNotLike:
		expr = likeToRegexp(pattern)
	case ModeRegex:
		expr = pattern
	default:
		return nil, syntaxErr(ErrInvalidCondition, string(mode), "unknown pattern mode")
	}

	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, syntaxErr(ErrInvalidCondition, pattern, err.Error())
	}

	return &Pattern{Field: field, Mode: mode, Pattern: pattern, re: re}, nil
}

// likeToRegexp translates a SQL LIKE pattern into an anchored expression.
func likeToRegexp(pattern string) string {
	var b strings.Builder
	b.WriteString(`(?s)^`)

	escaped := false
	for _, r := range pattern {
		switch {
		case escaped:
			b.WriteString(regexp.QuoteMeta(string(r)))
			escaped = false
		case r == '\\':
			escaped = true
		case r == '%':
			b.WriteString(`.*`)
		case r == '_':
			b.WriteString(`.`)
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	if escaped {
		b.WriteString(regexp.QuoteMeta(`\`))
	}

	b.WriteString(`$`)
	return b.String()
}

// Evaluate implements Condition.
func (p *Pattern) Evaluate(fields Fields) bool {
	actual, ok := fields.Field(p.Field)
	if !ok {
		return p.Mode == ModeNotLike
	}

	matched := p.re.MatchString(toText(actual))
	if p.Mode == ModeNotLike {
		return !matched
	}
	return matched
}

// String implements Condition.
func (p *Pattern) String() string {
	return fmt.Sprintf("%s %s %s", p.Field, p.Mode, quote(p.Pattern))
}

func (*Pattern) condition() {}

// =============================================================================
// Logical
// =============================================================================

// LogicalOperator is AND, OR or NOT.
type LogicalOperator string

// Logical operators.
const (
	OpAnd LogicalOperator = "AND"
	OpOr  LogicalOperator = "OR"
	OpNot LogicalOperator = "NOT"
)

// Logical combines conditions. NOT has one operand, AND and OR have two.
//
// Use And, Or and Not to construct it with the right arity.
type Logical struct {
	Operator LogicalOperator
	Operands []Condition
}

// And returns left AND right.
func And(left, right Condition) *Logical {
	return &Logical{Operator: OpAnd, Operands: []Condition{left, right}}
}

// Or returns left OR right.
func Or(left, right Condition) *Logical {
	return &Logical{Operator: OpOr, Operands: []Condition{left, right}}
}

// Not returns NOT operand.
func Not(operand Condition) *Logical {
	return &Logical{Operator: OpNot, Operands: []Condition{operand}}
}

// Evaluate implements Condition. AND and OR short-circuit.
// A node with the wrong operand count evaluates to false.
func (l *Logical) Evaluate(fields Fields) bool {
	switch l.Operator {
	case OpAnd:
		if len(l.Operands) != 2 {
			return false
		}
		return l.Operands[0].Evaluate(fields) && l.Operands[1].Evaluate(fields)
	case OpOr:
		if len(l.Operands) != 2 {
			return false
		}
		return l.Operands[0].Evaluate(fields) || l.Operands[1].Evaluate(fields)
	case OpNot:
		if len(l.Operands) != 1 {
			return false
		}
		return !l.Operands[0].Evaluate(fields)
	default:
		return false
	}
}

// String implements Condition.
//
// Every logical node is parenthesised so the output parses back to the
// same tree despite NOT binding loosest.
func (l *Logical) String() string {
	parts := make([]string, len(l.Operands))
	for i, op := range l.Operands {
		parts[i] = op.String()
	}

	if l.Operator == OpNot {
		return fmt.Sprintf("(NOT %s)", strings.Join(parts, " "))
	}
	return "(" + strings.Join(parts, " "+string(l.Operator)+" ") + ")"
}

func (*Logical) condition() {}
