package rule

import (
	"strings"
	"unicode"

	"github.com/nerrad567/mqtt-inspect/internal/message"
	"github.com/nerrad567/mqtt-inspect/internal/topic"
)

// SelectAll is the field list sentinel meaning "every field".
const SelectAll = "*"

// Definition is a parsed rule. It is immutable once returned by Parse;
// a new rule is a new Definition.
type Definition struct {
	// Select lists the fields to display, or holds only SelectAll.
	Select []string

	// From is the MQTT topic filter the message topic must match.
	From string

	// Where is the optional condition tree (nil when absent).
	Where Condition
}

// SelectsAll reports whether the rule displays every field.
func (d *Definition) SelectsAll() bool {
	return len(d.Select) == 1 && d.Select[0] == SelectAll
}

// Matches reports whether msg passes the rule: its topic must match From
// and, when present, Where must evaluate true.
func (d *Definition) Matches(msg message.Message, matcher topic.Matcher) bool {
	if matcher == nil {
		matcher = topic.Default
	}
	if !matcher.Matches(d.From, msg.Topic()) {
		return false
	}
	if d.Where == nil {
		return true
	}
	return d.Where.Evaluate(msg)
}

// Project returns the selected fields of msg. Listed fields that the
// message does not carry are omitted.
func (d *Definition) Project(msg message.Message) map[string]any {
	if d.SelectsAll() {
		return msg.Fields()
	}

	out := make(map[string]any, len(d.Select))
	for _, name := range d.Select {
		if v, ok := msg.Field(name); ok {
			out[name] = v
		}
	}
	return out
}

// String renders the rule in canonical form. Parsing the result yields an
// equivalent Definition.
func (d *Definition) String() string {
	var b strings.Builder
	b.WriteString("SELECT ")
	for i, name := range d.Select {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(formatField(name))
	}
	b.WriteString(" FROM ")
	b.WriteString(quote(d.From))
	if d.Where != nil {
		b.WriteString(" WHERE ")
		b.WriteString(d.Where.String())
	}
	return b.String()
}

// Canonical renders the rule like String and checks that parsing the text
// gives back the same rule. A hand-built Definition can hold text the rule
// grammar cannot express, for example a literal containing both quote
// characters; Canonical reports those as a *SyntaxError.
func (d *Definition) Canonical() (string, error) {
	text := d.String()
	again, err := Parse(text)
	if err != nil {
		return "", err
	}
	if again.String() != text {
		return "", syntaxErr(ErrInvalidCondition, text, "rule text does not parse back to the same rule")
	}
	return text, nil
}

// formatField quotes a selected field name when it would otherwise be
// split, trimmed or misread by the field list parser.
func formatField(name string) string {
	if name == SelectAll {
		return name
	}
	if strings.ContainsAny(name, `,'"()`) || strings.IndexFunc(name, unicode.IsSpace) >= 0 {
		return quote(name)
	}
	if strings.EqualFold(name, "FROM") {
		return quote(name)
	}
	return name
}
