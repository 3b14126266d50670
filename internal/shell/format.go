package shell

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/nerrad567/mqtt-inspect/internal/audit"
	"github.com/nerrad567/mqtt-inspect/internal/history"
	"github.com/nerrad567/mqtt-inspect/internal/message"
	"github.com/nerrad567/mqtt-inspect/internal/rule"
)

// formatEntry renders one message line:
//
//	#12 15:04:05.000 sensors/temp (retained)  {"temp":21.5}
//
// With a rule that selects specific fields the body is those fields as
// JSON; otherwise it is the raw payload text.
func (s *Shell) formatEntry(e history.Entry, def *rule.Definition) string {
	msg := e.Message

	var b strings.Builder
	fmt.Fprintf(&b, "#%d %s %s", e.ID, msg.Timestamp.Format(s.opts.TimestampFormat), msg.Topic())
	if retained, _ := msg.Payload[message.FieldRetain].(bool); retained {
		b.WriteString(" (retained)")
	}
	b.WriteString("  ")
	b.WriteString(truncate(body(msg, def), s.opts.MaxPayloadDisplay))
	return b.String()
}

func body(msg message.Message, def *rule.Definition) string {
	if def != nil && !def.SelectsAll() {
		return compactJSON(def.Project(msg))
	}
	if raw, ok := msg.Payload[message.FieldMessage].(string); ok {
		return raw
	}
	return compactJSON(msg.Payload)
}

func compactJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}

// truncate shortens s to at most limit bytes on a rune boundary.
// A non-positive limit disables truncation.
func truncate(s string, limit int) string {
	if limit <= 0 || len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

func (s *Shell) printEntries(entries []history.Entry) {
	for _, e := range entries {
		s.println(s.formatEntry(e, nil))
	}
}

func (s *Shell) printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding json: %w", err)
	}
	s.println(string(data))
	return nil
}

// formatActivity renders one journal line:
//
//	15:04:05.000 rule.save     hot  SELECT * FROM 'sensors/#'
func formatActivity(e audit.Entry, layout string) string {
	line := fmt.Sprintf("%s %-15s", e.CreatedAt.Local().Format(layout), e.Action)
	if e.Subject != "" {
		line += " " + e.Subject
	}
	if e.Detail != "" {
		line += "  " + e.Detail
	}
	if e.Source != "" && e.Source != audit.SourceShell {
		line += " [" + e.Source + "]"
	}
	return strings.TrimRight(line, " ")
}

func describeRule(def *rule.Definition) string {
	if def == nil {
		return "none"
	}
	return def.String()
}

func plural(n int, one, many string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, one)
	}
	return fmt.Sprintf("%d %s", n, many)
}
