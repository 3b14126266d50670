package rule

import (
	"sync/atomic"

	"github.com/nerrad567/mqtt-inspect/internal/message"
	"github.com/nerrad567/mqtt-inspect/internal/topic"
)

// Logger is the logging interface the engine needs.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Stats is a snapshot of engine counters.
type Stats struct {
	Evaluated uint64 `json:"evaluated"`
	Matched   uint64 `json:"matched"`
	Rejected  uint64 `json:"rejected"`
	Active    string `json:"active,omitempty"`
}

// Engine decides which messages the shell displays.
//
// It holds the active Definition and applies its FROM pattern through the
// configured topic.Matcher and its WHERE tree through Condition.Evaluate.
//
// Thread Safety: all methods are safe for concurrent use. Replacing the
// rule is atomic; an Evaluate in flight finishes against the rule it loaded.
type Engine struct {
	current atomic.Pointer[Definition]
	matcher topic.Matcher
	logger  Logger

	evaluated atomic.Uint64
	matched   atomic.Uint64
}

// NewEngine creates an engine with no active rule (every message passes).
// A nil matcher selects MQTT matching; a nil logger discards output.
func NewEngine(matcher topic.Matcher, logger Logger) *Engine {
	if matcher == nil {
		matcher = topic.Default
	}
	if logger == nil {
		logger = noopLogger{}
	}
	return &Engine{matcher: matcher, logger: logger}
}

// Apply parses text and makes it the active rule.
//
// On a syntax error the previously active rule stays in place and the
// error is returned unchanged.
func (e *Engine) Apply(text string) (*Definition, error) {
	def, err := Parse(text)
	if err != nil {
		e.logger.Debug("rule rejected", "rule", text, "error", err)
		return nil, err
	}
	e.Set(def)
	return def, nil
}

// Set makes def the active rule. A nil def clears it.
func (e *Engine) Set(def *Definition) {
	e.current.Store(def)
	if def == nil {
		e.logger.Info("rule cleared")
		return
	}
	e.logger.Info("rule activated", "rule", def.String())
}

// Clear removes the active rule.
func (e *Engine) Clear() {
	e.Set(nil)
}

// Current returns the active rule, or nil.
func (e *Engine) Current() *Definition {
	return e.current.Load()
}

// Evaluate reports whether msg should be displayed.
func (e *Engine) Evaluate(msg message.Message) bool {
	shown, _ := e.EvaluateWith(msg)
	return shown
}

// EvaluateWith is Evaluate that also returns the rule it evaluated msg
// against (nil when no rule was active). Callers project with that rule,
// not with Current, so a concurrent Apply cannot mix two rules.
func (e *Engine) EvaluateWith(msg message.Message) (bool, *Definition) {
	e.evaluated.Add(1)

	def := e.current.Load()
	if def != nil && !def.Matches(msg, e.matcher) {
		return false, def
	}

	e.matched.Add(1)
	return true, def
}

// Stats returns the engine counters.
func (e *Engine) Stats() Stats {
	// matched first: evaluated is always incremented before matched.
	matched := e.matched.Load()
	evaluated := e.evaluated.Load()
	s := Stats{
		Evaluated: evaluated,
		Matched:   matched,
		Rejected:  evaluated - matched,
	}
	if def := e.current.Load(); def != nil {
		s.Active = def.String()
	}
	return s
}
