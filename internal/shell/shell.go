package shell

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"unicode"

	"github.com/nerrad567/mqtt-inspect/internal/audit"
	"github.com/nerrad567/mqtt-inspect/internal/history"
	"github.com/nerrad567/mqtt-inspect/internal/infrastructure/config"
	"github.com/nerrad567/mqtt-inspect/internal/message"
	"github.com/nerrad567/mqtt-inspect/internal/rule"
)

// Defaults used when Options leaves a field empty.
const (
	DefaultPrompt          = "mqtt> "
	DefaultTimestampFormat = "15:04:05.000"

	// maxLineLength bounds a single input line.
	maxLineLength = 1 << 20
)

// Logger is the logging interface used by the shell.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Publisher sends a message to the broker.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error

	// ClearRetained removes the retained message stored for topic.
	ClearRetained(topic string) error
}

// Subscriber manages the broker subscriptions whose messages are fed back
// into Ingest.
type Subscriber interface {
	Subscribe(filter string) error

	// Unsubscribe returns an error wrapping ErrNotSubscribed when filter
	// is not subscribed.
	Unsubscribe(filter string) error

	// Subscriptions returns the active filters in sorted order.
	Subscriptions() []string
}

// RuleStore persists named rules. rule.SQLiteRepository implements it.
type RuleStore interface {
	Save(ctx context.Context, name, query string, overwrite bool) (*rule.Saved, error)
	Get(ctx context.Context, name string) (*rule.Saved, error)
	List(ctx context.Context) ([]rule.Saved, error)
	Delete(ctx context.Context, name string) error
}

// TrafficRecorder receives one call per ingested message.
// influxdb.Client implements it.
type TrafficRecorder interface {
	RecordMessage(msg message.Message, shown bool)
	RecordFilterStats(stats rule.Stats)
}

// Observer is told about every ingested message, whether or not the
// active rule shows it. def is the rule the message was evaluated against,
// nil when none was active. api.Server implements it to feed its live
// stream.
type Observer interface {
	Observe(e history.Entry, def *rule.Definition, shown bool)
}

// Journal records shell activity. audit.SQLiteRepository implements it.
type Journal interface {
	Record(ctx context.Context, e *audit.Entry) error
	List(ctx context.Context, filter audit.Filter) ([]audit.Entry, error)
}

// Options configures a Shell. Nil collaborators disable the commands that
// need them.
type Options struct {
	Prompt            string
	TimestampFormat   string
	MaxPayloadDisplay int

	Publisher  Publisher
	Subscriber Subscriber
	Rules      RuleStore
	Recorder   TrafficRecorder
	Journal    Journal
	Observer   Observer
	Logger     Logger
}

// OptionsFromConfig fills the display settings from the shell config section.
func OptionsFromConfig(cfg config.ShellConfig) Options {
	return Options{
		Prompt:            cfg.Prompt,
		TimestampFormat:   cfg.TimestampFormat,
		MaxPayloadDisplay: cfg.MaxPayloadDisplay,
	}
}

// Shell dispatches commands against a history store and a rule engine.
//
// Ingest may be called from any goroutine while Run is reading commands;
// writes to the output are serialised.
type Shell struct {
	store  *history.Store
	engine *rule.Engine
	opts   Options

	out   io.Writer
	outMu sync.Mutex

	paused atomic.Bool

	commands []*command
	byName   map[string]*command
}

// New creates a shell writing to out.
func New(store *history.Store, engine *rule.Engine, out io.Writer, opts Options) *Shell {
	if opts.Prompt == "" {
		opts.Prompt = DefaultPrompt
	}
	if opts.TimestampFormat == "" {
		opts.TimestampFormat = DefaultTimestampFormat
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}

	s := &Shell{
		store:    store,
		engine:   engine,
		opts:     opts,
		out:      out,
		commands: commandTable(),
		byName:   make(map[string]*command),
	}
	for _, c := range s.commands {
		s.byName[c.name] = c
		for _, alias := range c.aliases {
			s.byName[alias] = c
		}
	}
	return s
}

// Paused reports whether live output is suspended.
func (s *Shell) Paused() bool {
	return s.paused.Load()
}

// Ingest records msg in history and prints it when the active rule passes
// it and live output is not paused.
func (s *Shell) Ingest(ctx context.Context, msg message.Message) error {
	id, err := s.store.Add(ctx, msg)
	if err != nil {
		return fmt.Errorf("recording message: %w", err)
	}

	shown, def := s.engine.EvaluateWith(msg)
	if s.opts.Recorder != nil {
		s.opts.Recorder.RecordMessage(msg, shown)
	}

	entry := history.Entry{ID: id, Message: msg}
	if s.opts.Observer != nil {
		s.opts.Observer.Observe(entry, def, shown)
	}

	if shown && !s.paused.Load() {
		s.println(s.formatEntry(entry, def))
	}
	return nil
}

// Execute runs a single command line. Empty lines are ignored.
// It returns ErrQuit when the user asks to leave.
func (s *Shell) Execute(ctx context.Context, line string) error {
	name, args := splitWord(strings.TrimSpace(line))
	if name == "" {
		return nil
	}

	c, ok := s.byName[strings.ToLower(name)]
	if !ok {
		return fmt.Errorf("%w: %s (try 'help')", ErrUnknownCommand, name)
	}

	s.opts.Logger.Debug("shell command", "command", c.name)
	return c.run(s, ctx, args)
}

// Run reads commands from in until EOF, quit, or ctx is cancelled.
//
// Command errors are printed and the loop continues. The reader goroutine
// stays blocked on in after cancellation until in returns.
func (s *Shell) Run(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	scanErr := make(chan error, 1)

	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		scanner.Buffer(make([]byte, 0, 4096), maxLineLength)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	s.printPrompt()
	for {
		select {
		case <-ctx.Done():
			return nil

		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					if err != nil {
						return fmt.Errorf("reading input: %w", err)
					}
				default:
				}
				return nil
			}

			if err := s.Execute(ctx, line); err != nil {
				if errors.Is(err, ErrQuit) {
					return nil
				}
				s.printf("error: %v\n", err)
			}
			s.printPrompt()
		}
	}
}

// Printf writes to the shell output, serialised with live messages.
func (s *Shell) Printf(format string, args ...any) {
	s.printf(format, args...)
}

func (s *Shell) printPrompt() {
	s.outMu.Lock()
	defer s.outMu.Unlock()
	fmt.Fprint(s.out, s.opts.Prompt) //nolint:errcheck // terminal output
}

func (s *Shell) printf(format string, args ...any) {
	s.outMu.Lock()
	defer s.outMu.Unlock()
	fmt.Fprintf(s.out, format, args...) //nolint:errcheck // terminal output
}

func (s *Shell) println(line string) {
	s.outMu.Lock()
	defer s.outMu.Unlock()
	fmt.Fprintln(s.out, line) //nolint:errcheck // terminal output
}

// splitWord returns the first whitespace-delimited word of s and the
// trimmed remainder.
func splitWord(s string) (word, rest string) {
	s = strings.TrimSpace(s)
	i := strings.IndexFunc(s, unicode.IsSpace)
	if i < 0 {
		return s, ""
	}
	return s[:i], strings.TrimSpace(s[i:])
}
