package shell

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/nerrad567/mqtt-inspect/internal/audit"
	"github.com/nerrad567/mqtt-inspect/internal/rule"
	"github.com/nerrad567/mqtt-inspect/internal/topic"
)

// defaultListSize is used by last and search when no count is given.
const defaultListSize = 10

type command struct {
	name    string
	aliases []string
	usage   string
	summary string
	run     func(s *Shell, ctx context.Context, args string) error
}

func (c *command) usageError() error {
	return fmt.Errorf("%w: %s", ErrUsage, c.usage)
}

func commandTable() []*command {
	return []*command{
		{name: "help", usage: "help [command]", summary: "list commands", run: (*Shell).cmdHelp},
		{name: "filter", usage: "filter <rule> | filter off", summary: "set or clear the live filter", run: (*Shell).cmdFilter},
		{name: "rule", usage: "rule", summary: "show the active filter", run: (*Shell).cmdRule},
		{name: "last", usage: "last [n]", summary: "show the n most recent messages", run: (*Shell).cmdLast},
		{name: "latest", usage: "latest", summary: "show the most recent message", run: (*Shell).cmdLatest},
		{name: "show", usage: "show <id>", summary: "show one message in full", run: (*Shell).cmdShow},
		{name: "search", aliases: []string{"topic"}, usage: "search <pattern> [limit]", summary: "find messages by topic pattern (alias: topic)", run: (*Shell).cmdSearch},
		{name: "count", usage: "count", summary: "show history size", run: (*Shell).cmdCount},
		{name: "clear", usage: "clear", summary: "empty the history", run: (*Shell).cmdClear},
		{name: "export", usage: "export [n]", summary: "print history as JSON", run: (*Shell).cmdExport},
		{name: "stats", usage: "stats", summary: "show filter counters", run: (*Shell).cmdStats},
		{name: "save", usage: "save [-f] <name>", summary: "save the active filter", run: (*Shell).cmdSave},
		{name: "load", usage: "load <name>", summary: "activate a saved filter", run: (*Shell).cmdLoad},
		{name: "rules", usage: "rules", summary: "list saved filters", run: (*Shell).cmdRules},
		{name: "forget", usage: "forget <name>", summary: "delete a saved filter", run: (*Shell).cmdForget},
		{name: "log", usage: "log [n]", summary: "show recent filter and rule activity", run: (*Shell).cmdLog},
		{name: "sub", usage: "sub [pattern]", summary: "subscribe to more topics, or list subscriptions", run: (*Shell).cmdSub},
		{name: "unsub", usage: "unsub <pattern>", summary: "drop a subscription", run: (*Shell).cmdUnsub},
		{name: "pub", usage: "pub <topic> <payload> [qos]", summary: "publish a message", run: (*Shell).cmdPub},
		{name: "unretain", usage: "unretain <topic>", summary: "clear the retained message on a topic", run: (*Shell).cmdUnretain},
		{name: "pause", usage: "pause", summary: "stop live output (history keeps recording)", run: (*Shell).cmdPause},
		{name: "resume", usage: "resume", summary: "restart live output", run: (*Shell).cmdResume},
		{name: "quit", aliases: []string{"exit"}, usage: "quit", summary: "leave the shell", run: (*Shell).cmdQuit},
	}
}

func (s *Shell) lookup(name string) *command {
	return s.byName[name]
}

func (s *Shell) cmdHelp(_ context.Context, args string) error {
	if args != "" {
		c := s.lookup(strings.ToLower(args))
		if c == nil {
			return fmt.Errorf("%w: %s", ErrUnknownCommand, args)
		}
		s.printf("%s\n  %s\n", c.usage, c.summary)
		return nil
	}

	for _, c := range s.commands {
		s.printf("  %-30s %s\n", c.usage, c.summary)
	}
	s.printf("\nRules: SELECT <fields|*> FROM '<topic pattern>' [WHERE <condition>]\n")
	return nil
}

func (s *Shell) cmdFilter(ctx context.Context, args string) error {
	if args == "" {
		return s.lookup("filter").usageError()
	}

	switch strings.ToLower(args) {
	case "off", "clear", "none":
		s.engine.Clear()
		s.journal(ctx, audit.ActionFilterClear, "", "")
		s.printf("filter cleared, showing all messages\n")
		return nil
	}

	def, err := s.engine.Apply(args)
	if err != nil {
		return fmt.Errorf("%w (active rule unchanged: %s)", err, describeRule(s.engine.Current()))
	}
	s.journal(ctx, audit.ActionFilterApply, "", def.String())
	s.printf("filter: %s\n", def)
	return nil
}

func (s *Shell) cmdRule(_ context.Context, _ string) error {
	def := s.engine.Current()
	if def == nil {
		s.printf("no active rule, showing all messages\n")
		return nil
	}
	s.printf("%s\n", def)
	return nil
}

func (s *Shell) cmdLast(ctx context.Context, args string) error {
	n := defaultListSize
	if args != "" {
		var err error
		if n, err = positiveInt(args); err != nil {
			return s.lookup("last").usageError()
		}
	}

	entries, err := s.store.Last(ctx, n)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		s.printf("history is empty\n")
		return nil
	}
	s.printEntries(entries)
	return nil
}

func (s *Shell) cmdLatest(ctx context.Context, _ string) error {
	e, ok, err := s.store.Latest(ctx)
	if err != nil {
		return err
	}
	if !ok {
		s.printf("history is empty\n")
		return nil
	}
	s.println(s.formatEntry(e, nil))
	return nil
}

func (s *Shell) cmdShow(ctx context.Context, args string) error {
	id, err := strconv.ParseInt(strings.TrimPrefix(args, "#"), 10, 64)
	if err != nil {
		return s.lookup("show").usageError()
	}

	e, ok, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		s.printf("no message with id %d\n", id)
		return nil
	}
	return s.printJSON(e.Record())
}

func (s *Shell) cmdSearch(ctx context.Context, args string) error {
	fields := strings.Fields(args)
	if len(fields) == 0 || len(fields) > 2 {
		return s.lookup("search").usageError()
	}

	pattern := fields[0]
	if err := topic.ValidatePattern(pattern); err != nil {
		return err
	}

	limit := 0
	if len(fields) == 2 {
		var err error
		if limit, err = positiveInt(fields[1]); err != nil {
			return s.lookup("search").usageError()
		}
	}

	entries, err := s.store.Search(ctx, pattern, limit)
	if err != nil {
		return err
	}
	s.printEntries(entries)
	s.printf("%s\n", plural(len(entries), "match", "matches"))
	return nil
}

func (s *Shell) cmdCount(ctx context.Context, _ string) error {
	n, err := s.store.Count(ctx)
	if err != nil {
		return err
	}
	latest, ok, err := s.store.LatestID(ctx)
	if err != nil {
		return err
	}

	s.printf("%d of %d messages stored", n, s.store.Capacity())
	if ok {
		s.printf(" (latest id %d)", latest)
	}
	s.printf("\n")
	return nil
}

func (s *Shell) cmdClear(ctx context.Context, _ string) error {
	if err := s.store.Clear(ctx); err != nil {
		return err
	}
	s.printf("history cleared\n")
	return nil
}

func (s *Shell) cmdExport(ctx context.Context, args string) error {
	limit := 0
	if args != "" {
		var err error
		if limit, err = positiveInt(args); err != nil {
			return s.lookup("export").usageError()
		}
	}

	records, err := s.store.Export(ctx, limit)
	if err != nil {
		return err
	}
	return s.printJSON(records)
}

func (s *Shell) cmdStats(ctx context.Context, _ string) error {
	stats := s.engine.Stats()
	n, err := s.store.Count(ctx)
	if err != nil {
		return err
	}

	output := "on"
	if s.paused.Load() {
		output = "paused"
	}

	s.printf("evaluated:   %d\n", stats.Evaluated)
	s.printf("matched:     %d\n", stats.Matched)
	s.printf("rejected:    %d\n", stats.Rejected)
	s.printf("active rule: %s\n", describeRule(s.engine.Current()))
	s.printf("stored:      %d/%d\n", n, s.store.Capacity())
	s.printf("live output: %s\n", output)

	if s.opts.Recorder != nil {
		s.opts.Recorder.RecordFilterStats(stats)
	}
	return nil
}

func (s *Shell) cmdSave(ctx context.Context, args string) error {
	if s.opts.Rules == nil {
		return ErrNoRuleStore
	}

	force := false
	fields := strings.Fields(args)
	if len(fields) == 2 && fields[0] == "-f" {
		force = true
		fields = fields[1:]
	}
	if len(fields) != 1 {
		return s.lookup("save").usageError()
	}
	name := fields[0]

	def := s.engine.Current()
	if def == nil {
		return ErrNoActiveRule
	}
	text, err := def.Canonical()
	if err != nil {
		return err
	}

	if _, err := s.opts.Rules.Save(ctx, name, text, force); err != nil {
		if errors.Is(err, rule.ErrRuleExists) {
			return fmt.Errorf("%w (use 'save -f %s' to replace it)", err, name)
		}
		return err
	}
	s.journal(ctx, audit.ActionRuleSave, name, text)
	s.printf("saved %q: %s\n", name, text)
	return nil
}

func (s *Shell) cmdLoad(ctx context.Context, args string) error {
	if s.opts.Rules == nil {
		return ErrNoRuleStore
	}
	if args == "" {
		return s.lookup("load").usageError()
	}

	saved, err := s.opts.Rules.Get(ctx, args)
	if err != nil {
		return err
	}
	def, err := s.engine.Apply(saved.Query)
	if err != nil {
		return fmt.Errorf("saved rule %q: %w", args, err)
	}
	s.journal(ctx, audit.ActionRuleLoad, args, def.String())
	s.printf("filter: %s\n", def)
	return nil
}

func (s *Shell) cmdRules(ctx context.Context, _ string) error {
	if s.opts.Rules == nil {
		return ErrNoRuleStore
	}

	saved, err := s.opts.Rules.List(ctx)
	if err != nil {
		return err
	}
	if len(saved) == 0 {
		s.printf("no saved rules\n")
		return nil
	}
	for _, r := range saved {
		s.printf("  %-20s %s\n", r.Name, r.Query)
	}
	return nil
}

func (s *Shell) cmdForget(ctx context.Context, args string) error {
	if s.opts.Rules == nil {
		return ErrNoRuleStore
	}
	if args == "" {
		return s.lookup("forget").usageError()
	}

	if err := s.opts.Rules.Delete(ctx, args); err != nil {
		return err
	}
	s.journal(ctx, audit.ActionRuleDelete, args, "")
	s.printf("forgot %q\n", args)
	return nil
}

func (s *Shell) cmdSub(ctx context.Context, args string) error {
	if s.opts.Subscriber == nil {
		return ErrNoSubscriber
	}
	if args == "" {
		filters := s.opts.Subscriber.Subscriptions()
		if len(filters) == 0 {
			s.printf("no subscriptions\n")
			return nil
		}
		for _, f := range filters {
			s.printf("%s\n", f)
		}
		return nil
	}
	if strings.ContainsFunc(args, unicode.IsSpace) {
		return s.lookup("sub").usageError()
	}
	if err := topic.ValidatePattern(args); err != nil {
		return err
	}

	if err := s.opts.Subscriber.Subscribe(args); err != nil {
		return err
	}
	s.journal(ctx, audit.ActionSubscribe, args, "")
	s.printf("subscribed to %s\n", args)
	return nil
}

func (s *Shell) cmdUnsub(ctx context.Context, args string) error {
	if s.opts.Subscriber == nil {
		return ErrNoSubscriber
	}
	if args == "" || strings.ContainsFunc(args, unicode.IsSpace) {
		return s.lookup("unsub").usageError()
	}

	if err := s.opts.Subscriber.Unsubscribe(args); err != nil {
		return err
	}
	s.journal(ctx, audit.ActionUnsubscribe, args, "")
	s.printf("unsubscribed from %s\n", args)
	return nil
}

func (s *Shell) cmdPub(ctx context.Context, args string) error {
	if s.opts.Publisher == nil {
		return ErrNoPublisher
	}

	target, payload, qos, err := parsePublish(args)
	if err != nil {
		return fmt.Errorf("%w (%s)", err, s.lookup("pub").usage)
	}

	if err := s.opts.Publisher.Publish(target, []byte(payload), qos, false); err != nil {
		return err
	}
	s.journal(ctx, audit.ActionPublish, target, fmt.Sprintf("%s qos %d", plural(len(payload), "byte", "bytes"), qos))
	s.printf("published %s to %s\n", plural(len(payload), "byte", "bytes"), target)
	return nil
}

func (s *Shell) cmdUnretain(ctx context.Context, args string) error {
	if s.opts.Publisher == nil {
		return ErrNoPublisher
	}
	if args == "" || strings.ContainsFunc(args, unicode.IsSpace) {
		return s.lookup("unretain").usageError()
	}

	if err := s.opts.Publisher.ClearRetained(args); err != nil {
		return err
	}
	s.journal(ctx, audit.ActionPublish, args, "retained message cleared")
	s.printf("cleared retained message on %s\n", args)
	return nil
}

func (s *Shell) cmdLog(ctx context.Context, args string) error {
	if s.opts.Journal == nil {
		return ErrNoJournal
	}

	limit := audit.DefaultLimit
	if args != "" {
		n, err := positiveInt(args)
		if err != nil {
			return s.lookup("log").usageError()
		}
		limit = n
	}

	entries, err := s.opts.Journal.List(ctx, audit.Filter{Limit: limit})
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		s.printf("no activity recorded\n")
		return nil
	}
	// Oldest first, like the message listings.
	for i := len(entries) - 1; i >= 0; i-- {
		s.printf("%s\n", formatActivity(entries[i], s.opts.TimestampFormat))
	}
	return nil
}

// journal records an activity entry. Failures are logged, never returned:
// the command itself has already succeeded.
func (s *Shell) journal(ctx context.Context, action, subject, detail string) {
	if s.opts.Journal == nil {
		return
	}
	e := &audit.Entry{Action: action, Subject: subject, Detail: detail, Source: audit.SourceShell}
	if err := s.opts.Journal.Record(ctx, e); err != nil {
		s.opts.Logger.Warn("recording activity failed", "action", action, "error", err)
	}
}

func (s *Shell) cmdPause(_ context.Context, _ string) error {
	s.paused.Store(true)
	s.printf("live output paused, history still recording\n")
	return nil
}

func (s *Shell) cmdResume(_ context.Context, _ string) error {
	s.paused.Store(false)
	s.printf("live output resumed\n")
	return nil
}

func (s *Shell) cmdQuit(_ context.Context, _ string) error {
	return ErrQuit
}

// parsePublish splits "pub" arguments into topic, payload and QoS.
// The payload is one word or a single- or double-quoted string.
func parsePublish(args string) (target, payload string, qos byte, err error) {
	target, rest := splitWord(args)
	if target == "" || rest == "" {
		return "", "", 0, fmt.Errorf("%w: topic and payload required", ErrUsage)
	}
	if strings.ContainsAny(target, "+#") {
		return "", "", 0, fmt.Errorf("%w: cannot publish to wildcard topic %q", ErrUsage, target)
	}

	var tail string
	if q := rest[0]; q == '\'' || q == '"' {
		end := strings.IndexByte(rest[1:], q)
		if end < 0 {
			return "", "", 0, fmt.Errorf("%w: unterminated quote in payload", ErrUsage)
		}
		payload = rest[1 : end+1]
		tail = strings.TrimSpace(rest[end+2:])
	} else {
		payload, tail = splitWord(rest)
	}

	if tail != "" {
		n, convErr := strconv.Atoi(tail)
		if convErr != nil || n < 0 || n > 2 {
			return "", "", 0, fmt.Errorf("%w: qos must be 0, 1 or 2", ErrUsage)
		}
		qos = byte(n)
	}
	return target, payload, qos, nil
}

func positiveInt(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, fmt.Errorf("%d is not positive", n)
	}
	return n, nil
}
