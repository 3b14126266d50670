package shell

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/mqtt-inspect/internal/audit"
	"github.com/nerrad567/mqtt-inspect/internal/history"
	"github.com/nerrad567/mqtt-inspect/internal/message"
	"github.com/nerrad567/mqtt-inspect/internal/rule"
	"github.com/nerrad567/mqtt-inspect/internal/topic"
)

// ============================================================================
// Fakes
// ============================================================================

type published struct {
	topic   string
	payload string
	qos     byte
}

type fakePublisher struct {
	sent    []published
	cleared []string
	err     error
}

func (p *fakePublisher) Publish(topic string, payload []byte, qos byte, _ bool) error {
	if p.err != nil {
		return p.err
	}
	p.sent = append(p.sent, published{topic, string(payload), qos})
	return nil
}

func (p *fakePublisher) ClearRetained(topic string) error {
	if p.err != nil {
		return p.err
	}
	p.cleared = append(p.cleared, topic)
	return nil
}

type fakeSubscriber struct {
	filters []string
}

func (s *fakeSubscriber) Subscribe(filter string) error {
	s.filters = append(s.filters, filter)
	return nil
}

func (s *fakeSubscriber) Unsubscribe(filter string) error {
	for i, f := range s.filters {
		if f == filter {
			s.filters = append(s.filters[:i], s.filters[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrNotSubscribed, filter)
}

func (s *fakeSubscriber) Subscriptions() []string {
	out := append([]string(nil), s.filters...)
	sort.Strings(out)
	return out
}

type fakeRules struct {
	saved map[string]rule.Saved
}

func newFakeRules() *fakeRules {
	return &fakeRules{saved: make(map[string]rule.Saved)}
}

func (r *fakeRules) Save(_ context.Context, name, query string, overwrite bool) (*rule.Saved, error) {
	if _, ok := r.saved[name]; ok && !overwrite {
		return nil, rule.ErrRuleExists
	}
	s := rule.Saved{Name: name, Query: query}
	r.saved[name] = s
	return &s, nil
}

func (r *fakeRules) Get(_ context.Context, name string) (*rule.Saved, error) {
	s, ok := r.saved[name]
	if !ok {
		return nil, rule.ErrRuleNotFound
	}
	return &s, nil
}

func (r *fakeRules) List(_ context.Context) ([]rule.Saved, error) {
	out := make([]rule.Saved, 0, len(r.saved))
	for _, s := range r.saved {
		out = append(out, s)
	}
	return out, nil
}

func (r *fakeRules) Delete(_ context.Context, name string) error {
	if _, ok := r.saved[name]; !ok {
		return rule.ErrRuleNotFound
	}
	delete(r.saved, name)
	return nil
}

type fakeRecorder struct {
	mu    sync.Mutex
	shown []bool
	stats []rule.Stats
}

func (r *fakeRecorder) RecordMessage(_ message.Message, shown bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.shown = append(r.shown, shown)
}

func (r *fakeRecorder) RecordFilterStats(stats rule.Stats) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats = append(r.stats, stats)
}

type observed struct {
	id    int64
	shown bool
	rule  string
}

type fakeObserver struct {
	mu   sync.Mutex
	seen []observed
}

func (o *fakeObserver) Observe(e history.Entry, def *rule.Definition, shown bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	text := ""
	if def != nil {
		text = def.String()
	}
	o.seen = append(o.seen, observed{e.ID, shown, text})
}

// fakeJournal keeps entries newest first, like the SQLite journal.
type fakeJournal struct {
	entries []audit.Entry
	err     error
}

func (j *fakeJournal) Record(_ context.Context, e *audit.Entry) error {
	if j.err != nil {
		return j.err
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Date(2026, 1, 1, 12, 0, len(j.entries), 0, time.UTC)
	}
	j.entries = append([]audit.Entry{*e}, j.entries...)
	return nil
}

func (j *fakeJournal) List(_ context.Context, filter audit.Filter) ([]audit.Entry, error) {
	if filter.Limit > 0 && filter.Limit < len(j.entries) {
		return j.entries[:filter.Limit], nil
	}
	return j.entries, nil
}

func (j *fakeJournal) actions() []string {
	var out []string
	for i := len(j.entries) - 1; i >= 0; i-- {
		out = append(out, j.entries[i].Action)
	}
	return out
}

// ============================================================================
// Helpers
// ============================================================================

// newTestShell returns a shell over a running store of capacity 5.
func newTestShell(t *testing.T, opts Options) (*Shell, *bytes.Buffer) {
	t.Helper()

	store := history.NewStore(history.NewBuffer(5, nil))
	ctx, cancel := context.WithCancel(context.Background())
	go store.Run(ctx) //nolint:errcheck // returns ctx.Err on cleanup
	t.Cleanup(func() {
		cancel()
		<-store.Done()
	})

	out := &bytes.Buffer{}
	return New(store, rule.NewEngine(nil, nil), out, opts), out
}

func mqttMsg(topicName, body string) message.Message {
	return message.FromMQTT(message.TypeReceived, "test", topicName, []byte(body), 0, false)
}

func ingest(t *testing.T, s *Shell, msgs ...message.Message) {
	t.Helper()
	for _, m := range msgs {
		if err := s.Ingest(context.Background(), m); err != nil {
			t.Fatalf("Ingest() error = %v", err)
		}
	}
}

func run(t *testing.T, s *Shell, line string) {
	t.Helper()
	if err := s.Execute(context.Background(), line); err != nil {
		t.Fatalf("Execute(%q) error = %v", line, err)
	}
}

// ============================================================================
// Ingest
// ============================================================================

func TestIngest_NoRuleShowsEverything(t *testing.T) {
	s, out := newTestShell(t, Options{})

	ingest(t, s, mqttMsg("sensors/temp", `{"temp":21}`))

	got := out.String()
	for _, want := range []string{"#1 ", "sensors/temp", `{"temp":21}`} {
		if !strings.Contains(got, want) {
			t.Errorf("output = %q, missing %q", got, want)
		}
	}
}

func TestIngest_FilterHidesButRecords(t *testing.T) {
	s, out := newTestShell(t, Options{})
	run(t, s, "filter SELECT * FROM 'sensors/#' WHERE temp > 30")
	out.Reset()

	ingest(t, s,
		mqttMsg("sensors/a", `{"temp":35}`),
		mqttMsg("sensors/b", `{"temp":10}`),
		mqttMsg("other/x", `{"temp":99}`),
	)

	got := out.String()
	if !strings.Contains(got, "sensors/a") {
		t.Errorf("output = %q, want sensors/a shown", got)
	}
	for _, hidden := range []string{"sensors/b", "other/x"} {
		if strings.Contains(got, hidden) {
			t.Errorf("output = %q, %s should be hidden", got, hidden)
		}
	}

	out.Reset()
	run(t, s, "count")
	if !strings.Contains(out.String(), "3 of 5 messages stored") {
		t.Errorf("count output = %q, want all 3 messages recorded", out.String())
	}
}

func TestIngest_ProjectsSelectedFields(t *testing.T) {
	s, out := newTestShell(t, Options{})
	run(t, s, "filter SELECT temp FROM '#'")
	out.Reset()

	ingest(t, s, mqttMsg("sensors/a", `{"temp":21,"hum":40}`))

	got := out.String()
	if !strings.Contains(got, `{"temp":21}`) {
		t.Errorf("output = %q, want projected temp", got)
	}
	if strings.Contains(got, "hum") {
		t.Errorf("output = %q, hum should not be selected", got)
	}
}

func TestIngest_RetainedMarkerAndTruncation(t *testing.T) {
	s, out := newTestShell(t, Options{MaxPayloadDisplay: 4})

	ingest(t, s, message.FromMQTT(message.TypeReceived, "test", "state/door", []byte("opened"), 1, true))

	got := out.String()
	if !strings.Contains(got, "(retained)") {
		t.Errorf("output = %q, want retained marker", got)
	}
	if !strings.Contains(got, "open...") || strings.Contains(got, "opened") {
		t.Errorf("output = %q, want payload truncated to 4 bytes", got)
	}
}

func TestIngest_Recorder(t *testing.T) {
	rec := &fakeRecorder{}
	s, _ := newTestShell(t, Options{Recorder: rec})
	run(t, s, "filter SELECT * FROM 'a/#'")

	ingest(t, s, mqttMsg("a/1", "x"), mqttMsg("b/1", "y"))

	want := []bool{true, false}
	if len(rec.shown) != len(want) || rec.shown[0] != want[0] || rec.shown[1] != want[1] {
		t.Errorf("recorded shown = %v, want %v", rec.shown, want)
	}
}

func TestIngest_Observer(t *testing.T) {
	obs := &fakeObserver{}
	s, _ := newTestShell(t, Options{Observer: obs})

	run(t, s, "filter SELECT * FROM 'a/#'")
	run(t, s, "pause")
	ingest(t, s, mqttMsg("a/1", "x"), mqttMsg("b/1", "y"))

	want := []observed{{1, true, "SELECT * FROM 'a/#'"}, {2, false, "SELECT * FROM 'a/#'"}}
	if len(obs.seen) != len(want) {
		t.Fatalf("observer saw %d messages, want %d", len(obs.seen), len(want))
	}
	for i, w := range want {
		if obs.seen[i] != w {
			t.Errorf("observed[%d] = %+v, want %+v", i, obs.seen[i], w)
		}
	}
}

func TestIngest_StoppedStore(t *testing.T) {
	store := history.NewStore(history.NewBuffer(5, nil))
	ctx, cancel := context.WithCancel(context.Background())
	go store.Run(ctx) //nolint:errcheck // stopped below
	cancel()
	<-store.Done()

	s := New(store, rule.NewEngine(nil, nil), &bytes.Buffer{}, Options{})
	err := s.Ingest(context.Background(), mqttMsg("a", "1"))
	if !errors.Is(err, history.ErrStoreStopped) {
		t.Errorf("Ingest() error = %v, want ErrStoreStopped", err)
	}
}

// ============================================================================
// Filter commands
// ============================================================================

func TestFilter_ParseErrorKeepsPreviousRule(t *testing.T) {
	s, out := newTestShell(t, Options{})
	run(t, s, "filter SELECT * FROM 'a/#'")
	before := s.engine.Current()

	err := s.Execute(context.Background(), "filter SELECT * FROM a/#")
	if !errors.Is(err, rule.ErrInvalidFrom) {
		t.Fatalf("Execute() error = %v, want ErrInvalidFrom", err)
	}
	if !strings.Contains(err.Error(), "active rule unchanged: SELECT * FROM 'a/#'") {
		t.Errorf("error = %q, want previous rule mentioned", err)
	}
	if s.engine.Current() != before {
		t.Error("previous rule should stay active after a parse error")
	}

	out.Reset()
	run(t, s, "rule")
	if strings.TrimSpace(out.String()) != "SELECT * FROM 'a/#'" {
		t.Errorf("rule output = %q", out.String())
	}
}

func TestFilter_Off(t *testing.T) {
	s, out := newTestShell(t, Options{})
	run(t, s, "filter SELECT * FROM 'a/#'")
	run(t, s, "filter off")

	if s.engine.Current() != nil {
		t.Error("filter off should clear the rule")
	}
	out.Reset()
	run(t, s, "rule")
	if !strings.Contains(out.String(), "no active rule") {
		t.Errorf("rule output = %q, want no active rule", out.String())
	}
}

func TestFilter_MissingArgument(t *testing.T) {
	s, _ := newTestShell(t, Options{})
	if err := s.Execute(context.Background(), "filter"); !errors.Is(err, ErrUsage) {
		t.Errorf("Execute(filter) error = %v, want ErrUsage", err)
	}
}

// ============================================================================
// History commands
// ============================================================================

func TestLastLatestShow(t *testing.T) {
	s, out := newTestShell(t, Options{})
	ingest(t, s, mqttMsg("t/one", "a"), mqttMsg("t/two", "b"), mqttMsg("t/three", "c"))

	out.Reset()
	run(t, s, "last 2")
	got := out.String()
	if strings.Contains(got, "t/one") || !strings.Contains(got, "t/two") || !strings.Contains(got, "t/three") {
		t.Errorf("last 2 output = %q, want t/two and t/three", got)
	}

	out.Reset()
	run(t, s, "latest")
	if !strings.Contains(out.String(), "#3 ") {
		t.Errorf("latest output = %q, want #3", out.String())
	}

	out.Reset()
	run(t, s, "show 2")
	var rec history.Record
	if err := json.Unmarshal(out.Bytes(), &rec); err != nil {
		t.Fatalf("show output is not JSON: %v\n%s", err, out.String())
	}
	if rec.ID != 2 || rec.Payload["topic"] != "t/two" {
		t.Errorf("show 2 = %+v, want id 2 topic t/two", rec)
	}

	out.Reset()
	run(t, s, "show 99")
	if !strings.Contains(out.String(), "no message with id 99") {
		t.Errorf("show 99 output = %q", out.String())
	}
}

func TestHistoryCommands_EmptyAndUsage(t *testing.T) {
	s, out := newTestShell(t, Options{})

	for _, line := range []string{"last", "latest"} {
		out.Reset()
		run(t, s, line)
		if !strings.Contains(out.String(), "history is empty") {
			t.Errorf("%s output = %q, want history is empty", line, out.String())
		}
	}

	for _, line := range []string{"last x", "last 0", "show abc", "search", "export -1"} {
		if err := s.Execute(context.Background(), line); !errors.Is(err, ErrUsage) {
			t.Errorf("Execute(%q) error = %v, want ErrUsage", line, err)
		}
	}
}

func TestSearch(t *testing.T) {
	s, out := newTestShell(t, Options{})
	ingest(t, s, mqttMsg("sensors/a", "1"), mqttMsg("alerts/b", "2"), mqttMsg("sensors/c", "3"))

	tests := []struct {
		line     string
		contains []string
		excludes []string
	}{
		{"search sensors/#", []string{"sensors/a", "sensors/c", "2 matches"}, []string{"alerts/b"}},
		{"search sensors/# 1", []string{"sensors/a", "1 match"}, []string{"sensors/c"}},
		{"topic alerts/+", []string{"alerts/b", "1 match"}, []string{"sensors/"}},
		{"search nothing/here", []string{"0 matches"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			out.Reset()
			run(t, s, tt.line)
			got := out.String()
			for _, want := range tt.contains {
				if !strings.Contains(got, want) {
					t.Errorf("output = %q, missing %q", got, want)
				}
			}
			for _, bad := range tt.excludes {
				if strings.Contains(got, bad) {
					t.Errorf("output = %q, should not contain %q", got, bad)
				}
			}
		})
	}

	if err := s.Execute(context.Background(), "search a/#/b"); !errors.Is(err, topic.ErrInvalidPattern) {
		t.Errorf("search with invalid pattern error = %v, want ErrInvalidPattern", err)
	}
}

func TestCountAndClear(t *testing.T) {
	s, out := newTestShell(t, Options{})
	ingest(t, s, mqttMsg("a", "1"), mqttMsg("b", "2"))

	out.Reset()
	run(t, s, "count")
	if got := strings.TrimSpace(out.String()); got != "2 of 5 messages stored (latest id 2)" {
		t.Errorf("count output = %q", got)
	}

	run(t, s, "clear")
	out.Reset()
	run(t, s, "count")
	if got := strings.TrimSpace(out.String()); got != "0 of 5 messages stored" {
		t.Errorf("count after clear = %q", got)
	}

	// Ids keep counting after clear.
	out.Reset()
	ingest(t, s, mqttMsg("c", "3"))
	if !strings.Contains(out.String(), "#3 ") {
		t.Errorf("output after clear = %q, want id 3", out.String())
	}
}

func TestExport(t *testing.T) {
	s, out := newTestShell(t, Options{})

	run(t, s, "export")
	if strings.TrimSpace(out.String()) != "[]" {
		t.Errorf("export of empty history = %q, want []", out.String())
	}

	ingest(t, s, mqttMsg("a", "1"), mqttMsg("b", "2"), mqttMsg("c", "3"))

	out.Reset()
	run(t, s, "export 2")
	var records []history.Record
	if err := json.Unmarshal(out.Bytes(), &records); err != nil {
		t.Fatalf("export output is not JSON: %v", err)
	}
	if len(records) != 2 || records[0].ID != 2 || records[1].ID != 3 {
		t.Errorf("export 2 = %+v, want ids [2 3]", records)
	}
	if !strings.Contains(out.String(), "\n  ") {
		t.Error("export output should be indented")
	}
}

func TestStats(t *testing.T) {
	rec := &fakeRecorder{}
	s, out := newTestShell(t, Options{Recorder: rec})
	run(t, s, "filter SELECT * FROM 'a'")
	ingest(t, s, mqttMsg("a", "1"), mqttMsg("b", "2"))

	out.Reset()
	run(t, s, "stats")
	got := out.String()
	for _, want := range []string{"evaluated:   2", "matched:     1", "rejected:    1", "stored:      2/5", "live output: on"} {
		if !strings.Contains(got, want) {
			t.Errorf("stats output = %q, missing %q", got, want)
		}
	}
	if len(rec.stats) != 1 || rec.stats[0].Evaluated != 2 {
		t.Errorf("recorded stats = %+v, want one snapshot with 2 evaluated", rec.stats)
	}
}

// ============================================================================
// Pause / resume
// ============================================================================

func TestPauseResume(t *testing.T) {
	s, out := newTestShell(t, Options{})

	run(t, s, "pause")
	if !s.Paused() {
		t.Fatal("Paused() = false after pause")
	}
	out.Reset()
	ingest(t, s, mqttMsg("quiet", "1"))
	if out.Len() != 0 {
		t.Errorf("output while paused = %q, want nothing", out.String())
	}

	run(t, s, "resume")
	out.Reset()
	ingest(t, s, mqttMsg("loud", "2"))
	if !strings.Contains(out.String(), "#2 ") {
		t.Errorf("output after resume = %q, want #2", out.String())
	}
}

// ============================================================================
// Saved rules
// ============================================================================

func TestSavedRules(t *testing.T) {
	store := newFakeRules()
	s, out := newTestShell(t, Options{Rules: store})
	ctx := context.Background()

	if err := s.Execute(ctx, "save hot"); !errors.Is(err, ErrNoActiveRule) {
		t.Errorf("save without rule error = %v, want ErrNoActiveRule", err)
	}

	run(t, s, "filter select * from 'sensors/#' where temp > 30")
	run(t, s, "save hot")
	if got := store.saved["hot"].Query; got != "SELECT * FROM 'sensors/#' WHERE temp > 30" {
		t.Errorf("saved query = %q, want canonical text", got)
	}

	err := s.Execute(ctx, "save hot")
	if !errors.Is(err, rule.ErrRuleExists) || !strings.Contains(err.Error(), "save -f hot") {
		t.Errorf("save existing error = %v, want ErrRuleExists with hint", err)
	}
	run(t, s, "save -f hot")

	run(t, s, "filter off")
	run(t, s, "load hot")
	if s.engine.Current() == nil || s.engine.Current().String() != "SELECT * FROM 'sensors/#' WHERE temp > 30" {
		t.Errorf("load hot activated %v", s.engine.Current())
	}

	out.Reset()
	run(t, s, "rules")
	if !strings.Contains(out.String(), "hot") {
		t.Errorf("rules output = %q, want hot", out.String())
	}

	run(t, s, "forget hot")
	if err := s.Execute(ctx, "load hot"); !errors.Is(err, rule.ErrRuleNotFound) {
		t.Errorf("load after forget error = %v, want ErrRuleNotFound", err)
	}

	out.Reset()
	run(t, s, "rules")
	if !strings.Contains(out.String(), "no saved rules") {
		t.Errorf("rules output = %q, want no saved rules", out.String())
	}
}

func TestSavedRules_Unavailable(t *testing.T) {
	s, _ := newTestShell(t, Options{})

	for _, line := range []string{"save x", "load x", "rules", "forget x"} {
		if err := s.Execute(context.Background(), line); !errors.Is(err, ErrNoRuleStore) {
			t.Errorf("Execute(%q) error = %v, want ErrNoRuleStore", line, err)
		}
	}
}

// ============================================================================
// Broker commands
// ============================================================================

func TestSub(t *testing.T) {
	sub := &fakeSubscriber{}
	s, _ := newTestShell(t, Options{Subscriber: sub})

	run(t, s, "sub sensors/+/temp")
	if len(sub.filters) != 1 || sub.filters[0] != "sensors/+/temp" {
		t.Errorf("subscribed = %v, want [sensors/+/temp]", sub.filters)
	}

	if err := s.Execute(context.Background(), "sub a/#/b"); !errors.Is(err, topic.ErrInvalidPattern) {
		t.Errorf("sub invalid error = %v, want ErrInvalidPattern", err)
	}
	if err := s.Execute(context.Background(), "sub a b"); !errors.Is(err, ErrUsage) {
		t.Errorf("sub with two args error = %v, want ErrUsage", err)
	}
	if len(sub.filters) != 1 {
		t.Errorf("invalid filters should not reach the subscriber: %v", sub.filters)
	}
}

func TestSub_List(t *testing.T) {
	sub := &fakeSubscriber{}
	s, out := newTestShell(t, Options{Subscriber: sub})

	run(t, s, "sub")
	if !strings.Contains(out.String(), "no subscriptions") {
		t.Errorf("sub output = %q, want no subscriptions", out.String())
	}

	run(t, s, "sub z/#")
	run(t, s, "sub a/+")
	out.Reset()
	run(t, s, "sub")
	if got := out.String(); got != "a/+\nz/#\n" {
		t.Errorf("sub output = %q, want sorted filters", got)
	}
}

func TestUnsub(t *testing.T) {
	sub := &fakeSubscriber{filters: []string{"a/#", "b/#"}}
	journal := &fakeJournal{}
	s, out := newTestShell(t, Options{Subscriber: sub, Journal: journal})

	run(t, s, "unsub a/#")
	if len(sub.filters) != 1 || sub.filters[0] != "b/#" {
		t.Errorf("filters = %v, want [b/#]", sub.filters)
	}
	if !strings.Contains(out.String(), "unsubscribed from a/#") {
		t.Errorf("unsub output = %q", out.String())
	}
	if got := journal.actions(); len(got) != 1 || got[0] != audit.ActionUnsubscribe {
		t.Errorf("journal actions = %v, want [%s]", got, audit.ActionUnsubscribe)
	}

	tests := []struct {
		line string
		want error
	}{
		{"unsub a/#", ErrNotSubscribed},
		{"unsub", ErrUsage},
		{"unsub a b", ErrUsage},
	}
	for _, tt := range tests {
		if err := s.Execute(context.Background(), tt.line); !errors.Is(err, tt.want) {
			t.Errorf("Execute(%q) error = %v, want %v", tt.line, err, tt.want)
		}
	}
}

func TestUnretain(t *testing.T) {
	pub := &fakePublisher{}
	journal := &fakeJournal{}
	s, out := newTestShell(t, Options{Publisher: pub, Journal: journal})

	run(t, s, "unretain lights/kitchen")
	if len(pub.cleared) != 1 || pub.cleared[0] != "lights/kitchen" {
		t.Errorf("cleared = %v, want [lights/kitchen]", pub.cleared)
	}
	if !strings.Contains(out.String(), "cleared retained message on lights/kitchen") {
		t.Errorf("unretain output = %q", out.String())
	}
	if len(journal.entries) != 1 || journal.entries[0].Detail != "retained message cleared" {
		t.Errorf("journal = %+v", journal.entries)
	}

	if err := s.Execute(context.Background(), "unretain"); !errors.Is(err, ErrUsage) {
		t.Errorf("unretain error = %v, want ErrUsage", err)
	}
	pub.err = errors.New("offline")
	if err := s.Execute(context.Background(), "unretain a"); err == nil || err.Error() != "offline" {
		t.Errorf("unretain error = %v, want offline", err)
	}
}

func TestPub(t *testing.T) {
	pub := &fakePublisher{}
	s, out := newTestShell(t, Options{Publisher: pub})

	run(t, s, `pub lights/kitchen '{"on": true}' 1`)
	if len(pub.sent) != 1 {
		t.Fatalf("published %d messages, want 1", len(pub.sent))
	}
	want := published{"lights/kitchen", `{"on": true}`, 1}
	if pub.sent[0] != want {
		t.Errorf("published %+v, want %+v", pub.sent[0], want)
	}
	if !strings.Contains(out.String(), "published 12 bytes to lights/kitchen") {
		t.Errorf("pub output = %q", out.String())
	}

	pub.err = errors.New("offline")
	if err := s.Execute(context.Background(), "pub a b"); err == nil || err.Error() != "offline" {
		t.Errorf("pub error = %v, want offline", err)
	}
}

func TestBrokerCommands_Unavailable(t *testing.T) {
	s, _ := newTestShell(t, Options{})

	if err := s.Execute(context.Background(), "sub a"); !errors.Is(err, ErrNoSubscriber) {
		t.Errorf("sub error = %v, want ErrNoSubscriber", err)
	}
	if err := s.Execute(context.Background(), "pub a b"); !errors.Is(err, ErrNoPublisher) {
		t.Errorf("pub error = %v, want ErrNoPublisher", err)
	}
	if err := s.Execute(context.Background(), "unsub a"); !errors.Is(err, ErrNoSubscriber) {
		t.Errorf("unsub error = %v, want ErrNoSubscriber", err)
	}
	if err := s.Execute(context.Background(), "unretain a"); !errors.Is(err, ErrNoPublisher) {
		t.Errorf("unretain error = %v, want ErrNoPublisher", err)
	}
}

// ============================================================================
// Activity journal
// ============================================================================

func TestJournal_RecordsActivity(t *testing.T) {
	journal := &fakeJournal{}
	s, _ := newTestShell(t, Options{
		Rules:      newFakeRules(),
		Publisher:  &fakePublisher{},
		Subscriber: &fakeSubscriber{},
		Journal:    journal,
	})

	for _, line := range []string{
		"filter SELECT * FROM 'a/#'",
		"save hot",
		"filter off",
		"load hot",
		"forget hot",
		"sub b/+",
		"pub b/c hello 1",
	} {
		run(t, s, line)
	}

	want := []string{
		audit.ActionFilterApply,
		audit.ActionRuleSave,
		audit.ActionFilterClear,
		audit.ActionRuleLoad,
		audit.ActionRuleDelete,
		audit.ActionSubscribe,
		audit.ActionPublish,
	}
	got := journal.actions()
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("journal actions = %v, want %v", got, want)
	}

	save := journal.entries[len(journal.entries)-2]
	if save.Subject != "hot" || save.Detail != "SELECT * FROM 'a/#'" || save.Source != audit.SourceShell {
		t.Errorf("save entry = %+v", save)
	}
	pub := journal.entries[0]
	if pub.Subject != "b/c" || pub.Detail != "5 bytes qos 1" {
		t.Errorf("pub entry = %+v", pub)
	}
}

func TestJournal_FailedCommandNotRecorded(t *testing.T) {
	journal := &fakeJournal{}
	s, _ := newTestShell(t, Options{Journal: journal})

	if err := s.Execute(context.Background(), "filter SELECT FROM"); err == nil {
		t.Fatal("Execute() expected parse error")
	}
	if len(journal.entries) != 0 {
		t.Errorf("journal has %d entries, want 0", len(journal.entries))
	}
}

func TestJournal_RecordErrorDoesNotFailCommand(t *testing.T) {
	s, out := newTestShell(t, Options{Journal: &fakeJournal{err: errors.New("disk full")}})

	run(t, s, "filter SELECT * FROM '#'")
	if !strings.Contains(out.String(), "filter: SELECT * FROM '#'") {
		t.Errorf("output = %q, want filter confirmation", out.String())
	}
}

func TestLog(t *testing.T) {
	journal := &fakeJournal{}
	s, out := newTestShell(t, Options{Journal: journal, TimestampFormat: "15:04"})

	run(t, s, "log")
	if !strings.Contains(out.String(), "no activity recorded") {
		t.Errorf("output = %q, want empty notice", out.String())
	}

	run(t, s, "filter SELECT * FROM 'x'")
	run(t, s, "filter off")
	out.Reset()

	run(t, s, "log")
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("log printed %d lines, want 2: %q", len(lines), out.String())
	}
	if !strings.Contains(lines[0], audit.ActionFilterApply) || !strings.Contains(lines[0], "SELECT * FROM 'x'") {
		t.Errorf("first line = %q, want the apply entry", lines[0])
	}
	if !strings.Contains(lines[1], audit.ActionFilterClear) {
		t.Errorf("second line = %q, want the clear entry", lines[1])
	}

	out.Reset()
	run(t, s, "log 1")
	if got := strings.Count(out.String(), "\n"); got != 1 {
		t.Errorf("log 1 printed %d lines, want 1", got)
	}

	if err := s.Execute(context.Background(), "log zero"); !errors.Is(err, ErrUsage) {
		t.Errorf("log zero error = %v, want ErrUsage", err)
	}
}

func TestLog_Unavailable(t *testing.T) {
	s, _ := newTestShell(t, Options{})

	if err := s.Execute(context.Background(), "log"); !errors.Is(err, ErrNoJournal) {
		t.Errorf("log error = %v, want ErrNoJournal", err)
	}
}

func TestFormatActivity(t *testing.T) {
	at := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		entry audit.Entry
		want  []string
		skip  string
	}{
		{
			name:  "rule save",
			entry: audit.Entry{Action: audit.ActionRuleSave, Subject: "hot", Detail: "SELECT * FROM '#'", Source: audit.SourceShell, CreatedAt: at},
			want:  []string{"rule.save", "hot", "SELECT * FROM '#'"},
			skip:  "[shell]",
		},
		{
			name:  "cli source shown",
			entry: audit.Entry{Action: audit.ActionRuleDelete, Subject: "hot", Source: audit.SourceCLI, CreatedAt: at},
			want:  []string{"rule.delete", "hot", "[cli]"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := formatActivity(tt.entry, time.RFC3339)
			for _, w := range tt.want {
				if !strings.Contains(got, w) {
					t.Errorf("formatActivity() = %q, want it to contain %q", got, w)
				}
			}
			if tt.skip != "" && strings.Contains(got, tt.skip) {
				t.Errorf("formatActivity() = %q, should not contain %q", got, tt.skip)
			}
			if strings.HasSuffix(got, " ") {
				t.Errorf("formatActivity() = %q has trailing space", got)
			}
		})
	}
}

func TestParsePublish(t *testing.T) {
	tests := []struct {
		args        string
		wantTopic   string
		wantPayload string
		wantQoS     byte
		wantErr     bool
	}{
		{"a/b hello", "a/b", "hello", 0, false},
		{"a/b hello 2", "a/b", "hello", 2, false},
		{`a/b "hello world"`, "a/b", "hello world", 0, false},
		{`a/b 'x y' 1`, "a/b", "x y", 1, false},
		{`a/b ''`, "a/b", "", 0, false},
		{"a/b", "", "", 0, true},
		{"", "", "", 0, true},
		{"a/# x", "", "", 0, true},
		{`a/b 'open`, "", "", 0, true},
		{"a/b x 3", "", "", 0, true},
		{"a/b x y", "", "", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.args, func(t *testing.T) {
			gotTopic, gotPayload, gotQoS, err := parsePublish(tt.args)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parsePublish() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if !errors.Is(err, ErrUsage) {
					t.Errorf("parsePublish() error = %v, want ErrUsage", err)
				}
				return
			}
			if gotTopic != tt.wantTopic || gotPayload != tt.wantPayload || gotQoS != tt.wantQoS {
				t.Errorf("parsePublish() = %q, %q, %d, want %q, %q, %d",
					gotTopic, gotPayload, gotQoS, tt.wantTopic, tt.wantPayload, tt.wantQoS)
			}
		})
	}
}

// ============================================================================
// Dispatch and Run
// ============================================================================

func TestExecute_Dispatch(t *testing.T) {
	s, out := newTestShell(t, Options{})
	ctx := context.Background()

	if err := s.Execute(ctx, "   "); err != nil {
		t.Errorf("Execute(blank) error = %v, want nil", err)
	}
	if err := s.Execute(ctx, "frobnicate"); !errors.Is(err, ErrUnknownCommand) {
		t.Errorf("Execute(unknown) error = %v, want ErrUnknownCommand", err)
	}
	for _, line := range []string{"quit", "exit", "QUIT"} {
		if err := s.Execute(ctx, line); !errors.Is(err, ErrQuit) {
			t.Errorf("Execute(%q) error = %v, want ErrQuit", line, err)
		}
	}

	out.Reset()
	run(t, s, "help")
	for _, want := range []string{"filter <rule>", "search <pattern> [limit]", "pub <topic> <payload> [qos]", "SELECT"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("help output missing %q", want)
		}
	}

	out.Reset()
	run(t, s, "help topic")
	if !strings.HasPrefix(out.String(), "search <pattern> [limit]") {
		t.Errorf("help topic = %q, want search usage", out.String())
	}
}

func TestRun_Script(t *testing.T) {
	s, out := newTestShell(t, Options{Prompt: "> "})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	script := strings.Join([]string{
		"filter SELECT * FROM 'a/#'",
		"bogus",
		"rule",
		"quit",
		"count",
	}, "\n")

	if err := s.Run(ctx, strings.NewReader(script)); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	got := out.String()
	for _, want := range []string{"> ", "filter: SELECT * FROM 'a/#'", "error: shell: unknown command: bogus"} {
		if !strings.Contains(got, want) {
			t.Errorf("output = %q, missing %q", got, want)
		}
	}
	if strings.Contains(got, "messages stored") {
		t.Error("commands after quit should not run")
	}
}

func TestRun_EOF(t *testing.T) {
	s, _ := newTestShell(t, Options{})
	if err := s.Run(context.Background(), strings.NewReader("count\n")); err != nil {
		t.Errorf("Run() at EOF error = %v, want nil", err)
	}
}

func TestRun_Cancelled(t *testing.T) {
	s, _ := newTestShell(t, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// A reader that never returns: Run must still exit on cancellation.
	r, w := io.Pipe()
	defer w.Close()

	if err := s.Run(ctx, r); err != nil {
		t.Errorf("Run() after cancel error = %v, want nil", err)
	}
}

// ============================================================================
// Formatting
// ============================================================================

func TestTruncate(t *testing.T) {
	tests := []struct {
		in    string
		limit int
		want  string
	}{
		{"hello", 0, "hello"},
		{"hello", 5, "hello"},
		{"hello", 3, "hel..."},
		{"héllo", 2, "h..."},
		{"", 3, ""},
	}

	for _, tt := range tests {
		if got := truncate(tt.in, tt.limit); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.limit, got, tt.want)
		}
	}
}

func TestSplitWord(t *testing.T) {
	tests := []struct {
		in, word, rest string
	}{
		{"filter SELECT * FROM 'a'", "filter", "SELECT * FROM 'a'"},
		{"  last\t 5 ", "last", "5"},
		{"quit", "quit", ""},
		{"", "", ""},
	}

	for _, tt := range tests {
		word, rest := splitWord(tt.in)
		if word != tt.word || rest != tt.rest {
			t.Errorf("splitWord(%q) = %q, %q, want %q, %q", tt.in, word, rest, tt.word, tt.rest)
		}
	}
}
