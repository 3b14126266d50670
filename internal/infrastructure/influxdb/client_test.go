package influxdb

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/mqtt-inspect/internal/infrastructure/config"
	"github.com/nerrad567/mqtt-inspect/internal/message"
	"github.com/nerrad567/mqtt-inspect/internal/rule"
)

// fakeWriter records points instead of sending them.
type fakeWriter struct {
	mu      sync.Mutex
	points  []*write.Point
	flushes int
}

func (w *fakeWriter) WritePoint(p *write.Point) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.points = append(w.points, p)
}

func (w *fakeWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.flushes++
}

func (w *fakeWriter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.points)
}

func tagsOf(p *write.Point) map[string]string {
	out := make(map[string]string)
	for _, tag := range p.TagList() {
		out[tag.Key] = tag.Value
	}
	return out
}

func fieldsOf(p *write.Point) map[string]any {
	out := make(map[string]any)
	for _, f := range p.FieldList() {
		out[f.Key] = f.Value
	}
	return out
}

func testConfig() config.InfluxDBConfig {
	return config.InfluxDBConfig{
		Enabled:       true,
		URL:           "http://127.0.0.1:8086",
		Token:         "mqttinspect-dev-token",
		Org:           "mqttinspect",
		Bucket:        "mqttinspect",
		BatchSize:     100,
		FlushInterval: 1,
	}
}

// =============================================================================
// Connection Tests
// =============================================================================

func TestConnect_Disabled(t *testing.T) {
	cfg := testConfig()
	cfg.Enabled = false

	client, err := Connect(context.Background(), cfg)
	if !errors.Is(err, ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
	if client != nil {
		t.Error("Connect() should return nil client when disabled")
	}
}

func TestConnect_Unreachable(t *testing.T) {
	cfg := testConfig()
	cfg.URL = "http://127.0.0.1:59999"

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := Connect(ctx, cfg)
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestHealthCheck_NotConnected(t *testing.T) {
	c := newWithWriter(&fakeWriter{}, testConfig())

	// No underlying client: a writer-only client cannot be pinged.
	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}
}

func TestClose(t *testing.T) {
	w := &fakeWriter{}
	c := newWithWriter(w, testConfig())

	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if c.IsConnected() {
		t.Error("IsConnected() = true after Close()")
	}
	if w.flushes != 1 {
		t.Errorf("flushes after Close() = %d, want 1", w.flushes)
	}

	// Second close is a no-op.
	if err := c.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if w.flushes != 1 {
		t.Errorf("flushes after second Close() = %d, want 1", w.flushes)
	}
}

func TestWritesAfterCloseAreDropped(t *testing.T) {
	w := &fakeWriter{}
	c := newWithWriter(w, testConfig())
	c.Close() //nolint:errcheck // Test

	c.RecordMessage(message.FromMQTT(message.TypeReceived, "test", "a/b", []byte("x"), 0, false), true)
	c.RecordFilterStats(rule.Stats{})
	c.Flush()

	if w.count() != 0 {
		t.Errorf("points written after Close() = %d, want 0", w.count())
	}
}

func TestSetOnError(t *testing.T) {
	c := newWithWriter(&fakeWriter{}, testConfig())

	var got error
	c.SetOnError(func(err error) { got = err })
	c.reportError(errors.New("boom"))

	if !errors.Is(got, ErrWriteFailed) {
		t.Errorf("callback error = %v, want ErrWriteFailed", got)
	}
}

// =============================================================================
// Traffic Points
// =============================================================================

func TestRecordMessage(t *testing.T) {
	w := &fakeWriter{}
	c := newWithWriter(w, testConfig())

	msg := message.FromMQTT(message.TypeReceived, "mqtt", "sensors/temp", []byte(`{"temp":21.5}`), 1, true)
	c.RecordMessage(msg, true)

	if w.count() != 1 {
		t.Fatalf("points written = %d, want 1", w.count())
	}
	p := w.points[0]

	if p.Name() != MeasurementTraffic {
		t.Errorf("Name() = %q, want %q", p.Name(), MeasurementTraffic)
	}
	if !p.Time().Equal(msg.Timestamp) {
		t.Errorf("Time() = %v, want message timestamp %v", p.Time(), msg.Timestamp)
	}

	tags := tagsOf(p)
	wantTags := map[string]string{
		"topic":        "sensors/temp",
		"type":         string(message.TypeReceived),
		"content_type": message.ContentJSON,
	}
	for k, want := range wantTags {
		if tags[k] != want {
			t.Errorf("tag %s = %q, want %q", k, tags[k], want)
		}
	}

	fields := fieldsOf(p)
	wantFields := map[string]any{
		"size":     int64(len(`{"temp":21.5}`)),
		"qos":      int64(1),
		"retained": true,
		"shown":    true,
	}
	for k, want := range wantFields {
		if fields[k] != want {
			t.Errorf("field %s = %v (%T), want %v (%T)", k, fields[k], fields[k], want, want)
		}
	}
}

func TestTrafficPoint_HandBuiltMessage(t *testing.T) {
	msg := message.New(message.TypeSimulated, "demo", map[string]any{
		message.FieldTopic: "demo/x",
		message.FieldSize:  float64(3),
	}, nil)

	p := trafficPoint(msg, false)

	fields := fieldsOf(p)
	if fields["size"] != int64(3) {
		t.Errorf("size = %v, want 3", fields["size"])
	}
	if _, ok := fields["qos"]; ok {
		t.Error("qos should be omitted when the payload has none")
	}
	if fields["shown"] != false {
		t.Errorf("shown = %v, want false", fields["shown"])
	}
	if _, ok := tagsOf(p)["content_type"]; ok {
		t.Error("content_type tag should be omitted when metadata has none")
	}
}

func TestRecordFilterStats(t *testing.T) {
	w := &fakeWriter{}
	c := newWithWriter(w, testConfig())

	c.RecordFilterStats(rule.Stats{Evaluated: 10, Matched: 4, Rejected: 6, Active: "SELECT * FROM '#'"})

	if w.count() != 1 {
		t.Fatalf("points written = %d, want 1", w.count())
	}
	p := w.points[0]
	if p.Name() != MeasurementFilter {
		t.Errorf("Name() = %q, want %q", p.Name(), MeasurementFilter)
	}
	if tagsOf(p)["rule"] != "SELECT * FROM '#'" {
		t.Errorf("rule tag = %q", tagsOf(p)["rule"])
	}
	fields := fieldsOf(p)
	if fields["evaluated"] != uint64(10) || fields["matched"] != uint64(4) || fields["rejected"] != uint64(6) {
		t.Errorf("fields = %v, want evaluated=10 matched=4 rejected=6", fields)
	}
}

func TestFilterPoint_NoActiveRule(t *testing.T) {
	p := filterPoint(rule.Stats{Evaluated: 1}, time.Now())
	if len(p.TagList()) != 0 {
		t.Errorf("TagList() = %v, want no tags without an active rule", p.TagList())
	}
}

func TestWritePoint(t *testing.T) {
	w := &fakeWriter{}
	c := newWithWriter(w, testConfig())

	c.WritePoint("custom", map[string]string{"host": "dev"}, map[string]any{"n": 1})

	if w.count() != 1 {
		t.Fatalf("points written = %d, want 1", w.count())
	}
	if w.points[0].Name() != "custom" {
		t.Errorf("Name() = %q, want custom", w.points[0].Name())
	}
}

func TestRecordMessage_Concurrent(t *testing.T) {
	w := &fakeWriter{}
	c := newWithWriter(w, testConfig())
	msg := message.FromMQTT(message.TypeReceived, "mqtt", "a", []byte("1"), 0, false)

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 20 {
				c.RecordMessage(msg, true)
			}
		}()
	}
	wg.Wait()

	if w.count() != 200 {
		t.Errorf("points written = %d, want 200", w.count())
	}
}
