package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/mqtt-inspect/internal/message"
	"github.com/nerrad567/mqtt-inspect/internal/rule"
)

// Measurement names.
const (
	// MeasurementTraffic has one point per message seen by the shell.
	MeasurementTraffic = "mqtt_traffic"

	// MeasurementFilter has periodic snapshots of the rule engine counters.
	MeasurementFilter = "mqtt_filter"
)

// RecordMessage writes one traffic point for msg.
//
// Tags: topic, type, content_type. Fields: size, qos, retained, shown.
// shown reports whether the active rule let the message through.
func (c *Client) RecordMessage(msg message.Message, shown bool) {
	c.writePoint(trafficPoint(msg, shown))
}

// RecordFilterStats writes a snapshot of the engine counters.
func (c *Client) RecordFilterStats(stats rule.Stats) {
	c.writePoint(filterPoint(stats, time.Now()))
}

// WritePoint writes a custom point with the current time.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any) {
	c.writePoint(write.NewPoint(measurement, tags, fields, time.Now()))
}

func trafficPoint(msg message.Message, shown bool) *write.Point {
	tags := map[string]string{
		"topic": msg.Topic(),
		"type":  string(msg.Type),
	}
	if ct, ok := msg.Metadata[message.MetaContentType].(string); ok && ct != "" {
		tags["content_type"] = ct
	}

	fields := map[string]any{
		"shown": shown,
	}
	if size, ok := intField(msg, message.FieldSize); ok {
		fields["size"] = size
	}
	if qos, ok := intField(msg, message.FieldQoS); ok {
		fields["qos"] = qos
	}
	if retained, ok := msg.Payload[message.FieldRetain].(bool); ok {
		fields["retained"] = retained
	}

	ts := msg.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	return write.NewPoint(MeasurementTraffic, tags, fields, ts)
}

func filterPoint(stats rule.Stats, ts time.Time) *write.Point {
	tags := map[string]string{}
	if stats.Active != "" {
		tags["rule"] = stats.Active
	}
	return write.NewPoint(MeasurementFilter, tags, map[string]any{
		"evaluated": stats.Evaluated,
		"matched":   stats.Matched,
		"rejected":  stats.Rejected,
	}, ts)
}

// intField reads a numeric payload field as int64.
func intField(msg message.Message, name string) (int64, bool) {
	switch v := msg.Payload[name].(type) {
	case int:
		return int64(v), true
	case int64:
		return v, true
	case float64:
		return int64(v), true
	default:
		return 0, false
	}
}
