// Package message defines the record that flows through mqttinspect.
//
// A Message is created once by the ingestion side (MQTT subscription, the
// demo generator, or the shell's own publishes) and is read-only afterwards.
// Filters and history queries look fields up through Message.Field, which
// resolves names against the payload first and the metadata second.
//
// # Field names
//
// Plain names ("topic", "qos") are looked up directly. Dotted names
// ("sensor.reading.value") fall back to walking nested JSON objects when no
// key with the literal dotted name exists.
package message
