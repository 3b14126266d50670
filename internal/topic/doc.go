// Package topic implements MQTT topic-filter matching.
//
// Patterns follow the MQTT subscription rules:
//   - "/" separates levels
//   - "+" matches exactly one level
//   - "#" matches the remaining levels (zero or more) and must be last
//   - topics starting with "$" are only matched by patterns that start
//     with a literal "$" level
//
// # Usage
//
//	topic.Matches("sensors/+/temperature", "sensors/kitchen/temperature") // true
//	topic.Matches("sensors/#", "sensors")                                  // true
//
// Other packages depend on the Matcher interface rather than the concrete
// MQTT type so alternative pattern dialects can be plugged in.
package topic
