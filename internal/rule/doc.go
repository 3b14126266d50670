// Package rule implements the mqttinspect filter language.
//
// A rule is a small SQL-like statement:
//
//	SELECT * FROM 'sensors/+/temperature' WHERE qos = 1
//	SELECT topic, qos FROM 'alerts/#' WHERE level = 'critical' AND qos >= 1
//	SELECT * FROM '#' WHERE NOT (topic LIKE 'sys/%' OR message REGEX '^ping')
//
// Architecture:
//
//	┌──────────────────────────────────────────────────────────┐
//	│  Parse (parser.go)                                        │
//	│    text ──▶ Definition{Select, From, Where}               │
//	│                                │                          │
//	│                                ▼                          │
//	│  Condition tree (condition.go)                            │
//	│    *Comparison | *Pattern | *Logical                      │
//	│                                │                          │
//	│                                ▼                          │
//	│  Engine (engine.go)                                       │
//	│    From via topic.Matcher, Where via Condition.Evaluate   │
//	└──────────────────────────────────────────────────────────┘
//
// # Grammar
//
//	rule          := "SELECT" fieldlist "FROM" quoted_topic ["WHERE" condition]
//	fieldlist     := "*" | field ("," field)*
//	condition     := condition "OR" condition
//	               | condition "AND" condition
//	               | "NOT" condition
//	               | "(" condition ")"
//	               | comparison
//	               | pattern_match
//	comparison    := field operator value     ; =, !=, >=, <=, >, <
//	pattern_match := field ("LIKE" | "NOT LIKE" | "REGEX") quoted_pattern
//
// Keywords are case-insensitive. Condition text is reduced in this order:
// a fully enclosing pair of parentheses is stripped, then a leading NOT,
// then the first top-level OR, then the first top-level AND, and finally
// a leaf comparison or pattern.
//
// # Evaluation
//
// Field names are resolved when a message is evaluated, never at parse
// time. A field the message does not carry makes every comparison false
// except "!=" and "NOT LIKE", which are true.
//
// # Thread Safety
//
// Parse is stateless. Condition trees and Definitions are immutable and
// may be evaluated from any number of goroutines. Engine swaps the active
// rule atomically.
package rule
