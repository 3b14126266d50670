// Package audit keeps a journal of shell activity in SQLite: filters
// applied and cleared, rules saved, loaded and deleted, and messages
// published or subscriptions added.
//
// The journal outlives a session, so `log` in the shell and
// `mqttinspect rules log` can show what was tried earlier.
package audit
