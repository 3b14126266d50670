// Package api serves the inspector over HTTP: a REST API over the message
// history, the active filter, saved rules and the activity journal, and a
// WebSocket live stream of ingested messages.
//
// The server runs alongside the interactive shell and shares its history
// store and rule engine, so a filter set over HTTP is the shell's filter
// too.
//
// # Security
//
// With api.auth.jwt_secret set, every route except /health needs a bearer
// token (see package auth). WebSocket connections authenticate with a
// single-use ticket from POST /auth/ws-ticket so tokens never appear in
// URLs. Without a secret the API is open and should stay bound to
// localhost.
//
// # Live stream
//
// WebSocket clients subscribe to channels:
//   - messages: messages the active rule passes, projected by its select list
//   - traffic: every ingested message, with a shown flag
package api
