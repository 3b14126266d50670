// Package webui serves the browser viewer for the live message stream.
//
// The viewer is a static page embedded into the binary with go:embed. It
// talks to the HTTP API only: it sets the filter with PUT /api/v1/filter
// and follows the "messages" WebSocket channel. Unknown paths fall back to
// index.html so bookmarked deep links still load the page.
package webui
