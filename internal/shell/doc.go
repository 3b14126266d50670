// Package shell is the interactive front end of mqttinspect.
//
// A Shell reads commands line by line and writes results to its output.
// Messages arrive separately through Ingest, usually from the MQTT client
// callback or the demo generator:
//
//	MQTT / demo ──Ingest──▶ history.Store (always)
//	                   └──▶ rule.Engine ──pass──▶ live output (unless paused)
//
// Every ingested message is kept in history whether or not the active rule
// lets it through, so `last`, `search` and `export` see the full traffic.
// A rule that fails to parse is reported and the previous rule stays active.
//
// Broker access, saved rules, and metrics are optional collaborators
// given as interfaces in Options; commands that need a missing one return
// an error instead of failing the session.
package shell
