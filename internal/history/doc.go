// Package history keeps a bounded, in-memory record of recently seen MQTT
// messages for the inspection shell.
//
// Buffer is a fixed-capacity ring buffer. Every added message receives an id
// from a counter that only moves forward: ids are never reused, survive
// eviction and survive Clear, so an id printed by the shell always refers to
// the same message or to nothing.
//
// Buffer is not safe for concurrent use. Store wraps a Buffer in a single
// owner goroutine; other goroutines submit requests to it over a channel and
// receive copies of the results.
//
//	ingest ──Add──►┐
//	               │  Store.Run (owner goroutine)
//	shell ──Last──►┼──► requests chan ──► Buffer
//	     ──Search─►┘
package history
