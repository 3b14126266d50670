// Package logging provides structured logging for mqttinspect.
//
// This package wraps Go's standard log/slog package to provide
// consistent, structured logging across the application.
//
// # Features
//
//   - Text output for interactive use, JSON for log shipping
//   - Default fields (service, version) on all log entries
//   - Level-based filtering (debug, info, warn, error)
//   - Thread-safe for concurrent use
//
// Logs go to stderr by default. The shell prints messages on stdout, and
// the two must not interleave when stdout is piped.
//
// # Configuration
//
//	logging:
//	  level: "warn"      # debug, info, warn, error
//	  format: "text"     # text, json
//	  output: "stderr"   # stderr, stdout, none
//
// # Usage
//
//	logger := logging.New(cfg.Logging, version)
//	logger.Info("connected", "broker", addr)
//	logger.Error("subscribe failed", "topic", t, "error", err)
//
// Never log broker passwords or InfluxDB tokens.
package logging
