// Package logging assembles the structured slog loggers used across juicenet.
//
// It owns the console and JSON handlers, the fan-out handler that mirrors
// terminal output into the JSON log file, and context helpers that tag log
// lines with release IDs, stage names, worker slots, and correlation IDs.
// A no-op logger is provided for tests and wiring code that cannot fail.
package logging
