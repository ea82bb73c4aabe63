// Package services defines shared utilities consumed by the pipeline stages
// and the external tool clients.
//
// Key responsibilities:
//   - Context helpers that stamp release IDs, stage names, worker slots, and
//     correlation identifiers for logging.
//   - Error markers plus the Wrap helper so the coordinator can classify stage
//     failures (connection vs rejected articles, parity, verification).
//   - The Executor abstraction that runs external processes, streams their
//     output line by line, and terminates them gracefully on cancellation.
package services
