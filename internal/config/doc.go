// Package config loads, normalizes, and validates juicenet configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, parses human-readable sizes such as "700KiB",
// and honours environment fallbacks such as JUICENET_NNTP_PASSWORD. The Config
// type centralizes the media roots, server pool, redundancy policy, concurrency
// limits, retry policy, and matching rules in one pass.
//
// The configuration is loaded once at startup and treated as immutable for the
// lifetime of the process.
package config
