// Package logs reads back the JSON log file written by juicenet runs.
//
// Last returns the trailing lines of the file and Follow polls it for new
// ones, re-reading from the start when the file is truncated. Parse, Filter
// and Format turn raw JSON lines into the one-line layout shown by
// `juicenet logs`.
package logs
