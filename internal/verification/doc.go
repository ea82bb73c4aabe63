// Package verification checks a posted release before it is marked
// completed.
//
// The consistency check compares the NZB with what was posted: gap-free
// segment numbering, message-ids on every segment, the poster's reported
// article count, every source and recovery file present, and per-file byte
// sums within the yEnc overhead tolerance. A consistency failure is final.
//
// The optional presence check samples evenly spaced segments and asks the
// servers for them with STAT. Missing articles are a warning, or a retryable
// failure in strict mode.
package verification
