// Package organizer finalizes verified releases.
//
// It moves the staged NZB to its place under paths.nzb_dir, mirroring the
// source tree inside the configured scope, deletes recovery files unless
// parity.keep_files is set, and optionally copies the NZB to an S3 bucket.
// A failed archive upload is logged and does not fail the release.
package organizer
