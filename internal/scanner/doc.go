// Package scanner turns configured media roots into releases.
//
// A release is the directory found at scan.release_depth below a media root,
// or a single file sitting above that depth. Files inside a release are
// filtered by extension, exclude patterns, and minimum size, and are returned
// in path order so repeated scans of an unchanged tree yield identical
// releases. Release identifiers are NFC-normalized relative paths with forward
// slashes; when more than one root is configured they carry the root's base
// name as a prefix.
package scanner
