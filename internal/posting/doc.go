// Package posting runs the encode/post stage. It leases connections from
// the shared server pool, applies the subject obfuscation policy, and hands
// the release's source and recovery files to Nyuu, which yEnc-encodes and
// transmits them and writes the NZB.
//
// The stage never retries on its own. Failures come back classified (see
// services.ErrConnection and services.ErrRejected) and the coordinator's
// retry policy decides what happens next.
package posting
