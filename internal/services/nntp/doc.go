// Package nntp implements the small NNTP client used for article presence
// checks: connect (optionally over TLS), authenticate with AUTHINFO, and issue
// STAT for message-ids. Posting itself is done by Nyuu.
package nntp
