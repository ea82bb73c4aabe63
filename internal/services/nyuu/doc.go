// Package nyuu wraps the Nyuu Usenet poster.
//
// Nyuu performs yEnc encoding and NNTP transmission itself; this package only
// builds its command line, reads its log output line by line, and classifies
// the outcome. Progress lines feed an event callback. Error lines are sorted
// into connection problems (retryable) and rejected articles (content
// failures), and the exit status decides the final result: 0 is success and
// 32 means some articles failed to post.
package nyuu
