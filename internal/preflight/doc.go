// Package preflight provides readiness checks for the external tools, NNTP
// servers, and filesystem paths juicenet depends on.
//
// These checks run in two contexts:
//   - The run command calls RunAll before scanning. Any failed check aborts
//     the run with a configuration error instead of failing every release.
//   - The CLI "juicenet check" command renders each result as a table row.
//
// Server checks open one authenticated NNTP connection per configured server
// and are skipped when offline is requested.
package preflight
