// Package parpar wraps the ParPar command line tool that generates PAR2
// recovery files.
//
// The client builds a deterministic invocation from a Request, streams the
// tool's progress output to a callback, and inspects the output directory
// afterwards: recovery volumes are recognised by their .volS+N.par2 names and
// their block counts summed. Any failure removes the files the run produced so
// a retry starts clean.
package parpar
