// Package parity runs the recovery-file stage: it sizes ParPar slices for a
// release, generates the recovery set in the staging area (or beside the
// source files), and records the resulting artifact so later runs can skip
// regeneration.
package parity
