// Command juicenet posts media releases to Usenet.
//
// A run scans the configured media roots, generates recovery files with
// ParPar, uploads each release with Nyuu, verifies the posted articles, and
// files the resulting NZB under the NZB directory. Progress is kept in a job
// database so an interrupted run resumes where it stopped. The remaining
// commands inspect and manage that database, repost dumped raw articles, and
// check the environment before a run.
package main
