// Package stage holds the small contracts shared by the pipeline stages:
// progress callbacks, logger injection, and readiness reporting.
package stage
