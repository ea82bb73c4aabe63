// Package queue persists release job records in SQLite and is the only writer
// of pipeline state.
//
// Each release has one record keyed by its release id. State moves forward
// through pending, parity_in_progress, posting, verifying, and completed; any
// active state may fail, and failed records return to pending only through
// RetryFailed. Transition is optimistic: the UPDATE is guarded by the
// expected current state and reports ErrConcurrency when another writer got
// there first. Writes for one release are additionally serialized in process.
//
// Parity artifacts and the NZB path are stored as checkpoints so Rollback and
// ResetInFlight can return an interrupted release to the last point that
// survives a restart instead of starting over. Schema changes bump the version
// in schema.go; users clear the database to adopt the new schema.
package queue
