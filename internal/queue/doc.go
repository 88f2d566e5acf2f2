// Package queue persists jobs, clips, runs, and operator config overrides in
// SQLite.
//
// The Store is the only writer of job state. TransitionJob validates every
// change against jobstate, updates the row, and appends a run record inside a
// single transaction, so the runs for a job read in creation order replay the
// exact sequence of states it visited. Jobs are never deleted.
//
// Timestamps are stored as fixed-width UTC strings so lexical comparison in
// SQL matches chronological order. Schema changes bump schemaVersion in
// schema.go; older databases are rejected with ErrSchemaMismatch.
package queue
