// Package pg provides PostgreSQL-backed implementations of the core's
// persistence interfaces: the UserStore, the rbac.Store, and an append-only
// audit sink.
//
// The package goes through database/sql with the pgx stdlib driver. Lockout
// counter updates are single-statement read-modify-writes so concurrent
// login failures never lose an increment; no in-process locking is involved.
//
// # Architecture boundaries
//
// This package must NOT contain policy. Thresholds, windows, and permission
// decisions live in the engine and the resolver; this package only persists
// and retrieves state, mapping database errors to the root sentinel errors.
//
// The expected schema ships in schema.sql next to this file.
package pg
