// Package session provides Redis-backed session persistence and compact binary session
// encoding for authentication hot paths.
//
// # Binary encoding
//
// Sessions are stored in Redis as a compact binary format (schema v1). The
// refresh-token hash sits at a deterministic offset so the rotation Lua
// script can compare-and-swap it in place.
//
// # Architecture boundaries
//
// This package owns the [Store] (Redis operations) and the [Session] model. It does NOT
// interpret JWT tokens, evaluate permissions, or enforce authentication policy — those
// responsibilities belong to the Engine.
//
// # What this package must NOT do
//
//   - Import authcore, jwt, or rbac (no upward imports).
//   - Perform application-level authorization decisions.
//   - Store plaintext refresh secrets in [Session] fields.
package session
