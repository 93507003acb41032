// Package authcore provides the authentication and authorization core for a
// multi-user application: credential verification, failed-login lockout,
// JWT access tokens with rotating opaque refresh tokens, single-use password
// reset and email verification challenges, role/permission authorization,
// and append-only audit logging.
//
// The package is designed for concurrent server workloads: Engine methods are
// safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// authcore is the public surface. It exposes [Engine], [Builder], [Config],
// the persistence interfaces ([UserStore]), and value types. Transient
// record persistence, rate limiting, and audit dispatch live under internal/
// and are never exported. The HTTP layer is a caller: it parses requests,
// invokes Engine operations, and serializes their results. authcore never
// routes, binds, or renders.
//
// # What this package must NOT do
//
//   - Expose Redis clients, internal stores, or encoding details in its
//     public API.
//   - Persist plaintext credentials or token secrets anywhere.
//   - Distinguish "user not found" from "wrong password" in any error it
//     returns to callers.
package authcore
