// Package middleware exposes HTTP middleware adapters for bearer-token
// authentication and permission enforcement built on top of authcore.Engine
// validation.
//
// # Guards
//
//   - [Authenticate] — reads the Authorization header, validates the access
//     token, and injects the result into the request context.
//   - [RequirePermission] — requires an authenticated caller and a resolver
//     grant for the given action and resource.
//   - [RequestMetadata] — attaches client IP, User-Agent, and request id to the
//     request context so downstream Engine calls record them in audit entries.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. It does NOT
// implement authentication logic itself — all decisions are delegated to the
// Engine.
//
// # What this package must NOT do
//
//   - Parse or create JWTs directly (delegates to Engine).
//   - Access Redis (Engine handles I/O).
//   - Make authorization decisions beyond pass/reject from Engine calls.
package middleware
