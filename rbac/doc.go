// Package rbac implements role-based authorization with conditional grants.
//
// # Model
//
// A [Role] bundles [Grant] values; a grant permits one action on one
// resource, optionally narrowed by a [Predicate] from a closed set
// (currently owner-match). Predicates are declarative data interpreted by
// [Predicate.Eval]; there is no expression language and no dynamic dispatch.
//
// # Resolution semantics
//
//   - The admin role short-circuits every check to allow.
//   - Grants are loaded from the [Store] on every check; role edits take
//     effect on the next check with no cache invalidation concerns.
//   - A conditional grant evaluated without a resource instance fails
//     closed.
//   - Store errors are surfaced, never swallowed into an allow.
//
// # What this package must NOT do
//
//   - Authenticate subjects or parse tokens.
//   - Import authcore or any sibling package.
//   - Cache grant sets between checks.
package rbac
