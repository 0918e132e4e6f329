// Package authcore provides the authentication and abuse-control core of a
// single-instance HTTP service: password registration, bearer-token login
// with per-client lockout, token resolution, and per-route rate limiting.
//
// Engine methods are safe to call from multiple goroutines after
// initialization through [Builder.Build].
//
// # Architecture boundaries
//
// authcore is the public surface. It exposes [Engine], [Builder], [Config],
// [IdentityStore] and value types. The attempt tracker, the rate limiter and
// the audit dispatcher live under internal/ and keep their state in process
// memory; nothing is shared between processes.
//
// # Error surface
//
// Token failures (bad signature, malformed payload, expiry) and a missing
// identity are all reported as [ErrUnauthorized]. The precise cause is only
// visible in audit events and metrics. [StatusCode] maps every Engine error
// to the HTTP status a transport should answer with.
//
// # What this package must NOT do
//
//   - Log on request paths. Security events go through the audit sink.
//   - Persist lockout or rate-limit state. Both reset on restart.
//   - Import any sub-package that re-imports authcore (no import cycles).
package authcore
