// Package middleware adapts authcore.Engine to net/http.
//
// # Middleware
//
//   - [ClientID] resolves the client identifier once per request.
//   - [RateLimit] applies a route ceiling and answers 429 with Retry-After.
//   - [RequireIdentity] resolves the bearer token and attaches the identity.
//   - [SecurityHeaders] sets nosniff, frame and referrer headers.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. It does NOT
// implement authentication logic itself; token checks, lockout and
// throttling decisions are delegated to the Engine.
//
// # What this package must NOT do
//
//   - Parse or create JWTs directly.
//   - Tell callers why a token was rejected.
//   - Keep request counters of its own.
package middleware
