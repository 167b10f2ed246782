// Package stores provides the Redis-backed single-use token store used by
// email verification, password reset and two-factor code flows.
//
// # Design
//
// One Redis hash per (purpose, email) holds the SHA-256 of the token value,
// the owning user id, the logical expiry and an attempt counter. Issue and
// Consume run as Lua scripts so replacement (delete-then-insert) and
// consumption (fetch-then-delete) are atomic against concurrent callers for
// the same (purpose, email). The Redis key outlives the logical expiry by a
// retention window so an expired token is reported as expired, then deleted.
// Secret comparisons finish with a constant-time compare in Go.
//
// Keys for one (purpose, email) and its value index are touched together in a
// script, so clustered deployments need both keys on the same node.
//
// # Architecture boundaries
//
// This package owns persistence and concurrency control for token records.
// It does NOT generate tokens, enforce resend limits, or decide what a
// consumed token means. Those responsibilities belong to internal/flows.
//
// # What this package must NOT do
//
//   - Import goIdentity or any sibling internal package.
//   - Store or log plaintext token values.
//   - Use non-constant-time comparisons for secret matching.
package stores
