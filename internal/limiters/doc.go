// Package limiters provides the domain throttles built on the internal/rate
// counter.
//
// # Limiters
//
//   - [TokenIssueLimiter] caps how many tokens of one purpose may be issued
//     to one email inside a window.
//   - [SignInLimiter] counts failed credential sign-ins per email and reports
//     a lockout once the threshold is reached.
//
// All limiters are nil-safe: calling any method on a nil receiver is a no-op.
//
// # What this package must NOT do
//
//   - Import goIdentity or any sibling internal package except internal/rate.
//   - Make policy decisions beyond counting. Flow functions decide consequences.
package limiters
