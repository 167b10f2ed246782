// Package rate provides the fixed-window Redis counter that all goIdentity
// throttles are built from.
//
// # Window semantics
//
// INCR, then EXPIRE only on the first hit, so the window starts at the first
// counted event and every key vanishes on its own. Callers compare the
// returned count to their own threshold.
//
// # What this package must NOT do
//
//   - Implement domain-specific policies (those live in internal/limiters).
//   - Be imported outside the goIdentity module.
package rate
