// Package internal contains helper utilities that are intentionally private to
// goIdentity, mainly secure random token and code generation.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - flows: pure-function orchestrators for every Engine operation
//   - limiters: resend throttle and sign-in lockout
//   - rate: fixed-window Redis counter primitive
//   - stores: single-use token records in Redis
//   - config: server binary configuration
//   - httpapi: JSON handlers for the server binary
//
// # What this package must NOT do
//
//   - Export types that appear in the public goIdentity API.
//   - Be imported by any package outside the goIdentity module.
package internal
