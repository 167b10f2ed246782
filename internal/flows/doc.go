// Package flows contains pure-function orchestrators for every Engine operation.
//
// Each flow function (RunSignIn, RunOAuthCallback, RunIssueToken,
// RunUpdateSettings, etc.) accepts a typed dependency struct of closures and
// returns flow-local result types. The Engine builds the dependency structs,
// wiring them to the identity repository, token store, limiters, mailer,
// audit dispatcher and metrics it owns.
//
// Closures hand back errors already mapped to the public sentinel set; flows
// compare them with the values carried in their Errors struct.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import goIdentity (to avoid import cycles).
//   - Perform I/O directly. All I/O is mediated through dependency closures.
package flows
