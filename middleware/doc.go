// Package middleware exposes HTTP adapters that put a goIdentity session in
// front of handlers.
//
// # Gates
//
//   - [Gate] applies the route policy: API auth routes always pass, auth
//     pages bounce signed-in users to the default redirect, public pages
//     pass, everything else requires a valid session or redirects to login.
//   - [RequireSession] rejects requests without a valid session with 401.
//   - [RequireRole] rejects sessions lacking a role with 403.
//
// The session artifact is read from an "Authorization: Bearer" header or a
// cookie, and validated through [SessionReader] (an *goIdentity.Engine).
// Validated views are stored in the request context; read them with
// [SessionFromContext].
//
// # What this package must NOT do
//
//   - Parse or sign session artifacts directly (delegates to the Engine).
//   - Decide roles beyond [goIdentity.RequireRole].
package middleware
