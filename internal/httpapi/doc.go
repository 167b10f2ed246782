// Package httpapi exposes the engine over JSON HTTP for the goidentity-server
// binary.
//
// Sign-in endpoints live under /api/auth so the request gate always lets them
// through. Session artifacts travel in an HttpOnly cookie and are also
// accepted as a Bearer token.
//
// # What this package must NOT do
//
//   - Echo token values, codes or passwords back to the client.
//   - Distinguish unknown emails from ineligible ones in reset or resend responses.
package httpapi
