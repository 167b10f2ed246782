// Package jwt signs and verifies session artifacts: short-lived JWTs carrying
// the derived identity claims (uid, role, name, email and verification,
// OAuth-origin and two-factor flags).
//
// Parsing pins the algorithm, requires exp, and checks issuer, audience and
// optional kid rotation keys.
package jwt
