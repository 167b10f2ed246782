// Package goIdentity is an identity and session lifecycle engine: credential and
// OAuth sign-in, email verification, emailed two-factor codes, password reset,
// session-claim enrichment and self-service settings changes.
//
// Engine methods are safe to call from multiple goroutines after initialization
// through [Builder.Build]. The Engine holds no user state between calls; every
// operation re-reads the [IdentityRepository] and the Redis token store.
//
// # Architecture boundaries
//
// goIdentity is the public surface. It exposes [Engine], [Builder], [Config] and
// value types. Flow orchestration, token persistence, throttling and audit
// dispatch live under internal/ and are never exported. Collaborators are
// injected: [IdentityRepository] (see package postgres and memory),
// [CredentialHasher] (package password), [MailSender] (package mail).
//
// # Token contract
//
// At most one live token exists per (email, purpose). Issuing replaces the
// previous token atomically, and consuming deletes it atomically, so a second
// consume with the same value always fails with [ErrTokenNotFound].
//
// # What this package must NOT do
//
//   - Read HTTP headers or cookies (package middleware translates those).
//   - Cache user state across calls.
//   - Log or return plaintext passwords, token values or codes.
package goIdentity
