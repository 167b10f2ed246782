// Package password implements the credential hashers used by goIdentity:
// Argon2id (default) and bcrypt, plus [Multi] for verifying both during a
// migration.
//
// # Output format
//
// Argon2id hashes are encoded in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// bcrypt hashes use the standard $2a$/$2b$ modular crypt format.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords. Callers supply plaintext and receive hashes.
//   - Enforce password policy (length is checked by the Engine).
//   - Import any other goIdentity package.
//   - Log plaintext passwords.
package password
