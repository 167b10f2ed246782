// Package postgres implements [goIdentity.IdentityRepository] on PostgreSQL
// through database/sql and the pgx stdlib driver.
//
// [Migrate] applies the embedded goose migrations. Emails are stored
// normalized (trimmed, lower-cased) and are unique; a violation surfaces as
// [goIdentity.ErrEmailInUse]. Driver failures are wrapped with
// [goIdentity.ErrStoreUnavailable].
package postgres
