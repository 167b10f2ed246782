// Package memory is an in-process goIdentity.IdentityRepository.
//
// It keeps no data across restarts, so a two-factor confirmation created here
// is only visible to the same process. Use it for tests and local
// development; package postgres is the durable implementation.
package memory
