package password

// Hasher is the method set shared by every scheme in this package. It matches
// goIdentity.CredentialHasher.
type Hasher interface {
	Hash(secret string) (string, error)
	Verify(secret, encoded string) (bool, error)
}

// Multi hashes with Primary and verifies any stored hash whose scheme it
// recognizes, so bcrypt and Argon2id credentials can coexist during a
// migration.
type Multi struct {
	Primary Hasher
	Argon2  *Argon2
	Bcrypt  *Bcrypt
}

func (m *Multi) Hash(secret string) (string, error) {
	return m.Primary.Hash(secret)
}

func (m *Multi) Verify(secret, encoded string) (bool, error) {
	switch {
	case isArgon2Hash(encoded) && m.Argon2 != nil:
		return m.Argon2.Verify(secret, encoded)
	case isBcryptHash(encoded) && m.Bcrypt != nil:
		return m.Bcrypt.Verify(secret, encoded)
	default:
		return false, ErrMalformedHash
	}
}
