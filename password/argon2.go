package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/argon2"
)

const argon2Prefix = "$argon2id$"

// Config holds Argon2id cost parameters. Memory is in KiB.
type Config struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultConfig returns the parameters used by goidentity-server.
func DefaultConfig() Config {
	return Config{Memory: 64 * 1024, Time: 3, Parallelism: 2, SaltLength: 16, KeyLength: 32}
}

func (c Config) validate() error {
	switch {
	case c.Memory < 8*1024:
		return fmt.Errorf("argon2 memory %d KiB below 8192", c.Memory)
	case c.Time < 1:
		return errors.New("argon2 time must be at least 1")
	case c.Parallelism < 1:
		return errors.New("argon2 parallelism must be at least 1")
	case c.SaltLength < 16 || c.KeyLength < 16:
		return errors.New("argon2 salt and key must be at least 16 bytes")
	}
	return nil
}

// Argon2 hashes local credentials as Argon2id PHC strings.
type Argon2 struct {
	cfg Config
}

func NewArgon2(cfg Config) (*Argon2, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Argon2{cfg: cfg}, nil
}

// Hash takes the secret bytes as given. Length policy belongs to the engine.
func (a *Argon2) Hash(secret string) (string, error) {
	if secret == "" {
		return "", ErrEmptySecret
	}
	h := phc{memory: a.cfg.Memory, time: a.cfg.Time, threads: a.cfg.Parallelism}
	h.salt = make([]byte, a.cfg.SaltLength)
	if _, err := io.ReadFull(rand.Reader, h.salt); err != nil {
		return "", fmt.Errorf("read salt: %w", err)
	}
	h.key = h.derive(secret, a.cfg.KeyLength)
	return h.String(), nil
}

// Verify recomputes with the parameters stored in encoded, so hashes made
// under an older Config still verify.
func (a *Argon2) Verify(secret, encoded string) (bool, error) {
	h, err := parsePHC(encoded)
	if err != nil {
		return false, err
	}
	got := h.derive(secret, uint32(len(h.key)))
	return subtle.ConstantTimeCompare(got, h.key) == 1, nil
}

// phc is a decoded $argon2id$v=19$m=..,t=..,p=..$salt$key string.
type phc struct {
	memory  uint32
	time    uint32
	threads uint8
	salt    []byte
	key     []byte
}

func (h phc) derive(secret string, keyLen uint32) []byte {
	return argon2.IDKey([]byte(secret), h.salt, h.time, h.memory, h.threads, keyLen)
}

func (h phc) String() string {
	enc := base64.RawStdEncoding
	return fmt.Sprintf("%sv=%d$m=%d,t=%d,p=%d$%s$%s", argon2Prefix, argon2.Version,
		h.memory, h.time, h.threads, enc.EncodeToString(h.salt), enc.EncodeToString(h.key))
}

func isArgon2Hash(encoded string) bool {
	return strings.HasPrefix(encoded, argon2Prefix)
}

func parsePHC(encoded string) (phc, error) {
	var h phc
	if !isArgon2Hash(encoded) {
		return h, ErrMalformedHash
	}
	fields := strings.Split(strings.TrimPrefix(encoded, argon2Prefix), "$")
	if len(fields) != 4 {
		return h, ErrMalformedHash
	}

	var version int
	if _, err := fmt.Sscanf(fields[0], "v=%d", &version); err != nil || version != argon2.Version {
		return h, fmt.Errorf("%w: unsupported argon2 version %q", ErrMalformedHash, fields[0])
	}
	if _, err := fmt.Sscanf(fields[1], "m=%d,t=%d,p=%d", &h.memory, &h.time, &h.threads); err != nil {
		return h, fmt.Errorf("%w: parameters %q", ErrMalformedHash, fields[1])
	}
	if h.memory < 8*1024 || h.time < 1 || h.threads < 1 {
		return h, fmt.Errorf("%w: parameters %q", ErrMalformedHash, fields[1])
	}

	var err error
	if h.salt, err = decodeB64(fields[2]); err != nil || len(h.salt) < 16 {
		return h, fmt.Errorf("%w: salt", ErrMalformedHash)
	}
	if h.key, err = decodeB64(fields[3]); err != nil || len(h.key) == 0 {
		return h, fmt.Errorf("%w: key", ErrMalformedHash)
	}
	return h, nil
}

// decodeB64 accepts padded and unpadded standard base64; both appear in PHC
// strings written by other libraries.
func decodeB64(s string) ([]byte, error) {
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
}
