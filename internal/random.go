package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/google/uuid"
)

// NewLinkToken returns an opaque token for link-delivered purposes
// (email verification, password reset).
func NewLinkToken() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// NewUserID returns a random user identifier.
func NewUserID() string {
	return uuid.NewString()
}

func NewOTP(digits int) (string, error) {
	if digits < 6 || digits > 10 {
		return "", errors.New("invalid otp digits")
	}

	var b strings.Builder
	b.Grow(digits)

	max := big.NewInt(10)
	for i := 0; i < digits; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + n.Int64()))
	}

	otp := b.String()
	if len(otp) != digits {
		return "", fmt.Errorf("invalid otp generation length")
	}
	return otp, nil
}

// HashSecret returns the SHA-256 digest stored in place of a token value.
func HashSecret(secret string) [32]byte {
	return sha256.Sum256([]byte(secret))
}

// EncodeHash renders a digest for use inside a Redis key.
func EncodeHash(h [32]byte) string {
	return base64.RawURLEncoding.EncodeToString(h[:])
}
