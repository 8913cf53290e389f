// Package keys holds the small crypto helpers shared by auth and seeding:
// URL-safe random secrets and SHA-256 hex digests. Secrets are stored hashed;
// the plaintext is shown once at creation time.
package keys

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
)

// New returns a URL-safe random string built from n random bytes.
func New(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand never fails on supported platforms.
		panic(err)
	}
	return base64.RawURLEncoding.EncodeToString(b)
}

// SHA256Hex returns the SHA-256 hex digest of a string.
func SHA256Hex(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}
