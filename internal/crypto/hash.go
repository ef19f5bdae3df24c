package crypto

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// HashSecret returns a deterministic, constant-time-comparable digest of a
// secret (auth code or token). Storage keys are this digest, never the
// raw secret — spec invariant: "id is a function of the secret only; the
// raw secret is never stored."
func HashSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// TokenID is an alias for HashSecret used at token/code storage-key call
// sites, matching the spec's generateTokenId(secret) naming.
func TokenID(secret string) string {
	return HashSecret(secret)
}

// SecureEqual does a constant-time comparison of two digests, mirroring
// internal/auth.ValidateKey's approach to avoid timing side channels on
// digest comparison.
func SecureEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
