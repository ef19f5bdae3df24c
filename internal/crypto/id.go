// Package crypto implements the gateway's random-ID generation, secret
// hashing, props encryption, and PKCE verification (spec C1).
package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"
)

// randomSuffix returns n bytes of crypto/rand entropy, URL-safe base64 encoded.
func randomSuffix(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("crypto/rand: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// GenerateClientID returns a new OAuth client_id.
func GenerateClientID() (string, error) {
	s, err := randomSuffix(16)
	if err != nil {
		return "", err
	}
	return "client_" + s, nil
}

// GenerateClientSecret returns a new confidential-client secret.
func GenerateClientSecret() (string, error) {
	s, err := randomSuffix(32)
	if err != nil {
		return "", err
	}
	return "secret_" + s, nil
}

const (
	codePrefix  = "code_"
	tokenPrefix = "tok_"
)

// GenerateAuthCode returns a one-time authorization code that embeds the
// userId and grantId as a locatable prefix, so the store can find the
// wrapped data key without a blind scan. The prefix is not secret on its
// own — the random suffix is what makes the code unguessable.
func GenerateAuthCode(userID, grantID string) (string, error) {
	s, err := randomSuffix(24)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s%s_%s_%s", codePrefix, userID, grantID, s), nil
}

// GenerateToken returns a new opaque access/refresh token secret, embedding
// the same userId/grantId prefix as GenerateAuthCode.
func GenerateToken(userID, grantID string) (string, error) {
	s, err := randomSuffix(32)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s%s_%s_%s", tokenPrefix, userID, grantID, s), nil
}

// ParseCredentialPrefix extracts the userId/grantId prefix embedded by
// GenerateAuthCode/GenerateToken, without validating the random suffix.
// Returns ok=false if the credential doesn't match the expected shape.
// userID and grantID must themselves be free of underscores (true for
// the ULID/UUID identifiers this gateway assigns them) since the prefix
// is recovered by splitting the remainder into exactly three fields.
func ParseCredentialPrefix(credential string) (userID, grantID string, ok bool) {
	var rest string
	switch {
	case strings.HasPrefix(credential, codePrefix):
		rest = strings.TrimPrefix(credential, codePrefix)
	case strings.HasPrefix(credential, tokenPrefix):
		rest = strings.TrimPrefix(credential, tokenPrefix)
	default:
		return "", "", false
	}

	parts := strings.SplitN(rest, "_", 3)
	if len(parts) != 3 {
		return "", "", false
	}
	return parts[0], parts[1], true
}
