package oauthserver

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// signedState is the payload carried in the `state` parameter across the
// upstream redirect: the original authorization request plus the skills
// selected on the consent form, HMAC-signed with COOKIE_SECRET so the
// callback can trust it came from this gateway unmodified.
type signedState struct {
	ClientID            string   `json:"clientId"`
	RedirectURI         string   `json:"redirectUri"`
	Scope               []string `json:"scope"`
	Skills              []string `json:"skills"`
	CodeChallenge       string   `json:"codeChallenge,omitempty"`
	CodeChallengeMethod string   `json:"codeChallengeMethod,omitempty"`
	DownstreamState     string   `json:"downstreamState,omitempty"`
	IssuedAt            int64    `json:"issuedAt"`
}

// stateTTL bounds how long a signed state blob is accepted after issuance,
// limiting replay of an intercepted authorize redirect.
const stateTTL = 10 * time.Minute

func signState(secret []byte, s signedState) (string, error) {
	body, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("marshal state: %w", err)
	}
	bodyB64 := base64.RawURLEncoding.EncodeToString(body)
	mac := hmacSum(secret, bodyB64)
	return bodyB64 + "." + mac, nil
}

func verifyState(secret []byte, token string, ttl time.Duration) (signedState, error) {
	var out signedState

	sepIdx := strings.LastIndexByte(token, '.')
	if sepIdx < 0 {
		return out, fmt.Errorf("state: malformed token")
	}
	bodyB64, mac := token[:sepIdx], token[sepIdx+1:]

	want := hmacSum(secret, bodyB64)
	if subtle.ConstantTimeCompare([]byte(mac), []byte(want)) != 1 {
		return out, fmt.Errorf("state: signature mismatch")
	}

	body, err := base64.RawURLEncoding.DecodeString(bodyB64)
	if err != nil {
		return out, fmt.Errorf("state: decode body: %w", err)
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return out, fmt.Errorf("state: unmarshal body: %w", err)
	}

	if time.Since(time.Unix(out.IssuedAt, 0)) > ttl {
		return out, fmt.Errorf("state: expired")
	}
	return out, nil
}

func hmacSum(secret []byte, body string) string {
	h := hmac.New(sha256.New, secret)
	h.Write([]byte(body))
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}
