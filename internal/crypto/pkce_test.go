package crypto

import "testing"

func TestVerifyPKCE_S256(t *testing.T) {
	verifier := "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	challenge := s256Challenge(verifier)

	if !VerifyPKCE(verifier, challenge, PKCEMethodS256) {
		t.Errorf("VerifyPKCE(S256) = false, want true for matching verifier/challenge")
	}
	if VerifyPKCE("wrong-verifier", challenge, PKCEMethodS256) {
		t.Errorf("VerifyPKCE(S256) = true for mismatched verifier, want false")
	}
}

func TestVerifyPKCE_Plain(t *testing.T) {
	if !VerifyPKCE("same-value", "same-value", PKCEMethodPlain) {
		t.Errorf("VerifyPKCE(plain) = false, want true when verifier == challenge")
	}
	if VerifyPKCE("a", "b", PKCEMethodPlain) {
		t.Errorf("VerifyPKCE(plain) = true, want false when verifier != challenge")
	}
}

func TestVerifyPKCE_UnknownMethod(t *testing.T) {
	if VerifyPKCE("v", "v", "none") {
		t.Errorf("VerifyPKCE with unknown method = true, want false (fail closed)")
	}
}
