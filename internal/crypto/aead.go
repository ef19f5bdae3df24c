package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// dataKeySize is the AES-256 key size in bytes.
const dataKeySize = 32

// EncryptedProps is the AEAD ciphertext of a WorkerProps value, plus the
// nonce needed to decrypt it. The data key itself is never stored
// alongside the ciphertext — it is only ever held wrapped, per credential,
// by WrapKeyWithToken.
type EncryptedProps struct {
	Nonce      []byte
	Ciphertext []byte
}

// EncryptPropsWithNewKey encrypts plaintext under a freshly generated
// AES-256-GCM data key and returns both the ciphertext and the raw key.
// The caller is responsible for wrapping the key with WrapKeyWithToken for
// every outstanding credential (auth code, access token, refresh token)
// and discarding the raw key afterward.
func EncryptPropsWithNewKey(plaintext []byte) (EncryptedProps, []byte, error) {
	key := make([]byte, dataKeySize)
	if _, err := rand.Read(key); err != nil {
		return EncryptedProps{}, nil, fmt.Errorf("generate data key: %w", err)
	}

	enc, err := encryptWithKey(key, plaintext)
	if err != nil {
		return EncryptedProps{}, nil, err
	}
	return enc, key, nil
}

// DecryptProps decrypts ciphertext produced by EncryptPropsWithNewKey (or
// re-encrypted under the same key by EncryptWithKey) using the raw data key.
func DecryptProps(enc EncryptedProps, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("new gcm: %w", err)
	}
	plaintext, err := gcm.Open(nil, enc.Nonce, enc.Ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("decrypt props: %w", err)
	}
	return plaintext, nil
}

// EncryptWithKey re-encrypts plaintext under an existing data key (used
// when refreshing upstream props in place during a token refresh).
func EncryptWithKey(key, plaintext []byte) (EncryptedProps, error) {
	return encryptWithKey(key, plaintext)
}

func encryptWithKey(key, plaintext []byte) (EncryptedProps, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return EncryptedProps{}, fmt.Errorf("new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return EncryptedProps{}, fmt.Errorf("new gcm: %w", err)
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return EncryptedProps{}, fmt.Errorf("generate nonce: %w", err)
	}
	ciphertext := gcm.Seal(nil, nonce, plaintext, nil)
	return EncryptedProps{Nonce: nonce, Ciphertext: ciphertext}, nil
}

// deriveWrappingKey derives a 32-byte key from a credential secret via
// HKDF-SHA256, so that the data key is never wrapped directly with raw
// credential bytes of arbitrary length.
func deriveWrappingKey(credentialSecret string) ([]byte, error) {
	h := hkdf.New(sha256.New, []byte(credentialSecret), nil, []byte("sentry-mcp-gateway/props-wrap"))
	key := make([]byte, dataKeySize)
	if _, err := io.ReadFull(h, key); err != nil {
		return nil, fmt.Errorf("hkdf derive: %w", err)
	}
	return key, nil
}

// WrapKeyWithToken wraps the props data key using a key derived from a
// credential secret (auth code, access token, or refresh token). Every
// outstanding credential gets its own wrapped copy of the same data key.
func WrapKeyWithToken(credentialSecret string, dataKey []byte) ([]byte, error) {
	wrapKey, err := deriveWrappingKey(credentialSecret)
	if err != nil {
		return nil, err
	}
	enc, err := encryptWithKey(wrapKey, dataKey)
	if err != nil {
		return nil, fmt.Errorf("wrap data key: %w", err)
	}
	// Nonce || ciphertext, concatenated so callers store one blob per credential.
	return append(enc.Nonce, enc.Ciphertext...), nil
}

// UnwrapKeyWithToken recovers the data key from a wrapped blob using the
// credential secret that was presented. A wrong secret fails to unwrap
// (GCM authentication failure) and never returns ciphertext, satisfying
// the spec's "presenting a wrong secret fails key unwrap" invariant.
func UnwrapKeyWithToken(credentialSecret string, wrapped []byte) ([]byte, error) {
	wrapKey, err := deriveWrappingKey(credentialSecret)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(wrapKey)
	if err != nil {
		return nil, fmt.Errorf("new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("new gcm: %w", err)
	}
	nonceSize := gcm.NonceSize()
	if len(wrapped) < nonceSize {
		return nil, fmt.Errorf("unwrap data key: truncated blob")
	}
	nonce, ciphertext := wrapped[:nonceSize], wrapped[nonceSize:]
	key, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("unwrap data key: %w", err)
	}
	return key, nil
}
