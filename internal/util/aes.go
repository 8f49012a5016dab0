package util

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
)

const (
	AESKeySize = 32
	NonceSize  = 12
	TagSize    = 16
)

// Scheme names an AEAD construction. Every supported scheme uses a 32-byte
// key, a 12-byte nonce and a 16-byte tag.
type Scheme string

const (
	SchemeAES256GCM        Scheme = "aes256gcm"
	SchemeChaCha20Poly1305 Scheme = "chacha20poly1305"
)

func newAEAD(scheme Scheme, rawKey []byte) (cipher.AEAD, error) {
	if len(rawKey) != AESKeySize {
		return nil, fmt.Errorf("invalid key size: got %d, want %d", len(rawKey), AESKeySize)
	}
	switch scheme {
	case SchemeAES256GCM, "":
		block, err := aes.NewCipher(rawKey)
		if err != nil {
			return nil, fmt.Errorf("creating cipher: %w", err)
		}
		gcm, err := cipher.NewGCM(block)
		if err != nil {
			return nil, fmt.Errorf("creating GCM: %w", err)
		}
		return gcm, nil
	case SchemeChaCha20Poly1305:
		aead, err := chacha20poly1305.New(rawKey)
		if err != nil {
			return nil, fmt.Errorf("creating chacha20poly1305: %w", err)
		}
		return aead, nil
	default:
		return nil, fmt.Errorf("unsupported scheme %q", scheme)
	}
}

// Seal encrypts plainText and returns nonce || ciphertext || tag.
func Seal(scheme Scheme, plainText, rawKey, aad []byte) ([]byte, error) {
	aead, err := newAEAD(scheme, rawKey)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err = io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}

	return aead.Seal(nonce, nonce, plainText, aad), nil
}

// Open reverses Seal. It fails on any modification of nonce, ciphertext,
// tag or aad.
func Open(scheme Scheme, cipherText, rawKey, aad []byte) ([]byte, error) {
	aead, err := newAEAD(scheme, rawKey)
	if err != nil {
		return nil, err
	}

	if len(cipherText) < aead.NonceSize()+aead.Overhead() {
		return nil, fmt.Errorf("ciphertext shorter than nonce and tag")
	}

	nonce, cipherText := cipherText[:aead.NonceSize()], cipherText[aead.NonceSize():]

	plainText, err := aead.Open(nil, nonce, cipherText, aad)
	if err != nil {
		return nil, fmt.Errorf("decrypting ciphertext: %w", err)
	}

	return plainText, nil
}

func NewAESKey() ([]byte, error) {
	rawKey := make([]byte, AESKeySize)
	if _, err := rand.Read(rawKey); err != nil {
		return nil, fmt.Errorf("generating AES key: %w", err)
	}
	return rawKey, nil
}
