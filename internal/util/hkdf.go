package util

import (
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const HKDFKeyLength = 32

func HKDF(seed []byte, salt []byte, info []byte) ([]byte, error) {
	return HKDFN(seed, salt, info, HKDFKeyLength)
}

// HKDFN derives n bytes of HKDF-SHA256 output.
func HKDFN(seed []byte, salt []byte, info []byte, n int) ([]byte, error) {
	if len(seed) == 0 {
		return nil, fmt.Errorf("HKDF seed must not be empty")
	}
	h := hkdf.New(sha256.New, seed, salt, info)
	k := make([]byte, n)
	if _, err := io.ReadFull(h, k); err != nil {
		return nil, fmt.Errorf("reading from HKDF: %w", err)
	}
	return k, nil
}
