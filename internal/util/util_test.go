package util

import (
	"bytes"
	"encoding/base64"
	"testing"
)

func TestAES(t *testing.T) {
	key, _ := NewAESKey()
	plainText := []byte("hello world")
	aad := []byte("context")

	t.Run("EncryptDecryptWithAAD", func(t *testing.T) {
		cipherText, err := Seal(SchemeAES256GCM, plainText, key, aad)
		if err != nil {
			t.Fatalf("Seal failed: %v", err)
		}

		decrypted, err := Open(SchemeAES256GCM, cipherText, key, aad)
		if err != nil {
			t.Fatalf("Open failed: %v", err)
		}

		if !bytes.Equal(plainText, decrypted) {
			t.Errorf("expected %s, got %s", plainText, decrypted)
		}
	})

	t.Run("Layout", func(t *testing.T) {
		cipherText, _ := Seal(SchemeAES256GCM, plainText, key, nil)
		if len(cipherText) != NonceSize+len(plainText)+TagSize {
			t.Errorf("expected %d bytes, got %d", NonceSize+len(plainText)+TagSize, len(cipherText))
		}
	})

	t.Run("TamperAAD", func(t *testing.T) {
		cipherText, _ := Seal(SchemeAES256GCM, plainText, key, aad)
		_, err := Open(SchemeAES256GCM, cipherText, key, []byte("wrong context"))
		if err == nil {
			t.Error("expected error with wrong AAD, got nil")
		}
	})

	t.Run("TamperCipherText", func(t *testing.T) {
		cipherText, _ := Seal(SchemeAES256GCM, plainText, key, aad)
		cipherText[len(cipherText)-1] ^= 0xFF
		_, err := Open(SchemeAES256GCM, cipherText, key, aad)
		if err == nil {
			t.Error("expected error with tampered ciphertext, got nil")
		}
	})

	t.Run("TamperNonce", func(t *testing.T) {
		cipherText, _ := Seal(SchemeAES256GCM, plainText, key, aad)
		cipherText[0] ^= 0x01
		_, err := Open(SchemeAES256GCM, cipherText, key, aad)
		if err == nil {
			t.Error("expected error with tampered nonce, got nil")
		}
	})

	t.Run("Truncated", func(t *testing.T) {
		_, err := Open(SchemeAES256GCM, make([]byte, NonceSize+TagSize-1), key, nil)
		if err == nil {
			t.Error("expected error with truncated ciphertext, got nil")
		}
	})

	t.Run("RejectBadKeySize", func(t *testing.T) {
		_, err := Seal(SchemeAES256GCM, plainText, []byte("too short"), aad)
		if err == nil {
			t.Error("expected error with wrong key size, got nil")
		}
	})
}

func TestChaCha20Poly1305(t *testing.T) {
	key, _ := NewAESKey()
	plainText := []byte("hello world")

	cipherText, err := Seal(SchemeChaCha20Poly1305, plainText, key, nil)
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}
	decrypted, err := Open(SchemeChaCha20Poly1305, cipherText, key, nil)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if !bytes.Equal(plainText, decrypted) {
		t.Errorf("expected %s, got %s", plainText, decrypted)
	}

	if _, err := Open(SchemeAES256GCM, cipherText, key, nil); err == nil {
		t.Error("expected error opening chacha20poly1305 output as AES-GCM")
	}
	if _, err := Seal(Scheme("rot13"), plainText, key, nil); err == nil {
		t.Error("expected error for unknown scheme")
	}
}

func TestHKDF(t *testing.T) {
	seed := []byte("seed")
	salt := []byte("salt")
	info := []byte("info")

	key1, err := HKDF(seed, salt, info)
	if err != nil {
		t.Fatalf("HKDF failed: %v", err)
	}
	if len(key1) != 32 {
		t.Errorf("expected key length 32, got %d", len(key1))
	}

	key2, _ := HKDF(seed, salt, info)
	if !bytes.Equal(key1, key2) {
		t.Error("HKDF should be deterministic")
	}

	key3, _ := HKDF(seed, salt, []byte("different info"))
	if bytes.Equal(key1, key3) {
		t.Error("HKDF should produce different output with different info")
	}

	if _, err := HKDF(nil, salt, info); err == nil {
		t.Error("expected error for empty seed")
	}
}

func TestBytes(t *testing.T) {
	a := []byte{0x01, 0x02, 0x03}

	copied := CopyBytes(a)
	if !bytes.Equal(copied, a) {
		t.Error("CopyBytes failed")
	}
	copied[0] = 0xFF
	if a[0] == 0xFF {
		t.Error("CopyBytes should return a new slice")
	}
	if CopyBytes(nil) != nil {
		t.Error("CopyBytes(nil) should be nil")
	}

	ScrubBytes(copied, '*')
	if !bytes.Equal(copied, make([]byte, 3)) {
		t.Errorf("ScrubBytes should leave zeroes, got %v", copied)
	}
}

func TestEncoding(t *testing.T) {
	s := "test string"
	decoded, err := HexDecode(HexEncode([]byte(s)))
	if err != nil {
		t.Fatalf("HexDecode failed: %v", err)
	}
	if string(decoded) != s {
		t.Errorf("expected %s, got %s", s, string(decoded))
	}

	decoded, err = Base64Decode(Base64Encode([]byte(s)))
	if err != nil {
		t.Fatalf("Base64Decode failed: %v", err)
	}
	if string(decoded) != s {
		t.Errorf("expected %s, got %s", s, string(decoded))
	}
}

func TestRandom(t *testing.T) {
	t.Run("RandomBytes", func(t *testing.T) {
		b1, err := RandomBytes(32)
		if err != nil {
			t.Fatalf("RandomBytes failed: %v", err)
		}
		b2, err := RandomBytes(32)
		if err != nil {
			t.Fatalf("RandomBytes failed: %v", err)
		}
		if len(b1) != 32 {
			t.Errorf("expected 32 bytes, got %d", len(b1))
		}
		if bytes.Equal(b1, b2) {
			t.Error("RandomBytes should produce different outputs")
		}
	})

	t.Run("RandomToken", func(t *testing.T) {
		s1, err := RandomToken(32)
		if err != nil {
			t.Fatalf("RandomToken failed: %v", err)
		}
		s2, _ := RandomToken(32)
		if len(s1) != 43 {
			t.Errorf("expected length 43, got %d", len(s1))
		}
		if s1 == s2 {
			t.Error("RandomToken should produce different outputs")
		}
		raw, err := base64.RawURLEncoding.DecodeString(s1)
		if err != nil || len(raw) != 32 {
			t.Errorf("token should decode to 32 bytes, got %d (%v)", len(raw), err)
		}
	})
}
