// Package seal encrypts and decrypts tagged payloads under the key held by
// a keys.Manager.
package seal

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmcleod/bucketvault/internal/crypto"
	"github.com/jmcleod/bucketvault/internal/util"
	"github.com/jmcleod/bucketvault/record"
)

// ErrDecryption covers every way a blob can fail to open: bad encoding,
// truncation, tampering, or a different key. Callers treat it as "no
// session", never as a reason to retry.
var ErrDecryption = errors.New("decryption failed")

// Blob is the persisted form of an encrypted payload:
// base64(nonce ‖ ciphertext ‖ tag).
type Blob string

// KeySource supplies the active key. *keys.Manager satisfies it.
type KeySource interface {
	Derive(info string) ([]byte, error)
	KeyID() string
}

// Option configures a Cipher.
type Option func(*Cipher)

// WithScheme selects the AEAD. The default is AES-256-GCM.
func WithScheme(scheme util.Scheme) Option {
	return func(c *Cipher) {
		c.scheme = scheme
	}
}

// Cipher seals record payloads. It holds no key material of its own.
type Cipher struct {
	keys   KeySource
	scheme util.Scheme
}

func New(keys KeySource, opts ...Option) *Cipher {
	c := &Cipher{keys: keys, scheme: util.SchemeAES256GCM}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Scheme returns the configured AEAD scheme.
func (c *Cipher) Scheme() util.Scheme {
	return c.scheme
}

// Encrypt validates p and seals it with a fresh random nonce.
func (c *Cipher) Encrypt(ctx context.Context, p record.Payload) (Blob, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	plain, err := p.Encode()
	if err != nil {
		return "", err
	}
	defer util.WipeBytes(plain)

	key, err := c.keys.Derive(icrypto.PayloadKeyInfo)
	if err != nil {
		return "", fmt.Errorf("deriving payload key: %w", err)
	}
	defer util.WipeBytes(key)

	sealed, err := util.Seal(c.scheme, plain, key, icrypto.AADPayload(string(p.Kind), c.keys.KeyID(), p.Version))
	if err != nil {
		return "", fmt.Errorf("sealing payload: %w", err)
	}
	return Blob(util.Base64Encode(sealed)), nil
}

// Decrypt opens b, which must carry a payload of the given kind.
func (c *Cipher) Decrypt(ctx context.Context, b Blob, kind record.Kind) (record.Payload, error) {
	if err := ctx.Err(); err != nil {
		return record.Payload{}, err
	}
	sealed, err := util.Base64Decode(string(b))
	if err != nil {
		return record.Payload{}, fmt.Errorf("%w: malformed blob", ErrDecryption)
	}
	if len(sealed) < util.NonceSize+util.TagSize {
		return record.Payload{}, fmt.Errorf("%w: blob too short", ErrDecryption)
	}

	key, err := c.keys.Derive(icrypto.PayloadKeyInfo)
	if err != nil {
		return record.Payload{}, fmt.Errorf("%w: %w", ErrDecryption, err)
	}
	defer util.WipeBytes(key)

	plain, err := util.Open(c.scheme, sealed, key, icrypto.AADPayload(string(kind), c.keys.KeyID(), record.SchemaVersion))
	if err != nil {
		return record.Payload{}, fmt.Errorf("%w: authentication failed", ErrDecryption)
	}
	defer util.WipeBytes(plain)

	p, err := record.Decode(plain)
	if err != nil {
		return record.Payload{}, fmt.Errorf("%w: %w", ErrDecryption, err)
	}
	if p.Kind != kind {
		return record.Payload{}, fmt.Errorf("%w: unexpected payload kind %q", ErrDecryption, p.Kind)
	}
	return p, nil
}
