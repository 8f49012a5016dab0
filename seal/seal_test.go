package seal

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/bucketvault/internal/util"
	"github.com/jmcleod/bucketvault/keys"
	"github.com/jmcleod/bucketvault/record"
	"github.com/jmcleod/bucketvault/storage/memory"
)

var testCredential = record.Credential{
	AccessKeyID:     "AKIAABCDEFGHIJKL1234",
	SecretAccessKey: "wJalrXUtnFEMI/K7MDENG/bPxRfiCYEXAMPLEKEY",
}

func newManager(t *testing.T) *keys.Manager {
	t.Helper()
	m := keys.NewManager(memory.NewStore())
	require.NoError(t, m.EnsureKey(t.Context()))
	return m
}

func TestCipher_RoundTrip(t *testing.T) {
	for _, scheme := range []util.Scheme{util.SchemeAES256GCM, util.SchemeChaCha20Poly1305} {
		t.Run(string(scheme), func(t *testing.T) {
			ctx := t.Context()
			c := New(newManager(t), WithScheme(scheme))
			assert.Equal(t, scheme, c.Scheme())

			blob, err := c.Encrypt(ctx, record.CredentialPayload(testCredential))
			require.NoError(t, err)
			assert.NotContains(t, string(blob), testCredential.SecretAccessKey)

			raw, err := base64.StdEncoding.DecodeString(string(blob))
			require.NoError(t, err)
			assert.Greater(t, len(raw), util.NonceSize+util.TagSize)

			p, err := c.Decrypt(ctx, blob, record.KindCredential)
			require.NoError(t, err)
			require.NotNil(t, p.Credential)
			assert.Equal(t, testCredential.AccessKeyID, p.Credential.AccessKeyID)
			assert.Equal(t, testCredential.SecretAccessKey, p.Credential.SecretAccessKey)
		})
	}
}

func TestCipher_FreshNoncePerCall(t *testing.T) {
	ctx := t.Context()
	c := New(newManager(t))
	seen := make(map[string]bool)
	for range 50 {
		blob, err := c.Encrypt(ctx, record.CredentialPayload(testCredential))
		require.NoError(t, err)
		raw, err := base64.StdEncoding.DecodeString(string(blob))
		require.NoError(t, err)
		nonce := string(raw[:util.NonceSize])
		assert.False(t, seen[nonce], "nonce reused")
		seen[nonce] = true
	}
}

func TestCipher_EveryBitFlipFails(t *testing.T) {
	ctx := t.Context()
	c := New(newManager(t))
	blob, err := c.Encrypt(ctx, record.CredentialPayload(testCredential))
	require.NoError(t, err)
	raw, err := base64.StdEncoding.DecodeString(string(blob))
	require.NoError(t, err)

	for i := range raw {
		for bit := range 8 {
			tampered := util.CopyBytes(raw)
			tampered[i] ^= 1 << bit
			_, err := c.Decrypt(ctx, Blob(base64.StdEncoding.EncodeToString(tampered)), record.KindCredential)
			if !errors.Is(err, ErrDecryption) {
				t.Fatalf("byte %d bit %d: expected ErrDecryption, got %v", i, bit, err)
			}
		}
	}
}

func TestCipher_RejectsMalformed(t *testing.T) {
	ctx := t.Context()
	c := New(newManager(t))
	inputs := map[string]Blob{
		"empty":      "",
		"not base64": "!!!not-base64!!!",
		"too short":  Blob(base64.StdEncoding.EncodeToString(make([]byte, util.NonceSize+util.TagSize-1))),
		"random":     Blob(base64.StdEncoding.EncodeToString(make([]byte, 64))),
	}
	for name, b := range inputs {
		t.Run(name, func(t *testing.T) {
			_, err := c.Decrypt(ctx, b, record.KindCredential)
			assert.ErrorIs(t, err, ErrDecryption)
		})
	}
}

func TestCipher_WrongKeyFails(t *testing.T) {
	ctx := t.Context()
	blob, err := New(newManager(t)).Encrypt(ctx, record.CredentialPayload(testCredential))
	require.NoError(t, err)

	_, err = New(newManager(t)).Decrypt(ctx, blob, record.KindCredential)
	assert.ErrorIs(t, err, ErrDecryption)
}

func TestCipher_WrongSchemeFails(t *testing.T) {
	ctx := t.Context()
	m := newManager(t)
	blob, err := New(m).Encrypt(ctx, record.CredentialPayload(testCredential))
	require.NoError(t, err)

	_, err = New(m, WithScheme(util.SchemeChaCha20Poly1305)).Decrypt(ctx, blob, record.KindCredential)
	assert.ErrorIs(t, err, ErrDecryption)
}

func TestCipher_KindIsBound(t *testing.T) {
	ctx := t.Context()
	c := New(newManager(t))
	blob, err := c.Encrypt(ctx, record.BucketPayload(record.BucketConfig{Bucket: "my-bucket", Region: "us-east-1"}))
	require.NoError(t, err)

	_, err = c.Decrypt(ctx, blob, record.KindCredential)
	assert.ErrorIs(t, err, ErrDecryption)

	p, err := c.Decrypt(ctx, blob, record.KindBucket)
	require.NoError(t, err)
	assert.Equal(t, "my-bucket", p.Bucket.Bucket)
}

func TestCipher_ValidatesBeforeSealing(t *testing.T) {
	c := New(newManager(t))
	_, err := c.Encrypt(t.Context(), record.CredentialPayload(record.Credential{AccessKeyID: "AKIAABCDEFGHIJKL1234"}))
	assert.ErrorIs(t, err, record.ErrValidation)
}

func TestCipher_KeyNotReady(t *testing.T) {
	c := New(keys.NewManager(memory.NewStore()))
	_, err := c.Encrypt(t.Context(), record.CredentialPayload(testCredential))
	assert.ErrorIs(t, err, keys.ErrNotReady)
}

func TestCipher_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	c := New(newManager(t))
	_, err := c.Encrypt(ctx, record.CredentialPayload(testCredential))
	assert.ErrorIs(t, err, context.Canceled)
	_, err = c.Decrypt(ctx, "", record.KindCredential)
	assert.ErrorIs(t, err, context.Canceled)
}
