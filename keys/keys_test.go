package keys

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/bucketvault/internal/util"
	"github.com/jmcleod/bucketvault/storage"
	"github.com/jmcleod/bucketvault/storage/memory"
)

func TestManager_GenerateAndRestore(t *testing.T) {
	ctx := t.Context()
	transient := memory.NewStore()

	m := NewManager(transient)
	assert.False(t, m.Ready())
	assert.False(t, m.Generated())
	require.NoError(t, m.EnsureKey(ctx))
	assert.True(t, m.Ready())
	assert.True(t, m.Generated())
	kid := m.KeyID()
	require.NotEmpty(t, kid)

	buf, err := m.Open()
	require.NoError(t, err)
	first := util.CopyBytes(buf.Bytes())
	buf.Destroy()
	assert.Len(t, first, KeySize)

	// A second EnsureKey keeps the same key.
	require.NoError(t, m.EnsureKey(ctx))
	assert.Equal(t, kid, m.KeyID())

	// A new manager over the same transient store recovers it (reload).
	reloaded := NewManager(transient)
	require.NoError(t, reloaded.EnsureKey(ctx))
	assert.Equal(t, kid, reloaded.KeyID())
	assert.False(t, reloaded.Generated())
	buf, err = reloaded.Open()
	require.NoError(t, err)
	assert.Equal(t, first, buf.Bytes())
	buf.Destroy()
}

func TestManager_FreshTransientStoreGetsNewKey(t *testing.T) {
	ctx := t.Context()
	a := NewManager(memory.NewStore())
	b := NewManager(memory.NewStore())
	require.NoError(t, a.EnsureKey(ctx))
	require.NoError(t, b.EnsureKey(ctx))
	assert.NotEqual(t, a.KeyID(), b.KeyID())
}

func TestManager_CorruptExportIsReplaced(t *testing.T) {
	ctx := t.Context()
	cases := map[string][]byte{
		"not json":  []byte("garbage"),
		"wrong alg": mustJSON(t, exportedKey{KID: "7d444840-9dc0-11d1-b245-5ffdce74fad2", Alg: "des", K: util.Base64Encode(make([]byte, 32))}),
		"short key": mustJSON(t, exportedKey{KID: "7d444840-9dc0-11d1-b245-5ffdce74fad2", Alg: exportAlg, K: util.Base64Encode(make([]byte, 16))}),
		"bad kid":   mustJSON(t, exportedKey{KID: "nope", Alg: exportAlg, K: util.Base64Encode(make([]byte, 32))}),
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			transient := memory.NewStore()
			require.NoError(t, transient.Put(StorageKey, data))

			m := NewManager(transient)
			require.NoError(t, m.EnsureKey(ctx))
			assert.True(t, m.Generated())

			stored, err := transient.Get(StorageKey)
			require.NoError(t, err)
			var ek exportedKey
			require.NoError(t, json.Unmarshal(stored, &ek))
			assert.Equal(t, m.KeyID(), ek.KID)
		})
	}
}

func TestManager_LegacyKeyIsNotImported(t *testing.T) {
	ctx := t.Context()
	transient := memory.NewStore()
	require.NoError(t, transient.Put(LegacyStorageKey, []byte(util.Base64Encode(make([]byte, 32)))))

	m := NewManager(transient)
	require.NoError(t, m.EnsureKey(ctx))
	_, err := transient.Get(LegacyStorageKey)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestManager_GenerationFailure(t *testing.T) {
	ctx := t.Context()
	m := NewManager(memory.NewStore(), WithGenerator(func() ([]byte, error) {
		return nil, errors.New("no entropy")
	}))
	err := m.EnsureKey(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInitialization)
	assert.False(t, m.Ready())

	_, err = m.Open()
	assert.ErrorIs(t, err, ErrNotReady)
	_, err = m.Derive("x")
	assert.ErrorIs(t, err, ErrNotReady)

	short := NewManager(memory.NewStore(), WithGenerator(func() ([]byte, error) {
		return make([]byte, 8), nil
	}))
	assert.ErrorIs(t, short.EnsureKey(ctx), ErrInitialization)
}

func TestManager_Derive(t *testing.T) {
	m := NewManager(memory.NewStore())
	require.NoError(t, m.EnsureKey(t.Context()))

	a, err := m.Derive("purpose-a")
	require.NoError(t, err)
	a2, _ := m.Derive("purpose-a")
	b, _ := m.Derive("purpose-b")
	assert.Len(t, a, 32)
	assert.Equal(t, a, a2)
	assert.NotEqual(t, a, b)
}

func TestManager_Destroy(t *testing.T) {
	ctx := t.Context()
	transient := memory.NewStore()
	m := NewManager(transient)
	require.NoError(t, m.EnsureKey(ctx))
	kid := m.KeyID()

	require.NoError(t, m.Destroy())
	require.NoError(t, m.Destroy())
	assert.False(t, m.Ready())
	assert.False(t, m.Generated())
	assert.Empty(t, m.KeyID())
	_, err := transient.Get(StorageKey)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, m.EnsureKey(ctx))
	assert.NotEqual(t, kid, m.KeyID())
}

func TestManager_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	m := NewManager(memory.NewStore())
	assert.Error(t, m.EnsureKey(ctx))
	assert.False(t, m.Ready())
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}
