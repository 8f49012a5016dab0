package memory

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/bucketvault/storage"
)

func TestMemoryStore(t *testing.T) {
	s := NewStore()

	t.Run("PutAndGet", func(t *testing.T) {
		value := []byte("ciphertext")
		require.NoError(t, s.Put("k1", value))

		got, err := s.Get("k1")
		require.NoError(t, err)
		assert.Equal(t, value, got)

		// Values are cloned in both directions.
		got[0] = 'X'
		value[1] = 'Y'
		got2, _ := s.Get("k1")
		assert.Equal(t, []byte("ciphertext"), got2)
	})

	t.Run("GetNotFound", func(t *testing.T) {
		_, err := s.Get("missing")
		assert.True(t, errors.Is(err, storage.ErrNotFound))
	})

	t.Run("Keys", func(t *testing.T) {
		require.NoError(t, s.Put("k2", []byte("v")))
		keys, err := s.Keys()
		require.NoError(t, err)
		assert.Equal(t, []string{"k1", "k2"}, keys)
	})

	t.Run("DeleteIsIdempotent", func(t *testing.T) {
		require.NoError(t, s.Delete("k2"))
		require.NoError(t, s.Delete("k2"))
		_, err := s.Get("k2")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("Wipe", func(t *testing.T) {
		other := NewStore()
		require.NoError(t, other.Put("a", []byte("1")))
		require.NoError(t, other.Put("b", []byte("2")))
		other.Wipe()
		keys, _ := other.Keys()
		assert.Empty(t, keys)
	})
}

func TestMemoryBatch(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Put("existing", []byte("old")))

	t.Run("atomic batch write", func(t *testing.T) {
		err := s.Batch(func(tx storage.Tx) error {
			if err := tx.Put("a", []byte("1")); err != nil {
				return err
			}
			return tx.Delete("existing")
		})
		require.NoError(t, err)

		got, err := s.Get("a")
		require.NoError(t, err)
		assert.Equal(t, []byte("1"), got)
		_, err = s.Get("existing")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("batch rollback on error", func(t *testing.T) {
		boom := errors.New("boom")
		err := s.Batch(func(tx storage.Tx) error {
			_ = tx.Put("rollback-test", []byte("x"))
			_ = tx.Delete("a")
			return boom
		})
		assert.ErrorIs(t, err, boom)

		_, err = s.Get("rollback-test")
		assert.ErrorIs(t, err, storage.ErrNotFound)
		got, err := s.Get("a")
		require.NoError(t, err)
		assert.Equal(t, []byte("1"), got)
	})
}
