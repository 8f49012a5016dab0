package bbolt

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/jmcleod/bucketvault/storage"
	"go.etcd.io/bbolt"
)

func newTestDB(t *testing.T) (*bbolt.DB, func()) {
	t.Helper()
	f, err := os.CreateTemp("", "vault-test-*.db")
	if err != nil {
		t.Fatalf("could not create temp file: %v", err)
	}
	path := f.Name()
	f.Close()

	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		os.Remove(path)
		t.Fatalf("could not open db: %v", err)
	}
	return db, func() {
		db.Close()
		os.Remove(path)
	}
}

func TestBBoltStorage(t *testing.T) {
	db, cleanup := newTestDB(t)
	defer cleanup()

	s, err := NewStore(db, "https://app.example")
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}

	t.Run("PutGet", func(t *testing.T) {
		if err := s.Put("blob", []byte("cipher")); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
		got, err := s.Get("blob")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if string(got) != "cipher" {
			t.Errorf("expected %q, got %q", "cipher", got)
		}
	})

	t.Run("Get missing", func(t *testing.T) {
		_, err := s.Get("nonexistent")
		if !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("Keys", func(t *testing.T) {
		s.Put("other", []byte("x"))
		keys, err := s.Keys()
		if err != nil {
			t.Fatalf("Keys failed: %v", err)
		}
		if len(keys) != 2 {
			t.Errorf("expected 2 keys, got %d", len(keys))
		}
	})

	t.Run("Delete missing is not an error", func(t *testing.T) {
		if err := s.Delete("never-existed"); err != nil {
			t.Errorf("expected nil, got %v", err)
		}
		if err := s.Delete("other"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if _, err := s.Get("other"); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("expected ErrNotFound after delete, got %v", err)
		}
	})

	t.Run("Scopes are isolated", func(t *testing.T) {
		other, err := NewStore(db, "https://other.example")
		if err != nil {
			t.Fatalf("NewStore failed: %v", err)
		}
		if _, err := other.Get("blob"); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("expected ErrNotFound across scopes, got %v", err)
		}
	})
}

func TestNewStoreFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "durable.db")

	s, err := NewStoreFromFile(path, "", nil)
	if err != nil {
		t.Fatalf("NewStoreFromFile failed: %v", err)
	}
	if err := s.Put("survives", []byte("yes")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := NewStoreFromFile(path, "", nil)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()
	got, err := reopened.Get("survives")
	if err != nil {
		t.Fatalf("Get after reopen failed: %v", err)
	}
	if string(got) != "yes" {
		t.Errorf("expected %q, got %q", "yes", got)
	}

	_, err = NewStoreFromFile("/nonexistent/path/to/db", "", nil)
	if err == nil {
		t.Error("expected error for invalid path")
	}
}

func TestBBoltBatch(t *testing.T) {
	db, cleanup := newTestDB(t)
	defer cleanup()

	s, err := NewStore(db, "")
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}

	t.Run("atomic batch write", func(t *testing.T) {
		err := s.Batch(func(tx storage.Tx) error {
			if err := tx.Put("b1", []byte("a")); err != nil {
				return err
			}
			return tx.Put("b2", []byte("b"))
		})
		if err != nil {
			t.Fatalf("Batch failed: %v", err)
		}

		got1, err := s.Get("b1")
		if err != nil {
			t.Fatalf("Get b1 failed: %v", err)
		}
		if string(got1) != "a" {
			t.Errorf("expected 'a', got %q", got1)
		}
	})

	t.Run("batch rollback on error", func(t *testing.T) {
		boom := errors.New("boom")
		err := s.Batch(func(tx storage.Tx) error {
			tx.Put("rollback-test", []byte("should-not-exist"))
			tx.Delete("b1")
			return boom
		})
		if !errors.Is(err, boom) {
			t.Fatalf("expected boom, got %v", err)
		}

		if _, err := s.Get("rollback-test"); err == nil {
			t.Error("expected record to not exist after rollback")
		}
		if _, err := s.Get("b1"); err != nil {
			t.Errorf("expected b1 to survive rollback, got %v", err)
		}
	})
}
