// Package keys manages the symmetric key that protects one vault for the
// lifetime of its transient store.
//
// The key is generated on first use, exported to the transient store so a
// reload of the same session can recover it, and held in memory inside a
// memguard Enclave. It is never written to durable storage.
package keys

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/awnumar/memguard"
	"github.com/chainguard-dev/clog"
	"github.com/google/uuid"

	"github.com/jmcleod/bucketvault/internal/util"
	"github.com/jmcleod/bucketvault/storage"
)

const (
	// StorageKey is the transient-store entry holding the exported key.
	StorageKey = "bucketvault.key.v2"
	// LegacyStorageKey held a bare base64 key in earlier releases. It is
	// never imported.
	LegacyStorageKey = "bucketvault.key"

	KeySize   = util.AESKeySize
	exportAlg = "A256"
)

var (
	// ErrInitialization means no usable key could be recovered or created.
	// The vault must not read or write credentials after this error.
	ErrInitialization = errors.New("key initialization failed")
	// ErrNotReady is returned by key accessors before EnsureKey succeeds.
	ErrNotReady = errors.New("key manager not ready")
)

// exportedKey is the transient-store representation of a key.
type exportedKey struct {
	KID       string    `json:"kid"`
	Alg       string    `json:"alg"`
	K         string    `json:"k"`
	CreatedAt time.Time `json:"created_at"`
}

// Generator returns fresh key material.
type Generator func() ([]byte, error)

// Option configures a Manager.
type Option func(*Manager)

// WithGenerator replaces the random key source.
func WithGenerator(gen Generator) Option {
	return func(m *Manager) {
		m.generate = gen
	}
}

// WithClock sets the time source used to stamp new keys.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// Manager owns at most one active key. It is safe for concurrent use; a
// caller blocked in EnsureKey never observes a half-initialized key.
type Manager struct {
	mu        sync.Mutex
	transient storage.Store
	enclave   *memguard.Enclave
	kid       string
	generated bool
	generate  Generator
	now       func() time.Time
}

// NewManager returns a Manager that exports its key to transient.
func NewManager(transient storage.Store, opts ...Option) *Manager {
	m := &Manager{
		transient: transient,
		generate:  util.NewAESKey,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// EnsureKey recovers the exported key from the transient store or, when
// it is missing or unusable, generates and exports a new one.
func (m *Manager) EnsureKey(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.enclave != nil {
		return nil
	}
	log := clog.FromContext(ctx).With("component", "keys")

	raw, kid, err := m.restore()
	if err == nil {
		m.enclave = memguard.NewEnclave(raw)
		m.kid = kid
		m.generated = false
		log.InfoContext(ctx, "key restored", "kid", kid)
		return nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		log.WarnContext(ctx, "discarding unrecoverable key", "error", err)
	}
	if err := m.transient.Delete(LegacyStorageKey); err != nil {
		return fmt.Errorf("%w: removing legacy key: %w", ErrInitialization, err)
	}

	raw, err = m.generate()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInitialization, err)
	}
	if len(raw) != KeySize {
		util.WipeBytes(raw)
		return fmt.Errorf("%w: generated key has %d bytes, want %d", ErrInitialization, len(raw), KeySize)
	}
	kid = uuid.NewString()
	if err := m.export(raw, kid); err != nil {
		util.WipeBytes(raw)
		return fmt.Errorf("%w: exporting key: %w", ErrInitialization, err)
	}
	m.enclave = memguard.NewEnclave(raw)
	m.kid = kid
	m.generated = true
	log.InfoContext(ctx, "key generated", "kid", kid)
	return nil
}

func (m *Manager) restore() ([]byte, string, error) {
	data, err := m.transient.Get(StorageKey)
	if err != nil {
		return nil, "", err
	}
	defer util.WipeBytes(data)

	var ek exportedKey
	if err := json.Unmarshal(data, &ek); err != nil {
		return nil, "", fmt.Errorf("decoding exported key: %w", err)
	}
	if ek.Alg != exportAlg {
		return nil, "", fmt.Errorf("unsupported key algorithm %q", ek.Alg)
	}
	if _, err := uuid.Parse(ek.KID); err != nil {
		return nil, "", fmt.Errorf("invalid key ID: %w", err)
	}
	raw, err := util.Base64Decode(ek.K)
	if err != nil {
		return nil, "", fmt.Errorf("decoding key material: %w", err)
	}
	if len(raw) != KeySize {
		util.WipeBytes(raw)
		return nil, "", fmt.Errorf("exported key has %d bytes, want %d", len(raw), KeySize)
	}
	return raw, ek.KID, nil
}

func (m *Manager) export(raw []byte, kid string) error {
	data, err := json.Marshal(exportedKey{
		KID:       kid,
		Alg:       exportAlg,
		K:         util.Base64Encode(raw),
		CreatedAt: m.now().UTC(),
	})
	if err != nil {
		return err
	}
	defer util.WipeBytes(data)
	return m.transient.Put(StorageKey, data)
}

// Ready reports whether a key is active.
func (m *Manager) Ready() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enclave != nil
}

// Generated reports whether the active key was created by this manager
// rather than restored from the transient store. Anything signed or sealed
// before it was created cannot be verified with it.
func (m *Manager) Generated() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enclave != nil && m.generated
}

// KeyID returns the identifier of the active key, or "" if none.
func (m *Manager) KeyID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.kid
}

// Open decrypts the key into a locked buffer. Callers must Destroy it.
func (m *Manager) Open() (*memguard.LockedBuffer, error) {
	m.mu.Lock()
	enclave := m.enclave
	m.mu.Unlock()
	if enclave == nil {
		return nil, ErrNotReady
	}
	buf, err := enclave.Open()
	if err != nil {
		return nil, fmt.Errorf("opening key enclave: %w", err)
	}
	return buf, nil
}

// Derive returns a 32-byte HKDF-SHA256 subkey of the active key, bound to
// the key ID and info.
func (m *Manager) Derive(info string) ([]byte, error) {
	m.mu.Lock()
	kid := m.kid
	m.mu.Unlock()

	buf, err := m.Open()
	if err != nil {
		return nil, err
	}
	defer buf.Destroy()
	return util.HKDF(buf.Bytes(), []byte(kid), []byte(info))
}

// Destroy drops the active key and removes its exported form from the
// transient store. Enclave ciphertext is released to the garbage collector;
// zeroing it is best-effort. Destroy is idempotent.
func (m *Manager) Destroy() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enclave = nil
	m.kid = ""
	m.generated = false
	var errs []error
	for _, k := range []string{StorageKey, LegacyStorageKey} {
		if err := m.transient.Delete(k); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
