// Package vault keeps one object-storage credential encrypted at rest and
// tied to a verifiable, expiring session.
//
// A Vault owns a transient store, which lives as long as the current
// session owner (a process, a shell, a browser tab), and a durable store,
// which survives restarts. The key and the in-process session token only
// ever live in the transient store; the durable store sees the sealed
// credential blob, the session token, its signature and the last activity
// time. A read succeeds only when all of those agree.
package vault

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chainguard-dev/clog"

	"github.com/jmcleod/bucketvault/internal/util"
	"github.com/jmcleod/bucketvault/keys"
	"github.com/jmcleod/bucketvault/record"
	"github.com/jmcleod/bucketvault/seal"
	"github.com/jmcleod/bucketvault/session"
	"github.com/jmcleod/bucketvault/storage"
)

// Vault is safe for concurrent use. All operations are serialized.
type Vault struct {
	mu        sync.Mutex
	transient storage.Store
	durable   storage.Store

	keys     *keys.Manager
	cipher   *seal.Cipher
	sessions *session.Registry
	audit    *auditLogger
	metrics  *metricsCollector

	state State
	cache *cachedCredential
	// activityMalformed marks a restored session whose stored timestamp
	// did not parse.
	activityMalformed bool

	now           func() time.Time
	idleTimeout   time.Duration
	checkInterval time.Duration
	scheme        util.Scheme
	keyGen        keys.Generator
	alertFn       AlertFunc
}

// New creates a Vault over the given stores. Call EnsureAuthReady before
// anything else.
func New(transient, durable storage.Store, opts ...Option) *Vault {
	v := &Vault{
		transient:     transient,
		durable:       durable,
		now:           time.Now,
		idleTimeout:   session.DefaultIdleTimeout,
		checkInterval: session.DefaultCheckInterval,
		scheme:        util.SchemeAES256GCM,
	}
	for _, opt := range opts {
		opt(v)
	}

	keyOpts := []keys.Option{keys.WithClock(v.now)}
	if v.keyGen != nil {
		keyOpts = append(keyOpts, keys.WithGenerator(v.keyGen))
	}
	v.keys = keys.NewManager(transient, keyOpts...)
	v.cipher = seal.New(v.keys, seal.WithScheme(v.scheme))
	v.sessions = session.NewRegistry(v.keys,
		session.WithClock(v.now),
		session.WithIdleTimeout(v.idleTimeout),
		session.WithCheckInterval(v.checkInterval),
	)
	v.metrics = newMetricsCollector(v.alertFn, v.now)
	v.audit = newAuditLogger(v.metrics, v.now)
	return v
}

// unlock releases the vault lock and then delivers any alerts raised while
// it was held, so an AlertFunc may call back into the Vault.
func (v *Vault) unlock() {
	v.mu.Unlock()
	v.metrics.flush()
}

// State returns the current session state.
func (v *Vault) State() State {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

// EnsureAuthReady makes sure a key exists and a session is either restored
// from the transient store or freshly started. It fails closed: on any key
// error the vault is purged and ErrSecurityUnavailable is returned.
func (v *Vault) EnsureAuthReady(ctx context.Context) error {
	v.mu.Lock()
	defer v.unlock()
	return v.ensureAuthReady(ctx)
}

func (v *Vault) ensureAuthReady(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if v.state == StateActive && v.keys.Ready() {
		return nil
	}
	v.state = StateInitializing

	if err := v.keys.EnsureKey(ctx); err != nil {
		return v.failClosed(ctx, err)
	}

	token, err := getString(v.transient, transientSessionKey)
	if err != nil {
		return v.failClosed(ctx, err)
	}
	persisted, err := readSession(v.durable)
	if err != nil {
		return v.failClosed(ctx, err)
	}

	if token != "" && !v.keys.Generated() {
		if persisted.blob != "" && persisted.scheme != "" && persisted.scheme != v.cipher.Scheme() {
			v.state = StateUninitialized
			return fmt.Errorf("%w: credential sealed with %s, vault uses %s",
				ErrSchemeMismatch, persisted.scheme, v.cipher.Scheme())
		}
		v.sessions.Restore(token)
		v.sessions.SetLastActivity(persisted.activity)
		v.activityMalformed = persisted.badActivity
		v.state = StateActive
		v.audit.log(ctx, AuditSessionRestored, slog.String("kid", v.keys.KeyID()))
		return nil
	}

	// Durable state left by a session whose transient half is gone, or
	// signed under a key that was lost, can no longer be verified.
	if !persisted.empty() {
		reason := "session from an ended owner"
		if token != "" {
			reason = "session signed by a lost key"
		}
		clog.FromContext(ctx).InfoContext(ctx, "discarding unverifiable session", "component", "vault", "reason", reason)
		if err := purgeStore(v.durable, sessionKeys...); err != nil {
			return v.failClosed(ctx, err)
		}
	}
	if err := v.startSession(ctx); err != nil {
		return v.failClosed(ctx, err)
	}
	v.state = StateActive
	return nil
}

func (v *Vault) failClosed(ctx context.Context, cause error) error {
	v.audit.logFailure(ctx, AuditKeyUnavailable, cause.Error())
	purgeErr := v.purge()
	v.state = StateCleared
	if purgeErr != nil {
		return fmt.Errorf("%w: %w", ErrSecurityUnavailable, errors.Join(cause, purgeErr))
	}
	return fmt.Errorf("%w: %w", ErrSecurityUnavailable, cause)
}

// startSession issues a new token and persists it with its signature.
func (v *Vault) startSession(ctx context.Context) error {
	token, err := v.sessions.Start()
	if err != nil {
		return err
	}
	sig, err := v.sessions.Sign(token)
	if err != nil {
		return err
	}
	v.activityMalformed = false
	if err := v.transient.Put(transientSessionKey, []byte(token)); err != nil {
		return fmt.Errorf("persisting transient session: %w", err)
	}
	err = v.durable.Batch(func(tx storage.Tx) error {
		if err := tx.Put(sessionTokenKey, []byte(token)); err != nil {
			return err
		}
		if err := tx.Put(sessionSigKey, []byte(sig)); err != nil {
			return err
		}
		return tx.Put(sessionTSKey, formatTimestamp(v.sessions.LastActivity()))
	})
	if err != nil {
		return fmt.Errorf("persisting session: %w", err)
	}
	v.audit.log(ctx, AuditSessionStarted, slog.String("kid", v.keys.KeyID()))
	return nil
}

// Login starts a new session for c and saves it.
func (v *Vault) Login(ctx context.Context, c record.Credential) error {
	if err := c.Validate(); err != nil {
		return err
	}
	v.mu.Lock()
	defer v.unlock()

	if err := v.ensureAuthReady(ctx); err != nil {
		return err
	}
	if err := v.startSession(ctx); err != nil {
		return v.failClosed(ctx, err)
	}
	if err := v.save(ctx, c); err != nil {
		return err
	}
	v.audit.log(ctx, AuditLogin, slog.String("access_key_id", c.MaskedAccessKeyID()))
	return nil
}

// Save encrypts c and persists it under the current session, refreshing the
// activity timestamp and the token signature.
func (v *Vault) Save(ctx context.Context, c record.Credential) error {
	v.mu.Lock()
	defer v.unlock()
	return v.save(ctx, c)
}

func (v *Vault) save(ctx context.Context, c record.Credential) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.Validate(); err != nil {
		return err
	}
	token := v.sessions.Token()
	if v.state != StateActive || !v.keys.Ready() || token == "" {
		return fmt.Errorf("%w: no active session", ErrSecurityUnavailable)
	}
	if v.sessions.IsExpired() {
		if err := v.expireIdle(ctx); err != nil {
			return errors.Join(ErrSecurityUnavailable, err)
		}
		return fmt.Errorf("%w: session expired", ErrSecurityUnavailable)
	}

	blob, err := v.cipher.Encrypt(ctx, record.CredentialPayload(c))
	if err != nil {
		return fmt.Errorf("encrypting credential: %w", err)
	}
	sig, err := v.sessions.Sign(token)
	if err != nil {
		return fmt.Errorf("signing session: %w", err)
	}
	now := v.now()
	err = v.durable.Batch(func(tx storage.Tx) error {
		if err := tx.Put(credentialsKey, []byte(blob)); err != nil {
			return err
		}
		if err := tx.Put(sessionTSKey, formatTimestamp(now)); err != nil {
			return err
		}
		if err := tx.Put(sessionTokenKey, []byte(token)); err != nil {
			return err
		}
		if err := tx.Put(schemeKey, []byte(v.cipher.Scheme())); err != nil {
			return err
		}
		return tx.Put(sessionSigKey, []byte(sig))
	})
	if err != nil {
		return fmt.Errorf("persisting credential: %w", err)
	}
	v.sessions.SetLastActivity(now)
	v.activityMalformed = false

	v.cache.wipe()
	v.cache = newCachedCredential(&c)
	return nil
}

// Load returns a copy of the stored credential. It returns nil with no
// error when there is no usable session: the key is not ready, the session
// has expired, the transient session is gone, the blob does not decrypt,
// or the record itself has expired. It returns ErrIntegrity, after purging
// everything, when the persisted token or signature fails verification.
func (v *Vault) Load(ctx context.Context) (*record.Credential, error) {
	v.mu.Lock()
	defer v.unlock()
	return v.load(ctx)
}

// CurrentCredential is Load for collaborators that hand credentials to a
// storage client.
func (v *Vault) CurrentCredential(ctx context.Context) (*record.Credential, error) {
	return v.Load(ctx)
}

func (v *Vault) load(ctx context.Context) (*record.Credential, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if v.state != StateActive || !v.keys.Ready() {
		return nil, nil
	}
	if v.sessions.IsExpired() {
		return nil, v.expireIdle(ctx)
	}

	token := v.sessions.Token()
	transientToken, err := getString(v.transient, transientSessionKey)
	if err != nil {
		return nil, err
	}
	if transientToken == "" || transientToken != token {
		return nil, v.expire(ctx, AuditSessionExpired, "transient session lost")
	}

	persisted, err := readSession(v.durable)
	if err != nil {
		return nil, err
	}
	if persisted.empty() {
		v.cache.wipe()
		v.cache = nil
		return nil, nil
	}
	switch {
	case persisted.signature == "":
		return nil, v.invalidate(ctx, "missing signature")
	case !v.sessions.Verify(persisted.token, persisted.signature):
		return nil, v.invalidate(ctx, "signature mismatch")
	case persisted.token != token:
		return nil, v.invalidate(ctx, "token mismatch")
	}

	now := v.now()
	if v.cache != nil {
		if v.cache.expired(now) {
			return nil, v.expire(ctx, AuditRecordExpired, "credential expired")
		}
		return v.cache.credential(), nil
	}
	if persisted.blob == "" {
		return nil, nil
	}

	p, err := v.cipher.Decrypt(ctx, persisted.blob, record.KindCredential)
	if err != nil {
		v.audit.logFailure(ctx, AuditDecryptFailed, err.Error())
		if purgeErr := v.purge(); purgeErr != nil {
			return nil, purgeErr
		}
		v.state = StateCleared
		return nil, nil
	}
	if p.Credential.Expired(now) {
		return nil, v.expire(ctx, AuditRecordExpired, "credential expired")
	}
	v.cache = newCachedCredential(p.Credential)
	return v.cache.credential(), nil
}

// expire moves the vault through Expired into Cleared.
func (v *Vault) expire(ctx context.Context, event AuditEvent, reason string) error {
	v.state = StateExpired
	v.audit.logFailure(ctx, event, reason)
	err := v.purge()
	v.state = StateCleared
	return err
}

// expireIdle expires a session that failed the idle check.
func (v *Vault) expireIdle(ctx context.Context) error {
	reason := "idle timeout"
	if v.activityMalformed {
		reason = "malformed activity timestamp"
	}
	return v.expire(ctx, AuditSessionExpired, reason)
}

// invalidate moves the vault through Invalidated into Cleared and returns
// ErrIntegrity.
func (v *Vault) invalidate(ctx context.Context, reason string) error {
	v.state = StateInvalidated
	v.audit.logFailure(ctx, AuditIntegrityViolation, reason)
	err := v.purge()
	v.state = StateCleared
	if err != nil {
		return errors.Join(ErrIntegrity, err)
	}
	return ErrIntegrity
}

// Clear wipes the cached credential, discards the key and removes every
// entry the vault owns from both stores, legacy entries included. It is
// safe to call at any time.
func (v *Vault) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	v.mu.Lock()
	defer v.unlock()
	err := v.purge()
	v.state = StateCleared
	return err
}

// Logout clears the vault and records the event.
func (v *Vault) Logout(ctx context.Context) error {
	v.mu.Lock()
	defer v.unlock()
	var attrs []slog.Attr
	if v.cache != nil {
		attrs = append(attrs, slog.String("access_key_id", record.Mask(v.cache.accessKeyID)))
	}
	err := v.purge()
	v.state = StateCleared
	v.audit.log(ctx, AuditLogout, attrs...)
	return err
}

func (v *Vault) purge() error {
	v.cache.wipe()
	v.cache = nil
	v.sessions.Reset()
	v.activityMalformed = false
	return errors.Join(
		v.keys.Destroy(),
		purgeStore(v.transient, transientSessionKey, keys.StorageKey),
		purgeStore(v.durable, durableKeys...),
	)
}

// TouchSession records a qualifying user interaction. Writes to the durable
// store happen at most once per check interval. Non-qualifying events and
// calls without an active session are ignored.
func (v *Vault) TouchSession(ctx context.Context, event session.ActivityEvent) error {
	if !session.Qualifies(event) {
		return nil
	}
	v.mu.Lock()
	defer v.unlock()
	if v.state != StateActive {
		return nil
	}
	if v.sessions.IsExpired() {
		return v.expireIdle(ctx)
	}
	if !v.sessions.Touch() {
		return nil
	}
	if err := v.durable.Put(sessionTSKey, formatTimestamp(v.sessions.LastActivity())); err != nil {
		return fmt.Errorf("persisting activity: %w", err)
	}
	return nil
}

// CheckExpiry clears an active session that has gone idle. It reports
// whether it did so.
func (v *Vault) CheckExpiry(ctx context.Context) bool {
	v.mu.Lock()
	defer v.unlock()
	if v.state != StateActive || !v.sessions.IsExpired() {
		return false
	}
	if err := v.expireIdle(ctx); err != nil {
		clog.FromContext(ctx).WarnContext(ctx, "purging expired session", "component", "vault", "error", err)
	}
	return true
}

// Watch runs CheckExpiry every check interval until ctx is done.
func (v *Vault) Watch(ctx context.Context) {
	ticker := time.NewTicker(v.checkInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			v.CheckExpiry(ctx)
		}
	}
}

// SaveBucket stores the non-sensitive bucket configuration unencrypted.
func (v *Vault) SaveBucket(ctx context.Context, b record.BucketConfig) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := b.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("encoding bucket config: %w", err)
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.durable.Put(bucketKey, data); err != nil {
		return fmt.Errorf("persisting bucket config: %w", err)
	}
	return nil
}

// Bucket returns the stored bucket configuration, or nil if none is set.
// A stored value that no longer validates is returned as an error and left
// for the caller to overwrite.
func (v *Vault) Bucket(ctx context.Context) (*record.BucketConfig, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	v.mu.Lock()
	data, err := v.durable.Get(bucketKey)
	v.mu.Unlock()
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading bucket config: %w", err)
	}
	var b record.BucketConfig
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("%w: malformed bucket config", record.ErrValidation)
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return &b, nil
}

// Status is a non-secret summary of the vault.
type Status struct {
	State               State              `json:"state"`
	KeyID               string             `json:"key_id,omitempty"`
	Authenticated       bool               `json:"authenticated"`
	AccessKeyID         string             `json:"access_key_id,omitempty"`
	LastActivity        time.Time          `json:"last_activity,omitzero"`
	SessionExpiresAt    time.Time          `json:"session_expires_at,omitzero"`
	CredentialExpiresAt *time.Time         `json:"credential_expires_at,omitempty"`
	Events              map[AuditEvent]int `json:"events,omitempty"`
}

// Status reports the vault state without decrypting anything.
func (v *Vault) Status() Status {
	v.mu.Lock()
	defer v.mu.Unlock()
	st := Status{
		State:  v.state,
		KeyID:  v.keys.KeyID(),
		Events: v.metrics.snapshot(),
	}
	if last := v.sessions.LastActivity(); !last.IsZero() {
		st.LastActivity = last
		st.SessionExpiresAt = last.Add(v.idleTimeout)
	}
	if v.cache != nil {
		st.Authenticated = v.state == StateActive
		st.AccessKeyID = record.Mask(v.cache.accessKeyID)
		if v.cache.expiresAt != nil {
			t := *v.cache.expiresAt
			st.CredentialExpiresAt = &t
		}
	}
	return st
}
