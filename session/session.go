// Package session issues the opaque token that ties persisted credentials to
// one live vault instance, signs it, and tracks idle expiry.
package session

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/zeebo/blake3"

	"github.com/jmcleod/bucketvault/internal/crypto"
	"github.com/jmcleod/bucketvault/internal/util"
)

const (
	// DefaultIdleTimeout is how long a session survives without activity.
	DefaultIdleTimeout = 24 * time.Hour
	// DefaultCheckInterval paces both the expiry watcher and activity writes.
	DefaultCheckInterval = 60 * time.Second

	// TokenBytes is the entropy of a session token.
	TokenBytes = 32
)

// ErrNoToken is returned by Sign when there is nothing to sign.
var ErrNoToken = errors.New("no session token")

// KeySource supplies signing subkeys. *keys.Manager satisfies it.
type KeySource interface {
	Derive(info string) ([]byte, error)
	KeyID() string
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

// WithIdleTimeout overrides DefaultIdleTimeout.
func WithIdleTimeout(d time.Duration) Option {
	return func(r *Registry) {
		r.idleTimeout = d
	}
}

// WithCheckInterval overrides DefaultCheckInterval.
func WithCheckInterval(d time.Duration) Option {
	return func(r *Registry) {
		r.checkInterval = d
	}
}

// Registry holds the in-process session token and the last activity time.
type Registry struct {
	mu            sync.Mutex
	keys          KeySource
	token         string
	lastActivity  time.Time
	lastTouch     time.Time
	now           func() time.Time
	idleTimeout   time.Duration
	checkInterval time.Duration
}

func NewRegistry(keys KeySource, opts ...Option) *Registry {
	r := &Registry{
		keys:          keys,
		now:           time.Now,
		idleTimeout:   DefaultIdleTimeout,
		checkInterval: DefaultCheckInterval,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start issues a fresh token and marks the session active now.
func (r *Registry) Start() (string, error) {
	token, err := util.RandomToken(TokenBytes)
	if err != nil {
		return "", fmt.Errorf("generating session token: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	r.token = token
	r.lastActivity = now
	r.lastTouch = now
	return token, nil
}

// Restore adopts a token recovered from the transient store. Activity time
// is left for the caller to restore from durable state.
func (r *Registry) Restore(token string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.token = token
}

// Token returns the in-process token, or "" if none was issued.
func (r *Registry) Token() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.token
}

// Sign returns the hex keyed BLAKE3-256 MAC of token.
func (r *Registry) Sign(token string) (string, error) {
	if token == "" {
		return "", ErrNoToken
	}
	mac, err := r.mac(token)
	if err != nil {
		return "", err
	}
	return util.HexEncode(mac), nil
}

// Verify reports whether signature authenticates token under the current
// key. It compares in constant time and fails closed on any error.
func (r *Registry) Verify(token, signature string) bool {
	if token == "" || signature == "" {
		return false
	}
	got, err := util.HexDecode(signature)
	if err != nil {
		return false
	}
	want, err := r.mac(token)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare(got, want) == 1
}

func (r *Registry) mac(token string) ([]byte, error) {
	key, err := r.keys.Derive(icrypto.SessionSigningInfo)
	if err != nil {
		return nil, fmt.Errorf("deriving signing key: %w", err)
	}
	defer util.WipeBytes(key)

	h, err := blake3.NewKeyed(key)
	if err != nil {
		return nil, fmt.Errorf("creating keyed hash: %w", err)
	}
	_, _ = h.Write(icrypto.SessionMessage(token, r.keys.KeyID()))
	return h.Sum(nil), nil
}

// IsExpired reports whether the session has been idle for longer than the
// idle timeout. A session with no recorded activity is expired.
func (r *Registry) IsExpired() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.lastActivity.IsZero() {
		return true
	}
	return r.now().Sub(r.lastActivity) > r.idleTimeout
}

// Touch records activity. It reports true at most once per check interval;
// only then should the caller persist the new timestamp.
func (r *Registry) Touch() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	if !r.lastTouch.IsZero() && now.Sub(r.lastTouch) < r.checkInterval {
		return false
	}
	r.lastActivity = now
	r.lastTouch = now
	return true
}

// LastActivity returns the last recorded activity time.
func (r *Registry) LastActivity() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastActivity
}

// SetLastActivity restores activity time read from durable state.
func (r *Registry) SetLastActivity(t time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastActivity = t
	r.lastTouch = t
}

// IdleTimeout returns the configured idle timeout.
func (r *Registry) IdleTimeout() time.Duration {
	return r.idleTimeout
}

// CheckInterval returns the configured check interval.
func (r *Registry) CheckInterval() time.Duration {
	return r.checkInterval
}

// Now returns the registry clock's current time.
func (r *Registry) Now() time.Time {
	return r.now()
}

// Reset forgets the token and activity.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.token = ""
	r.lastActivity = time.Time{}
	r.lastTouch = time.Time{}
}
