package vault

import (
	"time"

	"github.com/jmcleod/bucketvault/internal/util"
	"github.com/jmcleod/bucketvault/keys"
)

// Option configures a Vault.
type Option func(*Vault)

// WithClock sets the time source for session activity and record expiry.
func WithClock(now func() time.Time) Option {
	return func(v *Vault) {
		v.now = now
	}
}

// WithIdleTimeout overrides the 24h session idle timeout.
func WithIdleTimeout(d time.Duration) Option {
	return func(v *Vault) {
		v.idleTimeout = d
	}
}

// WithCheckInterval overrides the 60s expiry check and activity write
// interval.
func WithCheckInterval(d time.Duration) Option {
	return func(v *Vault) {
		v.checkInterval = d
	}
}

// WithScheme selects the AEAD used for credential blobs. A vault reopened
// with a different scheme than the one that sealed the stored credential
// fails EnsureAuthReady with ErrSchemeMismatch.
func WithScheme(scheme util.Scheme) Option {
	return func(v *Vault) {
		v.scheme = scheme
	}
}

// WithKeyGenerator replaces the random key source.
func WithKeyGenerator(gen keys.Generator) Option {
	return func(v *Vault) {
		v.keyGen = gen
	}
}

// WithAlertFunc registers a callback for repeated security events. It runs
// after the vault method that raised the alert has released its lock, on
// that method's goroutine.
func WithAlertFunc(fn AlertFunc) Option {
	return func(v *Vault) {
		v.alertFn = fn
	}
}
