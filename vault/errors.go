package vault

import "errors"

var (
	// ErrSecurityUnavailable indicates the key could not be created or
	// recovered. Login is blocked until EnsureAuthReady succeeds.
	ErrSecurityUnavailable = errors.New("security system unavailable")
	// ErrIntegrity indicates persisted session state failed verification.
	// All vault state has been purged by the time it is returned.
	ErrIntegrity = errors.New("session integrity violation")
	// ErrSchemeMismatch indicates the stored credential was sealed with a
	// different cipher scheme than the vault is configured for. Nothing is
	// purged; reopen with the original scheme or Clear the vault.
	ErrSchemeMismatch = errors.New("cipher scheme mismatch")
)
