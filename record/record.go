// Package record defines the payloads the vault encrypts or persists and the
// schema every one of them must satisfy before it reaches the cipher.
package record

import (
	"errors"
	"fmt"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/jmcleod/bucketvault/sanitize"
)

const (
	MinAccessKeyIDLength     = 3
	MaxAccessKeyIDLength     = 128
	MinSecretAccessKeyLength = 8
	MaxSecretAccessKeyLength = 256
	MaxSessionTokenLength    = 8192
)

// ErrValidation is wrapped by every schema violation.
var ErrValidation = errors.New("validation error")

func validationErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// Credential is an access-key/secret-key pair for a third-party object
// store, optionally carrying a temporary session token and its expiry.
type Credential struct {
	AccessKeyID     string     `json:"accessKeyId"`
	SecretAccessKey string     `json:"secretAccessKey"`
	SessionToken    string     `json:"sessionToken,omitempty"`
	ExpiresAt       *time.Time `json:"expiresAt,omitempty"`
}

// Validate checks the record shape. Both the identifier and the secret are
// required. Error messages never include the secret.
func (c Credential) Validate() error {
	if c.AccessKeyID == "" {
		return validationErrorf("access key ID must not be empty")
	}
	if c.SecretAccessKey == "" {
		return validationErrorf("secret access key must not be empty")
	}
	if err := validateToken(c.AccessKeyID, "access key ID", MinAccessKeyIDLength, MaxAccessKeyIDLength); err != nil {
		return err
	}
	if err := validateToken(c.SecretAccessKey, "secret access key", MinSecretAccessKeyLength, MaxSecretAccessKeyLength); err != nil {
		return err
	}
	if c.SessionToken != "" {
		if err := validateToken(c.SessionToken, "session token", 1, MaxSessionTokenLength); err != nil {
			return err
		}
	}
	if c.ExpiresAt != nil && c.ExpiresAt.IsZero() {
		return validationErrorf("expiry must not be the zero time")
	}
	return nil
}

// validateToken accepts printable ASCII without whitespace.
func validateToken(s, label string, minLen, maxLen int) error {
	if len(s) < minLen || len(s) > maxLen {
		return validationErrorf("%s must be between %d and %d characters", label, minLen, maxLen)
	}
	if !utf8.ValidString(s) {
		return validationErrorf("%s contains invalid UTF-8", label)
	}
	for _, r := range s {
		if r > unicode.MaxASCII || !unicode.IsPrint(r) || unicode.IsSpace(r) {
			return validationErrorf("%s contains forbidden character", label)
		}
	}
	return nil
}

// Expired reports whether the record carries an expiry at or before now.
func (c Credential) Expired(now time.Time) bool {
	return c.ExpiresAt != nil && !now.Before(*c.ExpiresAt)
}

// Clone returns a deep copy.
func (c Credential) Clone() *Credential {
	cp := c
	if c.ExpiresAt != nil {
		t := *c.ExpiresAt
		cp.ExpiresAt = &t
	}
	return &cp
}

// MaskedAccessKeyID returns a form of the access key ID safe for logs.
func (c Credential) MaskedAccessKeyID() string {
	return Mask(c.AccessKeyID)
}

// Mask keeps the first and last four characters of s.
func Mask(s string) string {
	if len(s) <= 8 {
		return "****"
	}
	return s[:4] + "…" + s[len(s)-4:]
}

// String never prints the secret or the session token.
func (c Credential) String() string {
	return fmt.Sprintf("Credential{AccessKeyID: %s}", c.MaskedAccessKeyID())
}

// GoString keeps %#v from printing secrets.
func (c Credential) GoString() string {
	return c.String()
}

// BucketConfig names the container and region the client works against.
// It is not sensitive and is stored unencrypted.
type BucketConfig struct {
	Bucket   string `json:"bucket"`
	Region   string `json:"region"`
	Endpoint string `json:"endpoint,omitempty"`
}

func (b BucketConfig) Validate() error {
	if err := sanitize.ValidateBucketName(b.Bucket); err != nil {
		return fmt.Errorf("%w: %w", ErrValidation, err)
	}
	if err := sanitize.ValidateRegion(b.Region); err != nil {
		return fmt.Errorf("%w: %w", ErrValidation, err)
	}
	if b.Endpoint != "" {
		if err := sanitize.ValidateEndpoint(b.Endpoint); err != nil {
			return fmt.Errorf("%w: %w", ErrValidation, err)
		}
	}
	return nil
}
