package vault

import (
	"time"

	"github.com/jmcleod/bucketvault/internal/util"
	"github.com/jmcleod/bucketvault/record"
)

// scrubSentinel is written over cached secrets before they are zeroed.
const scrubSentinel = 0xA5

// cachedCredential holds the decrypted record. Secret fields are byte
// slices so they can be overwritten on clear. Strings already handed to
// callers cannot be wiped.
type cachedCredential struct {
	accessKeyID     string
	secretAccessKey []byte
	sessionToken    []byte
	expiresAt       *time.Time
}

func newCachedCredential(c *record.Credential) *cachedCredential {
	cc := &cachedCredential{
		accessKeyID:     c.AccessKeyID,
		secretAccessKey: []byte(c.SecretAccessKey),
	}
	if c.SessionToken != "" {
		cc.sessionToken = []byte(c.SessionToken)
	}
	if c.ExpiresAt != nil {
		t := *c.ExpiresAt
		cc.expiresAt = &t
	}
	return cc
}

// credential returns a fresh copy of the cached record.
func (cc *cachedCredential) credential() *record.Credential {
	c := &record.Credential{
		AccessKeyID:     cc.accessKeyID,
		SecretAccessKey: string(cc.secretAccessKey),
		SessionToken:    string(cc.sessionToken),
	}
	if cc.expiresAt != nil {
		t := *cc.expiresAt
		c.ExpiresAt = &t
	}
	return c
}

func (cc *cachedCredential) expired(now time.Time) bool {
	return cc.expiresAt != nil && !now.Before(*cc.expiresAt)
}

func (cc *cachedCredential) wipe() {
	if cc == nil {
		return
	}
	util.ScrubBytes(cc.secretAccessKey, scrubSentinel)
	util.ScrubBytes(cc.sessionToken, scrubSentinel)
	cc.secretAccessKey = nil
	cc.sessionToken = nil
	cc.accessKeyID = ""
	cc.expiresAt = nil
}
