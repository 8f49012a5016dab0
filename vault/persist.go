package vault

import (
	"errors"
	"fmt"
	"time"

	"github.com/jmcleod/bucketvault/internal/util"
	"github.com/jmcleod/bucketvault/keys"
	"github.com/jmcleod/bucketvault/seal"
	"github.com/jmcleod/bucketvault/storage"
)

// Storage entries owned by the vault.
const (
	// Transient store.
	transientSessionKey = "bucketvault.session.v2"

	// Durable store.
	credentialsKey  = "bucketvault.credentials.v2"
	sessionTokenKey = "bucketvault.session.token.v2"
	sessionSigKey   = "bucketvault.session.sig.v2"
	sessionTSKey    = "bucketvault.session.ts.v2"
	schemeKey       = "bucketvault.cipher.v1"
	bucketKey       = "bucketvault.bucket.v1"
)

// legacyKeys were written by earlier schema versions to either store.
var legacyKeys = []string{
	"bucketvault.credentials",
	keys.LegacyStorageKey,
	"bucketvault.session",
	"bucketvault.session.sig",
	"bucketvault.session.ts",
	"s3.credentials",
}

var durableKeys = []string{credentialsKey, sessionTokenKey, sessionSigKey, sessionTSKey, schemeKey, bucketKey}

// sessionKeys are the durable entries that only mean something under the
// session and key that wrote them.
var sessionKeys = []string{credentialsKey, sessionTokenKey, sessionSigKey, sessionTSKey, schemeKey}

// persistedSession is the durable half of a session as read back.
type persistedSession struct {
	token       string
	signature   string
	blob        seal.Blob
	scheme      util.Scheme
	activity    time.Time
	badActivity bool // a timestamp was stored but did not parse
}

func (p persistedSession) empty() bool {
	return p.token == "" && p.signature == "" && p.blob == ""
}

func readSession(s storage.Store) (persistedSession, error) {
	var p persistedSession
	var err error
	if p.token, err = getString(s, sessionTokenKey); err != nil {
		return p, err
	}
	if p.signature, err = getString(s, sessionSigKey); err != nil {
		return p, err
	}
	blob, err := getString(s, credentialsKey)
	if err != nil {
		return p, err
	}
	p.blob = seal.Blob(blob)
	ts, err := getString(s, sessionTSKey)
	if err != nil {
		return p, err
	}
	if ts != "" {
		// An unparseable timestamp leaves activity zero, which reads as
		// expired.
		if p.activity, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			p.activity = time.Time{}
			p.badActivity = true
		}
	}
	scheme, err := getString(s, schemeKey)
	if err != nil {
		return p, err
	}
	p.scheme = util.Scheme(scheme)
	return p, nil
}

// getString returns "" for a missing entry.
func getString(s storage.Store, key string) (string, error) {
	v, err := s.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", key, err)
	}
	return string(v), nil
}

func formatTimestamp(t time.Time) []byte {
	return []byte(t.UTC().Format(time.RFC3339Nano))
}

// purgeStore removes every entry in names plus the legacy keys.
func purgeStore(s storage.Store, names ...string) error {
	return s.Batch(func(tx storage.Tx) error {
		for _, k := range append(append([]string{}, names...), legacyKeys...) {
			if err := tx.Delete(k); err != nil {
				return fmt.Errorf("deleting %s: %w", k, err)
			}
		}
		return nil
	})
}
