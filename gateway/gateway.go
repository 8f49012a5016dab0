// Package gateway hands the vault's current credential and sanitized object
// addresses to object-storage clients. It performs no network calls itself.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/jmcleod/bucketvault/record"
	"github.com/jmcleod/bucketvault/sanitize"
)

// DefaultEndpoint is used when a bucket config names no endpoint.
const DefaultEndpoint = "https://s3.amazonaws.com"

// ErrNoCredential means the vault has no usable credential. The caller
// should ask the user to log in again.
var ErrNoCredential = errors.New("no credential available")

// Source yields the current credential. *vault.Vault satisfies it.
type Source interface {
	CurrentCredential(ctx context.Context) (*record.Credential, error)
}

// current fetches the credential, mapping "no session" to ErrNoCredential.
func current(ctx context.Context, src Source) (*record.Credential, error) {
	c, err := src.CurrentCredential(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoCredential, err)
	}
	if c == nil {
		return nil, ErrNoCredential
	}
	return c, nil
}

// StaticCredentials wraps c for minio-go.
func StaticCredentials(c *record.Credential) *credentials.Credentials {
	return credentials.NewStaticV4(c.AccessKeyID, c.SecretAccessKey, c.SessionToken)
}

// NewClient builds a minio client for cfg with the vault's current
// credential. Building the client does not contact the endpoint.
func NewClient(ctx context.Context, src Source, cfg record.BucketConfig) (*minio.Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c, err := current(ctx, src)
	if err != nil {
		return nil, err
	}
	host, secure, err := endpointHost(cfg.Endpoint)
	if err != nil {
		return nil, err
	}
	client, err := minio.New(host, &minio.Options{
		Creds:        StaticCredentials(c),
		Secure:       secure,
		Region:       cfg.Region,
		BucketLookup: bucketLookup(cfg),
	})
	if err != nil {
		return nil, fmt.Errorf("creating object storage client: %w", err)
	}
	return client, nil
}

// Custom endpoints (MinIO, R2, Ceph) rarely support virtual-host buckets.
func bucketLookup(cfg record.BucketConfig) minio.BucketLookupType {
	if cfg.Endpoint == "" {
		return minio.BucketLookupAuto
	}
	return minio.BucketLookupPath
}

func endpointHost(endpoint string) (string, bool, error) {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if err := sanitize.ValidateEndpoint(endpoint); err != nil {
		return "", false, fmt.Errorf("%w: %w", record.ErrValidation, err)
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", false, fmt.Errorf("%w: malformed endpoint", record.ErrValidation)
	}
	return u.Host, u.Scheme == "https", nil
}

// Address is a validated remote object address.
type Address struct {
	Bucket string
	Region string
	Key    string
}

// IsPrefix reports whether the address names a container prefix rather than
// a single object.
func (a Address) IsPrefix() bool {
	return a.Key == "" || sanitize.IsContainer(a.Key)
}

func (a Address) String() string {
	return "s3://" + a.Bucket + "/" + a.Key
}

// ObjectAddress sanitizes path and re-validates the result before pairing
// it with cfg. The empty path addresses the bucket root.
func ObjectAddress(cfg record.BucketConfig, path string) (Address, error) {
	if err := cfg.Validate(); err != nil {
		return Address{}, err
	}
	key := sanitize.Path(path)
	if key != "" {
		check := strings.TrimSuffix(key, sanitize.Separator)
		if err := sanitize.ValidateKey(check); err != nil {
			return Address{}, fmt.Errorf("%w: %w", record.ErrValidation, err)
		}
	}
	return Address{Bucket: cfg.Bucket, Region: cfg.Region, Key: key}, nil
}
