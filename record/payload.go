package record

import (
	"bytes"
	"encoding/json"
	"io"
)

// Kind tags the content of a Payload.
type Kind string

const (
	KindCredential Kind = "credential"
	KindBucket     Kind = "bucket"
)

// SchemaVersion is the only payload version this package reads or writes.
const SchemaVersion = 1

// Payload is the tagged envelope for everything that crosses the cipher
// boundary. Exactly one of the content fields matches Kind.
type Payload struct {
	Kind       Kind          `json:"kind"`
	Version    int           `json:"v"`
	Credential *Credential   `json:"credential,omitempty"`
	Bucket     *BucketConfig `json:"bucket,omitempty"`
}

func CredentialPayload(c Credential) Payload {
	return Payload{Kind: KindCredential, Version: SchemaVersion, Credential: c.Clone()}
}

func BucketPayload(b BucketConfig) Payload {
	cp := b
	return Payload{Kind: KindBucket, Version: SchemaVersion, Bucket: &cp}
}

// Validate rejects any payload that does not match the schema.
func (p Payload) Validate() error {
	if p.Version != SchemaVersion {
		return validationErrorf("unsupported payload version %d", p.Version)
	}
	switch p.Kind {
	case KindCredential:
		if p.Credential == nil || p.Bucket != nil {
			return validationErrorf("credential payload must carry only a credential")
		}
		return p.Credential.Validate()
	case KindBucket:
		if p.Bucket == nil || p.Credential != nil {
			return validationErrorf("bucket payload must carry only a bucket config")
		}
		return p.Bucket.Validate()
	default:
		return validationErrorf("unknown payload kind %q", p.Kind)
	}
}

// Encode validates and serializes the payload. The caller owns the returned
// bytes and should wipe them once sealed.
func (p Payload) Encode() ([]byte, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(p)
}

// Decode parses and validates a serialized payload. Unknown fields and
// trailing data are rejected.
func Decode(data []byte) (Payload, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var p Payload
	if err := dec.Decode(&p); err != nil {
		return Payload{}, validationErrorf("malformed payload")
	}
	if _, err := dec.Token(); err != io.EOF {
		return Payload{}, validationErrorf("trailing data after payload")
	}
	if err := p.Validate(); err != nil {
		return Payload{}, err
	}
	return p, nil
}
