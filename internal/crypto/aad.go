package icrypto

import (
	"encoding/binary"
)

const (
	aadPayload = "bucketvault:payload:v1"
	aadSession = "bucketvault:session:v1"
)

// AADPayload binds a sealed payload to its kind, schema version and the
// identifier of the key that sealed it.
func AADPayload(kind, keyID string, ver int) []byte {
	return buildAAD(aadPayload, kind, keyID, ver)
}

// SessionMessage is the domain-separated input to a session token
// signature.
func SessionMessage(token, keyID string) []byte {
	return buildAAD(aadSession, keyID, token)
}

func buildAAD(parts ...any) []byte {
	var res []byte
	for _, p := range parts {
		switch v := p.(type) {
		case string:
			res = appendLenPrefix(res, []byte(v))
		case []byte:
			res = appendLenPrefix(res, v)
		case uint64:
			b := make([]byte, 8)
			binary.BigEndian.PutUint64(b, v)
			res = append(res, b...)
		case int:
			b := make([]byte, 4)
			binary.BigEndian.PutUint32(b, uint32(v))
			res = append(res, b...)
		}
	}
	return res
}

func appendLenPrefix(b, data []byte) []byte {
	l := make([]byte, 4)
	binary.BigEndian.PutUint32(l, uint32(len(data)))
	b = append(b, l...)
	b = append(b, data...)
	return b
}
