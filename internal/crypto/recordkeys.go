package icrypto

// HKDF info labels for subkeys of the vault key. Each purpose gets its own
// label so a subkey can never be reused across purposes.
const (
	SessionSigningInfo = "bucketvault:session-signing:v1"
	PayloadKeyInfo     = "bucketvault:payload-key:v1"
)
