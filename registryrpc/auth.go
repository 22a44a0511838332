package registryrpc

import (
	"strconv"
)

// Metadata keys of the call authentication headers. Views are
// unauthenticated and ignore them.
const (
	mdAccount   = "mb-account"
	mdIssuerKey = "mb-issuer-key"
	mdNonce     = "mb-nonce"
	mdSignature = "mb-signature"
)

// SigningPayload is the byte string a caller signs to authenticate a call:
// the signer account, the contract method, and a strictly increasing nonce,
// pipe-joined. The signature covers sha256 of this payload.
func SigningPayload(account, method string, nonce uint64) []byte {
	return []byte(account + "|" + method + "|" + strconv.FormatUint(nonce, 10))
}

// KeyDirectory resolves the issuer key registered for an account. Calls
// signed with any other key are rejected.
type KeyDirectory interface {
	IssuerKey(account string) (string, bool)
}

// StaticKeys is a fixed account-to-issuer-key directory.
type StaticKeys map[string]string

func (m StaticKeys) IssuerKey(account string) (string, bool) {
	k, ok := m[account]
	return k, ok
}
