package keys

import (
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
	"strings"
)

// ParseIssuerKey decodes an issuer-key string back into the Ed25519 public
// key it carries.
func ParseIssuerKey(issuerKey string) (ed25519.PublicKey, error) {
	b64, ok := strings.CutPrefix(issuerKey, "ed25519:")
	if !ok {
		return nil, fmt.Errorf("issuer key must start with %q", "ed25519:")
	}
	pub, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, fmt.Errorf("malformed issuer key: %w", err)
	}
	if len(pub) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("ed25519 public key must be %d bytes, got %d", ed25519.PublicKeySize, len(pub))
	}
	return ed25519.PublicKey(pub), nil
}

// VerifyEd25519SHA256 checks a base64 signature over sha256(message) against
// the public key carried by issuerKey.
func VerifyEd25519SHA256(message []byte, sigB64, issuerKey string) error {
	pub, err := ParseIssuerKey(issuerKey)
	if err != nil {
		return err
	}
	sig, err := base64.StdEncoding.DecodeString(sigB64)
	if err != nil {
		return fmt.Errorf("malformed signature: %w", err)
	}
	digest, err := digestFor("sha256", message)
	if err != nil {
		return err
	}
	if !ed25519.Verify(pub, digest, sig) {
		return fmt.Errorf("signature verification failed")
	}
	return nil
}
