// Package codeid derives content identifiers for token contract bytecode.
//
// Bytecode is addressed by CIDv1 (raw codec, sha2-256). The registry stores
// only the CID; the bytes live in the content-addressable store.
package codeid

import (
	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

// ForCode returns the CIDv1 (raw + sha2-256) of the given bytecode.
func ForCode(code []byte) (cid.Cid, error) {
	sum, err := multihash.Sum(code, multihash.SHA2_256, -1)
	if err != nil {
		return cid.Undef, err
	}
	return cid.NewCidV1(cid.Raw, sum), nil
}

// String returns the CIDv1 string for code, or "" if derivation fails.
// multihash.Sum with SHA2_256 and default length only errors on invalid
// inputs, so the empty return is effectively unreachable.
func String(code []byte) string {
	id, err := ForCode(code)
	if err != nil {
		return ""
	}
	return id.String()
}
