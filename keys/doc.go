// Package keys provides the local key management used by the registry
// tooling.
//
// Stable:
//   - Pure, deterministic primitives for issuer-key formatting and role-seed
//     derivation.
//
// Experimental:
//   - Filesystem-backed key storage and convenience helpers (KeyStore and
//     related functions). These are local-first utilities, not part of the
//     long-term wire contract.
package keys
