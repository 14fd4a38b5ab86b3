// Package cryptoutil provides the hashing and signature primitives used to
// publish and verify content bundles.
//
// It supports:
//   - KMS-backed signing of bundle digests
//   - local verification against the cached KMS public key (ECDSA P-256/P-384, RSA-PSS with optional PKCS1v15 fallback)
//   - constant-time hash comparison
package cryptoutil
