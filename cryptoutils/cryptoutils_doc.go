// Package cryptoutils provides the cryptographic primitives used by sealed
// configuration envelopes.
//
// # Keys
//
// PublicKey and PrivateKey are immutable P-256 keys parsed from PEM (PKIX for
// public keys, SEC 1 or PKCS #8 for private keys). Every PublicKey carries a
// Fingerprint, the SHA-256 digest of its PKIX DER encoding, which is used as
// the recipient identifier in envelopes and for deduplication in KeySet.
//
// # Key wrapping
//
// WrapKey and UnwrapKey implement ECIES: an ephemeral ECDH agreement with the
// recipient key, HKDF-SHA256 key derivation and AES-256-GCM. The recipient
// fingerprint is authenticated as additional data.
//
// # Payload ciphers
//
//   - SealAESGCM / OpenAESGCM: AES-256-GCM, used by format version 1
//   - SealSecretbox / OpenSecretbox: XSalsa20-Poly1305, used by format version 0
//
// Both report authentication failures as ErrDecryptFailed.
package cryptoutils
