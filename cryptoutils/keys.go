package cryptoutils

import (
	"bytes"
	"crypto/ecdh"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"strings"
)

// Fingerprint is the SHA-256 digest of a public key's PKIX DER encoding.
// It identifies a recipient inside an envelope.
type Fingerprint [32]byte

// ParseFingerprint decodes a hex-encoded fingerprint.
func ParseFingerprint(s string) (Fingerprint, error) {
	clean := strings.TrimPrefix(strings.ToLower(s), "0x")
	if len(clean) != 64 {
		return Fingerprint{}, errors.New("invalid fingerprint length: hex string must be 64 characters")
	}

	raw, err := hex.DecodeString(clean)
	if err != nil {
		return Fingerprint{}, fmt.Errorf("invalid hex format: %w", err)
	}

	var fp Fingerprint
	copy(fp[:], raw)
	return fp, nil
}

// String returns the hex representation.
func (fp Fingerprint) String() string {
	return hex.EncodeToString(fp[:])
}

// Short returns the first eight bytes in hex, for logging.
func (fp Fingerprint) Short() string {
	return hex.EncodeToString(fp[:8])
}

// MarshalText implements encoding.TextMarshaler so fingerprints can key JSON maps.
func (fp Fingerprint) MarshalText() ([]byte, error) {
	return []byte(fp.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Only the canonical
// lowercase form produced by MarshalText is accepted, so a document cannot
// name one recipient under two spellings.
func (fp *Fingerprint) UnmarshalText(text []byte) error {
	parsed, err := ParseFingerprint(string(text))
	if err != nil {
		return err
	}
	if parsed.String() != string(text) {
		return fmt.Errorf("non-canonical fingerprint %q: expected lowercase hex", text)
	}
	*fp = parsed
	return nil
}

// PublicKey is an immutable P-256 public key together with its encoded form
// and fingerprint. The zero value is not a valid key.
type PublicKey struct {
	key         *ecdh.PublicKey
	der         []byte
	fingerprint Fingerprint
}

func newPublicKey(key *ecdh.PublicKey) (PublicKey, error) {
	if key.Curve() != ecdh.P256() {
		return PublicKey{}, errors.New("unsupported public key curve: only P-256 is supported")
	}

	der, err := x509.MarshalPKIXPublicKey(key)
	if err != nil {
		return PublicKey{}, fmt.Errorf("failed to marshal public key: %w", err)
	}

	return PublicKey{
		key:         key,
		der:         der,
		fingerprint: sha256.Sum256(der),
	}, nil
}

// ParsePublicKeyPEM parses a PEM-encoded PKIX P-256 public key.
func ParsePublicKeyPEM(data []byte) (PublicKey, error) {
	block, _ := pem.Decode(data)
	if block == nil || block.Type != "PUBLIC KEY" {
		return PublicKey{}, errors.New("invalid public key: not in PEM format or not a public key")
	}
	return ParsePublicKeyDER(block.Bytes)
}

// ParsePublicKeyDER parses a DER-encoded PKIX P-256 public key.
func ParsePublicKeyDER(der []byte) (PublicKey, error) {
	parsed, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return PublicKey{}, fmt.Errorf("invalid public key structure: %w", err)
	}

	switch key := parsed.(type) {
	case *ecdsa.PublicKey:
		ecdhKey, err := key.ECDH()
		if err != nil {
			return PublicKey{}, fmt.Errorf("unsupported public key: %w", err)
		}
		return newPublicKey(ecdhKey)
	case *ecdh.PublicKey:
		return newPublicKey(key)
	default:
		return PublicKey{}, fmt.Errorf("unsupported public key type: %T", parsed)
	}
}

// IsZero reports whether the key is unset.
func (pub PublicKey) IsZero() bool {
	return pub.key == nil
}

// Fingerprint returns the key's fingerprint.
func (pub PublicKey) Fingerprint() Fingerprint {
	return pub.fingerprint
}

// DER returns a copy of the PKIX DER encoding.
func (pub PublicKey) DER() []byte {
	return bytes.Clone(pub.der)
}

// PEM returns the PEM encoding of the key.
func (pub PublicKey) PEM() []byte {
	return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pub.der})
}

// Equal compares two keys by fingerprint.
func (pub PublicKey) Equal(other PublicKey) bool {
	return pub.fingerprint == other.fingerprint
}

// PrivateKey is an immutable P-256 private key.
type PrivateKey struct {
	key    *ecdh.PrivateKey
	public PublicKey
}

func newPrivateKey(key *ecdh.PrivateKey) (PrivateKey, error) {
	public, err := newPublicKey(key.PublicKey())
	if err != nil {
		return PrivateKey{}, err
	}
	return PrivateKey{key: key, public: public}, nil
}

// ParsePrivateKeyPEM parses a PEM-encoded P-256 private key, either SEC 1
// ("EC PRIVATE KEY") or PKCS #8 ("PRIVATE KEY").
func ParsePrivateKeyPEM(data []byte) (PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil || (block.Type != "PRIVATE KEY" && block.Type != "EC PRIVATE KEY") {
		return PrivateKey{}, errors.New("invalid private key: not in PEM format or not a private key")
	}

	// Try to parse it as a PKCS8 private key
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		// Try to parse it as an EC private key
		ecKey, ecErr := x509.ParseECPrivateKey(block.Bytes)
		if ecErr != nil {
			return PrivateKey{}, fmt.Errorf("invalid private key structure: %w", err)
		}
		parsed = ecKey
	}

	switch key := parsed.(type) {
	case *ecdsa.PrivateKey:
		ecdhKey, err := key.ECDH()
		if err != nil {
			return PrivateKey{}, fmt.Errorf("unsupported private key: %w", err)
		}
		return newPrivateKey(ecdhKey)
	case *ecdh.PrivateKey:
		return newPrivateKey(key)
	default:
		return PrivateKey{}, fmt.Errorf("unsupported private key type: %T", parsed)
	}
}

// LoadPrivateKeyFile reads and parses a PEM private key from disk.
func LoadPrivateKeyFile(path string) (PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return PrivateKey{}, fmt.Errorf("failed to read private key file: %w", err)
	}
	return ParsePrivateKeyPEM(data)
}

// LoadPublicKeyFile reads and parses a PEM public key from disk.
func LoadPublicKeyFile(path string) (PublicKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return PublicKey{}, fmt.Errorf("failed to read public key file: %w", err)
	}
	return ParsePublicKeyPEM(data)
}

// IsZero reports whether the key is unset.
func (priv PrivateKey) IsZero() bool {
	return priv.key == nil
}

// Public returns the corresponding public key.
func (priv PrivateKey) Public() PublicKey {
	return priv.public
}

// PEM returns the PKCS #8 PEM encoding of the key.
func (priv PrivateKey) PEM() ([]byte, error) {
	der, err := x509.MarshalPKCS8PrivateKey(priv.key)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal private key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}), nil
}

// RandomP256Keypair generates a fresh P-256 key pair.
func RandomP256Keypair() (PublicKey, PrivateKey, error) {
	key, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		return PublicKey{}, PrivateKey{}, err
	}

	priv, err := newPrivateKey(key)
	if err != nil {
		return PublicKey{}, PrivateKey{}, err
	}
	return priv.Public(), priv, nil
}
