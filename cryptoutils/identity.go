package cryptoutils

import (
	"errors"
	"fmt"
)

// LocalIdentity holds the calling principal's own key pair. It is read-only
// after construction and safe for concurrent use.
type LocalIdentity struct {
	name       string
	privateKey PrivateKey
}

// NewLocalIdentity wraps an already parsed private key.
func NewLocalIdentity(name string, privateKey PrivateKey) (*LocalIdentity, error) {
	if privateKey.IsZero() {
		return nil, errors.New("local identity requires a private key")
	}
	return &LocalIdentity{name: name, privateKey: privateKey}, nil
}

// LoadLocalIdentity reads the identity's private key from a PEM file.
func LoadLocalIdentity(name, privateKeyPath string) (*LocalIdentity, error) {
	privateKey, err := LoadPrivateKeyFile(privateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load identity %q: %w", name, err)
	}
	return NewLocalIdentity(name, privateKey)
}

// Name returns the principal name the identity was loaded for.
func (id *LocalIdentity) Name() string {
	return id.name
}

// PublicKey returns the identity's public key.
func (id *LocalIdentity) PublicKey() PublicKey {
	return id.privateKey.Public()
}

// PrivateKey returns the identity's private key.
func (id *LocalIdentity) PrivateKey() PrivateKey {
	return id.privateKey
}
