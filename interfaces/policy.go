package interfaces

import (
	"fmt"
	"os"
	"strings"

	"github.com/ruteri/sealed-config/cryptoutils"
	"gopkg.in/yaml.v3"
)

// AuthorizationPolicy declares who may read a sealed value: explicit keys,
// every host matching a directory search, and individually named users.
// It is supplied per operation and never persisted by the engine.
type AuthorizationPolicy struct {
	// Keys are PEM-encoded public keys added verbatim.
	Keys []string `json:"keys,omitempty" yaml:"keys,omitempty"`

	// SearchQuery selects hosts from the directory, e.g. "role:web".
	SearchQuery string `json:"search_query,omitempty" yaml:"search_query,omitempty"`

	// PartialSearch requests only the public key field from the directory.
	PartialSearch bool `json:"partial_search,omitempty" yaml:"partial_search,omitempty"`

	// Users are principal names whose keys are looked up individually.
	Users []string `json:"users,omitempty" yaml:"users,omitempty"`
}

// ParseAuthorizationPolicy parses a YAML (or JSON) policy document.
func ParseAuthorizationPolicy(data []byte) (AuthorizationPolicy, error) {
	var policy AuthorizationPolicy
	if err := yaml.Unmarshal(data, &policy); err != nil {
		return AuthorizationPolicy{}, fmt.Errorf("invalid authorization policy: %w", err)
	}
	if err := policy.Validate(); err != nil {
		return AuthorizationPolicy{}, err
	}
	return policy, nil
}

// LoadAuthorizationPolicy reads a policy document from disk.
func LoadAuthorizationPolicy(path string) (AuthorizationPolicy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return AuthorizationPolicy{}, fmt.Errorf("failed to read policy file: %w", err)
	}
	return ParseAuthorizationPolicy(data)
}

// Validate checks that explicit keys parse and user names are not blank.
func (p AuthorizationPolicy) Validate() error {
	if _, err := p.ExplicitKeys(); err != nil {
		return err
	}
	for i, user := range p.Users {
		if strings.TrimSpace(user) == "" {
			return fmt.Errorf("invalid authorization policy: user %d is empty", i)
		}
	}
	return nil
}

// ExplicitKeys parses the policy's explicit key list.
func (p AuthorizationPolicy) ExplicitKeys() ([]PublicKey, error) {
	keys := make([]PublicKey, 0, len(p.Keys))
	for i, raw := range p.Keys {
		key, err := cryptoutils.ParsePublicKeyPEM([]byte(raw))
		if err != nil {
			return nil, fmt.Errorf("invalid authorization policy: key %d: %w", i, err)
		}
		keys = append(keys, key)
	}
	return keys, nil
}
