package api

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// CallerToken binds a bearer token to a directory user. Only the token's
// SHA-256 digest is stored.
type CallerToken struct {
	// Name is the caller's user name in the directory.
	Name string `yaml:"name" json:"name"`

	// TokenSHA256 is the hex-encoded SHA-256 digest of the bearer token.
	TokenSHA256 string `yaml:"token_sha256" json:"token_sha256"`
}

// CallerTokensFile is the document read by LoadCallerTokens.
type CallerTokensFile struct {
	Callers []CallerToken `yaml:"callers" json:"callers"`
}

// Validate checks the caller name and digest format.
func (c CallerToken) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return errors.New("caller name is empty")
	}
	digest, err := hex.DecodeString(c.TokenSHA256)
	if err != nil || len(digest) != sha256.Size {
		return fmt.Errorf("caller %s: token_sha256 must be %d hex characters", c.Name, sha256.Size*2)
	}
	return nil
}

// Digest returns the decoded token digest. Call Validate first.
func (c CallerToken) Digest() []byte {
	digest, _ := hex.DecodeString(c.TokenSHA256)
	return digest
}

// ParseCallerTokens parses a YAML caller tokens document.
func ParseCallerTokens(data []byte) ([]CallerToken, error) {
	var file CallerTokensFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("invalid caller tokens file: %w", err)
	}
	if len(file.Callers) == 0 {
		return nil, errors.New("invalid caller tokens file: no callers")
	}
	for _, caller := range file.Callers {
		if err := caller.Validate(); err != nil {
			return nil, fmt.Errorf("invalid caller tokens file: %w", err)
		}
	}
	return file.Callers, nil
}

// LoadCallerTokens reads a caller tokens document from disk.
func LoadCallerTokens(path string) ([]CallerToken, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read caller tokens file: %w", err)
	}
	return ParseCallerTokens(data)
}

// HashToken returns the hex-encoded SHA-256 digest of a bearer token.
func HashToken(token string) string {
	digest := sha256.Sum256([]byte(token))
	return hex.EncodeToString(digest[:])
}

// GenerateToken returns a random bearer token and its CallerToken entry.
func GenerateToken(name string) (string, CallerToken, error) {
	var raw [32]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", CallerToken{}, fmt.Errorf("failed to generate token: %w", err)
	}
	token := hex.EncodeToString(raw[:])
	return token, CallerToken{Name: name, TokenSHA256: HashToken(token)}, nil
}
