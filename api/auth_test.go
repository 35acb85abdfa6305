package api

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateToken(t *testing.T) {
	token, entry, err := GenerateToken("alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", entry.Name)
	assert.Equal(t, HashToken(token), entry.TokenSHA256)
	require.NoError(t, entry.Validate())
	assert.Len(t, entry.Digest(), 32)

	other, _, err := GenerateToken("alice")
	require.NoError(t, err)
	assert.NotEqual(t, token, other)
}

func TestLoadCallerTokens(t *testing.T) {
	digest := HashToken("secret")
	path := filepath.Join(t.TempDir(), "tokens.yaml")
	require.NoError(t, os.WriteFile(path, []byte("callers:\n  - name: alice\n    token_sha256: "+digest+"\n"), 0o600))

	callers, err := LoadCallerTokens(path)
	require.NoError(t, err)
	assert.Equal(t, []CallerToken{{Name: "alice", TokenSHA256: digest}}, callers)

	_, err = LoadCallerTokens(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestParseCallerTokensErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"empty", "callers: []\n"},
		{"not yaml", "callers: [\n"},
		{"missing name", "callers:\n  - token_sha256: " + HashToken("x") + "\n"},
		{"short digest", "callers:\n  - name: alice\n    token_sha256: abcd\n"},
		{"plaintext token", "callers:\n  - name: alice\n    token_sha256: not-a-digest\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCallerTokens([]byte(tt.doc))
			assert.Error(t, err)
		})
	}
}
