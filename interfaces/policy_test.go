package interfaces

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ruteri/sealed-config/cryptoutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAuthorizationPolicy(t *testing.T) {
	pub, _, err := cryptoutils.RandomP256Keypair()
	require.NoError(t, err)

	doc := "search_query: role:web\npartial_search: true\nusers:\n  - alice\nkeys:\n  - |\n"
	for _, line := range strings.Split(strings.TrimSpace(string(pub.PEM())), "\n") {
		doc += "    " + line + "\n"
	}

	policy, err := ParseAuthorizationPolicy([]byte(doc))
	require.NoError(t, err)
	assert.Equal(t, "role:web", policy.SearchQuery)
	assert.True(t, policy.PartialSearch)
	assert.Equal(t, []string{"alice"}, policy.Users)

	keys, err := policy.ExplicitKeys()
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.True(t, keys[0].Equal(pub))
}

func TestParseAuthorizationPolicyJSON(t *testing.T) {
	policy, err := ParseAuthorizationPolicy([]byte(`{"search_query": "env:prod", "users": ["bob"]}`))
	require.NoError(t, err)
	assert.Equal(t, "env:prod", policy.SearchQuery)
	assert.Equal(t, []string{"bob"}, policy.Users)
	assert.False(t, policy.PartialSearch)
}

func TestAuthorizationPolicyValidation(t *testing.T) {
	_, err := ParseAuthorizationPolicy([]byte("keys:\n  - not a key\n"))
	assert.Error(t, err)

	_, err = ParseAuthorizationPolicy([]byte("users:\n  - \"  \"\n"))
	assert.Error(t, err)

	_, err = ParseAuthorizationPolicy([]byte("keys: [unterminated"))
	assert.Error(t, err)

	empty, err := ParseAuthorizationPolicy([]byte("{}"))
	require.NoError(t, err)
	keys, err := empty.ExplicitKeys()
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestLoadAuthorizationPolicy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte("search_query: role:db\n"), 0o600))

	policy, err := LoadAuthorizationPolicy(path)
	require.NoError(t, err)
	assert.Equal(t, "role:db", policy.SearchQuery)

	_, err = LoadAuthorizationPolicy(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
