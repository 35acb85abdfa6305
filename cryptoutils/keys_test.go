package cryptoutils

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyPEMRoundTrip(t *testing.T) {
	pub, priv, err := RandomP256Keypair()
	require.NoError(t, err)

	parsedPub, err := ParsePublicKeyPEM(pub.PEM())
	require.NoError(t, err)
	assert.Equal(t, pub.Fingerprint(), parsedPub.Fingerprint())
	assert.Equal(t, pub.DER(), parsedPub.DER())

	privPEM, err := priv.PEM()
	require.NoError(t, err)
	parsedPriv, err := ParsePrivateKeyPEM(privPEM)
	require.NoError(t, err)
	assert.True(t, parsedPriv.Public().Equal(pub))
}

func TestFingerprintIsStable(t *testing.T) {
	pub, _, err := RandomP256Keypair()
	require.NoError(t, err)

	again, err := ParsePublicKeyDER(pub.DER())
	require.NoError(t, err)
	assert.Equal(t, pub.Fingerprint(), again.Fingerprint())

	other, _, err := RandomP256Keypair()
	require.NoError(t, err)
	assert.NotEqual(t, pub.Fingerprint(), other.Fingerprint())
}

func TestFingerprintText(t *testing.T) {
	pub, _, err := RandomP256Keypair()
	require.NoError(t, err)
	fp := pub.Fingerprint()

	parsed, err := ParseFingerprint(fp.String())
	require.NoError(t, err)
	assert.Equal(t, fp, parsed)
	assert.Len(t, fp.Short(), 16)

	encoded, err := json.Marshal(map[Fingerprint]int{fp: 1})
	require.NoError(t, err)
	assert.JSONEq(t, `{"`+fp.String()+`":1}`, string(encoded))

	var decoded map[Fingerprint]int
	require.NoError(t, json.Unmarshal(encoded, &decoded))
	assert.Equal(t, 1, decoded[fp])

	_, err = ParseFingerprint("abcd")
	assert.Error(t, err)
	_, err = ParseFingerprint(string(make([]byte, 64)))
	assert.Error(t, err)

	// Human input may be upper case; wire documents may not.
	upper := strings.ToUpper(fp.String())
	parsed, err = ParseFingerprint(upper)
	require.NoError(t, err)
	assert.Equal(t, fp, parsed)
	assert.Error(t, json.Unmarshal([]byte(`{"`+upper+`":1}`), &decoded))
	var single Fingerprint
	assert.Error(t, single.UnmarshalText([]byte("0x"+fp.String())))
}

func TestInvalidKeyFormats(t *testing.T) {
	_, err := ParsePublicKeyPEM([]byte("not a valid PEM"))
	require.Error(t, err)

	_, err = ParsePrivateKeyPEM([]byte("not a valid PEM"))
	require.Error(t, err)

	// ed25519 keys cannot take part in ECDH
	edPub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	der, err := x509.MarshalPKIXPublicKey(edPub)
	require.NoError(t, err)
	_, err = ParsePublicKeyPEM(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}))
	require.Error(t, err)

	// A public key PEM is not a private key
	pub, _, err := RandomP256Keypair()
	require.NoError(t, err)
	_, err = ParsePrivateKeyPEM(pub.PEM())
	require.Error(t, err)
}

func TestLoadLocalIdentity(t *testing.T) {
	pub, priv, err := RandomP256Keypair()
	require.NoError(t, err)

	privPEM, err := priv.PEM()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "identity.pem")
	require.NoError(t, os.WriteFile(path, privPEM, 0600))

	identity, err := LoadLocalIdentity("web-1", path)
	require.NoError(t, err)
	assert.Equal(t, "web-1", identity.Name())
	assert.True(t, identity.PublicKey().Equal(pub))
	assert.False(t, identity.PrivateKey().IsZero())

	_, err = LoadLocalIdentity("missing", filepath.Join(t.TempDir(), "nope.pem"))
	assert.Error(t, err)

	_, err = NewLocalIdentity("empty", PrivateKey{})
	assert.Error(t, err)
}

func TestKeySet(t *testing.T) {
	a, _, err := RandomP256Keypair()
	require.NoError(t, err)
	b, _, err := RandomP256Keypair()
	require.NoError(t, err)
	c, _, err := RandomP256Keypair()
	require.NoError(t, err)

	set := NewKeySet(a, b, a, PublicKey{})
	assert.Equal(t, 2, set.Len())
	assert.True(t, set.Contains(a.Fingerprint()))
	assert.False(t, set.Contains(c.Fingerprint()))

	assert.True(t, set.SameFingerprints([]Fingerprint{b.Fingerprint(), a.Fingerprint()}))
	assert.True(t, set.SameFingerprints([]Fingerprint{a.Fingerprint(), b.Fingerprint(), a.Fingerprint()}))
	assert.False(t, set.SameFingerprints([]Fingerprint{a.Fingerprint()}))
	assert.False(t, set.SameFingerprints([]Fingerprint{a.Fingerprint(), b.Fingerprint(), c.Fingerprint()}))

	union := set.Union(NewKeySet(c, b))
	assert.Equal(t, 3, union.Len())
	assert.Equal(t, 2, set.Len())

	fps := union.Fingerprints()
	require.Len(t, fps, 3)
	keys := union.Keys()
	for i, key := range keys {
		assert.Equal(t, fps[i], key.Fingerprint())
	}

	var empty KeySet
	assert.Equal(t, 0, empty.Len())
	assert.True(t, empty.SameFingerprints(nil))
	empty.Add(a)
	assert.Equal(t, 1, empty.Len())
}
