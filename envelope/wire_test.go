package envelope

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/ruteri/sealed-config/cryptoutils"
	"github.com/ruteri/sealed-config/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalV1Document(t *testing.T) {
	principals := newPrincipals(t, 2)
	codec := &Codec{DefaultVersion: FormatV1}

	env, err := codec.Encrypt(map[string]string{"token": "abc"}, keySetOf(principals...))
	require.NoError(t, err)

	raw, err := Marshal(env)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Equal(t, float64(1), doc["format_version"])
	assert.Equal(t, cryptoutils.AESGCMAlgorithm, doc["cipher"])
	assert.Equal(t, cryptoutils.KeyWrapAlgorithm, doc["key_wrap"])
	assert.NotEmpty(t, doc["nonce"])
	assert.NotEmpty(t, doc["ciphertext"])

	recipients, ok := doc["recipients"].(map[string]any)
	require.True(t, ok)
	assert.Len(t, recipients, 2)
	for _, p := range principals {
		entry, ok := recipients[p.pub.Fingerprint().String()].(map[string]any)
		require.True(t, ok)
		assert.NotEmpty(t, entry["wrapped_key"])
	}
}

func TestMarshalV0Document(t *testing.T) {
	principals := newPrincipals(t, 1)
	codec := &Codec{DefaultVersion: FormatV0}

	env, err := codec.Encrypt("secret", keySetOf(principals...))
	require.NoError(t, err)

	raw, err := Marshal(env)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Equal(t, float64(0), doc["format_version"])
	assert.Equal(t, cryptoutils.SecretboxAlgorithm, doc["cipher"])
	assert.NotContains(t, doc, "ciphertext")

	recipients := doc["recipients"].(map[string]any)
	entry := recipients[principals[0].pub.Fingerprint().String()].(map[string]any)
	assert.NotEmpty(t, entry["wrapped_key"])
	assert.NotEmpty(t, entry["nonce"])
	assert.NotEmpty(t, entry["ciphertext"])
}

func TestParseErrors(t *testing.T) {
	fp := newPrincipals(t, 1)[0].pub.Fingerprint().String()
	upperFP := strings.ToUpper(fp)
	nonce := "AAAAAAAAAAAAAAAA" // 12 zero bytes
	v1Head := `{"format_version":1,"cipher":"aes-256-gcm","key_wrap":"` + cryptoutils.KeyWrapAlgorithm + `","nonce":"` + nonce + `","ciphertext":"AA==",`
	v0Head := `{"format_version":0,"cipher":"xsalsa20-poly1305","key_wrap":"` + cryptoutils.KeyWrapAlgorithm + `",`
	boxNonce := "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA" // 24 zero bytes

	tests := []struct {
		name string
		raw  string
		err  error
	}{
		{"empty", ``, interfaces.ErrMalformedEnvelope},
		{"not json", `hello`, interfaces.ErrMalformedEnvelope},
		{"array", `[1,2]`, interfaces.ErrMalformedEnvelope},
		{"missing version", `{"cipher":"aes-256-gcm"}`, interfaces.ErrMalformedEnvelope},
		{"string version", `{"format_version":"1"}`, interfaces.ErrMalformedEnvelope},
		{"future version", `{"format_version":2}`, interfaces.ErrUnsupportedFormatVersion},
		{"negative version", `{"format_version":-1}`, interfaces.ErrUnsupportedFormatVersion},
		{"v1 wrong cipher", `{"format_version":1,"cipher":"des","key_wrap":"` + cryptoutils.KeyWrapAlgorithm + `","nonce":"` + nonce + `","ciphertext":"AA==","recipients":{}}`, interfaces.ErrMalformedEnvelope},
		{"v1 wrong key wrap", `{"format_version":1,"cipher":"aes-256-gcm","key_wrap":"rsa","nonce":"` + nonce + `","ciphertext":"AA==","recipients":{}}`, interfaces.ErrMalformedEnvelope},
		{"v1 short nonce", `{"format_version":1,"cipher":"aes-256-gcm","key_wrap":"` + cryptoutils.KeyWrapAlgorithm + `","nonce":"AA==","ciphertext":"AA==","recipients":{}}`, interfaces.ErrMalformedEnvelope},
		{"v1 missing ciphertext", `{"format_version":1,"cipher":"aes-256-gcm","key_wrap":"` + cryptoutils.KeyWrapAlgorithm + `","nonce":"` + nonce + `","recipients":{}}`, interfaces.ErrMalformedEnvelope},
		{"v1 missing recipients", `{"format_version":1,"cipher":"aes-256-gcm","key_wrap":"` + cryptoutils.KeyWrapAlgorithm + `","nonce":"` + nonce + `","ciphertext":"AA=="}`, interfaces.ErrMalformedEnvelope},
		{"v1 bad fingerprint", `{"format_version":1,"cipher":"aes-256-gcm","key_wrap":"` + cryptoutils.KeyWrapAlgorithm + `","nonce":"` + nonce + `","ciphertext":"AA==","recipients":{"abc":{"wrapped_key":"AA=="}}}`, interfaces.ErrMalformedEnvelope},
		{"v1 empty wrapped key", `{"format_version":1,"cipher":"aes-256-gcm","key_wrap":"` + cryptoutils.KeyWrapAlgorithm + `","nonce":"` + nonce + `","ciphertext":"AA==","recipients":{"` + fp + `":{}}}`, interfaces.ErrMalformedEnvelope},
		{"v0 incomplete record", `{"format_version":0,"cipher":"xsalsa20-poly1305","key_wrap":"` + cryptoutils.KeyWrapAlgorithm + `","recipients":{"` + fp + `":{"wrapped_key":"AA=="}}}`, interfaces.ErrMalformedEnvelope},
		{"v0 short nonce", v0Head + `"recipients":{"` + fp + `":{"wrapped_key":"AA==","nonce":"AAAA","ciphertext":"AA=="}}}`, interfaces.ErrMalformedEnvelope},
		{"v0 long nonce", v0Head + `"recipients":{"` + fp + `":{"wrapped_key":"AA==","nonce":"` + boxNonce + `AAAA","ciphertext":"AA=="}}}`, interfaces.ErrMalformedEnvelope},
		{"upper case fingerprint", v1Head + `"recipients":{"` + upperFP + `":{"wrapped_key":"AA=="}}}`, interfaces.ErrMalformedEnvelope},
		{"duplicate recipient", v1Head + `"recipients":{"` + fp + `":{"wrapped_key":"AA=="},"` + fp + `":{"wrapped_key":"AQ=="}}}`, interfaces.ErrMalformedEnvelope},
		{"duplicate recipient across case", v0Head + `"recipients":{"` + fp + `":{"wrapped_key":"AA==","nonce":"` + boxNonce + `","ciphertext":"AA=="},"` + upperFP + `":{"wrapped_key":"AA==","nonce":"` + boxNonce + `","ciphertext":"AA=="}}}`, interfaces.ErrMalformedEnvelope},
		{"recipients not an object", v1Head + `"recipients":[]}`, interfaces.ErrMalformedEnvelope},
		{"v0 bad base64", `{"format_version":0,"cipher":"xsalsa20-poly1305","key_wrap":"` + cryptoutils.KeyWrapAlgorithm + `","recipients":{"` + fp + `":{"wrapped_key":"!!"}}}`, interfaces.ErrMalformedEnvelope},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.raw))
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.err)
			assert.False(t, Exists([]byte(tt.raw)))
		})
	}
}

func TestParseAcceptsWellFormedV0Record(t *testing.T) {
	fp := newPrincipals(t, 1)[0].pub.Fingerprint()
	boxNonce := "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"
	raw := `{"format_version":0,"cipher":"xsalsa20-poly1305","key_wrap":"` + cryptoutils.KeyWrapAlgorithm +
		`","recipients":{"` + fp.String() + `":{"wrapped_key":"AA==","nonce":"` + boxNonce + `","ciphertext":"AA=="}}}`

	env, err := Parse([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, []cryptoutils.Fingerprint{fp}, env.Recipients())
}

func TestExists(t *testing.T) {
	principals := newPrincipals(t, 2)
	codec := &Codec{DefaultVersion: FormatV1}

	env, err := codec.Encrypt("secret", keySetOf(principals[0]))
	require.NoError(t, err)
	raw, err := Marshal(env)
	require.NoError(t, err)

	// Existence does not depend on the caller being a recipient.
	assert.True(t, Exists(raw))
	_, err = codec.Decrypt(env, principals[1].priv)
	assert.ErrorIs(t, err, interfaces.ErrNotAuthorized)

	assert.False(t, Exists(nil))
	assert.False(t, Exists([]byte(`"plain value"`)))
	assert.False(t, Exists([]byte(`{"token":"abc"}`)))
}

func TestParsePreservesRecipients(t *testing.T) {
	principals := newPrincipals(t, 3)
	codec := &Codec{DefaultVersion: FormatV1}
	keys := keySetOf(principals...)

	env, err := codec.Encrypt("v", keys)
	require.NoError(t, err)
	raw, err := Marshal(env)
	require.NoError(t, err)

	parsed, err := Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, keys.Fingerprints(), parsed.Recipients())
	assert.False(t, codec.NeedsUpdate(parsed, keys))
	for _, p := range principals {
		assert.True(t, parsed.HasRecipient(p.pub.Fingerprint()))
	}
}
