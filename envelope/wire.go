package envelope

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/ruteri/sealed-config/cryptoutils"
	"github.com/ruteri/sealed-config/interfaces"
)

const gcmNonceSize = 12

type versionHeader struct {
	FormatVersion *int            `json:"format_version"`
	Recipients    json.RawMessage `json:"recipients"`
}

type v0Document struct {
	FormatVersion int                                        `json:"format_version"`
	Cipher        string                                     `json:"cipher"`
	KeyWrap       string                                     `json:"key_wrap"`
	Recipients    map[cryptoutils.Fingerprint]v0RecipientDoc `json:"recipients"`
}

type v0RecipientDoc struct {
	WrappedKey []byte `json:"wrapped_key"`
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ciphertext"`
}

type v1Document struct {
	FormatVersion int                                        `json:"format_version"`
	Cipher        string                                     `json:"cipher"`
	KeyWrap       string                                     `json:"key_wrap"`
	Nonce         []byte                                     `json:"nonce"`
	Ciphertext    []byte                                     `json:"ciphertext"`
	Recipients    map[cryptoutils.Fingerprint]v1RecipientDoc `json:"recipients"`
}

type v1RecipientDoc struct {
	WrappedKey []byte `json:"wrapped_key"`
}

// Marshal encodes an envelope as its self-describing JSON document.
func Marshal(env Envelope) ([]byte, error) {
	switch e := env.(type) {
	case *V0Envelope:
		doc := v0Document{
			FormatVersion: FormatV0,
			Cipher:        cryptoutils.SecretboxAlgorithm,
			KeyWrap:       cryptoutils.KeyWrapAlgorithm,
			Recipients:    make(map[cryptoutils.Fingerprint]v0RecipientDoc, len(e.recipients)),
		}
		for fp, r := range e.recipients {
			doc.Recipients[fp] = v0RecipientDoc(r)
		}
		return json.Marshal(doc)
	case *V1Envelope:
		doc := v1Document{
			FormatVersion: FormatV1,
			Cipher:        cryptoutils.AESGCMAlgorithm,
			KeyWrap:       cryptoutils.KeyWrapAlgorithm,
			Nonce:         e.nonce,
			Ciphertext:    e.ciphertext,
			Recipients:    make(map[cryptoutils.Fingerprint]v1RecipientDoc, len(e.wrappedKeys)),
		}
		for fp, wrapped := range e.wrappedKeys {
			doc.Recipients[fp] = v1RecipientDoc{WrappedKey: wrapped}
		}
		return json.Marshal(doc)
	default:
		return nil, fmt.Errorf("%w: unknown envelope type %T", interfaces.ErrMalformedEnvelope, env)
	}
}

// Parse decodes an envelope document, dispatching on its format_version.
// Documents declaring an unknown version fail with
// ErrUnsupportedFormatVersion; structural problems fail with
// ErrMalformedEnvelope.
func Parse(raw []byte) (Envelope, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty document", interfaces.ErrMalformedEnvelope)
	}

	var header versionHeader
	if err := json.Unmarshal(raw, &header); err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrMalformedEnvelope, err)
	}
	if header.FormatVersion == nil {
		return nil, fmt.Errorf("%w: missing format_version", interfaces.ErrMalformedEnvelope)
	}
	if err := checkUniqueRecipients(header.Recipients); err != nil {
		return nil, err
	}

	switch *header.FormatVersion {
	case FormatV0:
		return parseV0(raw)
	case FormatV1:
		return parseV1(raw)
	default:
		return nil, fmt.Errorf("%w: %d", interfaces.ErrUnsupportedFormatVersion, *header.FormatVersion)
	}
}

// Exists reports whether raw is a well-formed envelope of a supported
// version, regardless of who can decrypt it.
func Exists(raw []byte) bool {
	_, err := Parse(raw)
	return err == nil
}

func parseV0(raw []byte) (*V0Envelope, error) {
	var doc v0Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrMalformedEnvelope, err)
	}
	if err := checkAlgorithms(doc.Cipher, cryptoutils.SecretboxAlgorithm, doc.KeyWrap); err != nil {
		return nil, err
	}
	if doc.Recipients == nil {
		return nil, fmt.Errorf("%w: missing recipients", interfaces.ErrMalformedEnvelope)
	}

	env := &V0Envelope{recipients: make(map[cryptoutils.Fingerprint]V0Recipient, len(doc.Recipients))}
	for fp, r := range doc.Recipients {
		if len(r.WrappedKey) == 0 || len(r.Nonce) == 0 || len(r.Ciphertext) == 0 {
			return nil, fmt.Errorf("%w: incomplete record for recipient %s", interfaces.ErrMalformedEnvelope, fp.Short())
		}
		if len(r.Nonce) != cryptoutils.SecretboxNonceSize {
			return nil, fmt.Errorf("%w: invalid nonce length %d for recipient %s", interfaces.ErrMalformedEnvelope, len(r.Nonce), fp.Short())
		}
		env.recipients[fp] = V0Recipient(r)
	}
	return env, nil
}

func parseV1(raw []byte) (*V1Envelope, error) {
	var doc v1Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrMalformedEnvelope, err)
	}
	if err := checkAlgorithms(doc.Cipher, cryptoutils.AESGCMAlgorithm, doc.KeyWrap); err != nil {
		return nil, err
	}
	if len(doc.Nonce) != gcmNonceSize {
		return nil, fmt.Errorf("%w: invalid nonce length %d", interfaces.ErrMalformedEnvelope, len(doc.Nonce))
	}
	if len(doc.Ciphertext) == 0 {
		return nil, fmt.Errorf("%w: missing ciphertext", interfaces.ErrMalformedEnvelope)
	}
	if doc.Recipients == nil {
		return nil, fmt.Errorf("%w: missing recipients", interfaces.ErrMalformedEnvelope)
	}

	env := &V1Envelope{
		nonce:       doc.Nonce,
		ciphertext:  doc.Ciphertext,
		wrappedKeys: make(map[cryptoutils.Fingerprint][]byte, len(doc.Recipients)),
	}
	for fp, r := range doc.Recipients {
		if len(r.WrappedKey) == 0 {
			return nil, fmt.Errorf("%w: missing wrapped key for recipient %s", interfaces.ErrMalformedEnvelope, fp.Short())
		}
		env.wrappedKeys[fp] = r.WrappedKey
	}
	return env, nil
}

// checkUniqueRecipients rejects a recipients object naming a fingerprint
// twice. Decoding into a map would silently keep the last record.
func checkUniqueRecipients(raw json.RawMessage) error {
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("%w: %v", interfaces.ErrMalformedEnvelope, err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("%w: recipients must be an object", interfaces.ErrMalformedEnvelope)
	}

	seen := make(map[string]struct{})
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("%w: %v", interfaces.ErrMalformedEnvelope, err)
		}
		key, _ := tok.(string)
		if _, dup := seen[key]; dup {
			return fmt.Errorf("%w: duplicate recipient %q", interfaces.ErrMalformedEnvelope, key)
		}
		seen[key] = struct{}{}

		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			return fmt.Errorf("%w: %v", interfaces.ErrMalformedEnvelope, err)
		}
	}
	return nil
}

func checkAlgorithms(cipher, expectedCipher, keyWrap string) error {
	if cipher != expectedCipher {
		return fmt.Errorf("%w: unexpected cipher %q", interfaces.ErrMalformedEnvelope, cipher)
	}
	if keyWrap != cryptoutils.KeyWrapAlgorithm {
		return fmt.Errorf("%w: unexpected key wrap %q", interfaces.ErrMalformedEnvelope, keyWrap)
	}
	return nil
}
