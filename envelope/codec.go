package envelope

import (
	"encoding/json"
	"fmt"

	"github.com/ruteri/sealed-config/cryptoutils"
	"github.com/ruteri/sealed-config/interfaces"
)

// payloadWrapper lets scalars and arrays be sealed alongside objects.
type payloadWrapper struct {
	Value json.RawMessage `json:"json_wrapper"`
}

// Codec encrypts values into envelopes of its default version and decrypts
// envelopes of any supported version.
type Codec struct {
	DefaultVersion int
}

// NewCodec creates a codec producing envelopes of the given version.
func NewCodec(version int) (*Codec, error) {
	if !SupportedVersion(version) {
		return nil, fmt.Errorf("%w: %d", interfaces.ErrUnsupportedFormatVersion, version)
	}
	return &Codec{DefaultVersion: version}, nil
}

// Encrypt seals value for every key in keys using the default version.
// An empty key set yields a valid envelope nobody can decrypt.
func (c *Codec) Encrypt(value any, keys cryptoutils.KeySet) (Envelope, error) {
	return c.EncryptVersion(c.DefaultVersion, value, keys)
}

// EncryptVersion seals value using a specific format version.
func (c *Codec) EncryptVersion(version int, value any, keys cryptoutils.KeySet) (Envelope, error) {
	payload, err := marshalPayload(value)
	if err != nil {
		return nil, err
	}

	switch version {
	case FormatV0:
		return encryptV0(payload, keys)
	case FormatV1:
		return encryptV1(payload, keys)
	default:
		return nil, fmt.Errorf("%w: %d", interfaces.ErrUnsupportedFormatVersion, version)
	}
}

// Decrypt opens the envelope with priv and returns the sealed JSON value.
// It fails with ErrNotAuthorized, without touching any ciphertext, when
// priv's public key is not a recipient, and with ErrIntegrity when
// authenticated decryption fails.
func (c *Codec) Decrypt(env Envelope, priv cryptoutils.PrivateKey) (json.RawMessage, error) {
	if priv.IsZero() {
		return nil, fmt.Errorf("%w: no private key", interfaces.ErrNotAuthorized)
	}
	fp := priv.Public().Fingerprint()
	if env == nil || !env.HasRecipient(fp) {
		return nil, fmt.Errorf("%w: %s is not a recipient", interfaces.ErrNotAuthorized, fp.Short())
	}

	var payload []byte
	var err error
	switch e := env.(type) {
	case *V0Envelope:
		payload, err = decryptV0(e, fp, priv)
	case *V1Envelope:
		payload, err = decryptV1(e, fp, priv)
	default:
		return nil, fmt.Errorf("%w: unknown envelope type %T", interfaces.ErrMalformedEnvelope, env)
	}
	if err != nil {
		return nil, err
	}

	return unmarshalPayload(payload)
}

// DecryptInto decrypts the envelope and unmarshals the value into out.
func (c *Codec) DecryptInto(env Envelope, priv cryptoutils.PrivateKey, out any) error {
	value, err := c.Decrypt(env, priv)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(value, out); err != nil {
		return fmt.Errorf("failed to decode sealed value: %w", err)
	}
	return nil
}

// NeedsUpdate reports whether env must be re-encrypted to match keys: its
// version is not the default, or its recipient fingerprints differ from the
// fingerprints of keys. Wrapped key material is never compared. A nil
// envelope always needs an update.
func (c *Codec) NeedsUpdate(env Envelope, keys cryptoutils.KeySet) bool {
	if env == nil || env.FormatVersion() != c.DefaultVersion {
		return true
	}
	return !keys.SameFingerprints(env.Recipients())
}

func encryptV0(payload []byte, keys cryptoutils.KeySet) (*V0Envelope, error) {
	env := &V0Envelope{recipients: make(map[cryptoutils.Fingerprint]V0Recipient, keys.Len())}
	for _, key := range keys.Keys() {
		contentKey, err := cryptoutils.CreateContentKey()
		if err != nil {
			return nil, err
		}

		nonce, ciphertext, err := cryptoutils.SealSecretbox(contentKey, payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encrypt payload: %w", err)
		}

		wrapped, err := cryptoutils.WrapKey(key, contentKey)
		if err != nil {
			return nil, fmt.Errorf("failed to wrap content key for %s: %w", key.Fingerprint().Short(), err)
		}

		env.recipients[key.Fingerprint()] = V0Recipient{
			WrappedKey: wrapped,
			Nonce:      nonce,
			Ciphertext: ciphertext,
		}
	}
	return env, nil
}

func decryptV0(env *V0Envelope, fp cryptoutils.Fingerprint, priv cryptoutils.PrivateKey) ([]byte, error) {
	record := env.recipients[fp]

	contentKey, err := cryptoutils.UnwrapKey(priv, record.WrappedKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", interfaces.ErrIntegrity, err)
	}

	payload, err := cryptoutils.OpenSecretbox(contentKey, record.Nonce, record.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", interfaces.ErrIntegrity, err)
	}
	return payload, nil
}

func encryptV1(payload []byte, keys cryptoutils.KeySet) (*V1Envelope, error) {
	contentKey, err := cryptoutils.CreateContentKey()
	if err != nil {
		return nil, err
	}

	nonce, ciphertext, err := cryptoutils.SealAESGCM(contentKey, payload, v1AdditionalData())
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt payload: %w", err)
	}

	env := &V1Envelope{
		nonce:       nonce,
		ciphertext:  ciphertext,
		wrappedKeys: make(map[cryptoutils.Fingerprint][]byte, keys.Len()),
	}
	for _, key := range keys.Keys() {
		wrapped, err := cryptoutils.WrapKey(key, contentKey)
		if err != nil {
			return nil, fmt.Errorf("failed to wrap content key for %s: %w", key.Fingerprint().Short(), err)
		}
		env.wrappedKeys[key.Fingerprint()] = wrapped
	}
	return env, nil
}

func decryptV1(env *V1Envelope, fp cryptoutils.Fingerprint, priv cryptoutils.PrivateKey) ([]byte, error) {
	contentKey, err := cryptoutils.UnwrapKey(priv, env.wrappedKeys[fp])
	if err != nil {
		return nil, fmt.Errorf("%w: %w", interfaces.ErrIntegrity, err)
	}

	payload, err := cryptoutils.OpenAESGCM(contentKey, env.nonce, env.ciphertext, v1AdditionalData())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", interfaces.ErrIntegrity, err)
	}
	return payload, nil
}

// v1AdditionalData binds the format version and cipher into the payload tag.
func v1AdditionalData() []byte {
	return []byte(fmt.Sprintf("sealed-config/v%d/%s", FormatV1, cryptoutils.AESGCMAlgorithm))
}

func marshalPayload(value any) ([]byte, error) {
	inner, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("failed to encode value: %w", err)
	}
	payload, err := json.Marshal(payloadWrapper{Value: inner})
	if err != nil {
		return nil, fmt.Errorf("failed to encode value: %w", err)
	}
	return payload, nil
}

func unmarshalPayload(payload []byte) (json.RawMessage, error) {
	var wrapper payloadWrapper
	if err := json.Unmarshal(payload, &wrapper); err != nil {
		return nil, fmt.Errorf("%w: sealed payload is not a JSON document: %v", interfaces.ErrMalformedEnvelope, err)
	}
	if wrapper.Value == nil {
		return nil, fmt.Errorf("%w: sealed payload has no json_wrapper", interfaces.ErrMalformedEnvelope)
	}
	return wrapper.Value, nil
}
