// Package envelope implements the versioned multi-recipient envelope format.
//
// An envelope holds one JSON value encrypted so that every recipient can
// decrypt it with its own private key. Two wire versions are understood:
//
//   - Version 0 encrypts the payload separately for each recipient under a
//     fresh content key (XSalsa20-Poly1305) and wraps that key to the
//     recipient.
//   - Version 1 encrypts the payload once under a single content key
//     (AES-256-GCM) and wraps the content key once per recipient.
//
// Recipients are keyed by public key fingerprint. Envelopes are immutable;
// changing the recipient set means encrypting a new envelope.
package envelope

import (
	"github.com/ruteri/sealed-config/cryptoutils"
)

const (
	// FormatV0 is the legacy per-recipient payload format.
	FormatV0 = 0
	// FormatV1 is the shared-payload format.
	FormatV1 = 1
	// DefaultFormatVersion is produced by a zero-configured codec.
	DefaultFormatVersion = FormatV1
)

// SupportedVersion reports whether the version can be parsed and produced.
func SupportedVersion(version int) bool {
	return version == FormatV0 || version == FormatV1
}

// Envelope is either a *V0Envelope or a *V1Envelope.
type Envelope interface {
	// FormatVersion returns the wire format version.
	FormatVersion() int
	// Recipients returns the recipient fingerprints in ascending order.
	Recipients() []cryptoutils.Fingerprint
	// HasRecipient reports whether fp can decrypt the envelope.
	HasRecipient(fp cryptoutils.Fingerprint) bool

	sealed()
}

// V0Recipient is a self-contained per-recipient record of a version 0 envelope.
type V0Recipient struct {
	WrappedKey []byte
	Nonce      []byte
	Ciphertext []byte
}

// V0Envelope is the legacy format: the payload is encrypted independently
// for every recipient.
type V0Envelope struct {
	recipients map[cryptoutils.Fingerprint]V0Recipient
}

// FormatVersion returns FormatV0.
func (e *V0Envelope) FormatVersion() int { return FormatV0 }

// Recipients returns the recipient fingerprints in ascending order.
func (e *V0Envelope) Recipients() []cryptoutils.Fingerprint {
	return sortedFingerprints(e.recipients)
}

// HasRecipient reports whether fp has a record in the envelope.
func (e *V0Envelope) HasRecipient(fp cryptoutils.Fingerprint) bool {
	_, ok := e.recipients[fp]
	return ok
}

func (e *V0Envelope) sealed() {}

// V1Envelope is the current format: the payload is encrypted once and only
// the content key is wrapped per recipient.
type V1Envelope struct {
	nonce       []byte
	ciphertext  []byte
	wrappedKeys map[cryptoutils.Fingerprint][]byte
}

// FormatVersion returns FormatV1.
func (e *V1Envelope) FormatVersion() int { return FormatV1 }

// Recipients returns the recipient fingerprints in ascending order.
func (e *V1Envelope) Recipients() []cryptoutils.Fingerprint {
	return sortedFingerprints(e.wrappedKeys)
}

// HasRecipient reports whether fp has a wrapped key in the envelope.
func (e *V1Envelope) HasRecipient(fp cryptoutils.Fingerprint) bool {
	_, ok := e.wrappedKeys[fp]
	return ok
}

func (e *V1Envelope) sealed() {}

func sortedFingerprints[V any](m map[cryptoutils.Fingerprint]V) []cryptoutils.Fingerprint {
	fps := make([]cryptoutils.Fingerprint, 0, len(m))
	for fp := range m {
		fps = append(fps, fp)
	}
	cryptoutils.SortFingerprints(fps)
	return fps
}
