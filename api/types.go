package api

import (
	"encoding/json"

	"github.com/ruteri/sealed-config/cryptoutils"
	"github.com/ruteri/sealed-config/interfaces"
	"github.com/ruteri/sealed-config/lifecycle"
)

// SealerProvider is the client-side view of the sealing service.
type SealerProvider interface {
	// Seal encrypts value for the policy and stores it on the node's record.
	Seal(node interfaces.NodeIdentity, path interfaces.FieldPath, value any, policy interfaces.AuthorizationPolicy) (*SealResponse, error)

	// Unseal returns the value decrypted with the server's identity.
	Unseal(node interfaces.NodeIdentity, path interfaces.FieldPath) (json.RawMessage, error)

	// Rotate re-encrypts the stored value if the policy's recipients changed.
	Rotate(node interfaces.NodeIdentity, path interfaces.FieldPath, policy interfaces.AuthorizationPolicy) (*RotateResponse, error)

	// Status describes the stored value without decrypting it.
	Status(node interfaces.NodeIdentity, path interfaces.FieldPath) (*StatusResponse, error)

	// Resolve returns the recipients a policy currently resolves to.
	Resolve(policy interfaces.AuthorizationPolicy) (*ResolveResponse, error)
}

// SealRequest is the body of PUT /api/v1/nodes/{node}/values/{path}.
type SealRequest struct {
	// Value is any JSON document.
	Value json.RawMessage `json:"value"`

	// Policy selects the recipients in addition to the node itself.
	Policy interfaces.AuthorizationPolicy `json:"policy"`
}

// SealResponse describes a freshly stored envelope.
type SealResponse struct {
	Node          interfaces.NodeIdentity   `json:"node"`
	Path          interfaces.FieldPath      `json:"path"`
	FormatVersion int                       `json:"format_version"`
	Recipients    []cryptoutils.Fingerprint `json:"recipients"`
}

// UnsealResponse carries a decrypted value.
type UnsealResponse struct {
	Node  interfaces.NodeIdentity `json:"node"`
	Path  interfaces.FieldPath    `json:"path"`
	Value json.RawMessage         `json:"value"`
}

// RotateRequest is the body of POST /api/v1/nodes/{node}/values/{path}/rotate.
type RotateRequest struct {
	Policy interfaces.AuthorizationPolicy `json:"policy"`
}

// RotateResponse reports whether the stored envelope was re-encrypted.
type RotateResponse struct {
	Updated       bool                      `json:"updated"`
	FormatVersion int                       `json:"format_version"`
	Recipients    []cryptoutils.Fingerprint `json:"recipients"`
}

// StatusResponse is returned by GET /api/v1/nodes/{node}/values/{path}/status.
type StatusResponse = lifecycle.Status

// ResolveRequest is the body of POST /api/v1/keysets/resolve.
type ResolveRequest struct {
	Policy interfaces.AuthorizationPolicy `json:"policy"`
}

// ResolveResponse lists the resolved recipients.
type ResolveResponse struct {
	Fingerprints []cryptoutils.Fingerprint `json:"fingerprints"`
	// Keys are PEM-encoded public keys in fingerprint order.
	Keys []string `json:"keys"`
}

// ErrorResponse is the JSON body of every non-2xx API response.
type ErrorResponse struct {
	Error string `json:"error"`
}
