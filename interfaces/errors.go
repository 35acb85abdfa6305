package interfaces

import "errors"

var (
	// ErrDirectoryLookup is returned when a directory search or a named
	// principal key lookup could not complete. It is never retried by the
	// resolver; callers decide on retry policy.
	ErrDirectoryLookup = errors.New("directory lookup failed")

	// ErrPrincipalNotFound is returned by key lookups for unknown principals
	// or principals without a public key.
	ErrPrincipalNotFound = errors.New("principal not found")

	// ErrUnsupportedFormatVersion is returned for envelopes declaring a
	// format version this build cannot parse.
	ErrUnsupportedFormatVersion = errors.New("unsupported envelope format version")

	// ErrNotAuthorized is returned when the decrypting key's fingerprint is
	// not among the envelope recipients.
	ErrNotAuthorized = errors.New("not authorized to decrypt envelope")

	// ErrIntegrity is returned when authenticated decryption fails for an
	// authorized recipient, which indicates tampering or corruption.
	ErrIntegrity = errors.New("envelope integrity check failed")

	// ErrMalformedEnvelope is returned when an envelope cannot be parsed.
	ErrMalformedEnvelope = errors.New("malformed envelope")
)

var (
	// ErrFieldNotFound is returned when a node record has no value at the requested path.
	ErrFieldNotFound = errors.New("field not found")

	// ErrBackendUnavailable is returned when a storage backend is not accessible.
	// This could be due to network issues, authentication failures, or service outages.
	ErrBackendUnavailable = errors.New("storage backend unavailable")

	// ErrInvalidLocationURI is returned when a storage location URI is malformed or unsupported.
	// URIs must follow the format: [scheme]://[auth@]host[:port][/path][?params]
	ErrInvalidLocationURI = errors.New("invalid storage location URI")
)
