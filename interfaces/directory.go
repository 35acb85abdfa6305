package interfaces

import "context"

// Directory resolves search queries to registered principals.
type Directory interface {
	// Search returns up to req.Rows principals of req.Kind matching req.Query.
	// In partial mode only req.Fields are populated.
	Search(ctx context.Context, req SearchRequest) ([]DirectoryRecord, error)
}

// PublicKeyLookup fetches the public key of an individually named principal.
type PublicKeyLookup interface {
	// LookupPublicKey returns ErrPrincipalNotFound when the principal does
	// not exist or has no key.
	LookupPublicKey(ctx context.Context, kind PrincipalKind, id string) (PublicKey, error)
}

// IdentityProvider exposes the calling principal's own key pair.
type IdentityProvider interface {
	PublicKey() PublicKey
	PrivateKey() PrivateKey
}
