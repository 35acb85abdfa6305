package interfaces

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/ruteri/sealed-config/cryptoutils"
)

// PublicKey is a principal's P-256 public key as returned by directories.
type PublicKey = cryptoutils.PublicKey

// PrivateKey is the private half of an IdentityProvider's key pair.
type PrivateKey = cryptoutils.PrivateKey

// DefaultSearchRows is the page size requested from the directory when
// resolving a search query.
const DefaultSearchRows = 1000

// PublicKeyField is the name of the directory record field holding a
// principal's public key.
const PublicKeyField = "public_key"

// PrincipalKind selects the directory namespace a principal lives in.
type PrincipalKind string

const (
	// PrincipalHost identifies managed hosts (nodes).
	PrincipalHost PrincipalKind = "host"
	// PrincipalUser identifies human or service users.
	PrincipalUser PrincipalKind = "user"
)

// String returns the kind name.
func (k PrincipalKind) String() string {
	return string(k)
}

// Validate checks that the kind is known.
func (k PrincipalKind) Validate() error {
	switch k {
	case PrincipalHost, PrincipalUser:
		return nil
	default:
		return fmt.Errorf("unknown principal kind: %q", string(k))
	}
}

// SearchRequest describes a directory search.
type SearchRequest struct {
	Kind    PrincipalKind
	Query   string
	Fields  []string // projected fields, used in partial mode
	Rows    int
	Partial bool
}

// DirectoryRecord is a principal returned by a directory search. PublicKey
// holds a PEM-encoded key and is empty for principals that are not enrolled.
type DirectoryRecord struct {
	Name      string `json:"name" yaml:"name"`
	PublicKey string `json:"public_key,omitempty" yaml:"public_key,omitempty"`
}

// HasPublicKey reports whether the record carries a key.
func (r DirectoryRecord) HasPublicKey() bool {
	return strings.TrimSpace(r.PublicKey) != ""
}

var nodeIdentityRegex = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9._\-]{0,252}[a-zA-Z0-9])?$`)

// NodeIdentity names a managed host whose configuration record stores envelopes.
type NodeIdentity string

// NewNodeIdentity creates a node identity with validation.
func NewNodeIdentity(name string) (NodeIdentity, error) {
	if !nodeIdentityRegex.MatchString(name) {
		return "", fmt.Errorf("invalid node identity %q", name)
	}
	return NodeIdentity(name), nil
}

// String returns the identity as a string.
func (n NodeIdentity) String() string {
	return string(n)
}

// Validate checks that the identity has a valid format.
func (n NodeIdentity) Validate() error {
	_, err := NewNodeIdentity(string(n))
	return err
}

var fieldSegmentRegex = regexp.MustCompile(`^[a-zA-Z0-9_\-]+$`)

// FieldPath is a dotted path into a node record, e.g. "secrets.db_password".
type FieldPath string

// NewFieldPath creates a field path with validation.
func NewFieldPath(path string) (FieldPath, error) {
	if path == "" {
		return "", errors.New("empty field path")
	}
	for _, segment := range strings.Split(path, ".") {
		if !fieldSegmentRegex.MatchString(segment) {
			return "", fmt.Errorf("invalid field path segment %q in %q", segment, path)
		}
	}
	return FieldPath(path), nil
}

// Segments splits the path at dots.
func (p FieldPath) Segments() []string {
	return strings.Split(string(p), ".")
}

// String returns the path as a string.
func (p FieldPath) String() string {
	return string(p)
}

// Validate checks that the path has a valid format.
func (p FieldPath) Validate() error {
	_, err := NewFieldPath(string(p))
	return err
}
