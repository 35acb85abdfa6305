package directory

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/ruteri/sealed-config/cryptoutils"
	"github.com/ruteri/sealed-config/interfaces"
	"gopkg.in/yaml.v3"
)

// InventoryPrincipal is a host or user entry of a static inventory.
type InventoryPrincipal struct {
	Name       string            `yaml:"name"`
	PublicKey  string            `yaml:"public_key,omitempty"`
	Attributes map[string]string `yaml:"attributes,omitempty"`
}

// Inventory is a directory backed by a static YAML document:
//
//	hosts:
//	  - name: web-01
//	    public_key: |
//	      -----BEGIN PUBLIC KEY-----
//	      ...
//	    attributes:
//	      role: web
//	users:
//	  - name: alice
//	    public_key: ...
//
// Queries are whitespace separated "field:value" terms that must all match
// ("AND" between terms is accepted and ignored). The field "name" matches
// the principal name, any other field matches an attribute. A value ending
// in "*" matches by prefix and "*:*" matches everything.
type Inventory struct {
	Hosts []InventoryPrincipal `yaml:"hosts"`
	Users []InventoryPrincipal `yaml:"users"`
}

// ParseInventory parses an inventory document.
func ParseInventory(data []byte) (*Inventory, error) {
	var inv Inventory
	if err := yaml.Unmarshal(data, &inv); err != nil {
		return nil, fmt.Errorf("invalid inventory: %w", err)
	}

	for _, group := range [][]InventoryPrincipal{inv.Hosts, inv.Users} {
		seen := make(map[string]struct{}, len(group))
		for _, p := range group {
			if p.Name == "" {
				return nil, fmt.Errorf("invalid inventory: principal without a name")
			}
			if _, dup := seen[p.Name]; dup {
				return nil, fmt.Errorf("invalid inventory: duplicate principal %q", p.Name)
			}
			seen[p.Name] = struct{}{}
		}
	}
	return &inv, nil
}

// LoadInventory reads an inventory file.
func LoadInventory(path string) (*Inventory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read inventory: %w", err)
	}
	return ParseInventory(data)
}

// Search implements interfaces.Directory.
func (inv *Inventory) Search(ctx context.Context, req interfaces.SearchRequest) ([]interfaces.DirectoryRecord, error) {
	principals, err := inv.principals(req.Kind)
	if err != nil {
		return nil, err
	}

	terms, err := parseQuery(req.Query)
	if err != nil {
		return nil, err
	}

	withKey := !req.Partial || slices.Contains(req.Fields, interfaces.PublicKeyField)

	records := []interfaces.DirectoryRecord{}
	for _, p := range principals {
		if req.Rows > 0 && len(records) >= req.Rows {
			break
		}
		if !matchesAll(p, terms) {
			continue
		}

		record := interfaces.DirectoryRecord{Name: p.Name}
		if withKey {
			record.PublicKey = p.PublicKey
		}
		records = append(records, record)
	}
	return records, nil
}

// LookupPublicKey implements interfaces.PublicKeyLookup.
func (inv *Inventory) LookupPublicKey(ctx context.Context, kind interfaces.PrincipalKind, id string) (cryptoutils.PublicKey, error) {
	principals, err := inv.principals(kind)
	if err != nil {
		return cryptoutils.PublicKey{}, err
	}

	for _, p := range principals {
		if p.Name != id {
			continue
		}
		if strings.TrimSpace(p.PublicKey) == "" {
			return cryptoutils.PublicKey{}, fmt.Errorf("%w: %s %q has no public key", interfaces.ErrPrincipalNotFound, kind, id)
		}
		key, err := cryptoutils.ParsePublicKeyPEM([]byte(p.PublicKey))
		if err != nil {
			return cryptoutils.PublicKey{}, fmt.Errorf("%s %q has an invalid public key: %w", kind, id, err)
		}
		return key, nil
	}

	return cryptoutils.PublicKey{}, fmt.Errorf("%w: %s %q", interfaces.ErrPrincipalNotFound, kind, id)
}

func (inv *Inventory) principals(kind interfaces.PrincipalKind) ([]InventoryPrincipal, error) {
	switch kind {
	case interfaces.PrincipalHost:
		return inv.Hosts, nil
	case interfaces.PrincipalUser:
		return inv.Users, nil
	default:
		return nil, kind.Validate()
	}
}

type queryTerm struct {
	field string
	value string
}

func parseQuery(query string) ([]queryTerm, error) {
	var terms []queryTerm
	for _, token := range strings.Fields(query) {
		if token == "AND" {
			continue
		}
		field, value, ok := strings.Cut(token, ":")
		if !ok || field == "" || value == "" {
			return nil, fmt.Errorf("invalid query term %q: expected field:value", token)
		}
		terms = append(terms, queryTerm{field: field, value: value})
	}
	if len(terms) == 0 {
		return nil, fmt.Errorf("empty query")
	}
	return terms, nil
}

func matchesAll(p InventoryPrincipal, terms []queryTerm) bool {
	for _, term := range terms {
		if !term.matches(p) {
			return false
		}
	}
	return true
}

func (t queryTerm) matches(p InventoryPrincipal) bool {
	if t.field == "*" && t.value == "*" {
		return true
	}

	var actual string
	if t.field == "name" {
		actual = p.Name
	} else {
		value, ok := p.Attributes[t.field]
		if !ok {
			return false
		}
		actual = value
	}

	if prefix, glob := strings.CutSuffix(t.value, "*"); glob {
		return strings.HasPrefix(actual, prefix)
	}
	return actual == t.value
}
