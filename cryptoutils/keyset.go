package cryptoutils

import (
	"bytes"
	"sort"
)

// KeySet is a set of public keys deduplicated by fingerprint. Order is not
// significant; Keys and Fingerprints return fingerprint order so results are
// reproducible.
type KeySet struct {
	keys map[Fingerprint]PublicKey
}

// NewKeySet builds a set from the given keys, dropping duplicates and zero keys.
func NewKeySet(keys ...PublicKey) KeySet {
	set := KeySet{keys: make(map[Fingerprint]PublicKey, len(keys))}
	set.Add(keys...)
	return set
}

// Add inserts keys into the set.
func (s *KeySet) Add(keys ...PublicKey) {
	if s.keys == nil {
		s.keys = make(map[Fingerprint]PublicKey, len(keys))
	}
	for _, key := range keys {
		if key.IsZero() {
			continue
		}
		s.keys[key.Fingerprint()] = key
	}
}

// Union returns a new set holding the members of both sets.
func (s KeySet) Union(other KeySet) KeySet {
	result := NewKeySet(s.Keys()...)
	result.Add(other.Keys()...)
	return result
}

// Len returns the number of distinct keys.
func (s KeySet) Len() int {
	return len(s.keys)
}

// Contains reports whether a key with the fingerprint is in the set.
func (s KeySet) Contains(fp Fingerprint) bool {
	_, ok := s.keys[fp]
	return ok
}

// Keys returns the members sorted by fingerprint.
func (s KeySet) Keys() []PublicKey {
	fps := s.Fingerprints()
	keys := make([]PublicKey, 0, len(fps))
	for _, fp := range fps {
		keys = append(keys, s.keys[fp])
	}
	return keys
}

// Fingerprints returns the member fingerprints in ascending order.
func (s KeySet) Fingerprints() []Fingerprint {
	fps := make([]Fingerprint, 0, len(s.keys))
	for fp := range s.keys {
		fps = append(fps, fp)
	}
	SortFingerprints(fps)
	return fps
}

// SameFingerprints reports whether the set's members are exactly fps,
// ignoring order and duplicates in fps.
func (s KeySet) SameFingerprints(fps []Fingerprint) bool {
	seen := make(map[Fingerprint]struct{}, len(fps))
	for _, fp := range fps {
		if !s.Contains(fp) {
			return false
		}
		seen[fp] = struct{}{}
	}
	return len(seen) == len(s.keys)
}

// SortFingerprints sorts fingerprints in place in ascending byte order.
func SortFingerprints(fps []Fingerprint) {
	sort.Slice(fps, func(i, j int) bool {
		return bytes.Compare(fps[i][:], fps[j][:]) < 0
	})
}
