// Package keyset resolves authorization policies into recipient key sets.
//
// The Resolver unions a policy's explicit keys, the keys of every host
// matching its directory search query and the keys of its named users,
// deduplicated by fingerprint. Search results are kept in a bounded LRU
// Cache keyed by the normalized query; user lookups are never cached.
package keyset
