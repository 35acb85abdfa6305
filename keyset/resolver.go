package keyset

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ruteri/sealed-config/cryptoutils"
	"github.com/ruteri/sealed-config/interfaces"
	"github.com/ruteri/sealed-config/metrics"
)

// Resolver turns an authorization policy into the deduplicated set of
// public keys currently allowed to read a value.
type Resolver struct {
	directory interfaces.Directory
	lookup    interfaces.PublicKeyLookup
	cache     *Cache
	log       *slog.Logger
}

// NewResolver creates a resolver. A nil cache disables caching of search
// results; a nil directory or lookup makes policies that need them fail.
func NewResolver(log *slog.Logger, directory interfaces.Directory, lookup interfaces.PublicKeyLookup, cache *Cache) *Resolver {
	return &Resolver{
		directory: directory,
		lookup:    lookup,
		cache:     cache,
		log:       log,
	}
}

// Resolve computes the target key set for policy: the explicit keys, every
// enrolled host matching the search query, and each named user's key.
// Directory failures are returned wrapped in ErrDirectoryLookup and are not
// retried.
func (r *Resolver) Resolve(ctx context.Context, policy interfaces.AuthorizationPolicy) (cryptoutils.KeySet, error) {
	explicit, err := policy.ExplicitKeys()
	if err != nil {
		return cryptoutils.KeySet{}, err
	}
	target := cryptoutils.NewKeySet(explicit...)

	if query := NormalizeQuery(policy.SearchQuery); query != "" {
		hostKeys, err := r.searchHosts(ctx, query, policy.PartialSearch)
		if err != nil {
			return cryptoutils.KeySet{}, err
		}
		target.Add(hostKeys...)
	}

	for _, user := range policy.Users {
		key, err := r.lookupUser(ctx, user)
		if err != nil {
			return cryptoutils.KeySet{}, err
		}
		target.Add(key)
	}

	r.log.Debug("resolved key set",
		slog.String("query", policy.SearchQuery),
		slog.Int("explicit", len(explicit)),
		slog.Int("users", len(policy.Users)),
		slog.Int("keys", target.Len()))

	return target, nil
}

func (r *Resolver) searchHosts(ctx context.Context, query string, partial bool) ([]cryptoutils.PublicKey, error) {
	if r.cache != nil {
		if keys, ok := r.cache.Get(query); ok {
			return keys, nil
		}
	}

	if r.directory == nil {
		return nil, fmt.Errorf("%w: no directory configured for query %q", interfaces.ErrDirectoryLookup, query)
	}

	start := time.Now()
	records, err := r.directory.Search(ctx, interfaces.SearchRequest{
		Kind:    interfaces.PrincipalHost,
		Query:   query,
		Fields:  []string{interfaces.PublicKeyField},
		Rows:    interfaces.DefaultSearchRows,
		Partial: partial,
	})
	metrics.ObserveDirectorySearch(interfaces.PrincipalHost.String(), start, err)
	if err != nil {
		if errors.Is(err, interfaces.ErrDirectoryLookup) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: search %q: %w", interfaces.ErrDirectoryLookup, query, err)
	}

	keys := r.compact(query, records)
	if r.cache != nil {
		r.cache.Put(query, keys)
	}
	return keys, nil
}

// compact drops records without a key. Keys that fail to parse are skipped
// with a warning.
func (r *Resolver) compact(query string, records []interfaces.DirectoryRecord) []cryptoutils.PublicKey {
	keys := make([]cryptoutils.PublicKey, 0, len(records))
	for _, record := range records {
		if !record.HasPublicKey() {
			continue
		}
		key, err := cryptoutils.ParsePublicKeyPEM([]byte(record.PublicKey))
		if err != nil {
			r.log.Warn("skipping principal with unparseable public key",
				slog.String("query", query),
				slog.String("principal", record.Name),
				"err", err)
			continue
		}
		keys = append(keys, key)
	}
	return keys
}

func (r *Resolver) lookupUser(ctx context.Context, user string) (cryptoutils.PublicKey, error) {
	if r.lookup == nil {
		return cryptoutils.PublicKey{}, fmt.Errorf("%w: no key lookup configured for user %q", interfaces.ErrDirectoryLookup, user)
	}

	start := time.Now()
	key, err := r.lookup.LookupPublicKey(ctx, interfaces.PrincipalUser, user)
	metrics.ObserveDirectorySearch(interfaces.PrincipalUser.String(), start, err)
	if err != nil {
		if errors.Is(err, interfaces.ErrDirectoryLookup) {
			return cryptoutils.PublicKey{}, err
		}
		return cryptoutils.PublicKey{}, fmt.Errorf("%w: user %q: %w", interfaces.ErrDirectoryLookup, user, err)
	}
	return key, nil
}
