package keyset

import (
	"context"
	"errors"
	"testing"

	"github.com/ruteri/sealed-config/common"
	"github.com/ruteri/sealed-config/cryptoutils"
	"github.com/ruteri/sealed-config/directory"
	"github.com/ruteri/sealed-config/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func hostRecord(name string, key cryptoutils.PublicKey) interfaces.DirectoryRecord {
	record := interfaces.DirectoryRecord{Name: name}
	if !key.IsZero() {
		record.PublicKey = string(key.PEM())
	}
	return record
}

func newTestResolver(t *testing.T, dir *directory.MockDirectory) (*Resolver, *Cache) {
	t.Helper()
	cache, err := NewCache(16, 0)
	require.NoError(t, err)
	return NewResolver(common.DiscardLogger(), dir, dir, cache), cache
}

func TestResolveSearchQuery(t *testing.T) {
	keys := randomKeys(t, 2)
	dir := &directory.MockDirectory{}
	dir.On("Search", mock.Anything, interfaces.SearchRequest{
		Kind:    interfaces.PrincipalHost,
		Query:   "role:web",
		Fields:  []string{interfaces.PublicKeyField},
		Rows:    interfaces.DefaultSearchRows,
		Partial: true,
	}).Return([]interfaces.DirectoryRecord{
		hostRecord("web-01", keys[0]),
		hostRecord("web-02", cryptoutils.PublicKey{}),
		hostRecord("web-03", keys[1]),
	}, nil)

	resolver, cache := newTestResolver(t, dir)
	policy := interfaces.AuthorizationPolicy{SearchQuery: "role:web", PartialSearch: true}

	first, err := resolver.Resolve(context.Background(), policy)
	require.NoError(t, err)
	assert.Equal(t, 2, first.Len())
	assert.True(t, first.Contains(keys[0].Fingerprint()))
	assert.True(t, first.Contains(keys[1].Fingerprint()))

	second, err := resolver.Resolve(context.Background(), policy)
	require.NoError(t, err)
	assert.Equal(t, first.Fingerprints(), second.Fingerprints())

	dir.AssertNumberOfCalls(t, "Search", 1)
	assert.Equal(t, 1, cache.Len())
}

func TestResolveNormalizesQueryForCache(t *testing.T) {
	keys := randomKeys(t, 1)
	dir := &directory.MockDirectory{}
	dir.On("Search", mock.Anything, mock.MatchedBy(func(req interfaces.SearchRequest) bool {
		return req.Query == "role:web AND env:prod"
	})).Return([]interfaces.DirectoryRecord{hostRecord("web-01", keys[0])}, nil)

	resolver, _ := newTestResolver(t, dir)

	_, err := resolver.Resolve(context.Background(), interfaces.AuthorizationPolicy{SearchQuery: "role:web AND env:prod"})
	require.NoError(t, err)
	_, err = resolver.Resolve(context.Background(), interfaces.AuthorizationPolicy{SearchQuery: "  role:web  AND env:prod\n"})
	require.NoError(t, err)

	dir.AssertNumberOfCalls(t, "Search", 1)
}

func TestResolveUnionAndDedup(t *testing.T) {
	keys := randomKeys(t, 3)
	dir := &directory.MockDirectory{}
	dir.On("Search", mock.Anything, mock.Anything).Return([]interfaces.DirectoryRecord{
		hostRecord("web-01", keys[0]),
		hostRecord("web-01-alias", keys[0]),
		hostRecord("web-02", keys[1]),
	}, nil)
	dir.On("LookupPublicKey", mock.Anything, interfaces.PrincipalUser, "alice").Return(keys[1], nil)
	dir.On("LookupPublicKey", mock.Anything, interfaces.PrincipalUser, "bob").Return(keys[2], nil)

	resolver, _ := newTestResolver(t, dir)
	policy := interfaces.AuthorizationPolicy{
		Keys:        []string{string(keys[0].PEM()), string(keys[2].PEM())},
		SearchQuery: "role:web",
		Users:       []string{"alice", "bob"},
	}

	target, err := resolver.Resolve(context.Background(), policy)
	require.NoError(t, err)
	assert.True(t, target.SameFingerprints([]cryptoutils.Fingerprint{
		keys[0].Fingerprint(), keys[1].Fingerprint(), keys[2].Fingerprint(),
	}))
	dir.AssertExpectations(t)
}

func TestResolveUsersAreNotCached(t *testing.T) {
	keys := randomKeys(t, 1)
	dir := &directory.MockDirectory{}
	dir.On("LookupPublicKey", mock.Anything, interfaces.PrincipalUser, "alice").Return(keys[0], nil)

	resolver, cache := newTestResolver(t, dir)
	policy := interfaces.AuthorizationPolicy{Users: []string{"alice"}}

	for i := 0; i < 2; i++ {
		target, err := resolver.Resolve(context.Background(), policy)
		require.NoError(t, err)
		assert.Equal(t, 1, target.Len())
	}
	dir.AssertNumberOfCalls(t, "LookupPublicKey", 2)
	dir.AssertNotCalled(t, "Search", mock.Anything, mock.Anything)
	assert.Equal(t, 0, cache.Len())
}

func TestResolveExplicitKeysOnly(t *testing.T) {
	keys := randomKeys(t, 2)
	resolver := NewResolver(common.DiscardLogger(), nil, nil, nil)

	target, err := resolver.Resolve(context.Background(), interfaces.AuthorizationPolicy{
		Keys: []string{string(keys[0].PEM()), string(keys[1].PEM()), string(keys[0].PEM())},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, target.Len())

	empty, err := resolver.Resolve(context.Background(), interfaces.AuthorizationPolicy{SearchQuery: "   "})
	require.NoError(t, err)
	assert.Equal(t, 0, empty.Len())
}

func TestResolveInvalidExplicitKey(t *testing.T) {
	resolver := NewResolver(common.DiscardLogger(), nil, nil, nil)
	_, err := resolver.Resolve(context.Background(), interfaces.AuthorizationPolicy{Keys: []string{"garbage"}})
	require.Error(t, err)
	assert.NotErrorIs(t, err, interfaces.ErrDirectoryLookup)
}

func TestResolveSkipsUnparseableDirectoryKeys(t *testing.T) {
	keys := randomKeys(t, 1)
	dir := &directory.MockDirectory{}
	dir.On("Search", mock.Anything, mock.Anything).Return([]interfaces.DirectoryRecord{
		hostRecord("web-01", keys[0]),
		{Name: "web-02", PublicKey: "-----BEGIN PUBLIC KEY-----\nbm9wZQ==\n-----END PUBLIC KEY-----\n"},
	}, nil)

	resolver, _ := newTestResolver(t, dir)
	target, err := resolver.Resolve(context.Background(), interfaces.AuthorizationPolicy{SearchQuery: "role:web"})
	require.NoError(t, err)
	assert.Equal(t, 1, target.Len())
}

func TestResolveSearchFailure(t *testing.T) {
	dir := &directory.MockDirectory{}
	dir.On("Search", mock.Anything, mock.Anything).Return(nil, errors.New("connection refused"))

	resolver, cache := newTestResolver(t, dir)
	_, err := resolver.Resolve(context.Background(), interfaces.AuthorizationPolicy{SearchQuery: "role:web"})
	require.Error(t, err)
	assert.ErrorIs(t, err, interfaces.ErrDirectoryLookup)
	assert.Contains(t, err.Error(), "connection refused")

	// Failures are not cached.
	assert.Equal(t, 0, cache.Len())
	_, err = resolver.Resolve(context.Background(), interfaces.AuthorizationPolicy{SearchQuery: "role:web"})
	require.Error(t, err)
	dir.AssertNumberOfCalls(t, "Search", 2)
}

func TestResolveUserLookupFailure(t *testing.T) {
	dir := &directory.MockDirectory{}
	dir.On("LookupPublicKey", mock.Anything, interfaces.PrincipalUser, "mallory").
		Return(cryptoutils.PublicKey{}, interfaces.ErrPrincipalNotFound)

	resolver, _ := newTestResolver(t, dir)
	_, err := resolver.Resolve(context.Background(), interfaces.AuthorizationPolicy{Users: []string{"mallory"}})
	require.Error(t, err)
	assert.ErrorIs(t, err, interfaces.ErrDirectoryLookup)
	assert.ErrorIs(t, err, interfaces.ErrPrincipalNotFound)
}

func TestResolveWithoutDirectory(t *testing.T) {
	resolver := NewResolver(common.DiscardLogger(), nil, nil, nil)

	_, err := resolver.Resolve(context.Background(), interfaces.AuthorizationPolicy{SearchQuery: "role:web"})
	assert.ErrorIs(t, err, interfaces.ErrDirectoryLookup)

	_, err = resolver.Resolve(context.Background(), interfaces.AuthorizationPolicy{Users: []string{"alice"}})
	assert.ErrorIs(t, err, interfaces.ErrDirectoryLookup)
}

func TestResolveAfterEvictionQueriesAgain(t *testing.T) {
	keys := randomKeys(t, 2)
	dir := &directory.MockDirectory{}
	dir.On("Search", mock.Anything, mock.MatchedBy(func(req interfaces.SearchRequest) bool { return req.Query == "role:web" })).
		Return([]interfaces.DirectoryRecord{hostRecord("web-01", keys[0])}, nil)
	dir.On("Search", mock.Anything, mock.MatchedBy(func(req interfaces.SearchRequest) bool { return req.Query == "role:db" })).
		Return([]interfaces.DirectoryRecord{hostRecord("db-01", keys[1])}, nil)

	cache, err := NewCache(1, 0)
	require.NoError(t, err)
	resolver := NewResolver(common.DiscardLogger(), dir, dir, cache)

	for _, query := range []string{"role:web", "role:db", "role:web"} {
		_, err := resolver.Resolve(context.Background(), interfaces.AuthorizationPolicy{SearchQuery: query})
		require.NoError(t, err)
	}
	dir.AssertNumberOfCalls(t, "Search", 3)
}
