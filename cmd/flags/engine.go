package flags

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/ruteri/sealed-config/cryptoutils"
	"github.com/ruteri/sealed-config/directory"
	"github.com/ruteri/sealed-config/envelope"
	"github.com/ruteri/sealed-config/interfaces"
	"github.com/ruteri/sealed-config/keyset"
	"github.com/ruteri/sealed-config/lifecycle"
	"github.com/ruteri/sealed-config/storage"
	"github.com/urfave/cli/v2"
)

// Engine bundles the components configured by EngineFlags.
type Engine struct {
	Controller *lifecycle.Controller
	Resolver   *keyset.Resolver
	Codec      *envelope.Codec
	Identity   interfaces.IdentityProvider
	Directory  interfaces.Directory
	Lookup     interfaces.PublicKeyLookup
	Store      interfaces.NodeRecordStore
}

// SetupEngine builds the directory, key-set resolver, codec, local identity
// and record store from the command line.
func SetupEngine(cCtx *cli.Context, log *slog.Logger) (*Engine, error) {
	dir, lookup, err := setupDirectory(cCtx, log)
	if err != nil {
		return nil, err
	}

	var cache *keyset.Cache
	if size := cCtx.Int(CacheSizeFlag.Name); size > 0 {
		cache, err = keyset.NewCache(size, cCtx.Duration(CacheMaxAgeFlag.Name))
		if err != nil {
			return nil, err
		}
	}
	resolver := keyset.NewResolver(log, dir, lookup, cache)

	codec, err := envelope.NewCodec(cCtx.Int(FormatVersionFlag.Name))
	if err != nil {
		return nil, err
	}

	var identity interfaces.IdentityProvider
	if keyPath := cCtx.String(IdentityKeyFlag.Name); keyPath != "" {
		local, err := cryptoutils.LoadLocalIdentity(cCtx.String(IdentityNameFlag.Name), keyPath)
		if err != nil {
			return nil, err
		}
		log.Debug("Loaded local identity",
			slog.String("name", local.Name()),
			slog.String("fingerprint", local.PublicKey().Fingerprint().Short()))
		identity = local
	}

	var store interfaces.NodeRecordStore
	if uris := cCtx.StringSlice(StorageFlag.Name); len(uris) > 0 {
		locations := make([]interfaces.StorageBackendLocation, 0, len(uris))
		for _, uri := range uris {
			location, err := interfaces.NewStorageBackendLocation(uri)
			if err != nil {
				return nil, err
			}
			locations = append(locations, location)
		}

		store, err = storage.NewStorageBackendFactory(log).CreateMultiBackend(locations)
		if err != nil {
			return nil, err
		}
	}

	return &Engine{
		Controller: lifecycle.NewController(log, resolver, codec, identity, store, lookup),
		Resolver:   resolver,
		Codec:      codec,
		Identity:   identity,
		Directory:  dir,
		Lookup:     lookup,
		Store:      store,
	}, nil
}

// setupDirectory prefers a static inventory over a remote directory. With a
// DNS zone configured, named principal keys come from DNS instead.
func setupDirectory(cCtx *cli.Context, log *slog.Logger) (interfaces.Directory, interfaces.PublicKeyLookup, error) {
	var (
		dir    interfaces.Directory
		lookup interfaces.PublicKeyLookup
	)

	switch {
	case cCtx.String(InventoryFileFlag.Name) != "":
		inventory, err := directory.LoadInventory(cCtx.String(InventoryFileFlag.Name))
		if err != nil {
			return nil, nil, err
		}
		log.Debug("Loaded inventory",
			slog.Int("hosts", len(inventory.Hosts)),
			slog.Int("users", len(inventory.Users)))
		dir, lookup = inventory, inventory

	case cCtx.String(DirectoryURLFlag.Name) != "":
		remote, err := directory.NewHTTPDirectory(log, directory.HTTPDirectoryConfig{
			BaseURL: cCtx.String(DirectoryURLFlag.Name),
			Token:   cCtx.String(DirectoryTokenFlag.Name),
			Retries: cCtx.Uint64(DirectoryRetriesFlag.Name),
			Timeout: cCtx.Duration(DirectoryTimeoutFlag.Name),
		})
		if err != nil {
			return nil, nil, err
		}
		dir, lookup = remote, remote
	}

	if zone := cCtx.String(DNSZoneFlag.Name); zone != "" {
		dnsLookup, err := directory.NewDNSKeyLookup(log, zone, cCtx.String(DNSServerFlag.Name), cCtx.Duration(DirectoryTimeoutFlag.Name), cCtx.Bool(DNSInsecureFlag.Name))
		if err != nil {
			return nil, nil, err
		}
		lookup = dnsLookup
	}

	return dir, lookup, nil
}

// PolicyFromFlags merges the policy file with the inline policy flags.
func PolicyFromFlags(cCtx *cli.Context) (interfaces.AuthorizationPolicy, error) {
	var policy interfaces.AuthorizationPolicy
	if path := cCtx.String(PolicyFileFlag.Name); path != "" {
		loaded, err := interfaces.LoadAuthorizationPolicy(path)
		if err != nil {
			return policy, err
		}
		policy = loaded
	}

	policy.Users = append(policy.Users, cCtx.StringSlice(PolicyUserFlag.Name)...)
	if search := cCtx.String(PolicySearchFlag.Name); search != "" {
		if policy.SearchQuery != "" {
			return policy, fmt.Errorf("--%s conflicts with the search query in %s", PolicySearchFlag.Name, cCtx.String(PolicyFileFlag.Name))
		}
		policy.SearchQuery = search
	}
	if cCtx.Bool(PolicyPartialSearchFlag.Name) {
		policy.PartialSearch = true
	}
	for _, path := range cCtx.StringSlice(PolicyKeyFileFlag.Name) {
		data, err := os.ReadFile(path)
		if err != nil {
			return policy, fmt.Errorf("failed to read key file: %w", err)
		}
		policy.Keys = append(policy.Keys, string(data))
	}

	return policy, policy.Validate()
}
