package flags

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/ruteri/sealed-config/api"
	"github.com/ruteri/sealed-config/common"
	"github.com/ruteri/sealed-config/envelope"
	"github.com/urfave/cli/v2"
)

func SetupLogger(cCtx *cli.Context) (log *slog.Logger) {
	logJSON := cCtx.Bool(LogJsonFlag.Name)
	logDebug := cCtx.Bool(LogDebugFlag.Name)
	logUID := cCtx.Bool(LogUidFlag.Name)
	logService := cCtx.String(LogServiceFlag.Name)

	logger := common.SetupLogger(&common.LoggingOpts{
		Debug:   logDebug,
		JSON:    logJSON,
		Service: logService,
		Version: common.Version,
	})

	if logUID {
		id := uuid.Must(uuid.NewRandom())
		logger = logger.With("uid", id.String())
	}
	return logger
}

// ConfigureServer builds the server config, loading the caller tokens file.
func ConfigureServer(cCtx *cli.Context, logger *slog.Logger) (*api.HTTPServerConfig, error) {
	drainDuration := time.Duration(cCtx.Int64(DrainSecondsFlag.Name)) * time.Second

	callers, err := api.LoadCallerTokens(cCtx.String(APITokensFlag.Name))
	if err != nil {
		return nil, err
	}

	return &api.HTTPServerConfig{
		ListenAddr:               cCtx.String(ListenAddrFlag.Name),
		MetricsAddr:              cCtx.String(MetricsAddrFlag.Name),
		Log:                      logger,
		EnablePprof:              cCtx.Bool(PprofFlag.Name),
		ServeDirectory:           cCtx.Bool(ServeDirectoryFlag.Name),
		Callers:                  callers,
		DrainDuration:            drainDuration,
		GracefulShutdownDuration: 30 * time.Second,
		ReadTimeout:              60 * time.Second,
		WriteTimeout:             30 * time.Second,
	}, nil
}

var LogJsonFlag = &cli.BoolFlag{
	Name:  "log-json",
	Value: false,
	Usage: "log in JSON format",
}
var LogDebugFlag = &cli.BoolFlag{
	Name:  "log-debug",
	Value: false,
	Usage: "log debug messages",
}
var LogUidFlag = &cli.BoolFlag{
	Name:  "log-uid",
	Value: false,
	Usage: "generate a uuid and add to all log messages",
}
var LogServiceFlag = &cli.StringFlag{
	Name:  "log-service",
	Value: "sealctl",
	Usage: "add 'service' tag to logs",
}

var InventoryFileFlag = &cli.StringFlag{
	Name:    "inventory-file",
	EnvVars: []string{"SEALCTL_INVENTORY"},
	Usage:   "YAML inventory of hosts and users used as the directory",
}
var DirectoryURLFlag = &cli.StringFlag{
	Name:    "directory-url",
	EnvVars: []string{"SEALCTL_DIRECTORY_URL"},
	Usage:   "base URL of a remote directory service (ignored when --inventory-file is set)",
}
var DirectoryTokenFlag = &cli.StringFlag{
	Name:    "directory-token",
	EnvVars: []string{"SEALCTL_DIRECTORY_TOKEN"},
	Usage:   "bearer token for the remote directory",
}
var DirectoryRetriesFlag = &cli.Uint64Flag{
	Name:  "directory-retries",
	Value: 0,
	Usage: "extra attempts for failed directory requests, 0 disables retrying",
}
var DirectoryTimeoutFlag = &cli.DurationFlag{
	Name:  "directory-timeout",
	Value: 10 * time.Second,
	Usage: "timeout of a single directory request",
}
var DNSZoneFlag = &cli.StringFlag{
	Name:  "dns-zone",
	Usage: "resolve named principal keys from TXT records under this zone",
}
var DNSServerFlag = &cli.StringFlag{
	Name:  "dns-server",
	Value: "127.0.0.53:53",
	Usage: "DNSSEC-validating resolver used with --dns-zone; answers must carry the AD bit, so the path to it must be trusted",
}
var DNSInsecureFlag = &cli.BoolFlag{
	Name:  "dns-insecure",
	Value: false,
	Usage: "accept DNS key records not validated by DNSSEC (an on-path attacker can substitute keys)",
}

var IdentityKeyFlag = &cli.StringFlag{
	Name:    "identity-key",
	EnvVars: []string{"SEALCTL_IDENTITY_KEY"},
	Usage:   "PEM file with the local identity's private key",
}
var IdentityNameFlag = &cli.StringFlag{
	Name:  "identity-name",
	Value: "local",
	Usage: "principal name of the local identity, used in logs",
}

var StorageFlag = &cli.StringSliceFlag{
	Name:    "storage",
	EnvVars: []string{"SEALCTL_STORAGE"},
	Usage:   "node record location URI (file://, s3://, vault://, badger://), repeatable",
}

var CacheSizeFlag = &cli.IntFlag{
	Name:  "cache-size",
	Value: 128,
	Usage: "key-set cache capacity in queries, 0 disables the cache",
}
var CacheMaxAgeFlag = &cli.DurationFlag{
	Name:  "cache-max-age",
	Value: 0,
	Usage: "expire cached key sets after this long, 0 keeps them until evicted",
}
var FormatVersionFlag = &cli.IntFlag{
	Name:  "format-version",
	Value: envelope.DefaultFormatVersion,
	Usage: "envelope format version written by create, update and seal",
}

var PolicyFileFlag = &cli.StringFlag{
	Name:  "policy-file",
	Usage: "YAML authorization policy",
}
var PolicyUserFlag = &cli.StringSliceFlag{
	Name:  "user",
	Usage: "add a named user to the policy, repeatable",
}
var PolicySearchFlag = &cli.StringFlag{
	Name:  "search",
	Usage: "add every host matching this directory query to the policy",
}
var PolicyPartialSearchFlag = &cli.BoolFlag{
	Name:  "partial-search",
	Usage: "request only public keys from the directory search",
}
var PolicyKeyFileFlag = &cli.StringSliceFlag{
	Name:  "key-file",
	Usage: "add a PEM public key file to the policy, repeatable",
}

var ListenAddrFlag = &cli.StringFlag{
	Name:  "listen-addr",
	Value: "127.0.0.1:8080",
	Usage: "address to listen on for API",
}
var PprofFlag = &cli.BoolFlag{
	Name:  "pprof",
	Value: false,
	Usage: "enable pprof debug endpoint",
}
var DrainSecondsFlag = &cli.Int64Flag{
	Name:  "drain-seconds",
	Value: 45,
	Usage: "seconds to wait in drain HTTP request",
}
var MetricsAddrFlag = &cli.StringFlag{
	Name:  "metrics-addr",
	Value: "127.0.0.1:8090",
	Usage: "address to listen on for Prometheus metrics",
}
var ServeDirectoryFlag = &cli.BoolFlag{
	Name:  "serve-directory",
	Value: false,
	Usage: "expose the configured directory under /api/v1/directory to callers listed in --api-tokens",
}

var APITokensFlag = &cli.StringFlag{
	Name:     "api-tokens",
	EnvVars:  []string{"SEALCTL_API_TOKENS"},
	Required: true,
	Usage:    "YAML file of callers and SHA-256 digests of their bearer tokens (see sealctl token)",
}

var LogFlags = []cli.Flag{
	LogJsonFlag,
	LogDebugFlag,
	LogUidFlag,
	LogServiceFlag,
}

var EngineFlags = []cli.Flag{
	InventoryFileFlag,
	DirectoryURLFlag,
	DirectoryTokenFlag,
	DirectoryRetriesFlag,
	DirectoryTimeoutFlag,
	DNSZoneFlag,
	DNSServerFlag,
	DNSInsecureFlag,
	IdentityKeyFlag,
	IdentityNameFlag,
	StorageFlag,
	CacheSizeFlag,
	CacheMaxAgeFlag,
	FormatVersionFlag,
}

var PolicyFlags = []cli.Flag{
	PolicyFileFlag,
	PolicyUserFlag,
	PolicySearchFlag,
	PolicyPartialSearchFlag,
	PolicyKeyFileFlag,
}

var ServerFlags = []cli.Flag{
	ListenAddrFlag,
	PprofFlag,
	DrainSecondsFlag,
	MetricsAddrFlag,
	ServeDirectoryFlag,
	APITokensFlag,
}
