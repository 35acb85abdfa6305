// Package common holds process-wide helpers shared by the commands and the
// HTTP server: logger construction, build version and environment lookups.
package common

import "os"

// PackageName prefixes exported metric names.
const PackageName = "sealed_config"

// Version is set at build time with -ldflags "-X github.com/ruteri/sealed-config/common.Version=...".
var Version = "dev"

// GetEnv returns the environment variable or defaultValue when unset or empty.
func GetEnv(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return defaultValue
}
