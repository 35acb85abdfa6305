// Package interfaces defines core interfaces and types for the sealed
// configuration system, separating interface definitions from implementations.
//
// # Directory Interfaces
//
// Directory: Resolves search queries (e.g. "role:web") to host records carrying
// PEM-encoded public keys.
//
// PublicKeyLookup: Fetches the public key of an individually named host or user.
//
// # Storage Interfaces
//
// NodeRecordStore: Persists raw field values on a managed host's configuration
// record across multiple backend types (file, S3, Vault, badger).
//
// StorageBackendFactory: Creates record stores from URI strings and manages
// multi-backend configurations for redundant storage.
//
// # Authorization
//
// AuthorizationPolicy: Per-operation declaration of explicit keys, a directory
// search query and named users whose keys become envelope recipients.
//
// # Errors
//
// All failure kinds surfaced by the engine are sentinel errors defined here and
// are matched with errors.Is.
package interfaces
