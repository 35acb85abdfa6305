// Package storage persists node configuration records behind pluggable backends.
//
// A node record is a JSON object owned by one managed host. Sealed envelopes
// and plain values live at dotted field paths inside it, e.g.
// "secrets.db_password". Every backend implements interfaces.NodeRecordStore:
//
//   - FileBackend stores <dir>/<node>.json on the local file system
//   - S3Backend stores <prefix>/<node>.json objects in S3 or a compatible service
//   - VaultBackend stores each field as a KV v2 secret
//   - BadgerBackend stores records in an embedded badger database
//
// # Storage URI Format
//
// Backends are specified using URI format:
//
//	[scheme]://[auth@]host[:port][/path][?params]
//
// Supported URI schemes:
//
//   - file:///var/lib/sealed-config/nodes/
//   - s3://bucket-name/prefix/?region=us-west-2&endpoint=http://minio:9000&path_style=true
//   - vault://vault.example.com:8200/secret/nodes
//   - badger:///var/lib/sealed-config/db
//
// # Vault Storage
//
// Vault uses token authentication, taken from the URI user info or the
// VAULT_TOKEN environment variable. Fields are written to
// {mount}/data/{path}/{node}/{field segments...} with the raw JSON value
// under the "content" key. Set tls=false for plain HTTP development servers.
//
// # Redundancy
//
// StorageBackendFactory.CreateMultiBackend combines several locations into a
// MultiStorageBackend. Writes go to every available backend and succeed if at
// least one accepts them; reads return the first value found, in order.
package storage
