// Package configresolver renders a node's configuration record for the node
// itself.
//
// Sealed values are stored in node records as envelopes next to plain
// configuration. ResolveRecord walks the whole record and replaces each
// envelope the node's key can open with the decrypted JSON value, so the
// result can be handed to the service being configured:
//
//	{"db": {"host": "db-01", "password": {"format_version": 1, ...}}}
//
// becomes
//
//	{"db": {"host": "db-01", "password": "hunter2"}}
//
// Envelopes sealed for other principals are left in place and reported in
// Result.Skipped, or rejected with interfaces.ErrNotAuthorized in strict mode.
//
// # Usage Example
//
//	codec, _ := envelope.NewCodec(envelope.DefaultFormatVersion)
//	result, err := configresolver.ResolveRecord(logger, codec, identity.PrivateKey(), record, false)
//	if err != nil {
//		return err
//	}
//	os.WriteFile("/etc/app/config.json", result.Record, 0o600)
package configresolver
