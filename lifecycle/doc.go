// Package lifecycle creates, reads and rotates sealed values.
//
// A Controller combines the key-set resolver, the envelope codec and the
// local identity. Create and Update compute the target key set from an
// authorization policy; Update re-encrypts only when the recipient set or
// the format version changed, and always decrypts with the local identity so
// that only current recipients can rotate a value.
//
// Seal, Unseal, Reseal and Inspect apply the same operations to envelopes
// stored on node records through an interfaces.NodeRecordStore.
package lifecycle
