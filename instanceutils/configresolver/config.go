package configresolver

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/ruteri/sealed-config/cryptoutils"
	"github.com/ruteri/sealed-config/envelope"
	"github.com/ruteri/sealed-config/interfaces"
)

// Result is a node record with its envelopes replaced by plaintext.
type Result struct {
	// Record is the rendered record.
	Record json.RawMessage

	// Decrypted lists the paths of the envelopes that were replaced.
	Decrypted []string

	// Skipped lists the paths of envelopes the key is not a recipient of.
	// They are left in Record as is.
	Skipped []string
}

// ResolveRecord walks a node record and replaces every envelope the private
// key can decrypt with its plaintext value.
//
// Parameters:
//   - log: Structured logger for operational insights
//   - codec: Codec used to decrypt envelopes of any supported version
//   - priv: The node's private key
//   - record: The node record, any JSON document
//   - strict: Fail with ErrNotAuthorized instead of skipping unreadable envelopes
//
// Returns:
//   - The rendered record and the paths that were decrypted or skipped
//   - Error if the record is not JSON or an envelope fails to decrypt
func ResolveRecord(log *slog.Logger, codec *envelope.Codec, priv cryptoutils.PrivateKey, record []byte, strict bool) (*Result, error) {
	if !json.Valid(record) {
		return nil, fmt.Errorf("node record is not valid JSON")
	}

	r := &resolver{
		log:    log,
		codec:  codec,
		priv:   priv,
		fp:     priv.Public().Fingerprint(),
		strict: strict,
		result: &Result{},
	}

	rendered, err := r.resolve(bytes.TrimSpace(record), "")
	if err != nil {
		return nil, err
	}
	r.result.Record = rendered
	return r.result, nil
}

type resolver struct {
	log    *slog.Logger
	codec  *envelope.Codec
	priv   cryptoutils.PrivateKey
	fp     cryptoutils.Fingerprint
	strict bool
	result *Result
}

func (r *resolver) resolve(raw json.RawMessage, path string) (json.RawMessage, error) {
	if len(raw) == 0 {
		return raw, nil
	}

	switch raw[0] {
	case '{':
		if env, err := envelope.Parse(raw); err == nil {
			return r.open(env, raw, path)
		}

		var fields map[string]json.RawMessage
		if err := json.Unmarshal(raw, &fields); err != nil {
			return nil, fmt.Errorf("invalid object at %q: %w", path, err)
		}
		for key, value := range fields {
			resolved, err := r.resolve(bytes.TrimSpace(value), join(path, key))
			if err != nil {
				return nil, err
			}
			fields[key] = resolved
		}
		return json.Marshal(fields)

	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, fmt.Errorf("invalid array at %q: %w", path, err)
		}
		for i, value := range items {
			resolved, err := r.resolve(bytes.TrimSpace(value), join(path, strconv.Itoa(i)))
			if err != nil {
				return nil, err
			}
			items[i] = resolved
		}
		return json.Marshal(items)

	default:
		return raw, nil
	}
}

func (r *resolver) open(env envelope.Envelope, raw json.RawMessage, path string) (json.RawMessage, error) {
	if !env.HasRecipient(r.fp) {
		if r.strict {
			return nil, fmt.Errorf("%w: envelope at %q", interfaces.ErrNotAuthorized, path)
		}
		r.log.Debug("Skipping envelope for other recipients", slog.String("path", path))
		r.result.Skipped = append(r.result.Skipped, path)
		return raw, nil
	}

	value, err := r.codec.Decrypt(env, r.priv)
	if err != nil {
		r.log.Error("Failed to decrypt envelope", "err", err, slog.String("path", path))
		return nil, fmt.Errorf("failed to decrypt envelope at %q: %w", path, err)
	}

	r.result.Decrypted = append(r.result.Decrypted, path)
	return value, nil
}

func join(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}
