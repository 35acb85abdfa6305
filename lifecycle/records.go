package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ruteri/sealed-config/cryptoutils"
	"github.com/ruteri/sealed-config/envelope"
	"github.com/ruteri/sealed-config/interfaces"
	"github.com/ruteri/sealed-config/metrics"
)

// Status describes a stored value without decrypting it.
type Status struct {
	Node          interfaces.NodeIdentity   `json:"node"`
	Path          interfaces.FieldPath      `json:"path"`
	Present       bool                      `json:"present"`
	Exists        bool                      `json:"exists"`
	FormatVersion int                       `json:"format_version,omitempty"`
	Recipients    []cryptoutils.Fingerprint `json:"recipients,omitempty"`
	Readable      bool                      `json:"readable"`
	Outdated      bool                      `json:"outdated"`
}

// Seal encrypts value for the policy plus the node's own host key and stores
// the envelope at path on the node's record.
func (c *Controller) Seal(ctx context.Context, node interfaces.NodeIdentity, path interfaces.FieldPath, value any, policy interfaces.AuthorizationPolicy) (env envelope.Envelope, err error) {
	defer func() { metrics.RecordEnvelopeOperation(OpSeal, err) }()

	if err := c.checkRecordAddress(node, path); err != nil {
		return nil, err
	}

	extra, err := c.hostKeys(ctx, node)
	if err != nil {
		return nil, err
	}

	env, err = c.Create(ctx, value, policy, extra...)
	if err != nil {
		return nil, err
	}

	if err := c.save(ctx, node, path, env); err != nil {
		return nil, err
	}

	c.log.Info("Sealed value",
		slog.String("node", node.String()),
		slog.String("path", path.String()),
		slog.Int("recipients", len(env.Recipients())))

	return env, nil
}

// Unseal loads the envelope at path and decrypts it with the local identity.
func (c *Controller) Unseal(ctx context.Context, node interfaces.NodeIdentity, path interfaces.FieldPath) (value json.RawMessage, err error) {
	defer func() { metrics.RecordEnvelopeOperation(OpUnseal, err) }()

	env, err := c.loadEnvelope(ctx, node, path)
	if err != nil {
		return nil, err
	}

	return c.Load(env, nil)
}

// Reseal updates the envelope at path for the policy plus the node's host
// key and stores it only if it changed.
func (c *Controller) Reseal(ctx context.Context, node interfaces.NodeIdentity, path interfaces.FieldPath, policy interfaces.AuthorizationPolicy) (env envelope.Envelope, updated bool, err error) {
	defer func() { metrics.RecordEnvelopeOperation(OpReseal, err) }()

	current, err := c.loadEnvelope(ctx, node, path)
	if err != nil {
		return nil, false, err
	}

	extra, err := c.hostKeys(ctx, node)
	if err != nil {
		return nil, false, err
	}

	env, updated, err = c.Update(ctx, current, policy, extra...)
	if err != nil {
		return nil, false, err
	}
	if !updated {
		return env, false, nil
	}

	if err := c.save(ctx, node, path, env); err != nil {
		return nil, false, err
	}

	c.log.Info("Resealed value",
		slog.String("node", node.String()),
		slog.String("path", path.String()),
		slog.Int("recipients", len(env.Recipients())))

	return env, true, nil
}

// Inspect reports what is stored at path. A missing field is not an error.
func (c *Controller) Inspect(ctx context.Context, node interfaces.NodeIdentity, path interfaces.FieldPath) (status Status, err error) {
	defer func() { metrics.RecordEnvelopeOperation(OpInspect, err) }()

	status = Status{Node: node, Path: path}
	if err := c.checkRecordAddress(node, path); err != nil {
		return status, err
	}

	raw, err := c.store.LoadField(ctx, node, path)
	if errors.Is(err, interfaces.ErrFieldNotFound) {
		return status, nil
	}
	if err != nil {
		return status, err
	}
	status.Present = true

	env, err := envelope.Parse(raw)
	if err != nil {
		c.log.Debug("Stored value is not an envelope",
			slog.String("node", node.String()),
			slog.String("path", path.String()),
			"err", err)
		return status, nil
	}

	status.Exists = true
	status.FormatVersion = env.FormatVersion()
	status.Recipients = env.Recipients()
	status.Outdated = env.FormatVersion() != c.codec.DefaultVersion
	if c.identity != nil {
		status.Readable = env.HasRecipient(c.identity.PublicKey().Fingerprint())
	}

	return status, nil
}

func (c *Controller) checkRecordAddress(node interfaces.NodeIdentity, path interfaces.FieldPath) error {
	if c.store == nil {
		return ErrNoRecordStore
	}
	if err := node.Validate(); err != nil {
		return err
	}
	return path.Validate()
}

func (c *Controller) loadEnvelope(ctx context.Context, node interfaces.NodeIdentity, path interfaces.FieldPath) (envelope.Envelope, error) {
	if err := c.checkRecordAddress(node, path); err != nil {
		return nil, err
	}

	raw, err := c.store.LoadField(ctx, node, path)
	if err != nil {
		return nil, err
	}
	return envelope.Parse(raw)
}

func (c *Controller) save(ctx context.Context, node interfaces.NodeIdentity, path interfaces.FieldPath, env envelope.Envelope) error {
	raw, err := envelope.Marshal(env)
	if err != nil {
		return err
	}
	if err := c.store.SaveField(ctx, node, path, raw); err != nil {
		return fmt.Errorf("failed to store envelope for %s at %s: %w", node, path, err)
	}
	return nil
}

// hostKeys returns the node's own key, so a sealed value is always readable
// by the host it is stored on.
func (c *Controller) hostKeys(ctx context.Context, node interfaces.NodeIdentity) ([]cryptoutils.PublicKey, error) {
	if c.hosts == nil {
		return nil, nil
	}

	key, err := c.hosts.LookupPublicKey(ctx, interfaces.PrincipalHost, node.String())
	if err != nil {
		return nil, fmt.Errorf("%w: host %s: %w", interfaces.ErrDirectoryLookup, node, err)
	}
	return []cryptoutils.PublicKey{key}, nil
}
