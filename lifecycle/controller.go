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

// Operation names used in logs and metrics.
const (
	OpCreate  = "create"
	OpLoad    = "load"
	OpUpdate  = "update"
	OpSeal    = "seal"
	OpUnseal  = "unseal"
	OpReseal  = "reseal"
	OpInspect = "inspect"
)

// ErrNoRecordStore is returned by node record operations on a controller
// built without a record store.
var ErrNoRecordStore = errors.New("no node record store configured")

// KeySetResolver computes the target key set of a policy.
type KeySetResolver interface {
	Resolve(ctx context.Context, policy interfaces.AuthorizationPolicy) (cryptoutils.KeySet, error)
}

// Controller orchestrates envelope creation, decryption and rotation.
type Controller struct {
	resolver KeySetResolver
	codec    *envelope.Codec
	identity interfaces.IdentityProvider
	store    interfaces.NodeRecordStore
	hosts    interfaces.PublicKeyLookup
	log      *slog.Logger
}

// NewController creates a lifecycle controller.
//
// Parameters:
//   - log: Structured logger
//   - resolver: Resolves authorization policies to key sets
//   - codec: Envelope codec carrying the default format version
//   - identity: Local identity used by Load and Update
//   - store: Node record store for Seal/Unseal/Reseal/Inspect, may be nil
//   - hosts: Host key lookup unioned into sealed values, may be nil
func NewController(log *slog.Logger, resolver KeySetResolver, codec *envelope.Codec, identity interfaces.IdentityProvider, store interfaces.NodeRecordStore, hosts interfaces.PublicKeyLookup) *Controller {
	return &Controller{
		resolver: resolver,
		codec:    codec,
		identity: identity,
		store:    store,
		hosts:    hosts,
		log:      log,
	}
}

// Codec returns the controller's envelope codec.
func (c *Controller) Codec() *envelope.Codec {
	return c.codec
}

// Create encrypts value for the policy's key set plus extraKeys.
func (c *Controller) Create(ctx context.Context, value any, policy interfaces.AuthorizationPolicy, extraKeys ...cryptoutils.PublicKey) (env envelope.Envelope, err error) {
	defer func() { metrics.RecordEnvelopeOperation(OpCreate, err) }()

	target, err := c.target(ctx, policy, extraKeys)
	if err != nil {
		return nil, err
	}

	env, err = c.codec.Encrypt(value, target)
	if err != nil {
		return nil, err
	}

	c.log.Info("Created envelope",
		slog.Int("format_version", env.FormatVersion()),
		slog.Int("recipients", target.Len()))

	return env, nil
}

// Load decrypts env with priv, or with the local identity's key when priv is nil.
func (c *Controller) Load(env envelope.Envelope, priv *cryptoutils.PrivateKey) (value json.RawMessage, err error) {
	defer func() { metrics.RecordEnvelopeOperation(OpLoad, err) }()

	key, err := c.privateKey(priv)
	if err != nil {
		return nil, err
	}

	value, err = c.codec.Decrypt(env, key)
	if err != nil {
		c.log.Debug("Failed to load envelope",
			slog.String("fingerprint", key.Public().Fingerprint().Short()),
			"err", err)
		return nil, err
	}
	return value, nil
}

// Update re-encrypts env for the policy's key set plus extraKeys when the
// recipient set or format version changed. Otherwise env is returned as is
// with updated false, without decrypting anything. Re-encryption decrypts
// with the local identity, which must be a current recipient.
func (c *Controller) Update(ctx context.Context, env envelope.Envelope, policy interfaces.AuthorizationPolicy, extraKeys ...cryptoutils.PublicKey) (result envelope.Envelope, updated bool, err error) {
	defer func() { metrics.RecordEnvelopeOperation(OpUpdate, err) }()

	if env == nil {
		return nil, false, fmt.Errorf("%w: no envelope to update", interfaces.ErrMalformedEnvelope)
	}

	target, err := c.target(ctx, policy, extraKeys)
	if err != nil {
		return nil, false, err
	}

	if !c.codec.NeedsUpdate(env, target) {
		c.log.Debug("Envelope up to date",
			slog.Int("format_version", env.FormatVersion()),
			slog.Int("recipients", target.Len()))
		return env, false, nil
	}

	if c.identity == nil {
		return nil, false, fmt.Errorf("%w: no local identity", interfaces.ErrNotAuthorized)
	}

	value, err := c.codec.Decrypt(env, c.identity.PrivateKey())
	if err != nil {
		return nil, false, err
	}

	result, err = c.codec.Encrypt(value, target)
	if err != nil {
		return nil, false, err
	}

	c.log.Info("Updated envelope",
		slog.Int("from_version", env.FormatVersion()),
		slog.Int("to_version", result.FormatVersion()),
		slog.Int("previous_recipients", len(env.Recipients())),
		slog.Int("recipients", target.Len()))

	return result, true, nil
}

// Exists reports whether raw is a well-formed envelope of a supported
// version, regardless of whether the local identity can decrypt it.
func (c *Controller) Exists(raw []byte) bool {
	return envelope.Exists(raw)
}

func (c *Controller) target(ctx context.Context, policy interfaces.AuthorizationPolicy, extraKeys []cryptoutils.PublicKey) (cryptoutils.KeySet, error) {
	target, err := c.resolver.Resolve(ctx, policy)
	if err != nil {
		return cryptoutils.KeySet{}, err
	}
	target.Add(extraKeys...)
	return target, nil
}

func (c *Controller) privateKey(priv *cryptoutils.PrivateKey) (cryptoutils.PrivateKey, error) {
	if priv != nil {
		return *priv, nil
	}
	if c.identity == nil {
		return cryptoutils.PrivateKey{}, fmt.Errorf("%w: no local identity", interfaces.ErrNotAuthorized)
	}
	return c.identity.PrivateKey(), nil
}
