package storage

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/vault/api"
	"github.com/ruteri/sealed-config/interfaces"
)

// VaultConfig holds the connection settings of a Vault backend.
type VaultConfig struct {
	Address  string // e.g. https://vault.example.com:8200
	Mount    string // KV v2 mount, e.g. "secret"
	DataPath string // prefix within the mount, e.g. "nodes"
	Token    string // falls back to VAULT_TOKEN when empty
	Timeout  time.Duration
}

// VaultBackend stores node record fields in a HashiCorp Vault KV v2 engine.
// Each field is its own secret at <mount>/data/<data path>/<node>/<field path>
// holding the raw JSON value under the "content" key.
type VaultBackend struct {
	client      *api.Client
	mountPath   string
	dataPath    string
	log         *slog.Logger
	locationURI string
}

// NewVaultBackend creates a new Vault storage backend using token authentication.
func NewVaultBackend(cfg VaultConfig, log *slog.Logger) (*VaultBackend, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("%w: missing Vault address", interfaces.ErrInvalidLocationURI)
	}
	if cfg.Mount == "" {
		cfg.Mount = "secret"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	config := api.DefaultConfig()
	config.Address = cfg.Address
	config.HttpClient = &http.Client{
		Transport: http.DefaultTransport.(*http.Transport).Clone(),
		Timeout:   cfg.Timeout,
	}

	client, err := api.NewClient(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vault client: %w", err)
	}
	if cfg.Token != "" {
		client.SetToken(cfg.Token)
	}

	mountPath := strings.Trim(cfg.Mount, "/")
	dataPath := strings.Trim(cfg.DataPath, "/")

	return &VaultBackend{
		client:      client,
		mountPath:   mountPath,
		dataPath:    dataPath,
		log:         log,
		locationURI: fmt.Sprintf("vault://%s/%s/%s", strings.TrimPrefix(strings.TrimPrefix(cfg.Address, "https://"), "http://"), mountPath, dataPath),
	}, nil
}

// LoadField reads a field secret from Vault.
// Returns ErrFieldNotFound if the secret doesn't exist.
func (b *VaultBackend) LoadField(ctx context.Context, node interfaces.NodeIdentity, path interfaces.FieldPath) ([]byte, error) {
	if err := validateAddress(node, path); err != nil {
		return nil, err
	}

	start := time.Now()
	secretPath := b.secretPath(node, path)

	secret, err := b.client.Logical().ReadWithContext(ctx, secretPath)
	if err != nil {
		b.log.Error("Failed to read from Vault",
			slog.String("path", secretPath),
			"err", err)
		return nil, fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}

	if secret == nil || secret.Data == nil {
		b.log.Debug("Field not found in Vault", slog.String("path", secretPath))
		return nil, interfaces.ErrFieldNotFound
	}

	// KV v2 nests the written map under "data"; deleted versions carry a nil data map.
	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok || data == nil {
		return nil, interfaces.ErrFieldNotFound
	}

	content, ok := data["content"].(string)
	if !ok {
		b.log.Error("Invalid content format in Vault data", slog.String("path", secretPath))
		return nil, fmt.Errorf("invalid content format in Vault data at %s", secretPath)
	}

	b.log.Debug("Loaded field from Vault",
		slog.String("path", secretPath),
		slog.Duration("duration", time.Since(start)))

	return []byte(content), nil
}

// SaveField writes a field secret to Vault, creating a new KV version.
func (b *VaultBackend) SaveField(ctx context.Context, node interfaces.NodeIdentity, path interfaces.FieldPath, raw []byte) error {
	if err := validateAddress(node, path); err != nil {
		return err
	}

	start := time.Now()
	secretPath := b.secretPath(node, path)

	secretData := map[string]interface{}{
		"data": map[string]interface{}{
			"content": string(raw),
		},
	}

	if _, err := b.client.Logical().WriteWithContext(ctx, secretPath, secretData); err != nil {
		b.log.Error("Failed to write to Vault",
			slog.String("path", secretPath),
			"err", err)
		return fmt.Errorf("%w: %v", interfaces.ErrBackendUnavailable, err)
	}

	b.log.Debug("Stored field in Vault",
		slog.String("path", secretPath),
		slog.Duration("duration", time.Since(start)))

	return nil
}

// Available checks if the Vault backend is accessible.
// It uses the health endpoint to verify that Vault is initialized and unsealed.
func (b *VaultBackend) Available(ctx context.Context) bool {
	healthCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	health, err := b.client.Sys().HealthWithContext(healthCtx)
	if err != nil {
		b.log.Debug("Vault health check failed", "err", err)
		return false
	}

	if !health.Initialized || health.Sealed {
		b.log.Debug("Vault is not available",
			slog.Bool("initialized", health.Initialized),
			slog.Bool("sealed", health.Sealed))
		return false
	}

	return true
}

// Name returns a unique identifier for this storage backend.
func (b *VaultBackend) Name() string {
	return fmt.Sprintf("vault-%s-%s", b.mountPath, b.dataPath)
}

// LocationURI returns the URI that identifies this storage backend.
func (b *VaultBackend) LocationURI() string {
	return b.locationURI
}

func (b *VaultBackend) secretPath(node interfaces.NodeIdentity, path interfaces.FieldPath) string {
	parts := []string{b.mountPath, "data"}
	if b.dataPath != "" {
		parts = append(parts, b.dataPath)
	}
	parts = append(parts, node.String())
	parts = append(parts, path.Segments()...)
	return strings.Join(parts, "/")
}
