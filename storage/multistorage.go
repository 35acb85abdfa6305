package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/ruteri/sealed-config/interfaces"
)

// MultiStorageBackend implements interfaces.NodeRecordStore using multiple
// backends: writes go to every available backend, reads fall back in order.
type MultiStorageBackend struct {
	backends []interfaces.NodeRecordStore
	log      *slog.Logger
}

// NewMultiStorageBackend creates a new multi-storage backend with fallback.
func NewMultiStorageBackend(backends []interfaces.NodeRecordStore, logger *slog.Logger) *MultiStorageBackend {
	if logger == nil {
		logger = slog.Default()
	}

	return &MultiStorageBackend{
		backends: backends,
		log:      logger,
	}
}

// LoadField returns the field from the first available backend that has it.
// ErrFieldNotFound is returned only when every consulted backend reports the
// field missing.
func (m *MultiStorageBackend) LoadField(ctx context.Context, node interfaces.NodeIdentity, path interfaces.FieldPath) ([]byte, error) {
	start := time.Now()
	var errs *multierror.Error
	notFound := 0

	for _, backend := range m.backends {
		if !backend.Available(ctx) {
			m.log.Debug("Backend unavailable",
				slog.String("backend_name", backend.Name()),
				slog.String("node", node.String()))
			errs = multierror.Append(errs, fmt.Errorf("%s: %w", backend.Name(), interfaces.ErrBackendUnavailable))
			continue
		}

		data, err := backend.LoadField(ctx, node, path)
		if err == nil {
			m.log.Debug("Loaded field",
				slog.String("backend_name", backend.Name()),
				slog.String("node", node.String()),
				slog.String("path", path.String()),
				slog.Duration("duration", time.Since(start)))
			return data, nil
		}

		if errors.Is(err, interfaces.ErrFieldNotFound) {
			notFound++
		}
		errs = multierror.Append(errs, fmt.Errorf("%s: %w", backend.Name(), err))
		m.log.Debug("Failed to load from backend",
			slog.String("backend_name", backend.Name()),
			slog.String("node", node.String()),
			"err", err)
	}

	if notFound > 0 && notFound == len(errs.WrappedErrors()) {
		return nil, interfaces.ErrFieldNotFound
	}

	m.log.Error("All backends failed to load field",
		slog.String("node", node.String()),
		slog.String("path", path.String()),
		slog.Int("failed_backends", len(errs.WrappedErrors())),
		slog.Duration("duration", time.Since(start)))

	if errs.ErrorOrNil() == nil {
		return nil, fmt.Errorf("%w: no storage backends configured", interfaces.ErrBackendUnavailable)
	}
	return nil, fmt.Errorf("all backends failed to load %s/%s: %w", node, path, errs)
}

// SaveField stores the field in all available backends. It succeeds when at
// least one backend accepted the write.
func (m *MultiStorageBackend) SaveField(ctx context.Context, node interfaces.NodeIdentity, path interfaces.FieldPath, raw []byte) error {
	start := time.Now()
	var errs *multierror.Error
	stored := 0

	for _, backend := range m.backends {
		if !backend.Available(ctx) {
			m.log.Debug("Backend unavailable", slog.String("backend_name", backend.Name()))
			errs = multierror.Append(errs, fmt.Errorf("%s: %w", backend.Name(), interfaces.ErrBackendUnavailable))
			continue
		}

		if err := backend.SaveField(ctx, node, path, raw); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("%s: %w", backend.Name(), err))
			m.log.Warn("Failed to store to backend",
				slog.String("backend_name", backend.Name()),
				slog.String("node", node.String()),
				"err", err)
			continue
		}
		stored++
	}

	if stored == 0 {
		m.log.Error("All backends failed to store field",
			slog.String("node", node.String()),
			slog.String("path", path.String()),
			slog.Int("failed_backends", len(errs.WrappedErrors())),
			slog.Duration("duration", time.Since(start)))
		if errs.ErrorOrNil() == nil {
			return fmt.Errorf("%w: no storage backends configured", interfaces.ErrBackendUnavailable)
		}
		return fmt.Errorf("all backends failed to store %s/%s: %w", node, path, errs)
	}

	m.log.Info("Stored field",
		slog.String("node", node.String()),
		slog.String("path", path.String()),
		slog.Int("backends", stored),
		slog.Duration("duration", time.Since(start)))

	return nil
}

// Available checks if any backend is available.
func (m *MultiStorageBackend) Available(ctx context.Context) bool {
	for _, backend := range m.backends {
		if backend.Available(ctx) {
			return true
		}
	}
	return false
}

// Name returns the name of this backend.
func (m *MultiStorageBackend) Name() string {
	return "multi-storage"
}

// LocationURI returns a combined URI of all wrapped backends.
func (m *MultiStorageBackend) LocationURI() string {
	locations := make([]string, 0, len(m.backends))
	for _, backend := range m.backends {
		locations = append(locations, backend.LocationURI())
	}
	return "multi:[" + strings.Join(locations, ",") + "]"
}
