package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/ruteri/sealed-config/interfaces"
)

// FileBackend stores each node record as a JSON document on the local
// file system at <baseDir>/<node>.json.
type FileBackend struct {
	baseDir     string
	log         *slog.Logger
	locationURI string

	// mu serializes read-modify-write cycles on records within this process.
	mu sync.Mutex
}

// NewFileBackend creates a new file storage backend using the specified base directory.
// The directory is created if it doesn't exist.
func NewFileBackend(baseDir string, log *slog.Logger) (*FileBackend, error) {
	if err := os.MkdirAll(baseDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &FileBackend{
		baseDir:     baseDir,
		log:         log,
		locationURI: fmt.Sprintf("file://%s", baseDir),
	}, nil
}

// LoadField reads a field from the node's record.
// Returns ErrFieldNotFound if the record or the field doesn't exist.
func (b *FileBackend) LoadField(ctx context.Context, node interfaces.NodeIdentity, path interfaces.FieldPath) ([]byte, error) {
	if err := validateAddress(node, path); err != nil {
		return nil, err
	}

	record, err := b.readRecord(node)
	if err != nil {
		return nil, err
	}

	value, err := loadRecordField(record, path)
	if err != nil {
		return nil, err
	}

	b.log.Debug("Loaded field from file",
		slog.String("node", node.String()),
		slog.String("path", path.String()),
		slog.Int("size", len(value)))

	return value, nil
}

// SaveField writes a field to the node's record, creating the record if needed.
// The updated record replaces the previous one atomically.
func (b *FileBackend) SaveField(ctx context.Context, node interfaces.NodeIdentity, path interfaces.FieldPath, raw []byte) error {
	if err := validateAddress(node, path); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	record, err := b.readRecord(node)
	if err != nil {
		return err
	}

	updated, err := saveRecordField(record, path, raw)
	if err != nil {
		return err
	}

	if err := b.writeRecord(node, updated); err != nil {
		return err
	}

	b.log.Debug("Stored field in file",
		slog.String("node", node.String()),
		slog.String("path", path.String()),
		slog.String("file", b.recordPath(node)))

	return nil
}

// Available checks if the file backend is accessible by verifying the base directory exists.
func (b *FileBackend) Available(ctx context.Context) bool {
	_, err := os.Stat(b.baseDir)
	if err != nil {
		b.log.Debug("File backend unavailable", "err", err)
		return false
	}
	return true
}

// Name returns a unique identifier for this storage backend.
func (b *FileBackend) Name() string {
	return fmt.Sprintf("file-%s", filepath.Base(b.baseDir))
}

// LocationURI returns the URI that identifies this storage backend.
func (b *FileBackend) LocationURI() string {
	return b.locationURI
}

func (b *FileBackend) recordPath(node interfaces.NodeIdentity) string {
	return filepath.Join(b.baseDir, node.String()+".json")
}

func (b *FileBackend) readRecord(node interfaces.NodeIdentity) ([]byte, error) {
	data, err := os.ReadFile(b.recordPath(node))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read record: %w", err)
	}
	return data, nil
}

func (b *FileBackend) writeRecord(node interfaces.NodeIdentity, data []byte) error {
	tmp, err := os.CreateTemp(b.baseDir, "."+node.String()+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary record: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write record: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}

	if err := os.Rename(tmp.Name(), b.recordPath(node)); err != nil {
		return fmt.Errorf("failed to replace record: %w", err)
	}
	return nil
}

func validateAddress(node interfaces.NodeIdentity, path interfaces.FieldPath) error {
	if err := node.Validate(); err != nil {
		return err
	}
	return path.Validate()
}
