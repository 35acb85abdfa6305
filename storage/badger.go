package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/ruteri/sealed-config/interfaces"
)

const badgerRecordPrefix = "node/"

// BadgerBackend stores node records in an embedded badger database, one key
// per node holding the JSON record. Field updates run inside a single
// read-write transaction.
type BadgerBackend struct {
	db          *badger.DB
	log         *slog.Logger
	locationURI string
	name        string
}

// NewBadgerBackend opens (or creates) a badger database in dir.
func NewBadgerBackend(dir string, log *slog.Logger) (*BadgerBackend, error) {
	if dir == "" {
		return nil, fmt.Errorf("%w: empty badger directory", interfaces.ErrInvalidLocationURI)
	}

	db, err := badger.Open(badger.DefaultOptions(dir).WithLogger(badgerLogger{log}))
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database: %w", err)
	}

	return &BadgerBackend{
		db:          db,
		log:         log,
		locationURI: fmt.Sprintf("badger://%s", dir),
		name:        fmt.Sprintf("badger-%s", filepath.Base(dir)),
	}, nil
}

// NewBadgerBackendWithDB wraps an already opened database.
func NewBadgerBackendWithDB(db *badger.DB, log *slog.Logger) *BadgerBackend {
	return &BadgerBackend{
		db:          db,
		log:         log,
		locationURI: "badger://memory",
		name:        "badger-memory",
	}
}

// LoadField reads a field from the node's record.
func (b *BadgerBackend) LoadField(ctx context.Context, node interfaces.NodeIdentity, path interfaces.FieldPath) ([]byte, error) {
	if err := validateAddress(node, path); err != nil {
		return nil, err
	}

	var value []byte
	err := b.db.View(func(txn *badger.Txn) error {
		record, err := getBadgerRecord(txn, node)
		if err != nil {
			return err
		}
		value, err = loadRecordField(record, path)
		return err
	})
	if err != nil {
		return nil, err
	}

	b.log.Debug("Loaded field from badger",
		slog.String("node", node.String()),
		slog.String("path", path.String()),
		slog.Int("size", len(value)))

	return value, nil
}

// SaveField writes a field to the node's record.
func (b *BadgerBackend) SaveField(ctx context.Context, node interfaces.NodeIdentity, path interfaces.FieldPath, raw []byte) error {
	if err := validateAddress(node, path); err != nil {
		return err
	}

	err := b.db.Update(func(txn *badger.Txn) error {
		record, err := getBadgerRecord(txn, node)
		if err != nil {
			return err
		}
		updated, err := saveRecordField(record, path, raw)
		if err != nil {
			return err
		}
		return txn.Set(badgerRecordKey(node), updated)
	})
	if err != nil {
		return fmt.Errorf("failed to store field in badger: %w", err)
	}

	b.log.Debug("Stored field in badger",
		slog.String("node", node.String()),
		slog.String("path", path.String()))

	return nil
}

// Available reports whether the database is open.
func (b *BadgerBackend) Available(ctx context.Context) bool {
	return !b.db.IsClosed()
}

// Name returns a unique identifier for this storage backend.
func (b *BadgerBackend) Name() string {
	return b.name
}

// LocationURI returns the URI that identifies this storage backend.
func (b *BadgerBackend) LocationURI() string {
	return b.locationURI
}

// Close closes the underlying database.
func (b *BadgerBackend) Close() error {
	return b.db.Close()
}

func badgerRecordKey(node interfaces.NodeIdentity) []byte {
	return []byte(badgerRecordPrefix + node.String())
}

func getBadgerRecord(txn *badger.Txn, node interfaces.NodeIdentity) ([]byte, error) {
	item, err := txn.Get(badgerRecordKey(node))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return item.ValueCopy(nil)
}

// badgerLogger forwards badger's internal logging to slog. Info and debug
// output is demoted to debug level.
type badgerLogger struct {
	log *slog.Logger
}

func (l badgerLogger) Errorf(format string, args ...interface{}) {
	l.log.Error(strings.TrimSpace(fmt.Sprintf(format, args...)), slog.String("component", "badger"))
}

func (l badgerLogger) Warningf(format string, args ...interface{}) {
	l.log.Warn(strings.TrimSpace(fmt.Sprintf(format, args...)), slog.String("component", "badger"))
}

func (l badgerLogger) Infof(format string, args ...interface{}) {
	l.log.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)), slog.String("component", "badger"))
}

func (l badgerLogger) Debugf(format string, args ...interface{}) {
	l.log.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)), slog.String("component", "badger"))
}
