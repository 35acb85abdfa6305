package storage

import (
	"context"

	"github.com/ruteri/sealed-config/interfaces"
	"github.com/stretchr/testify/mock"
)

// MockNodeRecordStore mocks the NodeRecordStore interface
type MockNodeRecordStore struct {
	mock.Mock
	BackendName string
}

// LoadField mocks the LoadField method
func (m *MockNodeRecordStore) LoadField(ctx context.Context, node interfaces.NodeIdentity, path interfaces.FieldPath) ([]byte, error) {
	args := m.Called(ctx, node, path)
	data, _ := args.Get(0).([]byte)
	return data, args.Error(1)
}

// SaveField mocks the SaveField method
func (m *MockNodeRecordStore) SaveField(ctx context.Context, node interfaces.NodeIdentity, path interfaces.FieldPath, raw []byte) error {
	args := m.Called(ctx, node, path, raw)
	return args.Error(0)
}

// Available mocks the Available method
func (m *MockNodeRecordStore) Available(ctx context.Context) bool {
	args := m.Called(ctx)
	return args.Bool(0)
}

// Name returns the configured backend name
func (m *MockNodeRecordStore) Name() string {
	return m.BackendName
}

// LocationURI returns a fixed mock URI
func (m *MockNodeRecordStore) LocationURI() string {
	return "mock:" + m.BackendName
}
