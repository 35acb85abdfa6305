package storage

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/ruteri/sealed-config/common"
	"github.com/ruteri/sealed-config/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

var (
	testNode = interfaces.NodeIdentity("web-01")
	testPath = interfaces.FieldPath("secrets.db_password")
)

func TestMultiStorageBackend_Available(t *testing.T) {
	tests := []struct {
		name     string
		backends []bool
		expected bool
	}{
		{
			name:     "all backends available",
			backends: []bool{true, true, true},
			expected: true,
		},
		{
			name:     "some backends available",
			backends: []bool{false, true, false},
			expected: true,
		},
		{
			name:     "no backends available",
			backends: []bool{false, false, false},
			expected: false,
		},
		{
			name:     "no backends",
			backends: []bool{},
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var backends []interfaces.NodeRecordStore
			for i, available := range tt.backends {
				mockStorage := &MockNodeRecordStore{BackendName: fmt.Sprintf("mock-A%x", i)}
				mockStorage.On("Available", mock.Anything).Return(available).Maybe()
				backends = append(backends, mockStorage)
			}

			multi := NewMultiStorageBackend(backends, common.DiscardLogger())
			assert.Equal(t, tt.expected, multi.Available(context.Background()))

			for _, backend := range backends {
				backend.(*MockNodeRecordStore).AssertExpectations(t)
			}
		})
	}
}

func TestMultiStorageBackend_LoadField(t *testing.T) {
	testData := []byte(`"value"`)
	testErr := errors.New("test error")

	tests := []struct {
		name          string
		setupMocks    func() []interfaces.NodeRecordStore
		expectedData  []byte
		expectedError error
		expectAnyErr  bool
	}{
		{
			name: "first backend successful",
			setupMocks: func() []interfaces.NodeRecordStore {
				mock1 := &MockNodeRecordStore{BackendName: "mock-A"}
				mock1.On("Available", mock.Anything).Return(true)
				mock1.On("LoadField", mock.Anything, testNode, testPath).Return(testData, nil)

				mock2 := &MockNodeRecordStore{BackendName: "mock-B"}
				// Not consulted, the first backend has the field.

				return []interfaces.NodeRecordStore{mock1, mock2}
			},
			expectedData: testData,
		},
		{
			name: "first backend fails, second succeeds",
			setupMocks: func() []interfaces.NodeRecordStore {
				mock1 := &MockNodeRecordStore{BackendName: "mock-A"}
				mock1.On("Available", mock.Anything).Return(true)
				mock1.On("LoadField", mock.Anything, testNode, testPath).Return(nil, testErr)

				mock2 := &MockNodeRecordStore{BackendName: "mock-B"}
				mock2.On("Available", mock.Anything).Return(true)
				mock2.On("LoadField", mock.Anything, testNode, testPath).Return(testData, nil)

				return []interfaces.NodeRecordStore{mock1, mock2}
			},
			expectedData: testData,
		},
		{
			name: "all backends report not found",
			setupMocks: func() []interfaces.NodeRecordStore {
				mock1 := &MockNodeRecordStore{BackendName: "mock-A"}
				mock1.On("Available", mock.Anything).Return(true)
				mock1.On("LoadField", mock.Anything, testNode, testPath).Return(nil, interfaces.ErrFieldNotFound)

				mock2 := &MockNodeRecordStore{BackendName: "mock-B"}
				mock2.On("Available", mock.Anything).Return(true)
				mock2.On("LoadField", mock.Anything, testNode, testPath).Return(nil, interfaces.ErrFieldNotFound)

				return []interfaces.NodeRecordStore{mock1, mock2}
			},
			expectedError: interfaces.ErrFieldNotFound,
		},
		{
			name: "not found and failure is not reported as not found",
			setupMocks: func() []interfaces.NodeRecordStore {
				mock1 := &MockNodeRecordStore{BackendName: "mock-A"}
				mock1.On("Available", mock.Anything).Return(true)
				mock1.On("LoadField", mock.Anything, testNode, testPath).Return(nil, interfaces.ErrFieldNotFound)

				mock2 := &MockNodeRecordStore{BackendName: "mock-B"}
				mock2.On("Available", mock.Anything).Return(true)
				mock2.On("LoadField", mock.Anything, testNode, testPath).Return(nil, testErr)

				return []interfaces.NodeRecordStore{mock1, mock2}
			},
			expectedError: testErr,
		},
		{
			name: "unavailable backends are skipped",
			setupMocks: func() []interfaces.NodeRecordStore {
				mock1 := &MockNodeRecordStore{BackendName: "mock-A"}
				mock1.On("Available", mock.Anything).Return(false)

				mock2 := &MockNodeRecordStore{BackendName: "mock-B"}
				mock2.On("Available", mock.Anything).Return(true)
				mock2.On("LoadField", mock.Anything, testNode, testPath).Return(testData, nil)

				return []interfaces.NodeRecordStore{mock1, mock2}
			},
			expectedData: testData,
		},
		{
			name: "no backends available",
			setupMocks: func() []interfaces.NodeRecordStore {
				mock1 := &MockNodeRecordStore{BackendName: "mock-A"}
				mock1.On("Available", mock.Anything).Return(false)
				return []interfaces.NodeRecordStore{mock1}
			},
			expectedError: interfaces.ErrBackendUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backends := tt.setupMocks()
			multi := NewMultiStorageBackend(backends, common.DiscardLogger())

			data, err := multi.LoadField(context.Background(), testNode, testPath)
			if tt.expectedError != nil {
				assert.ErrorIs(t, err, tt.expectedError)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.expectedData, data)

			for _, backend := range backends {
				backend.(*MockNodeRecordStore).AssertExpectations(t)
			}
		})
	}
}

func TestMultiStorageBackend_SaveField(t *testing.T) {
	testData := []byte(`{"format_version":1}`)
	testErr := errors.New("test error")

	tests := []struct {
		name          string
		setupMocks    func() []interfaces.NodeRecordStore
		expectedError bool
	}{
		{
			name: "all backends successful",
			setupMocks: func() []interfaces.NodeRecordStore {
				mock1 := &MockNodeRecordStore{BackendName: "mock-A"}
				mock1.On("Available", mock.Anything).Return(true)
				mock1.On("SaveField", mock.Anything, testNode, testPath, testData).Return(nil)

				mock2 := &MockNodeRecordStore{BackendName: "mock-B"}
				mock2.On("Available", mock.Anything).Return(true)
				mock2.On("SaveField", mock.Anything, testNode, testPath, testData).Return(nil)

				return []interfaces.NodeRecordStore{mock1, mock2}
			},
		},
		{
			name: "some backends fail",
			setupMocks: func() []interfaces.NodeRecordStore {
				mock1 := &MockNodeRecordStore{BackendName: "mock-A"}
				mock1.On("Available", mock.Anything).Return(true)
				mock1.On("SaveField", mock.Anything, testNode, testPath, testData).Return(nil)

				mock2 := &MockNodeRecordStore{BackendName: "mock-B"}
				mock2.On("Available", mock.Anything).Return(true)
				mock2.On("SaveField", mock.Anything, testNode, testPath, testData).Return(testErr)

				return []interfaces.NodeRecordStore{mock1, mock2}
			},
		},
		{
			name: "all backends fail",
			setupMocks: func() []interfaces.NodeRecordStore {
				mock1 := &MockNodeRecordStore{BackendName: "mock-A"}
				mock1.On("Available", mock.Anything).Return(true)
				mock1.On("SaveField", mock.Anything, testNode, testPath, testData).Return(testErr)

				mock2 := &MockNodeRecordStore{BackendName: "mock-B"}
				mock2.On("Available", mock.Anything).Return(true)
				mock2.On("SaveField", mock.Anything, testNode, testPath, testData).Return(testErr)

				return []interfaces.NodeRecordStore{mock1, mock2}
			},
			expectedError: true,
		},
		{
			name: "unavailable backends are skipped",
			setupMocks: func() []interfaces.NodeRecordStore {
				mock1 := &MockNodeRecordStore{BackendName: "mock-A"}
				mock1.On("Available", mock.Anything).Return(false)

				mock2 := &MockNodeRecordStore{BackendName: "mock-B"}
				mock2.On("Available", mock.Anything).Return(true)
				mock2.On("SaveField", mock.Anything, testNode, testPath, testData).Return(nil)

				return []interfaces.NodeRecordStore{mock1, mock2}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backends := tt.setupMocks()
			multi := NewMultiStorageBackend(backends, common.DiscardLogger())

			err := multi.SaveField(context.Background(), testNode, testPath, testData)
			if tt.expectedError {
				assert.Error(t, err)
				assert.ErrorIs(t, err, testErr)
			} else {
				assert.NoError(t, err)
			}

			for _, backend := range backends {
				backend.(*MockNodeRecordStore).AssertExpectations(t)
			}
		})
	}
}

func TestMultiStorageBackend_LocationURI(t *testing.T) {
	multi := NewMultiStorageBackend([]interfaces.NodeRecordStore{
		&MockNodeRecordStore{BackendName: "a"},
		&MockNodeRecordStore{BackendName: "b"},
	}, nil)
	assert.Equal(t, "multi:[mock:a,mock:b]", multi.LocationURI())
	assert.Equal(t, "multi-storage", multi.Name())
}
