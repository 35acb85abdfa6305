package directory

import (
	"context"

	"github.com/ruteri/sealed-config/cryptoutils"
	"github.com/ruteri/sealed-config/interfaces"
	"github.com/stretchr/testify/mock"
)

// MockDirectory mocks the Directory and PublicKeyLookup interfaces
type MockDirectory struct {
	mock.Mock
}

// Search mocks the Search method
func (m *MockDirectory) Search(ctx context.Context, req interfaces.SearchRequest) ([]interfaces.DirectoryRecord, error) {
	args := m.Called(ctx, req)
	records, _ := args.Get(0).([]interfaces.DirectoryRecord)
	return records, args.Error(1)
}

// LookupPublicKey mocks the LookupPublicKey method
func (m *MockDirectory) LookupPublicKey(ctx context.Context, kind interfaces.PrincipalKind, id string) (cryptoutils.PublicKey, error) {
	args := m.Called(ctx, kind, id)
	key, _ := args.Get(0).(cryptoutils.PublicKey)
	return key, args.Error(1)
}
