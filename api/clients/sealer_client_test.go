package clients

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ruteri/sealed-config/api"
	"github.com/ruteri/sealed-config/common"
	"github.com/ruteri/sealed-config/cryptoutils"
	"github.com/ruteri/sealed-config/directory"
	"github.com/ruteri/sealed-config/envelope"
	"github.com/ruteri/sealed-config/httpserver"
	"github.com/ruteri/sealed-config/interfaces"
	"github.com/ruteri/sealed-config/keyset"
	"github.com/ruteri/sealed-config/lifecycle"
	"github.com/ruteri/sealed-config/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newSealerServer(t *testing.T) (*SealerClient, cryptoutils.PublicKey) {
	client, serverPub, _ := newSealerServerWithAnonymous(t)
	return client, serverPub
}

// newSealerServerWithAnonymous also returns a client without credentials.
func newSealerServerWithAnonymous(t *testing.T) (*SealerClient, cryptoutils.PublicKey, *SealerClient) {
	t.Helper()
	log := common.DiscardLogger()

	serverPub, serverPriv, err := cryptoutils.RandomP256Keypair()
	require.NoError(t, err)
	hostPub, _, err := cryptoutils.RandomP256Keypair()
	require.NoError(t, err)
	operatorPub, _, err := cryptoutils.RandomP256Keypair()
	require.NoError(t, err)

	inventory := &directory.Inventory{
		Hosts: []directory.InventoryPrincipal{{Name: "db-01", PublicKey: string(hostPub.PEM())}},
		Users: []directory.InventoryPrincipal{
			{Name: "sealer", PublicKey: string(serverPub.PEM())},
			{Name: "operator", PublicKey: string(operatorPub.PEM())},
		},
	}
	token, caller, err := api.GenerateToken("operator")
	require.NoError(t, err)

	store, err := storage.NewFileBackend(t.TempDir(), log)
	require.NoError(t, err)
	codec, err := envelope.NewCodec(envelope.DefaultFormatVersion)
	require.NoError(t, err)
	identity, err := cryptoutils.NewLocalIdentity("sealer", serverPriv)
	require.NoError(t, err)

	resolver := keyset.NewResolver(log, inventory, inventory, nil)
	controller := lifecycle.NewController(log, resolver, codec, identity, store, inventory)
	handler := httpserver.NewHandler(controller, resolver, inventory, log)

	srv, err := httpserver.New(&api.HTTPServerConfig{Log: log, Callers: []api.CallerToken{caller}}, handler)
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &SealerClient{ServerAddr: ts.URL, Token: token}, serverPub, &SealerClient{ServerAddr: ts.URL}
}

var operatorPolicy = interfaces.AuthorizationPolicy{Users: []string{"sealer", "operator"}}

func TestSealerClientRoundTrip(t *testing.T) {
	client, serverPub := newSealerServer(t)
	policy := operatorPolicy

	sealed, err := client.Seal("db-01", "mysql.root", map[string]string{"password": "s3cret"}, policy)
	require.NoError(t, err)
	assert.Equal(t, interfaces.NodeIdentity("db-01"), sealed.Node)
	assert.Len(t, sealed.Recipients, 3)

	value, err := client.Unseal("db-01", "mysql.root")
	require.NoError(t, err)
	assert.JSONEq(t, `{"password":"s3cret"}`, string(value))

	status, err := client.Status("db-01", "mysql.root")
	require.NoError(t, err)
	assert.True(t, status.Exists)
	assert.True(t, status.Readable)

	rotated, err := client.Rotate("db-01", "mysql.root", policy)
	require.NoError(t, err)
	assert.False(t, rotated.Updated)

	resolved, err := client.Resolve(policy)
	require.NoError(t, err)
	assert.Len(t, resolved.Fingerprints, 2)
	assert.Contains(t, resolved.Fingerprints, serverPub.Fingerprint())
}

func TestSealerClientErrors(t *testing.T) {
	client, _ := newSealerServer(t)

	_, err := client.Unseal("db-01", "missing")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.NotEmpty(t, apiErr.Message)

	_, err = client.Seal("db-01", "x", "v", interfaces.AuthorizationPolicy{Users: []string{"nobody"}})
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)

	unreachable := &SealerClient{ServerAddr: "http://127.0.0.1:1"}
	_, err = unreachable.Status("db-01", "x")
	require.Error(t, err)
	assert.NotErrorAs(t, err, &apiErr)
}

func TestSealerClientWithoutToken(t *testing.T) {
	client, _, anonymous := newSealerServerWithAnonymous(t)

	_, err := client.Seal("db-01", "mysql.root", "s3cret", operatorPolicy)
	require.NoError(t, err)

	_, err = anonymous.Unseal("db-01", "mysql.root")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)

	_, err = anonymous.Rotate("db-01", "mysql.root", interfaces.AuthorizationPolicy{})
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
}

func TestMockSealerProvider(t *testing.T) {
	m := &MockSealerProvider{}
	m.On("Status", interfaces.NodeIdentity("db-01"), interfaces.FieldPath("x")).
		Return(&api.StatusResponse{Present: true}, nil)
	m.On("Unseal", interfaces.NodeIdentity("db-01"), mock.Anything).
		Return(nil, assert.AnError)

	var provider api.SealerProvider = m

	status, err := provider.Status("db-01", "x")
	require.NoError(t, err)
	assert.True(t, status.Present)

	_, err = provider.Unseal("db-01", "y")
	assert.ErrorIs(t, err, assert.AnError)

	m.AssertExpectations(t)
}
