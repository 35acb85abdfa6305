package storage

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/ruteri/sealed-config/common"
	"github.com/ruteri/sealed-config/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeVault serves a minimal KV v2 engine and the health endpoint.
type fakeVault struct {
	mu      sync.Mutex
	token   string
	sealed  bool
	secrets map[string]map[string]interface{}
}

func (f *fakeVault) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")

	if r.URL.Path == "/v1/sys/health" {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"initialized": true,
			"sealed":      f.sealed,
			"standby":     false,
		})
		return
	}

	if r.Header.Get("X-Vault-Token") != f.token {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"errors":["permission denied"]}`))
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/v1/")
	switch r.Method {
	case http.MethodGet:
		data, ok := f.secrets[path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"errors":[]}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"data": map[string]interface{}{
				"data":     data,
				"metadata": map[string]interface{}{"version": 1},
			},
		})
	case http.MethodPut, http.MethodPost:
		var body struct {
			Data map[string]interface{} `json:"data"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"errors":["invalid body"]}`))
			return
		}
		f.secrets[path] = body.Data
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"data": map[string]interface{}{"version": 1},
		})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
		_, _ = w.Write([]byte(`{"errors":["method not allowed"]}`))
	}
}

func newTestVaultBackend(t *testing.T, fake *fakeVault) *VaultBackend {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	backend, err := NewVaultBackend(VaultConfig{
		Address:  srv.URL,
		Mount:    "secret",
		DataPath: "nodes",
		Token:    fake.token,
	}, common.DiscardLogger())
	require.NoError(t, err)
	return backend
}

func TestVaultBackend(t *testing.T) {
	ctx := context.Background()
	fake := &fakeVault{token: "root", secrets: map[string]map[string]interface{}{}}
	backend := newTestVaultBackend(t, fake)

	assert.True(t, backend.Available(ctx))
	assert.Equal(t, "vault-secret-nodes", backend.Name())

	_, err := backend.LoadField(ctx, testNode, testPath)
	assert.ErrorIs(t, err, interfaces.ErrFieldNotFound)

	require.NoError(t, backend.SaveField(ctx, testNode, testPath, []byte(`{"format_version":1}`)))

	stored, ok := fake.secrets["secret/data/nodes/web-01/secrets/db_password"]
	require.True(t, ok)
	assert.Equal(t, `{"format_version":1}`, stored["content"])

	value, err := backend.LoadField(ctx, testNode, testPath)
	require.NoError(t, err)
	assert.JSONEq(t, `{"format_version":1}`, string(value))
}

func TestVaultBackendErrors(t *testing.T) {
	ctx := context.Background()
	fake := &fakeVault{token: "root", secrets: map[string]map[string]interface{}{}}
	backend := newTestVaultBackend(t, fake)
	backend.client.SetToken("wrong")

	err := backend.SaveField(ctx, testNode, testPath, []byte(`1`))
	assert.ErrorIs(t, err, interfaces.ErrBackendUnavailable)

	_, err = backend.LoadField(ctx, testNode, testPath)
	assert.ErrorIs(t, err, interfaces.ErrBackendUnavailable)
}

func TestVaultBackendSealed(t *testing.T) {
	fake := &fakeVault{token: "root", sealed: true, secrets: map[string]map[string]interface{}{}}
	backend := newTestVaultBackend(t, fake)

	assert.False(t, backend.Available(context.Background()))
}
