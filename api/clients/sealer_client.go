package clients

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/ruteri/sealed-config/api"
	"github.com/ruteri/sealed-config/interfaces"
	"github.com/stretchr/testify/mock"
)

// APIError is returned for non-2xx responses.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("sealer returned error %d: %s", e.StatusCode, e.Message)
}

// SealerClient implements api.SealerProvider for HTTP-based communication
// with the sealing service.
type SealerClient struct {
	// ServerAddr is the base URL of the sealing service
	ServerAddr string

	// Token is sent as a bearer token on every request
	Token string

	// HTTPClient is used for requests, http.DefaultClient when nil
	HTTPClient *http.Client
}

// Seal encrypts value for the policy and stores it on the node's record.
func (c *SealerClient) Seal(node interfaces.NodeIdentity, path interfaces.FieldPath, value any, policy interfaces.AuthorizationPolicy) (*api.SealResponse, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("could not encode value: %w", err)
	}

	var response api.SealResponse
	err = c.do(http.MethodPut, c.valueURL(node, path, ""), api.SealRequest{Value: raw, Policy: policy}, &response)
	if err != nil {
		return nil, err
	}
	return &response, nil
}

// Unseal returns the value decrypted with the server's identity.
func (c *SealerClient) Unseal(node interfaces.NodeIdentity, path interfaces.FieldPath) (json.RawMessage, error) {
	var response api.UnsealResponse
	if err := c.do(http.MethodGet, c.valueURL(node, path, ""), nil, &response); err != nil {
		return nil, err
	}
	return response.Value, nil
}

// Rotate re-encrypts the stored value if the policy's recipients changed.
func (c *SealerClient) Rotate(node interfaces.NodeIdentity, path interfaces.FieldPath, policy interfaces.AuthorizationPolicy) (*api.RotateResponse, error) {
	var response api.RotateResponse
	if err := c.do(http.MethodPost, c.valueURL(node, path, "/rotate"), api.RotateRequest{Policy: policy}, &response); err != nil {
		return nil, err
	}
	return &response, nil
}

// Status describes the stored value without decrypting it.
func (c *SealerClient) Status(node interfaces.NodeIdentity, path interfaces.FieldPath) (*api.StatusResponse, error) {
	var response api.StatusResponse
	if err := c.do(http.MethodGet, c.valueURL(node, path, "/status"), nil, &response); err != nil {
		return nil, err
	}
	return &response, nil
}

// Resolve returns the recipients a policy currently resolves to.
func (c *SealerClient) Resolve(policy interfaces.AuthorizationPolicy) (*api.ResolveResponse, error) {
	var response api.ResolveResponse
	if err := c.do(http.MethodPost, c.ServerAddr+"/api/v1/keysets/resolve", api.ResolveRequest{Policy: policy}, &response); err != nil {
		return nil, err
	}
	return &response, nil
}

func (c *SealerClient) valueURL(node interfaces.NodeIdentity, path interfaces.FieldPath, suffix string) string {
	return fmt.Sprintf("%s/api/v1/nodes/%s/values/%s%s", c.ServerAddr, url.PathEscape(node.String()), url.PathEscape(path.String()), suffix)
}

func (c *SealerClient) do(method, endpoint string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("could not encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequest(method, endpoint, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	client := c.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("could not request %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var apiErr api.ErrorResponse
		if json.Unmarshal(bodyBytes, &apiErr) == nil && apiErr.Error != "" {
			return &APIError{StatusCode: resp.StatusCode, Message: apiErr.Error}
		}
		return &APIError{StatusCode: resp.StatusCode, Message: string(bytes.TrimSpace(bodyBytes))}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("could not parse response: %w", err)
	}
	return nil
}

// MockSealerProvider implements a mock api.SealerProvider for testing.
type MockSealerProvider struct {
	mock.Mock
}

// Seal implements the SealerProvider interface for testing.
func (m *MockSealerProvider) Seal(node interfaces.NodeIdentity, path interfaces.FieldPath, value any, policy interfaces.AuthorizationPolicy) (*api.SealResponse, error) {
	args := m.Called(node, path, value, policy)
	resp, _ := args.Get(0).(*api.SealResponse)
	return resp, args.Error(1)
}

// Unseal implements the SealerProvider interface for testing.
func (m *MockSealerProvider) Unseal(node interfaces.NodeIdentity, path interfaces.FieldPath) (json.RawMessage, error) {
	args := m.Called(node, path)
	value, _ := args.Get(0).(json.RawMessage)
	return value, args.Error(1)
}

// Rotate implements the SealerProvider interface for testing.
func (m *MockSealerProvider) Rotate(node interfaces.NodeIdentity, path interfaces.FieldPath, policy interfaces.AuthorizationPolicy) (*api.RotateResponse, error) {
	args := m.Called(node, path, policy)
	resp, _ := args.Get(0).(*api.RotateResponse)
	return resp, args.Error(1)
}

// Status implements the SealerProvider interface for testing.
func (m *MockSealerProvider) Status(node interfaces.NodeIdentity, path interfaces.FieldPath) (*api.StatusResponse, error) {
	args := m.Called(node, path)
	resp, _ := args.Get(0).(*api.StatusResponse)
	return resp, args.Error(1)
}

// Resolve implements the SealerProvider interface for testing.
func (m *MockSealerProvider) Resolve(policy interfaces.AuthorizationPolicy) (*api.ResolveResponse, error) {
	args := m.Called(policy)
	resp, _ := args.Get(0).(*api.ResolveResponse)
	return resp, args.Error(1)
}

var (
	_ api.SealerProvider = (*SealerClient)(nil)
	_ api.SealerProvider = (*MockSealerProvider)(nil)
)
