package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"

	"github.com/go-chi/chi/v5"
	"github.com/ruteri/sealed-config/api"
	"github.com/ruteri/sealed-config/cryptoutils"
	"github.com/ruteri/sealed-config/interfaces"
	"github.com/ruteri/sealed-config/lifecycle"
)

const (
	// maxBodySize is the maximum allowed request body size (1MB).
	maxBodySize = 1024 * 1024
)

// RequestError provides structured error information for HTTP responses.
// It includes both an HTTP status code and the underlying error.
type RequestError struct {
	// StatusCode is the HTTP status code to return.
	StatusCode int

	// Err is the underlying error.
	Err error
}

// Error returns the error message from the underlying error.
func (e *RequestError) Error() string {
	return e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *RequestError) Unwrap() error {
	return e.Err
}

func badRequest(err error) *RequestError {
	return &RequestError{StatusCode: http.StatusBadRequest, Err: err}
}

// requestErrorFor maps engine errors to HTTP status codes.
func requestErrorFor(err error) *RequestError {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return reqErr
	}

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, interfaces.ErrDirectoryLookup):
		status = http.StatusBadGateway
	case errors.Is(err, interfaces.ErrFieldNotFound), errors.Is(err, interfaces.ErrPrincipalNotFound):
		status = http.StatusNotFound
	case errors.Is(err, interfaces.ErrNotAuthorized):
		status = http.StatusForbidden
	case errors.Is(err, interfaces.ErrIntegrity):
		status = http.StatusConflict
	case errors.Is(err, interfaces.ErrMalformedEnvelope), errors.Is(err, interfaces.ErrUnsupportedFormatVersion):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, interfaces.ErrBackendUnavailable):
		status = http.StatusServiceUnavailable
	}
	return &RequestError{StatusCode: status, Err: err}
}

// Handler serves the sealing API on top of a lifecycle controller.
//
// Every route expects an authenticated Caller in the request context. Unseal
// and rotate additionally require the caller's own key to be a current
// recipient of the stored value.
type Handler struct {
	controller *lifecycle.Controller
	resolver   lifecycle.KeySetResolver
	callers    interfaces.PublicKeyLookup
	log        *slog.Logger
}

// NewHandler creates a new HTTP request handler.
//
// Parameters:
//   - controller: Lifecycle controller with a node record store configured
//   - resolver: Resolver used by the keyset preview endpoint
//   - callers: Lookup of authenticated callers' public keys (user principals)
//   - log: Structured logger for operational insights
func NewHandler(controller *lifecycle.Controller, resolver lifecycle.KeySetResolver, callers interfaces.PublicKeyLookup, log *slog.Logger) *Handler {
	return &Handler{
		controller: controller,
		resolver:   resolver,
		callers:    callers,
		log:        log,
	}
}

// RegisterRoutes mounts the API routes on r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Put("/api/v1/nodes/{node}/values/{path}", h.HandleSeal)
	r.Get("/api/v1/nodes/{node}/values/{path}", h.HandleUnseal)
	r.Post("/api/v1/nodes/{node}/values/{path}/rotate", h.HandleRotate)
	r.Get("/api/v1/nodes/{node}/values/{path}/status", h.HandleStatus)
	r.Post("/api/v1/keysets/resolve", h.HandleResolve)
}

// HandleSeal encrypts and stores a value.
//
// URL format: PUT /api/v1/nodes/{node}/values/{path}
//
// Request body: JSON, see api.SealRequest
//
// Response: JSON, see api.SealResponse
func (h *Handler) HandleSeal(w http.ResponseWriter, r *http.Request) {
	caller, err := requireCaller(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	node, path, err := nodeAndPath(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var req api.SealRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if len(req.Value) == 0 {
		h.writeError(w, r, badRequest(errors.New("missing value")))
		return
	}
	if err := req.Policy.Validate(); err != nil {
		h.writeError(w, r, badRequest(err))
		return
	}

	env, err := h.controller.Seal(r.Context(), node, path, req.Value, req.Policy)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.log.Info("Value sealed by caller",
		slog.String("caller", caller.Name),
		slog.String("node", node.String()),
		slog.String("path", path.String()))

	h.writeJSON(w, http.StatusOK, api.SealResponse{
		Node:          node,
		Path:          path,
		FormatVersion: env.FormatVersion(),
		Recipients:    env.Recipients(),
	})
}

// HandleUnseal returns a stored value decrypted with the server identity. The
// caller must be a recipient of the stored envelope itself.
//
// URL format: GET /api/v1/nodes/{node}/values/{path}
//
// Response: JSON, see api.UnsealResponse
func (h *Handler) HandleUnseal(w http.ResponseWriter, r *http.Request) {
	node, path, err := nodeAndPath(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if err := h.requireHolder(r, node, path); err != nil {
		h.writeError(w, r, err)
		return
	}

	value, err := h.controller.Unseal(r.Context(), node, path)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, api.UnsealResponse{Node: node, Path: path, Value: value})
}

// HandleRotate re-encrypts a stored value for the given policy if needed.
// Only a current recipient may change the recipient set.
//
// URL format: POST /api/v1/nodes/{node}/values/{path}/rotate
//
// Request body: JSON, see api.RotateRequest
//
// Response: JSON, see api.RotateResponse
func (h *Handler) HandleRotate(w http.ResponseWriter, r *http.Request) {
	node, path, err := nodeAndPath(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if err := h.requireHolder(r, node, path); err != nil {
		h.writeError(w, r, err)
		return
	}

	var req api.RotateRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := req.Policy.Validate(); err != nil {
		h.writeError(w, r, badRequest(err))
		return
	}

	env, updated, err := h.controller.Reseal(r.Context(), node, path, req.Policy)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, api.RotateResponse{
		Updated:       updated,
		FormatVersion: env.FormatVersion(),
		Recipients:    env.Recipients(),
	})
}

// HandleStatus describes a stored value without decrypting it.
//
// URL format: GET /api/v1/nodes/{node}/values/{path}/status
//
// Response: JSON, see api.StatusResponse
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if _, err := requireCaller(r); err != nil {
		h.writeError(w, r, err)
		return
	}

	node, path, err := nodeAndPath(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	status, err := h.controller.Inspect(r.Context(), node, path)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, status)
}

// HandleResolve previews the recipients of a policy.
//
// URL format: POST /api/v1/keysets/resolve
//
// Request body: JSON, see api.ResolveRequest
//
// Response: JSON, see api.ResolveResponse
func (h *Handler) HandleResolve(w http.ResponseWriter, r *http.Request) {
	if _, err := requireCaller(r); err != nil {
		h.writeError(w, r, err)
		return
	}

	var req api.ResolveRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := req.Policy.Validate(); err != nil {
		h.writeError(w, r, badRequest(err))
		return
	}

	keys, err := h.resolver.Resolve(r.Context(), req.Policy)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	response := api.ResolveResponse{
		Fingerprints: keys.Fingerprints(),
		Keys:         make([]string, 0, keys.Len()),
	}
	for _, key := range keys.Keys() {
		response.Keys = append(response.Keys, string(key.PEM()))
	}

	h.writeJSON(w, http.StatusOK, response)
}

func requireCaller(r *http.Request) (Caller, error) {
	caller, ok := CallerFromContext(r.Context())
	if !ok {
		return Caller{}, &RequestError{StatusCode: http.StatusUnauthorized, Err: ErrUnauthenticated}
	}
	return caller, nil
}

// callerKey looks up the authenticated caller's registered public key.
func (h *Handler) callerKey(r *http.Request) (cryptoutils.PublicKey, error) {
	caller, err := requireCaller(r)
	if err != nil {
		return cryptoutils.PublicKey{}, err
	}
	if h.callers == nil {
		return cryptoutils.PublicKey{}, fmt.Errorf("%w: no caller key lookup configured", interfaces.ErrNotAuthorized)
	}

	key, err := h.callers.LookupPublicKey(r.Context(), interfaces.PrincipalUser, caller.Name)
	if errors.Is(err, interfaces.ErrPrincipalNotFound) {
		return cryptoutils.PublicKey{}, fmt.Errorf("%w: caller %s has no registered key", interfaces.ErrNotAuthorized, caller.Name)
	}
	if err != nil {
		return cryptoutils.PublicKey{}, fmt.Errorf("%w: caller %s: %w", interfaces.ErrDirectoryLookup, caller.Name, err)
	}
	return key, nil
}

// requireHolder checks that the caller's key is a recipient of the envelope
// stored at path.
func (h *Handler) requireHolder(r *http.Request, node interfaces.NodeIdentity, path interfaces.FieldPath) error {
	key, err := h.callerKey(r)
	if err != nil {
		return err
	}

	status, err := h.controller.Inspect(r.Context(), node, path)
	if err != nil {
		return err
	}
	switch {
	case !status.Present:
		return fmt.Errorf("%w: %s at %s", interfaces.ErrFieldNotFound, node, path)
	case !status.Exists:
		return fmt.Errorf("%w: %s at %s is not a sealed value", interfaces.ErrMalformedEnvelope, node, path)
	case !slices.Contains(status.Recipients, key.Fingerprint()):
		caller, _ := CallerFromContext(r.Context())
		return fmt.Errorf("%w: caller %s is not a recipient of %s at %s", interfaces.ErrNotAuthorized, caller.Name, node, path)
	}
	return nil
}

func nodeAndPath(r *http.Request) (interfaces.NodeIdentity, interfaces.FieldPath, error) {
	node, err := interfaces.NewNodeIdentity(chi.URLParam(r, "node"))
	if err != nil {
		return "", "", badRequest(err)
	}
	path, err := interfaces.NewFieldPath(chi.URLParam(r, "path"))
	if err != nil {
		return "", "", badRequest(err)
	}
	return node, path, nil
}

func decodeBody(r *http.Request, out any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize+1))
	if err != nil {
		return badRequest(fmt.Errorf("failed to read request body: %w", err))
	}
	if len(body) > maxBodySize {
		return &RequestError{StatusCode: http.StatusRequestEntityTooLarge, Err: errors.New("request body too large")}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return badRequest(fmt.Errorf("invalid request body: %w", err))
	}
	return nil
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	reqErr := requestErrorFor(err)
	if reqErr.StatusCode >= http.StatusInternalServerError {
		h.log.Error("Request failed", "err", err, slog.String("path", r.URL.Path))
	} else {
		h.log.Debug("Request rejected", "err", err,
			slog.String("path", r.URL.Path),
			slog.Int("status", reqErr.StatusCode))
	}
	h.writeJSON(w, reqErr.StatusCode, api.ErrorResponse{Error: reqErr.Error()})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.log.Error("Failed to encode response", "err", err)
	}
}
