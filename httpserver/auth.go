package httpserver

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ruteri/sealed-config/api"
)

var (
	// ErrUnauthenticated is returned when a request carries no valid bearer token.
	ErrUnauthenticated = errors.New("missing or invalid bearer token")
)

type callerContextKey struct{}

// Caller is the authenticated principal of a request.
type Caller struct {
	// Name is the caller's user name in the directory.
	Name string
}

// CallerFromContext returns the caller stored by Authenticator.Middleware.
func CallerFromContext(ctx context.Context) (Caller, bool) {
	caller, ok := ctx.Value(callerContextKey{}).(Caller)
	return caller, ok
}

// WithCaller returns a context carrying caller.
func WithCaller(ctx context.Context, caller Caller) context.Context {
	return context.WithValue(ctx, callerContextKey{}, caller)
}

// Authenticator maps bearer tokens to callers.
type Authenticator struct {
	log     *slog.Logger
	callers []api.CallerToken
}

// NewAuthenticator validates the caller tokens and returns an Authenticator.
func NewAuthenticator(log *slog.Logger, callers []api.CallerToken) (*Authenticator, error) {
	for _, caller := range callers {
		if err := caller.Validate(); err != nil {
			return nil, err
		}
	}
	return &Authenticator{log: log, callers: callers}, nil
}

// Authenticate returns the caller owning token. Every configured digest is
// compared so the lookup time does not depend on which entry matches.
func (a *Authenticator) Authenticate(token string) (Caller, error) {
	if token == "" {
		return Caller{}, ErrUnauthenticated
	}

	digest := sha256.Sum256([]byte(token))
	var (
		caller Caller
		found  bool
	)
	for _, entry := range a.callers {
		if subtle.ConstantTimeCompare(digest[:], entry.Digest()) == 1 && !found {
			caller = Caller{Name: entry.Name}
			found = true
		}
	}
	if !found {
		return Caller{}, ErrUnauthenticated
	}
	return caller, nil
}

// Middleware rejects requests without a valid bearer token with 401 and
// stores the caller in the request context.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller, err := a.Authenticate(bearerToken(r))
		if err != nil {
			a.log.Debug("Rejected unauthenticated request", slog.String("path", r.URL.Path))
			w.Header().Set("WWW-Authenticate", `Bearer realm="sealed-config"`)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":"` + ErrUnauthenticated.Error() + `"}`))
			return
		}
		next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), caller)))
	})
}

func bearerToken(r *http.Request) string {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
