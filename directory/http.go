package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ruteri/sealed-config/cryptoutils"
	"github.com/ruteri/sealed-config/interfaces"
)

// SearchRequestBody is the JSON body of a directory search call.
type SearchRequestBody struct {
	Query   string   `json:"query"`
	Fields  []string `json:"fields,omitempty"`
	Rows    int      `json:"rows"`
	Partial bool     `json:"partial"`
}

// SearchResponseBody is the JSON response of a directory search call.
type SearchResponseBody struct {
	Total int                          `json:"total"`
	Rows  []interfaces.DirectoryRecord `json:"rows"`
}

// HTTPDirectoryConfig configures an HTTPDirectory.
type HTTPDirectoryConfig struct {
	// BaseURL is the directory API root, e.g. https://directory.internal.
	BaseURL string
	// Token is sent as a bearer token when set.
	Token string
	// Retries is the number of extra attempts for transport failures and
	// 5xx responses. Zero disables retrying.
	Retries uint64
	// Timeout bounds a single request. Zero means no client-side timeout.
	Timeout time.Duration
}

// HTTPDirectory talks to a remote directory service over HTTP.
//
// Routes:
//
//	POST {base}/api/v1/directory/search/{kind}        SearchRequestBody -> SearchResponseBody
//	GET  {base}/api/v1/directory/principals/{kind}/{id} -> DirectoryRecord
type HTTPDirectory struct {
	baseURL string
	token   string
	retries uint64
	client  *http.Client
	log     *slog.Logger
}

// NewHTTPDirectory creates a directory client.
func NewHTTPDirectory(log *slog.Logger, cfg HTTPDirectoryConfig) (*HTTPDirectory, error) {
	parsed, err := url.Parse(cfg.BaseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid directory URL %q", cfg.BaseURL)
	}

	return &HTTPDirectory{
		baseURL: parsed.String(),
		token:   cfg.Token,
		retries: cfg.Retries,
		client:  &http.Client{Timeout: cfg.Timeout},
		log:     log,
	}, nil
}

// Search implements interfaces.Directory.
func (d *HTTPDirectory) Search(ctx context.Context, req interfaces.SearchRequest) ([]interfaces.DirectoryRecord, error) {
	if err := req.Kind.Validate(); err != nil {
		return nil, err
	}

	body, err := json.Marshal(SearchRequestBody{
		Query:   req.Query,
		Fields:  req.Fields,
		Rows:    req.Rows,
		Partial: req.Partial,
	})
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/api/v1/directory/search/%s", d.baseURL, url.PathEscape(req.Kind.String()))

	var response SearchResponseBody
	if err := d.do(ctx, http.MethodPost, endpoint, body, &response); err != nil {
		return nil, err
	}

	d.log.Debug("directory search completed",
		slog.String("kind", req.Kind.String()),
		slog.String("query", req.Query),
		slog.Int("rows", len(response.Rows)),
		slog.Int("total", response.Total))

	return response.Rows, nil
}

// LookupPublicKey implements interfaces.PublicKeyLookup.
func (d *HTTPDirectory) LookupPublicKey(ctx context.Context, kind interfaces.PrincipalKind, id string) (cryptoutils.PublicKey, error) {
	if err := kind.Validate(); err != nil {
		return cryptoutils.PublicKey{}, err
	}

	endpoint := fmt.Sprintf("%s/api/v1/directory/principals/%s/%s", d.baseURL, url.PathEscape(kind.String()), url.PathEscape(id))

	var record interfaces.DirectoryRecord
	if err := d.do(ctx, http.MethodGet, endpoint, nil, &record); err != nil {
		return cryptoutils.PublicKey{}, err
	}

	if !record.HasPublicKey() {
		return cryptoutils.PublicKey{}, fmt.Errorf("%w: %s %q has no public key", interfaces.ErrPrincipalNotFound, kind, id)
	}

	key, err := cryptoutils.ParsePublicKeyPEM([]byte(record.PublicKey))
	if err != nil {
		return cryptoutils.PublicKey{}, fmt.Errorf("%s %q has an invalid public key: %w", kind, id, err)
	}
	return key, nil
}

func (d *HTTPDirectory) do(ctx context.Context, method, endpoint string, body []byte, out any) error {
	operation := func() error {
		return d.doOnce(ctx, method, endpoint, body, out)
	}

	var b backoff.BackOff = &backoff.StopBackOff{}
	if d.retries > 0 {
		b = backoff.WithMaxRetries(backoff.NewExponentialBackOff(
			backoff.WithInitialInterval(200*time.Millisecond),
			backoff.WithMaxInterval(5*time.Second),
		), d.retries)
	}

	return backoff.RetryNotify(operation, backoff.WithContext(b, ctx), func(err error, t time.Duration) {
		d.log.Warn("directory request failed, retrying",
			slog.String("url", endpoint),
			slog.Duration("backoff", t),
			"err", err)
	})
}

func (d *HTTPDirectory) doOnce(ctx context.Context, method, endpoint string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return backoff.Permanent(err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if d.token != "" {
		req.Header.Set("Authorization", "Bearer "+d.token)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return backoff.Permanent(err)
		}
		return fmt.Errorf("could not reach directory: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound:
		return backoff.Permanent(fmt.Errorf("%w: %s", interfaces.ErrPrincipalNotFound, endpoint))
	case resp.StatusCode >= 500:
		return fmt.Errorf("directory returned error %d: %s", resp.StatusCode, readErrorBody(resp.Body))
	default:
		return backoff.Permanent(fmt.Errorf("directory returned error %d: %s", resp.StatusCode, readErrorBody(resp.Body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return backoff.Permanent(fmt.Errorf("could not parse directory response: %w", err))
	}
	return nil
}

func readErrorBody(r io.Reader) string {
	bodyBytes, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil {
		return "<unreadable body>"
	}
	return string(bytes.TrimSpace(bodyBytes))
}
