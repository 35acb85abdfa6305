package storage

import (
	"context"
	"io"
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

// fakeS3 serves path-style bucket requests from memory.
type fakeS3 struct {
	mu      sync.Mutex
	bucket  string
	objects map[string][]byte
	puts    int
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := strings.TrimPrefix(r.URL.Path, "/")
	bucket, key, _ := strings.Cut(path, "/")
	if bucket != f.bucket {
		writeS3Error(w, http.StatusNotFound, "NoSuchBucket")
		return
	}

	switch {
	case r.Method == http.MethodHead && key == "":
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodGet:
		data, ok := f.objects[key]
		if !ok {
			writeS3Error(w, http.StatusNotFound, "NoSuchKey")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(data)
	case r.Method == http.MethodPut:
		data, err := io.ReadAll(r.Body)
		if err != nil {
			writeS3Error(w, http.StatusBadRequest, "IncompleteBody")
			return
		}
		f.objects[key] = data
		f.puts++
		w.WriteHeader(http.StatusOK)
	default:
		writeS3Error(w, http.StatusMethodNotAllowed, "MethodNotAllowed")
	}
}

func writeS3Error(w http.ResponseWriter, status int, code string) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>`+code+`</Code><Message>`+code+`</Message><RequestId>test</RequestId></Error>`)
}

func newTestS3Backend(t *testing.T, fake *fakeS3) *S3Backend {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	backend, err := NewS3Backend(S3Config{
		Bucket:    fake.bucket,
		Prefix:    "nodes/",
		Region:    "us-east-1",
		Endpoint:  srv.URL,
		AccessKey: "AKIDEXAMPLE",
		SecretKey: "secret",
		PathStyle: true,
	}, common.DiscardLogger())
	require.NoError(t, err)
	return backend
}

func TestS3Backend(t *testing.T) {
	ctx := context.Background()
	fake := &fakeS3{bucket: "records", objects: map[string][]byte{}}
	backend := newTestS3Backend(t, fake)

	assert.True(t, backend.Available(ctx))
	assert.Equal(t, "s3-records", backend.Name())
	assert.NotContains(t, backend.LocationURI(), "secret")

	_, err := backend.LoadField(ctx, testNode, testPath)
	assert.ErrorIs(t, err, interfaces.ErrFieldNotFound)

	require.NoError(t, backend.SaveField(ctx, testNode, testPath, []byte(`{"format_version":1}`)))
	require.NoError(t, backend.SaveField(ctx, testNode, "hostname", []byte(`"web-01"`)))
	assert.Equal(t, 2, fake.puts)

	stored, ok := fake.objects["nodes/web-01.json"]
	require.True(t, ok)
	assert.JSONEq(t, `{"hostname":"web-01","secrets":{"db_password":{"format_version":1}}}`, string(stored))

	value, err := backend.LoadField(ctx, testNode, testPath)
	require.NoError(t, err)
	assert.JSONEq(t, `{"format_version":1}`, string(value))

	_, err = backend.LoadField(ctx, testNode, "secrets.missing")
	assert.ErrorIs(t, err, interfaces.ErrFieldNotFound)
}

func TestS3BackendUnavailableBucket(t *testing.T) {
	fake := &fakeS3{bucket: "records", objects: map[string][]byte{}}
	backend := newTestS3Backend(t, fake)
	backend.bucketName = "other"

	assert.False(t, backend.Available(context.Background()))
}

func TestS3BackendRequiresBucket(t *testing.T) {
	_, err := NewS3Backend(S3Config{}, common.DiscardLogger())
	assert.ErrorIs(t, err, interfaces.ErrInvalidLocationURI)
}
