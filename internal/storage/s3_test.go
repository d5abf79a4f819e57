package storage

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRef(t *testing.T) {
	bucket, key, err := ParseRef("s3://exports/evaluations/abc.csv")
	require.NoError(t, err)
	assert.Equal(t, "exports", bucket)
	assert.Equal(t, "evaluations/abc.csv", key)

	for _, bad := range []string{"exports/abc.csv", "s3://", "s3:///key", "s3://bucket/"} {
		_, _, err := ParseRef(bad)
		assert.Error(t, err, bad)
	}
}

func TestRefRoundTrip(t *testing.T) {
	bucket, key, err := ParseRef(Ref("b", "k/v.csv"))
	require.NoError(t, err)
	assert.Equal(t, "b", bucket)
	assert.Equal(t, "k/v.csv", key)
}

func TestEndpointURL(t *testing.T) {
	assert.Equal(t, "http://localhost:9000", endpointURL("localhost:9000", false))
	assert.Equal(t, "https://minio:9000", endpointURL("minio:9000", true))
	assert.Equal(t, "https://s3.example.com", endpointURL("https://s3.example.com", false))
}

func TestNewRequiresBucket(t *testing.T) {
	_, err := New(context.Background(), Config{Endpoint: "localhost:9000"})
	assert.Error(t, err)
}

// fakeS3 serves the path-style bucket and object calls the client makes.
type fakeS3 struct {
	mu      sync.Mutex
	buckets map[string]bool
	objects map[string][]byte
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	path := strings.TrimPrefix(r.URL.Path, "/")
	bucket, key, _ := strings.Cut(path, "/")
	switch {
	case key == "" && r.Method == http.MethodHead:
		if !f.buckets[bucket] {
			w.WriteHeader(http.StatusNotFound)
		}
	case key == "" && r.Method == http.MethodPut:
		f.buckets[bucket] = true
	case r.Method == http.MethodPut:
		b, err := io.ReadAll(r.Body)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.objects[path] = b
		w.Header().Set("ETag", `"etag"`)
	case r.Method == http.MethodGet:
		b, ok := f.objects[path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write(b)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func TestClientOverPlainHTTP(t *testing.T) {
	fake := &fakeS3{buckets: map[string]bool{}, objects: map[string][]byte{}}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	ctx := context.Background()
	c, err := New(ctx, Config{Endpoint: srv.URL, Bucket: "b", AccessKey: "k", SecretKey: "s"})
	require.NoError(t, err)
	require.NoError(t, c.EnsureBucket(ctx))
	assert.True(t, fake.buckets["b"])

	const body = "ID,Verdict\n1,pass\n"
	ref, err := c.Put(ctx, "exports/x", ".csv", "text/csv", bytes.NewReader([]byte(body)))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(ref, "s3://b/exports/x/"), ref)
	assert.True(t, strings.HasSuffix(ref, ".csv"), ref)

	_, key, err := ParseRef(ref)
	require.NoError(t, err)
	fake.mu.Lock()
	assert.Equal(t, body, string(fake.objects["b/"+key]))
	fake.mu.Unlock()

	rc, err := c.Open(ctx, ref)
	require.NoError(t, err)
	defer rc.Close()
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, body, string(got))
}
