package gcs

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

func newTestClient(t *testing.T, handler http.Handler) *storage.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client, err := storage.NewClient(context.Background(), option.WithEndpoint(srv.URL), option.WithoutAuthentication())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestPutObjectUploadsWithPrefix(t *testing.T) {
	var (
		mu       sync.Mutex
		gotName  string
		gotBody  string
		gotPaths []string
	)
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		gotName = r.URL.Query().Get("name")
		gotBody = string(body)
		gotPaths = append(gotPaths, r.URL.Path)
		mu.Unlock()
		fmt.Fprintf(w, `{"name":%q,"bucket":"snaps"}`, r.URL.Query().Get("name"))
	}))

	store, err := New(client, Config{Bucket: "snaps", Prefix: "/h1b/"})
	require.NoError(t, err)

	uri, err := store.PutObject(context.Background(), "snapshots/indeed/abc.html", "text/html", bytes.NewReader([]byte("<html>x</html>")))
	require.NoError(t, err)
	assert.Equal(t, "gs://snaps/h1b/snapshots/indeed/abc.html", uri)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "h1b/snapshots/indeed/abc.html", gotName)
	assert.Contains(t, gotBody, "<html>x</html>")
	require.NotEmpty(t, gotPaths)
	assert.Contains(t, gotPaths[0], "/upload/storage/v1/b/snaps/o")
}

func TestPutObjectServerError(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":{"code":403,"message":"denied"}}`, http.StatusForbidden)
	}))
	store, err := New(client, Config{Bucket: "snaps"})
	require.NoError(t, err)

	_, err = store.PutObject(context.Background(), "a.html", "text/html", bytes.NewReader([]byte("x")))
	require.Error(t, err)
}

func TestNewValidation(t *testing.T) {
	_, err := New(nil, Config{Bucket: "b"})
	require.Error(t, err)
}
