package gcs

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

type fakeGCS struct {
	mu      sync.Mutex
	uploads []string
}

func (f *fakeGCS) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	if r.Method != http.MethodPost || !strings.Contains(r.URL.Path, "/b/archive/o") {
		http.NotFound(w, r)
		return
	}
	f.mu.Lock()
	f.uploads = append(f.uploads, string(body))
	f.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	_, _ = io.WriteString(w, `{"bucket":"archive","name":"failed/run/decode/abc.cbor","size":"9"}`)
}

func newTestStore(t *testing.T, fake http.Handler) *BlobStore {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	client, err := NewClient(context.Background(),
		option.WithEndpoint(srv.URL+"/storage/v1/"),
		option.WithoutAuthentication(),
		option.WithHTTPClient(srv.Client()),
	)
	require.NoError(t, err)
	store, err := New(client, Config{Bucket: "archive"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestPutObjectUploads(t *testing.T) {
	t.Parallel()

	fake := &fakeGCS{}
	store := newTestStore(t, fake)

	uri, err := store.PutObject(context.Background(), "failed/run/decode/abc.cbor", "application/cbor", strings.NewReader("raw-bytes"))
	require.NoError(t, err)
	require.Equal(t, "gs://archive/failed/run/decode/abc.cbor", uri)

	fake.mu.Lock()
	defer fake.mu.Unlock()
	require.Len(t, fake.uploads, 1)
	require.Contains(t, fake.uploads[0], "raw-bytes")
}

func TestNewValidates(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Config{Bucket: "b"})
	require.Error(t, err)

	client, err := NewClient(context.Background(), option.WithoutAuthentication())
	require.NoError(t, err)
	defer func() { _ = client.Close() }()
	_, err = New(client, Config{})
	require.Error(t, err)
}

func TestPutObjectRequiresPath(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, &fakeGCS{})
	_, err := store.PutObject(context.Background(), "", "", strings.NewReader("x"))
	require.Error(t, err)
}
