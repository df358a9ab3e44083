package credential

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telnet2/wamux/internal/storage"
	"github.com/telnet2/wamux/pkg/types"
)

// blobServer is an in-memory PUT/GET blob store.
type blobServer struct {
	mu    sync.Mutex
	blobs map[string][]byte
	gets  int
}

func newBlobServer(t *testing.T) (*blobServer, *httptest.Server) {
	b := &blobServer{blobs: make(map[string][]byte)}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimPrefix(r.URL.Path, "/blobs/")
		b.mu.Lock()
		defer b.mu.Unlock()
		switch r.Method {
		case http.MethodPut:
			data, _ := io.ReadAll(r.Body)
			b.blobs[id] = data
			w.WriteHeader(http.StatusCreated)
		case http.MethodGet:
			b.gets++
			data, ok := b.blobs[id]
			if !ok {
				http.NotFound(w, r)
				return
			}
			w.Write(data)
		case http.MethodHead:
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	}))
	t.Cleanup(srv.Close)
	return b, srv
}

func newBackup(t *testing.T) (*Backup, *blobServer) {
	b, srv := newBlobServer(t)
	store, err := NewHTTPBlobStore(srv.URL + "/blobs/")
	require.NoError(t, err)
	return NewBackup(store), b
}

func TestLocator(t *testing.T) {
	loc, err := ParseLocator(" WAMUX-V1~s1-01hzx#AGE-SECRET-KEY-1ABC ")
	require.NoError(t, err)
	assert.Equal(t, "s1-01hzx", loc.FileID)
	assert.Equal(t, "AGE-SECRET-KEY-1ABC", loc.Key)
	assert.Equal(t, "WAMUX-V1~s1-01hzx#AGE-SECRET-KEY-1ABC", loc.String())

	for _, bad := range []string{"", "s1", "WAMUX-V1~", "WAMUX-V1~abc", "WAMUX-V1~a/b#AGE-SECRET-KEY-1", "WAMUX-V1~abc#nokey"} {
		_, err := ParseLocator(bad)
		assert.ErrorIs(t, err, ErrInvalidLocator, bad)
	}
	assert.True(t, IsLocator("WAMUX-V1~x"))
	assert.False(t, IsLocator("session-1"))
}

func TestBackup_RoundTrip(t *testing.T) {
	backup, server := newBackup(t)
	ctx := context.Background()
	payload := []byte(strings.Repeat("sqlite credential page ", 200))

	loc, err := backup.Upload(ctx, "s1", payload)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(loc.FileID, "s1-"))

	server.mu.Lock()
	stored := server.blobs[loc.FileID]
	server.mu.Unlock()
	require.NotEmpty(t, stored)
	assert.NotContains(t, string(stored), "sqlite credential page")

	got, err := backup.Download(ctx, loc.String())
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestBackup_WrongKeyFails(t *testing.T) {
	backup, _ := newBackup(t)
	ctx := context.Background()

	a, err := backup.Upload(ctx, "a", []byte("one"))
	require.NoError(t, err)
	b, err := backup.Upload(ctx, "b", []byte("two"))
	require.NoError(t, err)

	_, err = backup.Download(ctx, Locator{FileID: a.FileID, Key: b.Key}.String())
	assert.Error(t, err)
}

func TestBackup_MissingBlob(t *testing.T) {
	backup, _ := newBackup(t)
	_, err := backup.Download(context.Background(), "WAMUX-V1~missing#AGE-SECRET-KEY-1XYZ")
	assert.ErrorIs(t, err, ErrBlobNotFound)
}

func TestBackup_NotConfigured(t *testing.T) {
	backup := NewBackup(nil)
	_, err := backup.Upload(context.Background(), "s1", []byte("x"))
	assert.ErrorIs(t, err, ErrNoBackup)
	_, err = backup.Download(context.Background(), "WAMUX-V1~a#AGE-SECRET-KEY-1")
	assert.ErrorIs(t, err, ErrNoBackup)

	st := backup.Status(context.Background())
	assert.False(t, st.Configured)
	assert.False(t, st.Reachable)
}

func TestBackup_Status(t *testing.T) {
	backup, _ := newBackup(t)
	st := backup.Status(context.Background())
	assert.True(t, st.Configured)
	assert.True(t, st.Reachable)
	assert.Empty(t, st.Error)

	down, err := NewHTTPBlobStore("http://127.0.0.1:1")
	require.NoError(t, err)
	st = NewBackup(down).Status(context.Background())
	assert.True(t, st.Configured)
	assert.False(t, st.Reachable)
	assert.NotEmpty(t, st.Error)
}

func TestNewHTTPBlobStore_RejectsBadURL(t *testing.T) {
	_, err := NewHTTPBlobStore("ftp://example.com")
	assert.Error(t, err)
}

func TestBootstrap_SkipsWhenLocalCredsExist(t *testing.T) {
	backup, server := newBackup(t)
	st := storage.New(t.TempDir())
	boot := NewBootstrap(st, backup)
	ctx := context.Background()

	require.NoError(t, os.MkdirAll(boot.Dir("s1"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(boot.Dir("s1"), StoreFile), []byte("local"), 0600))

	restored, err := boot.Ensure(ctx, types.SessionDescriptor{Name: "s1", SessionID: "WAMUX-V1~x#AGE-SECRET-KEY-1X"})
	require.NoError(t, err)
	assert.False(t, restored)
	server.mu.Lock()
	defer server.mu.Unlock()
	assert.Zero(t, server.gets)
}

func TestBootstrap_RestoresFromLocator(t *testing.T) {
	backup, _ := newBackup(t)
	st := storage.New(t.TempDir())
	boot := NewBootstrap(st, backup)
	ctx := context.Background()

	loc, err := backup.Upload(ctx, "s1", []byte("device keys"))
	require.NoError(t, err)

	restored, err := boot.Ensure(ctx, types.SessionDescriptor{Name: "s1", SessionID: loc.String()})
	require.NoError(t, err)
	assert.True(t, restored)

	data, err := os.ReadFile(filepath.Join(boot.Dir("s1"), StoreFile))
	require.NoError(t, err)
	assert.Equal(t, "device keys", string(data))
	assert.True(t, boot.HasLocal(ctx, "s1"))

	// Push re-uploads the local file under a new locator.
	again, err := boot.Push(ctx, "s1")
	require.NoError(t, err)
	assert.NotEqual(t, loc.FileID, again.FileID)
	got, err := backup.Download(ctx, again.String())
	require.NoError(t, err)
	assert.Equal(t, "device keys", string(got))

	require.NoError(t, boot.Erase(ctx, "s1"))
	assert.False(t, boot.HasLocal(ctx, "s1"))
}

func TestBootstrap_PlainSessionIDNeedsPairing(t *testing.T) {
	boot := NewBootstrap(storage.New(t.TempDir()), nil)

	restored, err := boot.Ensure(context.Background(), types.SessionDescriptor{Name: "s1"})
	require.NoError(t, err)
	assert.False(t, restored)

	_, err = boot.Ensure(context.Background(), types.SessionDescriptor{Name: "s1", SessionID: "WAMUX-V1~a#AGE-SECRET-KEY-1"})
	assert.ErrorIs(t, err, ErrNoBackup)

	_, err = boot.Push(context.Background(), "s1")
	assert.Error(t, err)
}
