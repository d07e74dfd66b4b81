package filesystem

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/prn-tf/showcase-portal/internal/storage"
)

const testKey = "65f0a1b2c3d4e5f6a7b8c9d0"

func newTestBackend(t *testing.T) *Backend {
	t.Helper()
	b, err := NewBackend(Config{DataDir: t.TempDir()}, zerolog.Nop())
	require.NoError(t, err)
	return b
}

func TestBackend_StoreRetrieve(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	// CR/LF and NUL bytes must survive untouched.
	data := []byte("line1\r\nline2\n\x00\x01\xfe\xff")
	n, err := b.Store(ctx, testKey, bytes.NewReader(data))
	require.NoError(t, err)
	require.Equal(t, int64(len(data)), n)

	rc, err := b.Retrieve(ctx, testKey)
	require.NoError(t, err)
	defer rc.Close()
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.Equal(t, data, got)

	_, err = os.Stat(filepath.Join(b.paths.BasePath, "d0", "c9", testKey))
	require.NoError(t, err)
}

func TestBackend_DeleteIsDistinguishable(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	_, err := b.Store(ctx, testKey, bytes.NewReader([]byte("x")))
	require.NoError(t, err)

	require.NoError(t, b.Delete(ctx, testKey))
	err = b.Delete(ctx, testKey)
	require.ErrorIs(t, err, storage.ErrBlobNotFound)

	_, err = b.Retrieve(ctx, testKey)
	require.ErrorIs(t, err, storage.ErrBlobNotFound)

	exists, err := b.Exists(ctx, testKey)
	require.NoError(t, err)
	require.False(t, exists)
}

type failingReader struct {
	n int
}

func (f *failingReader) Read(p []byte) (int, error) {
	if f.n > 0 {
		f.n--
		p[0] = 'a'
		return 1, nil
	}
	return 0, errors.New("connection reset")
}

func TestBackend_FailedStoreLeavesNothing(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	_, err := b.Store(ctx, testKey, &failingReader{n: 3})
	require.Error(t, err)

	exists, err := b.Exists(ctx, testKey)
	require.NoError(t, err)
	require.False(t, exists)

	entries, err := os.ReadDir(b.tempDir)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestBackend_CancelledStoreLeavesNothing(t *testing.T) {
	b := newTestBackend(t)
	ctx, cancel := context.WithCancel(context.Background())

	pr, pw := io.Pipe()
	defer pr.Close()
	go func() {
		_, _ = pw.Write([]byte("partial"))
		cancel()
		_, _ = pw.Write([]byte("more"))
		_ = pw.Close()
	}()

	_, err := b.Store(ctx, testKey, pr)
	require.ErrorIs(t, err, context.Canceled)

	exists, err := b.Exists(context.Background(), testKey)
	require.NoError(t, err)
	require.False(t, exists)
}

func TestBackend_InvalidKey(t *testing.T) {
	b := newTestBackend(t)
	_, err := b.Store(context.Background(), "../escape", bytes.NewReader(nil))
	require.ErrorIs(t, err, storage.ErrInvalidKey)
}

func TestBackend_Walk(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	keys := []string{testKey, "65f0a1b2c3d4e5f6a7b8c9d1", "65f0a1b2c3d4e5f6a7b8ffff"}
	for _, k := range keys {
		_, err := b.Store(ctx, k, bytes.NewReader([]byte(k)))
		require.NoError(t, err)
	}

	// A stray temp file must not be reported.
	require.NoError(t, os.WriteFile(filepath.Join(b.tempDir, tempPrefix+"junk"), []byte("x"), 0o644))

	var seen []string
	err := b.Walk(ctx, func(info storage.ObjectInfo) error {
		require.Equal(t, int64(len(info.Key)), info.Size)
		seen = append(seen, info.Key)
		return nil
	})
	require.NoError(t, err)

	sort.Strings(keys)
	sort.Strings(seen)
	require.Equal(t, keys, seen)
}
