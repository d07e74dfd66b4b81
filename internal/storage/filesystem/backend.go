// Package filesystem implements storage.Backend on a local directory tree.
package filesystem

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/prn-tf/showcase-portal/internal/storage"
)

const tempPrefix = ".upload-"

// Config holds filesystem backend configuration.
type Config struct {
	// DataDir is the root of the sharded content tree.
	DataDir string

	// TempDir holds in-progress writes. It must be on the same filesystem as
	// DataDir so the final rename is atomic. Defaults to DataDir/tmp.
	TempDir string
}

// Backend stores blob content as files under a sharded directory tree.
type Backend struct {
	paths   storage.PathConfig
	tempDir string
	logger  zerolog.Logger
}

// NewBackend creates the directory tree and returns a ready backend.
func NewBackend(cfg Config, logger zerolog.Logger) (*Backend, error) {
	dataDir := strings.TrimSpace(cfg.DataDir)
	if dataDir == "" {
		return nil, fmt.Errorf("filesystem backend: data directory is required")
	}
	abs, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("filesystem backend: %w", err)
	}

	tempDir := cfg.TempDir
	if tempDir == "" {
		tempDir = filepath.Join(abs, "tmp")
	}

	for _, dir := range []string{abs, tempDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("filesystem backend: failed to create %s: %w", dir, err)
		}
	}

	return &Backend{
		paths:   storage.DefaultPathConfig(abs),
		tempDir: tempDir,
		logger:  logger.With().Str("component", "storage.filesystem").Logger(),
	}, nil
}

// Store implements storage.Backend.
func (b *Backend) Store(ctx context.Context, key string, reader io.Reader) (int64, error) {
	path, err := b.path(key)
	if err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	tmp, err := os.CreateTemp(b.tempDir, tempPrefix+"*")
	if err != nil {
		return 0, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}

	written, err := io.Copy(tmp, &contextReader{ctx: ctx, r: reader})
	if err != nil {
		cleanup()
		return 0, err
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return 0, fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return 0, fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		_ = os.Remove(tmpPath)
		return 0, fmt.Errorf("failed to create shard directory: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return 0, fmt.Errorf("failed to commit blob: %w", err)
	}

	b.logger.Debug().Str("key", key).Int64("size", written).Msg("content stored")
	return written, nil
}

// Retrieve implements storage.Backend.
func (b *Backend) Retrieve(ctx context.Context, key string) (io.ReadCloser, error) {
	path, err := b.path(key)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, storage.ErrBlobNotFound
		}
		return nil, fmt.Errorf("failed to open blob: %w", err)
	}
	return f, nil
}

// Delete implements storage.Backend.
func (b *Backend) Delete(ctx context.Context, key string) error {
	path, err := b.path(key)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return storage.ErrBlobNotFound
		}
		return fmt.Errorf("failed to delete blob: %w", err)
	}
	return nil
}

// Exists implements storage.Backend.
func (b *Backend) Exists(ctx context.Context, key string) (bool, error) {
	path, err := b.path(key)
	if err != nil {
		return false, err
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	_, err = os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("failed to stat blob: %w", err)
}

// Walk implements storage.Backend. Temp files are skipped.
func (b *Backend) Walk(ctx context.Context, fn func(storage.ObjectInfo) error) error {
	tempAbs, _ := filepath.Abs(b.tempDir)

	return filepath.WalkDir(b.paths.BasePath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			if path == tempAbs {
				return filepath.SkipDir
			}
			return nil
		}
		if !storage.ValidKey(d.Name()) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		return fn(storage.ObjectInfo{
			Key:     d.Name(),
			Size:    info.Size(),
			ModTime: info.ModTime().UTC(),
		})
	})
}

// Path returns the on-disk location for a key.
func (b *Backend) Path(key string) string {
	return storage.ComputePath(b.paths, key)
}

func (b *Backend) path(key string) (string, error) {
	if !storage.ValidKey(key) {
		return "", fmt.Errorf("%w: %q", storage.ErrInvalidKey, key)
	}
	return storage.ComputePath(b.paths, key), nil
}

// contextReader stops a copy as soon as its context is cancelled.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

var _ storage.Backend = (*Backend)(nil)
