// Package local provides a local filesystem storage backend.
package local

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fruitsalade/mixtape/internal/metrics"
	"github.com/fruitsalade/mixtape/internal/storage"
)

// The root holds two directories: objects is the key space and staging
// receives partial writes, so every name stays usable as a key.
const (
	objectsDir  = "objects"
	stagingDir  = "staging"
	tempPattern = "put-*.tmp"
)

// Config holds local filesystem backend settings.
type Config struct {
	RootPath   string
	CreateDirs bool
}

// Backend implements storage.Backend using the local filesystem.
// Prefixes map to directories under the objects directory.
type Backend struct {
	objectsPath string
	stagingPath string
}

var _ storage.Backend = (*Backend)(nil)

// New creates a new local filesystem backend.
func New(cfg Config) (*Backend, error) {
	if cfg.RootPath == "" {
		return nil, fmt.Errorf("root path is required")
	}

	info, err := os.Stat(cfg.RootPath)
	if err != nil {
		if os.IsNotExist(err) && cfg.CreateDirs {
			if mkErr := os.MkdirAll(cfg.RootPath, 0755); mkErr != nil {
				return nil, fmt.Errorf("create root path %s: %w", cfg.RootPath, mkErr)
			}
		} else {
			return nil, fmt.Errorf("stat root path %s: %w", cfg.RootPath, err)
		}
	} else if !info.IsDir() {
		return nil, fmt.Errorf("root path %s is not a directory", cfg.RootPath)
	}

	b := &Backend{
		objectsPath: filepath.Join(cfg.RootPath, objectsDir),
		stagingPath: filepath.Join(cfg.RootPath, stagingDir),
	}
	for _, dir := range []string{b.objectsPath, b.stagingPath} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return b, nil
}

func (b *Backend) fullPath(key string) string {
	return filepath.Join(b.objectsPath, filepath.FromSlash(strings.TrimSuffix(key, "/")))
}

// record is deferred with a pointer to the named error result.
func record(op string, start time.Time, err *error) {
	metrics.RecordStorageOperation("local", op, time.Since(start), *err == nil)
}

// GetObject opens a file for reading.
func (b *Backend) GetObject(_ context.Context, key string) (rc io.ReadCloser, size int64, err error) {
	defer record("get_object", time.Now(), &err)

	f, err := os.Open(b.fullPath(key))
	if err != nil {
		return nil, 0, fmt.Errorf("open %s: %w", key, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, fmt.Errorf("stat %s: %w", key, err)
	}
	if info.IsDir() {
		f.Close()
		return nil, 0, fmt.Errorf("open %s: is a directory: %w", key, fs.ErrNotExist)
	}
	return f, info.Size(), nil
}

// PutObject writes content atomically through a temp file in the staging
// directory, which shares the objects directory's filesystem.
func (b *Backend) PutObject(_ context.Context, key string, body io.Reader, _ int64) (err error) {
	defer record("put_object", time.Now(), &err)

	path := b.fullPath(key)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create dirs for %s: %w", key, err)
	}

	tmp, err := os.CreateTemp(b.stagingPath, tempPattern)
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", key, err)
	}
	tmpName := tmp.Name()

	if _, err := io.Copy(tmp, body); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp for %s: %w", key, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename temp to %s: %w", key, err)
	}
	return nil
}

// DeleteObject removes a file.
func (b *Backend) DeleteObject(_ context.Context, key string) (err error) {
	defer record("delete_object", time.Now(), &err)

	if err := os.Remove(b.fullPath(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// ObjectExists reports whether a regular file exists at key.
func (b *Backend) ObjectExists(_ context.Context, key string) (bool, error) {
	info, err := os.Stat(b.fullPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("stat %s: %w", key, err)
	}
	return !info.IsDir(), nil
}

// List reads one directory level.
func (b *Backend) List(_ context.Context, prefix string) (out []storage.ObjectInfo, err error) {
	defer record("list", time.Now(), &err)

	entries, err := os.ReadDir(b.fullPath(prefix))
	if err != nil {
		return nil, fmt.Errorf("list %q: %w", prefix, err)
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			out = append(out, storage.ObjectInfo{Key: prefix + name + "/", IsPrefix: true})
			continue
		}
		info, err := e.Info()
		if err != nil {
			// Removed between ReadDir and Info.
			continue
		}
		out = append(out, storage.ObjectInfo{Key: prefix + name, Size: info.Size()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// MakePrefix creates the directory for prefix.
func (b *Backend) MakePrefix(_ context.Context, prefix string) (err error) {
	defer record("make_prefix", time.Now(), &err)

	if err := os.MkdirAll(b.fullPath(prefix), 0755); err != nil {
		return fmt.Errorf("mkdir %s: %w", prefix, err)
	}
	return nil
}

// DeletePrefix removes the directory for prefix and its contents.
func (b *Backend) DeletePrefix(_ context.Context, prefix string) (err error) {
	defer record("delete_prefix", time.Now(), &err)

	if prefix == "" {
		return fmt.Errorf("refusing to delete backend root")
	}
	if err := os.RemoveAll(b.fullPath(prefix)); err != nil {
		return fmt.Errorf("delete %s: %w", prefix, err)
	}
	return nil
}

// PrefixExists reports whether a directory exists for prefix.
func (b *Backend) PrefixExists(_ context.Context, prefix string) (bool, error) {
	info, err := os.Stat(b.fullPath(prefix))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("stat %s: %w", prefix, err)
	}
	return info.IsDir(), nil
}

// Type returns "local".
func (b *Backend) Type() string { return "local" }

// Close is a no-op for local backends.
func (b *Backend) Close() error { return nil }
