// Package objfs exposes a storage.Backend as a handle tree. Directories are
// key prefixes and files are objects; the root is the empty prefix.
package objfs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strings"

	"github.com/fruitsalade/mixtape/internal/handle"
	"github.com/fruitsalade/mixtape/internal/storage"
)

// Dir is a directory handle over a key prefix.
type Dir struct {
	backend storage.Backend
	name    string
	prefix  string
}

// File is a file handle over one object key.
type File struct {
	backend storage.Backend
	name    string
	key     string
}

// New returns the root directory of the backend. Its name is empty.
func New(b storage.Backend) *Dir {
	return &Dir{backend: b}
}

func (d *Dir) Name() string      { return d.name }
func (d *Dir) Kind() handle.Kind { return handle.KindDirectory }

// Entries implements handle.Directory.
func (d *Dir) Entries(ctx context.Context) ([]handle.Handle, error) {
	infos, err := d.backend.List(ctx, d.prefix)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", d.prefix, handle.ErrNotFound)
		}
		return nil, err
	}
	out := make([]handle.Handle, 0, len(infos))
	for _, info := range infos {
		name := strings.TrimSuffix(strings.TrimPrefix(info.Key, d.prefix), "/")
		if name == "" {
			continue
		}
		if info.IsPrefix {
			out = append(out, &Dir{backend: d.backend, name: name, prefix: info.Key})
		} else {
			out = append(out, &File{backend: d.backend, name: name, key: info.Key})
		}
	}
	return out, nil
}

// Directory implements handle.Directory.
func (d *Dir) Directory(ctx context.Context, name string, create bool) (handle.Directory, error) {
	if err := handle.ValidName(name); err != nil {
		return nil, err
	}
	key := d.prefix + name
	child := &Dir{backend: d.backend, name: name, prefix: key + "/"}

	isFile, err := d.backend.ObjectExists(ctx, key)
	if err != nil {
		return nil, err
	}
	if isFile {
		return nil, fmt.Errorf("%s: %w", key, handle.ErrTypeMismatch)
	}
	exists, err := d.backend.PrefixExists(ctx, child.prefix)
	if err != nil {
		return nil, err
	}
	if exists {
		return child, nil
	}
	if !create {
		return nil, fmt.Errorf("%s: %w", key, handle.ErrNotFound)
	}
	if err := d.backend.MakePrefix(ctx, child.prefix); err != nil {
		return nil, err
	}
	return child, nil
}

// File implements handle.Directory.
func (d *Dir) File(ctx context.Context, name string, create bool) (handle.File, error) {
	if err := handle.ValidName(name); err != nil {
		return nil, err
	}
	key := d.prefix + name
	child := &File{backend: d.backend, name: name, key: key}

	isDir, err := d.backend.PrefixExists(ctx, key+"/")
	if err != nil {
		return nil, err
	}
	if isDir {
		return nil, fmt.Errorf("%s: %w", key, handle.ErrTypeMismatch)
	}
	exists, err := d.backend.ObjectExists(ctx, key)
	if err != nil {
		return nil, err
	}
	if exists {
		return child, nil
	}
	if !create {
		return nil, fmt.Errorf("%s: %w", key, handle.ErrNotFound)
	}
	if err := d.backend.PutObject(ctx, key, bytes.NewReader(nil), 0); err != nil {
		return nil, err
	}
	return child, nil
}

// Remove implements handle.Directory.
func (d *Dir) Remove(ctx context.Context, name string) error {
	if err := handle.ValidName(name); err != nil {
		return err
	}
	key := d.prefix + name

	isFile, err := d.backend.ObjectExists(ctx, key)
	if err != nil {
		return err
	}
	if isFile {
		return d.backend.DeleteObject(ctx, key)
	}
	isDir, err := d.backend.PrefixExists(ctx, key+"/")
	if err != nil {
		return err
	}
	if !isDir {
		return fmt.Errorf("%s: %w", key, handle.ErrNotFound)
	}
	return d.backend.DeletePrefix(ctx, key+"/")
}

func (f *File) Name() string      { return f.name }
func (f *File) Kind() handle.Kind { return handle.KindFile }

// Open implements handle.File.
func (f *File) Open(ctx context.Context) (io.ReadCloser, error) {
	rc, _, err := f.backend.GetObject(ctx, f.key)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", f.key, handle.ErrNotFound)
		}
		return nil, err
	}
	return rc, nil
}

// Write implements handle.File.
func (f *File) Write(ctx context.Context, r io.Reader) error {
	return f.backend.PutObject(ctx, f.key, r, -1)
}

// Size implements handle.File.
func (f *File) Size(ctx context.Context) (int64, error) {
	rc, size, err := f.backend.GetObject(ctx, f.key)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, fmt.Errorf("%s: %w", f.key, handle.ErrNotFound)
		}
		return 0, err
	}
	rc.Close()
	return size, nil
}
