// Package osfs provides handles over directories of the host filesystem.
// They are the externally granted handles: reads require a read grant from
// the Gate the handle was opened with, and creating, writing or removing
// requires a readwrite grant, which is requested on demand.
package osfs

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/fruitsalade/mixtape/internal/handle"
)

// Scheme is the Locator scheme for host paths.
const Scheme = "file"

// Dir is a host directory handle.
type Dir struct {
	gate *Gate
	path string
}

// File is a host file handle.
type File struct {
	gate *Gate
	path string
}

var (
	_ handle.Directory    = (*Dir)(nil)
	_ handle.Permissioned = (*Dir)(nil)
	_ handle.Locatable    = (*Dir)(nil)
	_ handle.File         = (*File)(nil)
	_ handle.Permissioned = (*File)(nil)
	_ handle.Locatable    = (*File)(nil)
)

// Open returns a handle for an existing host path. Opening does not need
// permission; using the handle does.
func Open(gate *Gate, path string) (handle.Handle, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", abs, handle.ErrNotFound)
		}
		return nil, err
	}
	if info.IsDir() {
		return &Dir{gate: gate, path: abs}, nil
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%s is not a regular file: %w", abs, handle.ErrTypeMismatch)
	}
	return &File{gate: gate, path: abs}, nil
}

// OpenDir is Open restricted to directories.
func OpenDir(gate *Gate, path string) (*Dir, error) {
	h, err := Open(gate, path)
	if err != nil {
		return nil, err
	}
	d, ok := h.(*Dir)
	if !ok {
		return nil, fmt.Errorf("%s: %w", path, handle.ErrTypeMismatch)
	}
	return d, nil
}

// Path returns the absolute host path.
func (d *Dir) Path() string { return d.path }

func (d *Dir) Name() string      { return filepath.Base(d.path) }
func (d *Dir) Kind() handle.Kind { return handle.KindDirectory }

func (d *Dir) Locator() handle.Locator {
	return handle.Locator{Scheme: Scheme, Kind: handle.KindDirectory, Path: d.path}
}

func (d *Dir) QueryPermission(_ context.Context, mode handle.Mode) (handle.Permission, error) {
	return d.gate.Query(d.path, mode), nil
}

func (d *Dir) RequestPermission(ctx context.Context, mode handle.Mode) (handle.Permission, error) {
	return d.gate.Request(ctx, d.path, mode)
}

// Entries lists directories and regular files. Symlinks and special files
// are skipped.
func (d *Dir) Entries(_ context.Context) ([]handle.Handle, error) {
	if err := d.gate.check(d.path, handle.ModeRead); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(d.path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", d.path, err)
	}
	out := make([]handle.Handle, 0, len(entries))
	for _, e := range entries {
		p := filepath.Join(d.path, e.Name())
		switch {
		case e.IsDir():
			out = append(out, &Dir{gate: d.gate, path: p})
		case e.Type().IsRegular():
			out = append(out, &File{gate: d.gate, path: p})
		}
	}
	return out, nil
}

func (d *Dir) child(name string) (string, os.FileInfo, error) {
	if err := handle.ValidName(name); err != nil {
		return "", nil, err
	}
	if err := d.gate.check(d.path, handle.ModeRead); err != nil {
		return "", nil, err
	}
	p := filepath.Join(d.path, name)
	info, err := os.Lstat(p)
	if err != nil && !os.IsNotExist(err) {
		return "", nil, err
	}
	return p, info, nil
}

// Directory implements handle.Directory.
func (d *Dir) Directory(ctx context.Context, name string, create bool) (handle.Directory, error) {
	p, info, err := d.child(name)
	if err != nil {
		return nil, err
	}
	switch {
	case info != nil && !info.IsDir():
		return nil, fmt.Errorf("%s: %w", p, handle.ErrTypeMismatch)
	case info != nil:
		return &Dir{gate: d.gate, path: p}, nil
	case !create:
		return nil, fmt.Errorf("%s: %w", p, handle.ErrNotFound)
	}
	if err := d.gate.require(ctx, d.path); err != nil {
		return nil, err
	}
	if err := os.Mkdir(p, 0755); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", p, err)
	}
	return &Dir{gate: d.gate, path: p}, nil
}

// File implements handle.Directory.
func (d *Dir) File(ctx context.Context, name string, create bool) (handle.File, error) {
	p, info, err := d.child(name)
	if err != nil {
		return nil, err
	}
	switch {
	case info != nil && !info.Mode().IsRegular():
		return nil, fmt.Errorf("%s: %w", p, handle.ErrTypeMismatch)
	case info != nil:
		return &File{gate: d.gate, path: p}, nil
	case !create:
		return nil, fmt.Errorf("%s: %w", p, handle.ErrNotFound)
	}
	if err := d.gate.require(ctx, d.path); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(p, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", p, err)
	}
	f.Close()
	return &File{gate: d.gate, path: p}, nil
}

// Remove implements handle.Directory. It needs readwrite access.
func (d *Dir) Remove(ctx context.Context, name string) error {
	p, info, err := d.child(name)
	if err != nil {
		return err
	}
	if info == nil {
		return fmt.Errorf("%s: %w", p, handle.ErrNotFound)
	}
	if err := d.gate.require(ctx, d.path); err != nil {
		return err
	}
	if err := os.RemoveAll(p); err != nil {
		return fmt.Errorf("remove %s: %w", p, err)
	}
	return nil
}

// Path returns the absolute host path.
func (f *File) Path() string { return f.path }

func (f *File) Name() string      { return filepath.Base(f.path) }
func (f *File) Kind() handle.Kind { return handle.KindFile }

func (f *File) Locator() handle.Locator {
	return handle.Locator{Scheme: Scheme, Kind: handle.KindFile, Path: f.path}
}

func (f *File) QueryPermission(_ context.Context, mode handle.Mode) (handle.Permission, error) {
	return f.gate.Query(f.path, mode), nil
}

func (f *File) RequestPermission(ctx context.Context, mode handle.Mode) (handle.Permission, error) {
	return f.gate.Request(ctx, f.path, mode)
}

// Open implements handle.File.
func (f *File) Open(_ context.Context) (io.ReadCloser, error) {
	if err := f.gate.check(f.path, handle.ModeRead); err != nil {
		return nil, err
	}
	r, err := os.Open(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", f.path, handle.ErrNotFound)
		}
		return nil, err
	}
	return r, nil
}

// Write replaces the file atomically through a temp file in the same
// directory. It needs readwrite access.
func (f *File) Write(ctx context.Context, r io.Reader) error {
	if err := f.gate.require(ctx, f.path); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".mixtape-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", f.path, err)
	}
	tmpName := tmp.Name()

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", f.path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp for %s: %w", f.path, err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename temp to %s: %w", f.path, err)
	}
	return nil
}

// Size implements handle.File.
func (f *File) Size(_ context.Context) (int64, error) {
	if err := f.gate.check(f.path, handle.ModeRead); err != nil {
		return 0, err
	}
	info, err := os.Stat(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, fmt.Errorf("%s: %w", f.path, handle.ErrNotFound)
		}
		return 0, err
	}
	return info.Size(), nil
}

// Resolver reopens host handles from "file" locators.
type Resolver struct {
	Gate *Gate
}

// Resolve implements handle.Resolver.
func (r Resolver) Resolve(_ context.Context, loc handle.Locator) (handle.Handle, error) {
	if loc.Scheme != Scheme {
		return nil, fmt.Errorf("osfs cannot resolve scheme %q", loc.Scheme)
	}
	return Open(r.Gate, loc.Path)
}
