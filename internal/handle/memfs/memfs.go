// Package memfs is an in-memory handle tree. It backs the "memory" sandbox
// and most tests.
package memfs

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/fruitsalade/mixtape/internal/handle"
)

type node struct {
	name     string
	dir      bool
	children map[string]*node
	data     []byte
}

// tree guards every node reachable from one root.
type tree struct {
	mu sync.RWMutex
}

// Dir is an in-memory directory handle.
type Dir struct {
	t *tree
	n *node
}

// File is an in-memory file handle.
type File struct {
	t *tree
	n *node
}

// New returns an empty root directory. Its name is empty.
func New() *Dir {
	return NewNamed("")
}

// NewNamed returns an empty root directory with the given name.
func NewNamed(name string) *Dir {
	return &Dir{
		t: &tree{},
		n: &node{name: name, dir: true, children: map[string]*node{}},
	}
}

func (d *Dir) Name() string      { return d.n.name }
func (d *Dir) Kind() handle.Kind { return handle.KindDirectory }

func (d *Dir) wrap(n *node) handle.Handle {
	if n.dir {
		return &Dir{t: d.t, n: n}
	}
	return &File{t: d.t, n: n}
}

// Entries implements handle.Directory.
func (d *Dir) Entries(_ context.Context) ([]handle.Handle, error) {
	d.t.mu.RLock()
	defer d.t.mu.RUnlock()

	out := make([]handle.Handle, 0, len(d.n.children))
	for _, c := range d.n.children {
		out = append(out, d.wrap(c))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out, nil
}

// Directory implements handle.Directory.
func (d *Dir) Directory(_ context.Context, name string, create bool) (handle.Directory, error) {
	if err := handle.ValidName(name); err != nil {
		return nil, err
	}
	d.t.mu.Lock()
	defer d.t.mu.Unlock()

	c, ok := d.n.children[name]
	switch {
	case ok && !c.dir:
		return nil, fmt.Errorf("%s: %w", name, handle.ErrTypeMismatch)
	case ok:
		return &Dir{t: d.t, n: c}, nil
	case !create:
		return nil, fmt.Errorf("%s: %w", name, handle.ErrNotFound)
	}
	c = &node{name: name, dir: true, children: map[string]*node{}}
	d.n.children[name] = c
	return &Dir{t: d.t, n: c}, nil
}

// File implements handle.Directory.
func (d *Dir) File(_ context.Context, name string, create bool) (handle.File, error) {
	if err := handle.ValidName(name); err != nil {
		return nil, err
	}
	d.t.mu.Lock()
	defer d.t.mu.Unlock()

	c, ok := d.n.children[name]
	switch {
	case ok && c.dir:
		return nil, fmt.Errorf("%s: %w", name, handle.ErrTypeMismatch)
	case ok:
		return &File{t: d.t, n: c}, nil
	case !create:
		return nil, fmt.Errorf("%s: %w", name, handle.ErrNotFound)
	}
	c = &node{name: name}
	d.n.children[name] = c
	return &File{t: d.t, n: c}, nil
}

// Remove implements handle.Directory.
func (d *Dir) Remove(_ context.Context, name string) error {
	if err := handle.ValidName(name); err != nil {
		return err
	}
	d.t.mu.Lock()
	defer d.t.mu.Unlock()

	if _, ok := d.n.children[name]; !ok {
		return fmt.Errorf("%s: %w", name, handle.ErrNotFound)
	}
	delete(d.n.children, name)
	return nil
}

func (f *File) Name() string      { return f.n.name }
func (f *File) Kind() handle.Kind { return handle.KindFile }

// Open implements handle.File. The reader sees a snapshot of the content.
func (f *File) Open(_ context.Context) (io.ReadCloser, error) {
	f.t.mu.RLock()
	defer f.t.mu.RUnlock()
	return io.NopCloser(bytes.NewReader(f.n.data)), nil
}

// Write implements handle.File.
func (f *File) Write(_ context.Context, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("write %s: %w", f.n.name, err)
	}
	f.t.mu.Lock()
	f.n.data = data
	f.t.mu.Unlock()
	return nil
}

// Size implements handle.File.
func (f *File) Size(_ context.Context) (int64, error) {
	f.t.mu.RLock()
	defer f.t.mu.RUnlock()
	return int64(len(f.n.data)), nil
}
