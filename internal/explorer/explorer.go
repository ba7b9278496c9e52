// Package explorer implements path-style navigation over handle trees.
//
// An Explorer keeps a stack of directory handles, root first. A
// MountingExplorer keeps a stack of Explorers and lets registered
// MountStrategy values replace the active context with one resolved from a
// link-like file. Neither type is safe for concurrent use; callers serialize
// navigation on one instance.
package explorer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/fruitsalade/mixtape/internal/handle"
)

// RootProvider supplies the root directory for new Explorers.
type RootProvider interface {
	Root(ctx context.Context) (handle.Directory, error)
}

// Explorer navigates one handle tree.
type Explorer struct {
	stack []handle.Directory
}

// New creates an Explorer positioned at root.
func New(root handle.Directory) (*Explorer, error) {
	if root == nil {
		return nil, errors.New("root directory not found")
	}
	return &Explorer{stack: []handle.Directory{root}}, nil
}

// NewFromProvider creates an Explorer at the provider's root.
func NewFromProvider(ctx context.Context, p RootProvider) (*Explorer, error) {
	root, err := p.Root(ctx)
	if err != nil {
		return nil, fmt.Errorf("sandbox root: %w", err)
	}
	return New(root)
}

// Root returns the bottom of the path stack.
func (e *Explorer) Root() handle.Directory {
	return e.stack[0]
}

// CurrentDirectory returns the top of the path stack.
func (e *Explorer) CurrentDirectory() handle.Directory {
	return e.stack[len(e.stack)-1]
}

// Path returns a copy of the path stack.
func (e *Explorer) Path() []handle.Directory {
	out := make([]handle.Directory, len(e.stack))
	copy(out, e.stack)
	return out
}

// PathString returns "/" at the root, else the stack's names joined by "/".
func (e *Explorer) PathString() string {
	if len(e.stack) <= 1 {
		return "/"
	}
	names := make([]string, len(e.stack))
	for i, d := range e.stack {
		names[i] = d.Name()
	}
	return strings.Join(names, "/")
}

// ChangeDirectory navigates along path. A leading "/" starts from the root;
// "." is ignored and ".." at the root stays at the root. When any segment
// fails the position is left unchanged.
func (e *Explorer) ChangeDirectory(ctx context.Context, path string) error {
	next, err := e.walk(ctx, e.stack, path)
	if err != nil {
		return err
	}
	e.stack = next
	return nil
}

func (e *Explorer) walk(ctx context.Context, from []handle.Directory, path string) ([]handle.Directory, error) {
	stack := make([]handle.Directory, len(from), len(from)+4)
	copy(stack, from)
	if strings.HasPrefix(path, "/") {
		stack = stack[:1]
	}

	for _, seg := range strings.Split(path, "/") {
		switch seg {
		case "", ".":
		case "..":
			if len(stack) > 1 {
				stack = stack[:len(stack)-1]
			}
		default:
			child, err := stack[len(stack)-1].Directory(ctx, seg, false)
			if err != nil {
				return nil, fmt.Errorf("change directory to %s: %w", path, err)
			}
			stack = append(stack, child)
		}
	}
	return stack, nil
}

// splitLeaf splits "a/b/c" into "a/b" and "c". A name without "/" has an
// empty directory part; "/c" resolves against the root.
func splitLeaf(name string) (dir, leaf string) {
	i := strings.LastIndex(name, "/")
	if i < 0 {
		return "", name
	}
	if i == 0 {
		return "/", name[1:]
	}
	return name[:i], name[i+1:]
}

// directoryFor returns the directory a possibly nested name lives in,
// without moving the Explorer.
func (e *Explorer) directoryFor(ctx context.Context, name string) (handle.Directory, string, error) {
	dir, leaf := splitLeaf(name)
	if dir == "" {
		return e.CurrentDirectory(), leaf, nil
	}
	stack, err := e.walk(ctx, e.stack, dir)
	if err != nil {
		return nil, "", err
	}
	return stack[len(stack)-1], leaf, nil
}

// CreateDirectory creates or opens the named child of the current directory.
func (e *Explorer) CreateDirectory(ctx context.Context, name string) (handle.Directory, error) {
	return e.CurrentDirectory().Directory(ctx, name, true)
}

// Remove recursively removes the named child of the current directory.
func (e *Explorer) Remove(ctx context.Context, name string) error {
	return e.CurrentDirectory().Remove(ctx, name)
}

// ListItems returns the immediate children of the current directory.
func (e *Explorer) ListItems(ctx context.Context) ([]handle.Handle, error) {
	return e.CurrentDirectory().Entries(ctx)
}

// PutFile creates or overwrites the named file in the current directory.
func (e *Explorer) PutFile(ctx context.Context, name string, content io.Reader) (handle.File, error) {
	f, err := e.CurrentDirectory().File(ctx, name, true)
	if err != nil {
		return nil, err
	}
	if err := f.Write(ctx, content); err != nil {
		return nil, fmt.Errorf("put %s: %w", name, err)
	}
	return f, nil
}

// FileHandle resolves a file by name. Names containing "/" are resolved
// relative to the current directory, or the root when they start with "/";
// the Explorer's position is the same afterwards either way.
func (e *Explorer) FileHandle(ctx context.Context, name string) (handle.File, error) {
	dir, leaf, err := e.directoryFor(ctx, name)
	if err != nil {
		return nil, err
	}
	return dir.File(ctx, leaf, false)
}

// GetFile opens a file's content. See FileHandle for name resolution.
func (e *Explorer) GetFile(ctx context.Context, name string) (io.ReadCloser, error) {
	f, err := e.FileHandle(ctx, name)
	if err != nil {
		return nil, err
	}
	return f.Open(ctx)
}

// Handle resolves a child of either kind by name, resolving nested names
// like FileHandle.
func (e *Explorer) Handle(ctx context.Context, name string) (handle.Handle, error) {
	dir, leaf, err := e.directoryFor(ctx, name)
	if err != nil {
		return nil, err
	}
	f, err := dir.File(ctx, leaf, false)
	if err == nil {
		return f, nil
	}
	if !errors.Is(err, handle.ErrTypeMismatch) {
		return nil, err
	}
	return dir.Directory(ctx, leaf, false)
}

// FilterByExtensions returns a predicate matching handles whose name ends in
// one of exts (".mp3" style). Matching ignores case.
func FilterByExtensions(exts []string) func(handle.Handle) bool {
	set := make(map[string]struct{}, len(exts))
	for _, ext := range exts {
		set[strings.ToLower(ext)] = struct{}{}
	}
	return func(h handle.Handle) bool {
		_, ok := set[strings.ToLower(filepath.Ext(h.Name()))]
		return ok
	}
}
