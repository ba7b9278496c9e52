// Package handle defines the capability model used for every directory tree
// mixtape navigates: the sandbox store, granted external directories, and
// in-memory trees.
//
// A Handle is opaque. Directories enumerate and open children by name;
// files are read and overwritten whole. Handles that point outside the
// sandbox may additionally be Permissioned and Locatable.
package handle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

var (
	// ErrNotFound is returned when a named child does not exist.
	ErrNotFound = errors.New("not found")
	// ErrTypeMismatch is returned when a child exists with the other kind.
	ErrTypeMismatch = errors.New("type mismatch")
	// ErrInvalidName is returned for names that cannot name a single entry.
	ErrInvalidName = errors.New("invalid name")
	// ErrPermissionDenied is returned when access to an external handle was refused.
	ErrPermissionDenied = errors.New("permission denied")
)

// Handle is a file or directory capability.
type Handle interface {
	Name() string
	Kind() Kind
}

// File is a handle to file content.
type File interface {
	Handle
	// Open returns a reader over the whole content.
	Open(ctx context.Context) (io.ReadCloser, error)
	// Write replaces the content with everything read from r.
	Write(ctx context.Context, r io.Reader) error
	Size(ctx context.Context) (int64, error)
}

// Directory is a handle to a directory.
type Directory interface {
	Handle
	// Entries lists the children sorted by name.
	Entries(ctx context.Context) ([]Handle, error)
	// Directory opens the named child directory, creating it if create is set.
	Directory(ctx context.Context, name string, create bool) (Directory, error)
	// File opens the named child file, creating an empty one if create is set.
	File(ctx context.Context, name string, create bool) (File, error)
	// Remove deletes the named child, recursively for directories.
	Remove(ctx context.Context, name string) error
}

// Mode is the access level asked for in a permission check.
type Mode int

const (
	ModeRead Mode = iota
	ModeReadWrite
)

func (m Mode) String() string {
	if m == ModeReadWrite {
		return "readwrite"
	}
	return "read"
}

// Permission is the answer to a permission query.
type Permission int

const (
	PermissionPrompt Permission = iota
	PermissionGranted
	PermissionDenied
)

func (p Permission) String() string {
	switch p {
	case PermissionGranted:
		return "granted"
	case PermissionDenied:
		return "denied"
	default:
		return "prompt"
	}
}

// Permissioned is implemented by handles whose access was granted from
// outside the process and may have lapsed.
type Permissioned interface {
	// QueryPermission reports the current state without asking anyone.
	QueryPermission(ctx context.Context, mode Mode) (Permission, error)
	// RequestPermission may block until a user answers. It honors ctx.
	RequestPermission(ctx context.Context, mode Mode) (Permission, error)
}

// EnsurePermission queries h and requests permission when the answer is not
// already granted. Handles that are not Permissioned are always accessible.
func EnsurePermission(ctx context.Context, h Handle, mode Mode) error {
	p, ok := h.(Permissioned)
	if !ok {
		return nil
	}
	state, err := p.QueryPermission(ctx, mode)
	if err != nil {
		return fmt.Errorf("query permission for %s: %w", h.Name(), err)
	}
	if state == PermissionGranted {
		return nil
	}
	state, err = p.RequestPermission(ctx, mode)
	if err != nil {
		return fmt.Errorf("request permission for %s: %w", h.Name(), err)
	}
	if state != PermissionGranted {
		return fmt.Errorf("%s: %w", h.Name(), ErrPermissionDenied)
	}
	return nil
}

// ValidName reports whether name can name a single directory entry.
func ValidName(name string) error {
	if name == "" || name == "." || name == ".." || strings.Contains(name, "/") {
		return fmt.Errorf("%q: %w", name, ErrInvalidName)
	}
	return nil
}

// AsDirectory narrows h to a Directory.
func AsDirectory(h Handle) (Directory, error) {
	d, ok := h.(Directory)
	if !ok || h.Kind() != KindDirectory {
		return nil, fmt.Errorf("%s is not a directory: %w", h.Name(), ErrTypeMismatch)
	}
	return d, nil
}

// AsFile narrows h to a File.
func AsFile(h Handle) (File, error) {
	f, ok := h.(File)
	if !ok || h.Kind() != KindFile {
		return nil, fmt.Errorf("%s is not a file: %w", h.Name(), ErrTypeMismatch)
	}
	return f, nil
}
