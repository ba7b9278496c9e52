// Package ingest describes items picked for import or linking, before they
// reach the sandbox.
package ingest

import (
	"context"
	"fmt"
	"strings"

	"github.com/fruitsalade/mixtape/internal/handle"
)

// Meta is shared by both entity kinds. Paths are relative and
// slash-separated; Parent is empty for items picked directly.
type Meta struct {
	Name   string `json:"name"`
	Parent string `json:"parent,omitempty"`
	Path   string `json:"path"`
}

// Entity is a FileEntity or a DirectoryEntity.
type Entity interface {
	Kind() handle.Kind
	Info() Meta
	// Source returns the picked handle, which may be nil for directories
	// reconstructed from file paths.
	Source() handle.Handle
	isEntity()
}

// FileEntity is a picked file. Handle supplies the content.
type FileEntity struct {
	Meta
	Handle handle.File `json:"-"`
}

// DirectoryEntity is a picked directory.
type DirectoryEntity struct {
	Meta
	Handle handle.Directory `json:"-"`
}

func (FileEntity) Kind() handle.Kind      { return handle.KindFile }
func (FileEntity) isEntity()              {}
func (f FileEntity) Info() Meta           { return f.Meta }
func (DirectoryEntity) Kind() handle.Kind { return handle.KindDirectory }
func (DirectoryEntity) isEntity()         {}
func (d DirectoryEntity) Info() Meta      { return d.Meta }

func (f FileEntity) Source() handle.Handle {
	if f.Handle == nil {
		return nil
	}
	return f.Handle
}

func (d DirectoryEntity) Source() handle.Handle {
	if d.Handle == nil {
		return nil
	}
	return d.Handle
}

// Batch is one acquisition result. Directories are ordered parents before
// children.
type Batch struct {
	Files       []FileEntity
	Directories []DirectoryEntity
}

// Orphans returns the entities without a parent, directories first.
func (b Batch) Orphans() []Entity {
	var out []Entity
	for _, d := range b.Directories {
		if d.Parent == "" {
			out = append(out, d)
		}
	}
	for _, f := range b.Files {
		if f.Parent == "" {
			out = append(out, f)
		}
	}
	return out
}

// Append adds other's entities after b's.
func (b *Batch) Append(other Batch) {
	b.Files = append(b.Files, other.Files...)
	b.Directories = append(b.Directories, other.Directories...)
}

// Scan walks dir and returns it and everything below it. dir itself is the
// first directory. Files are kept only when keep returns true; a nil keep
// keeps everything.
func Scan(ctx context.Context, dir handle.Directory, keep func(handle.Handle) bool) (Batch, error) {
	root := DirectoryEntity{
		Meta:   Meta{Name: dir.Name(), Path: dir.Name()},
		Handle: dir,
	}
	b := Batch{Directories: []DirectoryEntity{root}}
	if err := scan(ctx, dir, root.Path, keep, &b); err != nil {
		return Batch{}, err
	}
	return b, nil
}

func scan(ctx context.Context, dir handle.Directory, base string, keep func(handle.Handle) bool, b *Batch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	entries, err := dir.Entries(ctx)
	if err != nil {
		return fmt.Errorf("scan %s: %w", base, err)
	}
	for _, e := range entries {
		meta := Meta{Name: e.Name(), Parent: base, Path: base + "/" + e.Name()}
		switch e.Kind() {
		case handle.KindDirectory:
			sub, err := handle.AsDirectory(e)
			if err != nil {
				return err
			}
			b.Directories = append(b.Directories, DirectoryEntity{Meta: meta, Handle: sub})
			if err := scan(ctx, sub, meta.Path, keep, b); err != nil {
				return err
			}
		case handle.KindFile:
			if keep != nil && !keep(e) {
				continue
			}
			f, err := handle.AsFile(e)
			if err != nil {
				return err
			}
			b.Files = append(b.Files, FileEntity{Meta: meta, Handle: f})
		}
	}
	return nil
}

// Files builds a batch of individually picked files.
func Files(files ...handle.File) Batch {
	var b Batch
	for _, f := range files {
		b.Files = append(b.Files, FileEntity{Meta: Meta{Name: f.Name(), Path: f.Name()}, Handle: f})
	}
	return b
}

// CheckOrder reports the first directory whose parent was not listed before
// it, or a file whose parent is not listed at all.
func CheckOrder(b Batch) error {
	seen := map[string]bool{}
	for _, d := range b.Directories {
		if d.Parent != "" && !seen[d.Parent] {
			return fmt.Errorf("directory %s listed before its parent %s", d.Path, d.Parent)
		}
		seen[d.Path] = true
	}
	for _, f := range b.Files {
		if f.Parent != "" && !seen[f.Parent] {
			return fmt.Errorf("file %s has unknown parent %s", f.Path, f.Parent)
		}
	}
	return nil
}

// SandboxPath is the absolute sandbox path of a relative entity path.
func SandboxPath(rel string) string {
	return "/" + strings.TrimPrefix(rel, "/")
}
