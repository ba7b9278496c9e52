package memfs

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/fruitsalade/mixtape/internal/handle"
)

func TestDirectoryCreateAndOpen(t *testing.T) {
	ctx := context.Background()
	root := New()

	if _, err := root.Directory(ctx, "music", false); !errors.Is(err, handle.ErrNotFound) {
		t.Fatalf("open missing dir: err = %v, want ErrNotFound", err)
	}
	created, err := root.Directory(ctx, "music", true)
	if err != nil {
		t.Fatalf("create dir: %v", err)
	}
	if created.Name() != "music" || created.Kind() != handle.KindDirectory {
		t.Errorf("created = %s/%v", created.Name(), created.Kind())
	}
	again, err := root.Directory(ctx, "music", false)
	if err != nil {
		t.Fatalf("reopen dir: %v", err)
	}
	if _, err := again.File(ctx, "a.mp3", true); err != nil {
		t.Fatalf("create file: %v", err)
	}
	if _, err := created.File(ctx, "a.mp3", false); err != nil {
		t.Errorf("file not visible through first handle: %v", err)
	}
}

func TestTypeMismatch(t *testing.T) {
	ctx := context.Background()
	root := New()
	root.File(ctx, "song", true)
	root.Directory(ctx, "album", true)

	if _, err := root.Directory(ctx, "song", false); !errors.Is(err, handle.ErrTypeMismatch) {
		t.Errorf("Directory(song): err = %v, want ErrTypeMismatch", err)
	}
	if _, err := root.File(ctx, "album", true); !errors.Is(err, handle.ErrTypeMismatch) {
		t.Errorf("File(album): err = %v, want ErrTypeMismatch", err)
	}
}

func TestInvalidNames(t *testing.T) {
	ctx := context.Background()
	root := New()
	for _, name := range []string{"", ".", "..", "a/b"} {
		if _, err := root.Directory(ctx, name, true); !errors.Is(err, handle.ErrInvalidName) {
			t.Errorf("Directory(%q): err = %v, want ErrInvalidName", name, err)
		}
	}
}

func TestEntriesSorted(t *testing.T) {
	ctx := context.Background()
	root := New()
	for _, name := range []string{"c", "a", "b"} {
		root.File(ctx, name, true)
	}
	entries, err := root.Entries(ctx)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	if got := strings.Join(names, ","); got != "a,b,c" {
		t.Errorf("entries = %s, want a,b,c", got)
	}
}

func TestFileWriteAndRead(t *testing.T) {
	ctx := context.Background()
	f, _ := New().File(ctx, "x", true)
	if err := f.Write(ctx, strings.NewReader("hello")); err != nil {
		t.Fatal(err)
	}
	if err := f.Write(ctx, strings.NewReader("bye")); err != nil {
		t.Fatal(err)
	}
	rc, _ := f.Open(ctx)
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	if string(data) != "bye" {
		t.Errorf("content = %q, want %q", data, "bye")
	}
	if n, _ := f.Size(ctx); n != 3 {
		t.Errorf("size = %d, want 3", n)
	}
}

func TestRemoveRecursive(t *testing.T) {
	ctx := context.Background()
	root := New()
	d, _ := root.Directory(ctx, "a", true)
	d.File(ctx, "x", true)

	if err := root.Remove(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	if _, err := root.Directory(ctx, "a", false); !errors.Is(err, handle.ErrNotFound) {
		t.Errorf("after remove: err = %v, want ErrNotFound", err)
	}
	if err := root.Remove(ctx, "a"); !errors.Is(err, handle.ErrNotFound) {
		t.Errorf("second remove: err = %v, want ErrNotFound", err)
	}
}
