package explorer

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/fruitsalade/mixtape/internal/handle"
	"github.com/fruitsalade/mixtape/internal/handle/memfs"
)

// newTree builds /a/b/c and /x/y in an in-memory root.
func newTree(t *testing.T) *memfs.Dir {
	t.Helper()
	ctx := context.Background()
	root := memfs.New()
	a, _ := root.Directory(ctx, "a", true)
	b, _ := a.Directory(ctx, "b", true)
	b.Directory(ctx, "c", true)
	x, _ := root.Directory(ctx, "x", true)
	x.Directory(ctx, "y", true)
	return root
}

func newExplorer(t *testing.T) *Explorer {
	t.Helper()
	e, err := New(newTree(t))
	if err != nil {
		t.Fatal(err)
	}
	return e
}

func TestNew_NilRoot(t *testing.T) {
	if _, err := New(nil); err == nil {
		t.Error("New(nil) should fail")
	}
}

func TestPathStringAtRoot(t *testing.T) {
	e := newExplorer(t)
	if got := e.PathString(); got != "/" {
		t.Errorf("PathString = %q, want /", got)
	}
	if len(e.Path()) != 1 {
		t.Errorf("Path length = %d, want 1", len(e.Path()))
	}
}

func TestChangeDirectory(t *testing.T) {
	tests := []struct {
		name  string
		start string
		path  string
		want  string
	}{
		{"single", "", "a", "/a"},
		{"nested", "", "a/b/c", "/a/b/c"},
		{"dot ignored", "", "a/./b", "/a/b"},
		{"empty segments", "", "a//b/", "/a/b"},
		{"dotdot pops", "", "a/b/..", "/a"},
		{"dotdot floored", "", "../../a", "/a"},
		{"dotdot at root", "", "..", "/"},
		{"absolute from root", "", "/x/y", "/x/y"},
		{"absolute from elsewhere", "a/b/c", "/x/y", "/x/y"},
		{"relative from nested", "a", "b/c", "/a/b/c"},
		{"slash only", "a/b", "/", "/"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			e := newExplorer(t)
			if err := e.ChangeDirectory(ctx, tt.start); err != nil {
				t.Fatalf("start: %v", err)
			}
			if err := e.ChangeDirectory(ctx, tt.path); err != nil {
				t.Fatalf("ChangeDirectory(%q): %v", tt.path, err)
			}
			if got := e.PathString(); got != tt.want {
				t.Errorf("PathString = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestChangeDirectory_AbsoluteIgnoresPriorPosition(t *testing.T) {
	ctx := context.Background()
	e1 := newExplorer(t)
	e2 := newExplorer(t)
	e2.ChangeDirectory(ctx, "x/y")

	e1.ChangeDirectory(ctx, "/a/b")
	e2.ChangeDirectory(ctx, "/a/b")
	if e1.PathString() != e2.PathString() {
		t.Errorf("%q != %q", e1.PathString(), e2.PathString())
	}
}

func TestChangeDirectory_NotFoundLeavesPosition(t *testing.T) {
	ctx := context.Background()
	e := newExplorer(t)
	e.ChangeDirectory(ctx, "a")

	err := e.ChangeDirectory(ctx, "b/missing")
	if !errors.Is(err, handle.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if got := e.PathString(); got != "/a" {
		t.Errorf("PathString after failure = %q, want /a", got)
	}
}

func TestPathIsACopy(t *testing.T) {
	e := newExplorer(t)
	e.ChangeDirectory(context.Background(), "a")
	p := e.Path()
	p[1] = p[0]
	if e.PathString() != "/a" {
		t.Errorf("mutating Path() changed the explorer: %q", e.PathString())
	}
}

func TestCreateDirectoryAndList(t *testing.T) {
	ctx := context.Background()
	e := newExplorer(t)
	if _, err := e.CreateDirectory(ctx, "new"); err != nil {
		t.Fatal(err)
	}
	if _, err := e.CreateDirectory(ctx, "new"); err != nil {
		t.Fatalf("second create should be idempotent: %v", err)
	}
	items, err := e.ListItems(ctx)
	if err != nil {
		t.Fatal(err)
	}
	var found bool
	for _, it := range items {
		if it.Name() == "new" && it.Kind() == handle.KindDirectory {
			found = true
		}
	}
	if !found {
		t.Errorf("ListItems = %v, missing directory new", items)
	}
}

func TestRemove(t *testing.T) {
	ctx := context.Background()
	e := newExplorer(t)
	if err := e.Remove(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	if err := e.ChangeDirectory(ctx, "a"); !errors.Is(err, handle.ErrNotFound) {
		t.Errorf("after remove err = %v", err)
	}
	if err := e.Remove(ctx, "a"); !errors.Is(err, handle.ErrNotFound) {
		t.Errorf("remove missing err = %v", err)
	}
}

func readAll(t *testing.T, rc io.ReadCloser) string {
	t.Helper()
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func TestPutFileGetFile(t *testing.T) {
	ctx := context.Background()
	e := newExplorer(t)
	e.ChangeDirectory(ctx, "a")
	if _, err := e.PutFile(ctx, "song.mp3", strings.NewReader("bytes")); err != nil {
		t.Fatal(err)
	}
	rc, err := e.GetFile(ctx, "song.mp3")
	if err != nil {
		t.Fatal(err)
	}
	if got := readAll(t, rc); got != "bytes" {
		t.Errorf("content = %q", got)
	}
}

func TestGetFile_NestedNameRestoresPosition(t *testing.T) {
	ctx := context.Background()
	e := newExplorer(t)
	e.ChangeDirectory(ctx, "a/b")
	e.PutFile(ctx, "t.flac", strings.NewReader("flac"))
	e.ChangeDirectory(ctx, "/x")

	tests := []struct {
		name    string
		wantErr error
	}{
		{"/a/b/t.flac", nil},
		{"../a/b/t.flac", nil},
		{"/a/b/missing.flac", handle.ErrNotFound},
		{"/nope/t.flac", handle.ErrNotFound},
	}
	for _, tt := range tests {
		rc, err := e.GetFile(ctx, tt.name)
		if !errors.Is(err, tt.wantErr) {
			t.Errorf("GetFile(%q) err = %v, want %v", tt.name, err, tt.wantErr)
		}
		if err == nil {
			if got := readAll(t, rc); got != "flac" {
				t.Errorf("GetFile(%q) = %q", tt.name, got)
			}
		}
		if e.PathString() != "/x" {
			t.Errorf("after GetFile(%q) PathString = %q, want /x", tt.name, e.PathString())
		}
	}
}

func TestFileHandle_DirectoryIsTypeMismatch(t *testing.T) {
	e := newExplorer(t)
	if _, err := e.FileHandle(context.Background(), "a"); !errors.Is(err, handle.ErrTypeMismatch) {
		t.Errorf("err = %v, want ErrTypeMismatch", err)
	}
}

func TestHandle(t *testing.T) {
	ctx := context.Background()
	e := newExplorer(t)
	e.PutFile(ctx, "f", strings.NewReader(""))

	h, err := e.Handle(ctx, "a")
	if err != nil || h.Kind() != handle.KindDirectory {
		t.Errorf("Handle(a) = %v, %v", h, err)
	}
	h, err = e.Handle(ctx, "f")
	if err != nil || h.Kind() != handle.KindFile {
		t.Errorf("Handle(f) = %v, %v", h, err)
	}
	if _, err := e.Handle(ctx, "zzz"); !errors.Is(err, handle.ErrNotFound) {
		t.Errorf("Handle(zzz) err = %v", err)
	}
}

func TestFilterByExtensions(t *testing.T) {
	ctx := context.Background()
	root := memfs.New()
	for _, n := range []string{"a.mp3", "b.FLAC", "c.txt", "d", "e.mp3.bak"} {
		root.File(ctx, n, true)
	}
	items, _ := root.Entries(ctx)
	keep := FilterByExtensions([]string{".mp3", ".flac"})
	var got []string
	for _, it := range items {
		if keep(it) {
			got = append(got, it.Name())
		}
	}
	if strings.Join(got, ",") != "a.mp3,b.FLAC" {
		t.Errorf("filtered = %v", got)
	}
}

type staticProvider struct{ root handle.Directory }

func (p staticProvider) Root(context.Context) (handle.Directory, error) { return p.root, nil }

func TestNewFromProvider(t *testing.T) {
	root := memfs.New()
	e, err := NewFromProvider(context.Background(), staticProvider{root})
	if err != nil {
		t.Fatal(err)
	}
	if e.Root() != handle.Directory(root) {
		t.Error("explorer not rooted at provider root")
	}
}
