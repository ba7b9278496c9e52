package app

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fruitsalade/mixtape/internal/config"
	"github.com/fruitsalade/mixtape/internal/handle"
	"github.com/fruitsalade/mixtape/internal/handle/memfs"
	"github.com/fruitsalade/mixtape/internal/link"
	"github.com/fruitsalade/mixtape/internal/logging"
	"github.com/fruitsalade/mixtape/internal/protocol"
)

func testConfig(t *testing.T, granted ...string) *config.Config {
	t.Helper()
	return &config.Config{
		SandboxBackend:      "local",
		SandboxPath:         filepath.Join(t.TempDir(), "sandbox"),
		RecordStore:         "badger",
		SupportedExtensions: config.DefaultSupportedExtensions,
		GrantedPaths:        granted,
		WorkerQueue:         4,
	}
}

func musicDir(t *testing.T) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "Music")
	os.MkdirAll(filepath.Join(dir, "Album"), 0755)
	os.WriteFile(filepath.Join(dir, "Album", "track1.mp3"), []byte("one"), 0644)
	os.WriteFile(filepath.Join(dir, "Album", "notes.txt"), []byte("skip"), 0644)
	return dir
}

func newApp(t *testing.T, cfg *config.Config) *App {
	t.Helper()
	logging.InitNop()
	a, err := New(context.Background(), cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

func TestPick(t *testing.T) {
	ctx := context.Background()
	music := musicDir(t)
	a := newApp(t, testConfig(t, music))

	b, err := a.Pick(ctx, []string{music}, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(b.Directories) != 2 || len(b.Files) != 1 {
		t.Fatalf("batch = %d dirs, %d files", len(b.Directories), len(b.Files))
	}
	if b.Files[0].Path != "Music/Album/track1.mp3" {
		t.Errorf("file path = %q", b.Files[0].Path)
	}

	b, err = a.Pick(ctx, []string{music}, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(b.Directories) != 1 || len(b.Files) != 0 {
		t.Errorf("unscanned batch = %+v", b)
	}
}

func TestPickDenied(t *testing.T) {
	a := newApp(t, testConfig(t))
	_, err := a.Pick(context.Background(), []string{musicDir(t)}, true)
	if !errors.Is(err, handle.ErrPermissionDenied) {
		t.Errorf("err = %v, want ErrPermissionDenied", err)
	}
}

func TestImportThenBrowse(t *testing.T) {
	ctx := context.Background()
	music := musicDir(t)
	a := newApp(t, testConfig(t, music))
	if err := a.Worker.Start(ctx); err != nil {
		t.Fatal(err)
	}

	b, err := a.Pick(ctx, []string{music}, true)
	if err != nil {
		t.Fatal(err)
	}
	req := protocol.NewRequest(b)
	if err := a.Worker.Submit(ctx, req); err != nil {
		t.Fatal(err)
	}
	for done := false; !done; {
		select {
		case e := <-a.Worker.Events():
			switch e := e.(type) {
			case protocol.Failed:
				t.Fatalf("batch failed: %s", e.Error)
			case protocol.Done:
				done = true
			}
		case <-time.After(5 * time.Second):
			t.Fatal("timed out")
		}
	}

	m, err := a.Mounting(ctx)
	if err != nil {
		t.Fatal(err)
	}
	rc, err := m.GetFile(ctx, "/Music/Album/track1.mp3")
	if err != nil {
		t.Fatal(err)
	}
	data, _ := io.ReadAll(rc)
	rc.Close()
	if string(data) != "one" {
		t.Errorf("content = %q", data)
	}
	if _, err := m.GetFile(ctx, "/Music/Album/notes.txt"); !errors.Is(err, handle.ErrNotFound) {
		t.Errorf("non-audio file imported: %v", err)
	}
}

func TestLinkThenMount(t *testing.T) {
	ctx := context.Background()
	music := musicDir(t)
	a := newApp(t, testConfig(t, music))

	b, err := a.Pick(ctx, []string{music}, false)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := a.Linker.Link(ctx, b); err != nil {
		t.Fatal(err)
	}

	m, err := a.Mounting(ctx)
	if err != nil {
		t.Fatal(err)
	}
	// Navigation alone never enters a mount.
	if err := m.ChangeDirectory(ctx, "@link-local-directory:Music//Album"); err == nil {
		t.Error("ChangeDirectory crossed a mount boundary")
	}

	m, err = a.Navigate(ctx, "/@link-local-directory:Music//Album")
	if err != nil {
		t.Fatalf("Navigate: %v", err)
	}
	if m.Depth() != 2 {
		t.Errorf("depth = %d", m.Depth())
	}
	items, err := m.ListItems(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 2 {
		t.Errorf("items = %d, want 2", len(items))
	}
}

func TestLinkedDirectoryIsReadOnly(t *testing.T) {
	ctx := context.Background()
	music := musicDir(t)
	a := newApp(t, testConfig(t, music))

	b, err := a.Pick(ctx, []string{music}, false)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := a.Linker.Link(ctx, b); err != nil {
		t.Fatal(err)
	}

	m, err := a.Navigate(ctx, "/@link-local-directory:Music//")
	if err != nil {
		t.Fatalf("Navigate: %v", err)
	}
	if err := m.Remove(ctx, "Album"); !errors.Is(err, handle.ErrPermissionDenied) {
		t.Errorf("Remove err = %v, want ErrPermissionDenied", err)
	}
	if _, err := m.CreateDirectory(ctx, "New"); !errors.Is(err, handle.ErrPermissionDenied) {
		t.Errorf("CreateDirectory err = %v, want ErrPermissionDenied", err)
	}
	if _, err := m.PutFile(ctx, "new.mp3", strings.NewReader("x")); !errors.Is(err, handle.ErrPermissionDenied) {
		t.Errorf("PutFile err = %v, want ErrPermissionDenied", err)
	}
	if _, err := os.Stat(filepath.Join(music, "Album", "track1.mp3")); err != nil {
		t.Errorf("host album changed: %v", err)
	}
}

func TestNavigateErrors(t *testing.T) {
	ctx := context.Background()
	music := musicDir(t)
	a := newApp(t, testConfig(t, music))

	b, _ := a.Pick(ctx, []string{filepath.Join(music, "Album", "track1.mp3")}, false)
	if _, err := a.Linker.Link(ctx, b); err != nil {
		t.Fatal(err)
	}
	if _, err := a.Navigate(ctx, "@link-local-file:track1.mp3//x"); !errors.Is(err, ErrNotNavigable) {
		t.Errorf("file mount: err = %v, want ErrNotNavigable", err)
	}
	if _, err := a.Navigate(ctx, "missing"); !errors.Is(err, handle.ErrNotFound) {
		t.Errorf("missing dir: err = %v, want ErrNotFound", err)
	}
	m, err := a.Navigate(ctx, "/")
	if err != nil || m.Depth() != 1 {
		t.Errorf("root: %v", err)
	}
}

func TestBrowsable(t *testing.T) {
	a := newApp(t, testConfig(t))
	ctx := context.Background()
	root := memfs.New()
	dir, _ := root.Directory(ctx, "Album", true)
	song, _ := root.File(ctx, "song.FLAC", true)
	doc, _ := root.File(ctx, "readme.txt", true)
	placeholder, _ := root.File(ctx, link.Link{Source: "local", Kind: handle.KindFile, DisplayName: "x.txt"}.String(), true)

	for h, want := range map[handle.Handle]bool{dir: true, song: true, doc: false, placeholder: true} {
		if got := a.Browsable(h); got != want {
			t.Errorf("Browsable(%s) = %v, want %v", h.Name(), got, want)
		}
	}
}

func TestSplitPath(t *testing.T) {
	tests := []struct{ in, dir, name string }{
		{"a.mp3", "", "a.mp3"},
		{"/a.mp3", "/", "a.mp3"},
		{"x/y/a.mp3", "x/y/", "a.mp3"},
		{"@link-local-directory:M//b/a.mp3", "@link-local-directory:M//b/", "a.mp3"},
		{"x/", "x/", ""},
	}
	for _, tt := range tests {
		dir, name := SplitPath(tt.in)
		if dir != tt.dir || name != tt.name {
			t.Errorf("SplitPath(%q) = %q, %q", tt.in, dir, name)
		}
	}
}

func TestOpenFileThroughLinks(t *testing.T) {
	ctx := context.Background()
	music := musicDir(t)
	a := newApp(t, testConfig(t, music))

	b, _ := a.Pick(ctx, []string{music, filepath.Join(music, "Album", "track1.mp3")}, false)
	if _, err := a.Linker.Link(ctx, b); err != nil {
		t.Fatal(err)
	}

	for _, path := range []string{
		"@link-local-file:track1.mp3",
		"/@link-local-directory:Music//Album/track1.mp3",
	} {
		f, err := a.OpenFile(ctx, path)
		if err != nil {
			t.Errorf("OpenFile(%s): %v", path, err)
			continue
		}
		rc, _ := f.Open(ctx)
		data, _ := io.ReadAll(rc)
		rc.Close()
		if string(data) != "one" {
			t.Errorf("OpenFile(%s) content = %q", path, data)
		}
	}

	if _, err := a.OpenFile(ctx, "/@link-local-directory:Music"); !errors.Is(err, handle.ErrTypeMismatch) {
		t.Errorf("directory link: err = %v, want ErrTypeMismatch", err)
	}
	if _, err := a.OpenFile(ctx, "/"); !errors.Is(err, handle.ErrInvalidName) {
		t.Errorf("root: err = %v, want ErrInvalidName", err)
	}
}
