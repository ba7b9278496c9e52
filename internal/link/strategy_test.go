package link

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/fruitsalade/mixtape/internal/explorer"
	"github.com/fruitsalade/mixtape/internal/handle"
	"github.com/fruitsalade/mixtape/internal/handle/memfs"
	"github.com/fruitsalade/mixtape/internal/handle/osfs"
	"github.com/fruitsalade/mixtape/internal/ingest"
	"github.com/fruitsalade/mixtape/internal/records"
	"github.com/fruitsalade/mixtape/internal/records/badgerstore"
)

type fakePrompter struct {
	answer bool
	asked  int
}

func (p *fakePrompter) Confirm(context.Context, string) (bool, error) {
	p.asked++
	return p.answer, nil
}

type rootProvider struct{ root handle.Directory }

func (p rootProvider) Root(context.Context) (handle.Directory, error) { return p.root, nil }

type fixture struct {
	ext      string // external directory on disk
	sandbox  *memfs.Dir
	store    *badgerstore.Store
	prompter *fakePrompter
	gate     *osfs.Gate
	mounting *explorer.MountingExplorer
}

func newFixture(t *testing.T, answer bool) *fixture {
	t.Helper()
	ext := filepath.Join(t.TempDir(), "MyMusic")
	os.MkdirAll(filepath.Join(ext, "Album"), 0755)
	os.WriteFile(filepath.Join(ext, "Album", "01.mp3"), []byte("audio"), 0644)
	os.WriteFile(filepath.Join(ext, "single.flac"), []byte("flac"), 0644)

	store, err := badgerstore.OpenInMemory()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	f := &fixture{
		ext:      ext,
		sandbox:  memfs.New(),
		store:    store,
		prompter: &fakePrompter{answer: answer},
	}
	f.gate = osfs.NewGate(nil, f.prompter)
	strategy := NewLocalStrategy(store, handle.Resolvers{osfs.Scheme: osfs.Resolver{Gate: f.gate}})
	f.mounting, err = explorer.NewMounting(f.sandbox, explorer.NewRegistry(strategy))
	if err != nil {
		t.Fatal(err)
	}
	return f
}

// link stores path as a link with a fresh gate, as a previous session would.
func (f *fixture) link(t *testing.T, path string) records.LinkRecord {
	t.Helper()
	ctx := context.Background()
	h, err := osfs.Open(osfs.NewGate(nil, nil), path)
	if err != nil {
		t.Fatal(err)
	}
	var b ingest.Batch
	switch v := h.(type) {
	case *osfs.Dir:
		b.Directories = []ingest.DirectoryEntity{{Meta: ingest.Meta{Name: v.Name(), Path: v.Name()}, Handle: v}}
	case *osfs.File:
		b = ingest.Files(v)
	}
	recs, err := NewLinker(f.store, rootProvider{f.sandbox}).Link(ctx, b)
	if err != nil {
		t.Fatalf("Link: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("Link returned %d records", len(recs))
	}
	return recs[0]
}

func TestLocalStrategy_Test(t *testing.T) {
	s := NewLocalStrategy(nil, nil)
	tests := []struct {
		name string
		want bool
	}{
		{"@link-local-directory:MyMusic", true},
		{"@link-local-file:a.mp3", true},
		{"regular-file.mp3", false},
		{"@link-remote-file:x", false},
		{"@link-local-directory", false},
	}
	ctx := context.Background()
	root := memfs.New()
	for _, tt := range tests {
		f, _ := root.File(ctx, tt.name, true)
		if got := s.Test(f); got != tt.want {
			t.Errorf("Test(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestMountDirectoryLink(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true)
	f.link(t, f.ext)

	name := "@link-local-directory:MyMusic"
	strategy, err := f.mounting.GetMountStrategy(ctx, name)
	if err != nil || strategy != LocalStrategyName {
		t.Fatalf("GetMountStrategy = %q, %v", strategy, err)
	}

	h, err := f.mounting.Mount(ctx, name)
	if err != nil {
		t.Fatalf("Mount: %v", err)
	}
	if h != nil {
		t.Errorf("directory mount returned handle %v", h)
	}
	if f.mounting.Depth() != 2 || f.prompter.asked != 1 {
		t.Fatalf("depth = %d, prompts = %d", f.mounting.Depth(), f.prompter.asked)
	}

	if err := f.mounting.ChangeDirectory(ctx, "Album"); err != nil {
		t.Fatal(err)
	}
	rc, err := f.mounting.GetFile(ctx, "01.mp3")
	if err != nil {
		t.Fatal(err)
	}
	data, _ := io.ReadAll(rc)
	rc.Close()
	if string(data) != "audio" {
		t.Errorf("content = %q", data)
	}

	// Granted for the session: a second mount does not prompt.
	f.mounting.Unmount()
	f.mounting.ChangeDirectory(ctx, "/")
	if _, err := f.mounting.Mount(ctx, name); err != nil {
		t.Fatal(err)
	}
	if f.prompter.asked != 1 {
		t.Errorf("prompts = %d after remount, want 1", f.prompter.asked)
	}
}

func TestMountFileLink(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true)
	f.link(t, filepath.Join(f.ext, "single.flac"))

	h, err := f.mounting.Mount(ctx, "@link-local-file:single.flac")
	if err != nil {
		t.Fatal(err)
	}
	if h == nil || h.Kind() != handle.KindFile || h.Name() != "single.flac" {
		t.Fatalf("Mount = %v", h)
	}
	if f.mounting.Depth() != 1 {
		t.Errorf("file mount pushed a context")
	}
}

func TestMountPermissionDenied(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)
	f.link(t, f.ext)

	_, err := f.mounting.Mount(ctx, "@link-local-directory:MyMusic")
	if !errors.Is(err, handle.ErrPermissionDenied) {
		t.Fatalf("err = %v, want ErrPermissionDenied", err)
	}
	if f.mounting.Depth() != 1 {
		t.Errorf("depth = %d after denial", f.mounting.Depth())
	}
}

func TestMountKindMismatch(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true)
	rec := f.link(t, f.ext)

	// A placeholder claiming a file but pointing at the directory record.
	bogus := Link{Source: records.SourceLocal, Kind: handle.KindFile, DisplayName: "bogus"}.String()
	pf, _ := f.sandbox.File(ctx, bogus, true)
	pf.Write(ctx, bytes.NewReader(EncodePlaceholder(rec.ID)))

	if _, err := f.mounting.Mount(ctx, bogus); !errors.Is(err, ErrKindMismatch) {
		t.Errorf("err = %v, want ErrKindMismatch", err)
	}
	if f.prompter.asked != 0 {
		t.Error("prompted before kind check")
	}
}

func TestMountResolvedKindMismatch(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true)
	rec := f.link(t, f.ext)

	// The directory was replaced by a file since it was linked.
	os.RemoveAll(f.ext)
	os.WriteFile(f.ext, []byte("now a file"), 0644)

	_, err := f.mounting.Mount(ctx, Link{Source: records.SourceLocal, Kind: handle.KindDirectory, DisplayName: rec.Name}.String())
	if !errors.Is(err, ErrKindMismatch) {
		t.Errorf("err = %v, want ErrKindMismatch", err)
	}
}

func TestMountMissingRecord(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true)
	name := "@link-local-directory:Ghost"
	pf, _ := f.sandbox.File(ctx, name, true)
	pf.Write(ctx, bytes.NewReader(EncodePlaceholder("no-such-id")))

	if _, err := f.mounting.Mount(ctx, name); !errors.Is(err, records.ErrNotFound) {
		t.Errorf("err = %v, want records.ErrNotFound", err)
	}
}

func TestMountCorruptPlaceholder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true)
	name := "@link-local-directory:Broken"
	pf, _ := f.sandbox.File(ctx, name, true)
	pf.Write(ctx, bytes.NewReader([]byte("{not json")))

	if _, err := f.mounting.Mount(ctx, name); err == nil {
		t.Error("expected error for corrupt placeholder")
	}
}

func TestLinkerWritesPlaceholders(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true)
	rec := f.link(t, f.ext)

	if rec.Kind != handle.KindDirectory || rec.Source != records.SourceLocal || rec.Locator.Path != f.ext {
		t.Errorf("record = %+v", rec)
	}
	stored, err := f.store.GetLink(ctx, rec.ID)
	if err != nil || stored.Name != "MyMusic" {
		t.Errorf("stored = %+v, %v", stored, err)
	}

	pf, err := f.sandbox.File(ctx, "@link-local-directory:MyMusic", false)
	if err != nil {
		t.Fatalf("placeholder missing: %v", err)
	}
	rc, _ := pf.Open(ctx)
	id, err := DecodePlaceholder(rc)
	rc.Close()
	if err != nil || id != rec.ID {
		t.Errorf("placeholder id = %q, %v; want %q", id, err, rec.ID)
	}
}

func TestLinkerRejectsUnlocatable(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, true)
	mem, _ := memfs.New().File(ctx, "x.mp3", true)

	_, err := NewLinker(f.store, rootProvider{f.sandbox}).Link(ctx, ingest.Files(mem))
	if err == nil {
		t.Error("expected error for handle without locator")
	}
}
