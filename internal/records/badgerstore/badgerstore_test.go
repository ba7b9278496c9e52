package badgerstore

import (
	"context"
	"errors"
	"testing"

	"github.com/fruitsalade/mixtape/internal/handle"
	"github.com/fruitsalade/mixtape/internal/records"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestLinks(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	recs := []records.LinkRecord{
		{ID: "1", Name: "Music", Kind: handle.KindDirectory, Source: records.SourceLocal,
			Locator: handle.Locator{Scheme: "file", Kind: handle.KindDirectory, Path: "/home/me/Music"}},
		{ID: "2", Name: "a.mp3", Kind: handle.KindFile, Source: records.SourceLocal,
			Locator: handle.Locator{Scheme: "file", Kind: handle.KindFile, Path: "/tmp/a.mp3"}},
	}
	if err := s.PutLinks(ctx, recs); err != nil {
		t.Fatalf("PutLinks: %v", err)
	}

	got, err := s.GetLink(ctx, "1")
	if err != nil {
		t.Fatalf("GetLink: %v", err)
	}
	if got.Name != "Music" || got.Kind != handle.KindDirectory || got.Locator != recs[0].Locator {
		t.Errorf("GetLink = %+v", got)
	}
	if got.CreatedAt.IsZero() {
		t.Error("CreatedAt not set")
	}

	if _, err := s.GetLink(ctx, "missing"); !errors.Is(err, records.ErrNotFound) {
		t.Errorf("missing link err = %v, want ErrNotFound", err)
	}
}

func TestPutLinks_RequiresID(t *testing.T) {
	s := newStore(t)
	err := s.PutLinks(context.Background(), []records.LinkRecord{{Name: "x"}})
	if err == nil {
		t.Error("expected error for record without id")
	}
}

func TestAudioUpsert(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	first := &records.AudioMetadata{Source: records.SourceLocal, Path: "/Album/01.mp3", Title: "One"}
	if err := s.PutAudio(ctx, first); err != nil {
		t.Fatal(err)
	}
	if first.ID == "" {
		t.Fatal("ID not assigned")
	}

	second := &records.AudioMetadata{Source: records.SourceLocal, Path: "/Album/01.mp3", Title: "One (remaster)"}
	if err := s.PutAudio(ctx, second); err != nil {
		t.Fatal(err)
	}
	if second.ID != first.ID {
		t.Errorf("upsert changed ID: %s -> %s", first.ID, second.ID)
	}

	s.PutAudio(ctx, &records.AudioMetadata{Source: records.SourceLocal, Path: "/Album/02.mp3"})

	all, err := s.ListAudio(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Fatalf("ListAudio = %d records, want 2", len(all))
	}

	got, err := s.GetAudio(ctx, records.SourceLocal, "/Album/01.mp3")
	if err != nil {
		t.Fatal(err)
	}
	if got.Title != "One (remaster)" {
		t.Errorf("Title = %q", got.Title)
	}
	if _, err := s.GetAudio(ctx, records.SourceRemote, "/Album/01.mp3"); !errors.Is(err, records.ErrNotFound) {
		t.Errorf("other source err = %v, want ErrNotFound", err)
	}
}

func TestListAudioEmpty(t *testing.T) {
	all, err := newStore(t).ListAudio(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if all == nil || len(all) != 0 {
		t.Errorf("ListAudio = %#v, want empty non-nil slice", all)
	}
}
