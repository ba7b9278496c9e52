package link

import (
	"context"
	"errors"
	"fmt"

	"github.com/fruitsalade/mixtape/internal/explorer"
	"github.com/fruitsalade/mixtape/internal/handle"
	"github.com/fruitsalade/mixtape/internal/records"
)

// LocalStrategyName is the name LocalStrategy registers under.
const LocalStrategyName = "local-link"

// ErrKindMismatch is returned when a link record, its locator, or the
// resolved handle disagree with the kind encoded in the placeholder name.
var ErrKindMismatch = errors.New("link kind mismatch")

// LocalStrategy mounts placeholders of local links. The external handle is
// reopened from the record's locator and read permission is renegotiated
// on every mount.
type LocalStrategy struct {
	links    records.LinkStore
	resolver handle.Resolver
}

var _ explorer.MountStrategy = (*LocalStrategy)(nil)

// NewLocalStrategy creates a LocalStrategy.
func NewLocalStrategy(links records.LinkStore, resolver handle.Resolver) *LocalStrategy {
	return &LocalStrategy{links: links, resolver: resolver}
}

func (s *LocalStrategy) Name() string { return LocalStrategyName }

// Test matches well-formed link names whose source is local.
func (s *LocalStrategy) Test(h handle.Handle) bool {
	l, err := Parse(h.Name())
	return err == nil && l.Source == records.SourceLocal
}

// Mount resolves the placeholder f. A directory target is returned as a new
// Explorer, a file target as a terminal handle.
func (s *LocalStrategy) Mount(ctx context.Context, f handle.File) (explorer.MountResult, error) {
	l, err := Parse(f.Name())
	if err != nil {
		return nil, err
	}
	if l.Source != records.SourceLocal {
		return nil, fmt.Errorf("%s: source %s is not local", f.Name(), l.Source)
	}

	rc, err := f.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("open placeholder %s: %w", f.Name(), err)
	}
	id, err := DecodePlaceholder(rc)
	rc.Close()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", f.Name(), err)
	}

	rec, err := s.links.GetLink(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.Kind != l.Kind || rec.Locator.Kind != l.Kind {
		return nil, fmt.Errorf("%s: not a %s: %w", f.Name(), l.Kind, ErrKindMismatch)
	}

	target, err := s.resolver.Resolve(ctx, rec.Locator)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", rec.Locator, err)
	}
	if target.Kind() != l.Kind {
		return nil, fmt.Errorf("%s: not a %s: %w", rec.Locator, l.Kind, ErrKindMismatch)
	}

	if err := handle.EnsurePermission(ctx, target, handle.ModeRead); err != nil {
		return nil, err
	}

	if l.Kind == handle.KindFile {
		return explorer.Terminal{Handle: target}, nil
	}
	dir, err := handle.AsDirectory(target)
	if err != nil {
		return nil, err
	}
	e, err := explorer.New(dir)
	if err != nil {
		return nil, err
	}
	return explorer.Navigable{Explorer: e}, nil
}
