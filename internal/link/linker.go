package link

import (
	"bytes"
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fruitsalade/mixtape/internal/explorer"
	"github.com/fruitsalade/mixtape/internal/handle"
	"github.com/fruitsalade/mixtape/internal/ingest"
	"github.com/fruitsalade/mixtape/internal/logging"
	"github.com/fruitsalade/mixtape/internal/records"
)

// Linker stores picked items as links instead of copying them.
type Linker struct {
	links    records.LinkStore
	provider explorer.RootProvider
}

// NewLinker creates a Linker writing placeholders at the provider's root.
func NewLinker(links records.LinkStore, provider explorer.RootProvider) *Linker {
	return &Linker{links: links, provider: provider}
}

// Link records every top-level entity of b and writes one placeholder per
// record at the sandbox root. Nested entities are reachable through their
// top-level directory and get no record of their own.
func (l *Linker) Link(ctx context.Context, b ingest.Batch) ([]records.LinkRecord, error) {
	var recs []records.LinkRecord
	for _, o := range b.Orphans() {
		src := o.Source()
		loc, ok := src.(handle.Locatable)
		if src == nil || !ok {
			return nil, fmt.Errorf("%s cannot be linked: no persistable handle", o.Info().Path)
		}
		recs = append(recs, records.LinkRecord{
			ID:      uuid.NewString(),
			Name:    o.Info().Name,
			Kind:    o.Kind(),
			Source:  records.SourceLocal,
			Locator: loc.Locator(),
		})
	}
	if len(recs) == 0 {
		return nil, nil
	}

	if err := l.links.PutLinks(ctx, recs); err != nil {
		return nil, fmt.Errorf("store links: %w", err)
	}

	e, err := explorer.NewFromProvider(ctx, l.provider)
	if err != nil {
		return nil, err
	}
	for _, r := range recs {
		name := Link{Source: r.Source, Kind: r.Kind, DisplayName: r.Name}.String()
		if _, err := e.PutFile(ctx, name, bytes.NewReader(EncodePlaceholder(r.ID))); err != nil {
			return nil, fmt.Errorf("write placeholder %s: %w", name, err)
		}
		logging.Info("linked",
			zap.String("name", name), zap.String("id", r.ID), zap.String("locator", r.Locator.String()))
	}
	return recs, nil
}
