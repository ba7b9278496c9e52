// Package records defines the persisted records mixtape keeps outside the
// sandbox tree: link records pointing at external handles, and audio
// metadata extracted during imports.
package records

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fruitsalade/mixtape/internal/handle"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// Source says where a linked or imported item lives.
type Source string

const (
	SourceLocal   Source = "local"
	SourceRemote  Source = "remote"
	SourceSandbox Source = "sandbox"
)

// ParseSource validates a source name.
func ParseSource(s string) (Source, error) {
	switch Source(s) {
	case SourceLocal, SourceRemote, SourceSandbox:
		return Source(s), nil
	}
	return "", fmt.Errorf("unknown source %q", s)
}

// LinkRecord points from a sandbox placeholder file to an external handle.
// Records are written once and never updated in place.
type LinkRecord struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Kind      handle.Kind    `json:"kind"`
	Source    Source         `json:"source"`
	Locator   handle.Locator `json:"locator"`
	CreatedAt time.Time      `json:"created_at"`
}

// AudioMetadata is the metadata record of one imported file. (Source, Path)
// identifies it; writing the same pair again replaces the record.
type AudioMetadata struct {
	ID          string    `json:"id"`
	Source      Source    `json:"source"`
	Name        string    `json:"name"`
	Path        string    `json:"path"`
	Extension   string    `json:"extension"`
	MIME        string    `json:"mime"`
	Genre       []string  `json:"genre"`
	Artists     []string  `json:"artists"`
	Album       string    `json:"album"`
	Title       string    `json:"title"`
	TrackNumber int       `json:"track_number"`
	TrackCount  int       `json:"track_count"`
	Duration    float64   `json:"duration"` // seconds, 0 when unknown
	Year        int       `json:"year"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// LinkStore persists link records.
type LinkStore interface {
	GetLink(ctx context.Context, id string) (*LinkRecord, error)
	PutLinks(ctx context.Context, recs []LinkRecord) error
}

// MetadataStore persists audio metadata.
type MetadataStore interface {
	PutAudio(ctx context.Context, m *AudioMetadata) error
	GetAudio(ctx context.Context, source Source, path string) (*AudioMetadata, error)
	ListAudio(ctx context.Context) ([]AudioMetadata, error)
}

// Store is a LinkStore and MetadataStore sharing one backing database.
type Store interface {
	LinkStore
	MetadataStore
	Close() error
}
