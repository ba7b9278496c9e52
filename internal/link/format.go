// Package link implements link placeholders: small files in the sandbox
// that point at externally granted files and directories through a link
// record.
//
// A placeholder is named
//
//	@link-<source>-<kind>:<display name>
//
// and contains the JSON document {"id": "<record id>"}.
package link

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fruitsalade/mixtape/internal/handle"
	"github.com/fruitsalade/mixtape/internal/records"
)

const prefix = "@link-"

var (
	// ErrNotLink is returned by Parse for names without the link prefix.
	ErrNotLink = errors.New("not a link name")
	// ErrMalformedLink is returned by Parse for names with the prefix but an
	// invalid remainder.
	ErrMalformedLink = errors.New("malformed link name")
)

// Link is a parsed placeholder name.
type Link struct {
	Source      records.Source
	Kind        handle.Kind
	DisplayName string
}

// IsLink reports whether name carries the link prefix. It does not
// validate the rest.
func IsLink(name string) bool {
	return strings.HasPrefix(name, prefix)
}

// Parse parses a placeholder name. The display name may itself contain ':'
// and '-'; only the first ':' ends the header.
func Parse(name string) (Link, error) {
	rest, ok := strings.CutPrefix(name, prefix)
	if !ok {
		return Link{}, ErrNotLink
	}
	header, display, ok := strings.Cut(rest, ":")
	if !ok {
		return Link{}, fmt.Errorf("%w: %q has no ':'", ErrMalformedLink, name)
	}
	if display == "" {
		return Link{}, fmt.Errorf("%w: %q has an empty display name", ErrMalformedLink, name)
	}
	src, kind, ok := strings.Cut(header, "-")
	if !ok {
		return Link{}, fmt.Errorf("%w: %q has no kind", ErrMalformedLink, name)
	}
	source, err := records.ParseSource(src)
	if err != nil {
		return Link{}, fmt.Errorf("%w: %v", ErrMalformedLink, err)
	}
	k, err := handle.ParseKind(kind)
	if err != nil {
		return Link{}, fmt.Errorf("%w: %v", ErrMalformedLink, err)
	}
	return Link{Source: source, Kind: k, DisplayName: display}, nil
}

// String formats l as a placeholder name.
func (l Link) String() string {
	return prefix + string(l.Source) + "-" + l.Kind.String() + ":" + l.DisplayName
}

type placeholder struct {
	ID string `json:"id"`
}

// EncodePlaceholder returns the content of a placeholder for record id.
func EncodePlaceholder(id string) []byte {
	data, _ := json.Marshal(placeholder{ID: id})
	return data
}

// DecodePlaceholder reads a placeholder's record id.
func DecodePlaceholder(r io.Reader) (string, error) {
	var p placeholder
	if err := json.NewDecoder(r).Decode(&p); err != nil {
		return "", fmt.Errorf("decode link placeholder: %w", err)
	}
	if p.ID == "" {
		return "", fmt.Errorf("link placeholder has no id")
	}
	return p.ID, nil
}
