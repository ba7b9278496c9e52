// Package metadata extracts audio metadata from imported files.
package metadata

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/dhowden/tag"
	"github.com/h2non/filetype"
	"github.com/tcolgate/mp3"
	"go.uber.org/zap"

	"github.com/fruitsalade/mixtape/internal/logging"
)

// sniffLen is how much of the content filetype needs to match a signature.
const sniffLen = 261

func init() {
	filetype.AddType("opus", "audio/opus")
}

// Audio is what an Extractor found in one file. Zero values mean unknown.
type Audio struct {
	MIME        string
	Extension   string
	Genre       []string
	Artists     []string
	Album       string
	Title       string
	TrackNumber int
	TrackCount  int
	Duration    float64 // seconds, MPEG audio only
	Year        int
}

// Extractor reads metadata from file content.
type Extractor interface {
	Extract(ctx context.Context, name string, r io.ReadSeeker) (*Audio, error)
}

// TagExtractor reads ID3, MP4, FLAC and Ogg tags. Durations are measured
// for MPEG audio by walking its frames; other formats report 0.
type TagExtractor struct{}

// NewTagExtractor creates a TagExtractor.
func NewTagExtractor() *TagExtractor {
	return &TagExtractor{}
}

// Extract returns the metadata of r. Content without recognizable tags is
// not an error; the result then only carries MIME type and extension.
func (e *TagExtractor) Extract(ctx context.Context, name string, r io.ReadSeeker) (*Audio, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ext := strings.ToLower(filepath.Ext(name))
	mime, err := sniff(r, ext)
	if err != nil {
		return nil, fmt.Errorf("sniff %s: %w", name, err)
	}
	a := &Audio{MIME: mime, Extension: ext}

	if mime == "audio/mpeg" {
		d, err := mp3Duration(ctx, r)
		if err != nil {
			return nil, fmt.Errorf("measure %s: %w", name, err)
		}
		a.Duration = d.Seconds()
		if _, err := r.Seek(0, io.SeekStart); err != nil {
			return nil, err
		}
	}

	m, err := tag.ReadFrom(r)
	if err != nil {
		// No tags is not an error
		logging.Debug("no audio tags", zap.String("name", name), zap.Error(err))
		return a, nil
	}

	a.Title = strings.TrimSpace(m.Title())
	a.Album = strings.TrimSpace(m.Album())
	a.Year = m.Year()
	a.TrackNumber, a.TrackCount = m.Track()
	a.Artists = nonEmpty(m.Artist(), m.AlbumArtist())
	a.Genre = nonEmpty(strings.Split(m.Genre(), ";")...)
	return a, nil
}

// sniff matches the leading bytes of r against known signatures, falling
// back to the extension, and rewinds r.
func sniff(r io.ReadSeeker, ext string) (string, error) {
	head := make([]byte, sniffLen)
	n, err := io.ReadFull(r, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return "", err
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return "", err
	}

	if kind, err := filetype.Match(head[:n]); err == nil && kind != filetype.Unknown {
		return kind.MIME.Value, nil
	}
	if ext != "" {
		return filetype.GetType(ext[1:]).MIME.Value, nil
	}
	return "", nil
}

// mp3Duration sums the durations of the MPEG frames in r, after skipping a
// leading ID3v2 tag. Decoding stops at the first thing that is not a
// frame, such as a trailing ID3v1 tag.
func mp3Duration(ctx context.Context, r io.ReadSeeker) (time.Duration, error) {
	start, err := id3v2Size(r)
	if err != nil {
		return 0, err
	}
	if _, err := r.Seek(start, io.SeekStart); err != nil {
		return 0, err
	}

	var (
		dec     = mp3.NewDecoder(r)
		frame   mp3.Frame
		skipped int
		total   time.Duration
	)
	for i := 0; ; i++ {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return 0, err
			}
		}
		if err := dec.Decode(&frame, &skipped); err != nil {
			return total, nil
		}
		total += frame.Duration()
	}
}

// id3v2Size returns the length of the ID3v2 tag r starts with, or 0.
func id3v2Size(r io.ReadSeeker) (int64, error) {
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return 0, err
	}
	var h [10]byte
	if _, err := io.ReadFull(r, h[:]); err != nil || string(h[:3]) != "ID3" {
		return 0, nil
	}
	// Syncsafe integer: 7 bits per byte.
	size := int64(h[6])<<21 | int64(h[7])<<14 | int64(h[8])<<7 | int64(h[9])
	if h[5]&0x10 != 0 {
		size += 10 // footer
	}
	return 10 + size, nil
}

// nonEmpty trims values and drops blanks and duplicates, keeping order.
func nonEmpty(values ...string) []string {
	out := []string{}
	seen := map[string]bool{}
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
