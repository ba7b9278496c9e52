package metadata

import (
	"bytes"
	"context"
	"math"
	"reflect"
	"testing"
)

// id3v1 builds content ending in an ID3v1.1 tag.
func id3v1(title, artist, album, year string, track, genre byte) []byte {
	field := func(s string, n int) []byte {
		b := make([]byte, n)
		copy(b, s)
		return b
	}
	var buf bytes.Buffer
	buf.Write(make([]byte, 256))
	buf.WriteString("TAG")
	buf.Write(field(title, 30))
	buf.Write(field(artist, 30))
	buf.Write(field(album, 30))
	buf.Write(field(year, 4))
	buf.Write(make([]byte, 28)) // comment
	buf.WriteByte(0)
	buf.WriteByte(track)
	buf.WriteByte(genre)
	return buf.Bytes()
}

// mpegFrames builds n silent MPEG-1 Layer III frames at 128 kbit/s and
// 44.1 kHz, 417 bytes and 1152 samples each.
func mpegFrames(n int) []byte {
	frame := make([]byte, 417)
	copy(frame, []byte{0xFF, 0xFB, 0x90, 0x00})
	return bytes.Repeat(frame, n)
}

func TestExtractMP3Duration(t *testing.T) {
	frameSeconds := 1152.0 / 44100

	tests := []struct {
		name    string
		content []byte
		want    float64
		title   string
	}{
		{"frames only", mpegFrames(100), 100 * frameSeconds, ""},
		{"trailing ID3v1", append(mpegFrames(40), id3v1("Song", "Band", "", "", 0, 0)[256:]...), 40 * frameSeconds, "Song"},
		{"leading ID3v2", append([]byte{'I', 'D', '3', 3, 0, 0, 0, 0, 0, 4, 0, 0, 0, 0}, mpegFrames(10)...), 10 * frameSeconds, ""},
		{"no frames", id3v1("Song", "Band", "Record", "1999", 3, 17), 0, "Song"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := NewTagExtractor().Extract(context.Background(), "track.mp3", bytes.NewReader(tt.content))
			if err != nil {
				t.Fatalf("Extract: %v", err)
			}
			if math.Abs(a.Duration-tt.want) > 0.001 {
				t.Errorf("Duration = %.4f, want %.4f", a.Duration, tt.want)
			}
			if a.Title != tt.title {
				t.Errorf("Title = %q, want %q", a.Title, tt.title)
			}
		})
	}
}

func TestExtractDurationOnlyForMPEG(t *testing.T) {
	a, err := NewTagExtractor().Extract(context.Background(), "track.flac", bytes.NewReader(mpegFrames(5)[4:]))
	if err != nil {
		t.Fatal(err)
	}
	if a.Duration != 0 {
		t.Errorf("Duration = %v for non-MPEG content", a.Duration)
	}
}

func TestExtractID3v1(t *testing.T) {
	content := id3v1("Song", "Band", "Record", "1999", 3, 17)
	a, err := NewTagExtractor().Extract(context.Background(), "track1.MP3", bytes.NewReader(content))
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	want := &Audio{
		MIME:        "audio/mpeg",
		Extension:   ".mp3",
		Genre:       []string{"Rock"},
		Artists:     []string{"Band"},
		Album:       "Record",
		Title:       "Song",
		TrackNumber: 3,
		Year:        1999,
	}
	if !reflect.DeepEqual(a, want) {
		t.Errorf("Extract =\n%+v\nwant\n%+v", a, want)
	}
}

func TestExtractWithoutTags(t *testing.T) {
	tests := []struct {
		name     string
		content  []byte
		wantMIME string
	}{
		{"short.mp3", []byte("abc"), "audio/mpeg"},
		{"noise.flac", bytes.Repeat([]byte{1}, 1024), "audio/x-flac"},
		{"empty", nil, ""},
		// Signature wins over the extension.
		{"disguised.mp3", append([]byte("OggS"), make([]byte, 60)...), "audio/ogg"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := NewTagExtractor().Extract(context.Background(), tt.name, bytes.NewReader(tt.content))
			if err != nil {
				t.Fatalf("Extract: %v", err)
			}
			if a.MIME != tt.wantMIME {
				t.Errorf("MIME = %q, want %q", a.MIME, tt.wantMIME)
			}
			if a.Title != "" || a.Album != "" || a.TrackNumber != 0 {
				t.Errorf("unexpected tags %+v", a)
			}
		})
	}
}

func TestExtractCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewTagExtractor().Extract(ctx, "a.mp3", bytes.NewReader(nil)); err == nil {
		t.Error("expected error for cancelled context")
	}
}

func TestNonEmpty(t *testing.T) {
	got := nonEmpty(" Rock ", "", "Pop", "Rock")
	if !reflect.DeepEqual(got, []string{"Rock", "Pop"}) {
		t.Errorf("nonEmpty = %v", got)
	}
}
