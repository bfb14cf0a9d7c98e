// Package soundtrack reads tag metadata of replacement audio files so it
// can be carried into the exported container.
package soundtrack

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dhowden/tag"
)

// Extensions lists audio containers accepted as soundtracks.
var Extensions = map[string]bool{
	".mp3":  true,
	".m4a":  true,
	".aac":  true,
	".flac": true,
	".ogg":  true,
	".opus": true,
	".wav":  true,
	".aiff": true,
	".mp4":  true,
	".mov":  true,
}

// IsSupported reports whether path has a known audio extension.
func IsSupported(path string) bool {
	return Extensions[strings.ToLower(filepath.Ext(path))]
}

// Metadata opens path and returns its tags as container metadata keys
// (title, artist, album, album_artist, genre, date, track, comment).
// Empty values are omitted.
func Metadata(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open soundtrack: %w", err)
	}
	defer f.Close()

	m, err := tag.ReadFrom(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read soundtrack tags: %w", err)
	}
	return FromTags(m), nil
}

// FromTags converts parsed tags to container metadata keys.
func FromTags(m tag.Metadata) map[string]string {
	out := map[string]string{}
	set := func(key, value string) {
		if v := strings.TrimSpace(value); v != "" {
			out[key] = v
		}
	}

	set("title", m.Title())
	set("artist", m.Artist())
	set("album", m.Album())
	set("album_artist", m.AlbumArtist())
	set("genre", m.Genre())
	set("comment", m.Comment())
	if m.Year() > 0 {
		set("date", strconv.Itoa(m.Year()))
	}
	if n, _ := m.Track(); n > 0 {
		set("track", strconv.Itoa(n))
	}
	return out
}
