package media

import "time"

// TrackKind distinguishes video from audio tracks.
type TrackKind string

const (
	KindVideo TrackKind = "video"
	KindAudio TrackKind = "audio"
)

// TimeRange is a start offset plus a duration.
type TimeRange struct {
	Start    time.Duration `json:"start"`
	Duration time.Duration `json:"duration"`
}

// End returns Start+Duration.
func (r TimeRange) End() time.Duration {
	return r.Start + r.Duration
}

// Clip returns r shortened so that it does not extend past max.
func (r TimeRange) Clip(max time.Duration) TimeRange {
	if max > 0 && r.Duration > max {
		r.Duration = max
	}
	return r
}

// Track describes one elementary stream of an asset.
type Track struct {
	// Index is the stream index inside the container.
	Index int       `json:"index"`
	Kind  TrackKind `json:"kind"`
	Codec string    `json:"codec"`

	// NaturalSize is the stored (untransformed) frame size.
	NaturalSize        Size      `json:"natural_size"`
	PreferredTransform Transform `json:"preferred_transform"`
	NominalFrameRate   float64   `json:"nominal_frame_rate"`

	// EstimatedDataRate is in bits per second; zero when unknown.
	EstimatedDataRate float64   `json:"estimated_data_rate"`
	TimeRange         TimeRange `json:"time_range"`

	SampleRate int `json:"sample_rate,omitempty"`
	Channels   int `json:"channels,omitempty"`
}

// Asset is a loaded source container with its track list.
type Asset struct {
	Path     string            `json:"path"`
	Format   string            `json:"format"`
	Duration time.Duration     `json:"duration"`
	Size     int64             `json:"size"`
	Tracks   []Track           `json:"tracks"`
	Tags     map[string]string `json:"tags,omitempty"`
}

// TracksOf returns the tracks of the given kind in container order.
func (a *Asset) TracksOf(kind TrackKind) []Track {
	var out []Track
	for _, t := range a.Tracks {
		if t.Kind == kind {
			out = append(out, t)
		}
	}
	return out
}

// FirstTrack returns the first track of the given kind.
func (a *Asset) FirstTrack(kind TrackKind) (Track, bool) {
	for _, t := range a.Tracks {
		if t.Kind == kind {
			return t, true
		}
	}
	return Track{}, false
}
