package ffmpeg

import (
	"strings"
	"testing"
	"time"

	"github.com/mantonx/vcompress/internal/compress"
	"github.com/mantonx/vcompress/internal/media"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// argValue returns the argument following flag.
func argValue(args []string, flag string) string {
	for i := 0; i < len(args)-1; i++ {
		if args[i] == flag {
			return args[i+1]
		}
	}
	return ""
}

func TestBuildWriterArgs(t *testing.T) {
	audio := compress.DefaultAudioSettings()

	tests := []struct {
		name     string
		spec     WriterSpec
		contains []string
		missing  []string
		values   map[string]string
	}{
		{
			name: "H.264 with audio",
			spec: WriterSpec{
				Output:      "/out/clip.mp4",
				FileType:    compress.FileTypeMP4,
				Video:       compress.BuildVideoSettings(media.Size{Width: 1280, Height: 720}, 0, 30, false),
				VideoFormat: media.VideoFormat{Width: 1920, Height: 1080, PixelFormat: "yuv420p", FrameRate: 30},
				Audio:       &audio,
				AudioFormat: media.AudioFormat{SampleRate: 48000, Channels: 2},
				Threads:     8,
			},
			contains: []string{"pipe:3", "pipe:4", "+faststart", "1:a:0"},
			missing:  []string{"hvc1"},
			values: map[string]string{
				"-c:v":        "libx264",
				"-profile:v":  "main",
				"-b:v":        "2764800",
				"-g":          "30",
				"-threads":    "8",
				"-video_size": "1920x1080",
				"-framerate":  "30",
				"-c:a":        "aac",
				"-b:a":        "128000",
				"-vf":         "scale=1280:720:force_original_aspect_ratio=increase,crop=1280:720,setsar=1",
				"-f":          "rawvideo",
			},
		},
		{
			name: "HEVC without audio into mov",
			spec: WriterSpec{
				Output:      "/out/clip.mov",
				FileType:    compress.FileTypeMOV,
				Video:       compress.BuildVideoSettings(media.Size{Width: 720, Height: 1280}, 1500000, 24, true),
				VideoFormat: media.VideoFormat{Width: 1080, Height: 1920, PixelFormat: "yuv420p", FrameRate: 24},
			},
			contains: []string{"pipe:3", "hvc1"},
			missing:  []string{"pipe:4", "-c:a", "-threads"},
			values: map[string]string{
				"-c:v":   "libx265",
				"-tag:v": "hvc1",
				"-b:v":   "1500000",
				"-g":     "24",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := BuildWriterArgs(tt.spec)
			joined := strings.Join(args, " ")

			for _, s := range tt.contains {
				assert.Contains(t, joined, s)
			}
			for _, s := range tt.missing {
				assert.NotContains(t, joined, s)
			}
			for flag, want := range tt.values {
				assert.Equal(t, want, argValue(args, flag), flag)
			}

			assert.Equal(t, tt.spec.Output, args[len(args)-1])
			assert.Equal(t, tt.spec.FileType.ContainerFormat(), args[len(args)-2])
		})
	}
}

func TestBuildWriterArgs_Metadata(t *testing.T) {
	args := BuildWriterArgs(WriterSpec{
		Output:      "out.mp4",
		FileType:    compress.FileTypeMP4,
		Video:       compress.BuildVideoSettings(media.Size{Width: 640, Height: 360}, 0, 30, false),
		VideoFormat: media.VideoFormat{Width: 640, Height: 360, PixelFormat: "yuv420p", FrameRate: 30},
		Metadata:    map[string]string{"title": "Theme", "artist": "Band"},
	})

	var meta []string
	for i, a := range args {
		if a == "-metadata" {
			meta = append(meta, args[i+1])
		}
	}
	assert.Equal(t, []string{"artist=Band", "title=Theme"}, meta)
}

func newTestComposition(transform media.Transform) *compress.Composition {
	video := media.Track{
		Index:              0,
		Kind:               media.KindVideo,
		NaturalSize:        media.Size{Width: 1920, Height: 1080},
		PreferredTransform: transform,
		NominalFrameRate:   60,
	}
	audio := media.Track{Index: 1, Kind: media.KindAudio, SampleRate: 48000, Channels: 2}
	asset := &media.Asset{Path: "/in/clip.mov", Duration: 8 * time.Second, Tracks: []media.Track{video, audio}}
	return compress.NewComposition(asset, compress.DefaultConfiguration())
}

func TestVideoReadArgs(t *testing.T) {
	tests := []struct {
		name      string
		transform media.Transform
		graph     string
	}{
		{"identity", media.Identity, "[0:0]scale=1920:1080,fps=30,format=yuv420p[v]"},
		{"clockwise", media.Transform{A: 0, B: 1, C: -1, D: 0}, "[0:0]transpose=clock,scale=1080:1920,fps=30,format=yuv420p[v]"},
		{"counter clockwise", media.Transform{A: 0, B: -1, C: 1, D: 0}, "[0:0]transpose=cclock,scale=1080:1920,fps=30,format=yuv420p[v]"},
		{"upside down", media.Transform{A: -1, B: 0, C: 0, D: -1}, "[0:0]hflip,vflip,scale=1920:1080,fps=30,format=yuv420p[v]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := videoReadArgs(newTestComposition(tt.transform), "")
			assert.Equal(t, tt.graph, argValue(args, "-filter_complex"))
			assert.Contains(t, args, "-noautorotate")
			assert.Equal(t, "/in/clip.mov", argValue(args, "-i"))
			assert.Equal(t, "pipe:1", args[len(args)-1])
		})
	}
}

func TestVideoReadArgs_SkipsCoverArt(t *testing.T) {
	// Stream 1 is attached cover art, which the prober leaves out.
	audio := media.Track{Index: 0, Kind: media.KindAudio, SampleRate: 44100, Channels: 2}
	video := media.Track{
		Index:              2,
		Kind:               media.KindVideo,
		NaturalSize:        media.Size{Width: 1280, Height: 720},
		PreferredTransform: media.Identity,
		NominalFrameRate:   25,
	}
	asset := &media.Asset{Path: "/in/album.mp4", Duration: 4 * time.Second, Tracks: []media.Track{audio, video}}
	comp := compress.NewComposition(asset, compress.DefaultConfiguration())

	graph := argValue(videoReadArgs(comp, ""), "-filter_complex")
	assert.True(t, strings.HasPrefix(graph, "[0:2]"), graph)
}

func TestVideoReadArgs_Watermark(t *testing.T) {
	comp := newTestComposition(media.Identity)
	comp.AddWatermark("/img/logo.webp", func(media.Size) media.Rect {
		return media.Rect{X: 1800.4, Y: 20, Width: 100, Height: 40}
	})

	args := videoReadArgs(comp, "/tmp/watermark-1.png")
	joined := strings.Join(args, " ")

	assert.Contains(t, joined, "-loop 1 -i /tmp/watermark-1.png")
	assert.Equal(t,
		"[0:0]scale=1920:1080,fps=30[base];[1:v]format=rgba[wm];[base][wm]overlay=x=1800:y=20:shortest=1,format=yuv420p[v]",
		argValue(args, "-filter_complex"))
}

func TestAudioReadArgs(t *testing.T) {
	comp := newTestComposition(media.Identity)

	args := audioReadArgs(comp)
	assert.Equal(t, "/in/clip.mov", argValue(args, "-i"))
	assert.Equal(t, "0:1", argValue(args, "-map"))
	assert.Equal(t, "8.000", argValue(args, "-t"))
	assert.Equal(t, "s16le", argValue(args, "-f"))
	assert.Equal(t, "48000", argValue(args, "-ar"))
	assert.Equal(t, "2", argValue(args, "-ac"))
}

func TestAudioReadArgs_Soundtrack(t *testing.T) {
	comp := newTestComposition(media.Identity)
	song := &media.Asset{
		Path:     "/music/song.m4a",
		Duration: 30 * time.Second,
		Tracks:   []media.Track{{Index: 0, Kind: media.KindAudio, SampleRate: 44100, Channels: 1}},
	}
	require.NoError(t, comp.ReplaceAudio(song))

	args := audioReadArgs(comp)
	assert.Equal(t, "/music/song.m4a", argValue(args, "-i"))
	assert.Equal(t, "0:0", argValue(args, "-map"))
	assert.Equal(t, "8.000", argValue(args, "-t"))
	assert.Equal(t, "44100", argValue(args, "-ar"))
}

func TestProgress(t *testing.T) {
	lines := []string{
		"frame=120",
		"fps=59.8",
		"out_time_us=4000000",
		"speed=1.99x",
		"progress=continue",
		"frame=240",
		"progress=end",
	}

	var p Progress
	var blocks []Progress
	for _, l := range lines {
		if p.Update(l) {
			blocks = append(blocks, p)
		}
	}

	require.Len(t, blocks, 2)
	assert.Equal(t, int64(120), blocks[0].Frame)
	assert.Equal(t, 59.8, blocks[0].FPS)
	assert.Equal(t, 4*time.Second, blocks[0].OutTime)
	assert.Equal(t, 1.99, blocks[0].Speed)
	assert.False(t, blocks[0].Done)
	assert.Equal(t, int64(240), blocks[1].Frame)
	assert.True(t, blocks[1].Done)

	_, _, ok := ParseProgressLine("garbage")
	assert.False(t, ok)
	key, value, ok := ParseProgressLine(" bitrate= 512.0kbits/s ")
	assert.True(t, ok)
	assert.Equal(t, "bitrate", key)
	assert.Equal(t, "512.0kbits/s", value)
}
