package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/mantonx/vcompress/internal/compress"
	"github.com/mantonx/vcompress/internal/media"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockCommandRunner implements CommandRunner for testing
type MockCommandRunner struct {
	commands  []string
	outputs   [][]byte
	errors    []error
	callIndex int
}

func (m *MockCommandRunner) Run(ctx context.Context, cmd string, args ...string) ([]byte, error) {
	m.commands = append(m.commands, fmt.Sprintf("%s %s", cmd, strings.Join(args, " ")))

	if m.callIndex < len(m.outputs) {
		output := m.outputs[m.callIndex]
		var err error
		if m.callIndex < len(m.errors) {
			err = m.errors[m.callIndex]
		}
		m.callIndex++
		return output, err
	}
	return nil, errors.New("unexpected call")
}

const portraitProbe = `{
  "streams": [
    {
      "index": 0,
      "codec_type": "video",
      "codec_name": "hevc",
      "width": 1920,
      "height": 1080,
      "avg_frame_rate": "30000/1001",
      "r_frame_rate": "30/1",
      "bit_rate": "9000000",
      "duration": "12.512000",
      "start_time": "0.000000",
      "side_data_list": [
        {"side_data_type": "Display Matrix", "rotation": -90}
      ]
    },
    {
      "index": 1,
      "codec_type": "audio",
      "codec_name": "aac",
      "sample_rate": "48000",
      "channels": 2,
      "bit_rate": "192000",
      "duration": "12.500000"
    },
    {
      "index": 2,
      "codec_type": "data",
      "codec_name": "none"
    }
  ],
  "format": {
    "filename": "/videos/portrait.mov",
    "format_name": "mov,mp4,m4a,3gp,3g2,mj2",
    "duration": "12.512000",
    "size": "14000000",
    "bit_rate": "9200000",
    "tags": {"com.apple.quicktime.make": "Apple"}
  }
}`

func TestProber_Load(t *testing.T) {
	runner := &MockCommandRunner{outputs: [][]byte{[]byte(portraitProbe)}}
	p := NewProber("/usr/local/bin/ffprobe", runner, hclog.NewNullLogger())

	asset, err := p.Load(context.Background(), "/videos/portrait.mov")
	require.NoError(t, err)

	require.Len(t, runner.commands, 1)
	assert.Equal(t, "/usr/local/bin/ffprobe -v quiet -print_format json -show_format -show_streams /videos/portrait.mov", runner.commands[0])

	assert.Equal(t, "/videos/portrait.mov", asset.Path)
	assert.Equal(t, 12512*time.Millisecond, asset.Duration)
	assert.Equal(t, int64(14000000), asset.Size)
	assert.Equal(t, "Apple", asset.Tags["com.apple.quicktime.make"])
	require.Len(t, asset.Tracks, 2)

	video, ok := asset.FirstTrack(media.KindVideo)
	require.True(t, ok)
	assert.Equal(t, "hevc", video.Codec)
	assert.InDelta(t, 29.97, video.NominalFrameRate, 0.001)
	assert.Equal(t, 9000000.0, video.EstimatedDataRate)
	assert.Equal(t, media.Transform{A: 0, B: 1, C: -1, D: 0}, video.PreferredTransform)
	assert.Equal(t, media.Size{Width: 1080, Height: 1920}, compress.RenderSize(video.PreferredTransform, video.NaturalSize))

	audio, ok := asset.FirstTrack(media.KindAudio)
	require.True(t, ok)
	assert.Equal(t, 1, audio.Index)
	assert.Equal(t, 48000, audio.SampleRate)
	assert.Equal(t, 2, audio.Channels)
	assert.Equal(t, 12500*time.Millisecond, audio.TimeRange.Duration)
}

func TestParseProbeOutput_Rotation(t *testing.T) {
	tests := []struct {
		name     string
		stream   string
		expected media.Transform
	}{
		{
			name:     "rotate tag",
			stream:   `{"codec_type":"video","width":640,"height":480,"tags":{"rotate":"270"}}`,
			expected: media.Transform{A: 0, B: -1, C: 1, D: 0},
		},
		{
			name:     "upside down display matrix",
			stream:   `{"codec_type":"video","width":640,"height":480,"side_data_list":[{"side_data_type":"Display Matrix","rotation":180}]}`,
			expected: media.Transform{A: -1, B: 0, C: 0, D: -1},
		},
		{
			name:     "counter clockwise display matrix",
			stream:   `{"codec_type":"video","width":640,"height":480,"side_data_list":[{"side_data_type":"Display Matrix","rotation":90}]}`,
			expected: media.Transform{A: 0, B: -1, C: 1, D: 0},
		},
		{
			name:     "no rotation",
			stream:   `{"codec_type":"video","width":640,"height":480}`,
			expected: media.Identity,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			asset, err := ParseProbeOutput("in.mp4", []byte(`{"streams":[`+tt.stream+`],"format":{"duration":"1.0"}}`))
			require.NoError(t, err)
			require.Len(t, asset.Tracks, 1)
			assert.Equal(t, tt.expected, asset.Tracks[0].PreferredTransform)
		})
	}
}

func TestParseProbeOutput_Fallbacks(t *testing.T) {
	data := `{
	  "streams": [
	    {"index":0,"codec_type":"video","width":320,"height":240,"avg_frame_rate":"0/0","r_frame_rate":"25/1","duration":"4.0"},
	    {"index":1,"codec_type":"video","codec_name":"mjpeg","width":600,"height":600,"disposition":{"attached_pic":1}}
	  ],
	  "format": {"format_name":"mp4"}
	}`

	asset, err := ParseProbeOutput("clip.mp4", []byte(data))
	require.NoError(t, err)
	require.Len(t, asset.Tracks, 1)
	assert.Equal(t, 25.0, asset.Tracks[0].NominalFrameRate)
	assert.Equal(t, 4*time.Second, asset.Duration)
}

func TestProber_Errors(t *testing.T) {
	p := NewProber("", &MockCommandRunner{outputs: [][]byte{nil}, errors: []error{errors.New("exit status 1")}}, hclog.NewNullLogger())
	_, err := p.Load(context.Background(), "missing.mp4")
	assert.ErrorContains(t, err, "ffprobe failed")

	_, err = ParseProbeOutput("x", []byte("not json"))
	assert.Error(t, err)

	_, err = ParseProbeOutput("x", []byte(`{"streams":[],"format":{}}`))
	assert.Error(t, err)
}

func TestParseRate(t *testing.T) {
	assert.InDelta(t, 23.976, parseRate("24000/1001"), 0.001)
	assert.Equal(t, 25.0, parseRate("25"))
	assert.Zero(t, parseRate("0/0"))
	assert.Zero(t, parseRate(""))
}
