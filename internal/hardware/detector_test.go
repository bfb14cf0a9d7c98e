package hardware

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// mockExecer answers by the last argument of the command line.
type mockExecer struct {
	outputs map[string]string
	calls   []string
}

func (m *mockExecer) Run(_ context.Context, cmd string, args ...string) ([]byte, error) {
	m.calls = append(m.calls, cmd+" "+strings.Join(args, " "))
	return []byte(m.outputs[args[len(args)-1]]), nil
}

const decodersOutput = `Decoders:
 V..... = Video
 A..... = Audio
 ------
 V....D h264                 H.264 / AVC / MPEG-4 AVC / MPEG-4 part 10
 V....D hevc                 HEVC (High Efficiency Video Coding)
 V..... hevc_cuvid           Nvidia CUVID HEVC decoder (codec hevc)
 A....D aac                  AAC (Advanced Audio Coding)
`

const encodersOutput = `Encoders:
 V..... = Video
 ------
 V....D libx264              libx264 H.264 / AVC / MPEG-4 AVC (codec h264)
 V....D libx265              libx265 H.265 / HEVC (codec hevc)
 V....D hevc_nvenc           NVIDIA NVENC hevc encoder (codec hevc)
 A....D aac                  AAC (Advanced Audio Coding)
`

func TestDetector_HEVCSupported(t *testing.T) {
	execer := &mockExecer{outputs: map[string]string{
		"-hwaccels": "Hardware acceleration methods:\ncuda\n\n",
		"-decoders": decodersOutput,
		"-encoders": encodersOutput,
	}}
	d := NewDetector("/opt/ffmpeg", execer, hclog.NewNullLogger())

	info, err := d.Detect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"cuda"}, info.HWAccels)
	assert.Equal(t, []string{"hevc", "hevc_cuvid"}, info.HEVCDecoders)
	assert.Equal(t, []string{"libx265", "hevc_nvenc"}, info.HEVCEncoders)
	assert.True(t, info.HEVCDecode)
	assert.GreaterOrEqual(t, info.Threads, 1)
	assert.True(t, d.HEVCDecodeSupported(context.Background()))

	assert.Len(t, execer.calls, 3)
	assert.Equal(t, "/opt/ffmpeg -hide_banner -hwaccels", execer.calls[0])
}

func TestDetector_CachesResult(t *testing.T) {
	execer := &mockExecer{outputs: map[string]string{}}
	d := NewDetector("", execer, hclog.NewNullLogger())

	_, err := d.Detect(context.Background())
	require.NoError(t, err)
	_, err = d.Detect(context.Background())
	require.NoError(t, err)
	assert.Len(t, execer.calls, 3)
	assert.True(t, strings.HasPrefix(execer.calls[0], "ffmpeg "))
}

func TestDetector_Unsupported(t *testing.T) {
	tests := []struct {
		name    string
		outputs map[string]string
	}{
		{
			name: "no hardware path",
			outputs: map[string]string{
				"-hwaccels": "Hardware acceleration methods:\n",
				"-decoders": " ------\n V....D hevc                 HEVC\n",
				"-encoders": encodersOutput,
			},
		},
		{
			name: "no software HEVC encoder",
			outputs: map[string]string{
				"-hwaccels": "Hardware acceleration methods:\nvaapi\n",
				"-decoders": decodersOutput,
				"-encoders": " ------\n V....D libx264              libx264\n",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDetector("ffmpeg", &mockExecer{outputs: tt.outputs}, hclog.NewNullLogger())
			assert.False(t, d.HEVCDecodeSupported(context.Background()))
		})
	}
}

// execerMock records expectations with testify's mock package.
type execerMock struct {
	mock.Mock
}

func (m *execerMock) Run(ctx context.Context, cmd string, args ...string) ([]byte, error) {
	ret := m.Called(ctx, cmd, args)
	return ret.Get(0).([]byte), ret.Error(1)
}

func TestDetector_ErrorMeansUnsupported(t *testing.T) {
	execer := &execerMock{}
	execer.On("Run", mock.Anything, "ffmpeg", []string{"-hide_banner", "-hwaccels"}).
		Return([]byte(nil), errors.New("not found")).
		Twice()

	d := NewDetector("ffmpeg", execer, hclog.NewNullLogger())

	_, err := d.Detect(context.Background())
	assert.Error(t, err)

	// failures are not cached
	assert.False(t, d.HEVCDecodeSupported(context.Background()))

	execer.AssertExpectations(t)
	execer.AssertNotCalled(t, "Run", mock.Anything, "ffmpeg", []string{"-hide_banner", "-decoders"})
}

func TestParseCodecTable_SkipsLegend(t *testing.T) {
	names := parseCodecTable([]byte(decodersOutput))
	assert.Equal(t, []string{"h264", "hevc", "hevc_cuvid", "aac"}, names)
}

func TestThreads(t *testing.T) {
	assert.GreaterOrEqual(t, Threads(), 1)
}
