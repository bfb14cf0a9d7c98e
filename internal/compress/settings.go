package compress

import (
	"math"

	"github.com/mantonx/vcompress/internal/media"
)

// Codec identifies the video encoder family.
type Codec string

const (
	CodecH264 Codec = "h264"
	CodecHEVC Codec = "hevc"
)

const (
	ScalingModeFill = "fill"

	ProfileH264MainAutoLevel = "H264_Main_AutoLevel"
	ProfileHEVCMainAutoLevel = "HEVC_Main_AutoLevel"

	// bitsPerPixelFactor scales pixels*fps into the bitrate ceiling.
	bitsPerPixelFactor = 0.1
)

// VideoSettings configures the video writer input.
type VideoSettings struct {
	Codec               Codec      `json:"codec"`
	Size                media.Size `json:"size"`
	ScalingMode         string     `json:"scaling_mode"`
	ProfileLevel        string     `json:"profile_level"`
	AverageBitRate      float64    `json:"average_bit_rate"`
	MaxKeyFrameInterval int        `json:"max_key_frame_interval"`
}

// AudioSettings configures the audio writer input.
type AudioSettings struct {
	Format            string `json:"format"`
	BitRatePerChannel int    `json:"bit_rate_per_channel"`
	SampleRate        int    `json:"sample_rate"`
	Channels          int    `json:"channels"`
}

// BitRate is the total audio bitrate.
func (a AudioSettings) BitRate() int {
	return a.BitRatePerChannel * a.Channels
}

// DefaultAudioSettings is the fixed audio target: AAC stereo at 44.1 kHz,
// 64 kbit/s per channel.
func DefaultAudioSettings() AudioSettings {
	return AudioSettings{
		Format:            "aac",
		BitRatePerChannel: 64000,
		SampleRate:        44100,
		Channels:          2,
	}
}

// CalculateBitRate returns 0.1*W*H*timescale, capped by the source rate when
// the source rate is known.
func CalculateBitRate(size media.Size, timescale int, sourceBitRate float64) float64 {
	candidate := bitsPerPixelFactor * size.Height * size.Width * float64(timescale)
	if sourceBitRate > 0 {
		return math.Min(candidate, sourceBitRate)
	}
	return candidate
}

// BuildVideoSettings derives encoder settings for an export.
func BuildVideoSettings(size media.Size, sourceBitRate float64, timescale int, hevcSupported bool) VideoSettings {
	codec, profile := CodecH264, ProfileH264MainAutoLevel
	if hevcSupported {
		codec, profile = CodecHEVC, ProfileHEVCMainAutoLevel
	}

	return VideoSettings{
		Codec:               codec,
		Size:                size,
		ScalingMode:         ScalingModeFill,
		ProfileLevel:        profile,
		AverageBitRate:      CalculateBitRate(size, timescale, sourceBitRate),
		MaxKeyFrameInterval: timescale,
	}
}

// FrameTimescale is min(max(0, configured), nominal) truncated to whole
// frames per second. An unknown nominal rate leaves the configured ceiling.
func FrameTimescale(configured, nominal float64) int {
	ceiling := math.Max(0, configured)
	if nominal <= 0 || math.IsNaN(nominal) {
		return int(ceiling)
	}
	return int(math.Min(ceiling, nominal))
}
