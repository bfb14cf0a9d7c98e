package ffmpeg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/mantonx/vcompress/internal/logger"
	"github.com/mantonx/vcompress/internal/media"
)

// Prober loads assets with ffprobe. It implements compress.AssetLoader.
type Prober struct {
	ffprobePath string
	runner      CommandRunner
	logger      hclog.Logger
}

// ProbeResult is the subset of ffprobe's JSON output the prober reads.
type ProbeResult struct {
	Format struct {
		Filename   string            `json:"filename"`
		FormatName string            `json:"format_name"`
		Duration   string            `json:"duration"`
		BitRate    string            `json:"bit_rate"`
		Size       string            `json:"size"`
		Tags       map[string]string `json:"tags"`
	} `json:"format"`
	Streams []ProbeStream `json:"streams"`
}

// ProbeStream is one stream entry of ProbeResult.
type ProbeStream struct {
	Index        int               `json:"index"`
	CodecType    string            `json:"codec_type"`
	CodecName    string            `json:"codec_name"`
	Width        int               `json:"width"`
	Height       int               `json:"height"`
	AvgFrameRate string            `json:"avg_frame_rate"`
	RFrameRate   string            `json:"r_frame_rate"`
	BitRate      string            `json:"bit_rate"`
	Duration     string            `json:"duration"`
	StartTime    string            `json:"start_time"`
	SampleRate   string            `json:"sample_rate"`
	Channels     int               `json:"channels"`
	Tags         map[string]string `json:"tags"`
	SideDataList []struct {
		SideDataType string  `json:"side_data_type"`
		Rotation     float64 `json:"rotation"`
	} `json:"side_data_list"`
	Disposition struct {
		AttachedPic int `json:"attached_pic"`
	} `json:"disposition"`
}

// NewProber creates a prober. A nil runner runs real processes.
func NewProber(ffprobePath string, runner CommandRunner, log hclog.Logger) *Prober {
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	if runner == nil {
		runner = &DefaultCommandRunner{}
	}
	return &Prober{
		ffprobePath: ffprobePath,
		runner:      runner,
		logger:      logger.OrDefault(log).Named("prober"),
	}
}

// Load probes path and returns its track list.
func (p *Prober) Load(ctx context.Context, path string) (*media.Asset, error) {
	output, err := p.runner.Run(ctx, p.ffprobePath,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
			return nil, fmt.Errorf("ffprobe failed: %w: %s", err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return nil, fmt.Errorf("ffprobe failed: %w", err)
	}

	asset, err := ParseProbeOutput(path, output)
	if err != nil {
		return nil, err
	}

	p.logger.Debug("probed asset", "path", path, "duration", asset.Duration, "tracks", len(asset.Tracks))
	return asset, nil
}

// ParseProbeOutput converts ffprobe JSON into an asset.
func ParseProbeOutput(path string, data []byte) (*media.Asset, error) {
	var result ProbeResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}
	if len(result.Streams) == 0 {
		return nil, fmt.Errorf("no streams found in %s", path)
	}

	asset := &media.Asset{
		Path:     path,
		Format:   result.Format.FormatName,
		Duration: parseSeconds(result.Format.Duration),
		Tags:     result.Format.Tags,
	}
	asset.Size, _ = strconv.ParseInt(result.Format.Size, 10, 64)

	for _, s := range result.Streams {
		switch s.CodecType {
		case "video":
			if s.Disposition.AttachedPic == 1 {
				continue
			}
			asset.Tracks = append(asset.Tracks, videoTrackFrom(s))
		case "audio":
			asset.Tracks = append(asset.Tracks, audioTrackFrom(s))
		}
	}

	if asset.Duration <= 0 {
		for _, t := range asset.Tracks {
			if t.TimeRange.Duration > asset.Duration {
				asset.Duration = t.TimeRange.Duration
			}
		}
	}
	return asset, nil
}

func videoTrackFrom(s ProbeStream) media.Track {
	fps := parseRate(s.AvgFrameRate)
	if fps <= 0 {
		fps = parseRate(s.RFrameRate)
	}
	bitRate, _ := strconv.ParseFloat(s.BitRate, 64)

	return media.Track{
		Index:              s.Index,
		Kind:               media.KindVideo,
		Codec:              s.CodecName,
		NaturalSize:        media.Size{Width: float64(s.Width), Height: float64(s.Height)},
		PreferredTransform: media.RotationTransform(clockwiseRotation(s)),
		NominalFrameRate:   fps,
		EstimatedDataRate:  bitRate,
		TimeRange:          streamTimeRange(s),
	}
}

func audioTrackFrom(s ProbeStream) media.Track {
	rate, _ := strconv.Atoi(s.SampleRate)
	bitRate, _ := strconv.ParseFloat(s.BitRate, 64)

	return media.Track{
		Index:              s.Index,
		Kind:               media.KindAudio,
		Codec:              s.CodecName,
		PreferredTransform: media.Identity,
		EstimatedDataRate:  bitRate,
		TimeRange:          streamTimeRange(s),
		SampleRate:         rate,
		Channels:           s.Channels,
	}
}

// clockwiseRotation returns the display rotation in clockwise degrees.
// The display matrix reports counter-clockwise degrees; the legacy rotate
// tag is already clockwise.
func clockwiseRotation(s ProbeStream) float64 {
	for _, sd := range s.SideDataList {
		if sd.SideDataType == "Display Matrix" {
			return -sd.Rotation
		}
	}
	if v, ok := s.Tags["rotate"]; ok {
		if deg, err := strconv.ParseFloat(v, 64); err == nil {
			return deg
		}
	}
	return 0
}

func streamTimeRange(s ProbeStream) media.TimeRange {
	return media.TimeRange{
		Start:    parseSeconds(s.StartTime),
		Duration: parseSeconds(s.Duration),
	}
}

// parseRate parses "30000/1001" or "25".
func parseRate(s string) float64 {
	num, den, found := strings.Cut(s, "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	if !found {
		return n
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0
	}
	return n / d
}

func parseSeconds(s string) time.Duration {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || f < 0 {
		return 0
	}
	return time.Duration(math.Round(f * float64(time.Second)))
}
