package ffmpeg

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/mantonx/vcompress/internal/compress"
	"github.com/mantonx/vcompress/internal/media"
)

// defaultFrameRate is used for raw pipes when the composition has no
// usable timescale.
const defaultFrameRate = 30

// WriterSpec describes one encoder process.
type WriterSpec struct {
	Output   string
	FileType compress.FileType
	Metadata map[string]string

	Video       compress.VideoSettings
	VideoFormat media.VideoFormat

	// Audio is nil when the output has no audio track.
	Audio       *compress.AudioSettings
	AudioFormat media.AudioFormat

	Threads int
}

// transformFilter maps a normalized display transform to FFmpeg filters.
func transformFilter(t media.Transform) string {
	switch {
	case t.HasCoefficients(0, 1, -1, 0):
		return "transpose=clock"
	case t.HasCoefficients(0, -1, 1, 0):
		return "transpose=cclock"
	case t.HasCoefficients(-1, 0, 0, -1):
		return "hflip,vflip"
	default:
		return ""
	}
}

// videoFilterGraph builds the decoder filter graph: rotate into render
// orientation, force even render dimensions, cap the frame rate and
// optionally overlay the prepared watermark at its rectangle.
func videoFilterGraph(comp *compress.Composition, watermarkPNG string) string {
	format := comp.VideoFormat()

	var chain []string
	if f := transformFilter(comp.Render.Transform); f != "" {
		chain = append(chain, f)
	}
	chain = append(chain, fmt.Sprintf("scale=%d:%d", format.Width, format.Height))
	if format.FrameRate > 0 {
		chain = append(chain, fmt.Sprintf("fps=%d", format.FrameRate))
	}

	// Select by absolute index; attached cover art can precede the video.
	base := fmt.Sprintf("[0:%d]", comp.Video.Index) + strings.Join(chain, ",")
	if watermarkPNG == "" || comp.Watermark == nil {
		return base + ",format=yuv420p[v]"
	}

	r := comp.Watermark.Rect
	return fmt.Sprintf("%s[base];[1:v]format=rgba[wm];[base][wm]overlay=x=%d:y=%d:shortest=1,format=yuv420p[v]",
		base, int(math.Round(r.X)), int(math.Round(r.Y)))
}

// videoReadArgs decodes the composition's video track to raw frames on
// stdout. Autorotation is disabled so the transform is applied once.
func videoReadArgs(comp *compress.Composition, watermarkPNG string) []string {
	args := []string{
		"-hide_banner", "-nostdin", "-loglevel", "error",
		"-noautorotate",
		"-i", comp.Source.Path,
	}
	if watermarkPNG != "" && comp.Watermark != nil {
		args = append(args, "-loop", "1", "-i", watermarkPNG)
	}
	return append(args,
		"-filter_complex", videoFilterGraph(comp, watermarkPNG),
		"-map", "[v]",
		"-an",
		"-f", "rawvideo",
		"-pix_fmt", "yuv420p",
		"pipe:1",
	)
}

// audioReadArgs decodes the composition's audio track to interleaved
// 16-bit PCM on stdout, clipped to the track time range.
func audioReadArgs(comp *compress.Composition) []string {
	format := comp.AudioFormat()
	args := []string{
		"-hide_banner", "-nostdin", "-loglevel", "error",
		"-i", comp.AudioSource,
		"-map", fmt.Sprintf("0:%d", comp.Audio.Index),
		"-vn",
	}
	if d := comp.AudioDuration(); d > 0 {
		args = append(args, "-t", formatSeconds(d))
	}
	return append(args,
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"-ar", strconv.Itoa(format.SampleRate),
		"-ac", strconv.Itoa(format.Channels),
		"pipe:1",
	)
}

// BuildWriterArgs builds the encoder command. Raw video arrives on fd 3
// and PCM on fd 4.
func BuildWriterArgs(spec WriterSpec) []string {
	vf := spec.VideoFormat
	rate := vf.FrameRate
	if rate <= 0 {
		rate = defaultFrameRate
	}

	args := []string{
		"-hide_banner", "-nostdin", "-loglevel", "error", "-y",
		"-f", "rawvideo",
		"-pix_fmt", vf.PixelFormat,
		"-video_size", fmt.Sprintf("%dx%d", vf.Width, vf.Height),
		"-framerate", strconv.Itoa(rate),
		"-i", "pipe:3",
	}
	if spec.Audio != nil {
		args = append(args,
			"-f", "s16le",
			"-ar", strconv.Itoa(spec.AudioFormat.SampleRate),
			"-ac", strconv.Itoa(spec.AudioFormat.Channels),
			"-i", "pipe:4",
		)
	}

	args = append(args, "-map", "0:v:0")
	if spec.Audio != nil {
		args = append(args, "-map", "1:a:0")
	}

	// Aspect fill: scale until both sides cover the export size, then crop.
	w, h := spec.Video.Size.Even()
	args = append(args, "-vf", fmt.Sprintf(
		"scale=%d:%d:force_original_aspect_ratio=increase,crop=%d:%d,setsar=1", w, h, w, h))

	args = append(args, "-c:v", videoEncoder(spec.Video.Codec), "-profile:v", "main")
	if spec.Video.Codec == compress.CodecHEVC {
		args = append(args, "-tag:v", "hvc1")
	}
	args = append(args,
		"-b:v", strconv.FormatInt(int64(math.Round(spec.Video.AverageBitRate)), 10),
		"-g", strconv.Itoa(spec.Video.MaxKeyFrameInterval),
		"-pix_fmt", "yuv420p",
	)
	if spec.Threads > 0 {
		args = append(args, "-threads", strconv.Itoa(spec.Threads))
	}

	if spec.Audio != nil {
		args = append(args,
			"-c:a", audioEncoder(spec.Audio.Format),
			"-b:a", strconv.Itoa(spec.Audio.BitRate()),
			"-ar", strconv.Itoa(spec.Audio.SampleRate),
			"-ac", strconv.Itoa(spec.Audio.Channels),
		)
	}

	args = append(args, "-movflags", "+faststart")

	keys := make([]string, 0, len(spec.Metadata))
	for k := range spec.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		args = append(args, "-metadata", k+"="+spec.Metadata[k])
	}

	return append(args,
		"-progress", "pipe:1", "-nostats",
		"-f", spec.FileType.ContainerFormat(),
		spec.Output,
	)
}

func videoEncoder(codec compress.Codec) string {
	if codec == compress.CodecHEVC {
		return "libx265"
	}
	return "libx264"
}

func audioEncoder(format string) string {
	switch format {
	case "", "aac":
		return "aac"
	default:
		return format
	}
}

func formatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 3, 64)
}
