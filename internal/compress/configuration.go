package compress

import (
	"fmt"
	"math"
	"path/filepath"
	"strings"

	"github.com/mantonx/vcompress/internal/media"
)

// VideoSize is the maximum export resolution.
type VideoSize int

const (
	Size640x480 VideoSize = iota + 1
	Size960x540
	Size1280x720
	Size1920x1080
	Size3840x2160
)

var videoSizes = map[VideoSize]media.Size{
	Size640x480:   {Width: 640, Height: 480},
	Size960x540:   {Width: 960, Height: 540},
	Size1280x720:  {Width: 1280, Height: 720},
	Size1920x1080: {Width: 1920, Height: 1080},
	Size3840x2160: {Width: 3840, Height: 2160},
}

// Dimensions returns the pixel ceiling. The zero value maps to 1280x720.
func (v VideoSize) Dimensions() media.Size {
	if s, ok := videoSizes[v]; ok {
		return s
	}
	return videoSizes[Size1280x720]
}

func (v VideoSize) String() string {
	d := v.Dimensions()
	return fmt.Sprintf("%dx%d", int(d.Width), int(d.Height))
}

// MarshalText implements encoding.TextMarshaler.
func (v VideoSize) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (v *VideoSize) UnmarshalText(text []byte) error {
	parsed, err := ParseVideoSize(string(text))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// ParseVideoSize accepts "WxH" or the common "720p" style names.
func ParseVideoSize(s string) (VideoSize, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "640x480", "480p":
		return Size640x480, nil
	case "960x540", "540p":
		return Size960x540, nil
	case "1280x720", "720p", "":
		return Size1280x720, nil
	case "1920x1080", "1080p":
		return Size1920x1080, nil
	case "3840x2160", "2160p", "4k":
		return Size3840x2160, nil
	}
	return 0, fmt.Errorf("unknown video size %q", s)
}

// FileType is the output container.
type FileType int

const (
	FileTypeMP4 FileType = iota + 1
	FileTypeMOV
)

// Extension returns the file extension including the dot.
func (f FileType) Extension() string {
	if f == FileTypeMOV {
		return ".mov"
	}
	return ".mp4"
}

// ContainerFormat returns the muxer name.
func (f FileType) ContainerFormat() string {
	if f == FileTypeMOV {
		return "mov"
	}
	return "mp4"
}

func (f FileType) String() string {
	return f.ContainerFormat()
}

// MarshalText implements encoding.TextMarshaler.
func (f FileType) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (f *FileType) UnmarshalText(text []byte) error {
	parsed, err := ParseFileType(string(text))
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

// ParseFileType accepts "mp4", "mov" with or without a leading dot.
func ParseFileType(s string) (FileType, error) {
	switch strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), ".")) {
	case "mp4", "":
		return FileTypeMP4, nil
	case "mov", "quicktime":
		return FileTypeMOV, nil
	}
	return 0, fmt.Errorf("unknown file type %q", s)
}

// Configuration is the export target. It is a value and is never mutated
// once handed to a Compressor.
type Configuration struct {
	VideoSize VideoSize `json:"video_size"`
	FileType  FileType  `json:"file_type"`
	// FrameRate is the frame-rate ceiling in frames per second.
	FrameRate float64 `json:"frame_rate"`
}

// DefaultConfiguration returns 1280x720, mp4, 30 fps.
func DefaultConfiguration() Configuration {
	return Configuration{
		VideoSize: Size1280x720,
		FileType:  FileTypeMP4,
		FrameRate: 30,
	}
}

// withDefaults fills zero fields from DefaultConfiguration.
func (c Configuration) withDefaults() Configuration {
	d := DefaultConfiguration()
	if c.VideoSize == 0 {
		c.VideoSize = d.VideoSize
	}
	if c.FileType == 0 {
		c.FileType = d.FileType
	}
	if c.FrameRate == 0 {
		c.FrameRate = d.FrameRate
	}
	return c
}

// Validate rejects values no export could satisfy.
func (c Configuration) Validate() error {
	if _, ok := videoSizes[c.VideoSize]; !ok && c.VideoSize != 0 {
		return fmt.Errorf("invalid video size %d", int(c.VideoSize))
	}
	if c.FileType != 0 && c.FileType != FileTypeMP4 && c.FileType != FileTypeMOV {
		return fmt.Errorf("invalid file type %d", int(c.FileType))
	}
	if math.IsNaN(c.FrameRate) || math.IsInf(c.FrameRate, 0) || c.FrameRate < 0 {
		return fmt.Errorf("invalid frame rate %g", c.FrameRate)
	}
	return nil
}

// DefaultOutputPath places the output next to dir (or the input when dir is
// empty) as <name>_compressed<ext>.
func DefaultOutputPath(inputPath, dir string, fileType FileType) string {
	if dir == "" {
		dir = filepath.Dir(inputPath)
	}
	base := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))
	return filepath.Join(dir, base+"_compressed"+fileType.Extension())
}
