package media

import "time"

// Sample is one unit handed from a track reader to a track writer: a raw
// video frame or a chunk of interleaved PCM.
type Sample struct {
	PTS      time.Duration
	Duration time.Duration
	Data     []byte
}

// VideoFormat describes raw frames produced by a video track reader.
type VideoFormat struct {
	Width       int
	Height      int
	PixelFormat string
	FrameRate   int
}

// FrameSize returns the byte length of one frame. Only planar 4:2:0 and
// packed RGB formats are supported.
func (f VideoFormat) FrameSize() int {
	switch f.PixelFormat {
	case "rgb24":
		return f.Width * f.Height * 3
	case "rgba":
		return f.Width * f.Height * 4
	default:
		cw := (f.Width + 1) / 2
		ch := (f.Height + 1) / 2
		return f.Width*f.Height + 2*cw*ch
	}
}

// AudioFormat describes interleaved signed 16-bit PCM produced by an audio
// track reader.
type AudioFormat struct {
	SampleRate int
	Channels   int
}

// BytesPerFrame is the size of one PCM frame (one sample per channel).
func (f AudioFormat) BytesPerFrame() int {
	return 2 * f.Channels
}
