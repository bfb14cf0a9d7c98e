package compress

import (
	"fmt"
	"time"

	"github.com/mantonx/vcompress/internal/media"
)

// RenderPlan is the canonical geometry of the video track.
type RenderPlan struct {
	RenderSize media.Size      `json:"render_size"`
	Transform  media.Transform `json:"transform"`
}

// Watermark is an image overlaid on every frame at Rect (render
// coordinates, origin top left).
type Watermark struct {
	ImagePath string
	Rect      media.Rect
}

// WatermarkLayout computes the watermark rectangle from the render size.
type WatermarkLayout func(renderSize media.Size) media.Rect

// Composition is what the reader decodes: the source video track, an audio
// track from the source or a replacement asset, and the render geometry.
type Composition struct {
	Source *media.Asset
	Video  *media.Track
	Audio  *media.Track

	// AudioSource is the path of the asset Audio belongs to.
	AudioSource string

	Render    RenderPlan
	FrameRate int
	Duration  time.Duration
	Watermark *Watermark
	Metadata  map[string]string
}

// NewComposition assembles the first video and first audio track of asset
// over the asset's full duration.
func NewComposition(asset *media.Asset, cfg Configuration) *Composition {
	c := &Composition{
		Source:   asset,
		Duration: asset.Duration,
		Render:   RenderPlan{Transform: media.Identity},
		Metadata: map[string]string{},
	}

	if v, ok := asset.FirstTrack(media.KindVideo); ok {
		v.TimeRange = media.TimeRange{Duration: asset.Duration}
		c.Video = &v
		c.Render = RenderPlan{
			RenderSize: RenderSize(v.PreferredTransform, v.NaturalSize),
			Transform:  NormalizeTransform(v.PreferredTransform, v.NaturalSize),
		}
		c.FrameRate = FrameTimescale(cfg.FrameRate, v.NominalFrameRate)
	}

	if a, ok := asset.FirstTrack(media.KindAudio); ok {
		a.TimeRange = media.TimeRange{Duration: asset.Duration}
		c.Audio = &a
		c.AudioSource = asset.Path
	}

	return c
}

// HasVideo reports whether the source has a video track.
func (c *Composition) HasVideo() bool {
	return c.Video != nil
}

// HasAudio reports whether the composition carries an audio track.
func (c *Composition) HasAudio() bool {
	return c.Audio != nil
}

// NominalFrameRate is the source video frame rate, or fallback without
// video.
func (c *Composition) NominalFrameRate(fallback float64) float64 {
	if c.Video == nil {
		return fallback
	}
	return c.Video.NominalFrameRate
}

// ReplaceAudio drops the current audio and uses the first audio track of
// src instead, clipped to the composition duration.
func (c *Composition) ReplaceAudio(src *media.Asset) error {
	a, ok := src.FirstTrack(media.KindAudio)
	if !ok {
		return fmt.Errorf("%s has no audio track", src.Path)
	}

	duration := src.Duration
	if a.TimeRange.Duration > 0 {
		duration = a.TimeRange.Duration
	}
	a.TimeRange = media.TimeRange{Duration: duration}.Clip(c.Duration)

	c.Audio = &a
	c.AudioSource = src.Path
	return nil
}

// AddWatermark overlays imagePath at the rectangle layout computes from the
// render size.
func (c *Composition) AddWatermark(imagePath string, layout WatermarkLayout) {
	if imagePath == "" || layout == nil {
		return
	}
	c.Watermark = &Watermark{ImagePath: imagePath, Rect: layout(c.Render.RenderSize)}
}

// VideoFormat is the raw frame format the reader emits and the writer
// consumes.
func (c *Composition) VideoFormat() media.VideoFormat {
	w, h := c.Render.RenderSize.Even()
	return media.VideoFormat{
		Width:       w,
		Height:      h,
		PixelFormat: "yuv420p",
		FrameRate:   c.FrameRate,
	}
}

// AudioFormat is the PCM format the reader emits. Unknown source values
// fall back to the export audio settings.
func (c *Composition) AudioFormat() media.AudioFormat {
	def := DefaultAudioSettings()
	f := media.AudioFormat{SampleRate: def.SampleRate, Channels: def.Channels}
	if c.Audio != nil {
		if c.Audio.SampleRate > 0 {
			f.SampleRate = c.Audio.SampleRate
		}
		if c.Audio.Channels > 0 {
			f.Channels = c.Audio.Channels
		}
	}
	return f
}

// VideoDuration is the length progress of the video track is measured
// against.
func (c *Composition) VideoDuration() time.Duration {
	return c.Duration
}

// AudioDuration is the length progress of the audio track is measured
// against.
func (c *Composition) AudioDuration() time.Duration {
	if c.Audio == nil {
		return 0
	}
	return c.Audio.TimeRange.Duration
}
