// Package watermark prepares overlay images for the video reader. Sources
// may be PNG, JPEG, GIF, BMP, TIFF or WebP; they are resized to the overlay
// rectangle and written as PNG, the one format every FFmpeg build decodes.
package watermark

import (
	"bytes"
	"fmt"
	"image"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"github.com/mantonx/vcompress/internal/media"
)

// Decode reads an image file, honoring EXIF orientation for JPEGs.
func Decode(path string) (image.Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read watermark: %w", err)
	}

	if isWebP(path, data) {
		img, err := webp.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("failed to decode webp watermark: %w", err)
		}
		return img, nil
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to decode watermark: %w", err)
	}
	return img, nil
}

func isWebP(path string, data []byte) bool {
	if strings.EqualFold(filepath.Ext(path), ".webp") {
		return true
	}
	return len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WEBP"
}

// Prepare decodes src, resizes it to rect and writes a PNG into dir. The
// caller removes the returned file.
func Prepare(src string, rect media.Rect, dir string) (string, error) {
	img, err := Decode(src)
	if err != nil {
		return "", err
	}

	w, h := int(math.Round(rect.Width)), int(math.Round(rect.Height))
	if w <= 0 || h <= 0 {
		return "", fmt.Errorf("invalid watermark size %dx%d", w, h)
	}
	if b := img.Bounds(); b.Dx() != w || b.Dy() != h {
		img = imaging.Resize(img, w, h, imaging.Lanczos)
	}

	f, err := os.CreateTemp(dir, "watermark-*.png")
	if err != nil {
		return "", fmt.Errorf("failed to create watermark file: %w", err)
	}
	path := f.Name()

	if err := imaging.Encode(f, img, imaging.PNG); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("failed to encode watermark: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", err
	}
	return path, nil
}

// ParseRect parses "x,y,width,height" in render pixels.
func ParseRect(s string) (media.Rect, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return media.Rect{}, fmt.Errorf("watermark rect %q: want x,y,width,height", s)
	}

	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return media.Rect{}, fmt.Errorf("watermark rect %q: %w", s, err)
		}
		v[i] = f
	}
	if v[2] <= 0 || v[3] <= 0 {
		return media.Rect{}, fmt.Errorf("watermark rect %q: width and height must be positive", s)
	}
	return media.Rect{X: v[0], Y: v[1], Width: v[2], Height: v[3]}, nil
}

// Fixed places the watermark at rect regardless of the render size.
func Fixed(rect media.Rect) func(media.Size) media.Rect {
	return func(media.Size) media.Rect { return rect }
}

// BottomRight sizes the watermark to fraction of the render width, keeps
// the image aspect ratio and insets it by margin from the bottom right
// corner.
func BottomRight(imageSize media.Size, fraction, margin float64) func(media.Size) media.Rect {
	return func(render media.Size) media.Rect {
		w := render.Width * fraction
		h := w
		if imageSize.Width > 0 {
			h = w * imageSize.Height / imageSize.Width
		}
		return media.Rect{
			X:      render.Width - w - margin,
			Y:      render.Height - h - margin,
			Width:  w,
			Height: h,
		}
	}
}

// ImageSize returns the pixel size of an image file.
func ImageSize(path string) (media.Size, error) {
	img, err := Decode(path)
	if err != nil {
		return media.Size{}, err
	}
	b := img.Bounds()
	return media.Size{Width: float64(b.Dx()), Height: float64(b.Dy())}, nil
}
