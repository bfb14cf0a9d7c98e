package compress

import "github.com/mantonx/vcompress/internal/media"

// ShouldCompress reports whether an export is needed: the source render
// size exceeds the target pixel budget or the source frame rate exceeds the
// ceiling. A planned export size is never larger than the target, so the
// pixel comparison is made against the source.
func ShouldCompress(source, target media.Size, nominalFrameRate, targetFrameRate float64) bool {
	return source.Area() > target.Area() || nominalFrameRate > targetFrameRate
}
