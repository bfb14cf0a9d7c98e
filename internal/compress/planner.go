package compress

import (
	"math"

	"github.com/mantonx/vcompress/internal/media"
)

// PlanExportSize fits render into the target ceiling. The aspect ratio of
// render is kept, neither side grows beyond the source, and the result has
// the orientation of render regardless of the orientation of target.
func PlanExportSize(render, target media.Size) media.Size {
	videoShort, videoLong := shortLong(render)
	exportShort, exportLong := shortLong(target)
	if videoLong <= 0 || exportLong <= 0 {
		return media.Size{}
	}

	videoRatio := videoShort / videoLong
	exportRatio := exportShort / exportLong

	var short, long float64
	if videoRatio > exportRatio {
		short = math.Min(videoShort, exportShort)
		long = short / videoRatio
	} else {
		long = math.Min(videoLong, exportLong)
		short = long * videoRatio
	}

	if render.Width > render.Height {
		return media.Size{Width: long, Height: short}
	}
	return media.Size{Width: short, Height: long}
}

func shortLong(s media.Size) (float64, float64) {
	s = s.Abs()
	return math.Min(s.Width, s.Height), math.Max(s.Width, s.Height)
}
