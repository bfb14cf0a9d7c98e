package compress

import "github.com/mantonx/vcompress/internal/media"

// NormalizeTransform maps a track's preferred transform to a display
// transform whose translation places the rotated frame at the origin.
// Only the four quarter-turn coefficient patterns are corrected; anything
// else yields the identity.
func NormalizeTransform(t media.Transform, natural media.Size) media.Transform {
	w, h := natural.Width, natural.Height

	switch {
	case t.HasCoefficients(0, 1, -1, 0):
		return media.Transform{A: 0, B: 1, C: -1, D: 0, Tx: h, Ty: 0}
	case t.HasCoefficients(0, -1, 1, 0):
		return media.Transform{A: 0, B: -1, C: 1, D: 0, Tx: 0, Ty: w}
	case t.HasCoefficients(0, 1, 1, 0):
		return media.Transform{A: 0, B: -1, C: 1, D: 0, Tx: -h, Ty: 2 * w}
	case t.HasCoefficients(-1, 0, 0, -1):
		return media.Transform{A: -1, B: 0, C: 0, D: -1, Tx: w, Ty: h}
	default:
		return media.Identity
	}
}

// RenderSize is the natural size mapped through the track transform, made
// non-negative.
func RenderSize(t media.Transform, natural media.Size) media.Size {
	return t.ApplyToSize(natural).Abs()
}
