// Package media defines the geometry, track and sample primitives shared by
// the compression core and its backends.
package media

import (
	"fmt"
	"math"
)

// Size is a width/height pair in pixels. Values are floating point because
// intermediate sizes (render sizes, planned export sizes) are not always
// integral.
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Area returns Width*Height.
func (s Size) Area() float64 {
	return s.Width * s.Height
}

// IsLandscape reports whether the size is wider than it is tall.
func (s Size) IsLandscape() bool {
	return s.Width > s.Height
}

// Abs returns the size with both dimensions made non-negative.
func (s Size) Abs() Size {
	return Size{Width: math.Abs(s.Width), Height: math.Abs(s.Height)}
}

// Even rounds both dimensions to the nearest even integer, never below 2.
// Raw 4:2:0 frames and most encoders require even dimensions.
func (s Size) Even() (int, int) {
	return evenDimension(s.Width), evenDimension(s.Height)
}

func (s Size) String() string {
	return fmt.Sprintf("%gx%g", s.Width, s.Height)
}

func evenDimension(v float64) int {
	n := int(math.Round(math.Abs(v)/2)) * 2
	if n < 2 {
		return 2
	}
	return n
}

// Rect is an axis-aligned rectangle in render coordinates.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Transform is a 2D affine transform:
//
//	x' = A*x + C*y + Tx
//	y' = B*x + D*y + Ty
type Transform struct {
	A  float64 `json:"a"`
	B  float64 `json:"b"`
	C  float64 `json:"c"`
	D  float64 `json:"d"`
	Tx float64 `json:"tx"`
	Ty float64 `json:"ty"`
}

// Identity is the transform that leaves every point in place.
var Identity = Transform{A: 1, D: 1}

// IsIdentity reports whether t equals Identity.
func (t Transform) IsIdentity() bool {
	return t == Identity
}

// Linear returns t without its translation.
func (t Transform) Linear() Transform {
	return Transform{A: t.A, B: t.B, C: t.C, D: t.D}
}

// HasCoefficients reports whether the linear part of t is (a, b, c, d).
func (t Transform) HasCoefficients(a, b, c, d float64) bool {
	return t.A == a && t.B == b && t.C == c && t.D == d
}

// ApplyToSize maps a size through the linear part of t. The result may have
// negative components; callers usually want Abs.
func (t Transform) ApplyToSize(s Size) Size {
	return Size{
		Width:  t.A*s.Width + t.C*s.Height,
		Height: t.B*s.Width + t.D*s.Height,
	}
}

// RotationTransform returns the storage-to-display transform for a clockwise
// display rotation in degrees. Angles are normalized to [0, 360) and snapped
// to the nearest quarter turn.
func RotationTransform(degrees float64) Transform {
	quarter := int(math.Round(degrees/90)) % 4
	if quarter < 0 {
		quarter += 4
	}
	switch quarter {
	case 1:
		return Transform{A: 0, B: 1, C: -1, D: 0}
	case 2:
		return Transform{A: -1, B: 0, C: 0, D: -1}
	case 3:
		return Transform{A: 0, B: -1, C: 1, D: 0}
	default:
		return Identity
	}
}
