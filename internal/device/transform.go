package device

import "math"

// Resolution is the number of raster pixels per logical unit on each axis.
type Resolution struct {
	X, Y float64
}

// Transform converts a logical point to raster space.
func (r Resolution) Transform(p Point) Point {
	return Point{X: p.X * r.X, Y: p.Y * r.Y}
}

// Untransform converts a raster point back to logical space.
func (r Resolution) Untransform(p Point) Point {
	return Point{X: p.X / r.X, Y: p.Y / r.Y}
}

// Scale is the geometric mean of the two axis resolutions, used to convert
// isotropic lengths such as the tool diameter.
func (r Resolution) Scale() float64 {
	return math.Sqrt(r.X * r.Y)
}

// PixelSize returns the raster size for a logical size, rounded to whole pixels.
func (r Resolution) PixelSize(size Point) (int, int) {
	return int(math.Round(size.X * r.X)), int(math.Round(size.Y * r.Y))
}

// MaxToolWidth is the widest stroke in pixels; wider tools saturate to it.
const MaxToolWidth = math.MaxInt32

// toolWidthPixels converts a logical tool width to a stroke thickness between
// one pixel and MaxToolWidth.
func toolWidthPixels(w float64, r Resolution) int {
	px := math.Round(math.Abs(w) * r.Scale())
	switch {
	case px > MaxToolWidth:
		return MaxToolWidth
	case !(px >= 1):
		return 1
	}
	return int(px)
}
