// Package raster provides the single-channel drawing surface used by the
// cutter simulator. Lines and circles are rasterized with anti-aliasing using
// golang.org/x/image/vector and composited onto an *image.Gray.
package raster

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"

	"golang.org/x/image/vector"
)

// Point is a pair of real-valued coordinates.
type Point struct {
	X float64
	Y float64
}

// Add returns p translated by q.
func (p Point) Add(q Point) Point {
	return Point{X: p.X + q.X, Y: p.Y + q.Y}
}

// String returns the point formatted as "(x, y)".
func (p Point) String() string {
	return fmt.Sprintf("(%g, %g)", p.X, p.Y)
}

// Surface is the drawing capability the device delegates rasterization to.
// Coordinates are in raster space and address pixel centres.
type Surface interface {
	// DrawLine strokes an anti-aliased line with round caps.
	DrawLine(from, to Point, level uint8, thickness float64)
	// DrawCircle strokes the outline of a circle.
	DrawCircle(center Point, radius float64, level uint8, thickness float64)
	// Clone returns an independent deep copy of the surface.
	Clone() Surface
	// Zero fills the surface with black.
	Zero()
	// Image exposes the pixel buffer backing the surface.
	Image() *image.Gray
	// Bounds returns the pixel bounds of the surface.
	Bounds() image.Rectangle
}

// Gray is a Surface backed by an 8-bit grayscale image.
type Gray struct {
	img *image.Gray
}

// Verify interface implementation at compile time.
var _ Surface = (*Gray)(nil)

// NewGray allocates a zero-filled surface of the given pixel size.
func NewGray(width, height int) *Gray {
	if width < 0 {
		width = 0
	}
	if height < 0 {
		height = 0
	}
	return &Gray{img: image.NewGray(image.Rect(0, 0, width, height))}
}

// FromImage wraps an existing grayscale image without copying it.
func FromImage(img *image.Gray) *Gray {
	return &Gray{img: img}
}

// Image returns the backing image.
func (g *Gray) Image() *image.Gray {
	return g.img
}

// Bounds returns the pixel bounds of the surface.
func (g *Gray) Bounds() image.Rectangle {
	return g.img.Bounds()
}

// Zero fills every pixel with 0.
func (g *Gray) Zero() {
	clear(g.img.Pix)
}

// Clone returns a deep copy of the surface.
func (g *Gray) Clone() Surface {
	pix := make([]uint8, len(g.img.Pix))
	copy(pix, g.img.Pix)
	return &Gray{img: &image.Gray{
		Pix:    pix,
		Stride: g.img.Stride,
		Rect:   g.img.Rect,
	}}
}

// DrawLine strokes a line from one pixel centre to another. Thickness is the
// full stroke width in pixels; values below 1 are drawn as 1. Only the part
// of the segment that can reach the surface is rasterized.
func (g *Gray) DrawLine(from, to Point, level uint8, thickness float64) {
	if thickness < 1 {
		thickness = 1
	}
	a, b := centre(from), centre(to)
	if !finite(a) || !finite(b) {
		return
	}
	bounds := g.img.Bounds()
	if bounds.Empty() {
		return
	}
	r := thickness / 2
	a, b, ok := clipSegment(a, b, bounds, r+1)
	if !ok {
		return
	}
	g.fill(capsule(a, b, r), level)
}

// DrawCircle strokes the outline of a circle centred on a pixel centre.
func (g *Gray) DrawCircle(center Point, radius float64, level uint8, thickness float64) {
	if thickness < 1 {
		thickness = 1
	}
	c := centre(center)
	if !finite(c) {
		return
	}
	outer := radius + thickness/2
	inner := radius - thickness/2

	contours := [][]Point{ellipse(c, outer, false)}
	if inner > 0 {
		contours = append(contours, ellipse(c, inner, true))
	}
	g.fill(contours, level)
}

// fill rasterizes the closed contours and composites the given level over
// the surface using the coverage as mask. The rasterizer only spans the
// contours' bounding box clipped to the surface.
func (g *Gray) fill(contours [][]Point, level uint8) {
	box := contourBounds(contours).Intersect(g.img.Bounds())
	if box.Empty() {
		return
	}

	r := vector.NewRasterizer(box.Dx(), box.Dy())
	r.DrawOp = draw.Over
	ox, oy := float64(box.Min.X), float64(box.Min.Y)
	for _, contour := range contours {
		contour = clipPolygon(contour, box)
		if len(contour) < 3 {
			continue
		}
		r.MoveTo(float32(contour[0].X-ox), float32(contour[0].Y-oy))
		for _, p := range contour[1:] {
			r.LineTo(float32(p.X-ox), float32(p.Y-oy))
		}
		r.ClosePath()
	}
	r.Draw(g.img, box, image.NewUniform(color.Gray{Y: level}), image.Point{})
}

// contourBounds returns the smallest integer rectangle holding every
// contour point.
func contourBounds(contours [][]Point) image.Rectangle {
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, contour := range contours {
		if len(contour) < 3 {
			continue
		}
		for _, p := range contour {
			minX, maxX = math.Min(minX, p.X), math.Max(maxX, p.X)
			minY, maxY = math.Min(minY, p.Y), math.Max(maxY, p.Y)
		}
	}
	if minX > maxX || minY > maxY {
		return image.Rectangle{}
	}
	return image.Rect(
		clampInt(math.Floor(minX)), clampInt(math.Floor(minY)),
		clampInt(math.Ceil(maxX)), clampInt(math.Ceil(maxY)),
	)
}

// clipPolygon clips a closed contour to box (Sutherland-Hodgman). Winding
// inside the box is preserved, so ring holes still cancel.
func clipPolygon(pts []Point, box image.Rectangle) []Point {
	minX, minY := float64(box.Min.X), float64(box.Min.Y)
	maxX, maxY := float64(box.Max.X), float64(box.Max.Y)

	pts = clipEdge(pts, func(p Point) bool { return p.X >= minX }, func(a, b Point) Point { return atX(a, b, minX) })
	pts = clipEdge(pts, func(p Point) bool { return p.X <= maxX }, func(a, b Point) Point { return atX(a, b, maxX) })
	pts = clipEdge(pts, func(p Point) bool { return p.Y >= minY }, func(a, b Point) Point { return atY(a, b, minY) })
	pts = clipEdge(pts, func(p Point) bool { return p.Y <= maxY }, func(a, b Point) Point { return atY(a, b, maxY) })
	return pts
}

func clipEdge(pts []Point, inside func(Point) bool, cross func(a, b Point) Point) []Point {
	if len(pts) == 0 {
		return nil
	}
	out := make([]Point, 0, len(pts)+4)
	prev := pts[len(pts)-1]
	for _, cur := range pts {
		switch {
		case inside(cur):
			if !inside(prev) {
				out = append(out, cross(prev, cur))
			}
			out = append(out, cur)
		case inside(prev):
			out = append(out, cross(prev, cur))
		}
		prev = cur
	}
	return out
}

// atX returns the point of a-b on the vertical line x. a and b must lie on
// opposite sides of it.
func atX(a, b Point, x float64) Point {
	t := (x - a.X) / (b.X - a.X)
	return Point{X: x, Y: a.Y + t*(b.Y-a.Y)}
}

// atY returns the point of a-b on the horizontal line y.
func atY(a, b Point, y float64) Point {
	t := (y - a.Y) / (b.Y - a.Y)
	return Point{X: a.X + t*(b.X-a.X), Y: y}
}

// clampInt converts v to an int, saturating at the int32 range.
func clampInt(v float64) int {
	switch {
	case v > math.MaxInt32:
		return math.MaxInt32
	case v < math.MinInt32:
		return math.MinInt32
	}
	return int(v)
}

func finite(p Point) bool {
	return !math.IsNaN(p.X) && !math.IsNaN(p.Y) && !math.IsInf(p.X, 0) && !math.IsInf(p.Y, 0)
}

// clipSegment clips a-b to bounds grown by margin on every side
// (Liang-Barsky). It reports false when no part of the segment lies inside.
func clipSegment(a, b Point, bounds image.Rectangle, margin float64) (Point, Point, bool) {
	minX, minY := float64(bounds.Min.X)-margin, float64(bounds.Min.Y)-margin
	maxX, maxY := float64(bounds.Max.X)+margin, float64(bounds.Max.Y)+margin

	dx, dy := b.X-a.X, b.Y-a.Y
	t0, t1 := 0.0, 1.0
	edges := [4][2]float64{
		{-dx, a.X - minX},
		{dx, maxX - a.X},
		{-dy, a.Y - minY},
		{dy, maxY - a.Y},
	}
	for _, e := range edges {
		p, q := e[0], e[1]
		if p == 0 {
			if q < 0 {
				return a, b, false
			}
			continue
		}
		t := q / p
		if p < 0 {
			if t > t1 {
				return a, b, false
			}
			t0 = math.Max(t0, t)
		} else {
			if t < t0 {
				return a, b, false
			}
			t1 = math.Min(t1, t)
		}
	}

	ca, cb := a, b
	if t0 > 0 {
		ca = Point{X: a.X + t0*dx, Y: a.Y + t0*dy}
	}
	if t1 < 1 {
		cb = Point{X: a.X + t1*dx, Y: a.Y + t1*dy}
	}
	return ca, cb, true
}

// centre maps a pixel coordinate to the centre of that pixel in vector space.
func centre(p Point) Point {
	return Point{X: p.X + 0.5, Y: p.Y + 0.5}
}

const (
	minArcSegments = 16
	maxArcSegments = 4096
)

// arcSegments returns how many segments approximate a full circle of radius r
// with sub-pixel error.
func arcSegments(r float64) int {
	n := math.Ceil(2 * math.Pi * r / 2)
	switch {
	case n < minArcSegments:
		return minArcSegments
	case n > maxArcSegments:
		return maxArcSegments
	}
	return int(n)
}

// ellipse returns a closed polygon approximating a circle. Clockwise contours
// cancel counter-clockwise ones, which is how ring holes are cut.
func ellipse(c Point, r float64, clockwise bool) []Point {
	n := arcSegments(r)
	pts := make([]Point, 0, n)
	for i := 0; i < n; i++ {
		a := 2 * math.Pi * float64(i) / float64(n)
		if clockwise {
			a = -a
		}
		pts = append(pts, Point{X: c.X + r*math.Cos(a), Y: c.Y + r*math.Sin(a)})
	}
	return pts
}

// capsule returns the outline of a segment swept by a disc of radius r.
// A zero-length segment degenerates to a disc.
func capsule(a, b Point, r float64) [][]Point {
	dx, dy := b.X-a.X, b.Y-a.Y
	length := math.Hypot(dx, dy)
	if length == 0 {
		return [][]Point{ellipse(a, r, false)}
	}

	// Angle of the normal on the left of a->b.
	base := math.Atan2(dy, dx) + math.Pi/2
	half := arcSegments(r)/2 + 1
	pts := make([]Point, 0, 2*half)

	// Cap around a, from the left normal through the back to the right normal.
	for i := 0; i < half; i++ {
		t := base + math.Pi*float64(i)/float64(half-1)
		pts = append(pts, Point{X: a.X + r*math.Cos(t), Y: a.Y + r*math.Sin(t)})
	}
	// Cap around b, continuing from the right normal to the left one.
	for i := 0; i < half; i++ {
		t := base + math.Pi + math.Pi*float64(i)/float64(half-1)
		pts = append(pts, Point{X: b.X + r*math.Cos(t), Y: b.Y + r*math.Sin(t)})
	}
	return [][]Point{pts}
}
