package device

// CurveSegments is the fixed number of line segments used to approximate a
// cubic Bezier.
const CurveSegments = 20

// cubic holds the power-basis coefficients of one axis of a cubic Bezier:
// value(t) = a*t^3 + b*t^2 + c*t + d.
type cubic struct {
	a, b, c, d float64
}

func newCubic(p0, p1, p2, p3 float64) cubic {
	c := 3 * (p1 - p0)
	b := 3*(p2-p1) - c
	a := (p3 - p0) - c - b
	return cubic{a: a, b: b, c: c, d: p0}
}

func (k cubic) at(t float64) float64 {
	return ((k.a*t+k.b)*t+k.c)*t + k.d
}

// Bezier is a cubic Bezier curve in logical space.
type Bezier struct {
	P0, P1, P2, P3 Point
}

// At evaluates the curve at t in [0, 1].
func (z Bezier) At(t float64) Point {
	return Point{
		X: newCubic(z.P0.X, z.P1.X, z.P2.X, z.P3.X).at(t),
		Y: newCubic(z.P0.Y, z.P1.Y, z.P2.Y, z.P3.Y).at(t),
	}
}

// Polyline returns the segments+1 points of a uniform subdivision of the
// curve, starting with P0 and ending with exactly P3.
func (z Bezier) Polyline(segments int) []Point {
	if segments < 1 {
		segments = 1
	}
	kx := newCubic(z.P0.X, z.P1.X, z.P2.X, z.P3.X)
	ky := newCubic(z.P0.Y, z.P1.Y, z.P2.Y, z.P3.Y)

	pts := make([]Point, 0, segments+1)
	pts = append(pts, z.P0)
	for i := 1; i < segments; i++ {
		t := float64(i) / float64(segments)
		pts = append(pts, Point{X: kx.at(t), Y: ky.at(t)})
	}
	// The last point is the end control point, free of rounding drift.
	return append(pts, z.P3)
}
