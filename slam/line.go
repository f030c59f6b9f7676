package slam

import (
	"image"
	"image/color"
	"math"
)

// traceLine visits every cell of the Bresenham line from a to b, inclusive
// of both ends, in order from a to b.
func traceLine(a, b image.Point, visit func(image.Point)) {
	dx := abs(b.X - a.X)
	dy := -abs(b.Y - a.Y)
	sx, sy := 1, 1
	if a.X > b.X {
		sx = -1
	}
	if a.Y > b.Y {
		sy = -1
	}
	e := dx + dy
	p := a
	for {
		visit(p)
		if p == b {
			return
		}
		e2 := 2 * e
		if e2 >= dy {
			e += dy
			p.X += sx
		}
		if e2 <= dx {
			e += dx
			p.Y += sy
		}
	}
}

// drawLine draws a line onto img, clipped to the image bounds
func drawLine(img *image.Gray, a, b image.Point, c color.Gray) {
	bounds := img.Bounds()
	if bounds.Empty() {
		return
	}
	lo := Point{X: float64(bounds.Min.X), Y: float64(bounds.Min.Y)}
	hi := Point{X: float64(bounds.Max.X - 1), Y: float64(bounds.Max.Y - 1)}
	fa, fb, ok := clipSegment(Point{X: float64(a.X), Y: float64(a.Y)}, Point{X: float64(b.X), Y: float64(b.Y)}, lo, hi)
	if !ok {
		return
	}
	ca := image.Pt(int(math.Round(fa.X)), int(math.Round(fa.Y)))
	cb := image.Pt(int(math.Round(fb.X)), int(math.Round(fb.Y)))
	traceLine(ca, cb, func(p image.Point) {
		if p.In(bounds) {
			img.SetGray(p.X, p.Y, c)
		}
	})
}

// clipSegment clips the segment a-b to the axis-aligned rectangle [lo, hi]
// (Liang-Barsky). It returns false when the segment lies entirely outside.
func clipSegment(a, b, lo, hi Point) (Point, Point, bool) {
	t0, t1 := 0.0, 1.0
	dx, dy := b.X-a.X, b.Y-a.Y
	p := [4]float64{-dx, dx, -dy, dy}
	q := [4]float64{a.X - lo.X, hi.X - a.X, a.Y - lo.Y, hi.Y - a.Y}
	for i := range p {
		if p[i] == 0 {
			if q[i] < 0 {
				return a, b, false
			}
			continue
		}
		t := q[i] / p[i]
		if p[i] < 0 {
			if t > t1 {
				return a, b, false
			}
			if t > t0 {
				t0 = t
			}
		} else {
			if t < t0 {
				return a, b, false
			}
			if t < t1 {
				t1 = t
			}
		}
	}
	return Point{X: a.X + t0*dx, Y: a.Y + t0*dy}, Point{X: a.X + t1*dx, Y: a.Y + t1*dy}, true
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
