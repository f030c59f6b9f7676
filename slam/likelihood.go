package slam

import (
	"image"
	"math"

	"gocv.io/x/gocv"
)

// LikelihoodField caches, for every grid cell, the Euclidean distance (in
// cells) to the nearest known-occupied cell. It is derived from an
// OccupancyGrid and rebuilt after every map update.
type LikelihoodField struct {
	width, height int
	dist          []float32
	maxDistance   float64
}

// NewLikelihoodField creates a field with every distance at zero, so that
// before the first rebuild all observations score equally.
func NewLikelihoodField(width, height int) *LikelihoodField {
	return &LikelihoodField{
		width:       width,
		height:      height,
		dist:        make([]float32, width*height),
		maxDistance: math.Hypot(float64(width), float64(height)),
	}
}

// MaxDistance is the value reported for every cell of a grid with no obstacles
func (f *LikelihoodField) MaxDistance() float64 {
	return f.maxDistance
}

// Lookup returns the distance to the nearest obstacle for a cell
func (f *LikelihoodField) Lookup(c image.Point) (float64, bool) {
	if c.X < 0 || c.Y < 0 || c.X >= f.width || c.Y >= f.height {
		return 0, false
	}
	return float64(f.dist[c.Y*f.width+c.X]), true
}

// Rebuild recomputes the field from the grid with an L2 distance transform
// of its free-space mask. gocv only offers the labelled transform, which
// OpenCV evaluates with the 5x5 chamfer mask, so distances are within a few
// percent of exact. Every cell of a grid without obstacles, and any cell
// farther than MaxDistance, reads MaxDistance.
func (f *LikelihoodField) Rebuild(g *OccupancyGrid) {
	size := g.Size()
	if size.X != f.width || size.Y != f.height {
		*f = *NewLikelihoodField(size.X, size.Y)
	}

	free := g.freeSpaceMat()
	defer free.Close()

	if gocv.CountNonZero(free) == len(f.dist) {
		for i := range f.dist {
			f.dist[i] = float32(f.maxDistance)
		}
		return
	}

	dist := gocv.NewMat()
	defer dist.Close()
	labels := gocv.NewMat()
	defer labels.Close()
	gocv.DistanceTransform(free, &dist, &labels, gocv.DistL2, gocv.DistanceMask5, gocv.DistanceLabelCComp)

	limit := float32(f.maxDistance)
	for y := 0; y < f.height; y++ {
		for x := 0; x < f.width; x++ {
			f.dist[y*f.width+x] = min(dist.GetFloatAt(y, x), limit)
		}
	}
}

// Clone returns a deep copy of the field
func (f *LikelihoodField) Clone() *LikelihoodField {
	c := &LikelihoodField{}
	c.CopyFrom(f)
	return c
}

// CopyFrom overwrites f with src, reusing f's buffer when sizes match
func (f *LikelihoodField) CopyFrom(src *LikelihoodField) {
	f.width, f.height, f.maxDistance = src.width, src.height, src.maxDistance
	if len(f.dist) != len(src.dist) {
		f.dist = make([]float32, len(src.dist))
	}
	copy(f.dist, src.dist)
}
