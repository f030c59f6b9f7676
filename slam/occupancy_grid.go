package slam

import (
	"image"
	"math"

	"gocv.io/x/gocv"
)

// OccupancyGrid is a fixed-extent 2D log-odds occupancy map. World (0,0)
// maps to the centre cell; each cell covers Scale x Scale world units.
type OccupancyGrid struct {
	cfg     GridConfig
	logOdds []float64 // row-major, Width*Height

	grey      *image.Gray // cached visualisation, rebuilt when dirty
	greyDirty bool
}

// NewOccupancyGrid creates a grid with every cell at log-odds 0 (unknown)
func NewOccupancyGrid(cfg GridConfig) *OccupancyGrid {
	return &OccupancyGrid{
		cfg:       cfg,
		logOdds:   make([]float64, cfg.Width*cfg.Height),
		greyDirty: true,
	}
}

// Size returns the grid dimensions in cells
func (g *OccupancyGrid) Size() Size {
	return Size{X: g.cfg.Width, Y: g.cfg.Height}
}

// Bounds returns the cell rectangle of the grid
func (g *OccupancyGrid) Bounds() image.Rectangle {
	return image.Rect(0, 0, g.cfg.Width, g.cfg.Height)
}

// InBounds reports whether a cell lies inside the grid
func (g *OccupancyGrid) InBounds(c image.Point) bool {
	return c.X >= 0 && c.Y >= 0 && c.X < g.cfg.Width && c.Y < g.cfg.Height
}

// ToGridCoordinates converts a world point to its cell
func (g *OccupancyGrid) ToGridCoordinates(p Point) image.Point {
	return cellOf(g.cfg, p)
}

func cellOf(cfg GridConfig, p Point) image.Point {
	return image.Point{
		X: int(math.Floor(p.X/cfg.Scale)) + cfg.Width/2,
		Y: int(math.Floor(p.Y/cfg.Scale)) + cfg.Height/2,
	}
}

// ToWorldCoordinates returns the world position of a cell's centre
func (g *OccupancyGrid) ToWorldCoordinates(c image.Point) Point {
	return Point{
		X: (float64(c.X-g.cfg.Width/2) + 0.5) * g.cfg.Scale,
		Y: (float64(c.Y-g.cfg.Height/2) + 0.5) * g.cfg.Scale,
	}
}

// worldBounds returns the world rectangle covered by the grid. The upper
// corner is pulled in slightly so that it still maps into the last cell.
func (g *OccupancyGrid) worldBounds() (lo, hi Point) {
	lo = Point{
		X: float64(-g.cfg.Width/2) * g.cfg.Scale,
		Y: float64(-g.cfg.Height/2) * g.cfg.Scale,
	}
	hi = Point{
		X: float64(g.cfg.Width-g.cfg.Width/2)*g.cfg.Scale - 1e-9*g.cfg.Scale,
		Y: float64(g.cfg.Height-g.cfg.Height/2)*g.cfg.Scale - 1e-9*g.cfg.Scale,
	}
	return lo, hi
}

func (g *OccupancyGrid) index(c image.Point) int {
	return c.Y*g.cfg.Width + c.X
}

// LogOdds returns the log-odds value of a cell
func (g *OccupancyGrid) LogOdds(c image.Point) (float64, bool) {
	if !g.InBounds(c) {
		return 0, false
	}
	return g.logOdds[g.index(c)], true
}

// Probability returns the occupancy probability of a cell
func (g *OccupancyGrid) Probability(c image.Point) (float64, bool) {
	l, ok := g.LogOdds(c)
	if !ok {
		return 0, false
	}
	return logOddsToProbability(l), true
}

// Update integrates one range observation taken from pose. Cells along the
// ray short of the endpoint become more likely free, the endpoint cell more
// likely occupied. Cells outside the grid are skipped. It returns true when
// the endpoint was recorded as an obstacle.
func (g *OccupancyGrid) Update(pose Pose, bearing, rng float64) bool {
	if rng <= 0 || !pose.IsFinite() || math.IsNaN(bearing) || math.IsInf(rng, 0) || math.IsNaN(rng) {
		return false
	}
	hit := true
	if g.cfg.MaxRange > 0 && rng > g.cfg.MaxRange {
		rng = g.cfg.MaxRange
		hit = false
	}

	end := Endpoint(pose, bearing, rng)
	lo, hi := g.worldBounds()
	if end.X < lo.X || end.Y < lo.Y || end.X > hi.X || end.Y > hi.Y {
		hit = false
	}

	a, b, ok := clipSegment(pose.Pt, end, lo, hi)
	if !ok {
		return false
	}
	g.greyDirty = true

	endCell := g.ToGridCoordinates(b)
	traceLine(g.ToGridCoordinates(a), endCell, func(c image.Point) {
		if !g.InBounds(c) {
			return
		}
		if hit && c == endCell {
			g.add(c, g.cfg.LogOddsOccupied)
			return
		}
		g.add(c, g.cfg.LogOddsFree)
	})
	return hit
}

func (g *OccupancyGrid) add(c image.Point, delta float64) {
	i := g.index(c)
	v := g.logOdds[i] + delta
	if v < g.cfg.LogOddsMin {
		v = g.cfg.LogOddsMin
	} else if v > g.cfg.LogOddsMax {
		v = g.cfg.LogOddsMax
	}
	g.logOdds[i] = v
}

// GreyscaleMap returns an 8-bit visualisation of the grid: occupied cells are
// dark, free cells light, unknown cells mid-grey. The returned image is a
// copy owned by the caller.
func (g *OccupancyGrid) GreyscaleMap() *image.Gray {
	if g.grey == nil || g.greyDirty {
		if g.grey == nil || g.grey.Rect != g.Bounds() {
			g.grey = image.NewGray(g.Bounds())
		}
		for i, l := range g.logOdds {
			g.grey.Pix[i] = uint8(math.Round(255 * (1 - logOddsToProbability(l))))
		}
		g.greyDirty = false
	}
	out := image.NewGray(g.grey.Rect)
	copy(out.Pix, g.grey.Pix)
	return out
}

// ObstacleMask reports the known-occupied cells (row-major): those whose
// log-odds lie above OccupiedThreshold
func (g *OccupancyGrid) ObstacleMask() []bool {
	free := g.freeSpaceMat()
	defer free.Close()

	pix := free.ToBytes()
	mask := make([]bool, len(pix))
	for i, v := range pix {
		mask[i] = v == 0
	}
	return mask
}

// freeSpaceMat thresholds the log-odds into an 8-bit single channel image
// that is 0 on known-occupied cells and 255 everywhere else, the input
// gocv.DistanceTransform measures from. The caller must Close it.
func (g *OccupancyGrid) freeSpaceMat() gocv.Mat {
	logOdds := gocv.NewMatWithSize(g.cfg.Height, g.cfg.Width, gocv.MatTypeCV32FC1)
	defer logOdds.Close()
	for y := 0; y < g.cfg.Height; y++ {
		for x := 0; x < g.cfg.Width; x++ {
			logOdds.SetFloatAt(y, x, float32(g.logOdds[y*g.cfg.Width+x]))
		}
	}

	thresholded := gocv.NewMat()
	defer thresholded.Close()
	gocv.Threshold(logOdds, &thresholded, float32(g.cfg.OccupiedThreshold), 255, gocv.ThresholdBinaryInv)

	free := gocv.NewMat()
	thresholded.ConvertTo(&free, gocv.MatTypeCV8UC1)
	return free
}

// Clone returns a deep copy of the grid
func (g *OccupancyGrid) Clone() *OccupancyGrid {
	c := &OccupancyGrid{cfg: g.cfg}
	c.CopyFrom(g)
	return c
}

// CopyFrom overwrites g with the contents of src, reusing g's buffers when
// the sizes match.
func (g *OccupancyGrid) CopyFrom(src *OccupancyGrid) {
	g.cfg = src.cfg
	if len(g.logOdds) != len(src.logOdds) {
		g.logOdds = make([]float64, len(src.logOdds))
	}
	copy(g.logOdds, src.logOdds)
	g.greyDirty = true
}

func logOddsToProbability(l float64) float64 {
	return 1 - 1/(1+math.Exp(l))
}
