package slam

import (
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"math"

	"github.com/tdewolff/canvas"
	"github.com/tdewolff/canvas/renderers/rasterizer"
	"github.com/tdewolff/canvas/renderers/svg"
)

// TrajectoryRenderer renders the estimated path and the known obstacles of a
// run as vector graphics in world units
type TrajectoryRenderer struct {
	Poses      []Pose
	Obstacles  []Point // obstacle cell centres
	CellSize   float64 // world size of an obstacle square
	Tolerance  float64 // Douglas-Peucker tolerance for the path, 0 disables
	Padding    float64 // world units around the content
	Resolution canvas.Resolution
}

// NewTrajectoryRenderer creates a renderer for a trajectory over grid g. A
// nil grid renders the path only.
func NewTrajectoryRenderer(poses []Pose, g *OccupancyGrid, tolerance float64) *TrajectoryRenderer {
	r := &TrajectoryRenderer{
		Poses:      poses,
		Tolerance:  tolerance,
		Padding:    20,
		Resolution: canvas.DPI(150),
	}
	if g != nil {
		r.Obstacles = ObstaclePoints(g)
		r.CellSize = g.cfg.Scale
	}
	return r
}

// ObstaclePoints returns the world centre of every known-occupied cell
func ObstaclePoints(g *OccupancyGrid) []Point {
	var pts []Point
	for i, occupied := range g.ObstacleMask() {
		if occupied {
			c := image.Pt(i%g.cfg.Width, i/g.cfg.Width)
			pts = append(pts, g.ToWorldCoordinates(c))
		}
	}
	return pts
}

// canvasRenderer is implemented by both the svg and rasterizer renderers
type canvasRenderer interface {
	RenderPath(path *canvas.Path, style canvas.Style, m canvas.Matrix)
}

// RenderToSVG writes the trajectory as an SVG
func (r *TrajectoryRenderer) RenderToSVG(w io.Writer) error {
	minX, minY, maxX, maxY := r.bounds()
	width := (maxX - minX) + 2*r.Padding
	height := (maxY - minY) + 2*r.Padding

	svgRenderer := svg.New(w, width, height, nil)
	r.renderToCanvas(svgRenderer, minX, minY, width, height)
	return svgRenderer.Close()
}

// RenderToPNG writes the trajectory as a rasterised PNG
func (r *TrajectoryRenderer) RenderToPNG(w io.Writer) error {
	minX, minY, maxX, maxY := r.bounds()
	width := (maxX - minX) + 2*r.Padding
	height := (maxY - minY) + 2*r.Padding
	if width*height > 1e8 {
		return errors.New("trajectory extent too large to rasterise")
	}

	rast := rasterizer.New(width, height, r.Resolution, canvas.DefaultColorSpace)
	r.renderToCanvas(rast, minX, minY, width, height)
	return png.Encode(w, rast)
}

func (r *TrajectoryRenderer) renderToCanvas(renderer canvasRenderer, minX, minY, width, height float64) {
	bgStyle := canvas.DefaultStyle
	bgStyle.Fill = canvas.Paint{Color: canvas.White}
	renderer.RenderPath(canvas.Rectangle(width, height), bgStyle, canvas.Identity)

	toCanvas := func(x, y float64) (float64, float64) {
		return x - minX + r.Padding, y - minY + r.Padding
	}

	if len(r.Obstacles) > 0 && r.CellSize > 0 {
		obstacleStyle := canvas.DefaultStyle
		obstacleStyle.Fill = canvas.Paint{Color: canvas.Black}
		obstacleStyle.Stroke = canvas.Paint{Color: canvas.Transparent}
		half := r.CellSize / 2
		for _, p := range r.Obstacles {
			cx, cy := toCanvas(p.X-half, p.Y-half)
			renderer.RenderPath(canvas.Rectangle(r.CellSize, r.CellSize).Translate(cx, cy), obstacleStyle, canvas.Identity)
		}
	}

	pathStyle := canvas.DefaultStyle
	pathStyle.Fill = canvas.Paint{Color: canvas.Transparent}
	pathStyle.Stroke = canvas.Paint{Color: color.RGBA{30, 90, 200, 255}}
	pathStyle.StrokeWidth = 1.5

	ls := SimplifyTrajectory(r.Poses, r.Tolerance)
	if len(ls) > 1 {
		cp := &canvas.Path{}
		for i, pt := range ls {
			cx, cy := toCanvas(pt[0], pt[1])
			if i == 0 {
				cp.MoveTo(cx, cy)
			} else {
				cp.LineTo(cx, cy)
			}
		}
		renderer.RenderPath(cp, pathStyle, canvas.Identity)
	}

	originStyle := canvas.DefaultStyle
	originStyle.Fill = canvas.Paint{Color: color.RGBA{40, 160, 60, 255}}
	ox, oy := toCanvas(0, 0)
	renderer.RenderPath(canvas.Circle(3).Translate(ox, oy), originStyle, canvas.Identity)

	if len(r.Poses) > 0 {
		final := r.Poses[len(r.Poses)-1]
		robotStyle := canvas.DefaultStyle
		robotStyle.Fill = canvas.Paint{Color: robotColor}
		robotStyle.Stroke = canvas.Paint{Color: canvas.Black}
		robotStyle.StrokeWidth = 0.5
		fx, fy := toCanvas(final.Pt.X, final.Pt.Y)
		renderer.RenderPath(canvas.Circle(4).Translate(fx, fy), robotStyle, canvas.Identity)

		heading := &canvas.Path{}
		heading.MoveTo(fx, fy)
		heading.LineTo(fx+8*math.Cos(final.Yaw), fy+8*math.Sin(final.Yaw))
		headingStyle := canvas.DefaultStyle
		headingStyle.Fill = canvas.Paint{Color: canvas.Transparent}
		headingStyle.Stroke = canvas.Paint{Color: canvas.Black}
		headingStyle.StrokeWidth = 1
		renderer.RenderPath(heading, headingStyle, canvas.Identity)
	}
}

// bounds covers the origin, every pose and every obstacle
func (r *TrajectoryRenderer) bounds() (minX, minY, maxX, maxY float64) {
	s := SummarizeTrajectory(r.Poses)
	minX, minY, maxX, maxY = s.MinX, s.MinY, s.MaxX, s.MaxY
	half := r.CellSize / 2
	for _, p := range r.Obstacles {
		minX = math.Min(minX, p.X-half)
		minY = math.Min(minY, p.Y-half)
		maxX = math.Max(maxX, p.X+half)
		maxY = math.Max(maxY, p.Y+half)
	}
	return minX, minY, maxX, maxY
}
