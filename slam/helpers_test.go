package slam

import (
	"math"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

// ---------------------------------------------------------------------------
// shared fixtures
// ---------------------------------------------------------------------------

// approx compares poses and points to within 1e-9
var approx = cmpopts.EquateApprox(0, 1e-9)

func poseDiff(want, got Pose) string {
	return cmp.Diff(want, got, approx)
}

// smallGrid is a 20x20 grid of unit cells
func smallGrid() GridConfig {
	g := DefaultConfig().Grid
	g.Width = 20
	g.Height = 20
	g.Scale = 1
	return g
}

// testConfig is a fast, deterministic filter configuration
func testConfig() *Config {
	cfg := DefaultConfig()
	cfg.Particles = 10
	cfg.Seed = 42
	cfg.Grid.Width = 60
	cfg.Grid.Height = 60
	return cfg
}

// sample builds a sensor sample with no motion
func sample(angle, distance int) SensorData {
	return SensorData{Angle: angle, Distance: distance}
}

// forward builds a sensor sample that moves straight ahead by ticks
func forward(angle, distance, ticks int) SensorData {
	return SensorData{
		Angle:        angle,
		Distance:     distance,
		EncoderTicks: [EncoderCount]int{ticks, ticks, ticks, ticks},
	}
}

// countingMotion moves every call one unit further along X than the last,
// so particle i of the first cycle ends up at X = i+1
type countingMotion struct {
	calls int
}

func (m *countingMotion) Sample(pose Pose, _ Point, _ float64) Pose {
	m.calls++
	return pose.Compose(Pose{Pt: Point{X: float64(m.calls)}})
}

// exactMotion applies odometry without noise
type exactMotion struct{}

func (exactMotion) Sample(pose Pose, translation Point, rotation float64) Pose {
	return pose.Compose(Pose{Pt: translation, Yaw: rotation})
}

// nanMotion always fails
type nanMotion struct{}

func (nanMotion) Sample(Pose, Point, float64) Pose {
	return Pose{Pt: Point{X: math.NaN()}}
}

// xWeight scores a pose by its X coordinate
type xWeight struct{}

func (xWeight) Weight(pose Pose, _ *ScanLine, _ func(Point) (float64, bool)) float64 {
	return pose.Pt.X
}

// constWeight scores every pose the same
type constWeight float64

func (w constWeight) Weight(Pose, *ScanLine, func(Point) (float64, bool)) float64 {
	return float64(w)
}

// fixedRand always returns the lower bound plus a fraction of the range
type fixedRand float64

func (f fixedRand) Uniform(a, b float64) float64 {
	return a + float64(f)*(b-a)
}
