package slam

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"
	"time"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// ErrNoMap is returned by GetMap before the first resampling cycle
var ErrNoMap = errors.New("no map available: no resampling cycle has completed")

// CycleStats summarises one completed resampling cycle
type CycleStats struct {
	Cycle               int     `json:"cycle"`
	Samples             int     `json:"samples"` // scan line length
	Translation         Point   `json:"translation"`
	Rotation            float64 `json:"rotation"`
	TotalWeight         float64 `json:"totalWeight"`
	MeanWeight          float64 `json:"meanWeight"`
	StdDevWeight        float64 `json:"stdDevWeight"`
	EffectiveSampleSize float64 `json:"effectiveSampleSize"`
	BestIndex           int     `json:"bestIndex"`
	BestWeight          float64 `json:"bestWeight"`
	BestPose            Pose    `json:"bestPose"`
	Degenerate          bool    `json:"degenerate"`
	Failures            int     `json:"failures"` // particles that fell back to weight 0
}

// Option configures a ParticleFilter
type Option func(*ParticleFilter)

// WithMotionModel replaces the default odometry motion model
func WithMotionModel(m MotionModel) Option {
	return func(f *ParticleFilter) { f.motion = m }
}

// WithMeasurementModel replaces the default likelihood field model
func WithMeasurementModel(m MeasurementModel) Option {
	return func(f *ParticleFilter) { f.measurement = m }
}

// WithRandSource replaces the random source used for resampling. When it is
// a *Random, the default motion model draws its noise from it as well.
func WithRandSource(r RandSource) Option {
	return func(f *ParticleFilter) { f.rng = r }
}

// WithLogger sets the logger; the default discards everything
func WithLogger(l *zap.SugaredLogger) Option {
	return func(f *ParticleFilter) { f.logger = l }
}

// ParticleFilter is the SLAM estimator. It owns a fixed-size particle
// population, the scan line being accumulated and the trajectory of best
// poses. It is not safe for concurrent use; see Tracker.
type ParticleFilter struct {
	cfg Config

	particles []*Particle
	spare     []*Particle // resampling target, swapped with particles each cycle
	scanline  *ScanLine

	best       *Particle // snapshot of the best particle of the last cycle
	trajectory []Pose

	motion      MotionModel
	measurement MeasurementModel
	rng         RandSource
	logger      *zap.SugaredLogger

	cycles int
	last   CycleStats
}

// NewParticleFilter creates a filter with cfg.Particles particles at the origin
func NewParticleFilter(cfg *Config, opts ...Option) (*ParticleFilter, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}
	if cfg.Particles <= 0 {
		return nil, ErrNoParticles
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}

	f := &ParticleFilter{
		cfg:       *cfg,
		particles: make([]*Particle, cfg.Particles),
		spare:     make([]*Particle, cfg.Particles),
		scanline:  NewScanLine(NewOdometry(cfg.Odometry)),
		logger:    zap.NewNop().Sugar(),
	}
	for i := range f.particles {
		f.particles[i] = NewParticle(cfg.Grid)
	}
	for _, opt := range opts {
		opt(f)
	}

	if f.rng == nil {
		f.rng = NewRandom(seed)
	}
	if f.motion == nil {
		random, ok := f.rng.(*Random)
		if !ok {
			random = NewRandom(seed + 1)
		}
		f.motion = NewOdometryMotionModel(cfg.Motion, random.Source())
	}
	if f.measurement == nil {
		f.measurement = LikelihoodFieldModel{Sigma: cfg.Measurement.Sigma}
	}
	return f, nil
}

// ReceivedSensorData feeds one sample into the filter. It returns true when
// the sample completed a scan line and a full update and resampling cycle ran.
func (f *ParticleFilter) ReceivedSensorData(data SensorData) bool {
	if f.scanline.Add(data) {
		return false
	}

	f.update()

	f.scanline.Clear()
	f.scanline.Add(data)
	return true
}

// update runs the motion, measurement and map step on every particle, then
// resamples the population from the completed scan line.
func (f *ParticleFilter) update() {
	line := f.scanline
	n := len(f.particles)
	stats := CycleStats{
		Cycle:       f.cycles + 1,
		Samples:     line.Len(),
		Translation: line.Translation(),
		Rotation:    line.Rotation(),
	}
	f.logger.Debugw("Updating particles",
		"cycle", stats.Cycle,
		"samples", stats.Samples,
		"tx", stats.Translation.X,
		"ty", stats.Translation.Y,
		"r", stats.Rotation)

	weights := make([]float64, n)
	for i, p := range f.particles {
		if err := p.Update(line, f.motion, f.measurement); err != nil {
			stats.Failures++
			f.logger.Warnw("Particle update failed, using fallback", "particle", i, "error", err)
		}
		weights[i] = p.Weight
		f.logger.Debugw("Particle updated",
			"particle", i,
			"x", p.Pose.Pt.X,
			"y", p.Pose.Pt.Y,
			"yaw", p.Pose.Yaw,
			"w", p.Weight)
	}

	stats.TotalWeight = floats.Sum(weights)
	stats.MeanWeight, stats.StdDevWeight = stat.MeanStdDev(weights, nil)
	stats.EffectiveSampleSize = EffectiveSampleSize(weights)

	total := stats.TotalWeight
	if !(total > 0) || math.IsInf(total, 0) {
		// Uniform fallback: nothing distinguishes the particles, keep each
		// one exactly once.
		stats.Degenerate = true
		f.logger.Warnw("Degenerate particle weights, keeping population",
			"cycle", stats.Cycle, "total", total)
		for i := range weights {
			weights[i] = 1
		}
	}

	// Snapshot the best particle before the population is replaced.
	stats.BestIndex = floats.MaxIdx(weights)
	stats.BestWeight = f.particles[stats.BestIndex].Weight
	if f.best == nil {
		f.best = f.particles[stats.BestIndex].Clone()
	} else {
		f.best.CopyFrom(f.particles[stats.BestIndex])
	}
	stats.BestPose = f.best.Pose

	var indices []int
	if stats.Degenerate {
		indices = identityIndices(n)
	} else {
		var err error
		indices, err = SystematicResample(weights, f.rng.Uniform(0, total/float64(n)))
		if err != nil {
			f.logger.Warnw("Resampling failed, keeping population", "cycle", stats.Cycle, "error", err)
			indices = identityIndices(n)
		}
	}
	f.logger.Debugw("Resampled particles", "indices", indices)

	for m, i := range indices {
		if f.spare[m] == nil {
			f.spare[m] = f.particles[i].Clone()
		} else {
			f.spare[m].CopyFrom(f.particles[i])
		}
	}
	f.particles, f.spare = f.spare, f.particles

	f.trajectory = append(f.trajectory, f.best.Pose)
	f.cycles++
	f.last = stats

	f.logger.Infow("Resampling cycle complete",
		"cycle", stats.Cycle,
		"samples", stats.Samples,
		"bestX", stats.BestPose.Pt.X,
		"bestY", stats.BestPose.Pt.Y,
		"bestYaw", stats.BestPose.Yaw,
		"ess", stats.EffectiveSampleSize,
		"degenerate", stats.Degenerate)
}

func identityIndices(n int) []int {
	indices := make([]int, n)
	for i := range indices {
		indices[i] = i
	}
	return indices
}

// GetMap renders the best particle's greyscale occupancy map with the
// trajectory of best poses drawn from the origin cell in chronological order.
// It returns ErrNoMap before the first resampling cycle.
func (f *ParticleFilter) GetMap() (*image.Gray, error) {
	if f.best == nil {
		return nil, ErrNoMap
	}
	img := f.best.grid.GreyscaleMap()
	prev := f.best.grid.ToGridCoordinates(Point{})
	for _, pose := range f.trajectory {
		cell := f.best.grid.ToGridCoordinates(pose.Pt)
		drawLine(img, prev, cell, color.Gray{Y: 0})
		prev = cell
	}
	return img, nil
}

// BestGrid returns a copy of the best particle's occupancy grid
func (f *ParticleFilter) BestGrid() (*OccupancyGrid, error) {
	if f.best == nil {
		return nil, ErrNoMap
	}
	return f.best.grid.Clone(), nil
}

// ToGridCoordinates converts a world point to a cell of the map returned by GetMap
func (f *ParticleFilter) ToGridCoordinates(p Point) image.Point {
	return cellOf(f.cfg.Grid, p)
}

// Trajectory returns a copy of the best pose of every completed cycle
func (f *ParticleFilter) Trajectory() []Pose {
	out := make([]Pose, len(f.trajectory))
	copy(out, f.trajectory)
	return out
}

// BestPose returns the pose of the most recent best particle
func (f *ParticleFilter) BestPose() (Pose, bool) {
	if f.best == nil {
		return Pose{}, false
	}
	return f.best.Pose, true
}

// ParticleCount returns the population size
func (f *ParticleFilter) ParticleCount() int {
	return len(f.particles)
}

// Particle returns a deep copy of the i-th particle of the current population
func (f *ParticleFilter) Particle(i int) (*Particle, error) {
	if i < 0 || i >= len(f.particles) {
		return nil, fmt.Errorf("particle index %d out of range [0, %d)", i, len(f.particles))
	}
	return f.particles[i].Clone(), nil
}

// Weights returns the weights carried by the current population. After a
// resampling pass these are the copied weights of the selected particles.
func (f *ParticleFilter) Weights() []float64 {
	out := make([]float64, len(f.particles))
	for i, p := range f.particles {
		out[i] = p.Weight
	}
	return out
}

// ScanLineLen returns the number of samples buffered for the next cycle
func (f *ParticleFilter) ScanLineLen() int {
	return f.scanline.Len()
}

// Cycles returns the number of completed resampling cycles
func (f *ParticleFilter) Cycles() int {
	return f.cycles
}

// LastCycle returns the statistics of the most recent cycle
func (f *ParticleFilter) LastCycle() (CycleStats, bool) {
	return f.last, f.cycles > 0
}
