package slam

import (
	"fmt"
	"math"
)

// Particle is one hypothesis of the robot pose together with the map built
// along that hypothesis. Every particle owns its grid and likelihood field.
type Particle struct {
	Pose   Pose
	Weight float64

	grid  *OccupancyGrid
	field *LikelihoodField
}

// NewParticle creates a particle at the origin with an empty map
func NewParticle(cfg GridConfig) *Particle {
	return &Particle{
		Pose:  ZeroPose(),
		grid:  NewOccupancyGrid(cfg),
		field: NewLikelihoodField(cfg.Width, cfg.Height),
	}
}

// Grid returns the particle's occupancy grid
func (p *Particle) Grid() *OccupancyGrid {
	return p.grid
}

// Field returns the particle's likelihood field
func (p *Particle) Field() *LikelihoodField {
	return p.field
}

// Update advances the particle by one completed scan line:
//  1. sample a new pose from the motion model,
//  2. weight the scan against the existing likelihood field,
//  3. integrate the scan into the occupancy grid,
//  4. rebuild the likelihood field.
//
// If the sampled pose or the weight is not a finite number the particle keeps
// its previous pose and map, gets weight 0, and the error is returned.
func (p *Particle) Update(line *ScanLine, motion MotionModel, measurement MeasurementModel) error {
	pose := motion.Sample(p.Pose, line.Translation(), line.Rotation())
	if !pose.IsFinite() {
		p.Weight = 0
		return fmt.Errorf("motion model returned non-finite pose %+v", pose)
	}

	weight := measurement.Weight(pose, line, p.lookup)
	if math.IsNaN(weight) || math.IsInf(weight, 0) || weight < 0 {
		p.Weight = 0
		return fmt.Errorf("measurement model returned invalid weight %v", weight)
	}

	p.Pose = pose
	p.Weight = weight

	line.ForEachScan(pose, func(samplePose Pose, s ScanSample) {
		p.grid.Update(samplePose, s.Bearing, s.Range)
	})
	p.field.Rebuild(p.grid)
	return nil
}

// lookup maps a world point to the likelihood field of this particle
func (p *Particle) lookup(pt Point) (float64, bool) {
	return p.field.Lookup(p.grid.ToGridCoordinates(pt))
}

// Clone returns a deep copy of the particle
func (p *Particle) Clone() *Particle {
	return &Particle{
		Pose:   p.Pose,
		Weight: p.Weight,
		grid:   p.grid.Clone(),
		field:  p.field.Clone(),
	}
}

// CopyFrom overwrites p with a deep copy of src, reusing p's buffers
func (p *Particle) CopyFrom(src *Particle) {
	p.Pose = src.Pose
	p.Weight = src.Weight
	if p.grid == nil {
		p.grid = src.grid.Clone()
	} else {
		p.grid.CopyFrom(src.grid)
	}
	if p.field == nil {
		p.field = src.field.Clone()
	} else {
		p.field.CopyFrom(src.field)
	}
}
