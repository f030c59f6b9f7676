package slam

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/paulmach/orb/simplify"
)

// TrajectorySummary describes the path of best poses of a run
type TrajectorySummary struct {
	Poses    int     `json:"poses"`
	Distance float64 `json:"distance"` // world units travelled, starting at the origin
	MinX     float64 `json:"minX"`
	MinY     float64 `json:"minY"`
	MaxX     float64 `json:"maxX"`
	MaxY     float64 `json:"maxY"`
	Final    Pose    `json:"final"`
}

// TrajectoryLineString returns the path through the origin and every pose
func TrajectoryLineString(poses []Pose) orb.LineString {
	ls := make(orb.LineString, 0, len(poses)+1)
	ls = append(ls, orb.Point{0, 0})
	for _, p := range poses {
		ls = append(ls, orb.Point{p.Pt.X, p.Pt.Y})
	}
	return ls
}

// SummarizeTrajectory measures a trajectory. An empty trajectory has zero
// distance and bounds at the origin.
func SummarizeTrajectory(poses []Pose) TrajectorySummary {
	ls := TrajectoryLineString(poses)
	bound := ls.Bound()

	s := TrajectorySummary{
		Poses:    len(poses),
		Distance: planar.Length(ls),
		MinX:     bound.Min[0],
		MinY:     bound.Min[1],
		MaxX:     bound.Max[0],
		MaxY:     bound.Max[1],
	}
	if len(poses) > 0 {
		s.Final = poses[len(poses)-1]
	}
	return s
}

// SimplifyTrajectory reduces the path with Douglas-Peucker. A tolerance of
// zero or less returns the path unchanged.
func SimplifyTrajectory(poses []Pose, tolerance float64) orb.LineString {
	ls := TrajectoryLineString(poses)
	if tolerance <= 0 || len(ls) < 3 {
		return ls
	}
	simplified, ok := simplify.DouglasPeucker(tolerance).Simplify(ls.Clone()).(orb.LineString)
	if !ok {
		return ls
	}
	return simplified
}
