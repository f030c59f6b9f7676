package slam

import "math"

// NormalizeAngle wraps an angle in radians to the range (-pi, pi]
func NormalizeAngle(rad float64) float64 {
	rad = math.Mod(rad, 2*math.Pi)
	if rad <= -math.Pi {
		rad += 2 * math.Pi
	} else if rad > math.Pi {
		rad -= 2 * math.Pi
	}
	return rad
}

// Degrees converts radians to degrees in the range [0, 360)
func Degrees(rad float64) float64 {
	deg := math.Mod(rad*180/math.Pi, 360)
	if deg < 0 {
		deg += 360
	}
	return deg
}

// Rotate rotates a point around the origin (angle in radians, CCW)
func Rotate(p Point, rad float64) Point {
	cos := math.Cos(rad)
	sin := math.Sin(rad)
	return Point{
		X: p.X*cos - p.Y*sin,
		Y: p.X*sin + p.Y*cos,
	}
}

// Compose applies delta, expressed in the local frame of p, and returns the
// resulting pose in p's parent frame.
func (p Pose) Compose(delta Pose) Pose {
	return Pose{
		Pt:  p.Pt.Add(Rotate(delta.Pt, p.Yaw)),
		Yaw: NormalizeAngle(p.Yaw + delta.Yaw),
	}
}

// Inverse returns the pose q such that p.Compose(q) is the zero pose
func (p Pose) Inverse() Pose {
	return Pose{
		Pt:  Rotate(Point{X: -p.Pt.X, Y: -p.Pt.Y}, -p.Yaw),
		Yaw: NormalizeAngle(-p.Yaw),
	}
}

// IsFinite reports whether every component of the pose is a finite number
func (p Pose) IsFinite() bool {
	for _, v := range []float64{p.Pt.X, p.Pt.Y, p.Yaw} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Endpoint projects a range reading taken at the given bearing (radians,
// relative to the pose heading) into world coordinates.
func Endpoint(pose Pose, bearing, rng float64) Point {
	heading := pose.Yaw + bearing
	return Point{
		X: pose.Pt.X + rng*math.Cos(heading),
		Y: pose.Pt.Y + rng*math.Sin(heading),
	}
}
