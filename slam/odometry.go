package slam

import "math"

// Odometry converts raw sensor samples into world-unit motion and observations
type Odometry struct {
	cfg OdometryConfig
}

// NewOdometry creates an odometry converter
func NewOdometry(cfg OdometryConfig) Odometry {
	return Odometry{cfg: cfg}
}

// Advance dead-reckons pose forward by one sample. The heading is updated
// first, then the mean encoder travel is applied along the new heading.
func (o Odometry) Advance(pose Pose, data SensorData) Pose {
	yaw := NormalizeAngle(pose.Yaw + float64(data.Yaw)*o.cfg.YawScale)
	travel := o.Travel(data)
	return Pose{
		Pt: Point{
			X: pose.Pt.X + travel*math.Cos(yaw),
			Y: pose.Pt.Y + travel*math.Sin(yaw),
		},
		Yaw: yaw,
	}
}

// Travel returns the mean wheel travel of a sample in world units
func (o Odometry) Travel(data SensorData) float64 {
	sum := 0
	for _, t := range data.EncoderTicks {
		sum += t
	}
	return float64(sum) / EncoderCount * o.cfg.TickDistance
}

// Observation converts the raw lidar bearing and range of a sample
func (o Odometry) Observation(data SensorData) (bearing, rng float64) {
	return float64(data.Angle) * o.cfg.BearingScale, float64(data.Distance) * o.cfg.RangeScale
}
