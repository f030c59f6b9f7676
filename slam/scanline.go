package slam

// ScanLine accumulates consecutive samples of one lidar sweep. A sweep ends
// when the bearing reverses direction; the samples' poses are dead-reckoned
// relative to the first sample of the line.
type ScanLine struct {
	odometry Odometry
	samples  []ScanSample
}

// NewScanLine creates an empty scan line
func NewScanLine(odometry Odometry) *ScanLine {
	return &ScanLine{odometry: odometry}
}

// compareAngle is a three-way comparison: -1, 0 or 1
func compareAngle(lhs, rhs int) int {
	switch {
	case lhs < rhs:
		return -1
	case rhs < lhs:
		return 1
	}
	return 0
}

// Add appends a sample if it continues the current sweep. It returns false,
// leaving the line untouched, when the bearing reverses direction; the
// caller must harvest and Clear the line before adding the sample again.
func (s *ScanLine) Add(data SensorData) bool {
	prev := ZeroPose()
	if n := len(s.samples); n > 0 {
		sweep := compareAngle(s.samples[0].Angle, s.samples[n-1].Angle)
		step := compareAngle(s.samples[n-1].Angle, data.Angle)
		if sweep != 0 && step != 0 && sweep != step {
			return false
		}
		prev = s.samples[n-1].Pose
	}

	bearing, rng := s.odometry.Observation(data)
	s.samples = append(s.samples, ScanSample{
		Pose:     s.odometry.Advance(prev, data),
		Angle:    data.Angle,
		Distance: data.Distance,
		Bearing:  bearing,
		Range:    rng,
	})
	return true
}

// last returns the relative pose of the most recent sample, or the zero pose
func (s *ScanLine) last() Pose {
	if len(s.samples) == 0 {
		return ZeroPose()
	}
	return s.samples[len(s.samples)-1].Pose
}

// Translation is the net displacement over the line, in the frame of the
// line's starting pose
func (s *ScanLine) Translation() Point {
	return s.last().Pt
}

// Rotation is the net heading change over the line in radians
func (s *ScanLine) Rotation() float64 {
	return s.last().Yaw
}

// ForEachScan calls fn for every sample with the sample's pose in the frame
// of pose, where pose is taken to be the robot pose at the last sample.
func (s *ScanLine) ForEachScan(pose Pose, fn func(samplePose Pose, sample ScanSample)) {
	start := pose.Compose(s.last().Inverse())
	for _, sample := range s.samples {
		fn(start.Compose(sample.Pose), sample)
	}
}

// Len returns the number of buffered samples
func (s *ScanLine) Len() int {
	return len(s.samples)
}

// Samples returns a copy of the buffered samples
func (s *ScanLine) Samples() []ScanSample {
	out := make([]ScanSample, len(s.samples))
	copy(out, s.samples)
	return out
}

// Clear discards all buffered samples
func (s *ScanLine) Clear() {
	s.samples = s.samples[:0]
}
