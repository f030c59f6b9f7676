package slam

import (
	"fmt"
	"image"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// ---------------------------------------------------------------------------
// construction
// ---------------------------------------------------------------------------

func TestNewParticleFilter(t *testing.T) {
	f, err := NewParticleFilter(testConfig())
	require.NoError(t, err)
	assert.Equal(t, 10, f.ParticleCount())
	assert.Equal(t, 0, f.ScanLineLen())
	assert.Equal(t, 0, f.Cycles())
	assert.Empty(t, f.Trajectory())

	_, ok := f.BestPose()
	assert.False(t, ok)
	_, ok = f.LastCycle()
	assert.False(t, ok)

	p, err := f.Particle(3)
	require.NoError(t, err)
	assert.Equal(t, ZeroPose(), p.Pose)
}

func TestNewParticleFilter_Invalid(t *testing.T) {
	_, err := NewParticleFilter(nil)
	assert.Error(t, err)

	cfg := testConfig()
	cfg.Particles = 0
	_, err = NewParticleFilter(cfg)
	assert.ErrorIs(t, err, ErrNoParticles)

	cfg = testConfig()
	cfg.Grid.Scale = 0
	_, err = NewParticleFilter(cfg)
	assert.Error(t, err)
}

func TestGetMap_BeforeFirstCycle(t *testing.T) {
	f, err := NewParticleFilter(testConfig())
	require.NoError(t, err)

	f.ReceivedSensorData(sample(10, 100))
	_, err = f.GetMap()
	assert.ErrorIs(t, err, ErrNoMap)
	_, err = f.BestGrid()
	assert.ErrorIs(t, err, ErrNoMap)
}

// ---------------------------------------------------------------------------
// cycles
// ---------------------------------------------------------------------------

func TestReceivedSensorData_EndToEnd(t *testing.T) {
	f, err := NewParticleFilter(testConfig(), WithLogger(zaptest.NewLogger(t).Sugar()))
	require.NoError(t, err)

	inputs := []SensorData{sample(10, 100), sample(20, 110), sample(30, 120), sample(25, 115)}
	want := []bool{false, false, false, true}
	for i, d := range inputs {
		assert.Equal(t, want[i], f.ReceivedSensorData(d), "sample %d", i)
	}

	assert.Equal(t, 10, f.ParticleCount())
	assert.Len(t, f.Trajectory(), 1)
	assert.Equal(t, 1, f.ScanLineLen(), "the reversing sample starts the next line")
	assert.Equal(t, 1, f.Cycles())

	stats, ok := f.LastCycle()
	require.True(t, ok)
	assert.Equal(t, 3, stats.Samples)
	assert.False(t, stats.Degenerate)
	assert.Zero(t, stats.Failures)
	// Every particle scores one per on-map endpoint against the empty field.
	assert.InDelta(t, 30.0, stats.TotalWeight, 1e-9)
	assert.InDelta(t, 10.0, stats.EffectiveSampleSize, 1e-9)

	img, err := f.GetMap()
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 60, 60), img.Bounds())
}

func TestReceivedSensorData_SnapshotsBestParticle(t *testing.T) {
	f, err := NewParticleFilter(testConfig(),
		WithMotionModel(&countingMotion{}),
		WithMeasurementModel(xWeight{}),
		WithRandSource(fixedRand(0.5)),
	)
	require.NoError(t, err)

	for _, d := range []SensorData{sample(10, 100), sample(20, 100), sample(15, 100)} {
		f.ReceivedSensorData(d)
	}

	// Particle i moved to X=i+1 and weighs i+1; the last one is best.
	traj := f.Trajectory()
	require.Len(t, traj, 1)
	assert.InDelta(t, 10.0, traj[0].Pt.X, 1e-12)

	stats, _ := f.LastCycle()
	assert.Equal(t, 9, stats.BestIndex)
	assert.InDelta(t, 10.0, stats.BestWeight, 1e-12)
	assert.InDelta(t, 55.0, stats.TotalWeight, 1e-12)

	best, ok := f.BestPose()
	require.True(t, ok)
	assert.Equal(t, traj[0], best)

	// Resampling favours heavy particles and keeps their order.
	weights := f.Weights()
	require.Len(t, weights, 10)
	assert.True(t, sort.Float64sAreSorted(weights), "%v", weights)
	assert.Greater(t, weights[0], 1.0)
	for i, w := range weights {
		p, err := f.Particle(i)
		require.NoError(t, err)
		assert.InDelta(t, w, p.Pose.Pt.X, 1e-12, "weight and pose travel together")
	}
}

func TestReceivedSensorData_DegenerateWeights(t *testing.T) {
	// The offset a resampling pass would draw must not matter, including the
	// r=0 boundary where systematic resampling repeats particle 0.
	for _, offset := range []fixedRand{0, 0.5, 0.999} {
		t.Run(fmt.Sprintf("offset %v", float64(offset)), func(t *testing.T) {
			f, err := NewParticleFilter(testConfig(),
				WithMotionModel(&countingMotion{}),
				WithMeasurementModel(constWeight(0)),
				WithRandSource(offset),
			)
			require.NoError(t, err)

			for _, d := range []SensorData{sample(10, 100), sample(20, 100), sample(15, 100)} {
				f.ReceivedSensorData(d)
			}

			stats, ok := f.LastCycle()
			require.True(t, ok)
			assert.True(t, stats.Degenerate)
			assert.Len(t, f.Trajectory(), 1)
			assert.Equal(t, 10, f.ParticleCount())

			// Uniform fallback keeps every particle exactly once, in order.
			for i := 0; i < 10; i++ {
				p, err := f.Particle(i)
				require.NoError(t, err)
				assert.InDelta(t, float64(i+1), p.Pose.Pt.X, 1e-12)
			}
		})
	}
}

func TestReceivedSensorData_ParticleFailures(t *testing.T) {
	f, err := NewParticleFilter(testConfig(), WithMotionModel(nanMotion{}))
	require.NoError(t, err)

	for _, d := range []SensorData{sample(10, 100), sample(20, 100), sample(15, 100)} {
		f.ReceivedSensorData(d)
	}

	stats, _ := f.LastCycle()
	assert.Equal(t, 10, stats.Failures)
	assert.True(t, stats.Degenerate)
	for _, p := range f.Trajectory() {
		assert.True(t, p.IsFinite())
	}
}

func TestReceivedSensorData_ManyCycles(t *testing.T) {
	f, err := NewParticleFilter(testConfig())
	require.NoError(t, err)

	cycles := 0
	angle := 0
	dir := 10
	for i := 0; i < 40; i++ {
		if f.ReceivedSensorData(forward(angle, 80, 2)) {
			cycles++
		}
		angle += dir
		if angle >= 90 || angle <= 0 {
			dir = -dir
		}
	}

	assert.Positive(t, cycles)
	assert.Equal(t, cycles, f.Cycles())
	assert.Len(t, f.Trajectory(), cycles)
	assert.Equal(t, 10, f.ParticleCount())
	for _, w := range f.Weights() {
		assert.GreaterOrEqual(t, w, 0.0)
	}
}

// ---------------------------------------------------------------------------
// map output
// ---------------------------------------------------------------------------

func TestGetMap_DrawsTrajectory(t *testing.T) {
	f, err := NewParticleFilter(testConfig(),
		WithMotionModel(&countingMotion{}),
		WithMeasurementModel(xWeight{}),
	)
	require.NoError(t, err)

	for _, d := range []SensorData{sample(10, 0), sample(20, 0), sample(15, 0)} {
		f.ReceivedSensorData(d)
	}

	img, err := f.GetMap()
	require.NoError(t, err)

	// Best pose is (10, 0): origin cell (30,30) to (32,30).
	assert.Equal(t, image.Pt(32, 30), f.ToGridCoordinates(Point{X: 10}))
	for x := 30; x <= 32; x++ {
		assert.Equal(t, uint8(0), img.GrayAt(x, 30).Y, "x=%d", x)
	}
	assert.Equal(t, uint8(128), img.GrayAt(0, 0).Y)

	// The returned image is a copy.
	img.Pix[0] = 1
	again, err := f.GetMap()
	require.NoError(t, err)
	assert.Equal(t, uint8(128), again.Pix[0])
}

func TestBestGrid_IsCopy(t *testing.T) {
	f, err := NewParticleFilter(testConfig())
	require.NoError(t, err)
	for _, d := range []SensorData{sample(10, 100), sample(20, 100), sample(15, 100)} {
		f.ReceivedSensorData(d)
	}

	g, err := f.BestGrid()
	require.NoError(t, err)
	g.Update(ZeroPose(), 0, 20)

	g2, err := f.BestGrid()
	require.NoError(t, err)
	assert.NotEqual(t, g.logOdds, g2.logOdds)
}
