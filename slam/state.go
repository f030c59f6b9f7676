package slam

import (
	"image"
	"sync"
	"time"
)

// CycleHandler is called after every completed resampling cycle, outside the
// tracker lock
type CycleHandler func(stats CycleStats)

// Tracker serialises access to a ParticleFilter so that the sample loop and
// readers of the map or pose can run on different goroutines. Every getter
// returns a copy.
type Tracker struct {
	mu      sync.Mutex // GreyscaleMap mutates its cache, so reads take the write lock too
	filter  *ParticleFilter
	samples int
	started time.Time
	updated time.Time

	hookMu   sync.RWMutex
	handlers []CycleHandler
}

// Status is a snapshot of the tracker for reporting
type Status struct {
	Samples    int       `json:"samples"`
	Cycles     int       `json:"cycles"`
	Particles  int       `json:"particles"`
	ScanLine   int       `json:"scanLine"`
	HasPose    bool      `json:"hasPose"`
	Pose       Pose      `json:"pose"`
	Started    time.Time `json:"started"`
	LastUpdate time.Time `json:"lastUpdate,omitempty"`
}

// NewTracker wraps f. The tracker takes ownership; f must not be used directly
// afterwards.
func NewTracker(f *ParticleFilter) *Tracker {
	return &Tracker{filter: f, started: time.Now()}
}

// OnCycle registers a handler for completed cycles
func (t *Tracker) OnCycle(h CycleHandler) {
	t.hookMu.Lock()
	defer t.hookMu.Unlock()
	t.handlers = append(t.handlers, h)
}

// Feed passes one sample to the filter and reports whether a cycle completed
func (t *Tracker) Feed(data SensorData) bool {
	t.mu.Lock()
	t.samples++
	cycled := t.filter.ReceivedSensorData(data)
	var stats CycleStats
	if cycled {
		t.updated = time.Now()
		stats, _ = t.filter.LastCycle()
	}
	t.mu.Unlock()

	if cycled {
		t.hookMu.RLock()
		handlers := make([]CycleHandler, len(t.handlers))
		copy(handlers, t.handlers)
		t.hookMu.RUnlock()
		for _, h := range handlers {
			h(stats)
		}
	}
	return cycled
}

// Map returns the current map with the trajectory drawn on it
func (t *Tracker) Map() (*image.Gray, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.filter.GetMap()
}

// Grid returns a copy of the best particle's occupancy grid
func (t *Tracker) Grid() (*OccupancyGrid, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.filter.BestGrid()
}

// Trajectory returns the best pose of every completed cycle
func (t *Tracker) Trajectory() []Pose {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.filter.Trajectory()
}

// Cell converts a world point to a map cell
func (t *Tracker) Cell(p Point) image.Point {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.filter.ToGridCoordinates(p)
}

// Status returns counters and the current best pose
func (t *Tracker) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	pose, ok := t.filter.BestPose()
	return Status{
		Samples:    t.samples,
		Cycles:     t.filter.Cycles(),
		Particles:  t.filter.ParticleCount(),
		ScanLine:   t.filter.ScanLineLen(),
		HasPose:    ok,
		Pose:       pose,
		Started:    t.started,
		LastUpdate: t.updated,
	}
}
