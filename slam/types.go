package slam

// EncoderCount is the number of wheel encoders reported in every sensor sample
const EncoderCount = 4

// Point represents a 2D coordinate in world units
type Point struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// Add returns p + q
func (p Point) Add(q Point) Point {
	return Point{X: p.X + q.X, Y: p.Y + q.Y}
}

// Sub returns p - q
func (p Point) Sub(q Point) Point {
	return Point{X: p.X - q.X, Y: p.Y - q.Y}
}

// Pose is a position plus heading. Yaw is in radians, 0 = +X axis, CCW.
type Pose struct {
	Pt  Point   `json:"pt"`
	Yaw float64 `json:"yaw"`
}

// ZeroPose returns the pose at the origin facing +X
func ZeroPose() Pose {
	return Pose{}
}

// Size represents grid dimensions in cells
type Size struct {
	X int `json:"x" yaml:"x"`
	Y int `json:"y" yaml:"y"`
}

// SensorData is one physical sample from the robot controller: a lidar
// bearing/range pair plus the odometry accumulated since the previous sample.
// Units are raw controller units; Odometry converts them to world units.
type SensorData struct {
	Yaw          int               `json:"yaw"`      // yaw delta since previous sample
	Angle        int               `json:"angle"`    // lidar bearing
	Distance     int               `json:"distance"` // lidar range
	EncoderTicks [EncoderCount]int `json:"encoderTicks"`
}

// ScanSample is one entry of a scan line: the sample's pose relative to the
// start of the line together with its raw and converted observation.
type ScanSample struct {
	Pose     Pose
	Angle    int     // raw bearing, used for sweep direction
	Distance int     // raw range
	Bearing  float64 // radians, relative to the robot heading
	Range    float64 // world units
}

// Config represents the full configuration file
type Config struct {
	Particles   int               `yaml:"particles" json:"particles"`
	Seed        uint64            `yaml:"seed,omitempty" json:"seed,omitempty"` // 0 = seeded from the clock
	Grid        GridConfig        `yaml:"grid" json:"grid"`
	Odometry    OdometryConfig    `yaml:"odometry" json:"odometry"`
	Motion      MotionConfig      `yaml:"motion" json:"motion"`
	Measurement MeasurementConfig `yaml:"measurement" json:"measurement"`
	Serial      PortOptions       `yaml:"serial" json:"serial"`
	MQTT        MQTTConfig        `yaml:"mqtt" json:"mqtt"`
	Render      RenderConfig      `yaml:"render" json:"render"`
}

// GridConfig describes the occupancy grid extent and its log-odds evidence model
type GridConfig struct {
	Width             int     `yaml:"width" json:"width"`
	Height            int     `yaml:"height" json:"height"`
	Scale             float64 `yaml:"scale" json:"scale"` // world units per cell
	LogOddsOccupied   float64 `yaml:"logOddsOccupied" json:"logOddsOccupied"`
	LogOddsFree       float64 `yaml:"logOddsFree" json:"logOddsFree"`
	LogOddsMin        float64 `yaml:"logOddsMin" json:"logOddsMin"`
	LogOddsMax        float64 `yaml:"logOddsMax" json:"logOddsMax"`
	OccupiedThreshold float64 `yaml:"occupiedThreshold" json:"occupiedThreshold"`
	MaxRange          float64 `yaml:"maxRange,omitempty" json:"maxRange,omitempty"` // world units, 0 = unlimited
}

// OdometryConfig converts raw controller units into world units and radians
type OdometryConfig struct {
	TickDistance float64 `yaml:"tickDistance" json:"tickDistance"` // world units per encoder tick
	YawScale     float64 `yaml:"yawScale" json:"yawScale"`         // radians per yaw unit
	BearingScale float64 `yaml:"bearingScale" json:"bearingScale"` // radians per bearing unit
	RangeScale   float64 `yaml:"rangeScale" json:"rangeScale"`     // world units per range unit
}

// MotionConfig holds the noise parameters of the odometry motion model.
// Standard deviations are Floor + Gain*|motion|.
type MotionConfig struct {
	TranslationGain  float64 `yaml:"translationGain" json:"translationGain"`
	TranslationFloor float64 `yaml:"translationFloor" json:"translationFloor"` // world units
	RotationGain     float64 `yaml:"rotationGain" json:"rotationGain"`
	RotationFloor    float64 `yaml:"rotationFloor" json:"rotationFloor"` // radians
}

// MeasurementConfig holds the likelihood field model parameters
type MeasurementConfig struct {
	Sigma float64 `yaml:"sigma" json:"sigma"` // cells
}

// MQTTConfig holds MQTT connection settings
type MQTTConfig struct {
	Broker        string `yaml:"broker" json:"broker"`
	PublishPrefix string `yaml:"publishPrefix" json:"publishPrefix"`
	ClientID      string `yaml:"clientId" json:"clientId"`
	Username      string `yaml:"username,omitempty" json:"username,omitempty"`
	Password      string `yaml:"password,omitempty" json:"password,omitempty"`
	StopTopic     string `yaml:"stopTopic,omitempty" json:"stopTopic,omitempty"`
}

// RenderConfig controls the raster and vector outputs of the CLI
type RenderConfig struct {
	Upscale       int     `yaml:"upscale" json:"upscale"`             // integer zoom for annotated PNGs
	Annotate      bool    `yaml:"annotate" json:"annotate"`           // draw pose marker and status text
	Every         int     `yaml:"every" json:"every"`                 // write a PNG every N cycles, 0 = final only
	SimplifyError float64 `yaml:"simplifyError" json:"simplifyError"` // world units, SVG trajectory tolerance
}
