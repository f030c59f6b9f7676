package main

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kwv/roverslam/slam"
	"go.uber.org/zap/zaptest"
)

// zigzag sweeps the lidar up and down; the three direction changes complete
// three scan lines
var zigzag = []int{10, 20, 30, 20, 10, 20, 30, 20}

// writeReplay writes a sensor log with one sample per angle
func writeReplay(t *testing.T, angles []int) string {
	t.Helper()
	var b strings.Builder
	for i, angle := range angles {
		data := slam.SensorData{Angle: angle, Distance: 100}
		b.WriteString(slam.FormatLogLine(float64(i)*0.1, data))
		b.WriteByte('\n')
	}
	path := filepath.Join(t.TempDir(), "run.log")
	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		t.Fatalf("Failed to write replay log: %v", err)
	}
	return path
}

// testApp returns an app with a small deterministic configuration
func testApp(t *testing.T) *App {
	t.Helper()
	cfg := slam.DefaultConfig()
	cfg.Particles = 10
	cfg.Seed = 42
	cfg.Grid.Width = 60
	cfg.Grid.Height = 60

	app := NewApp()
	app.Config = cfg
	app.Logger = zaptest.NewLogger(t).Sugar()
	app.Out = &bytes.Buffer{}
	return app
}

func TestNewApp(t *testing.T) {
	app := NewApp()
	if app == nil {
		t.Fatal("NewApp returned nil")
		return
	}
	if app.Out == nil {
		t.Error("Out should be initialized")
	}
	if app.RenderEvery != -1 {
		t.Errorf("RenderEvery = %d, want -1", app.RenderEvery)
	}
}

func TestApplyOptions(t *testing.T) {
	app := NewApp()
	opts := AppOptions{
		ConfigFile:  "test-config.yaml",
		Device:      "/dev/ttyACM0",
		BaudRate:    9600,
		Replay:      "run.log",
		RecordFile:  "rec.log",
		OutputFile:  "test-output.png",
		SVGFile:     "test-output.svg",
		RenderEvery: 4,
		Particles:   64,
		Seed:        99,
		Debug:       true,
		MqttMode:    true,
		WriteConfig: "out.yaml",
	}

	app.ApplyOptions(opts)

	if app.ConfigFile != "test-config.yaml" {
		t.Errorf("ConfigFile = %s, want test-config.yaml", app.ConfigFile)
	}
	if app.Device != "/dev/ttyACM0" {
		t.Errorf("Device = %s, want /dev/ttyACM0", app.Device)
	}
	if app.BaudRate != 9600 {
		t.Errorf("BaudRate = %d, want 9600", app.BaudRate)
	}
	if app.Replay != "run.log" {
		t.Errorf("Replay = %s, want run.log", app.Replay)
	}
	if app.RecordFile != "rec.log" {
		t.Errorf("RecordFile = %s, want rec.log", app.RecordFile)
	}
	if app.OutputFile != "test-output.png" {
		t.Errorf("OutputFile = %s, want test-output.png", app.OutputFile)
	}
	if app.SVGFile != "test-output.svg" {
		t.Errorf("SVGFile = %s, want test-output.svg", app.SVGFile)
	}
	if app.RenderEvery != 4 {
		t.Errorf("RenderEvery = %d, want 4", app.RenderEvery)
	}
	if app.Particles != 64 {
		t.Errorf("Particles = %d, want 64", app.Particles)
	}
	if app.Seed != 99 {
		t.Errorf("Seed = %d, want 99", app.Seed)
	}
	if !app.Debug {
		t.Error("Debug should be true")
	}
	if !app.MqttMode {
		t.Error("MqttMode should be true")
	}
	if app.WriteConfig != "out.yaml" {
		t.Errorf("WriteConfig = %s, want out.yaml", app.WriteConfig)
	}
}

func TestSetup_ConfigFileAndOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := "particles: 20\nseed: 3\ngrid:\n  width: 80\n  height: 80\nrender:\n  every: 2\n"
	if err := os.WriteFile(path, []byte(yaml), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	app := NewApp()
	app.Logger = zaptest.NewLogger(t).Sugar()
	app.ConfigFile = path
	app.Seed = 11
	app.BaudRate = 57600

	if err := app.setup(); err != nil {
		t.Fatalf("setup failed: %v", err)
	}
	if app.Config.Particles != 20 {
		t.Errorf("Particles = %d, want 20 from file", app.Config.Particles)
	}
	if app.Config.Seed != 11 {
		t.Errorf("Seed = %d, want 11 from flag", app.Config.Seed)
	}
	if app.Config.Serial.BaudRate != 57600 {
		t.Errorf("BaudRate = %d, want 57600 from flag", app.Config.Serial.BaudRate)
	}
	if app.Config.Render.Every != 2 {
		t.Errorf("Render.Every = %d, want 2 kept from file", app.Config.Render.Every)
	}
	if app.Config.Grid.Scale != slam.DefaultConfig().Grid.Scale {
		t.Errorf("Grid.Scale = %f, want default", app.Config.Grid.Scale)
	}
}

func TestSetup_MissingConfig(t *testing.T) {
	app := NewApp()
	app.Logger = zaptest.NewLogger(t).Sugar()
	app.ConfigFile = filepath.Join(t.TempDir(), "missing.yaml")

	if err := app.setup(); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestRunWriteConfig(t *testing.T) {
	app := NewApp()
	app.Logger = zaptest.NewLogger(t).Sugar()
	app.Particles = 50
	app.WriteConfig = filepath.Join(t.TempDir(), "written.yaml")

	if err := app.RunWriteConfig(); err != nil {
		t.Fatalf("RunWriteConfig failed: %v", err)
	}

	cfg, err := slam.LoadConfig(app.WriteConfig)
	if err != nil {
		t.Fatalf("written config does not load: %v", err)
	}
	if cfg.Particles != 50 {
		t.Errorf("Particles = %d, want 50", cfg.Particles)
	}
}

func TestRunParseOnly(t *testing.T) {
	app := testApp(t)
	app.Replay = writeReplay(t, zigzag)

	if err := app.RunParseOnly(context.Background()); err != nil {
		t.Fatalf("RunParseOnly failed: %v", err)
	}

	out := app.Out.(*bytes.Buffer).String()
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != len(zigzag)+1 {
		t.Fatalf("expected %d lines, got %d: %s", len(zigzag)+1, len(lines), out)
	}
	data, err := slam.ParseLogLine(lines[2])
	if err != nil {
		t.Fatalf("listing is not in log format: %v", err)
	}
	if data.Angle != 30 || data.Distance != 100 {
		t.Errorf("unexpected sample %+v", data)
	}
	if lines[len(lines)-1] != fmt.Sprintf("%d sample(s)", len(zigzag)) {
		t.Errorf("unexpected footer %q", lines[len(lines)-1])
	}
}

func TestRunParseOnly_NoSource(t *testing.T) {
	app := testApp(t)
	if err := app.RunParseOnly(context.Background()); err == nil {
		t.Error("expected error without a source")
	}
}

func TestRunMapping_Replay(t *testing.T) {
	dir := t.TempDir()
	app := testApp(t)
	app.Replay = writeReplay(t, zigzag)
	app.OutputFile = filepath.Join(dir, "map.png")
	app.SVGFile = filepath.Join(dir, "map.svg")

	mock := slam.NewMockClient()
	mock.SetConnected(true)
	app.Publisher = slam.NewPublisher(mock, "test", app.Logger)

	if err := app.RunMapping(context.Background()); err != nil {
		t.Fatalf("RunMapping failed: %v", err)
	}

	status := app.Tracker.Status()
	if status.Samples != len(zigzag) {
		t.Errorf("Samples = %d, want %d", status.Samples, len(zigzag))
	}
	if status.Cycles != 3 {
		t.Errorf("Cycles = %d, want 3", status.Cycles)
	}
	if got := len(mock.Published()); got != 3 {
		t.Errorf("published %d poses, want one per cycle", got)
	}

	f, err := os.Open(app.OutputFile)
	if err != nil {
		t.Fatalf("map not written: %v", err)
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		t.Fatalf("map is not a PNG: %v", err)
	}
	want := app.Config.Grid.Width * app.Config.Render.Upscale
	if img.Bounds().Dx() != want {
		t.Errorf("map width = %d, want %d", img.Bounds().Dx(), want)
	}

	svg, err := os.ReadFile(app.SVGFile)
	if err != nil {
		t.Fatalf("SVG not written: %v", err)
	}
	if !bytes.Contains(svg, []byte("<svg")) {
		t.Error("SVG output has no svg element")
	}
}

func TestRunMapping_PlainMap(t *testing.T) {
	app := testApp(t)
	app.Config.Render.Annotate = false
	app.Replay = writeReplay(t, zigzag)
	app.OutputFile = filepath.Join(t.TempDir(), "map.png")

	if err := app.RunMapping(context.Background()); err != nil {
		t.Fatalf("RunMapping failed: %v", err)
	}

	f, err := os.Open(app.OutputFile)
	if err != nil {
		t.Fatalf("map not written: %v", err)
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		t.Fatalf("map is not a PNG: %v", err)
	}
	if img.Bounds().Dx() != app.Config.Grid.Width {
		t.Errorf("map width = %d, want one pixel per cell", img.Bounds().Dx())
	}
}

func TestWireHooks_RenderEvery(t *testing.T) {
	app := testApp(t)
	app.Config.Render.Every = 2
	app.OutputFile = filepath.Join(t.TempDir(), "map.png")

	filter, err := slam.NewParticleFilter(app.Config, slam.WithLogger(app.Logger))
	if err != nil {
		t.Fatalf("NewParticleFilter failed: %v", err)
	}
	app.Tracker = slam.NewTracker(filter)
	app.wireHooks()

	// First cycle completes at the fourth sample, second at the sixth
	for _, angle := range zigzag[:4] {
		app.Tracker.Feed(slam.SensorData{Angle: angle, Distance: 100})
	}
	if _, err := os.Stat(app.OutputFile); !os.IsNotExist(err) {
		t.Fatalf("map written on cycle 1, want every 2nd cycle: %v", err)
	}
	for _, angle := range zigzag[4:6] {
		app.Tracker.Feed(slam.SensorData{Angle: angle, Distance: 100})
	}
	if _, err := os.Stat(app.OutputFile); err != nil {
		t.Errorf("map not written on cycle 2: %v", err)
	}
}

func TestRunMapping_RasterizedVector(t *testing.T) {
	app := testApp(t)
	app.Replay = writeReplay(t, zigzag)
	app.OutputFile = ""
	app.SVGFile = filepath.Join(t.TempDir(), "trajectory.png")

	if err := app.RunMapping(context.Background()); err != nil {
		t.Fatalf("RunMapping failed: %v", err)
	}

	f, err := os.Open(app.SVGFile)
	if err != nil {
		t.Fatalf("vector render not written: %v", err)
	}
	defer f.Close()
	if _, err := png.Decode(f); err != nil {
		t.Errorf("expected a PNG for a .png path: %v", err)
	}
}

func TestRunMapping_NoCycle(t *testing.T) {
	app := testApp(t)
	app.Replay = writeReplay(t, []int{10, 20})
	app.OutputFile = filepath.Join(t.TempDir(), "map.png")

	if err := app.RunMapping(context.Background()); err != nil {
		t.Fatalf("RunMapping failed: %v", err)
	}
	if _, err := os.Stat(app.OutputFile); !os.IsNotExist(err) {
		t.Errorf("expected no map without a completed scan line, got %v", err)
	}
}

func TestRunMapping_Cancelled(t *testing.T) {
	app := testApp(t)
	app.Replay = writeReplay(t, zigzag)
	app.OutputFile = filepath.Join(t.TempDir(), "map.png")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := app.RunMapping(ctx); err != nil {
		t.Fatalf("RunMapping failed: %v", err)
	}
	if got := app.Tracker.Status().Samples; got != 0 {
		t.Errorf("Samples = %d, want 0 after cancellation", got)
	}
}

func TestRunMapping_Record(t *testing.T) {
	dir := t.TempDir()
	app := testApp(t)
	app.Replay = writeReplay(t, zigzag)
	app.RecordFile = filepath.Join(dir, "record.log")
	app.OutputFile = ""

	if err := app.RunMapping(context.Background()); err != nil {
		t.Fatalf("RunMapping failed: %v", err)
	}

	// The recording replays like the source log
	replay := testApp(t)
	replay.Replay = app.RecordFile
	replay.OutputFile = ""
	if err := replay.RunMapping(context.Background()); err != nil {
		t.Fatalf("replaying the recording failed: %v", err)
	}
	if got := replay.Tracker.Status().Samples; got != len(zigzag) {
		t.Errorf("recorded %d samples, want %d", got, len(zigzag))
	}
}

func TestRunMapping_BadLine(t *testing.T) {
	app := testApp(t)
	path := filepath.Join(t.TempDir(), "bad.log")
	if err := os.WriteFile(path, []byte("0 10 100 0 0 0 0\nnot a sample\n"), 0644); err != nil {
		t.Fatalf("Failed to write log: %v", err)
	}
	app.Replay = path
	app.OutputFile = ""

	err := app.RunMapping(context.Background())
	if err == nil || !strings.Contains(err.Error(), "replay line 2") {
		t.Errorf("expected replay line error, got %v", err)
	}
	if got := app.Tracker.Status().Samples; got != 1 {
		t.Errorf("Samples = %d, want 1 before the bad line", got)
	}
}

func TestRunMapping_MissingReplay(t *testing.T) {
	app := testApp(t)
	app.Replay = filepath.Join(t.TempDir(), "missing.log")

	if err := app.RunMapping(context.Background()); err == nil {
		t.Error("expected error for missing replay log")
	}
}

func TestRunMapping_BadRecordPath(t *testing.T) {
	app := testApp(t)
	app.Replay = writeReplay(t, zigzag)
	app.RecordFile = filepath.Join(t.TempDir(), "missing", "record.log")

	if err := app.RunMapping(context.Background()); err == nil {
		t.Error("expected error for unwritable record file")
	}
}

func TestRunMapping_MQTTWithoutBroker(t *testing.T) {
	app := testApp(t)
	app.MqttMode = true
	app.Replay = writeReplay(t, zigzag)
	app.OutputFile = ""

	if err := app.RunMapping(context.Background()); err != nil {
		t.Fatalf("RunMapping failed: %v", err)
	}
	if app.MQTTClient != nil || app.Publisher != nil {
		t.Error("MQTT should stay disabled without a broker")
	}
}
