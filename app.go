package main

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/kwv/roverslam/slam"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// App encapsulates the application state and dependencies
type App struct {
	Config     *slam.Config
	Logger     *zap.SugaredLogger
	Tracker    *slam.Tracker
	MQTTClient *slam.MQTTClient
	Publisher  *slam.Publisher

	// CLI Flags (effectively dependencies)
	ConfigFile  string
	Device      string
	BaudRate    int
	Replay      string
	RecordFile  string
	OutputFile  string
	SVGFile     string
	RenderEvery int
	Particles   int
	Seed        uint64
	Debug       bool
	MqttMode    bool
	WriteConfig string

	// Out receives the parse-only listing
	Out io.Writer
}

// NewApp creates a new App instance
func NewApp() *App {
	return &App{
		Out:         os.Stdout,
		RenderEvery: -1,
	}
}

// ApplyOptions applies CLI options to the App instance
func (a *App) ApplyOptions(opts AppOptions) {
	a.ConfigFile = opts.ConfigFile
	a.Device = opts.Device
	a.BaudRate = opts.BaudRate
	a.Replay = opts.Replay
	a.RecordFile = opts.RecordFile
	a.OutputFile = opts.OutputFile
	a.SVGFile = opts.SVGFile
	a.RenderEvery = opts.RenderEvery
	a.Particles = opts.Particles
	a.Seed = opts.Seed
	a.Debug = opts.Debug
	a.MqttMode = opts.MqttMode
	a.WriteConfig = opts.WriteConfig
}

// setup builds the logger and the effective configuration. Fields already
// set on the App are kept.
func (a *App) setup() error {
	if a.Logger == nil {
		logger, err := slam.NewLogger(a.Debug)
		if err != nil {
			return fmt.Errorf("creating logger: %w", err)
		}
		a.Logger = logger
	}
	if a.Config != nil {
		return nil
	}

	var config *slam.Config
	if a.ConfigFile != "" {
		loaded, err := slam.LoadConfig(a.ConfigFile)
		if err != nil {
			return err
		}
		config = loaded
		a.Logger.Infow("Loaded config", "path", a.ConfigFile)
	} else {
		config = slam.DefaultConfig()
		config.ApplyEnv()
	}

	if a.Particles > 0 {
		config.Particles = a.Particles
	}
	if a.Seed != 0 {
		config.Seed = a.Seed
	}
	if a.BaudRate > 0 {
		config.Serial.BaudRate = a.BaudRate
	}
	if a.RenderEvery >= 0 {
		config.Render.Every = a.RenderEvery
	}
	if err := config.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	a.Config = config
	return nil
}

// openSource opens the replay log when one is given, otherwise the serial
// device
func (a *App) openSource() (slam.SampleSource, error) {
	if a.Replay != "" {
		return slam.OpenReplaySource(a.Replay)
	}
	if a.Device == "" {
		return nil, errors.New("no sample source: set a serial device or a replay log")
	}
	return slam.OpenSerialSource(a.Device, a.Config.Serial)
}

// RunWriteConfig writes the effective configuration and exits
func (a *App) RunWriteConfig() error {
	if err := a.setup(); err != nil {
		return err
	}
	if err := slam.SaveConfig(a.WriteConfig, a.Config); err != nil {
		return err
	}
	a.Logger.Infow("Wrote config", "path", a.WriteConfig)
	return nil
}

// RunParseOnly prints every sample of the source in log format
func (a *App) RunParseOnly(ctx context.Context) error {
	if err := a.setup(); err != nil {
		return err
	}
	src, err := a.openSource()
	if err != nil {
		return err
	}
	stop := context.AfterFunc(ctx, func() { _ = src.Close() })
	defer stop()

	start := time.Now()
	count := 0
	for ctx.Err() == nil {
		data, err := src.Next()
		if err != nil {
			if ctx.Err() != nil || slam.IsEndOfStream(err) {
				break
			}
			return multierr.Append(err, src.Close())
		}
		count++
		fmt.Fprintln(a.Out, slam.FormatLogLine(time.Since(start).Seconds(), data))
	}

	fmt.Fprintf(a.Out, "%d sample(s)\n", count)
	if stop() {
		return src.Close()
	}
	return nil
}

// RunMapping streams samples into the particle filter until the source ends,
// the context is cancelled or a stop request arrives over MQTT, then writes
// the final outputs
func (a *App) RunMapping(ctx context.Context) error {
	if err := a.setup(); err != nil {
		return err
	}

	filter, err := slam.NewParticleFilter(a.Config, slam.WithLogger(a.Logger))
	if err != nil {
		return err
	}
	a.Tracker = slam.NewTracker(filter)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if a.MqttMode && a.Publisher == nil {
		a.MQTTClient = slam.InitMQTT(a.Config.MQTT, a.Logger, func(reason string) {
			a.Logger.Infow("Stop requested over MQTT", "reason", reason)
			cancel()
		})
		if a.MQTTClient != nil {
			a.Publisher = slam.NewPublisher(a.MQTTClient.GetClient(), a.Config.MQTT.PublishPrefix, a.Logger)
		}
	}
	a.wireHooks()

	src, err := a.openSource()
	if err != nil {
		a.disconnect()
		return err
	}

	var closeOnce sync.Once
	var closeErr error
	closeSource := func() {
		closeOnce.Do(func() { closeErr = src.Close() })
	}
	// A blocking serial read only returns once the port is closed
	stop := context.AfterFunc(ctx, closeSource)
	defer stop()

	var record io.WriteCloser
	if a.RecordFile != "" {
		f, err := os.OpenFile(a.RecordFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			closeSource()
			a.disconnect()
			return multierr.Append(fmt.Errorf("opening record file: %w", err), closeErr)
		}
		record = f
	}

	a.Logger.Infow("Mapping started",
		"source", a.sourceName(),
		"particles", a.Config.Particles,
		"grid", fmt.Sprintf("%dx%d", a.Config.Grid.Width, a.Config.Grid.Height),
		"scale", a.Config.Grid.Scale,
	)

	runErr := a.consume(ctx, src, record)
	stopped := ctx.Err() != nil

	closeSource()
	errs := multierr.Combine(runErr, ignoreAfterStop(closeErr, stopped))
	if record != nil {
		errs = multierr.Append(errs, record.Close())
	}
	errs = multierr.Append(errs, a.writeOutputs())
	a.disconnect()
	return errs
}

// consume feeds samples until the source ends or ctx is cancelled
func (a *App) consume(ctx context.Context, src slam.SampleSource, record io.Writer) error {
	start := time.Now()
	for ctx.Err() == nil {
		data, err := src.Next()
		if err != nil {
			if ctx.Err() != nil || slam.IsEndOfStream(err) {
				return nil
			}
			return err
		}
		if record != nil {
			if _, err := fmt.Fprintln(record, slam.FormatLogLine(time.Since(start).Seconds(), data)); err != nil {
				return fmt.Errorf("recording sample: %w", err)
			}
		}
		a.Tracker.Feed(data)
	}
	return nil
}

// wireHooks attaches pose publishing and periodic map output to the tracker
func (a *App) wireHooks() {
	if a.Publisher != nil {
		a.Tracker.OnCycle(func(stats slam.CycleStats) {
			if err := a.Publisher.PublishCycle(stats); err != nil {
				a.Logger.Debugw("Pose not published", "cycle", stats.Cycle, "error", err)
			}
		})
	}
	if every := a.Config.Render.Every; every > 0 && a.OutputFile != "" {
		a.Tracker.OnCycle(func(stats slam.CycleStats) {
			if stats.Cycle%every != 0 {
				return
			}
			if err := a.writeMap(); err != nil {
				a.Logger.Warnw("Failed to write map", "cycle", stats.Cycle, "error", err)
			}
		})
	}
}

// writeOutputs writes the final PNG and SVG and logs the trajectory summary.
// A run that never completed a cycle has nothing to write.
func (a *App) writeOutputs() error {
	status := a.Tracker.Status()
	if status.Cycles == 0 {
		a.Logger.Warnw("No scan line completed, no map written", "samples", status.Samples)
		return nil
	}

	var errs error
	if a.OutputFile != "" {
		if err := a.writeMap(); err != nil {
			errs = multierr.Append(errs, err)
		} else {
			a.Logger.Infow("Wrote map", "path", a.OutputFile)
		}
	}
	if a.SVGFile != "" {
		if err := a.writeSVG(); err != nil {
			errs = multierr.Append(errs, err)
		} else {
			a.Logger.Infow("Wrote trajectory SVG", "path", a.SVGFile)
		}
	}

	summary := slam.SummarizeTrajectory(a.Tracker.Trajectory())
	a.Logger.Infow("Mapping finished",
		"samples", status.Samples,
		"cycles", status.Cycles,
		"distance", summary.Distance,
		"finalX", summary.Final.Pt.X,
		"finalY", summary.Final.Pt.Y,
		"finalAngle", slam.Degrees(summary.Final.Yaw),
	)
	return errs
}

// writeMap writes the current map, annotated when configured
func (a *App) writeMap() error {
	m, err := a.Tracker.Map()
	if err != nil {
		return err
	}

	var img image.Image = m
	if a.Config.Render.Annotate {
		status := a.Tracker.Status()
		img = slam.RenderAnnotated(m, a.Config.Render.Upscale, slam.Annotation{
			Cell: a.Tracker.Cell(status.Pose.Pt),
			Yaw:  status.Pose.Yaw,
			Lines: []string{
				fmt.Sprintf("cycle %d  samples %d", status.Cycles, status.Samples),
				fmt.Sprintf("x %.1f  y %.1f  %.0f deg", status.Pose.Pt.X, status.Pose.Pt.Y, slam.Degrees(status.Pose.Yaw)),
			},
		})
	}
	return slam.SavePNG(a.OutputFile, img)
}

// writeSVG renders the trajectory over the obstacles of the best map. A .png
// path is rasterized instead.
func (a *App) writeSVG() (err error) {
	grid, err := a.Tracker.Grid()
	if err != nil {
		return err
	}
	r := slam.NewTrajectoryRenderer(a.Tracker.Trajectory(), grid, a.Config.Render.SimplifyError)

	f, err := os.Create(a.SVGFile)
	if err != nil {
		return fmt.Errorf("creating SVG file: %w", err)
	}
	defer func() { err = multierr.Append(err, f.Close()) }()
	if strings.EqualFold(filepath.Ext(a.SVGFile), ".png") {
		return r.RenderToPNG(f)
	}
	return r.RenderToSVG(f)
}

// disconnect closes the MQTT connection, if any
func (a *App) disconnect() {
	if a.MQTTClient != nil {
		a.MQTTClient.Disconnect()
	}
}

func (a *App) sourceName() string {
	if a.Replay != "" {
		return a.Replay
	}
	return a.Device
}

// ignoreAfterStop drops the close error of a source that was already closed
// to interrupt a blocking read
func ignoreAfterStop(err error, stopped bool) error {
	if stopped {
		return nil
	}
	return err
}
