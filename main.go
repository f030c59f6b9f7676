package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
)

// Version is set at build time via ldflags
var Version = "dev"

// AppOptions holds the command line options
type AppOptions struct {
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
	ParseOnly   bool
	WriteConfig string
}

// Runner is the set of modes main can dispatch to
type Runner interface {
	ApplyOptions(opts AppOptions)
	RunParseOnly(ctx context.Context) error
	RunWriteConfig() error
	RunMapping(ctx context.Context) error
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
	}()

	err := run(ctx, os.Args[1:], os.Stdout, NewApp())
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "roverslam: %v\n", err)
		os.Exit(1)
	}
}

// run parses args and dispatches to the selected mode of app
func run(ctx context.Context, args []string, out io.Writer, app Runner) error {
	fs := flag.NewFlagSet("roverslam", flag.ContinueOnError)
	fs.SetOutput(out)

	var opts AppOptions
	fs.StringVar(&opts.ConfigFile, "config", "", "Path to YAML config file (defaults are used when empty)")
	fs.StringVar(&opts.Device, "device", "", "Serial device the robot streams binary samples on")
	fs.IntVar(&opts.BaudRate, "baud", 0, "Serial baud rate (overrides config)")
	fs.StringVar(&opts.Replay, "replay", "", "Replay a recorded sensor log instead of a serial device")
	fs.StringVar(&opts.RecordFile, "record", "", "Append every received sample to this log file")
	fs.StringVar(&opts.OutputFile, "output", "map.png", "Output PNG path for the map")
	fs.StringVar(&opts.SVGFile, "svg", "", "Optional vector render of the trajectory and obstacles (.svg, or .png to rasterize)")
	fs.IntVar(&opts.RenderEvery, "render-every", -1, "Write the map every N cycles (overrides config, 0 = final only)")
	fs.IntVar(&opts.Particles, "particles", 0, "Number of particles (overrides config)")
	fs.Uint64Var(&opts.Seed, "seed", 0, "Random seed (overrides config, 0 = keep config)")
	fs.BoolVar(&opts.Debug, "debug", false, "Enable debug logging")
	fs.BoolVar(&opts.MqttMode, "mqtt", false, "Publish poses and listen for stop requests over MQTT")
	fs.BoolVar(&opts.ParseOnly, "parse-only", false, "Decode and print samples without mapping")
	fs.StringVar(&opts.WriteConfig, "write-config", "", "Write the effective configuration to this path and exit")

	if err := fs.Parse(args); err != nil {
		return err
	}

	fmt.Fprintf(out, "roverslam version: %s\n", Version)
	app.ApplyOptions(opts)

	switch {
	case opts.WriteConfig != "":
		return app.RunWriteConfig()
	case opts.ParseOnly:
		return app.RunParseOnly(ctx)
	case opts.Device != "" || opts.Replay != "":
		return app.RunMapping(ctx)
	}

	fmt.Fprintln(out, "No sample source given")
	fmt.Fprintln(out, "Use --device=/dev/ttyUSB0 to map from the robot")
	fmt.Fprintln(out, "Use --replay=run.log to map from a recorded log")
	fmt.Fprintln(out, "Use --parse-only with either source to inspect samples")
	fmt.Fprintln(out, "Use --write-config=config.yaml to dump the defaults")
	return nil
}
