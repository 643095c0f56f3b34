// dceventd renders an event-camera stream into coded-exposure video.
//
// It reads events from a synthetic generator or a recorded stream, applies a
// digital coded-exposure shutter while accumulating them into frames, and
// writes the result as MP4 video and/or per-frame images. Run with a YAML
// config file, command-line flags, or both (flags win).
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hetk987/Dynamic-Event-Capture/internal/app"
	"github.com/hetk987/Dynamic-Event-Capture/internal/config"
)

func main() {
	var (
		configPath = flag.String("config", "", "Path to YAML configuration file")
		debug      = flag.Bool("debug", false, "Enable debug logging")

		sourceKind = flag.String("source", "", "Event source: synthetic or replay")
		replayFile = flag.String("file", "", "Recording to replay (implies -source replay)")
		pace       = flag.Bool("pace", false, "Replay at original event-time spacing")

		fps         = flag.Int("fps", 0, "Output frame rate")
		shutterKind = flag.String("shutter", "", "Shutter: boxcar, morlet or no_shutter")
		period      = flag.Float64("period", 0, "Boxcar period in seconds")
		duty        = flag.Float64("duty", 0, "Boxcar duty cycle in (0,1]")
		frequency   = flag.Float64("frequency", 0, "Morlet carrier frequency in Hz")
		sigma       = flag.Float64("sigma", 0, "Morlet envelope width in seconds")

		output     = flag.String("output", "", "MP4 output path")
		imagesDir  = flag.String("images", "", "Per-frame image output directory")
		comparison = flag.Bool("comparison", false, "Also record a no-shutter reference video")
		recordPath = flag.String("record-events", "", "Record the raw event stream to this path")
	)
	flag.Parse()

	logLevel := slog.LevelInfo
	if *debug {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "error", err, "config", *configPath)
		os.Exit(1)
	}

	// Flag overrides
	if *sourceKind != "" {
		cfg.Source.Kind = *sourceKind
	}
	if *replayFile != "" {
		cfg.Source.Kind = "replay"
		cfg.Source.File = *replayFile
	}
	if *pace {
		cfg.Source.Pace = true
	}
	if *fps > 0 {
		cfg.Frame.FPS = *fps
	}
	if *shutterKind != "" {
		cfg.Shutter.Kind = *shutterKind
	}
	if *period > 0 {
		cfg.Shutter.Period = *period
	}
	if *duty > 0 {
		cfg.Shutter.Duty = *duty
	}
	if *frequency > 0 {
		cfg.Shutter.Frequency = *frequency
	}
	if *sigma > 0 {
		cfg.Shutter.Sigma = *sigma
	}
	if *output != "" {
		cfg.Output.VideoPath = *output
	}
	if *imagesDir != "" {
		cfg.Output.ImagesDir = *imagesDir
	}
	if *comparison {
		cfg.Output.RecordComparison = true
	}
	if *recordPath != "" {
		cfg.Output.RecordEventsPath = *recordPath
	}

	if err := config.Validate(cfg); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("starting dceventd",
		"instance_id", cfg.InstanceID,
		"source", cfg.Source.Kind,
		"shutter", cfg.Shutter.Kind,
		"fps", cfg.Frame.FPS,
		"config", *configPath,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	service := app.NewWithConfig(cfg)

	errChan := make(chan error, 1)
	go func() {
		errChan <- service.Run(ctx)
	}()

	select {
	case sig := <-sigChan:
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
		<-errChan
	case err := <-errChan:
		if err != nil {
			slog.Error("service error", "error", err)
		} else {
			slog.Info("capture finished")
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), service.ShutdownTimeout())
	defer shutdownCancel()

	if err := service.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown failed", "error", err)
		os.Exit(1)
	}

	slog.Info("dceventd stopped")
}

// loadConfig reads the YAML file when given, otherwise starts from defaults
// so the binary runs flag-only.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}
