package config

import (
	"fmt"
	"regexp"

	"github.com/hetk987/Dynamic-Event-Capture/internal/shutter"
)

var instanceIDPattern = regexp.MustCompile(`^[a-z0-9\-]+$`)

// Validate checks the configuration for correctness. Call after
// ApplyDefaults; Load does both.
func Validate(cfg *Config) error {
	if cfg.InstanceID == "" {
		return fmt.Errorf("instance_id is required")
	}
	if !instanceIDPattern.MatchString(cfg.InstanceID) {
		return fmt.Errorf("instance_id must match pattern [a-z0-9-]+")
	}

	switch cfg.Source.Kind {
	case "synthetic":
	case "replay":
		if cfg.Source.File == "" {
			return fmt.Errorf("source.file is required for the replay source")
		}
	default:
		return fmt.Errorf("unknown source kind %q (must be synthetic or replay)", cfg.Source.Kind)
	}
	if cfg.Source.Downsample < 1 {
		return fmt.Errorf("source.downsample must be ≥ 1, got %d", cfg.Source.Downsample)
	}

	if cfg.Frame.FPS <= 0 {
		return fmt.Errorf("frame.fps must be > 0, got %d", cfg.Frame.FPS)
	}
	if cfg.Frame.Width < 0 || cfg.Frame.Height < 0 {
		return fmt.Errorf("frame dimensions must not be negative")
	}
	if cfg.Frame.Brightness < 0 {
		return fmt.Errorf("frame.brightness must not be negative, got %g", cfg.Frame.Brightness)
	}
	if cfg.Frame.DecayRate < 0 || cfg.Frame.DecayRate > 1 {
		return fmt.Errorf("frame.decay_rate must be in [0,1], got %g", cfg.Frame.DecayRate)
	}

	// Shutter parameters fail fast here, before any streaming begins.
	if _, err := ShutterFromConfig(cfg.Shutter); err != nil {
		return err
	}

	if cfg.Buffer.Capacity <= 0 {
		return fmt.Errorf("buffer.capacity must be > 0, got %d", cfg.Buffer.Capacity)
	}

	if cfg.Output.ImagesDir != "" {
		if cfg.Output.ImageFormat != "png" && cfg.Output.ImageFormat != "jpeg" {
			return fmt.Errorf("output.image_format must be png or jpeg, got %q", cfg.Output.ImageFormat)
		}
		if cfg.Output.JPEGQuality < 1 || cfg.Output.JPEGQuality > 100 {
			return fmt.Errorf("output.jpeg_quality must be 1-100, got %d", cfg.Output.JPEGQuality)
		}
	}
	if cfg.Output.RecordComparison && cfg.Output.VideoPath == "" {
		return fmt.Errorf("output.video_path is required for comparison recording")
	}

	return nil
}

// ShutterFromConfig resolves the YAML shutter section into a validated
// shutter.Config.
func ShutterFromConfig(sc ShutterConfig) (shutter.Config, error) {
	kind, err := shutter.ParseKind(sc.Kind)
	if err != nil {
		return shutter.Config{}, err
	}

	cfg := shutter.Config{
		Kind:      kind,
		Period:    sc.Period,
		Duty:      sc.Duty,
		Phase:     sc.Phase,
		Frequency: sc.Frequency,
		Sigma:     sc.Sigma,
	}
	if err := cfg.Validate(); err != nil {
		return shutter.Config{}, err
	}
	return cfg, nil
}
