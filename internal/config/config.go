// Package config loads and validates the daemon configuration from YAML.
// Validation is fail-fast: a bad shutter kind or parameter is rejected at
// load time, before any streaming begins.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete daemon configuration.
type Config struct {
	InstanceID       string        `yaml:"instance_id"`
	ShutdownTimeoutS int           `yaml:"shutdown_timeout_s"` // graceful shutdown timeout (default: 5)
	Source           SourceConfig  `yaml:"source"`
	Frame            FrameConfig   `yaml:"frame"`
	Shutter          ShutterConfig `yaml:"shutter"`
	Buffer           BufferConfig  `yaml:"buffer"`
	Output           OutputConfig  `yaml:"output"`
	MQTT             MQTTConfig    `yaml:"mqtt"`
}

// SourceConfig selects and configures event acquisition.
type SourceConfig struct {
	Kind string `yaml:"kind"` // synthetic, replay
	// File is the recording path for the replay source.
	File string `yaml:"file"`
	// Pace replays recordings at their original event-time spacing.
	Pace bool `yaml:"pace"`
	// Downsample keeps every Nth event of a batch (0/1 = keep all).
	Downsample int `yaml:"downsample"`
	// EventRate is the synthetic generator's mean events per second.
	EventRate float64 `yaml:"event_rate"`
}

// FrameConfig configures the accumulated frame geometry and rendering.
type FrameConfig struct {
	// Width and Height override the source resolution when non-zero.
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
	// FPS is the target frame rate of the consumer.
	FPS int `yaml:"fps"`
	// Brightness is a render-time multiplier (0 = 1.0).
	Brightness float64 `yaml:"brightness"`
	// DecayRate in (0,1) enables soft reset with trailing persistence;
	// 0 or 1 is a hard reset.
	DecayRate float64 `yaml:"decay_rate"`
	// Normalize auto-scales each frame to its own maximum. Defaults true;
	// comparison mode always renders linear regardless.
	Normalize *bool `yaml:"normalize"`
}

// ShutterConfig configures the DCE weighting function.
type ShutterConfig struct {
	Kind      string  `yaml:"kind"` // boxcar, morlet, no_shutter
	Period    float64 `yaml:"period"`
	Duty      float64 `yaml:"duty"`
	Phase     float64 `yaml:"phase"`
	Frequency float64 `yaml:"frequency"`
	Sigma     float64 `yaml:"sigma"`
}

// BufferConfig configures the bounded event buffer.
type BufferConfig struct {
	// Capacity is the bounded size; overflow evicts the oldest events.
	Capacity int `yaml:"capacity"`
}

// OutputConfig configures the frame sinks and event recording.
type OutputConfig struct {
	// VideoPath enables the MP4 sink when non-empty.
	VideoPath string `yaml:"video_path"`
	// RecordComparison runs a second no-shutter accumulator and writes two
	// videos with _with_dce / _no_dce suffixed paths.
	RecordComparison bool `yaml:"record_comparison"`
	// BitrateKbps is the x264 bitrate for video output.
	BitrateKbps int `yaml:"bitrate_kbps"`

	// ImagesDir enables the per-frame image sink when non-empty.
	ImagesDir   string `yaml:"images_dir"`
	ImageFormat string `yaml:"image_format"` // png, jpeg
	JPEGQuality int    `yaml:"jpeg_quality"`

	// RecordEventsPath enables recording of the raw event stream.
	RecordEventsPath string `yaml:"record_events_path"`
}

// MQTTConfig configures the optional telemetry emitter.
// An empty broker disables telemetry entirely.
type MQTTConfig struct {
	Broker    string     `yaml:"broker"`
	Topics    MQTTTopics `yaml:"topics"`
	QoS       byte       `yaml:"qos"`
	IntervalS int        `yaml:"interval_s"` // stats publish interval (default: 5)
}

// MQTTTopics contains topic prefixes.
type MQTTTopics struct {
	Telemetry string `yaml:"telemetry"`
	Health    string `yaml:"health"`
}

// Load reads, parses and validates a YAML configuration file, applying
// defaults for unset fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()
	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("config: invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Default returns the built-in configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills unset fields with their defaults.
func (c *Config) ApplyDefaults() {
	if c.InstanceID == "" {
		c.InstanceID = "dce-0"
	}
	if c.ShutdownTimeoutS == 0 {
		c.ShutdownTimeoutS = 5
	}
	if c.Source.Kind == "" {
		c.Source.Kind = "synthetic"
	}
	if c.Frame.FPS == 0 {
		c.Frame.FPS = 15
	}
	if c.Shutter.Kind == "" {
		c.Shutter.Kind = "no_shutter"
	}
	if c.Shutter.Period == 0 {
		c.Shutter.Period = 0.1
	}
	if c.Shutter.Duty == 0 {
		c.Shutter.Duty = 0.25
	}
	if c.Shutter.Frequency == 0 {
		c.Shutter.Frequency = 100.0
	}
	if c.Shutter.Sigma == 0 {
		c.Shutter.Sigma = 0.01
	}
	if c.Buffer.Capacity == 0 {
		c.Buffer.Capacity = 50000
	}
	if c.Source.Downsample == 0 {
		c.Source.Downsample = 1
	}
	if c.Output.ImageFormat == "" {
		c.Output.ImageFormat = "png"
	}
	if c.Output.JPEGQuality == 0 {
		c.Output.JPEGQuality = 90
	}
	if c.Output.BitrateKbps == 0 {
		c.Output.BitrateKbps = 2048
	}
	if c.MQTT.IntervalS == 0 {
		c.MQTT.IntervalS = 5
	}
	if c.MQTT.Topics.Telemetry == "" {
		c.MQTT.Topics.Telemetry = "dce/telemetry"
	}
	if c.MQTT.Topics.Health == "" {
		c.MQTT.Topics.Health = "dce/health"
	}
}

// ShutdownTimeout returns the graceful shutdown timeout as a duration.
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutS) * time.Second
}

// NormalizeFrames reports whether normal-mode frames auto-scale.
func (c *Config) NormalizeFrames() bool {
	if c.Frame.Normalize == nil {
		return true
	}
	return *c.Frame.Normalize
}
