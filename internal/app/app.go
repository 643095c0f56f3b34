// Package app assembles the configured components into a running service:
// source, event buffer pipeline, frame sinks, event recorder and the
// telemetry emitter. The binary in cmd/dceventd is a thin wrapper around it.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/hetk987/Dynamic-Event-Capture/internal/accum"
	"github.com/hetk987/Dynamic-Event-Capture/internal/config"
	"github.com/hetk987/Dynamic-Event-Capture/internal/emitter"
	"github.com/hetk987/Dynamic-Event-Capture/internal/pipeline"
	"github.com/hetk987/Dynamic-Event-Capture/internal/recorder"
	"github.com/hetk987/Dynamic-Event-Capture/internal/shutter"
	"github.com/hetk987/Dynamic-Event-Capture/internal/sink"
	"github.com/hetk987/Dynamic-Event-Capture/internal/source"
)

// App owns every component of one capture instance.
type App struct {
	cfg *config.Config

	src   source.Source
	pipe  *pipeline.Pipeline
	sinks []sink.Sink
	rec   *recorder.Recorder
	emit  *emitter.MQTTEmitter

	mu        sync.Mutex
	isRunning bool
	cancelRun context.CancelFunc
}

// New loads the configuration and returns an unstarted App.
func New(configPath string) (*App, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	return NewWithConfig(cfg), nil
}

// NewWithConfig returns an unstarted App around an already-validated config.
func NewWithConfig(cfg *config.Config) *App {
	return &App{cfg: cfg}
}

// ShutdownTimeout exposes the configured graceful-shutdown allowance.
func (a *App) ShutdownTimeout() time.Duration {
	return a.cfg.ShutdownTimeout()
}

// Run builds the component graph, starts the pipeline and blocks until the
// context is cancelled or a finite source is fully drained. Components built
// here are released by Shutdown, which must be called after Run returns.
func (a *App) Run(ctx context.Context) error {
	a.mu.Lock()
	if a.isRunning {
		a.mu.Unlock()
		return fmt.Errorf("app: already running")
	}
	a.isRunning = true
	a.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	a.mu.Lock()
	a.cancelRun = cancel
	a.mu.Unlock()

	slog.Info("dce capture starting", "instance_id", a.cfg.InstanceID)

	src, err := a.buildSource()
	if err != nil {
		return err
	}
	a.mu.Lock()
	a.src = src
	a.mu.Unlock()

	width, height := a.resolution()
	slog.Info("frame geometry resolved",
		"width", width, "height", height,
		"fps", a.cfg.Frame.FPS,
		"shutter", a.cfg.Shutter.Kind,
	)

	views, err := a.buildViews(width, height)
	if err != nil {
		return err
	}

	var rec *recorder.Recorder
	if path := a.cfg.Output.RecordEventsPath; path != "" {
		rec, err = recorder.Create(path, width, height)
		if err != nil {
			return fmt.Errorf("app: create event recording: %w", err)
		}
		a.mu.Lock()
		a.rec = rec
		a.mu.Unlock()
		slog.Info("recording event stream", "path", path)
	}

	pipe, err := pipeline.New(pipeline.Options{
		FPS:            a.cfg.Frame.FPS,
		BufferCapacity: a.cfg.Buffer.Capacity,
		Downsample:     a.cfg.Source.Downsample,
		Recorder:       rec,
	}, src, views...)
	if err != nil {
		return err
	}
	a.mu.Lock()
	a.pipe = pipe
	a.mu.Unlock()

	var emit *emitter.MQTTEmitter
	if a.cfg.MQTT.Broker != "" {
		emit = emitter.NewMQTTEmitter(a.cfg)
		a.mu.Lock()
		a.emit = emit
		a.mu.Unlock()
		if err := emit.Connect(); err != nil {
			// Telemetry is best-effort: keep capturing, auto-reconnect will
			// pick the broker up when it returns.
			slog.Warn("telemetry broker unavailable, continuing without", "error", err)
		}
	}

	if err := pipe.Start(ctx); err != nil {
		return err
	}

	if emit != nil {
		if err := emit.PublishHealth("running"); err != nil {
			slog.Debug("health publish failed", "error", err)
		}
	}

	a.serviceLoop(ctx, pipe, emit)
	return nil
}

// serviceLoop publishes periodic telemetry and watches for the drain
// condition: a finite source has ended and the buffer is empty, so no
// further frame can ever be produced.
func (a *App) serviceLoop(ctx context.Context, pipe *pipeline.Pipeline, emit *emitter.MQTTEmitter) {
	telemetry := time.NewTicker(time.Duration(a.cfg.MQTT.IntervalS) * time.Second)
	defer telemetry.Stop()

	drain := time.NewTicker(250 * time.Millisecond)
	defer drain.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-telemetry.C:
			st := pipe.Stats()
			slog.Debug("pipeline stats",
				"events_ingested", st.EventsIngested,
				"frames_emitted", st.FramesEmitted,
				"buffer_len", st.BufferLen,
				"events_evicted", st.EventsEvicted,
				"actual_fps", fmt.Sprintf("%.1f", st.ActualFPS),
			)
			if emit != nil {
				if err := emit.PublishStats(st); err != nil {
					slog.Debug("telemetry publish failed", "error", err)
				}
			}
		case <-drain.C:
			st := pipe.Stats()
			if st.StreamEnded && st.BufferLen == 0 {
				// One extra frame interval so the consumer's final tick runs.
				time.Sleep(2 * time.Second / time.Duration(a.cfg.Frame.FPS))
				slog.Info("source drained, stopping",
					"frames_emitted", pipe.Stats().FramesEmitted)
				return
			}
		}
	}
}

// Shutdown releases every component in dependency order: pipeline loops
// first, then sinks (flushing encoders), recorder, telemetry, source.
func (a *App) Shutdown(ctx context.Context) error {
	a.mu.Lock()
	if !a.isRunning {
		a.mu.Unlock()
		return nil
	}
	a.isRunning = false
	cancel := a.cancelRun
	a.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan error, 1)
	go func() { done <- a.teardown() }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("app: shutdown timed out: %w", ctx.Err())
	}
}

func (a *App) teardown() error {
	a.mu.Lock()
	pipe, sinks, rec, emit, src := a.pipe, a.sinks, a.rec, a.emit, a.src
	a.mu.Unlock()

	var firstErr error
	record := func(what string, err error) {
		if err != nil {
			slog.Error("shutdown step failed", "step", what, "error", err)
			if firstErr == nil {
				firstErr = fmt.Errorf("app: %s: %w", what, err)
			}
		}
	}

	if pipe != nil {
		record("stop pipeline", pipe.Stop())
	}
	for _, s := range sinks {
		record("close sink", s.Close())
	}
	if rec != nil {
		record("close recording", rec.Close())
	}
	if emit != nil {
		if err := emit.PublishHealth("stopping"); err != nil {
			slog.Debug("final health publish failed", "error", err)
		}
		emit.Disconnect()
	}
	if src != nil {
		record("close source", src.Close())
	}

	return firstErr
}

// Stats returns the pipeline counters, or a zero snapshot before Run has
// built the pipeline. Safe to call concurrently with Run.
func (a *App) Stats() pipeline.Stats {
	a.mu.Lock()
	pipe := a.pipe
	a.mu.Unlock()

	if pipe == nil {
		return pipeline.Stats{}
	}
	return pipe.Stats()
}

func (a *App) buildSource() (source.Source, error) {
	switch a.cfg.Source.Kind {
	case "replay":
		src, err := source.NewReplay(source.ReplayConfig{
			Path: a.cfg.Source.File,
			Pace: a.cfg.Source.Pace,
		})
		if err != nil {
			return nil, fmt.Errorf("app: open replay source: %w", err)
		}
		slog.Info("using replay source",
			"file", a.cfg.Source.File, "pace", a.cfg.Source.Pace)
		return src, nil
	default: // validated to "synthetic"
		src := source.NewSynthetic(source.SyntheticConfig{
			Width:     a.cfg.Frame.Width,
			Height:    a.cfg.Frame.Height,
			EventRate: a.cfg.Source.EventRate,
		})
		slog.Info("using synthetic source", "event_rate", a.cfg.Source.EventRate)
		return src, nil
	}
}

// resolution prefers the configured frame geometry and falls back to the
// source's native resolution (a replay header, the synthetic default).
func (a *App) resolution() (int, int) {
	w, h := a.cfg.Frame.Width, a.cfg.Frame.Height
	if w <= 0 || h <= 0 {
		w, h = a.src.Resolution()
	}
	return w, h
}

// buildViews creates the accumulator/sink pairs. Normal mode is one view with
// the configured shutter; comparison mode adds a no-shutter view and renders
// both linearly so their brightness scales stay comparable.
func (a *App) buildViews(width, height int) ([]pipeline.View, error) {
	shCfg, err := config.ShutterFromConfig(a.cfg.Shutter)
	if err != nil {
		return nil, err
	}
	sh, err := shutter.New(shCfg)
	if err != nil {
		return nil, err
	}

	main, err := accum.New(accum.Config{
		Width: width, Height: height,
		Shutter:    sh,
		Brightness: a.cfg.Frame.Brightness,
		DecayRate:  a.cfg.Frame.DecayRate,
	})
	if err != nil {
		return nil, err
	}

	if !a.cfg.Output.RecordComparison {
		s, err := a.buildSink(a.cfg.Output.VideoPath, a.cfg.Output.ImagesDir, width, height)
		if err != nil {
			return nil, err
		}
		return []pipeline.View{{
			Label:       "main",
			Accumulator: main,
			Sink:        s,
			Normalize:   a.cfg.NormalizeFrames(),
		}}, nil
	}

	open, err := shutter.New(shutter.Config{Kind: shutter.NoShutter})
	if err != nil {
		return nil, err
	}
	reference, err := accum.New(accum.Config{
		Width: width, Height: height,
		Shutter:    open,
		Brightness: a.cfg.Frame.Brightness,
		DecayRate:  a.cfg.Frame.DecayRate,
	})
	if err != nil {
		return nil, err
	}

	// Per-view output paths keep the two recordings (and any image dirs)
	// from colliding.
	withDCE, err := a.buildSink(
		suffixPath(a.cfg.Output.VideoPath, "_with_dce"),
		suffixPath(a.cfg.Output.ImagesDir, "_with_dce"),
		width, height)
	if err != nil {
		return nil, err
	}
	noDCE, err := a.buildSink(
		suffixPath(a.cfg.Output.VideoPath, "_no_dce"),
		suffixPath(a.cfg.Output.ImagesDir, "_no_dce"),
		width, height)
	if err != nil {
		return nil, err
	}

	slog.Info("comparison mode enabled",
		"with_dce", suffixPath(a.cfg.Output.VideoPath, "_with_dce"),
		"no_dce", suffixPath(a.cfg.Output.VideoPath, "_no_dce"),
	)

	return []pipeline.View{
		{Label: "with_dce", Accumulator: main, Sink: withDCE},
		{Label: "no_dce", Accumulator: reference, Sink: noDCE},
	}, nil
}

// buildSink assembles the sink stack for one view: MP4 video and/or per-frame
// images, both when both are configured, Null when neither is.
func (a *App) buildSink(videoPath, imagesDir string, width, height int) (sink.Sink, error) {
	var sinks sink.Multi

	if videoPath != "" {
		vs, err := sink.NewVideoSink(sink.VideoConfig{
			Path:        videoPath,
			Width:       width,
			Height:      height,
			FPS:         a.cfg.Frame.FPS,
			BitrateKbps: a.cfg.Output.BitrateKbps,
		})
		if err != nil {
			return nil, fmt.Errorf("app: create video sink: %w", err)
		}
		sinks = append(sinks, vs)
		slog.Info("writing mp4 video", "path", videoPath)
	}

	if dir := imagesDir; dir != "" {
		is, err := sink.NewImageSink(dir, a.cfg.Output.ImageFormat, a.cfg.Output.JPEGQuality)
		if err != nil {
			return nil, fmt.Errorf("app: create image sink: %w", err)
		}
		sinks = append(sinks, is)
		slog.Info("writing frame images", "dir", dir, "format", a.cfg.Output.ImageFormat)
	}

	var s sink.Sink
	switch len(sinks) {
	case 0:
		s = sink.Null{}
	case 1:
		s = sinks[0]
	default:
		s = sinks
	}
	a.mu.Lock()
	a.sinks = append(a.sinks, s)
	a.mu.Unlock()
	return s, nil
}

// suffixPath inserts a suffix before the file extension:
// capture.mp4 + "_with_dce" → capture_with_dce.mp4. An empty path stays
// empty (the output stays disabled).
func suffixPath(path, suffix string) string {
	if path == "" {
		return ""
	}
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + suffix + ext
}
