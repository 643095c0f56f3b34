package sink

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"github.com/hetk987/Dynamic-Event-Capture/internal/types"
)

// VideoConfig contains configuration for the MP4 video sink.
type VideoConfig struct {
	// Path is the output .mp4 file.
	Path string
	// Width and Height are the fixed frame dimensions; every pushed frame
	// must match.
	Width  int
	Height int
	// FPS is the video framerate (integer frames per second).
	FPS int
	// BitrateKbps is the x264 target bitrate. Zero means 2048.
	BitrateKbps int
}

// VideoSink encodes pushed RGB frames into an H.264 MP4 file through a
// GStreamer pipeline:
//
//	appsrc → videoconvert → x264enc → mp4mux → filesink
//
// The pipeline is created and set to PLAYING at construction (fail-fast:
// a missing element or unwritable path surfaces before streaming begins).
// Close sends EOS and blocks until the muxer finalizes the container; an MP4
// written without the EOS handshake is truncated and unplayable.
type VideoSink struct {
	cfg VideoConfig

	pipeline *gst.Pipeline
	src      *app.Source

	mu     sync.Mutex
	pushed uint64
	closed bool
}

// NewVideoSink builds and starts the encoding pipeline.
func NewVideoSink(cfg VideoConfig) (*VideoSink, error) {
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("sink: invalid video dimensions %dx%d", cfg.Width, cfg.Height)
	}
	if cfg.FPS <= 0 {
		return nil, fmt.Errorf("sink: invalid video fps %d", cfg.FPS)
	}
	if cfg.BitrateKbps == 0 {
		cfg.BitrateKbps = 2048
	}

	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("sink: failed to create output directory: %w", err)
		}
	}

	// Initialize GStreamer (safe to call multiple times).
	gst.Init(nil)

	pipeline, err := gst.NewPipeline("")
	if err != nil {
		return nil, fmt.Errorf("sink: failed to create pipeline: %w", err)
	}

	appsrc, err := app.NewAppSrc()
	if err != nil {
		return nil, fmt.Errorf("sink: failed to create appsrc: %w", err)
	}
	capsStr := fmt.Sprintf("video/x-raw,format=RGB,width=%d,height=%d,framerate=%d/1",
		cfg.Width, cfg.Height, cfg.FPS)
	appsrc.SetCaps(gst.NewCapsFromString(capsStr))
	appsrc.SetProperty("is-live", false)
	appsrc.SetProperty("block", true) // backpressure into Push, not unbounded queueing
	appsrc.SetProperty("format", 3)   // GST_FORMAT_TIME
	appsrc.SetProperty("do-timestamp", false)

	converter, err := gst.NewElement("videoconvert")
	if err != nil {
		return nil, fmt.Errorf("sink: failed to create videoconvert: %w", err)
	}

	encoder, err := gst.NewElement("x264enc")
	if err != nil {
		return nil, fmt.Errorf("sink: failed to create x264enc: %w", err)
	}
	encoder.SetProperty("bitrate", uint(cfg.BitrateKbps))
	encoder.SetProperty("speed-preset", 2) // superfast: encoding must not stall the consumer
	encoder.SetProperty("key-int-max", uint(cfg.FPS*2))

	muxer, err := gst.NewElement("mp4mux")
	if err != nil {
		return nil, fmt.Errorf("sink: failed to create mp4mux: %w", err)
	}

	filesink, err := gst.NewElement("filesink")
	if err != nil {
		return nil, fmt.Errorf("sink: failed to create filesink: %w", err)
	}
	filesink.SetProperty("location", cfg.Path)
	filesink.SetProperty("sync", false)

	pipeline.AddMany(appsrc.Element, converter, encoder, muxer, filesink)
	if err := gst.ElementLinkMany(appsrc.Element, converter, encoder, muxer, filesink); err != nil {
		return nil, fmt.Errorf("sink: failed to link encoding pipeline: %w", err)
	}

	if err := pipeline.SetState(gst.StatePlaying); err != nil {
		return nil, fmt.Errorf("sink: failed to start encoding pipeline: %w", err)
	}

	slog.Info("video sink started",
		"path", cfg.Path,
		"resolution", fmt.Sprintf("%dx%d", cfg.Width, cfg.Height),
		"fps", cfg.FPS,
		"bitrate_kbps", cfg.BitrateKbps,
	)

	return &VideoSink{cfg: cfg, pipeline: pipeline, src: appsrc}, nil
}

// Push implements Sink: wraps the frame bytes into a timestamped GStreamer
// buffer and feeds the encoder. Frame timing follows the nominal FPS, not
// wall clock, so a stalling consumer produces a slow video rather than one
// with gaps.
func (s *VideoSink) Push(frame types.Frame) error {
	expected := s.cfg.Width * s.cfg.Height * 3
	if len(frame.Data) != expected {
		return fmt.Errorf("sink: frame data size %d does not match %dx%d RGB",
			len(frame.Data), s.cfg.Width, s.cfg.Height)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("sink: video sink already closed")
	}

	frameDuration := time.Second / time.Duration(s.cfg.FPS)
	buffer := gst.NewBufferFromBytes(frame.Data)
	buffer.SetPresentationTimestamp(time.Duration(s.pushed) * frameDuration)
	buffer.SetDuration(frameDuration)

	if ret := s.src.PushBuffer(buffer); ret != gst.FlowOK {
		return fmt.Errorf("sink: encoder rejected frame %d: flow %v", frame.Seq, ret)
	}

	s.pushed++
	return nil
}

// Pushed returns the number of frames accepted by the encoder so far.
func (s *VideoSink) Pushed() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pushed
}

// Close implements Sink: sends EOS, waits for the muxer to finalize the MP4,
// then tears the pipeline down. Idempotent.
func (s *VideoSink) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	pushed := s.pushed
	s.mu.Unlock()

	s.src.EndStream()

	// Block until the muxer has written the container trailer.
	err := s.waitForEOS(10 * time.Second)
	s.pipeline.SetState(gst.StateNull)
	if err != nil {
		return err
	}

	slog.Info("video sink closed", "path", s.cfg.Path, "frames_written", pushed)
	return nil
}

// waitForEOS polls the pipeline bus until EOS, an error, or the deadline.
func (s *VideoSink) waitForEOS(timeout time.Duration) error {
	bus := s.pipeline.GetPipelineBus()
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		msg := bus.TimedPop(50 * time.Millisecond)
		if msg == nil {
			continue
		}
		switch msg.Type() {
		case gst.MessageEOS:
			return nil
		case gst.MessageError:
			gerr := msg.ParseError()
			return fmt.Errorf("sink: encoding failed: %s", gerr.Error())
		}
	}
	return fmt.Errorf("sink: timed out waiting for MP4 finalization")
}
