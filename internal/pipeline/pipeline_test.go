package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hetk987/Dynamic-Event-Capture/internal/accum"
	"github.com/hetk987/Dynamic-Event-Capture/internal/shutter"
	"github.com/hetk987/Dynamic-Event-Capture/internal/sink"
	"github.com/hetk987/Dynamic-Event-Capture/internal/source"
	"github.com/hetk987/Dynamic-Event-Capture/internal/types"
)

// stubSource replays a fixed list of batches, then signals stream end.
type stubSource struct {
	mu      sync.Mutex
	batches []types.EventBatch
	idx     int
	width   int
	height  int
}

func (s *stubSource) NextBatch() (types.EventBatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.idx >= len(s.batches) {
		return types.EventBatch{}, source.ErrStreamEnded
	}
	b := s.batches[s.idx]
	s.idx++
	return b, nil
}

func (s *stubSource) Resolution() (int, int) { return s.width, s.height }
func (s *stubSource) Close() error           { return nil }

// captureSink collects pushed frames under a lock.
type captureSink struct {
	mu     sync.Mutex
	frames []types.Frame
}

func (c *captureSink) push(f types.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = append(c.frames, f)
	return nil
}

func (c *captureSink) snapshot() []types.Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]types.Frame(nil), c.frames...)
}

func newTestAccumulator(t *testing.T, w, h int) *accum.Accumulator {
	t.Helper()
	sh, err := shutter.New(shutter.Config{Kind: shutter.NoShutter})
	if err != nil {
		t.Fatalf("shutter.New: %v", err)
	}
	a, err := accum.New(accum.Config{Width: w, Height: h, Shutter: sh})
	if err != nil {
		t.Fatalf("accum.New: %v", err)
	}
	return a
}

// waitUntil polls cond until it holds or the deadline passes.
func waitUntil(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for: %s", msg)
}

func makeBatch(n int, startUS int64) types.EventBatch {
	events := make([]types.Event, n)
	for i := range events {
		events[i] = types.Event{
			TimestampUS: startUS + int64(i),
			X:           int32(i % 8),
			Y:           int32(i % 6),
			Polarity:    1,
		}
	}
	return types.EventBatch{Events: events, TraceID: "test-batch"}
}

func TestPipelineEmitsFramesAndDrainsAfterStreamEnd(t *testing.T) {
	src := &stubSource{
		batches: []types.EventBatch{makeBatch(48, 0)},
		width:   8, height: 6,
	}
	capture := &captureSink{}

	p, err := New(Options{FPS: 100}, src, View{
		Label:       "main",
		Accumulator: newTestAccumulator(t, 8, 6),
		Sink:        sink.Func(capture.push),
		Normalize:   true,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Stop()

	// The producer hits stream end after one batch; the consumer must still
	// drain the buffered events into at least one frame.
	waitUntil(t, 2*time.Second, func() bool {
		return len(capture.snapshot()) > 0
	}, "a frame to be emitted")

	waitUntil(t, 2*time.Second, func() bool {
		return p.Stats().StreamEnded
	}, "stream end to be observed")

	if err := p.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	frames := capture.snapshot()
	f := frames[0]
	if f.Width != 8 || f.Height != 6 {
		t.Fatalf("frame dimensions = %dx%d, want 8x6", f.Width, f.Height)
	}
	if len(f.Data) != 8*6*3 {
		t.Fatalf("frame data length = %d, want %d", len(f.Data), 8*6*3)
	}
	if f.EventCount == 0 {
		t.Fatal("frame reports zero accumulated events")
	}
	if f.TraceID == "" {
		t.Fatal("frame missing trace id")
	}

	// Positive polarity lands on the green channel.
	green := false
	for i := 0; i < len(f.Data); i += 3 {
		if f.Data[i+1] > 0 {
			green = true
			break
		}
	}
	if !green {
		t.Fatal("expected green pixels from positive-polarity events")
	}

	st := p.Stats()
	if st.EventsIngested != 48 {
		t.Fatalf("EventsIngested = %d, want 48", st.EventsIngested)
	}
	if st.FramesEmitted == 0 {
		t.Fatal("FramesEmitted = 0")
	}
}

func TestComparisonViewsStayFrameSynchronized(t *testing.T) {
	src := &stubSource{
		batches: []types.EventBatch{makeBatch(30, 0), makeBatch(30, 100)},
		width:   8, height: 6,
	}
	capA := &captureSink{}
	capB := &captureSink{}

	p, err := New(Options{FPS: 100}, src,
		View{Label: "dce", Accumulator: newTestAccumulator(t, 8, 6), Sink: sink.Func(capA.push)},
		View{Label: "no_dce", Accumulator: newTestAccumulator(t, 8, 6), Sink: sink.Func(capB.push)},
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Stop()

	waitUntil(t, 2*time.Second, func() bool {
		return len(capA.snapshot()) > 0 && len(capB.snapshot()) > 0
	}, "both views to emit")

	if err := p.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	framesA, framesB := capA.snapshot(), capB.snapshot()
	if len(framesA) != len(framesB) {
		t.Fatalf("view frame counts diverged: %d vs %d", len(framesA), len(framesB))
	}
	for i := range framesA {
		if framesA[i].Seq != framesB[i].Seq {
			t.Fatalf("frame %d: seq %d vs %d", i, framesA[i].Seq, framesB[i].Seq)
		}
	}
}

func TestDownsampleStride(t *testing.T) {
	src := &stubSource{
		batches: []types.EventBatch{makeBatch(100, 0)},
		width:   8, height: 6,
	}
	capture := &captureSink{}

	p, err := New(Options{FPS: 100, Downsample: 4}, src, View{
		Label:       "main",
		Accumulator: newTestAccumulator(t, 8, 6),
		Sink:        sink.Func(capture.push),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Stop()

	waitUntil(t, 2*time.Second, func() bool {
		return p.Stats().StreamEnded && p.Stats().EventsIngested > 0
	}, "downsampled batch to be ingested")

	st := p.Stats()
	if st.EventsIngested != 25 {
		t.Fatalf("EventsIngested = %d, want 25 (stride 4 over 100)", st.EventsIngested)
	}
	if st.EventsDiscarded != 75 {
		t.Fatalf("EventsDiscarded = %d, want 75", st.EventsDiscarded)
	}
}

// failingAccumulator rejects every window it is handed.
type failingAccumulator struct{ w, h int }

func (f *failingAccumulator) AddEvents([]int64, []int32, []int32, []uint8) (int, error) {
	return 0, errors.New("rejected")
}
func (f *failingAccumulator) Frame(bool) []byte { return make([]byte, f.w*f.h*3) }
func (f *failingAccumulator) Reset()            {}
func (f *failingAccumulator) Width() int        { return f.w }
func (f *failingAccumulator) Height() int       { return f.h }

func TestRejectedWindowIsEvicted(t *testing.T) {
	src := &stubSource{
		batches: []types.EventBatch{makeBatch(20, 0)},
		width:   8, height: 6,
	}
	capture := &captureSink{}

	p, err := New(Options{FPS: 100}, src, View{
		Label:       "main",
		Accumulator: &failingAccumulator{w: 8, h: 6},
		Sink:        sink.Func(capture.push),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Stop()

	// The rejected window must still be evicted, or the consumer would
	// re-extract the same events on every tick forever.
	waitUntil(t, 2*time.Second, func() bool {
		st := p.Stats()
		return st.StreamEnded && st.EventsIngested == 20 && st.BufferLen == 0
	}, "rejected window to be evicted")

	if frames := capture.snapshot(); len(frames) != 0 {
		t.Fatalf("emitted %d frames from rejected windows, want 0", len(frames))
	}
}

func TestStartTwiceRejected(t *testing.T) {
	src := &stubSource{width: 8, height: 6}
	p, err := New(Options{FPS: 50}, src, View{
		Label:       "main",
		Accumulator: newTestAccumulator(t, 8, 6),
		Sink:        sink.Null{},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	defer p.Stop()

	if err := p.Start(context.Background()); err == nil {
		t.Fatal("second Start succeeded, want error")
	}
}

func TestStopWithoutStart(t *testing.T) {
	src := &stubSource{width: 8, height: 6}
	p, err := New(Options{FPS: 50}, src, View{
		Label:       "main",
		Accumulator: newTestAccumulator(t, 8, 6),
		Sink:        sink.Null{},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := p.Stop(); err != nil {
		t.Fatalf("Stop before Start: %v", err)
	}
}

func TestNewValidation(t *testing.T) {
	src := &stubSource{width: 8, height: 6}
	acc := newTestAccumulator(t, 8, 6)

	if _, err := New(Options{FPS: 0}, src, View{Accumulator: acc, Sink: sink.Null{}}); err == nil {
		t.Fatal("zero fps accepted")
	}
	if _, err := New(Options{FPS: 30}, src); err == nil {
		t.Fatal("no views accepted")
	}
	other := newTestAccumulator(t, 4, 4)
	if _, err := New(Options{FPS: 30}, src,
		View{Label: "a", Accumulator: acc, Sink: sink.Null{}},
		View{Label: "b", Accumulator: other, Sink: sink.Null{}},
	); err == nil {
		t.Fatal("mismatched view dimensions accepted")
	}
}
