package source

import (
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hetk987/Dynamic-Event-Capture/internal/types"
)

// SyntheticConfig configures the synthetic event generator.
type SyntheticConfig struct {
	// Width and Height define the simulated sensor resolution.
	Width  int
	Height int
	// EventRate is the mean events per second across the sensor.
	// Zero means 100 000 ev/s.
	EventRate float64
	// OrbitHz is how many times per second the stimulus circles the frame.
	// Zero means 1 Hz.
	OrbitHz float64
}

// Synthetic generates events of a bright dot orbiting the frame center,
// trailing polarity-0 events behind it and polarity-1 events ahead of it,
// the way a moving edge looks to an event camera. It stands in for the
// live-camera collaborator in the demo binary and in tests.
//
// Timestamps are wall-clock derived and strictly non-decreasing. Each
// NextBatch emits the events for the wall time elapsed since the previous
// call, so the generator self-paces without an internal goroutine.
type Synthetic struct {
	cfg SyntheticConfig

	mu      sync.Mutex
	epoch   time.Time
	lastUS  int64
	batches uint64
	closed  bool
}

// NewSynthetic creates a synthetic source with the given configuration.
func NewSynthetic(cfg SyntheticConfig) *Synthetic {
	if cfg.Width <= 0 {
		cfg.Width = 640
	}
	if cfg.Height <= 0 {
		cfg.Height = 480
	}
	if cfg.EventRate <= 0 {
		cfg.EventRate = 100000
	}
	if cfg.OrbitHz <= 0 {
		cfg.OrbitHz = 1.0
	}
	return &Synthetic{cfg: cfg, epoch: time.Now()}
}

// Resolution implements Source.
func (s *Synthetic) Resolution() (int, int) { return s.cfg.Width, s.cfg.Height }

// NextBatch implements Source. It synthesizes the events that "occurred"
// between the previous call and now, uniformly spread over that span.
func (s *Synthetic) NextBatch() (types.EventBatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return types.EventBatch{}, ErrStreamEnded
	}

	nowUS := time.Since(s.epoch).Microseconds()
	spanUS := nowUS - s.lastUS
	if spanUS <= 0 {
		return types.EventBatch{TraceID: uuid.New().String()}, nil
	}

	n := int(float64(spanUS) * 1e-6 * s.cfg.EventRate)
	if n == 0 {
		// Not enough elapsed time for a single event at the configured rate;
		// leave lastUS untouched so the fraction carries into the next poll.
		return types.EventBatch{TraceID: uuid.New().String()}, nil
	}

	cx := float64(s.cfg.Width) / 2
	cy := float64(s.cfg.Height) / 2
	radius := 0.35 * math.Min(cx, cy) * 2

	events := make([]types.Event, 0, n)
	for i := 0; i < n; i++ {
		tsUS := s.lastUS + spanUS*int64(i)/int64(n)
		t := float64(tsUS) * 1e-6
		angle := 2 * math.Pi * s.cfg.OrbitHz * t

		// Alternate leading (brightening) and trailing (darkening) edge.
		polarity := uint8(i % 2)
		offset := 0.05
		if polarity == 0 {
			offset = -offset
		}

		x := cx + radius*math.Cos(angle+offset) + jitter(tsUS, 3)
		y := cy + radius*math.Sin(angle+offset) + jitter(tsUS*7, 3)

		events = append(events, types.Event{
			TimestampUS: tsUS,
			X:           int32(x),
			Y:           int32(y),
			Polarity:    polarity,
		})
	}

	s.lastUS = nowUS
	s.batches++

	return types.EventBatch{Events: events, TraceID: uuid.New().String()}, nil
}

// Close implements Source. Subsequent NextBatch calls return ErrStreamEnded.
func (s *Synthetic) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// jitter derives a small deterministic pixel offset from the timestamp,
// spreading events around the ideal stimulus position.
func jitter(seed int64, amplitude float64) float64 {
	h := uint64(seed) * 0x9e3779b97f4a7c15
	h ^= h >> 32
	return (float64(h%1000)/1000 - 0.5) * 2 * amplitude
}
