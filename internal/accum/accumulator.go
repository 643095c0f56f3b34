// Package accum implements the per-pixel accumulation of shutter-weighted
// events and the rendering of the accumulated state into 8-bit RGB frames.
//
// One Accumulator serves one view: it is single-owner, single-goroutine state
// driven sequentially by the frame consumer. The comparison mode simply runs
// two accumulators back to back on the same window from the same goroutine.
package accum

import (
	"fmt"
	"math"

	"github.com/hetk987/Dynamic-Event-Capture/internal/shutter"
)

// weightDeadband is the dead-band below which an event's shutter weight is
// treated as zero and the event dropped before accumulation. Avoids float
// noise accumulation from near-zero morlet tails. Applied to |weight| so the
// negative lobes of the morlet wavelet still contribute.
const weightDeadband = 0.01

// Config holds the immutable per-session accumulator parameters.
type Config struct {
	// Width and Height fix the accumulator shape at construction;
	// it is never resized.
	Width  int
	Height int

	// Shutter is the resolved weighting function for this view.
	Shutter shutter.Shutter

	// Brightness is a render-time multiplier (1.0 = normal, >1.0 = brighter).
	// Zero means 1.0.
	Brightness float64

	// DecayRate selects the reset behavior: 1.0 (or 0, the default) is a hard
	// reset to zero; a value in (0,1) multiplies the accumulator on Reset,
	// producing trailing-persistence visuals.
	DecayRate float64
}

// Accumulator holds the two-channel float accumulation state for one view.
//
// Channel layout: pos[y*w+x] sums positive (polarity-up) weighted
// contributions, neg[y*w+x] sums the magnitudes of negative contributions.
// Contributions at the same pixel within one frame sum, never overwrite.
type Accumulator struct {
	width  int
	height int

	sh         shutter.Shutter
	brightness float64
	decayRate  float64

	pos []float32
	neg []float32

	// weights is scratch reused across AddEvents calls so the weighting
	// pre-pass does not allocate per frame.
	weights []float64

	eventCount int
}

// New creates an accumulator with fixed dimensions. Fail-fast on a
// non-positive shape or an out-of-range decay rate.
func New(cfg Config) (*Accumulator, error) {
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("accum: invalid dimensions %dx%d", cfg.Width, cfg.Height)
	}
	if cfg.DecayRate < 0 || cfg.DecayRate > 1 {
		return nil, fmt.Errorf("accum: decay rate %g must be in [0,1]", cfg.DecayRate)
	}

	brightness := cfg.Brightness
	if brightness == 0 {
		brightness = 1.0
	}
	decay := cfg.DecayRate
	if decay == 0 {
		decay = 1.0 // hard reset by default
	}

	n := cfg.Width * cfg.Height
	return &Accumulator{
		width:      cfg.Width,
		height:     cfg.Height,
		sh:         cfg.Shutter,
		brightness: brightness,
		decayRate:  decay,
		pos:        make([]float32, n),
		neg:        make([]float32, n),
	}, nil
}

// Width returns the fixed frame width.
func (a *Accumulator) Width() int { return a.width }

// Height returns the fixed frame height.
func (a *Accumulator) Height() int { return a.height }

// EventCount returns the number of events incorporated since the last reset.
func (a *Accumulator) EventCount() int { return a.eventCount }

// AddEvents applies the shutter weight to each event and accumulates the
// signed, weighted contributions into the per-pixel channels.
//
// Contract:
//   - All four columns must have equal length; a mismatch returns an
//     invalid-input error with nothing accumulated.
//   - Timestamps are in microseconds and converted to absolute seconds
//     (ts·1e-6) before weighting. Absolute time keeps the shutter phase
//     coherent across frames.
//   - Coordinates are raw sensor units; they are saturating-clamped to
//     [0,w-1]×[0,h-1], never discarded, tolerating sensor noise at the edges.
//   - Polarity {0,1} maps to sign {-1,+1}; the signed contribution
//     sign·weight sums its positive part into the positive channel and the
//     magnitude of its negative part into the negative channel.
//
// Returns the count of events actually incorporated (post dead-band), which
// the caller uses to decide whether to emit a frame. The call is atomic at
// the frame boundary: either every passing event of the batch is accumulated
// or, on a contract error, none.
func (a *Accumulator) AddEvents(timestampsUS []int64, xs, ys []int32, polarities []uint8) (int, error) {
	n := len(timestampsUS)
	if len(xs) != n || len(ys) != n || len(polarities) != n {
		return 0, fmt.Errorf("accum: mismatched column lengths ts=%d x=%d y=%d p=%d",
			n, len(xs), len(ys), len(polarities))
	}
	if n == 0 {
		return 0, nil
	}

	// Pre-pass: evaluate the shutter once per event.
	if cap(a.weights) < n {
		a.weights = make([]float64, n)
	}
	weights := a.weights[:n]
	for i, ts := range timestampsUS {
		weights[i] = a.sh.Weight(float64(ts) * 1e-6)
	}

	added := 0
	maxX, maxY := int32(a.width-1), int32(a.height-1)
	for i := 0; i < n; i++ {
		w := weights[i]
		if math.Abs(w) <= weightDeadband {
			continue
		}

		x, y := clampCoord(xs[i], maxX), clampCoord(ys[i], maxY)
		idx := int(y)*a.width + int(x)

		contribution := w
		if polarities[i] == 0 {
			contribution = -w
		}
		if contribution > 0 {
			a.pos[idx] += float32(contribution)
		} else {
			a.neg[idx] += float32(-contribution)
		}
		added++
	}

	a.eventCount += added
	return added, nil
}

// Reset clears the accumulator for the next frame: a hard zero when the decay
// rate is 1.0, otherwise a multiply by the decay factor (soft reset). The
// event counter resets either way.
func (a *Accumulator) Reset() {
	if a.decayRate < 1.0 {
		decay := float32(a.decayRate)
		for i := range a.pos {
			a.pos[i] *= decay
			a.neg[i] *= decay
		}
	} else {
		clear(a.pos)
		clear(a.neg)
	}
	a.eventCount = 0
}

func clampCoord(v, max int32) int32 {
	if v < 0 {
		return 0
	}
	if v > max {
		return max
	}
	return v
}
