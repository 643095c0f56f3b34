package buffer

import "github.com/hetk987/Dynamic-Event-Capture/internal/types"

// Window is one frame interval's worth of events, columnized into contiguous
// arrays so the accumulator hot loop runs over flat slices. All four columns
// have equal length Count.
type Window struct {
	// Count is the number of events selected. It is also the prefix length
	// the caller must hand to EventBuffer.RemovePrefix after accumulation:
	// extraction is pure and never mutates the buffer.
	Count int

	TimestampsUS []int64
	Xs           []int32
	Ys           []int32
	Polarities   []uint8
}

// Empty reports whether the window selected no events ("no frame yet").
func (w Window) Empty() bool { return w.Count == 0 }

// ExtractWindow selects the prefix of a timestamp-ordered snapshot that falls
// within one frame interval, starting at the oldest buffered timestamp.
//
// Contract:
//   - snapshot is ordered by non-decreasing timestamp (producer guarantee).
//   - intervalSec is the frame interval Δ in seconds.
//   - An empty snapshot yields an empty window, a documented "no data yet"
//     outcome, never an error.
//   - A single event trivially forms a window of size 1.
//
// Selection rule: every event e with e.TimestampUS < t0 + Δ·1e6, where t0 is
// the first (oldest) timestamp of the snapshot. Because the snapshot is
// ordered, the selection is a prefix and scanning stops at the first event
// past the bound.
func ExtractWindow(snapshot []types.Event, intervalSec float64) Window {
	if len(snapshot) == 0 {
		return Window{}
	}

	tEnd := snapshot[0].TimestampUS + int64(intervalSec*1e6)

	n := len(snapshot)
	for i, ev := range snapshot {
		if ev.TimestampUS >= tEnd {
			n = i
			break
		}
	}
	// t0 < tEnd always, so n ≥ 1 here.

	w := Window{
		Count:        n,
		TimestampsUS: make([]int64, n),
		Xs:           make([]int32, n),
		Ys:           make([]int32, n),
		Polarities:   make([]uint8, n),
	}
	for i := 0; i < n; i++ {
		w.TimestampsUS[i] = snapshot[i].TimestampUS
		w.Xs[i] = snapshot[i].X
		w.Ys[i] = snapshot[i].Y
		w.Polarities[i] = snapshot[i].Polarity
	}
	return w
}
