// Package sink defines where finished frames go: per-frame image files or an
// MP4 video stream. Sinks consume one 8-bit RGB frame at a time and own
// encoding; a sink failure is reported to the consumer and not retried here —
// retry policy belongs to the sink's own collaborators.
//
// Sinks should not block the consumer for more than one frame period on
// average. A persistently slow sink delays or drops frames (a documented
// degradation mode, not a crash).
package sink

import "github.com/hetk987/Dynamic-Event-Capture/internal/types"

// Sink is the push interface for finished frames.
type Sink interface {
	// Push accepts one finished frame of the fixed (width,height) the sink
	// was created for. The frame's Data is shared by reference and MUST NOT
	// be modified.
	Push(frame types.Frame) error

	// Close finalizes the sink (flushes encoders, closes files). Idempotent.
	Close() error
}

// Func adapts a function to the Sink interface; used in tests and for
// inline frame consumers.
type Func func(frame types.Frame) error

// Push implements Sink.
func (f Func) Push(frame types.Frame) error { return f(frame) }

// Close implements Sink (no-op).
func (Func) Close() error { return nil }

// Multi fans one frame out to several sinks. Push tries every sink even when
// an earlier one fails and returns the first error; Close closes all and
// returns the first error.
type Multi []Sink

// Push implements Sink.
func (m Multi) Push(frame types.Frame) error {
	var first error
	for _, s := range m {
		if err := s.Push(frame); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Close implements Sink.
func (m Multi) Close() error {
	var first error
	for _, s := range m {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Null discards every frame; the display-less default when neither recording
// nor image output is configured.
type Null struct{}

// Push implements Sink.
func (Null) Push(types.Frame) error { return nil }

// Close implements Sink.
func (Null) Close() error { return nil }
