// Package types holds the data model shared across the event pipeline.
package types

import "time"

// Event is a single asynchronous brightness-change report from an event
// camera. Immutable once produced: the producer appends events to the buffer
// in non-decreasing timestamp order and never touches them again.
type Event struct {
	// TimestampUS is the sensor timestamp in microseconds (monotonic,
	// non-decreasing per producer).
	TimestampUS int64
	// X is the pixel column in raw sensor units (not yet clipped).
	X int32
	// Y is the pixel row in raw sensor units (not yet clipped).
	Y int32
	// Polarity is the sign of the brightness change: 1 = increase, 0 = decrease.
	Polarity uint8
}

// EventBatch is a batch of raw events as pulled from a source.
// Events inside a batch are ordered by non-decreasing timestamp.
type EventBatch struct {
	// Events are the raw events of this batch, possibly empty.
	Events []Event `msgpack:"events"`
	// TraceID is a unique identifier for tracing a batch across the pipeline.
	TraceID string `msgpack:"trace_id"`
}

// Len returns the number of events in the batch.
func (b EventBatch) Len() int { return len(b.Events) }

// Frame is a rendered 8-bit RGB frame ready for a sink (display, encoder,
// image writer). Data is width*height*3 bytes, row-major, RGB order.
//
// Frames are derived read-only from accumulator state at render time and have
// no independent lifecycle. Sinks MUST NOT modify Data (shared by reference).
type Frame struct {
	// Seq is the monotonic sequence number assigned by the consumer.
	Seq uint64
	// Timestamp is when the frame was rendered (processing time).
	Timestamp time.Time
	// Width in pixels
	Width int
	// Height in pixels
	Height int
	// Data contains the frame data (RGB, 3 bytes per pixel).
	Data []byte
	// EventCount is the number of weighted events incorporated in this frame.
	EventCount int
	// TraceID is a unique identifier for tracing the frame to its sinks.
	TraceID string
}
