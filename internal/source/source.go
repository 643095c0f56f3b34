// Package source defines the event acquisition contract and two providers:
// a synthetic generator standing in for a live event camera, and a paced
// replay of recorded event batches from disk.
//
// Acquisition is a collaborator of the core pipeline: the producer goroutine
// polls NextBatch in a tight loop with a short idle sleep when a batch comes
// back empty. Camera discovery, device configuration and container formats
// stay behind this interface.
package source

import (
	"errors"

	"github.com/hetk987/Dynamic-Event-Capture/internal/types"
)

// ErrStreamEnded is the terminal signal of a source: the camera disconnected
// or the recorded stream reached its end. The producer stops polling on it;
// the consumer keeps draining whatever remains buffered, then idles.
var ErrStreamEnded = errors.New("source: event stream ended")

// Source is the pull interface for raw event acquisition.
//
// Implementations must guarantee:
//   - NextBatch never blocks for longer than one batch readout; an empty
//     batch (not an error) means "nothing available right now".
//   - Events within a batch and across batches arrive in non-decreasing
//     timestamp order.
//   - After the first ErrStreamEnded, every subsequent call returns
//     ErrStreamEnded (terminal).
//   - Close is idempotent.
type Source interface {
	// NextBatch returns the next batch of raw events, possibly empty.
	// Returns ErrStreamEnded when the stream is exhausted or the device is
	// gone; any other error is likewise terminal for the producer loop.
	NextBatch() (types.EventBatch, error)

	// Resolution returns the sensor width and height in pixels.
	Resolution() (width, height int)

	// Close releases the underlying device or file. Idempotent.
	Close() error
}
