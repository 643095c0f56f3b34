package source

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/hetk987/Dynamic-Event-Capture/internal/recorder"
	"github.com/hetk987/Dynamic-Event-Capture/internal/types"
)

// ReplayConfig configures playback of a recorded event stream.
type ReplayConfig struct {
	// Path is the recording file written by the recorder package.
	Path string
	// Pace replays batches at their original event-time spacing. When false,
	// batches are handed out as fast as the producer polls, the way an
	// offline re-render would consume them.
	Pace bool
}

// Replay reads a recorded event stream back into the pipeline.
//
// Pacing is non-blocking: when the next batch's event time is still ahead of
// the replay wall clock, NextBatch returns an empty batch and the producer's
// idle sleep provides the delay. NextBatch therefore never sleeps itself.
type Replay struct {
	cfg    ReplayConfig
	header recorder.Header

	mu      sync.Mutex
	file    *os.File
	dec     *msgpack.Decoder
	started time.Time
	firstUS int64 // event timestamp of the first replayed batch, -1 until seen
	pending *types.EventBatch
	ended   bool
}

// NewReplay opens a recording and validates its header, fail-fast.
func NewReplay(cfg ReplayConfig) (*Replay, error) {
	file, err := os.Open(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("source: failed to open recording: %w", err)
	}

	dec := msgpack.NewDecoder(file)
	var header recorder.Header
	if err := dec.Decode(&header); err != nil {
		file.Close()
		return nil, fmt.Errorf("source: failed to read recording header: %w", err)
	}
	if header.Version != recorder.FormatVersion {
		file.Close()
		return nil, fmt.Errorf("source: unsupported recording version %d (want %d)",
			header.Version, recorder.FormatVersion)
	}
	if header.Width <= 0 || header.Height <= 0 {
		file.Close()
		return nil, fmt.Errorf("source: recording has invalid resolution %dx%d",
			header.Width, header.Height)
	}

	return &Replay{
		cfg:     cfg,
		header:  header,
		file:    file,
		dec:     dec,
		started: time.Now(),
		firstUS: -1,
	}, nil
}

// Resolution implements Source, from the recording header.
func (r *Replay) Resolution() (int, int) { return r.header.Width, r.header.Height }

// NextBatch implements Source.
func (r *Replay) NextBatch() (types.EventBatch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.ended {
		return types.EventBatch{}, ErrStreamEnded
	}

	batch, err := r.nextPending()
	if err != nil {
		r.ended = true
		if errors.Is(err, io.EOF) {
			return types.EventBatch{}, ErrStreamEnded
		}
		return types.EventBatch{}, fmt.Errorf("source: failed to decode batch: %w", err)
	}

	if r.cfg.Pace && !r.due(batch) {
		// Not yet due: hold the batch and let the producer idle.
		r.pending = &batch
		return types.EventBatch{}, nil
	}

	r.pending = nil
	return batch, nil
}

// nextPending returns the held batch if one exists, else decodes the next
// record from the file.
func (r *Replay) nextPending() (types.EventBatch, error) {
	if r.pending != nil {
		return *r.pending, nil
	}
	var batch types.EventBatch
	if err := r.dec.Decode(&batch); err != nil {
		return types.EventBatch{}, err
	}
	return batch, nil
}

// due reports whether the batch's event time has been reached on the replay
// wall clock. The first batch anchors event time to wall time.
func (r *Replay) due(batch types.EventBatch) bool {
	if batch.Len() == 0 {
		return true
	}
	ts := batch.Events[0].TimestampUS
	if r.firstUS < 0 {
		r.firstUS = ts
		r.started = time.Now()
		return true
	}
	elapsedUS := time.Since(r.started).Microseconds()
	return ts-r.firstUS <= elapsedUS
}

// Close implements Source. Idempotent.
func (r *Replay) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	r.ended = true
	if err != nil {
		return fmt.Errorf("source: failed to close recording: %w", err)
	}
	return nil
}
