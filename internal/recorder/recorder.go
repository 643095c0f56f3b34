// Package recorder persists raw event batches to disk as a msgpack stream,
// the counterpart of recorded sensor files on the acquisition side. A
// recording starts with a Header record followed by one record per batch;
// source.Replay plays recordings back into the pipeline.
package recorder

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/hetk987/Dynamic-Event-Capture/internal/types"
)

// FormatVersion is the recording format version written into the header.
const FormatVersion = 1

// Header is the first record of a recording.
type Header struct {
	Version int `msgpack:"version"`
	Width   int `msgpack:"width"`
	Height  int `msgpack:"height"`
}

// Recorder writes event batches to a recording file.
//
// Thread-safety: WriteBatch is safe for concurrent use, though the pipeline
// drives it from the single producer goroutine.
type Recorder struct {
	mu      sync.Mutex
	file    *os.File
	bw      *bufio.Writer
	enc     *msgpack.Encoder
	batches uint64
	events  uint64
	closed  bool
}

// Create opens a new recording at path, creating parent directories as
// needed, and writes the header.
func Create(path string, width, height int) (*Recorder, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("recorder: failed to create output directory: %w", err)
		}
	}

	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("recorder: failed to create recording: %w", err)
	}

	bw := bufio.NewWriter(file)
	enc := msgpack.NewEncoder(bw)
	if err := enc.Encode(Header{Version: FormatVersion, Width: width, Height: height}); err != nil {
		file.Close()
		return nil, fmt.Errorf("recorder: failed to write header: %w", err)
	}

	return &Recorder{file: file, bw: bw, enc: enc}, nil
}

// WriteBatch appends one batch record. Empty batches are skipped: they carry
// no information worth replaying.
func (r *Recorder) WriteBatch(batch types.EventBatch) error {
	if batch.Len() == 0 {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return fmt.Errorf("recorder: recording already closed")
	}
	if err := r.enc.Encode(batch); err != nil {
		return fmt.Errorf("recorder: failed to write batch: %w", err)
	}
	r.batches++
	r.events += uint64(batch.Len())
	return nil
}

// Stats is a snapshot of recording counters.
type Stats struct {
	Batches uint64
	Events  uint64
}

// Stats returns the counters written so far.
func (r *Recorder) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Stats{Batches: r.batches, Events: r.events}
}

// Close flushes and closes the recording. Idempotent.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	if err := r.bw.Flush(); err != nil {
		r.file.Close()
		return fmt.Errorf("recorder: failed to flush recording: %w", err)
	}
	if err := r.file.Close(); err != nil {
		return fmt.Errorf("recorder: failed to close recording: %w", err)
	}
	return nil
}
