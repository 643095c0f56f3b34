package source

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/hetk987/Dynamic-Event-Capture/internal/recorder"
	"github.com/hetk987/Dynamic-Event-Capture/internal/types"
)

func writeRecording(t *testing.T, batches []types.EventBatch) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "events.dcerec")
	rec, err := recorder.Create(path, 320, 240)
	if err != nil {
		t.Fatalf("recorder.Create() failed: %v", err)
	}
	for _, b := range batches {
		if err := rec.WriteBatch(b); err != nil {
			t.Fatalf("WriteBatch() failed: %v", err)
		}
	}
	if err := rec.Close(); err != nil {
		t.Fatalf("recorder Close() failed: %v", err)
	}
	return path
}

// TestReplayRoundTrip validates a recorded stream replays with identical
// events, ordering and resolution, ending with the terminal signal.
func TestReplayRoundTrip(t *testing.T) {
	recorded := []types.EventBatch{
		{TraceID: "a", Events: []types.Event{
			{TimestampUS: 0, X: 1, Y: 2, Polarity: 1},
			{TimestampUS: 100, X: 3, Y: 4, Polarity: 0},
		}},
		{TraceID: "b", Events: []types.Event{
			{TimestampUS: 20000, X: 5, Y: 6, Polarity: 1},
		}},
	}
	path := writeRecording(t, recorded)

	r, err := NewReplay(ReplayConfig{Path: path})
	if err != nil {
		t.Fatalf("NewReplay() failed: %v", err)
	}
	defer r.Close()

	if w, h := r.Resolution(); w != 320 || h != 240 {
		t.Errorf("Resolution() = %dx%d, want 320x240 from header", w, h)
	}

	var replayed []types.Event
	for {
		batch, err := r.NextBatch()
		if errors.Is(err, ErrStreamEnded) {
			break
		}
		if err != nil {
			t.Fatalf("NextBatch() failed: %v", err)
		}
		replayed = append(replayed, batch.Events...)
	}

	want := append(recorded[0].Events, recorded[1].Events...)
	if len(replayed) != len(want) {
		t.Fatalf("replayed %d events, want %d", len(replayed), len(want))
	}
	for i := range want {
		if replayed[i] != want[i] {
			t.Errorf("event[%d] = %+v, want %+v", i, replayed[i], want[i])
		}
	}

	// Terminal signal must stick.
	if _, err := r.NextBatch(); !errors.Is(err, ErrStreamEnded) {
		t.Errorf("NextBatch() after end = %v, want ErrStreamEnded", err)
	}
}

// TestReplayEmptyBatchesSkipped validates the recorder drops empty batches so
// replay yields only payload-carrying records.
func TestReplayEmptyBatchesSkipped(t *testing.T) {
	path := writeRecording(t, []types.EventBatch{
		{TraceID: "empty"},
		{TraceID: "real", Events: []types.Event{{TimestampUS: 5, X: 1, Y: 1, Polarity: 1}}},
	})

	r, err := NewReplay(ReplayConfig{Path: path})
	if err != nil {
		t.Fatalf("NewReplay() failed: %v", err)
	}
	defer r.Close()

	batch, err := r.NextBatch()
	if err != nil {
		t.Fatalf("NextBatch() failed: %v", err)
	}
	if batch.Len() != 1 || batch.TraceID != "real" {
		t.Errorf("first replayed batch = %+v, want the single non-empty record", batch)
	}
}

// TestReplayPacingHoldsFutureBatches validates paced replay returns empty
// batches (not blocking, not errors) while a batch's event time is still
// ahead of the replay clock.
func TestReplayPacingHoldsFutureBatches(t *testing.T) {
	path := writeRecording(t, []types.EventBatch{
		{TraceID: "now", Events: []types.Event{{TimestampUS: 0, X: 1, Y: 1, Polarity: 1}}},
		// 10 seconds of event time later: must not be handed out immediately.
		{TraceID: "later", Events: []types.Event{{TimestampUS: 10_000_000, X: 2, Y: 2, Polarity: 0}}},
	})

	r, err := NewReplay(ReplayConfig{Path: path, Pace: true})
	if err != nil {
		t.Fatalf("NewReplay() failed: %v", err)
	}
	defer r.Close()

	first, err := r.NextBatch()
	if err != nil {
		t.Fatalf("NextBatch() failed: %v", err)
	}
	if first.TraceID != "now" {
		t.Fatalf("first batch = %q, want immediate release of the anchor batch", first.TraceID)
	}

	held, err := r.NextBatch()
	if err != nil {
		t.Fatalf("NextBatch() failed: %v", err)
	}
	if held.Len() != 0 {
		t.Errorf("future batch released early: %+v", held)
	}
}

// TestReplayMissingFile validates fail-fast open errors.
func TestReplayMissingFile(t *testing.T) {
	if _, err := NewReplay(ReplayConfig{Path: "/nonexistent/events.dcerec"}); err == nil {
		t.Error("NewReplay() on missing file succeeded, want error")
	}
}
