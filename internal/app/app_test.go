package app

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/hetk987/Dynamic-Event-Capture/internal/config"
)

func TestSuffixPath(t *testing.T) {
	cases := []struct {
		path, suffix, want string
	}{
		{"capture.mp4", "_with_dce", "capture_with_dce.mp4"},
		{"out/run.mp4", "_no_dce", "out/run_no_dce.mp4"},
		{"frames", "_with_dce", "frames_with_dce"},
		{"", "_with_dce", ""},
	}
	for _, c := range cases {
		if got := suffixPath(c.path, c.suffix); got != c.want {
			t.Errorf("suffixPath(%q, %q) = %q, want %q", c.path, c.suffix, got, c.want)
		}
	}
}

func TestRunAndShutdownWithSyntheticSource(t *testing.T) {
	cfg := config.Default()
	cfg.Frame.Width = 32
	cfg.Frame.Height = 24
	cfg.Frame.FPS = 50
	cfg.Source.EventRate = 5000
	if err := config.Validate(cfg); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	a := NewWithConfig(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	go func() { runDone <- a.Run(ctx) }()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if a.Stats().FramesEmitted > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if a.Stats().FramesEmitted == 0 {
		cancel()
		t.Fatal("no frames emitted before deadline")
	}

	cancel()
	select {
	case err := <-runDone:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer shutdownCancel()
	if err := a.Shutdown(shutdownCtx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	// Idempotent.
	if err := a.Shutdown(shutdownCtx); err != nil {
		t.Fatalf("second Shutdown: %v", err)
	}
}

// TestStatsConcurrentWithRun polls Stats from several goroutines while Run
// assembles and starts the pipeline. Exercised under the race detector, it
// pins the lock discipline on the App's component fields.
func TestStatsConcurrentWithRun(t *testing.T) {
	cfg := config.Default()
	cfg.Frame.Width = 16
	cfg.Frame.Height = 16
	cfg.Frame.FPS = 50
	cfg.Source.EventRate = 5000

	a := NewWithConfig(cfg)
	ctx, cancel := context.WithCancel(context.Background())

	runDone := make(chan error, 1)
	go func() { runDone <- a.Run(ctx) }()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			deadline := time.Now().Add(500 * time.Millisecond)
			for time.Now().Before(deadline) {
				_ = a.Stats()
			}
		}()
	}
	wg.Wait()

	cancel()
	select {
	case err := <-runDone:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer shutdownCancel()
	if err := a.Shutdown(shutdownCtx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
}

func TestRunTwiceRejected(t *testing.T) {
	cfg := config.Default()
	cfg.Frame.Width = 16
	cfg.Frame.Height = 16

	a := NewWithConfig(cfg)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go a.Run(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && a.Stats().FramesEmitted == 0 {
		time.Sleep(10 * time.Millisecond)
	}

	second := make(chan error, 1)
	go func() { second <- a.Run(ctx) }()
	select {
	case err := <-second:
		if err == nil {
			t.Fatal("concurrent Run accepted")
		}
	case <-time.After(time.Second):
		t.Fatal("concurrent Run blocked instead of failing")
	}

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer shutdownCancel()
	if err := a.Shutdown(shutdownCtx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
}
