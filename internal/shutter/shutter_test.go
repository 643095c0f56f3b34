package shutter

import (
	"math"
	"testing"
)

// TestBoxcarWeight validates the open/closed window including periodicity
// and floored-modulo behavior for negative timestamps.
//
// Scenario (period=0.1, duty=0.25, phase=0):
//   - t=0.0    → open  (1.0)
//   - t=0.024  → open  (just inside duty window)
//   - t=0.025  → closed (boundary is exclusive)
//   - t=0.125  → open  (second period)
//   - t=-0.001 → same as t=0.099 → closed
func TestBoxcarWeight(t *testing.T) {
	s, err := New(Config{Kind: Boxcar, Period: 0.1, Duty: 0.25})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	cases := []struct {
		t    float64
		want float64
	}{
		{0.0, 1.0},
		{0.024, 1.0},
		{0.025, 0.0},
		{0.099, 0.0},
		{0.1, 1.0},
		{0.125, 1.0},
		{-0.001, 0.0}, // floored modulo: equivalent to t=0.099
		{-0.09, 1.0},  // equivalent to t=0.01
	}

	for _, tc := range cases {
		if got := s.Weight(tc.t); got != tc.want {
			t.Errorf("Weight(%g) = %g, want %g", tc.t, got, tc.want)
		}
	}
}

// TestBoxcarNegativeMatchesWrapped validates weight(-ε) == weight(period-ε)
// for a range of offsets (floored-modulo correctness property).
func TestBoxcarNegativeMatchesWrapped(t *testing.T) {
	s, err := New(Config{Kind: Boxcar, Period: 0.1, Duty: 0.25})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	for _, eps := range []float64{0.001, 0.01, 0.05, 0.09} {
		neg := s.Weight(-eps)
		wrapped := s.Weight(0.1 - eps)
		if neg != wrapped {
			t.Errorf("Weight(%g) = %g, Weight(%g) = %g; floored modulo must make them equal",
				-eps, neg, 0.1-eps, wrapped)
		}
	}
}

// TestBoxcarPhase validates the phase offset shifts the open window.
func TestBoxcarPhase(t *testing.T) {
	s, err := New(Config{Kind: Boxcar, Period: 0.1, Duty: 0.25, Phase: 0.05})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	if got := s.Weight(0.0); got != 0.0 {
		t.Errorf("Weight(0) with phase 0.05 = %g, want 0 (window not yet open)", got)
	}
	if got := s.Weight(0.05); got != 1.0 {
		t.Errorf("Weight(0.05) with phase 0.05 = %g, want 1 (window opens at phase)", got)
	}
}

// TestMorletWeight checks the analytic form at a few points.
func TestMorletWeight(t *testing.T) {
	const (
		freq  = 100.0
		sigma = 0.01
	)
	s, err := New(Config{Kind: Morlet, Frequency: freq, Sigma: sigma})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	// At t=0 the envelope and cosine are both 1.
	if got := s.Weight(0); got != 1.0 {
		t.Errorf("Weight(0) = %g, want 1.0", got)
	}

	// Spot-check against the closed form.
	for _, tv := range []float64{0.001, -0.0025, 0.005, 0.02} {
		want := math.Exp(-0.5*(tv/sigma)*(tv/sigma)) * math.Cos(2*math.Pi*freq*tv)
		if got := s.Weight(tv); math.Abs(got-want) > 1e-12 {
			t.Errorf("Weight(%g) = %g, want %g", tv, got, want)
		}
	}

	// Morlet is signed: half a cycle after t=0 the cosine is negative.
	if got := s.Weight(0.005); got >= 0 {
		t.Errorf("Weight(0.005) = %g, want negative (half cycle at 100Hz)", got)
	}
}

// TestNoShutterWeight validates the pass-through is 1.0 for any input.
func TestNoShutterWeight(t *testing.T) {
	s, err := New(Config{Kind: NoShutter})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	for _, tv := range []float64{0, -1e9, 1e9, 0.5, -0.0001, math.MaxFloat64} {
		if got := s.Weight(tv); got != 1.0 {
			t.Errorf("Weight(%g) = %g, want 1.0", tv, got)
		}
	}
}

// TestConfigValidation validates fail-fast rejection of invalid parameters.
func TestConfigValidation(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
	}{
		{"boxcar zero period", Config{Kind: Boxcar, Period: 0, Duty: 0.25}},
		{"boxcar negative period", Config{Kind: Boxcar, Period: -0.1, Duty: 0.25}},
		{"boxcar zero duty", Config{Kind: Boxcar, Period: 0.1, Duty: 0}},
		{"boxcar duty above one", Config{Kind: Boxcar, Period: 0.1, Duty: 1.5}},
		{"morlet zero sigma", Config{Kind: Morlet, Frequency: 100, Sigma: 0}},
		{"morlet zero frequency", Config{Kind: Morlet, Frequency: 0, Sigma: 0.01}},
		{"unknown kind", Config{Kind: Kind(42)}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := New(tc.cfg); err == nil {
				t.Errorf("New(%+v) succeeded, want configuration error", tc.cfg)
			}
		})
	}
}

// TestParseKind validates the config-string mapping and unknown-kind rejection.
func TestParseKind(t *testing.T) {
	for s, want := range map[string]Kind{
		"boxcar":     Boxcar,
		"morlet":     Morlet,
		"no_shutter": NoShutter,
		"":           NoShutter,
	} {
		got, err := ParseKind(s)
		if err != nil {
			t.Errorf("ParseKind(%q) failed: %v", s, err)
			continue
		}
		if got != want {
			t.Errorf("ParseKind(%q) = %v, want %v", s, got, want)
		}
	}

	if _, err := ParseKind("gaussian"); err == nil {
		t.Error("ParseKind(\"gaussian\") succeeded, want error")
	}
}
