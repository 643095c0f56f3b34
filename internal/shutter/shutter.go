// Package shutter implements Digital Coded Exposure (DCE) weighting functions.
//
// A shutter maps an event timestamp (seconds) to a scalar weight that shapes
// the event's contribution to the accumulated frame. The shutter kind is a
// closed set resolved once at configuration time: the hot accumulation loop
// calls Weight() through a pre-bound function, never re-dispatching on a
// type string per event.
package shutter

import (
	"fmt"
	"math"
)

// Kind identifies a shutter function variant.
type Kind int

const (
	// NoShutter passes every event through with weight 1.0.
	NoShutter Kind = iota
	// Boxcar is a periodic open/closed window: weight 1.0 while open,
	// 0.0 while closed.
	Boxcar
	// Morlet is a decaying oscillation exp(-0.5·(t/σ)²)·cos(2π·f·t).
	// Its weights are signed in [-1,1]; callers must treat them as such.
	Morlet
)

// String returns the configuration-file spelling of the kind.
func (k Kind) String() string {
	switch k {
	case NoShutter:
		return "no_shutter"
	case Boxcar:
		return "boxcar"
	case Morlet:
		return "morlet"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// ParseKind maps a configuration string to a Kind.
// Unknown kinds are a configuration error (fail-fast, before streaming).
func ParseKind(s string) (Kind, error) {
	switch s {
	case "no_shutter", "":
		return NoShutter, nil
	case "boxcar":
		return Boxcar, nil
	case "morlet":
		return Morlet, nil
	default:
		return 0, fmt.Errorf("shutter: unknown shutter kind %q (must be boxcar, morlet or no_shutter)", s)
	}
}

// Config holds the parameters of a shutter function. Immutable per
// accumulator session: one Config drives one accumulator.
type Config struct {
	Kind Kind

	// Boxcar parameters
	Period float64 // seconds, > 0
	Duty   float64 // fraction of period the shutter is open, in (0,1]
	Phase  float64 // seconds, phase offset

	// Morlet parameters
	Frequency float64 // Hz, center frequency, > 0
	Sigma     float64 // seconds, envelope width, > 0
}

// Validate checks the parameters relevant to the configured kind.
// Violations are caller contract errors surfaced at configuration time.
func (c Config) Validate() error {
	switch c.Kind {
	case NoShutter:
		return nil
	case Boxcar:
		if c.Period <= 0 {
			return fmt.Errorf("shutter: boxcar period must be > 0, got %g", c.Period)
		}
		if c.Duty <= 0 || c.Duty > 1 {
			return fmt.Errorf("shutter: boxcar duty must be in (0,1], got %g", c.Duty)
		}
		return nil
	case Morlet:
		if c.Sigma <= 0 {
			return fmt.Errorf("shutter: morlet sigma must be > 0, got %g", c.Sigma)
		}
		if c.Frequency <= 0 {
			return fmt.Errorf("shutter: morlet frequency must be > 0, got %g", c.Frequency)
		}
		return nil
	default:
		return fmt.Errorf("shutter: unknown shutter kind %d", int(c.Kind))
	}
}

// Shutter is a resolved weighting function. Zero-allocation and safe for
// concurrent use: it holds only immutable parameters.
type Shutter struct {
	kind Kind
	fn   func(t float64) float64
}

// New resolves a Config into a Shutter, validating fail-fast.
func New(cfg Config) (Shutter, error) {
	if err := cfg.Validate(); err != nil {
		return Shutter{}, err
	}

	switch cfg.Kind {
	case NoShutter:
		return Shutter{kind: NoShutter, fn: func(float64) float64 { return 1.0 }}, nil

	case Boxcar:
		period, open, phase := cfg.Period, cfg.Duty*cfg.Period, cfg.Phase
		return Shutter{kind: Boxcar, fn: func(t float64) float64 {
			if flooredMod(t-phase, period) < open {
				return 1.0
			}
			return 0.0
		}}, nil

	case Morlet:
		sigma, omega := cfg.Sigma, 2*math.Pi*cfg.Frequency
		return Shutter{kind: Morlet, fn: func(t float64) float64 {
			return math.Exp(-0.5*(t/sigma)*(t/sigma)) * math.Cos(omega*t)
		}}, nil
	}

	// Unreachable: Validate rejects unknown kinds.
	return Shutter{}, fmt.Errorf("shutter: unknown shutter kind %d", int(cfg.Kind))
}

// Kind returns the variant this shutter was resolved from.
func (s Shutter) Kind() Kind { return s.kind }

// Weight evaluates the shutter at time t (seconds). Total over the real line:
// no error conditions. Boxcar and no-shutter weights are in [0,1]; morlet
// weights are signed in [-1,1].
func (s Shutter) Weight(t float64) float64 { return s.fn(t) }

// flooredMod is the floored (Knuth) modulo: the result is always in [0, m)
// for m > 0, including for negative t. math.Mod truncates toward zero, which
// would break boxcar periodicity for timestamps before the phase origin.
func flooredMod(t, m float64) float64 {
	r := math.Mod(t, m)
	if r < 0 {
		r += m
	}
	return r
}
