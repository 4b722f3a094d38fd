package wheel

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Default feel parameters for the release animation.
const (
	// Matches a per-millisecond velocity retention of ~0.998.
	DefaultDecayTau              = 0.5  // seconds
	DefaultStopVelocity          = 5.0  // circumference units/s
	DefaultMaxDecay              = 4 * time.Second
	DefaultSpringFrequency       = 12.0 // rad/s
	DefaultSpringDamping         = 1.0  // critically damped
	DefaultSnapTolerance         = 0.25 // circumference units
	DefaultSnapVelocityTolerance = 2.0  // circumference units/s
	DefaultMaxSnap               = 1500 * time.Millisecond
	DefaultMaxDt                 = 0.1 // seconds
)

var ErrInvalidTuning = errors.New("invalid tuning")

// Tuning contains the tunable parameters of the release animation. None of
// them change which slot a release lands on, only how it gets there.
type Tuning struct {
	// Decaying
	DecayTau     float64       // exponential velocity decay time constant (s)
	StopVelocity float64       // decay ends below this speed (units/s)
	MaxDecay     time.Duration // decay ends after this long regardless of speed

	// Snapping
	SpringFrequency       float64       // angular frequency (rad/s)
	SpringDamping         float64       // damping ratio, >= 1 never overshoots
	SnapTolerance         float64       // distance from target considered landed (units)
	SnapVelocityTolerance float64       // speed considered at rest (units/s)
	MaxSnap               time.Duration // hard landing after this long

	// Robustness
	MaxDt float64 // largest time step integrated per Advance (s)
}

// DefaultTuning returns a Tuning with every field set to its default.
func DefaultTuning() Tuning {
	return Tuning{}.WithDefaults()
}

// WithDefaults fills zero fields, leaving explicit values untouched.
func (t Tuning) WithDefaults() Tuning {
	if t.DecayTau == 0 {
		t.DecayTau = DefaultDecayTau
	}
	if t.StopVelocity == 0 {
		t.StopVelocity = DefaultStopVelocity
	}
	if t.MaxDecay == 0 {
		t.MaxDecay = DefaultMaxDecay
	}
	if t.SpringFrequency == 0 {
		t.SpringFrequency = DefaultSpringFrequency
	}
	if t.SpringDamping == 0 {
		t.SpringDamping = DefaultSpringDamping
	}
	if t.SnapTolerance == 0 {
		t.SnapTolerance = DefaultSnapTolerance
	}
	if t.SnapVelocityTolerance == 0 {
		t.SnapVelocityTolerance = DefaultSnapVelocityTolerance
	}
	if t.MaxSnap == 0 {
		t.MaxSnap = DefaultMaxSnap
	}
	if t.MaxDt == 0 {
		t.MaxDt = DefaultMaxDt
	}
	return t
}

// Validate checks a fully populated Tuning.
func (t Tuning) Validate() error {
	positive := []struct {
		name string
		v    float64
	}{
		{"decay_tau", t.DecayTau},
		{"stop_velocity", t.StopVelocity},
		{"spring_frequency", t.SpringFrequency},
		{"snap_tolerance", t.SnapTolerance},
		{"snap_velocity_tolerance", t.SnapVelocityTolerance},
		{"max_dt", t.MaxDt},
	}
	for _, p := range positive {
		if !(p.v > 0) || math.IsInf(p.v, 0) {
			return fmt.Errorf("%w: %s must be > 0 (got %v)", ErrInvalidTuning, p.name, p.v)
		}
	}
	if !(t.SpringDamping >= 1) || math.IsInf(t.SpringDamping, 0) {
		return fmt.Errorf("%w: spring_damping must be >= 1 (got %v)", ErrInvalidTuning, t.SpringDamping)
	}
	if t.MaxDecay < 0 {
		return fmt.Errorf("%w: max_decay must be >= 0 (got %v)", ErrInvalidTuning, t.MaxDecay)
	}
	if t.MaxSnap <= 0 {
		return fmt.Errorf("%w: max_snap must be > 0 (got %v)", ErrInvalidTuning, t.MaxSnap)
	}
	return nil
}
