package wheel

import (
	"errors"
	"fmt"
	"math"

	"github.com/charmbracelet/harmonica"
)

// Phase is the interaction state of a Controller.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseDragging
	PhaseDecaying
	PhaseSnapping
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseDragging:
		return "dragging"
	case PhaseDecaying:
		return "decaying"
	case PhaseSnapping:
		return "snapping"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// PointerType is the kind of a raw pointer event.
type PointerType string

const (
	PointerDown PointerType = "down"
	PointerMove PointerType = "move"
	PointerUp   PointerType = "up"
)

// PointerEvent is one raw pointer sample on the horizontal drag axis.
type PointerEvent struct {
	Type      PointerType
	DeltaX    float64 // pixels, move only
	VelocityX float64 // pixels/s, up only
}

var (
	ErrUninitializedConfig = errors.New("wheel config is not initialized (use NewConfig)")
	ErrUnknownPointerEvent = errors.New("unknown pointer event")
)

// Step reports what a single Advance did.
type Step struct {
	From    Phase
	To      Phase
	Settled bool
	Index   int // settled slot, valid when Settled
	Cycle   uint64
}

// Frame is a consistent read of the wheel for one rendered frame.
type Frame struct {
	Phase           Phase
	Distance        float64
	Angle           float64
	FractionalIndex float64
	ActiveIndex     int
	Velocity        float64 // units/s while decaying or snapping
	Cycle           uint64
}

// Controller owns the drag / decay / snap lifecycle of one wheel.
//
// A Controller is single-owner: all methods must be called from the same
// goroutine (the host's frame loop). Every write to the cumulative distance
// happens in the phase that currently owns it, and PointerDown always
// preempts a running decay or snap before the next write.
type Controller struct {
	cfg       Config
	tuning    Tuning
	onSettled func(index int)

	// Rotation state. distance is the only persisted quantity; everything
	// else visible through Frame is derived from it.
	distance float64

	phase    Phase
	velocity float64 // units/s (signed)
	elapsed  float64 // seconds spent in the current time-driven phase

	// Snapping
	target      float64
	settleIndex int
	spring      harmonica.Spring
	springDt    float64

	cycle uint64
}

// NewController creates a Controller at rest on slot 0. onSettled, when
// non-nil, is invoked from Advance once per completed gesture cycle; it must
// not block.
func NewController(cfg Config, tuning Tuning, onSettled func(index int)) (*Controller, error) {
	if cfg.SlotCount < 1 || !(cfg.Radius > 0) || !(cfg.AnglePerSlot > 0) {
		return nil, ErrUninitializedConfig
	}
	tuning = tuning.WithDefaults()
	if err := tuning.Validate(); err != nil {
		return nil, err
	}
	return &Controller{
		cfg:       cfg,
		tuning:    tuning,
		onSettled: onSettled,
		phase:     PhaseIdle,
	}, nil
}

// Config returns the wheel geometry.
func (c *Controller) Config() Config { return c.cfg }

// Tuning returns the effective tuning, defaults included.
func (c *Controller) Tuning() Tuning { return c.tuning }

// Phase returns the current interaction phase.
func (c *Controller) Phase() Phase { return c.phase }

// Distance returns the cumulative drag distance.
func (c *Controller) Distance() float64 { return c.distance }

// Cycle returns the current gesture cycle. It increases on every PointerDown.
func (c *Controller) Cycle() uint64 { return c.cycle }

// Frame returns the current rotation state, derived from the stored distance.
func (c *Controller) Frame() Frame {
	return Frame{
		Phase:           c.phase,
		Distance:        c.distance,
		Angle:           Angle(c.distance, c.cfg),
		FractionalIndex: FractionalIndex(c.distance, c.cfg),
		ActiveIndex:     ActiveIndex(c.distance, c.cfg),
		Velocity:        c.velocity,
		Cycle:           c.cycle,
	}
}

// Handle dispatches a raw pointer event.
func (c *Controller) Handle(ev PointerEvent) error {
	switch ev.Type {
	case PointerDown:
		c.PointerDown()
	case PointerMove:
		c.PointerMove(ev.DeltaX)
	case PointerUp:
		c.PointerUp(ev.VelocityX)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownPointerEvent, ev.Type)
	}
	return nil
}

// PointerDown starts a drag from the current distance. A running decay or
// snap is abandoned and will not report a settle.
func (c *Controller) PointerDown() {
	c.cycle++
	c.phase = PhaseDragging
	c.velocity = 0
	c.elapsed = 0
}

// PointerMove applies a horizontal drag delta in screen pixels. Moves outside
// of a drag are ignored.
func (c *Controller) PointerMove(dx float64) {
	if c.phase != PhaseDragging || !finite(dx) {
		return
	}
	c.distance += dx * c.cfg.DistanceToScreenFactor
}

// PointerUp ends the drag with a release velocity in screen pixels/s. A
// release too slow to decay goes straight to snapping.
func (c *Controller) PointerUp(vx float64) {
	if c.phase != PhaseDragging {
		return
	}
	v := vx * c.cfg.DistanceToScreenFactor
	if !finite(v) {
		v = 0
	}
	if math.Abs(v) < c.tuning.StopVelocity {
		c.beginSnap()
		return
	}
	c.phase = PhaseDecaying
	c.velocity = v
	c.elapsed = 0
}

// Advance moves the time-driven phases forward by dt seconds. Non-positive
// dt is ignored and dt is clamped to Tuning.MaxDt.
func (c *Controller) Advance(dt float64) Step {
	step := Step{From: c.phase, To: c.phase, Cycle: c.cycle}
	if !(dt > 0) {
		return step
	}
	if dt > c.tuning.MaxDt {
		dt = c.tuning.MaxDt
	}

	switch c.phase {
	case PhaseDecaying:
		c.stepDecay(dt)
	case PhaseSnapping:
		if c.stepSnap(dt) {
			step.Settled = true
			step.Index = c.settleIndex
		}
	}

	step.To = c.phase
	if step.Settled && c.onSettled != nil {
		c.onSettled(step.Index)
	}
	return step
}

// stepDecay integrates v(t) = v0·e^(-t/tau) exactly over dt, so the travelled
// distance does not depend on the tick rate.
func (c *Controller) stepDecay(dt float64) {
	tau := c.tuning.DecayTau
	decay := math.Exp(-dt / tau)
	c.distance += c.velocity * tau * (1 - decay)
	c.velocity *= decay
	c.elapsed += dt

	if math.Abs(c.velocity) < c.tuning.StopVelocity || c.elapsed >= c.tuning.MaxDecay.Seconds() {
		c.beginSnap()
	}
}

// beginSnap removes whole revolutions from the distance without changing the
// visible angle, then aims the spring at the nearest slot.
func (c *Controller) beginSnap() {
	plan := PlanSnap(c.distance, c.cfg)
	c.distance = plan.Rebased
	c.target = plan.Target
	c.settleIndex = plan.Index
	c.phase = PhaseSnapping
	c.velocity = 0
	c.elapsed = 0
}

// stepSnap advances the spring and reports whether the wheel has landed.
func (c *Controller) stepSnap(dt float64) bool {
	if dt != c.springDt {
		c.spring = harmonica.NewSpring(dt, c.tuning.SpringFrequency, c.tuning.SpringDamping)
		c.springDt = dt
	}
	c.distance, c.velocity = c.spring.Update(c.distance, c.velocity, c.target)
	c.elapsed += dt

	landed := math.Abs(c.distance-c.target) <= c.tuning.SnapTolerance &&
		math.Abs(c.velocity) <= c.tuning.SnapVelocityTolerance
	if !landed && c.elapsed < c.tuning.MaxSnap.Seconds() {
		return false
	}

	c.distance = RestingDistance(c.settleIndex, c.cfg)
	c.velocity = 0
	c.elapsed = 0
	c.phase = PhaseIdle
	return true
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
