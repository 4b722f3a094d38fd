package main

import "time"

// motionSample records one relative motion report.
type motionSample struct {
	at time.Time
	dx float64 // screen pixels
}

// velocityTracker estimates release velocity from recent motion reports.
//
// Not safe for concurrent use; the input loop owns it.
type velocityTracker struct {
	window  time.Duration
	samples []motionSample
}

func newVelocityTracker(window time.Duration) *velocityTracker {
	return &velocityTracker{
		window:  window,
		samples: make([]motionSample, 0, 16),
	}
}

// Add records a motion report.
func (v *velocityTracker) Add(at time.Time, dx float64) {
	v.prune(at)
	v.samples = append(v.samples, motionSample{at: at, dx: dx})
}

// Velocity returns the average speed in pixels/s over the window ending at
// at. The first sample only anchors the time base, so a single report yields
// zero. Time spent holding still before at lowers the result.
func (v *velocityTracker) Velocity(at time.Time) float64 {
	v.prune(at)
	if len(v.samples) < 2 {
		return 0
	}
	span := at.Sub(v.samples[0].at).Seconds()
	if span <= 0 {
		return 0
	}
	var sum float64
	for _, s := range v.samples[1:] {
		sum += s.dx
	}
	return sum / span
}

// Reset forgets all samples.
func (v *velocityTracker) Reset() {
	v.samples = v.samples[:0]
}

func (v *velocityTracker) prune(at time.Time) {
	cutoff := at.Add(-v.window)
	kept := v.samples[:0] // reuse underlying array
	for _, s := range v.samples {
		if !s.at.Before(cutoff) {
			kept = append(kept, s)
		}
	}
	v.samples = kept
}

// pointerTranslator turns evdev reports into pointer events.
//
// A button (BTN_LEFT / BTN_TOUCH) brackets a drag; REL_X only moves the wheel
// while it is held. Wheel and dial axes drive the wheel without a button: the
// first report starts an implicit drag which is released once the axis has
// been quiet for idleRelease.
type pointerTranslator struct {
	pixelsPerCount float64
	idleRelease    time.Duration
	tracker        *velocityTracker

	held       bool
	implicit   bool
	lastMotion time.Time
}

func newPointerTranslator(cfg InputConfig) *pointerTranslator {
	ppc := cfg.PixelsPerCount
	if ppc <= 0 {
		ppc = defaultPixelsPerCount
	}
	window := time.Duration(cfg.VelocityWindowMS) * time.Millisecond
	if window <= 0 {
		window = defaultVelocityWindowMS * time.Millisecond
	}
	idle := time.Duration(cfg.IdleReleaseMS) * time.Millisecond
	if idle <= 0 {
		idle = defaultIdleReleaseMS * time.Millisecond
	}
	return &pointerTranslator{
		pixelsPerCount: ppc,
		idleRelease:    idle,
		tracker:        newVelocityTracker(window),
	}
}

// Translate converts one raw event received at now.
func (p *pointerTranslator) Translate(ev inputEvent, now time.Time) []Event {
	switch ev.Type {
	case EV_KEY:
		if ev.Code != BTN_LEFT && ev.Code != BTN_TOUCH {
			return nil
		}
		switch ev.Value {
		case evValuePress:
			if p.held {
				return nil
			}
			// A press takes over any implicit dial gesture.
			p.held = true
			p.implicit = false
			p.tracker.Reset()
			return []Event{PointerDown{}}

		case evValueRelease:
			if !p.held {
				return nil
			}
			p.held = false
			v := p.tracker.Velocity(now)
			p.tracker.Reset()
			return []Event{PointerUp{VelocityX: v}}

		default:
			// evValueRepeat carries no new information.
			return nil
		}

	case EV_REL:
		dx := float64(ev.Value) * p.pixelsPerCount
		switch ev.Code {
		case REL_X:
			if !p.held {
				return nil
			}
			p.tracker.Add(now, dx)
			return []Event{PointerMove{DeltaX: dx}}

		case REL_HWHEEL, REL_DIAL, REL_WHEEL:
			var out []Event
			if !p.held && !p.implicit {
				p.implicit = true
				p.tracker.Reset()
				out = append(out, PointerDown{})
			}
			p.tracker.Add(now, dx)
			p.lastMotion = now
			return append(out, PointerMove{DeltaX: dx})
		}
	}
	return nil
}

// Expire releases an implicit dial gesture that has gone quiet. The release
// velocity is measured at the last report, not at now.
func (p *pointerTranslator) Expire(now time.Time) []Event {
	if !p.implicit || now.Sub(p.lastMotion) < p.idleRelease {
		return nil
	}
	p.implicit = false
	v := p.tracker.Velocity(p.lastMotion)
	p.tracker.Reset()
	return []Event{PointerUp{VelocityX: v}}
}
