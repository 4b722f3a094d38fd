package main

import (
	"fmt"
	"log/slog"
	"time"

	"tarotwheel/wheel"
)

// ============================================================================
// Broadcasts - what the daemon loop tells the outside world
// ============================================================================

// StateBroadcast is a marker interface for state changes published to WS
// clients. Broadcasts are values; they never reference daemon-owned state.
type StateBroadcast interface {
	broadcastMarker()
}

// BroadcastFrame carries the latest rotation state. Frames are bursty and
// may be coalesced (latest wins).
type BroadcastFrame struct {
	Frame wheel.Frame
	Card  string // card under the pointer
	At    time.Time
}

func (BroadcastFrame) broadcastMarker() {}

// BroadcastPhaseChanged reports a transition of the interaction phase.
type BroadcastPhaseChanged struct {
	From  wheel.Phase
	To    wheel.Phase
	Cycle uint64
	At    time.Time
}

func (BroadcastPhaseChanged) broadcastMarker() {}

// BroadcastIndexSettled reports the slot a gesture cycle landed on.
type BroadcastIndexSettled struct {
	Index int
	Card  string
	Cycle uint64
	At    time.Time
}

func (BroadcastIndexSettled) broadcastMarker() {}

// StateSnapshot is a consistent copy of the wheel for newly connected clients.
type StateSnapshot struct {
	Config     wheel.Config
	Frame      wheel.Frame
	Placements []wheel.Placement
	Deck       Deck
	At         time.Time
}

// ============================================================================
// wheelDaemon - daemon-owned wheel state
// ============================================================================

// wheelDaemon owns the controller and translates events into broadcasts.
//
// Single-owner: only the daemon goroutine may call Apply. The controller's
// settle callback runs inside Apply and only records the index; broadcasts
// are emitted after the controller call returns.
type wheelDaemon struct {
	ctrl   *wheel.Controller
	deck   Deck
	logger *slog.Logger

	pendingSettles []int

	lastPhase    wheel.Phase
	lastDistance float64
}

func newWheelDaemon(layout wheel.Layout, tuning wheel.Tuning, deck Deck, logger *slog.Logger) (*wheelDaemon, error) {
	cfg, err := wheel.NewConfig(layout)
	if err != nil {
		return nil, fmt.Errorf("wheel config: %w", err)
	}
	if deck.Len() != cfg.SlotCount {
		return nil, fmt.Errorf("deck has %d cards, wheel has %d slots", deck.Len(), cfg.SlotCount)
	}

	d := &wheelDaemon{
		deck:   deck,
		logger: logger,
	}
	ctrl, err := wheel.NewController(cfg, tuning, d.onSettled)
	if err != nil {
		return nil, fmt.Errorf("wheel controller: %w", err)
	}
	d.ctrl = ctrl
	d.lastPhase = ctrl.Phase()
	d.lastDistance = ctrl.Distance()
	return d, nil
}

// onSettled must not block; it runs inside Controller.Advance.
func (d *wheelDaemon) onSettled(index int) {
	d.pendingSettles = append(d.pendingSettles, index)
}

// Apply feeds one event into the controller and returns the resulting
// broadcasts in order: frame, phase change, settle.
func (d *wheelDaemon) Apply(ev Event, now time.Time) []StateBroadcast {
	switch e := ev.(type) {
	case PointerDown:
		if p := d.ctrl.Phase(); p == wheel.PhaseDecaying || p == wheel.PhaseSnapping {
			d.logger.Debug("wheel grabbed mid-flight", "phase", p, "cycle", d.ctrl.Cycle())
		}
		d.ctrl.PointerDown()

	case PointerMove:
		d.ctrl.PointerMove(e.DeltaX)

	case PointerUp:
		d.ctrl.PointerUp(e.VelocityX)

	case Tick:
		d.ctrl.Advance(e.Dt)

	case RequestStateSnapshot:
		if e.Reply != nil {
			select {
			case e.Reply <- d.Snapshot(now):
			default:
				d.logger.Warn("snapshot reply dropped (receiver not ready)")
			}
		}
		return nil

	default:
		d.logger.Debug("ignoring unknown event", "type", fmt.Sprintf("%T", ev))
		return nil
	}

	return d.collect(now)
}

func (d *wheelDaemon) collect(now time.Time) []StateBroadcast {
	var out []StateBroadcast

	f := d.ctrl.Frame()
	if f.Distance != d.lastDistance || f.Phase != d.lastPhase {
		out = append(out, BroadcastFrame{Frame: f, Card: d.deck.Key(f.ActiveIndex), At: now})
		d.lastDistance = f.Distance
	}

	if f.Phase != d.lastPhase {
		d.logger.Debug("phase changed", "from", d.lastPhase, "to", f.Phase, "cycle", f.Cycle)
		out = append(out, BroadcastPhaseChanged{From: d.lastPhase, To: f.Phase, Cycle: f.Cycle, At: now})
		d.lastPhase = f.Phase
	}

	for _, idx := range d.pendingSettles {
		card := d.deck.Key(idx)
		d.logger.Info("index settled", "index", idx, "card", card, "cycle", f.Cycle)
		out = append(out, BroadcastIndexSettled{Index: idx, Card: card, Cycle: f.Cycle, At: now})
	}
	d.pendingSettles = d.pendingSettles[:0]

	return out
}

// Snapshot returns a consistent copy of the wheel state.
func (d *wheelDaemon) Snapshot(now time.Time) StateSnapshot {
	cfg := d.ctrl.Config()
	return StateSnapshot{
		Config:     cfg,
		Frame:      d.ctrl.Frame(),
		Placements: wheel.Placements(d.ctrl.Distance(), cfg),
		Deck:       d.deck,
		At:         now,
	}
}
