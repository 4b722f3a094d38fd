package main

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"tarotwheel/wheel"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestDaemon(t *testing.T) *wheelDaemon {
	t.Helper()
	cfg := DefaultConfig()
	d, err := newWheelDaemon(cfg.ToLayout(), cfg.ToTuning(), defaultDeck(cfg.Wheel.SlotCount), quietLogger())
	if err != nil {
		t.Fatalf("newWheelDaemon: %v", err)
	}
	return d
}

// dragDelta returns the pixel delta that moves the wheel from rest to the
// given fractional index.
func dragDelta(d *wheelDaemon, fractional float64) float64 {
	cfg := d.ctrl.Config()
	return -fractional * cfg.SlotDistance() / cfg.DistanceToScreenFactor
}

// tickUntilIdle feeds 60 Hz ticks until the wheel is idle and returns every
// broadcast produced along the way.
func tickUntilIdle(t *testing.T, d *wheelDaemon, start time.Time, maxTicks int) []StateBroadcast {
	t.Helper()
	var out []StateBroadcast
	now := start
	for i := 0; i < maxTicks; i++ {
		now = now.Add(time.Second / 60)
		out = append(out, d.Apply(Tick{Now: now, Dt: 1.0 / 60}, now)...)
		if d.ctrl.Phase() == wheel.PhaseIdle {
			return out
		}
	}
	t.Fatalf("wheel did not settle within %d ticks (phase=%s)", maxTicks, d.ctrl.Phase())
	return nil
}

func settles(bs []StateBroadcast) []BroadcastIndexSettled {
	var out []BroadcastIndexSettled
	for _, b := range bs {
		if s, ok := b.(BroadcastIndexSettled); ok {
			out = append(out, s)
		}
	}
	return out
}

func phaseChanges(bs []StateBroadcast) []BroadcastPhaseChanged {
	var out []BroadcastPhaseChanged
	for _, b := range bs {
		if p, ok := b.(BroadcastPhaseChanged); ok {
			out = append(out, p)
		}
	}
	return out
}

func TestNewWheelDaemon_DeckMismatch(t *testing.T) {
	cfg := DefaultConfig()
	if _, err := newWheelDaemon(cfg.ToLayout(), cfg.ToTuning(), defaultDeck(3), quietLogger()); err == nil {
		t.Fatalf("expected error when deck size differs from slot count")
	}
}

func TestWheelDaemon_DragReleaseSettles(t *testing.T) {
	d := newTestDaemon(t)
	now := time.Unix(1700000000, 0)

	bs := d.Apply(PointerDown{}, now)
	if len(bs) != 2 {
		t.Fatalf("expected frame + phase change on grab, got %d broadcasts", len(bs))
	}
	if _, ok := bs[0].(BroadcastFrame); !ok {
		t.Fatalf("expected frame first, got %T", bs[0])
	}
	if pc, ok := bs[1].(BroadcastPhaseChanged); !ok || pc.From != wheel.PhaseIdle || pc.To != wheel.PhaseDragging {
		t.Fatalf("expected idle->dragging, got %+v", bs[1])
	}

	bs = d.Apply(PointerMove{DeltaX: dragDelta(d, 3.4)}, now)
	if len(bs) != 1 {
		t.Fatalf("expected a single frame for a move, got %d broadcasts", len(bs))
	}
	f, ok := bs[0].(BroadcastFrame)
	if !ok {
		t.Fatalf("expected frame, got %T", bs[0])
	}
	if f.Frame.ActiveIndex != 3 || f.Card != "card-3" {
		t.Fatalf("expected card-3 under the pointer, got index=%d card=%q", f.Frame.ActiveIndex, f.Card)
	}

	bs = d.Apply(PointerUp{VelocityX: 0}, now)
	if pcs := phaseChanges(bs); len(pcs) != 1 || pcs[0].To != wheel.PhaseSnapping {
		t.Fatalf("expected dragging->snapping on release at rest, got %+v", pcs)
	}

	all := tickUntilIdle(t, d, now, 300)

	got := settles(all)
	if len(got) != 1 {
		t.Fatalf("expected exactly one settle, got %d", len(got))
	}
	if got[0].Index != 3 || got[0].Card != "card-3" {
		t.Fatalf("expected settle on card-3, got %+v", got[0])
	}

	// The phase change to idle precedes the settle in the same batch.
	last := all[len(all)-1]
	if _, ok := last.(BroadcastIndexSettled); !ok {
		t.Fatalf("expected settle to be the final broadcast, got %T", last)
	}
	pcs := phaseChanges(all)
	if len(pcs) == 0 || pcs[len(pcs)-1].To != wheel.PhaseIdle {
		t.Fatalf("expected final phase change to idle, got %+v", pcs)
	}
	if pcs[len(pcs)-1].Cycle != got[0].Cycle {
		t.Fatalf("settle cycle %d does not match phase change cycle %d", got[0].Cycle, pcs[len(pcs)-1].Cycle)
	}

	// Idle ticks are silent.
	if bs := d.Apply(Tick{Now: now, Dt: 1.0 / 60}, now); len(bs) != 0 {
		t.Fatalf("expected no broadcasts while idle, got %d", len(bs))
	}
}

func TestWheelDaemon_RegrabDoesNotSettle(t *testing.T) {
	d := newTestDaemon(t)
	now := time.Unix(1700000000, 0)

	d.Apply(PointerDown{}, now)
	d.Apply(PointerMove{DeltaX: dragDelta(d, 1.2)}, now)
	d.Apply(PointerUp{VelocityX: -600}, now)
	if d.ctrl.Phase() != wheel.PhaseDecaying {
		t.Fatalf("expected decaying after a flick, got %s", d.ctrl.Phase())
	}

	var all []StateBroadcast
	for i := 0; i < 5; i++ {
		now = now.Add(time.Second / 60)
		all = append(all, d.Apply(Tick{Now: now, Dt: 1.0 / 60}, now)...)
	}
	all = append(all, d.Apply(PointerDown{}, now)...)

	if len(settles(all)) != 0 {
		t.Fatalf("expected no settle when the wheel is grabbed mid-flight")
	}
	pcs := phaseChanges(all)
	if len(pcs) != 1 || pcs[0].From != wheel.PhaseDecaying || pcs[0].To != wheel.PhaseDragging {
		t.Fatalf("expected decaying->dragging, got %+v", pcs)
	}

	// The new cycle settles normally.
	d.Apply(PointerUp{}, now)
	got := settles(tickUntilIdle(t, d, now, 300))
	if len(got) != 1 {
		t.Fatalf("expected one settle for the second gesture, got %d", len(got))
	}
	if got[0].Cycle != 2 {
		t.Fatalf("expected settle in cycle 2, got %d", got[0].Cycle)
	}
}

func TestWheelDaemon_Snapshot(t *testing.T) {
	d := newTestDaemon(t)
	now := time.Unix(1700000000, 0)

	d.Apply(PointerDown{}, now)
	d.Apply(PointerMove{DeltaX: dragDelta(d, 2)}, now)

	reply := make(chan StateSnapshot, 1)
	if bs := d.Apply(RequestStateSnapshot{Reply: reply}, now); bs != nil {
		t.Fatalf("expected no broadcasts for a snapshot request, got %d", len(bs))
	}

	select {
	case snap := <-reply:
		if snap.Frame.Phase != wheel.PhaseDragging || snap.Frame.ActiveIndex != 2 {
			t.Fatalf("unexpected snapshot frame: %+v", snap.Frame)
		}
		if len(snap.Placements) != 40 || snap.Deck.Len() != 40 {
			t.Fatalf("expected 40 placements and cards, got %d/%d", len(snap.Placements), snap.Deck.Len())
		}
		if snap.Config.SlotCount != 40 || !snap.At.Equal(now) {
			t.Fatalf("unexpected snapshot config/time: %+v %v", snap.Config.SlotCount, snap.At)
		}
	default:
		t.Fatalf("expected snapshot reply")
	}

	// A reply channel nobody drains must not block the daemon.
	full := make(chan StateSnapshot)
	d.Apply(RequestStateSnapshot{Reply: full}, now)
}

func TestRunDaemon_EndToEnd(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d := newTestDaemon(t)
	dx := dragDelta(d, 5.3)

	events := make(chan Event, 16)
	broadcasts := make(chan StateBroadcast, 1024)

	done := make(chan struct{})
	go func() {
		defer close(done)
		runDaemon(ctx, events, d, 200, broadcasts, quietLogger())
	}()

	events <- PointerDown{}
	events <- PointerMove{DeltaX: dx}
	events <- PointerUp{VelocityX: 0}

	deadline := time.After(3 * time.Second)
	for {
		select {
		case b := <-broadcasts:
			s, ok := b.(BroadcastIndexSettled)
			if !ok {
				continue
			}
			if s.Index != 5 || s.Card != "card-5" {
				t.Fatalf("expected settle on card-5, got %+v", s)
			}
			cancel()
			select {
			case <-done:
			case <-time.After(time.Second):
				t.Fatalf("daemon did not stop after cancel")
			}
			return
		case <-deadline:
			t.Fatalf("timed out waiting for settle")
		}
	}
}

func TestRunDaemon_StopsWhenEventsClosed(t *testing.T) {
	d := newTestDaemon(t)
	events := make(chan Event)

	done := make(chan struct{})
	go func() {
		defer close(done)
		runDaemon(context.Background(), events, d, 60, nil, quietLogger())
	}()

	close(events)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("daemon did not stop after events channel closed")
	}
}
