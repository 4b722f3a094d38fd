package main

import (
	"context"
	"log/slog"
	"time"
)

// ============================================================================
// Central Daemon Loop
// ============================================================================
//
// Design rules enforced here:
//   - The daemon goroutine is the only owner of the wheel controller.
//   - Pointer events are applied as they arrive; Decaying and Snapping only
//     advance on ticks.
//   - Broadcasts are handed off with a non-blocking send so a stalled
//     consumer can never delay the next tick.
//
// ============================================================================

// runDaemon is the main daemon loop that:
//   - Receives Events from multiple sources (input devices, IPC, WS server)
//   - Emits Tick events on a fixed cadence
//   - Applies events to the wheel and forwards resulting broadcasts
//
// Shutdown semantics:
//   - Exits when ctx is canceled
//   - Exits cleanly when the events channel is closed
func runDaemon(
	ctx context.Context,
	events <-chan Event,
	d *wheelDaemon,
	updateHz int,
	broadcasts chan<- StateBroadcast,
	logger *slog.Logger,
) {
	if d == nil {
		logger.Error("wheel daemon is nil")
		return
	}
	if updateHz <= 0 {
		updateHz = defaultUpdateHz
	}

	ticker := time.NewTicker(time.Second / time.Duration(updateHz))
	defer ticker.Stop()

	lastTick := time.Now()

	// Explicit queue of broadcasts awaiting hand-off.
	var outQueue []StateBroadcast

	flushBroadcasts := func() {
		for _, b := range outQueue {
			if broadcasts == nil {
				break
			}
			select {
			case broadcasts <- b:
			default:
				logger.Warn("broadcast queue full, dropping", "type", broadcastName(b))
			}
		}
		outQueue = outQueue[:0]
	}

	apply := func(ev Event, now time.Time) {
		outQueue = append(outQueue, d.Apply(ev, now)...)
		flushBroadcasts()
	}

	for {
		select {
		case <-ctx.Done():
			logger.Info("daemon stopping (context canceled)")
			return

		case ev, ok := <-events:
			if !ok {
				logger.Info("daemon stopping (events channel closed)")
				return
			}
			apply(ev, time.Now())

		case now := <-ticker.C:
			dt := now.Sub(lastTick).Seconds()
			lastTick = now
			apply(Tick{Now: now, Dt: dt}, now)
		}
	}
}

func broadcastName(b StateBroadcast) string {
	switch b.(type) {
	case BroadcastFrame:
		return wsTypeFrame
	case BroadcastPhaseChanged:
		return wsTypePhaseChanged
	case BroadcastIndexSettled:
		return wsTypeIndexSettled
	default:
		return "unknown"
	}
}
