package main

import (
	"encoding/json"
	"fmt"
	"time"
)

// ============================================================================
// Events - inputs to the daemon loop
// ============================================================================
// Pointer events come from input devices and IPC clients. Ticks and snapshot
// requests are produced inside the process. The daemon loop is the only
// consumer and the only owner of the wheel controller.
// ============================================================================

// Event is a marker interface for everything the daemon loop consumes.
type Event interface {
	eventMarker()
}

// PointerDown grabs the wheel.
type PointerDown struct{}

func (PointerDown) eventMarker() {}

// PointerMove drags the wheel by a horizontal delta in screen pixels.
type PointerMove struct {
	DeltaX float64 `json:"delta_x"`
}

func (PointerMove) eventMarker() {}

// PointerUp releases the wheel with a horizontal velocity in pixels/s.
type PointerUp struct {
	VelocityX float64 `json:"velocity_x"`
}

func (PointerUp) eventMarker() {}

// Tick is emitted by the daemon loop at a fixed cadence.
// Dt is wall-clock delta in seconds between ticks.
type Tick struct {
	Now time.Time
	Dt  float64
}

func (Tick) eventMarker() {}

// RequestStateSnapshot asks the daemon loop for a consistent snapshot.
// Reply must be buffered; the daemon never blocks on it.
type RequestStateSnapshot struct {
	Reply chan<- StateSnapshot
}

func (RequestStateSnapshot) eventMarker() {}

// ============================================================================
// JSON Encoding/Decoding Support
// ============================================================================
// Only pointer events travel over IPC. EventEnvelope carries a type
// discriminator since Go has no union types.
// ============================================================================

const (
	eventTypePointerDown = "pointer_down"
	eventTypePointerMove = "pointer_move"
	eventTypePointerUp   = "pointer_up"
)

// EventEnvelope wraps an event with a type discriminator for JSON marshaling
type EventEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// UnmarshalEvent deserializes a JSON event envelope into a concrete Event
func UnmarshalEvent(data []byte) (Event, error) {
	var env EventEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("unmarshal envelope: %w", err)
	}

	switch env.Type {
	case eventTypePointerDown:
		return PointerDown{}, nil

	case eventTypePointerMove:
		var e PointerMove
		if err := json.Unmarshal(env.Data, &e); err != nil {
			return nil, fmt.Errorf("unmarshal PointerMove: %w", err)
		}
		return e, nil

	case eventTypePointerUp:
		// A release without data is a release at rest.
		var e PointerUp
		if len(env.Data) > 0 {
			if err := json.Unmarshal(env.Data, &e); err != nil {
				return nil, fmt.Errorf("unmarshal PointerUp: %w", err)
			}
		}
		return e, nil

	default:
		return nil, fmt.Errorf("unknown event type: %q", env.Type)
	}
}

// MarshalEvent serializes an Event into a JSON envelope with type discriminator
func MarshalEvent(e Event) ([]byte, error) {
	var env EventEnvelope

	switch e := e.(type) {
	case PointerDown:
		env.Type = eventTypePointerDown

	case PointerMove:
		env.Type = eventTypePointerMove
		data, err := json.Marshal(e)
		if err != nil {
			return nil, fmt.Errorf("marshal PointerMove: %w", err)
		}
		env.Data = data

	case PointerUp:
		env.Type = eventTypePointerUp
		data, err := json.Marshal(e)
		if err != nil {
			return nil, fmt.Errorf("marshal PointerUp: %w", err)
		}
		env.Data = data

	default:
		return nil, fmt.Errorf("unsupported event type: %T", e)
	}

	return json.Marshal(env)
}
