package main

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"
)

// ============================================================================
// wheel-ctl - Command-line IPC Client
// ============================================================================
// This tool drives the tarotwheel daemon via IPC.
//
// Usage:
//   wheel-ctl down
//   wheel-ctl move -24
//   wheel-ctl up 800
//   wheel-ctl drag -120 600
//
// Options:
//   -socket PATH    Unix domain socket path (default: /tmp/tarotwheel.sock)
// ============================================================================

// Event types (duplicated from the daemon package for a standalone binary)
type Event interface{}

type PointerDown struct{}

type PointerMove struct {
	DeltaX float64 `json:"delta_x"`
}

type PointerUp struct {
	VelocityX float64 `json:"velocity_x"`
}

// EventEnvelope wraps events for JSON
type EventEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// IPCResponse represents the daemon's response
type IPCResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// dragSteps is how many moves a drag command is split into.
const dragSteps = 8

func main() {
	socketPath := "/tmp/tarotwheel.sock"

	args := os.Args[1:]
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	if args[0] == "-socket" || args[0] == "--socket" {
		if len(args) < 2 {
			fmt.Fprintf(os.Stderr, "error: -socket requires an argument\n")
			os.Exit(1)
		}
		socketPath = args[1]
		args = args[2:]
	}

	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	var events []Event

	switch args[0] {
	case "down", "grab":
		events = []Event{PointerDown{}}

	case "move":
		if len(args) < 2 {
			fmt.Fprintf(os.Stderr, "error: move requires a pixel delta\n")
			os.Exit(1)
		}
		dx := parseFloat("pixel delta", args[1])
		events = []Event{PointerMove{DeltaX: dx}}

	case "up", "release":
		var vx float64
		if len(args) >= 2 {
			vx = parseFloat("velocity", args[1])
		}
		events = []Event{PointerUp{VelocityX: vx}}

	case "drag", "flick":
		// A whole gesture: grab, move in steps, release.
		if len(args) < 2 {
			fmt.Fprintf(os.Stderr, "error: drag requires a pixel delta\n")
			os.Exit(1)
		}
		dx := parseFloat("pixel delta", args[1])
		var vx float64
		if len(args) >= 3 {
			vx = parseFloat("velocity", args[2])
		}
		events = append(events, PointerDown{})
		for i := 0; i < dragSteps; i++ {
			events = append(events, PointerMove{DeltaX: dx / dragSteps})
		}
		events = append(events, PointerUp{VelocityX: vx})

	case "help", "-h", "--help":
		printUsage()
		os.Exit(0)

	default:
		fmt.Fprintf(os.Stderr, "error: unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}

	if err := sendEvents(socketPath, events); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("ok")
}

func parseFloat(what, s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: invalid %s: %v\n", what, err)
		os.Exit(1)
	}
	return v
}

func sendEvents(socketPath string, events []Event) error {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", socketPath, err)
	}
	defer conn.Close()

	decoder := json.NewDecoder(conn)
	for i, ev := range events {
		data, err := marshalEvent(ev)
		if err != nil {
			return fmt.Errorf("marshal event: %w", err)
		}

		// Line-delimited JSON
		if _, err := fmt.Fprintf(conn, "%s\n", data); err != nil {
			return fmt.Errorf("send event: %w", err)
		}

		var response IPCResponse
		if err := decoder.Decode(&response); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		if response.Status == "error" {
			return fmt.Errorf("daemon error: %s", response.Error)
		}

		// Pace multi-event gestures roughly like a pointer would.
		if len(events) > 1 && i < len(events)-1 {
			time.Sleep(8 * time.Millisecond)
		}
	}

	return nil
}

func marshalEvent(ev Event) ([]byte, error) {
	var env EventEnvelope

	switch e := ev.(type) {
	case PointerDown:
		env.Type = "pointer_down"

	case PointerMove:
		env.Type = "pointer_move"
		data, err := json.Marshal(e)
		if err != nil {
			return nil, fmt.Errorf("marshal PointerMove: %w", err)
		}
		env.Data = data

	case PointerUp:
		env.Type = "pointer_up"
		data, err := json.Marshal(e)
		if err != nil {
			return nil, fmt.Errorf("marshal PointerUp: %w", err)
		}
		env.Data = data

	default:
		return nil, fmt.Errorf("unknown event type: %T", ev)
	}

	return json.Marshal(env)
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `wheel-ctl - Drive the tarotwheel daemon via IPC

Usage:
  wheel-ctl [options] <command> [args]

Options:
  -socket PATH    Unix domain socket path (default: /tmp/tarotwheel.sock)

Commands:
  down, grab              Grab the wheel (stops any coasting or snapping)
  move <px>               Drag by a horizontal delta in pixels (negative is left)
  up, release [px/s]      Release, optionally with a horizontal velocity
  drag, flick <px> [px/s] Grab, drag by <px> in steps, then release
  help, -h, --help        Show this help message

Examples:
  wheel-ctl drag -120
  wheel-ctl flick -60 -1500
  wheel-ctl -socket /run/tarotwheel.sock down
`)
}
