package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
)

// envelope mirrors the daemon's state WS wire format.
type envelope struct {
	Type string          `json:"type"`
	Ts   time.Time       `json:"ts"`
	Data json.RawMessage `json:"data"`
}

type frameData struct {
	Phase           string  `json:"phase"`
	Distance        float64 `json:"distance"`
	FractionalIndex float64 `json:"fractional_index"`
	ActiveIndex     int     `json:"active_index"`
	Card            string  `json:"card"`
	Velocity        float64 `json:"velocity"`
	Cycle           uint64  `json:"cycle"`
}

type stateInitData struct {
	Geometry struct {
		SlotCount     int     `json:"slot_count"`
		Radius        float64 `json:"radius"`
		Circumference float64 `json:"circumference"`
	} `json:"geometry"`
	Frame frameData `json:"frame"`
}

type phaseChangedData struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Cycle uint64 `json:"cycle"`
}

type indexSettledData struct {
	Index int    `json:"index"`
	Card  string `json:"card"`
	Cycle uint64 `json:"cycle"`
}

func main() {
	var (
		wsURL  = flag.String("ws", "ws://127.0.0.1:8088/ws/state", "tarotwheel state websocket URL")
		frames = flag.Bool("frames", false, "Print every frame (default: only when the active card changes)")
		raw    = flag.Bool("raw", false, "Pretty print every message as JSON")
	)
	flag.Parse()

	u, err := url.Parse(*wsURL)
	if err != nil {
		log.Fatalf("invalid websocket URL: %v", err)
	}

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

	d := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}

	log.Printf("connecting to %s...", u.String())
	conn, _, err := d.Dial(u.String(), nil)
	if err != nil {
		log.Fatalf("failed to connect: %v", err)
	}
	defer conn.Close()

	log.Printf("connected! (press Ctrl+C to exit)")

	// The daemon pings every 20s; answer pongs keep the read deadline alive.
	var writeMu sync.Mutex
	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPingHandler(func(appData string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(5*time.Second))
	})

	p := &printer{frames: *frames, raw: *raw, lastIndex: -1}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			messageType, message, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
					log.Printf("websocket error: %v", err)
				}
				return
			}
			conn.SetReadDeadline(time.Now().Add(60 * time.Second))

			switch messageType {
			case websocket.TextMessage:
				p.handle(message)
			case websocket.BinaryMessage:
				fmt.Printf("[BINARY] %d bytes\n", len(message))
			}
		}
	}()

	select {
	case <-sigc:
		log.Printf("shutting down...")
		writeMu.Lock()
		err := conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		writeMu.Unlock()
		if err != nil {
			log.Printf("error closing connection: %v", err)
		}
	case <-done:
		log.Printf("connection closed")
	}
}

// printer turns state messages into one line each.
type printer struct {
	frames    bool
	raw       bool
	lastIndex int
}

func (p *printer) handle(message []byte) {
	if p.raw {
		var v any
		if err := json.Unmarshal(message, &v); err != nil {
			fmt.Printf("[TEXT] %s\n", string(message))
			return
		}
		pretty, _ := json.MarshalIndent(v, "", "  ")
		fmt.Printf("%s\n", string(pretty))
		return
	}

	var env envelope
	if err := json.Unmarshal(message, &env); err != nil {
		fmt.Printf("[TEXT] %s\n", string(message))
		return
	}
	ts := env.Ts.Local().Format("15:04:05.000")

	switch env.Type {
	case "state_init":
		var d stateInitData
		if err := json.Unmarshal(env.Data, &d); err != nil {
			log.Printf("bad state_init: %v", err)
			return
		}
		p.lastIndex = d.Frame.ActiveIndex
		fmt.Printf("%s [INIT] %d slots, radius %.1f, circumference %.1f; %s on %q (index %d)\n",
			ts, d.Geometry.SlotCount, d.Geometry.Radius, d.Geometry.Circumference,
			d.Frame.Phase, d.Frame.Card, d.Frame.ActiveIndex)

	case "frame":
		var d frameData
		if err := json.Unmarshal(env.Data, &d); err != nil {
			log.Printf("bad frame: %v", err)
			return
		}
		if !p.frames && d.ActiveIndex == p.lastIndex {
			return
		}
		p.lastIndex = d.ActiveIndex
		fmt.Printf("%s [FRAME] %-8s index %6.2f -> %q  v=%.1f\n",
			ts, d.Phase, d.FractionalIndex, d.Card, d.Velocity)

	case "phase_changed":
		var d phaseChangedData
		if err := json.Unmarshal(env.Data, &d); err != nil {
			log.Printf("bad phase_changed: %v", err)
			return
		}
		fmt.Printf("%s [PHASE] %s -> %s (cycle %d)\n", ts, d.From, d.To, d.Cycle)

	case "index_settled":
		var d indexSettledData
		if err := json.Unmarshal(env.Data, &d); err != nil {
			log.Printf("bad index_settled: %v", err)
			return
		}
		fmt.Printf("%s [SETTLED] %q (index %d, cycle %d)\n", ts, d.Card, d.Index, d.Cycle)

	default:
		fmt.Printf("%s [%s] %s\n", ts, env.Type, string(env.Data))
	}
}
