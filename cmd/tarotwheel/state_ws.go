package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"tarotwheel/wheel"
)

// ============================================================================
// State WebSocket: hub + per-client pumps + broadcaster
// ============================================================================
//
// This file implements:
//   - A Hub that tracks connected WebSocket clients
//   - Per-client write pumps so one slow client doesn't block others
//   - A broadcaster loop that reads daemon-emitted broadcasts and fans out
//
// Design constraints:
//   - The wheel controller stays daemon-owned; the initial snapshot on
//     connect goes through the daemon loop.
//   - Slow clients are disconnected when their send buffer fills.
//   - Messages are JSON text frames with an envelope: {type, ts, data}.
//
// ============================================================================

const (
	wsTypeStateInit    = "state_init"
	wsTypeFrame        = "frame"
	wsTypePhaseChanged = "phase_changed"
	wsTypeIndexSettled = "index_settled"
)

// wsFrameData is the JSON `data` payload for "frame".
type wsFrameData struct {
	Phase           string  `json:"phase"`
	Distance        float64 `json:"distance"`
	Angle           float64 `json:"angle"`
	FractionalIndex float64 `json:"fractional_index"`
	ActiveIndex     int     `json:"active_index"`
	Card            string  `json:"card"`
	Velocity        float64 `json:"velocity"`
	Cycle           uint64  `json:"cycle"`
}

// wsPlacementData is one card transform in "state_init".
type wsPlacementData struct {
	Index int     `json:"index"`
	Card  string  `json:"card"`
	Angle float64 `json:"angle"`
	Lift  float64 `json:"lift"`
}

// wsGeometryData describes the wheel so clients can render it.
type wsGeometryData struct {
	SlotCount              int     `json:"slot_count"`
	CardHeight             float64 `json:"card_height"`
	AnglePerSlot           float64 `json:"angle_per_slot"`
	Radius                 float64 `json:"radius"`
	Circumference          float64 `json:"circumference"`
	DistanceToScreenFactor float64 `json:"distance_to_screen_factor"`
}

// wsStateInitData is the JSON `data` payload for "state_init".
type wsStateInitData struct {
	Geometry   wsGeometryData    `json:"geometry"`
	Frame      wsFrameData       `json:"frame"`
	Placements []wsPlacementData `json:"placements"`
	Deck       []Card            `json:"deck"`
}

// wsPhaseChangedData is the JSON `data` payload for "phase_changed".
type wsPhaseChangedData struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Cycle uint64 `json:"cycle"`
}

// wsIndexSettledData is the JSON `data` payload for "index_settled".
type wsIndexSettledData struct {
	Index int    `json:"index"`
	Card  string `json:"card"`
	Cycle uint64 `json:"cycle"`
}

// wsOutboundEvent is a pre-typed, externally-consumable state event.
type wsOutboundEvent struct {
	Type string
	Data any
	At   time.Time // zero means use now
}

// envelope is the wire format envelope for WS messages.
type envelope struct {
	Type string     `json:"type"`
	Ts   *time.Time `json:"ts,omitempty"`
	Data any        `json:"data,omitempty"`
}

func frameData(f wheel.Frame, card string) wsFrameData {
	return wsFrameData{
		Phase:           f.Phase.String(),
		Distance:        f.Distance,
		Angle:           f.Angle,
		FractionalIndex: f.FractionalIndex,
		ActiveIndex:     f.ActiveIndex,
		Card:            card,
		Velocity:        f.Velocity,
		Cycle:           f.Cycle,
	}
}

func stateInitData(snap StateSnapshot) wsStateInitData {
	placements := make([]wsPlacementData, len(snap.Placements))
	for i, p := range snap.Placements {
		placements[i] = wsPlacementData{
			Index: p.Index,
			Card:  snap.Deck.Key(p.Index),
			Angle: p.Angle,
			Lift:  p.Lift,
		}
	}
	deck := snap.Deck.Cards
	if deck == nil {
		deck = []Card{}
	}
	return wsStateInitData{
		Geometry: wsGeometryData{
			SlotCount:              snap.Config.SlotCount,
			CardHeight:             snap.Config.CardHeight,
			AnglePerSlot:           snap.Config.AnglePerSlot,
			Radius:                 snap.Config.Radius,
			Circumference:          snap.Config.Circumference,
			DistanceToScreenFactor: snap.Config.DistanceToScreenFactor,
		},
		Frame:      frameData(snap.Frame, snap.Deck.Key(snap.Frame.ActiveIndex)),
		Placements: placements,
		Deck:       deck,
	}
}

func marshalEnvelope(ev wsOutboundEvent) ([]byte, error) {
	ts := ev.At
	if ts.IsZero() {
		ts = time.Now()
	}
	ts = ts.UTC()
	return json.Marshal(envelope{Type: ev.Type, Ts: &ts, Data: ev.Data})
}

// ============================================================================
// Hub
// ============================================================================

type Hub struct {
	logger *slog.Logger

	// Buffered broadcast channel for already-serialized JSON frames.
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client

	mu      sync.Mutex
	clients map[*Client]struct{}

	sendBuf int
}

type HubConfig struct {
	// SendBuf is the per-client outbound queue size. Zero means 32.
	SendBuf int

	// BroadcastBuf is the hub inbound broadcast queue size. Zero means 128.
	BroadcastBuf int
}

// NewHub constructs a hub. Call Run(ctx) to start it.
func NewHub(logger *slog.Logger, cfg HubConfig) *Hub {
	sendBuf := cfg.SendBuf
	if sendBuf <= 0 {
		sendBuf = 32
	}
	bcastBuf := cfg.BroadcastBuf
	if bcastBuf <= 0 {
		bcastBuf = 128
	}

	return &Hub{
		logger:     logger,
		broadcast:  make(chan []byte, bcastBuf),
		register:   make(chan *Client, 64),
		unregister: make(chan *Client, 64),
		clients:    make(map[*Client]struct{}),
		sendBuf:    sendBuf,
	}
}

// Run processes hub events until ctx is canceled.
// It disconnects all clients on shutdown.
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("ws hub starting")

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("ws hub stopping (context canceled)")
			h.closeAllClients()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("ws client registered", "remote_addr", c.remoteAddr, "clients", n)

		case c := <-h.unregister:
			h.removeClient(c, "unregister")

		case msg := <-h.broadcast:
			// Collect slow clients first, then remove them after we unlock.
			var slow []*Client

			h.mu.Lock()
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					slow = append(slow, c)
				}
			}
			h.mu.Unlock()

			for _, c := range slow {
				h.removeClient(c, "slow_client")
			}
		}
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if c.conn != nil {
			_ = c.conn.Close()
		}
		safeCloseChan(c.send)
		delete(h.clients, c)
	}
}

func (h *Hub) removeClient(c *Client, reason string) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
	}
	n := len(h.clients)
	h.mu.Unlock()

	if ok {
		if c.conn != nil {
			_ = c.conn.Close()
		}
		// Closing send signals writePump to exit.
		safeCloseChan(c.send)

		level := slog.LevelInfo
		if reason == "slow_client" {
			level = slog.LevelWarn
		}
		h.logger.Log(context.Background(), level, "ws client disconnected", "remote_addr", c.remoteAddr, "reason", reason, "clients", n)
	}
}

func safeCloseChan(ch chan []byte) {
	defer func() {
		_ = recover() // ignore "close of closed channel"
	}()
	close(ch)
}

// BroadcastBytes enqueues a pre-serialized JSON WS frame for broadcast.
// It never blocks; if the hub queue is full it drops the message.
func (h *Hub) BroadcastBytes(msg []byte) {
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn("ws hub broadcast queue full, dropping message", "bytes", len(msg))
	}
}

// ============================================================================
// Client
// ============================================================================

type Client struct {
	hub *Hub

	conn *websocket.Conn
	send chan []byte

	remoteAddr string
	logger     *slog.Logger
}

// NewClient creates a client with a buffered send channel.
func NewClient(hub *Hub, conn *websocket.Conn, remoteAddr string, logger *slog.Logger) *Client {
	sendBuf := 32
	if hub != nil && hub.sendBuf > 0 {
		sendBuf = hub.sendBuf
	}
	return &Client{
		hub:        hub,
		conn:       conn,
		send:       make(chan []byte, sendBuf),
		remoteAddr: remoteAddr,
		logger:     logger,
	}
}

const (
	writeWait  = 5 * time.Second
	pongWait   = 30 * time.Second
	pingPeriod = 20 * time.Second
)

// closeStatus extracts a human-readable websocket close code / text when possible.
func closeStatus(err error) (code int, text string, ok bool) {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code, ce.Text, true
	}
	return 0, "", false
}

func (c *Client) logExit(pump, kind string, err error) {
	if errors.Is(err, websocket.ErrCloseSent) {
		return
	}
	if code, text, ok := closeStatus(err); ok {
		c.logger.Info("ws "+pump+" exiting (close)", "remote_addr", c.remoteAddr, "code", code, "reason", text)
		return
	}
	c.logger.Info("ws "+pump+" exiting ("+kind+" error)", "remote_addr", c.remoteAddr, "error", err)
}

// writePump writes messages from the send queue to the websocket.
// It exits on write error or when send is closed.
func (c *Client) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Channel closed: hub is disconnecting us.
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.logExit("writePump", "write", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logExit("writePump", "ping", err)
				return
			}
		}
	}
}

// readPump reads and discards incoming messages to detect disconnects and
// handle control frames. It exits on read error, then unregisters the client.
func (c *Client) readPump(ctx context.Context) {
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if ctx.Err() != nil {
			return
		}
		if _, _, err := c.conn.ReadMessage(); err != nil {
			c.logExit("readPump", "read", err)
			if c.hub != nil {
				c.hub.unregister <- c
			}
			return
		}
	}
}

// ============================================================================
// HTTP Handler + server wiring helpers
// ============================================================================

type Server struct {
	logger *slog.Logger

	hub *Hub

	// Required for the initial snapshot request on connect.
	events chan<- Event
}

type ServerConfig struct {
	Hub HubConfig
}

// NewServer constructs the WS state server components. Call Register on a
// mux, start Hub().Run(ctx), and start RunBroadcaster.
func NewServer(logger *slog.Logger, events chan<- Event, cfg ServerConfig) *Server {
	return &Server{
		logger: logger,
		hub:    NewHub(logger, cfg.Hub),
		events: events,
	}
}

func (s *Server) Hub() *Hub { return s.hub }

// Register registers the WS handler on the provided mux.
func (s *Server) Register(mux *http.ServeMux, path string) {
	if mux == nil {
		return
	}
	mux.HandleFunc(path, s.handleStateWS)
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleStateWS upgrades and registers a client, then sends state_init.
func (s *Server) handleStateWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("ws upgrade failed", "error", err)
		return
	}

	client := NewClient(s.hub, conn, r.RemoteAddr, s.logger)

	// Register client first so broadcasts can reach it.
	s.hub.register <- client

	// Pumps are not tied to r.Context(): net/http cancels it when the handler
	// returns. The hub and websocket errors own the connection lifetime.
	go client.writePump(context.Background())
	go client.readPump(context.Background())

	if s.events == nil {
		return
	}

	reply := make(chan StateSnapshot, 1)
	select {
	case <-r.Context().Done():
		return
	case s.events <- RequestStateSnapshot{Reply: reply}:
	}

	waitCtx, cancel := context.WithTimeout(r.Context(), 1*time.Second)
	defer cancel()

	select {
	case <-waitCtx.Done():
		if !errors.Is(waitCtx.Err(), context.Canceled) {
			s.logger.Warn("ws snapshot request failed", "error", waitCtx.Err())
		}
		return

	case snap := <-reply:
		initMsg, err := marshalEnvelope(wsOutboundEvent{
			Type: wsTypeStateInit,
			Data: stateInitData(snap),
			At:   snap.At,
		})
		if err != nil {
			s.logger.Warn("ws state_init marshal failed", "error", err)
			return
		}
		// Enqueue init message; if client is already slow, disconnect.
		select {
		case client.send <- initMsg:
		default:
			s.hub.unregister <- client
		}
	}
}

// ============================================================================
// Broadcaster
// ============================================================================

// RunBroadcaster reads daemon-emitted broadcasts, marshals them, and fans
// them out to all hub clients. Intended to run as a single goroutine.
//
// Frames are rate-limited: the latest pending frame is flushed at most once
// every coalesce window, even if frames keep arriving (no debounce-on-silence).
// Any other event first flushes the pending frame and is then sent
// immediately, so clients never see a settle before the frame that led to it.
// A zero window disables coalescing.
func RunBroadcaster(ctx context.Context, hub *Hub, src <-chan StateBroadcast, coalesce time.Duration, logger *slog.Logger) {
	if hub == nil || src == nil {
		return
	}

	var pendingFrame *wsOutboundEvent
	var frameTimer *time.Timer
	var frameTimerCh <-chan time.Time

	send := func(ev wsOutboundEvent) {
		msg, err := marshalEnvelope(ev)
		if err != nil {
			logger.Warn("ws broadcaster marshal failed", "error", err, "type", ev.Type)
			return
		}
		hub.BroadcastBytes(msg)
	}

	flushPendingFrame := func() {
		if pendingFrame == nil {
			return
		}
		send(*pendingFrame)
		pendingFrame = nil
	}

	stopFrameTimer := func() {
		if frameTimer == nil {
			frameTimerCh = nil
			return
		}
		if !frameTimer.Stop() {
			select {
			case <-frameTimer.C:
			default:
			}
		}
		frameTimer = nil
		frameTimerCh = nil
	}

	for {
		select {
		case <-ctx.Done():
			flushPendingFrame()
			stopFrameTimer()
			return

		case <-frameTimerCh:
			flushPendingFrame()
			// The timer keeps running only while frames keep coming.
			frameTimer = nil
			frameTimerCh = nil

		case b, ok := <-src:
			if !ok {
				flushPendingFrame()
				stopFrameTimer()
				logger.Info("ws broadcaster stopping (source ended)")
				return
			}

			ev, ok := convertBroadcast(b)
			if !ok {
				continue
			}

			if ev.Type == wsTypeFrame && coalesce > 0 {
				// Latest-wins; do NOT reset the timer on each update.
				copyEv := ev
				pendingFrame = &copyEv
				if frameTimer == nil {
					frameTimer = time.NewTimer(coalesce)
					frameTimerCh = frameTimer.C
				}
				continue
			}

			flushPendingFrame()
			if ev.Type != wsTypeFrame {
				stopFrameTimer()
			}
			send(ev)
		}
	}
}

func convertBroadcast(b StateBroadcast) (wsOutboundEvent, bool) {
	switch ev := b.(type) {
	case BroadcastFrame:
		return wsOutboundEvent{
			Type: wsTypeFrame,
			Data: frameData(ev.Frame, ev.Card),
			At:   ev.At,
		}, true

	case BroadcastPhaseChanged:
		return wsOutboundEvent{
			Type: wsTypePhaseChanged,
			Data: wsPhaseChangedData{From: ev.From.String(), To: ev.To.String(), Cycle: ev.Cycle},
			At:   ev.At,
		}, true

	case BroadcastIndexSettled:
		return wsOutboundEvent{
			Type: wsTypeIndexSettled,
			Data: wsIndexSettledData{Index: ev.Index, Card: ev.Card, Cycle: ev.Cycle},
			At:   ev.At,
		}, true

	default:
		return wsOutboundEvent{}, false
	}
}
