// Package monitor serves a websocket feed of every controller state sent to the peer.
package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/Alia5/padproxy/device/switchpro"
	"github.com/gorilla/websocket"
)

// Config is embedded into the bridge command with the "monitor." prefix.
type Config struct {
	Addr string `help:"Serve a websocket monitor of sent controller states on this address (e.g. localhost:3243); empty disables" env:"PADPROXY_MONITOR_ADDR"`
}

const (
	sendBuffer   = 64
	writeTimeout = time.Second
)

// Message is the JSON document pushed to clients for each sent state.
type Message struct {
	Seq     uint64   `json:"seq"`
	Buttons []string `json:"buttons"`
	LX      uint16   `json:"lx"`
	LY      uint16   `json:"ly"`
	RX      uint16   `json:"rx"`
	RY      uint16   `json:"ry"`
}

// NewMessage converts a sent state.
func NewMessage(seq uint64, st switchpro.InputState) Message {
	return Message{Seq: seq, Buttons: st.Buttons.Split(), LX: st.LX, LY: st.LY, RX: st.RX, RY: st.RY}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub fans states out to connected websocket clients.
// Clients that cannot keep up are disconnected.
type Hub struct {
	logger *slog.Logger

	mu      sync.Mutex
	clients map[*client]struct{}
	last    []byte
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{logger: logger, clients: map[*client]struct{}{}}
}

// Observe has the signature of switchpro.Controller's observer.
func (h *Hub) Observe(seq uint64, st switchpro.InputState) {
	data, err := json.Marshal(NewMessage(seq, st))
	if err != nil {
		h.logger.Error("Failed to marshal monitor message", "error", err)
		return
	}
	h.Broadcast(data)
}

// Broadcast queues data for every client and remembers it for clients joining later.
func (h *Hub) Broadcast(data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.last = data
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.logger.Warn("Monitor client too slow, disconnecting", "remote", c.conn.RemoteAddr())
			h.removeLocked(c)
		}
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Handler returns the HTTP handler serving /ws.
func (h *Hub) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", h.serveWS)
	return mux
}

func (h *Hub) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", "error", err)
		return
	}
	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	if h.last != nil {
		c.send <- h.last
	}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Info("Monitor client connected", "remote", conn.RemoteAddr(), "clients", n)

	go h.writePump(c)
	go h.readPump(c)
}

func (h *Hub) writePump(c *client) {
	defer c.conn.Close()
	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			h.remove(c)
			return
		}
	}
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeTimeout))
}

// readPump discards client messages and notices disconnects.
func (h *Hub) readPump(c *client) {
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			h.remove(c)
			return
		}
	}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

func (h *Hub) removeLocked(c *client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
	h.logger.Info("Monitor client disconnected", "remote", c.conn.RemoteAddr(), "clients", len(h.clients))
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		h.removeLocked(c)
	}
}

// ListenAndServe serves the hub on addr until ctx is done.
func (h *Hub) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return h.Serve(ctx, ln)
}

// Serve serves the hub on ln until ctx is done.
func (h *Hub) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{Handler: h.Handler(), ReadHeaderTimeout: 5 * time.Second}
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(sctx)
		h.Close()
	}()

	h.logger.Info("Monitor listening", "addr", ln.Addr().String())
	err := srv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		<-stopped
		return nil
	}
	return err
}
