package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/roach88/rehook/internal/engine"
	"github.com/roach88/rehook/internal/ir"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 1 << 20
	sendBuffer     = 64
)

// Frame types pushed to websocket clients.
const (
	FrameResponse = "response"
	FrameError    = "error"
)

// Frame is one server-to-client websocket message.
type Frame struct {
	Type     string           `json:"type"`
	Instance string           `json:"instance"`
	Response *engine.Response `json:"response,omitempty"`
	Error    *ErrorBody       `json:"error,omitempty"`
}

// ClientMessage is one client-to-server websocket message.
type ClientMessage struct {
	Events []ir.Event `json:"events"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// client is one websocket connection. Only writePump writes to conn.
type client struct {
	instance string
	conn     *websocket.Conn
	send     chan []byte
	done     chan struct{}
	once     sync.Once
}

func (c *client) close() {
	c.once.Do(func() { close(c.done) })
}

// push queues data without blocking. A client whose buffer is full is
// closed.
func (c *client) push(data []byte) {
	select {
	case <-c.done:
	case c.send <- data:
	default:
		c.close()
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case data := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}

// hub fans committed responses out to the websocket clients of their
// instance. It is a host.Sink.
type hub struct {
	mu      sync.RWMutex
	clients map[string]map[*client]struct{}
	logger  *slog.Logger
}

func newHub(logger *slog.Logger) *hub {
	return &hub{clients: make(map[string]map[*client]struct{}), logger: logger}
}

func (h *hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.clients[c.instance]
	if !ok {
		set = make(map[*client]struct{})
		h.clients[c.instance] = set
	}
	set[c] = struct{}{}
}

func (h *hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.clients[c.instance]
	delete(set, c)
	if len(set) == 0 {
		delete(h.clients, c.instance)
	}
}

// count reports the clients attached to instance.
func (h *hub) count(instance string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[instance])
}

// Publish implements host.Sink.
func (h *hub) Publish(instance string, resp *engine.Response) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	set := h.clients[instance]
	if len(set) == 0 {
		return
	}
	data, err := json.Marshal(Frame{Type: FrameResponse, Instance: instance, Response: resp})
	if err != nil {
		h.logger.Error("marshal frame", "instance", instance, "error", err)
		return
	}
	for c := range set {
		c.push(data)
	}
}

func (h *hub) closeInstance(instance string) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients[instance] {
		c.close()
	}
}

func (h *hub) closeAll() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, set := range h.clients {
		for c := range set {
			c.close()
		}
	}
}

// websocket attaches a client to an instance. Every message the client
// sends runs one cycle; responses reach it through the hub.
func (s *Server) websocket(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, _, err := s.runner.State(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", "instance", id, "error", err)
		return
	}

	c := &client{
		instance: id,
		conn:     conn,
		send:     make(chan []byte, sendBuffer),
		done:     make(chan struct{}),
	}
	s.hub.register(c)
	defer s.hub.unregister(c)
	go c.writePump()
	defer c.close()

	s.logger.Debug("websocket attached", "instance", id)
	s.readPump(r, c)
	s.logger.Debug("websocket detached", "instance", id)
}

func (s *Server) readPump(r *http.Request, c *client) {
	limiter := s.limiter()
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.pushError(c, ErrorBody{Code: CodeBadRequest, Message: err.Error()})
			continue
		}
		// The limiter can never admit more than one burst at once.
		if n := len(msg.Events); n > limiter.Burst() {
			s.pushError(c, ErrorBody{Code: CodeBadRequest,
				Message: fmt.Sprintf("message carries %d events, at most %d allowed per message", n, limiter.Burst())})
			continue
		}
		if !limiter.AllowN(time.Now(), max(len(msg.Events), 1)) {
			s.pushError(c, ErrorBody{Code: CodeRateLimited, Message: "event rate exceeded"})
			continue
		}
		if _, err := s.runner.Cycle(r.Context(), c.instance, msg.Events); err != nil {
			_, body := classify(err)
			s.pushError(c, body)
		}
	}
}

func (s *Server) pushError(c *client, body ErrorBody) {
	data, err := json.Marshal(Frame{Type: FrameError, Instance: c.instance, Error: &body})
	if err != nil {
		return
	}
	c.push(data)
}
