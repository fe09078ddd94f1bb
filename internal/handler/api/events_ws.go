package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"PatternScan/internal/domain/models"
	xlogger "PatternScan/pkg/logger"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendBuffer = 256
)

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// EventHub fans consumed events out to every connected websocket client.
// Clients that fall behind by more than sendBuffer messages are dropped.
type EventHub struct {
	logger   *xlogger.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*wsClient]struct{}
}

func NewEventHub(logger *xlogger.Logger, allowedOrigins []string) *EventHub {
	if logger == nil {
		logger = xlogger.Nop()
	}
	h := &EventHub{logger: logger, clients: make(map[*wsClient]struct{})}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return h
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || len(allowed) == 0 {
			return true
		}
		for _, a := range allowed {
			if a == "*" || a == origin {
				return true
			}
		}
		return false
	}
}

func (h *EventHub) RegisterRoutes(e *echo.Echo) {
	e.GET("/ws/events", h.Serve)
}

// Serve upgrades the request and streams events until the client leaves.
func (h *EventHub) Serve(c echo.Context) error {
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", xlogger.String("remote", c.RealIP()), xlogger.Error(err))
		return nil
	}
	cl := &wsClient{conn: conn, send: make(chan []byte, sendBuffer)}
	h.mu.Lock()
	h.clients[cl] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", xlogger.String("remote", c.RealIP()), xlogger.Int("clients", n))

	go h.writePump(cl)
	h.readPump(cl)
	return nil
}

// Clients returns the number of connected clients.
func (h *EventHub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Broadcast queues msg for every client.
func (h *EventHub) Broadcast(msg []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for cl := range h.clients {
		select {
		case cl.send <- msg:
		default:
			h.logger.Warn("websocket client too slow, dropping", xlogger.String("remote", cl.conn.RemoteAddr().String()))
			h.drop(cl)
		}
	}
}

// HandleMessage matches kafka.HandlerFunc. Values that are not event
// envelopes are rejected so the consumer logs them.
func (h *EventHub) HandleMessage(_ context.Context, topic string, _, value []byte) error {
	var ev models.Event
	if err := json.Unmarshal(value, &ev); err != nil {
		return err
	}
	if ev.Type == "" {
		ev.Type = topic
		b, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		value = b
	}
	h.Broadcast(value)
	return nil
}

// Close disconnects every client.
func (h *EventHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for cl := range h.clients {
		h.drop(cl)
	}
}

// drop must be called with mu held.
func (h *EventHub) drop(cl *wsClient) {
	if _, ok := h.clients[cl]; !ok {
		return
	}
	delete(h.clients, cl)
	close(cl.send)
}

func (h *EventHub) readPump(cl *wsClient) {
	defer func() {
		h.mu.Lock()
		h.drop(cl)
		h.mu.Unlock()
		_ = cl.conn.Close()
	}()
	cl.conn.SetReadLimit(512)
	_ = cl.conn.SetReadDeadline(time.Now().Add(pongWait))
	cl.conn.SetPongHandler(func(string) error {
		return cl.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := cl.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *EventHub) writePump(cl *wsClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = cl.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-cl.send:
			_ = cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = cl.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := cl.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := cl.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
