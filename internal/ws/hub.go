package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

// Message is one hub-to-client frame.
type Message struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// client is one connected websocket consumer.
type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans persisted probe results out to connected clients.
type Hub struct {
	logger         *zap.Logger
	allowedOrigins []string

	mu         sync.Mutex
	clients    map[*client]struct{}
	broadcast  chan []byte
	register   chan *client
	unregister chan *client
}

// NewHub creates a result hub.
func NewHub(logger *zap.Logger, allowedOrigins []string) *Hub {
	return &Hub{
		logger:         logger,
		allowedOrigins: allowedOrigins,
		clients:        make(map[*client]struct{}),
		broadcast:      make(chan []byte, 256),
		register:       make(chan *client),
		unregister:     make(chan *client),
	}
}

// Run starts the hub loop; call in a goroutine.
func (h *Hub) Run() {
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			h.mu.Unlock()

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.mu.Lock()
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					// Slow consumer: drop it rather than back up
					// the scheduler side.
					close(c.send)
					delete(h.clients, c)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Broadcast sends an event to every connected client.
func (h *Hub) Broadcast(event string, payload interface{}) error {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	frame, err := json.Marshal(Message{Event: event, Payload: payloadJSON})
	if err != nil {
		return err
	}

	select {
	case h.broadcast <- frame:
	default:
		h.logger.Warn("broadcast buffer full, dropping frame",
			zap.String("event", event))
	}
	return nil
}

// Handler upgrades an HTTP request to a websocket and streams results
// until the client disconnects.
func (h *Hub) Handler(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.allowedOrigins,
	})
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &client{
		conn: conn,
		send: make(chan []byte, 256),
	}
	h.register <- c

	go c.writePump(h.logger)
	c.readPump(h)
}

// readPump drains the connection until close so the server notices a
// disconnect.
func (c *client) readPump(h *Hub) {
	defer func() {
		h.unregister <- c
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	ctx := context.Background()
	for {
		if _, _, err := c.conn.Read(ctx); err != nil {
			return
		}
	}
}

func (c *client) writePump(logger *zap.Logger) {
	ctx := context.Background()
	for msg := range c.send {
		if err := c.conn.Write(ctx, websocket.MessageText, msg); err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure &&
				status != websocket.StatusGoingAway &&
				status != websocket.StatusNoStatusRcvd {
				logger.Warn("websocket write failed", zap.Error(err))
			}
			return
		}
	}
}
