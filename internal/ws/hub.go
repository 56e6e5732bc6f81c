package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/zaqqye/inhouse_attendance/internal/events"
	"github.com/zaqqye/inhouse_attendance/internal/logging"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	sendBufferSize = 256
)

type message struct {
	inHouseID string
	userID    string
	payload   []byte
}

// scope decides which attendance events a dashboard connection receives.
type scope struct {
	allowAll bool
	inHouses map[string]struct{}
	userID   string
}

func (s scope) sees(msg message) bool {
	if s.allowAll {
		return true
	}
	if s.userID != "" && s.userID == msg.userID {
		return true
	}
	if msg.inHouseID == "" {
		return false
	}
	_, ok := s.inHouses[msg.inHouseID]
	return ok
}

// Hub fans attendance events out to websocket dashboards. It implements
// events.Publisher.
type Hub struct {
	register   chan *client
	unregister chan *client
	broadcast  chan message
	clients    map[*client]struct{}
	done       chan struct{}
	logger     *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan message, 256),
		clients:    make(map[*client]struct{}),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run serves the hub until ctx is cancelled, then closes every connection.
func (h *Hub) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			for c := range h.clients {
				h.drop(c)
			}
			return nil
		case c := <-h.register:
			h.clients[c] = struct{}{}
		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				h.drop(c)
			}
		case msg := <-h.broadcast:
			for c := range h.clients {
				if !c.scope.sees(msg) {
					continue
				}
				select {
				case c.send <- msg.payload:
				default:
					h.logger.Warn("Dropping slow websocket client", "user", c.scope.userID)
					h.drop(c)
				}
			}
		}
	}
}

func (h *Hub) drop(c *client) {
	delete(h.clients, c)
	close(c.send)
	c.conn.Close()
}

func (h *Hub) Publish(ctx context.Context, ev events.Event) error {
	if h == nil {
		return nil
	}
	data, err := json.Marshal(ev)
	if err != nil {
		h.logger.ErrorContext(ctx, "Failed to marshal attendance event", logging.ErrAttr(err))
		return err
	}
	msg := message{inHouseID: ev.InHouseID(), payload: data}
	if ev.Attendance != nil {
		msg.userID = ev.Attendance.UserID
	}
	select {
	case h.broadcast <- msg:
		return nil
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hub) join(c *client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

type client struct {
	hub   *Hub
	conn  *websocket.Conn
	send  chan []byte
	scope scope
}

func newClient(hub *Hub, conn *websocket.Conn, s scope) *client {
	return &client{
		hub:   hub,
		conn:  conn,
		send:  make(chan []byte, sendBufferSize),
		scope: s,
	}
}

func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
	}()
	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
