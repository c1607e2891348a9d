package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/wallet-back/internal/statestore"
	"github.com/wallet-back/pkg/models"
)

const (
	clientSendBuffer = 64
	writeWait        = 10 * time.Second
	pongWait         = 60 * time.Second
	pingPeriod       = 54 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Hub fans sync state updates out to WebSocket clients. On connect a client
// receives a full snapshot, then incremental frames as the store mutates.
type Hub struct {
	states *statestore.Store
	logger *logrus.Entry

	register   chan *client
	unregister chan *client
	broadcast  chan models.WSFrame
	clients    map[*client]bool
	done       chan struct{}
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	hub  *Hub
}

// NewHub creates a WebSocket fanout hub
func NewHub(states *statestore.Store, logger *logrus.Logger) *Hub {
	return &Hub{
		states:     states,
		logger:     logger.WithField("component", "ws-hub"),
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan models.WSFrame, clientSendBuffer),
		clients:    make(map[*client]bool),
		done:       make(chan struct{}),
	}
}

// Run pumps store updates to connected clients until ctx is canceled.
// After it returns no one drains register/unregister, so client pumps
// select on done instead of blocking.
func (h *Hub) Run(ctx context.Context) {
	updates, cancel := h.states.Subscribe()
	defer cancel()
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			return

		case c := <-h.register:
			h.clients[c] = true
			h.sendSnapshot(c)

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}

		case update, ok := <-updates:
			if !ok {
				return
			}
			h.broadcastFrame(frameForUpdate(update))

		case frame := <-h.broadcast:
			h.broadcastFrame(frame)
		}
	}
}

// Show implements the dock collaborator: tell connected presentation
// surfaces to expand their sync dock.
func (h *Hub) Show(reason string) {
	select {
	case h.broadcast <- models.WSFrame{Type: models.WSFrameDock, Reason: reason}:
	default:
	}
}

func frameForUpdate(update statestore.Update) models.WSFrame {
	switch update.Kind {
	case statestore.UpdateConnection:
		return models.WSFrame{Type: models.WSFrameConnection, Connection: update.Connection}
	default:
		return models.WSFrame{Type: models.WSFrameSyncState, Wallet: update.Wallet}
	}
}

func (h *Hub) sendSnapshot(c *client) {
	conn := h.states.Connection()
	frame := models.WSFrame{
		Type:       models.WSFrameSnapshot,
		Wallets:    h.states.Snapshot(),
		Connection: &conn,
	}
	data, err := json.Marshal(frame)
	if err != nil {
		h.logger.WithError(err).Error("Failed to marshal snapshot")
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

func (h *Hub) broadcastFrame(frame models.WSFrame) {
	data, err := json.Marshal(frame)
	if err != nil {
		h.logger.WithError(err).Error("Failed to marshal frame")
		return
	}
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			// Client buffer full: drop it rather than block the hub
			delete(h.clients, c)
			close(c.send)
		}
	}
}

// HandleWebSocket upgrades the connection and attaches it to the hub
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Error("Failed to upgrade connection")
		return
	}

	c := &client{
		id:   fmt.Sprintf("client-%d", time.Now().UnixNano()),
		conn: conn,
		send: make(chan []byte, clientSendBuffer),
		hub:  h,
	}

	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
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

// readPump drains inbound frames; clients only listen, so everything but
// control frames is discarded.
func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
