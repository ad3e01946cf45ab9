package http

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"ticketfeed-server/pkg/errors"
	"ticketfeed-server/pkg/metrics"
	"ticketfeed-server/pkg/render"
	"ticketfeed-server/pkg/util"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBufferSize = 16
)

// DashboardMessage is pushed to dashboard subscribers after every refresh
type DashboardMessage struct {
	Type      string           `json:"type"`
	Snapshot  *render.Snapshot `json:"snapshot,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

// Client is one connected dashboard subscriber
type Client struct {
	hub  *DashboardHub
	conn *websocket.Conn
	send chan []byte
}

// DashboardHub fans refreshed snapshots out to WebSocket subscribers
type DashboardHub struct {
	logger     *logrus.Entry
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	panics     *util.PanicHandler
	running    atomic.Bool
	mutex      sync.RWMutex
}

// WebSocketUpgrader configures the WebSocket connection
var WebSocketUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// NewDashboardHub creates a hub; call Run to start it
func NewDashboardHub(logger *logrus.Logger) *DashboardHub {
	return &DashboardHub{
		logger:     logger.WithField("component", "dashboard_hub"),
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, sendBufferSize),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		panics:     util.NewPanicHandler(logger),
	}
}

// Run serves the hub until ctx is canceled
func (h *DashboardHub) Run(ctx context.Context) error {
	h.running.Store(true)
	h.logger.Info("Starting dashboard WebSocket hub")

	defer func() {
		h.running.Store(false)
		close(h.done)

		h.mutex.Lock()
		for client := range h.clients {
			delete(h.clients, client)
			close(client.send)
		}
		h.mutex.Unlock()
		metrics.SetDashboardSubscribers(0)

		h.logger.Info("Dashboard WebSocket hub stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			count := len(h.clients)
			h.mutex.Unlock()

			metrics.SetDashboardSubscribers(count)
			h.logger.WithField("subscribers", count).Debug("Dashboard client connected")

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			count := len(h.clients)
			h.mutex.Unlock()

			metrics.SetDashboardSubscribers(count)
			h.logger.WithField("subscribers", count).Debug("Dashboard client disconnected")

		case data := <-h.broadcast:
			h.mutex.Lock()
			for client := range h.clients {
				select {
				case client.send <- data:
				default:
					// Slow subscriber; drop it rather than stall the hub
					close(client.send)
					delete(h.clients, client)
				}
			}
			count := len(h.clients)
			h.mutex.Unlock()

			metrics.SetDashboardSubscribers(count)
		}
	}
}

// BroadcastSnapshot queues snapshot for every subscriber. It never blocks: when
// the queue is full or the hub is stopped the snapshot is dropped.
func (h *DashboardHub) BroadcastSnapshot(snapshot *render.Snapshot) {
	if !h.IsRunning() {
		return
	}

	data, err := json.Marshal(DashboardMessage{
		Type:      "snapshot",
		Snapshot:  snapshot,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		h.logger.WithError(err).Error("Failed to marshal dashboard snapshot")
		return
	}

	select {
	case h.broadcast <- data:
	default:
		h.logger.Warn("Dashboard broadcast queue full, dropping snapshot")
	}
}

// ServeWs upgrades the request and subscribes the connection to snapshots
func (h *DashboardHub) ServeWs(w http.ResponseWriter, r *http.Request) {
	if !h.IsRunning() {
		errors.WriteError(w, errors.Wrap(errors.ErrUnavailable, "dashboard hub is not running"))
		return
	}

	conn, err := WebSocketUpgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Warn("Failed to upgrade connection to WebSocket")
		return
	}

	client := &Client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
	}

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	h.panics.SafeGo("dashboard_write_pump", client.writePump)
	h.panics.SafeGo("dashboard_read_pump", client.readPump)
}

// IsRunning reports whether Run is active
func (h *DashboardHub) IsRunning() bool {
	return h.running.Load()
}

// ClientCount returns the number of connected subscribers
func (h *DashboardHub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// readPump discards inbound frames and unregisters the client when the
// connection drops
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
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

// writePump pumps messages from the hub to the WebSocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
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
