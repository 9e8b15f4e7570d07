// Package stream pushes tracking snapshots to live dashboard clients.
package stream

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fuel-logistics/internal/models"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 16
)

// MessageSnapshot is the type of a message carrying a tracking snapshot.
const MessageSnapshot = "snapshot"

// Message is the frame written to stream clients.
type Message struct {
	Type    string                 `json:"type"`
	Session models.TrackingSession `json:"session"`
}

type client struct {
	userID string
	conn   *websocket.Conn
	send   chan []byte
}

// Hub fans snapshots out to the websocket connections of each user.
type Hub struct {
	mu       sync.Mutex
	clients  map[string]map[*client]struct{}
	upgrader websocket.Upgrader
	// onLastDisconnect runs when a user's final connection goes away
	onLastDisconnect func(userID string)
}

// NewHub creates a Hub. onLastDisconnect may be nil.
func NewHub(onLastDisconnect func(userID string)) *Hub {
	return &Hub{
		clients: make(map[string]map[*client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		onLastDisconnect: onLastDisconnect,
	}
}

// Publish queues session for every connection of userID. Slow clients drop frames.
func (h *Hub) Publish(userID string, session models.TrackingSession) {
	payload, err := encode(session)
	if err != nil {
		log.WithError(err).Error("Failed to encode snapshot")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients[userID] {
		select {
		case c.send <- payload:
		default:
			log.WithField("user_id", userID).Debug("Dropped snapshot for slow stream client")
		}
	}
}

// Clients returns the number of open connections for userID.
func (h *Hub) Clients(userID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients[userID])
}

// ServeWS upgrades the request and streams snapshots to it until the peer goes away.
// initial, when non-nil, is sent before any published snapshot.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, userID string, initial *models.TrackingSession) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).Warn("Websocket upgrade failed")
		return
	}

	c := &client{userID: userID, conn: conn, send: make(chan []byte, sendBuffer)}
	if initial != nil {
		if payload, err := encode(*initial); err == nil {
			c.send <- payload
		}
	}
	h.register(c)
	log.WithField("user_id", userID).Info("Stream client connected")

	go h.writePump(c)
	h.readPump(c)
}

func encode(session models.TrackingSession) ([]byte, error) {
	return json.Marshal(Message{Type: MessageSnapshot, Session: session})
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.clients[c.userID]
	if !ok {
		set = make(map[*client]struct{})
		h.clients[c.userID] = set
	}
	set[c] = struct{}{}
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	set := h.clients[c.userID]
	if _, ok := set[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(set, c)
	close(c.send)
	last := len(set) == 0
	if last {
		delete(h.clients, c.userID)
	}
	h.mu.Unlock()

	log.WithField("user_id", c.userID).Info("Stream client disconnected")
	if last && h.onLastDisconnect != nil {
		h.onLastDisconnect(c.userID)
	}
}

// readPump discards inbound frames; it exists to process control frames and notice disconnects.
func (h *Hub) readPump(c *client) {
	defer func() {
		h.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.WithError(err).WithField("user_id", c.userID).Debug("Stream read error")
			}
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
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

// Close disconnects every client without firing onLastDisconnect.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[string]map[*client]struct{})
	h.mu.Unlock()

	for _, set := range clients {
		for c := range set {
			close(c.send)
		}
	}
}
