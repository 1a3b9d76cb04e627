// Package services holds the access-control engine: policy lookups,
// detection intake, authorization decisions and entity lifecycles.
package services

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/nats-io/nats.go"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 4 * 1024

	// Send buffer size
	sendBufferSize = 64
)

// StreamMessage is what dashboard clients receive between polls.
type StreamMessage struct {
	Type string          `json:"type"` // alert, attempt
	Data json.RawMessage `json:"data"`
}

// AlertHub fans newly created alerts and vehicle attempts out to
// connected dashboard WebSocket clients. Clients are strictly read-only
// with respect to engine state: the hub never mutates and never blocks
// a writer - slow clients just drop messages.
type AlertHub struct {
	natsConn *nats.Conn

	clients   map[*StreamClient]bool
	clientsMu sync.RWMutex

	register   chan *StreamClient
	unregister chan *StreamClient

	subs []*nats.Subscription
}

// StreamClient represents one dashboard WebSocket connection.
type StreamClient struct {
	hub        *AlertHub
	conn       *websocket.Conn
	send       chan []byte
	remoteAddr string
}

func NewAlertHub(natsConn *nats.Conn) *AlertHub {
	return &AlertHub{
		natsConn:   natsConn,
		clients:    make(map[*StreamClient]bool),
		register:   make(chan *StreamClient),
		unregister: make(chan *StreamClient),
	}
}

// Run subscribes to the dashboard subjects and processes client
// registration until the process exits.
func (h *AlertHub) Run() {
	if sub, err := h.natsConn.Subscribe(SubjectAlerts, func(msg *nats.Msg) {
		h.broadcast("alert", msg.Data)
	}); err == nil {
		h.subs = append(h.subs, sub)
	} else {
		log.Printf("⚠️ [ALERTHUB] Failed to subscribe to %s: %v", SubjectAlerts, err)
	}
	if sub, err := h.natsConn.Subscribe(SubjectAttempts, func(msg *nats.Msg) {
		h.broadcast("attempt", msg.Data)
	}); err == nil {
		h.subs = append(h.subs, sub)
	} else {
		log.Printf("⚠️ [ALERTHUB] Failed to subscribe to %s: %v", SubjectAttempts, err)
	}

	log.Println("📺 Alert hub started")

	for {
		select {
		case client := <-h.register:
			h.clientsMu.Lock()
			h.clients[client] = true
			h.clientsMu.Unlock()
			log.Printf("📺 Dashboard connected: %s", client.remoteAddr)

		case client := <-h.unregister:
			h.clientsMu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.clientsMu.Unlock()
			log.Printf("📺 Dashboard disconnected: %s", client.remoteAddr)
		}
	}
}

// Register adds a client to the hub
func (h *AlertHub) Register(client *StreamClient) {
	h.register <- client
}

func (h *AlertHub) broadcast(msgType string, data []byte) {
	msg := StreamMessage{Type: msgType, Data: data}
	msgBytes, err := json.Marshal(msg)
	if err != nil {
		return
	}

	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	for client := range h.clients {
		select {
		case client.send <- msgBytes:
		default:
			// Client buffer full, drop
		}
	}
}

// HubStats reports live connection counts for the stats endpoint.
type HubStats struct {
	Clients int `json:"clients"`
}

func (h *AlertHub) Stats() HubStats {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return HubStats{Clients: len(h.clients)}
}

// NewStreamClient creates a client for an upgraded connection.
func NewStreamClient(hub *AlertHub, conn *websocket.Conn, remoteAddr string) *StreamClient {
	return &StreamClient{
		hub:        hub,
		conn:       conn,
		send:       make(chan []byte, sendBufferSize),
		remoteAddr: remoteAddr,
	}
}

// ReadPump drains the connection for control frames. Dashboards never
// send commands; anything besides ping is ignored.
func (c *StreamClient) ReadPump() {
	defer func() {
		c.hub.unregister <- c
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
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("⚠️ WebSocket error: %v", err)
			}
			break
		}
	}
}

// WritePump pumps messages from the hub to the WebSocket connection
func (c *StreamClient) WritePump() {
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
				// Hub closed the channel
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
