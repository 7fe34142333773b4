package main

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const writeWait = 5 * time.Second

// Event is one gateway event relayed to browsers. Payload is the Kafka value
// as published.
type Event struct {
	Topic   string          `json:"topic"`
	Type    string          `json:"eventType"`
	Session string          `json:"sessionId"`
	Payload json.RawMessage `json:"payload"`
}

// Hub fans events out to connected WebSocket clients.
type Hub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
}

func newHub() *Hub {
	return &Hub{clients: make(map[*websocket.Conn]struct{})}
}

// Len returns the number of connected clients.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) add(conn *websocket.Conn) {
	h.mu.Lock()
	h.clients[conn] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	log.Info().Int("clients", n).Msg("Client connected")
}

func (h *Hub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	_, ok := h.clients[conn]
	delete(h.clients, conn)
	n := len(h.clients)
	h.mu.Unlock()
	if ok {
		conn.Close()
		log.Info().Int("clients", n).Msg("Client disconnected")
	}
}

// Broadcast writes ev to every client, dropping the ones that fail.
func (h *Hub) Broadcast(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(ev); err != nil {
			log.Warn().Err(err).Msg("Write failed, dropping client")
			conn.Close()
			delete(h.clients, conn)
		}
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local dev
	},
}

// ServeHTTP upgrades the request and keeps the client registered until it
// disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	h.add(conn)

	go func() {
		defer h.remove(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// decodeEvent extracts the routing fields from a published event.
func decodeEvent(topic string, value []byte) (Event, error) {
	var head struct {
		EventType string `json:"eventType"`
		SessionID string `json:"sessionId"`
	}
	if err := json.Unmarshal(value, &head); err != nil {
		return Event{}, err
	}
	return Event{
		Topic:   topic,
		Type:    head.EventType,
		Session: head.SessionID,
		Payload: json.RawMessage(value),
	}, nil
}
