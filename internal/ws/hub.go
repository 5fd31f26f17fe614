// Package ws pushes approver notifications to websocket subscribers.
// This file: the server-side hub.
package ws

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/gipsh/safe-approver-go/internal/types"
)

const (
	pingInterval   = 9 * time.Second
	pongWait       = 3 * pingInterval
	writeWait      = 5 * time.Second
	reconnectDelay = 2 * time.Second
	sendBuffer     = 64
)

// Hub fans every published event out to the connected websockets.
// A subscriber that falls sendBuffer events behind is disconnected.
type Hub struct {
	mu       sync.Mutex
	clients  map[*subscriber]struct{}
	upgrader websocket.Upgrader
	closed   bool
}

type subscriber struct {
	conn *websocket.Conn
	addr string
	send chan []byte
	once sync.Once
}

func (s *subscriber) close() {
	s.once.Do(func() { close(s.send) })
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[*subscriber]struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Publish queues ev for every subscriber without blocking. It is meant to be
// registered as an events.Bus handler.
func (h *Hub) Publish(ev types.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		log.Printf("[ws/hub] marshal %s: %v", ev.Kind, err)
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.clients {
		select {
		case s.send <- data:
		default:
			log.Printf("[ws/hub] subscriber %s too slow, dropping", s.addr)
			delete(h.clients, s)
			s.close()
		}
	}
}

// Clients returns the number of connected subscribers.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request and streams events until the peer leaves.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[ws/hub] upgrade: %v", err)
		return
	}
	s := &subscriber{conn: conn, addr: conn.RemoteAddr().String(), send: make(chan []byte, sendBuffer)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close()
		return
	}
	h.clients[s] = struct{}{}
	h.mu.Unlock()
	log.Printf("[ws/hub] subscriber connected: %s", s.addr)

	go h.writeLoop(s)
	h.readLoop(s)
}

// readLoop discards inbound messages and returns when the connection dies.
func (h *Hub) readLoop(s *subscriber) {
	defer func() {
		h.remove(s)
		_ = s.conn.Close()
		log.Printf("[ws/hub] subscriber left: %s", s.addr)
	}()
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writeLoop(s *subscriber) {
	tick := time.NewTicker(pingInterval)
	defer func() {
		tick.Stop()
		_ = s.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-tick.C:
			if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

func (h *Hub) remove(s *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[s]; ok {
		delete(h.clients, s)
		s.close()
	}
}

// Close disconnects every subscriber and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for s := range h.clients {
		delete(h.clients, s)
		s.close()
	}
}
