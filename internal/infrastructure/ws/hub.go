package ws

import (
	"net/http"
	"slices"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/hilthontt/bingo/internal/domain"
)

// Hub tracks connected clients and which room audience each belongs to.
// Delivery never blocks: a client whose buffer is full is evicted, and its
// read pump then reports the disconnect.
type Hub struct {
	clients  map[string]*Client            // clientID → Client
	rooms    map[string]map[string]struct{} // room code → clientIDs
	upgrader websocket.Upgrader
	onDrop   func()
	logger   *zap.SugaredLogger
	mu       sync.RWMutex
}

// NewHub accepts upgrades from the listed origins; "*" accepts any. onDrop,
// when set, is called for every message a client misses.
func NewHub(allowedOrigins []string, logger *zap.SugaredLogger, onDrop func()) *Hub {
	h := &Hub{
		clients: make(map[string]*Client),
		rooms:   make(map[string]map[string]struct{}),
		onDrop:  onDrop,
		logger:  logger,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return h
}

func (h *Hub) Upgrade(w http.ResponseWriter, r *http.Request) (*websocket.Conn, error) {
	return h.upgrader.Upgrade(w, r, nil)
}

func (h *Hub) Register(cl *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[cl.ID()] = cl
}

// Unregister forgets the client and removes it from every room audience.
func (h *Hub) Unregister(clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.clients, clientID)
	for code, members := range h.rooms {
		delete(members, clientID)
		if len(members) == 0 {
			delete(h.rooms, code)
		}
	}
}

func (h *Hub) Attach(code, clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	members, ok := h.rooms[code]
	if !ok {
		members = make(map[string]struct{})
		h.rooms[code] = members
	}
	members[clientID] = struct{}{}
}

func (h *Hub) Detach(code, clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if members, ok := h.rooms[code]; ok {
		delete(members, clientID)
		if len(members) == 0 {
			delete(h.rooms, code)
		}
	}
}

// Drop forgets a room's audience. Its clients stay connected.
func (h *Hub) Drop(code string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.rooms, code)
}

func (h *Hub) Publish(code string, evt domain.Event) {
	h.mu.RLock()
	members := h.rooms[code]
	targets := make([]*Client, 0, len(members))
	for id := range members {
		if cl, ok := h.clients[id]; ok {
			targets = append(targets, cl)
		}
	}
	h.mu.RUnlock()

	msg := NewEvent(code, evt)
	for _, cl := range targets {
		h.deliver(cl, msg)
	}
}

func (h *Hub) SendTo(clientID string, evt domain.Event) {
	h.mu.RLock()
	cl, ok := h.clients[clientID]
	h.mu.RUnlock()
	if !ok {
		return
	}
	h.deliver(cl, NewEvent("", evt))
}

func (h *Hub) deliver(cl *Client, msg *WSMessage) {
	if cl.Enqueue(msg) {
		return
	}
	if h.onDrop != nil {
		h.onDrop()
	}
	if cl.Closed() {
		return
	}
	h.logger.Warnw("client buffer full, evicting", "client", cl.ID(), "type", msg.Type)
	cl.Evict()
}

func (h *Hub) Audience(code string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[code])
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// DisconnectAll closes every client, which in turn ends their read pumps.
func (h *Hub) DisconnectAll() {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for _, cl := range h.clients {
		clients = append(clients, cl)
	}
	h.mu.RUnlock()

	for _, cl := range clients {
		cl.Close()
	}
	h.logger.Infow("disconnected all clients", "count", len(clients))
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 || slices.Contains(allowed, "*") {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || slices.Contains(allowed, origin)
	}
}
