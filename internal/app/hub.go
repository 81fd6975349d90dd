package app

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/google/uuid"

	"github.com/riftwild/chat/internal/chat"
)

// wsPeer serializes frame writes for one connection. Deliver may be called
// from the delivery goroutine while handler acks write from the connection
// goroutine, so every write goes through the mutex.
type wsPeer struct {
	mu      sync.Mutex
	encoder *json.Encoder
}

func newWSPeer(encoder *json.Encoder) *wsPeer {
	return &wsPeer{encoder: encoder}
}

func (p *wsPeer) writeFrame(frame wsFrame) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.encoder.Encode(frame)
}

// Deliver implements chat.Session by pushing one rendered line as a
// chat.message frame. Write failures are logged and swallowed; the
// connection's own read loop notices the broken pipe and tears down.
func (p *wsPeer) Deliver(text string) {
	err := p.writeFrame(wsFrame{
		Type:    frameTypeMessage,
		Payload: mustJSON(messagePayload{Text: text}),
	})
	if err != nil {
		log.Printf("chat: deliver frame: %v", err)
	}
}

var _ chat.Session = (*wsPeer)(nil)

type hubEntry struct {
	peer  *wsPeer
	nodes map[string]struct{}
}

// Hub tracks live connections and backs the chat core's presence and
// permission queries. Connections register from their handler goroutines
// while the delivery goroutine reads, so access is mutex-guarded.
type Hub struct {
	mu    sync.Mutex
	peers map[uuid.UUID]*hubEntry
	order []uuid.UUID
}

// NewHub creates an empty connection hub.
func NewHub() *Hub {
	return &Hub{peers: make(map[uuid.UUID]*hubEntry)}
}

func (h *Hub) connect(id uuid.UUID, peer *wsPeer, nodes []string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.peers[id]; ok {
		return false
	}
	nodeSet := make(map[string]struct{}, len(nodes))
	for _, node := range nodes {
		nodeSet[node] = struct{}{}
	}
	h.peers[id] = &hubEntry{peer: peer, nodes: nodeSet}
	h.order = append(h.order, id)
	return true
}

func (h *Hub) disconnect(id uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.peers, id)
	for i, existing := range h.order {
		if existing == id {
			h.order = append(h.order[:i], h.order[i+1:]...)
			return
		}
	}
}

// IsOnline implements chat.Presence.
func (h *Hub) IsOnline(id uuid.UUID) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.peers[id]
	return ok
}

// Get implements chat.Presence.
func (h *Hub) Get(id uuid.UUID) (chat.Session, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	entry, ok := h.peers[id]
	if !ok {
		return nil, false
	}
	return entry.peer, true
}

// ForEach implements chat.Presence, visiting connections in connect order.
func (h *Hub) ForEach(fn func(id uuid.UUID, session chat.Session)) {
	h.mu.Lock()
	ids := make([]uuid.UUID, len(h.order))
	copy(ids, h.order)
	sessions := make([]chat.Session, 0, len(ids))
	for _, id := range ids {
		sessions = append(sessions, h.peers[id].peer)
	}
	h.mu.Unlock()

	for i, id := range ids {
		fn(id, sessions[i])
	}
}

// HasPermission implements chat.Permissions against the nodes carried by the
// connection's token.
func (h *Hub) HasPermission(id uuid.UUID, node string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	entry, ok := h.peers[id]
	if !ok {
		return false
	}
	_, ok = entry.nodes[node]
	return ok
}

var (
	_ chat.Presence    = (*Hub)(nil)
	_ chat.Permissions = (*Hub)(nil)
)
