// Package ws carries ot.Message frames over gorilla/websocket: the server
// side (hub, per-connection loops, gin upgrade handler) and the client side
// (a reconnecting Dialer implementing ot.Transport).
package ws

import (
	"sync"

	"github.com/Shaharyar-developer/open-ot/internal/collab"
	"github.com/Shaharyar-developer/open-ot/internal/ot"
)

// Hub maps documents to their live connections and fans committed
// operations out to them. Per-connection ordering is preserved because each
// connection drains a single send queue from a single write loop.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[*Conn]struct{}
}

func NewHub() *Hub {
	return &Hub{rooms: make(map[string]map[*Conn]struct{})}
}

func (h *Hub) Join(docID string, c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[docID] == nil {
		h.rooms[docID] = make(map[*Conn]struct{})
	}
	h.rooms[docID][c] = struct{}{}
}

func (h *Hub) Leave(docID string, c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.rooms[docID]; ok {
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.rooms, docID)
		}
	}
}

// BroadcastOp sends a committed operation to every connection in the room
// except the author, who gets an ack instead.
func (h *Hub) BroadcastOp(docID string, except *Conn, msg ot.Message) {
	h.mu.RLock()
	conns := make([]*Conn, 0, len(h.rooms[docID]))
	for c := range h.rooms[docID] {
		if c != except {
			conns = append(conns, c)
		}
	}
	h.mu.RUnlock()
	for _, c := range conns {
		c.enqueue(msg)
	}
}

// DeliverRemote relays a commit made on another server instance into the
// local room. There is no local author to skip.
func (h *Hub) DeliverRemote(evt collab.DocOpEvent) {
	h.BroadcastOp(evt.DocID, nil, ot.Message{
		Type:     ot.MsgOp,
		Op:       evt.Op,
		Revision: evt.Revision,
	})
}
