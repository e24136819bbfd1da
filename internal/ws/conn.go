package ws

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Shaharyar-developer/open-ot/internal/collab"
	"github.com/Shaharyar-developer/open-ot/internal/ot"
)

const (
	sendQueueSize = 64
	submitTimeout = 2 * time.Second
)

// Conn is one client connection bound to a single document. The read loop
// dispatches inbound frames; all outbound frames pass through the buffered
// send queue drained by the write loop, which keeps per-document delivery
// FIFO.
type Conn struct {
	ws    *websocket.Conn
	hub   *Hub
	svc   *collab.Service
	docID string

	mu     sync.Mutex
	send   chan ot.Message
	closed bool
}

func NewConn(ws *websocket.Conn, hub *Hub, svc *collab.Service, docID string) *Conn {
	return &Conn{
		ws:    ws,
		hub:   hub,
		svc:   svc,
		docID: docID,
		send:  make(chan ot.Message, sendQueueSize),
	}
}

// enqueue queues an outbound frame. A client too slow to drain its queue has
// already broken the ordering contract, so the connection is killed rather
// than silently dropping a frame. Enqueues after closeSend are no-ops.
func (c *Conn) enqueue(msg ot.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- msg:
	default:
		log.Printf("ws: send queue full, closing doc=%s", c.docID)
		c.ws.Close()
	}
}

// closeSend stops outbound delivery and releases the write loop. Call it only
// after the connection has left the hub, so no broadcast can race the close.
func (c *Conn) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

func (c *Conn) writeLoop() {
	for msg := range c.send {
		if err := c.ws.WriteJSON(msg); err != nil {
			log.Printf("ws: write error doc=%s: %v", c.docID, err)
			return
		}
	}
}

func (c *Conn) readLoop(ctx context.Context) {
	for {
		var msg ot.Message
		if err := c.ws.ReadJSON(&msg); err != nil {
			log.Printf("ws: read error doc=%s: %v", c.docID, err)
			return
		}
		switch msg.Type {
		case ot.MsgOp:
			c.handleOp(ctx, msg)
		default:
			c.enqueue(ot.Message{Type: ot.MsgError, Code: "OP_MALFORMED"})
		}
	}
}

func (c *Conn) handleOp(ctx context.Context, msg ot.Message) {
	submitCtx, cancel := context.WithTimeout(ctx, submitTimeout)
	defer cancel()

	applied, err := c.svc.Submit(submitCtx, c.docID, msg.Op, msg.Revision, msg.OpID)
	if err != nil {
		c.enqueue(ot.Message{Type: ot.MsgError, Code: ot.Code(err)})
		return
	}
	c.enqueue(ot.Message{Type: ot.MsgAck, Revision: applied.Revision})
	c.hub.BroadcastOp(c.docID, c, ot.Message{
		Type:     ot.MsgOp,
		Op:       applied.Op,
		Revision: applied.Revision,
	})
}
