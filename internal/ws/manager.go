package ws

import (
	"context"
	"log"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/Shaharyar-developer/open-ot/internal/collab"
	"github.com/Shaharyar-developer/open-ot/internal/ot"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Manager upgrades gin requests into document sessions. While a document has
// at least one local connection the manager keeps a remote subscription open
// for it, so commits made on other instances reach the local room.
type Manager struct {
	hub *Hub
	svc *collab.Service

	mu   sync.Mutex
	subs map[string]*docSub
}

type docSub struct {
	refs        int
	unsubscribe func() error
}

func NewManager(hub *Hub, svc *collab.Service) *Manager {
	return &Manager{hub: hub, svc: svc, subs: make(map[string]*docSub)}
}

// retain counts a connection into docID's room, opening the remote
// subscription on the first one. The subscription outlives any single
// request, so it runs on the background context.
func (m *Manager) retain(docID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sub, ok := m.subs[docID]; ok {
		sub.refs++
		return
	}
	unsubscribe, err := m.svc.SubscribeRemote(context.Background(), docID, func(evt collab.DocOpEvent) {
		m.hub.DeliverRemote(evt)
	})
	if err != nil {
		log.Printf("ws: remote subscribe failed doc=%s: %v", docID, err)
		unsubscribe = func() error { return nil }
	}
	m.subs[docID] = &docSub{refs: 1, unsubscribe: unsubscribe}
}

// release counts a connection out, dropping the subscription with the last
// one.
func (m *Manager) release(docID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.subs[docID]
	if !ok {
		return
	}
	sub.refs--
	if sub.refs > 0 {
		return
	}
	delete(m.subs, docID)
	if err := sub.unsubscribe(); err != nil {
		log.Printf("ws: remote unsubscribe failed doc=%s: %v", docID, err)
	}
}

// Handle upgrades the request, sends the init frame and runs the connection
// loops until the client goes away. The document is bound by the docId query
// parameter for the lifetime of the connection.
func (m *Manager) Handle(c *gin.Context) {
	docID := c.Query("docId")
	if docID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing docId"})
		return
	}
	init, err := m.svc.Init(c.Request.Context(), docID)
	if err != nil {
		c.JSON(ot.HTTPStatus(err), gin.H{"error": ot.Code(err)})
		return
	}
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("ws: upgrade error doc=%s: %v", docID, err)
		return
	}
	defer conn.Close()

	wsConn := NewConn(conn, m.hub, m.svc, docID)
	m.hub.Join(docID, wsConn)
	m.retain(docID)

	go wsConn.writeLoop()
	wsConn.enqueue(init)
	wsConn.readLoop(c.Request.Context())

	// Leave the room before closing the send queue so no broadcast can hit a
	// closed channel.
	m.hub.Leave(docID, wsConn)
	m.release(docID)
	wsConn.closeSend()
}
