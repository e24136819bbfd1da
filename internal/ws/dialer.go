package ws

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Shaharyar-developer/open-ot/internal/ot"
)

const (
	dialBaseBackoff = 250 * time.Millisecond
	dialMaxBackoff  = 10 * time.Second
)

// Dialer is the client-side ot.Transport: a websocket connection that
// redials with exponential backoff when it drops. After every successful
// redial the reconnect hook runs, which is where the client resends its
// in-flight operation.
type Dialer struct {
	url string

	mu        sync.Mutex
	conn      *websocket.Conn
	onReceive func(ot.Message)
	closed    bool
	done      chan struct{}

	onReconnect func()
}

func NewDialer(url string) *Dialer {
	return &Dialer{url: url, done: make(chan struct{})}
}

// OnReconnect sets the hook invoked after every successful dial, the first
// included. Set it before Connect.
func (d *Dialer) OnReconnect(fn func()) { d.onReconnect = fn }

func (d *Dialer) Connect(ctx context.Context, onReceive func(ot.Message)) error {
	d.mu.Lock()
	d.onReceive = onReceive
	d.mu.Unlock()
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, d.url, nil)
	if err != nil {
		return err
	}
	d.mu.Lock()
	d.conn = conn
	d.mu.Unlock()
	go d.readLoop(conn)
	if d.onReconnect != nil {
		d.onReconnect()
	}
	return nil
}

func (d *Dialer) Send(ctx context.Context, msg ot.Message) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.conn == nil {
		return errors.New("ws: not connected")
	}
	return d.conn.WriteJSON(msg)
}

func (d *Dialer) Disconnect(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	close(d.done)
	if d.conn != nil {
		return d.conn.Close()
	}
	return nil
}

func (d *Dialer) readLoop(conn *websocket.Conn) {
	for {
		var msg ot.Message
		if err := conn.ReadJSON(&msg); err != nil {
			d.mu.Lock()
			closed := d.closed
			d.mu.Unlock()
			if closed {
				return
			}
			log.Printf("ws: connection lost: %v", err)
			d.redial()
			return
		}
		d.onReceive(msg)
	}
}

func (d *Dialer) redial() {
	backoff := dialBaseBackoff
	for {
		select {
		case <-d.done:
			return
		case <-time.After(backoff):
		}
		conn, _, err := websocket.DefaultDialer.Dial(d.url, nil)
		if err == nil {
			d.mu.Lock()
			d.conn = conn
			d.mu.Unlock()
			go d.readLoop(conn)
			if d.onReconnect != nil {
				d.onReconnect()
			}
			return
		}
		log.Printf("ws: redial failed: %v", err)
		backoff *= 2
		if backoff > dialMaxBackoff {
			backoff = dialMaxBackoff
		}
	}
}
