// Package client implements the synchronization state machine that sits
// between a local editor and the authoritative server. It keeps at most one
// operation in flight, coalesces further local edits into a buffer, and
// transforms incoming remote operations so the local snapshot converges on
// the server's linearization.
package client

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"

	"github.com/Shaharyar-developer/open-ot/internal/ot"
)

// State is the synchronization state of the client.
type State int

const (
	// Synchronized: no unacknowledged operation outstanding.
	Synchronized State = iota
	// AwaitingConfirm: one operation sent, waiting for its ack.
	AwaitingConfirm
	// AwaitingWithBuffer: one operation in flight plus buffered local edits.
	AwaitingWithBuffer
)

func (s State) String() string {
	switch s {
	case Synchronized:
		return "synchronized"
	case AwaitingConfirm:
		return "awaiting_confirm"
	case AwaitingWithBuffer:
		return "awaiting_with_buffer"
	}
	return "invalid"
}

// Client tracks a local snapshot against a server revision. All mutations of
// a given document go through the client's mutex; the state machine itself
// never blocks on I/O.
type Client struct {
	mu        sync.Mutex
	typ       ot.Type
	transport ot.Transport

	snapshot  any
	revision  uint64
	state     State
	pending   any    // in-flight op, AwaitingConfirm and AwaitingWithBuffer
	pendingID string // identity of the in-flight op, kept across resends
	buffer    any    // coalesced local edits, AwaitingWithBuffer only

	listeners    map[int]func(snapshot any)
	nextListener int
}

// New constructs a client in Synchronized at the given revision. If a
// transport is supplied the client registers its receive callback and starts
// connecting in the background; local edits made before the transport is
// ready stay pending until it is.
func New(typ ot.Type, initial any, revision uint64, transport ot.Transport) *Client {
	c := &Client{
		typ:       typ,
		transport: transport,
		snapshot:  initial,
		revision:  revision,
		state:     Synchronized,
		listeners: make(map[int]func(any)),
	}
	if transport != nil {
		go func() {
			if err := transport.Connect(context.Background(), c.receive); err != nil {
				log.Printf("client: connect failed: %v", err)
			}
		}()
	}
	return c
}

// Snapshot returns the current local snapshot.
func (c *Client) Snapshot() any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot
}

// Revision returns the last server revision the client has integrated.
func (c *Client) Revision() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.revision
}

// State returns the synchronization state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Subscribe registers a listener invoked after every snapshot mutation and
// returns its unsubscribe handle. Delivery is synchronous with the mutation.
func (c *Client) Subscribe(fn func(snapshot any)) (unsubscribe func()) {
	c.mu.Lock()
	id := c.nextListener
	c.nextListener++
	c.listeners[id] = fn
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

// ApplyLocal integrates a user edit. The op is validated by applying it to
// the current snapshot; invalid ops are rejected without any state change.
// In Synchronized the op is sent immediately; otherwise it is buffered and
// composed with any edits already waiting behind the in-flight op.
func (c *Client) ApplyLocal(op any) error {
	c.mu.Lock()
	next, err := c.typ.Apply(c.snapshot, op)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	c.snapshot = next
	var send bool
	switch c.state {
	case Synchronized:
		c.state = AwaitingConfirm
		c.pending = op
		c.pendingID = uuid.NewString()
		send = true
	case AwaitingConfirm:
		c.state = AwaitingWithBuffer
		c.buffer = op
	case AwaitingWithBuffer:
		composed, err := c.typ.Compose(c.buffer, op)
		if err != nil {
			// The op already passed apply; a compose failure here is a bug.
			c.mu.Unlock()
			return err
		}
		c.buffer = composed
	}
	pending, pendingID, revision := c.pending, c.pendingID, c.revision
	fns := c.listenerList()
	c.mu.Unlock()

	c.notify(next, fns)
	if send {
		return c.send(pending, revision, pendingID)
	}
	return nil
}

// HandleAck processes the server's acknowledgment of the in-flight op. If
// edits were buffered behind it they become the next in-flight op and are
// sent against the bumped revision.
func (c *Client) HandleAck() error {
	c.mu.Lock()
	switch c.state {
	case Synchronized:
		c.mu.Unlock()
		return ot.ErrUnexpectedAck
	case AwaitingConfirm:
		c.revision++
		c.state = Synchronized
		c.pending = nil
		c.pendingID = ""
		c.mu.Unlock()
		return nil
	default: // AwaitingWithBuffer
		c.revision++
		c.state = AwaitingConfirm
		c.pending = c.buffer
		c.pendingID = uuid.NewString()
		c.buffer = nil
		pending, pendingID, revision := c.pending, c.pendingID, c.revision
		c.mu.Unlock()
		return c.send(pending, revision, pendingID)
	}
}

// HandleRemote integrates an operation committed by another client. The op
// arrives already linearized by the server, so the client transforms it past
// its own pending and buffered edits, yielding positional ties to the remote
// only where the server already committed first.
func (c *Client) HandleRemote(op any) error {
	c.mu.Lock()
	switch c.state {
	case AwaitingConfirm:
		opPrime, err := c.typ.Transform(op, c.pending, ot.Right)
		if err != nil {
			c.mu.Unlock()
			return err
		}
		pendingPrime, err := c.typ.Transform(c.pending, op, ot.Left)
		if err != nil {
			c.mu.Unlock()
			return err
		}
		c.pending = pendingPrime
		op = opPrime
	case AwaitingWithBuffer:
		opPrime, err := c.typ.Transform(op, c.pending, ot.Right)
		if err != nil {
			c.mu.Unlock()
			return err
		}
		pendingPrime, err := c.typ.Transform(c.pending, op, ot.Left)
		if err != nil {
			c.mu.Unlock()
			return err
		}
		opDouble, err := c.typ.Transform(opPrime, c.buffer, ot.Right)
		if err != nil {
			c.mu.Unlock()
			return err
		}
		bufferPrime, err := c.typ.Transform(c.buffer, opPrime, ot.Left)
		if err != nil {
			c.mu.Unlock()
			return err
		}
		c.pending = pendingPrime
		c.buffer = bufferPrime
		op = opDouble
	}
	next, err := c.typ.Apply(c.snapshot, op)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	c.snapshot = next
	c.revision++
	fns := c.listenerList()
	c.mu.Unlock()

	c.notify(next, fns)
	return nil
}

// ResendPending retransmits the in-flight op with its original base revision
// and identity. Transports call this after a reconnect; the server recognizes
// the identity of an op it already committed and does not commit it again.
func (c *Client) ResendPending() error {
	c.mu.Lock()
	if c.state == Synchronized {
		c.mu.Unlock()
		return nil
	}
	pending, pendingID, revision := c.pending, c.pendingID, c.revision
	c.mu.Unlock()
	return c.send(pending, revision, pendingID)
}

// receive is the transport callback. Protocol violations are loud: they
// indicate an infrastructure bug, not a recoverable condition.
func (c *Client) receive(msg ot.Message) {
	switch msg.Type {
	case ot.MsgAck:
		if err := c.HandleAck(); err != nil {
			log.Printf("client: %v", err)
		}
	case ot.MsgOp:
		op, err := c.typ.DecodeOp(msg.Op)
		if err != nil {
			log.Printf("client: bad remote op: %v", err)
			return
		}
		if err := c.HandleRemote(op); err != nil {
			log.Printf("client: remote op at revision %d: %v", msg.Revision, err)
		}
	case ot.MsgInit:
		snapshot, err := c.typ.DecodeSnapshot(msg.Snapshot)
		if err != nil {
			log.Printf("client: bad init snapshot: %v", err)
			return
		}
		c.reinitialize(snapshot, msg.Revision)
	case ot.MsgTimeout:
		// Transport-level hint; nothing for the state machine to do.
	case ot.MsgError:
		log.Printf("client: server error: %s", msg.Code)
	}
}

// reinitialize resets the machine from a fresh server snapshot, discarding
// any local state. This is the recovery path after corruption or a rejoin.
func (c *Client) reinitialize(snapshot any, revision uint64) {
	c.mu.Lock()
	c.snapshot = snapshot
	c.revision = revision
	c.state = Synchronized
	c.pending = nil
	c.pendingID = ""
	c.buffer = nil
	fns := c.listenerList()
	c.mu.Unlock()
	c.notify(snapshot, fns)
}

// send frames and transmits an op against the given base revision. A send
// failure leaves the state machine untouched; recovery is the transport's
// reconnect followed by ResendPending.
func (c *Client) send(op any, revision uint64, opID string) error {
	if c.transport == nil {
		return nil
	}
	raw, err := c.typ.EncodeOp(op)
	if err != nil {
		return err
	}
	msg := ot.Message{Type: ot.MsgOp, Op: raw, OpID: opID, Revision: revision}
	if err := c.transport.Send(context.Background(), msg); err != nil {
		return fmt.Errorf("transport send: %w", err)
	}
	return nil
}

func (c *Client) listenerList() []func(any) {
	fns := make([]func(any), 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	return fns
}

func (c *Client) notify(snapshot any, fns []func(any)) {
	for _, fn := range fns {
		fn(snapshot)
	}
}
