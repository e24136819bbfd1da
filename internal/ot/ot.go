// Package ot holds the contracts shared by the OT core: the type vtable the
// server programs against, the transform side marker, the wire message frame
// and the transport interface.
package ot

import (
	"context"
	"encoding/json"
)

// Side designates the priority operand of a transform. The Left side keeps
// positional precedence when two inserts land at the same offset.
type Side int

const (
	Left Side = iota
	Right
)

func (s Side) String() string {
	if s == Left {
		return "left"
	}
	return "right"
}

// Type is the uniform vtable for a registered OT type. Snapshots and ops are
// opaque to the server; all concrete typing lives behind the implementation.
type Type interface {
	Name() string

	// Apply produces the snapshot resulting from op against snapshot.
	Apply(snapshot, op any) (any, error)

	// Transform rewrites a to apply after the concurrent op b. side marks
	// which operand keeps priority on positional ties.
	Transform(a, b any, side Side) (any, error)

	// Compose merges two sequential ops into one equivalent op.
	Compose(a, b any) (any, error)

	DecodeOp(raw json.RawMessage) (any, error)
	EncodeOp(op any) (json.RawMessage, error)
	DecodeSnapshot(raw json.RawMessage) (any, error)
	EncodeSnapshot(snapshot any) (json.RawMessage, error)
}

// Inverter is implemented by types that can derive an inverse op relative to
// the snapshot it was applied to.
type Inverter interface {
	Invert(op, base any) (any, error)
}

// Message kinds on the wire.
const (
	MsgOp      = "op"
	MsgAck     = "ack"
	MsgInit    = "init"
	MsgTimeout = "timeout"
	MsgError   = "error"
)

// Message is the tagged frame exchanged between client and server. Op and
// Snapshot stay raw; the endpoints decode them through their registered type.
// OpID is the client-chosen identity of a submitted op; the server uses it to
// recognize a resend of an operation it already committed.
type Message struct {
	Type           string          `json:"type"`
	Op             json.RawMessage `json:"op,omitempty"`
	OpID           string          `json:"opId,omitempty"`
	Revision       uint64          `json:"revision"`
	Snapshot       json.RawMessage `json:"snapshot,omitempty"`
	SuggestPolling bool            `json:"suggestPolling,omitempty"`
	Code           string          `json:"code,omitempty"`
}

// Transport moves messages for a single document between a client and the
// server. Implementations must deliver messages in FIFO order per document;
// out-of-order delivery breaks convergence.
type Transport interface {
	Connect(ctx context.Context, onReceive func(Message)) error
	Send(ctx context.Context, msg Message) error
	Disconnect(ctx context.Context) error
}
