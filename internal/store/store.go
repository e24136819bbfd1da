// Package store defines the backend adapter contract the server commits
// through, and ships the three adapters the daemon can run on: in-memory,
// Redis and MySQL. The authoritative document state is always the stored
// snapshot plus the append-only operation log; adapters are free to never
// materialize newer snapshots.
package store

import (
	"context"
	"encoding/json"
)

// Record is a document's server-side metadata. Snapshot is the stored
// snapshot at SnapshotRevision, not necessarily the latest state; callers
// reach the latest state by applying the log from SnapshotRevision onward.
type Record struct {
	Type             string
	Revision         uint64
	Snapshot         json.RawMessage
	SnapshotRevision uint64
}

// Operation is one committed log entry: the op in the form it was committed,
// plus the client-chosen identity it was submitted under. The ID is what lets
// the server recognize a reconnect resend of an already-committed op.
type Operation struct {
	ID string          `json:"id,omitempty"`
	Op json.RawMessage `json:"op"`
}

// Adapter is the narrow persistence interface of the server.
//
// SaveOperation carries the optimistic lock: it must atomically verify that
// the current revision equals newRevision-1, append the op at log index
// newRevision-1 and bump the revision, or fail with CONCURRENCY_CONFLICT
// having changed nothing.
type Adapter interface {
	GetRecord(ctx context.Context, docID string) (Record, error)

	// GetHistory returns committed operations starting at log index from,
	// oldest first. limit <= 0 means to tail.
	GetHistory(ctx context.Context, docID string, from uint64, limit int) ([]Operation, error)

	SaveOperation(ctx context.Context, docID string, op Operation, newRevision uint64) error

	CreateDocument(ctx context.Context, docID, typeName string, initial json.RawMessage) error
}

// PubSub is the optional fan-out side of an adapter, used to relay committed
// operations across server instances.
type PubSub interface {
	Publish(ctx context.Context, channel string, payload []byte) error

	// Subscribe registers handler for payloads on channel and returns an
	// unsubscribe function. Per-channel delivery order must match publish
	// order.
	Subscribe(ctx context.Context, channel string, handler func(payload []byte)) (func() error, error)
}
