package collab

import (
	"encoding/json"
	"time"
)

// EventOpCommitted tags the fan-out event emitted for every commit.
const EventOpCommitted = "OP_COMMITTED"

// DocOpEvent is the cross-instance fan-out record of a committed operation.
// Origin identifies the emitting server instance so consumers can skip
// events they produced themselves; events are keyed by DocID so partitioned
// brokers preserve per-document order.
type DocOpEvent struct {
	EventType   string          `json:"eventType"`
	Origin      string          `json:"origin"`
	DocID       string          `json:"docId"`
	OperationID string          `json:"operationId"`
	Revision    uint64          `json:"revision"`
	Op          json.RawMessage `json:"op"`
	CommittedAt time.Time       `json:"committedAt"`
}
