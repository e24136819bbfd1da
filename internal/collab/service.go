// Package collab is the session layer between transports and the
// authoritative server: it runs submissions through the commit pipeline,
// frames init payloads for joining clients and fans committed operations out
// to other server instances over Kafka and the adapter's pub/sub channel.
package collab

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/Shaharyar-developer/open-ot/internal/ot"
	"github.com/Shaharyar-developer/open-ot/internal/server"
	"github.com/Shaharyar-developer/open-ot/internal/store"
)

// Service wraps a server with fan-out. Both the dispatcher and the pub/sub
// side are optional; a single-instance deployment runs without either.
type Service struct {
	srv        *server.Server
	instanceID string
	dispatcher *Dispatcher
	pubsub     store.PubSub
}

func NewService(srv *server.Server, dispatcher *Dispatcher, pubsub store.PubSub) *Service {
	return &Service{
		srv:        srv,
		instanceID: uuid.NewString(),
		dispatcher: dispatcher,
		pubsub:     pubsub,
	}
}

// InstanceID identifies this server instance in fan-out events.
func (s *Service) InstanceID() string { return s.instanceID }

// OpsChannel is the pub/sub channel carrying commit events for a document.
func OpsChannel(docID string) string { return "openot:ops:" + docID }

// CreateDocument initializes a document record through the server.
func (s *Service) CreateDocument(ctx context.Context, docID, typeName string, initial json.RawMessage) error {
	return s.srv.CreateDocument(ctx, docID, typeName, initial)
}

// Init frames the handshake message for a joining client: the materialized
// snapshot and the revision it corresponds to.
func (s *Service) Init(ctx context.Context, docID string) (ot.Message, error) {
	snapshot, revision, err := s.srv.Snapshot(ctx, docID)
	if err != nil {
		return ot.Message{}, err
	}
	return ot.Message{Type: ot.MsgInit, Snapshot: snapshot, Revision: revision}, nil
}

// Submit commits a client operation and fans the committed form out to other
// instances. Fan-out is best effort and never fails the commit. Kafka takes
// precedence over the adapter's pub/sub when both are configured, so an event
// travels exactly one path.
func (s *Service) Submit(ctx context.Context, docID string, rawOp json.RawMessage, clientRev uint64, opID string) (server.Applied, error) {
	applied, err := s.srv.Submit(ctx, docID, rawOp, clientRev, opID)
	if err != nil {
		return server.Applied{}, err
	}
	if opID == "" {
		opID = uuid.NewString()
	}
	evt := DocOpEvent{
		EventType:   EventOpCommitted,
		Origin:      s.instanceID,
		DocID:       docID,
		OperationID: opID,
		Revision:    applied.Revision,
		Op:          applied.Op,
		CommittedAt: time.Now().UTC(),
	}
	switch {
	case s.dispatcher != nil:
		if err := s.dispatcher.Enqueue(ctx, evt); err != nil {
			log.Printf("collab: drop fan-out for doc=%s rev=%d: %v", docID, applied.Revision, err)
		}
	case s.pubsub != nil:
		payload, err := json.Marshal(evt)
		if err == nil {
			err = s.pubsub.Publish(ctx, OpsChannel(docID), payload)
		}
		if err != nil {
			log.Printf("collab: publish failed for doc=%s rev=%d: %v", docID, applied.Revision, err)
		}
	}
	return applied, nil
}

// SubscribeRemote attaches handler to the pub/sub channel of docID, dropping
// events this instance emitted itself. Returns the unsubscribe function.
func (s *Service) SubscribeRemote(ctx context.Context, docID string, handler func(DocOpEvent)) (func() error, error) {
	if s.pubsub == nil {
		return func() error { return nil }, nil
	}
	return s.pubsub.Subscribe(ctx, OpsChannel(docID), func(payload []byte) {
		var evt DocOpEvent
		if err := json.Unmarshal(payload, &evt); err != nil {
			log.Printf("collab: bad fan-out payload on doc=%s: %v", docID, err)
			return
		}
		if evt.Origin == s.instanceID {
			return
		}
		handler(evt)
	})
}
