// Package server implements the authoritative side of the framework: a type
// registry and the catch-up-and-commit pipeline that linearizes concurrent
// client submissions against each document's committed history.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/Shaharyar-developer/open-ot/internal/ot"
	"github.com/Shaharyar-developer/open-ot/internal/store"
)

// Applied is the result of a committed submission: the operation as it was
// actually committed after catch-up, and the revision it produced.
type Applied struct {
	Op       json.RawMessage
	Revision uint64
}

// Server linearizes submissions through a backend adapter. It is safe for
// concurrent use; per-document serialization is the adapter's optimistic
// lock plus the bounded retry loop in Submit.
type Server struct {
	mu      sync.RWMutex
	types   map[string]ot.Type
	backend store.Adapter

	// commitRetries bounds re-catch-up attempts after a CONCURRENCY_CONFLICT
	// from the adapter. The catch-up itself is pure, so retrying is safe.
	commitRetries int
}

func New(backend store.Adapter) *Server {
	return &Server{
		types:         make(map[string]ot.Type),
		backend:       backend,
		commitRetries: 3,
	}
}

// RegisterType adds a type under its name. Re-registering the same type is
// idempotent; a different type under an existing name is a conflict.
func (s *Server) RegisterType(t ot.Type) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.types[t.Name()]; ok {
		if existing == t {
			return nil
		}
		return fmt.Errorf("%w: %s", ot.ErrTypeConflict, t.Name())
	}
	s.types[t.Name()] = t
	return nil
}

func (s *Server) typeFor(name string) (ot.Type, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.types[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ot.ErrTypeUnknown, name)
	}
	return t, nil
}

// CreateDocument initializes a document at revision 0 with an empty log.
func (s *Server) CreateDocument(ctx context.Context, docID, typeName string, initial json.RawMessage) error {
	t, err := s.typeFor(typeName)
	if err != nil {
		return err
	}
	if _, err := t.DecodeSnapshot(initial); err != nil {
		return err
	}
	return s.backend.CreateDocument(ctx, docID, typeName, initial)
}

// Submit commits op authored against clientRev. If the client is behind, the
// op is first transformed against every operation committed since, with the
// committed history holding priority on positional ties. On a concurrency
// conflict from the adapter the whole catch-up is re-run from a fresh read,
// a bounded number of times.
//
// opID is the client-chosen identity of the submission. When the log already
// holds an operation committed under the same ID (a reconnect replay), the
// committed form is acknowledged again without committing twice. An empty
// opID gets no replay protection.
func (s *Server) Submit(ctx context.Context, docID string, rawOp json.RawMessage, clientRev uint64, opID string) (Applied, error) {
	var lastErr error
	for attempt := 0; attempt <= s.commitRetries; attempt++ {
		applied, err := s.trySubmit(ctx, docID, rawOp, clientRev, opID)
		if err == nil {
			return applied, nil
		}
		if !isConflict(err) {
			return Applied{}, err
		}
		lastErr = err
	}
	return Applied{}, lastErr
}

func (s *Server) trySubmit(ctx context.Context, docID string, rawOp json.RawMessage, clientRev uint64, opID string) (Applied, error) {
	rec, err := s.backend.GetRecord(ctx, docID)
	if err != nil {
		return Applied{}, err
	}
	t, err := s.typeFor(rec.Type)
	if err != nil {
		return Applied{}, err
	}
	op, err := t.DecodeOp(rawOp)
	if err != nil {
		return Applied{}, err
	}
	if clientRev > rec.Revision {
		return Applied{}, fmt.Errorf("%w: client at %d, document at %d", ot.ErrRevisionMismatch, clientRev, rec.Revision)
	}
	if clientRev < rec.Revision {
		history, err := s.backend.GetHistory(ctx, docID, clientRev, 0)
		if err != nil {
			return Applied{}, err
		}
		// A resent op can sit anywhere in the tail: catch-up may have
		// transformed it past other commits before it landed.
		if opID != "" {
			for i, past := range history {
				if past.ID == opID {
					return Applied{Op: past.Op, Revision: clientRev + uint64(i) + 1}, nil
				}
			}
		}
		for _, past := range history {
			pastOp, err := t.DecodeOp(past.Op)
			if err != nil {
				return Applied{}, fmt.Errorf("corrupt history for %s: %w", docID, err)
			}
			if op, err = t.Transform(op, pastOp, ot.Right); err != nil {
				return Applied{}, err
			}
		}
	}
	committed, err := t.EncodeOp(op)
	if err != nil {
		return Applied{}, err
	}
	newRev := rec.Revision + 1
	if err := s.backend.SaveOperation(ctx, docID, store.Operation{ID: opID, Op: committed}, newRev); err != nil {
		return Applied{}, err
	}
	return Applied{Op: committed, Revision: newRev}, nil
}

// Snapshot materializes the latest snapshot by applying the log tail to the
// stored snapshot, and returns it with the current revision.
func (s *Server) Snapshot(ctx context.Context, docID string) (json.RawMessage, uint64, error) {
	rec, err := s.backend.GetRecord(ctx, docID)
	if err != nil {
		return nil, 0, err
	}
	t, err := s.typeFor(rec.Type)
	if err != nil {
		return nil, 0, err
	}
	snapshot, err := t.DecodeSnapshot(rec.Snapshot)
	if err != nil {
		return nil, 0, err
	}
	history, err := s.backend.GetHistory(ctx, docID, rec.SnapshotRevision, 0)
	if err != nil {
		return nil, 0, err
	}
	for _, past := range history {
		op, err := t.DecodeOp(past.Op)
		if err != nil {
			return nil, 0, fmt.Errorf("corrupt history for %s: %w", docID, err)
		}
		if snapshot, err = t.Apply(snapshot, op); err != nil {
			return nil, 0, err
		}
	}
	encoded, err := t.EncodeSnapshot(snapshot)
	if err != nil {
		return nil, 0, err
	}
	return encoded, rec.Revision, nil
}

func isConflict(err error) bool {
	return errors.Is(err, ot.ErrConcurrencyConflict)
}
