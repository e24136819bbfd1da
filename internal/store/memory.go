package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/Shaharyar-developer/open-ot/internal/ot"
)

// Memory is the reference adapter: initial snapshot plus op log per
// document, held in process. It never materializes snapshots on commit. Its
// pub/sub side delivers synchronously in publish order, which also makes it
// the adapter the tests run against.
type Memory struct {
	mu   sync.RWMutex
	docs map[string]*memDoc

	subMu   sync.RWMutex
	subs    map[string]map[int]func([]byte)
	nextSub int
}

type memDoc struct {
	mu       sync.Mutex
	typeName string
	snapshot json.RawMessage
	log      []Operation
}

func NewMemory() *Memory {
	return &Memory{
		docs: make(map[string]*memDoc),
		subs: make(map[string]map[int]func([]byte)),
	}
}

func (m *Memory) doc(docID string) (*memDoc, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d := m.docs[docID]
	if d == nil {
		return nil, fmt.Errorf("%w: %s", ot.ErrDocumentNotFound, docID)
	}
	return d, nil
}

func (m *Memory) CreateDocument(ctx context.Context, docID, typeName string, initial json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[docID]; ok {
		return fmt.Errorf("%w: %s", ot.ErrDocumentExists, docID)
	}
	m.docs[docID] = &memDoc{
		typeName: typeName,
		snapshot: append(json.RawMessage(nil), initial...),
	}
	return nil
}

func (m *Memory) GetRecord(ctx context.Context, docID string) (Record, error) {
	d, err := m.doc(docID)
	if err != nil {
		return Record{}, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return Record{
		Type:             d.typeName,
		Revision:         uint64(len(d.log)),
		Snapshot:         d.snapshot,
		SnapshotRevision: 0,
	}, nil
}

func (m *Memory) GetHistory(ctx context.Context, docID string, from uint64, limit int) ([]Operation, error) {
	d, err := m.doc(docID)
	if err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if from >= uint64(len(d.log)) {
		return nil, nil
	}
	tail := d.log[from:]
	if limit > 0 && limit < len(tail) {
		tail = tail[:limit]
	}
	out := make([]Operation, len(tail))
	copy(out, tail)
	return out, nil
}

func (m *Memory) SaveOperation(ctx context.Context, docID string, op Operation, newRevision uint64) error {
	d, err := m.doc(docID)
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if uint64(len(d.log)) != newRevision-1 {
		return fmt.Errorf("%w: %s at revision %d, commit wants %d", ot.ErrConcurrencyConflict, docID, len(d.log), newRevision)
	}
	op.Op = append(json.RawMessage(nil), op.Op...)
	d.log = append(d.log, op)
	return nil
}

func (m *Memory) Publish(ctx context.Context, channel string, payload []byte) error {
	m.subMu.RLock()
	handlers := make([]func([]byte), 0, len(m.subs[channel]))
	for _, h := range m.subs[channel] {
		handlers = append(handlers, h)
	}
	m.subMu.RUnlock()
	for _, h := range handlers {
		h(payload)
	}
	return nil
}

func (m *Memory) Subscribe(ctx context.Context, channel string, handler func([]byte)) (func() error, error) {
	m.subMu.Lock()
	id := m.nextSub
	m.nextSub++
	if m.subs[channel] == nil {
		m.subs[channel] = make(map[int]func([]byte))
	}
	m.subs[channel][id] = handler
	m.subMu.Unlock()
	return func() error {
		m.subMu.Lock()
		delete(m.subs[channel], id)
		if len(m.subs[channel]) == 0 {
			delete(m.subs, channel)
		}
		m.subMu.Unlock()
		return nil
	}, nil
}
