package store

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/Shaharyar-developer/open-ot/internal/ot"
)

func TestMemory_OptimisticLock(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	if err := m.CreateDocument(ctx, "d1", "text", json.RawMessage(`""`)); err != nil {
		t.Fatalf("CreateDocument() error = %v", err)
	}
	if err := m.SaveOperation(ctx, "d1", Operation{ID: "op-1", Op: json.RawMessage(`[{"i":"a"}]`)}, 1); err != nil {
		t.Fatalf("SaveOperation(1) error = %v", err)
	}
	// Skipping a revision must be rejected with nothing written.
	err := m.SaveOperation(ctx, "d1", Operation{ID: "op-3", Op: json.RawMessage(`[{"i":"b"}]`)}, 3)
	if !errors.Is(err, ot.ErrConcurrencyConflict) {
		t.Fatalf("SaveOperation(3) error = %v, want %v", err, ot.ErrConcurrencyConflict)
	}
	if err := m.SaveOperation(ctx, "d1", Operation{ID: "op-2", Op: json.RawMessage(`[{"i":"b"}]`)}, 2); err != nil {
		t.Fatalf("SaveOperation(2) error = %v", err)
	}
	rec, err := m.GetRecord(ctx, "d1")
	if err != nil {
		t.Fatalf("GetRecord() error = %v", err)
	}
	if rec.Revision != 2 {
		t.Fatalf("Revision = %d, want 2", rec.Revision)
	}
}

func TestMemory_CreateTwice(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	if err := m.CreateDocument(ctx, "d1", "text", json.RawMessage(`""`)); err != nil {
		t.Fatalf("CreateDocument() error = %v", err)
	}
	err := m.CreateDocument(ctx, "d1", "text", json.RawMessage(`""`))
	if !errors.Is(err, ot.ErrDocumentExists) {
		t.Fatalf("CreateDocument() error = %v, want %v", err, ot.ErrDocumentExists)
	}
}

func TestMemory_NotFound(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	if _, err := m.GetRecord(ctx, "nope"); !errors.Is(err, ot.ErrDocumentNotFound) {
		t.Fatalf("GetRecord() error = %v, want %v", err, ot.ErrDocumentNotFound)
	}
	if _, err := m.GetHistory(ctx, "nope", 0, 0); !errors.Is(err, ot.ErrDocumentNotFound) {
		t.Fatalf("GetHistory() error = %v, want %v", err, ot.ErrDocumentNotFound)
	}
}

func TestMemory_HistorySlicing(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	if err := m.CreateDocument(ctx, "d1", "text", json.RawMessage(`""`)); err != nil {
		t.Fatalf("CreateDocument() error = %v", err)
	}
	for i, op := range []string{`[{"i":"a"}]`, `[{"i":"b"}]`, `[{"i":"c"}]`} {
		entry := Operation{ID: string(rune('a' + i)), Op: json.RawMessage(op)}
		if err := m.SaveOperation(ctx, "d1", entry, uint64(i+1)); err != nil {
			t.Fatalf("SaveOperation(%d) error = %v", i+1, err)
		}
	}
	tail, err := m.GetHistory(ctx, "d1", 1, 0)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(tail) != 2 || string(tail[0].Op) != `[{"i":"b"}]` || tail[0].ID != "b" {
		t.Fatalf("GetHistory(1, 0) = %v", tail)
	}
	limited, err := m.GetHistory(ctx, "d1", 0, 2)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(limited) != 2 {
		t.Fatalf("GetHistory(0, 2) returned %d ops, want 2", len(limited))
	}
	empty, err := m.GetHistory(ctx, "d1", 7, 0)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	if len(empty) != 0 {
		t.Fatalf("GetHistory(7, 0) returned %d ops, want 0", len(empty))
	}
}

func TestMemory_PubSubOrder(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	var got []string
	unsubscribe, err := m.Subscribe(ctx, "ch", func(payload []byte) {
		got = append(got, string(payload))
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	for _, p := range []string{"one", "two", "three"} {
		if err := m.Publish(ctx, "ch", []byte(p)); err != nil {
			t.Fatalf("Publish() error = %v", err)
		}
	}
	if err := unsubscribe(); err != nil {
		t.Fatalf("unsubscribe error = %v", err)
	}
	if err := m.Publish(ctx, "ch", []byte("four")); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if len(got) != 3 || got[0] != "one" || got[2] != "three" {
		t.Fatalf("received %v, want [one two three]", got)
	}
}
