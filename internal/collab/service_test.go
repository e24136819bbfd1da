package collab

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/Shaharyar-developer/open-ot/internal/ot/text"
	"github.com/Shaharyar-developer/open-ot/internal/server"
	"github.com/Shaharyar-developer/open-ot/internal/store"
)

func newService(t *testing.T, mem *store.Memory) *Service {
	t.Helper()
	srv := server.New(mem)
	if err := srv.RegisterType(text.Type()); err != nil {
		t.Fatalf("RegisterType() error = %v", err)
	}
	return NewService(srv, nil, mem)
}

func TestSubmit_FansOutToOtherInstances(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	svc1 := newService(t, mem)
	svc2 := newService(t, mem)

	if err := svc1.CreateDocument(ctx, "d1", text.TypeName, json.RawMessage(`""`)); err != nil {
		t.Fatalf("CreateDocument() error = %v", err)
	}

	var seen []DocOpEvent
	unsubscribe, err := svc2.SubscribeRemote(ctx, "d1", func(evt DocOpEvent) {
		seen = append(seen, evt)
	})
	if err != nil {
		t.Fatalf("SubscribeRemote() error = %v", err)
	}
	defer unsubscribe()

	// svc1's own subscription must not see its own commit.
	var own []DocOpEvent
	unsubOwn, err := svc1.SubscribeRemote(ctx, "d1", func(evt DocOpEvent) {
		own = append(own, evt)
	})
	if err != nil {
		t.Fatalf("SubscribeRemote() error = %v", err)
	}
	defer unsubOwn()

	applied, err := svc1.Submit(ctx, "d1", json.RawMessage(`[{"i":"hi"}]`), 0, "op-1")
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if applied.Revision != 1 {
		t.Fatalf("revision = %d, want 1", applied.Revision)
	}
	if len(seen) != 1 {
		t.Fatalf("peer saw %d events, want 1", len(seen))
	}
	if seen[0].Revision != 1 || seen[0].Origin != svc1.InstanceID() {
		t.Fatalf("event = %+v", seen[0])
	}
	if seen[0].OperationID != "op-1" {
		t.Fatalf("event operation id = %q, want op-1", seen[0].OperationID)
	}
	if string(seen[0].Op) != `[{"i":"hi"}]` {
		t.Fatalf("event op = %s", seen[0].Op)
	}
	if len(own) != 0 {
		t.Fatalf("origin instance saw %d of its own events, want 0", len(own))
	}
}

func TestInit_MaterializesSnapshot(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	svc := newService(t, mem)
	if err := svc.CreateDocument(ctx, "d1", text.TypeName, json.RawMessage(`"Hello"`)); err != nil {
		t.Fatalf("CreateDocument() error = %v", err)
	}
	if _, err := svc.Submit(ctx, "d1", json.RawMessage(`[{"r":5},{"i":" World"}]`), 0, "op-1"); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	init, err := svc.Init(ctx, "d1")
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if init.Revision != 1 || string(init.Snapshot) != `"Hello World"` {
		t.Fatalf("Init() = %s at %d, want \"Hello World\" at 1", init.Snapshot, init.Revision)
	}
}
