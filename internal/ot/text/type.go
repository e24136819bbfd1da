package text

import (
	"encoding/json"
	"fmt"

	"github.com/Shaharyar-developer/open-ot/internal/ot"
)

// otType adapts the concrete algebra to the opaque vtable the server
// registry works with. Snapshots travel as string, ops as Op.
type otType struct{}

// Type returns the text OT type for registration with a server.
func Type() ot.Type { return otType{} }

func (otType) Name() string { return TypeName }

func (otType) Apply(snapshot, op any) (any, error) {
	s, o, err := carriers(snapshot, op)
	if err != nil {
		return nil, err
	}
	return Apply(s, o)
}

func (otType) Transform(a, b any, side ot.Side) (any, error) {
	oa, ok := a.(Op)
	ob, ok2 := b.(Op)
	if !ok || !ok2 {
		return nil, fmt.Errorf("%w: text transform expects text ops", ot.ErrOpMalformed)
	}
	return Transform(oa, ob, side)
}

func (otType) Compose(a, b any) (any, error) {
	oa, ok := a.(Op)
	ob, ok2 := b.(Op)
	if !ok || !ok2 {
		return nil, fmt.Errorf("%w: text compose expects text ops", ot.ErrOpMalformed)
	}
	return Compose(oa, ob)
}

func (otType) Invert(op, base any) (any, error) {
	s, o, err := carriers(base, op)
	if err != nil {
		return nil, err
	}
	return Invert(o, s)
}

func (otType) DecodeOp(raw json.RawMessage) (any, error) {
	var op Op
	if err := json.Unmarshal(raw, &op); err != nil {
		return nil, fmt.Errorf("%w: %v", ot.ErrOpMalformed, err)
	}
	if err := op.Validate(); err != nil {
		return nil, err
	}
	return op, nil
}

func (otType) EncodeOp(op any) (json.RawMessage, error) {
	o, ok := op.(Op)
	if !ok {
		return nil, fmt.Errorf("%w: not a text op", ot.ErrOpMalformed)
	}
	if o == nil {
		o = Op{}
	}
	return json.Marshal(o)
}

func (otType) DecodeSnapshot(raw json.RawMessage) (any, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("%w: text snapshot must be a JSON string: %v", ot.ErrOpMalformed, err)
	}
	return s, nil
}

func (otType) EncodeSnapshot(snapshot any) (json.RawMessage, error) {
	s, ok := snapshot.(string)
	if !ok {
		return nil, fmt.Errorf("%w: not a text snapshot", ot.ErrOpMalformed)
	}
	return json.Marshal(s)
}

func carriers(snapshot, op any) (string, Op, error) {
	s, ok := snapshot.(string)
	if !ok {
		return "", nil, fmt.Errorf("%w: not a text snapshot", ot.ErrOpMalformed)
	}
	o, ok := op.(Op)
	if !ok {
		return "", nil, fmt.Errorf("%w: not a text op", ot.ErrOpMalformed)
	}
	return s, o, nil
}
