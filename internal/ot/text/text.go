// Package text implements the Retain/Insert/Delete operation calculus for
// plain-text snapshots. Lengths are measured in Unicode code points (Go
// runes) everywhere; the wire payload of an insert is the string itself, so
// both ends must agree on this unit for transform to converge.
package text

import (
	"encoding/json"
	"fmt"
	"unicode/utf8"

	"github.com/Shaharyar-developer/open-ot/internal/ot"
)

// TypeName is the registry key for this type.
const TypeName = "text"

type Kind uint8

const (
	KindRetain Kind = iota + 1
	KindInsert
	KindDelete
)

// Component is one tagged segment of an operation: pass through n units,
// insert a string, or remove n units.
type Component struct {
	kind Kind
	n    int    // size in runes; for inserts this caches the rune count of text
	text string // insert payload
}

func Retain(n int) Component { return Component{kind: KindRetain, n: n} }

func Insert(s string) Component {
	return Component{kind: KindInsert, n: utf8.RuneCountInString(s), text: s}
}

func Delete(n int) Component { return Component{kind: KindDelete, n: n} }

func (c Component) Kind() Kind { return c.kind }

// Size is the component's length in runes.
func (c Component) Size() int { return c.n }

// Text is the insert payload; empty for retain and delete.
func (c Component) Text() string { return c.text }

func (c Component) String() string {
	switch c.kind {
	case KindRetain:
		return fmt.Sprintf("retain(%d)", c.n)
	case KindInsert:
		return fmt.Sprintf("insert(%q)", c.text)
	case KindDelete:
		return fmt.Sprintf("delete(%d)", c.n)
	}
	return "invalid"
}

// MarshalJSON emits the single-key wire form: {"r":n}, {"i":s} or {"d":n}.
func (c Component) MarshalJSON() ([]byte, error) {
	switch c.kind {
	case KindRetain:
		return json.Marshal(map[string]int{"r": c.n})
	case KindInsert:
		return json.Marshal(map[string]string{"i": c.text})
	case KindDelete:
		return json.Marshal(map[string]int{"d": c.n})
	}
	return nil, fmt.Errorf("%w: unknown component kind %d", ot.ErrOpMalformed, c.kind)
}

// UnmarshalJSON decodes the wire form. Objects carrying zero or more than one
// of the r/i/d keys are rejected, as are non-positive sizes and empty inserts.
func (c *Component) UnmarshalJSON(data []byte) error {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("%w: %v", ot.ErrOpMalformed, err)
	}
	if len(m) != 1 {
		return fmt.Errorf("%w: component must carry exactly one of r/i/d, got %d keys", ot.ErrOpMalformed, len(m))
	}
	for key, raw := range m {
		switch key {
		case "r", "d":
			var n int
			if err := json.Unmarshal(raw, &n); err != nil {
				return fmt.Errorf("%w: %v", ot.ErrOpMalformed, err)
			}
			if n <= 0 {
				return fmt.Errorf("%w: %q must be positive, got %d", ot.ErrOpMalformed, key, n)
			}
			if key == "r" {
				*c = Retain(n)
			} else {
				*c = Delete(n)
			}
		case "i":
			var s string
			if err := json.Unmarshal(raw, &s); err != nil {
				return fmt.Errorf("%w: %v", ot.ErrOpMalformed, err)
			}
			if s == "" {
				return fmt.Errorf("%w: empty insert", ot.ErrOpMalformed)
			}
			*c = Insert(s)
		default:
			return fmt.Errorf("%w: unknown component key %q", ot.ErrOpMalformed, key)
		}
	}
	return nil
}

// Op is an ordered sequence of components.
type Op []Component

// BaseLen is the snapshot length, in runes, the op expects as input.
func (op Op) BaseLen() int {
	n := 0
	for _, c := range op {
		if c.kind == KindRetain || c.kind == KindDelete {
			n += c.n
		}
	}
	return n
}

// TargetLen is the snapshot length, in runes, the op produces from a snapshot
// of exactly BaseLen.
func (op Op) TargetLen() int {
	n := 0
	for _, c := range op {
		if c.kind == KindRetain || c.kind == KindInsert {
			n += c.n
		}
	}
	return n
}

// Validate reports whether the op is well formed and normalized: no unknown
// or zero-sized components and no two adjacent components of the same kind.
func (op Op) Validate() error {
	for i, c := range op {
		switch c.kind {
		case KindRetain, KindInsert, KindDelete:
		default:
			return fmt.Errorf("%w: unknown component kind at index %d", ot.ErrOpMalformed, i)
		}
		if c.n <= 0 || (c.kind == KindInsert && c.text == "") {
			return fmt.Errorf("%w: zero-sized component at index %d", ot.ErrOpMalformed, i)
		}
		if i > 0 && op[i-1].kind == c.kind {
			return fmt.Errorf("%w: adjacent %v components at index %d", ot.ErrOpMalformed, c.kind, i)
		}
	}
	return nil
}

// Equal reports component-wise equality.
func (op Op) Equal(other Op) bool {
	if len(op) != len(other) {
		return false
	}
	for i := range op {
		if op[i] != other[i] {
			return false
		}
	}
	return true
}

// builder accumulates components, merging adjacent same-kind components and
// dropping empties so every emitted op is canonical.
type builder struct {
	op Op
}

func (b *builder) add(c Component) {
	if c.n <= 0 {
		return
	}
	if n := len(b.op); n > 0 && b.op[n-1].kind == c.kind {
		b.op[n-1].n += c.n
		if c.kind == KindInsert {
			b.op[n-1].text += c.text
		}
		return
	}
	b.op = append(b.op, c)
}

// Normalize returns the canonical form of op: adjacent same-kind components
// merged, zero-sized components dropped.
func Normalize(op Op) Op {
	var b builder
	for _, c := range op {
		b.add(c)
	}
	return b.op
}
