package text

import (
	"fmt"

	"github.com/Shaharyar-developer/open-ot/internal/ot"
)

// Apply runs op against snapshot and returns the edited snapshot. Apply is
// lenient about the tail: any part of the snapshot the op does not traverse
// is carried through unchanged, as if the op ended with an implicit retain.
func Apply(snapshot string, op Op) (string, error) {
	return apply(snapshot, op, false)
}

// ApplyStrict is Apply with the leniency removed: the op must traverse the
// whole snapshot. Useful for catching clients that edit against a stale
// length.
func ApplyStrict(snapshot string, op Op) (string, error) {
	return apply(snapshot, op, true)
}

func apply(snapshot string, op Op, strict bool) (string, error) {
	if err := op.Validate(); err != nil {
		return "", err
	}
	src := []rune(snapshot)
	out := make([]rune, 0, len(src))
	i := 0
	for _, c := range op {
		switch c.kind {
		case KindRetain:
			if i+c.n > len(src) {
				return "", fmt.Errorf("%w: retain %d at offset %d overruns snapshot of length %d", ot.ErrOpOutOfBounds, c.n, i, len(src))
			}
			out = append(out, src[i:i+c.n]...)
			i += c.n
		case KindInsert:
			out = append(out, []rune(c.text)...)
		case KindDelete:
			if i+c.n > len(src) {
				return "", fmt.Errorf("%w: delete %d at offset %d overruns snapshot of length %d", ot.ErrOpOutOfBounds, c.n, i, len(src))
			}
			i += c.n
		}
	}
	if i < len(src) {
		if strict {
			return "", fmt.Errorf("%w: op leaves %d units untraversed", ot.ErrOpOutOfBounds, len(src)-i)
		}
		out = append(out, src[i:]...)
	}
	return string(out), nil
}

// cursor walks an op component by component with an intra-component offset.
type cursor struct {
	op  Op
	i   int
	off int
}

func (c *cursor) done() bool { return c.i >= len(c.op) }

func (c *cursor) kind() Kind { return c.op[c.i].kind }

// remaining is the unconsumed size of the current component.
func (c *cursor) remaining() int { return c.op[c.i].n - c.off }

// take consumes n units of the current component and returns them as a
// component of the same kind.
func (c *cursor) take(n int) Component {
	cur := c.op[c.i]
	var out Component
	if cur.kind == KindInsert {
		runes := []rune(cur.text)
		out = Insert(string(runes[c.off : c.off+n]))
	} else {
		out = Component{kind: cur.kind, n: n}
	}
	c.skip(n)
	return out
}

// skip consumes n units of the current component without producing output.
func (c *cursor) skip(n int) {
	c.off += n
	if c.off >= c.op[c.i].n {
		c.i++
		c.off = 0
	}
}

// Compose returns a single op equivalent to applying a then b.
func Compose(a, b Op) (Op, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	var out builder
	ca, cb := &cursor{op: a}, &cursor{op: b}
	for {
		// a's deletes and b's inserts are independent of the other side.
		if !ca.done() && ca.kind() == KindDelete {
			out.add(ca.take(ca.remaining()))
			continue
		}
		if !cb.done() && cb.kind() == KindInsert {
			out.add(cb.take(cb.remaining()))
			continue
		}
		if ca.done() && cb.done() {
			break
		}
		// An exhausted side stands in as an infinite retain.
		if ca.done() {
			out.add(cb.take(cb.remaining()))
			continue
		}
		if cb.done() {
			out.add(ca.take(ca.remaining()))
			continue
		}
		n := min(ca.remaining(), cb.remaining())
		switch {
		case ca.kind() == KindRetain && cb.kind() == KindRetain:
			ca.skip(n)
			cb.skip(n)
			out.add(Retain(n))
		case ca.kind() == KindRetain && cb.kind() == KindDelete:
			ca.skip(n)
			cb.skip(n)
			out.add(Delete(n))
		case ca.kind() == KindInsert && cb.kind() == KindRetain:
			out.add(ca.take(n))
			cb.skip(n)
		case ca.kind() == KindInsert && cb.kind() == KindDelete:
			// The delete consumes text a inserted; both cancel.
			ca.skip(n)
			cb.skip(n)
		}
	}
	return out.op, nil
}

// Transform rewrites a so that it applies after the concurrent op b with the
// same effect a had on their shared base. side breaks insert-vs-insert ties:
// the Left operand's insert lands first.
//
// An insert positioned inside a range b deletes survives bare: the retains
// around it collapse to nothing rather than sticking to a deletion boundary.
func Transform(a, b Op, side ot.Side) (Op, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	var out builder
	ca, cb := &cursor{op: a}, &cursor{op: b}
	for {
		if ca.done() && cb.done() {
			break
		}
		// a's insert goes first unless b also inserts here and holds priority.
		if !ca.done() && ca.kind() == KindInsert &&
			(cb.done() || cb.kind() != KindInsert || side == ot.Left) {
			out.add(ca.take(ca.remaining()))
			continue
		}
		// b's insert becomes a retain over the text it added.
		if !cb.done() && cb.kind() == KindInsert {
			out.add(Retain(cb.remaining()))
			cb.skip(cb.remaining())
			continue
		}
		// Neither current component is an insert; an exhausted side is an
		// infinite retain.
		if ca.done() {
			cb.skip(cb.remaining())
			continue
		}
		if cb.done() {
			out.add(ca.take(ca.remaining()))
			continue
		}
		n := min(ca.remaining(), cb.remaining())
		switch {
		case ca.kind() == KindRetain && cb.kind() == KindRetain:
			ca.skip(n)
			cb.skip(n)
			out.add(Retain(n))
		case ca.kind() == KindDelete && cb.kind() == KindRetain:
			ca.skip(n)
			cb.skip(n)
			out.add(Delete(n))
		default:
			// b deleted this range; a's retain or delete over it is moot.
			ca.skip(n)
			cb.skip(n)
		}
	}
	return out.op, nil
}

// Invert derives the op that undoes op relative to the snapshot it applied
// to: inserts become deletes and deletes restore the removed slice.
func Invert(op Op, base string) (Op, error) {
	if err := op.Validate(); err != nil {
		return nil, err
	}
	src := []rune(base)
	var out builder
	i := 0
	for _, c := range op {
		switch c.kind {
		case KindRetain:
			if i+c.n > len(src) {
				return nil, fmt.Errorf("%w: retain %d at offset %d overruns snapshot of length %d", ot.ErrOpOutOfBounds, c.n, i, len(src))
			}
			out.add(Retain(c.n))
			i += c.n
		case KindInsert:
			out.add(Delete(c.n))
		case KindDelete:
			if i+c.n > len(src) {
				return nil, fmt.Errorf("%w: delete %d at offset %d overruns snapshot of length %d", ot.ErrOpOutOfBounds, c.n, i, len(src))
			}
			out.add(Insert(string(src[i : i+c.n])))
			i += c.n
		}
	}
	return out.op, nil
}
