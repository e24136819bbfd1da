package text

import (
	"encoding/json"
	"errors"
	"math/rand"
	"testing"

	"github.com/Shaharyar-developer/open-ot/internal/ot"
)

func TestApply_InsertAtEnd(t *testing.T) {
	got, err := Apply("Hello", Op{Retain(5), Insert(" World")})
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if got != "Hello World" {
		t.Fatalf("Apply() = %q, want %q", got, "Hello World")
	}
}

func TestApply_DeleteMiddle(t *testing.T) {
	got, err := Apply("Hello", Op{Retain(1), Delete(1), Retain(3)})
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if got != "Hllo" {
		t.Fatalf("Apply() = %q, want %q", got, "Hllo")
	}
}

func TestApply_LenientTail(t *testing.T) {
	got, err := Apply("abc", Op{Retain(1)})
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if got != "abc" {
		t.Fatalf("Apply() = %q, want %q", got, "abc")
	}
	if _, err := ApplyStrict("abc", Op{Retain(1)}); !errors.Is(err, ot.ErrOpOutOfBounds) {
		t.Fatalf("ApplyStrict() error = %v, want %v", err, ot.ErrOpOutOfBounds)
	}
}

func TestApply_OutOfBounds(t *testing.T) {
	if _, err := Apply("ab", Op{Retain(3)}); !errors.Is(err, ot.ErrOpOutOfBounds) {
		t.Fatalf("Apply() error = %v, want %v", err, ot.ErrOpOutOfBounds)
	}
	if _, err := Apply("ab", Op{Delete(3)}); !errors.Is(err, ot.ErrOpOutOfBounds) {
		t.Fatalf("Apply() error = %v, want %v", err, ot.ErrOpOutOfBounds)
	}
}

func TestApply_RuneUnits(t *testing.T) {
	got, err := Apply("héllo", Op{Retain(2), Delete(1)})
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if got != "hélo" {
		t.Fatalf("Apply() = %q, want %q", got, "hélo")
	}
}

func TestApply_EmptyOpIdentity(t *testing.T) {
	got, err := Apply("snapshot", Op{})
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if got != "snapshot" {
		t.Fatalf("Apply() = %q, want %q", got, "snapshot")
	}
}

func TestApply_Malformed(t *testing.T) {
	bad := []Op{
		{Component{}},
		{Retain(1), Retain(2)},
	}
	for _, op := range bad {
		if _, err := Apply("abc", op); !errors.Is(err, ot.ErrOpMalformed) {
			t.Fatalf("Apply(%v) error = %v, want %v", op, err, ot.ErrOpMalformed)
		}
	}
}

func TestCompose_Cancellation(t *testing.T) {
	got, err := Compose(Op{Insert("a")}, Op{Delete(1)})
	if err != nil {
		t.Fatalf("Compose() error = %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("Compose() = %v, want empty op", got)
	}
}

func TestCompose_Identities(t *testing.T) {
	op := Op{Retain(2), Insert("x"), Delete(1)}
	left, err := Compose(Op{}, op)
	if err != nil {
		t.Fatalf("Compose() error = %v", err)
	}
	if !left.Equal(op) {
		t.Fatalf("Compose([], op) = %v, want %v", left, op)
	}
	right, err := Compose(op, Op{})
	if err != nil {
		t.Fatalf("Compose() error = %v", err)
	}
	if !right.Equal(op) {
		t.Fatalf("Compose(op, []) = %v, want %v", right, op)
	}
}

func TestCompose_SplitsInsert(t *testing.T) {
	// b retains into the middle of a's insert and deletes the rest of it.
	got, err := Compose(Op{Insert("abcd")}, Op{Retain(2), Delete(2)})
	if err != nil {
		t.Fatalf("Compose() error = %v", err)
	}
	want := Op{Insert("ab")}
	if !got.Equal(want) {
		t.Fatalf("Compose() = %v, want %v", got, want)
	}
}

func TestTransform_InsertInsertTieBreak(t *testing.T) {
	left, err := Transform(Op{Retain(3), Insert("A")}, Op{Retain(3), Insert("B")}, ot.Left)
	if err != nil {
		t.Fatalf("Transform() error = %v", err)
	}
	wantLeft := Op{Retain(3), Insert("A"), Retain(1)}
	if !left.Equal(wantLeft) {
		t.Fatalf("Transform(Left) = %v, want %v", left, wantLeft)
	}
	right, err := Transform(Op{Retain(3), Insert("B")}, Op{Retain(3), Insert("A")}, ot.Right)
	if err != nil {
		t.Fatalf("Transform() error = %v", err)
	}
	wantRight := Op{Retain(4), Insert("B")}
	if !right.Equal(wantRight) {
		t.Fatalf("Transform(Right) = %v, want %v", right, wantRight)
	}
}

func TestTransform_InsertInsideDelete(t *testing.T) {
	// The insert survives bare: the retains around it collapse instead of
	// sticking to a deletion boundary.
	got, err := Transform(Op{Retain(1), Insert("A"), Retain(1)}, Op{Delete(2)}, ot.Left)
	if err != nil {
		t.Fatalf("Transform() error = %v", err)
	}
	want := Op{Insert("A")}
	if !got.Equal(want) {
		t.Fatalf("Transform() = %v, want %v", got, want)
	}
}

func TestTransform_EmptyIdentity(t *testing.T) {
	op := Op{Retain(2), Insert("x"), Delete(1)}
	for _, side := range []ot.Side{ot.Left, ot.Right} {
		got, err := Transform(op, Op{}, side)
		if err != nil {
			t.Fatalf("Transform() error = %v", err)
		}
		if !got.Equal(op) {
			t.Fatalf("Transform(op, [], %v) = %v, want %v", side, got, op)
		}
	}
}

func TestTransform_DeleteOverlap(t *testing.T) {
	// Both sides delete an overlapping range; only the non-overlapping part
	// of a's delete survives.
	got, err := Transform(Op{Delete(3)}, Op{Retain(1), Delete(2)}, ot.Left)
	if err != nil {
		t.Fatalf("Transform() error = %v", err)
	}
	want := Op{Delete(1)}
	if !got.Equal(want) {
		t.Fatalf("Transform() = %v, want %v", got, want)
	}
}

func TestNormalize(t *testing.T) {
	op := Op{Retain(1), Retain(2), Insert("a"), Insert("b"), Delete(1), Delete(2)}
	want := Op{Retain(3), Insert("ab"), Delete(3)}
	got := Normalize(op)
	if !got.Equal(want) {
		t.Fatalf("Normalize() = %v, want %v", got, want)
	}
	if again := Normalize(got); !again.Equal(got) {
		t.Fatalf("Normalize(Normalize()) = %v, want %v", again, got)
	}
}

func TestInvert_Roundtrip(t *testing.T) {
	base := "Hello World"
	op := Op{Retain(5), Delete(6), Insert("!")}
	inv, err := Invert(op, base)
	if err != nil {
		t.Fatalf("Invert() error = %v", err)
	}
	edited, err := Apply(base, op)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	restored, err := Apply(edited, inv)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if restored != base {
		t.Fatalf("roundtrip = %q, want %q", restored, base)
	}
}

func TestComponentJSON(t *testing.T) {
	var op Op
	if err := json.Unmarshal([]byte(`[{"r":3},{"i":"ab"},{"d":2}]`), &op); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	want := Op{Retain(3), Insert("ab"), Delete(2)}
	if !op.Equal(want) {
		t.Fatalf("Unmarshal() = %v, want %v", op, want)
	}
	out, err := json.Marshal(op)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if string(out) != `[{"r":3},{"i":"ab"},{"d":2}]` {
		t.Fatalf("Marshal() = %s", out)
	}
}

func TestComponentJSON_Rejects(t *testing.T) {
	for _, raw := range []string{
		`[{}]`,
		`[{"r":1,"i":"x"}]`,
		`[{"x":1}]`,
		`[{"r":0}]`,
		`[{"d":-1}]`,
		`[{"i":""}]`,
	} {
		var op Op
		if err := json.Unmarshal([]byte(raw), &op); !errors.Is(err, ot.ErrOpMalformed) {
			t.Fatalf("Unmarshal(%s) error = %v, want %v", raw, err, ot.ErrOpMalformed)
		}
	}
}

// randomOp builds a normalized op that traverses exactly baseLen units.
func randomOp(r *rand.Rand, baseLen int) Op {
	var b builder
	i := 0
	for i < baseLen {
		n := 1 + r.Intn(baseLen-i)
		switch r.Intn(3) {
		case 0:
			b.add(Retain(n))
			i += n
		case 1:
			b.add(Delete(n))
			i += n
		case 2:
			b.add(Insert(randomText(r, n)))
		}
	}
	if r.Intn(2) == 0 {
		b.add(Insert(randomText(r, 1+r.Intn(4))))
	}
	return b.op
}

func randomText(r *rand.Rand, n int) string {
	const alphabet = "abcdefghijklmnopqrstuvwxyzéß世"
	runes := []rune(alphabet)
	out := make([]rune, n)
	for i := range out {
		out[i] = runes[r.Intn(len(runes))]
	}
	return string(out)
}

func TestTransform_ConvergenceProperty(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	for i := 0; i < 500; i++ {
		s := randomText(r, 1+r.Intn(20))
		baseLen := len([]rune(s))
		a := randomOp(r, baseLen)
		b := randomOp(r, baseLen)

		bPrime, err := Transform(b, a, ot.Right)
		if err != nil {
			t.Fatalf("Transform(b, a) error = %v", err)
		}
		aPrime, err := Transform(a, b, ot.Left)
		if err != nil {
			t.Fatalf("Transform(a, b) error = %v", err)
		}
		viaA, err := Apply(s, a)
		if err != nil {
			t.Fatalf("Apply(s, a) error = %v", err)
		}
		if viaA, err = Apply(viaA, bPrime); err != nil {
			t.Fatalf("Apply(a, b') error = %v", err)
		}
		viaB, err := Apply(s, b)
		if err != nil {
			t.Fatalf("Apply(s, b) error = %v", err)
		}
		if viaB, err = Apply(viaB, aPrime); err != nil {
			t.Fatalf("Apply(b, a') error = %v", err)
		}
		if viaA != viaB {
			t.Fatalf("diverged on s=%q a=%v b=%v: %q != %q", s, a, b, viaA, viaB)
		}
	}
}

func TestCompose_AssociativityOnApply(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	for i := 0; i < 500; i++ {
		s := randomText(r, 1+r.Intn(20))
		a := randomOp(r, len([]rune(s)))
		mid, err := Apply(s, a)
		if err != nil {
			t.Fatalf("Apply(s, a) error = %v", err)
		}
		b := randomOp(r, len([]rune(mid)))
		ab, err := Compose(a, b)
		if err != nil {
			t.Fatalf("Compose() error = %v", err)
		}
		sequential, err := Apply(mid, b)
		if err != nil {
			t.Fatalf("Apply(mid, b) error = %v", err)
		}
		composed, err := Apply(s, ab)
		if err != nil {
			t.Fatalf("Apply(s, ab) error = %v", err)
		}
		if composed != sequential {
			t.Fatalf("compose diverged on s=%q a=%v b=%v: %q != %q", s, a, b, composed, sequential)
		}
	}
}

func TestNormalize_IdempotenceProperty(t *testing.T) {
	r := rand.New(rand.NewSource(11))
	for i := 0; i < 200; i++ {
		op := randomOp(r, 1+r.Intn(15))
		once := Normalize(op)
		if err := once.Validate(); err != nil {
			t.Fatalf("Normalize() produced invalid op %v: %v", once, err)
		}
		if twice := Normalize(once); !twice.Equal(once) {
			t.Fatalf("Normalize not idempotent on %v", op)
		}
	}
}

func TestInvert_RoundtripProperty(t *testing.T) {
	r := rand.New(rand.NewSource(23))
	for i := 0; i < 200; i++ {
		s := randomText(r, 1+r.Intn(20))
		op := randomOp(r, len([]rune(s)))
		inv, err := Invert(op, s)
		if err != nil {
			t.Fatalf("Invert() error = %v", err)
		}
		edited, err := Apply(s, op)
		if err != nil {
			t.Fatalf("Apply() error = %v", err)
		}
		restored, err := Apply(edited, inv)
		if err != nil {
			t.Fatalf("Apply(inverse) error = %v", err)
		}
		if restored != s {
			t.Fatalf("invert roundtrip diverged on s=%q op=%v: got %q", s, op, restored)
		}
	}
}
