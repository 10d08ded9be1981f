package ordering

import (
	"fmt"
	"math/rand"
	"testing"
)

func ids(placed []Placed) []string {
	out := make([]string, len(placed))
	for i, p := range placed {
		out[i] = p.ID
	}
	return out
}

func assertContiguous(t *testing.T, placed []Placed) {
	t.Helper()
	seen := map[string]struct{}{}
	for i, p := range placed {
		if p.Position != i+1 {
			t.Fatalf("position at index %d is %d, want %d", i, p.Position, i+1)
		}
		if _, dup := seen[p.ID]; dup {
			t.Fatalf("duplicate id %q", p.ID)
		}
		seen[p.ID] = struct{}{}
	}
}

func assertOrder(t *testing.T, placed []Placed, want ...string) {
	t.Helper()
	got := ids(placed)
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
	assertContiguous(t, placed)
}

func TestInsertAppendsByDefault(t *testing.T) {
	// New list in a board with [L1, L2] and no explicit index lands at 3.
	got := Insert([]string{"L1", "L2"}, "L3", End())
	assertOrder(t, got, "L1", "L2", "L3")
	if got[2].Position != 3 {
		t.Fatalf("appended position = %d, want 3", got[2].Position)
	}
}

func TestInsertAtIndex(t *testing.T) {
	cases := []struct {
		name  string
		p     Placement
		order []string
	}{
		{"front", At(1), []string{"X", "a", "b", "c"}},
		{"middle", At(2), []string{"a", "X", "b", "c"}},
		{"end", At(4), []string{"a", "b", "c", "X"}},
		{"clamped high", At(99), []string{"a", "b", "c", "X"}},
		{"clamped low", At(0), []string{"X", "a", "b", "c"}},
		{"clamped negative", At(-3), []string{"X", "a", "b", "c"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Insert([]string{"a", "b", "c"}, "X", tc.p)
			assertOrder(t, got, tc.order...)
		})
	}
}

func TestInsertIntoEmpty(t *testing.T) {
	got := Insert(nil, "only", At(5))
	assertOrder(t, got, "only")
	if got[0].Position != 1 {
		t.Fatalf("position = %d, want 1", got[0].Position)
	}
}

func TestRenumberAfterRemoval(t *testing.T) {
	got := Renumber([]string{"T1", "T3"})
	assertOrder(t, got, "T1", "T3")
}

func TestMoveWithinToFront(t *testing.T) {
	// [T1,T2,T3] move T3 to index 1 -> [T3,T1,T2] at positions [1,2,3].
	got := MoveWithin([]string{"T1", "T2", "T3"}, "T3", At(1))
	assertOrder(t, got, "T3", "T1", "T2")
}

func TestMoveWithinSamePositionIsStable(t *testing.T) {
	sib := []string{"a", "b", "c", "d"}
	for i, id := range sib {
		got := MoveWithin(sib, id, At(i+1))
		assertOrder(t, got, "a", "b", "c", "d")
		current := map[string]int{"a": 1, "b": 2, "c": 3, "d": 4}
		if changed := Diff(current, got); len(changed) != 0 {
			t.Fatalf("moving %q to its own position changed %v", id, changed)
		}
	}
}

func TestDiffReportsOnlyShiftedSiblings(t *testing.T) {
	current := map[string]int{"a": 1, "b": 2, "c": 3}
	final := Insert([]string{"a", "b", "c"}, "X", At(2))
	changed := Diff(current, final)
	// X is new, b and c shift down, a stays put.
	want := map[string]int{"X": 2, "b": 3, "c": 4}
	if len(changed) != len(want) {
		t.Fatalf("changed = %v, want %v", changed, want)
	}
	for _, pl := range changed {
		if want[pl.ID] != pl.Position {
			t.Fatalf("changed = %v, want %v", changed, want)
		}
	}
}

func TestRandomizedOperationsKeepContiguity(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	var order []string
	next := 0
	for i := 0; i < 2000; i++ {
		switch op := rng.Intn(3); {
		case op == 0 || len(order) == 0: // insert
			id := fmt.Sprintf("n%d", next)
			next++
			placed := Insert(order, id, At(rng.Intn(len(order)+3)-1))
			assertContiguous(t, placed)
			order = ids(placed)
		case op == 1: // move
			id := order[rng.Intn(len(order))]
			placed := MoveWithin(order, id, At(rng.Intn(len(order)+2)))
			assertContiguous(t, placed)
			order = ids(placed)
		default: // delete
			at := rng.Intn(len(order))
			placed := Renumber(append(append([]string{}, order[:at]...), order[at+1:]...))
			assertContiguous(t, placed)
			order = ids(placed)
		}
	}
}
