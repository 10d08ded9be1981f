// Package ordering computes contiguous 1-based positions for ordered
// siblings. It is pure: callers read the current sibling order, run a
// function here and write the result back.
package ordering

// Placement selects where an item lands among its siblings. The zero value
// is not meaningful; use At or End. End exists so "move to the end" never
// needs a sentinel index.
type Placement struct {
	index int
	end   bool
}

// At places the item at the given 1-based index. Out-of-range indexes are
// clamped when the placement is resolved against the sibling count.
func At(index int) Placement { return Placement{index: index} }

// End appends the item after the current last sibling.
func End() Placement { return Placement{end: true} }

// Resolve clamps the placement to [1, n+1] where n is the number of
// siblings the item is being inserted among (excluding itself).
func (p Placement) Resolve(n int) int {
	if p.end || p.index > n+1 {
		return n + 1
	}
	if p.index < 1 {
		return 1
	}
	return p.index
}

// Placed pairs a sibling identifier with its final position.
type Placed struct {
	ID       string
	Position int
}

// Insert splices id into siblings at the resolved placement and renumbers
// the result 1..n+1. siblings must be in current order and must not
// contain id.
func Insert(siblings []string, id string, p Placement) []Placed {
	at := p.Resolve(len(siblings)) - 1
	out := make([]Placed, 0, len(siblings)+1)
	for _, s := range siblings[:at] {
		out = append(out, Placed{ID: s})
	}
	out = append(out, Placed{ID: id})
	for _, s := range siblings[at:] {
		out = append(out, Placed{ID: s})
	}
	for i := range out {
		out[i].Position = i + 1
	}
	return out
}

// Renumber assigns contiguous 1-based positions to siblings in their
// current order. It is used after a removal.
func Renumber(siblings []string) []Placed {
	out := make([]Placed, len(siblings))
	for i, s := range siblings {
		out[i] = Placed{ID: s, Position: i + 1}
	}
	return out
}

// MoveWithin reorders one item inside a single parent: remove id from
// siblings, reinsert at the placement and renumber in one pass. siblings
// must contain id.
func MoveWithin(siblings []string, id string, p Placement) []Placed {
	rest := make([]string, 0, len(siblings))
	for _, s := range siblings {
		if s != id {
			rest = append(rest, s)
		}
	}
	return Insert(rest, id, p)
}

// Diff returns the entries of final whose position differs from current.
// IDs absent from current are always included. The mutation path writes
// only these rows, which is what makes a no-op move produce zero writes.
func Diff(current map[string]int, final []Placed) []Placed {
	changed := make([]Placed, 0, len(final))
	for _, pl := range final {
		if pos, ok := current[pl.ID]; !ok || pos != pl.Position {
			changed = append(changed, pl)
		}
	}
	return changed
}
