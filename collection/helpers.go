package collection

import (
	"errors"

	"board-api/domain"
	"board-api/ordering"
)

func listIDs(lists []domain.List) []string {
	out := make([]string, len(lists))
	for i, l := range lists {
		out[i] = l.ID
	}
	return out
}

func listPositions(lists []domain.List) map[string]int {
	out := make(map[string]int, len(lists))
	for _, l := range lists {
		out[l.ID] = l.Position
	}
	return out
}

func taskIDs(tasks []domain.Task) []string {
	out := make([]string, len(tasks))
	for i, t := range tasks {
		out[i] = t.ID
	}
	return out
}

func taskPositions(tasks []domain.Task) map[string]int {
	out := make(map[string]int, len(tasks))
	for _, t := range tasks {
		out[t.ID] = t.Position
	}
	return out
}

func without(ids []string, id string) []string {
	out := make([]string, 0, len(ids))
	for _, s := range ids {
		if s != id {
			out = append(out, s)
		}
	}
	return out
}

func positionOf(placed []ordering.Placed, id string) int {
	for _, pl := range placed {
		if pl.ID == id {
			return pl.Position
		}
	}
	return 0
}

// asMoveConflict turns a missing item or parent during a move into a
// ConflictError: the caller raced with a concurrent structural change and
// should retry once.
func asMoveConflict(op, itemID string, err error) error {
	if errors.Is(err, domain.ErrNotFound) {
		return domain.NewConflict(op, itemID, "item or parent deleted concurrently")
	}
	return err
}
