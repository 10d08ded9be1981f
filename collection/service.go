// Package collection orchestrates structural mutations on ordered
// collections: lists within a board and tasks within a list. Every
// operation reads the current siblings, computes the new contiguous
// positions and writes them back while holding a per-parent lock, so the
// positions of a parent's children always form 1..n after a committed
// mutation.
package collection

import (
	"context"

	"github.com/google/uuid"

	"board-api/domain"
	"board-api/ordering"
)

// Store abstracts the persistence operations the mutation path needs.
// Implementations must return slices ordered by position and map their
// backend failures onto the domain error taxonomy.
type Store interface {
	GetBoard(ctx context.Context, boardID string) (domain.Board, error)
	GetList(ctx context.Context, boardID, listID string) (domain.List, error)
	GetTask(ctx context.Context, listID, taskID string) (domain.Task, error)
	ListsForBoard(ctx context.Context, boardID string) ([]domain.List, error)
	TasksForList(ctx context.Context, listID string) ([]domain.Task, error)
	// InsertList and InsertTask write the new row and the shifted sibling
	// positions as a single transactional write, so the insert and its
	// renumbering are never observable separately.
	InsertList(ctx context.Context, list domain.List, shifted []ordering.Placed) error
	InsertTask(ctx context.Context, task domain.Task, shifted []ordering.Placed) error
	// UpdateListPositions and UpdateTaskPositions apply all position
	// changes for one parent as a single transactional write.
	UpdateListPositions(ctx context.Context, boardID string, positions []ordering.Placed) error
	UpdateTaskPositions(ctx context.Context, listID string, positions []ordering.Placed) error
	// MoveTaskRow transfers a task row to the list named by task.ListID,
	// removing it from fromListID and renumbering both lists' siblings.
	MoveTaskRow(ctx context.Context, task domain.Task, fromListID string, sourceShifted, destShifted []ordering.Placed) error
	// DeleteList and DeleteTask remove the row (for a list, its tasks too)
	// and apply the remaining siblings' renumbering in the same write.
	DeleteList(ctx context.Context, boardID, listID string, shifted []ordering.Placed) error
	DeleteTask(ctx context.Context, listID, taskID string, shifted []ordering.Placed) error
}

// Service implements create, move and delete for both collection types.
type Service struct {
	store Store
	locks *parentLocks
	newID func() string
}

// New creates a Service on top of the given store.
func New(store Store) *Service {
	return &Service{
		store: store,
		locks: newParentLocks(),
		newID: uuid.NewString,
	}
}

// CreateList inserts a new list into a board at the requested placement
// and renumbers any shifted siblings.
func (s *Service) CreateList(ctx context.Context, boardID, title string, p ordering.Placement) (domain.List, error) {
	unlock := s.locks.lock(boardID)
	defer unlock()

	if _, err := s.store.GetBoard(ctx, boardID); err != nil {
		return domain.List{}, err
	}
	siblings, err := s.store.ListsForBoard(ctx, boardID)
	if err != nil {
		return domain.List{}, err
	}

	list := domain.List{ID: s.newID(), BoardID: boardID, Title: title}
	final := ordering.Insert(listIDs(siblings), list.ID, p)
	current := listPositions(siblings)
	shifted := make([]ordering.Placed, 0, len(final))
	for _, pl := range ordering.Diff(current, final) {
		if pl.ID == list.ID {
			list.Position = pl.Position
			continue
		}
		shifted = append(shifted, pl)
	}

	if err := s.store.InsertList(ctx, list, shifted); err != nil {
		return domain.List{}, err
	}
	return list, nil
}

// MoveList reorders a list within its board. It returns moved=false when
// the requested placement equals the current one; no writes are issued in
// that case.
func (s *Service) MoveList(ctx context.Context, boardID, listID string, p ordering.Placement) (domain.List, bool, error) {
	unlock := s.locks.lock(boardID)
	defer unlock()

	list, err := s.store.GetList(ctx, boardID, listID)
	if err != nil {
		return domain.List{}, false, asMoveConflict("move list", listID, err)
	}
	siblings, err := s.store.ListsForBoard(ctx, boardID)
	if err != nil {
		return domain.List{}, false, err
	}

	final := ordering.MoveWithin(listIDs(siblings), listID, p)
	changed := ordering.Diff(listPositions(siblings), final)
	if len(changed) == 0 {
		return list, false, nil
	}
	if err := s.store.UpdateListPositions(ctx, boardID, changed); err != nil {
		return domain.List{}, false, err
	}
	list.Position = positionOf(final, listID)
	return list, true, nil
}

// DeleteList removes a list (and, through the store, its tasks) and
// renumbers the board's remaining lists. It holds both the board's and the
// list's locks: the task purge must not interleave with task mutations on
// the dying list.
func (s *Service) DeleteList(ctx context.Context, boardID, listID string) (domain.List, error) {
	unlock := s.locks.lockPair(boardID, listID)
	defer unlock()

	list, err := s.store.GetList(ctx, boardID, listID)
	if err != nil {
		return domain.List{}, err
	}
	siblings, err := s.store.ListsForBoard(ctx, boardID)
	if err != nil {
		return domain.List{}, err
	}

	rest := without(listIDs(siblings), listID)
	changed := ordering.Diff(listPositions(siblings), ordering.Renumber(rest))
	if err := s.store.DeleteList(ctx, boardID, listID, changed); err != nil {
		return domain.List{}, err
	}
	return list, nil
}

// CreateTask inserts a new task into a list at the requested placement.
func (s *Service) CreateTask(ctx context.Context, boardID, listID, title, notes string, p ordering.Placement) (domain.Task, error) {
	unlock := s.locks.lock(listID)
	defer unlock()

	if _, err := s.store.GetList(ctx, boardID, listID); err != nil {
		return domain.Task{}, err
	}
	siblings, err := s.store.TasksForList(ctx, listID)
	if err != nil {
		return domain.Task{}, err
	}

	task := domain.Task{ID: s.newID(), ListID: listID, BoardID: boardID, Title: title, Notes: notes}
	final := ordering.Insert(taskIDs(siblings), task.ID, p)
	shifted := make([]ordering.Placed, 0, len(final))
	for _, pl := range ordering.Diff(taskPositions(siblings), final) {
		if pl.ID == task.ID {
			task.Position = pl.Position
			continue
		}
		shifted = append(shifted, pl)
	}

	if err := s.store.InsertTask(ctx, task, shifted); err != nil {
		return domain.Task{}, err
	}
	return task, nil
}

// MoveTask moves a task inside its list or across lists. A concurrent
// deletion of the task or of the destination list surfaces as a
// ConflictError. moved=false means the request was a no-op.
func (s *Service) MoveTask(ctx context.Context, boardID, taskID, fromListID, toListID string, p ordering.Placement) (domain.Task, bool, error) {
	if fromListID == toListID {
		return s.moveTaskWithin(ctx, boardID, taskID, fromListID, p)
	}
	return s.moveTaskAcross(ctx, boardID, taskID, fromListID, toListID, p)
}

func (s *Service) moveTaskWithin(ctx context.Context, boardID, taskID, listID string, p ordering.Placement) (domain.Task, bool, error) {
	unlock := s.locks.lock(listID)
	defer unlock()

	task, err := s.store.GetTask(ctx, listID, taskID)
	if err != nil {
		return domain.Task{}, false, asMoveConflict("move task", taskID, err)
	}
	siblings, err := s.store.TasksForList(ctx, listID)
	if err != nil {
		return domain.Task{}, false, err
	}

	final := ordering.MoveWithin(taskIDs(siblings), taskID, p)
	changed := ordering.Diff(taskPositions(siblings), final)
	if len(changed) == 0 {
		return task, false, nil
	}
	if err := s.store.UpdateTaskPositions(ctx, listID, changed); err != nil {
		return domain.Task{}, false, err
	}
	task.Position = positionOf(final, taskID)
	return task, true, nil
}

func (s *Service) moveTaskAcross(ctx context.Context, boardID, taskID, fromListID, toListID string, p ordering.Placement) (domain.Task, bool, error) {
	unlock := s.locks.lockPair(fromListID, toListID)
	defer unlock()

	task, err := s.store.GetTask(ctx, fromListID, taskID)
	if err != nil {
		return domain.Task{}, false, asMoveConflict("move task", taskID, err)
	}
	if _, err := s.store.GetList(ctx, boardID, toListID); err != nil {
		return domain.Task{}, false, asMoveConflict("move task", taskID, err)
	}

	source, err := s.store.TasksForList(ctx, fromListID)
	if err != nil {
		return domain.Task{}, false, err
	}
	dest, err := s.store.TasksForList(ctx, toListID)
	if err != nil {
		return domain.Task{}, false, err
	}

	destFinal := ordering.Insert(taskIDs(dest), taskID, p)
	task.ListID = toListID
	task.Position = positionOf(destFinal, taskID)

	rest := without(taskIDs(source), taskID)
	sourceShifted := ordering.Diff(taskPositions(source), ordering.Renumber(rest))
	destShifted := make([]ordering.Placed, 0, len(destFinal))
	for _, pl := range ordering.Diff(taskPositions(dest), destFinal) {
		if pl.ID != taskID {
			destShifted = append(destShifted, pl)
		}
	}

	// The store transfers the row destination-first, so the task is never
	// absent from both lists, and folds each list's renumbering into the
	// same write as the transfer.
	if err := s.store.MoveTaskRow(ctx, task, fromListID, sourceShifted, destShifted); err != nil {
		return domain.Task{}, false, err
	}
	return task, true, nil
}

// DeleteTask removes a task and renumbers the remaining tasks of its list.
func (s *Service) DeleteTask(ctx context.Context, listID, taskID string) (domain.Task, error) {
	unlock := s.locks.lock(listID)
	defer unlock()

	task, err := s.store.GetTask(ctx, listID, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	siblings, err := s.store.TasksForList(ctx, listID)
	if err != nil {
		return domain.Task{}, err
	}

	rest := without(taskIDs(siblings), taskID)
	changed := ordering.Diff(taskPositions(siblings), ordering.Renumber(rest))
	if err := s.store.DeleteTask(ctx, listID, taskID, changed); err != nil {
		return domain.Task{}, err
	}
	return task, nil
}
