package api

import (
	"context"

	"board-api/domain"
	"board-api/ordering"
)

// Storage abstracts the persistence operations handlers call directly,
// outside the ordered-collection mutation path.
type Storage interface {
	GetBoard(ctx context.Context, boardID string) (domain.Board, error)
	InsertBoard(ctx context.Context, board domain.Board) error
	DeleteBoard(ctx context.Context, boardID string) error
	GetList(ctx context.Context, boardID, listID string) (domain.List, error)
	GetTask(ctx context.Context, listID, taskID string) (domain.Task, error)
	UpdateList(ctx context.Context, list domain.List) error
	UpdateTask(ctx context.Context, task domain.Task) error
}

// Views serves the board read model, possibly through a cache.
type Views interface {
	FetchBoardView(ctx context.Context, boardID string) (domain.BoardView, error)
}

// Collection is the ordered-collection mutation service: create, move and
// delete for lists and tasks, keeping sibling positions contiguous.
type Collection interface {
	CreateList(ctx context.Context, boardID, title string, p ordering.Placement) (domain.List, error)
	MoveList(ctx context.Context, boardID, listID string, p ordering.Placement) (domain.List, bool, error)
	DeleteList(ctx context.Context, boardID, listID string) (domain.List, error)
	CreateTask(ctx context.Context, boardID, listID, title, notes string, p ordering.Placement) (domain.Task, error)
	MoveTask(ctx context.Context, boardID, taskID, fromListID, toListID string, p ordering.Placement) (domain.Task, bool, error)
	DeleteTask(ctx context.Context, listID, taskID string) (domain.Task, error)
}

// Notifier fans a committed change out to live subscribers and offline
// consumers. excludeUserID suppresses the echo back to the initiator for
// field-level edits; structural changes pass an empty string so every
// open tab converges.
type Notifier interface {
	NotifyChange(ctx context.Context, ev domain.ChangeEvent, excludeUserID string)
}

// Authenticator is implemented by types able to extract user IDs from headers.
type Authenticator interface {
	UserIDFromAuthHeader(string) (string, error)
	UserIDFromToken(string) (string, error)
}

type createBoardRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type createListRequest struct {
	Title    string `json:"title"`
	Position *int   `json:"position"`
}

type updateListRequest struct {
	Title *string `json:"title"`
}

type moveListRequest struct {
	Position *int `json:"position"`
}

type createTaskRequest struct {
	Title    string `json:"title"`
	Notes    string `json:"notes"`
	Position *int   `json:"position"`
}

type updateTaskRequest struct {
	Title *string `json:"title"`
	Notes *string `json:"notes"`
	Done  *bool   `json:"done"`
}

type moveTaskRequest struct {
	ToListID string `json:"toListId"`
	Position *int   `json:"position"`
}

// placement maps an optional 1-based position from a request body onto a
// Placement; absent means append at the end.
func placement(pos *int) ordering.Placement {
	if pos == nil {
		return ordering.End()
	}
	return ordering.At(*pos)
}
