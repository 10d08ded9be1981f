package domain

// EntityKind identifies which part of the board a change touched.
type EntityKind string

const (
	EntityBoard EntityKind = "board"
	EntityList  EntityKind = "list"
	EntityTask  EntityKind = "task"
)

// Action describes what happened to the entity.
type Action string

const (
	ActionCreated Action = "created"
	ActionUpdated Action = "updated"
	ActionDeleted Action = "deleted"
	ActionMoved   Action = "moved"
)

// ChangeEvent describes a durably committed mutation. It is created by the
// mutation path immediately after the write succeeds and consumed exactly
// once per broadcast fan-out; it is never persisted as-is (the change feed
// queue carries its own serialized copy).
type ChangeEvent struct {
	Entity  EntityKind `json:"entity"`
	Action  Action     `json:"action"`
	BoardID string     `json:"boardId"`
	// Item holds the post-mutation state of the affected entity, or its
	// bare identifier for deletions.
	Item any `json:"item,omitempty"`
	// SourceParentID and DestParentID are set for moves; for a move within
	// one parent both carry the same value.
	SourceParentID string `json:"oldParentId,omitempty"`
	DestParentID   string `json:"newParentId,omitempty"`
	Timestamp      int64  `json:"timestamp"`
}
