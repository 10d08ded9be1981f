package domain

// Board is the top-level container owning an ordered set of lists.
type Board struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	OwnerID     string `json:"ownerId"`
	CreatedAt   int64  `json:"createdAt"`
}

// List is an ordered container of tasks within a board. Position is the
// 1-based contiguous rank among the board's lists.
type List struct {
	ID       string `json:"id"`
	BoardID  string `json:"boardId"`
	Title    string `json:"title"`
	Position int    `json:"position"`
}

// Task is the leaf work item. Position is the 1-based contiguous rank
// among the tasks of its list. BoardID is carried redundantly so change
// notifications can be scoped without an extra lookup.
type Task struct {
	ID       string `json:"id"`
	ListID   string `json:"listId"`
	BoardID  string `json:"boardId"`
	Title    string `json:"title"`
	Notes    string `json:"notes,omitempty"`
	Position int    `json:"position"`
	Done     bool   `json:"done,omitempty"`
}

// ListView is a list together with its ordered tasks.
type ListView struct {
	List
	Tasks []Task `json:"tasks"`
}

// BoardView is the full read model of a board: the board itself plus its
// ordered lists, each carrying its ordered tasks.
type BoardView struct {
	Board
	Lists []ListView `json:"lists"`
}
