package realtime

import "sync"

// Registry tracks which live connections are watching which board. It is
// the only shared mutable state in the subsystem; every entry point takes
// the registry lock, so subscribe, unsubscribe and broadcast snapshots are
// linearizable with respect to each other. It is built once per process
// and injected wherever it is needed.
type Registry struct {
	mu     sync.RWMutex
	boards map[string]map[*Client]struct{}
	subs   map[*Client]string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		boards: make(map[string]map[*Client]struct{}),
		subs:   make(map[*Client]string),
	}
}

// Subscribe adds the connection to boardID's set. Re-subscribing the same
// connection to a different board first removes it from the old board's
// set; prev reports that board when it happens. already is true when the
// connection was subscribed to boardID before the call, so callers can
// tell a no-op re-subscribe from a real join.
func (r *Registry) Subscribe(c *Client, boardID string) (prev string, already bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.subs[c]; ok {
		if old == boardID {
			return "", true
		}
		r.removeLocked(c, old)
		prev = old
	}
	set, ok := r.boards[boardID]
	if !ok {
		set = make(map[*Client]struct{})
		r.boards[boardID] = set
	}
	set[c] = struct{}{}
	r.subs[c] = boardID
	return prev, false
}

// Unsubscribe removes the connection from whatever board it is watching
// and reports that board. The board key is dropped when its set empties.
func (r *Registry) Unsubscribe(c *Client) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	boardID, ok := r.subs[c]
	if !ok {
		return "", false
	}
	r.removeLocked(c, boardID)
	return boardID, true
}

func (r *Registry) removeLocked(c *Client, boardID string) {
	delete(r.subs, c)
	set, ok := r.boards[boardID]
	if !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(r.boards, boardID)
	}
}

// CountFor returns the number of connections subscribed to boardID.
func (r *Registry) CountFor(boardID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.boards[boardID])
}

// Snapshot returns subscriber counts per board, for observability.
func (r *Registry) Snapshot() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]int, len(r.boards))
	for boardID, set := range r.boards {
		out[boardID] = len(set)
	}
	return out
}

// Connections returns a copy of boardID's subscriber set so callers can
// iterate without holding the lock while writing to sockets.
func (r *Registry) Connections(boardID string) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := r.boards[boardID]
	out := make([]*Client, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	return out
}
