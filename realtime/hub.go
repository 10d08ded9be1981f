package realtime

import (
	"context"

	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"

	"board-api/domain"
)

// Hub fans committed changes out to every live connection watching a
// board. Broadcasting is best-effort: a connection that cannot accept the
// write is evicted from the registry and closed, and the originating
// mutation is never failed. Callers broadcast synchronously right after
// commit, which keeps per-board delivery in commit order.
type Hub struct {
	registry *Registry
	relay    *Relay
	logger   *log.Logger
}

// NewHub creates a hub over the given registry. relay may be nil for
// single-instance deployments.
func NewHub(registry *Registry, relay *Relay, logger *log.Logger) *Hub {
	return &Hub{registry: registry, relay: relay, logger: logger}
}

// NotifyChange serializes the event and pushes it to boardID's
// subscribers, skipping connections owned by excludeUserID when set. With
// a relay configured the event also reaches hubs on other instances.
func (h *Hub) NotifyChange(boardID string, ev domain.ChangeEvent, excludeUserID string) {
	h.broadcast(boardID, ChangeEnvelope(ev), excludeUserID)
}

// NotifyPresence tells a board's subscribers that a user joined or left.
func (h *Hub) NotifyPresence(boardID, userID, status string) {
	env := newEnvelope(MsgUserActivity, boardID, userID, PresencePayload{UserID: userID, Status: status})
	// The user's own connections already know; don't echo back.
	h.broadcast(boardID, env, userID)
}

func (h *Hub) broadcast(boardID string, env Envelope, excludeUserID string) {
	data, err := sonic.Marshal(env)
	if err != nil {
		h.logger.WithFields(log.Fields{"board": boardID, "type": env.Type}).Errorf("encode envelope: %v", err)
		return
	}
	h.deliver(boardID, data, excludeUserID)
	if h.relay != nil {
		h.relay.Publish(boardID, data, excludeUserID)
	}
}

// deliver pushes pre-serialized bytes to local subscribers only.
func (h *Hub) deliver(boardID string, data []byte, excludeUserID string) {
	for _, c := range h.registry.Connections(boardID) {
		if excludeUserID != "" && c.UserID() == excludeUserID {
			continue
		}
		if !c.trySend(data) {
			h.registry.Unsubscribe(c)
			c.Close()
			h.logger.WithFields(log.Fields{
				"board": boardID,
				"user":  c.UserID(),
			}).Warn("evicted unresponsive connection")
		}
	}
}

// Run services the cross-instance relay until ctx is cancelled. It
// returns immediately when no relay is configured.
func (h *Hub) Run(ctx context.Context) {
	if h.relay == nil {
		return
	}
	h.relay.Run(ctx, h.deliver)
}
