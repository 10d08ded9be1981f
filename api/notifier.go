package api

import (
	"context"

	"board-api/domain"
	"board-api/feed"
	"board-api/realtime"
)

// ViewEvictor invalidates a cached board view after a committed change.
type ViewEvictor interface {
	Evict(ctx context.Context, boardID string)
}

// ChangeNotifier is the fan-out for committed mutations: it drops the
// cached read model, pushes the event to live subscribers through the hub
// and hands it to the change feed publisher. Cache eviction happens first
// so a subscriber refetching in response to the broadcast never reads the
// pre-mutation view.
type ChangeNotifier struct {
	hub       *realtime.Hub
	publisher *feed.Publisher
	views     ViewEvictor
}

// NewChangeNotifier creates a notifier. publisher and views may be nil;
// the corresponding step is skipped.
func NewChangeNotifier(hub *realtime.Hub, publisher *feed.Publisher, views ViewEvictor) *ChangeNotifier {
	if hub == nil {
		panic("api.NewChangeNotifier: hub is nil")
	}
	return &ChangeNotifier{hub: hub, publisher: publisher, views: views}
}

// NotifyChange implements Notifier.
func (n *ChangeNotifier) NotifyChange(ctx context.Context, ev domain.ChangeEvent, excludeUserID string) {
	if n.views != nil {
		n.views.Evict(ctx, ev.BoardID)
	}
	n.hub.NotifyChange(ev.BoardID, ev, excludeUserID)
	if n.publisher != nil {
		n.publisher.Enqueue(ev)
	}
}
