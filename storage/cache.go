package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"board-api/domain"
)

type viewBackend interface {
	FetchBoardView(ctx context.Context, boardID string) (domain.BoardView, error)
}

// ViewCache wraps board view reads with Redis-backed caching. Mutating
// code paths call Evict after a committed change so subscribers fetching
// the board see the post-mutation state.
type ViewCache struct {
	base  viewBackend
	redis *redis.Client
	ttl   time.Duration
}

// NewViewCache creates a caching wrapper using the provided Redis client
// and TTL. A nil client disables caching entirely.
func NewViewCache(base viewBackend, client *redis.Client, ttl time.Duration) *ViewCache {
	if base == nil {
		panic("storage.NewViewCache: base storage is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &ViewCache{base: base, redis: client, ttl: ttl}
}

// FetchBoardView serves the view from cache when possible, falling back
// to the backing storage on miss or any redis failure.
func (c *ViewCache) FetchBoardView(ctx context.Context, boardID string) (domain.BoardView, error) {
	if view, ok := c.loadFromCache(ctx, boardID); ok {
		return view, nil
	}

	view, err := c.base.FetchBoardView(ctx, boardID)
	if err != nil {
		return domain.BoardView{}, err
	}

	c.store(ctx, boardID, view)
	return view, nil
}

// Evict drops the cached view for boardID.
func (c *ViewCache) Evict(ctx context.Context, boardID string) {
	if c.redis == nil {
		return
	}
	_ = c.redis.Del(ctx, boardViewKey(boardID)).Err()
}

func (c *ViewCache) loadFromCache(ctx context.Context, boardID string) (domain.BoardView, bool) {
	if c.redis == nil {
		return domain.BoardView{}, false
	}
	data, err := c.redis.Get(ctx, boardViewKey(boardID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			// On redis errors fall back to the backing storage without failing.
			_ = c.redis.Del(ctx, boardViewKey(boardID)).Err()
		}
		return domain.BoardView{}, false
	}
	var view domain.BoardView
	if err := json.Unmarshal(data, &view); err != nil {
		_ = c.redis.Del(ctx, boardViewKey(boardID)).Err()
		return domain.BoardView{}, false
	}
	return view, true
}

func (c *ViewCache) store(ctx context.Context, boardID string, view domain.BoardView) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := json.Marshal(view)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, boardViewKey(boardID), data, c.ttl).Err()
}

func boardViewKey(boardID string) string {
	return "boardview:" + boardID
}
