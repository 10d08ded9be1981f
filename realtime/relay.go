package realtime

import (
	"context"
	"encoding/json"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

const publishTimeout = 5 * time.Second

// Relay mirrors broadcasts across server instances over a redis pub/sub
// channel. Each instance tags its messages with an origin id and skips its
// own when consuming, since the local hub already delivered them inline.
type Relay struct {
	client  *redis.Client
	channel string
	origin  string
	logger  *log.Logger
}

// NewRelay creates a relay publishing on the given channel.
func NewRelay(client *redis.Client, channel string, logger *log.Logger) *Relay {
	return &Relay{
		client:  client,
		channel: channel,
		origin:  uuid.NewString(),
		logger:  logger,
	}
}

type relayMessage struct {
	Origin        string          `json:"origin"`
	BoardID       string          `json:"boardId"`
	ExcludeUserID string          `json:"excludeUserId,omitempty"`
	Data          json.RawMessage `json:"data"`
}

// Publish sends a serialized envelope to the other instances. Failures
// are logged and swallowed; the local broadcast has already happened.
func (r *Relay) Publish(boardID string, data []byte, excludeUserID string) {
	msg, err := sonic.Marshal(relayMessage{
		Origin:        r.origin,
		BoardID:       boardID,
		ExcludeUserID: excludeUserID,
		Data:          data,
	})
	if err != nil {
		r.logger.Errorf("relay encode: %v", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := r.client.Publish(ctx, r.channel, msg).Err(); err != nil {
		r.logger.Errorf("relay publish: %v", err)
	}
}

// Run consumes the channel and hands remote-origin messages to deliver.
// It reconnects after a dropped subscription until ctx is cancelled.
func (r *Relay) Run(ctx context.Context, deliver func(boardID string, data []byte, excludeUserID string)) {
	for {
		sub := r.client.Subscribe(ctx, r.channel)
		ch := sub.Channel()
	consume:
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					break consume
				}
				var m relayMessage
				if err := sonic.Unmarshal([]byte(msg.Payload), &m); err != nil {
					r.logger.Errorf("relay decode: %v", err)
					continue
				}
				if m.Origin == r.origin {
					continue
				}
				deliver(m.BoardID, m.Data, m.ExcludeUserID)
			}
		}
		_ = sub.Close()
		if ctx.Err() != nil {
			return
		}
		r.logger.Error("relay subscription closed, reconnecting")
		time.Sleep(time.Second)
	}
}
