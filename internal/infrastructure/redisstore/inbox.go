package redisstore

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/oksasatya/go-user-graph/internal/application"
)

// InboxKey is the Redis key remembering a processed user-created event.
func InboxKey(id string) string {
	return "ingest:user-created:" + id
}

// Inbox caches the ids of creation events that were already materialized.
type Inbox struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewInbox(rdb *redis.Client, ttl time.Duration) *Inbox {
	return &Inbox{rdb: rdb, ttl: ttl}
}

func (i *Inbox) Seen(ctx context.Context, id string) (bool, error) {
	n, err := i.rdb.Exists(ctx, InboxKey(id)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (i *Inbox) MarkProcessed(ctx context.Context, id string) error {
	return i.rdb.Set(ctx, InboxKey(id), time.Now().UTC().Format(time.RFC3339Nano), i.ttl).Err()
}

var _ application.Inbox = (*Inbox)(nil)
