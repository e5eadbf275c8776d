package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/oksasatya/go-user-graph/internal/application"
)

// DefaultAuditKey is the Redis set holding pending audit markers.
const DefaultAuditKey = "follow:audit:pending"

// AuditQueue stores partial-failure markers in a Redis set. Recording the
// same marker twice keeps one entry. Markers are read without removal and
// only deleted by Resolve.
type AuditQueue struct {
	rdb *redis.Client
	key string
}

func NewAuditQueue(rdb *redis.Client, key string) *AuditQueue {
	if key == "" {
		key = DefaultAuditKey
	}
	return &AuditQueue{rdb: rdb, key: key}
}

// marker is the stored form. Field order is fixed so equal markers encode to
// the same set member.
type marker struct {
	Op       application.FollowOp `json:"op"`
	Follower string               `json:"follower"`
	Followee string               `json:"followee"`
}

func encodeMarker(in application.Inconsistency) (string, error) {
	b, err := json.Marshal(marker{Op: in.Op, Follower: in.FollowerID, Followee: in.FolloweeID})
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeMarker(s string) (application.Inconsistency, error) {
	var m marker
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return application.Inconsistency{}, fmt.Errorf("redisstore: bad audit marker %q: %w", s, err)
	}
	if m.Follower == "" || m.Followee == "" {
		return application.Inconsistency{}, fmt.Errorf("redisstore: bad audit marker %q", s)
	}
	if m.Op != application.OpFollow && m.Op != application.OpUnfollow {
		return application.Inconsistency{}, fmt.Errorf("redisstore: bad audit marker op %q", m.Op)
	}
	return application.Inconsistency{Op: m.Op, FollowerID: m.Follower, FolloweeID: m.Followee}, nil
}

func (q *AuditQueue) Record(ctx context.Context, in application.Inconsistency) error {
	v, err := encodeMarker(in)
	if err != nil {
		return err
	}
	return q.rdb.SAdd(ctx, q.key, v).Err()
}

// Pending returns up to max distinct markers. Undecodable entries are
// deleted from the set and skipped.
func (q *AuditQueue) Pending(ctx context.Context, max int) ([]application.Inconsistency, error) {
	vals, err := q.rdb.SRandMemberN(ctx, q.key, int64(max)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	out := make([]application.Inconsistency, 0, len(vals))
	var bad []any
	for _, v := range vals {
		in, err := decodeMarker(v)
		if err != nil {
			bad = append(bad, v)
			continue
		}
		out = append(out, in)
	}
	if len(bad) > 0 {
		if err := q.rdb.SRem(ctx, q.key, bad...).Err(); err != nil {
			return out, err
		}
	}
	return out, nil
}

func (q *AuditQueue) Resolve(ctx context.Context, in application.Inconsistency) error {
	v, err := encodeMarker(in)
	if err != nil {
		return err
	}
	return q.rdb.SRem(ctx, q.key, v).Err()
}

// Len returns the number of pending markers.
func (q *AuditQueue) Len(ctx context.Context) (int64, error) {
	return q.rdb.SCard(ctx, q.key).Result()
}

var _ application.InconsistencyRecorder = (*AuditQueue)(nil)
