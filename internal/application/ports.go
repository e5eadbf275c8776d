package application

import (
	"context"
	"io"
	"time"

	"github.com/oksasatya/go-user-graph/internal/domain/entity"
)

// FollowOp is the operation a follow-graph mutation was trying to achieve.
type FollowOp string

const (
	OpFollow   FollowOp = "follow"
	OpUnfollow FollowOp = "unfollow"
)

// Inconsistency identifies a follower→followee edge whose two halves may
// disagree, and the operation that was in flight when it happened.
type Inconsistency struct {
	Op         FollowOp
	FollowerID string
	FolloweeID string
}

// InconsistencyRecorder persists partial-failure markers for the auditor.
// A marker stays pending until Resolve is called for it, so a pass that dies
// halfway leaves its unrepaired markers for the next one.
type InconsistencyRecorder interface {
	Record(ctx context.Context, in Inconsistency) error
	// Pending returns up to max markers without removing them.
	Pending(ctx context.Context, max int) ([]Inconsistency, error)
	// Resolve drops a marker whose edge has been repaired.
	Resolve(ctx context.Context, in Inconsistency) error
}

// Inbox remembers creation events that were already materialized. It is a
// cache in front of the store, never the source of truth.
type Inbox interface {
	Seen(ctx context.Context, id string) (bool, error)
	MarkProcessed(ctx context.Context, id string) error
}

// Locker guards an audit pass so only one process runs it at a time.
type Locker interface {
	// TryLock returns a release func when the lock was acquired, or
	// ok=false when another holder has it.
	TryLock(ctx context.Context, ttl time.Duration) (release func(context.Context) error, ok bool, err error)
}

// UserIndexer mirrors user profiles into the search index.
type UserIndexer interface {
	Index(ctx context.Context, u *entity.User) error
	Remove(ctx context.Context, id string) error
}

// UserSearcher runs free-text queries against the search index.
type UserSearcher interface {
	Search(ctx context.Context, q string, size int) ([]entity.FollowUser, error)
}

// ObjectUploader stores avatar images and returns their public URL.
type ObjectUploader interface {
	Upload(ctx context.Context, objectPath, contentType string, r io.Reader) (string, error)
}
