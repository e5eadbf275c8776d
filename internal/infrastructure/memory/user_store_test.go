package memory

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oksasatya/go-user-graph/internal/application"
	"github.com/oksasatya/go-user-graph/internal/domain/entity"
	"github.com/oksasatya/go-user-graph/internal/domain/repository"
)

func seed(r *UserRepository, ids ...string) {
	for _, id := range ids {
		r.Put(&entity.User{ID: id, Username: id})
	}
}

func TestUpsertIfAbsent(t *testing.T) {
	r := NewUserRepository()
	ctx := context.Background()

	ok, err := r.UpsertIfAbsent(ctx, &entity.User{ID: "u1", FullName: "first"})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = r.UpsertIfAbsent(ctx, &entity.User{ID: "u1", FullName: "second"})
	require.NoError(t, err)
	assert.False(t, ok)

	u, err := r.GetByID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "first", u.FullName)
	assert.False(t, u.CreatedAt.IsZero())
	assert.NotNil(t, u.Followers)
}

func TestUpsertIfAbsent_ConcurrentSingleWinner(t *testing.T) {
	r := NewUserRepository()
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := r.UpsertIfAbsent(context.Background(), &entity.User{ID: "u1"})
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
	assert.Equal(t, 1, r.Len())
}

func TestSetOperations(t *testing.T) {
	r := NewUserRepository()
	seed(r, "a")
	ctx := context.Background()

	changed, err := r.AddToSet(ctx, "a", entity.FieldFollowers, "b")
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = r.AddToSet(ctx, "a", entity.FieldFollowers, "b")
	require.NoError(t, err)
	assert.False(t, changed, "set add is idempotent")

	changed, err = r.RemoveFromSet(ctx, "a", entity.FieldFollowers, "zzz")
	require.NoError(t, err)
	assert.False(t, changed)

	changed, err = r.RemoveFromSet(ctx, "a", entity.FieldFollowers, "b")
	require.NoError(t, err)
	assert.True(t, changed)

	_, err = r.AddToSet(ctx, "missing", entity.FieldFollowing, "b")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	_, err = r.AddToSet(ctx, "a", entity.RelationField("friends"), "b")
	assert.Error(t, err)
}

func TestSetOperations_ConcurrentAddsAreNotLost(t *testing.T) {
	r := NewUserRepository()
	seed(r, "a")
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := r.AddToSet(context.Background(), "a", entity.FieldFollowers, string(rune('A'+i%26))+string(rune('a'+i/26)))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()
	u, err := r.GetByID(context.Background(), "a")
	require.NoError(t, err)
	assert.Len(t, u.Followers, 100)
}

func TestGetByID_ReturnsCopy(t *testing.T) {
	r := NewUserRepository()
	seed(r, "a")
	u, err := r.GetByID(context.Background(), "a")
	require.NoError(t, err)
	u.Followers = append(u.Followers, "x")

	again, err := r.GetByID(context.Background(), "a")
	require.NoError(t, err)
	assert.Empty(t, again.Followers)
}

func TestBatchGetAndScan(t *testing.T) {
	r := NewUserRepository()
	seed(r, "c", "a", "b", "d")
	ctx := context.Background()

	got, err := r.BatchGet(ctx, []string{"a", "x", "d"})
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Contains(t, got, "a")
	assert.Contains(t, got, "d")

	ids, err := r.ScanIDs(ctx, "", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids)

	ids, err = r.ScanIDs(ctx, "b", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "d"}, ids)

	ids, err = r.ScanIDs(ctx, "d", 2)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestUpdateProfileAndDelete(t *testing.T) {
	r := NewUserRepository()
	seed(r, "a")
	ctx := context.Background()
	name := "Alice"

	u, err := r.UpdateProfile(ctx, "a", entity.ProfileUpdate{FullName: &name})
	require.NoError(t, err)
	assert.Equal(t, "Alice", u.FullName)

	require.NoError(t, r.Delete(ctx, "a"))
	assert.ErrorIs(t, r.Delete(ctx, "a"), repository.ErrNotFound)
	_, err = r.UpdateProfile(ctx, "a", entity.ProfileUpdate{FullName: &name})
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestCancelledContext(t *testing.T) {
	r := NewUserRepository()
	seed(r, "a")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.GetByID(ctx, "a")
	assert.ErrorIs(t, err, context.Canceled)
	_, err = r.AddToSet(ctx, "a", entity.FieldFollowers, "b")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAuditQueue(t *testing.T) {
	q := NewAuditQueue()
	ctx := context.Background()
	in := application.Inconsistency{Op: application.OpFollow, FollowerID: "a", FolloweeID: "b"}

	require.NoError(t, q.Record(ctx, in))
	require.NoError(t, q.Record(ctx, in))
	require.NoError(t, q.Record(ctx, application.Inconsistency{Op: application.OpUnfollow, FollowerID: "c", FolloweeID: "d"}))
	assert.Equal(t, 2, q.Len(), "markers are a set")

	got, err := q.Pending(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, got, 1)

	got, err = q.Pending(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, 2, q.Len(), "reading does not consume markers")

	require.NoError(t, q.Resolve(ctx, in))
	require.NoError(t, q.Resolve(ctx, in))
	got, err = q.Pending(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, []application.Inconsistency{{Op: application.OpUnfollow, FollowerID: "c", FolloweeID: "d"}}, got)
}
