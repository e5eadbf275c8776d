package application_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oksasatya/go-user-graph/internal/application"
	"github.com/oksasatya/go-user-graph/internal/domain/entity"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func eventBody(t *testing.T, id, username string) []byte {
	t.Helper()
	b, err := json.Marshal(entity.UserCreatedEvent{
		ID:        id,
		Email:     username + "@x.com",
		Username:  username,
		Role:      entity.RoleUser,
		Status:    entity.StatusActive,
		CreatedAt: t0,
	})
	require.NoError(t, err)
	return b
}

func TestIngest_ReplayIsIdempotent(t *testing.T) {
	repo := newFaultyRepo()
	inbox := newFakeInbox()
	idx := &fakeIndexer{}
	svc := application.NewIngestService(repo, inbox, idx, quietLogger())
	ctx := context.Background()
	body := eventBody(t, "u1", "alice")

	outcome, err := svc.Handle(ctx, body)
	require.NoError(t, err)
	assert.Equal(t, application.IngestInserted, outcome)
	first := load(t, repo, "u1")

	for i := 0; i < 5; i++ {
		outcome, err := svc.Handle(ctx, body)
		require.NoError(t, err)
		assert.Equal(t, application.IngestDuplicate, outcome)
	}

	assert.Equal(t, 1, repo.Len())
	assert.Equal(t, first, load(t, repo, "u1"))
	assert.Equal(t, []string{"u1"}, idx.indexed)
}

func TestIngest_MaterializesDefaults(t *testing.T) {
	repo := newFaultyRepo()
	svc := application.NewIngestService(repo, nil, nil, quietLogger())

	_, err := svc.Handle(context.Background(), eventBody(t, "u1", "alice"))
	require.NoError(t, err)

	u := load(t, repo, "u1")
	assert.Equal(t, "alice", u.FullName)
	assert.Equal(t, "alice@x.com", u.Email)
	assert.Equal(t, entity.RoleUser, u.Role)
	assert.Equal(t, entity.StatusActive, u.Status)
	assert.Equal(t, entity.DefaultPreferences(), u.Preferences)
	assert.True(t, u.Preferences.EmailNotifications)
	assert.Empty(t, u.Followers)
	assert.Empty(t, u.Following)
	assert.True(t, t0.Equal(u.CreatedAt))
}

func TestIngest_ExistingRecordIsNotOverwritten(t *testing.T) {
	existing := newUser("u1")
	existing.FullName = "Edited Name"
	existing.Followers = []string{"u2"}
	repo := newFaultyRepo(existing)
	svc := application.NewIngestService(repo, nil, nil, quietLogger())

	outcome, err := svc.Handle(context.Background(), eventBody(t, "u1", "alice"))
	require.NoError(t, err)
	assert.Equal(t, application.IngestDuplicate, outcome)

	u := load(t, repo, "u1")
	assert.Equal(t, "Edited Name", u.FullName)
	assert.Equal(t, []string{"u2"}, u.Followers)
}

func TestIngest_Malformed(t *testing.T) {
	repo := newFaultyRepo()
	svc := application.NewIngestService(repo, nil, nil, quietLogger())

	cases := map[string]string{
		"empty":         ``,
		"not json":      `{"id":`,
		"missing id":    `{"email":"a@x.com","username":"a","role":"user","status":"active","createdAt":"2024-03-01T12:00:00Z"}`,
		"bad email":     `{"id":"u1","email":"nope","username":"a","role":"user","status":"active","createdAt":"2024-03-01T12:00:00Z"}`,
		"unknown role":  `{"id":"u1","email":"a@x.com","username":"a","role":"root","status":"active","createdAt":"2024-03-01T12:00:00Z"}`,
		"no createdAt":  `{"id":"u1","email":"a@x.com","username":"a","role":"user","status":"active"}`,
		"wrong id type": `{"id":7,"email":"a@x.com","username":"a","role":"user","status":"active","createdAt":"2024-03-01T12:00:00Z"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			outcome, err := svc.Handle(context.Background(), []byte(body))
			assert.ErrorIs(t, err, application.ErrMalformedEvent)
			assert.Equal(t, application.IngestMalformed, outcome)
		})
	}
	assert.Zero(t, repo.Len())
}

func TestIngest_StoreFailureIsTransient(t *testing.T) {
	repo := newFaultyRepo()
	repo.upsertErr = errStoreDown
	inbox := newFakeInbox()
	svc := application.NewIngestService(repo, inbox, nil, quietLogger())
	body := eventBody(t, "u1", "alice")

	outcome, err := svc.Handle(context.Background(), body)
	assert.ErrorIs(t, err, application.ErrTransient)
	assert.Equal(t, application.IngestFailed, outcome)
	assert.Zero(t, inbox.marks, "failed events must not be marked processed")

	repo.upsertErr = nil
	outcome, err = svc.Handle(context.Background(), body)
	require.NoError(t, err)
	assert.Equal(t, application.IngestInserted, outcome)
}

func TestIngest_LookupFailureIsTransient(t *testing.T) {
	repo := newFaultyRepo()
	repo.getFails["u1"] = errStoreDown
	svc := application.NewIngestService(repo, nil, nil, quietLogger())

	_, err := svc.Handle(context.Background(), eventBody(t, "u1", "alice"))
	assert.ErrorIs(t, err, application.ErrTransient)
	assert.Zero(t, repo.Len())
}

func TestIngest_InboxFailureFallsBackToStore(t *testing.T) {
	repo := newFaultyRepo()
	inbox := newFakeInbox()
	inbox.seenErr = errStoreDown
	svc := application.NewIngestService(repo, inbox, nil, quietLogger())
	body := eventBody(t, "u1", "alice")

	outcome, err := svc.Handle(context.Background(), body)
	require.NoError(t, err)
	assert.Equal(t, application.IngestInserted, outcome)

	outcome, err = svc.Handle(context.Background(), body)
	require.NoError(t, err)
	assert.Equal(t, application.IngestDuplicate, outcome)
	assert.Equal(t, 1, repo.Len())
}

func TestIngest_IndexFailureDoesNotFailEvent(t *testing.T) {
	repo := newFaultyRepo()
	svc := application.NewIngestService(repo, nil, &fakeIndexer{err: errStoreDown}, quietLogger())

	outcome, err := svc.Handle(context.Background(), eventBody(t, "u1", "alice"))
	require.NoError(t, err)
	assert.Equal(t, application.IngestInserted, outcome)
}

func TestIngest_ConcurrentDeliveries(t *testing.T) {
	repo := newFaultyRepo()
	svc := application.NewIngestService(repo, nil, nil, quietLogger())
	body := eventBody(t, "u1", "alice")

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		inserted int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcome, err := svc.Handle(context.Background(), body)
			assert.NoError(t, err)
			if outcome == application.IngestInserted {
				mu.Lock()
				inserted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, inserted)
	assert.Equal(t, 1, repo.Len())
}

// Ingest twice, follow a missing user, create it, follow, conflict, and
// unfollow twice.
func TestIngestAndFollow_EndToEnd(t *testing.T) {
	repo := newFaultyRepo()
	ingest := application.NewIngestService(repo, newFakeInbox(), nil, quietLogger())
	follow := application.NewFollowService(repo, nil, quietLogger(), 0)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := ingest.Handle(ctx, eventBody(t, "u1", "alice"))
		require.NoError(t, err)
	}
	require.Equal(t, 1, repo.Len())
	u1 := load(t, repo, "u1")
	assert.Empty(t, u1.Followers)
	assert.Empty(t, u1.Following)

	assert.ErrorIs(t, follow.Follow(ctx, "u1", "u2"), application.ErrNotFound)

	_, err := ingest.Handle(ctx, eventBody(t, "u2", "bob"))
	require.NoError(t, err)

	require.NoError(t, follow.Follow(ctx, "u1", "u2"))
	assert.Equal(t, []string{"u1"}, load(t, repo, "u2").Followers)
	assert.Equal(t, []string{"u2"}, load(t, repo, "u1").Following)

	assert.ErrorIs(t, follow.Follow(ctx, "u1", "u2"), application.ErrConflict)

	require.NoError(t, follow.Unfollow(ctx, "u1", "u2"))
	assert.Empty(t, load(t, repo, "u2").Followers)
	assert.Empty(t, load(t, repo, "u1").Following)

	before := []*entity.User{load(t, repo, "u1"), load(t, repo, "u2")}
	require.NoError(t, follow.Unfollow(ctx, "u1", "u2"))
	assert.Equal(t, before, []*entity.User{load(t, repo, "u1"), load(t, repo, "u2")})
}
