package application_test

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/oksasatya/go-user-graph/internal/application"
	"github.com/oksasatya/go-user-graph/internal/domain/entity"
	"github.com/oksasatya/go-user-graph/internal/infrastructure/memory"
)

var errStoreDown = errors.New("store unavailable")

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newUser(id string) *entity.User {
	return &entity.User{
		ID:          id,
		Email:       id + "@example.com",
		Username:    id,
		Role:        entity.RoleUser,
		Status:      entity.StatusActive,
		FullName:    id,
		Preferences: entity.DefaultPreferences(),
		Followers:   []string{},
		Following:   []string{},
		CreatedAt:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// faultyRepo wraps the in-memory store and injects failures per call.
type faultyRepo struct {
	*memory.UserRepository

	mu        sync.Mutex
	setFails  map[string]int // "id/field" -> remaining failures, -1 = always
	getFails  map[string]error
	upsertErr error
	batchErr  error
	setCalls  int
}

func newFaultyRepo(users ...*entity.User) *faultyRepo {
	r := &faultyRepo{
		UserRepository: memory.NewUserRepository(),
		setFails:       map[string]int{},
		getFails:       map[string]error{},
	}
	for _, u := range users {
		r.Put(u)
	}
	return r
}

func (r *faultyRepo) failSet(id string, field entity.RelationField, times int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.setFails[id+"/"+string(field)] = times
}

func (r *faultyRepo) setErr(id string, field entity.RelationField) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.setCalls++
	key := id + "/" + string(field)
	n, ok := r.setFails[key]
	if !ok || n == 0 {
		return nil
	}
	if n > 0 {
		r.setFails[key] = n - 1
	}
	return errStoreDown
}

func (r *faultyRepo) calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.setCalls
}

func (r *faultyRepo) GetByID(ctx context.Context, id string) (*entity.User, error) {
	r.mu.Lock()
	err := r.getFails[id]
	r.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return r.UserRepository.GetByID(ctx, id)
}

func (r *faultyRepo) UpsertIfAbsent(ctx context.Context, u *entity.User) (bool, error) {
	if r.upsertErr != nil {
		return false, r.upsertErr
	}
	return r.UserRepository.UpsertIfAbsent(ctx, u)
}

func (r *faultyRepo) BatchGet(ctx context.Context, ids []string) (map[string]*entity.User, error) {
	if r.batchErr != nil {
		return nil, r.batchErr
	}
	return r.UserRepository.BatchGet(ctx, ids)
}

func (r *faultyRepo) AddToSet(ctx context.Context, id string, field entity.RelationField, value string) (bool, error) {
	if err := r.setErr(id, field); err != nil {
		return false, err
	}
	return r.UserRepository.AddToSet(ctx, id, field, value)
}

func (r *faultyRepo) RemoveFromSet(ctx context.Context, id string, field entity.RelationField, value string) (bool, error) {
	if err := r.setErr(id, field); err != nil {
		return false, err
	}
	return r.UserRepository.RemoveFromSet(ctx, id, field, value)
}

// failingRecorder drops every marker.
type failingRecorder struct{}

func (failingRecorder) Record(context.Context, application.Inconsistency) error { return errStoreDown }
func (failingRecorder) Pending(context.Context, int) ([]application.Inconsistency, error) {
	return nil, errStoreDown
}
func (failingRecorder) Resolve(context.Context, application.Inconsistency) error { return errStoreDown }

// stallingRepo blocks the next AddToSet on a chosen relation field until the
// caller's context ends, like a store call that outlives the request.
type stallingRepo struct {
	*faultyRepo
	field entity.RelationField
	armed atomic.Bool
}

func (r *stallingRepo) AddToSet(ctx context.Context, id string, field entity.RelationField, value string) (bool, error) {
	if field == r.field && r.armed.CompareAndSwap(true, false) {
		<-ctx.Done()
		return false, ctx.Err()
	}
	return r.faultyRepo.AddToSet(ctx, id, field, value)
}

// fakeInbox is an in-memory Inbox with optional failures.
type fakeInbox struct {
	mu      sync.Mutex
	seen    map[string]bool
	seenErr error
	marks   int
}

func newFakeInbox() *fakeInbox { return &fakeInbox{seen: map[string]bool{}} }

func (i *fakeInbox) Seen(_ context.Context, id string) (bool, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.seenErr != nil {
		return false, i.seenErr
	}
	return i.seen[id], nil
}

func (i *fakeInbox) MarkProcessed(_ context.Context, id string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.seen[id] = true
	i.marks++
	return nil
}

// fakeIndexer records index and remove calls.
type fakeIndexer struct {
	mu      sync.Mutex
	indexed []string
	removed []string
	err     error
}

func (x *fakeIndexer) Index(_ context.Context, u *entity.User) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.indexed = append(x.indexed, u.ID)
	return x.err
}

func (x *fakeIndexer) Remove(_ context.Context, id string) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.removed = append(x.removed, id)
	return x.err
}

// fakeLocker hands out one lease at a time.
type fakeLocker struct {
	mu   sync.Mutex
	held bool
	err  error
}

func (l *fakeLocker) TryLock(context.Context, time.Duration) (func(context.Context) error, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, false, l.err
	}
	if l.held {
		return nil, false, nil
	}
	l.held = true
	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.held = false
		return nil
	}, true, nil
}
