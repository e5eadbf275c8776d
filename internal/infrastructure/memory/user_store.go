package memory

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/oksasatya/go-user-graph/internal/domain/entity"
	"github.com/oksasatya/go-user-graph/internal/domain/repository"
)

// UserRepository keeps user records in process memory. Each call holds the
// mutex for its own record mutation only, which gives the same per-record
// atomicity the Postgres store provides.
type UserRepository struct {
	mu    sync.RWMutex
	users map[string]*entity.User
	now   func() time.Time
}

func NewUserRepository() *UserRepository {
	return &UserRepository{users: make(map[string]*entity.User), now: time.Now}
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*entity.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return u.Clone(), nil
}

func (r *UserRepository) UpsertIfAbsent(ctx context.Context, u *entity.User) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[u.ID]; ok {
		return false, nil
	}
	c := u.Clone()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = r.now().UTC()
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = c.CreatedAt
	}
	r.users[u.ID] = c
	return true, nil
}

func (r *UserRepository) AddToSet(ctx context.Context, id string, field entity.RelationField, value string) (bool, error) {
	return r.mutateSet(ctx, id, field, func(set []string) ([]string, bool) {
		if slices.Contains(set, value) {
			return set, false
		}
		return append(set, value), true
	})
}

func (r *UserRepository) RemoveFromSet(ctx context.Context, id string, field entity.RelationField, value string) (bool, error) {
	return r.mutateSet(ctx, id, field, func(set []string) ([]string, bool) {
		i := slices.Index(set, value)
		if i < 0 {
			return set, false
		}
		return slices.Delete(set, i, i+1), true
	})
}

func (r *UserRepository) mutateSet(ctx context.Context, id string, field entity.RelationField, fn func([]string) ([]string, bool)) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if !field.Valid() {
		return false, errInvalidField(field)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return false, repository.ErrNotFound
	}
	var changed bool
	switch field {
	case entity.FieldFollowers:
		u.Followers, changed = fn(u.Followers)
	case entity.FieldFollowing:
		u.Following, changed = fn(u.Following)
	}
	if changed {
		u.UpdatedAt = r.now().UTC()
	}
	return changed, nil
}

func (r *UserRepository) BatchGet(ctx context.Context, ids []string) (map[string]*entity.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]*entity.User, len(ids))
	for _, id := range ids {
		if u, ok := r.users[id]; ok {
			out[id] = u.Clone()
		}
	}
	return out, nil
}

func (r *UserRepository) ScanIDs(ctx context.Context, after string, limit int) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	ids := make([]string, 0, len(r.users))
	for id := range r.users {
		if id > after {
			ids = append(ids, id)
		}
	}
	r.mu.RUnlock()
	sort.Strings(ids)
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func (r *UserRepository) UpdateProfile(ctx context.Context, id string, in entity.ProfileUpdate) (*entity.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if in.FullName != nil {
		u.FullName = *in.FullName
	}
	if in.Bio != nil {
		u.Bio = *in.Bio
	}
	if in.SocialLinks != nil {
		u.SocialLinks = *in.SocialLinks
	}
	if in.Preferences != nil {
		u.Preferences = *in.Preferences
	}
	if in.AvatarURL != nil {
		u.AvatarURL = *in.AvatarURL
	}
	u.UpdatedAt = r.now().UTC()
	return u.Clone(), nil
}

func (r *UserRepository) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.users, id)
	return nil
}

// Put stores u as-is, overwriting any existing record. It bypasses the set
// semantics and exists for seeding fixtures, including inconsistent ones.
func (r *UserRepository) Put(u *entity.User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[u.ID] = u.Clone()
}

// Len returns the number of stored records.
func (r *UserRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users)
}

var _ repository.UserRepository = (*UserRepository)(nil)
