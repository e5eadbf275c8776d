package repository

import (
	"context"
	"errors"

	"github.com/oksasatya/go-user-graph/internal/domain/entity"
)

// ErrNotFound is returned when the addressed user record does not exist.
var ErrNotFound = errors.New("record not found")

// UserRepository is the user store consumed by the follow graph, the
// ingestion worker and the auditor. Every method touches a single record
// atomically; there are no multi-record transactions.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*entity.User, error)

	// UpsertIfAbsent inserts u unless a record with the same id exists.
	// It reports whether the insert happened.
	UpsertIfAbsent(ctx context.Context, u *entity.User) (bool, error)

	// AddToSet adds value to the field set of record id. It reports whether
	// the set changed; adding a present value is a no-op.
	AddToSet(ctx context.Context, id string, field entity.RelationField, value string) (bool, error)

	// RemoveFromSet removes value from the field set of record id. It
	// reports whether the set changed; removing an absent value is a no-op.
	RemoveFromSet(ctx context.Context, id string, field entity.RelationField, value string) (bool, error)

	// BatchGet resolves ids; absent ids are omitted from the result.
	BatchGet(ctx context.Context, ids []string) (map[string]*entity.User, error)

	// ScanIDs returns up to limit ids greater than after, in ascending order.
	ScanIDs(ctx context.Context, after string, limit int) ([]string, error)

	UpdateProfile(ctx context.Context, id string, in entity.ProfileUpdate) (*entity.User, error)
	Delete(ctx context.Context, id string) error
}
