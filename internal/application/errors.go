package application

import (
	"errors"
	"fmt"

	"github.com/oksasatya/go-user-graph/internal/domain/repository"
)

var (
	// ErrInvalidOperation rejects requests that can never succeed, such as
	// following yourself.
	ErrInvalidOperation = errors.New("invalid operation")

	ErrNotFound       = errors.New("not found")
	ErrUserNotFound   = fmt.Errorf("user %w", ErrNotFound)
	ErrTargetNotFound = fmt.Errorf("target user %w", ErrNotFound)

	ErrConflict         = errors.New("conflict")
	ErrAlreadyFollowing = fmt.Errorf("already following: %w", ErrConflict)

	// ErrPartialFailure means one half of a paired follow mutation is
	// stored and the other is not. The pair has been queued for the auditor
	// and the call is safe to retry.
	ErrPartialFailure = errors.New("partial failure")

	// ErrUnavailable means the feature depends on a backend this deployment
	// does not have configured.
	ErrUnavailable = errors.New("unavailable")

	// ErrTransient wraps store timeouts and unavailability.
	ErrTransient = errors.New("transient store error")

	// ErrMalformedEvent marks creation events that can never be processed.
	ErrMalformedEvent = errors.New("malformed event")
)

// transient wraps a store error so callers can match ErrTransient while the
// original cause stays inspectable.
func transient(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrTransient, err)
}

func isNotFound(err error) bool {
	return errors.Is(err, repository.ErrNotFound)
}
