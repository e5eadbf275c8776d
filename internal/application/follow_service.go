package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/oksasatya/go-user-graph/internal/domain/entity"
	repo "github.com/oksasatya/go-user-graph/internal/domain/repository"
	"github.com/oksasatya/go-user-graph/internal/metrics"
)

const recordTimeout = 2 * time.Second

// FollowService executes follow and unfollow as two independent single-record
// set mutations. It never holds a lock across store calls; a half that keeps
// failing is left for the Auditor via the InconsistencyRecorder.
type FollowService struct {
	Repo       repo.UserRepository
	Recorder   InconsistencyRecorder
	Logger     *logrus.Logger
	RetryDelay time.Duration
}

func NewFollowService(repo repo.UserRepository, recorder InconsistencyRecorder, logger *logrus.Logger, retryDelay time.Duration) *FollowService {
	return &FollowService{
		Repo:       repo,
		Recorder:   recorder,
		Logger:     orDiscard(logger),
		RetryDelay: retryDelay,
	}
}

// halfMutation is one of the two single-record writes making up an edge.
type halfMutation struct {
	id    string
	field entity.RelationField
	value string
}

func (h halfMutation) String() string {
	return fmt.Sprintf("%s.%s/%s", h.id, h.field, h.value)
}

// edgeHalves returns the writes for follower→followee: the follower id on the
// followee's followers set, and the followee id on the follower's following set.
func edgeHalves(followerID, followeeID string) [2]halfMutation {
	return [2]halfMutation{
		{id: followeeID, field: entity.FieldFollowers, value: followerID},
		{id: followerID, field: entity.FieldFollowing, value: followeeID},
	}
}

// Follow makes userID follow targetID.
//
// Duplicate detection is read-then-decide: two concurrent identical calls may
// both pass the check and both report success. The store's set-add absorbs
// the second write, so the stored graph is still correct.
func (s *FollowService) Follow(ctx context.Context, userID, targetID string) error {
	err := s.follow(ctx, userID, targetID)
	metrics.FollowOperations.WithLabelValues(string(OpFollow), resultLabel(err)).Inc()
	return err
}

func (s *FollowService) follow(ctx context.Context, userID, targetID string) error {
	if err := checkPair(OpFollow, userID, targetID); err != nil {
		return err
	}
	user, target, err := s.loadPair(ctx, userID, targetID)
	if err != nil {
		return err
	}

	hasFollowing := user.IsFollowing(targetID)
	hasFollower := target.HasFollower(userID)
	if hasFollowing && hasFollower {
		return ErrAlreadyFollowing
	}
	if hasFollowing != hasFollower {
		s.Logger.WithFields(logrus.Fields{"user_id": userID, "target_id": targetID}).
			Warn("follow found a half edge; completing it")
	}

	return s.apply(ctx, OpFollow, userID, targetID, func(ctx context.Context, h halfMutation) error {
		_, err := s.Repo.AddToSet(ctx, h.id, h.field, h.value)
		return err
	})
}

// Unfollow removes the userID→targetID edge. Removing an absent edge succeeds.
func (s *FollowService) Unfollow(ctx context.Context, userID, targetID string) error {
	err := s.unfollow(ctx, userID, targetID)
	metrics.FollowOperations.WithLabelValues(string(OpUnfollow), resultLabel(err)).Inc()
	return err
}

func (s *FollowService) unfollow(ctx context.Context, userID, targetID string) error {
	if err := checkPair(OpUnfollow, userID, targetID); err != nil {
		return err
	}
	user, target, err := s.loadPair(ctx, userID, targetID)
	if err != nil {
		return err
	}
	if !user.IsFollowing(targetID) && !target.HasFollower(userID) {
		return nil
	}

	return s.apply(ctx, OpUnfollow, userID, targetID, func(ctx context.Context, h halfMutation) error {
		_, err := s.Repo.RemoveFromSet(ctx, h.id, h.field, h.value)
		return err
	})
}

// GetFollowers lists the users following userID. Ids that no longer resolve
// to a record are skipped.
func (s *FollowService) GetFollowers(ctx context.Context, userID string) ([]entity.FollowUser, error) {
	return s.list(ctx, userID, entity.FieldFollowers)
}

// GetFollowing lists the users userID follows.
func (s *FollowService) GetFollowing(ctx context.Context, userID string) ([]entity.FollowUser, error) {
	return s.list(ctx, userID, entity.FieldFollowing)
}

func (s *FollowService) list(ctx context.Context, userID string, field entity.RelationField) ([]entity.FollowUser, error) {
	u, err := s.Repo.GetByID(ctx, userID)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrUserNotFound
		}
		return nil, transient("load user", err)
	}
	ids := u.Relation(field)
	out := make([]entity.FollowUser, 0, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	found, err := s.Repo.BatchGet(ctx, ids)
	if err != nil {
		return nil, transient("resolve "+string(field), err)
	}
	for _, id := range ids {
		ref, ok := found[id]
		if !ok {
			continue
		}
		out = append(out, entity.FollowUser{ID: ref.ID, FullName: ref.FullName, AvatarURL: ref.AvatarURL})
	}
	return out, nil
}

func checkPair(op FollowOp, userID, targetID string) error {
	if userID == "" || targetID == "" {
		return fmt.Errorf("%s: missing user id: %w", op, ErrInvalidOperation)
	}
	if userID == targetID {
		return fmt.Errorf("cannot %s yourself: %w", op, ErrInvalidOperation)
	}
	return nil
}

// loadPair reads both records concurrently. When both are missing the acting
// user is reported.
func (s *FollowService) loadPair(ctx context.Context, userID, targetID string) (*entity.User, *entity.User, error) {
	var (
		g                  errgroup.Group
		user, target       *entity.User
		userErr, targetErr error
	)
	g.Go(func() error {
		user, userErr = s.Repo.GetByID(ctx, userID)
		return nil
	})
	g.Go(func() error {
		target, targetErr = s.Repo.GetByID(ctx, targetID)
		return nil
	})
	_ = g.Wait()

	switch {
	case isNotFound(userErr):
		return nil, nil, ErrUserNotFound
	case userErr != nil:
		return nil, nil, transient("load user", userErr)
	case isNotFound(targetErr):
		return nil, nil, ErrTargetNotFound
	case targetErr != nil:
		return nil, nil, transient("load target", targetErr)
	}
	return user, target, nil
}

// apply issues both halves concurrently, retries each failed half once, and
// records the pair for the auditor if anything is still failing.
func (s *FollowService) apply(ctx context.Context, op FollowOp, followerID, followeeID string, mutate func(context.Context, halfMutation) error) error {
	halves := edgeHalves(followerID, followeeID)

	var (
		g    errgroup.Group
		errs [2]error
	)
	for i, h := range halves {
		g.Go(func() error {
			errs[i] = mutate(ctx, h)
			return nil
		})
	}
	_ = g.Wait()
	if errs[0] == nil && errs[1] == nil {
		return nil
	}

	failed := 0
	var cause error
	for i, h := range halves {
		if errs[i] == nil {
			continue
		}
		log := s.Logger.WithError(errs[i]).WithFields(logrus.Fields{"op": op, "half": h.String()})
		if err := s.retry(ctx, h, mutate); err != nil {
			metrics.FollowRetries.WithLabelValues(string(op), "failed").Inc()
			log.WithField("retry_error", err.Error()).Error("follow half failed after retry")
			failed++
			cause = errors.Join(cause, err)
			continue
		}
		metrics.FollowRetries.WithLabelValues(string(op), "ok").Inc()
		log.Warn("follow half succeeded on retry")
	}
	if failed == 0 {
		return nil
	}

	s.record(ctx, Inconsistency{Op: op, FollowerID: followerID, FolloweeID: followeeID})
	if failed == len(halves) {
		return transient(string(op), cause)
	}
	return fmt.Errorf("%s %s -> %s: %w: %w", op, followerID, followeeID, ErrPartialFailure, cause)
}

func (s *FollowService) retry(ctx context.Context, h halfMutation, mutate func(context.Context, halfMutation) error) error {
	if s.RetryDelay > 0 {
		t := time.NewTimer(s.RetryDelay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
	return mutate(ctx, h)
}

// record stores the marker on a context detached from the caller, so a
// request timeout does not also lose the marker.
func (s *FollowService) record(ctx context.Context, in Inconsistency) {
	log := s.Logger.WithFields(logrus.Fields{"op": in.Op, "user_id": in.FollowerID, "target_id": in.FolloweeID})
	if s.Recorder == nil {
		log.Error("no inconsistency recorder configured; relying on full audit scan")
		return
	}
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()
	if err := s.Recorder.Record(rctx, in); err != nil {
		log.WithError(err).Error("record inconsistency failed; relying on full audit scan")
		return
	}
	log.Warn("inconsistent edge queued for audit")
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInvalidOperation):
		return "invalid"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrPartialFailure):
		return "partial"
	default:
		return "transient"
	}
}
