package application

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/oksasatya/go-user-graph/internal/domain/entity"
	repo "github.com/oksasatya/go-user-graph/internal/domain/repository"
	"github.com/oksasatya/go-user-graph/internal/metrics"
)

// AuditReport summarizes one audit pass.
type AuditReport struct {
	Skipped    bool
	Markers    int
	Users      int
	Suspicious int
	Added      int
	Removed    int
	Tombstones int
	Deferred   int
	Failed     int
}

func (r *AuditReport) merge(o AuditReport) {
	r.Markers += o.Markers
	r.Users += o.Users
	r.Suspicious += o.Suspicious
	r.Added += o.Added
	r.Removed += o.Removed
	r.Tombstones += o.Tombstones
	r.Deferred += o.Deferred
	r.Failed += o.Failed
}

func (r AuditReport) fields() logrus.Fields {
	return logrus.Fields{
		"markers":    r.Markers,
		"users":      r.Users,
		"suspicious": r.Suspicious,
		"added":      r.Added,
		"removed":    r.Removed,
		"tombstones": r.Tombstones,
		"deferred":   r.Deferred,
		"failed":     r.Failed,
	}
}

type repairAction int

const (
	repairNone repairAction = iota
	repairAdded
	repairRemoved
	repairTombstone
	repairDeferred
)

// DefaultSettleWindow is how long a record must stay untouched before the
// auditor acts on an asymmetry involving it.
const DefaultSettleWindow = time.Minute

// Auditor finds follow edges whose two halves disagree and repairs them.
// Every repair re-reads both records right before writing. An asymmetric edge
// whose records changed within SettleWindow is left for a later pass: it may
// be a follow or unfollow whose second half has not landed yet, and acting on
// it would undo that operation.
type Auditor struct {
	Repo         repo.UserRepository
	Recorder     InconsistencyRecorder
	Locker       Locker
	Logger       *logrus.Logger
	BatchSize    int
	LockTTL      time.Duration
	SettleWindow time.Duration
	Now          func() time.Time
}

func NewAuditor(repo repo.UserRepository, recorder InconsistencyRecorder, locker Locker, logger *logrus.Logger, batchSize int, lockTTL time.Duration) *Auditor {
	if batchSize <= 0 {
		batchSize = 200
	}
	if lockTTL <= 0 {
		lockTTL = 5 * time.Minute
	}
	return &Auditor{
		Repo:         repo,
		Recorder:     recorder,
		Locker:       locker,
		Logger:       orDiscard(logger),
		BatchSize:    batchSize,
		LockTTL:      lockTTL,
		SettleWindow: DefaultSettleWindow,
		Now:          time.Now,
	}
}

// Run executes a pass every interval until ctx is cancelled.
func (a *Auditor) Run(ctx context.Context, interval time.Duration, runNow bool) {
	a.Logger.WithField("interval", interval.String()).Info("consistency auditor started")
	if runNow {
		a.runLogged(ctx)
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			a.Logger.Info("consistency auditor stopped")
			return
		case <-t.C:
			a.runLogged(ctx)
		}
	}
}

func (a *Auditor) runLogged(ctx context.Context) {
	rep, err := a.RunOnce(ctx)
	switch {
	case err != nil && !errors.Is(err, context.Canceled):
		a.Logger.WithError(err).WithFields(rep.fields()).Error("audit pass aborted")
	case rep.Skipped:
		a.Logger.Debug("audit pass skipped; another instance holds the lock")
	default:
		a.Logger.WithFields(rep.fields()).Info("audit pass finished")
	}
}

// RunOnce drains pending partial-failure markers and then scans every user.
func (a *Auditor) RunOnce(ctx context.Context) (AuditReport, error) {
	if a.Locker != nil {
		release, ok, err := a.Locker.TryLock(ctx, a.LockTTL)
		if err != nil {
			return AuditReport{}, err
		}
		if !ok {
			return AuditReport{Skipped: true}, nil
		}
		defer func() {
			rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
			defer cancel()
			if err := release(rctx); err != nil {
				a.Logger.WithError(err).Warn("release audit lock failed")
			}
		}()
	}

	start := time.Now()
	defer func() { metrics.AuditPassDuration.Observe(time.Since(start).Seconds()) }()

	rep, err := a.ReconcileMarkers(ctx)
	if err != nil {
		return rep, err
	}
	scan, err := a.Scan(ctx)
	rep.merge(scan)
	return rep, err
}

// ReconcileMarkers repairs the edges recorded by FollowService. The recorded
// intent decides the direction: an interrupted unfollow is finished rather
// than rolled back. A marker is resolved only after its edge is consistent;
// failed and deferred markers stay pending for the next pass.
func (a *Auditor) ReconcileMarkers(ctx context.Context) (AuditReport, error) {
	var rep AuditReport
	if a.Recorder == nil {
		return rep, nil
	}
	for {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		batch, err := a.Recorder.Pending(ctx, a.BatchSize)
		if err != nil {
			return rep, err
		}
		resolved := 0
		for _, in := range batch {
			rep.Markers++
			rep.Suspicious++
			action, err := a.reconcileEdge(ctx, in.FollowerID, in.FolloweeID, in.Op)
			if err != nil {
				a.fail(&rep, err, in.FollowerID, in.FolloweeID)
				continue
			}
			rep.count(action)
			if action == repairDeferred {
				continue
			}
			if err := a.Recorder.Resolve(ctx, in); err != nil {
				a.Logger.WithError(err).WithFields(logrus.Fields{"user_id": in.FollowerID, "target_id": in.FolloweeID}).
					Warn("resolve audit marker failed; it will be replayed")
				continue
			}
			resolved++
		}
		// Stop once a batch makes no progress; what is left waits for the
		// next pass.
		if len(batch) < a.BatchSize || resolved == 0 {
			return rep, nil
		}
	}
}

// Scan walks all users in id order and repairs every asymmetric edge found.
func (a *Auditor) Scan(ctx context.Context) (AuditReport, error) {
	var (
		rep   AuditReport
		after string
	)
	for {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		ids, err := a.Repo.ScanIDs(ctx, after, a.BatchSize)
		if err != nil {
			return rep, err
		}
		if len(ids) == 0 {
			return rep, nil
		}
		after = ids[len(ids)-1]
		if err := a.scanPage(ctx, ids, &rep); err != nil {
			return rep, err
		}
		if len(ids) < a.BatchSize {
			return rep, nil
		}
	}
}

type edge struct{ follower, followee string }

func (a *Auditor) scanPage(ctx context.Context, ids []string, rep *AuditReport) error {
	page, err := a.Repo.BatchGet(ctx, ids)
	if err != nil {
		return err
	}
	refs := make(map[string]struct{})
	for _, u := range page {
		rep.Users++
		for _, id := range u.Followers {
			refs[id] = struct{}{}
		}
		for _, id := range u.Following {
			refs[id] = struct{}{}
		}
	}
	missing := make([]string, 0, len(refs))
	for id := range refs {
		if _, ok := page[id]; !ok {
			missing = append(missing, id)
		}
	}
	snapshot, err := a.Repo.BatchGet(ctx, missing)
	if err != nil {
		return err
	}
	for id, u := range page {
		snapshot[id] = u
	}

	// Collect edges whose halves disagree in the snapshot; each is re-checked
	// on fresh records before any write.
	suspicious := make(map[edge]struct{})
	for _, id := range ids {
		u, ok := page[id]
		if !ok {
			continue
		}
		for _, f := range u.Followers {
			if other, ok := snapshot[f]; !ok || f == u.ID || !other.IsFollowing(u.ID) {
				suspicious[edge{follower: f, followee: u.ID}] = struct{}{}
			}
		}
		for _, t := range u.Following {
			if other, ok := snapshot[t]; !ok || t == u.ID || !other.HasFollower(u.ID) {
				suspicious[edge{follower: u.ID, followee: t}] = struct{}{}
			}
		}
	}

	for e := range suspicious {
		if err := ctx.Err(); err != nil {
			return err
		}
		rep.Suspicious++
		action, err := a.reconcileEdge(ctx, e.follower, e.followee, OpFollow)
		if err != nil {
			a.fail(rep, err, e.follower, e.followee)
			continue
		}
		rep.count(action)
	}
	return nil
}

// reconcileEdge re-reads both ends of follower→followee and makes the two
// halves agree. Dangling references are removed; otherwise intent decides
// whether the missing half is added or the remaining half removed.
func (a *Auditor) reconcileEdge(ctx context.Context, followerID, followeeID string, intent FollowOp) (repairAction, error) {
	if followerID == followeeID {
		return a.removeSelfLoop(ctx, followerID)
	}

	fresh, err := a.Repo.BatchGet(ctx, []string{followerID, followeeID})
	if err != nil {
		return repairNone, err
	}
	follower, fok := fresh[followerID]
	followee, eok := fresh[followeeID]
	log := a.Logger.WithFields(logrus.Fields{"user_id": followerID, "target_id": followeeID})

	switch {
	case !fok && !eok:
		return repairNone, nil
	case !fok:
		if !followee.HasFollower(followerID) {
			return repairNone, nil
		}
		if _, err := a.Repo.RemoveFromSet(ctx, followeeID, entity.FieldFollowers, followerID); err != nil && !isNotFound(err) {
			return repairNone, err
		}
		log.Info("removed dangling follower reference")
		return repairTombstone, nil
	case !eok:
		if !follower.IsFollowing(followeeID) {
			return repairNone, nil
		}
		if _, err := a.Repo.RemoveFromSet(ctx, followerID, entity.FieldFollowing, followeeID); err != nil && !isNotFound(err) {
			return repairNone, err
		}
		log.Info("removed dangling following reference")
		return repairTombstone, nil
	}

	hasFollowing := follower.IsFollowing(followeeID)
	hasFollower := followee.HasFollower(followerID)
	if hasFollowing == hasFollower {
		return repairNone, nil
	}
	if a.settling(follower) || a.settling(followee) {
		log.Debug("edge changed recently; deferring repair")
		return repairDeferred, nil
	}

	if intent == OpUnfollow {
		if hasFollowing {
			_, err = a.Repo.RemoveFromSet(ctx, followerID, entity.FieldFollowing, followeeID)
		} else {
			_, err = a.Repo.RemoveFromSet(ctx, followeeID, entity.FieldFollowers, followerID)
		}
		if err != nil {
			return repairNone, err
		}
		log.Info("finished interrupted unfollow")
		return repairRemoved, nil
	}

	if hasFollowing {
		_, err = a.Repo.AddToSet(ctx, followeeID, entity.FieldFollowers, followerID)
	} else {
		_, err = a.Repo.AddToSet(ctx, followerID, entity.FieldFollowing, followeeID)
	}
	if err != nil {
		return repairNone, err
	}
	log.Info("restored missing half of follow edge")
	return repairAdded, nil
}

// settling reports whether u was written within the settle window.
func (a *Auditor) settling(u *entity.User) bool {
	if a.SettleWindow <= 0 {
		return false
	}
	now := time.Now
	if a.Now != nil {
		now = a.Now
	}
	return now().Sub(u.UpdatedAt) < a.SettleWindow
}

func (a *Auditor) removeSelfLoop(ctx context.Context, id string) (repairAction, error) {
	changedA, err := a.Repo.RemoveFromSet(ctx, id, entity.FieldFollowers, id)
	if err != nil && !isNotFound(err) {
		return repairNone, err
	}
	changedB, err := a.Repo.RemoveFromSet(ctx, id, entity.FieldFollowing, id)
	if err != nil && !isNotFound(err) {
		return repairNone, err
	}
	if !changedA && !changedB {
		return repairNone, nil
	}
	a.Logger.WithField("user_id", id).Warn("removed self-loop")
	return repairRemoved, nil
}

func (a *Auditor) fail(rep *AuditReport, err error, followerID, followeeID string) {
	rep.Failed++
	metrics.AuditFailures.Inc()
	a.Logger.WithError(err).WithFields(logrus.Fields{"user_id": followerID, "target_id": followeeID}).
		Error("edge repair failed; continuing")
}

func (r *AuditReport) count(action repairAction) {
	switch action {
	case repairAdded:
		r.Added++
		metrics.AuditRepairs.WithLabelValues("added").Inc()
	case repairRemoved:
		r.Removed++
		metrics.AuditRepairs.WithLabelValues("removed").Inc()
	case repairTombstone:
		r.Tombstones++
		metrics.AuditRepairs.WithLabelValues("tombstone").Inc()
	case repairDeferred:
		r.Deferred++
	}
}
