package application

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/go-user-graph/internal/domain/entity"
	repo "github.com/oksasatya/go-user-graph/internal/domain/repository"
	"github.com/oksasatya/go-user-graph/internal/metrics"
	"github.com/oksasatya/go-user-graph/pkg/validation"
)

// IngestOutcome describes what handling a creation event did.
type IngestOutcome string

const (
	IngestInserted  IngestOutcome = "inserted"
	IngestDuplicate IngestOutcome = "duplicate"
	IngestMalformed IngestOutcome = "malformed"
	IngestFailed    IngestOutcome = "failed"
)

// IngestService materializes exactly one user record per distinct id from an
// at-least-once stream of user-created events.
type IngestService struct {
	Repo     repo.UserRepository
	Inbox    Inbox
	Indexer  UserIndexer
	Logger   *logrus.Logger
	validate *validator.Validate
}

func NewIngestService(repo repo.UserRepository, inbox Inbox, indexer UserIndexer, logger *logrus.Logger) *IngestService {
	return &IngestService{
		Repo:     repo,
		Inbox:    inbox,
		Indexer:  indexer,
		Logger:   orDiscard(logger),
		validate: validation.New(),
	}
}

// Handle processes one raw event body.
//
// A malformed payload returns ErrMalformedEvent and must not be redelivered.
// A store failure returns ErrTransient and the event must stay uncommitted.
// Duplicates, including the loser of a concurrent insert race, return nil
// without touching the stored record.
func (s *IngestService) Handle(ctx context.Context, body []byte) (IngestOutcome, error) {
	start := time.Now()
	outcome, err := s.handle(ctx, body)
	metrics.IngestEvents.WithLabelValues(string(outcome)).Inc()
	metrics.IngestDuration.Observe(time.Since(start).Seconds())
	return outcome, err
}

func (s *IngestService) handle(ctx context.Context, body []byte) (IngestOutcome, error) {
	ev, err := s.decode(body)
	if err != nil {
		s.Logger.WithError(err).WithFields(logrus.Fields{
			"payload_bytes": len(body),
			"details":       validation.ToDetails(err),
		}).Warn("skipping malformed user-created event")
		return IngestMalformed, err
	}
	log := s.Logger.WithField("event_id", ev.ID)

	if s.Inbox != nil {
		seen, err := s.Inbox.Seen(ctx, ev.ID)
		if err != nil {
			log.WithError(err).Warn("inbox lookup failed; falling back to store")
		} else if seen {
			log.Debug("duplicate user-created event (inbox)")
			return IngestDuplicate, nil
		}
	}

	if _, err := s.Repo.GetByID(ctx, ev.ID); err == nil {
		log.Debug("duplicate user-created event (store)")
		s.markProcessed(ctx, log, ev.ID)
		return IngestDuplicate, nil
	} else if !isNotFound(err) {
		log.WithError(err).Error("user lookup failed")
		return IngestFailed, transient("lookup user", err)
	}

	u := entity.NewUserFromEvent(ev)
	inserted, err := s.Repo.UpsertIfAbsent(ctx, u)
	if err != nil {
		log.WithError(err).Error("user insert failed")
		return IngestFailed, transient("insert user", err)
	}
	s.markProcessed(ctx, log, ev.ID)
	if !inserted {
		log.Debug("lost insert race to a concurrent delivery")
		return IngestDuplicate, nil
	}

	if s.Indexer != nil {
		if err := s.Indexer.Index(ctx, u); err != nil {
			log.WithError(err).Warn("search index failed")
		}
	}
	log.WithField("username", ev.Username).Info("user materialized from user-created event")
	return IngestInserted, nil
}

func (s *IngestService) decode(body []byte) (entity.UserCreatedEvent, error) {
	var ev entity.UserCreatedEvent
	if len(body) == 0 {
		return ev, fmt.Errorf("%w: empty body", ErrMalformedEvent)
	}
	if err := json.Unmarshal(body, &ev); err != nil {
		return ev, fmt.Errorf("%w: %w", ErrMalformedEvent, err)
	}
	if err := s.validate.Struct(ev); err != nil {
		return ev, fmt.Errorf("%w: %w", ErrMalformedEvent, err)
	}
	return ev, nil
}

func (s *IngestService) markProcessed(ctx context.Context, log *logrus.Entry, id string) {
	if s.Inbox == nil {
		return
	}
	if err := s.Inbox.MarkProcessed(ctx, id); err != nil {
		log.WithError(err).Warn("inbox mark failed")
	}
}
