package consumer

import (
	"context"
	"errors"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/go-user-graph/internal/application"
)

// ErrDeliveriesClosed is returned by Run when the broker closes the channel.
var ErrDeliveriesClosed = errors.New("consumer: delivery channel closed")

// EventHandler processes one raw user-created payload.
type EventHandler interface {
	Handle(ctx context.Context, body []byte) (application.IngestOutcome, error)
}

// UserCreatedConsumer drives an EventHandler from AMQP deliveries.
//
// A delivery is acked only after the handler finished (inserted or
// duplicate). Malformed payloads are rejected without requeue so they reach
// the dead-letter exchange, if any. Everything else, including a handler
// timeout, is requeued for redelivery.
type UserCreatedConsumer struct {
	Handler      EventHandler
	Logger       *logrus.Logger
	Timeout      time.Duration
	RequeueDelay time.Duration
}

func NewUserCreatedConsumer(h EventHandler, logger *logrus.Logger, timeout, requeueDelay time.Duration) *UserCreatedConsumer {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &UserCreatedConsumer{Handler: h, Logger: logger, Timeout: timeout, RequeueDelay: requeueDelay}
}

// Run blocks until ctx is done or deliveries is closed.
func (c *UserCreatedConsumer) Run(ctx context.Context, deliveries <-chan amqp.Delivery) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return ErrDeliveriesClosed
			}
			c.Process(ctx, d)
		}
	}
}

// Process handles a single delivery and settles it.
func (c *UserCreatedConsumer) Process(ctx context.Context, d amqp.Delivery) {
	log := c.Logger.WithFields(logrus.Fields{"delivery_tag": d.DeliveryTag, "message_id": d.MessageId})

	hctx, cancel := context.WithTimeout(ctx, c.Timeout)
	outcome, err := c.Handler.Handle(hctx, d.Body)
	cancel()

	switch {
	case err == nil:
		if aerr := d.Ack(false); aerr != nil {
			log.WithError(aerr).Error("ack failed")
		}
		log.WithField("outcome", outcome).Debug("user-created event settled")
	case errors.Is(err, application.ErrMalformedEvent):
		if nerr := d.Nack(false, false); nerr != nil {
			log.WithError(nerr).Error("reject failed")
		}
	default:
		log.WithError(err).WithField("redelivered", d.Redelivered).Warn("user-created event failed; requeueing")
		c.backoff(ctx)
		if nerr := d.Nack(false, true); nerr != nil {
			log.WithError(nerr).Error("nack failed")
		}
	}
}

// backoff keeps a failing store from turning requeues into a hot loop.
func (c *UserCreatedConsumer) backoff(ctx context.Context) {
	if c.RequeueDelay <= 0 {
		return
	}
	t := time.NewTimer(c.RequeueDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
