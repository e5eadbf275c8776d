package consumer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oksasatya/go-user-graph/internal/application"
)

type settlement struct {
	tag     uint64
	ack     bool
	requeue bool
}

type fakeAcker struct {
	mu  sync.Mutex
	got []settlement
}

func (a *fakeAcker) Ack(tag uint64, _ bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.got = append(a.got, settlement{tag: tag, ack: true})
	return nil
}

func (a *fakeAcker) Nack(tag uint64, _ bool, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.got = append(a.got, settlement{tag: tag, requeue: requeue})
	return nil
}

func (a *fakeAcker) Reject(tag uint64, requeue bool) error {
	return a.Nack(tag, false, requeue)
}

func (a *fakeAcker) settlements() []settlement {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]settlement(nil), a.got...)
}

type handlerFunc func(ctx context.Context, body []byte) (application.IngestOutcome, error)

func (f handlerFunc) Handle(ctx context.Context, body []byte) (application.IngestOutcome, error) {
	return f(ctx, body)
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func delivery(acker amqp.Acknowledger, tag uint64) amqp.Delivery {
	return amqp.Delivery{Acknowledger: acker, DeliveryTag: tag, Body: []byte(`{}`), MessageId: fmt.Sprint(tag)}
}

func TestProcess_SettlesByOutcome(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want settlement
	}{
		{"inserted", nil, settlement{tag: 1, ack: true}},
		{"malformed", fmt.Errorf("decode: %w", application.ErrMalformedEvent), settlement{tag: 1}},
		{"transient", fmt.Errorf("insert: %w", application.ErrTransient), settlement{tag: 1, requeue: true}},
		{"unexpected", errors.New("boom"), settlement{tag: 1, requeue: true}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			acker := &fakeAcker{}
			h := handlerFunc(func(context.Context, []byte) (application.IngestOutcome, error) {
				return application.IngestInserted, tc.err
			})
			c := NewUserCreatedConsumer(h, quietLogger(), time.Second, 0)

			c.Process(context.Background(), delivery(acker, 1))

			assert.Equal(t, []settlement{tc.want}, acker.settlements())
		})
	}
}

func TestProcess_TimeoutRequeues(t *testing.T) {
	acker := &fakeAcker{}
	h := handlerFunc(func(ctx context.Context, _ []byte) (application.IngestOutcome, error) {
		<-ctx.Done()
		return application.IngestFailed, ctx.Err()
	})
	c := NewUserCreatedConsumer(h, quietLogger(), 10*time.Millisecond, 0)

	c.Process(context.Background(), delivery(acker, 7))

	assert.Equal(t, []settlement{{tag: 7, requeue: true}}, acker.settlements())
}

func TestRun_DrainsUntilClosed(t *testing.T) {
	acker := &fakeAcker{}
	var calls int
	h := handlerFunc(func(context.Context, []byte) (application.IngestOutcome, error) {
		calls++
		return application.IngestDuplicate, nil
	})
	c := NewUserCreatedConsumer(h, quietLogger(), time.Second, 0)

	ch := make(chan amqp.Delivery, 3)
	for i := uint64(1); i <= 3; i++ {
		ch <- delivery(acker, i)
	}
	close(ch)

	err := c.Run(context.Background(), ch)
	require.ErrorIs(t, err, ErrDeliveriesClosed)
	assert.Equal(t, 3, calls)
	assert.Len(t, acker.settlements(), 3)
}

func TestRun_StopsOnCancel(t *testing.T) {
	h := handlerFunc(func(context.Context, []byte) (application.IngestOutcome, error) {
		return application.IngestInserted, nil
	})
	c := NewUserCreatedConsumer(h, nil, 0, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := c.Run(ctx, make(chan amqp.Delivery))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBackoff_ReturnsOnCancel(t *testing.T) {
	c := NewUserCreatedConsumer(nil, quietLogger(), time.Second, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		c.backoff(ctx)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("backoff ignored cancellation")
	}
}
