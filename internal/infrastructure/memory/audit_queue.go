package memory

import (
	"context"
	"sync"

	"github.com/oksasatya/go-user-graph/internal/application"
)

// AuditQueue is an in-process marker set for single-instance runs.
type AuditQueue struct {
	mu      sync.Mutex
	pending map[application.Inconsistency]struct{}
}

func NewAuditQueue() *AuditQueue {
	return &AuditQueue{pending: make(map[application.Inconsistency]struct{})}
}

func (q *AuditQueue) Record(ctx context.Context, in application.Inconsistency) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending[in] = struct{}{}
	return nil
}

// Pending returns up to max markers in no particular order. They stay
// queued until resolved.
func (q *AuditQueue) Pending(ctx context.Context, max int) ([]application.Inconsistency, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]application.Inconsistency, 0, min(max, len(q.pending)))
	for in := range q.pending {
		if len(out) == max {
			break
		}
		out = append(out, in)
	}
	return out, nil
}

func (q *AuditQueue) Resolve(ctx context.Context, in application.Inconsistency) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.pending, in)
	return nil
}

func (q *AuditQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

var _ application.InconsistencyRecorder = (*AuditQueue)(nil)
