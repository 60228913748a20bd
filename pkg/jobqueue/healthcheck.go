package jobqueue

import (
	"context"
	"errors"
)

var (
	// ErrHealthcheckFailed is returned when the queue health check
	// fails. Compatible with pkg/health.CheckFunc.
	ErrHealthcheckFailed = errors.New("jobqueue: healthcheck failed")

	errQueueNil        = errors.New("queue is nil")
	errQueueNotStarted = errors.New("queue not started")
)

// Healthcheck verifies the queue is running and its pool is reachable.
//
//	health.WithReadinessCheck("jobqueue", jobqueue.Healthcheck(q))
func Healthcheck(q *Queue) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if q == nil {
			return errors.Join(ErrHealthcheckFailed, errQueueNil)
		}

		q.mu.Lock()
		started := q.started
		q.mu.Unlock()

		if !started {
			return errors.Join(ErrHealthcheckFailed, errQueueNotStarted)
		}

		if err := q.pool.Ping(ctx); err != nil {
			return errors.Join(ErrHealthcheckFailed, err)
		}

		return nil
	}
}
