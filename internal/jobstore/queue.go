package jobstore

import (
	"context"
	"sync"

	"github.com/yuckyman/url-portal/internal/portal/domain"
)

// Queue is an unbounded in-memory FIFO of jobs. Push never blocks; Pop blocks
// until a job is available or ctx is done.
type Queue struct {
	mu    sync.Mutex
	items []*domain.Job
	wake  chan struct{}
}

// NewQueue creates an empty Queue
func NewQueue() *Queue {
	return &Queue{
		wake: make(chan struct{}, 1),
	}
}

// Push appends job to the tail of the queue
func (q *Queue) Push(job *domain.Job) {
	q.mu.Lock()
	q.items = append(q.items, job)
	q.mu.Unlock()

	q.signal()
}

// Pop removes and returns the head of the queue. Once ctx is done it returns
// ctx.Err() and leaves any waiting jobs in place.
func (q *Queue) Pop(ctx context.Context) (*domain.Job, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		q.mu.Lock()
		if len(q.items) > 0 {
			job := q.items[0]
			q.items[0] = nil
			q.items = q.items[1:]
			remaining := len(q.items)
			q.mu.Unlock()

			// Pass the wake-up on so another waiting worker sees the rest
			if remaining > 0 {
				q.signal()
			}
			return job, nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-q.wake:
		}
	}
}

// Len returns the number of jobs waiting
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}
