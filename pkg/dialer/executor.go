package dialer

import (
	"context"
	"sync"
)

// Executor runs fn on the goroutine that owns the presenter.
type Executor func(fn func())

// Inline runs fn immediately on the calling goroutine.
func Inline(fn func()) { fn() }

// Queue is a FIFO of callbacks drained by a single control goroutine.
// Post never blocks, so it can be handed to a Dialer as its Executor via
// q.Post.
type Queue struct {
	mu   sync.Mutex
	fns  []func()
	wake chan struct{}
}

func NewQueue() *Queue {
	return &Queue{wake: make(chan struct{}, 1)}
}

// Post appends fn to the queue.
func (q *Queue) Post(fn func()) {
	q.mu.Lock()
	q.fns = append(q.fns, fn)
	q.mu.Unlock()
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Len reports how many callbacks are waiting.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.fns)
}

// RunPending runs every queued callback, including ones posted while
// running, and returns how many ran.
func (q *Queue) RunPending() int {
	n := 0
	for {
		q.mu.Lock()
		if len(q.fns) == 0 {
			q.mu.Unlock()
			return n
		}
		fn := q.fns[0]
		q.fns[0] = nil
		q.fns = q.fns[1:]
		q.mu.Unlock()
		fn()
		n++
	}
}

// Run drains the queue until ctx is done.
func (q *Queue) Run(ctx context.Context) error {
	for {
		q.RunPending()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-q.wake:
		}
	}
}
