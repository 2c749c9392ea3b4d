package filewriter

import (
	"sync"
	"time"
)

// lineQueue is an unbounded FIFO. Producers never block; the single consumer
// takes everything queued so far in one batch.
type lineQueue struct {
	mu     sync.Mutex
	items  []string
	closed bool
	wake   chan struct{} // capacity 1, signals new items or close
}

func newLineQueue() *lineQueue {
	return &lineQueue{wake: make(chan struct{}, 1)}
}

func (q *lineQueue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// push appends s. It returns false if the queue is closed.
func (q *lineQueue) push(s string) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items, s)
	q.mu.Unlock()

	q.signal()
	return true
}

// close rejects further pushes. Items already queued can still be taken.
func (q *lineQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	q.signal()
}

func (q *lineQueue) tryTake() (batch []string, closed bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	batch, q.items = q.items, nil
	return batch, q.closed
}

// take returns all queued items, waiting up to timeout if there are none.
// closed reports whether the queue was closed at the time of the take; once
// it is true and batch is empty, nothing more will arrive.
func (q *lineQueue) take(timeout time.Duration) (batch []string, closed bool) {
	if batch, closed = q.tryTake(); len(batch) > 0 || closed {
		return batch, closed
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-q.wake:
	case <-timer.C:
	}
	return q.tryTake()
}

func (q *lineQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
