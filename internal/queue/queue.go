package queue

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	// ErrFull is returned when an utterance would exceed the text budget.
	ErrFull = errors.New("queue is full")

	// ErrClosed is returned when operations are attempted on a closed queue.
	ErrClosed = errors.New("queue is closed")

	// ErrEmpty is returned by Peek on an empty queue.
	ErrEmpty = errors.New("queue is empty")
)

// Utterance is one piece of text waiting to be spoken.
type Utterance struct {
	ID   string
	Text string
	SSML bool

	enqueued time.Time
}

// Stats tracks queue activity.
type Stats struct {
	Enqueued    int64
	Dequeued    int64
	Dropped     int64
	Priority    int64
	Size        int
	Peak        int
	AverageWait time.Duration
}

// Queue is safe for concurrent use.
type Queue struct {
	maxItems int
	maxBytes int

	mu       sync.Mutex
	notEmpty *sync.Cond
	notFull  *sync.Cond
	priority []Utterance
	regular  []Utterance
	bytes    int
	closed   bool
	stats    Stats
	waited   time.Duration
}

// New creates a queue holding at most maxItems utterances and maxBytes of
// text. A maxBytes of zero disables the text budget.
func New(maxItems, maxBytes int) *Queue {
	if maxItems <= 0 {
		maxItems = 1
	}
	q := &Queue{maxItems: maxItems, maxBytes: maxBytes}
	q.notEmpty = sync.NewCond(&q.mu)
	q.notFull = sync.NewCond(&q.mu)
	return q
}

// Enqueue adds u, blocking while the queue holds maxItems utterances.
// Priority utterances are spoken before any regular ones.
func (q *Queue) Enqueue(ctx context.Context, u Utterance, priority bool) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	stop := context.AfterFunc(ctx, func() {
		q.mu.Lock()
		q.notFull.Broadcast()
		q.mu.Unlock()
	})
	defer stop()

	for q.sizeLocked() >= q.maxItems && !q.closed && ctx.Err() == nil {
		q.notFull.Wait()
	}
	if q.closed {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if q.maxBytes > 0 && q.bytes+len(u.Text) > q.maxBytes {
		q.stats.Dropped++
		return ErrFull
	}

	u.enqueued = time.Now()
	if priority {
		q.priority = append(q.priority, u)
		q.stats.Priority++
	} else {
		q.regular = append(q.regular, u)
	}
	q.bytes += len(u.Text)
	q.stats.Enqueued++
	if n := q.sizeLocked(); n > q.stats.Peak {
		q.stats.Peak = n
	}
	q.notEmpty.Signal()
	return nil
}

// Dequeue removes and returns the next utterance, blocking until one is
// available, the queue is closed or ctx is done. Items still queued when
// the queue is closed are discarded.
func (q *Queue) Dequeue(ctx context.Context) (Utterance, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	stop := context.AfterFunc(ctx, func() {
		q.mu.Lock()
		q.notEmpty.Broadcast()
		q.mu.Unlock()
	})
	defer stop()

	for q.sizeLocked() == 0 && !q.closed && ctx.Err() == nil {
		q.notEmpty.Wait()
	}
	if q.closed {
		return Utterance{}, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return Utterance{}, err
	}

	var u Utterance
	if len(q.priority) > 0 {
		u, q.priority = q.priority[0], q.priority[1:]
	} else {
		u, q.regular = q.regular[0], q.regular[1:]
	}
	q.bytes -= len(u.Text)
	q.stats.Dequeued++
	q.waited += time.Since(u.enqueued)
	q.notFull.Signal()
	return u, nil
}

// Peek returns the next utterance without removing it.
func (q *Queue) Peek() (Utterance, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	switch {
	case q.closed:
		return Utterance{}, ErrClosed
	case len(q.priority) > 0:
		return q.priority[0], nil
	case len(q.regular) > 0:
		return q.regular[0], nil
	}
	return Utterance{}, ErrEmpty
}

// Len returns the number of queued utterances.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.sizeLocked()
}

// Clear drops every queued utterance and returns how many were dropped.
func (q *Queue) Clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := q.sizeLocked()
	q.priority = nil
	q.regular = nil
	q.bytes = 0
	q.stats.Dropped += int64(n)
	q.notFull.Broadcast()
	return n
}

// Stats returns a snapshot of the queue counters.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	s := q.stats
	s.Size = q.sizeLocked()
	if s.Dequeued > 0 {
		s.AverageWait = q.waited / time.Duration(s.Dequeued)
	}
	return s
}

// Close wakes every waiter; later calls return ErrClosed.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	q.notEmpty.Broadcast()
	q.notFull.Broadcast()
}

func (q *Queue) sizeLocked() int {
	return len(q.priority) + len(q.regular)
}
