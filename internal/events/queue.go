// Package events carries sensor edges to the tick loop: per-channel debouncing
// in interrupt context and an unbounded queue drained one event per tick.
package events

import (
	"sync"

	"github.com/sweeney/foosball-sensor/internal/game"
)

// Sender accepts events without blocking.
type Sender interface {
	Push(e game.Event)
}

// Queue is an unbounded multi-producer, single-consumer FIFO of game events.
// Push never blocks beyond a short critical section; TryPop never waits for
// an event.
type Queue struct {
	mu    sync.Mutex
	items []game.Event
	head  int
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{items: make([]game.Event, 0, 16)}
}

// Push appends e. Safe for concurrent use.
func (q *Queue) Push(e game.Event) {
	q.mu.Lock()
	q.items = append(q.items, e)
	q.mu.Unlock()
}

// TryPop returns the oldest pending event, or false if the queue is empty.
func (q *Queue) TryPop() (game.Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.head == len(q.items) {
		return "", false
	}
	e := q.items[q.head]
	q.head++
	switch {
	case q.head == len(q.items):
		// Drained: reuse the backing array.
		q.items = q.items[:0]
		q.head = 0
	case q.head > len(q.items)/2:
		// Mostly consumed: slide the pending tail to the front.
		n := copy(q.items, q.items[q.head:])
		clear(q.items[n:])
		q.items = q.items[:n]
		q.head = 0
	}
	return e, true
}

// Len returns the number of pending events.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) - q.head
}
