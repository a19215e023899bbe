// Package mainthread linearizes work produced on network goroutines onto the
// single goroutine that owns session and game state.
package mainthread

import (
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/cyberinferno/go-gameserver/logger"
)

// Action is a unit of deferred work.
type Action func()

// Queue is a double-buffered action queue with any number of producers and a
// single consumer. Producers append under the mutex; the consumer swaps the
// pending slice out under the same mutex and runs it without holding the lock,
// so producers never wait on action execution.
type Queue struct {
	mu      sync.Mutex
	pending []Action
	spare   []Action
	dirty   bool

	logger logger.Logger
}

// NewQueue creates an empty queue.
//
// Parameters:
//   - l: Logger for rejected and panicking actions
//
// Returns:
//   - The Queue
func NewQueue(l logger.Logger) *Queue {
	return &Queue{logger: l}
}

// Enqueue schedules action for the next DrainAndRun. It is safe for
// concurrent use. A nil action is logged and ignored.
//
// Parameters:
//   - action: The work to run on the consumer goroutine
func (q *Queue) Enqueue(action Action) {
	if action == nil {
		q.logger.Warn("no action to execute on main thread")
		return
	}

	q.mu.Lock()
	q.pending = append(q.pending, action)
	q.dirty = true
	q.mu.Unlock()
}

// Len returns the number of actions waiting for the next drain.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// DrainAndRun runs every action enqueued before the swap, in enqueue order.
// Actions enqueued while it runs wait for the next call. It must only be
// called from the consumer goroutine.
//
// Returns:
//   - The number of actions executed
func (q *Queue) DrainAndRun() int {
	q.mu.Lock()
	if !q.dirty {
		q.mu.Unlock()
		return 0
	}

	batch := q.pending
	q.pending = q.spare[:0]
	q.dirty = false
	q.mu.Unlock()

	for i, action := range batch {
		q.run(action)
		batch[i] = nil
	}

	q.spare = batch[:0]
	return len(batch)
}

// run executes one action, containing any panic so later actions still run.
func (q *Queue) run(action Action) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("main thread action panicked",
				logger.Field{Key: "panic", Value: fmt.Sprint(r)},
				logger.Field{Key: "stack", Value: string(debug.Stack())})
		}
	}()

	action()
}
