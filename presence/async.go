package presence

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cyberinferno/go-gameserver/logger"
)

// ErrQueueFull is returned when the async worker is saturated and an update
// was dropped.
var ErrQueueFull = errors.New("presence queue full")

// ErrClosed is returned for updates submitted after Close.
var ErrClosed = errors.New("presence publisher closed")

type update struct {
	leave    bool
	id       int
	username string
}

// Async forwards roster updates to another Publisher from a single worker
// goroutine so callers on the tick goroutine never wait on the network.
// Updates are applied in submission order.
type Async struct {
	next    Publisher
	logger  logger.Logger
	timeout time.Duration
	updates chan update

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// NewAsync starts the worker.
//
// Parameters:
//   - next: The publisher that performs the I/O
//   - l: Logger for failed updates
//   - queueSize: Updates buffered before new ones are dropped
//   - timeout: Deadline for each forwarded call
//
// Returns:
//   - A running Async; call Close to drain and stop it
func NewAsync(next Publisher, l logger.Logger, queueSize int, timeout time.Duration) *Async {
	if queueSize <= 0 {
		queueSize = 64
	}

	a := &Async{
		next:    next,
		logger:  l.With(logger.Field{Key: "component", Value: "presence"}),
		timeout: timeout,
		updates: make(chan update, queueSize),
		done:    make(chan struct{}),
	}

	go a.run()

	return a
}

// Join queues a join; ctx is unused because the call never blocks.
func (a *Async) Join(_ context.Context, id int, username string) error {
	return a.submit(update{id: id, username: username})
}

// Leave queues a leave.
func (a *Async) Leave(_ context.Context, id int) error {
	return a.submit(update{leave: true, id: id})
}

// Clear is forwarded synchronously.
func (a *Async) Clear(ctx context.Context) error {
	return a.next.Clear(ctx)
}

// Close stops accepting updates, waits for queued ones to be applied and
// closes the wrapped publisher.
func (a *Async) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	close(a.updates)
	a.mu.Unlock()

	<-a.done

	return a.next.Close()
}

func (a *Async) submit(u update) error {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.closed {
		return ErrClosed
	}

	select {
	case a.updates <- u:
		return nil
	default:
		a.logger.Warn("presence update dropped", logger.Field{Key: "slot", Value: u.id})
		return ErrQueueFull
	}
}

func (a *Async) run() {
	defer close(a.done)

	for u := range a.updates {
		a.apply(u)
	}
}

func (a *Async) apply(u update) {
	ctx := context.Background()
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	var err error
	if u.leave {
		err = a.next.Leave(ctx, u.id)
	} else {
		err = a.next.Join(ctx, u.id, u.username)
	}

	if err != nil {
		a.logger.Error("presence update failed",
			logger.Field{Key: "slot", Value: u.id},
			logger.Field{Key: "error", Value: err},
		)
	}
}
