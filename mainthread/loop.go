package mainthread

import (
	"context"
	"time"

	"github.com/cyberinferno/go-gameserver/logger"
	"github.com/cyberinferno/go-gameserver/perfmonitor"
)

// TickFunc runs once per tick after the queue is drained.
type TickFunc func(dt time.Duration)

// TickObserver receives the duration of every tick.
type TickObserver interface {
	ObserveTick(elapsed time.Duration, actions int)
}

// Loop drives a Queue at a fixed interval. The goroutine calling Run is the
// logical thread: it is the only one that executes queued actions and tick
// functions.
type Loop struct {
	queue    *Queue
	interval time.Duration
	onTick   []TickFunc
	observer TickObserver
	logger   logger.Logger
	monitor  *perfmonitor.PerformanceMonitor
}

// NewLoop creates a loop draining queue every interval.
//
// Parameters:
//   - queue: The queue to drain
//   - interval: Tick period; must be positive
//   - l: Logger for overrun warnings
//
// Returns:
//   - The Loop
func NewLoop(queue *Queue, interval time.Duration, l logger.Logger) *Loop {
	return &Loop{
		queue:    queue,
		interval: interval,
		logger:   l,
		monitor:  perfmonitor.NewPerformanceMonitor(),
	}
}

// OnTick registers fn to run after the queue drain on every tick. It must be
// called before Run.
func (l *Loop) OnTick(fn TickFunc) {
	l.onTick = append(l.onTick, fn)
}

// SetObserver attaches a tick observer. It must be called before Run.
func (l *Loop) SetObserver(o TickObserver) {
	l.observer = o
}

// Interval returns the tick period.
func (l *Loop) Interval() time.Duration {
	return l.interval
}

// Run ticks until ctx is done. Actions still queued at that point are run
// once more so that shutdown work scheduled by network goroutines completes.
//
// Returns:
//   - ctx.Err() once the context ends
func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.queue.DrainAndRun()
			return ctx.Err()
		case <-ticker.C:
			l.Tick()
		}
	}
}

// Tick performs one tick synchronously. Run calls it; tests may call it
// directly to step the loop.
func (l *Loop) Tick() {
	l.monitor.Reset()
	l.monitor.Start()

	actions := l.queue.DrainAndRun()
	for _, fn := range l.onTick {
		fn(l.interval)
	}

	l.monitor.Stop()
	elapsed := l.monitor.Elapsed()
	if elapsed > l.interval {
		l.logger.Warn("tick overran its interval",
			logger.Field{Key: "elapsed_ms", Value: l.monitor.ElapsedMilliseconds()},
			logger.Field{Key: "interval_ms", Value: l.interval.Milliseconds()},
			logger.Field{Key: "actions", Value: actions})
	}

	if l.observer != nil {
		l.observer.ObserveTick(elapsed, actions)
	}
}
