// Package perfmonitor measures the wall time of a bracketed section of work,
// such as one server tick.
package perfmonitor

import "time"

// PerformanceMonitor records a start and an end timestamp. It is not safe for
// concurrent use; the tick loop owns its instance.
type PerformanceMonitor struct {
	startTime time.Time
	endTime   time.Time
}

// NewPerformanceMonitor creates a monitor with no measurement in progress.
func NewPerformanceMonitor() *PerformanceMonitor {
	return &PerformanceMonitor{}
}

// Start records the start of a measurement, replacing any previous one. The
// end time is left as is until Stop is called.
func (pm *PerformanceMonitor) Start() {
	pm.startTime = time.Now()
}

// Stop records the end of a measurement. It does nothing if Start has not been
// called since the last Reset.
func (pm *PerformanceMonitor) Stop() {
	if pm.startTime.IsZero() {
		return
	}

	pm.endTime = time.Now()
}

// Reset clears both timestamps.
func (pm *PerformanceMonitor) Reset() {
	pm.startTime = time.Time{}
	pm.endTime = time.Time{}
}

// Elapsed returns the measured duration, or zero when the measurement is
// incomplete.
//
// Returns:
//   - The time between Start and Stop
func (pm *PerformanceMonitor) Elapsed() time.Duration {
	if pm.startTime.IsZero() || pm.endTime.IsZero() || pm.endTime.Before(pm.startTime) {
		return 0
	}

	return pm.endTime.Sub(pm.startTime)
}

// ElapsedMilliseconds returns Elapsed as fractional milliseconds.
//
// Returns:
//   - The elapsed time in milliseconds, or 0 when the measurement is incomplete
func (pm *PerformanceMonitor) ElapsedMilliseconds() float64 {
	return float64(pm.Elapsed()) / float64(time.Millisecond)
}
