package perfmonitor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewPerformanceMonitor(t *testing.T) {
	pm := NewPerformanceMonitor()

	assert.NotNil(t, pm)
	assert.True(t, pm.startTime.IsZero())
	assert.True(t, pm.endTime.IsZero())
}

func TestPerformanceMonitor_StartStop(t *testing.T) {
	t.Run("stop without start leaves end unset", func(t *testing.T) {
		pm := NewPerformanceMonitor()

		pm.Stop()

		assert.True(t, pm.endTime.IsZero())
		assert.Equal(t, time.Duration(0), pm.Elapsed())
	})

	t.Run("start then stop records both", func(t *testing.T) {
		pm := NewPerformanceMonitor()

		pm.Start()
		pm.Stop()

		assert.False(t, pm.startTime.IsZero())
		assert.False(t, pm.endTime.IsZero())
		assert.False(t, pm.endTime.Before(pm.startTime))
	})

	t.Run("restart without stop reports zero", func(t *testing.T) {
		pm := NewPerformanceMonitor()

		pm.Start()
		pm.Stop()
		time.Sleep(2 * time.Millisecond)
		pm.Start()

		assert.Equal(t, 0.0, pm.ElapsedMilliseconds())
	})
}

func TestPerformanceMonitor_Elapsed(t *testing.T) {
	t.Run("zero when incomplete", func(t *testing.T) {
		pm := NewPerformanceMonitor()
		assert.Equal(t, 0.0, pm.ElapsedMilliseconds())

		pm.Start()
		assert.Equal(t, 0.0, pm.ElapsedMilliseconds())
	})

	t.Run("measures a sleep", func(t *testing.T) {
		pm := NewPerformanceMonitor()

		pm.Start()
		time.Sleep(20 * time.Millisecond)
		pm.Stop()

		assert.GreaterOrEqual(t, pm.Elapsed(), 20*time.Millisecond)
		assert.Greater(t, pm.ElapsedMilliseconds(), 15.0)
	})

	t.Run("reset clears the measurement", func(t *testing.T) {
		pm := NewPerformanceMonitor()

		pm.Start()
		pm.Stop()
		pm.Reset()
		pm.Reset()

		assert.True(t, pm.startTime.IsZero())
		assert.True(t, pm.endTime.IsZero())
		assert.Equal(t, 0.0, pm.ElapsedMilliseconds())
	})
}
