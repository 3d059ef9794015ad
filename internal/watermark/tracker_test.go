package watermark

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackerRecomputeCadence(t *testing.T) {
	tracker := NewTracker(New(), viewer, "device-77f3a2", 240)
	start := time.Date(2026, 10, 18, 9, 30, 5, 0, time.UTC)

	first, changed, err := tracker.Next(1, start)
	require.NoError(t, err)
	assert.True(t, changed)

	t.Run("ticks within the same minute reuse the plan", func(t *testing.T) {
		for s := 1; s < 50; s += 7 {
			plan, changed, err := tracker.Next(1, start.Add(time.Duration(s)*time.Second))
			require.NoError(t, err)
			assert.False(t, changed)
			assert.Equal(t, first.Fingerprint(), plan.Fingerprint())
		}
		assert.Equal(t, 1, tracker.Computes())
	})

	t.Run("page change recomputes immediately", func(t *testing.T) {
		plan, changed, err := tracker.Next(2, start.Add(10*time.Second))
		require.NoError(t, err)
		assert.True(t, changed)
		assert.Equal(t, 2, plan.Page)
	})

	t.Run("minute change recomputes once", func(t *testing.T) {
		next := start.Add(time.Minute)
		_, changed, _ := tracker.Next(2, next)
		assert.True(t, changed)
		_, changed, _ = tracker.Next(2, next.Add(20*time.Second))
		assert.False(t, changed)
		assert.Equal(t, 3, tracker.Computes())
	})

	t.Run("invalid page keeps the previous plan", func(t *testing.T) {
		before, _ := tracker.Current()
		plan, changed, err := tracker.Next(999, start.Add(2*time.Minute))
		assert.Error(t, err)
		assert.False(t, changed)
		assert.Equal(t, before.Fingerprint(), plan.Fingerprint())
	})
}
