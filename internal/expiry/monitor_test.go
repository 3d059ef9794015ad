package expiry

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docguard/internal/session/models"
)

type fakeTask struct {
	stopped atomic.Bool
}

func (t *fakeTask) Stop() { t.stopped.Store(true) }

// manualScheduler records scheduled jobs and runs them when Tick is called.
type manualScheduler struct {
	mu       sync.Mutex
	fns      []func()
	tasks    []*fakeTask
	interval time.Duration
}

func (s *manualScheduler) Every(d time.Duration, fn func()) Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &fakeTask{}
	s.fns = append(s.fns, fn)
	s.tasks = append(s.tasks, t)
	s.interval = d
	return t
}

func (s *manualScheduler) Tick() {
	s.mu.Lock()
	fns := append([]func(){}, s.fns...)
	tasks := append([]*fakeTask{}, s.tasks...)
	s.mu.Unlock()
	for i, fn := range fns {
		if !tasks[i].stopped.Load() {
			fn()
		}
	}
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestMonitorEmitsOnceWhenExpired(t *testing.T) {
	clk := &clock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	var emitted []models.SecurityEvent
	m := NewMonitor(clk.now.Add(90*time.Second), func(ev models.SecurityEvent) {
		emitted = append(emitted, ev)
	}, WithClock(clk.Now))

	sched := &manualScheduler{}
	m.Start(sched, 0)
	assert.Equal(t, DefaultInterval, sched.interval)

	sched.Tick()
	assert.Empty(t, emitted)

	clk.Advance(60 * time.Second)
	sched.Tick()
	assert.Empty(t, emitted)

	clk.Advance(60 * time.Second)
	sched.Tick()
	require.Len(t, emitted, 1)
	assert.Equal(t, models.EventSessionExpired, emitted[0].Kind)
	assert.True(t, m.Fired())
	assert.True(t, sched.tasks[0].stopped.Load())

	clk.Advance(time.Hour)
	sched.Tick()
	_, ok := m.CheckNow()
	assert.False(t, ok)
	assert.Len(t, emitted, 1)
}

func TestMonitorAlreadyExpiredFiresOnNextCheck(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	var emitted int
	m := NewMonitor(now.Add(-time.Second), func(models.SecurityEvent) { emitted++ },
		WithClock(func() time.Time { return now }))

	sched := &manualScheduler{}
	m.Start(sched, time.Minute)
	sched.Tick()
	assert.Equal(t, 1, emitted)
}

func TestCheckNowReturnsEventWithoutEmitting(t *testing.T) {
	clk := &clock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	emitted := 0
	m := NewMonitor(clk.now.Add(time.Minute), func(models.SecurityEvent) { emitted++ }, WithClock(clk.Now))
	sched := &manualScheduler{}
	m.Start(sched, time.Minute)

	_, ok := m.CheckNow()
	assert.False(t, ok)

	// The device slept past expiry: no tick ran, the resume check catches it.
	clk.Advance(2 * time.Hour)
	ev, ok := m.CheckNow()
	require.True(t, ok)
	assert.Equal(t, models.EventSessionExpired, ev.Kind)
	assert.Equal(t, clk.Now(), ev.Timestamp)
	assert.Zero(t, emitted)
	assert.True(t, sched.tasks[0].stopped.Load())

	sched.Tick()
	assert.Zero(t, emitted)
}

func TestExpiryBoundaryIsInclusive(t *testing.T) {
	expires := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	m := NewMonitor(expires, nil, WithClock(func() time.Time { return expires }))
	_, ok := m.CheckNow()
	assert.True(t, ok)
}

func TestStartAfterFiredIsNoop(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	m := NewMonitor(now, nil, WithClock(func() time.Time { return now }))
	_, ok := m.CheckNow()
	require.True(t, ok)

	sched := &manualScheduler{}
	m.Start(sched, time.Minute)
	assert.Empty(t, sched.fns)
}

func TestStopCancelsTask(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	m := NewMonitor(now.Add(time.Hour), nil, WithClock(func() time.Time { return now }))
	sched := &manualScheduler{}
	m.Start(sched, time.Minute)
	m.Stop()
	m.Stop()
	assert.True(t, sched.tasks[0].stopped.Load())
}

func TestTickerSchedulerRunsAndStops(t *testing.T) {
	var runs atomic.Int32
	task := TickerScheduler{}.Every(5*time.Millisecond, func() { runs.Add(1) })
	require.Eventually(t, func() bool { return runs.Load() >= 2 }, time.Second, time.Millisecond)

	task.Stop()
	task.Stop()
	after := runs.Load()
	time.Sleep(30 * time.Millisecond)
	assert.LessOrEqual(t, runs.Load(), after+1)
}

func TestMonitorWithTickerScheduler(t *testing.T) {
	expired := make(chan models.SecurityEvent, 1)
	m := NewMonitor(time.Now().Add(-time.Second), func(ev models.SecurityEvent) { expired <- ev })
	m.Start(TickerScheduler{}, 5*time.Millisecond)
	defer m.Stop()

	select {
	case ev := <-expired:
		assert.Equal(t, models.EventSessionExpired, ev.Kind)
	case <-time.After(time.Second):
		t.Fatal("expiry not emitted within one interval")
	}
}
