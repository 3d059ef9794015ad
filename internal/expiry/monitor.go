package expiry

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"docguard/internal/session/models"
)

const DefaultInterval = 60 * time.Second

// Emit receives the session_expired event found by a periodic check.
type Emit func(ev models.SecurityEvent)

// Monitor watches one session's expiry. It emits session_expired exactly once
// and then stops checking.
type Monitor struct {
	expiresAt time.Time
	emit      Emit
	now       func() time.Time
	logger    *slog.Logger

	fired atomic.Bool
	mu    sync.Mutex
	task  Task
}

type Option func(*Monitor)

func WithClock(now func() time.Time) Option {
	return func(m *Monitor) {
		if now != nil {
			m.now = now
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(m *Monitor) {
		if logger != nil {
			m.logger = logger
		}
	}
}

func NewMonitor(expiresAt time.Time, emit Emit, opts ...Option) *Monitor {
	m := &Monitor{
		expiresAt: expiresAt,
		emit:      emit,
		now:       time.Now,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start schedules the periodic check. A non-positive interval uses
// DefaultInterval. Starting an already expired monitor is a no-op.
func (m *Monitor) Start(sched Scheduler, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.task != nil || m.fired.Load() {
		return
	}
	m.task = sched.Every(interval, m.tick)
}

func (m *Monitor) tick() {
	if ev, ok := m.CheckNow(); ok && m.emit != nil {
		m.emit(ev)
	}
}

// CheckNow compares the clock against the expiry. It is also called directly
// on resume from background, since a sleeping device does not tick. The
// expiry event is returned once; only the periodic check hands it to emit.
func (m *Monitor) CheckNow() (models.SecurityEvent, bool) {
	now := m.now()
	if now.Before(m.expiresAt) {
		return models.SecurityEvent{}, false
	}
	if !m.fired.CompareAndSwap(false, true) {
		return models.SecurityEvent{}, false
	}
	m.Stop()

	ev := models.NewSecurityEvent(models.EventSessionExpired, now, "grant expired at "+m.expiresAt.UTC().Format(time.RFC3339))
	m.logger.Info("session grant expired", "expires_at", m.expiresAt)
	return ev, true
}

// Stop cancels the periodic check. Safe to call more than once.
func (m *Monitor) Stop() {
	m.mu.Lock()
	task := m.task
	m.task = nil
	m.mu.Unlock()
	if task != nil {
		task.Stop()
	}
}

func (m *Monitor) Fired() bool {
	return m.fired.Load()
}
