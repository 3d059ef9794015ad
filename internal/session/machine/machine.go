package machine

import (
	"log/slog"
	"time"

	"docguard/internal/integrity"
	"docguard/internal/session/models"
	dErrors "docguard/pkg/domain-errors"
)

// HardLockHook runs once, on the first transition into Locked.
type HardLockHook func(sess *models.Session, reason models.LockReason)

// TeardownHook runs once, when the viewer exits the session.
type TeardownHook func(sess *models.Session)

// PageObserver is told about every accepted page change.
type PageObserver func(page int)

// Machine owns the security state of a single session. It is not safe for
// concurrent use; the caller serializes every call.
type Machine struct {
	session *models.Session
	now     func() time.Time
	logger  *slog.Logger

	onHardLock HardLockHook
	onTeardown TeardownHook
	onPage     PageObserver

	hardLockFired bool
	closed        bool
}

type Option func(*Machine)

func WithClock(now func() time.Time) Option {
	return func(m *Machine) {
		if now != nil {
			m.now = now
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(m *Machine) {
		if logger != nil {
			m.logger = logger
		}
	}
}

func WithHardLockHook(hook HardLockHook) Option {
	return func(m *Machine) {
		m.onHardLock = hook
	}
}

func WithTeardownHook(hook TeardownHook) Option {
	return func(m *Machine) {
		m.onTeardown = hook
	}
}

func WithPageObserver(observer PageObserver) Option {
	return func(m *Machine) {
		m.onPage = observer
	}
}

func New(session *models.Session, opts ...Option) *Machine {
	m := &Machine{
		session: session,
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Session exposes the owned session for reads by the serializing caller.
func (m *Machine) Session() *models.Session {
	return m.session
}

func (m *Machine) Closed() bool {
	return m.closed
}

// CurrentDecision has no side effects.
func (m *Machine) CurrentDecision() models.DecisionSnapshot {
	return models.NewDecision(m.session, m.closed)
}

// Activate moves an Initializing session to Active. Only a Verified minted by
// the integrity verifier for this session's checksum is accepted; anything
// else fails the session closed.
func (m *Machine) Activate(verified integrity.Verified) (models.DecisionSnapshot, error) {
	if m.closed {
		return m.CurrentDecision(), dErrors.New(dErrors.CodeInvalidState, "session is closed")
	}
	switch m.session.State {
	case models.StateInitializing:
	case models.StateLocked:
		return m.CurrentDecision(), dErrors.New(dErrors.CodeSessionLocked, "session is locked")
	default:
		return m.CurrentDecision(), dErrors.New(dErrors.CodeInvalidState, "session already activated")
	}

	now := m.now()
	if verified.IsZero() || verified.Checksum() != m.session.ContentChecksum {
		m.SubmitEvent(models.NewSecurityEvent(models.EventIntegrityFailed, now, "verified checksum does not match grant"))
		return m.CurrentDecision(), dErrors.New(dErrors.CodeChecksumMismatch, "artifact was not verified against the granted checksum")
	}
	if m.session.IsExpiredAt(now) {
		return m.CurrentDecision(), dErrors.New(dErrors.CodeSessionExpired, "grant expired before activation")
	}

	m.session.ApplyActivation(now)
	m.logger.Info("session activated",
		"session_id", m.session.ID.String(),
		"document_id", m.session.DocumentID.String(),
		"total_pages", m.session.TotalPages,
	)

	// A capture that started while the artifact was still loading locks as
	// soon as there is content to protect.
	if m.session.HasHardFlag() {
		m.lock(m.session.HardFlags[0], now)
	}
	return m.CurrentDecision(), nil
}

// SubmitEvent logs ev and applies its transition, if any.
func (m *Machine) SubmitEvent(ev models.SecurityEvent) models.DecisionSnapshot {
	return m.SubmitBatch([]models.SecurityEvent{ev})
}

// SubmitBatch handles every event that arrived in the same tick. All events are
// logged. The highest-severity lock transition wins, earliest arrival first
// among equals. Without a lock, background and foreground events are replayed
// in arrival order so the last lifecycle signal decides. A user exit in the
// batch is applied last.
func (m *Machine) SubmitBatch(events []models.SecurityEvent) models.DecisionSnapshot {
	if m.closed {
		if len(events) > 0 {
			m.logger.Debug("events after teardown ignored",
				"session_id", m.session.ID.String(),
				"count", len(events),
			)
		}
		return m.CurrentDecision()
	}

	var (
		winner    *models.SecurityEvent
		winnerTo  transition
		lifecycle []models.SecurityEvent
		exitFound bool
	)
	for i := range events {
		ev := events[i]
		m.session.Log.Append(ev)

		if ev.Kind == models.EventUserExit {
			exitFound = true
			continue
		}
		if ev.Kind == models.EventRecording && m.session.State == models.StateInitializing {
			m.session.AddHardFlag(models.LockReasonRecording)
		}
		if ev.Kind.IsLifecycle() {
			lifecycle = append(lifecycle, ev)
			continue
		}
		to, ok := m.next(ev.Kind)
		if !ok {
			continue
		}
		if winner == nil || ev.Kind.Severity() > winner.Kind.Severity() {
			winner = &events[i]
			winnerTo = to
		}
	}

	if winner != nil {
		m.apply(*winner, winnerTo)
	} else {
		for _, ev := range lifecycle {
			if to, ok := m.next(ev.Kind); ok {
				m.apply(ev, to)
			}
		}
	}
	if exitFound {
		m.teardown()
	}
	return m.CurrentDecision()
}

// AdvancePage moves to page n. Navigation is only possible while Active.
func (m *Machine) AdvancePage(n int) error {
	if n < 1 || n > m.session.TotalPages {
		return dErrors.New(dErrors.CodePageOutOfRange, "page out of range")
	}
	if m.closed || m.session.State != models.StateActive {
		return dErrors.New(dErrors.CodeSessionLocked, "navigation requires an active session")
	}
	if m.session.CurrentPage == n {
		return nil
	}
	m.session.CurrentPage = n
	if m.onPage != nil {
		m.onPage(n)
	}
	return nil
}

type transition struct {
	state  models.SessionState
	reason models.LockReason
}

// next is the transition table. It reports false when kind has no effect in
// the current state.
func (m *Machine) next(kind models.EventKind) (transition, bool) {
	state := m.session.State
	if state == models.StateLocked {
		return transition{}, false
	}
	locked := func(reason models.LockReason) (transition, bool) {
		return transition{state: models.StateLocked, reason: reason}, true
	}

	switch kind {
	case models.EventIntegrityFailed, models.EventRootDetected, models.EventRevoked:
		return locked(kind.LockReason())
	case models.EventScreenshot, models.EventRecording, models.EventSessionExpired:
		if state == models.StateActive || state == models.StateBlurredSoft {
			return locked(kind.LockReason())
		}
	case models.EventBackgrounded:
		if state == models.StateActive {
			return transition{state: models.StateBlurredSoft}, true
		}
	case models.EventForegrounded:
		if state == models.StateBlurredSoft && !m.session.HasHardFlag() {
			return transition{state: models.StateActive}, true
		}
	}
	return transition{}, false
}

func (m *Machine) apply(ev models.SecurityEvent, to transition) {
	switch to.state {
	case models.StateLocked:
		m.lock(to.reason, ev.Timestamp)
	case models.StateBlurredSoft:
		m.session.ApplyBlur(models.BlurReasonBackground)
		m.logger.Info("session blurred",
			"session_id", m.session.ID.String(),
			"reason", models.BlurReasonBackground,
		)
	case models.StateActive:
		m.session.ApplyResume()
		m.logger.Info("session resumed", "session_id", m.session.ID.String())
	}
}

func (m *Machine) lock(reason models.LockReason, at time.Time) {
	if at.IsZero() {
		at = m.now()
	}
	m.session.ApplyLock(reason, at)
	m.logger.Warn("session hard locked",
		"session_id", m.session.ID.String(),
		"document_id", m.session.DocumentID.String(),
		"reason", reason.String(),
	)
	if m.hardLockFired {
		return
	}
	m.hardLockFired = true
	if m.onHardLock != nil {
		m.onHardLock(m.session, reason)
	}
}

// Close tears the session down without logging an event, as on process
// shutdown or an aborted open. The teardown hook runs at most once.
func (m *Machine) Close() {
	if m.closed {
		return
	}
	m.teardown()
}

func (m *Machine) teardown() {
	m.closed = true
	m.logger.Info("session torn down", "session_id", m.session.ID.String())
	if m.onTeardown != nil {
		m.onTeardown(m.session)
	}
}
