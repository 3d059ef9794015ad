package models

import (
	"fmt"
	"sync"
	"time"
)

// EventKind is the canonical security event vocabulary. Host callbacks of any
// shape are normalized into one of these before reaching the state machine.
type EventKind string

const (
	EventScreenshot      EventKind = "screenshot"
	EventRecording       EventKind = "recording"
	EventBackgrounded    EventKind = "backgrounded"
	EventForegrounded    EventKind = "foregrounded"
	EventIntegrityFailed EventKind = "integrity_failed"
	EventRootDetected    EventKind = "root_detected"
	EventSessionExpired  EventKind = "session_expired"
	EventRevoked         EventKind = "revoked"
	EventUserExit        EventKind = "user_exit"
)

var eventSeverity = map[EventKind]int{
	EventIntegrityFailed: 4,
	EventRootDetected:    4,
	EventScreenshot:      3,
	EventRecording:       3,
	EventSessionExpired:  2,
	EventRevoked:         2,
	EventBackgrounded:    1,
	EventForegrounded:    1,
	EventUserExit:        0,
}

// AllEventKinds lists the canonical kinds in severity order.
func AllEventKinds() []EventKind {
	return []EventKind{
		EventIntegrityFailed,
		EventRootDetected,
		EventScreenshot,
		EventRecording,
		EventSessionExpired,
		EventRevoked,
		EventBackgrounded,
		EventForegrounded,
		EventUserExit,
	}
}

func ParseEventKind(s string) (EventKind, error) {
	k := EventKind(s)
	if _, ok := eventSeverity[k]; !ok {
		return "", fmt.Errorf("unknown event kind %q", s)
	}
	return k, nil
}

// Severity ranks simultaneous events; the highest wins a tick.
func (k EventKind) Severity() int {
	return eventSeverity[k]
}

// IsLifecycle reports whether k is a soft background or foreground change.
func (k EventKind) IsLifecycle() bool {
	return k == EventBackgrounded || k == EventForegrounded
}

// LockReason is the hard-lock reason this kind produces, if any.
func (k EventKind) LockReason() LockReason {
	switch k {
	case EventScreenshot:
		return LockReasonScreenshot
	case EventRecording:
		return LockReasonRecording
	case EventIntegrityFailed:
		return LockReasonIntegrityFailed
	case EventRootDetected:
		return LockReasonRootDetected
	case EventSessionExpired:
		return LockReasonSessionExpired
	case EventRevoked:
		return LockReasonRevoked
	default:
		return LockReasonNone
	}
}

func (k EventKind) String() string { return string(k) }

// SecurityEvent is immutable once created; pass it by value.
type SecurityEvent struct {
	Kind      EventKind `json:"kind"`
	Timestamp time.Time `json:"timestamp"`
	Detail    string    `json:"detail,omitempty"`
}

func NewSecurityEvent(kind EventKind, at time.Time, detail string) SecurityEvent {
	return SecurityEvent{Kind: kind, Timestamp: at, Detail: detail}
}

// EventLog is the append-only security record of a session. Writers are
// serialized by the session owner; readers may snapshot from any goroutine.
type EventLog struct {
	mu      sync.RWMutex
	entries []SecurityEvent
}

func NewEventLog() *EventLog {
	return &EventLog{}
}

func (l *EventLog) Append(ev SecurityEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, ev)
}

// Snapshot returns a copy of every entry in arrival order.
func (l *EventLog) Snapshot() []SecurityEvent {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]SecurityEvent(nil), l.entries...)
}

func (l *EventLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Since returns a copy of the entries appended after the first n.
func (l *EventLog) Since(n int) []SecurityEvent {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if n < 0 {
		n = 0
	}
	if n >= len(l.entries) {
		return nil
	}
	return append([]SecurityEvent(nil), l.entries[n:]...)
}
