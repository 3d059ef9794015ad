package models

import (
	"time"

	"docguard/internal/integrity"
	"docguard/internal/watermark"
	id "docguard/pkg/domain"
	dErrors "docguard/pkg/domain-errors"
)

// Session is one open document on one device for one viewer. It is owned by
// exactly one state machine; nothing else mutates it.
type Session struct {
	ID         id.SessionID
	DocumentID id.DocumentID
	ViewerID   id.ViewerID
	DeviceID   id.DeviceID
	Identity   watermark.Identity

	TotalPages  int
	CurrentPage int

	ContentChecksum integrity.Checksum
	ExpiresAt       time.Time

	State      SessionState
	LockReason LockReason
	BlurReason BlurReason
	// HardFlags latches capture conditions seen before activation so that a
	// recording already running when content appears still locks.
	HardFlags []LockReason

	CreatedAt   time.Time
	ActivatedAt *time.Time
	LockedAt    *time.Time
	WipePending bool

	Log *EventLog
}

// Grant is the server-issued part of a session.
type Grant struct {
	ContentChecksum integrity.Checksum
	ExpiresAt       time.Time
	TotalPages      int
}

// NewSession builds an Initializing session from an issued grant.
func NewSession(documentID id.DocumentID, viewerID id.ViewerID, deviceID id.DeviceID, identity watermark.Identity, grant Grant, now time.Time) (*Session, error) {
	if documentID == "" || viewerID == "" || deviceID == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "document, viewer and device ids are required")
	}
	if grant.TotalPages < 1 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "grant must cover at least one page")
	}
	if grant.ContentChecksum.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "grant checksum required")
	}
	if grant.ExpiresAt.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "grant expiry required")
	}
	return &Session{
		ID:              id.NewSessionID(),
		DocumentID:      documentID,
		ViewerID:        viewerID,
		DeviceID:        deviceID,
		Identity:        identity,
		TotalPages:      grant.TotalPages,
		CurrentPage:     1,
		ContentChecksum: grant.ContentChecksum,
		ExpiresAt:       grant.ExpiresAt,
		State:           StateInitializing,
		CreatedAt:       now,
		Log:             NewEventLog(),
	}, nil
}

// IsHardLocked reports whether the session reached its absorbing state.
func (s *Session) IsHardLocked() bool {
	return s.State == StateLocked
}

// CanRender is true only while Active; every other state means the UI must
// draw an opaque overlay instead of content.
func (s *Session) CanRender() bool {
	return s.State == StateActive
}

func (s *Session) IsExpiredAt(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

func (s *Session) HasHardFlag() bool {
	return len(s.HardFlags) > 0
}

func (s *Session) AddHardFlag(reason LockReason) {
	for _, r := range s.HardFlags {
		if r == reason {
			return
		}
	}
	s.HardFlags = append(s.HardFlags, reason)
}

func (s *Session) ApplyActivation(now time.Time) {
	s.State = StateActive
	s.ActivatedAt = &now
}

func (s *Session) ApplyLock(reason LockReason, now time.Time) {
	s.State = StateLocked
	s.LockReason = reason
	s.BlurReason = BlurReasonNone
	s.LockedAt = &now
	s.WipePending = true
}

func (s *Session) ApplyBlur(reason BlurReason) {
	s.State = StateBlurredSoft
	s.BlurReason = reason
}

func (s *Session) ApplyResume() {
	s.State = StateActive
	s.BlurReason = BlurReasonNone
}
