package models

import (
	"fmt"
)

// SessionState is where a document session sits in its lifecycle.
type SessionState string

const (
	StateInitializing SessionState = "initializing"
	StateActive       SessionState = "active"
	StateBlurredSoft  SessionState = "blurred_soft"
	StateLocked       SessionState = "locked"
)

func (s SessionState) String() string { return string(s) }

// LockReason says why a session was hard-locked. The set is closed: every
// consumer that maps reasons to behaviour switches over AllLockReasons.
type LockReason string

const (
	LockReasonNone            LockReason = ""
	LockReasonScreenshot      LockReason = "screenshot"
	LockReasonRecording       LockReason = "recording"
	LockReasonRevoked         LockReason = "revoked"
	LockReasonIntegrityFailed LockReason = "integrity_failed"
	LockReasonRootDetected    LockReason = "root_detected"
	LockReasonSessionExpired  LockReason = "session_expired"
)

// AllLockReasons lists every hard-lock reason.
func AllLockReasons() []LockReason {
	return []LockReason{
		LockReasonScreenshot,
		LockReasonRecording,
		LockReasonRevoked,
		LockReasonIntegrityFailed,
		LockReasonRootDetected,
		LockReasonSessionExpired,
	}
}

func ParseLockReason(s string) (LockReason, error) {
	for _, r := range AllLockReasons() {
		if string(r) == s {
			return r, nil
		}
	}
	return LockReasonNone, fmt.Errorf("unknown lock reason %q", s)
}

func (r LockReason) String() string { return string(r) }

func (r LockReason) IsNone() bool { return r == LockReasonNone }

// BlurReason says why a session is soft-blurred. Only backgrounding blurs.
type BlurReason string

const (
	BlurReasonNone       BlurReason = ""
	BlurReasonBackground BlurReason = "background"
)
