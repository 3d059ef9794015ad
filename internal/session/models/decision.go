package models

import (
	"fmt"
)

// DecisionSnapshot is the authoritative answer to "may content be shown now".
type DecisionSnapshot struct {
	MayRender   bool         `json:"may_render"`
	State       SessionState `json:"state"`
	LockReason  LockReason   `json:"lock_reason,omitempty"`
	BlurReason  BlurReason   `json:"blur_reason,omitempty"`
	CurrentPage int          `json:"current_page"`
	TotalPages  int          `json:"total_pages"`
	// Dismissible is true only for the soft blur, which clears on a clean
	// return to foreground.
	Dismissible bool `json:"dismissible"`
	// Closed means the session was torn down (user exit or shutdown).
	Closed bool `json:"closed"`
}

// NewDecision derives the snapshot for s.
func NewDecision(s *Session, closed bool) DecisionSnapshot {
	return DecisionSnapshot{
		MayRender:   s.CanRender() && !closed,
		State:       s.State,
		LockReason:  s.LockReason,
		BlurReason:  s.BlurReason,
		CurrentPage: s.CurrentPage,
		TotalPages:  s.TotalPages,
		Dismissible: s.State == StateBlurredSoft && !closed,
		Closed:      closed,
	}
}

// Overlay is what the UI must draw over the page area when content is withheld.
type Overlay struct {
	Code        string `json:"code"`
	Blocking    bool   `json:"blocking"`
	Dismissible bool   `json:"dismissible"`
}

// OverlayFor maps a decision to its overlay. Every LockReason has an explicit
// case; an unknown reason is an error and callers must fall back to a fully
// blocking overlay.
func OverlayFor(d DecisionSnapshot) (Overlay, error) {
	if d.Closed {
		return Overlay{Code: "session_closed", Blocking: true}, nil
	}
	switch d.State {
	case StateActive:
		return Overlay{}, nil
	case StateInitializing:
		return Overlay{Code: "initializing", Blocking: true}, nil
	case StateBlurredSoft:
		return Overlay{Code: "backgrounded", Blocking: true, Dismissible: true}, nil
	case StateLocked:
		switch d.LockReason {
		case LockReasonScreenshot:
			return Overlay{Code: "locked_screenshot", Blocking: true}, nil
		case LockReasonRecording:
			return Overlay{Code: "locked_recording", Blocking: true}, nil
		case LockReasonRevoked:
			return Overlay{Code: "locked_revoked", Blocking: true}, nil
		case LockReasonIntegrityFailed:
			return Overlay{Code: "locked_integrity_failed", Blocking: true}, nil
		case LockReasonRootDetected:
			return Overlay{Code: "locked_root_detected", Blocking: true}, nil
		case LockReasonSessionExpired:
			return Overlay{Code: "locked_session_expired", Blocking: true}, nil
		}
		return Overlay{Code: "locked", Blocking: true}, fmt.Errorf("no overlay for lock reason %q", d.LockReason)
	}
	return Overlay{Code: "locked", Blocking: true}, fmt.Errorf("no overlay for state %q", d.State)
}
