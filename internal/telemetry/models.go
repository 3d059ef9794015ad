package telemetry

import (
	"context"
	"time"

	"docguard/internal/session/models"
	id "docguard/pkg/domain"
)

// Record is one logged security event, flattened for diagnostics sinks.
// It never carries document content or viewer identity beyond ids.
type Record struct {
	SessionID  string           `json:"session_id"`
	DocumentID string           `json:"document_id"`
	DeviceID   string           `json:"device_id"`
	Kind       models.EventKind `json:"kind"`
	Timestamp  time.Time        `json:"timestamp"`
	Detail     string           `json:"detail,omitempty"`
	// State and LockReason describe the session after the event's tick.
	State      models.SessionState `json:"state"`
	LockReason models.LockReason   `json:"lock_reason,omitempty"`
}

// NewRecord pairs ev with the session it was logged against.
func NewRecord(sess *models.Session, ev models.SecurityEvent) Record {
	return Record{
		SessionID:  sess.ID.String(),
		DocumentID: sess.DocumentID.String(),
		DeviceID:   sess.DeviceID.String(),
		Kind:       ev.Kind,
		Timestamp:  ev.Timestamp,
		Detail:     ev.Detail,
		State:      sess.State,
		LockReason: sess.LockReason,
	}
}

// Store persists telemetry records.
type Store interface {
	Append(ctx context.Context, rec Record) error
	ListBySession(ctx context.Context, sessionID id.SessionID) ([]Record, error)
}
