package service

import (
	"time"

	"docguard/internal/session/models"
	"docguard/internal/watermark"
	id "docguard/pkg/domain"
)

// OpenRequest asks for a new viewing session on this device.
type OpenRequest struct {
	DocumentID id.DocumentID
	ViewerID   id.ViewerID
	DeviceID   id.DeviceID
	Identity   watermark.Identity
}

// SessionInfo is the read model handed to callers. It never carries the
// artifact path or document bytes.
type SessionInfo struct {
	ID         id.SessionID            `json:"session_id"`
	DocumentID id.DocumentID           `json:"document_id"`
	ViewerID   id.ViewerID             `json:"viewer_id"`
	DeviceID   id.DeviceID             `json:"device_id"`
	TotalPages int                     `json:"total_pages"`
	ExpiresAt  time.Time               `json:"expires_at"`
	CreatedAt  time.Time               `json:"created_at"`
	Decision   models.DecisionSnapshot `json:"decision"`
}
