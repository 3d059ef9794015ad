package service

//go:generate mockgen -source=ports.go -destination=mocks/mocks.go -package=mocks Issuer,Notifier,TelemetrySink

import (
	"context"

	"docguard/internal/issuer"
	"docguard/internal/session/models"
	"docguard/internal/telemetry"
	id "docguard/pkg/domain"
)

// Issuer is the issuing backend as seen by the session service.
type Issuer interface {
	Issue(ctx context.Context, documentID id.DocumentID, viewerID id.ViewerID, deviceID id.DeviceID) (issuer.Grant, error)
	Download(ctx context.Context, url, dir string) (string, error)
	Search(ctx context.Context, req issuer.SearchRequest) ([]issuer.SearchHit, error)
}

// Notifier reports a hard lock to the backend. Implementations must not block.
type Notifier interface {
	Notify(documentID id.DocumentID, viewerID id.ViewerID, deviceID id.DeviceID, reason models.LockReason)
}

// TelemetrySink receives every logged security event. Emit must not block.
type TelemetrySink interface {
	Emit(rec telemetry.Record) bool
}
