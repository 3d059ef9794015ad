package handler

import (
	"docguard/internal/issuer"
	"docguard/internal/session/models"
	"docguard/internal/session/service"
	id "docguard/pkg/domain"
)

// DecisionResponse always carries the overlay the UI must draw.
type DecisionResponse struct {
	Decision models.DecisionSnapshot `json:"decision"`
	Overlay  models.Overlay          `json:"overlay"`
}

type SessionResponse struct {
	service.SessionInfo
	Overlay models.Overlay `json:"overlay"`
}

type EventsResponse struct {
	SessionID id.SessionID           `json:"session_id"`
	Events    []models.SecurityEvent `json:"events"`
}

type SearchResponse struct {
	Hits []issuer.SearchHit `json:"hits"`
}
