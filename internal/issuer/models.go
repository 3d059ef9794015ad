package issuer

import (
	"time"

	"docguard/internal/integrity"
	"docguard/internal/session/models"
)

type IssueRequest struct {
	DocumentID string `json:"documentId"`
	ViewerID   string `json:"viewerId"`
	DeviceID   string `json:"deviceId"`
}

type issueResponse struct {
	URL            string `json:"url"`
	ChecksumSHA256 string `json:"checksumSha256"`
	ExpiresAt      string `json:"expiresAt"`
	TotalPages     int    `json:"totalPages"`
}

// Grant is a fully parsed issuance response.
type Grant struct {
	URL        string
	Checksum   integrity.Checksum
	ExpiresAt  time.Time
	TotalPages int
}

func (g Grant) SessionGrant() models.Grant {
	return models.Grant{
		ContentChecksum: g.Checksum,
		ExpiresAt:       g.ExpiresAt,
		TotalPages:      g.TotalPages,
	}
}

type RevokeRequest struct {
	DocumentID string `json:"documentId"`
	ViewerID   string `json:"viewerId"`
	DeviceID   string `json:"deviceId"`
	Reason     string `json:"reason"`
}

type RevokeResponse struct {
	OK bool `json:"ok"`
}

// SearchRequest pages are optional; zero means unbounded.
type SearchRequest struct {
	DocumentID string
	Query      string
	From       int
	To         int
}

type SearchHit struct {
	Page    int    `json:"page"`
	Snippet string `json:"snippet"`
}
