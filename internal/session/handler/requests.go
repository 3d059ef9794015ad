package handler

import (
	"strconv"
	"strings"
	"time"

	"docguard/internal/issuer"
	"docguard/internal/session/service"
	"docguard/internal/threat"
	"docguard/internal/watermark"
	id "docguard/pkg/domain"
	dErrors "docguard/pkg/domain-errors"
)

type OpenSessionRequest struct {
	DocumentID    string `json:"document_id"`
	ViewerID      string `json:"viewer_id"`
	DeviceID      string `json:"device_id"`
	DisplayName   string `json:"display_name"`
	ContactHandle string `json:"contact_handle"`
}

func (r *OpenSessionRequest) Normalize() {
	r.DocumentID = strings.TrimSpace(r.DocumentID)
	r.ViewerID = strings.TrimSpace(r.ViewerID)
	r.DeviceID = strings.TrimSpace(r.DeviceID)
	r.DisplayName = strings.TrimSpace(r.DisplayName)
	r.ContactHandle = strings.TrimSpace(r.ContactHandle)
}

// ToService validates the ids at the trust boundary.
func (r *OpenSessionRequest) ToService() (service.OpenRequest, error) {
	documentID, err := id.ParseDocumentID(r.DocumentID)
	if err != nil {
		return service.OpenRequest{}, err
	}
	viewerID, err := id.ParseViewerID(r.ViewerID)
	if err != nil {
		return service.OpenRequest{}, err
	}
	deviceID, err := id.ParseDeviceID(r.DeviceID)
	if err != nil {
		return service.OpenRequest{}, err
	}
	return service.OpenRequest{
		DocumentID: documentID,
		ViewerID:   viewerID,
		DeviceID:   deviceID,
		Identity: watermark.Identity{
			DisplayName:   r.DisplayName,
			ContactHandle: r.ContactHandle,
		},
	}, nil
}

// SignalRequest carries one native callback from the host shell.
type SignalRequest struct {
	Source string     `json:"source"`
	Kind   string     `json:"kind"`
	At     *time.Time `json:"at,omitempty"`
	Detail string     `json:"detail,omitempty"`
}

func (r *SignalRequest) ToSignal() (threat.Signal, error) {
	kind, ok := threat.ParseNativeKind(strings.TrimSpace(r.Kind))
	if !ok {
		return threat.Signal{}, dErrors.New(dErrors.CodeInvalidInput, "unknown signal kind")
	}
	source := strings.TrimSpace(r.Source)
	if source == "" {
		source = "host"
	}
	sig := threat.Signal{Source: source, Kind: kind, Detail: r.Detail}
	if r.At != nil {
		sig.At = *r.At
	}
	return sig, nil
}

type PageRequest struct {
	Page int `json:"page"`
}

type RevokeRequest struct {
	Detail string `json:"detail"`
}

func searchRequestFrom(documentID, query, from, to string) (issuer.SearchRequest, error) {
	req := issuer.SearchRequest{
		DocumentID: strings.TrimSpace(documentID),
		Query:      strings.TrimSpace(query),
	}
	if req.DocumentID == "" || req.Query == "" {
		return req, dErrors.New(dErrors.CodeBadRequest, "documentId and query are required")
	}
	var err error
	if req.From, err = optionalPage(from); err != nil {
		return req, err
	}
	if req.To, err = optionalPage(to); err != nil {
		return req, err
	}
	if req.From > 0 && req.To > 0 && req.From > req.To {
		return req, dErrors.New(dErrors.CodeBadRequest, "from must not exceed to")
	}
	return req, nil
}

func optionalPage(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, dErrors.New(dErrors.CodeBadRequest, "page bounds must be positive integers")
	}
	return n, nil
}
