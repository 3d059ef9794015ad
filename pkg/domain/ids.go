package domain

import (
	"strings"
	"unicode"

	"github.com/google/uuid"

	dErrors "docguard/pkg/domain-errors"
)

// maxOpaqueIDLength bounds identifiers issued by the backend.
const maxOpaqueIDLength = 128

// SessionID identifies one open document session on this device.
type SessionID uuid.UUID

// NewSessionID returns a fresh random session id.
func NewSessionID() SessionID {
	return SessionID(uuid.New())
}

// ParseSessionID validates a session id at a trust boundary.
func ParseSessionID(s string) (SessionID, error) {
	if strings.TrimSpace(s) == "" {
		return SessionID{}, dErrors.New(dErrors.CodeInvalidInput, "session id required")
	}
	parsed, err := uuid.Parse(s)
	if err != nil {
		return SessionID{}, dErrors.New(dErrors.CodeInvalidInput, "invalid session id")
	}
	if parsed == uuid.Nil {
		return SessionID{}, dErrors.New(dErrors.CodeInvalidInput, "invalid session id")
	}
	return SessionID(parsed), nil
}

func (id SessionID) String() string { return uuid.UUID(id).String() }

func (id SessionID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

func (id SessionID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *SessionID) UnmarshalText(b []byte) error {
	parsed, err := ParseSessionID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// DocumentID, ViewerID and DeviceID are opaque identifiers assigned by the
// issuing backend. They are immutable for the lifetime of a session.
type (
	DocumentID string
	ViewerID   string
	DeviceID   string
)

func ParseDocumentID(s string) (DocumentID, error) {
	v, err := parseOpaque("document id", s)
	return DocumentID(v), err
}

func ParseViewerID(s string) (ViewerID, error) {
	v, err := parseOpaque("viewer id", s)
	return ViewerID(v), err
}

func ParseDeviceID(s string) (DeviceID, error) {
	v, err := parseOpaque("device id", s)
	return DeviceID(v), err
}

func (id DocumentID) String() string { return string(id) }
func (id ViewerID) String() string   { return string(id) }
func (id DeviceID) String() string   { return string(id) }

// Suffix returns the last n characters of the device id, used where a short
// human-readable device marker is needed.
func (id DeviceID) Suffix(n int) string {
	r := []rune(string(id))
	if n <= 0 || len(r) <= n {
		return string(id)
	}
	return string(r[len(r)-n:])
}

func parseOpaque(what, s string) (string, error) {
	if strings.TrimSpace(s) == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, what+" required")
	}
	if len(s) > maxOpaqueIDLength {
		return "", dErrors.New(dErrors.CodeInvalidInput, what+" too long")
	}
	for _, r := range s {
		if unicode.IsControl(r) || unicode.IsSpace(r) || unicode.Is(unicode.Cf, r) {
			return "", dErrors.New(dErrors.CodeInvalidInput, "invalid "+what)
		}
	}
	return s, nil
}
