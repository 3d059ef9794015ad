package domain

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "docguard/pkg/domain-errors"
)

// TestParseSessionID_Invariants validates that session ids are valid,
// non-empty, non-nil UUIDs.
func TestParseSessionID_Invariants(t *testing.T) {
	t.Run("rejects empty string", func(t *testing.T) {
		_, err := ParseSessionID("")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects invalid format", func(t *testing.T) {
		_, err := ParseSessionID("not-a-uuid")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects nil UUID", func(t *testing.T) {
		_, err := ParseSessionID(uuid.Nil.String())
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("accepts valid UUID", func(t *testing.T) {
		valid := uuid.New()
		id, err := ParseSessionID(valid.String())
		require.NoError(t, err)
		assert.Equal(t, SessionID(valid), id)
		assert.Equal(t, valid.String(), id.String())
	})
}

// TestParseOpaqueIDs_TrustBoundary checks the backend-issued identifiers are
// rejected when they carry whitespace, control characters or oversized input.
func TestParseOpaqueIDs_TrustBoundary(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"empty", "", true},
		{"whitespace only", "   ", true},
		{"embedded space", "doc 1", true},
		{"null byte", "doc\x00", true},
		{"zero-width space", "doc\u200b1", true},
		{"oversized", strings.Repeat("a", 1000), true},
		{"short opaque", "B1", false},
		{"uuid-like", uuid.NewString(), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, errDoc := ParseDocumentID(tt.input)
			_, errViewer := ParseViewerID(tt.input)
			_, errDevice := ParseDeviceID(tt.input)
			if tt.wantErr {
				assert.True(t, dErrors.HasCode(errDoc, dErrors.CodeInvalidInput))
				assert.True(t, dErrors.HasCode(errViewer, dErrors.CodeInvalidInput))
				assert.True(t, dErrors.HasCode(errDevice, dErrors.CodeInvalidInput))
				return
			}
			assert.NoError(t, errDoc)
			assert.NoError(t, errViewer)
			assert.NoError(t, errDevice)
		})
	}
}

func TestDeviceIDSuffix(t *testing.T) {
	assert.Equal(t, "9f3a21", DeviceID("device-00009f3a21").Suffix(6))
	assert.Equal(t, "abc", DeviceID("abc").Suffix(6))
	assert.Equal(t, "abc", DeviceID("abc").Suffix(0))
}

func TestSessionIDText(t *testing.T) {
	sid := NewSessionID()
	b, err := json.Marshal(map[string]SessionID{"id": sid})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"`+sid.String()+`"}`, string(b))

	var back map[string]SessionID
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, sid, back["id"])

	var bad SessionID
	assert.Error(t, bad.UnmarshalText([]byte("not-a-uuid")))
}
