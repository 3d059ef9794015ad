package threat

import (
	"time"

	"docguard/internal/session/models"
)

// NativeKind is the raw callback vocabulary reported by host platforms.
type NativeKind string

const (
	NativeScreenshotTaken   NativeKind = "screenshot_taken"
	NativeRecordingStarted  NativeKind = "recording_started"
	NativeRecordingStopped  NativeKind = "recording_stopped"
	NativeAppBackground     NativeKind = "app_background"
	NativeAppInactive       NativeKind = "app_inactive"
	NativeAppForeground     NativeKind = "app_foreground"
	NativeDeviceCompromised NativeKind = "device_compromised"
)

// Signal is one native callback as delivered by a source.
type Signal struct {
	Source string     `json:"source"`
	Kind   NativeKind `json:"kind"`
	At     time.Time  `json:"at"`
	Detail string     `json:"detail,omitempty"`
}

// Translate maps a native signal kind onto the canonical event vocabulary.
// It reports false for signals that carry no security meaning.
func Translate(kind NativeKind) (models.EventKind, bool) {
	switch kind {
	case NativeScreenshotTaken:
		return models.EventScreenshot, true
	case NativeRecordingStarted:
		return models.EventRecording, true
	case NativeAppBackground, NativeAppInactive:
		return models.EventBackgrounded, true
	case NativeAppForeground:
		return models.EventForegrounded, true
	case NativeDeviceCompromised:
		return models.EventRootDetected, true
	default:
		return "", false
	}
}

func ParseNativeKind(s string) (NativeKind, bool) {
	k := NativeKind(s)
	switch k {
	case NativeScreenshotTaken, NativeRecordingStarted, NativeRecordingStopped,
		NativeAppBackground, NativeAppInactive, NativeAppForeground, NativeDeviceCompromised:
		return k, true
	}
	return "", false
}
