package threat

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsScreenshotFile(t *testing.T) {
	cases := map[string]bool{
		"/home/u/Pictures/Screenshot from 2026-03-01.png": true,
		"shot.JPG":          true,
		"capture.webp":      true,
		".shot.png.partial": false,
		".hidden.png":       false,
		"notes.txt":         false,
		"archive.png.gz":    false,
	}
	for name, want := range cases {
		assert.Equal(t, want, IsScreenshotFile(name), name)
	}
}

func TestScreenshotDirSignalFor(t *testing.T) {
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	src := NewScreenshotDirSource(nil, nil)
	src.now = func() time.Time { return at }

	sig, ok := src.signalFor(fsnotify.Event{Name: "/tmp/shots/a.png", Op: fsnotify.Create})
	require.True(t, ok)
	assert.Equal(t, NativeScreenshotTaken, sig.Kind)
	assert.Equal(t, "a.png", sig.Detail)
	assert.Equal(t, at, sig.At)

	_, ok = src.signalFor(fsnotify.Event{Name: "/tmp/shots/a.png", Op: fsnotify.Write})
	assert.False(t, ok)
	_, ok = src.signalFor(fsnotify.Event{Name: "/tmp/shots/a.txt", Op: fsnotify.Create})
	assert.False(t, ok)
}

func TestScreenshotDirSourceDedupesDirs(t *testing.T) {
	dir := t.TempDir()
	src := NewScreenshotDirSource([]string{dir, dir + "/", " " + dir}, nil)
	assert.Equal(t, []string{dir}, src.Dirs())
}

func TestScreenshotDirSourceWatchesNewImages(t *testing.T) {
	dir := t.TempDir()
	src := NewScreenshotDirSource([]string{dir, filepath.Join(dir, "missing")}, nil)
	out := make(chan Signal, 4)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- src.WatchCapture(ctx, out) }()

	// The watcher is registered asynchronously; keep creating files until one
	// is observed.
	var got Signal
	require.Eventually(t, func() bool {
		name := filepath.Join(dir, time.Now().Format("150405.000000000")+".png")
		_ = os.WriteFile(name, []byte("png"), 0o600)
		select {
		case got = <-out:
			return true
		case <-time.After(20 * time.Millisecond):
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, NativeScreenshotTaken, got.Kind)

	cancel()
	assert.NoError(t, <-done)
}

func TestScreenshotDirSourceFailsWithoutDirs(t *testing.T) {
	src := NewScreenshotDirSource([]string{filepath.Join(t.TempDir(), "absent")}, nil)
	err := src.WatchCapture(context.Background(), make(chan Signal))
	assert.Error(t, err)
}

func TestParseScreenSaverSignal(t *testing.T) {
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	name := screenSaverInterface + "." + screenSaverMember

	sig, ok := parseScreenSaverSignal(&dbus.Signal{Name: name, Body: []interface{}{true}}, at)
	require.True(t, ok)
	assert.Equal(t, NativeAppBackground, sig.Kind)
	assert.Equal(t, at, sig.At)

	sig, ok = parseScreenSaverSignal(&dbus.Signal{Name: name, Body: []interface{}{false}}, at)
	require.True(t, ok)
	assert.Equal(t, NativeAppForeground, sig.Kind)

	_, ok = parseScreenSaverSignal(&dbus.Signal{Name: "org.example.Other", Body: []interface{}{true}}, at)
	assert.False(t, ok)
	_, ok = parseScreenSaverSignal(&dbus.Signal{Name: name, Body: []interface{}{"yes"}}, at)
	assert.False(t, ok)
	_, ok = parseScreenSaverSignal(&dbus.Signal{Name: name}, at)
	assert.False(t, ok)
	_, ok = parseScreenSaverSignal(nil, at)
	assert.False(t, ok)
}

func TestPathProbe(t *testing.T) {
	t.Run("clean device", func(t *testing.T) {
		probe := NewPathProbe(fstest.MapFS{"usr/bin/ls": {}, "etc/apt/sources.list": {}}, nil)
		verdict, err := probe.CheckDevice(context.Background())
		require.NoError(t, err)
		assert.False(t, verdict.Compromised)
		assert.Empty(t, verdict.Indicators)
	})

	t.Run("rooted device", func(t *testing.T) {
		probe := NewPathProbe(fstest.MapFS{
			"system/xbin/su":  {},
			"data/adb/magisk": {Mode: 0o755 | os.ModeDir},
		}, nil)
		verdict, err := probe.CheckDevice(context.Background())
		require.NoError(t, err)
		assert.True(t, verdict.Compromised)
		assert.ElementsMatch(t, []string{"system/xbin/su", "data/adb/magisk"}, verdict.Indicators)
	})

	t.Run("custom indicators", func(t *testing.T) {
		probe := NewPathProbe(fstest.MapFS{"opt/hook.so": {}}, []string{"opt/hook.so"})
		verdict, err := probe.CheckDevice(context.Background())
		require.NoError(t, err)
		assert.True(t, verdict.Compromised)
	})

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := NewPathProbe(fstest.MapFS{}, nil).CheckDevice(ctx)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestChannelSourceStopsOnClose(t *testing.T) {
	in := make(chan Signal, 1)
	out := make(chan Signal, 1)
	in <- Signal{Kind: NativeScreenshotTaken}
	close(in)

	err := ChannelSource{C: in}.WatchCapture(context.Background(), out)
	require.NoError(t, err)
	assert.Equal(t, NativeScreenshotTaken, (<-out).Kind)
}

func TestTranslateAndParse(t *testing.T) {
	_, ok := Translate(NativeRecordingStopped)
	assert.False(t, ok)
	k, ok := ParseNativeKind("app_inactive")
	require.True(t, ok)
	assert.Equal(t, NativeAppInactive, k)
	_, ok = ParseNativeKind("bogus")
	assert.False(t, ok)
}
