package threat

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	pstrings "docguard/pkg/platform/strings"
)

const screenshotDirSource = "screenshot_dir"

var imageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".webp": true,
	".bmp":  true,
	".gif":  true,
	".heic": true,
}

// DefaultScreenshotDirs lists the folders desktop screenshot tools write to.
func DefaultScreenshotDirs() []string {
	return []string{
		"~/Pictures/Screenshots",
		"~/Pictures",
		"~/Desktop",
	}
}

// ScreenshotDirSource reports a screenshot whenever a new image file appears
// in one of the watched folders.
type ScreenshotDirSource struct {
	dirs   []string
	now    func() time.Time
	logger *slog.Logger
}

// NewScreenshotDirSource expands "~/" against the user's home directory and
// drops duplicates.
func NewScreenshotDirSource(dirs []string, logger *slog.Logger) *ScreenshotDirSource {
	if logger == nil {
		logger = slog.Default()
	}
	home, _ := os.UserHomeDir()
	return &ScreenshotDirSource{
		dirs:   pstrings.DedupePaths(dirs, home),
		now:    time.Now,
		logger: logger,
	}
}

func (s *ScreenshotDirSource) Dirs() []string {
	return append([]string(nil), s.dirs...)
}

func (s *ScreenshotDirSource) WatchCapture(ctx context.Context, out chan<- Signal) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating screenshot watcher: %w", err)
	}
	defer watcher.Close()

	watched := 0
	for _, dir := range s.dirs {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			s.logger.DebugContext(ctx, "screenshot dir unavailable", "dir", dir)
			continue
		}
		if err := watcher.Add(dir); err != nil {
			s.logger.WarnContext(ctx, "watching screenshot dir failed", "dir", dir, "error", err)
			continue
		}
		watched++
	}
	if watched == 0 {
		return fmt.Errorf("no screenshot dirs could be watched")
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			sig, ok := s.signalFor(ev)
			if !ok {
				continue
			}
			select {
			case out <- sig:
			case <-ctx.Done():
				return nil
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.WarnContext(ctx, "screenshot watcher error", "error", err)
		}
	}
}

func (s *ScreenshotDirSource) signalFor(ev fsnotify.Event) (Signal, bool) {
	if !ev.Has(fsnotify.Create) {
		return Signal{}, false
	}
	if !IsScreenshotFile(ev.Name) {
		return Signal{}, false
	}
	return Signal{
		Source: screenshotDirSource,
		Kind:   NativeScreenshotTaken,
		At:     s.now(),
		Detail: filepath.Base(ev.Name),
	}, true
}

// IsScreenshotFile reports whether name looks like a finished image file.
// Hidden and partial files written by capture tools are skipped.
func IsScreenshotFile(name string) bool {
	base := filepath.Base(name)
	if strings.HasPrefix(base, ".") {
		return false
	}
	return imageExtensions[strings.ToLower(filepath.Ext(base))]
}
