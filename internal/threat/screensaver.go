package threat

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/godbus/dbus/v5"
)

const (
	screenSaverInterface = "org.freedesktop.ScreenSaver"
	screenSaverMember    = "ActiveChanged"
	screenSaverSource    = "screensaver"
)

// ScreenSaverSource maps the session bus screen saver signal to lifecycle
// signals: the screen locking or blanking counts as backgrounding.
type ScreenSaverSource struct {
	now    func() time.Time
	logger *slog.Logger
}

func NewScreenSaverSource(logger *slog.Logger) *ScreenSaverSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &ScreenSaverSource{now: time.Now, logger: logger}
}

func (s *ScreenSaverSource) WatchLifecycle(ctx context.Context, out chan<- Signal) error {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return fmt.Errorf("connecting to session bus: %w", err)
	}
	defer conn.Close()

	if err := conn.AddMatchSignal(
		dbus.WithMatchInterface(screenSaverInterface),
		dbus.WithMatchMember(screenSaverMember),
	); err != nil {
		return fmt.Errorf("subscribing to screen saver: %w", err)
	}

	ch := make(chan *dbus.Signal, 8)
	conn.Signal(ch)
	defer conn.RemoveSignal(ch)

	for {
		select {
		case <-ctx.Done():
			return nil
		case raw, ok := <-ch:
			if !ok {
				return nil
			}
			sig, ok := parseScreenSaverSignal(raw, s.now())
			if !ok {
				continue
			}
			select {
			case out <- sig:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

func parseScreenSaverSignal(raw *dbus.Signal, at time.Time) (Signal, bool) {
	if raw == nil || raw.Name != screenSaverInterface+"."+screenSaverMember || len(raw.Body) == 0 {
		return Signal{}, false
	}
	active, ok := raw.Body[0].(bool)
	if !ok {
		return Signal{}, false
	}
	kind := NativeAppForeground
	if active {
		kind = NativeAppBackground
	}
	return Signal{Source: screenSaverSource, Kind: kind, At: at}, true
}
