package threat

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"docguard/internal/session/models"
)

const (
	DefaultDebounce = 250 * time.Millisecond
	defaultBuffer   = 64
)

// Sink receives canonical events. It must not block for long.
type Sink func(ev models.SecurityEvent)

// Normalizer turns native callbacks from every source into canonical security
// events and forwards each physical occurrence exactly once.
type Normalizer struct {
	sink      Sink
	capture   ScreenCaptureSource
	lifecycle AppLifecycleSource
	trust     DeviceTrustSource
	debounce  time.Duration
	now       func() time.Time
	logger    *slog.Logger
	signals   chan Signal

	mu        sync.Mutex
	forwarded map[models.EventKind]time.Time
}

type Option func(*Normalizer)

func WithCaptureSource(src ScreenCaptureSource) Option {
	return func(n *Normalizer) { n.capture = src }
}

func WithLifecycleSource(src AppLifecycleSource) Option {
	return func(n *Normalizer) { n.lifecycle = src }
}

// WithDeviceTrust enables the trust re-check on every foreground resume.
func WithDeviceTrust(src DeviceTrustSource) Option {
	return func(n *Normalizer) { n.trust = src }
}

func WithDebounce(d time.Duration) Option {
	return func(n *Normalizer) {
		if d >= 0 {
			n.debounce = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(n *Normalizer) {
		if now != nil {
			n.now = now
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(n *Normalizer) {
		if logger != nil {
			n.logger = logger
		}
	}
}

func WithBuffer(size int) Option {
	return func(n *Normalizer) {
		if size > 0 {
			n.signals = make(chan Signal, size)
		}
	}
}

func New(sink Sink, opts ...Option) *Normalizer {
	n := &Normalizer{
		sink:     sink,
		debounce: DefaultDebounce,
		now:      time.Now,
		logger:   slog.Default(),
		signals:  make(chan Signal, defaultBuffer),

		forwarded: make(map[models.EventKind]time.Time),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Run fans every configured source into the normalizer until ctx is done.
// A failing source is logged and does not stop the others.
func (n *Normalizer) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	if n.capture != nil {
		g.Go(func() error {
			if err := n.capture.WatchCapture(gctx, n.signals); err != nil {
				n.logger.WarnContext(gctx, "capture source stopped", "error", err)
			}
			return nil
		})
	}
	if n.lifecycle != nil {
		g.Go(func() error {
			if err := n.lifecycle.WatchLifecycle(gctx, n.signals); err != nil {
				n.logger.WarnContext(gctx, "lifecycle source stopped", "error", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case sig := <-n.signals:
				n.Process(gctx, sig)
			}
		}
	})
	return g.Wait()
}

// Push hands a signal to a running normalizer.
func (n *Normalizer) Push(ctx context.Context, sig Signal) error {
	select {
	case n.signals <- sig:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Process translates, debounces and forwards a single signal synchronously.
// It reports whether anything was forwarded.
func (n *Normalizer) Process(ctx context.Context, sig Signal) bool {
	kind, ok := Translate(sig.Kind)
	if !ok {
		n.logger.DebugContext(ctx, "signal ignored", "source", sig.Source, "kind", string(sig.Kind))
		return false
	}
	at := sig.At
	if at.IsZero() {
		at = n.now()
	}
	if n.suppress(kind, at) {
		n.logger.DebugContext(ctx, "signal debounced", "source", sig.Source, "kind", string(sig.Kind))
		return false
	}

	if kind == models.EventForegrounded && n.trust != nil {
		verdict, err := n.trust.CheckDevice(ctx)
		switch {
		case err != nil:
			n.logger.WarnContext(ctx, "device trust check on resume failed", "error", err)
		case verdict.Compromised:
			n.sink(models.NewSecurityEvent(models.EventRootDetected, at, strings.Join(verdict.Indicators, ",")))
		}
	}

	n.sink(models.NewSecurityEvent(kind, at, sig.Detail))
	return true
}

// suppress reports whether kind was already forwarded inside the debounce
// window. Background and foreground share one window: each clears the other,
// so a fast round trip is never collapsed and the last lifecycle change always
// gets through.
func (n *Normalizer) suppress(kind models.EventKind, at time.Time) bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	if last, ok := n.forwarded[kind]; ok && at.Sub(last) < n.debounce {
		return true
	}
	n.forwarded[kind] = at
	switch kind {
	case models.EventBackgrounded:
		delete(n.forwarded, models.EventForegrounded)
	case models.EventForegrounded:
		delete(n.forwarded, models.EventBackgrounded)
	}
	return false
}
