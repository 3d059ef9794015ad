package threat

import (
	"context"
)

// ScreenCaptureSource reports screenshots and recording state changes.
type ScreenCaptureSource interface {
	WatchCapture(ctx context.Context, out chan<- Signal) error
}

// AppLifecycleSource reports foreground and background transitions.
type AppLifecycleSource interface {
	WatchLifecycle(ctx context.Context, out chan<- Signal) error
}

// DeviceTrustSource runs root and jailbreak heuristics on demand.
type DeviceTrustSource interface {
	CheckDevice(ctx context.Context) (Verdict, error)
}

// Verdict is the outcome of a device trust check.
type Verdict struct {
	Compromised bool
	Indicators  []string
}

// ChannelSource relays signals a host adapter writes to C. It serves as both
// a capture and a lifecycle source.
type ChannelSource struct {
	C <-chan Signal
}

func (s ChannelSource) WatchCapture(ctx context.Context, out chan<- Signal) error {
	return s.relay(ctx, out)
}

func (s ChannelSource) WatchLifecycle(ctx context.Context, out chan<- Signal) error {
	return s.relay(ctx, out)
}

func (s ChannelSource) relay(ctx context.Context, out chan<- Signal) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case sig, ok := <-s.C:
			if !ok {
				return nil
			}
			select {
			case out <- sig:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

// StaticTrust always returns the same verdict.
type StaticTrust Verdict

func (s StaticTrust) CheckDevice(context.Context) (Verdict, error) {
	return Verdict(s), nil
}
