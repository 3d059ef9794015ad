package revocation

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"docguard/internal/session/models"
	id "docguard/pkg/domain"
)

const DefaultTimeout = 3 * time.Second

// Revoker is the issuing backend's revoke endpoint.
type Revoker interface {
	Revoke(ctx context.Context, documentID id.DocumentID, viewerID id.ViewerID, deviceID id.DeviceID, reason models.LockReason) error
}

// Notifier tells the issuing backend that a session ended. It is a courtesy:
// local enforcement never waits for it and its failures never reach callers.
type Notifier struct {
	client  Revoker
	timeout time.Duration
	logger  *slog.Logger
	breaker *CircuitBreaker
	metrics *Metrics

	wg sync.WaitGroup
}

type Option func(*Notifier)

func WithTimeout(d time.Duration) Option {
	return func(n *Notifier) {
		if d > 0 {
			n.timeout = d
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(n *Notifier) {
		if logger != nil {
			n.logger = logger
		}
	}
}

func WithBreaker(cb *CircuitBreaker) Option {
	return func(n *Notifier) {
		if cb != nil {
			n.breaker = cb
		}
	}
}

func WithMetrics(m *Metrics) Option {
	return func(n *Notifier) {
		n.metrics = m
	}
}

func New(client Revoker, opts ...Option) *Notifier {
	n := &Notifier{
		client:  client,
		timeout: DefaultTimeout,
		logger:  slog.Default(),
		breaker: NewCircuitBreaker(0, 0),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Notify sends one revoke call in the background. There is no retry, and the
// call is made even while the backend is known to be down.
func (n *Notifier) Notify(documentID id.DocumentID, viewerID id.ViewerID, deviceID id.DeviceID, reason models.LockReason) {
	if n.client == nil {
		return
	}

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				n.breaker.RecordFailure()
				n.metrics.IncOutcome(OutcomeFailed)
				n.logger.Error("revocation panicked", "panic", r)
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
		defer cancel()

		if err := n.client.Revoke(ctx, documentID, viewerID, deviceID, reason); err != nil {
			knownDown := n.breaker.RecordFailure()
			n.metrics.IncOutcome(OutcomeFailed)
			n.metrics.SetCircuitBreakerState(n.breaker.IsOpen())
			level := slog.LevelWarn
			if knownDown {
				level = slog.LevelDebug
			}
			n.logger.Log(ctx, level, "revocation failed",
				"document_id", documentID.String(),
				"device_id", deviceID.String(),
				"reason", reason.String(),
				"backend_down", knownDown,
				"error", err,
			)
			return
		}
		n.breaker.RecordSuccess()
		n.metrics.IncOutcome(OutcomeSent)
		n.metrics.SetCircuitBreakerState(false)
		n.logger.Info("revocation sent",
			"document_id", documentID.String(),
			"reason", reason.String(),
		)
	}()
}

// Wait blocks until in-flight notifications finish or ctx ends.
func (n *Notifier) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		n.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
