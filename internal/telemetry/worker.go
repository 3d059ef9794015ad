package telemetry

import (
	"context"
	"log/slog"
	"time"
)

const drainTimeout = 2 * time.Second

// Worker consumes records from the publisher and persists them. A failing
// store is logged; telemetry never stops the engine.
type Worker struct {
	store  Store
	inbox  <-chan Record
	logger *slog.Logger
}

func NewWorker(store Store, inbox <-chan Record, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{store: store, inbox: inbox, logger: logger}
}

// Run persists records until ctx is done, then flushes what is already
// buffered.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.drain()
			return nil
		case rec := <-w.inbox:
			w.persist(ctx, rec)
		}
	}
}

func (w *Worker) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	for {
		select {
		case rec := <-w.inbox:
			w.persist(ctx, rec)
		default:
			return
		}
	}
}

func (w *Worker) persist(ctx context.Context, rec Record) {
	if err := w.store.Append(ctx, rec); err != nil {
		w.logger.WarnContext(ctx, "failed to persist telemetry record",
			"session_id", rec.SessionID,
			"kind", string(rec.Kind),
			"error", err,
		)
	}
}
