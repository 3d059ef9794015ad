package service

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"docguard/internal/expiry"
	"docguard/internal/integrity"
	"docguard/internal/platform/metrics"
	"docguard/internal/session/machine"
	"docguard/internal/session/models"
	"docguard/internal/telemetry"
	"docguard/internal/threat"
	"docguard/internal/watermark"
	dErrors "docguard/pkg/domain-errors"
)

const (
	eventBuffer     = 64
	deviceMarkerLen = 6
)

type runnerConfig struct {
	logger         *slog.Logger
	metrics        *metrics.Metrics
	notifier       Notifier
	telemetry      TelemetrySink
	planner        *watermark.Planner
	scheduler      expiry.Scheduler
	now            func() time.Time
	expiryInterval time.Duration
	watermarkTick  time.Duration
	threatOpts     []threat.Option
}

type command struct {
	fn   func()
	done chan struct{}
}

// Runner is the single owner of one session. Every mutation of the session
// happens on its loop goroutine; other goroutines only send events or
// commands and read the published snapshots.
type Runner struct {
	cfg        runnerConfig
	logger     *slog.Logger
	session    *models.Session
	machine    *machine.Machine
	normalizer *threat.Normalizer
	monitor    *expiry.Monitor
	tracker    *watermark.Tracker
	artifact   *integrity.Artifact
	planTask   expiry.Task

	events chan models.SecurityEvent
	cmds   chan command
	done   chan struct{}
	cancel context.CancelFunc
	onExit func(*Runner)

	decision  atomic.Pointer[models.DecisionSnapshot]
	plan      atomic.Pointer[watermark.Plan]
	published int
}

func newRunner(sess *models.Session, cfg runnerConfig, onExit func(*Runner)) *Runner {
	r := &Runner{
		cfg:     cfg,
		logger:  cfg.logger.With("session_id", sess.ID.String()),
		session: sess,
		events:  make(chan models.SecurityEvent, eventBuffer),
		cmds:    make(chan command),
		done:    make(chan struct{}),
		onExit:  onExit,
	}
	r.machine = machine.New(sess,
		machine.WithClock(cfg.now),
		machine.WithLogger(cfg.logger),
		machine.WithHardLockHook(r.onHardLock),
		machine.WithTeardownHook(r.onTeardown),
		machine.WithPageObserver(r.onPage),
	)
	r.monitor = expiry.NewMonitor(sess.ExpiresAt, r.deliver,
		expiry.WithClock(cfg.now),
		expiry.WithLogger(r.logger),
	)
	r.tracker = watermark.NewTracker(cfg.planner, sess.Identity, sess.DeviceID.Suffix(deviceMarkerLen), sess.TotalPages)

	opts := append([]threat.Option{
		threat.WithClock(cfg.now),
		threat.WithLogger(r.logger),
	}, cfg.threatOpts...)
	r.normalizer = threat.New(r.deliver, opts...)

	r.publishDecision()
	return r
}

// start launches the loop and the threat sources. Sources run from the
// Initializing state so a capture that starts during the download is seen.
func (r *Runner) start() {
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	go func() {
		if err := r.normalizer.Run(ctx); err != nil {
			r.logger.Warn("threat normalizer stopped", "error", err)
		}
	}()
	go r.loop()
}

// Done is closed once the session is torn down.
func (r *Runner) Done() <-chan struct{} {
	return r.done
}

// Decision never blocks.
func (r *Runner) Decision() models.DecisionSnapshot {
	return *r.decision.Load()
}

// Watermark returns the plan for the visible page, or false when nothing may
// be rendered.
func (r *Runner) Watermark() (watermark.Plan, bool) {
	p := r.plan.Load()
	if p == nil {
		return watermark.Plan{}, false
	}
	return *p, true
}

func (r *Runner) Info() SessionInfo {
	return SessionInfo{
		ID:         r.session.ID,
		DocumentID: r.session.DocumentID,
		ViewerID:   r.session.ViewerID,
		DeviceID:   r.session.DeviceID,
		TotalPages: r.session.TotalPages,
		ExpiresAt:  r.session.ExpiresAt,
		CreatedAt:  r.session.CreatedAt,
		Decision:   r.Decision(),
	}
}

// Events returns the security log. Safe from any goroutine.
func (r *Runner) Events() []models.SecurityEvent {
	return r.session.Log.Snapshot()
}

// deliver is the sink for every event source. It blocks until the loop takes
// the event or the session is gone.
func (r *Runner) deliver(ev models.SecurityEvent) {
	select {
	case r.events <- ev:
	case <-r.done:
	}
}

// do runs fn on the loop after every event delivered before it. It fails
// once the session is torn down.
func (r *Runner) do(ctx context.Context, fn func()) error {
	cmd := command{fn: fn, done: make(chan struct{})}
	select {
	case r.cmds <- cmd:
	case <-r.done:
		return dErrors.New(dErrors.CodeNotFound, "session closed")
	case <-ctx.Done():
		return dErrors.Wrap(ctx.Err(), dErrors.CodeCancelled, "request cancelled")
	}
	// Once accepted the command always runs; the loop closes done only after.
	<-cmd.done
	return nil
}

func (r *Runner) loop() {
	defer r.finish()
	for {
		select {
		case ev := <-r.events:
			r.handleBatch(r.drain([]models.SecurityEvent{ev}))
		case cmd := <-r.cmds:
			if pending := r.drain(nil); len(pending) > 0 {
				r.handleBatch(pending)
			}
			if !r.machine.Closed() {
				cmd.fn()
				r.afterTick()
			}
			close(cmd.done)
		}
		if r.machine.Closed() {
			return
		}
	}
}

// drain collects every event already queued. They form one tick.
func (r *Runner) drain(batch []models.SecurityEvent) []models.SecurityEvent {
	for {
		select {
		case ev := <-r.events:
			batch = append(batch, ev)
		default:
			return batch
		}
	}
}

func (r *Runner) handleBatch(batch []models.SecurityEvent) {
	for _, ev := range batch {
		if ev.Kind == models.EventForegrounded {
			// A sleeping device does not tick; resume re-checks the clock.
			if expired, ok := r.monitor.CheckNow(); ok {
				batch = append(batch, expired)
			}
			break
		}
	}
	r.machine.SubmitBatch(batch)
	r.afterTick()
}

// afterTick publishes everything derived from the session after a mutation.
func (r *Runner) afterTick() {
	for _, ev := range r.session.Log.Since(r.published) {
		r.published++
		r.cfg.metrics.IncSecurityEvent(ev.Kind.String())
		if r.cfg.telemetry != nil {
			r.cfg.telemetry.Emit(telemetry.NewRecord(r.session, ev))
		}
	}
	r.refreshPlan()
	r.publishDecision()
}

func (r *Runner) publishDecision() {
	d := r.machine.CurrentDecision()
	r.decision.Store(&d)
}

func (r *Runner) refreshPlan() {
	if !r.session.CanRender() || r.machine.Closed() {
		r.plan.Store(nil)
		return
	}
	plan, recomputed, err := r.tracker.Next(r.session.CurrentPage, r.cfg.now())
	if err != nil {
		r.logger.Error("watermark plan failed", "error", err)
		r.plan.Store(nil)
		return
	}
	if recomputed {
		r.cfg.metrics.IncWatermarkPlans()
	}
	r.plan.Store(&plan)
}

// activate attaches the downloaded artifact and moves the session to Active.
// On failure the artifact is wiped before returning.
func (r *Runner) activate(ctx context.Context, path string, verified integrity.Verified) (models.DecisionSnapshot, error) {
	var (
		decision models.DecisionSnapshot
		actErr   error
	)
	err := r.do(ctx, func() {
		r.artifact = integrity.NewArtifact(path)
		decision, actErr = r.machine.Activate(verified)
		if actErr != nil {
			r.wipe()
			return
		}
		// A capture latched during download locks inside Activate.
		if !decision.MayRender {
			return
		}
		r.monitor.Start(r.cfg.scheduler, r.cfg.expiryInterval)
		r.planTask = r.cfg.scheduler.Every(r.cfg.watermarkTick, r.tick)
	})
	if err != nil {
		_ = integrity.SecureDelete(path)
		return models.DecisionSnapshot{}, err
	}
	return decision, actErr
}

// failIntegrity locks the session for an artifact that passed the checksum
// but is still unusable.
func (r *Runner) failIntegrity(ctx context.Context, path, detail string) error {
	err := r.do(ctx, func() {
		r.artifact = integrity.NewArtifact(path)
		r.machine.SubmitEvent(models.NewSecurityEvent(models.EventIntegrityFailed, r.cfg.now(), detail))
		r.wipe()
	})
	if err != nil {
		_ = integrity.SecureDelete(path)
	}
	return err
}

// submit hands ev to the loop and waits until it has been applied.
func (r *Runner) submit(ctx context.Context, ev models.SecurityEvent) (models.DecisionSnapshot, error) {
	select {
	case r.events <- ev:
	case <-r.done:
		return r.Decision(), dErrors.New(dErrors.CodeNotFound, "session closed")
	case <-ctx.Done():
		return r.Decision(), dErrors.Wrap(ctx.Err(), dErrors.CodeCancelled, "request cancelled")
	}
	return r.sync(ctx)
}

// sync waits for every event queued so far to be applied.
func (r *Runner) sync(ctx context.Context) (models.DecisionSnapshot, error) {
	err := r.do(ctx, func() {})
	if err != nil && dErrors.HasCode(err, dErrors.CodeNotFound) {
		// Torn down by the very event we waited for.
		return r.Decision(), nil
	}
	return r.Decision(), err
}

func (r *Runner) signal(ctx context.Context, sig threat.Signal) (models.DecisionSnapshot, error) {
	select {
	case <-r.done:
		return r.Decision(), dErrors.New(dErrors.CodeNotFound, "session closed")
	default:
	}
	r.normalizer.Process(ctx, sig)
	return r.sync(ctx)
}

func (r *Runner) advancePage(ctx context.Context, page int) (models.DecisionSnapshot, error) {
	var pageErr error
	if err := r.do(ctx, func() { pageErr = r.machine.AdvancePage(page) }); err != nil {
		return r.Decision(), err
	}
	return r.Decision(), pageErr
}

// close tears the session down without an event.
func (r *Runner) close(ctx context.Context) {
	_ = r.do(ctx, r.machine.Close)
}

func (r *Runner) tick() {
	select {
	case r.cmds <- command{fn: func() {}, done: make(chan struct{})}:
	case <-r.done:
	}
}

func (r *Runner) onHardLock(sess *models.Session, reason models.LockReason) {
	r.wipe()
	r.monitor.Stop()
	r.cfg.metrics.IncHardLock(reason.String())
	if r.cfg.notifier != nil {
		r.cfg.notifier.Notify(sess.DocumentID, sess.ViewerID, sess.DeviceID, reason)
	}
}

func (r *Runner) onTeardown(*models.Session) {
	r.wipe()
}

func (r *Runner) onPage(int) {
	r.refreshPlan()
}

func (r *Runner) wipe() {
	if r.artifact == nil {
		return
	}
	if err := r.artifact.Wipe(); err != nil {
		r.logger.Error("artifact wipe failed", "error", err)
		return
	}
	r.session.WipePending = false
}

func (r *Runner) finish() {
	r.monitor.Stop()
	if r.planTask != nil {
		r.planTask.Stop()
	}
	r.wipe()
	r.plan.Store(nil)
	r.publishDecision()
	close(r.done)
	if r.cancel != nil {
		r.cancel()
	}
	if r.onExit != nil {
		r.onExit(r)
	}
}
