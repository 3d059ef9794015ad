package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"docguard/internal/expiry"
	"docguard/internal/integrity"
	"docguard/internal/issuer"
	"docguard/internal/platform/metrics"
	"docguard/internal/session/models"
	"docguard/internal/threat"
	"docguard/internal/watermark"
	id "docguard/pkg/domain"
	dErrors "docguard/pkg/domain-errors"
)

const tracerName = "docguard/session/service"

// SourceFactory builds the host threat sources for one session. It is called
// once per open; returning no options means events arrive only through
// Signal.
type SourceFactory func() []threat.Option

// Service opens sessions and routes every interaction to the owning Runner.
type Service struct {
	issuer      Issuer
	verifier    *integrity.Verifier
	pageCounter integrity.PageCounter
	trust       threat.DeviceTrustSource
	sources     SourceFactory
	artifactDir string
	debounce    time.Duration
	tracer      trace.Tracer
	rc          runnerConfig

	mu       sync.RWMutex
	runners  map[id.SessionID]*Runner
	shutdown bool
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.rc.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.rc.metrics = m
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.rc.now = now
		}
	}
}

func WithScheduler(sched expiry.Scheduler) Option {
	return func(s *Service) {
		if sched != nil {
			s.rc.scheduler = sched
		}
	}
}

func WithNotifier(n Notifier) Option {
	return func(s *Service) {
		s.rc.notifier = n
	}
}

func WithTelemetry(sink TelemetrySink) Option {
	return func(s *Service) {
		s.rc.telemetry = sink
	}
}

func WithPlanner(p *watermark.Planner) Option {
	return func(s *Service) {
		if p != nil {
			s.rc.planner = p
		}
	}
}

func WithVerifier(v *integrity.Verifier) Option {
	return func(s *Service) {
		if v != nil {
			s.verifier = v
		}
	}
}

// WithPageCounter enables the page count cross-check after verification.
func WithPageCounter(pc integrity.PageCounter) Option {
	return func(s *Service) {
		s.pageCounter = pc
	}
}

func WithDeviceTrust(trust threat.DeviceTrustSource) Option {
	return func(s *Service) {
		s.trust = trust
	}
}

func WithThreatSources(factory SourceFactory) Option {
	return func(s *Service) {
		s.sources = factory
	}
}

func WithArtifactDir(dir string) Option {
	return func(s *Service) {
		if dir != "" {
			s.artifactDir = dir
		}
	}
}

func WithDebounce(d time.Duration) Option {
	return func(s *Service) {
		s.debounce = d
	}
}

func WithExpiryInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.rc.expiryInterval = d
		}
	}
}

func WithWatermarkTick(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.rc.watermarkTick = d
		}
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(s *Service) {
		if t != nil {
			s.tracer = t
		}
	}
}

func New(iss Issuer, opts ...Option) (*Service, error) {
	if iss == nil {
		return nil, errors.New("issuer is required")
	}
	s := &Service{
		issuer:      iss,
		verifier:    integrity.NewVerifier(),
		artifactDir: os.TempDir(),
		debounce:    threat.DefaultDebounce,
		tracer:      otel.Tracer(tracerName),
		runners:     make(map[id.SessionID]*Runner),
		rc: runnerConfig{
			logger:         slog.Default(),
			planner:        watermark.New(),
			scheduler:      expiry.TickerScheduler{},
			now:            time.Now,
			expiryInterval: expiry.DefaultInterval,
			watermarkTick:  10 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := os.MkdirAll(s.artifactDir, 0o700); err != nil {
		return nil, fmt.Errorf("create artifact dir: %w", err)
	}
	return s, nil
}

// Open runs the blocking pipeline: device trust check and issuance in
// parallel, download, checksum verification, page count cross-check, then
// activation. Cancelling ctx before activation abandons the session and
// wipes whatever was downloaded.
func (s *Service) Open(ctx context.Context, req OpenRequest) (SessionInfo, error) {
	start := s.rc.now()
	ctx, span := s.tracer.Start(ctx, "session.open", trace.WithAttributes(
		attribute.String("document_id", req.DocumentID.String()),
		attribute.String("device_id", req.DeviceID.String()),
	))
	defer span.End()

	info, err := s.open(ctx, span, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
		s.rc.metrics.IncOpenFailure(string(dErrors.CodeOf(err)))
		s.rc.logger.WarnContext(ctx, "session open failed",
			"document_id", req.DocumentID.String(),
			"device_id", req.DeviceID.String(),
			"error", err,
		)
		return SessionInfo{}, err
	}
	s.rc.metrics.IncSessionsOpened()
	s.rc.metrics.ObserveOpenDuration(s.rc.now().Sub(start))
	return info, nil
}

func (s *Service) open(ctx context.Context, span trace.Span, req OpenRequest) (SessionInfo, error) {
	if s.isShutdown() {
		return SessionInfo{}, dErrors.New(dErrors.CodeInvalidState, "service is shutting down")
	}

	var grant issuer.Grant
	g, gctx := errgroup.WithContext(ctx)
	if s.trust != nil {
		g.Go(func() error {
			v, err := s.trust.CheckDevice(gctx)
			if err != nil {
				// An inconclusive probe is not evidence of compromise.
				s.rc.logger.WarnContext(gctx, "device trust check failed", "error", err)
				return nil
			}
			if v.Compromised {
				return dErrors.New(dErrors.CodeDeviceCompromised, "device integrity check failed: "+strings.Join(v.Indicators, ","))
			}
			return nil
		})
	}
	g.Go(func() error {
		var err error
		grant, err = s.issuer.Issue(gctx, req.DocumentID, req.ViewerID, req.DeviceID)
		return err
	})
	if err := g.Wait(); err != nil {
		return SessionInfo{}, err
	}

	sess, err := models.NewSession(req.DocumentID, req.ViewerID, req.DeviceID, req.Identity, grant.SessionGrant(), s.rc.now())
	if err != nil {
		return SessionInfo{}, err
	}
	span.SetAttributes(attribute.String("session_id", sess.ID.String()))

	r := newRunner(sess, s.runnerConfig(), s.remove)
	r.start()
	abandon := func() { r.close(context.Background()) }

	if err := lockedBeforeActive(r.Decision()); err != nil {
		abandon()
		return SessionInfo{}, err
	}

	path, err := s.issuer.Download(ctx, grant.URL, s.artifactDir)
	if err != nil {
		abandon()
		return SessionInfo{}, err
	}

	verified, err := s.verifier.VerifyFile(ctx, path, grant.Checksum)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeChecksumMismatch) {
			// The verifier already removed the file; this records the failure
			// and notifies the backend through the hard lock.
			_, _ = r.activate(context.Background(), path, integrity.Verified{})
		}
		abandon()
		return SessionInfo{}, err
	}

	if err := lockedBeforeActive(r.Decision()); err != nil {
		_ = integrity.SecureDelete(path)
		abandon()
		return SessionInfo{}, err
	}

	if s.pageCounter != nil {
		if detail, ok := s.checkPageCount(ctx, path, grant.TotalPages); !ok {
			_ = r.failIntegrity(context.Background(), path, detail)
			abandon()
			return SessionInfo{}, dErrors.New(dErrors.CodeChecksumMismatch, detail)
		}
	}

	if err := ctx.Err(); err != nil {
		_ = integrity.SecureDelete(path)
		abandon()
		return SessionInfo{}, dErrors.Wrap(err, dErrors.CodeCancelled, "session open cancelled")
	}

	if d, err := r.activate(ctx, path, verified); err != nil {
		abandon()
		if dErrors.HasCode(err, dErrors.CodeSessionLocked) {
			if lockErr := lockedBeforeActive(d); lockErr != nil {
				return SessionInfo{}, lockErr
			}
		}
		return SessionInfo{}, err
	}

	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		abandon()
		return SessionInfo{}, dErrors.New(dErrors.CodeInvalidState, "service is shutting down")
	}
	s.runners[sess.ID] = r
	s.mu.Unlock()
	s.rc.metrics.SessionAdded()

	s.rc.logger.InfoContext(ctx, "session opened",
		"session_id", sess.ID.String(),
		"document_id", sess.DocumentID.String(),
		"expires_at", sess.ExpiresAt,
	)
	return r.Info(), nil
}

// lockedBeforeActive reports a session that a host source locked while it
// was still loading. Such a session never starts.
func lockedBeforeActive(d models.DecisionSnapshot) error {
	if d.State != models.StateLocked {
		return nil
	}
	switch d.LockReason {
	case models.LockReasonRootDetected:
		return dErrors.New(dErrors.CodeDeviceCompromised, "device integrity check failed during open")
	case models.LockReasonRevoked:
		return dErrors.New(dErrors.CodeSessionRevoked, "session revoked during open")
	case models.LockReasonIntegrityFailed:
		return dErrors.New(dErrors.CodeChecksumMismatch, "artifact integrity failed during open")
	default:
		return dErrors.New(dErrors.CodeSessionLocked, "session locked during open: "+d.LockReason.String())
	}
}

func (s *Service) checkPageCount(ctx context.Context, path string, want int) (string, bool) {
	got, err := s.pageCounter.PageCount(ctx, path)
	if err != nil {
		return "artifact is not a readable document: " + err.Error(), false
	}
	if got != want {
		return fmt.Sprintf("artifact has %d pages, grant says %d", got, want), false
	}
	return "", true
}

func (s *Service) runnerConfig() runnerConfig {
	rc := s.rc
	rc.threatOpts = []threat.Option{threat.WithDebounce(s.debounce)}
	if s.trust != nil {
		rc.threatOpts = append(rc.threatOpts, threat.WithDeviceTrust(s.trust))
	}
	if s.sources != nil {
		rc.threatOpts = append(rc.threatOpts, s.sources()...)
	}
	return rc
}

// remove runs on the runner's goroutine once it has torn down.
func (s *Service) remove(r *Runner) {
	s.mu.Lock()
	_, ok := s.runners[r.session.ID]
	delete(s.runners, r.session.ID)
	s.mu.Unlock()
	if ok {
		s.rc.metrics.SessionRemoved()
	}
}

func (s *Service) runner(sessionID id.SessionID) (*Runner, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.runners[sessionID]
	if !ok {
		return nil, dErrors.New(dErrors.CodeNotFound, "session not found")
	}
	return r, nil
}

func (s *Service) isShutdown() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.shutdown
}

// Get returns the session read model.
func (s *Service) Get(sessionID id.SessionID) (SessionInfo, error) {
	r, err := s.runner(sessionID)
	if err != nil {
		return SessionInfo{}, err
	}
	return r.Info(), nil
}

// Decision is the authoritative render gate. It never blocks.
func (s *Service) Decision(sessionID id.SessionID) (models.DecisionSnapshot, error) {
	r, err := s.runner(sessionID)
	if err != nil {
		return models.DecisionSnapshot{}, err
	}
	return r.Decision(), nil
}

// Watermark returns the plan for the visible page. It fails while the
// session may not render.
func (s *Service) Watermark(sessionID id.SessionID) (watermark.Plan, error) {
	r, err := s.runner(sessionID)
	if err != nil {
		return watermark.Plan{}, err
	}
	plan, ok := r.Watermark()
	if !ok {
		return watermark.Plan{}, dErrors.New(dErrors.CodeSessionLocked, "session may not render")
	}
	return plan, nil
}

// Events returns the security log in arrival order.
func (s *Service) Events(sessionID id.SessionID) ([]models.SecurityEvent, error) {
	r, err := s.runner(sessionID)
	if err != nil {
		return nil, err
	}
	return r.Events(), nil
}

// Signal feeds a native host signal through the session's normalizer and
// returns the decision once it has been applied.
func (s *Service) Signal(ctx context.Context, sessionID id.SessionID, sig threat.Signal) (models.DecisionSnapshot, error) {
	r, err := s.runner(sessionID)
	if err != nil {
		return models.DecisionSnapshot{}, err
	}
	return r.signal(ctx, sig)
}

// AdvancePage navigates the session. Only an Active session may navigate.
func (s *Service) AdvancePage(ctx context.Context, sessionID id.SessionID, page int) (models.DecisionSnapshot, error) {
	r, err := s.runner(sessionID)
	if err != nil {
		return models.DecisionSnapshot{}, err
	}
	return r.advancePage(ctx, page)
}

// Revoke locks the session for good and tells the backend.
func (s *Service) Revoke(ctx context.Context, sessionID id.SessionID, detail string) (models.DecisionSnapshot, error) {
	r, err := s.runner(sessionID)
	if err != nil {
		return models.DecisionSnapshot{}, err
	}
	return r.submit(ctx, models.NewSecurityEvent(models.EventRevoked, s.rc.now(), detail))
}

// Close is the viewer leaving the document. The artifact is wiped and the
// session forgotten.
func (s *Service) Close(ctx context.Context, sessionID id.SessionID) (models.DecisionSnapshot, error) {
	r, err := s.runner(sessionID)
	if err != nil {
		return models.DecisionSnapshot{}, err
	}
	d, err := r.submit(ctx, models.NewSecurityEvent(models.EventUserExit, s.rc.now(), ""))
	if err != nil {
		return d, err
	}
	select {
	case <-r.Done():
	case <-ctx.Done():
		return r.Decision(), dErrors.Wrap(ctx.Err(), dErrors.CodeCancelled, "request cancelled")
	}
	return r.Decision(), nil
}

// Search passes a text search through to the backend.
func (s *Service) Search(ctx context.Context, req issuer.SearchRequest) ([]issuer.SearchHit, error) {
	return s.issuer.Search(ctx, req)
}

// Count reports the number of open sessions.
func (s *Service) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.runners)
}

// Shutdown tears down every session and wipes every artifact. New opens are
// refused from the first call on.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.shutdown = true
	runners := make([]*Runner, 0, len(s.runners))
	for _, r := range s.runners {
		runners = append(runners, r)
	}
	s.mu.Unlock()

	for _, r := range runners {
		r.close(ctx)
	}
	for _, r := range runners {
		select {
		case <-r.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	s.rc.logger.Info("all sessions torn down", "count", len(runners))
	return nil
}
