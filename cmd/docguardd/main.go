package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"docguard/internal/integrity"
	"docguard/internal/issuer"
	"docguard/internal/platform/config"
	"docguard/internal/platform/httpserver"
	"docguard/internal/platform/logger"
	"docguard/internal/platform/metrics"
	"docguard/internal/platform/redis"
	"docguard/internal/revocation"
	"docguard/internal/session/handler"
	"docguard/internal/session/service"
	"docguard/internal/telemetry"
	telemetrymemory "docguard/internal/telemetry/store/memory"
	telemetryredis "docguard/internal/telemetry/store/redis"
	"docguard/internal/threat"
	"docguard/internal/watermark"
	"docguard/pkg/platform/httputil"
)

// main wires high-level dependencies, exposes the agent API, and keeps the
// lifecycle small. Business logic lives in internal packages.
func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "docguardd:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.FromEnv()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logger.New(cfg.Log)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	store, closeStore, err := buildTelemetryStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()
	publisher := telemetry.NewPublisher(cfg.Telemetry.Buffer, m)
	worker := telemetry.NewWorker(store, publisher.Inbox(), log)

	// Artifacts can be large; only the wait for headers is bounded here and
	// the request context bounds the rest.
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = cfg.Issuer.Timeout
	issuerClient, err := issuer.New(cfg.Issuer.BaseURL,
		issuer.WithHTTPClient(&http.Client{Transport: transport}),
		issuer.WithLogger(log),
		issuer.WithMaxArtifactSize(cfg.Issuer.MaxArtifactSize),
	)
	if err != nil {
		return fmt.Errorf("issuer client: %w", err)
	}

	notifier := revocation.New(issuerClient,
		revocation.WithTimeout(cfg.Revocation.Timeout),
		revocation.WithLogger(log),
		revocation.WithBreaker(revocation.NewCircuitBreaker(cfg.Revocation.BreakerThreshold, cfg.Revocation.BreakerCooldown)),
		revocation.WithMetrics(revocation.NewMetrics(reg)),
	)

	trust := threat.NewPathProbe(os.DirFS(cfg.Threat.TrustRoot), cfg.Threat.TrustIndicators)

	opts := []service.Option{
		service.WithLogger(log),
		service.WithMetrics(m),
		service.WithNotifier(notifier),
		service.WithTelemetry(publisher),
		service.WithPlanner(watermark.New(
			watermark.WithProductTag(cfg.Watermark.ProductTag),
			watermark.WithOpacity(cfg.Watermark.Opacity),
			watermark.WithGrid(cfg.Watermark.Columns, cfg.Watermark.Rows),
		)),
		service.WithVerifier(integrity.NewVerifier(integrity.WithLogger(log))),
		service.WithDeviceTrust(trust),
		service.WithThreatSources(hostSources(cfg.Threat, log)),
		service.WithArtifactDir(cfg.Session.ArtifactDir),
		service.WithDebounce(cfg.Threat.Debounce),
		service.WithExpiryInterval(cfg.Session.ExpiryInterval),
		service.WithWatermarkTick(cfg.Session.WatermarkTick),
	}
	if cfg.Session.VerifyPageCount {
		opts = append(opts, service.WithPageCounter(integrity.PDFPageCounter{}))
	}
	sessions, err := service.New(issuerClient, opts...)
	if err != nil {
		return fmt.Errorf("session service: %w", err)
	}

	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]any{"status": "ok", "sessions": sessions.Count()})
	})
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	handler.New(sessions, log, cfg.Session.OpenTimeout).Register(r)

	srv, err := httpserver.New(cfg.Server, r)
	if err != nil {
		return fmt.Errorf("http server: %w", err)
	}

	workerCtx, stopWorker := context.WithCancel(context.Background())
	defer stopWorker()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting docguard agent", "addr", cfg.Server.Addr, "telemetry", cfg.Telemetry.Backend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		// Outlives gctx so the final teardown events are persisted.
		return worker.Run(workerCtx)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		var errs []error
		if err := srv.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("graceful shutdown failed: %w", err))
		}
		if err := sessions.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("session teardown: %w", err))
		}
		if err := notifier.Wait(shutdownCtx); err != nil {
			log.Warn("revocation notifications still in flight", "error", err)
		}
		stopWorker()
		return errors.Join(errs...)
	})
	return g.Wait()
}

func buildTelemetryStore(ctx context.Context, cfg *config.Config) (telemetry.Store, func(), error) {
	if cfg.Telemetry.Backend != config.TelemetryRedis {
		return telemetrymemory.New(cfg.Telemetry.PerSession), func() {}, nil
	}
	client, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return nil, nil, fmt.Errorf("redis: %w", err)
	}
	store := telemetryredis.New(client.Client, telemetryredis.WithTTL(cfg.Telemetry.TTL))
	return store, func() { _ = client.Close() }, nil
}

// hostSources gives every session its own desktop watchers.
func hostSources(cfg config.Threat, log *slog.Logger) service.SourceFactory {
	return func() []threat.Option {
		var opts []threat.Option
		if len(cfg.ScreenshotDirs) > 0 {
			opts = append(opts, threat.WithCaptureSource(threat.NewScreenshotDirSource(cfg.ScreenshotDirs, log)))
		}
		if cfg.WatchScreenSaver {
			opts = append(opts, threat.WithLifecycleSource(threat.NewScreenSaverSource(log)))
		}
		return opts
	}
}
