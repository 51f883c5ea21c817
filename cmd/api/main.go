package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/medibook/internal/api/router"
	"github.com/wolfman30/medibook/internal/app/bootstrap"
	"github.com/wolfman30/medibook/internal/appointments"
	"github.com/wolfman30/medibook/internal/audit"
	"github.com/wolfman30/medibook/internal/availability"
	appconfig "github.com/wolfman30/medibook/internal/config"
	"github.com/wolfman30/medibook/internal/conversation"
	"github.com/wolfman30/medibook/internal/messaging"
	"github.com/wolfman30/medibook/internal/observability/metrics"
	"github.com/wolfman30/medibook/internal/recommend"
	"github.com/wolfman30/medibook/internal/webchat"
	"github.com/wolfman30/medibook/pkg/logging"
)

func main() {
	cfg := appconfig.Load()
	logger := logging.NewWithFormat(cfg.LogLevel, cfg.LogFormat)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logger.Info("starting medibook API server", "env", cfg.Env, "port", cfg.Port)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server exited with error", "error", err)
		os.Exit(1)
	}
	fmt.Println("Server exited gracefully")
}

// server is the wired application. close releases everything built for it.
type server struct {
	handler  http.Handler
	registry *webchat.Registry
	close    func()
}

func buildServer(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, reg *prometheus.Registry) (*server, error) {
	m := metrics.NewBookingMetrics(reg)
	loc := cfg.Location()

	store, err := bootstrap.BuildStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	auditService := audit.NewService(store.AuditDB)

	oracle, provider, closeOracle, err := bootstrap.BuildOracle(ctx, cfg, logger)
	if err != nil {
		store.Close()
		return nil, err
	}
	logger.Info("recommendation oracle selected", "provider", provider)

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	transcripts := conversation.NewTranscriptStore(redisClient)

	sender, senderProvider := bootstrap.BuildMessageSender(cfg, logger)
	logger.Info("patient messaging configured", "provider", senderProvider)

	slots := availability.NewEngine(store.Appointments, logger,
		availability.WithLocation(loc),
		availability.WithSlotDuration(cfg.SlotDuration),
		availability.WithMetrics(m),
		availability.WithClock(time.Now),
	)
	engine := conversation.NewEngine(conversation.Deps{
		Store:       store.Appointments,
		Slots:       slots,
		Recommender: recommend.NewAdapter(oracle, logger, m),
		Notifier:    bootstrap.BuildNotifier(ctx, cfg, sender, logger),
		Audit:       auditService,
		Metrics:     m,
	}, logger,
		conversation.WithLocation(loc),
		conversation.WithCountryCode(cfg.DefaultCountryCode),
	)

	service := appointments.NewService(store.Appointments, logger,
		appointments.WithAudit(auditService),
		appointments.WithMetrics(m),
		appointments.WithLocation(loc),
	)

	registry := webchat.NewRegistry(cfg.MaxSessions, m, logger)
	chat := webchat.NewHandler(engine, registry, transcripts, webchat.Config{
		PingInterval:   cfg.PingInterval,
		TurnTimeout:    cfg.TurnTimeout,
		AllowedOrigins: cfg.CORSAllowedOrigins,
	}, logger)

	routerCfg := &router.Config{
		Logger:             logger,
		Chat:               chat,
		WhatsAppWebhook:    messaging.NewWebhookHandler(service, sender, cfg.TwilioAuthToken, cfg.TwilioWebhookURL, logger),
		MetricsHandler:     promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		Appointments:       appointments.NewHandler(service, logger),
		AdminAuthSecret:    cfg.AdminJWTSecret,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		WSConnectRate:      cfg.WSConnectRate,
		WSConnectBurst:     cfg.WSConnectBurst,
	}
	if auditService != nil {
		routerCfg.Audit = audit.NewHandler(auditService, logger)
	}
	if transcripts != nil {
		routerCfg.Transcripts = conversation.NewTranscriptHandler(transcripts, logger)
	}

	return &server{
		handler:  router.New(routerCfg),
		registry: registry,
		close: func() {
			closeOracle()
			if redisClient != nil {
				_ = redisClient.Close()
			}
			store.Close()
		},
	}, nil
}

func run(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	app, err := buildServer(ctx, cfg, logger, reg)
	if err != nil {
		return err
	}
	defer app.close()

	// WriteTimeout stays zero: hijacked WebSocket connections manage their
	// own deadlines.
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           app.handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Shutdown does not track hijacked connections, so sessions are closed
	// explicitly.
	app.registry.CloseAll()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	logger.Info("server stopped")
	return nil
}
