package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/glowdesk/salon-platform/internal/api/router"
	"github.com/glowdesk/salon-platform/internal/automation"
	"github.com/glowdesk/salon-platform/internal/cancellations"
	"github.com/glowdesk/salon-platform/internal/clock"
	appconfig "github.com/glowdesk/salon-platform/internal/config"
	"github.com/glowdesk/salon-platform/internal/directory"
	"github.com/glowdesk/salon-platform/internal/events"
	"github.com/glowdesk/salon-platform/internal/history"
	"github.com/glowdesk/salon-platform/internal/http/handlers"
	"github.com/glowdesk/salon-platform/internal/observability/metrics"
	"github.com/glowdesk/salon-platform/internal/scheduling"
	"github.com/glowdesk/salon-platform/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting salon-platform API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	if cfg.DatabaseURL == "" {
		logger.Error("DATABASE_URL is required")
		os.Exit(1)
	}

	norm, err := clock.NewNormalizer(cfg.BusinessTimezone)
	if err != nil {
		logger.Error("failed to load business timezone", "tz", cfg.BusinessTimezone, "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	// The archive and directory stores run on database/sql; they share the
	// same database through the pgx stdlib driver.
	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	bookingMetrics := metrics.NewBookingMetrics(reg)

	dirStore := directory.NewStore(db)
	rooms := scheduling.NewRoomDirectory()
	if err := rooms.Refresh(ctx, dirStore); err != nil {
		logger.Error("failed to load room directory", "error", err)
		os.Exit(1)
	}

	apptRepo := scheduling.NewRepository(pool)
	historyRepo := history.NewRepository(pool)
	outboxStore := events.NewOutboxStore(pool)
	archiveStore := cancellations.NewStore(db)
	ruleRepo := automation.NewRepository(pool)

	bookingSvc := scheduling.NewService(pool, apptRepo, historyRepo,
		outboxStore, archiveStore, rooms, clock.System(), logger, bookingMetrics)

	routerCfg := &router.Config{
		Logger:             logger,
		Appointments:       handlers.NewAppointmentsHandler(bookingSvc, historyRepo, norm, logger),
		Cancellations:      handlers.NewCancellationsHandler(archiveStore, logger),
		AutomationRules:    handlers.NewAutomationRulesHandler(ruleRepo, logger),
		AdminAuthSecret:    cfg.AdminJWTSecret,
		MetricsHandler:     promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router.New(routerCfg),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
