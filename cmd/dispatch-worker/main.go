// The dispatch worker drains the lifecycle outbox and fires automation
// rules. It runs alongside the API server so notification delivery never
// blocks a booking request.
package main

import (
	"context"
	"crypto/tls"
	"database/sql"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/glowdesk/salon-platform/internal/automation"
	"github.com/glowdesk/salon-platform/internal/clock"
	appconfig "github.com/glowdesk/salon-platform/internal/config"
	"github.com/glowdesk/salon-platform/internal/directory"
	"github.com/glowdesk/salon-platform/internal/events"
	"github.com/glowdesk/salon-platform/internal/notify"
	"github.com/glowdesk/salon-platform/internal/observability/metrics"
	"github.com/glowdesk/salon-platform/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)

	if cfg.DatabaseURL == "" {
		logger.Error("dispatch worker requires DATABASE_URL")
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

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	var dedup automation.Deduper
	if cfg.RedisAddr != "" {
		opts := &redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		}
		if cfg.RedisTLS {
			opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		dedup = automation.NewDedupStore(redis.NewClient(opts), cfg.DedupTTL)
	} else {
		logger.Warn("REDIS_ADDR unset, duplicate suppression disabled")
		dedup = automation.NewDedupStore(nil, cfg.DedupTTL)
	}

	email := buildEmailSender(ctx, cfg, logger)
	sms := buildSMSSender(cfg, logger)

	bookingMetrics := metrics.NewBookingMetrics(prometheus.NewRegistry())
	dispatcher := automation.NewDispatcher(
		automation.NewRepository(pool),
		directory.NewStore(db),
		email, sms, dedup, norm,
		automation.BusinessIdentity{
			Name:  cfg.BusinessName,
			Phone: cfg.BusinessPhone,
			Email: cfg.BusinessEmail,
		},
		logger, bookingMetrics,
	)

	deliverer := events.NewDeliverer(events.NewOutboxStore(pool), dispatcher, logger).
		WithBatchSize(int32(cfg.DispatchBatchSize)).
		WithInterval(cfg.DispatchInterval)

	go deliverer.Start(ctx)
	logger.Info("dispatch worker started",
		"interval", cfg.DispatchInterval,
		"batch_size", cfg.DispatchBatchSize,
	)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("dispatch worker shutting down")
	cancel()
	time.Sleep(2 * time.Second)
}

func buildEmailSender(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) notify.EmailSender {
	switch cfg.EmailProvider {
	case "sendgrid":
		return notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.SendGridFromEmail,
			FromName:  cfg.SendGridFromName,
		}, logger)
	case "ses":
		loadOpts := []func(*awsconfig.LoadOptions) error{
			awsconfig.WithRegion(cfg.AWSRegion),
		}
		if cfg.AWSAccessKeyID != "" && cfg.AWSSecretAccessKey != "" {
			loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider(cfg.AWSAccessKeyID, cfg.AWSSecretAccessKey, ""),
			))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
		if err != nil {
			logger.Error("failed to load AWS config", "error", err)
			os.Exit(1)
		}
		client := sesv2.NewFromConfig(awsCfg, func(o *sesv2.Options) {
			if cfg.AWSEndpointOverride != "" {
				o.BaseEndpoint = &cfg.AWSEndpointOverride
			}
		})
		return notify.NewSESSender(client, notify.SESConfig{
			FromEmail: cfg.SESFromEmail,
			FromName:  cfg.SESFromName,
		}, logger)
	default:
		logger.Warn("email provider is a stub, messages will only be logged")
		return notify.NewStubEmailSender(logger)
	}
}

func buildSMSSender(cfg *appconfig.Config, logger *logging.Logger) notify.SMSSender {
	if cfg.SMSProvider == "telnyx" {
		sender, err := notify.NewTelnyxSender(notify.TelnyxConfig{
			APIKey:     cfg.TelnyxAPIKey,
			FromNumber: cfg.TelnyxFrom,
			BaseURL:    cfg.TelnyxBaseURL,
			Timeout:    10 * time.Second,
		}, logger)
		if err != nil {
			logger.Error("failed to create telnyx sender", "error", err)
			os.Exit(1)
		}
		return sender
	}
	logger.Warn("sms provider is a stub, messages will only be logged")
	return notify.NewStubSMSSender(logger)
}
