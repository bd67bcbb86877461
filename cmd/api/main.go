package main

import (
	"context"
	"crypto/tls"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/korle-health/clinic-platform/cmd/mainconfig"
	"github.com/korle-health/clinic-platform/internal/api/router"
	"github.com/korle-health/clinic-platform/internal/booking"
	appconfig "github.com/korle-health/clinic-platform/internal/config"
	"github.com/korle-health/clinic-platform/internal/events"
	"github.com/korle-health/clinic-platform/internal/identity"
	"github.com/korle-health/clinic-platform/internal/notify"
	"github.com/korle-health/clinic-platform/internal/observability/metrics"
	"github.com/korle-health/clinic-platform/internal/payments"
	"github.com/korle-health/clinic-platform/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting clinic-platform API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.DatabaseURL == "" {
		logger.Error("DATABASE_URL is required")
		os.Exit(1)
	}
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to create pgx pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	// Reporting queries go through database/sql on the same database.
	reportDB, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to open reporting db", "error", err)
		os.Exit(1)
	}
	defer func() { _ = reportDB.Close() }()

	// Repositories
	userRepo := identity.NewRepository(pool)
	paymentRepo := payments.NewRepository(pool)
	appointmentRepo := booking.NewRepository(pool)
	outboxStore := events.NewOutboxStore(pool)

	// Metrics
	paymentMetrics := metrics.NewPaymentMetrics(prometheus.DefaultRegisterer)
	bookingMetrics := metrics.NewBookingMetrics(prometheus.DefaultRegisterer)

	// Payment providers
	registry := payments.NewRegistry(logger)
	registry.Register(payments.NewHubtelGateway(payments.HubtelConfig{
		ClientID:     cfg.HubtelClientID,
		ClientSecret: cfg.HubtelClientSecret,
		MerchantID:   cfg.HubtelMerchantID,
		CallbackURL:  cfg.HubtelCallbackURL,
		BaseURL:      cfg.HubtelBaseURL,
	}, logger))
	registry.Register(payments.NewPaystackGateway(payments.PaystackConfig{
		SecretKey:  cfg.PaystackSecretKey,
		BaseURL:    cfg.PaystackBaseURL,
		SuccessURL: cfg.PaystackSuccess,
	}, logger))
	registry.Register(payments.NewLocalRails(logger))

	paymentService := payments.NewService(registry, paymentRepo, userRepo, logger).
		WithMetrics(paymentMetrics).
		WithDefaultCurrency(cfg.BookingCurrency)

	if cfg.RedisAddr != "" {
		opts := &redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword}
		if cfg.RedisTLS {
			opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		checker := payments.NewVelocityChecker(redis.NewClient(opts), payments.VelocityConfig{
			MaxAttemptsPerPhone: cfg.MaxPaymentAttemptsPerPhone,
			AttemptWindow:       cfg.PaymentAttemptWindow,
			Enabled:             true,
		}, logger)
		paymentService = paymentService.WithVelocityChecker(checker)
	}

	// Notifications: SendGrid first, SES fallback, WhatsApp alongside.
	var emailSender notify.EmailSender
	if sg := notify.NewSendGridSender(notify.SendGridConfig{
		APIKey:    cfg.SendGridAPIKey,
		FromEmail: cfg.SendGridFromEmail,
		FromName:  cfg.SendGridFromName,
	}, logger); sg != nil {
		emailSender = sg
	} else if cfg.SESFromEmail != "" {
		awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
		if err != nil {
			logger.Error("failed to load AWS config", "error", err)
			os.Exit(1)
		}
		if ses := notify.NewSESSender(sesv2.NewFromConfig(awsCfg), notify.SESConfig{
			FromEmail: cfg.SESFromEmail,
		}, logger); ses != nil {
			emailSender = ses
		}
	}
	var whatsapp notify.WhatsAppSender
	if wa := notify.NewGraphWhatsAppSender(notify.WhatsAppConfig{
		Token:   cfg.WhatsAppToken,
		PhoneID: cfg.WhatsAppPhoneID,
		BaseURL: cfg.WhatsAppBaseURL,
	}, logger); wa != nil {
		whatsapp = wa
	}
	notifier := notify.NewService(emailSender, whatsapp, userRepo, logger)

	// Prerequisite gate
	var gate booking.PrerequisiteGate
	if cfg.EligibilityBaseURL != "" {
		gate = booking.NewHTTPGate(cfg.EligibilityBaseURL, logger)
	} else {
		logger.Warn("ELIGIBILITY_BASE_URL not set, booking prerequisites are not enforced")
		gate = booking.StaticGate{Decision: booking.Decision{CanProceed: true}}
	}

	bookingService := booking.NewService(gate, paymentRepo, appointmentRepo, booking.Policy{
		FeePesewas:     cfg.BookingFeePesewas,
		ConflictWindow: cfg.ConflictWindow,
		CancelNotice:   cfg.CancelNoticeWindow,
	}, logger).
		WithOutbox(outboxStore).
		WithNotifier(notifier).
		WithMetrics(bookingMetrics)

	// Outbox deliverer
	deliverer := events.NewDeliverer(outboxStore, events.NewLogHandler(logger), logger).
		WithBatchSize(int32(cfg.OutboxBatchSize)).
		WithInterval(cfg.OutboxInterval)
	go deliverer.Run(ctx)

	// Handlers
	poller := payments.NewPoller(cfg.SettlementPollInterval, cfg.SettlementPollAttempts, logger)
	paymentsHandler := payments.NewHandler(paymentService, poller, logger).WithMetrics(paymentMetrics)
	bookingHandler := booking.NewHandler(bookingService, logger)
	adminReports := payments.NewAdminReportsHandler(reportDB, logger)

	r := router.New(&router.Config{
		Logger:             logger,
		PaymentsHandler:    paymentsHandler,
		BookingHandler:     bookingHandler,
		AdminReports:       adminReports,
		MetricsHandler:     promhttp.Handler(),
		JWTSecret:          cfg.JWTSecret,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute, // settlement long-poll can hold the connection
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
