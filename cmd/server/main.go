package main

import (
	"context"
	"errors"
	netHttp "net/http"
	"os/signal"
	"syscall"
	"time"

	"travel-backoffice/config"
	"travel-backoffice/db"
	"travel-backoffice/http"
	"travel-backoffice/http/handlers"
	"travel-backoffice/http/middleware"
	"travel-backoffice/logger"
	"travel-backoffice/metrics"
	"travel-backoffice/repository"
	"travel-backoffice/services"
	"travel-backoffice/services/kafka"
	"travel-backoffice/services/razorpay"
)

func main() {
	// Load configuration
	config.LoadConfig()
	cfg := config.AppConfig

	logger.SetDefault(logger.New(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat}))
	metrics.Register()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize database
	conn, err := db.InitDB(ctx, cfg)
	if err != nil {
		logger.Fatal("Error initializing database: %v", err)
	}
	defer db.Close()

	bookingRepo := repository.NewBookingRepository(conn)
	webhookRepo := repository.NewWebhookRepository(conn)

	if n, err := bookingRepo.CountPaidUnconfirmed(ctx); err != nil {
		logger.Warn("Could not verify booking states: %v", err)
	} else if n > 0 {
		logger.Warn("%d bookings are Paid but not Confirmed", n)
	}

	if !cfg.RazorpayConfigured() {
		logger.Warn("Razorpay credentials not configured, payment endpoints will answer with a configuration error")
	} else if cfg.CallbackURL() == "" {
		logger.Warn("APP_BASE_URL not set, payment links are created without a callback URL")
	}
	provider := razorpay.NewClient(razorpay.Options{
		KeyID:     cfg.RazorpayKeyID,
		KeySecret: cfg.RazorpayKeySecret,
		Timeout:   cfg.RazorpayTimeout,
	})

	// Redis is optional; without it webhook replays are caught by the conditional updates only
	redisClient := services.NewRedisClient(cfg)
	if redisClient != nil {
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Warn("Redis at %s not reachable, webhook de-duplication degraded: %v", cfg.RedisAddr, err)
		}
	}
	deduper := services.NewDeduper(redisClient, cfg.WebhookDedupeTTL)

	smtp, err := services.NewSMTPMailer(cfg)
	if err != nil {
		logger.Warn("SMTP disabled: %v", err)
	}
	var direct services.Mailer
	if smtp != nil {
		direct = smtp
	}

	// Kafka is optional; without brokers events are dropped and emails are sent inline
	brokers := cfg.KafkaBrokerList()
	dlqStore := kafka.NewDLQStore(conn)
	if w := kafka.NewWriter(brokers); w != nil {
		dlqStore.WithTopic(w, cfg.KafkaDLQTopic)
	}
	producer := kafka.NewProducer(kafka.NewWriter(brokers), dlqStore)
	defer producer.Close()

	var publisher services.EventPublisher
	if producer.Enabled() {
		publisher = producer
		kafka.EnsureTopics(brokers, []string{cfg.KafkaBookingTopic, cfg.KafkaEmailTopic, cfg.KafkaDLQTopic})
	}

	consumer := kafka.NewConsumer(kafka.NewReader(brokers, cfg.KafkaEmailTopic, cfg.KafkaGroupID), dlqStore)
	consumer.Register(services.EventEmailSend, services.HandleEmailEvent(direct))
	retrier := kafka.NewRetrier(dlqStore, consumer, producer, cfg.KafkaEmailTopic)

	tasks := services.NewTasks()
	events := services.NewEvents(publisher, cfg.KafkaBookingTopic)
	notifier := services.NewNotifier(services.NewEmailQueue(publisher, cfg.KafkaEmailTopic, direct), cfg.PaymentCurrency)
	confirmer := services.NewConfirmer(bookingRepo, events, notifier, tasks)

	issuer := services.NewIssuer(provider, bookingRepo, events, notifier, tasks, services.IssuerOptions{
		Currency:    cfg.PaymentCurrency,
		CallbackURL: cfg.CallbackURL(),
	})
	resolver := services.NewResolver(provider, bookingRepo, confirmer, cfg.MatchTieBreak)
	callbacks := services.NewCallbackService(bookingRepo, provider, confirmer, services.CallbackOptions{
		AppBaseURL:       cfg.AppBaseURL,
		KeySecret:        cfg.RazorpayKeySecret,
		RequireSignature: cfg.CallbackRequireSignature,
		TieBreak:         cfg.MatchTieBreak,
	})
	if cfg.RazorpayWebhookSecret == "" {
		logger.Warn("RAZORPAY_WEBHOOK_SECRET not set, all webhook deliveries will be rejected")
	}
	webhooks := services.NewWebhookService(cfg.RazorpayWebhookSecret, bookingRepo, webhookRepo, deduper, confirmer, cfg.MatchTieBreak)

	statusLimit := middleware.NewRateLimiter(cfg.StatusCheckRPS, cfg.StatusCheckBurst, cfg.TrustedProxyList()...)
	go statusLimit.RunSweeper(ctx, time.Minute, 10*time.Minute)

	deps := http.Deps{
		Payments:    handlers.NewPaymentHandler(issuer, resolver, callbacks, webhooks),
		Bookings:    handlers.NewBookingHandler(services.NewBookingService(bookingRepo), cfg.ExportDir),
		DB:          conn,
		StatusLimit: statusLimit,
	}
	if producer.Enabled() {
		deps.DLQ = handlers.NewDLQHandler(dlqStore, retrier)
		go consumer.Run(ctx)
		go retrier.RunAutoRetry(ctx, time.Minute)
	}

	server := &netHttp.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           http.NewRouter(deps),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	go func() {
		logger.Info("Server starting on %s", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, netHttp.ErrServerClosed) {
			logger.Fatal("Server error: %v", err)
		}
	}()

	// Wait for shutdown signal
	<-ctx.Done()
	logger.Info("Shutdown signal received, draining requests...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown: %v", err)
	}

	tasks.Wait()
	if err := consumer.Close(); err != nil {
		logger.Error("Error closing Kafka consumer: %v", err)
	}
	logger.Info("Server shutdown complete")
}
