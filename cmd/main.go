package main

import (
	"context"
	"log"
	"net"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/sakashimaa/checkout-pipeline/internal/domain"
	"github.com/sakashimaa/checkout-pipeline/internal/jobstatus"
	"github.com/sakashimaa/checkout-pipeline/internal/metrics"
	"github.com/sakashimaa/checkout-pipeline/internal/notification"
	"github.com/sakashimaa/checkout-pipeline/internal/payment"
	"github.com/sakashimaa/checkout-pipeline/internal/repository"
	"github.com/sakashimaa/checkout-pipeline/internal/service"
	httpTransport "github.com/sakashimaa/checkout-pipeline/internal/transport/http"
	"github.com/sakashimaa/checkout-pipeline/internal/transport/http/handler"
	kafkaTransport "github.com/sakashimaa/checkout-pipeline/internal/transport/kafka"
	"github.com/sakashimaa/checkout-pipeline/pkg/config"
	"github.com/sakashimaa/checkout-pipeline/pkg/db"
	"github.com/sakashimaa/checkout-pipeline/pkg/kafka"
	"github.com/sakashimaa/checkout-pipeline/pkg/mylogger"
	outboxRepository "github.com/sakashimaa/checkout-pipeline/pkg/outbox/repository"
	"github.com/sakashimaa/checkout-pipeline/pkg/outbox/worker"
	"github.com/sakashimaa/checkout-pipeline/pkg/utils"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.uber.org/zap"
	googleGrpc "google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf(".env not found: %v\n", err)
	}

	cfg := config.MustLoad()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, err := utils.InitTracer(ctx, utils.TracerConfig{
		ServiceName: cfg.ServiceName,
		Environment: cfg.Env,
		Endpoint:    cfg.Tracing.Endpoint,
	})
	if err != nil {
		log.Fatalf("failed to init tracer: %v", err)
	}

	logger, err := config.NewLogger(cfg.LoggerConfig())
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	if cfg.Postgres.Migrations != "" {
		if err := db.Migrate(cfg.Postgres.Migrations, cfg.Postgres.URL); err != nil {
			log.Fatalf("failed to migrate: %v", err)
		}
	}

	pool, err := db.NewPostgresDB(ctx, cfg.Postgres)
	if err != nil {
		log.Fatalf("failed to create pool: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})

	producer, err := kafka.NewProducer(cfg.Kafka.Brokers, logger)
	if err != nil {
		log.Fatalf("error creating kafka producer: %v", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	repos := service.Repositories{
		Users:     repository.NewUserRepository(logger),
		Carts:     repository.NewCartRepository(logger),
		Coupons:   repository.NewCouponRepository(logger),
		Inventory: repository.NewInventoryRepository(logger),
		Orders:    repository.NewOrderRepository(logger),
	}
	outboxRepo := outboxRepository.NewOutboxRepository()
	statuses := jobstatus.NewRedisStore(redisClient, cfg.Redis.StatusTTL)

	observers := []notification.Observer{notification.NewPushObserver(producer, cfg.Kafka.PushTopic)}
	if cfg.SMTP.Host != "" {
		observers = append(observers, notification.NewEmailObserver(notification.NewSMTPMailer(cfg.SMTP, logger)))
	} else {
		mylogger.Warn(ctx, logger, "SMTP host not configured, email notifications disabled")
	}
	fanout := notification.NewFanout(logger, m, cfg.Notification.ObserverTimeout, observers...)

	payments := payment.NewRegistry()
	if cfg.Payment.StripeSecretKey != "" {
		stripeCfg := payment.StripeConfig{
			SecretKey:  cfg.Payment.StripeSecretKey,
			Currency:   cfg.Payment.Currency,
			SuccessURL: cfg.Payment.SuccessURL,
			CancelURL:  cfg.Payment.CancelURL,
			Timeout:    cfg.Payment.Timeout,
		}
		stripeClient := payment.NewStripeClient(stripeCfg)
		payments.Register(domain.PaymentMethodCard, payment.NewStripeStrategy(stripeClient.CheckoutSessions, stripeCfg, logger))
	} else {
		mylogger.Warn(ctx, logger, "Stripe key not configured, card orders get no payment link")
	}

	intake := service.NewIntakeService(pool, logger, repos, outboxRepo, statuses, m, cfg.Kafka.JobsTopic)
	processor := service.NewOrderProcessor(pool, logger, repos, payments, fanout, m, cfg.Payment.Timeout)
	reconciler := service.NewReconciler(pool, logger, repos, fanout, m, service.ReconcilerConfig{
		LookupAttempts: cfg.Reconciler.LookupAttempts,
		LookupBackoff:  cfg.Reconciler.LookupBackoff,
	})

	outboxProcessor := worker.NewOutboxProcessor(pool, outboxRepo, producer, logger, cfg.Kafka.OutboxBatch)
	go outboxProcessor.Start(ctx)

	jobConsumer := kafkaTransport.NewJobConsumer(processor, statuses, producer, m, logger, kafkaTransport.JobConsumerConfig{
		Brokers:      cfg.Kafka.Brokers,
		GroupID:      cfg.Kafka.GroupID,
		Topic:        cfg.Kafka.JobsTopic,
		DLQTopic:     cfg.Kafka.DLQTopic,
		MaxAttempts:  cfg.Worker.MaxAttempts,
		RetryBackoff: cfg.Worker.RetryBackoff,
	})
	go func() {
		if err := jobConsumer.Start(ctx); err != nil {
			mylogger.Error(ctx, logger, "Job consumer stopped", zap.Error(err))
			stop()
		}
	}()

	pingRedis := func(ctx context.Context) error {
		return redisClient.Ping(ctx).Err()
	}

	app := httpTransport.NewApp(cfg.HTTP.Timeout)
	httpTransport.RegisterRoutes(app, &httpTransport.Handlers{
		Checkout: handler.NewCheckoutHandler(intake, statuses, logger),
		Webhook:  handler.NewWebhookHandler(payment.NewStripeVerifier(cfg.Payment.StripeWebhookSecret), reconciler, logger),
		Health:   handler.NewHealthHandler(map[string]handler.Check{"postgres": pool.Ping, "redis": pingRedis}),
	}, registry, httpTransport.LimiterConfig{
		Max:        cfg.Limiter.Max,
		Expiration: cfg.Limiter.Expiration,
	})

	go func() {
		mylogger.Info(ctx, logger, "HTTP server listening", zap.String("port", cfg.HTTP.Port))
		if err := app.Listen(cfg.HTTP.Port); err != nil {
			log.Fatalf("Error listening on HTTP port %v: %v\n", cfg.HTTP.Port, err)
		}
	}()

	lis, err := net.Listen("tcp", cfg.GRPC.Port)
	if err != nil {
		log.Fatalf("Error listening on %s: %v", cfg.GRPC.Port, err)
	}

	grpcServer := googleGrpc.NewServer(googleGrpc.StatsHandler(otelgrpc.NewServerHandler()))
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus(cfg.ServiceName, healthpb.HealthCheckResponse_SERVING)

	go func() {
		mylogger.Info(ctx, logger, "gRPC health server listening", zap.String("port", cfg.GRPC.Port))
		if err := grpcServer.Serve(lis); err != nil {
			log.Fatalf("Error serving gRPC: %v", err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	mylogger.Info(shutdownCtx, logger, "Shutting down checkout service")

	healthServer.Shutdown()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		mylogger.Warn(shutdownCtx, logger, "Error shutting down HTTP app", zap.Error(err))
	}
	grpcServer.GracefulStop()

	if err := fanout.Wait(shutdownCtx); err != nil {
		mylogger.Warn(shutdownCtx, logger, "Notifications still in flight at shutdown", zap.Error(err))
	}

	if err := producer.Close(); err != nil {
		mylogger.Warn(shutdownCtx, logger, "Error closing kafka producer", zap.Error(err))
	}
	if err := redisClient.Close(); err != nil {
		mylogger.Warn(shutdownCtx, logger, "Error closing redis client", zap.Error(err))
	}
	pool.Close()

	if err := tp.Shutdown(shutdownCtx); err != nil {
		mylogger.Warn(shutdownCtx, logger, "Failed to shut down telemetry", zap.Error(err))
	}
}
