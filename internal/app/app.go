package app

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	healthcheck "github.com/vladislavdragonenkov/mvshop/internal/health"
	"github.com/vladislavdragonenkov/mvshop/internal/httpx"
	"github.com/vladislavdragonenkov/mvshop/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/mvshop/internal/redisx"
	"github.com/vladislavdragonenkov/mvshop/internal/service/idempotency"
	"github.com/vladislavdragonenkov/mvshop/internal/service/notification"
	"github.com/vladislavdragonenkov/mvshop/internal/service/outbox"
	"github.com/vladislavdragonenkov/mvshop/internal/service/payment"
	"github.com/vladislavdragonenkov/mvshop/internal/service/workflow"
	"github.com/vladislavdragonenkov/mvshop/internal/version"
)

// consumerMaxRetries — число повторов обработки события уведомлений
// до отправки в DLQ.
const consumerMaxRetries = 3

func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")

	deps, err := initRuntimeDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if deps.closeFn != nil {
		defer func() {
			if err := deps.closeFn(); err != nil {
				logger.WithError(err).Warn("failed to close storage")
			}
		}()
	}

	// NOTE: Using the mock gateway for development/demo purposes.
	// In production, replace with a real payment provider client.
	gateway := payment.NewRetryableGateway(
		payment.NewMockGateway(),
		payment.DefaultRetryConfig(),
		logger.WithField("layer", "payment"),
	)
	engine := workflow.NewEngine(deps.uow, gateway, logger.WithField("layer", "workflow"))

	// Redis для дедупликации consumer-а (опционально)
	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redisx.New(cfg.RedisAddr)
		defer func() { _ = rdb.Close() }()
		logger.WithField("addr", cfg.RedisAddr).Info("redis client initialized")
	}

	// Kafka: публикация outbox-событий и consumer уведомлений (опционально)
	kafkaProducer, err := initKafkaProducer(cfg.KafkaBrokers, logger)
	if err != nil {
		logger.WithError(err).Warn("continuing without kafka")
	}

	var notificationConsumer *kafka.Consumer
	if kafkaProducer != nil {
		publisher := kafka.NewOutboxPublisher(kafkaProducer, kafka.TopicOrderEvents)
		dlqPublisher := kafka.NewOutboxPublisher(kafkaProducer, kafka.TopicDeadLetterQueue)

		worker := outbox.NewWorker(deps.outboxRepo, publisher,
			outbox.WithLogger(logger.WithField("layer", "outbox")),
			outbox.WithDLQPublisher(dlqPublisher),
			outbox.WithPollInterval(cfg.OutboxPollInterval),
			outbox.WithBatchSize(cfg.OutboxBatchSize),
			outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
			outbox.WithRetryBaseDelay(cfg.OutboxRetryDelay),
		)
		go worker.Run(ctx)

		dispatcher := notification.NewDispatcher(deps.notificationRepo, rdb, logger.WithField("layer", "notifications"))
		consumer, err := kafka.NewConsumerWithDLQ(
			strings.Split(cfg.KafkaBrokers, ","),
			cfg.KafkaGroupID,
			[]string{kafka.TopicOrderEvents},
			dispatcher.Handler(),
			kafkaProducer,
			consumerMaxRetries,
		)
		if err != nil {
			logger.WithError(err).Warn("failed to create notification consumer, continuing without it")
		} else {
			notificationConsumer = consumer
			go func() {
				if err := consumer.Start(ctx); err != nil {
					logger.WithError(err).Warn("notification consumer stopped with error")
				}
			}()
		}
	}

	cleanup := idempotency.NewCleanupWorker(deps.idempotencyRepo,
		idempotency.WithLogger(logger.WithField("layer", "idempotency")),
		idempotency.WithInterval(cfg.IdempotencyCleanupInterval),
		idempotency.WithBatchSize(cfg.IdempotencyCleanupBatchSize),
	)
	go cleanup.Run(ctx)

	// HTTP health checks
	healthHandler := healthcheck.NewHandler(version.GetVersion())
	if deps.storageChecker != nil {
		healthHandler.RegisterChecker("storage", deps.storageChecker)
	}
	metricsSrv := startMetricsServer(ctx, cfg.MetricsAddr, logger, healthHandler)

	ordersHandler := httpx.NewOrdersHandler(engine, deps.idempotencyRepo, rdb, logger.WithField("layer", "http"))
	notificationsHandler := httpx.NewNotificationsHandler(deps.notificationRepo, logger.WithField("layer", "http"))
	router := httpx.NewRouter(ordersHandler, notificationsHandler)

	apiSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("HTTP API слушает %s", cfg.HTTPAddr)
		errCh <- apiSrv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, останавливаем HTTP сервер")
		shutdownHTTP(apiSrv, logger)
		shutdownHTTP(metricsSrv, logger)
		stopConsumer(notificationConsumer, logger)
		closeKafka(kafkaProducer, logger)
		return ctx.Err()
	case err := <-errCh:
		shutdownHTTP(metricsSrv, logger)
		stopConsumer(notificationConsumer, logger)
		closeKafka(kafkaProducer, logger)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func stopConsumer(consumer *kafka.Consumer, logger *log.Entry) {
	if consumer == nil {
		return
	}
	if err := consumer.Stop(); err != nil {
		logger.WithError(err).Warn("failed to stop notification consumer")
	}
}

// startMetricsServer запускает HTTP-обработчик /metrics для Prometheus.
func startMetricsServer(ctx context.Context, addr string, logger *log.Entry, healthHandler *healthcheck.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		logger.Infof("метрики доступны по адресу %s/metrics", addr)
		logger.Infof("health checks: %s/healthz, %s/livez", addr, addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("metrics server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownHTTP(srv, logger)
	}()

	return srv
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("http shutdown with error")
	}
}
