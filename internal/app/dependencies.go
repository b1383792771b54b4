package app

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/mvshop/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/mvshop/internal/health"
	"github.com/vladislavdragonenkov/mvshop/internal/storage/memory"
	"github.com/vladislavdragonenkov/mvshop/internal/storage/postgres"
)

// runtimeDependencies — набор хранилищ, от которых зависит приложение.
// Конкретный состав определяется выбранным storage driver.
type runtimeDependencies struct {
	uow              domain.UnitOfWork
	outboxRepo       domain.OutboxRepository
	notificationRepo domain.NotificationRepository
	idempotencyRepo  domain.IdempotencyRepository

	storageChecker healthcheck.Checker
	closeFn        func() error
}

// initRuntimeDependencies инициализирует хранилище по конфигурации.
func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeDependencies, error) {
	switch cfg.StorageDriver {
	case StorageDriverMemory, "":
		store := memory.NewStore()
		logger.Info("используется in-memory хранилище")
		return &runtimeDependencies{
			uow:              store,
			outboxRepo:       store,
			notificationRepo: store,
			idempotencyRepo:  memory.NewIdempotencyRepository(),
		}, nil

	case StorageDriverPostgres:
		if cfg.PostgresDSN == "" {
			return nil, fmt.Errorf("postgres storage driver requires POSTGRES_DSN")
		}

		store, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}

		if cfg.PostgresAutoMigrate {
			if err := store.EnsureSchema(ctx); err != nil {
				_ = store.Close()
				return nil, fmt.Errorf("ensure postgres schema: %w", err)
			}
		}

		logger.Info("используется postgres хранилище")
		return &runtimeDependencies{
			uow:              store,
			outboxRepo:       postgres.NewOutboxRepository(store),
			notificationRepo: postgres.NewNotificationRepository(store),
			idempotencyRepo:  postgres.NewIdempotencyRepository(store),
			storageChecker: healthcheck.NewSimpleChecker("storage", func() error {
				return store.Ping(context.Background())
			}),
			closeFn: store.Close,
		}, nil

	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", cfg.StorageDriver)
	}
}
