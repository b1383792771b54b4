package payment

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/mvshop/internal/domain"
)

// RetryConfig — параметры повторов обращения к платёжному провайдеру.
type RetryConfig struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// DefaultRetryConfig возвращает конфигурацию по умолчанию.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  100 * time.Millisecond,
		MaxDelay:      5 * time.Second,
		BackoffFactor: 2.0,
	}
}

// RetryableGateway оборачивает платёжный шлюз retry-логикой.
// Повторяются только временные ошибки провайдера; бизнес-отказы
// (например, отклонённый возврат) отдаются сразу.
type RetryableGateway struct {
	gateway domain.PaymentGateway
	config  RetryConfig
	logger  *log.Entry
}

// NewRetryableGateway создаёт шлюз с повторами поверх базового.
func NewRetryableGateway(gateway domain.PaymentGateway, config RetryConfig, logger *log.Entry) *RetryableGateway {
	if logger == nil {
		logger = log.New().WithField("component", "payment-retry")
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = DefaultRetryConfig().MaxAttempts
	}
	if config.BackoffFactor < 1 {
		config.BackoffFactor = DefaultRetryConfig().BackoffFactor
	}

	return &RetryableGateway{
		gateway: gateway,
		config:  config,
		logger:  logger,
	}
}

// CreateIntent создаёт платёжное намерение с повторами.
func (rg *RetryableGateway) CreateIntent(ctx context.Context, invoiceID string, amountMinor int64, currency string) (domain.PaymentIntent, error) {
	var intent domain.PaymentIntent
	err := rg.executeWithRetry(ctx, "CreateIntent", invoiceID, func() error {
		var callErr error
		intent, callErr = rg.gateway.CreateIntent(ctx, invoiceID, amountMinor, currency)
		return callErr
	})
	return intent, err
}

// Refund выполняет возврат средств с повторами.
func (rg *RetryableGateway) Refund(ctx context.Context, transactionID string, amountMinor int64, currency string) (domain.RefundResult, error) {
	var result domain.RefundResult
	err := rg.executeWithRetry(ctx, "Refund", transactionID, func() error {
		var callErr error
		result, callErr = rg.gateway.Refund(ctx, transactionID, amountMinor, currency)
		return callErr
	})
	return result, err
}

func (rg *RetryableGateway) executeWithRetry(ctx context.Context, operation, subject string, fn func() error) error {
	var lastErr error
	delay := rg.config.InitialDelay

	for attempt := 1; attempt <= rg.config.MaxAttempts; attempt++ {
		err := fn()
		if err == nil {
			if attempt > 1 {
				rg.logger.WithFields(log.Fields{
					"operation": operation,
					"subject":   subject,
					"attempt":   attempt,
				}).Info("Операция платёжного шлюза выполнена после повтора")
			}
			return nil
		}

		lastErr = err

		if !domain.IsRetryable(err) {
			return err
		}

		if attempt < rg.config.MaxAttempts {
			rg.logger.WithFields(log.Fields{
				"operation": operation,
				"subject":   subject,
				"attempt":   attempt,
				"delay":     delay,
				"error":     err,
			}).Warn("Платёжный шлюз недоступен, повторяем")

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}

			delay = time.Duration(float64(delay) * rg.config.BackoffFactor)
			if delay > rg.config.MaxDelay && rg.config.MaxDelay > 0 {
				delay = rg.config.MaxDelay
			}
		}
	}

	rg.logger.WithFields(log.Fields{
		"operation":    operation,
		"subject":      subject,
		"max_attempts": rg.config.MaxAttempts,
		"error":        lastErr,
	}).Error("Платёжный шлюз недоступен после всех повторов")
	return lastErr
}

var _ domain.PaymentGateway = (*RetryableGateway)(nil)
