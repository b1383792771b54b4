package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/mvshop/internal/domain"
	"github.com/vladislavdragonenkov/mvshop/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/mvshop/internal/metrics"
)

// invoiceAttempts — число попыток сгенерировать свободный invoice id
// до отказа с ErrInvoiceConflict.
const invoiceAttempts = 5

// Engine выполняет операции жизненного цикла заказа. Каждая операция
// проходит в одной транзакции UnitOfWork: заказ, журнал, счётчики стока,
// outbox, аудит и уведомления изменяются атомарно либо не изменяются вовсе.
type Engine struct {
	uow     domain.UnitOfWork
	gateway domain.PaymentGateway
	logger  *log.Entry
	metrics *metrics.WorkflowMetrics

	now   func() time.Time
	newID func() string
}

// NewEngine создаёт рабочий экземпляр движка заказов.
func NewEngine(uow domain.UnitOfWork, gateway domain.PaymentGateway, logger *log.Entry) *Engine {
	engine := newEngine(uow, gateway, logger)
	engine.metrics = metrics.NewWorkflowMetrics()
	return engine
}

// NewEngineWithoutMetrics создаёт движок без метрик (для тестов).
func NewEngineWithoutMetrics(uow domain.UnitOfWork, gateway domain.PaymentGateway, logger *log.Entry) *Engine {
	return newEngine(uow, gateway, logger)
}

func newEngine(uow domain.UnitOfWork, gateway domain.PaymentGateway, logger *log.Entry) *Engine {
	if logger == nil {
		logger = log.New().WithField("component", "workflow")
	}
	return &Engine{
		uow:     uow,
		gateway: gateway,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
		newID:   uuid.NewString,
	}
}

// CreateOrderInput — параметры оформления заказа.
type CreateOrderInput struct {
	UserID        string
	ProductID     string
	Quantity      int32
	PaymentMethod domain.PaymentMethod
	Shipping      domain.ShippingAddress

	// Reserve определяет режим удержания стока: через reserved-счётчик
	// (nil или true) либо немедленным списанием из stock (false).
	Reserve *bool
}

// CreateOrder оформляет заказ: проверяет покупателя и товар, удерживает
// сток, генерирует invoice id и сохраняет заказ со снимком цены.
func (e *Engine) CreateOrder(ctx context.Context, in CreateOrderInput) (domain.Order, error) {
	start := e.now()
	e.opStarted()
	defer e.opFinished("create", start)

	if in.Quantity <= 0 {
		return domain.Order{}, domain.ErrQuantityInvalid
	}

	var created domain.Order
	err := e.uow.Within(ctx, func(ctx context.Context, tx domain.TxStore) error {
		user, err := tx.Users().Get(ctx, in.UserID)
		if err != nil {
			return fmt.Errorf("load user: %w", err)
		}
		if err := user.CheckStatus(); err != nil {
			return err
		}

		product, err := tx.Products().Get(ctx, in.ProductID)
		if err != nil {
			return fmt.Errorf("load product: %w", err)
		}
		// Неактивная карточка для покупателя неотличима от отсутствующей.
		if !product.IsActive {
			return domain.ErrProductNotFound
		}

		reserve := in.Reserve == nil || *in.Reserve
		if reserve {
			ok, err := tx.Ledger().Reserve(ctx, product.ID, in.Quantity)
			if err != nil {
				return fmt.Errorf("reserve stock: %w", err)
			}
			if !ok {
				if e.metrics != nil {
					e.metrics.RecordInsufficientStock()
				}
				return domain.ErrInsufficientStock
			}
		} else {
			ok, err := tx.Ledger().DebitImmediate(ctx, product.ID, in.Quantity)
			if err != nil {
				return fmt.Errorf("debit stock: %w", err)
			}
			if !ok {
				if e.metrics != nil {
					e.metrics.RecordInsufficientStock()
				}
				return domain.ErrInsufficientStock
			}
		}

		invoiceID, err := e.pickInvoiceID(ctx, tx)
		if err != nil {
			return err
		}

		now := e.now()
		order := domain.Order{
			ID:              e.newID(),
			InvoiceID:       invoiceID,
			UserID:          user.ID,
			ProductID:       product.ID,
			Quantity:        in.Quantity,
			PriceAtAddMinor: product.PriceMinor,
			DiscountMinor:   product.DiscountMinor,
			Currency:        product.Currency,
			Status:          domain.OrderStatusPending,
			Payment: domain.Payment{
				Method: in.PaymentMethod,
				Status: domain.PaymentStatusPending,
			},
			Shipping:  in.Shipping,
			Reserved:  reserve,
			Version:   1,
			CreatedAt: now,
			UpdatedAt: now,
		}
		order.RecalcTotals()
		order.AppendLog(e.newID(), "", domain.OrderStatusPending, user.ID, "order created", now)

		if errs := order.ValidateInvariants(); len(errs) > 0 {
			return errs[0]
		}

		if err := tx.Orders().Create(ctx, order); err != nil {
			return fmt.Errorf("create order: %w", err)
		}

		if err := e.emitEvent(ctx, tx, &order, kafka.EventTypeOrderCreated, map[string]interface{}{
			"quantity":    order.Quantity,
			"final_minor": order.FinalMinor,
			"currency":    order.Currency,
		}); err != nil {
			return err
		}
		if err := e.audit(ctx, tx, &order, "order.create", user.ID, nil); err != nil {
			return err
		}
		if err := e.notify(ctx, tx, &order, kafka.EventTypeOrderCreated,
			fmt.Sprintf("Заказ %s оформлен", order.InvoiceID)); err != nil {
			return err
		}

		created = order
		return nil
	})
	if err != nil {
		e.logger.WithError(err).WithFields(log.Fields{
			"user_id":    in.UserID,
			"product_id": in.ProductID,
		}).Warn("create order failed")
		return domain.Order{}, err
	}

	if e.metrics != nil {
		e.metrics.RecordOrderCreated()
	}
	e.logger.WithFields(log.Fields{
		"order_id":   created.ID,
		"invoice_id": created.InvoiceID,
		"user_id":    created.UserID,
	}).Info("order created")
	return created, nil
}

// pickInvoiceID генерирует invoice id и проверяет его незанятость.
// Предварительная проверка не заменяет уникальный индекс хранилища:
// остаточная гонка всплывает из Create как ErrInvoiceConflict.
func (e *Engine) pickInvoiceID(ctx context.Context, tx domain.TxStore) (string, error) {
	for attempt := 0; attempt < invoiceAttempts; attempt++ {
		invoiceID, err := domain.NewInvoiceID(e.now())
		if err != nil {
			return "", err
		}
		_, err = tx.Orders().GetByInvoice(ctx, invoiceID)
		if domain.IsNotFound(err) {
			return invoiceID, nil
		}
		if err != nil {
			return "", fmt.Errorf("check invoice id: %w", err)
		}
	}
	return "", domain.ErrInvoiceConflict
}

// CreatePaymentIntent инициирует платёж по заказу у провайдера.
// Состояние заказа не меняется: подтверждение придёт отдельным вызовом
// ConfirmPayment либо FailPayment.
func (e *Engine) CreatePaymentIntent(ctx context.Context, orderID, userID string) (domain.PaymentIntent, error) {
	var order domain.Order
	err := e.uow.View(ctx, func(ctx context.Context, tx domain.TxStore) error {
		var err error
		order, err = tx.Orders().Get(ctx, orderID)
		return err
	})
	if err != nil {
		return domain.PaymentIntent{}, err
	}
	if order.UserID != userID {
		return domain.PaymentIntent{}, domain.ErrNotOrderOwner
	}
	if order.Status != domain.OrderStatusPending || order.Payment.Status != domain.PaymentStatusPending {
		return domain.PaymentIntent{}, domain.ErrInvalidTransition
	}

	intent, err := e.gateway.CreateIntent(ctx, order.InvoiceID, order.FinalMinor, order.Currency)
	if err != nil {
		e.logger.WithError(err).WithField("order_id", order.ID).Warn("create payment intent failed")
		return domain.PaymentIntent{}, err
	}
	return intent, nil
}

// GetOrder возвращает заказ вместе с журналом переходов.
// Доступ разрешён только владельцу заказа.
func (e *Engine) GetOrder(ctx context.Context, orderID, userID string) (domain.Order, error) {
	var order domain.Order
	err := e.uow.View(ctx, func(ctx context.Context, tx domain.TxStore) error {
		var err error
		order, err = tx.Orders().Get(ctx, orderID)
		return err
	})
	if err != nil {
		return domain.Order{}, err
	}
	if userID != "" && order.UserID != userID {
		return domain.Order{}, domain.ErrNotOrderOwner
	}
	return order, nil
}

// ListOrders возвращает заказы покупателя, новые первыми.
func (e *Engine) ListOrders(ctx context.Context, userID string, limit int) ([]domain.Order, error) {
	var orders []domain.Order
	err := e.uow.View(ctx, func(ctx context.Context, tx domain.TxStore) error {
		var err error
		orders, err = tx.Orders().ListByUser(ctx, userID, limit)
		return err
	})
	if err != nil {
		return nil, err
	}
	return orders, nil
}

func (e *Engine) opStarted() {
	if e.metrics != nil {
		e.metrics.RecordOpStarted()
	}
}

func (e *Engine) opFinished(op string, start time.Time) {
	if e.metrics != nil {
		e.metrics.RecordOpFinished()
		e.metrics.RecordOpDuration(op, e.now().Sub(start))
	}
}

// emitEvent кладёт доменное событие в transactional outbox текущей транзакции.
func (e *Engine) emitEvent(ctx context.Context, tx domain.TxStore, order *domain.Order, eventType kafka.EventType, meta map[string]interface{}) error {
	event := kafka.NewOrderEvent(eventType, order.ID, order.InvoiceID, order.UserID, string(order.Status), meta)
	event.Timestamp = e.now()

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", eventType, err)
	}

	_, err = tx.Outbox().Enqueue(ctx, domain.OutboxMessage{
		ID:            e.newID(),
		AggregateType: "order",
		AggregateID:   order.ID,
		EventType:     string(eventType),
		Payload:       payload,
	})
	if err != nil {
		return fmt.Errorf("enqueue %s event: %w", eventType, err)
	}
	if e.metrics != nil {
		e.metrics.RecordOutboxEvent()
	}
	return nil
}

// audit пишет запись аудита со снимками заказа до и после изменения.
func (e *Engine) audit(ctx context.Context, tx domain.TxStore, order *domain.Order, action, actor string, previous *domain.Order) error {
	var prevData json.RawMessage
	if previous != nil {
		data, err := json.Marshal(orderSnapshot(previous))
		if err != nil {
			return fmt.Errorf("marshal audit snapshot: %w", err)
		}
		prevData = data
	}
	newData, err := json.Marshal(orderSnapshot(order))
	if err != nil {
		return fmt.Errorf("marshal audit snapshot: %w", err)
	}

	return tx.Audit().Record(ctx, domain.AuditEntry{
		ID:           e.newID(),
		ResourceType: "order",
		ResourceID:   order.ID,
		Action:       action,
		PerformedBy:  actor,
		PreviousData: prevData,
		NewData:      newData,
		CreatedAt:    e.now(),
	})
}

// notify создаёт pending-уведомление покупателю в текущей транзакции.
func (e *Engine) notify(ctx context.Context, tx domain.TxStore, order *domain.Order, eventType kafka.EventType, message string) error {
	return tx.Notifications().Notify(ctx, domain.Notification{
		ID:        e.newID(),
		UserID:    order.UserID,
		OrderID:   order.ID,
		EventType: string(eventType),
		Message:   message,
		Status:    domain.NotificationStatusPending,
		CreatedAt: e.now(),
	})
}

// auditSnapshot — компактный снимок заказа для журнала аудита.
type auditSnapshot struct {
	InvoiceID     string `json:"invoice_id"`
	UserID        string `json:"user_id"`
	ProductID     string `json:"product_id"`
	Quantity      int32  `json:"quantity"`
	FinalMinor    int64  `json:"final_minor"`
	Currency      string `json:"currency"`
	Status        string `json:"status"`
	PaymentStatus string `json:"payment_status"`
	Reserved      bool   `json:"reserved"`
	Version       int64  `json:"version"`
}

func orderSnapshot(order *domain.Order) auditSnapshot {
	return auditSnapshot{
		InvoiceID:     order.InvoiceID,
		UserID:        order.UserID,
		ProductID:     order.ProductID,
		Quantity:      order.Quantity,
		FinalMinor:    order.FinalMinor,
		Currency:      order.Currency,
		Status:        string(order.Status),
		PaymentStatus: string(order.Payment.Status),
		Reserved:      order.Reserved,
		Version:       order.Version,
	}
}
