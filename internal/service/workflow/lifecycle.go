package workflow

import (
	"context"
	"encoding/json"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/mvshop/internal/domain"
	"github.com/vladislavdragonenkov/mvshop/internal/messaging/kafka"
)

// ConfirmPayment подтверждает оплату заказа: фиксирует удержанный сток,
// переводит платёж в paid, а заказ в paid. Сырой ответ провайдера
// сохраняется вместе с платежом. Повторное подтверждение уже оплаченного
// заказа возвращает успех без изменений.
func (e *Engine) ConfirmPayment(ctx context.Context, orderID, transactionID string, gatewayResponse json.RawMessage) (domain.Order, error) {
	start := e.now()
	e.opStarted()
	defer e.opFinished("confirm", start)

	var result domain.Order
	var confirmed bool
	err := e.uow.Within(ctx, func(ctx context.Context, tx domain.TxStore) error {
		order, err := tx.Orders().Get(ctx, orderID)
		if err != nil {
			return err
		}
		if order.Payment.Status == domain.PaymentStatusPaid {
			result = order
			return nil
		}
		if order.Status != domain.OrderStatusPending || order.Payment.Status != domain.PaymentStatusPending {
			return e.rejectTransition(&order, domain.OrderStatusPaid)
		}

		previous := order
		if order.Reserved {
			if err := tx.Ledger().Commit(ctx, order.ProductID, order.Quantity); err != nil {
				return fmt.Errorf("commit reservation: %w", err)
			}
			order.Reserved = false
		}

		now := e.now()
		order.Payment.Status = domain.PaymentStatusPaid
		order.Payment.TransactionID = transactionID
		order.Payment.GatewayResponse = gatewayResponse
		order.Payment.PaidAt = &now

		if err := e.saveTransition(ctx, tx, &order, domain.OrderStatusPaid, "payment", "payment confirmed"); err != nil {
			return err
		}

		if err := e.emitEvent(ctx, tx, &order, kafka.EventTypeOrderPaid, map[string]interface{}{
			"transaction_id": transactionID,
			"final_minor":    order.FinalMinor,
		}); err != nil {
			return err
		}
		if err := e.audit(ctx, tx, &order, "order.confirm_payment", "payment", &previous); err != nil {
			return err
		}
		if err := e.notify(ctx, tx, &order, kafka.EventTypeOrderPaid,
			fmt.Sprintf("Оплата заказа %s получена", order.InvoiceID)); err != nil {
			return err
		}

		result = order
		confirmed = true
		return nil
	})
	if err != nil {
		e.logger.WithError(err).WithField("order_id", orderID).Warn("confirm payment failed")
		return domain.Order{}, err
	}

	if confirmed {
		if e.metrics != nil {
			e.metrics.RecordOrderPaid()
		}
		e.logger.WithFields(log.Fields{
			"order_id":       result.ID,
			"transaction_id": transactionID,
		}).Info("payment confirmed")
	}
	return result, nil
}

// FailPayment фиксирует отказ провайдера: освобождает удержанный сток
// и отменяет заказ. Сырой ответ провайдера сохраняется вместе с платежом.
// Повторный вызов для уже провалившегося платежа возвращает успех без
// изменений.
func (e *Engine) FailPayment(ctx context.Context, orderID, reason string, gatewayResponse json.RawMessage) (domain.Order, error) {
	start := e.now()
	e.opStarted()
	defer e.opFinished("fail_payment", start)

	var result domain.Order
	var failed bool
	err := e.uow.Within(ctx, func(ctx context.Context, tx domain.TxStore) error {
		order, err := tx.Orders().Get(ctx, orderID)
		if err != nil {
			return err
		}
		if order.Payment.Status == domain.PaymentStatusFailed {
			result = order
			return nil
		}
		if order.Status != domain.OrderStatusPending || order.Payment.Status != domain.PaymentStatusPending {
			return e.rejectTransition(&order, domain.OrderStatusCancelled)
		}

		previous := order
		if err := e.returnStock(ctx, tx, &order); err != nil {
			return err
		}
		order.Payment.Status = domain.PaymentStatusFailed
		order.Payment.GatewayResponse = gatewayResponse

		note := "payment failed"
		if reason != "" {
			note = fmt.Sprintf("payment failed: %s", reason)
		}
		if err := e.saveTransition(ctx, tx, &order, domain.OrderStatusCancelled, "payment", note); err != nil {
			return err
		}

		if err := e.emitEvent(ctx, tx, &order, kafka.EventTypeOrderPaymentFailed, map[string]interface{}{
			"reason": reason,
		}); err != nil {
			return err
		}
		if err := e.audit(ctx, tx, &order, "order.fail_payment", "payment", &previous); err != nil {
			return err
		}
		if err := e.notify(ctx, tx, &order, kafka.EventTypeOrderPaymentFailed,
			fmt.Sprintf("Оплата заказа %s не прошла", order.InvoiceID)); err != nil {
			return err
		}

		result = order
		failed = true
		return nil
	})
	if err != nil {
		e.logger.WithError(err).WithField("order_id", orderID).Warn("fail payment rejected")
		return domain.Order{}, err
	}

	if failed {
		if e.metrics != nil {
			e.metrics.RecordOrderCancelled()
		}
		e.logger.WithFields(log.Fields{
			"order_id": result.ID,
			"reason":   reason,
		}).Info("payment failed, order cancelled")
	}
	return result, nil
}

// ShipOrder передаёт оплаченный заказ в доставку и фиксирует номер
// отправления службы доставки. Повторный вызов для уже отгруженного или
// доставленного заказа возвращает успех без изменений.
func (e *Engine) ShipOrder(ctx context.Context, orderID, shipmentID, actor string) (domain.Order, error) {
	start := e.now()
	e.opStarted()
	defer e.opFinished("ship", start)

	var result domain.Order
	var shipped bool
	err := e.uow.Within(ctx, func(ctx context.Context, tx domain.TxStore) error {
		order, err := tx.Orders().Get(ctx, orderID)
		if err != nil {
			return err
		}
		if order.Status == domain.OrderStatusShipped || order.Status == domain.OrderStatusDelivered {
			result = order
			return nil
		}
		if order.Status == domain.OrderStatusPending {
			return domain.ErrOrderNotPaid
		}
		if !domain.CanTransition(order.Status, domain.OrderStatusShipped) {
			return e.rejectTransition(&order, domain.OrderStatusShipped)
		}

		previous := order
		order.ShipmentID = shipmentID
		if err := e.saveTransition(ctx, tx, &order, domain.OrderStatusShipped, actor, "order shipped"); err != nil {
			return err
		}

		if err := e.emitEvent(ctx, tx, &order, kafka.EventTypeOrderShipped, map[string]interface{}{
			"shipment_id": shipmentID,
		}); err != nil {
			return err
		}
		if err := e.audit(ctx, tx, &order, "order.ship", actor, &previous); err != nil {
			return err
		}
		if err := e.notify(ctx, tx, &order, kafka.EventTypeOrderShipped,
			fmt.Sprintf("Заказ %s передан в доставку", order.InvoiceID)); err != nil {
			return err
		}

		result = order
		shipped = true
		return nil
	})
	if err != nil {
		e.logger.WithError(err).WithField("order_id", orderID).Warn("ship order failed")
		return domain.Order{}, err
	}

	if shipped {
		if e.metrics != nil {
			e.metrics.RecordOrderShipped()
		}
		e.logger.WithFields(log.Fields{
			"order_id":    result.ID,
			"shipment_id": shipmentID,
		}).Info("order shipped")
	}
	return result, nil
}

// DeliverOrder отмечает заказ доставленным. Повторный вызов для уже
// доставленного заказа возвращает успех без изменений.
func (e *Engine) DeliverOrder(ctx context.Context, orderID, actor string) (domain.Order, error) {
	start := e.now()
	e.opStarted()
	defer e.opFinished("deliver", start)

	var result domain.Order
	var delivered bool
	err := e.uow.Within(ctx, func(ctx context.Context, tx domain.TxStore) error {
		order, err := tx.Orders().Get(ctx, orderID)
		if err != nil {
			return err
		}
		if order.Status == domain.OrderStatusDelivered {
			result = order
			return nil
		}
		if !domain.CanTransition(order.Status, domain.OrderStatusDelivered) {
			return e.rejectTransition(&order, domain.OrderStatusDelivered)
		}

		previous := order
		if err := e.saveTransition(ctx, tx, &order, domain.OrderStatusDelivered, actor, "order delivered"); err != nil {
			return err
		}

		if err := e.emitEvent(ctx, tx, &order, kafka.EventTypeOrderDelivered, nil); err != nil {
			return err
		}
		if err := e.audit(ctx, tx, &order, "order.deliver", actor, &previous); err != nil {
			return err
		}
		if err := e.notify(ctx, tx, &order, kafka.EventTypeOrderDelivered,
			fmt.Sprintf("Заказ %s доставлен", order.InvoiceID)); err != nil {
			return err
		}

		result = order
		delivered = true
		return nil
	})
	if err != nil {
		e.logger.WithError(err).WithField("order_id", orderID).Warn("deliver order failed")
		return domain.Order{}, err
	}

	if delivered {
		if e.metrics != nil {
			e.metrics.RecordOrderDelivered()
		}
		e.logger.WithField("order_id", result.ID).Info("order delivered")
	}
	return result, nil
}

// CancelOrder отменяет заказ до отгрузки: возвращает сток и, если оплата
// уже прошла, помечает платёж к возврату. Повторная отмена возвращает
// успех без изменений.
func (e *Engine) CancelOrder(ctx context.Context, orderID, actor, reason string) (domain.Order, error) {
	start := e.now()
	e.opStarted()
	defer e.opFinished("cancel", start)

	var result domain.Order
	var cancelled bool
	err := e.uow.Within(ctx, func(ctx context.Context, tx domain.TxStore) error {
		order, err := tx.Orders().Get(ctx, orderID)
		if err != nil {
			return err
		}
		if order.Status == domain.OrderStatusCancelled {
			result = order
			return nil
		}
		if !domain.CanTransition(order.Status, domain.OrderStatusCancelled) {
			return e.rejectTransition(&order, domain.OrderStatusCancelled)
		}

		previous := order
		if err := e.returnStock(ctx, tx, &order); err != nil {
			return err
		}

		refundRequested := false
		if order.Payment.Status == domain.PaymentStatusPaid {
			now := e.now()
			order.Payment.Status = domain.PaymentStatusRefunded
			order.Payment.RefundedAt = &now
			refundRequested = true
		}

		note := "order cancelled"
		if reason != "" {
			note = fmt.Sprintf("order cancelled: %s", reason)
		}
		if err := e.saveTransition(ctx, tx, &order, domain.OrderStatusCancelled, actor, note); err != nil {
			return err
		}

		if refundRequested {
			if err := e.emitEvent(ctx, tx, &order, kafka.EventTypeRefundRequested, map[string]interface{}{
				"transaction_id": order.Payment.TransactionID,
				"amount_minor":   order.FinalMinor,
			}); err != nil {
				return err
			}
		}
		if err := e.emitEvent(ctx, tx, &order, kafka.EventTypeOrderCancelled, map[string]interface{}{
			"reason": reason,
		}); err != nil {
			return err
		}
		if err := e.audit(ctx, tx, &order, "order.cancel", actor, &previous); err != nil {
			return err
		}
		if err := e.notify(ctx, tx, &order, kafka.EventTypeOrderCancelled,
			fmt.Sprintf("Заказ %s отменён", order.InvoiceID)); err != nil {
			return err
		}

		result = order
		cancelled = true
		return nil
	})
	if err != nil {
		e.logger.WithError(err).WithField("order_id", orderID).Warn("cancel order failed")
		return domain.Order{}, err
	}

	if cancelled {
		if e.metrics != nil {
			e.metrics.RecordOrderCancelled()
		}
		e.logger.WithFields(log.Fields{
			"order_id": result.ID,
			"reason":   reason,
		}).Info("order cancelled")
	}
	return result, nil
}

// RefundOrder выполняет возврат средств по оплаченному заказу через
// платёжный шлюз и возвращает товар на склад. Отказ шлюза откатывает
// транзакцию целиком. Повторный вызов для уже возвращённого заказа
// возвращает успех без изменений.
func (e *Engine) RefundOrder(ctx context.Context, orderID, actor, reason string) (domain.Order, error) {
	start := e.now()
	e.opStarted()
	defer e.opFinished("refund", start)

	var result domain.Order
	var refunded bool
	err := e.uow.Within(ctx, func(ctx context.Context, tx domain.TxStore) error {
		order, err := tx.Orders().Get(ctx, orderID)
		if err != nil {
			return err
		}
		if order.Status == domain.OrderStatusReturned {
			result = order
			return nil
		}
		if order.Payment.Status != domain.PaymentStatusPaid {
			return domain.ErrOrderNotPaid
		}
		if !domain.CanTransition(order.Status, domain.OrderStatusReturned) {
			return e.rejectTransition(&order, domain.OrderStatusReturned)
		}

		previous := order
		refund, err := e.gateway.Refund(ctx, order.Payment.TransactionID, order.FinalMinor, order.Currency)
		if err != nil {
			return fmt.Errorf("gateway refund: %w", err)
		}

		if err := e.returnStock(ctx, tx, &order); err != nil {
			return err
		}

		now := e.now()
		order.Payment.Status = domain.PaymentStatusRefunded
		order.Payment.RefundedAt = &now

		note := "order refunded"
		if reason != "" {
			note = fmt.Sprintf("order refunded: %s", reason)
		}
		if err := e.saveTransition(ctx, tx, &order, domain.OrderStatusReturned, actor, note); err != nil {
			return err
		}

		if err := e.emitEvent(ctx, tx, &order, kafka.EventTypeOrderRefunded, map[string]interface{}{
			"refund_id":    refund.RefundID,
			"amount_minor": refund.AmountMinor,
			"reason":       reason,
		}); err != nil {
			return err
		}
		if err := e.audit(ctx, tx, &order, "order.refund", actor, &previous); err != nil {
			return err
		}
		if err := e.notify(ctx, tx, &order, kafka.EventTypeOrderRefunded,
			fmt.Sprintf("Средства по заказу %s возвращены", order.InvoiceID)); err != nil {
			return err
		}

		result = order
		refunded = true
		return nil
	})
	if err != nil {
		e.logger.WithError(err).WithField("order_id", orderID).Warn("refund order failed")
		return domain.Order{}, err
	}

	if refunded {
		if e.metrics != nil {
			e.metrics.RecordOrderRefunded()
		}
		e.logger.WithFields(log.Fields{
			"order_id": result.ID,
			"reason":   reason,
		}).Info("order refunded")
	}
	return result, nil
}

// saveTransition переводит заказ в новый статус, сохраняет его с учётом
// optimistic locking и дописывает запись журнала переходов — как в
// хранилище, так и в возвращаемый агрегат, чтобы ответ первого вызова
// совпадал с ответом идемпотентного повтора.
func (e *Engine) saveTransition(ctx context.Context, tx domain.TxStore, order *domain.Order, to domain.OrderStatus, actor, note string) error {
	from := order.Status
	order.Status = to
	order.UpdatedAt = e.now()

	if err := tx.Orders().Save(ctx, *order); err != nil {
		if domain.IsVersionConflict(err) && e.metrics != nil {
			e.metrics.RecordVersionConflict()
		}
		return fmt.Errorf("save order: %w", err)
	}
	order.Version++

	entry := domain.OrderLog{
		ID:         e.newID(),
		OrderID:    order.ID,
		FromStatus: from,
		ToStatus:   to,
		ChangedBy:  actor,
		Note:       note,
		ChangedAt:  e.now(),
	}
	if err := tx.Orders().AppendLog(ctx, entry); err != nil {
		return err
	}
	order.Logs = append(order.Logs, entry)
	return nil
}

// returnStock возвращает единицы заказа на склад: освобождает резерв,
// если он ещё удерживается, либо восстанавливает списанный сток.
func (e *Engine) returnStock(ctx context.Context, tx domain.TxStore, order *domain.Order) error {
	if order.Reserved {
		if err := tx.Ledger().Release(ctx, order.ProductID, order.Quantity); err != nil {
			return fmt.Errorf("release reservation: %w", err)
		}
		order.Reserved = false
		return nil
	}
	if err := tx.Ledger().Restore(ctx, order.ProductID, order.Quantity); err != nil {
		return fmt.Errorf("restore stock: %w", err)
	}
	return nil
}

func (e *Engine) rejectTransition(order *domain.Order, to domain.OrderStatus) error {
	if e.metrics != nil {
		e.metrics.RecordInvalidTransition()
	}
	e.logger.WithFields(log.Fields{
		"order_id": order.ID,
		"from":     order.Status,
		"to":       to,
	}).Debug("transition rejected")
	return domain.ErrInvalidTransition
}
