package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// WorkflowMetrics содержит метрики операций жизненного цикла заказа.
type WorkflowMetrics struct {
	// Счётчики переходов по операциям.
	ordersCreated   prometheus.Counter
	ordersPaid      prometheus.Counter
	ordersShipped   prometheus.Counter
	ordersDelivered prometheus.Counter
	ordersCancelled prometheus.Counter
	ordersRefunded  prometheus.Counter

	// Счётчики отказов по классам.
	insufficientStock  prometheus.Counter
	invalidTransitions prometheus.Counter
	versionConflicts   prometheus.Counter

	// Гистограмма времени выполнения операции с меткой операции.
	opDuration *prometheus.HistogramVec

	// Счётчик событий outbox.
	outboxEvents prometheus.Counter

	// Количество операций, исполняющихся прямо сейчас.
	inFlightOps prometheus.Gauge
}

// NewWorkflowMetrics создаёт экземпляр метрик с регистрацией в default registry.
func NewWorkflowMetrics() *WorkflowMetrics {
	return newWorkflowMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

func newWorkflowMetricsWithRegisterer(registerer prometheus.Registerer) *WorkflowMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &WorkflowMetrics{
		ordersCreated: registerCounter(registerer, prometheus.CounterOpts{
			Name: "mvshop_orders_created_total",
			Help: "Total number of orders created",
		}),
		ordersPaid: registerCounter(registerer, prometheus.CounterOpts{
			Name: "mvshop_orders_paid_total",
			Help: "Total number of orders with confirmed payment",
		}),
		ordersShipped: registerCounter(registerer, prometheus.CounterOpts{
			Name: "mvshop_orders_shipped_total",
			Help: "Total number of orders handed to delivery",
		}),
		ordersDelivered: registerCounter(registerer, prometheus.CounterOpts{
			Name: "mvshop_orders_delivered_total",
			Help: "Total number of orders delivered",
		}),
		ordersCancelled: registerCounter(registerer, prometheus.CounterOpts{
			Name: "mvshop_orders_cancelled_total",
			Help: "Total number of orders cancelled",
		}),
		ordersRefunded: registerCounter(registerer, prometheus.CounterOpts{
			Name: "mvshop_orders_refunded_total",
			Help: "Total number of orders refunded",
		}),
		insufficientStock: registerCounter(registerer, prometheus.CounterOpts{
			Name: "mvshop_insufficient_stock_total",
			Help: "Total number of order attempts rejected due to insufficient stock",
		}),
		invalidTransitions: registerCounter(registerer, prometheus.CounterOpts{
			Name: "mvshop_invalid_transitions_total",
			Help: "Total number of rejected order status transitions",
		}),
		versionConflicts: registerCounter(registerer, prometheus.CounterOpts{
			Name: "mvshop_order_version_conflicts_total",
			Help: "Total number of optimistic locking conflicts on order save",
		}),
		opDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "mvshop_workflow_op_duration_seconds",
			Help:    "Duration of order workflow operations in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"op"}),
		outboxEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "mvshop_outbox_events_total",
			Help: "Total number of outbox events enqueued",
		}),
		inFlightOps: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "mvshop_workflow_ops_in_flight",
			Help: "Number of workflow operations currently executing",
		}),
	}
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Counter)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter %q: %v", opts.Name, err))
	}
	return collector
}

func registerGauge(registerer prometheus.Registerer, opts prometheus.GaugeOpts) prometheus.Gauge {
	collector := prometheus.NewGauge(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Gauge)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register gauge %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogramVec(registerer prometheus.Registerer, opts prometheus.HistogramOpts, labels []string) *prometheus.HistogramVec {
	collector := prometheus.NewHistogramVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.HistogramVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram vec %q: %v", opts.Name, err))
	}
	return collector
}

// RecordOrderCreated увеличивает счётчик созданных заказов.
func (m *WorkflowMetrics) RecordOrderCreated() {
	m.ordersCreated.Inc()
}

// RecordOrderPaid увеличивает счётчик оплаченных заказов.
func (m *WorkflowMetrics) RecordOrderPaid() {
	m.ordersPaid.Inc()
}

// RecordOrderShipped увеличивает счётчик отгруженных заказов.
func (m *WorkflowMetrics) RecordOrderShipped() {
	m.ordersShipped.Inc()
}

// RecordOrderDelivered увеличивает счётчик доставленных заказов.
func (m *WorkflowMetrics) RecordOrderDelivered() {
	m.ordersDelivered.Inc()
}

// RecordOrderCancelled увеличивает счётчик отменённых заказов.
func (m *WorkflowMetrics) RecordOrderCancelled() {
	m.ordersCancelled.Inc()
}

// RecordOrderRefunded увеличивает счётчик возвратов.
func (m *WorkflowMetrics) RecordOrderRefunded() {
	m.ordersRefunded.Inc()
}

// RecordInsufficientStock увеличивает счётчик отказов по стоку.
func (m *WorkflowMetrics) RecordInsufficientStock() {
	m.insufficientStock.Inc()
}

// RecordInvalidTransition увеличивает счётчик отклонённых переходов.
func (m *WorkflowMetrics) RecordInvalidTransition() {
	m.invalidTransitions.Inc()
}

// RecordVersionConflict увеличивает счётчик конфликтов версий.
func (m *WorkflowMetrics) RecordVersionConflict() {
	m.versionConflicts.Inc()
}

// RecordOpDuration записывает время выполнения операции.
func (m *WorkflowMetrics) RecordOpDuration(op string, duration time.Duration) {
	m.opDuration.WithLabelValues(op).Observe(duration.Seconds())
}

// RecordOutboxEvent увеличивает счётчик событий outbox.
func (m *WorkflowMetrics) RecordOutboxEvent() {
	m.outboxEvents.Inc()
}

// RecordOpStarted отмечает начало выполнения операции.
func (m *WorkflowMetrics) RecordOpStarted() {
	m.inFlightOps.Inc()
}

// RecordOpFinished отмечает завершение выполнения операции.
func (m *WorkflowMetrics) RecordOpFinished() {
	m.inFlightOps.Dec()
}
