package httpx

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/mvshop/internal/domain"
	"github.com/vladislavdragonenkov/mvshop/internal/redisx"
	"github.com/vladislavdragonenkov/mvshop/internal/service/workflow"
)

// headerUserID передаёт идентификатор покупателя. Аутентификация выполняется
// выше по стеку (gateway), сервис доверяет заголовку.
const headerUserID = "X-User-Id"

// headerActor — кто выполняет операционное действие (склад, поддержка).
const headerActor = "X-Actor"

const defaultActor = "api"

// OrdersHandler — HTTP-обработчики жизненного цикла заказа поверх
// workflow-движка.
type OrdersHandler struct {
	engine      *workflow.Engine
	idempotency domain.IdempotencyRepository
	rdb         *redis.Client
	logger      *log.Entry
}

// NewOrdersHandler создаёт обработчик заказов. Репозиторий идемпотентности
// может быть nil: тогда заголовок Idempotency-Key игнорируется. Redis-клиент
// опционален и используется только кэшем статуса заказа.
func NewOrdersHandler(engine *workflow.Engine, idempotency domain.IdempotencyRepository, rdb *redis.Client, logger *log.Entry) *OrdersHandler {
	if logger == nil {
		logger = log.New().WithField("component", "http")
	}
	return &OrdersHandler{
		engine:      engine,
		idempotency: idempotency,
		rdb:         rdb,
		logger:      logger,
	}
}

// Register вешает маршруты заказов на роутер.
func (h *OrdersHandler) Register(r chi.Router) {
	r.Route("/api/v1/orders", func(r chi.Router) {
		r.With(h.idempotent).Post("/", h.createOrder)
		r.Get("/", h.listOrders)
		r.Get("/{id}", h.getOrder)
		r.Get("/{id}/status", h.orderStatus)
		r.Post("/{id}/payment-intent", h.createPaymentIntent)
		r.Post("/{id}/payment/confirm", h.confirmPayment)
		r.Post("/{id}/payment/fail", h.failPayment)
		r.Post("/{id}/ship", h.shipOrder)
		r.Post("/{id}/deliver", h.deliverOrder)
		r.With(h.idempotent).Post("/{id}/cancel", h.cancelOrder)
		r.With(h.idempotent).Post("/{id}/refund", h.refundOrder)
	})
}

type shippingAddressPayload struct {
	Street     string `json:"street"`
	City       string `json:"city"`
	Region     string `json:"region,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
	Country    string `json:"country"`
	Phone      string `json:"phone,omitempty"`
}

type createOrderRequest struct {
	ProductID     string                 `json:"product_id"`
	Quantity      int32                  `json:"quantity"`
	PaymentMethod string                 `json:"payment_method"`
	Shipping      shippingAddressPayload `json:"shipping"`
	// Reserve управляет режимом удержания стока; по умолчанию сток
	// резервируется до подтверждения оплаты.
	Reserve *bool `json:"reserve,omitempty"`
}

type confirmPaymentRequest struct {
	TransactionID   string          `json:"transaction_id"`
	GatewayResponse json.RawMessage `json:"gateway_response,omitempty"`
}

type failPaymentRequest struct {
	Reason          string          `json:"reason"`
	GatewayResponse json.RawMessage `json:"gateway_response,omitempty"`
}

type shipOrderRequest struct {
	ShipmentID string `json:"shipment_id"`
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

type paymentPayload struct {
	Method          string          `json:"method"`
	Status          string          `json:"status"`
	TransactionID   string          `json:"transaction_id,omitempty"`
	GatewayResponse json.RawMessage `json:"gateway_response,omitempty"`
	PaidAt          *time.Time      `json:"paid_at,omitempty"`
	RefundedAt      *time.Time      `json:"refunded_at,omitempty"`
}

type orderLogPayload struct {
	FromStatus string    `json:"from_status,omitempty"`
	ToStatus   string    `json:"to_status"`
	ChangedBy  string    `json:"changed_by"`
	Note       string    `json:"note,omitempty"`
	ChangedAt  time.Time `json:"changed_at"`
}

type orderResponse struct {
	ID                 string                 `json:"id"`
	InvoiceID          string                 `json:"invoice_id"`
	UserID             string                 `json:"user_id"`
	ProductID          string                 `json:"product_id"`
	Quantity           int32                  `json:"quantity"`
	PriceAtAddMinor    int64                  `json:"price_at_add_minor"`
	DiscountMinor      int64                  `json:"discount_minor"`
	TotalMinor         int64                  `json:"total_minor"`
	TotalDiscountMinor int64                  `json:"total_discount_minor"`
	FinalMinor         int64                  `json:"final_minor"`
	Currency           string                 `json:"currency"`
	Status             string                 `json:"status"`
	Payment            paymentPayload         `json:"payment"`
	Shipping           shippingAddressPayload `json:"shipping"`
	ShipmentID         string                 `json:"shipment_id,omitempty"`
	Reserved           bool                   `json:"reserved"`
	Logs               []orderLogPayload      `json:"logs,omitempty"`
	Version            int64                  `json:"version"`
	CreatedAt          time.Time              `json:"created_at"`
	UpdatedAt          time.Time              `json:"updated_at"`
}

type paymentIntentResponse struct {
	IntentID    string `json:"intent_id"`
	InvoiceID   string `json:"invoice_id"`
	AmountMinor int64  `json:"amount_minor"`
	Currency    string `json:"currency"`
	RedirectURL string `json:"redirect_url"`
}

func toOrderResponse(order domain.Order) orderResponse {
	logs := make([]orderLogPayload, 0, len(order.Logs))
	for _, l := range order.Logs {
		logs = append(logs, orderLogPayload{
			FromStatus: string(l.FromStatus),
			ToStatus:   string(l.ToStatus),
			ChangedBy:  l.ChangedBy,
			Note:       l.Note,
			ChangedAt:  l.ChangedAt,
		})
	}

	return orderResponse{
		ID:                 order.ID,
		InvoiceID:          order.InvoiceID,
		UserID:             order.UserID,
		ProductID:          order.ProductID,
		Quantity:           order.Quantity,
		PriceAtAddMinor:    order.PriceAtAddMinor,
		DiscountMinor:      order.DiscountMinor,
		TotalMinor:         order.TotalMinor,
		TotalDiscountMinor: order.TotalDiscountMinor,
		FinalMinor:         order.FinalMinor,
		Currency:           order.Currency,
		Status:             string(order.Status),
		Payment: paymentPayload{
			Method:          string(order.Payment.Method),
			Status:          string(order.Payment.Status),
			TransactionID:   order.Payment.TransactionID,
			GatewayResponse: order.Payment.GatewayResponse,
			PaidAt:          order.Payment.PaidAt,
			RefundedAt:      order.Payment.RefundedAt,
		},
		Shipping: shippingAddressPayload{
			Street:     order.Shipping.Street,
			City:       order.Shipping.City,
			Region:     order.Shipping.Region,
			PostalCode: order.Shipping.PostalCode,
			Country:    order.Shipping.Country,
			Phone:      order.Shipping.Phone,
		},
		ShipmentID: order.ShipmentID,
		Reserved:   order.Reserved,
		Logs:       logs,
		Version:    order.Version,
		CreatedAt:  order.CreatedAt,
		UpdatedAt:  order.UpdatedAt,
	}
}

func (h *OrdersHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get(headerUserID)
	if userID == "" {
		writeError(w, h.logger, domain.ErrUserRequired)
		return
	}

	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid json"})
		return
	}

	order, err := h.engine.CreateOrder(r.Context(), workflow.CreateOrderInput{
		UserID:        userID,
		ProductID:     req.ProductID,
		Quantity:      req.Quantity,
		PaymentMethod: domain.PaymentMethod(req.PaymentMethod),
		Shipping: domain.ShippingAddress{
			Street:     req.Shipping.Street,
			City:       req.Shipping.City,
			Region:     req.Shipping.Region,
			PostalCode: req.Shipping.PostalCode,
			Country:    req.Shipping.Country,
			Phone:      req.Shipping.Phone,
		},
		Reserve: req.Reserve,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, toOrderResponse(order))
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.engine.GetOrder(r.Context(), chi.URLParam(r, "id"), r.Header.Get(headerUserID))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

type orderStatusResponse struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
	Source  string `json:"source"`
}

// orderStatus отдаёт только статус заказа — лёгкий endpoint для поллинга.
// Сначала пробуем кэш, который наполняет notification-диспетчер по событиям
// заказа; при промахе читаем заказ из хранилища.
func (h *OrdersHandler) orderStatus(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")

	if h.rdb != nil {
		status, err := redisx.CachedOrderStatus(r.Context(), h.rdb, orderID)
		if err != nil {
			h.logger.WithError(err).Debug("order status cache lookup failed")
		}
		if status != "" {
			writeJSON(w, http.StatusOK, orderStatusResponse{OrderID: orderID, Status: status, Source: "cache"})
			return
		}
	}

	order, err := h.engine.GetOrder(r.Context(), orderID, r.Header.Get(headerUserID))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, orderStatusResponse{OrderID: order.ID, Status: string(order.Status), Source: "store"})
}

func (h *OrdersHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get(headerUserID)
	if userID == "" {
		writeError(w, h.logger, domain.ErrUserRequired)
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid limit"})
			return
		}
		limit = parsed
	}

	orders, err := h.engine.ListOrders(r.Context(), userID, limit)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	resp := make([]orderResponse, 0, len(orders))
	for _, order := range orders {
		resp = append(resp, toOrderResponse(order))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *OrdersHandler) createPaymentIntent(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get(headerUserID)
	if userID == "" {
		writeError(w, h.logger, domain.ErrUserRequired)
		return
	}

	intent, err := h.engine.CreatePaymentIntent(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, paymentIntentResponse{
		IntentID:    intent.IntentID,
		InvoiceID:   intent.InvoiceID,
		AmountMinor: intent.AmountMinor,
		Currency:    intent.Currency,
		RedirectURL: intent.RedirectURL,
	})
}

// confirmPayment — callback платёжного провайдера об успешной оплате.
func (h *OrdersHandler) confirmPayment(w http.ResponseWriter, r *http.Request) {
	var req confirmPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid json"})
		return
	}
	if req.TransactionID == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "transaction_id is required"})
		return
	}

	order, err := h.engine.ConfirmPayment(r.Context(), chi.URLParam(r, "id"), req.TransactionID, req.GatewayResponse)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

func (h *OrdersHandler) failPayment(w http.ResponseWriter, r *http.Request) {
	var req failPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid json"})
		return
	}

	order, err := h.engine.FailPayment(r.Context(), chi.URLParam(r, "id"), req.Reason, req.GatewayResponse)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

func (h *OrdersHandler) shipOrder(w http.ResponseWriter, r *http.Request) {
	// Тело запроса опционально: отгрузка без номера отправления допустима.
	var req shipOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid json"})
		return
	}

	order, err := h.engine.ShipOrder(r.Context(), chi.URLParam(r, "id"), req.ShipmentID, h.actor(r))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

func (h *OrdersHandler) deliverOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.engine.DeliverOrder(r.Context(), chi.URLParam(r, "id"), h.actor(r))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

func (h *OrdersHandler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	var req reasonRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid json"})
		return
	}

	order, err := h.engine.CancelOrder(r.Context(), chi.URLParam(r, "id"), h.actor(r), req.Reason)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

func (h *OrdersHandler) refundOrder(w http.ResponseWriter, r *http.Request) {
	var req reasonRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid json"})
		return
	}

	order, err := h.engine.RefundOrder(r.Context(), chi.URLParam(r, "id"), h.actor(r), req.Reason)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

// actor определяет инициатора операции: покупатель, оператор из заголовка
// X-Actor или системное значение по умолчанию.
func (h *OrdersHandler) actor(r *http.Request) string {
	if actor := r.Header.Get(headerActor); actor != "" {
		return actor
	}
	if userID := r.Header.Get(headerUserID); userID != "" {
		return userID
	}
	return defaultActor
}
