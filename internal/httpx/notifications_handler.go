package httpx

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/mvshop/internal/domain"
)

// defaultNotificationsLimit ограничивает выдачу, если клиент не задал limit.
const defaultNotificationsLimit = 50

// NotificationsHandler отдаёт пользователю ленту уведомлений о заказах.
type NotificationsHandler struct {
	repo   domain.NotificationRepository
	logger *log.Entry
}

func NewNotificationsHandler(repo domain.NotificationRepository, logger *log.Entry) *NotificationsHandler {
	if logger == nil {
		logger = log.New().WithField("component", "http")
	}
	return &NotificationsHandler{repo: repo, logger: logger}
}

// Register вешает маршруты уведомлений на роутер.
func (h *NotificationsHandler) Register(r chi.Router) {
	r.Get("/api/v1/notifications", h.listNotifications)
}

type notificationResponse struct {
	ID           string     `json:"id"`
	OrderID      string     `json:"order_id"`
	EventType    string     `json:"event_type"`
	Message      string     `json:"message"`
	Status       string     `json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
	DispatchedAt *time.Time `json:"dispatched_at,omitempty"`
}

func (h *NotificationsHandler) listNotifications(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get(headerUserID)
	if userID == "" {
		writeError(w, h.logger, domain.ErrUserRequired)
		return
	}

	limit := defaultNotificationsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid limit"})
			return
		}
		limit = parsed
	}

	items, err := h.repo.ListByUser(r.Context(), userID, limit)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	resp := make([]notificationResponse, 0, len(items))
	for _, n := range items {
		resp = append(resp, notificationResponse{
			ID:           n.ID,
			OrderID:      n.OrderID,
			EventType:    n.EventType,
			Message:      n.Message,
			Status:       string(n.Status),
			CreatedAt:    n.CreatedAt,
			DispatchedAt: n.DispatchedAt,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}
