package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/mvshop/internal/domain"
)

// notificationWriter создаёт уведомления в рамках текущей транзакции.
type notificationWriter struct {
	st *state
}

func (w *notificationWriter) Notify(ctx context.Context, n domain.Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.Status == "" {
		n.Status = domain.NotificationStatusPending
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	w.st.notifications = append(w.st.notifications, n)
	return nil
}

var _ domain.NotificationWriter = (*notificationWriter)(nil)

// auditWriter пишет записи аудита в рамках текущей транзакции.
type auditWriter struct {
	st *state
}

func (w *auditWriter) Record(ctx context.Context, entry domain.AuditEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	w.st.audit = append(w.st.audit, entry)
	return nil
}

var _ domain.AuditWriter = (*auditWriter)(nil)

// Методы NotificationRepository на Store: диспетчер уведомлений работает
// вне пользовательских транзакций.

// Notify создаёт уведомление напрямую, минуя Within.
func (s *Store) Notify(ctx context.Context, n domain.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&notificationWriter{st: s.st}).Notify(ctx, n)
}

// MarkDispatched помечает отправленными pending-уведомления заказа по типу события.
func (s *Store) MarkDispatched(ctx context.Context, orderID, eventType string, at time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var affected int
	for i := range s.st.notifications {
		n := &s.st.notifications[i]
		if n.OrderID != orderID || n.EventType != eventType || n.Status != domain.NotificationStatusPending {
			continue
		}
		n.Status = domain.NotificationStatusDispatched
		dispatched := at
		n.DispatchedAt = &dispatched
		affected++
	}
	return affected, nil
}

// ListByUser возвращает уведомления пользователя, новые первыми.
func (s *Store) ListByUser(ctx context.Context, userID string, limit int) ([]domain.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]domain.Notification, 0)
	for _, n := range s.st.notifications {
		if n.UserID == userID {
			result = append(result, n)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

var _ domain.NotificationRepository = (*Store)(nil)

// AuditEntries возвращает копию журнала аудита (используется в тестах).
func (s *Store) AuditEntries() []domain.AuditEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.AuditEntry(nil), s.st.audit...)
}
