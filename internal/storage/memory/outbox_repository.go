package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/mvshop/internal/domain"
)

// outboxEnqueuer сохраняет событие в outbox в рамках текущей транзакции.
type outboxEnqueuer struct {
	st *state
}

// Enqueue сохраняет событие со статусом `pending` и возвращает его идентификатор.
func (e *outboxEnqueuer) Enqueue(ctx context.Context, msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	e.st.outbox = append(e.st.outbox, outboxRow{
		msg:       msg,
		status:    outboxStatusPending,
		createdAt: now,
		updatedAt: now,
	})
	return msg, nil
}

var _ domain.OutboxEnqueuer = (*outboxEnqueuer)(nil)

// Методы OutboxRepository на Store: воркер публикации работает с
// зафиксированным состоянием вне пользовательских транзакций.

// Enqueue сохраняет событие напрямую, минуя Within (для переотправки из DLQ).
func (s *Store) Enqueue(ctx context.Context, msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (&outboxEnqueuer{st: s.st}).Enqueue(ctx, msg)
}

// PullPending возвращает до limit сообщений со статусом `pending`, старые первыми.
func (s *Store) PullPending(ctx context.Context, limit int) ([]domain.OutboxMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 {
		limit = 100
	}

	rows := make([]outboxRow, 0, limit)
	for _, row := range s.st.outbox {
		if row.status == outboxStatusPending {
			rows = append(rows, row)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].createdAt.Before(rows[j].createdAt) })
	if len(rows) > limit {
		rows = rows[:limit]
	}

	result := make([]domain.OutboxMessage, 0, len(rows))
	for _, row := range rows {
		result = append(result, row.msg)
	}
	return result, nil
}

// Stats возвращает размер backlog и возраст самого старого pending-сообщения.
func (s *Store) Stats(ctx context.Context) (domain.OutboxStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stats domain.OutboxStats
	for _, row := range s.st.outbox {
		if row.status != outboxStatusPending {
			continue
		}
		stats.PendingCount++
		if stats.OldestPendingAt.IsZero() || row.createdAt.Before(stats.OldestPendingAt) {
			stats.OldestPendingAt = row.createdAt
		}
	}
	return stats, nil
}

// MarkSent обновляет статус события после успешной публикации.
func (s *Store) MarkSent(ctx context.Context, id string) error {
	return s.markOutbox(id, outboxStatusSent)
}

// MarkFailed фиксирует ошибку публикации.
func (s *Store) MarkFailed(ctx context.Context, id string) error {
	return s.markOutbox(id, outboxStatusFailed)
}

func (s *Store) markOutbox(id, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.st.outbox {
		if s.st.outbox[i].msg.ID != id {
			continue
		}
		s.st.outbox[i].status = status
		s.st.outbox[i].attempts++
		s.st.outbox[i].updatedAt = time.Now().UTC()
		return nil
	}
	return domain.ErrOutboxPublish
}

var _ domain.OutboxRepository = (*Store)(nil)
