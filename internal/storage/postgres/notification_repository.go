package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/mvshop/internal/domain"
)

type notificationRepository struct {
	q queryer
}

// NewNotificationRepository создаёт PostgreSQL-реализацию NotificationRepository
// для диспетчера уведомлений, вне транзакций UnitOfWork.
func NewNotificationRepository(store *Store) domain.NotificationRepository {
	return &notificationRepository{q: store.DB()}
}

func (r *notificationRepository) Notify(ctx context.Context, n domain.Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.Status == "" {
		n.Status = domain.NotificationStatusPending
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}

	_, err := r.q.ExecContext(ctx, `
		INSERT INTO notifications (
			id, user_id, order_id, event_type, message, status, created_at, dispatched_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`,
		n.ID, n.UserID, n.OrderID, n.EventType, n.Message, string(n.Status), n.CreatedAt, n.DispatchedAt,
	)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func (r *notificationRepository) MarkDispatched(ctx context.Context, orderID, eventType string, at time.Time) (int, error) {
	res, err := r.q.ExecContext(ctx, `
		UPDATE notifications
		SET status = $3,
		    dispatched_at = $4
		WHERE order_id = $1
		  AND event_type = $2
		  AND status = $5
	`, orderID, eventType, string(domain.NotificationStatusDispatched), at, string(domain.NotificationStatusPending))
	if err != nil {
		return 0, fmt.Errorf("mark notifications dispatched: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(affected), nil
}

func (r *notificationRepository) ListByUser(ctx context.Context, userID string, limit int) ([]domain.Notification, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.q.QueryContext(ctx, `
		SELECT id, user_id, order_id, event_type, message, status, created_at, dispatched_at
		FROM notifications
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	result := make([]domain.Notification, 0, limit)
	for rows.Next() {
		var (
			n      domain.Notification
			status string
		)
		if err := rows.Scan(&n.ID, &n.UserID, &n.OrderID, &n.EventType, &n.Message, &status, &n.CreatedAt, &n.DispatchedAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		n.Status = domain.NotificationStatus(status)
		result = append(result, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notifications: %w", err)
	}

	return result, nil
}

var _ domain.NotificationRepository = (*notificationRepository)(nil)

// auditWriter пишет записи аудита в той же транзакции, что и изменение ресурса.
type auditWriter struct {
	q queryer
}

// NewAuditWriter создаёт PostgreSQL-реализацию AuditWriter поверх пула подключений.
func NewAuditWriter(store *Store) domain.AuditWriter {
	return &auditWriter{q: store.DB()}
}

func (w *auditWriter) Record(ctx context.Context, entry domain.AuditEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := w.q.ExecContext(ctx, `
		INSERT INTO audit_log (
			id, resource_type, resource_id, action, performed_by,
			previous_data, new_data, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`,
		entry.ID, entry.ResourceType, entry.ResourceID, entry.Action, entry.PerformedBy,
		nullBytes(entry.PreviousData), nullBytes(entry.NewData), entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

func nullBytes(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return []byte(b)
}

var _ domain.AuditWriter = (*auditWriter)(nil)
