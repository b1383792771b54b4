package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vladislavdragonenkov/mvshop/internal/domain"
)

const orderColumns = `
	id, invoice_id, user_id, product_id, quantity,
	price_at_add_minor, discount_minor, total_minor, total_discount_minor, final_minor, currency,
	status, payment_method, payment_status, payment_transaction_id, payment_gateway_response, paid_at, refunded_at,
	ship_street, ship_city, ship_region, ship_postal_code, ship_country, ship_phone, shipment_id,
	reserved, is_deleted, deleted_at, version, created_at, updated_at`

type orderRepository struct {
	q queryer
}

// NewOrderRepository создаёт PostgreSQL-реализацию OrderRepository
// поверх пула подключений, вне транзакций UnitOfWork.
func NewOrderRepository(store *Store) domain.OrderRepository {
	return &orderRepository{q: store.DB()}
}

func (r *orderRepository) Create(ctx context.Context, order domain.Order) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO orders (`+orderColumns+`
		) VALUES (
			$1,$2,$3,$4,$5,
			$6,$7,$8,$9,$10,$11,
			$12,$13,$14,$15,$16,$17,$18,
			$19,$20,$21,$22,$23,$24,$25,
			$26,$27,$28,$29,$30,$31
		)
	`,
		order.ID, order.InvoiceID, order.UserID, order.ProductID, order.Quantity,
		order.PriceAtAddMinor, order.DiscountMinor, order.TotalMinor, order.TotalDiscountMinor, order.FinalMinor, order.Currency,
		string(order.Status), string(order.Payment.Method), string(order.Payment.Status), nullString(order.Payment.TransactionID), nullJSON(order.Payment.GatewayResponse), order.Payment.PaidAt, order.Payment.RefundedAt,
		order.Shipping.Street, order.Shipping.City, order.Shipping.Region, order.Shipping.PostalCode, order.Shipping.Country, order.Shipping.Phone, order.ShipmentID,
		order.Reserved, order.IsDeleted, order.DeletedAt, order.Version, order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if isUniqueViolation(err) && errors.As(err, &pgErr) {
			if strings.Contains(pgErr.ConstraintName, "invoice") {
				return domain.ErrInvoiceConflict
			}
			return domain.ErrOrderVersionConflict
		}
		return fmt.Errorf("insert order: %w", err)
	}

	for _, log := range order.Logs {
		if err := r.AppendLog(ctx, log); err != nil {
			return err
		}
	}

	return nil
}

func (r *orderRepository) Get(ctx context.Context, id string) (domain.Order, error) {
	return r.getWhere(ctx, "id = $1 AND NOT is_deleted", id)
}

func (r *orderRepository) GetByInvoice(ctx context.Context, invoiceID string) (domain.Order, error) {
	return r.getWhere(ctx, "invoice_id = $1 AND NOT is_deleted", invoiceID)
}

func (r *orderRepository) getWhere(ctx context.Context, where string, arg any) (domain.Order, error) {
	row := r.q.QueryRowContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE `+where, arg)

	order, err := scanOrder(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, fmt.Errorf("select order: %w", err)
	}

	logs, err := r.loadLogs(ctx, order.ID)
	if err != nil {
		return domain.Order{}, err
	}
	order.Logs = logs

	return order, nil
}

func (r *orderRepository) ListByUser(ctx context.Context, userID string, limit int) ([]domain.Order, error) {
	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE user_id = $1 AND NOT is_deleted
		ORDER BY created_at DESC, id DESC
	`

	var (
		rows *sql.Rows
		err  error
	)

	if limit > 0 {
		rows, err = r.q.QueryContext(ctx, query+" LIMIT $2", userID, limit)
	} else {
		rows, err = r.q.QueryContext(ctx, query, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := make([]domain.Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan order row: %w", err)
		}

		logs, err := r.loadLogs(ctx, order.ID)
		if err != nil {
			return nil, err
		}
		order.Logs = logs
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order rows: %w", err)
	}

	return orders, nil
}

func (r *orderRepository) Save(ctx context.Context, order domain.Order) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE orders
		SET status = $1,
		    payment_method = $2,
		    payment_status = $3,
		    payment_transaction_id = $4,
		    payment_gateway_response = $5,
		    paid_at = $6,
		    refunded_at = $7,
		    shipment_id = $8,
		    reserved = $9,
		    is_deleted = $10,
		    deleted_at = $11,
		    version = version + 1,
		    updated_at = NOW()
		WHERE id = $12
		  AND version = $13
	`,
		string(order.Status),
		string(order.Payment.Method),
		string(order.Payment.Status),
		nullString(order.Payment.TransactionID),
		nullJSON(order.Payment.GatewayResponse),
		order.Payment.PaidAt,
		order.Payment.RefundedAt,
		order.ShipmentID,
		order.Reserved,
		order.IsDeleted,
		order.DeletedAt,
		order.ID,
		order.Version,
	)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		exists, err := r.orderExists(ctx, order.ID)
		if err != nil {
			return err
		}
		if !exists {
			return domain.ErrOrderNotFound
		}
		return domain.ErrOrderVersionConflict
	}

	return nil
}

func (r *orderRepository) AppendLog(ctx context.Context, log domain.OrderLog) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO order_logs (
			id, order_id, from_status, to_status, changed_by, note, changed_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7)
	`,
		log.ID, log.OrderID, string(log.FromStatus), string(log.ToStatus),
		log.ChangedBy, log.Note, log.ChangedAt,
	)
	if err != nil {
		return fmt.Errorf("insert order log: %w", err)
	}
	return nil
}

func (r *orderRepository) loadLogs(ctx context.Context, orderID string) ([]domain.OrderLog, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, order_id, from_status, to_status, changed_by, note, changed_at
		FROM order_logs
		WHERE order_id = $1
		ORDER BY changed_at ASC, id ASC
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("load order logs: %w", err)
	}
	defer rows.Close()

	logs := make([]domain.OrderLog, 0)
	for rows.Next() {
		var (
			log      domain.OrderLog
			from, to string
		)
		if err := rows.Scan(&log.ID, &log.OrderID, &from, &to, &log.ChangedBy, &log.Note, &log.ChangedAt); err != nil {
			return nil, fmt.Errorf("scan order log: %w", err)
		}
		log.FromStatus = domain.OrderStatus(from)
		log.ToStatus = domain.OrderStatus(to)
		logs = append(logs, log)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order logs: %w", err)
	}

	return logs, nil
}

func (r *orderRepository) orderExists(ctx context.Context, orderID string) (bool, error) {
	var id string
	err := r.q.QueryRowContext(ctx, `SELECT id FROM orders WHERE id = $1`, orderID).Scan(&id)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return false, fmt.Errorf("check order exists: %w", err)
}

func scanOrder(scan func(dest ...any) error) (domain.Order, error) {
	var (
		order                        domain.Order
		status, payMethod, payStatus string
		txID                         sql.NullString
		gateway                      []byte
	)
	err := scan(
		&order.ID, &order.InvoiceID, &order.UserID, &order.ProductID, &order.Quantity,
		&order.PriceAtAddMinor, &order.DiscountMinor, &order.TotalMinor, &order.TotalDiscountMinor, &order.FinalMinor, &order.Currency,
		&status, &payMethod, &payStatus, &txID, &gateway, &order.Payment.PaidAt, &order.Payment.RefundedAt,
		&order.Shipping.Street, &order.Shipping.City, &order.Shipping.Region, &order.Shipping.PostalCode, &order.Shipping.Country, &order.Shipping.Phone, &order.ShipmentID,
		&order.Reserved, &order.IsDeleted, &order.DeletedAt, &order.Version, &order.CreatedAt, &order.UpdatedAt,
	)
	if err != nil {
		return domain.Order{}, err
	}
	order.Status = domain.OrderStatus(status)
	order.Payment.Method = domain.PaymentMethod(payMethod)
	order.Payment.Status = domain.PaymentStatus(payStatus)
	order.Payment.TransactionID = txID.String
	order.Payment.GatewayResponse = json.RawMessage(gateway)
	return order, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullJSON(raw json.RawMessage) []byte {
	if len(raw) == 0 {
		return nil
	}
	return raw
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

var _ domain.OrderRepository = (*orderRepository)(nil)
