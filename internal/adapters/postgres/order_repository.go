package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/kevin07696/newebpay-service/internal/domain"
	"github.com/kevin07696/newebpay-service/internal/domain/ports"
	"go.uber.org/zap"
)

const orderColumns = `merchant_order_no, trade_no, amount, item_desc, card4_no, payment_type,
	status, pay_time, refunded_at, created_at, updated_at`

// upsertOrderSQL inserts a paid order or merges a repeated notification.
// Existing non-empty fields, pay_time, created_at and status are never overwritten.
// xmax = 0 only for a freshly inserted row.
const upsertOrderSQL = `
INSERT INTO orders (` + orderColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, 'paid', $7, NULL, $8, $8)
ON CONFLICT (merchant_order_no) DO UPDATE SET
	trade_no     = CASE WHEN orders.trade_no = '' THEN EXCLUDED.trade_no ELSE orders.trade_no END,
	item_desc    = CASE WHEN orders.item_desc = '' THEN EXCLUDED.item_desc ELSE orders.item_desc END,
	card4_no     = CASE WHEN orders.card4_no = '' THEN EXCLUDED.card4_no ELSE orders.card4_no END,
	payment_type = CASE WHEN orders.payment_type = '' THEN EXCLUDED.payment_type ELSE orders.payment_type END,
	pay_time     = COALESCE(orders.pay_time, EXCLUDED.pay_time),
	updated_at   = EXCLUDED.updated_at
RETURNING (xmax = 0) AS inserted`

const markRefundedSQL = `
UPDATE orders SET status = 'refunded', refunded_at = $2, updated_at = $2
WHERE merchant_order_no = $1 AND status = 'paid'`

type orderRepository struct {
	db     DB
	logger *zap.Logger
}

// NewOrderRepository creates a PostgreSQL order repository
func NewOrderRepository(db DB, logger *zap.Logger) ports.OrderRepository {
	return &orderRepository{db: db, logger: logger}
}

func (r *orderRepository) Get(ctx context.Context, merchantOrderNo string) (*domain.Order, error) {
	row := r.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE merchant_order_no = $1`, merchantOrderNo)
	return scanOrder(row)
}

func (r *orderRepository) GetByTradeNo(ctx context.Context, tradeNo string) (*domain.Order, error) {
	if tradeNo == "" {
		return nil, domain.ErrOrderNotFound
	}
	row := r.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE trade_no = $1`, tradeNo)
	return scanOrder(row)
}

func (r *orderRepository) List(ctx context.Context, filter ports.OrderFilter) ([]*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders`
	if filter.RefundableOnly {
		query += ` WHERE status = 'paid' AND trade_no <> ''`
	}
	query += ` ORDER BY pay_time DESC NULLS LAST, merchant_order_no`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, domain.WrapError(domain.ErrorCodeStoreError, "list orders", err)
	}
	defer rows.Close()

	orders := make([]*domain.Order, 0)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.WrapError(domain.ErrorCodeStoreError, "list orders", err)
	}
	return orders, nil
}

func (r *orderRepository) Upsert(ctx context.Context, order *domain.Order) (bool, error) {
	now := order.UpdatedAt
	if now.IsZero() {
		now = time.Now().UTC()
	}

	var inserted bool
	err := r.db.QueryRow(ctx, upsertOrderSQL,
		order.MerchantOrderNo,
		order.TradeNo,
		order.Amount,
		order.ItemDesc,
		order.Card4No,
		order.PaymentType,
		nullTime(order.PayTime),
		now,
	).Scan(&inserted)
	if err != nil {
		return false, domain.WrapError(domain.ErrorCodeStoreError, "upsert order", err).
			WithDetail("merchant_order_no", order.MerchantOrderNo)
	}

	r.logger.Debug("Order upserted",
		zap.String("merchant_order_no", order.MerchantOrderNo),
		zap.Bool("created", inserted),
	)
	return inserted, nil
}

func (r *orderRepository) MarkRefunded(ctx context.Context, merchantOrderNo string, refundedAt time.Time) error {
	return withTransaction(ctx, r.db, func(ctx context.Context, tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, markRefundedSQL, merchantOrderNo, refundedAt)
		if err != nil {
			return domain.WrapError(domain.ErrorCodeStoreError, "mark order refunded", err)
		}
		if tag.RowsAffected() == 1 {
			return nil
		}

		// Nothing updated: distinguish a missing order from one already refunded
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE merchant_order_no = $1)`, merchantOrderNo).Scan(&exists); err != nil {
			return domain.WrapError(domain.ErrorCodeStoreError, "mark order refunded", err)
		}
		if !exists {
			return domain.ErrOrderNotFound
		}
		return domain.ErrOrderAlreadyRefunded
	})
}

func (r *orderRepository) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}

func scanOrder(row pgx.Row) (*domain.Order, error) {
	var (
		o          domain.Order
		status     string
		payTime    *time.Time
		refundedAt *time.Time
	)
	err := row.Scan(
		&o.MerchantOrderNo,
		&o.TradeNo,
		&o.Amount,
		&o.ItemDesc,
		&o.Card4No,
		&o.PaymentType,
		&status,
		&payTime,
		&refundedAt,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrOrderNotFound
	}
	if err != nil {
		return nil, domain.WrapError(domain.ErrorCodeStoreError, "scan order", err)
	}

	o.Status = domain.OrderStatus(status)
	if payTime != nil {
		o.PayTime = payTime.UTC()
	}
	if refundedAt != nil {
		t := refundedAt.UTC()
		o.RefundedAt = &t
	}
	o.CreatedAt = o.CreatedAt.UTC()
	o.UpdatedAt = o.UpdatedAt.UTC()
	return &o, nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
