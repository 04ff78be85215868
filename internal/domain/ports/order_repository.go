package ports

import (
	"context"
	"time"

	"github.com/kevin07696/newebpay-service/internal/domain"
)

// OrderFilter narrows List results
type OrderFilter struct {
	// RefundableOnly limits results to orders still in the paid state
	RefundableOnly bool
}

// OrderRepository defines the interface for order persistence.
// Results from List are sorted by PayTime, newest first.
type OrderRepository interface {
	// Get retrieves an order by merchant order number, ErrOrderNotFound if absent
	Get(ctx context.Context, merchantOrderNo string) (*domain.Order, error)

	// GetByTradeNo retrieves an order by the gateway trade number
	GetByTradeNo(ctx context.Context, tradeNo string) (*domain.Order, error)

	// List returns orders matching the filter
	List(ctx context.Context, filter OrderFilter) ([]*domain.Order, error)

	// Upsert inserts a new paid order or merges a repeated notification into the
	// existing record. It reports whether a new record was created.
	Upsert(ctx context.Context, order *domain.Order) (created bool, err error)

	// MarkRefunded moves a paid order to refunded. It fails with
	// ErrOrderAlreadyRefunded if the order is not currently paid.
	MarkRefunded(ctx context.Context, merchantOrderNo string, refundedAt time.Time) error

	// Ping checks the backing store is reachable
	Ping(ctx context.Context) error
}

// KeyedLocker serializes read-modify-write sequences per order.
type KeyedLocker interface {
	// Lock blocks until the key is held or ctx is done. The returned func releases it.
	Lock(ctx context.Context, key string) (unlock func(), err error)
}
