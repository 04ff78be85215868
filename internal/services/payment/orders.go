package payment

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"github.com/kevin07696/newebpay-service/internal/domain"
	domainports "github.com/kevin07696/newebpay-service/internal/domain/ports"
	"github.com/kevin07696/newebpay-service/internal/services/ports"
	"github.com/kevin07696/newebpay-service/pkg/observability"
	"github.com/kevin07696/newebpay-service/pkg/resilience"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// sweepAttempts bounds queries per order within one sweep
const sweepAttempts = 2

// ListOrders returns stored orders, newest payment first
func (s *Service) ListOrders(ctx context.Context, filter domainports.OrderFilter) ([]*domain.Order, error) {
	ctx, cancel := s.timeouts.StoreContext(ctx)
	defer cancel()
	return s.orders.List(ctx, filter)
}

// GetOrder returns one stored order
func (s *Service) GetOrder(ctx context.Context, merchantOrderNo string) (*domain.Order, error) {
	ctx, cancel := s.timeouts.StoreContext(ctx)
	defer cancel()
	return s.orders.Get(ctx, strings.TrimSpace(merchantOrderNo))
}

// WithSweepBackoff overrides the delay between query attempts during a sweep
func WithSweepBackoff(b resilience.BackoffStrategy) Option {
	return func(s *Service) { s.sweepBackoff = b }
}

// ReconcileSweep queries every paid order and marks refunded those whose refund
// the gateway reports as started. It repairs refunds issued outside this service
// and refunds whose local update failed.
func (s *Service) ReconcileSweep(ctx context.Context) (*ports.SweepResult, error) {
	ctx, cancel := s.timeouts.SweepContext(ctx)
	defer cancel()

	start := time.Now()
	orders, err := s.orders.List(ctx, domainports.OrderFilter{RefundableOnly: true})
	if err != nil {
		return nil, err
	}

	var marked, failed atomic.Int64
	g := new(errgroup.Group)
	g.SetLimit(s.config.SweepConcurrency)
	for _, order := range orders {
		order := order
		g.Go(func() error {
			refunded, err := s.reconcileOrder(ctx, order)
			switch {
			case err != nil:
				failed.Add(1)
				s.logger.Warn("Reconcile check failed",
					zap.String("merchant_order_no", order.MerchantOrderNo),
					zap.String("error_code", string(domain.GetErrorCode(err))),
					zap.Error(err),
				)
			case refunded:
				marked.Add(1)
			}
			// one order failing never stops the sweep
			return nil
		})
	}
	_ = g.Wait()

	result := &ports.SweepResult{
		Checked:        len(orders),
		MarkedRefunded: int(marked.Load()),
		Failed:         int(failed.Load()),
	}
	s.logger.Info("Reconcile sweep completed",
		zap.Int("checked", result.Checked),
		zap.Int("marked_refunded", result.MarkedRefunded),
		zap.Int("failed", result.Failed),
		zap.Duration("elapsed", time.Since(start)),
	)
	return result, ctx.Err()
}

func (s *Service) reconcileOrder(ctx context.Context, order *domain.Order) (bool, error) {
	var state *domain.TradeState
	var err error
	for attempt := 0; attempt < sweepAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return false, ctx.Err()
			case <-time.After(s.sweepBackoff.NextDelay(attempt - 1)):
			}
		}
		state, err = s.queryTrade(ctx, order.MerchantOrderNo, order.Amount)
		if err == nil || domain.IsValidationError(err) {
			break
		}
	}
	if err != nil {
		return false, err
	}
	if !state.BackStatus.RefundStarted() {
		return false, nil
	}

	err = s.withOrderLock(ctx, order.MerchantOrderNo, func(ctx context.Context) error {
		return s.orders.MarkRefunded(ctx, order.MerchantOrderNo, s.now())
	})
	if domain.IsDomainError(err, domain.ErrorCodeOrderAlreadyRefunded) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	observability.RecordOrderTransition(string(domain.OrderStatusRefunded))
	s.logger.Info("Order reconciled to refunded",
		zap.String("merchant_order_no", order.MerchantOrderNo),
		zap.String("back_status", state.BackStatus.String()),
	)
	return true, nil
}
