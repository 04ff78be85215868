package payment

import (
	"context"
	"strings"

	"github.com/kevin07696/newebpay-service/internal/adapters/newebpay"
	adapterports "github.com/kevin07696/newebpay-service/internal/adapters/ports"
	"github.com/kevin07696/newebpay-service/internal/domain"
	"github.com/kevin07696/newebpay-service/internal/services/ports"
	"github.com/kevin07696/newebpay-service/pkg/observability"
	"go.uber.org/zap"
)

const (
	OperationCapture = "capture"
	OperationRefund  = "refund"
	OperationCancel  = "cancel"

	messageReconciled = "outcome confirmed by follow-up query"
)

// Refund returns funds on a captured trade. The live trade must report
// CloseStatus=3 and BackStatus=0 before the refund is sent.
func (s *Service) Refund(ctx context.Context, req *ports.TradeRequest) (*ports.OperationResult, error) {
	ctx, cancel := s.timeouts.ServiceContext(ctx)
	defer cancel()

	orderNo := strings.TrimSpace(req.MerchantOrderNo)
	if err := domain.ValidateMerchantOrderNo(orderNo); err != nil {
		return nil, err
	}
	amount, err := wholeAmount(req.Amount)
	if err != nil {
		return nil, err
	}

	var result *ports.OperationResult
	err = s.withOrderLock(ctx, orderNo, func(ctx context.Context) error {
		tradeNo := strings.TrimSpace(req.TradeNo)
		if !req.Manual {
			order, err := s.orders.Get(ctx, orderNo)
			if err != nil {
				return err
			}
			if order.IsRefunded() {
				return domain.ErrOrderAlreadyRefunded
			}
			if order.Amount != amount {
				return domain.NewDomainError(domain.ErrorCodeOrderAmountMismatch, "refund amount does not match order amount").
					WithDetail("order_amount", order.Amount).
					WithDetail("requested_amount", amount)
			}
			if tradeNo == "" {
				tradeNo = order.TradeNo
			}
		}
		if tradeNo == "" {
			return domain.ErrMissingTradeReference
		}

		state, err := s.queryTrade(ctx, orderNo, amount)
		if err != nil {
			return err
		}
		if !state.CanRefund() {
			return notRefundable(state)
		}

		closeReq := &adapterports.CloseRequest{
			MerchantOrderNo: orderNo,
			TradeNo:         tradeNo,
			Amount:          amount,
			Type:            adapterports.CloseTypeRefund,
		}
		result, err = s.sendClose(ctx, OperationRefund, closeReq, func(st *domain.TradeState) bool {
			return st.BackStatus.RefundStarted()
		})
		if err != nil {
			return err
		}

		if req.Manual {
			return nil
		}
		if err := s.orders.MarkRefunded(ctx, orderNo, s.now()); err != nil {
			// the gateway accepted the refund; the sweep converges the store
			s.logger.Error("Refund accepted but order not marked refunded",
				zap.String("merchant_order_no", orderNo),
				zap.String("trade_no", tradeNo),
				zap.Error(err),
			)
			return nil
		}
		observability.RecordOrderTransition(string(domain.OrderStatusRefunded))
		return nil
	})
	if err != nil {
		s.logOperationFailure(OperationRefund, orderNo, err)
		return nil, err
	}

	s.logger.Info("Refund accepted",
		zap.String("merchant_order_no", orderNo),
		zap.String("trade_no", result.TradeNo),
		zap.Int64("amount", amount),
		zap.Bool("manual", req.Manual),
		zap.Bool("reconciled", result.Reconciled),
	)
	return result, nil
}

// Capture requests payment on an authorized trade that has not entered the capture pipeline
func (s *Service) Capture(ctx context.Context, req *ports.TradeRequest) (*ports.OperationResult, error) {
	ctx, cancel := s.timeouts.ServiceContext(ctx)
	defer cancel()

	orderNo := strings.TrimSpace(req.MerchantOrderNo)
	if err := domain.ValidateMerchantOrderNo(orderNo); err != nil {
		return nil, err
	}
	tradeNo := strings.TrimSpace(req.TradeNo)
	if tradeNo == "" {
		return nil, domain.ErrMissingTradeReference
	}
	amount, err := wholeAmount(req.Amount)
	if err != nil {
		return nil, err
	}

	var result *ports.OperationResult
	err = s.withOrderLock(ctx, orderNo, func(ctx context.Context) error {
		state, err := s.queryTrade(ctx, orderNo, amount)
		if err != nil {
			return err
		}
		if !state.CanCapture() {
			return domain.NewDomainError(domain.ErrorCodeOrderNotCapturable, "trade has already entered the capture pipeline").
				WithDetail("close_status", int(state.CloseStatus)).
				WithDetail("close_status_text", state.CloseStatus.String())
		}

		result, err = s.sendClose(ctx, OperationCapture, &adapterports.CloseRequest{
			MerchantOrderNo: orderNo,
			TradeNo:         tradeNo,
			Amount:          amount,
			Type:            adapterports.CloseTypeCapture,
		}, func(st *domain.TradeState) bool {
			return st.CloseStatus.CaptureStarted()
		})
		return err
	})
	if err != nil {
		s.logOperationFailure(OperationCapture, orderNo, err)
		return nil, err
	}

	s.logger.Info("Capture requested",
		zap.String("merchant_order_no", orderNo),
		zap.String("trade_no", tradeNo),
		zap.Int64("amount", amount),
		zap.Bool("reconciled", result.Reconciled),
	)
	return result, nil
}

// Cancel voids an authorization that was never captured
func (s *Service) Cancel(ctx context.Context, req *ports.TradeRequest) (*ports.OperationResult, error) {
	ctx, cancel := s.timeouts.ServiceContext(ctx)
	defer cancel()

	orderNo := strings.TrimSpace(req.MerchantOrderNo)
	if err := domain.ValidateMerchantOrderNo(orderNo); err != nil {
		return nil, err
	}
	tradeNo := strings.TrimSpace(req.TradeNo)
	if tradeNo == "" {
		return nil, domain.ErrMissingTradeReference
	}
	amount, err := wholeAmount(req.Amount)
	if err != nil {
		return nil, err
	}

	var result *ports.OperationResult
	err = s.withOrderLock(ctx, orderNo, func(ctx context.Context) error {
		gctx, gcancel := s.timeouts.GatewayContext(ctx)
		defer gcancel()

		res, err := s.gateway.Cancel(gctx, &adapterports.CancelRequest{
			MerchantOrderNo: orderNo,
			TradeNo:         tradeNo,
			Amount:          amount,
		})
		if err != nil {
			return err
		}
		result = operationResult(OperationCancel, orderNo, tradeNo, amount, res)
		return nil
	})
	if err != nil {
		s.logOperationFailure(OperationCancel, orderNo, err)
		return nil, err
	}

	s.logger.Info("Authorization cancelled",
		zap.String("merchant_order_no", orderNo),
		zap.String("trade_no", tradeNo),
		zap.Int64("amount", amount),
	)
	return result, nil
}

// Query returns the live trade state. A zero amount falls back to the stored order.
func (s *Service) Query(ctx context.Context, req *ports.TradeRequest) (*ports.QueryResult, error) {
	ctx, cancel := s.timeouts.ServiceContext(ctx)
	defer cancel()

	orderNo := strings.TrimSpace(req.MerchantOrderNo)
	if err := domain.ValidateMerchantOrderNo(orderNo); err != nil {
		return nil, err
	}

	amount := newebpay.TruncateAmount(req.Amount)
	if amount <= 0 {
		order, err := s.orders.Get(ctx, orderNo)
		if err != nil {
			return nil, err
		}
		amount = order.Amount
	}

	state, err := s.queryTrade(ctx, orderNo, amount)
	if err != nil {
		s.logOperationFailure("query", orderNo, err)
		return nil, err
	}

	return &ports.QueryResult{
		State:           state,
		CloseStatusText: state.CloseStatus.String(),
		BackStatusText:  state.BackStatus.String(),
		CanRefund:       state.CanRefund(),
		CanCapture:      state.CanCapture(),
	}, nil
}

// sendClose sends a capture or refund once. An unknown outcome is resolved by
// querying the trade; started reports whether the query shows the operation took effect.
func (s *Service) sendClose(
	ctx context.Context,
	operation string,
	req *adapterports.CloseRequest,
	started func(*domain.TradeState) bool,
) (*ports.OperationResult, error) {
	res, err := s.closeTrade(ctx, req)
	if err == nil {
		return operationResult(operation, req.MerchantOrderNo, req.TradeNo, req.Amount, res), nil
	}
	if !domain.IsUnknownOutcome(err) {
		return nil, err
	}

	s.logger.Warn("Gateway outcome unknown, querying trade",
		zap.String("operation", operation),
		zap.String("merchant_order_no", req.MerchantOrderNo),
		zap.Error(err),
	)

	state, qerr := s.queryTrade(ctx, req.MerchantOrderNo, req.Amount)
	if qerr != nil {
		s.logger.Error("Follow-up query failed, outcome remains unknown",
			zap.String("operation", operation),
			zap.String("merchant_order_no", req.MerchantOrderNo),
			zap.Error(qerr),
		)
		return nil, err
	}
	if !started(state) {
		return nil, err
	}

	return &ports.OperationResult{
		Operation:       operation,
		Status:          newebpay.StatusSuccess,
		Message:         messageReconciled,
		MerchantOrderNo: req.MerchantOrderNo,
		TradeNo:         req.TradeNo,
		Amount:          req.Amount,
		Reconciled:      true,
	}, nil
}

func operationResult(operation, orderNo, tradeNo string, amount int64, res *adapterports.CloseResult) *ports.OperationResult {
	out := &ports.OperationResult{
		Operation:       operation,
		Status:          res.Status,
		Message:         res.Message,
		MerchantOrderNo: orderNo,
		TradeNo:         tradeNo,
		Amount:          amount,
	}
	if res.TradeNo != "" {
		out.TradeNo = res.TradeNo
	}
	return out
}

func notRefundable(state *domain.TradeState) error {
	return domain.NewDomainError(domain.ErrorCodeOrderNotRefundable, "trade is not in a refundable state").
		WithDetail("close_status", int(state.CloseStatus)).
		WithDetail("close_status_text", state.CloseStatus.String()).
		WithDetail("back_status", int(state.BackStatus)).
		WithDetail("back_status_text", state.BackStatus.String())
}

func (s *Service) logOperationFailure(operation, orderNo string, err error) {
	fields := []zap.Field{
		zap.String("operation", operation),
		zap.String("merchant_order_no", orderNo),
		zap.String("error_code", string(domain.GetErrorCode(err))),
		zap.Error(err),
	}
	if rej, ok := domain.AsGatewayRejection(err); ok {
		fields = append(fields, zap.String("gateway_status", rej.Status))
	}
	if domain.IsValidationError(err) || domain.IsNotFoundError(err) {
		s.logger.Warn("Operation refused", fields...)
		return
	}
	s.logger.Error("Operation failed", fields...)
}
