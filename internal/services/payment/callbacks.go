package payment

import (
	"context"
	"strconv"

	"github.com/kevin07696/newebpay-service/internal/adapters/newebpay"
	adapterports "github.com/kevin07696/newebpay-service/internal/adapters/ports"
	"github.com/kevin07696/newebpay-service/internal/domain"
	"github.com/kevin07696/newebpay-service/internal/services/ports"
	"github.com/kevin07696/newebpay-service/pkg/observability"
	"go.uber.org/zap"
)

const (
	// StatusError marks a return the service could not verify or decode
	StatusError = "ERROR"

	MessageCheckCodeFailed = "CheckCodeFailed"
	MessageJSONParseFailed = "JSONParseFailed"
)

// HandleNotification verifies and applies the gateway's server-to-server notification.
// A SUCCESS notification upserts the order; anything else is logged and ignored.
func (s *Service) HandleNotification(ctx context.Context, form *ports.CallbackForm) (*ports.NotificationOutcome, error) {
	notification, err := s.openCallback(form)
	if err != nil {
		observability.RecordCallback("notify", "rejected")
		s.logger.Warn("Rejected payment notification",
			zap.String("form_status", form.Status),
			zap.String("form_merchant_id", form.MerchantID),
			zap.Error(err),
		)
		return nil, err
	}

	outcome := &ports.NotificationOutcome{Status: notification.Status, Message: notification.Message}
	if !notification.IsSuccess() {
		observability.RecordCallback("notify", "failed_payment")
		fields := []zap.Field{
			zap.String("status", notification.Status),
			zap.String("message", notification.Message),
		}
		if notification.Result != nil {
			fields = append(fields, zap.String("merchant_order_no", notification.Result.MerchantOrderNo))
		}
		s.logger.Info("Payment notification reported failure", fields...)
		return outcome, nil
	}

	if notification.Result == nil {
		observability.RecordCallback("notify", "error")
		return nil, domain.WrapError(domain.ErrorCodeGatewayInvalidResponse, "successful notification carries no result", nil)
	}
	if id := notification.Result.MerchantID; id != "" && id != s.builder.Codec().MerchantID() {
		observability.RecordCallback("notify", "rejected")
		return nil, domain.NewDomainError(domain.ErrorCodeSignatureMismatch, "notification is for a different merchant").
			WithDetail("merchant_id", id)
	}

	order, err := notification.ToOrder(s.now())
	if err != nil {
		observability.RecordCallback("notify", "error")
		return nil, err
	}

	var created bool
	err = s.withOrderLock(ctx, order.MerchantOrderNo, func(ctx context.Context) error {
		var upsertErr error
		created, upsertErr = s.orders.Upsert(ctx, order)
		return upsertErr
	})
	if err != nil {
		observability.RecordCallback("notify", "error")
		s.logger.Error("Failed to record paid order",
			zap.String("merchant_order_no", order.MerchantOrderNo),
			zap.String("trade_no", order.TradeNo),
			zap.Error(err),
		)
		return nil, err
	}

	outcome.Order = order
	outcome.Created = created
	if created {
		observability.RecordCallback("notify", "applied")
		observability.RecordOrderTransition(string(domain.OrderStatusPaid))
	} else {
		observability.RecordCallback("notify", "duplicate")
	}

	s.logger.Info("Payment notification applied",
		zap.String("merchant_order_no", order.MerchantOrderNo),
		zap.String("trade_no", order.TradeNo),
		zap.Int64("amount", order.Amount),
		zap.String("payment_type", order.PaymentType),
		zap.Bool("created", created),
	)

	if created && s.config.AutoCapture {
		outcome.AutoCaptured, outcome.AutoCaptureErr = s.autoCapture(ctx, order)
	}
	return outcome, nil
}

// autoCapture requests capture for a freshly paid order. Failure leaves the order
// paid and uncaptured for an operator to capture later.
func (s *Service) autoCapture(ctx context.Context, order *domain.Order) (bool, error) {
	if order.TradeNo == "" {
		return false, domain.ErrMissingTradeReference
	}
	_, err := s.closeTrade(ctx, &adapterports.CloseRequest{
		MerchantOrderNo: order.MerchantOrderNo,
		TradeNo:         order.TradeNo,
		Amount:          order.Amount,
		Type:            adapterports.CloseTypeCapture,
	})
	if err != nil {
		s.logger.Warn("Auto-capture failed",
			zap.String("merchant_order_no", order.MerchantOrderNo),
			zap.String("trade_no", order.TradeNo),
			zap.String("error_code", string(domain.GetErrorCode(err))),
			zap.Error(err),
		)
		return false, err
	}
	s.logger.Info("Auto-capture requested",
		zap.String("merchant_order_no", order.MerchantOrderNo),
		zap.String("trade_no", order.TradeNo),
	)
	return true, nil
}

// DecodeReturn turns the browser return into result page parameters
func (s *Service) DecodeReturn(ctx context.Context, form *ports.CallbackForm) *ports.ReturnResult {
	plaintext, err := s.builder.Codec().OpenEnvelope(form.TradeInfo, form.TradeSha)
	if err != nil {
		observability.RecordCallback("return", "rejected")
		s.logger.Warn("Browser return failed verification", zap.Error(err))
		return &ports.ReturnResult{Status: StatusError, Message: MessageCheckCodeFailed}
	}

	notification, err := newebpay.ParseTradeNotification(plaintext)
	if err != nil {
		observability.RecordCallback("return", "error")
		s.logger.Warn("Browser return payload is not valid JSON", zap.Error(err))
		return &ports.ReturnResult{Status: StatusError, Message: MessageJSONParseFailed}
	}

	result := &ports.ReturnResult{Status: notification.Status, Message: notification.Message}
	if r := notification.Result; r != nil {
		result.TradeNo = r.TradeNo
		result.Card4No = r.Card4No
		if r.Amt.Valid {
			result.Amt = strconv.FormatInt(r.Amt.Value, 10)
		}
	}

	if notification.IsSuccess() {
		observability.RecordCallback("return", "applied")
	} else {
		observability.RecordCallback("return", "failed_payment")
	}
	s.logger.Info("Browser returned from checkout",
		zap.String("status", result.Status),
		zap.String("trade_no", result.TradeNo),
	)
	return result
}

// openCallback verifies TradeSha and decodes TradeInfo
func (s *Service) openCallback(form *ports.CallbackForm) (*newebpay.TradeNotification, error) {
	plaintext, err := s.builder.Codec().OpenEnvelope(form.TradeInfo, form.TradeSha)
	if err != nil {
		return nil, err
	}
	return newebpay.ParseTradeNotification(plaintext)
}
