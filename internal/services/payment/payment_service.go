package payment

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kevin07696/newebpay-service/internal/adapters/newebpay"
	adapterports "github.com/kevin07696/newebpay-service/internal/adapters/ports"
	"github.com/kevin07696/newebpay-service/internal/domain"
	domainports "github.com/kevin07696/newebpay-service/internal/domain/ports"
	"github.com/kevin07696/newebpay-service/internal/services/ports"
	"github.com/kevin07696/newebpay-service/pkg/resilience"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Config holds the service's URLs and behavior switches
type Config struct {
	NotifyURL string
	ReturnURL string

	// AutoCapture requests capture right after the first SUCCESS notification of an order
	AutoCapture bool

	// SweepConcurrency bounds parallel gateway queries during a reconciliation sweep
	SweepConcurrency int
}

// Service implements ports.PaymentService
type Service struct {
	builder    *newebpay.Builder
	gateway    adapterports.PaymentGatewayClient
	orders     domainports.OrderRepository
	locker     domainports.KeyedLocker
	timeouts   *resilience.TimeoutConfig
	config     Config
	logger     *zap.Logger
	now        func() time.Time
	newOrderNo func() string

	sweepBackoff resilience.BackoffStrategy
}

// Option customizes a Service
type Option func(*Service)

// WithClock overrides the service clock
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithOrderNumberGenerator overrides how missing merchant order numbers are generated
func WithOrderNumberGenerator(gen func() string) Option {
	return func(s *Service) { s.newOrderNo = gen }
}

// NewService creates a new payment service
func NewService(
	builder *newebpay.Builder,
	gateway adapterports.PaymentGatewayClient,
	orders domainports.OrderRepository,
	locker domainports.KeyedLocker,
	timeouts *resilience.TimeoutConfig,
	config Config,
	logger *zap.Logger,
	opts ...Option,
) *Service {
	if config.SweepConcurrency <= 0 {
		config.SweepConcurrency = 4
	}
	s := &Service{
		builder:    builder,
		gateway:    gateway,
		orders:     orders,
		locker:     locker,
		timeouts:   timeouts,
		config:     config,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
		newOrderNo: generateOrderNo,

		sweepBackoff: resilience.ReconcileBackoff(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ ports.PaymentService = (*Service)(nil)

// generateOrderNo returns "ORD" plus 20 upper-case hex characters of a random UUID
func generateOrderNo() string {
	id := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return "ORD" + id[:20]
}

// CreatePayment builds the signed checkout envelope. Nothing is stored:
// an order exists only once the gateway confirms payment.
func (s *Service) CreatePayment(ctx context.Context, req *ports.CreatePaymentRequest) (*ports.CheckoutEnvelope, error) {
	orderNo := strings.TrimSpace(req.MerchantOrderNo)
	if orderNo == "" {
		orderNo = s.newOrderNo()
	}

	amount, err := wholeAmount(req.Amount)
	if err != nil {
		return nil, err
	}

	envelope, err := s.builder.BuildCreatePayment(&newebpay.CreatePaymentRequest{
		MerchantOrderNo: orderNo,
		ItemDesc:        strings.TrimSpace(req.ItemDesc),
		Email:           strings.TrimSpace(req.Email),
		NotifyURL:       s.config.NotifyURL,
		ReturnURL:       s.config.ReturnURL,
		Amount:          amount,
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Checkout envelope created",
		zap.String("merchant_order_no", orderNo),
		zap.Int64("amount", amount),
		zap.Int("trade_info_length", len(envelope.TradeInfo)),
	)

	return &ports.CheckoutEnvelope{
		MerchantOrderNo: orderNo,
		MerchantID:      envelope.MerchantID,
		TradeInfo:       envelope.TradeInfo,
		TradeSha:        envelope.TradeSha,
		Version:         envelope.Version,
		PaymentURL:      envelope.PaymentURL,
	}, nil
}

// wholeAmount truncates to whole currency units and requires a positive result
func wholeAmount(amount decimal.Decimal) (int64, error) {
	v := newebpay.TruncateAmount(amount)
	if v <= 0 {
		return 0, domain.NewDomainError(domain.ErrorCodeValidationAmountInvalid, "amount must be a positive whole number").
			WithDetail("amount", amount.String())
	}
	return v, nil
}

// withOrderLock runs fn while holding the per-order lock
func (s *Service) withOrderLock(ctx context.Context, merchantOrderNo string, fn func(ctx context.Context) error) error {
	unlock, err := s.locker.Lock(ctx, merchantOrderNo)
	if err != nil {
		return domain.WrapError(domain.ErrorCodeInternalError, "failed to acquire order lock", err).
			WithDetail("merchant_order_no", merchantOrderNo)
	}
	defer unlock()
	return fn(ctx)
}

// queryTrade asks the gateway for the live trade state under the gateway call deadline
func (s *Service) queryTrade(ctx context.Context, merchantOrderNo string, amount int64) (*domain.TradeState, error) {
	gctx, cancel := s.timeouts.GatewayContext(ctx)
	defer cancel()
	return s.gateway.Query(gctx, &adapterports.QueryRequest{MerchantOrderNo: merchantOrderNo, Amount: amount})
}

// closeTrade sends one capture or refund. It is never retried.
func (s *Service) closeTrade(ctx context.Context, req *adapterports.CloseRequest) (*adapterports.CloseResult, error) {
	gctx, cancel := s.timeouts.GatewayContext(ctx)
	defer cancel()
	return s.gateway.Close(gctx, req)
}
