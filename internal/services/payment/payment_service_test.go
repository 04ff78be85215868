package payment

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kevin07696/newebpay-service/internal/adapters/filestore"
	"github.com/kevin07696/newebpay-service/internal/adapters/lock"
	"github.com/kevin07696/newebpay-service/internal/adapters/newebpay"
	adapterports "github.com/kevin07696/newebpay-service/internal/adapters/ports"
	"github.com/kevin07696/newebpay-service/internal/domain"
	domainports "github.com/kevin07696/newebpay-service/internal/domain/ports"
	"github.com/kevin07696/newebpay-service/internal/services/ports"
	"github.com/kevin07696/newebpay-service/pkg/resilience"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// MockGateway is a mock implementation of PaymentGatewayClient
type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) Name() string { return "mock" }

func (m *MockGateway) Close(ctx context.Context, req *adapterports.CloseRequest) (*adapterports.CloseResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*adapterports.CloseResult), args.Error(1)
}

func (m *MockGateway) Cancel(ctx context.Context, req *adapterports.CancelRequest) (*adapterports.CloseResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*adapterports.CloseResult), args.Error(1)
}

func (m *MockGateway) Query(ctx context.Context, req *adapterports.QueryRequest) (*domain.TradeState, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.TradeState), args.Error(1)
}

var testCredential = domain.Credential{
	MerchantID: "M001",
	HashKey:    "12345678901234567890123456789012",
	HashIV:     "1234567890123456",
}

var fixedNow = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

type fixture struct {
	svc     *Service
	gateway *MockGateway
	orders  domainports.OrderRepository
	codec   *newebpay.Codec
}

func newFixture(t *testing.T, cfg Config, opts ...Option) *fixture {
	t.Helper()

	codec, err := newebpay.NewCodec(testCredential, zap.NewNop())
	require.NoError(t, err)
	builder := newebpay.NewBuilder(newebpay.DefaultConfig("sandbox"), codec, func() time.Time { return fixedNow })

	orders, err := filestore.NewOrderStore(filepath.Join(t.TempDir(), "orders.json"), zap.NewNop())
	require.NoError(t, err)

	if cfg.NotifyURL == "" {
		cfg.NotifyURL = "https://shop.example.com/api/payment/notify"
		cfg.ReturnURL = "https://shop.example.com/api/payment/return"
	}

	gateway := new(MockGateway)
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	svc := NewService(builder, gateway, orders, lock.NewLocal(), resilience.TestTimeoutConfig(), cfg, zap.NewNop(), opts...)
	return &fixture{svc: svc, gateway: gateway, orders: orders, codec: codec}
}

// callback seals a gateway payload the way the gateway posts it
func (f *fixture) callback(t *testing.T, payload any) *ports.CallbackForm {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	tradeInfo := f.codec.EncryptPayload(string(raw))
	return &ports.CallbackForm{
		Status:     "SUCCESS",
		MerchantID: testCredential.MerchantID,
		TradeInfo:  tradeInfo,
		TradeSha:   f.codec.SignPayload(tradeInfo),
	}
}

func successPayload(orderNo, tradeNo string, amount int64, payTime string) map[string]any {
	return map[string]any{
		"Status":  "SUCCESS",
		"Message": "授權成功",
		"Result": map[string]any{
			"MerchantID":      testCredential.MerchantID,
			"Amt":             amount,
			"TradeNo":         tradeNo,
			"MerchantOrderNo": orderNo,
			"PaymentType":     "CREDIT",
			"PayTime":         payTime,
			"Card4No":         "2222",
		},
	}
}

func (f *fixture) seedPaid(t *testing.T, orderNo, tradeNo string, amount int64) {
	t.Helper()
	_, err := f.orders.Upsert(context.Background(), &domain.Order{
		MerchantOrderNo: orderNo,
		TradeNo:         tradeNo,
		Amount:          amount,
		ItemDesc:        "Order " + orderNo,
		PayTime:         fixedNow,
		Status:          domain.OrderStatusPaid,
	})
	require.NoError(t, err)
}

func tradeState(orderNo string, amount int64, closeStatus domain.CloseStatus, backStatus domain.BackStatus) *domain.TradeState {
	return &domain.TradeState{
		MerchantOrderNo: orderNo,
		TradeNo:         "T" + orderNo,
		TradeStatus:     "1",
		Amount:          amount,
		CloseStatus:     closeStatus,
		BackStatus:      backStatus,
	}
}

func queryFor(orderNo string) any {
	return mock.MatchedBy(func(r *adapterports.QueryRequest) bool { return r.MerchantOrderNo == orderNo })
}

func closeOf(orderNo string, typ adapterports.CloseType) any {
	return mock.MatchedBy(func(r *adapterports.CloseRequest) bool {
		return r.MerchantOrderNo == orderNo && r.Type == typ
	})
}

func unknownOutcome() error {
	return domain.WrapError(domain.ErrorCodeGatewayUnknownOutcome, "gateway did not answer in time", context.DeadlineExceeded)
}

func TestCreatePayment(t *testing.T) {
	t.Run("truncates amount and seals envelope", func(t *testing.T) {
		f := newFixture(t, Config{})

		env, err := f.svc.CreatePayment(context.Background(), &ports.CreatePaymentRequest{
			MerchantOrderNo: "ORD1",
			ItemDesc:        "Test item",
			Email:           "buyer@example.com",
			Amount:          decimal.RequireFromString("1200.99"),
		})
		require.NoError(t, err)

		assert.Equal(t, "ORD1", env.MerchantOrderNo)
		assert.Equal(t, "M001", env.MerchantID)
		assert.Equal(t, newebpay.MPGVersion, env.Version)
		assert.Equal(t, f.codec.SignPayload(env.TradeInfo), env.TradeSha)

		plaintext, err := f.codec.DecryptPayload(env.TradeInfo)
		require.NoError(t, err)
		assert.Contains(t, plaintext, "MerchantOrderNo=ORD1")
		assert.Contains(t, plaintext, "Amt=1200&")
		assert.Contains(t, plaintext, "NotifyURL=https%3A%2F%2Fshop.example.com%2Fapi%2Fpayment%2Fnotify")
	})

	t.Run("generates order number when empty", func(t *testing.T) {
		f := newFixture(t, Config{}, WithOrderNumberGenerator(func() string { return "ORDGENERATED" }))

		env, err := f.svc.CreatePayment(context.Background(), &ports.CreatePaymentRequest{
			ItemDesc: "Test item",
			Amount:   decimal.NewFromInt(50),
		})
		require.NoError(t, err)
		assert.Equal(t, "ORDGENERATED", env.MerchantOrderNo)
	})

	t.Run("rejects amount below one unit", func(t *testing.T) {
		f := newFixture(t, Config{})

		_, err := f.svc.CreatePayment(context.Background(), &ports.CreatePaymentRequest{
			MerchantOrderNo: "ORD1",
			ItemDesc:        "Test item",
			Amount:          decimal.RequireFromString("0.99"),
		})
		assert.True(t, domain.IsDomainError(err, domain.ErrorCodeValidationAmountInvalid))
	})

	t.Run("does not store anything", func(t *testing.T) {
		f := newFixture(t, Config{})

		_, err := f.svc.CreatePayment(context.Background(), &ports.CreatePaymentRequest{
			MerchantOrderNo: "ORD1",
			ItemDesc:        "Test item",
			Amount:          decimal.NewFromInt(10),
		})
		require.NoError(t, err)

		_, err = f.orders.Get(context.Background(), "ORD1")
		assert.ErrorIs(t, err, domain.ErrOrderNotFound)
	})
}

func TestGenerateOrderNo(t *testing.T) {
	no := generateOrderNo()
	assert.Len(t, no, 23)
	assert.True(t, strings.HasPrefix(no, "ORD"))
	assert.NoError(t, domain.ValidateMerchantOrderNo(no))
	assert.NotEqual(t, no, generateOrderNo())
}

func TestHandleNotification(t *testing.T) {
	ctx := context.Background()

	t.Run("success creates paid order", func(t *testing.T) {
		f := newFixture(t, Config{})

		outcome, err := f.svc.HandleNotification(ctx, f.callback(t, successPayload("ORD1", "T1", 1200, "2026-03-01 18:00:00")))
		require.NoError(t, err)
		assert.True(t, outcome.Created)
		assert.Equal(t, "SUCCESS", outcome.Status)

		order, err := f.orders.Get(ctx, "ORD1")
		require.NoError(t, err)
		assert.Equal(t, domain.OrderStatusPaid, order.Status)
		assert.Equal(t, "T1", order.TradeNo)
		assert.Equal(t, int64(1200), order.Amount)
		assert.Equal(t, "Order ORD1", order.ItemDesc)
		assert.Equal(t, "2222", order.Card4No)
	})

	t.Run("repeat notification is idempotent and keeps first pay time", func(t *testing.T) {
		f := newFixture(t, Config{})

		_, err := f.svc.HandleNotification(ctx, f.callback(t, successPayload("ORD1", "T1", 1200, "2026-03-01 18:00:00")))
		require.NoError(t, err)
		first, err := f.orders.Get(ctx, "ORD1")
		require.NoError(t, err)

		outcome, err := f.svc.HandleNotification(ctx, f.callback(t, successPayload("ORD1", "T1", 1200, "2026-03-01 18:05:00")))
		require.NoError(t, err)
		assert.False(t, outcome.Created)

		second, err := f.orders.Get(ctx, "ORD1")
		require.NoError(t, err)
		assert.True(t, first.PayTime.Equal(second.PayTime))

		all, err := f.orders.List(ctx, domainports.OrderFilter{})
		require.NoError(t, err)
		assert.Len(t, all, 1)
	})

	t.Run("tampered signature is rejected", func(t *testing.T) {
		f := newFixture(t, Config{})
		form := f.callback(t, successPayload("ORD1", "T1", 1200, ""))
		form.TradeSha = strings.Repeat("A", 64)

		_, err := f.svc.HandleNotification(ctx, form)
		assert.True(t, domain.IsDomainError(err, domain.ErrorCodeSignatureMismatch))

		_, err = f.orders.Get(ctx, "ORD1")
		assert.ErrorIs(t, err, domain.ErrOrderNotFound)
	})

	t.Run("failed payment creates nothing", func(t *testing.T) {
		f := newFixture(t, Config{})
		payload := map[string]any{"Status": "MPG03009", "Message": "交易失敗", "Result": []any{}}

		outcome, err := f.svc.HandleNotification(ctx, f.callback(t, payload))
		require.NoError(t, err)
		assert.Equal(t, "MPG03009", outcome.Status)
		assert.Nil(t, outcome.Order)

		all, err := f.orders.List(ctx, domainports.OrderFilter{})
		require.NoError(t, err)
		assert.Empty(t, all)
	})

	t.Run("other merchant is rejected", func(t *testing.T) {
		f := newFixture(t, Config{})
		payload := successPayload("ORD1", "T1", 1200, "")
		payload["Result"].(map[string]any)["MerchantID"] = "M999"

		_, err := f.svc.HandleNotification(ctx, f.callback(t, payload))
		assert.Error(t, err)
		_, err = f.orders.Get(ctx, "ORD1")
		assert.ErrorIs(t, err, domain.ErrOrderNotFound)
	})
}

func TestHandleNotification_AutoCapture(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{AutoCapture: true})

	f.gateway.On("Close", mock.Anything, closeOf("ORD1", adapterports.CloseTypeCapture)).
		Return(&adapterports.CloseResult{Status: "SUCCESS", TradeNo: "T1"}, nil).Once()

	outcome, err := f.svc.HandleNotification(ctx, f.callback(t, successPayload("ORD1", "T1", 1200, "")))
	require.NoError(t, err)
	assert.True(t, outcome.AutoCaptured)
	assert.NoError(t, outcome.AutoCaptureErr)

	// duplicate notifications do not capture again
	outcome, err = f.svc.HandleNotification(ctx, f.callback(t, successPayload("ORD1", "T1", 1200, "")))
	require.NoError(t, err)
	assert.False(t, outcome.AutoCaptured)

	f.gateway.AssertNumberOfCalls(t, "Close", 1)
}

func TestDecodeReturn(t *testing.T) {
	ctx := context.Background()

	t.Run("success carries trade fields", func(t *testing.T) {
		f := newFixture(t, Config{})
		res := f.svc.DecodeReturn(ctx, f.callback(t, successPayload("ORD1", "T1", 1200, "")))
		assert.Equal(t, &ports.ReturnResult{
			Status:  "SUCCESS",
			Message: "授權成功",
			TradeNo: "T1",
			Amt:     "1200",
			Card4No: "2222",
		}, res)
	})

	t.Run("bad signature", func(t *testing.T) {
		f := newFixture(t, Config{})
		form := f.callback(t, successPayload("ORD1", "T1", 1200, ""))
		form.TradeSha = "BAD"
		res := f.svc.DecodeReturn(ctx, form)
		assert.Equal(t, StatusError, res.Status)
		assert.Equal(t, MessageCheckCodeFailed, res.Message)
	})

	t.Run("payload is not json", func(t *testing.T) {
		f := newFixture(t, Config{})
		tradeInfo := f.codec.EncryptPayload("Status=SUCCESS&Amt=1200")
		res := f.svc.DecodeReturn(ctx, &ports.CallbackForm{TradeInfo: tradeInfo, TradeSha: f.codec.SignPayload(tradeInfo)})
		assert.Equal(t, StatusError, res.Status)
		assert.Equal(t, MessageJSONParseFailed, res.Message)
	})
}

func TestRefund_Gating(t *testing.T) {
	tests := []struct {
		name        string
		closeStatus domain.CloseStatus
		backStatus  domain.BackStatus
		wantErr     domain.ErrorCode
	}{
		{name: "captured and not refunded", closeStatus: 3, backStatus: 0},
		{name: "refund already complete", closeStatus: 3, backStatus: 3, wantErr: domain.ErrorCodeOrderNotRefundable},
		{name: "refund queued", closeStatus: 3, backStatus: 1, wantErr: domain.ErrorCodeOrderNotRefundable},
		{name: "capture still queued", closeStatus: 1, backStatus: 0, wantErr: domain.ErrorCodeOrderNotRefundable},
		{name: "never captured", closeStatus: 0, backStatus: 0, wantErr: domain.ErrorCodeOrderNotRefundable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			f := newFixture(t, Config{})
			f.seedPaid(t, "ORD1", "T1", 1200)

			f.gateway.On("Query", mock.Anything, queryFor("ORD1")).
				Return(tradeState("ORD1", 1200, tt.closeStatus, tt.backStatus), nil)
			f.gateway.On("Close", mock.Anything, closeOf("ORD1", adapterports.CloseTypeRefund)).
				Return(&adapterports.CloseResult{Status: "SUCCESS", Message: "退款成功", TradeNo: "T1", Amount: 1200}, nil).Maybe()

			res, err := f.svc.Refund(ctx, &ports.TradeRequest{MerchantOrderNo: "ORD1", Amount: decimal.NewFromInt(1200)})
			order, gerr := f.orders.Get(ctx, "ORD1")
			require.NoError(t, gerr)

			if tt.wantErr != "" {
				assert.True(t, domain.IsDomainError(err, tt.wantErr), "got %v", err)
				f.gateway.AssertNotCalled(t, "Close", mock.Anything, mock.Anything)
				assert.Equal(t, domain.OrderStatusPaid, order.Status)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, "SUCCESS", res.Status)
			assert.False(t, res.Reconciled)
			f.gateway.AssertNumberOfCalls(t, "Close", 1)
			assert.Equal(t, domain.OrderStatusRefunded, order.Status)
			require.NotNil(t, order.RefundedAt)
		})
	}
}

func TestRefund_LocalChecks(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown order", func(t *testing.T) {
		f := newFixture(t, Config{})
		_, err := f.svc.Refund(ctx, &ports.TradeRequest{MerchantOrderNo: "ORD404", Amount: decimal.NewFromInt(10)})
		assert.ErrorIs(t, err, domain.ErrOrderNotFound)
		f.gateway.AssertNotCalled(t, "Query", mock.Anything, mock.Anything)
	})

	t.Run("already refunded", func(t *testing.T) {
		f := newFixture(t, Config{})
		f.seedPaid(t, "ORD1", "T1", 1200)
		require.NoError(t, f.orders.MarkRefunded(ctx, "ORD1", fixedNow))

		_, err := f.svc.Refund(ctx, &ports.TradeRequest{MerchantOrderNo: "ORD1", Amount: decimal.NewFromInt(1200)})
		assert.ErrorIs(t, err, domain.ErrOrderAlreadyRefunded)
		f.gateway.AssertNotCalled(t, "Query", mock.Anything, mock.Anything)
	})

	t.Run("amount mismatch", func(t *testing.T) {
		f := newFixture(t, Config{})
		f.seedPaid(t, "ORD1", "T1", 1200)

		_, err := f.svc.Refund(ctx, &ports.TradeRequest{MerchantOrderNo: "ORD1", Amount: decimal.NewFromInt(600)})
		assert.True(t, domain.IsDomainError(err, domain.ErrorCodeOrderAmountMismatch))
		f.gateway.AssertNotCalled(t, "Query", mock.Anything, mock.Anything)
	})

	t.Run("manual refund requires trade number", func(t *testing.T) {
		f := newFixture(t, Config{})
		_, err := f.svc.Refund(ctx, &ports.TradeRequest{MerchantOrderNo: "ORD1", Amount: decimal.NewFromInt(1200), Manual: true})
		assert.True(t, domain.IsDomainError(err, domain.ErrorCodeMissingTradeReference))
		f.gateway.AssertNotCalled(t, "Query", mock.Anything, mock.Anything)
	})
}

func TestRefund_ManualLeavesStoreUntouched(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{})

	f.gateway.On("Query", mock.Anything, queryFor("EXT9")).Return(tradeState("EXT9", 300, 3, 0), nil)
	f.gateway.On("Close", mock.Anything, closeOf("EXT9", adapterports.CloseTypeRefund)).
		Return(&adapterports.CloseResult{Status: "SUCCESS", TradeNo: "TEXT9"}, nil).Once()

	res, err := f.svc.Refund(ctx, &ports.TradeRequest{
		MerchantOrderNo: "EXT9",
		TradeNo:         "TEXT9",
		Amount:          decimal.NewFromInt(300),
		Manual:          true,
	})
	require.NoError(t, err)
	assert.Equal(t, "TEXT9", res.TradeNo)

	_, err = f.orders.Get(ctx, "EXT9")
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)
}

func TestRefund_UnknownOutcome(t *testing.T) {
	ctx := context.Background()

	t.Run("follow-up query confirms refund", func(t *testing.T) {
		f := newFixture(t, Config{})
		f.seedPaid(t, "ORD1", "T1", 1200)

		f.gateway.On("Query", mock.Anything, queryFor("ORD1")).Return(tradeState("ORD1", 1200, 3, 0), nil).Once()
		f.gateway.On("Close", mock.Anything, mock.Anything).Return(nil, unknownOutcome()).Once()
		f.gateway.On("Query", mock.Anything, queryFor("ORD1")).Return(tradeState("ORD1", 1200, 3, 1), nil).Once()

		res, err := f.svc.Refund(ctx, &ports.TradeRequest{MerchantOrderNo: "ORD1", Amount: decimal.NewFromInt(1200)})
		require.NoError(t, err)
		assert.True(t, res.Reconciled)

		order, err := f.orders.Get(ctx, "ORD1")
		require.NoError(t, err)
		assert.True(t, order.IsRefunded())
		f.gateway.AssertNumberOfCalls(t, "Close", 1)
	})

	t.Run("follow-up query shows nothing happened", func(t *testing.T) {
		f := newFixture(t, Config{})
		f.seedPaid(t, "ORD1", "T1", 1200)

		f.gateway.On("Query", mock.Anything, queryFor("ORD1")).Return(tradeState("ORD1", 1200, 3, 0), nil).Twice()
		f.gateway.On("Close", mock.Anything, mock.Anything).Return(nil, unknownOutcome()).Once()

		_, err := f.svc.Refund(ctx, &ports.TradeRequest{MerchantOrderNo: "ORD1", Amount: decimal.NewFromInt(1200)})
		assert.True(t, domain.IsUnknownOutcome(err))

		order, gerr := f.orders.Get(ctx, "ORD1")
		require.NoError(t, gerr)
		assert.Equal(t, domain.OrderStatusPaid, order.Status)
		f.gateway.AssertNumberOfCalls(t, "Close", 1)
		f.gateway.AssertNumberOfCalls(t, "Query", 2)
	})
}

func TestRefund_RejectedPreservesGatewayCode(t *testing.T) {
	f := newFixture(t, Config{})
	f.seedPaid(t, "ORD1", "T1", 1200)

	f.gateway.On("Query", mock.Anything, mock.Anything).Return(tradeState("ORD1", 1200, 3, 0), nil)
	f.gateway.On("Close", mock.Anything, mock.Anything).Return(nil, domain.NewGatewayRejected("TRA10035", "退款金額錯誤"))

	_, err := f.svc.Refund(context.Background(), &ports.TradeRequest{MerchantOrderNo: "ORD1", Amount: decimal.NewFromInt(1200)})
	rej, ok := domain.AsGatewayRejection(err)
	require.True(t, ok)
	assert.Equal(t, "TRA10035", rej.Status)
}

func TestCapture(t *testing.T) {
	ctx := context.Background()
	req := &ports.TradeRequest{MerchantOrderNo: "ORD1", TradeNo: "T1", Amount: decimal.NewFromInt(1200)}

	t.Run("uncaptured trade", func(t *testing.T) {
		f := newFixture(t, Config{})
		f.gateway.On("Query", mock.Anything, queryFor("ORD1")).Return(tradeState("ORD1", 1200, 0, 0), nil)
		f.gateway.On("Close", mock.Anything, closeOf("ORD1", adapterports.CloseTypeCapture)).
			Return(&adapterports.CloseResult{Status: "SUCCESS", Message: "請款成功", TradeNo: "T1"}, nil).Once()

		res, err := f.svc.Capture(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, OperationCapture, res.Operation)
		assert.Equal(t, "請款成功", res.Message)
	})

	t.Run("already in capture pipeline", func(t *testing.T) {
		f := newFixture(t, Config{})
		f.gateway.On("Query", mock.Anything, queryFor("ORD1")).Return(tradeState("ORD1", 1200, 1, 0), nil)

		_, err := f.svc.Capture(ctx, req)
		assert.True(t, domain.IsDomainError(err, domain.ErrorCodeOrderNotCapturable))
		f.gateway.AssertNotCalled(t, "Close", mock.Anything, mock.Anything)
	})

	t.Run("unknown outcome confirmed", func(t *testing.T) {
		f := newFixture(t, Config{})
		f.gateway.On("Query", mock.Anything, queryFor("ORD1")).Return(tradeState("ORD1", 1200, 0, 0), nil).Once()
		f.gateway.On("Close", mock.Anything, mock.Anything).Return(nil, unknownOutcome()).Once()
		f.gateway.On("Query", mock.Anything, queryFor("ORD1")).Return(tradeState("ORD1", 1200, 1, 0), nil).Once()

		res, err := f.svc.Capture(ctx, req)
		require.NoError(t, err)
		assert.True(t, res.Reconciled)
	})

	t.Run("missing trade number", func(t *testing.T) {
		f := newFixture(t, Config{})
		_, err := f.svc.Capture(ctx, &ports.TradeRequest{MerchantOrderNo: "ORD1", Amount: decimal.NewFromInt(1200)})
		assert.ErrorIs(t, err, domain.ErrMissingTradeReference)
		f.gateway.AssertNotCalled(t, "Query", mock.Anything, mock.Anything)
	})
}

func TestCancel(t *testing.T) {
	f := newFixture(t, Config{})
	f.gateway.On("Cancel", mock.Anything, mock.MatchedBy(func(r *adapterports.CancelRequest) bool {
		return r.TradeNo == "T1" && r.Amount == 1200
	})).Return(&adapterports.CloseResult{Status: "SUCCESS", Message: "取消授權成功"}, nil).Once()

	res, err := f.svc.Cancel(context.Background(), &ports.TradeRequest{
		MerchantOrderNo: "ORD1",
		TradeNo:         "T1",
		Amount:          decimal.NewFromInt(1200),
	})
	require.NoError(t, err)
	assert.Equal(t, OperationCancel, res.Operation)
	assert.Equal(t, "T1", res.TradeNo)
	f.gateway.AssertNotCalled(t, "Query", mock.Anything, mock.Anything)
}

func TestQuery(t *testing.T) {
	ctx := context.Background()

	t.Run("falls back to stored amount", func(t *testing.T) {
		f := newFixture(t, Config{})
		f.seedPaid(t, "ORD1", "T1", 1200)
		f.gateway.On("Query", mock.Anything, mock.MatchedBy(func(r *adapterports.QueryRequest) bool {
			return r.Amount == 1200
		})).Return(tradeState("ORD1", 1200, 3, 0), nil)

		res, err := f.svc.Query(ctx, &ports.TradeRequest{MerchantOrderNo: "ORD1"})
		require.NoError(t, err)
		assert.True(t, res.CanRefund)
		assert.False(t, res.CanCapture)
		assert.Equal(t, "capture complete", res.CloseStatusText)
		assert.Equal(t, "not refunded", res.BackStatusText)
	})

	t.Run("unknown order without amount", func(t *testing.T) {
		f := newFixture(t, Config{})
		_, err := f.svc.Query(ctx, &ports.TradeRequest{MerchantOrderNo: "ORD404"})
		assert.ErrorIs(t, err, domain.ErrOrderNotFound)
	})
}

func TestReconcileSweep(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{SweepConcurrency: 2}, WithSweepBackoff(&resilience.FixedBackoff{}))
	f.seedPaid(t, "ORDA", "TA", 100)
	f.seedPaid(t, "ORDB", "TB", 200)
	f.seedPaid(t, "ORDC", "TC", 300)

	f.gateway.On("Query", mock.Anything, queryFor("ORDA")).Return(tradeState("ORDA", 100, 3, 2), nil)
	f.gateway.On("Query", mock.Anything, queryFor("ORDB")).Return(tradeState("ORDB", 200, 3, 0), nil)
	f.gateway.On("Query", mock.Anything, queryFor("ORDC")).Return(nil, domain.ErrGatewayUnavailable)

	res, err := f.svc.ReconcileSweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, &ports.SweepResult{Checked: 3, MarkedRefunded: 1, Failed: 1}, res)

	a, err := f.orders.Get(ctx, "ORDA")
	require.NoError(t, err)
	assert.True(t, a.IsRefunded())

	b, err := f.orders.Get(ctx, "ORDB")
	require.NoError(t, err)
	assert.False(t, b.IsRefunded())

	f.gateway.AssertNumberOfCalls(t, "Query", 1+1+sweepAttempts)
}

// TestEndToEnd follows one order from checkout through notification to refund
func TestEndToEnd(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{})

	env, err := f.svc.CreatePayment(ctx, &ports.CreatePaymentRequest{
		MerchantOrderNo: "ORD1",
		ItemDesc:        "Order ORD1",
		Amount:          decimal.NewFromInt(1200),
	})
	require.NoError(t, err)
	assert.Equal(t, "M001", env.MerchantID)

	_, err = f.svc.HandleNotification(ctx, f.callback(t, successPayload("ORD1", "T240301", 1200, "2026-03-01 18:00:00")))
	require.NoError(t, err)

	refundable, err := f.svc.ListOrders(ctx, domainports.OrderFilter{RefundableOnly: true})
	require.NoError(t, err)
	require.Len(t, refundable, 1)
	assert.Equal(t, "ORD1", refundable[0].MerchantOrderNo)

	f.gateway.On("Query", mock.Anything, queryFor("ORD1")).Return(tradeState("ORD1", 1200, 3, 0), nil).Once()
	f.gateway.On("Close", mock.Anything, mock.MatchedBy(func(r *adapterports.CloseRequest) bool {
		return r.TradeNo == "T240301" && r.Amount == 1200 && r.Type == adapterports.CloseTypeRefund
	})).Return(&adapterports.CloseResult{Status: "SUCCESS", TradeNo: "T240301", Amount: 1200}, nil).Once()

	res, err := f.svc.Refund(ctx, &ports.TradeRequest{MerchantOrderNo: "ORD1", Amount: decimal.NewFromInt(1200)})
	require.NoError(t, err)
	assert.Equal(t, "T240301", res.TradeNo)

	refundable, err = f.svc.ListOrders(ctx, domainports.OrderFilter{RefundableOnly: true})
	require.NoError(t, err)
	assert.Empty(t, refundable)

	order, err := f.svc.GetOrder(ctx, "ORD1")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusRefunded, order.Status)

	_, err = f.svc.Refund(ctx, &ports.TradeRequest{MerchantOrderNo: "ORD1", Amount: decimal.NewFromInt(1200)})
	assert.ErrorIs(t, err, domain.ErrOrderAlreadyRefunded)
	f.gateway.AssertExpectations(t)
}
