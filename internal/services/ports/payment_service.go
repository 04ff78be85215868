package ports

import (
	"context"

	"github.com/kevin07696/newebpay-service/internal/domain"
	domainports "github.com/kevin07696/newebpay-service/internal/domain/ports"
	"github.com/shopspring/decimal"
)

// CreatePaymentRequest contains parameters for a hosted checkout.
// An empty MerchantOrderNo is replaced by a generated one.
type CreatePaymentRequest struct {
	MerchantOrderNo string
	ItemDesc        string
	Email           string
	Amount          decimal.Decimal // truncated to whole units
}

// CheckoutEnvelope is what the browser posts to the gateway's hosted page
type CheckoutEnvelope struct {
	MerchantOrderNo string `json:"MerchantOrderNo"`
	MerchantID      string `json:"MerchantID"`
	TradeInfo       string `json:"TradeInfo"`
	TradeSha        string `json:"TradeSha"`
	Version         string `json:"Version"`
	PaymentURL      string `json:"PaymentUrl"`
}

// CallbackForm is the form the gateway posts to the notify and return URLs
type CallbackForm struct {
	Status     string
	MerchantID string
	TradeInfo  string
	TradeSha   string
}

// NotificationOutcome describes what a verified notification did
type NotificationOutcome struct {
	Status  string // gateway status, verbatim
	Message string // gateway message, verbatim
	Order   *domain.Order
	Created bool // false for a repeated notification

	// AutoCaptureErr is set when auto-capture was attempted and failed
	AutoCaptured   bool
	AutoCaptureErr error
}

// ReturnResult is carried to the result page as query parameters
type ReturnResult struct {
	Status  string
	Message string
	TradeNo string
	Amt     string
	Card4No string
}

// TradeRequest identifies a trade for capture, refund, cancel and query.
// Amount may be zero on query, in which case the stored order amount is used.
type TradeRequest struct {
	MerchantOrderNo string
	TradeNo         string
	Amount          decimal.Decimal
	// Manual refunds skip the local order checks and leave the store untouched
	Manual bool
}

// OperationResult is the outcome of a capture, refund or cancel
type OperationResult struct {
	Operation       string `json:"operation"`
	Status          string `json:"status"`
	Message         string `json:"message"`
	MerchantOrderNo string `json:"merchantOrderNo"`
	TradeNo         string `json:"tradeNo"`
	Amount          int64  `json:"amount"`
	// Reconciled is true when the close call timed out and a follow-up query confirmed it
	Reconciled bool `json:"reconciled,omitempty"`
}

// QueryResult is the live trade state with operator-facing texts and predicates
type QueryResult struct {
	State           *domain.TradeState `json:"state"`
	CloseStatusText string             `json:"closeStatusText"`
	BackStatusText  string             `json:"backStatusText"`
	CanRefund       bool               `json:"canRefund"`
	CanCapture      bool               `json:"canCapture"`
}

// SweepResult summarizes one reconciliation sweep
type SweepResult struct {
	Checked        int `json:"checked"`
	MarkedRefunded int `json:"markedRefunded"`
	Failed         int `json:"failed"`
}

// PaymentService is the application surface used by the HTTP handlers, the CLI and the scheduler
type PaymentService interface {
	CreatePayment(ctx context.Context, req *CreatePaymentRequest) (*CheckoutEnvelope, error)

	// HandleNotification verifies, decrypts and applies a server-to-server notification.
	// Errors are for logging; the caller always acknowledges the gateway.
	HandleNotification(ctx context.Context, form *CallbackForm) (*NotificationOutcome, error)

	// DecodeReturn turns the browser return post into result page parameters. It never fails;
	// verification and parse failures become Status=ERROR results.
	DecodeReturn(ctx context.Context, form *CallbackForm) *ReturnResult

	Capture(ctx context.Context, req *TradeRequest) (*OperationResult, error)
	Refund(ctx context.Context, req *TradeRequest) (*OperationResult, error)
	Cancel(ctx context.Context, req *TradeRequest) (*OperationResult, error)
	Query(ctx context.Context, req *TradeRequest) (*QueryResult, error)

	ListOrders(ctx context.Context, filter domainports.OrderFilter) ([]*domain.Order, error)
	GetOrder(ctx context.Context, merchantOrderNo string) (*domain.Order, error)

	// ReconcileSweep queries every paid order and records refunds the gateway reports as started
	ReconcileSweep(ctx context.Context) (*SweepResult, error)
}
