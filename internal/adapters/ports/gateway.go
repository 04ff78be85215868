package ports

import (
	"context"

	"github.com/kevin07696/newebpay-service/internal/domain"
)

// CloseType selects the operation performed by the credit card Close API
type CloseType int

const (
	CloseTypeCapture CloseType = 1 // request payment on an authorized trade
	CloseTypeRefund  CloseType = 2 // return funds on a captured trade
)

func (t CloseType) String() string {
	switch t {
	case CloseTypeCapture:
		return "capture"
	case CloseTypeRefund:
		return "refund"
	default:
		return "unknown"
	}
}

// CloseRequest contains the parameters for a capture or refund
type CloseRequest struct {
	MerchantOrderNo string
	TradeNo         string // gateway trade number, required
	Amount          int64
	Type            CloseType
}

// CancelRequest voids an authorization that has not been captured
type CancelRequest struct {
	MerchantOrderNo string
	TradeNo         string
	Amount          int64
}

// QueryRequest looks up the live state of a trade
type QueryRequest struct {
	MerchantOrderNo string
	Amount          int64
}

// CloseResult is the gateway's confirmation of a close or cancel operation
type CloseResult struct {
	Status          string
	Message         string
	MerchantID      string
	MerchantOrderNo string
	TradeNo         string
	Amount          int64
}

// PaymentGatewayClient is the transport strategy used to talk to the gateway.
// One variant is chosen from configuration at startup and injected.
//
// Errors:
//   - MISSING_TRADE_REFERENCE: raised before any network activity
//   - GATEWAY_REJECTED: gateway answered with a non-success status (raw code preserved)
//   - GATEWAY_INVALID_RESPONSE: response could not be decoded
//   - GATEWAY_UNKNOWN_OUTCOME: request may have been applied; resolve with Query
//   - GATEWAY_UNAVAILABLE: request was not sent (circuit open)
type PaymentGatewayClient interface {
	// Name identifies the variant in logs and metrics
	Name() string

	// Close captures or refunds a credit card trade. Never retried internally.
	Close(ctx context.Context, req *CloseRequest) (*CloseResult, error)

	// Cancel voids an uncaptured authorization. Never retried internally.
	Cancel(ctx context.Context, req *CancelRequest) (*CloseResult, error)

	// Query returns the gateway's current view of the trade. Safe to retry.
	Query(ctx context.Context, req *QueryRequest) (*domain.TradeState, error)
}
