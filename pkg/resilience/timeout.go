package resilience

import (
	"context"
	"time"
)

// TimeoutConfig defines the timeout hierarchy, outermost first:
//
//	HTTP Handler (45s)
//	  Service operation (40s, covers a refund's query + close + follow-up query)
//	    Gateway call (10s each)
//	Reconcile sweep (5m)
//
// A gateway call that exceeds its timeout after the request was sent is an
// unknown outcome, never a failure.
type TimeoutConfig struct {
	HTTPHandler    time.Duration
	Service        time.Duration
	GatewayCall    time.Duration
	ReconcileSweep time.Duration
	StoreOperation time.Duration
}

// DefaultTimeoutConfig returns production timeout values
func DefaultTimeoutConfig() *TimeoutConfig {
	return &TimeoutConfig{
		HTTPHandler:    45 * time.Second,
		Service:        40 * time.Second,
		GatewayCall:    10 * time.Second,
		ReconcileSweep: 5 * time.Minute,
		StoreOperation: 5 * time.Second,
	}
}

// TestTimeoutConfig returns shorter timeouts for testing
func TestTimeoutConfig() *TimeoutConfig {
	return &TimeoutConfig{
		HTTPHandler:    5 * time.Second,
		Service:        4 * time.Second,
		GatewayCall:    1 * time.Second,
		ReconcileSweep: 10 * time.Second,
		StoreOperation: 1 * time.Second,
	}
}

// WithGatewayCall sets the gateway timeout, keeping the parents above it
func (tc *TimeoutConfig) WithGatewayCall(d time.Duration) *TimeoutConfig {
	out := *tc
	out.GatewayCall = d
	if min := 4 * d; out.Service < min {
		out.Service = min
	}
	if out.HTTPHandler <= out.Service {
		out.HTTPHandler = out.Service + 5*time.Second
	}
	return &out
}

// HandlerContext creates a context with timeout for HTTP handlers
func (tc *TimeoutConfig) HandlerContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, tc.HTTPHandler)
}

// ServiceContext creates a context for a service operation
func (tc *TimeoutConfig) ServiceContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, tc.Service)
}

// GatewayContext creates a context for a single gateway call
func (tc *TimeoutConfig) GatewayContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, tc.GatewayCall)
}

// SweepContext creates a context for one reconciliation sweep
func (tc *TimeoutConfig) SweepContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, tc.ReconcileSweep)
}

// StoreContext creates a context for an order store operation
func (tc *TimeoutConfig) StoreContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, tc.StoreOperation)
}
