package resilience

import (
	"context"
	"testing"
	"time"
)

func assertHierarchy(t *testing.T, config *TimeoutConfig) {
	t.Helper()
	if config.HTTPHandler <= config.Service {
		t.Errorf("HTTPHandler (%v) must be > Service (%v)", config.HTTPHandler, config.Service)
	}
	// a refund makes up to three sequential gateway calls
	if config.Service < 3*config.GatewayCall {
		t.Errorf("Service (%v) must cover three GatewayCall (%v)", config.Service, config.GatewayCall)
	}
}

func TestDefaultTimeoutConfig(t *testing.T) {
	assertHierarchy(t, DefaultTimeoutConfig())
}

func TestTestTimeoutConfig(t *testing.T) {
	config := TestTimeoutConfig()
	assertHierarchy(t, config)
	if config.HTTPHandler >= 10*time.Second {
		t.Errorf("Test timeouts should be < 10s, got %v", config.HTTPHandler)
	}
}

func TestWithGatewayCall_PreservesHierarchy(t *testing.T) {
	config := DefaultTimeoutConfig().WithGatewayCall(30 * time.Second)

	if config.GatewayCall != 30*time.Second {
		t.Errorf("GatewayCall = %v, want 30s", config.GatewayCall)
	}
	assertHierarchy(t, config)

	if DefaultTimeoutConfig().GatewayCall != 10*time.Second {
		t.Error("WithGatewayCall must not mutate the receiver's defaults")
	}
}

func TestGatewayContext_HasDeadline(t *testing.T) {
	config := TestTimeoutConfig()

	ctx, cancel := config.GatewayContext(context.Background())
	defer cancel()

	deadline, ok := ctx.Deadline()
	if !ok {
		t.Fatal("GatewayContext should set a deadline")
	}
	if remaining := time.Until(deadline); remaining > config.GatewayCall {
		t.Errorf("remaining %v exceeds GatewayCall %v", remaining, config.GatewayCall)
	}
}

func TestGatewayContext_ParentCancellation(t *testing.T) {
	parent, cancelParent := context.WithCancel(context.Background())
	ctx, cancel := TestTimeoutConfig().GatewayContext(parent)
	defer cancel()

	cancelParent()

	select {
	case <-ctx.Done():
		if ctx.Err() != context.Canceled {
			t.Errorf("Expected context.Canceled, got %v", ctx.Err())
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("child context was not cancelled with its parent")
	}
}
