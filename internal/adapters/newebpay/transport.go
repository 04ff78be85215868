package newebpay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/kevin07696/newebpay-service/internal/adapters/ports"
	"github.com/kevin07696/newebpay-service/internal/domain"
	"github.com/kevin07696/newebpay-service/pkg/observability"
	"github.com/kevin07696/newebpay-service/pkg/resilience"
	"go.uber.org/zap"
)

// maxResponseBytes bounds how much of a gateway response is read
const maxResponseBytes = 1 << 20

// transport posts forms to the gateway through a circuit breaker and
// classifies failures into unavailable, unknown outcome and rejected.
type transport struct {
	client     string
	httpClient ports.HTTPClient
	breaker    *CircuitBreaker
	backoff    resilience.BackoffStrategy
	logger     *zap.Logger
	userAgent  string
}

func newTransport(client string, config *Config, httpClient ports.HTTPClient, logger *zap.Logger) *transport {
	breakerConfig := DefaultCircuitBreakerConfig()
	breakerConfig.OnStateChange = func(from, to CircuitState) {
		observability.RecordCircuitState(client, int(to))
		logger.Warn("Gateway circuit breaker changed state",
			zap.String("client", client),
			zap.String("from", from.String()),
			zap.String("to", to.String()),
		)
	}

	return &transport{
		client:     client,
		httpClient: httpClient,
		breaker:    NewCircuitBreaker(breakerConfig),
		backoff:    resilience.GatewayQueryBackoff(),
		logger:     logger,
		userAgent:  config.UserAgent,
	}
}

// post sends the form exactly once. Once the request may have reached the
// gateway, any failure to obtain a response is reported as an unknown outcome.
func (t *transport) post(ctx context.Context, operation, endpoint string, form url.Values) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, domain.WrapError(domain.ErrorCodeInternalError, "failed to create gateway request", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if t.userAgent != "" {
		httpReq.Header.Set("User-Agent", t.userAgent)
	}

	var (
		body       []byte
		statusCode int
	)
	start := time.Now()
	err = t.breaker.Call(func() error {
		httpResp, err := t.httpClient.Do(httpReq)
		if err != nil {
			return err
		}
		defer httpResp.Body.Close()

		statusCode = httpResp.StatusCode
		body, err = io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
		if err != nil {
			return fmt.Errorf("failed to read response: %w", err)
		}
		if statusCode >= http.StatusInternalServerError {
			return fmt.Errorf("gateway returned HTTP %d", statusCode)
		}
		return nil
	})
	elapsed := time.Since(start)

	switch {
	case errors.Is(err, ErrCircuitOpen) || errors.Is(err, ErrTooManyProbes):
		observability.RecordGatewayCall(t.client, operation, "unavailable", elapsed)
		t.logger.Warn("Gateway request rejected by circuit breaker",
			zap.String("client", t.client),
			zap.String("operation", operation),
		)
		return nil, domain.WrapError(domain.ErrorCodeGatewayUnavailable, "payment gateway unavailable", err)

	case err != nil:
		observability.RecordGatewayCall(t.client, operation, "unknown", elapsed)
		t.logger.Error("Gateway request outcome unknown",
			zap.String("client", t.client),
			zap.String("operation", operation),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
		return nil, domain.WrapError(domain.ErrorCodeGatewayUnknownOutcome, operation+" outcome unknown", err).
			WithDetail("operation", operation)

	case statusCode >= http.StatusBadRequest:
		observability.RecordGatewayCall(t.client, operation, "rejected", elapsed)
		t.logger.Warn("Gateway rejected request",
			zap.String("client", t.client),
			zap.String("operation", operation),
			zap.Int("status_code", statusCode),
		)
		return nil, domain.NewGatewayRejected("HTTP_"+strconv.Itoa(statusCode), strings.TrimSpace(string(body)))
	}

	observability.RecordGatewayCall(t.client, operation, "ok", elapsed)
	t.logger.Info("Received gateway response",
		zap.String("client", t.client),
		zap.String("operation", operation),
		zap.Int("status_code", statusCode),
		zap.Duration("elapsed", elapsed),
		zap.Int("body_length", len(body)),
	)
	return body, nil
}

// postIdempotent retries unknown outcomes with exponential backoff.
// Only read-only operations may use it.
func (t *transport) postIdempotent(ctx context.Context, operation, endpoint string, form url.Values, maxRetries int) ([]byte, error) {
	for attempt := 0; ; attempt++ {
		body, err := t.post(ctx, operation, endpoint, form)
		if err == nil || !domain.IsUnknownOutcome(err) || attempt >= maxRetries {
			return body, err
		}

		delay := t.backoff.NextDelay(attempt)
		t.logger.Info("Retrying gateway query with exponential backoff",
			zap.String("operation", operation),
			zap.Int("attempt", attempt+1),
			zap.Int("max_retries", maxRetries),
			zap.Duration("backoff_delay", delay),
		)
		select {
		case <-ctx.Done():
			return nil, err
		case <-time.After(delay):
		}
	}
}
