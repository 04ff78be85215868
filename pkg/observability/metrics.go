package observability

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

var (
	// Gateway call metrics
	gatewayCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "newebpay_gateway_calls_total",
		Help: "Total number of calls to the NewebPay gateway",
	}, []string{
		"client",    // direct, sdk
		"operation", // close_capture, close_refund, cancel, query
		"outcome",   // ok, rejected, unknown, unavailable
	})

	gatewayCallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "newebpay_gateway_call_duration_seconds",
		Help:    "Duration of NewebPay gateway calls",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"client", "operation"})

	gatewayCircuitState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "newebpay_gateway_circuit_state",
		Help: "Circuit breaker state per client (0=closed, 1=open, 2=half-open)",
	}, []string{"client"})

	// Codec metrics
	lenientUnpadTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "newebpay_lenient_unpad_total",
		Help: "Decrypted payloads whose padding did not validate and were recovered by stripping control characters",
	})

	signatureFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "newebpay_signature_failures_total",
		Help: "Payloads rejected because their signature did not match",
	}, []string{"scheme"}) // trade_sha, check_code

	// Callback and order metrics
	callbacksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "newebpay_callbacks_total",
		Help: "Gateway callbacks received",
	}, []string{
		"kind",   // notify, return
		"result", // applied, duplicate, failed_payment, rejected, error
	})

	orderTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "order_transitions_total",
		Help: "Order state transitions applied to the store",
	}, []string{"to"}) // paid, refunded

	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"path", "method", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"path", "method"})

	// gRPC request metrics
	grpcRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "grpc_requests_total",
		Help: "Total number of gRPC requests",
	}, []string{"method", "status"})
)

// RecordGatewayCall records the outcome and latency of one gateway request
func RecordGatewayCall(client, operation, outcome string, elapsed time.Duration) {
	gatewayCallsTotal.WithLabelValues(client, operation, outcome).Inc()
	gatewayCallDuration.WithLabelValues(client, operation).Observe(elapsed.Seconds())
}

// RecordCircuitState records a circuit breaker transition
func RecordCircuitState(client string, state int) {
	gatewayCircuitState.WithLabelValues(client).Set(float64(state))
}

// RecordLenientUnpad counts a padding fallback during decryption
func RecordLenientUnpad() {
	lenientUnpadTotal.Inc()
}

// RecordSignatureFailure counts a rejected signature
func RecordSignatureFailure(scheme string) {
	signatureFailuresTotal.WithLabelValues(scheme).Inc()
}

// RecordCallback counts a processed gateway callback
func RecordCallback(kind, result string) {
	callbacksTotal.WithLabelValues(kind, result).Inc()
}

// RecordOrderTransition counts an order entering a state
func RecordOrderTransition(to string) {
	orderTransitionsTotal.WithLabelValues(to).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// HTTPMiddleware records request counts and latency. Path labels use the
// matched route pattern to keep cardinality bounded.
func HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		path := r.Pattern
		if path == "" {
			path = "unmatched"
		}
		httpRequestsTotal.WithLabelValues(path, r.Method, strconv.Itoa(rec.status)).Inc()
		httpRequestDuration.WithLabelValues(path, r.Method).Observe(time.Since(start).Seconds())
	})
}

// UnaryServerInterceptor counts gRPC requests by method and status code
func UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		resp, err := handler(ctx, req)

		statusCode := "OK"
		if err != nil {
			st, _ := status.FromError(err)
			statusCode = st.Code().String()
		}
		grpcRequestsTotal.WithLabelValues(info.FullMethod, statusCode).Inc()

		return resp, err
	}
}
