package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewMetricsServer builds the HTTP server exposing /metrics, /health and /ready.
// The caller owns ListenAndServe and Shutdown.
func NewMetricsServer(addr string, healthChecker *HealthChecker) *http.Server {
	mux := http.NewServeMux()

	mux.Handle("GET /metrics", promhttp.Handler())

	if healthChecker != nil {
		mux.HandleFunc("GET /health", healthChecker.HealthHandler())
	}

	mux.HandleFunc("GET /ready", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	return &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  15 * time.Second,
	}
}
