package cron

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/kevin07696/newebpay-service/internal/domain"
	"github.com/kevin07696/newebpay-service/internal/services/ports"
	"github.com/kevin07696/newebpay-service/pkg/encoding"
	"go.uber.org/zap"
)

// ReconcileHandler exposes the refund reconciliation sweep to an external scheduler
type ReconcileHandler struct {
	service    ports.PaymentService
	logger     *zap.Logger
	cronSecret string // Secret token for authenticating cron requests
}

// NewReconcileHandler creates a new reconcile cron handler
func NewReconcileHandler(service ports.PaymentService, logger *zap.Logger, cronSecret string) *ReconcileHandler {
	return &ReconcileHandler{
		service:    service,
		logger:     logger,
		cronSecret: cronSecret,
	}
}

// ReconcileResponse represents the response from one sweep
type ReconcileResponse struct {
	Success        bool   `json:"success"`
	Checked        int    `json:"checked"`
	MarkedRefunded int    `json:"marked_refunded"`
	Failed         int    `json:"failed"`
	Error          string `json:"error,omitempty"`
	ProcessedAt    string `json:"processed_at"`
}

// Register mounts the cron endpoints
func (h *ReconcileHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/cron/reconcile", h.Reconcile)
	mux.HandleFunc("/cron/health", h.HealthCheck)
}

// Reconcile handles the POST /cron/reconcile endpoint
func (h *ReconcileHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	h.logger.Info("Reconcile cron job triggered",
		zap.String("method", r.Method),
		zap.String("remote_addr", r.RemoteAddr),
	)

	if r.Method != http.MethodPost {
		h.respondError(w, http.StatusMethodNotAllowed, "only POST method is allowed")
		return
	}

	if !h.authenticateRequest(r) {
		h.logger.Warn("Unauthorized cron request", zap.String("remote_addr", r.RemoteAddr))
		h.respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	result, err := h.service.ReconcileSweep(r.Context())
	if result == nil {
		result = &ports.SweepResult{}
	}

	resp := ReconcileResponse{
		Success:        err == nil && result.Failed == 0,
		Checked:        result.Checked,
		MarkedRefunded: result.MarkedRefunded,
		Failed:         result.Failed,
		ProcessedAt:    time.Now().UTC().Format(time.RFC3339),
	}

	status := http.StatusOK
	switch {
	case err != nil:
		h.logger.Error("Reconcile sweep failed", zap.Error(err))
		resp.Error = err.Error()
		status = domain.HTTPStatus(domain.GetErrorCode(err))
		if result.Checked > 0 {
			status = http.StatusPartialContent
		}
	case result.Failed > 0:
		// 206 indicates partial success
		status = http.StatusPartialContent
	}

	h.logger.Info("Reconcile sweep completed",
		zap.Int("checked", result.Checked),
		zap.Int("marked_refunded", result.MarkedRefunded),
		zap.Int("failed", result.Failed),
	)

	if err := encoding.WriteJSON(w, status, resp); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}

// HealthCheck handles GET /cron/health for monitoring
func (h *ReconcileHandler) HealthCheck(w http.ResponseWriter, _ *http.Request) {
	resp := map[string]interface{}{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	}
	if err := encoding.WriteJSON(w, http.StatusOK, resp); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}

// authenticateRequest accepts the secret in X-Cron-Secret or as a Bearer token.
// An empty configured secret disables the endpoint.
func (h *ReconcileHandler) authenticateRequest(r *http.Request) bool {
	if h.cronSecret == "" {
		return false
	}

	if secretEqual(r.Header.Get("X-Cron-Secret"), h.cronSecret) {
		return true
	}

	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	return ok && secretEqual(token, h.cronSecret)
}

func secretEqual(got, want string) bool {
	return got != "" && subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

// respondError sends an error response
func (h *ReconcileHandler) respondError(w http.ResponseWriter, statusCode int, message string) {
	resp := map[string]interface{}{
		"success": false,
		"error":   message,
	}
	if err := encoding.WriteJSON(w, statusCode, resp); err != nil {
		h.logger.Error("Failed to encode error response", zap.Error(err))
	}
}
