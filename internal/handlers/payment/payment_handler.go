package payment

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"github.com/kevin07696/newebpay-service/internal/domain"
	domainports "github.com/kevin07696/newebpay-service/internal/domain/ports"
	"github.com/kevin07696/newebpay-service/internal/services/ports"
	"github.com/kevin07696/newebpay-service/pkg/encoding"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// maxBodyBytes bounds JSON and form request bodies
const maxBodyBytes = 64 << 10

// Handler serves the checkout, callback and operator endpoints
type Handler struct {
	service   ports.PaymentService
	resultURL string
	logger    *zap.Logger
}

// NewHandler creates a payment HTTP handler. resultURL is where browser returns are redirected.
func NewHandler(service ports.PaymentService, resultURL string, logger *zap.Logger) *Handler {
	return &Handler{
		service:   service,
		resultURL: resultURL,
		logger:    logger,
	}
}

// Register mounts the browser-facing routes on mux and the operator JSON API on gw.
// gw is mounted under /api/ on mux, so the exact callback paths registered here win.
func (h *Handler) Register(mux *http.ServeMux, gw *runtime.ServeMux) error {
	mux.HandleFunc("/api/payment/create", h.CreatePayment)
	mux.HandleFunc("/api/payment/checkout", h.Checkout)
	mux.HandleFunc("/api/payment/notify", h.Notify)
	mux.HandleFunc("/api/payment/return", h.Return)
	mux.HandleFunc("/payment/result", h.ResultPage)

	routes := []struct {
		method  string
		pattern string
		handler runtime.HandlerFunc
	}{
		{http.MethodPost, "/api/payment/capture", h.Capture},
		{http.MethodPost, "/api/payment/refund", h.Refund},
		{http.MethodPost, "/api/payment/cancel", h.Cancel},
		{http.MethodPost, "/api/payment/query", h.Query},
		{http.MethodGet, "/api/orders", h.ListOrders},
		{http.MethodGet, "/api/orders/{merchantOrderNo}", h.GetOrder},
	}
	for _, route := range routes {
		if err := gw.HandlePath(route.method, route.pattern, route.handler); err != nil {
			return err
		}
	}
	mux.Handle("/api/", gw)
	return nil
}

// createPaymentRequest accepts amount as a JSON number or string
type createPaymentRequest struct {
	OrderID  string          `json:"orderId"`
	Amount   decimal.Decimal `json:"amount"`
	ItemDesc string          `json:"itemDesc"`
	Email    string          `json:"email"`
}

type tradeRequest struct {
	MerchantOrderNo string          `json:"merchantOrderNo"`
	TradeNo         string          `json:"tradeNo"`
	Amount          decimal.Decimal `json:"amount"`
	Manual          bool            `json:"manual"`
}

func (r *tradeRequest) toPort() *ports.TradeRequest {
	return &ports.TradeRequest{
		MerchantOrderNo: r.MerchantOrderNo,
		TradeNo:         r.TradeNo,
		Amount:          r.Amount,
		Manual:          r.Manual,
	}
}

type errorResponse struct {
	Success        bool           `json:"success"`
	Code           string         `json:"code"`
	Error          string         `json:"error"`
	GatewayStatus  string         `json:"gatewayStatus,omitempty"`
	GatewayMessage string         `json:"gatewayMessage,omitempty"`
	Details        map[string]any `json:"details,omitempty"`
}

type operationResponse struct {
	Success bool `json:"success"`
	*ports.OperationResult
}

type queryResponse struct {
	Success bool `json:"success"`
	*ports.QueryResult
}

type ordersResponse struct {
	Success bool            `json:"success"`
	Orders  []*domain.Order `json:"orders"`
	Total   int             `json:"total"`
}

type orderResponse struct {
	Success bool          `json:"success"`
	Order   *domain.Order `json:"order"`
}

// CreatePayment handles POST /api/payment/create
func (h *Handler) CreatePayment(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.respondMethodNotAllowed(w, http.MethodPost)
		return
	}

	var req createPaymentRequest
	if err := decodeJSON(r, &req); err != nil {
		h.respondError(w, err)
		return
	}

	envelope, err := h.service.CreatePayment(r.Context(), &ports.CreatePaymentRequest{
		MerchantOrderNo: req.OrderID,
		ItemDesc:        req.ItemDesc,
		Email:           req.Email,
		Amount:          req.Amount,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, envelope)
}

// Capture handles POST /api/payment/capture
func (h *Handler) Capture(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	var req tradeRequest
	if err := decodeJSON(r, &req); err != nil {
		h.respondError(w, err)
		return
	}
	result, err := h.service.Capture(r.Context(), req.toPort())
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, operationResponse{Success: true, OperationResult: result})
}

// Refund handles POST /api/payment/refund
func (h *Handler) Refund(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	var req tradeRequest
	if err := decodeJSON(r, &req); err != nil {
		h.respondError(w, err)
		return
	}
	result, err := h.service.Refund(r.Context(), req.toPort())
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, operationResponse{Success: true, OperationResult: result})
}

// Cancel handles POST /api/payment/cancel
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	var req tradeRequest
	if err := decodeJSON(r, &req); err != nil {
		h.respondError(w, err)
		return
	}
	result, err := h.service.Cancel(r.Context(), req.toPort())
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, operationResponse{Success: true, OperationResult: result})
}

// Query handles POST /api/payment/query
func (h *Handler) Query(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	var req tradeRequest
	if err := decodeJSON(r, &req); err != nil {
		h.respondError(w, err)
		return
	}
	result, err := h.service.Query(r.Context(), req.toPort())
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, queryResponse{Success: true, QueryResult: result})
}

// ListOrders handles GET /api/orders?filter=refundable
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	filter := domainports.OrderFilter{RefundableOnly: r.URL.Query().Get("filter") == "refundable"}

	orders, err := h.service.ListOrders(r.Context(), filter)
	if err != nil {
		h.respondError(w, err)
		return
	}
	if orders == nil {
		orders = []*domain.Order{}
	}
	h.writeJSON(w, http.StatusOK, ordersResponse{Success: true, Orders: orders, Total: len(orders)})
}

// GetOrder handles GET /api/orders/{merchantOrderNo}
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	order, err := h.service.GetOrder(r.Context(), pathParams["merchantOrderNo"])
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, orderResponse{Success: true, Order: order})
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return domain.NewDomainError(domain.ErrorCodeValidationFailed, "request body is empty")
		}
		return domain.WrapError(domain.ErrorCodeValidationFailed, "request body is not valid JSON", err)
	}
	return nil
}

// respondError maps a service error to its HTTP status and a JSON body
func (h *Handler) respondError(w http.ResponseWriter, err error) {
	code := domain.GetErrorCode(err)
	if code == "" {
		code = domain.ErrorCodeInternalError
	}
	status := domain.HTTPStatus(code)

	resp := errorResponse{Success: false, Code: string(code), Error: err.Error()}
	var domainErr *domain.DomainError
	if errors.As(err, &domainErr) {
		resp.Error = domainErr.Message
		resp.Details = domainErr.Details
	}
	if rej, ok := domain.AsGatewayRejection(err); ok {
		resp.GatewayStatus = rej.Status
		resp.GatewayMessage = rej.Message
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed", zap.String("error_code", string(code)), zap.Error(err))
		// internal details stay in the log
		if code == domain.ErrorCodeInternalError || code == domain.ErrorCodeStoreError {
			resp.Error = "internal error"
			resp.Details = nil
		}
	}
	h.writeJSON(w, status, resp)
}

func (h *Handler) respondMethodNotAllowed(w http.ResponseWriter, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	h.writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Code: "METHOD_NOT_ALLOWED", Error: "method not allowed"})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	if err := encoding.WriteJSON(w, status, v); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
