package payment

import (
	"html/template"
	"net/http"
	"net/url"

	"github.com/kevin07696/newebpay-service/internal/domain"
	"github.com/kevin07696/newebpay-service/internal/services/ports"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var checkoutTemplate = template.Must(template.New("checkout").Parse(`<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Redirecting to payment</title>
</head>
<body onload="document.forms[0].submit()">
    <form method="POST" action="{{.PaymentURL}}">
        <input type="hidden" name="MerchantID" value="{{.MerchantID}}">
        <input type="hidden" name="TradeInfo" value="{{.TradeInfo}}">
        <input type="hidden" name="TradeSha" value="{{.TradeSha}}">
        <input type="hidden" name="Version" value="{{.Version}}">
        <noscript><button type="submit">Continue to payment</button></noscript>
    </form>
</body>
</html>`))

var resultTemplate = template.Must(template.New("result").Parse(`<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Payment {{if .Success}}Complete{{else}}Failed{{end}}</title>
</head>
<body>
    <h1>{{if .Success}}Payment Complete{{else}}Payment Failed{{end}}</h1>
    <p>Status: {{.Status}}</p>
    {{if .Message}}<p>{{.Message}}</p>{{end}}
    {{if .TradeNo}}<p>Trade number: {{.TradeNo}}</p>{{end}}
    {{if .Amt}}<p>Amount: {{.Amt}}</p>{{end}}
    {{if .Card4No}}<p>Card: **** {{.Card4No}}</p>{{end}}
</body>
</html>`))

type resultPageData struct {
	Success bool
	ports.ReturnResult
}

// Checkout handles GET /api/payment/checkout.
// It builds the envelope and renders a form that auto-submits to the hosted payment page.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.respondMethodNotAllowed(w, http.MethodGet)
		return
	}

	q := r.URL.Query()
	amount, err := decimal.NewFromString(q.Get("amount"))
	if err != nil {
		h.respondError(w, domain.WrapError(domain.ErrorCodeValidationAmountInvalid, "amount must be a number", err))
		return
	}

	envelope, err := h.service.CreatePayment(r.Context(), &ports.CreatePaymentRequest{
		MerchantOrderNo: q.Get("orderId"),
		ItemDesc:        q.Get("itemDesc"),
		Email:           q.Get("email"),
		Amount:          amount,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if err := checkoutTemplate.Execute(w, envelope); err != nil {
		h.logger.Error("Failed to render checkout form",
			zap.String("merchant_order_no", envelope.MerchantOrderNo),
			zap.Error(err))
	}
}

// Notify handles POST /api/payment/notify.
// The gateway retries anything but 200, so every outcome is acknowledged and only logged here.
func (h *Handler) Notify(w http.ResponseWriter, r *http.Request) {
	defer acknowledge(w)

	if r.Method != http.MethodPost {
		h.logger.Warn("Notification with unexpected method", zap.String("method", r.Method))
		return
	}

	form, err := parseCallbackForm(r)
	if err != nil {
		h.logger.Warn("Failed to parse notification form", zap.Error(err))
		return
	}

	outcome, err := h.service.HandleNotification(r.Context(), form)
	if err != nil {
		h.logger.Warn("Notification not applied",
			zap.String("status", form.Status),
			zap.String("error_code", string(domain.GetErrorCode(err))),
			zap.Error(err))
		return
	}
	if outcome.AutoCaptureErr != nil {
		h.logger.Error("Auto-capture failed after notification",
			zap.String("merchant_order_no", outcome.Order.MerchantOrderNo),
			zap.Error(outcome.AutoCaptureErr))
	}
}

// Return handles POST /api/payment/return, the browser's landing after checkout.
// It decodes the result and redirects so a refresh does not repost the form.
func (h *Handler) Return(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.respondMethodNotAllowed(w, http.MethodPost)
		return
	}

	form, err := parseCallbackForm(r)
	if err != nil {
		form = &ports.CallbackForm{}
	}
	result := h.service.DecodeReturn(r.Context(), form)

	http.Redirect(w, r, h.resultLocation(result), http.StatusSeeOther)
}

// ResultPage handles GET /payment/result
func (h *Handler) ResultPage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.respondMethodNotAllowed(w, http.MethodGet)
		return
	}

	q := r.URL.Query()
	data := resultPageData{
		Success: q.Get("Status") == "SUCCESS",
		ReturnResult: ports.ReturnResult{
			Status:  q.Get("Status"),
			Message: q.Get("Message"),
			TradeNo: q.Get("TradeNo"),
			Amt:     q.Get("Amt"),
			Card4No: q.Get("Card4No"),
		},
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := resultTemplate.Execute(w, data); err != nil {
		h.logger.Error("Failed to render result page", zap.Error(err))
	}
}

func (h *Handler) resultLocation(result *ports.ReturnResult) string {
	params := url.Values{}
	params.Set("Status", result.Status)
	params.Set("Message", result.Message)
	params.Set("TradeNo", result.TradeNo)
	params.Set("Amt", result.Amt)
	params.Set("Card4No", result.Card4No)
	return h.resultURL + "?" + params.Encode()
}

func parseCallbackForm(r *http.Request) (*ports.CallbackForm, error) {
	r.Body = http.MaxBytesReader(nil, r.Body, maxBodyBytes)
	if err := r.ParseForm(); err != nil {
		return nil, err
	}
	return &ports.CallbackForm{
		Status:     r.PostForm.Get("Status"),
		MerchantID: r.PostForm.Get("MerchantID"),
		TradeInfo:  r.PostForm.Get("TradeInfo"),
		TradeSha:   r.PostForm.Get("TradeSha"),
	}, nil
}

func acknowledge(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}
