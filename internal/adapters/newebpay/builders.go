package newebpay

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/kevin07696/newebpay-service/internal/adapters/ports"
	"github.com/kevin07696/newebpay-service/internal/domain"
)

// param is one key/value in an order-preserving parameter list
type param struct {
	key   string
	value string
}

// params serializes in insertion order, unlike url.Values which sorts keys
type params []param

func (p params) add(key, value string) params {
	return append(p, param{key: key, value: value})
}

// Encode renders the list as an application/x-www-form-urlencoded string
func (p params) Encode() string {
	var sb strings.Builder
	for i, kv := range p {
		if i > 0 {
			sb.WriteByte('&')
		}
		sb.WriteString(url.QueryEscape(kv.key))
		sb.WriteByte('=')
		sb.WriteString(url.QueryEscape(kv.value))
	}
	return sb.String()
}

// Envelope is the signed, encrypted create-payment unit posted by the browser to the MPG gateway
type Envelope struct {
	MerchantID string `json:"MerchantID"`
	TradeInfo  string `json:"TradeInfo"`
	TradeSha   string `json:"TradeSha"`
	Version    string `json:"Version"`
	PaymentURL string `json:"PaymentUrl"`

	plaintext string
}

// Plaintext returns the parameter string before encryption
func (e *Envelope) Plaintext() string { return e.plaintext }

// FormFields returns the hidden inputs of the checkout form
func (e *Envelope) FormFields() []FormField {
	return []FormField{
		{Name: "MerchantID", Value: e.MerchantID},
		{Name: "TradeInfo", Value: e.TradeInfo},
		{Name: "TradeSha", Value: e.TradeSha},
		{Name: "Version", Value: e.Version},
	}
}

// FormField is a single hidden form input
type FormField struct {
	Name  string
	Value string
}

// CloseEnvelope is the encrypted body for the Close and Cancel APIs.
// On the wire its fields are named MerchantID_, PostData_ and HashData_.
type CloseEnvelope struct {
	MerchantID string
	PostData   string
	HashData   string

	plaintext string
}

// Plaintext returns the PostData string before encryption
func (e *CloseEnvelope) Plaintext() string { return e.plaintext }

// Form returns the envelope as form values
func (e *CloseEnvelope) Form() url.Values {
	form := GetFormData()
	form.Set("MerchantID_", e.MerchantID)
	form.Set("PostData_", e.PostData)
	form.Set("HashData_", e.HashData)
	return form
}

// CreatePaymentRequest contains the parameters for a hosted checkout
type CreatePaymentRequest struct {
	MerchantOrderNo string
	ItemDesc        string
	Email           string
	NotifyURL       string
	ReturnURL       string
	ClientBackURL   string
	Amount          int64
}

// Builder assembles gateway requests. It is a pure function of its inputs,
// the credential and the injected clock.
type Builder struct {
	config *Config
	codec  *Codec
	now    func() time.Time
}

// NewBuilder creates a request builder. now defaults to time.Now.
func NewBuilder(config *Config, codec *Codec, now func() time.Time) *Builder {
	if now == nil {
		now = time.Now
	}
	return &Builder{config: config, codec: codec, now: now}
}

// Codec returns the codec used to seal requests
func (b *Builder) Codec() *Codec { return b.codec }

func (b *Builder) timestamp() string {
	return strconv.FormatInt(b.now().Unix(), 10)
}

// BuildCreatePayment builds the MPG checkout envelope
func (b *Builder) BuildCreatePayment(req *CreatePaymentRequest) (*Envelope, error) {
	if err := b.validateCreatePayment(req); err != nil {
		return nil, err
	}

	p := params{}.
		add("MerchantID", b.codec.MerchantID()).
		add("RespondType", RespondTypeJSON).
		add("TimeStamp", b.timestamp()).
		add("Version", MPGVersion).
		add("MerchantOrderNo", req.MerchantOrderNo).
		add("Amt", FormatAmount(req.Amount)).
		add("ItemDesc", req.ItemDesc).
		add("Email", req.Email)
	for _, method := range b.config.PaymentMethods {
		p = p.add(method, "1")
	}
	p = p.add("NotifyURL", req.NotifyURL).
		add("ReturnURL", req.ReturnURL)
	if req.ClientBackURL != "" {
		p = p.add("ClientBackURL", req.ClientBackURL)
	}

	plaintext := p.Encode()
	tradeInfo := b.codec.EncryptPayload(plaintext)

	return &Envelope{
		MerchantID: b.codec.MerchantID(),
		TradeInfo:  tradeInfo,
		TradeSha:   b.codec.SignPayload(tradeInfo),
		Version:    MPGVersion,
		PaymentURL: b.config.MPGURL(),
		plaintext:  plaintext,
	}, nil
}

func (b *Builder) validateCreatePayment(req *CreatePaymentRequest) error {
	if err := domain.ValidateMerchantOrderNo(req.MerchantOrderNo); err != nil {
		return err
	}
	if req.Amount <= 0 {
		return domain.NewDomainError(domain.ErrorCodeValidationAmountInvalid, "amount must be positive").
			WithDetail("amount", req.Amount)
	}
	if strings.TrimSpace(req.ItemDesc) == "" {
		return domain.NewDomainError(domain.ErrorCodeValidationMissingField, "item description is required").
			WithDetail("field", "ItemDesc")
	}
	if len(b.config.PaymentMethods) == 0 {
		return domain.NewDomainError(domain.ErrorCodeValidationFailed, "at least one payment method must be enabled")
	}
	return nil
}

// BuildClose builds a capture or refund request for the credit card Close API
func (b *Builder) BuildClose(req *ports.CloseRequest) (*CloseEnvelope, error) {
	if req.TradeNo == "" {
		return nil, missingTradeReference(req.MerchantOrderNo)
	}
	if req.Type != ports.CloseTypeCapture && req.Type != ports.CloseTypeRefund {
		return nil, domain.NewDomainError(domain.ErrorCodeValidationFailed, "close type must be 1 (capture) or 2 (refund)").
			WithDetail("close_type", int(req.Type))
	}
	if err := validateTradeAmount(req.MerchantOrderNo, req.Amount); err != nil {
		return nil, err
	}

	p := params{}.
		add("RespondType", RespondTypeJSON).
		add("Version", CloseVersion).
		add("Amt", FormatAmount(req.Amount)).
		add("MerchantOrderNo", req.MerchantOrderNo).
		add("TimeStamp", b.timestamp()).
		add("IndexType", strconv.Itoa(IndexTypeTradeNo)).
		add("TradeNo", req.TradeNo).
		add("CloseType", strconv.Itoa(int(req.Type)))

	return b.seal(p.Encode()), nil
}

// BuildCancel builds an authorization void for the credit card Cancel API
func (b *Builder) BuildCancel(req *ports.CancelRequest) (*CloseEnvelope, error) {
	if req.TradeNo == "" {
		return nil, missingTradeReference(req.MerchantOrderNo)
	}
	if err := validateTradeAmount(req.MerchantOrderNo, req.Amount); err != nil {
		return nil, err
	}

	p := params{}.
		add("RespondType", RespondTypeJSON).
		add("Version", CancelVersion).
		add("Amt", FormatAmount(req.Amount)).
		add("MerchantOrderNo", req.MerchantOrderNo).
		add("TimeStamp", b.timestamp()).
		add("IndexType", strconv.Itoa(IndexTypeTradeNo)).
		add("TradeNo", req.TradeNo)

	return b.seal(p.Encode()), nil
}

func (b *Builder) seal(plaintext string) *CloseEnvelope {
	postData := b.codec.EncryptPayload(plaintext)
	return &CloseEnvelope{
		MerchantID: b.codec.MerchantID(),
		PostData:   postData,
		HashData:   b.codec.SignPayload(postData),
		plaintext:  plaintext,
	}
}

// BuildQuery builds the plaintext QueryTradeInfo form signed with CheckValue
func (b *Builder) BuildQuery(req *ports.QueryRequest) (url.Values, error) {
	if err := validateTradeAmount(req.MerchantOrderNo, req.Amount); err != nil {
		return nil, err
	}

	amt := FormatAmount(req.Amount)
	checkValue := CheckValue(map[string]string{
		"Amt":             amt,
		"MerchantID":      b.codec.MerchantID(),
		"MerchantOrderNo": req.MerchantOrderNo,
	}, b.codec.cred)

	form := GetFormData()
	form.Set("MerchantID", b.codec.MerchantID())
	form.Set("Version", QueryVersion)
	form.Set("RespondType", RespondTypeJSON)
	form.Set("CheckValue", checkValue)
	form.Set("TimeStamp", b.timestamp())
	form.Set("MerchantOrderNo", req.MerchantOrderNo)
	form.Set("Amt", amt)
	return form, nil
}

func validateTradeAmount(merchantOrderNo string, amount int64) error {
	if err := domain.ValidateMerchantOrderNo(merchantOrderNo); err != nil {
		return err
	}
	if amount <= 0 {
		return domain.NewDomainError(domain.ErrorCodeValidationAmountInvalid, "amount must be positive").
			WithDetail("amount", amount)
	}
	return nil
}

func missingTradeReference(merchantOrderNo string) error {
	return domain.NewDomainError(domain.ErrorCodeMissingTradeReference, "gateway trade number is required").
		WithDetail("merchant_order_no", merchantOrderNo)
}
