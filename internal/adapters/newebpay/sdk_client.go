package newebpay

import (
	"context"
	"net/url"
	"strconv"
	"time"

	"github.com/kevin07696/newebpay-service/internal/adapters/ports"
	"github.com/kevin07696/newebpay-service/internal/domain"
	"go.uber.org/zap"
)

// vendorSdkClient mirrors the vendor SDK's generic request shape: parameters are
// collected in url.Values, serialized in sorted key order, and wrapped by shared
// helpers. Requests are form-urlencoded and Close/Cancel always carry HashData_.
type vendorSdkClient struct {
	config    *Config
	codec     *Codec
	transport *transport
	now       func() time.Time
	logger    *zap.Logger
}

// NewVendorSdkClient creates the SDK-shaped gateway client
func NewVendorSdkClient(config *Config, codec *Codec, httpClient ports.HTTPClient, logger *zap.Logger, now func() time.Time) ports.PaymentGatewayClient {
	if now == nil {
		now = time.Now
	}
	return &vendorSdkClient{
		config:    config,
		codec:     codec,
		transport: newTransport(ClientSDK, config, httpClient, logger),
		now:       now,
		logger:    logger,
	}
}

func (c *vendorSdkClient) Name() string { return ClientSDK }

func (c *vendorSdkClient) timestamp() string {
	return strconv.FormatInt(c.now().Unix(), 10)
}

// buildTradeInfo encrypts the sorted form encoding of p
func (c *vendorSdkClient) buildTradeInfo(p url.Values) string {
	return c.codec.EncryptPayload(p.Encode())
}

// buildCheckValue signs the single-valued fields of p with Scheme B
func (c *vendorSdkClient) buildCheckValue(p url.Values) string {
	fields := make(map[string]string, len(p))
	for k := range p {
		fields[k] = p.Get(k)
	}
	return CheckValue(fields, c.codec.cred)
}

// postEncrypted wraps p as PostData_ with HashData_ and posts it
func (c *vendorSdkClient) postEncrypted(ctx context.Context, operation, endpoint, version string, p url.Values) (*ports.CloseResult, error) {
	p.Set("RespondType", RespondTypeJSON)
	p.Set("TimeStamp", c.timestamp())
	p.Set("Version", version)

	postData := c.buildTradeInfo(p)

	form := GetFormData()
	defer PutFormData(form)
	form.Set("MerchantID_", c.codec.MerchantID())
	form.Set("PostData_", postData)
	form.Set("HashData_", c.codec.SignPayload(postData))

	body, err := c.transport.post(ctx, operation, endpoint, form)
	if err != nil {
		return nil, err
	}
	return ParseCloseResponse(body)
}

// Close captures or refunds a credit card trade
func (c *vendorSdkClient) Close(ctx context.Context, req *ports.CloseRequest) (*ports.CloseResult, error) {
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

	c.logger.Info("Sending close request",
		zap.String("close_type", req.Type.String()),
		zap.String("merchant_order_no", req.MerchantOrderNo),
		zap.String("trade_no", req.TradeNo),
	)

	p := GetFormData()
	defer PutFormData(p)
	p.Set("Amt", FormatAmount(req.Amount))
	p.Set("MerchantOrderNo", req.MerchantOrderNo)
	p.Set("IndexType", strconv.Itoa(IndexTypeTradeNo))
	p.Set("TradeNo", req.TradeNo)
	p.Set("CloseType", strconv.Itoa(int(req.Type)))

	return c.postEncrypted(ctx, "close_"+req.Type.String(), c.config.CloseURL(), CloseVersion, p)
}

// Cancel voids an uncaptured authorization
func (c *vendorSdkClient) Cancel(ctx context.Context, req *ports.CancelRequest) (*ports.CloseResult, error) {
	if req.TradeNo == "" {
		return nil, missingTradeReference(req.MerchantOrderNo)
	}
	if err := validateTradeAmount(req.MerchantOrderNo, req.Amount); err != nil {
		return nil, err
	}

	p := GetFormData()
	defer PutFormData(p)
	p.Set("Amt", FormatAmount(req.Amount))
	p.Set("MerchantOrderNo", req.MerchantOrderNo)
	p.Set("IndexType", strconv.Itoa(IndexTypeTradeNo))
	p.Set("TradeNo", req.TradeNo)

	return c.postEncrypted(ctx, "cancel", c.config.CancelURL(), CancelVersion, p)
}

// Query fetches trade state
func (c *vendorSdkClient) Query(ctx context.Context, req *ports.QueryRequest) (*domain.TradeState, error) {
	if err := validateTradeAmount(req.MerchantOrderNo, req.Amount); err != nil {
		return nil, err
	}

	signed := GetFormData()
	defer PutFormData(signed)
	signed.Set("Amt", FormatAmount(req.Amount))
	signed.Set("MerchantID", c.codec.MerchantID())
	signed.Set("MerchantOrderNo", req.MerchantOrderNo)

	form := GetFormData()
	defer PutFormData(form)
	form.Set("MerchantID", c.codec.MerchantID())
	form.Set("Version", QueryVersion)
	form.Set("RespondType", RespondTypeJSON)
	form.Set("CheckValue", c.buildCheckValue(signed))
	form.Set("TimeStamp", c.timestamp())
	form.Set("MerchantOrderNo", req.MerchantOrderNo)
	form.Set("Amt", FormatAmount(req.Amount))

	body, err := c.transport.postIdempotent(ctx, "query", c.config.QueryURL(), form, c.config.QueryMaxRetries)
	if err != nil {
		return nil, err
	}
	return ParseQueryResponse(body, c.codec.cred)
}
