package newebpay

import (
	"context"

	"github.com/kevin07696/newebpay-service/internal/adapters/ports"
	"github.com/kevin07696/newebpay-service/internal/domain"
	"go.uber.org/zap"
)

// ClientDirect and ClientSDK name the two gateway client variants
const (
	ClientDirect = "direct"
	ClientSDK    = "sdk"
)

// directProtocolClient builds every request field by field in the gateway's documented order
type directProtocolClient struct {
	config    *Config
	builder   *Builder
	transport *transport
	logger    *zap.Logger
}

// NewDirectProtocolClient creates the direct-protocol gateway client
func NewDirectProtocolClient(config *Config, builder *Builder, httpClient ports.HTTPClient, logger *zap.Logger) ports.PaymentGatewayClient {
	return &directProtocolClient{
		config:    config,
		builder:   builder,
		transport: newTransport(ClientDirect, config, httpClient, logger),
		logger:    logger,
	}
}

func (c *directProtocolClient) Name() string { return ClientDirect }

// Close captures or refunds via /API/CreditCard/Close
func (c *directProtocolClient) Close(ctx context.Context, req *ports.CloseRequest) (*ports.CloseResult, error) {
	envelope, err := c.builder.BuildClose(req)
	if err != nil {
		return nil, err
	}

	c.logger.Info("Sending close request",
		zap.String("close_type", req.Type.String()),
		zap.String("merchant_order_no", req.MerchantOrderNo),
		zap.String("trade_no", req.TradeNo),
		zap.Int64("amount", req.Amount),
	)

	form := envelope.Form()
	defer PutFormData(form)

	body, err := c.transport.post(ctx, "close_"+req.Type.String(), c.config.CloseURL(), form)
	if err != nil {
		return nil, err
	}
	return ParseCloseResponse(body)
}

// Cancel voids an authorization via /API/CreditCard/Cancel
func (c *directProtocolClient) Cancel(ctx context.Context, req *ports.CancelRequest) (*ports.CloseResult, error) {
	envelope, err := c.builder.BuildCancel(req)
	if err != nil {
		return nil, err
	}

	c.logger.Info("Sending cancel request",
		zap.String("merchant_order_no", req.MerchantOrderNo),
		zap.String("trade_no", req.TradeNo),
		zap.Int64("amount", req.Amount),
	)

	form := envelope.Form()
	defer PutFormData(form)

	body, err := c.transport.post(ctx, "cancel", c.config.CancelURL(), form)
	if err != nil {
		return nil, err
	}
	return ParseCloseResponse(body)
}

// Query fetches trade state via /API/QueryTradeInfo
func (c *directProtocolClient) Query(ctx context.Context, req *ports.QueryRequest) (*domain.TradeState, error) {
	form, err := c.builder.BuildQuery(req)
	if err != nil {
		return nil, err
	}
	defer PutFormData(form)

	body, err := c.transport.postIdempotent(ctx, "query", c.config.QueryURL(), form, c.config.QueryMaxRetries)
	if err != nil {
		return nil, err
	}
	return ParseQueryResponse(body, c.builder.codec.cred)
}
