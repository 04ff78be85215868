// Package app assembles the payment service from configuration. The server and the
// admin CLI share it so both run against the same store, locker and gateway client.
package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kevin07696/newebpay-service/internal/adapters/newebpay"
	adapterports "github.com/kevin07696/newebpay-service/internal/adapters/ports"
	"github.com/kevin07696/newebpay-service/internal/config"
	paymentService "github.com/kevin07696/newebpay-service/internal/services/payment"
	pkghttp "github.com/kevin07696/newebpay-service/pkg/http"
	"github.com/kevin07696/newebpay-service/pkg/observability"
	"github.com/kevin07696/newebpay-service/pkg/resilience"
	"github.com/kevin07696/newebpay-service/pkg/shutdown"
)

const shutdownTimeout = 30 * time.Second

// App holds the wired service and what must be closed with it
type App struct {
	Service       *paymentService.Service
	Codec         *newebpay.Codec
	Gateway       adapterports.PaymentGatewayClient
	GatewayConfig *newebpay.Config
	Timeouts      *resilience.TimeoutConfig
	Shutdown      *shutdown.Manager
	Health        *observability.HealthChecker
}

// New loads the credential and builds the gateway client, order store, locker and service.
// On error, anything already opened is closed before returning.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	a := &App{
		Shutdown: shutdown.NewManager(logger, shutdownTimeout),
		Health:   observability.NewHealthChecker(3 * time.Second),
	}
	if err := a.build(ctx, cfg, logger); err != nil {
		_ = a.Shutdown.Shutdown()
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	codec, err := LoadCodec(ctx, cfg.Credential, logger)
	if err != nil {
		return err
	}
	a.Codec = codec

	gatewayCfg := newebpay.DefaultConfig(cfg.Gateway.Env)
	gatewayCfg.Timeout = cfg.Gateway.Timeout
	a.GatewayConfig = gatewayCfg
	builder := newebpay.NewBuilder(gatewayCfg, codec, time.Now)
	httpClient := pkghttp.NewHTTPClient(pkghttp.GatewayClientConfig(), gatewayCfg.Timeout)

	a.Gateway = newebpay.NewDirectProtocolClient(gatewayCfg, builder, httpClient, logger)
	if cfg.Gateway.Client == newebpay.ClientSDK {
		a.Gateway = newebpay.NewVendorSdkClient(gatewayCfg, codec, httpClient, logger, time.Now)
	}

	orders, err := initOrderStore(ctx, cfg.Store, a.Shutdown, a.Health, logger)
	if err != nil {
		return fmt.Errorf("order store: %w", err)
	}
	locker, err := initLocker(ctx, cfg.Lock, a.Shutdown, a.Health, logger)
	if err != nil {
		return fmt.Errorf("locker: %w", err)
	}

	a.Timeouts = cfg.Timeouts()

	a.Service = paymentService.NewService(
		builder,
		a.Gateway,
		orders,
		locker,
		a.Timeouts,
		paymentService.Config{
			NotifyURL:        cfg.Server.NotifyURL(),
			ReturnURL:        cfg.Server.ReturnURL(),
			AutoCapture:      cfg.Gateway.AutoCapture,
			SweepConcurrency: cfg.Reconcile.Concurrency,
		},
		logger,
	)

	logger.Info("Payment service assembled",
		zap.String("gateway_env", cfg.Gateway.Env),
		zap.String("gateway_client", a.Gateway.Name()),
		zap.Bool("auto_capture", cfg.Gateway.AutoCapture),
	)
	return nil
}

// LoadCodec fetches the merchant credential from the configured source and builds the codec
func LoadCodec(ctx context.Context, cfg config.CredentialConfig, logger *zap.Logger) (*newebpay.Codec, error) {
	source, err := initCredentialSource(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("credential source: %w", err)
	}
	cred, err := source.LoadCredential(ctx)
	if err != nil {
		return nil, fmt.Errorf("load credential from %s: %w", source.Name(), err)
	}
	logger.Info("Merchant credential loaded", zap.String("source", source.Name()), zap.Object("credential", cred))

	codec, err := newebpay.NewCodec(*cred, logger)
	if err != nil {
		return nil, fmt.Errorf("codec: %w", err)
	}
	return codec, nil
}
