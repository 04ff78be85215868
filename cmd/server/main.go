package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	_ "go.uber.org/automaxprocs"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/kevin07696/newebpay-service/internal/app"
	"github.com/kevin07696/newebpay-service/internal/config"
	cronHandler "github.com/kevin07696/newebpay-service/internal/handlers/cron"
	paymentHandler "github.com/kevin07696/newebpay-service/internal/handlers/payment"
	"github.com/kevin07696/newebpay-service/pkg/middleware"
	"github.com/kevin07696/newebpay-service/pkg/observability"
	"github.com/kevin07696/newebpay-service/pkg/shutdown"
)

func main() {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		panic(fmt.Sprintf("load configuration: %v", err))
	}

	logger := initLogger(cfg.Logger)
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting newebpay service",
		zap.String("environment", cfg.Environment),
		zap.String("gateway_env", cfg.Gateway.Env),
		zap.String("gateway_client", cfg.Gateway.Client),
		zap.String("order_store", cfg.Store.Driver),
		zap.String("locker", cfg.Lock.Driver),
	)

	if err := run(cfg, logger); err != nil {
		logger.Fatal("Service stopped with error", zap.Error(err))
	}
	logger.Info("Servers stopped")
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := shutdown.SignalContext(context.Background())
	defer stop()

	startupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	a, err := app.New(startupCtx, cfg, logger)
	if err != nil {
		return err
	}
	svc, timeouts, sm := a.Service, a.Timeouts, a.Shutdown
	// covers early returns; Shutdown runs once
	defer func() { _ = sm.Shutdown() }()

	if cfg.Reconcile.Schedule != "" {
		scheduler, err := cronHandler.NewScheduler(svc, cfg.Reconcile.Schedule, timeouts.ReconcileSweep, logger)
		if err != nil {
			return fmt.Errorf("reconcile schedule %q: %w", cfg.Reconcile.Schedule, err)
		}
		scheduler.Start()
		sm.Register("reconcile-scheduler", scheduler.Stop)
	}

	// HTTP: browser callbacks on the plain mux, operator API on the gateway mux under /api/
	httpMux := http.NewServeMux()
	gwMux := runtime.NewServeMux()

	if err := paymentHandler.NewHandler(svc, cfg.Server.ResultURL(), logger).Register(httpMux, gwMux); err != nil {
		return fmt.Errorf("register payment routes: %w", err)
	}
	cronHandler.NewReconcileHandler(svc, logger, cfg.Reconcile.CronSecret).Register(httpMux)

	rateLimiter := middleware.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst, logger)
	sm.RegisterNoErr("rate-limiter", rateLimiter.Shutdown)

	// the gateway retries notifications until it sees 200, so they bypass rate limiting
	limited := rateLimiter.Middleware(httpMux)
	routed := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/payment/notify" {
			httpMux.ServeHTTP(w, r)
			return
		}
		limited.ServeHTTP(w, r)
	})

	httpServer := &http.Server{
		Addr: fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler: middleware.Chain(routed,
			middleware.Recover(logger),
			middleware.WithRequestID,
			middleware.SecurityHeaders(cfg.Environment == "production", a.GatewayConfig.BaseURL),
			middleware.AccessLog(logger),
			middleware.Timeout(timeouts),
			observability.HTTPMiddleware,
		),
		ReadHeaderTimeout: 10 * time.Second,
	}

	metricsServer := observability.NewMetricsServer(fmt.Sprintf(":%d", cfg.Server.MetricsPort), a.Health)

	// gRPC carries health and reflection for infrastructure probes
	grpcServer := grpc.NewServer(grpc.ChainUnaryInterceptor(observability.UnaryServerInterceptor()))
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	reflection.Register(grpcServer)

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.GRPCPort))
	if err != nil {
		return fmt.Errorf("listen grpc: %w", err)
	}

	sm.Register("metrics-server", metricsServer.Shutdown)
	sm.RegisterNoErr("grpc-server", func() {
		healthServer.Shutdown()
		grpcServer.GracefulStop()
	})
	sm.Register("http-server", httpServer.Shutdown)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("gRPC server listening", zap.String("address", listener.Addr().String()))
		return grpcServer.Serve(listener)
	})
	g.Go(func() error {
		logger.Info("HTTP server listening", zap.Int("port", cfg.Server.HTTPPort))
		return serveHTTP(httpServer)
	})
	g.Go(func() error {
		logger.Info("Metrics server listening", zap.Int("port", cfg.Server.MetricsPort))
		return serveHTTP(metricsServer)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down servers...")
		return sm.Shutdown()
	})

	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	if err := g.Wait(); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

func serveHTTP(srv *http.Server) error {
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func initLogger(cfg config.LoggerConfig) *zap.Logger {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	zapCfg := zap.NewProductionConfig()
	if cfg.Development {
		zapCfg = zap.NewDevelopmentConfig()
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	logger, err := zapCfg.Build()
	if err != nil {
		panic(fmt.Sprintf("build logger: %v", err))
	}
	return logger
}
